package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"convogate/internal/config"
)

// Client talks to the WhatsApp Cloud API (messages, media, template catalog).
type Client struct {
	Config     *config.Config
	HTTPClient *http.Client
}

func NewClient(cfg *config.Config) *Client {
	return &Client{
		Config:     cfg,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// --- Message Structures ---

type GenericMessage struct {
	MessagingProduct string       `json:"messaging_product"`
	To               string       `json:"to"`
	Type             string       `json:"type"`
	RecipientType    string       `json:"recipient_type,omitempty"`
	Text             *TextObj     `json:"text,omitempty"`
	Image            *MediaObj    `json:"image,omitempty"`
	Video            *MediaObj    `json:"video,omitempty"`
	Audio            *MediaObj    `json:"audio,omitempty"`
	Document         *MediaObj    `json:"document,omitempty"`
	Sticker          *MediaObj    `json:"sticker,omitempty"`
	Location         *LocationObj `json:"location,omitempty"`
	Template         *TemplateObj `json:"template,omitempty"`
	Context          *ContextObj  `json:"context,omitempty"`
}

type TextObj struct {
	Body       string `json:"body"`
	PreviewUrl bool   `json:"preview_url,omitempty"`
}

type MediaObj struct {
	ID       string `json:"id,omitempty"`
	Link     string `json:"link,omitempty"`
	Caption  string `json:"caption,omitempty"`
	Filename string `json:"filename,omitempty"` // For documents
}

type LocationObj struct {
	Longitude float64 `json:"longitude"`
	Latitude  float64 `json:"latitude"`
	Name      string  `json:"name,omitempty"`
	Address   string  `json:"address,omitempty"`
}

// ContextObj threads a send as a reply to an earlier message
type ContextObj struct {
	MessageID string `json:"message_id"`
}

type TemplateObj struct {
	Name       string         `json:"name"`
	Language   LanguageObj    `json:"language"`
	Components []ComponentObj `json:"components,omitempty"`
}

type LanguageObj struct {
	Code string `json:"code"`
}

type ComponentObj struct {
	Type       string         `json:"type"`
	SubType    string         `json:"sub_type,omitempty"`
	Parameters []ParameterObj `json:"parameters"`
	Index      string         `json:"index,omitempty"` // For buttons
}

type ParameterObj struct {
	Type  string    `json:"type"`
	Text  string    `json:"text,omitempty"`
	Image *MediaObj `json:"image,omitempty"`
	Video *MediaObj `json:"video,omitempty"`
}

// --- Template Catalog Structures ---

// TemplateDefinition is one approved template from the provider catalog
type TemplateDefinition struct {
	ID         string              `json:"id"`
	Name       string              `json:"name"`
	Language   string              `json:"language"`
	Status     string              `json:"status"`
	Category   string              `json:"category"`
	Components []TemplateComponent `json:"components"`
}

type TemplateComponent struct {
	Type    string           `json:"type"`             // HEADER, BODY, FOOTER, BUTTONS
	Format  string           `json:"format,omitempty"` // TEXT, IMAGE, VIDEO, DOCUMENT
	Text    string           `json:"text,omitempty"`
	Buttons []TemplateButton `json:"buttons,omitempty"`
}

type TemplateButton struct {
	Type string `json:"type"`
	Text string `json:"text"`
	URL  string `json:"url,omitempty"`
}

// --- Helper Functions ---

func (c *Client) sendRequest(ctx context.Context, method, url string, body interface{}) ([]byte, error) {
	var bodyReader io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		bodyReader = bytes.NewBuffer(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Authorization", "Bearer "+c.Config.WhatsAppToken)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= 400 {
		return respBody, fmt.Errorf("API error: %s - %s", resp.Status, string(respBody))
	}

	return respBody, nil
}

// --- Messaging Methods ---

type sendResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
}

// SendRaw posts a message payload and returns the provider message id.
func (c *Client) SendRaw(ctx context.Context, msg GenericMessage) (string, error) {
	if msg.MessagingProduct == "" {
		msg.MessagingProduct = "whatsapp"
	}

	url := fmt.Sprintf("%s/%s/messages", c.Config.GraphBaseURL, c.Config.PhoneNumberID)
	respBody, err := c.sendRequest(ctx, "POST", url, msg)
	if err != nil {
		return "", err
	}

	var resp sendResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return "", err
	}
	if len(resp.Messages) == 0 {
		return "", fmt.Errorf("send succeeded but no message id returned")
	}
	return resp.Messages[0].ID, nil
}

func (c *Client) SendText(ctx context.Context, to, body string) (string, error) {
	return c.SendRaw(ctx, GenericMessage{
		To:   to,
		Type: "text",
		Text: &TextObj{Body: body},
	})
}

func (c *Client) SendImage(ctx context.Context, to, imageURL, caption string) (string, error) {
	return c.SendRaw(ctx, GenericMessage{
		To:    to,
		Type:  "image",
		Image: &MediaObj{Link: imageURL, Caption: caption},
	})
}

func (c *Client) SendTemplate(ctx context.Context, to string, tmpl TemplateObj) (string, error) {
	return c.SendRaw(ctx, GenericMessage{
		To:       to,
		Type:     "template",
		Template: &tmpl,
	})
}

// --- Media Methods ---

// MediaInfo is the provider's metadata for an uploaded media object. The
// URL is short-lived and must be fetched with the bearer token.
type MediaInfo struct {
	URL      string `json:"url"`
	MimeType string `json:"mime_type"`
	FileSize int64  `json:"file_size"`
	ID       string `json:"id"`
}

// ResolveMedia looks up the temporary download URL and MIME type by media id.
func (c *Client) ResolveMedia(ctx context.Context, mediaID string) (*MediaInfo, error) {
	url := fmt.Sprintf("%s/%s", c.Config.GraphBaseURL, mediaID)
	resp, err := c.sendRequest(ctx, "GET", url, nil)
	if err != nil {
		return nil, err
	}

	var info MediaInfo
	if err := json.Unmarshal(resp, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// StreamMedia opens the byte stream behind a resolved media URL. A Range
// header, when given, is forwarded so partial-content responses pass
// through untouched. The caller owns the response body.
func (c *Client) StreamMedia(ctx context.Context, mediaURL, rangeHeader string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", mediaURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.Config.WhatsAppToken)
	if rangeHeader != "" {
		req.Header.Set("Range", rangeHeader)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		resp.Body.Close()
		return nil, fmt.Errorf("media download failed: %s", resp.Status)
	}
	return resp, nil
}

// --- Template Catalog Methods ---

// ListTemplates fetches the approved-template catalog for the business account.
func (c *Client) ListTemplates(ctx context.Context) ([]TemplateDefinition, error) {
	url := fmt.Sprintf("%s/%s/message_templates", c.Config.GraphBaseURL, c.Config.WhatsAppBusinessAccountID)
	resp, err := c.sendRequest(ctx, "GET", url, nil)
	if err != nil {
		return nil, err
	}

	var result struct {
		Data []TemplateDefinition `json:"data"`
	}
	if err := json.Unmarshal(resp, &result); err != nil {
		return nil, err
	}
	return result.Data, nil
}
