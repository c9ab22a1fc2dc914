package templates

import (
	"errors"
	"fmt"
	"strings"

	"convogate/internal/models"
	"convogate/internal/whatsapp"

	"gorm.io/gorm"
)

// ErrMissingAttachment means the template carries an image header but the
// caller supplied no image URL. Rejected before any network call.
var ErrMissingAttachment = errors.New("template requires an image attachment")

// FallbackName is used when the contact record does not exist yet.
const FallbackName = "customer"

// Builder turns an approved template definition plus a stored contact into
// a provider-ready component payload and a human-readable summary for the
// message history.
type Builder struct {
	DB *gorm.DB
}

func NewBuilder(db *gorm.DB) *Builder {
	return &Builder{DB: db}
}

// BuildResult carries the provider payload and the stored summary text.
type BuildResult struct {
	Components []whatsapp.ComponentObj
	Summary    string
}

// Build assembles the components for one recipient. Header personalization
// always uses the stored contact name, never caller parameters; the first
// body parameter is likewise the contact name, followed by bodyParams in
// order. Excess caller parameters are dropped, missing ones stay unfilled.
func (b *Builder) Build(waID string, def whatsapp.TemplateDefinition, imageURL string, bodyParams []string) (*BuildResult, error) {
	name := b.contactName(waID)

	var components []whatsapp.ComponentObj
	summary := def.Name

	for _, comp := range def.Components {
		switch strings.ToUpper(comp.Type) {
		case "HEADER":
			header, err := buildHeader(comp, name, imageURL)
			if err != nil {
				return nil, err
			}
			if header != nil {
				components = append(components, *header)
			}

		case "BODY":
			values := bodyValues(comp.Text, name, bodyParams)
			if len(values) > 0 {
				params := make([]whatsapp.ParameterObj, len(values))
				for i, v := range values {
					params[i] = whatsapp.ParameterObj{Type: "text", Text: v}
				}
				components = append(components, whatsapp.ComponentObj{
					Type:       "body",
					Parameters: params,
				})
			}
			summary = substitute(comp.Text, values)

		case "BUTTONS":
			components = append(components, buildButtons(comp, waID)...)
		}
	}

	return &BuildResult{Components: components, Summary: summary}, nil
}

func (b *Builder) contactName(waID string) string {
	var contact models.Contact
	if err := b.DB.First(&contact, "wa_id = ?", waID).Error; err != nil || contact.Name == "" {
		return FallbackName
	}
	return contact.Name
}

func buildHeader(comp whatsapp.TemplateComponent, name, imageURL string) (*whatsapp.ComponentObj, error) {
	switch strings.ToUpper(comp.Format) {
	case "IMAGE":
		if imageURL == "" {
			return nil, ErrMissingAttachment
		}
		return &whatsapp.ComponentObj{
			Type: "header",
			Parameters: []whatsapp.ParameterObj{
				{Type: "image", Image: &whatsapp.MediaObj{Link: imageURL}},
			},
		}, nil
	case "TEXT":
		if countPlaceholders(comp.Text) == 0 {
			return nil, nil
		}
		return &whatsapp.ComponentObj{
			Type: "header",
			Parameters: []whatsapp.ParameterObj{
				{Type: "text", Text: name},
			},
		}, nil
	}
	return nil, nil
}

// bodyValues assembles the positional parameter list: contact name first,
// then caller parameters, truncated to the template's placeholder count.
func bodyValues(bodyText, name string, bodyParams []string) []string {
	n := countPlaceholders(bodyText)
	if n == 0 {
		return nil
	}

	values := append([]string{name}, bodyParams...)
	if len(values) > n {
		values = values[:n]
	}
	return values
}

func buildButtons(comp whatsapp.TemplateComponent, waID string) []whatsapp.ComponentObj {
	var components []whatsapp.ComponentObj
	for i, btn := range comp.Buttons {
		if !strings.EqualFold(btn.Type, "URL") || !strings.Contains(btn.URL, "{{1}}") {
			continue
		}
		// Deep-link the button back to the contact.
		components = append(components, whatsapp.ComponentObj{
			Type:    "button",
			SubType: "url",
			Index:   fmt.Sprintf("%d", i),
			Parameters: []whatsapp.ParameterObj{
				{Type: "text", Text: waID},
			},
		})
	}
	return components
}

func countPlaceholders(text string) int {
	return len(placeholderPattern.FindAllString(text, -1))
}

// substitute fills {{1}}, {{2}}, ... positionally into the raw template
// text. This is the stored summary, independent of the provider payload.
func substitute(text string, values []string) string {
	for i, v := range values {
		text = strings.ReplaceAll(text, fmt.Sprintf("{{%d}}", i+1), v)
	}
	return text
}
