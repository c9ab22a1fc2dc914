package models

// WebhookPayload represents the incoming JSON payload from WhatsApp
type WebhookPayload struct {
	Object string `json:"object"`
	Entry  []struct {
		ID      string `json:"id"`
		Changes []struct {
			Value ChangeValue `json:"value"`
			Field string      `json:"field"`
		} `json:"changes"`
	} `json:"entry"`
}

// ChangeValue holds the message, contact and status data of one change
type ChangeValue struct {
	MessagingProduct string `json:"messaging_product"`
	Metadata         struct {
		DisplayPhoneNumber string `json:"display_phone_number"`
		PhoneNumberID      string `json:"phone_number_id"`
	} `json:"metadata"`
	Contacts []WebhookContact `json:"contacts,omitempty"`
	Messages []WebhookMessage `json:"messages,omitempty"`
	Statuses []WebhookStatus  `json:"statuses,omitempty"`
}

// WebhookContact carries the sender's profile data
type WebhookContact struct {
	WaID    string `json:"wa_id"`
	Profile struct {
		Name string `json:"name"`
	} `json:"profile"`
}

// WebhookMessage is a single inbound message of any content type
type WebhookMessage struct {
	From      string `json:"from"`
	ID        string `json:"id"`
	Timestamp string `json:"timestamp"`
	Type      string `json:"type"`
	Text      *struct {
		Body string `json:"body"`
	} `json:"text,omitempty"`
	Image       *MediaMessage       `json:"image,omitempty"`
	Video       *MediaMessage       `json:"video,omitempty"`
	Audio       *MediaMessage       `json:"audio,omitempty"`
	Document    *MediaMessage       `json:"document,omitempty"`
	Sticker     *MediaMessage       `json:"sticker,omitempty"`
	Location    *LocationMessage    `json:"location,omitempty"`
	Reaction    *ReactionMessage    `json:"reaction,omitempty"`
	Interactive *InteractiveMessage `json:"interactive,omitempty"`
	Button      *ButtonMessage      `json:"button,omitempty"`
	Context     *MessageContext     `json:"context,omitempty"`
	Referral    *Referral           `json:"referral,omitempty"`
}

// MediaMessage represents a media attachment in a WhatsApp message
type MediaMessage struct {
	ID       string `json:"id"`
	MimeType string `json:"mime_type"`
	SHA256   string `json:"sha256,omitempty"`
	Caption  string `json:"caption,omitempty"`
	Filename string `json:"filename,omitempty"`
}

// LocationMessage carries shared coordinates
type LocationMessage struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Name      string  `json:"name,omitempty"`
	Address   string  `json:"address,omitempty"`
}

// ReactionMessage references another message by provider id
type ReactionMessage struct {
	MessageID string `json:"message_id"`
	Emoji     string `json:"emoji"`
}

// InteractiveMessage represents an interactive message response (buttons, lists)
type InteractiveMessage struct {
	Type        string `json:"type"`
	ButtonReply *struct {
		ID    string `json:"id"`
		Title string `json:"title"`
	} `json:"button_reply,omitempty"`
	ListReply *struct {
		ID          string `json:"id"`
		Title       string `json:"title"`
		Description string `json:"description,omitempty"`
	} `json:"list_reply,omitempty"`
}

// ButtonMessage is a quick-reply button press on a template message
type ButtonMessage struct {
	Payload string `json:"payload"`
	Text    string `json:"text"`
}

// MessageContext links a message to the one it replies to
type MessageContext struct {
	From string `json:"from"`
	ID   string `json:"id"`
}

// Referral holds ad-attribution metadata on a message that originated from
// a click-to-WhatsApp ad
type Referral struct {
	SourceURL  string `json:"source_url,omitempty"`
	SourceID   string `json:"source_id,omitempty"`
	SourceType string `json:"source_type,omitempty"`
	Headline   string `json:"headline,omitempty"`
	Body       string `json:"body,omitempty"`
}

// WebhookStatus is a delivery receipt for a previously sent message
type WebhookStatus struct {
	ID          string `json:"id"`
	Status      string `json:"status"`
	Timestamp   string `json:"timestamp"`
	RecipientID string `json:"recipient_id"`
	Errors      []struct {
		Code    int    `json:"code"`
		Title   string `json:"title"`
		Message string `json:"message,omitempty"`
	} `json:"errors,omitempty"`
}

// InboundEvent is the closed union of events a webhook delivery can carry.
// Classification happens once at the boundary; consumers type-switch over
// the three variants.
type InboundEvent interface {
	inboundEvent()
}

// ReactionEvent sets or clears an emoji on an earlier message
type ReactionEvent struct {
	From      string
	MessageID string // provider id of the reacted-to message
	Emoji     string
}

// StatusEvent advances the delivery status of an earlier message
type StatusEvent struct {
	MessageID   string
	RecipientID string
	Status      string
	ErrorDetail string
}

// MessageEvent is a new inbound message of any content type
type MessageEvent struct {
	Message     WebhookMessage
	ProfileName string
}

func (ReactionEvent) inboundEvent() {}
func (StatusEvent) inboundEvent()   {}
func (MessageEvent) inboundEvent()  {}

// Classify flattens one change value into the event union. Reactions are
// separated from other message types here so downstream code never has to
// re-inspect optional fields.
func Classify(value ChangeValue) []InboundEvent {
	events := make([]InboundEvent, 0, len(value.Messages)+len(value.Statuses))

	names := make(map[string]string, len(value.Contacts))
	for _, c := range value.Contacts {
		names[c.WaID] = c.Profile.Name
	}

	for _, msg := range value.Messages {
		if msg.Type == "reaction" && msg.Reaction != nil {
			events = append(events, ReactionEvent{
				From:      msg.From,
				MessageID: msg.Reaction.MessageID,
				Emoji:     msg.Reaction.Emoji,
			})
			continue
		}
		events = append(events, MessageEvent{
			Message:     msg,
			ProfileName: names[msg.From],
		})
	}

	for _, st := range value.Statuses {
		detail := ""
		if len(st.Errors) > 0 {
			detail = st.Errors[0].Title
		}
		events = append(events, StatusEvent{
			MessageID:   st.ID,
			RecipientID: st.RecipientID,
			Status:      st.Status,
			ErrorDetail: detail,
		})
	}

	return events
}
