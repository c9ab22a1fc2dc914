package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"convogate/internal/models"
	"convogate/internal/whatsapp"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// ErrEmptyMessage means a send was attempted with neither text nor attachment.
var ErrEmptyMessage = errors.New("message has no content to send")

// Provider posts a structured payload and returns the provider message id.
type Provider interface {
	SendRaw(ctx context.Context, msg whatsapp.GenericMessage) (string, error)
}

// Notifier pushes stored messages to live dashboard clients.
type Notifier interface {
	NotifyMessage(msg models.Message)
}

// Dispatcher sends a single message to one recipient and persists the
// result in that contact's history.
type Dispatcher struct {
	DB       *gorm.DB
	Provider Provider
	SenderID string // our phone number id, recorded as the sender of outbound rows
	Hub      Notifier
}

func NewDispatcher(db *gorm.DB, provider Provider, senderID string, hub Notifier) *Dispatcher {
	return &Dispatcher{DB: db, Provider: provider, SenderID: senderID, Hub: hub}
}

// Options describe one outbound message. Text alone, attachment alone, or
// both (caption case) are valid.
type Options struct {
	Text      string
	MediaURL  string
	MediaMime string
	ReplyToID string
}

// Result carries what the caller needs for persistence and display.
type Result struct {
	ProviderID string
	Message    models.Message
}

// Send validates, dispatches and persists one message. Provider errors are
// surfaced unmodified; there is no local retry.
func (d *Dispatcher) Send(ctx context.Context, to string, opts Options) (*Result, error) {
	if opts.Text == "" && opts.MediaURL == "" {
		return nil, ErrEmptyMessage
	}

	d.EnsureContact(to, "")

	msg := whatsapp.GenericMessage{To: to}
	msgType := "text"

	if opts.MediaURL != "" {
		msgType = MediaType(opts.MediaMime)
		obj := &whatsapp.MediaObj{Link: opts.MediaURL, Caption: opts.Text}
		switch msgType {
		case "image":
			msg.Image = obj
		case "video":
			msg.Video = obj
		case "audio":
			obj.Caption = "" // audio carries no caption
			msg.Audio = obj
		default:
			msg.Document = obj
		}
	} else {
		msg.Text = &whatsapp.TextObj{Body: opts.Text}
	}
	msg.Type = msgType

	if opts.ReplyToID != "" {
		msg.Context = &whatsapp.ContextObj{MessageID: opts.ReplyToID}
	}

	providerID, err := d.Provider.SendRaw(ctx, msg)
	if err != nil {
		return nil, err
	}

	return d.store(to, models.Message{
		ProviderID: providerID,
		ContactID:  to,
		Sender:     d.SenderID,
		Type:       msgType,
		Body:       opts.Text,
		MediaURL:   opts.MediaURL,
		MediaMime:  opts.MediaMime,
		ReplyToID:  opts.ReplyToID,
		Status:     models.StatusSent,
	})
}

// SendText is the common free-form case.
func (d *Dispatcher) SendText(ctx context.Context, to, text string) (*Result, error) {
	return d.Send(ctx, to, Options{Text: text})
}

// SendTemplate dispatches a prepared template payload. The summary is the
// human-readable rendering stored in the history.
func (d *Dispatcher) SendTemplate(ctx context.Context, to string, tmpl whatsapp.TemplateObj, summary string) (*Result, error) {
	d.EnsureContact(to, "")

	providerID, err := d.Provider.SendRaw(ctx, whatsapp.GenericMessage{
		To:       to,
		Type:     "template",
		Template: &tmpl,
	})
	if err != nil {
		return nil, err
	}

	return d.store(to, models.Message{
		ProviderID: providerID,
		ContactID:  to,
		Sender:     d.SenderID,
		Type:       "template",
		Body:       summary,
		Status:     models.StatusSent,
	})
}

// EnsureContact auto-provisions a contact record on outbound-first sends so
// the message has a parent to attach to.
func (d *Dispatcher) EnsureContact(waID, name string) {
	contact := models.Contact{
		WaID:      waID,
		Name:      name,
		NameLower: strings.ToLower(name),
	}
	if err := d.DB.Where("wa_id = ?", waID).FirstOrCreate(&contact).Error; err != nil {
		logrus.WithError(err).WithField("wa_id", waID).Error("failed to ensure contact")
	}
}

func (d *Dispatcher) store(to string, row models.Message) (*Result, error) {
	if err := d.DB.Create(&row).Error; err != nil {
		logrus.WithError(err).WithField("provider_id", row.ProviderID).Error("failed to persist outbound message")
		// The provider already accepted the send; hand the id back with the
		// error so callers see a partial success, not a silent one.
		return &Result{ProviderID: row.ProviderID, Message: row}, fmt.Errorf("message %s sent but not persisted: %w", row.ProviderID, err)
	}

	preview := row.Body
	if preview == "" {
		preview = "[" + row.Type + "]"
	}
	d.DB.Model(&models.Contact{}).Where("wa_id = ?", to).Updates(map[string]interface{}{
		"last_message":    preview,
		"last_message_at": time.Now(),
	})

	if d.Hub != nil {
		d.Hub.NotifyMessage(row)
	}

	return &Result{ProviderID: row.ProviderID, Message: row}, nil
}

// MediaType maps a MIME prefix to the provider's attachment categories.
// Anything unrecognized is sent as a document.
func MediaType(mime string) string {
	switch {
	case strings.HasPrefix(mime, "image"):
		return "image"
	case strings.HasPrefix(mime, "video"):
		return "video"
	case strings.HasPrefix(mime, "audio"):
		return "audio"
	default:
		return "document"
	}
}
