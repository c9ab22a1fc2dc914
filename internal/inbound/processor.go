package inbound

import (
	"context"
	"fmt"
	"strings"
	"time"

	"convogate/internal/automation"
	"convogate/internal/media"
	"convogate/internal/models"
	pkgmodels "convogate/pkg/models"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Notifier pushes stored messages to live dashboard clients.
type Notifier interface {
	NotifyMessage(msg models.Message)
}

// Processor drives the side effects of classified inbound events:
// persistence, media handling, contact upkeep and the automation chain.
type Processor struct {
	DB            *gorm.DB
	Media         *media.Transfer
	Engine        *automation.Engine
	Hub           Notifier
	PublicBaseURL string
}

func NewProcessor(db *gorm.DB, transfer *media.Transfer, engine *automation.Engine, hub Notifier, publicBaseURL string) *Processor {
	return &Processor{
		DB:            db,
		Media:         transfer,
		Engine:        engine,
		Hub:           hub,
		PublicBaseURL: publicBaseURL,
	}
}

// Process handles one classified event. Errors are for logging only; the
// webhook layer acknowledges regardless.
func (p *Processor) Process(ctx context.Context, event pkgmodels.InboundEvent) error {
	switch ev := event.(type) {
	case pkgmodels.ReactionEvent:
		return p.handleReaction(ev)
	case pkgmodels.StatusEvent:
		return p.handleStatus(ev)
	case pkgmodels.MessageEvent:
		return p.handleMessage(ctx, ev)
	default:
		return fmt.Errorf("unhandled inbound event %T", event)
	}
}

// handleReaction sets or clears the emoji on the referenced message.
// Re-sending the same emoji clears it (toggle semantics).
func (p *Processor) handleReaction(ev pkgmodels.ReactionEvent) error {
	var msg models.Message
	err := p.DB.Where("provider_id = ? AND contact_id = ?", ev.MessageID, ev.From).First(&msg).Error
	if err != nil {
		logrus.WithField("message_id", ev.MessageID).Debug("reaction for unknown message dropped")
		return nil
	}

	reaction := ev.Emoji
	if reaction == msg.Reaction {
		reaction = ""
	}
	return p.DB.Model(&msg).Update("reaction", reaction).Error
}

// handleStatus applies the monotonic status-advance rule. Receipts that
// would move the status backward, duplicates, and receipts for unknown
// messages are dropped. Permanent failure notices are logged without
// touching the stored text.
func (p *Processor) handleStatus(ev pkgmodels.StatusEvent) error {
	var msg models.Message
	err := p.DB.Where("provider_id = ?", ev.MessageID).First(&msg).Error
	if err != nil {
		logrus.WithField("message_id", ev.MessageID).Debug("status for unknown message dropped")
		return nil
	}

	if ev.Status == "failed" {
		logrus.WithFields(logrus.Fields{
			"message_id": ev.MessageID,
			"recipient":  ev.RecipientID,
			"detail":     ev.ErrorDetail,
		}).Warn("message delivery failed")
		return nil
	}

	if !models.StatusAdvances(msg.Status, ev.Status) {
		return nil
	}
	return p.DB.Model(&msg).Update("status", ev.Status).Error
}

func (p *Processor) handleMessage(ctx context.Context, ev pkgmodels.MessageEvent) error {
	msg := ev.Message

	// Idempotency: the provider may redeliver a webhook; storage keyed by
	// provider message id absorbs the duplicate.
	var count int64
	p.DB.Model(&models.Message{}).Where("provider_id = ?", msg.ID).Count(&count)
	if count > 0 {
		return nil
	}

	row := p.classify(ctx, msg)
	if err := p.DB.Create(&row).Error; err != nil {
		return fmt.Errorf("persisting inbound message %s: %w", msg.ID, err)
	}

	contact := p.upsertContact(ev, row)

	if p.Hub != nil {
		p.Hub.NotifyMessage(row)
	}

	if p.Engine != nil {
		p.Engine.ProcessInbound(ctx, contact, row.Type, row.Body)
	}

	return nil
}

// classify maps a webhook message onto a storable row. Inline image and
// video keep a proxy reference for low-latency playback; audio and
// documents are re-hosted, with the proxy as fallback so ingestion never
// blocks on storage.
func (p *Processor) classify(ctx context.Context, msg pkgmodels.WebhookMessage) models.Message {
	row := models.Message{
		ProviderID: msg.ID,
		ContactID:  msg.From,
		Sender:     msg.From,
		Type:       msg.Type,
		Status:     "received",
	}
	if msg.Context != nil {
		row.ReplyToID = msg.Context.ID
	}

	switch msg.Type {
	case "text":
		if msg.Text != nil {
			row.Body = msg.Text.Body
		}

	case "image":
		p.proxyReference(&row, msg.Image)
	case "video":
		p.proxyReference(&row, msg.Video)
	case "sticker":
		p.proxyReference(&row, msg.Sticker)

	case "audio":
		p.rehost(ctx, &row, msg.Audio, msg.From)
	case "document":
		p.rehost(ctx, &row, msg.Document, msg.From)
		if row.Body == "" && msg.Document != nil {
			row.Body = msg.Document.Filename
		}

	case "location":
		if msg.Location != nil {
			loc := msg.Location
			row.Body = strings.TrimSpace(fmt.Sprintf("%s %s", loc.Name, loc.Address))
			if row.Body == "" {
				row.Body = fmt.Sprintf("%.6f, %.6f", loc.Latitude, loc.Longitude)
			}
			row.MediaURL = fmt.Sprintf("https://maps.google.com/?q=%f,%f", loc.Latitude, loc.Longitude)
		}

	case "interactive":
		row.Body = interactiveBody(msg.Interactive)

	case "button":
		if msg.Button != nil {
			row.Body = msg.Button.Text
		}

	default:
		row.Body = "[" + msg.Type + "]"
	}

	if row.Body == "" && row.MediaURL == "" {
		row.Body = "[" + msg.Type + "]"
	}

	return row
}

func (p *Processor) proxyReference(row *models.Message, m *pkgmodels.MediaMessage) {
	if m == nil {
		return
	}
	row.Body = m.Caption
	row.MediaURL = media.ProxyURL(p.PublicBaseURL, m.ID)
	row.MediaMime = m.MimeType
}

func (p *Processor) rehost(ctx context.Context, row *models.Message, m *pkgmodels.MediaMessage, owner string) {
	if m == nil {
		return
	}
	row.Body = m.Caption
	row.MediaMime = m.MimeType

	if p.Media != nil {
		result, err := p.Media.Fetch(ctx, m.ID, owner)
		if err == nil {
			row.MediaURL = result.PublicURL
			row.MediaMime = result.MimeType
			return
		}
		logrus.WithError(err).WithField("media_id", m.ID).Warn("re-hosting failed, using proxy reference")
	}

	row.MediaURL = media.ProxyURL(p.PublicBaseURL, m.ID)
}

func interactiveBody(in *pkgmodels.InteractiveMessage) string {
	if in == nil {
		return "[interactive]"
	}
	if in.ButtonReply != nil {
		return in.ButtonReply.Title
	}
	if in.ListReply != nil {
		return in.ListReply.Title
	}
	return "[interactive]"
}

// upsertContact creates or refreshes the owning contact: display name,
// search index, ad attribution, preview fields and unread counter.
func (p *Processor) upsertContact(ev pkgmodels.MessageEvent, row models.Message) models.Contact {
	waID := ev.Message.From

	preview := row.Body
	if preview == "" {
		preview = "[" + row.Type + "]"
	}

	var contact models.Contact
	err := p.DB.First(&contact, "wa_id = ?", waID).Error
	if err != nil {
		contact = models.Contact{
			WaID:          waID,
			Name:          ev.ProfileName,
			NameLower:     strings.ToLower(ev.ProfileName),
			LastMessage:   preview,
			LastMessageAt: time.Now(),
			UnreadCount:   1,
			BotEnabled:    true,
		}
		if ref := ev.Message.Referral; ref != nil {
			contact.ReferralSourceID = ref.SourceID
			contact.ReferralHeadline = ref.Headline
		}
		if err := p.DB.Create(&contact).Error; err != nil {
			logrus.WithError(err).WithField("wa_id", waID).Error("failed to create contact")
		}
		return contact
	}

	updates := map[string]interface{}{
		"last_message":    preview,
		"last_message_at": time.Now(),
		"unread_count":    gorm.Expr("unread_count + 1"),
	}
	if ev.ProfileName != "" {
		updates["name"] = ev.ProfileName
		updates["name_lower"] = strings.ToLower(ev.ProfileName)
	}
	if ref := ev.Message.Referral; ref != nil && contact.ReferralSourceID == "" {
		updates["referral_source_id"] = ref.SourceID
		updates["referral_headline"] = ref.Headline
	}
	if err := p.DB.Model(&contact).Updates(updates).Error; err != nil {
		logrus.WithError(err).WithField("wa_id", waID).Error("failed to update contact")
	}

	return contact
}
