package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"convogate/internal/models"
	"convogate/internal/whatsapp"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Discard})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Contact{}, &models.Message{}))
	return db
}

type fakeProvider struct {
	mu      sync.Mutex
	sent    []whatsapp.GenericMessage
	failFor map[string]error
	nextID  int
}

func (f *fakeProvider) SendRaw(_ context.Context, msg whatsapp.GenericMessage) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.failFor[msg.To]; ok {
		return "", err
	}
	f.sent = append(f.sent, msg)
	f.nextID++
	return fmt.Sprintf("wamid.%d", f.nextID), nil
}

func TestSendRejectsEmptyMessage(t *testing.T) {
	d := NewDispatcher(setupDB(t), &fakeProvider{}, "biz-1", nil)

	_, err := d.Send(context.Background(), "5215550001", Options{})
	assert.ErrorIs(t, err, ErrEmptyMessage)
}

func TestSendAutoProvisionsContact(t *testing.T) {
	db := setupDB(t)
	provider := &fakeProvider{}
	d := NewDispatcher(db, provider, "biz-1", nil)

	result, err := d.Send(context.Background(), "5215550001", Options{Text: "hello"})
	require.NoError(t, err)
	assert.Equal(t, "wamid.1", result.ProviderID)

	var contact models.Contact
	require.NoError(t, db.First(&contact, "wa_id = ?", "5215550001").Error)
	assert.Equal(t, "hello", contact.LastMessage)

	var msg models.Message
	require.NoError(t, db.First(&msg, "provider_id = ?", "wamid.1").Error)
	assert.Equal(t, "biz-1", msg.Sender)
	assert.Equal(t, models.StatusSent, msg.Status)
}

func TestSendCarriesReplyContext(t *testing.T) {
	provider := &fakeProvider{}
	d := NewDispatcher(setupDB(t), provider, "biz-1", nil)

	_, err := d.Send(context.Background(), "5215550001", Options{Text: "re", ReplyToID: "wamid.orig"})
	require.NoError(t, err)

	require.Len(t, provider.sent, 1)
	require.NotNil(t, provider.sent[0].Context)
	assert.Equal(t, "wamid.orig", provider.sent[0].Context.MessageID)
}

func TestSendAttachmentWithCaption(t *testing.T) {
	provider := &fakeProvider{}
	d := NewDispatcher(setupDB(t), provider, "biz-1", nil)

	_, err := d.Send(context.Background(), "5215550001", Options{
		Text:      "look at this",
		MediaURL:  "https://cdn.example.com/a.jpg",
		MediaMime: "image/jpeg",
	})
	require.NoError(t, err)

	require.Len(t, provider.sent, 1)
	msg := provider.sent[0]
	assert.Equal(t, "image", msg.Type)
	require.NotNil(t, msg.Image)
	assert.Equal(t, "look at this", msg.Image.Caption)
}

func TestProviderErrorSurfacedUnmodified(t *testing.T) {
	providerErr := errors.New("API error: 400 - invalid recipient")
	provider := &fakeProvider{failFor: map[string]error{"5215550001": providerErr}}
	db := setupDB(t)
	d := NewDispatcher(db, provider, "biz-1", nil)

	_, err := d.Send(context.Background(), "5215550001", Options{Text: "hi"})
	assert.Equal(t, providerErr, err)

	var count int64
	db.Model(&models.Message{}).Count(&count)
	assert.Zero(t, count, "failed sends must not be persisted")
}

func TestPersistenceFailureSurfacedAsPartialSuccess(t *testing.T) {
	db := setupDB(t)
	provider := &fakeProvider{}
	d := NewDispatcher(db, provider, "biz-1", nil)

	// The provider will hand back wamid.1; a row with that id already
	// exists, so the unique index rejects the insert after the send.
	require.NoError(t, db.Create(&models.Message{
		ProviderID: "wamid.1", ContactID: "other", Sender: "biz-1",
	}).Error)

	result, err := d.Send(context.Background(), "5215550001", Options{Text: "hi"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sent but not persisted")
	require.NotNil(t, result, "the provider id must survive a storage failure")
	assert.Equal(t, "wamid.1", result.ProviderID)
}

func TestMediaType(t *testing.T) {
	tests := []struct {
		mime string
		want string
	}{
		{"image/jpeg", "image"},
		{"image/png", "image"},
		{"video/mp4", "video"},
		{"audio/ogg", "audio"},
		{"application/pdf", "document"},
		{"text/csv", "document"},
		{"", "document"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, MediaType(tt.mime), tt.mime)
	}
}

func TestSendTemplatePersistsSummary(t *testing.T) {
	db := setupDB(t)
	provider := &fakeProvider{}
	d := NewDispatcher(db, provider, "biz-1", nil)

	tmpl := whatsapp.TemplateObj{Name: "order_ready", Language: whatsapp.LanguageObj{Code: "en"}}
	_, err := d.SendTemplate(context.Background(), "5215550001", tmpl, "Your order 42 is ready")
	require.NoError(t, err)

	var msg models.Message
	require.NoError(t, db.First(&msg, "contact_id = ?", "5215550001").Error)
	assert.Equal(t, "template", msg.Type)
	assert.Equal(t, "Your order 42 is ready", msg.Body)
}
