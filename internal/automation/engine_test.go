package automation

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"convogate/internal/contingency"
	"convogate/internal/dispatch"
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
	require.NoError(t, db.AutoMigrate(
		&models.Contact{}, &models.Message{}, &models.ContingentSendJob{}, &models.AutomationLog{},
	))
	return db
}

type fakeProvider struct {
	mu     sync.Mutex
	sent   []whatsapp.GenericMessage
	nextID int
}

func (f *fakeProvider) SendRaw(_ context.Context, msg whatsapp.GenericMessage) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, msg)
	f.nextID++
	return fmt.Sprintf("wamid.%d", f.nextID), nil
}

func (f *fakeProvider) bodies() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, m := range f.sent {
		if m.Text != nil {
			out = append(out, m.Text.Body)
		}
	}
	return out
}

type fixedPriceList struct{ keyword, reply string }

func (m fixedPriceList) Match(_ context.Context, text string) (string, bool) {
	if strings.Contains(strings.ToLower(text), m.keyword) {
		return m.reply, true
	}
	return "", false
}

type fixedCoverage struct{ codes map[string]string }

func (c fixedCoverage) Check(_ context.Context, code string) (string, bool) {
	answer, ok := c.codes[code]
	return answer, ok
}

type fixedGreetings struct{ bySource map[string]string }

func (g fixedGreetings) Greeting(_ context.Context, sourceID string) (string, bool) {
	greeting, ok := g.bySource[sourceID]
	return greeting, ok
}

type recordingNotifier struct {
	converted []string
}

func (n *recordingNotifier) LeadConverted(_ context.Context, waID, _ string) error {
	n.converted = append(n.converted, waID)
	return nil
}

func newTestEngine(t *testing.T) (*Engine, *gorm.DB, *fakeProvider) {
	t.Helper()
	db := setupDB(t)
	provider := &fakeProvider{}
	dispatcher := dispatch.NewDispatcher(db, provider, "biz", nil)
	queue := contingency.NewQueue(db, dispatcher)
	queue.Pause = 0
	engine := NewEngine(db, dispatcher, queue, NewSchedule("UTC", 0, 24), "welcome!")
	return engine, db, provider
}

func welcomedContact(waID string) models.Contact {
	return models.Contact{WaID: waID, Welcomed: true, BotEnabled: true}
}

func TestPriceListBeatsPostalCode(t *testing.T) {
	engine, db, provider := newTestEngine(t)
	engine.PriceList = fixedPriceList{keyword: "precio", reply: "here is the list"}
	engine.Coverage = fixedCoverage{codes: map[string]string{"06700": "yes we deliver"}}

	// The text matches both rules; the price list wins.
	engine.ProcessInbound(context.Background(), welcomedContact("521"), "text", "precio para 06700")

	assert.Equal(t, []string{"here is the list"}, provider.bodies())

	var log models.AutomationLog
	require.NoError(t, db.First(&log, "wa_id = ?", "521").Error)
	assert.Equal(t, "price_list", log.TriggerType)
	assert.True(t, log.Success)
}

func TestPostalCodeAnswered(t *testing.T) {
	engine, _, provider := newTestEngine(t)
	engine.Coverage = fixedCoverage{codes: map[string]string{"06700": "yes we deliver"}}

	engine.ProcessInbound(context.Background(), welcomedContact("521"), "text", "cp 06700")

	assert.Equal(t, []string{"yes we deliver"}, provider.bodies())
}

func TestPostalCodeRulesSkipNonText(t *testing.T) {
	engine, _, provider := newTestEngine(t)
	engine.Coverage = fixedCoverage{codes: map[string]string{"06700": "yes"}}

	engine.ProcessInbound(context.Background(), welcomedContact("521"), "image", "06700")

	assert.Empty(t, provider.bodies())
}

func TestAdGreetingBeatsGenericWelcome(t *testing.T) {
	engine, db, provider := newTestEngine(t)
	engine.Greetings = fixedGreetings{bySource: map[string]string{"ad-77": "saw our summer ad?"}}
	notifier := &recordingNotifier{}
	engine.Conversions = notifier

	contact := models.Contact{WaID: "521", ReferralSourceID: "ad-77"}
	require.NoError(t, db.Create(&contact).Error)

	engine.ProcessInbound(context.Background(), contact, "text", "hola")

	assert.Equal(t, []string{"saw our summer ad?"}, provider.bodies())
	assert.Equal(t, []string{"521"}, notifier.converted)

	var updated models.Contact
	require.NoError(t, db.First(&updated, "wa_id = ?", "521").Error)
	assert.True(t, updated.Welcomed)
}

func TestGenericWelcomeWithoutReferral(t *testing.T) {
	engine, db, provider := newTestEngine(t)

	contact := models.Contact{WaID: "521"}
	require.NoError(t, db.Create(&contact).Error)

	engine.ProcessInbound(context.Background(), contact, "text", "hola")

	assert.Equal(t, []string{"welcome!"}, provider.bodies())
}

func TestContingencyReplayConsumesTurn(t *testing.T) {
	engine, db, provider := newTestEngine(t)
	engine.PriceList = fixedPriceList{keyword: "precio", reply: "list"}

	require.NoError(t, engine.Queue.Enqueue("521", []string{"queued send"}, "", ""))
	contact := welcomedContact("521")
	require.NoError(t, db.Create(&contact).Error)

	// Even a price-list match loses to a pending contingent job.
	engine.ProcessInbound(context.Background(), contact, "text", "precio")

	assert.Equal(t, []string{"queued send"}, provider.bodies())
}

func TestAwayReplyOutsideHours(t *testing.T) {
	engine, db, provider := newTestEngine(t)
	engine.Schedule = Schedule{} // no hours at all: always closed
	engine.Replies = AwayReplier{AwayMessage: "we are closed, back tomorrow"}

	contact := welcomedContact("521")
	require.NoError(t, db.Create(&contact).Error)

	engine.ProcessInbound(context.Background(), contact, "text", "anyone there?")

	assert.Equal(t, []string{"we are closed, back tomorrow"}, provider.bodies())
}

func TestNoReplyWhenBotDisabled(t *testing.T) {
	engine, db, provider := newTestEngine(t)
	engine.Schedule = Schedule{}
	engine.Replies = AwayReplier{AwayMessage: "closed"}

	contact := models.Contact{WaID: "521", Welcomed: true, BotEnabled: false}
	require.NoError(t, db.Create(&contact).Error)

	engine.ProcessInbound(context.Background(), contact, "text", "hola")

	assert.Empty(t, provider.bodies())
}

func TestAwayReplierSilentDuringHours(t *testing.T) {
	r := AwayReplier{AwayMessage: "closed"}

	reply, err := r.Reply(context.Background(), models.Contact{}, "hi", true)
	require.NoError(t, err)
	assert.Empty(t, reply)

	reply, err = r.Reply(context.Background(), models.Contact{}, "hi", false)
	require.NoError(t, err)
	assert.Equal(t, "closed", reply)
}

func TestExtractPostalCode(t *testing.T) {
	tests := []struct {
		text string
		code string
		ok   bool
	}{
		{"06700", "06700", true},
		{"mi codigo es 06700 gracias", "06700", true},
		{"cp 06700", "06700", true},
		{"CP06700", "06700", true},
		{"cp sin numero", "", false},
		{"123456", "", false},
		{"1234", "", false},
		{"hola", "", false},
	}
	for _, tt := range tests {
		code, ok := extractPostalCode(tt.text)
		assert.Equal(t, tt.ok, ok, tt.text)
		assert.Equal(t, tt.code, code, tt.text)
	}
}
