package contingency

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

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
	require.NoError(t, db.AutoMigrate(&models.Contact{}, &models.Message{}, &models.ContingentSendJob{}))
	return db
}

type fakeProvider struct {
	mu     sync.Mutex
	sent   []whatsapp.GenericMessage
	err    error
	nextID int
}

func (f *fakeProvider) SendRaw(_ context.Context, msg whatsapp.GenericMessage) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.sent = append(f.sent, msg)
	f.nextID++
	return fmt.Sprintf("wamid.%d", f.nextID), nil
}

func newQueue(db *gorm.DB, provider *fakeProvider) *Queue {
	q := NewQueue(db, dispatch.NewDispatcher(db, provider, "biz", nil))
	q.Pause = 0
	return q
}

func TestReplayWithoutPendingJob(t *testing.T) {
	q := newQueue(setupDB(t), &fakeProvider{})
	assert.False(t, q.Replay(context.Background(), "521"))
}

func TestReplaySendsSequenceThenPhoto(t *testing.T) {
	db := setupDB(t)
	provider := &fakeProvider{}
	q := newQueue(db, provider)

	require.NoError(t, q.Enqueue("521", []string{"first", "second"}, "https://cdn.example.com/p.jpg", "A-42"))

	assert.True(t, q.Replay(context.Background(), "521"))

	require.Len(t, provider.sent, 3)
	assert.Equal(t, "first", provider.sent[0].Text.Body)
	assert.Equal(t, "second", provider.sent[1].Text.Body)
	assert.Equal(t, "image", provider.sent[2].Type)
	require.NotNil(t, provider.sent[2].Image)
	assert.Equal(t, "https://cdn.example.com/p.jpg", provider.sent[2].Image.Link)

	var job models.ContingentSendJob
	require.NoError(t, db.First(&job, "contact_id = ?", "521").Error)
	assert.Equal(t, models.JobCompleted, job.Status)
	assert.NotNil(t, job.CompletedAt)
}

func TestReplayFailureIsTerminal(t *testing.T) {
	db := setupDB(t)
	provider := &fakeProvider{err: errors.New("API error: 470 - re-engagement required")}
	q := newQueue(db, provider)

	require.NoError(t, q.Enqueue("521", []string{"hello"}, "", ""))

	// The turn is still consumed even though the send failed.
	assert.True(t, q.Replay(context.Background(), "521"))

	var job models.ContingentSendJob
	require.NoError(t, db.First(&job, "contact_id = ?", "521").Error)
	assert.Equal(t, models.JobFailed, job.Status)
	assert.Contains(t, job.Error, "re-engagement required")

	// Failed jobs are never retried.
	provider.err = nil
	assert.False(t, q.Replay(context.Background(), "521"))
	assert.Empty(t, provider.sent)
}

func TestCompletedJobNeverReplaysAgain(t *testing.T) {
	db := setupDB(t)
	provider := &fakeProvider{}
	q := newQueue(db, provider)

	require.NoError(t, q.Enqueue("521", []string{"once"}, "", ""))

	assert.True(t, q.Replay(context.Background(), "521"))
	assert.False(t, q.Replay(context.Background(), "521"))
	assert.Len(t, provider.sent, 1)
}

func TestReplayOnlyTouchesOwnContact(t *testing.T) {
	db := setupDB(t)
	provider := &fakeProvider{}
	q := newQueue(db, provider)

	require.NoError(t, q.Enqueue("111", []string{"for 111"}, "", ""))

	assert.False(t, q.Replay(context.Background(), "222"))

	var job models.ContingentSendJob
	require.NoError(t, db.First(&job, "contact_id = ?", "111").Error)
	assert.Equal(t, models.JobPending, job.Status)
}
