package contingency

import (
	"context"
	"encoding/json"
	"time"

	"convogate/internal/dispatch"
	"convogate/internal/models"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Queue holds deferred sends for contacts whose session window had lapsed
// and replays them transparently once the contact re-engages.
type Queue struct {
	DB         *gorm.DB
	Dispatcher *dispatch.Dispatcher

	// Pause between replayed messages, to keep a natural conversation
	// cadence and respect provider rate expectations.
	Pause time.Duration
}

func NewQueue(db *gorm.DB, dispatcher *dispatch.Dispatcher) *Queue {
	return &Queue{DB: db, Dispatcher: dispatcher, Pause: 2 * time.Second}
}

// Enqueue stores a pending job for a contact.
func (q *Queue) Enqueue(waID string, messages []string, photoURL, orderRef string) error {
	raw, err := json.Marshal(messages)
	if err != nil {
		return err
	}
	return q.DB.Create(&models.ContingentSendJob{
		ContactID: waID,
		Status:    models.JobPending,
		Messages:  string(raw),
		PhotoURL:  photoURL,
		OrderRef:  orderRef,
	}).Error
}

// Replay looks up at most one pending job for the contact and attempts it.
// It returns true when a job was found and attempted, whatever the outcome;
// the caller skips the rest of its automation chain for that turn. Failed
// jobs are terminal and never retried automatically.
func (q *Queue) Replay(ctx context.Context, waID string) bool {
	var job models.ContingentSendJob
	err := q.DB.Where("contact_id = ? AND status = ?", waID, models.JobPending).First(&job).Error
	if err != nil {
		return false
	}

	log := logrus.WithFields(logrus.Fields{"wa_id": waID, "job_id": job.ID})

	if err := q.send(ctx, waID, job); err != nil {
		log.WithError(err).Error("contingent replay failed")
		q.DB.Model(&job).Updates(map[string]interface{}{
			"status": models.JobFailed,
			"error":  err.Error(),
		})
		return true
	}

	now := time.Now()
	q.DB.Model(&job).Updates(map[string]interface{}{
		"status":       models.JobCompleted,
		"completed_at": &now,
	})
	log.Info("contingent job replayed")
	return true
}

func (q *Queue) send(ctx context.Context, waID string, job models.ContingentSendJob) error {
	var messages []string
	if job.Messages != "" {
		if err := json.Unmarshal([]byte(job.Messages), &messages); err != nil {
			return err
		}
	}

	for i, text := range messages {
		if i > 0 {
			time.Sleep(q.Pause)
		}
		if _, err := q.Dispatcher.SendText(ctx, waID, text); err != nil {
			return err
		}
	}

	if job.PhotoURL != "" {
		if len(messages) > 0 {
			time.Sleep(q.Pause)
		}
		_, err := q.Dispatcher.Send(ctx, waID, dispatch.Options{
			MediaURL:  job.PhotoURL,
			MediaMime: "image/jpeg",
		})
		if err != nil {
			return err
		}
	}

	return nil
}
