package campaign

import (
	"context"
	"fmt"
	"sync"
	"time"

	"convogate/internal/contingency"
	"convogate/internal/dispatch"
	"convogate/internal/models"
	"convogate/internal/templates"
	"convogate/internal/whatsapp"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// SessionWindow is how long after a contact's own last message free-form
// sends are permitted.
const SessionWindow = 24 * time.Hour

const defaultWorkers = 4

// Runner fans a template or message sequence out to many recipients with
// independent per-recipient outcomes. One recipient failing never aborts
// the batch.
type Runner struct {
	DB         *gorm.DB
	Dispatcher *dispatch.Dispatcher
	Builder    *templates.Builder
	Catalog    *templates.Catalog
	Queue      *contingency.Queue
	Workers    int
	Window     time.Duration
}

func NewRunner(db *gorm.DB, dispatcher *dispatch.Dispatcher, builder *templates.Builder, catalog *templates.Catalog, queue *contingency.Queue, workers int) *Runner {
	if workers <= 0 {
		workers = defaultWorkers
	}
	return &Runner{
		DB:         db,
		Dispatcher: dispatcher,
		Builder:    builder,
		Catalog:    catalog,
		Queue:      queue,
		Workers:    workers,
		Window:     SessionWindow,
	}
}

// Failure is one recipient's captured send error.
type Failure struct {
	WaID   string `json:"wa_id"`
	Reason string `json:"reason"`
}

// Report is the joined outcome of a run. Every recipient lands in exactly
// one bucket.
type Report struct {
	Successful []string  `json:"successful"`
	Failed     []Failure `json:"failed"`
	Contingent []string  `json:"contingent"`
}

// TemplateRequest is a plain template blast: opted-in template sends need
// no session-window check.
type TemplateRequest struct {
	Recipients     []string `json:"recipients" binding:"required"`
	TemplateName   string   `json:"template_name" binding:"required"`
	Language       string   `json:"language"`
	HeaderImageURL string   `json:"header_image_url"`
	BodyParams     []string `json:"body_params"`
}

// BroadcastRequest is the order-confirmation / photo-broadcast variant:
// recipients outside their session window are routed through the
// contingency template instead of the free-form sequence.
type BroadcastRequest struct {
	Recipients          []string `json:"recipients" binding:"required"`
	Messages            []string `json:"messages"`
	PhotoURL            string   `json:"photo_url"`
	OrderRef            string   `json:"order_ref"`
	ContingencyTemplate string   `json:"contingency_template"`
	Language            string   `json:"language"`
}

// RunTemplate sends one approved template to every recipient.
func (r *Runner) RunTemplate(ctx context.Context, req TemplateRequest) *Report {
	def, err := r.Catalog.Find(ctx, req.TemplateName)
	if err != nil {
		report := &Report{}
		for _, waID := range req.Recipients {
			report.Failed = append(report.Failed, Failure{WaID: waID, Reason: err.Error()})
		}
		return report
	}

	lang := req.Language
	if lang == "" {
		lang = def.Language
	}

	return r.fanOut(ctx, req.Recipients, func(ctx context.Context, waID string) outcome {
		r.Dispatcher.EnsureContact(waID, "")

		built, err := r.Builder.Build(waID, *def, req.HeaderImageURL, req.BodyParams)
		if err != nil {
			return outcome{status: statusFailed, reason: err.Error()}
		}

		tmpl := templatePayload(req.TemplateName, lang, built)
		if _, err := r.Dispatcher.SendTemplate(ctx, waID, tmpl, built.Summary); err != nil {
			return outcome{status: statusFailed, reason: err.Error()}
		}
		return outcome{status: statusDelivered}
	})
}

// RunBroadcast sends the free-form sequence and photo to recipients inside
// their session window and queues a contingent job behind the contingency
// template for everyone else.
func (r *Runner) RunBroadcast(ctx context.Context, req BroadcastRequest) *Report {
	return r.fanOut(ctx, req.Recipients, func(ctx context.Context, waID string) outcome {
		r.Dispatcher.EnsureContact(waID, "")

		if r.withinWindow(waID) {
			return r.sendDirect(ctx, waID, req)
		}
		return r.sendContingent(ctx, waID, req)
	})
}

// withinWindow checks the 24-hour window against the most recent message
// the recipient authored, not the last message overall, so a prior
// automated send never reopens the window.
func (r *Runner) withinWindow(waID string) bool {
	var last models.Message
	err := r.DB.Where("contact_id = ? AND sender = ?", waID, waID).
		Order("created_at DESC").
		First(&last).Error
	if err != nil {
		return false
	}
	return time.Since(last.CreatedAt) < r.Window
}

func (r *Runner) sendDirect(ctx context.Context, waID string, req BroadcastRequest) outcome {
	for _, text := range req.Messages {
		if _, err := r.Dispatcher.SendText(ctx, waID, text); err != nil {
			return outcome{status: statusFailed, reason: err.Error()}
		}
	}

	if req.PhotoURL != "" {
		_, err := r.Dispatcher.Send(ctx, waID, dispatch.Options{
			MediaURL:  req.PhotoURL,
			MediaMime: "image/jpeg",
		})
		if err != nil {
			return outcome{status: statusFailed, reason: err.Error()}
		}
	}

	return outcome{status: statusDelivered}
}

func (r *Runner) sendContingent(ctx context.Context, waID string, req BroadcastRequest) outcome {
	if req.ContingencyTemplate == "" {
		return outcome{status: statusFailed, reason: "recipient outside session window and no contingency template configured"}
	}

	def, err := r.Catalog.Find(ctx, req.ContingencyTemplate)
	if err != nil {
		return outcome{status: statusFailed, reason: err.Error()}
	}

	lang := req.Language
	if lang == "" {
		lang = def.Language
	}

	// Image header carries the photo, body parameter carries the order ref.
	built, err := r.Builder.Build(waID, *def, req.PhotoURL, []string{req.OrderRef})
	if err != nil {
		return outcome{status: statusFailed, reason: err.Error()}
	}

	tmpl := templatePayload(req.ContingencyTemplate, lang, built)
	if _, err := r.Dispatcher.SendTemplate(ctx, waID, tmpl, built.Summary); err != nil {
		return outcome{status: statusFailed, reason: err.Error()}
	}

	if err := r.Queue.Enqueue(waID, req.Messages, req.PhotoURL, req.OrderRef); err != nil {
		return outcome{status: statusFailed, reason: fmt.Sprintf("queueing contingent job: %v", err)}
	}

	return outcome{status: statusContingent}
}

// --- worker pool ---

const (
	statusDelivered  = "delivered"
	statusContingent = "contingent"
	statusFailed     = "failed"
)

type outcome struct {
	waID   string
	status string
	reason string
}

// fanOut runs fn for every recipient on a bounded worker pool and joins
// the tagged outcomes. Workers recover panics into failed outcomes so the
// batch itself never raises.
func (r *Runner) fanOut(ctx context.Context, recipients []string, fn func(ctx context.Context, waID string) outcome) *Report {
	jobs := make(chan string)
	results := make(chan outcome, len(recipients))

	workers := r.Workers
	if workers > len(recipients) {
		workers = len(recipients)
	}

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for waID := range jobs {
				results <- r.runOne(ctx, waID, fn)
			}
		}()
	}

	for _, waID := range recipients {
		jobs <- waID
	}
	close(jobs)
	wg.Wait()
	close(results)

	report := &Report{}
	for res := range results {
		switch res.status {
		case statusDelivered:
			report.Successful = append(report.Successful, res.waID)
		case statusContingent:
			report.Contingent = append(report.Contingent, res.waID)
		default:
			report.Failed = append(report.Failed, Failure{WaID: res.waID, Reason: res.reason})
		}
	}

	logrus.WithFields(logrus.Fields{
		"recipients": len(recipients),
		"successful": len(report.Successful),
		"contingent": len(report.Contingent),
		"failed":     len(report.Failed),
	}).Info("campaign run finished")

	return report
}

func (r *Runner) runOne(ctx context.Context, waID string, fn func(ctx context.Context, waID string) outcome) (res outcome) {
	defer func() {
		if rec := recover(); rec != nil {
			res = outcome{waID: waID, status: statusFailed, reason: fmt.Sprintf("panic: %v", rec)}
		}
	}()
	res = fn(ctx, waID)
	res.waID = waID
	return res
}

func templatePayload(name, lang string, built *templates.BuildResult) whatsapp.TemplateObj {
	return whatsapp.TemplateObj{
		Name:       name,
		Language:   whatsapp.LanguageObj{Code: lang},
		Components: built.Components,
	}
}
