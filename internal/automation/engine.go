package automation

import (
	"context"
	"regexp"
	"strings"
	"time"

	"convogate/internal/contingency"
	"convogate/internal/dispatch"
	"convogate/internal/models"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

var postalPattern = regexp.MustCompile(`\b\d{5}\b`)

// Engine runs the post-storage automation chain for inbound messages.
// The rule order is fixed and first-match-wins: contingency replay, price
// list, postal code, welcome/ad greeting, auto reply. Swapping the order
// changes observable behavior, so it stays positional here.
type Engine struct {
	DB         *gorm.DB
	Dispatcher *dispatch.Dispatcher
	Queue      *contingency.Queue

	PriceList   PriceListMatcher
	Coverage    CoverageChecker
	Greetings   GreetingCatalog
	Replies     ReplyGenerator
	Conversions ConversionNotifier

	Schedule       Schedule
	WelcomeMessage string
}

func NewEngine(db *gorm.DB, dispatcher *dispatch.Dispatcher, queue *contingency.Queue, schedule Schedule, welcome string) *Engine {
	return &Engine{
		DB:             db,
		Dispatcher:     dispatcher,
		Queue:          queue,
		Schedule:       schedule,
		WelcomeMessage: welcome,
	}
}

// ProcessInbound runs the chain for one stored inbound message.
func (e *Engine) ProcessInbound(ctx context.Context, contact models.Contact, msgType, text string) {
	waID := contact.WaID

	// A replayed contingent job consumes the whole turn, so a queued
	// campaign never collides with a welcome message.
	if e.Queue != nil && e.Queue.Replay(ctx, waID) {
		e.logRun(waID, "contingency_replay", "replayed pending job", true, "")
		return
	}

	if msgType == "text" && e.PriceList != nil {
		if reply, matched := e.PriceList.Match(ctx, text); matched {
			e.reply(ctx, waID, "price_list", reply)
			return
		}
	}

	if msgType == "text" && e.Coverage != nil {
		if code, ok := extractPostalCode(text); ok {
			if answer, found := e.Coverage.Check(ctx, code); found {
				e.reply(ctx, waID, "postal_code", answer)
				return
			}
		}
	}

	if !contact.Welcomed {
		e.welcome(ctx, contact)
		return
	}

	if e.Replies != nil && contact.BotEnabled {
		open := e.Schedule.OpenAt(time.Now())
		reply, err := e.Replies.Reply(ctx, contact, text, open)
		if err != nil {
			e.logRun(waID, "auto_reply", "", false, err.Error())
			return
		}
		if reply != "" {
			e.reply(ctx, waID, "auto_reply", reply)
		}
	}
}

// welcome greets a first-time contact: an ad-specific greeting when the
// referral source has one, the generic welcome otherwise. The contact is
// marked welcomed either way.
func (e *Engine) welcome(ctx context.Context, contact models.Contact) {
	greeting := e.WelcomeMessage
	trigger := "welcome"

	if contact.ReferralSourceID != "" && e.Greetings != nil {
		if g, ok := e.Greetings.Greeting(ctx, contact.ReferralSourceID); ok {
			greeting = g
			trigger = "ad_greeting"
		}
	}

	if greeting != "" {
		e.reply(ctx, contact.WaID, trigger, greeting)
	}

	e.DB.Model(&models.Contact{}).Where("wa_id = ?", contact.WaID).Update("welcomed", true)

	if contact.ReferralSourceID != "" && e.Conversions != nil {
		if err := e.Conversions.LeadConverted(ctx, contact.WaID, contact.ReferralSourceID); err != nil {
			logrus.WithError(err).WithField("wa_id", contact.WaID).Warn("conversion event failed")
		}
	}
}

func (e *Engine) reply(ctx context.Context, waID, trigger, text string) {
	if _, err := e.Dispatcher.SendText(ctx, waID, text); err != nil {
		e.logRun(waID, trigger, text, false, err.Error())
		return
	}
	e.logRun(waID, trigger, text, true, "")
}

func (e *Engine) logRun(waID, trigger, action string, success bool, errMsg string) {
	e.DB.Create(&models.AutomationLog{
		WaID:         waID,
		TriggerType:  trigger,
		ActionTaken:  action,
		Success:      success,
		ErrorMessage: errMsg,
	})
}

// extractPostalCode finds a postal code in a message, either as a bare
// five-digit token or after an explicit "cp" prefix.
func extractPostalCode(text string) (string, bool) {
	t := strings.ToLower(strings.TrimSpace(text))

	if strings.HasPrefix(t, "cp") {
		rest := strings.TrimSpace(strings.TrimPrefix(t, "cp"))
		if code := postalPattern.FindString(rest); code != "" {
			return code, true
		}
		return "", false
	}

	if code := postalPattern.FindString(t); code != "" {
		return code, true
	}
	return "", false
}
