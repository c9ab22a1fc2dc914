package automation

import (
	"context"

	"convogate/internal/models"
)

// The automation services behind these interfaces are external
// collaborators; the engine only owns their invocation order.

// PriceListMatcher answers wholesale price-list and keyword queries.
type PriceListMatcher interface {
	Match(ctx context.Context, text string) (reply string, matched bool)
}

// CoverageChecker answers whether a postal code is inside the delivery area.
type CoverageChecker interface {
	Check(ctx context.Context, postalCode string) (answer string, ok bool)
}

// GreetingCatalog maps an ad referral source id to a campaign-specific
// greeting.
type GreetingCatalog interface {
	Greeting(ctx context.Context, sourceID string) (greeting string, ok bool)
}

// ReplyGenerator produces an automatic reply for a returning contact. The
// business-hours flag lets the implementation choose between an away
// message and a generated answer. An empty reply means no action.
type ReplyGenerator interface {
	Reply(ctx context.Context, contact models.Contact, text string, businessOpen bool) (string, error)
}

// ConversionNotifier forwards ad-attribution conversion events.
type ConversionNotifier interface {
	LeadConverted(ctx context.Context, waID, sourceID string) error
}

// AwayReplier is a minimal ReplyGenerator that answers with a fixed away
// message outside business hours and stays silent otherwise.
type AwayReplier struct {
	AwayMessage string
}

func (r AwayReplier) Reply(_ context.Context, _ models.Contact, _ string, businessOpen bool) (string, error) {
	if businessOpen {
		return "", nil
	}
	return r.AwayMessage, nil
}
