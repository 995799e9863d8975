// Package notify reports knowledge processing outcomes to the host
// application. The default sink writes to the process log; hosts that want
// richer delivery (desktop notifications, webhooks) plug in their own
// Notifier.
package notify

import (
	"context"
	"log"

	"github.com/corpuslabs/corpusd/internal/domain"
)

// Notifier receives the terminal outcome of a processing run.
type Notifier interface {
	ProcessingFinished(ctx context.Context, knowledge *domain.Knowledge)
	ProcessingFailed(ctx context.Context, knowledge *domain.Knowledge, err error)
}

// LogNotifier writes outcomes to the standard logger.
type LogNotifier struct{}

func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

func (LogNotifier) ProcessingFinished(ctx context.Context, knowledge *domain.Knowledge) {
	log.Printf("knowledge %s (%q) finished processing: %d sources indexed",
		knowledge.ID, knowledge.Title, len(knowledge.Sources))
}

func (LogNotifier) ProcessingFailed(ctx context.Context, knowledge *domain.Knowledge, err error) {
	log.Printf("knowledge %s (%q) failed processing: %v", knowledge.ID, knowledge.Title, err)
}

// NopNotifier discards all outcomes. Used when completion notifications are
// disabled in config.
type NopNotifier struct{}

func NewNopNotifier() *NopNotifier {
	return &NopNotifier{}
}

func (NopNotifier) ProcessingFinished(ctx context.Context, knowledge *domain.Knowledge) {}

func (NopNotifier) ProcessingFailed(ctx context.Context, knowledge *domain.Knowledge, err error) {}
