package photos

import (
	"context"
	"log/slog"

	"github.com/tendant/island-photos/pkg/schema"
)

// BusNotifier publishes lifecycle events to a subject.
type BusNotifier struct {
	pub     Publisher
	subject string
	logger  *slog.Logger
}

func NewBusNotifier(pub Publisher, subject string, logger *slog.Logger) *BusNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &BusNotifier{pub: pub, subject: subject, logger: logger}
}

func (n *BusNotifier) Notify(_ context.Context, evt schema.ThumbnailLifecycleEvent) {
	if err := n.pub.PublishJSON(n.subject, evt); err != nil {
		n.logger.Error("publish lifecycle event failed", "subject", n.subject, "stage", evt.Stage, "job_id", evt.JobID, "err", err)
	}
}
