package receipts

import (
	"context"

	"github.com/angelmondragon/holopos/pkg/logger"
)

// LogPublisher writes receipts to the structured log. It is the default when no
// broker is configured.
type LogPublisher struct {
	logg *logger.Logger
}

func NewLogPublisher(logg *logger.Logger) *LogPublisher {
	if logg == nil {
		logg = logger.Nop()
	}
	return &LogPublisher{logg: logg}
}

func (p *LogPublisher) Publish(ctx context.Context, receipt Receipt) error {
	ctx = p.logg.WithFields(ctx, map[string]any{
		"sale_ref": receipt.Reference(),
		"status":   receipt.Status,
		"offline":  receipt.Offline,
		"lines":    len(receipt.Lines),
		"total":    receipt.Total.StringFixed(2),
		"change":   receipt.Change.StringFixed(2),
	})
	if receipt.Loyalty != nil {
		ctx = p.logg.WithField(ctx, "points_earned", receipt.Loyalty.PointsEarned)
	}
	p.logg.Info(ctx, "receipt ready")
	return nil
}
