package service

import (
	"context"
	"log/slog"

	"github.com/poolwise/poolmarket/internal/domain"
)

// LedgerStream is the durable stream every ledger event is appended to, so
// off-chain indexers can replay history that pub/sub subscribers missed.
const LedgerStream = "events:ledger"

// publish fans an event out on its pub/sub channel and the durable stream.
// Event delivery is best effort; a bus outage must never fail the ledger
// mutation that already committed.
func publish(ctx context.Context, bus domain.SignalBus, logger *slog.Logger, channel string, ev domain.Event) {
	if bus == nil {
		return
	}
	data, err := ev.Marshal()
	if err != nil {
		logger.ErrorContext(ctx, "event marshal failed",
			slog.String("event", ev.Type),
			slog.String("error", err.Error()),
		)
		return
	}
	if err := bus.Publish(ctx, channel, data); err != nil {
		logger.WarnContext(ctx, "event publish failed",
			slog.String("event", ev.Type),
			slog.String("channel", channel),
			slog.String("error", err.Error()),
		)
	}
	if err := bus.StreamAppend(ctx, LedgerStream, data); err != nil {
		logger.WarnContext(ctx, "event stream append failed",
			slog.String("event", ev.Type),
			slog.String("error", err.Error()),
		)
	}
}
