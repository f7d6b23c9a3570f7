package hooks

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/waftester/mediaprobe/pkg/history"
	"github.com/waftester/mediaprobe/pkg/output/dispatcher"
	"github.com/waftester/mediaprobe/pkg/output/events"
)

// Compile-time interface check.
var _ dispatcher.Hook = (*HistoryHook)(nil)

// HistoryHook stores each finished run and compares it with the previous
// run against the same target.
type HistoryHook struct {
	store  *history.Store
	logger *slog.Logger

	mu         sync.Mutex
	comparison *history.Comparison
}

// NewHistoryHook creates a hook saving into store. The hook owns the
// store and closes it on Close.
func NewHistoryHook(store *history.Store, logger *slog.Logger) *HistoryHook {
	return &HistoryHook{store: store, logger: orDefault(logger)}
}

// EventTypes returns only summary events.
func (h *HistoryHook) EventTypes() []events.EventType {
	return []events.EventType{events.EventTypeSummary}
}

// OnEvent saves the summarized run.
func (h *HistoryHook) OnEvent(ctx context.Context, event events.Event) error {
	e, ok := event.(*events.SummaryEvent)
	if !ok {
		return nil
	}

	rec := RecordFromSummary(e)
	if err := h.store.Save(ctx, rec); err != nil {
		return err
	}

	prev, err := h.store.Previous(ctx, rec)
	if errors.Is(err, history.ErrNotFound) {
		h.logger.Debug("history: first run for target", "target", rec.Target)
		return nil
	}
	if err != nil {
		return err
	}

	cmp := history.Compare(prev, rec)
	h.mu.Lock()
	h.comparison = &cmp
	h.mu.Unlock()

	if cmp.Regressed {
		h.logger.Warn("history: regression since previous run",
			"previous_run", cmp.BaseID,
			"newly_vulnerable", cmp.NewlyVulnerable,
			"vulnerable_delta", cmp.VulnerableDelta,
		)
	} else if len(cmp.Fixed) > 0 {
		h.logger.Info("history: probes fixed since previous run", "previous_run", cmp.BaseID, "fixed", cmp.Fixed)
	}
	return nil
}

// Comparison returns the comparison with the previous run, or nil when
// there was none.
func (h *HistoryHook) Comparison() *history.Comparison {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.comparison
}

// Close closes the underlying store.
func (h *HistoryHook) Close() error {
	return h.store.Close()
}

// RecordFromSummary builds the stored form of a run summary.
func RecordFromSummary(e *events.SummaryEvent) *history.Record {
	return &history.Record{
		ID:                 e.RunID(),
		StartedAt:          e.Timing.StartedAt,
		Target:             e.Target,
		Version:            e.Version,
		ExitCode:           e.ExitCode,
		Probes:             e.Probes,
		ScenariosTotal:     e.Scenarios.Total,
		ScenariosSucceeded: e.Scenarios.Succeeded,
		DurationMs:         e.Timing.DurationMs,
		Findings:           history.VerdictsFrom(e.Findings),
	}
}
