package syncer

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"kimland-sync/internal/types"
)

// SyncBatch synchronizes items one after the other, waiting BatchItemDelay between them.
// Events are sent on progress when it is non-nil; the caller must keep draining it until SyncBatch returns.
// Cancelling ctx stops the batch before the next item and the partial summary is returned.
func (o *Orchestrator) SyncBatch(ctx context.Context, items []types.BatchItem, progress chan<- types.ProgressEvent) types.BatchSummary {
	start := time.Now()
	summary := types.BatchSummary{
		RunID:   uuid.NewString(),
		Total:   len(items),
		Results: make([]types.SyncResult, 0, len(items)),
	}
	emit := func(ev types.ProgressEvent) {
		if progress == nil {
			return
		}
		ev.Total = summary.Total
		ev.Timestamp = time.Now()
		progress <- ev
	}

	o.logger.Infof("Starting batch %s with %d products", summary.RunID, summary.Total)

	stoppedAt := -1
	for i, item := range items {
		if i > 0 && o.config.BatchItemDelay > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(o.config.BatchItemDelay):
			}
		}
		if ctx.Err() != nil {
			stoppedAt = i
			break
		}

		emit(types.ProgressEvent{
			Type:        types.ProgressUpdate,
			Current:     i + 1,
			Percentage:  percentage(i, summary.Total),
			SKU:         item.Identifier,
			ProductName: item.DisplayName,
			Message:     fmt.Sprintf("Synchronizing %s (%d/%d, %s)", item.Identifier, i+1, summary.Total, eta(start, i, summary.Total)),
		})

		// the item in flight always completes; cancellation is only observed between items
		result := o.syncOne(context.WithoutCancel(ctx), summary.RunID, item.Identifier, item.LocalProductID, nil, item.DisplayName)
		summary.Results = append(summary.Results, result)

		success := result.Status == types.StatusSuccess
		if success {
			summary.Successful++
		} else {
			summary.Failed++
		}

		ev := types.ProgressEvent{
			Type:        types.ProgressResult,
			Current:     i + 1,
			Percentage:  percentage(i+1, summary.Total),
			SKU:         item.Identifier,
			ProductName: item.DisplayName,
			Success:     &success,
			Message:     resultMessage(result),
		}
		if result.RemoteProduct != nil {
			stock := result.RemoteProduct.TotalStock()
			ev.KimlandStock = &stock
		}
		emit(ev)
	}

	summary.DurationMs = time.Since(start).Milliseconds()
	if stoppedAt >= 0 {
		summary.Cancelled = true
		summary.StoppedAt = stoppedAt
		o.logger.Warnf("Batch %s cancelled at index %d", summary.RunID, stoppedAt)
		emit(types.ProgressEvent{
			Type:       types.ProgressCancelled,
			Current:    stoppedAt,
			Percentage: percentage(stoppedAt, summary.Total),
			Message:    fmt.Sprintf("Batch cancelled, stopped at index %d", stoppedAt),
		})
	} else {
		o.logger.Infof("Batch %s done: %d successful, %d failed in %dms", summary.RunID, summary.Successful, summary.Failed, summary.DurationMs)
		emit(types.ProgressEvent{
			Type:       types.ProgressComplete,
			Current:    summary.Total,
			Percentage: 100,
			Message:    fmt.Sprintf("Batch complete: %d successful, %d failed", summary.Successful, summary.Failed),
		})
	}

	if err := o.store.SaveRun(context.WithoutCancel(ctx), summary); err != nil {
		o.logger.Warnf("Failed to save batch %s: %v", summary.RunID, err)
	}
	return summary
}

func percentage(done, total int) int {
	if total == 0 {
		return 100
	}
	return done * 100 / total
}

// eta estimates the remaining time from the average duration of finished items
func eta(start time.Time, done, total int) string {
	if done == 0 {
		return "ETA unknown"
	}
	perItem := time.Since(start) / time.Duration(done)
	remaining := perItem * time.Duration(total-done)
	return "ETA " + remaining.Round(time.Second).String()
}

func resultMessage(result types.SyncResult) string {
	switch result.Status {
	case types.StatusSuccess:
		return fmt.Sprintf("%s synced: %d updated, %d errors", result.Identifier, result.Updates.Updates, result.Updates.Errors)
	case types.StatusNotFound:
		return fmt.Sprintf("%s not found", result.Identifier)
	default:
		return fmt.Sprintf("%s failed: %s", result.Identifier, result.ErrorMessage)
	}
}
