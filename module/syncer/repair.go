package syncer

import (
	"context"
	"time"

	"RProject/logger"
	errors "RProject/tools/errs"
)

// RangeMaxSpan is the relay's per-request repair cap; the client splits
// larger gaps before any request leaves the process.
const RangeMaxSpan = 500

// repairRetryDelays is the repair retry ladder: immediate, then widening.
var repairRetryDelays = []time.Duration{
	0,
	5 * time.Second,
	30 * time.Second,
	5 * time.Minute,
}

// Ranger fetches an inclusive sequence range from the relay.
type Ranger interface {
	Range(ctx context.Context, conversationID string, start, end int64) ([]*Message, error)
}

// Repairer closes sequence gaps by range-fetching the missing spans and
// merging the results. Fetched messages flow through the same merger as
// pushed and pulled ones.
type Repairer struct {
	ranger Ranger
	merger *Merger

	maxSpan int64
	delays  []time.Duration
	sleepFn func(ctx context.Context, d time.Duration) error
}

func NewRepairer(ranger Ranger, merger *Merger) *Repairer {
	return &Repairer{
		ranger:  ranger,
		merger:  merger,
		maxSpan: RangeMaxSpan,
		delays:  repairRetryDelays,
		sleepFn: sleepCtx,
	}
}

// RepairConversation detects and repairs every gap currently visible in the
// conversation's merged view. Returns the number of messages recovered.
func (r *Repairer) RepairConversation(ctx context.Context, conversationID string) (int, error) {
	return r.Repair(ctx, conversationID, r.merger.Gaps(conversationID))
}

// Repair fetches the given gaps, splitting any span above the relay cap
// into compliant chunks. Each chunk is retried on the ladder; a chunk that
// exhausts the ladder or hits a non-retryable fault stops the run, keeping
// whatever was already merged.
func (r *Repairer) Repair(ctx context.Context, conversationID string, gaps []Gap) (int, error) {
	recovered := 0
	for _, g := range gaps {
		for start := g.Start; start <= g.End; start += r.maxSpan {
			end := start + r.maxSpan - 1
			if end > g.End {
				end = g.End
			}
			msgs, err := r.fetchChunk(ctx, conversationID, start, end)
			if err != nil {
				return recovered, err
			}
			recovered += r.merger.Ingest(msgs...)
		}
	}
	return recovered, nil
}

func (r *Repairer) fetchChunk(ctx context.Context, conversationID string, start, end int64) ([]*Message, error) {
	if start > end {
		return nil, errors.ErrValidation.WrapMsg("range start after end", "start", start, "end", end)
	}
	// reject before any network traffic; the relay would only bounce it
	if end-start+1 > r.maxSpan {
		return nil, errors.ErrRangeTooLarge.WrapMsg("span above cap", "start", start, "end", end)
	}

	var lastErr error
	for attempt, delay := range r.delays {
		if delay > 0 {
			if err := r.sleepFn(ctx, delay); err != nil {
				return nil, errors.Wrap(err)
			}
		}
		msgs, err := r.ranger.Range(ctx, conversationID, start, end)
		if err == nil {
			return msgs, nil
		}
		lastErr = err
		if !errors.IsRetryable(err) {
			return nil, err
		}
		logger.Warnf("[syncer] repair fetch failed conv=%s range=[%d,%d] attempt=%d: %v",
			conversationID, start, end, attempt+1, err)
	}
	return nil, errors.WrapMsg(lastErr, "repair retries exhausted", "start", start, "end", end)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
