package store

import (
	"context"
	"fmt"
	"sort"
)

const llmRequestsCollection = "llmRequests"

// eventRepo implements EventRepo on top of the document store. Events are
// keyed by a zero-padded sequence so ids sort in append order.
type eventRepo struct {
	s *Store
}

func (r *eventRepo) AppendLLMRequest(ctx context.Context, data LLMRequestEventData) error {
	seqNum, err := r.s.NextSequence(ctx, llmRequestsCollection)
	if err != nil {
		return err
	}

	rec := LLMRequestRecord{
		LLMRequestEventData: data,
		Sequence:            seqNum,
		Timestamp:           r.s.now().UTC(),
	}
	doc, err := ToDoc(rec)
	if err != nil {
		return err
	}
	if err := r.s.Create(ctx, eventPath(seqNum), doc); err != nil {
		return fmt.Errorf("save LLM request event: %w", err)
	}
	return nil
}

func (r *eventRepo) QueryLLMEvents(ctx context.Context, opts QueryOpts) ([]LLMRequestRecord, error) {
	// Time filters are applied after listing, so only push the limit down
	// when there are none.
	list := ListOpts{Desc: true}
	if opts.From.IsZero() && opts.To.IsZero() {
		list.Limit = opts.Limit
	}
	snaps, err := r.s.List(ctx, llmRequestsCollection, list)
	if err != nil {
		return nil, fmt.Errorf("query LLM events: %w", err)
	}

	var out []LLMRequestRecord
	for _, snap := range snaps {
		rec, err := decodeEvent(snap)
		if err != nil {
			return nil, err
		}
		if !opts.From.IsZero() && rec.Timestamp.Before(opts.From) {
			continue
		}
		if !opts.To.IsZero() && rec.Timestamp.After(opts.To) {
			continue
		}
		out = append(out, *rec)
		if opts.Limit > 0 && len(out) == opts.Limit {
			break
		}
	}
	// Creation timestamps can tie; the sequence cannot.
	sort.SliceStable(out, func(i, j int) bool { return out[i].Sequence > out[j].Sequence })
	return out, nil
}

func (r *eventRepo) GetLLMEvent(ctx context.Context, seq int64) (*LLMRequestRecord, error) {
	snap, err := r.s.Get(ctx, eventPath(seq))
	if err != nil {
		return nil, fmt.Errorf("get LLM event %d: %w", seq, err)
	}
	return decodeEvent(snap)
}

func (r *eventRepo) LLMUsageByPurpose(ctx context.Context) ([]LLMUsage, error) {
	return r.usage(ctx, func(rec *LLMRequestRecord) string { return rec.Purpose })
}

func (r *eventRepo) LLMUsageByModel(ctx context.Context) ([]LLMUsage, error) {
	return r.usage(ctx, func(rec *LLMRequestRecord) string { return rec.Model })
}

func (r *eventRepo) usage(ctx context.Context, key func(*LLMRequestRecord) string) ([]LLMUsage, error) {
	events, err := r.QueryLLMEvents(ctx, QueryOpts{})
	if err != nil {
		return nil, err
	}

	byKey := make(map[string]*LLMUsage)
	for i := range events {
		k := key(&events[i])
		u, ok := byKey[k]
		if !ok {
			u = &LLMUsage{Key: k}
			byKey[k] = u
		}
		u.Requests++
		if !events[i].Success {
			u.Failures++
		}
		u.InputTokens += events[i].InputTokens
		u.OutputTokens += events[i].OutputTokens
		u.LatencyMs += events[i].LatencyMs
	}

	out := make([]LLMUsage, 0, len(byKey))
	for _, u := range byKey {
		out = append(out, *u)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Requests != out[j].Requests {
			return out[i].Requests > out[j].Requests
		}
		return out[i].Key < out[j].Key
	})
	return out, nil
}

func eventPath(seq int64) string {
	return llmRequestsCollection + "/" + fmt.Sprintf("%012d", seq)
}

func decodeEvent(snap *Snapshot) (*LLMRequestRecord, error) {
	var rec LLMRequestRecord
	if err := snap.Decode(&rec); err != nil {
		return nil, err
	}
	rec.ID = snap.ID()
	if rec.Timestamp.IsZero() {
		rec.Timestamp = snap.CreatedAt
	}
	return &rec, nil
}
