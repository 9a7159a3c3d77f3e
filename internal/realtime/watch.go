package realtime

import (
	"context"
)

// Refetch emits a fresh snapshot from fetch once on start and again after every
// change that passes filter. Snapshots are always re-read from the store rather
// than derived from event payloads, so the emitted state converges on the
// store's truth even when events arrive out of order or are dropped.
//
// Refetch returns when ctx ends, the subscription closes, or fetch/emit fail.
func Refetch[T any](ctx context.Context, b Broker, filter Filter, fetch func(context.Context) (T, error), emit func(T) error) error {
	sub, err := b.Subscribe(ctx, filter.Table)
	if err != nil {
		return err
	}
	defer sub.Close()

	snapshot, err := fetch(ctx)
	if err != nil {
		return err
	}
	if err := emit(snapshot); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case c, ok := <-sub.C:
			if !ok {
				return nil
			}
			if !filter.Matches(c) {
				continue
			}
			// Coalesce a burst of queued changes into a single refetch.
			drain(sub.C)
			snapshot, err := fetch(ctx)
			if err != nil {
				return err
			}
			if err := emit(snapshot); err != nil {
				return err
			}
		}
	}
}

func drain(ch <-chan Change) {
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		default:
			return
		}
	}
}
