package realtime

import (
	"context"
)

// Watch subscribes to f, runs refetch once, then again after every matching
// change until ctx ends. The subscription is taken before the first fetch so
// no change between the two is missed. Watch returns nil when ctx ends and the
// refetch error otherwise.
func Watch(ctx context.Context, hub *Hub, f Filter, refetch func(context.Context) error) error {
	sub := hub.Subscribe(f)
	defer sub.Close()

	if err := refetch(ctx); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case _, ok := <-sub.C():
			if !ok {
				return nil
			}
			if err := refetch(ctx); err != nil {
				return err
			}
		}
	}
}
