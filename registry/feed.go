package registry

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/IvanBrykalov/farecache/keycodec"
)

// Notification is one entry of the change feed: a record of type Type with
// key Key changed in the backing store. Clear asks for the whole type to be
// dropped and ignores Key.
type Notification struct {
	Type  string
	Key   keycodec.ObjectKey
	Clear bool
}

// Consume applies notifications from feed until it is closed or ctx ends.
// Translation failures and unknown types are logged and skipped; the feed
// keeps going.
func (r *Registry) Consume(ctx context.Context, feed <-chan Notification) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case n, ok := <-feed:
			if !ok {
				return nil
			}
			r.apply(n)
		}
	}
}

func (r *Registry) apply(n Notification) {
	if n.Clear {
		if _, err := r.Clear(n.Type); err != nil {
			r.log.Error("clear failed", zap.String("type", n.Type), zap.Error(err))
		}
		return
	}
	if _, err := r.Invalidate(n.Type, n.Key); err != nil && !errors.Is(err, ErrUnknownType) {
		// Accessors already logged the translation failure.
		r.log.Debug("notification skipped", zap.String("type", n.Type), zap.Error(err))
	}
}
