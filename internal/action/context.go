package action

import (
	"context"
	"fmt"
)

// Firing identifies one claim cycle of a trigger. The claim version is unique
// per cycle, so Key is stable across handler retries within the same cycle
// and different for every later cycle.
type Firing struct {
	TriggerID int64
	Version   int64
}

func (f Firing) Key() string {
	return fmt.Sprintf("trigger-%d-v%d", f.TriggerID, f.Version)
}

type firingKey struct{}

func WithFiring(ctx context.Context, f Firing) context.Context {
	return context.WithValue(ctx, firingKey{}, f)
}

func FiringFromContext(ctx context.Context) (Firing, bool) {
	f, ok := ctx.Value(firingKey{}).(Firing)
	return f, ok
}
