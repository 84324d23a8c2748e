package share

import (
	"context"
	"sync"
	"time"

	"drivebridge/internal/drive"
)

// CallFunc issues one listing call against a single physical endpoint.
type CallFunc func(ctx context.Context, payload drive.ListPayload) (*drive.ListResponse, error)

// cooldownGate enforces a minimum wall-clock spacing between consecutive
// calls to one physical endpoint. The mutex is held across the wait and the
// call itself, so two concurrent callers can never both pass admission
// inside one cooldown window; the timestamp is taken at the end of the call
// regardless of its outcome.
type cooldownGate struct {
	cooldown time.Duration
	call     CallFunc

	mu   sync.Mutex
	last time.Time
}

func (g *cooldownGate) do(ctx context.Context, payload drive.ListPayload) (*drive.ListResponse, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.cooldown > 0 && !g.last.IsZero() {
		if wait := g.cooldown - time.Since(g.last); wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, ctx.Err()
			case <-timer.C:
			}
		}
	}

	resp, err := g.call(ctx, payload)
	g.last = time.Now()
	return resp, err
}
