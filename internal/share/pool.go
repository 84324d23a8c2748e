package share

import (
	"context"
	"sync"
	"time"

	"drivebridge/internal/drive"
)

// Endpoint is one listing endpoint wrapped by its own cooldown gate.
// Name and Base identify the endpoint in error context.
type Endpoint struct {
	Name string
	Base string
	gate *cooldownGate
}

// NewEndpoint wraps call with a cooldown gate.
func NewEndpoint(name, base string, cooldown time.Duration, call CallFunc) *Endpoint {
	return &Endpoint{
		Name: name,
		Base: base,
		gate: &cooldownGate{cooldown: cooldown, call: call},
	}
}

// Call issues one listing call through the endpoint's gate.
func (e *Endpoint) Call(ctx context.Context, payload drive.ListPayload) (*drive.ListResponse, error) {
	return e.gate.do(ctx, payload)
}

// speedProfiles maps a speed mode to the cooldowns applied to
// [mirror 1, mirror 2, fallback].
var speedProfiles = map[int][3]time.Duration{
	0: {250 * time.Millisecond, 250 * time.Millisecond, 750 * time.Millisecond},
	1: {500 * time.Millisecond, 500 * time.Millisecond, 1500 * time.Millisecond},
	2: {time.Second, time.Second, 2 * time.Second},
	3: {1500 * time.Millisecond, 1500 * time.Millisecond, 2 * time.Second},
}

// SpeedCooldowns returns the per-endpoint cooldowns for a speed mode.
// Unknown modes fall back to mode 1.
func SpeedCooldowns(mode int) [3]time.Duration {
	if cd, ok := speedProfiles[mode]; ok {
		return cd
	}
	return speedProfiles[1]
}

// fallbackSlot is the position in the first-page sequence reserved for the
// fallback endpoint: the 7th first-page task of a crawl is the only one
// routed there.
const fallbackSlot = 6

// Pool holds the fixed endpoint set and implements the deterministic
// selection policy. First-page tasks alternate between the two fast mirrors,
// with the fallback spliced in once at fallbackSlot; continuation tasks
// (offset > 0) always go to the fallback. The mirrors are unauthenticated
// and cached, which suits bursts of small first pages; the fallback is
// authenticated and handles the large continuation pages.
type Pool struct {
	mirrors  [2]*Endpoint
	fallback *Endpoint

	mu         sync.Mutex
	firstPages int
}

// NewPool builds a pool from two fast mirrors and one fallback endpoint.
func NewPool(m1, m2, fallback *Endpoint) *Pool {
	return &Pool{mirrors: [2]*Endpoint{m1, m2}, fallback: fallback}
}

// Pick resolves the endpoint for a task at the given page offset.
func (p *Pool) Pick(offset int) *Endpoint {
	if offset > 0 {
		return p.fallback
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	n := p.firstPages
	p.firstPages++
	switch {
	case n == fallbackSlot:
		return p.fallback
	case n < fallbackSlot:
		return p.mirrors[n%2]
	default:
		// Parity continues across the fallback insert.
		return p.mirrors[(n-1)%2]
	}
}

// SnapEndpoints wires the default endpoint set for a listing client: two
// fast mirror bases and the authenticated fallback base, with cooldowns
// chosen by the speed mode. Endpoints (and so their gates) may be shared
// across crawls: the cooldown is a property of the physical endpoint, while
// rotation state lives in the per-crawl Pool.
func SnapEndpoints(client *drive.Client, mirrorHTTPBase, mirrorHTTPSBase, fallbackBase string, speedMode int) (m1, m2, fallback *Endpoint) {
	cd := SpeedCooldowns(speedMode)
	bind := func(base string) CallFunc {
		return func(ctx context.Context, p drive.ListPayload) (*drive.ListResponse, error) {
			return client.ListShareDirectory(ctx, base, p)
		}
	}
	m1 = NewEndpoint("snap_mirror_http", mirrorHTTPBase, cd[0], bind(mirrorHTTPBase))
	m2 = NewEndpoint("snap_mirror_https", mirrorHTTPSBase, cd[1], bind(mirrorHTTPSBase))
	fallback = NewEndpoint("snap_api", fallbackBase, cd[2], bind(fallbackBase))
	return m1, m2, fallback
}

// NewSnapPool builds a fresh pool over the default endpoint set.
func NewSnapPool(client *drive.Client, mirrorHTTPBase, mirrorHTTPSBase, fallbackBase string, speedMode int) *Pool {
	return NewPool(SnapEndpoints(client, mirrorHTTPBase, mirrorHTTPSBase, fallbackBase, speedMode))
}
