package share

import (
	"context"
	"testing"
	"time"

	"drivebridge/internal/drive"
)

func testEndpoints() (*Endpoint, *Endpoint, *Endpoint) {
	call := func(ctx context.Context, p drive.ListPayload) (*drive.ListResponse, error) {
		return &drive.ListResponse{State: true}, nil
	}
	m1 := NewEndpoint("m1", "http://m1.test", 0, call)
	m2 := NewEndpoint("m2", "http://m2.test", 0, call)
	fb := NewEndpoint("fb", "http://fb.test", 0, call)
	return m1, m2, fb
}

func TestPickFirstPageRotation(t *testing.T) {
	m1, m2, fb := testEndpoints()
	pool := NewPool(m1, m2, fb)

	// The mirrors alternate; the 7th first-page pick is the single fallback
	// slot, and parity resumes unshifted afterwards.
	want := []*Endpoint{m1, m2, m1, m2, m1, m2, fb, m1, m2, m1, m2}
	for i, exp := range want {
		if got := pool.Pick(0); got != exp {
			t.Fatalf("pick %d = %s, want %s", i, got.Name, exp.Name)
		}
	}
}

func TestPickContinuationAlwaysFallback(t *testing.T) {
	m1, m2, fb := testEndpoints()
	pool := NewPool(m1, m2, fb)

	for _, offset := range []int{1000, 2000, 7000} {
		if got := pool.Pick(offset); got != fb {
			t.Fatalf("pick(offset=%d) = %s, want fb", offset, got.Name)
		}
	}

	// Continuation picks must not advance the first-page rotation.
	if got := pool.Pick(0); got != m1 {
		t.Fatalf("first pick after continuations = %s, want m1", got.Name)
	}
}

func TestPickIsDeterministic(t *testing.T) {
	m1, m2, fb := testEndpoints()
	a := NewPool(m1, m2, fb)
	b := NewPool(m1, m2, fb)

	for i := 0; i < 20; i++ {
		if a.Pick(0) != b.Pick(0) {
			t.Fatalf("rotation diverged at pick %d", i)
		}
	}
}

func TestSpeedCooldowns(t *testing.T) {
	tests := []struct {
		mode int
		want [3]time.Duration
	}{
		{0, [3]time.Duration{250 * time.Millisecond, 250 * time.Millisecond, 750 * time.Millisecond}},
		{1, [3]time.Duration{500 * time.Millisecond, 500 * time.Millisecond, 1500 * time.Millisecond}},
		{2, [3]time.Duration{time.Second, time.Second, 2 * time.Second}},
		{3, [3]time.Duration{1500 * time.Millisecond, 1500 * time.Millisecond, 2 * time.Second}},
		{99, [3]time.Duration{500 * time.Millisecond, 500 * time.Millisecond, 1500 * time.Millisecond}},
		{-1, [3]time.Duration{500 * time.Millisecond, 500 * time.Millisecond, 1500 * time.Millisecond}},
	}
	for _, tt := range tests {
		if got := SpeedCooldowns(tt.mode); got != tt.want {
			t.Errorf("SpeedCooldowns(%d) = %v, want %v", tt.mode, got, tt.want)
		}
	}
}

func TestSnapEndpoints(t *testing.T) {
	client := drive.NewClient(nil)
	m1, m2, fb := SnapEndpoints(client, "http://mirror-a.test", "https://mirror-b.test", "https://api.test", 2)

	if m1.Name != "snap_mirror_http" || m1.Base != "http://mirror-a.test" {
		t.Fatalf("unexpected mirror 1: %s %s", m1.Name, m1.Base)
	}
	if m2.Name != "snap_mirror_https" || m2.Base != "https://mirror-b.test" {
		t.Fatalf("unexpected mirror 2: %s %s", m2.Name, m2.Base)
	}
	if fb.Name != "snap_api" || fb.Base != "https://api.test" {
		t.Fatalf("unexpected fallback: %s %s", fb.Name, fb.Base)
	}
	if m1.gate.cooldown != time.Second || fb.gate.cooldown != 2*time.Second {
		t.Fatalf("unexpected cooldowns: %v %v", m1.gate.cooldown, fb.gate.cooldown)
	}
}

func TestNewSnapPoolSharesRotationState(t *testing.T) {
	client := drive.NewClient(nil)
	pool := NewSnapPool(client, "http://a.test", "https://b.test", "https://c.test", 0)

	first := pool.Pick(0)
	if first.Name != "snap_mirror_http" {
		t.Fatalf("first pick = %s, want snap_mirror_http", first.Name)
	}
	if got := pool.Pick(4096); got.Name != "snap_api" {
		t.Fatalf("continuation pick = %s, want snap_api", got.Name)
	}
}
