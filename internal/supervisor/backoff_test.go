package supervisor

import (
	"testing"
	"time"
)

func TestBackoffDoublesToCap(t *testing.T) {
	b := NewBackoff(time.Second, 8*time.Second)

	// Base sequence is 1s, 2s, 4s, 8s; jitter never exceeds 50%, so each
	// delay strictly exceeds the one before while the base still doubles.
	prev := time.Duration(0)
	for i := 0; i < 4; i++ {
		d := b.Next()
		if d < prev {
			t.Errorf("delay %d = %v, want >= previous %v", i, d, prev)
		}
		prev = d
	}

	// Once capped, every delay stays within [cap, cap*1.5].
	for i := 0; i < 6; i++ {
		d := b.Next()
		if d < 8*time.Second || d > 12*time.Second {
			t.Errorf("capped delay = %v, want within [8s, 12s]", d)
		}
	}
}

func TestBackoffFirstDelayNearBase(t *testing.T) {
	b := NewBackoff(time.Second, time.Minute)

	d := b.Next()
	if d < time.Second || d > time.Second+500*time.Millisecond {
		t.Errorf("first delay = %v, want within [1s, 1.5s]", d)
	}
}

func TestBackoffReset(t *testing.T) {
	b := NewBackoff(time.Second, time.Minute)

	for i := 0; i < 5; i++ {
		b.Next()
	}
	b.Reset()

	d := b.Next()
	if d > time.Second+500*time.Millisecond {
		t.Errorf("delay after Reset() = %v, want within [1s, 1.5s]", d)
	}
}

func TestBackoffDefendsBadInputs(t *testing.T) {
	b := NewBackoff(0, -time.Second)

	d := b.Next()
	if d < time.Second {
		t.Errorf("delay with zero base = %v, want >= 1s fallback", d)
	}
}
