package ccadapter

import (
	"testing"
	"time"
)

func TestNoneAlwaysPermits(t *testing.T) {
	a := New(TypeNone, 0)
	if d := a.OnSend(PacketEvent{Size: 1500}); !d.Permitted {
		t.Errorf("expected none algorithm to always permit sends")
	}
}

func TestFixedRateThrottlesBurst(t *testing.T) {
	a := New(TypeFixedRate, 1000) // 1000 bytes/sec
	first := a.OnSend(PacketEvent{Size: 100})
	if !first.Permitted {
		t.Fatalf("expected first small send within burst to be permitted")
	}
	var blocked bool
	for i := 0; i < 50; i++ {
		d := a.OnSend(PacketEvent{Size: 500})
		if !d.Permitted {
			blocked = true
			if d.PaceAfter <= 0 {
				t.Errorf("expected a positive pacing delay when blocked")
			}
			break
		}
	}
	if !blocked {
		t.Errorf("expected fixed-rate limiter to eventually throttle a burst")
	}
}

func TestFixedRateCCSyncUpdatesLimit(t *testing.T) {
	a := newFixedRate(1000)
	a.OnCCSync(5000)
	if a.bps != 5000 {
		t.Errorf("expected OnCCSync to update bps, got %d", a.bps)
	}
}

func TestStubAlwaysPermitsAndIgnoresSync(t *testing.T) {
	a := New(TypeCubicBytes, 0)
	if a.Type() != TypeCubicBytes {
		t.Errorf("expected stub to report its negotiated type")
	}
	if d := a.OnSend(PacketEvent{Size: 1, SendTime: time.Now()}); !d.Permitted {
		t.Errorf("expected stub to permit sends")
	}
	a.OnCCSync(123) // must not panic
}

func TestSelectServerPreservesOrderSkipsUnsupported(t *testing.T) {
	offers := []Offer{{Type: TypeCopaM}, {Type: TypeFixedRate, Params: 100}, {Type: TypeCubicBytes}}
	supported := map[uint8]bool{TypeFixedRate: true, TypeCubicBytes: true}
	selected := SelectServer(offers, supported)
	if len(selected) != 2 || selected[0].Type != TypeFixedRate || selected[1].Type != TypeCubicBytes {
		t.Errorf("unexpected selection: %v", selected)
	}
}

func TestBuildFallsBackToNoneWhenNothingSelected(t *testing.T) {
	a := Build(nil)
	if a.Type() != TypeNone {
		t.Errorf("expected Build(nil) to fall back to none")
	}
}
