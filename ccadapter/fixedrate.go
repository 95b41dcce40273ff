package ccadapter

import (
	"time"

	"golang.org/x/time/rate"
)

// fixedRate paces sends to a fixed bytes/sec budget via a token bucket,
// rather than reacting to loss or delay signals.
type fixedRate struct {
	limiter *rate.Limiter
	bps     uint32
}

// newFixedRate builds a fixedRate algorithm; bps is bytes per second. A
// burst of one MTU-ish chunk keeps small packets from stalling on
// rounding.
func newFixedRate(bps uint32) *fixedRate {
	if bps == 0 {
		bps = 1 << 20 // 1 MiB/s default
	}
	return &fixedRate{
		limiter: rate.NewLimiter(rate.Limit(bps), 2048),
		bps:     bps,
	}
}

func (f *fixedRate) Type() uint8 { return TypeFixedRate }

func (f *fixedRate) OnSend(ev PacketEvent) Decision {
	r := f.limiter.ReserveN(time.Now(), ev.Size)
	if !r.OK() {
		return Decision{Permitted: false}
	}
	delay := r.Delay()
	if delay > 0 {
		return Decision{Permitted: false, PaceAfter: delay}
	}
	return Decision{Permitted: true}
}

func (f *fixedRate) OnAck(ev PacketEvent) {}

func (f *fixedRate) CCSyncPayload() (uint32, bool) { return f.bps, true }

func (f *fixedRate) OnCCSync(params uint32) {
	if params == 0 {
		return
	}
	f.bps = params
	f.limiter.SetLimit(rate.Limit(params))
}

func (f *fixedRate) OnPktTrain(trainID uint32, pktInTrain, pktsInTrain uint16, payload []byte) {}
