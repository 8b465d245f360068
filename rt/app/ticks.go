package app

import "time"

// TickSource delivers frame callbacks. A closed channel ends Run.
type TickSource interface {
	Ticks() <-chan time.Time
}

// ChanTicks lets the caller drive frames by sending on the channel; hosts
// with their own event loop (and tests) use it directly.
type ChanTicks chan time.Time

func (c ChanTicks) Ticks() <-chan time.Time { return c }

// Offer sends a tick without blocking; it reports whether the tick was taken.
func (c ChanTicks) Offer(t time.Time) bool {
	select {
	case c <- t:
		return true
	default:
		return false
	}
}

// IntervalTicks fires at a fixed rate until Stop.
type IntervalTicks struct {
	ticker *time.Ticker
}

func NewIntervalTicks(fps int) *IntervalTicks {
	if fps <= 0 {
		fps = 60
	}
	return &IntervalTicks{ticker: time.NewTicker(time.Second / time.Duration(fps))}
}

func (t *IntervalTicks) Ticks() <-chan time.Time { return t.ticker.C }
func (t *IntervalTicks) Stop()                   { t.ticker.Stop() }
