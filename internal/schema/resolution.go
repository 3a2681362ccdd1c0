package schema

import (
	"fmt"
	"time"
)

// ResolutionKind is the granularity class of a time series.
type ResolutionKind uint16

const (
	ResolutionUnknown ResolutionKind = iota
	ResolutionTick
	ResolutionSecond
	ResolutionMinute
	ResolutionDaily
	ResolutionCustom
)

// Resolution is an enumerated granularity used as part of a series key.
// Step counts units of Kind (5 with ResolutionMinute is a 5-minute
// series); for ResolutionCustom it is a duration in seconds.
type Resolution struct {
	Kind ResolutionKind
	Step uint32
}

// Ticks returns the per-tick resolution.
func Ticks() Resolution {
	return Resolution{Kind: ResolutionTick, Step: 1}
}

// Seconds returns an n-second resolution.
func Seconds(n uint32) Resolution {
	return Resolution{Kind: ResolutionSecond, Step: n}
}

// Minutes returns an n-minute resolution.
func Minutes(n uint32) Resolution {
	return Resolution{Kind: ResolutionMinute, Step: n}
}

// Daily returns the one-day resolution.
func Daily() Resolution {
	return Resolution{Kind: ResolutionDaily, Step: 1}
}

// Custom returns a resolution for an arbitrary duration, rounded down
// to whole seconds.
func Custom(d time.Duration) Resolution {
	secs := uint32(d / time.Second)
	return Resolution{Kind: ResolutionCustom, Step: secs}
}

// Valid reports whether the resolution is well formed.
func (r Resolution) Valid() bool {
	switch r.Kind {
	case ResolutionTick, ResolutionDaily:
		return r.Step == 1
	case ResolutionSecond, ResolutionMinute, ResolutionCustom:
		return r.Step > 0
	default:
		return false
	}
}

// Duration returns the bucket width. Tick resolution has no bucket and
// returns zero.
func (r Resolution) Duration() time.Duration {
	switch r.Kind {
	case ResolutionSecond:
		return time.Duration(r.Step) * time.Second
	case ResolutionMinute:
		return time.Duration(r.Step) * time.Minute
	case ResolutionDaily:
		return 24 * time.Hour
	case ResolutionCustom:
		return time.Duration(r.Step) * time.Second
	default:
		return 0
	}
}

// Bucket truncates a unix-nano timestamp to its bucket open time.
// Tick resolution buckets are the timestamp itself.
func (r Resolution) Bucket(tsNano int64) int64 {
	d := int64(r.Duration())
	if d <= 0 {
		return tsNano
	}
	rem := tsNano % d
	if rem < 0 {
		rem += d
	}
	return tsNano - rem
}

func (r Resolution) String() string {
	switch r.Kind {
	case ResolutionTick:
		return "tick"
	case ResolutionSecond:
		return fmt.Sprintf("s%d", r.Step)
	case ResolutionMinute:
		return fmt.Sprintf("m%d", r.Step)
	case ResolutionDaily:
		return "d1"
	case ResolutionCustom:
		return fmt.Sprintf("c%d", r.Step)
	default:
		return "unknown"
	}
}

// SeriesKey names one time-series log: exactly one active writer per
// key at any time.
type SeriesKey struct {
	Symbol     SymbolID
	Resolution Resolution
}

func (k SeriesKey) String() string {
	return fmt.Sprintf("%d_%s", k.Symbol, k.Resolution)
}
