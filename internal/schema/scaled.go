package schema

import (
	"fmt"
	"strconv"
)

// Price is a scaled integer. The scale is defined per instrument.
// Plain floating point is never used for prices: it corrupts price
// equality and position accounting.
type Price int64

func (p Price) AppendString(priceScale int, buf []byte) []byte {
	return appendScaledInt(buf, int64(p), priceScale)
}

// Quantity is a scaled integer. The scale is defined per instrument.
type Quantity int64

func (q Quantity) AppendString(quantityScale int, buf []byte) []byte {
	return appendScaledInt(buf, int64(q), quantityScale)
}

// Notional is a scaled integer. The scale is defined per instrument.
type Notional int64

// Fee is a scaled integer. The scale is defined per instrument.
type Fee int64

func appendScaledInt(buf []byte, value int64, scale int) []byte {
	if scale <= 0 {
		return strconv.AppendInt(buf, value, 10)
	}

	neg := value < 0
	u := uint64(value)
	if neg {
		u = uint64(^value) + 1
	}

	var tmp [32]byte
	digits := strconv.AppendUint(tmp[:0], u, 10)

	if neg {
		buf = append(buf, '-')
	}

	if len(digits) <= scale {
		buf = append(buf, '0', '.')
		for i := 0; i < scale-len(digits); i++ {
			buf = append(buf, '0')
		}
		buf = append(buf, digits...)
		return buf
	}

	idx := len(digits) - scale
	buf = append(buf, digits[:idx]...)
	buf = append(buf, '.')
	buf = append(buf, digits[idx:]...)
	return buf
}

// ParseScaled converts a decimal string into a scaled integer.
// Fractional digits beyond the scale are rejected rather than truncated.
func ParseScaled(s string, scale int) (int64, error) {
	if s == "" {
		return 0, fmt.Errorf("empty decimal string")
	}

	neg := false
	i := 0
	switch s[0] {
	case '-':
		neg = true
		i = 1
	case '+':
		i = 1
	}
	if i >= len(s) {
		return 0, fmt.Errorf("invalid decimal string: %q", s)
	}

	var whole, frac uint64
	fracDigits := 0
	seenDot := false
	for ; i < len(s); i++ {
		c := s[i]
		if c == '.' {
			if seenDot {
				return 0, fmt.Errorf("invalid decimal string: %q", s)
			}
			seenDot = true
			continue
		}
		if c < '0' || c > '9' {
			return 0, fmt.Errorf("invalid decimal string: %q", s)
		}
		d := uint64(c - '0')
		if seenDot {
			if fracDigits == scale {
				if d != 0 {
					return 0, fmt.Errorf("decimal %q exceeds scale %d", s, scale)
				}
				continue
			}
			frac = frac*10 + d
			fracDigits++
			continue
		}
		next := whole*10 + d
		if next < whole {
			return 0, fmt.Errorf("decimal %q overflows", s)
		}
		whole = next
	}

	for fracDigits < scale {
		frac *= 10
		fracDigits++
	}

	pow := uint64(1)
	for j := 0; j < scale; j++ {
		pow *= 10
	}
	if whole > (uint64(maxInt64)-frac)/pow {
		return 0, fmt.Errorf("decimal %q overflows at scale %d", s, scale)
	}
	v := int64(whole*pow + frac)
	if neg {
		v = -v
	}
	return v, nil
}

const maxInt64 = int64(^uint64(0) >> 1)
