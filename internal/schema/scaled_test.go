package schema

import "testing"

func TestAppendStringScales(t *testing.T) {
	cases := []struct {
		value int64
		scale int
		want  string
	}{
		{1002500, 4, "100.2500"},
		{-1002500, 4, "-100.2500"},
		{25, 4, "0.0025"},
		{25, 0, "25"},
		{0, 2, "0.00"},
	}
	for _, c := range cases {
		got := string(Price(c.value).AppendString(c.scale, nil))
		if got != c.want {
			t.Fatalf("append scaled %d/%d: got %q want %q", c.value, c.scale, got, c.want)
		}
	}
}

func TestParseScaledRoundTrip(t *testing.T) {
	cases := []string{"100.2500", "-100.2500", "0.0025", "0.0000", "42.0000"}
	for _, s := range cases {
		v, err := ParseScaled(s, 4)
		if err != nil {
			t.Fatalf("parse %q: %v", s, err)
		}
		got := string(Price(v).AppendString(4, nil))
		if got != s {
			t.Fatalf("round trip %q: got %q", s, got)
		}
	}
}

func TestParseScaledRejects(t *testing.T) {
	bad := []string{"", "abc", "1.2.3", "0.00001", "9999999999999999999"}
	for _, s := range bad {
		if _, err := ParseScaled(s, 4); err == nil {
			t.Fatalf("parse %q: expected error", s)
		}
	}
}
