package schema

import "testing"

func TestRegistryLookups(t *testing.T) {
	r := NewRegistry()
	ex, err := r.AddExchange("SIM")
	if err != nil {
		t.Fatalf("add exchange: %v", err)
	}
	id, err := r.AddInstrument(Instrument{
		ExchangeID:    ex,
		Symbol:        "BTCUSD",
		QuoteCurrency: "USD",
		TickSize:      Price(100),
		Scale:         ScaleSpec{PriceScale: 4, QuantityScale: 4},
	})
	if err != nil {
		t.Fatalf("add instrument: %v", err)
	}

	inst, ok := r.Instrument(id)
	if !ok {
		t.Fatalf("instrument %d not found", id)
	}
	if inst.Symbol != "BTCUSD" || inst.Multiplier != 1 {
		t.Fatalf("unexpected instrument: %+v", inst)
	}

	byName, ok := r.InstrumentIDByName("SIM/BTCUSD")
	if !ok || byName != id {
		t.Fatalf("lookup by name: got %d ok=%v want %d", byName, ok, id)
	}
}

func TestRegistryRejectsDuplicatesAndUnknownExchange(t *testing.T) {
	r := NewRegistry()
	ex, _ := r.AddExchange("SIM")
	if _, err := r.AddExchange("SIM"); err == nil {
		t.Fatal("duplicate exchange accepted")
	}
	inst := Instrument{ExchangeID: ex, Symbol: "ETHUSD", TickSize: 1}
	if _, err := r.AddInstrument(inst); err != nil {
		t.Fatalf("add instrument: %v", err)
	}
	if _, err := r.AddInstrument(inst); err == nil {
		t.Fatal("duplicate instrument accepted")
	}
	if _, err := r.AddInstrument(Instrument{ExchangeID: 99, Symbol: "X", TickSize: 1}); err == nil {
		t.Fatal("unknown exchange accepted")
	}
}

func TestResolutionBucket(t *testing.T) {
	res := Minutes(5)
	d := int64(res.Duration())
	ts := int64(1_700_000_123_000_000_000)
	open := res.Bucket(ts)
	if open%d != 0 || open > ts || ts-open >= d {
		t.Fatalf("bucket misaligned: ts=%d open=%d width=%d", ts, open, d)
	}
	if got := Ticks().Bucket(ts); got != ts {
		t.Fatalf("tick bucket should be identity: got %d want %d", got, ts)
	}

	// Pre-1970 timestamps floor toward negative infinity, and an exact
	// bucket boundary maps to itself.
	for ts, want := range map[int64]int64{
		-1:     -d,
		-d:     -d,
		-d - 1: -2 * d,
		0:      0,
		d:      d,
	} {
		if got := res.Bucket(ts); got != want {
			t.Fatalf("bucket(%d): got %d want %d", ts, got, want)
		}
	}
}

func TestResolutionString(t *testing.T) {
	cases := map[string]Resolution{
		"tick": Ticks(),
		"s15":  Seconds(15),
		"m5":   Minutes(5),
		"d1":   Daily(),
		"c90":  {Kind: ResolutionCustom, Step: 90},
	}
	for want, res := range cases {
		if !res.Valid() {
			t.Fatalf("resolution %q should be valid", want)
		}
		if got := res.String(); got != want {
			t.Fatalf("resolution string: got %q want %q", got, want)
		}
	}
	if (Resolution{}).Valid() {
		t.Fatal("zero resolution should be invalid")
	}
}
