package schema

import "fmt"

// Scale is the number of decimal places used by a scaled integer.
// Example: Scale=8 means the integer value is scaled by 1e8.
type Scale int32

// ScaleSpec defines scaling for common numeric fields.
type ScaleSpec struct {
	PriceScale    Scale `json:"priceScale"`
	QuantityScale Scale `json:"quantityScale"`
	NotionalScale Scale `json:"notionalScale"`
	FeeScale      Scale `json:"feeScale"`
}

// ExchangeID is the numeric identifier for an exchange.
type ExchangeID uint16

// SymbolID is the numeric identifier for an instrument.
type SymbolID uint32

// AccountID is the numeric identifier for a trading account.
type AccountID uint32

// Exchange describes a trading venue or broker.
type Exchange struct {
	ID   ExchangeID
	Name string
}

// Instrument describes a tradable contract. Immutable once registered.
type Instrument struct {
	ID            SymbolID
	ExchangeID    ExchangeID
	Symbol        string
	QuoteCurrency string
	TickSize      Price
	Multiplier    int32
	Scale         ScaleSpec
}

// Registry stores exchange and instrument mappings in a compact form.
// It is built once at startup and injected into components; it is
// read-only afterwards, so lookups need no locking.
type Registry struct {
	exchanges        []Exchange
	instruments      []Instrument
	exchangeByName   map[string]ExchangeID
	instrumentByName map[string]SymbolID
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		exchangeByName:   make(map[string]ExchangeID),
		instrumentByName: make(map[string]SymbolID),
	}
}

// AddExchange registers a new exchange and returns its ID.
func (r *Registry) AddExchange(name string) (ExchangeID, error) {
	if name == "" {
		return 0, fmt.Errorf("exchange name is empty")
	}
	if id, ok := r.exchangeByName[name]; ok {
		return id, fmt.Errorf("exchange already exists: %s", name)
	}
	id := ExchangeID(len(r.exchanges) + 1)
	r.exchanges = append(r.exchanges, Exchange{ID: id, Name: name})
	r.exchangeByName[name] = id
	return id, nil
}

// AddInstrument registers a new instrument and returns its ID.
// Instrument names are unique per exchange in the form "exchange/symbol".
func (r *Registry) AddInstrument(inst Instrument) (SymbolID, error) {
	if inst.Symbol == "" {
		return 0, fmt.Errorf("instrument symbol is empty")
	}
	exchange, ok := r.Exchange(inst.ExchangeID)
	if !ok {
		return 0, fmt.Errorf("exchange id not found: %d", inst.ExchangeID)
	}
	if inst.TickSize <= 0 {
		return 0, fmt.Errorf("instrument tick size must be > 0: %s", inst.Symbol)
	}
	if inst.Multiplier == 0 {
		inst.Multiplier = 1
	}
	name := exchange.Name + "/" + inst.Symbol
	if id, ok := r.instrumentByName[name]; ok {
		return id, fmt.Errorf("instrument already exists: %s", name)
	}
	inst.ID = SymbolID(len(r.instruments) + 1)
	r.instruments = append(r.instruments, inst)
	r.instrumentByName[name] = inst.ID
	return inst.ID, nil
}

// Exchange returns the exchange by ID.
func (r *Registry) Exchange(id ExchangeID) (Exchange, bool) {
	if id == 0 || int(id) > len(r.exchanges) {
		return Exchange{}, false
	}
	return r.exchanges[id-1], true
}

// Instrument returns the instrument by ID.
func (r *Registry) Instrument(id SymbolID) (Instrument, bool) {
	if id == 0 || int(id) > len(r.instruments) {
		return Instrument{}, false
	}
	return r.instruments[id-1], true
}

// InstrumentCount returns the number of instruments in the registry.
func (r *Registry) InstrumentCount() int {
	return len(r.instruments)
}

// InstrumentAt returns the instrument by zero-based index.
func (r *Registry) InstrumentAt(index int) (Instrument, bool) {
	if index < 0 || index >= len(r.instruments) {
		return Instrument{}, false
	}
	return r.instruments[index], true
}

// ExchangeIDByName returns the exchange ID for a name.
func (r *Registry) ExchangeIDByName(name string) (ExchangeID, bool) {
	id, ok := r.exchangeByName[name]
	return id, ok
}

// InstrumentIDByName returns the instrument ID for an
// "exchange/symbol" identifier.
func (r *Registry) InstrumentIDByName(name string) (SymbolID, bool) {
	id, ok := r.instrumentByName[name]
	return id, ok
}
