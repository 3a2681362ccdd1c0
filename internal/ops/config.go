// Package ops loads the process configuration from a JSON file and
// resolves it into the explicit parameters the core components take:
// an instrument registry, channel backoff and heartbeat bounds, bus
// queue sizing, storage directories and risk limits. Components never
// read configuration from ambient global state.
package ops

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"main/internal/channel"
	"main/internal/errors"
	"main/internal/journal"
	"main/internal/risk"
	"main/internal/schema"
)

// FileConfig mirrors the JSON config layout.
type FileConfig struct {
	Registry RegistryConfig `json:"registry"`
	Feed     FeedConfig     `json:"feed"`
	Bus      BusConfig      `json:"bus"`
	Series   SeriesConfig   `json:"series"`
	Journal  JournalConfig  `json:"journal"`
	Risk     risk.Config    `json:"risk"`
	Account  AccountConfig  `json:"account"`
	Database DatabaseConfig `json:"database"`
}

// RegistryConfig defines exchange and instrument mappings.
type RegistryConfig struct {
	Exchanges   []ExchangeConfig   `json:"exchanges"`
	Instruments []InstrumentConfig `json:"instruments"`
}

// ExchangeConfig describes one venue entry.
type ExchangeConfig struct {
	Name string `json:"name"`
}

// InstrumentConfig describes one instrument entry. TickSize is given
// in decimal text and parsed against the price scale.
type InstrumentConfig struct {
	Symbol        string           `json:"symbol"`
	Exchange      string           `json:"exchange"`
	QuoteCurrency string           `json:"quoteCurrency"`
	TickSize      string           `json:"tickSize"`
	Multiplier    int32            `json:"multiplier"`
	Scale         schema.ScaleSpec `json:"scale"`
}

// FeedConfig describes the upstream connection.
type FeedConfig struct {
	SocketPath        string        `json:"socketPath"`
	BackoffMin        time.Duration `json:"backoffMin"`
	BackoffMax        time.Duration `json:"backoffMax"`
	BackoffFactor     float64       `json:"backoffFactor"`
	BackoffJitter     float64       `json:"backoffJitter"`
	HeartbeatInterval time.Duration `json:"heartbeatInterval"`
	HeartbeatGrace    time.Duration `json:"heartbeatGrace"`
	RetryBudget       int           `json:"retryBudget"`
}

// BusConfig sizes the per-subscriber queues.
type BusConfig struct {
	TickQueueSize    int `json:"tickQueueSize"`
	BarQueueSize     int `json:"barQueueSize"`
	AccountQueueSize int `json:"accountQueueSize"`
}

// SeriesConfig locates the bar store and names the resolutions to
// consolidate, e.g. ["s1", "m1", "m5"].
type SeriesConfig struct {
	Dir         string   `json:"dir"`
	Resolutions []string `json:"resolutions"`
}

// JournalConfig locates the account-event journal and snapshot.
type JournalConfig struct {
	Dir           string        `json:"dir"`
	SnapshotPath  string        `json:"snapshotPath"`
	FlushInterval time.Duration `json:"flushInterval"`
	SyncInterval  time.Duration `json:"syncInterval"`
}

// AccountConfig names the trading account.
type AccountConfig struct {
	ID uint32 `json:"id"`
}

// DatabaseConfig points at the reference-data store. Empty DSN
// disables it and the registry comes from this file alone.
type DatabaseConfig struct {
	DSN string `json:"dsn"`
}

// Loaded is the resolved configuration ready for injection.
type Loaded struct {
	Registry    *schema.Registry
	Resolutions []schema.Resolution
	Feed        FeedConfig
	Bus         BusConfig
	SeriesDir   string
	Journal     journal.Config
	Snapshot    string
	Risk        risk.Config
	Account     uint32
	DatabaseDSN string
}

// Load reads a JSON config file and resolves it.
func Load(path string) (Loaded, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Loaded{}, errors.Wrap(err, "read config")
	}
	var cfg FileConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Loaded{}, errors.Wrap(err, "parse config")
	}
	return resolve(cfg)
}

func resolve(cfg FileConfig) (Loaded, error) {
	registry, err := BuildRegistry(cfg.Registry)
	if err != nil {
		return Loaded{}, err
	}

	resolutions := make([]schema.Resolution, 0, len(cfg.Series.Resolutions))
	for _, s := range cfg.Series.Resolutions {
		res, err := ParseResolution(s)
		if err != nil {
			return Loaded{}, err
		}
		resolutions = append(resolutions, res)
	}

	bus := cfg.Bus
	if bus.TickQueueSize <= 0 {
		bus.TickQueueSize = 1024
	}
	if bus.BarQueueSize <= 0 {
		bus.BarQueueSize = 256
	}
	if bus.AccountQueueSize <= 0 {
		bus.AccountQueueSize = 1024
	}

	account := cfg.Account.ID
	if account == 0 {
		account = 1
	}

	jcfg := journal.DefaultConfig(cfg.Journal.Dir)
	if cfg.Journal.FlushInterval > 0 {
		jcfg.FlushInterval = cfg.Journal.FlushInterval
	}
	if cfg.Journal.SyncInterval > 0 {
		jcfg.SyncInterval = cfg.Journal.SyncInterval
	}

	return Loaded{
		Registry:    registry,
		Resolutions: resolutions,
		Feed:        cfg.Feed,
		Bus:         bus,
		SeriesDir:   cfg.Series.Dir,
		Journal:     jcfg,
		Snapshot:    cfg.Journal.SnapshotPath,
		Risk:        cfg.Risk,
		Account:     account,
		DatabaseDSN: cfg.Database.DSN,
	}, nil
}

// ChannelConfig translates the feed section into channel settings.
func (l Loaded) ChannelConfig() channel.Config {
	return channel.Config{
		Backoff: channel.Backoff{
			Min:    l.Feed.BackoffMin,
			Max:    l.Feed.BackoffMax,
			Factor: l.Feed.BackoffFactor,
			Jitter: l.Feed.BackoffJitter,
		},
		HeartbeatInterval: l.Feed.HeartbeatInterval,
		HeartbeatGrace:    l.Feed.HeartbeatGrace,
		RetryBudget:       l.Feed.RetryBudget,
	}
}

// BuildRegistry resolves the registry section.
func BuildRegistry(cfg RegistryConfig) (*schema.Registry, error) {
	reg := schema.NewRegistry()
	for _, exchange := range cfg.Exchanges {
		if _, err := reg.AddExchange(exchange.Name); err != nil {
			return nil, err
		}
	}
	for _, inst := range cfg.Instruments {
		exchangeID, ok := reg.ExchangeIDByName(inst.Exchange)
		if !ok {
			return nil, fmt.Errorf("exchange not found: %s", inst.Exchange)
		}
		if err := validateScale(inst.Scale); err != nil {
			return nil, errors.Wrapf(err, "invalid scale for %s", inst.Symbol)
		}
		tickSize, err := schema.ParseScaled(inst.TickSize, int(inst.Scale.PriceScale))
		if err != nil {
			return nil, errors.Wrapf(err, "invalid tick size for %s", inst.Symbol)
		}
		_, err = reg.AddInstrument(schema.Instrument{
			ExchangeID:    exchangeID,
			Symbol:        inst.Symbol,
			QuoteCurrency: inst.QuoteCurrency,
			TickSize:      schema.Price(tickSize),
			Multiplier:    inst.Multiplier,
			Scale:         inst.Scale,
		})
		if err != nil {
			return nil, err
		}
	}
	return reg, nil
}

func validateScale(scale schema.ScaleSpec) error {
	if scale.PriceScale < 0 || scale.QuantityScale < 0 || scale.NotionalScale < 0 || scale.FeeScale < 0 {
		return fmt.Errorf("scale must be >= 0")
	}
	return nil
}

// ParseResolution parses the compact resolution form used in config
// files and series file names: "tick", "s15", "m5", "d1", "c<seconds>".
func ParseResolution(s string) (schema.Resolution, error) {
	if s == "" {
		return schema.Resolution{}, fmt.Errorf("resolution is empty")
	}
	if s == "tick" {
		return schema.Ticks(), nil
	}
	kind := s[0]
	step, err := strconv.ParseUint(s[1:], 10, 32)
	if err != nil || step == 0 {
		return schema.Resolution{}, fmt.Errorf("invalid resolution: %q", s)
	}
	switch kind {
	case 's':
		return schema.Seconds(uint32(step)), nil
	case 'm':
		return schema.Minutes(uint32(step)), nil
	case 'd':
		if step != 1 {
			return schema.Resolution{}, fmt.Errorf("invalid resolution: %q", s)
		}
		return schema.Daily(), nil
	case 'c':
		return schema.Custom(time.Duration(step) * time.Second), nil
	default:
		return schema.Resolution{}, fmt.Errorf("invalid resolution: %q", s)
	}
}
