// Package refdata loads exchange and instrument reference data from
// PostgreSQL and materializes it as an immutable registry. The file
// config remains authoritative when no database is configured.
package refdata

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"main/internal/errors"
	"main/internal/schema"
	"main/pkg/conn"
)

var ErrNoInstruments = errors.New("refdata: no instruments found")

// ExchangeRow is one venue record.
type ExchangeRow struct {
	gorm.Model
	Name string `gorm:"uniqueIndex"`
}

// InstrumentRow is one instrument record. TickSize is decimal text and
// is parsed against PriceScale when the registry is built.
type InstrumentRow struct {
	gorm.Model
	Symbol        string `gorm:"uniqueIndex:idx_instrument_name"`
	Exchange      string `gorm:"uniqueIndex:idx_instrument_name"`
	QuoteCurrency string
	TickSize      string
	Multiplier    int32
	PriceScale    int32
	QuantityScale int32
	NotionalScale int32
	FeeScale      int32
}

// Store reads and writes reference data rows.
type Store struct {
	client *conn.Client
}

// Open connects to the database named by dsn and verifies
// reachability before returning.
func Open(ctx context.Context, dsn string) (*Store, error) {
	client, err := conn.New(conn.Option{ConnString: dsn})
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx); err != nil {
		_ = client.Close()
		return nil, err
	}
	return &Store{client: client}, nil
}

// Migrate creates or updates the reference tables.
func (s *Store) Migrate(ctx context.Context) error {
	return s.client.DB().WithContext(ctx).AutoMigrate(&ExchangeRow{}, &InstrumentRow{})
}

// SaveExchange inserts the exchange if it does not exist yet.
func (s *Store) SaveExchange(ctx context.Context, name string) error {
	row := ExchangeRow{Name: name}
	return s.client.DB().WithContext(ctx).
		Where("name = ?", name).
		FirstOrCreate(&row).Error
}

// SaveInstrument upserts the instrument keyed by exchange and symbol.
func (s *Store) SaveInstrument(ctx context.Context, row InstrumentRow) error {
	return s.client.DB().WithContext(ctx).
		Where("exchange = ? AND symbol = ?", row.Exchange, row.Symbol).
		Assign(row).
		FirstOrCreate(&row).Error
}

// LoadRegistry reads all reference rows and builds a registry.
func (s *Store) LoadRegistry(ctx context.Context) (*schema.Registry, error) {
	db := s.client.DB().WithContext(ctx)

	var exchanges []ExchangeRow
	if err := db.Order("id").Find(&exchanges).Error; err != nil {
		return nil, err
	}
	var instruments []InstrumentRow
	if err := db.Order("id").Find(&instruments).Error; err != nil {
		return nil, err
	}
	return buildRegistry(exchanges, instruments)
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.client.Close()
}

func buildRegistry(exchanges []ExchangeRow, instruments []InstrumentRow) (*schema.Registry, error) {
	if len(instruments) == 0 {
		return nil, ErrNoInstruments
	}
	reg := schema.NewRegistry()
	for _, row := range exchanges {
		if _, err := reg.AddExchange(row.Name); err != nil {
			return nil, err
		}
	}
	for _, row := range instruments {
		inst, err := rowToInstrument(reg, row)
		if err != nil {
			return nil, err
		}
		if _, err := reg.AddInstrument(inst); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

func rowToInstrument(reg *schema.Registry, row InstrumentRow) (schema.Instrument, error) {
	exchangeID, ok := reg.ExchangeIDByName(row.Exchange)
	if !ok {
		return schema.Instrument{}, fmt.Errorf("refdata: exchange not found: %s", row.Exchange)
	}
	tickSize, err := schema.ParseScaled(row.TickSize, int(row.PriceScale))
	if err != nil {
		return schema.Instrument{}, errors.Wrapf(err, "refdata: invalid tick size for %s", row.Symbol)
	}
	return schema.Instrument{
		ExchangeID:    exchangeID,
		Symbol:        row.Symbol,
		QuoteCurrency: row.QuoteCurrency,
		TickSize:      schema.Price(tickSize),
		Multiplier:    row.Multiplier,
		Scale: schema.ScaleSpec{
			PriceScale:    schema.Scale(row.PriceScale),
			QuantityScale: schema.Scale(row.QuantityScale),
			NotionalScale: schema.Scale(row.NotionalScale),
			FeeScale:      schema.Scale(row.FeeScale),
		},
	}, nil
}
