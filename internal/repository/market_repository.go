package repository

import (
	"database/sql"
	"errors"
	"time"

	"marketmanager/internal/models"
)

// ErrMarketNotFound is returned when no market row matches a lookup.
var ErrMarketNotFound = errors.New("market not found")

const marketColumns = `id, exchange_id, name, base, quote, last, bid, ask, open, close, high, low, volume, updated`

// MarketRepository works with the markets table. Identity is
// (exchange_id, name); the Snapshot Updater upserts into it once per pair
// per run (spec §4.3).
type MarketRepository struct {
	db *sql.DB
}

// NewMarketRepository creates a new repository instance.
func NewMarketRepository(db *sql.DB) *MarketRepository {
	return &MarketRepository{db: db}
}

func scanMarket(row interface{ Scan(...interface{}) error }) (*models.Market, error) {
	m := &models.Market{}
	err := row.Scan(
		&m.ID, &m.ExchangeID, &m.Name, &m.Base, &m.Quote,
		&m.Last, &m.Bid, &m.Ask, &m.Open, &m.Close, &m.High, &m.Low, &m.Volume, &m.Updated,
	)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// Upsert inserts or updates the market row for (exchange_id, name), per the
// Snapshot Updater's per-pair reconciliation (spec §4.3 step 3). Must be
// called inside the caller's transaction to take part in its row locks.
func (r *MarketRepository) Upsert(tx *sql.Tx, m *models.Market) error {
	query := `
		INSERT INTO markets (exchange_id, name, base, quote, last, bid, ask, open, close, high, low, volume, updated)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (exchange_id, name) DO UPDATE SET
			last = EXCLUDED.last, bid = EXCLUDED.bid, ask = EXCLUDED.ask,
			open = EXCLUDED.open, close = EXCLUDED.close, high = EXCLUDED.high,
			low = EXCLUDED.low, volume = EXCLUDED.volume, updated = EXCLUDED.updated
		RETURNING id`

	m.Updated = time.Now()
	return tx.QueryRow(
		query, m.ExchangeID, m.Name, m.Base, m.Quote,
		m.Last, m.Bid, m.Ask, m.Open, m.Close, m.High, m.Low, m.Volume, m.Updated,
	).Scan(&m.ID)
}

// GetByExchangeID returns all market rows for one exchange, the pre-image
// the Snapshot Updater diffs the incoming TickerBatch against (spec §4.3
// step 2).
func (r *MarketRepository) GetByExchangeID(exchangeID int) ([]*models.Market, error) {
	query := `SELECT ` + marketColumns + ` FROM markets WHERE exchange_id = $1 ORDER BY name`
	rows, err := r.db.Query(query, exchangeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.Market
	for rows.Next() {
		m, err := scanMarket(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// GetByExchangeIDForUpdate is GetByExchangeID run inside tx with row locks
// held, the Snapshot Updater's step 1 (spec §4.3: "acquire row-level locks
// on all existing Markets for this exchange" before diffing the batch).
func (r *MarketRepository) GetByExchangeIDForUpdate(tx *sql.Tx, exchangeID int) ([]*models.Market, error) {
	query := `SELECT ` + marketColumns + ` FROM markets WHERE exchange_id = $1 ORDER BY name FOR UPDATE`
	rows, err := tx.Query(query, exchangeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.Market
	for rows.Next() {
		m, err := scanMarket(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// GetAll returns every market row, used by historical/market read endpoints.
func (r *MarketRepository) GetAll() ([]*models.Market, error) {
	query := `SELECT ` + marketColumns + ` FROM markets ORDER BY exchange_id, name`
	rows, err := r.db.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.Market
	for rows.Next() {
		m, err := scanMarket(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// DeleteStale removes market rows untouched since before cutoff, the
// garbage-collection sweep driven by marketmanagectl gc-markets.
func (r *MarketRepository) DeleteStale(cutoff time.Time) (int64, error) {
	query := `DELETE FROM markets WHERE updated < $1`
	res, err := r.db.Exec(query, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
