package repository

import (
	"database/sql"
	"time"

	"marketmanager/internal/models"
)

const fiatPriceColumns = `id, currency, exchange_id, price, updated_at`

// FiatPriceRepository works with the currency_fiat_prices table. Identity
// is (currency, exchange_id). Written by the Snapshot Updater from the Fiat
// Rate Resolver's fiatPairs submap (spec §4.2/§4.3), read by the resolver's
// local-fallback path.
type FiatPriceRepository struct {
	db *sql.DB
}

// NewFiatPriceRepository creates a new repository instance.
func NewFiatPriceRepository(db *sql.DB) *FiatPriceRepository {
	return &FiatPriceRepository{db: db}
}

func scanFiatPrice(row interface{ Scan(...interface{}) error }) (*models.CurrencyFiatPrices, error) {
	p := &models.CurrencyFiatPrices{}
	err := row.Scan(&p.ID, &p.Currency, &p.ExchangeID, &p.Price, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Upsert inserts or updates the fiat price row for (currency, exchange_id).
// Must be called inside the caller's transaction for the Snapshot Updater's
// single-transaction reconciliation to hold.
func (r *FiatPriceRepository) Upsert(tx *sql.Tx, p *models.CurrencyFiatPrices) error {
	query := `
		INSERT INTO currency_fiat_prices (currency, exchange_id, price, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (currency, exchange_id) DO UPDATE SET
			price = EXCLUDED.price, updated_at = EXCLUDED.updated_at
		RETURNING id`

	p.UpdatedAt = time.Now()
	return tx.QueryRow(query, p.Currency, p.ExchangeID, p.Price, p.UpdatedAt).Scan(&p.ID)
}

// GetByCurrencyAndExchange returns the most recently stored fiat price for
// one currency on one exchange, the Fiat Rate Resolver's local fallback
// (spec §4.2 step 4).
func (r *FiatPriceRepository) GetByCurrencyAndExchange(currency string, exchangeID int) (*models.CurrencyFiatPrices, error) {
	query := `SELECT ` + fiatPriceColumns + ` FROM currency_fiat_prices WHERE currency = $1 AND exchange_id = $2`
	return scanFiatPrice(r.db.QueryRow(query, currency, exchangeID))
}

// GetByExchange returns all stored fiat prices for one exchange.
func (r *FiatPriceRepository) GetByExchange(exchangeID int) ([]*models.CurrencyFiatPrices, error) {
	query := `SELECT ` + fiatPriceColumns + ` FROM currency_fiat_prices WHERE exchange_id = $1 ORDER BY currency`
	rows, err := r.db.Query(query, exchangeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.CurrencyFiatPrices
	for rows.Next() {
		p, err := scanFiatPrice(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
