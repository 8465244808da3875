package repository

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"marketmanager/internal/models"
	"marketmanager/pkg/crypto"
)

// Exchange repository errors.
var (
	ErrExchangeNotFound = errors.New("exchange not found")
)

// ExchangeRepository backs the exchanges table. When encKey is 32 bytes,
// APIKey/APISecret are AES-256-GCM encrypted at rest via pkg/crypto; an
// empty encKey (ENCRYPTION_KEY unset) leaves credentials in plaintext,
// matching config.Load's "required only if set" validation.
type ExchangeRepository struct {
	db     *sql.DB
	encKey []byte
}

// NewExchangeRepository builds a new repository instance. encKey should be
// cfg.Security.EncryptionKey as bytes, or nil to disable credential
// encryption.
func NewExchangeRepository(db *sql.DB, encKey []byte) *ExchangeRepository {
	return &ExchangeRepository{db: db, encKey: encKey}
}

func (r *ExchangeRepository) encryptCredential(plaintext string) (string, error) {
	if len(r.encKey) == 0 || plaintext == "" {
		return plaintext, nil
	}
	ciphertext, err := crypto.Encrypt(plaintext, r.encKey)
	if err != nil {
		return "", fmt.Errorf("encrypt credential: %w", err)
	}
	return ciphertext, nil
}

func (r *ExchangeRepository) decryptCredential(stored string) (string, error) {
	if len(r.encKey) == 0 || stored == "" {
		return stored, nil
	}
	plaintext, err := crypto.Decrypt(stored, r.encKey)
	if err != nil {
		return "", fmt.Errorf("decrypt credential: %w", err)
	}
	return plaintext, nil
}

// Create inserts a new exchange.
func (r *ExchangeRepository) Create(e *models.Exchange) error {
	query := `
		INSERT INTO exchanges (name, interval, enabled, fiat_markets, url, logo, api_url, api_key, api_secret, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)
		RETURNING id`

	e.CreatedAt = time.Now()
	e.UpdatedAt = e.CreatedAt

	apiKey, err := r.encryptCredential(e.APIKey)
	if err != nil {
		return err
	}
	apiSecret, err := r.encryptCredential(e.APISecret)
	if err != nil {
		return err
	}

	return r.db.QueryRow(
		query,
		e.Name, e.Interval, e.Enabled, e.FiatMarkets, e.URL, e.Logo, e.APIURL, apiKey, apiSecret, e.CreatedAt,
	).Scan(&e.ID)
}

func (r *ExchangeRepository) scanExchange(row interface{ Scan(...interface{}) error }) (*models.Exchange, error) {
	e := &models.Exchange{}
	err := row.Scan(
		&e.ID, &e.Name, &e.Interval, &e.Enabled, &e.FiatMarkets,
		&e.URL, &e.Logo, &e.APIURL, &e.APIKey, &e.APISecret,
		&e.Volume, &e.TopPair, &e.TopPairVolume, &e.LastDataFetch,
		&e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if e.APIKey, err = r.decryptCredential(e.APIKey); err != nil {
		return nil, err
	}
	if e.APISecret, err = r.decryptCredential(e.APISecret); err != nil {
		return nil, err
	}
	return e, nil
}

const exchangeColumns = `id, name, interval, enabled, fiat_markets, url, logo, api_url, api_key, api_secret,
		volume, top_pair, top_pair_volume, last_data_fetch, created_at, updated_at`

// GetByID returns an exchange by ID.
func (r *ExchangeRepository) GetByID(id int) (*models.Exchange, error) {
	query := `SELECT ` + exchangeColumns + ` FROM exchanges WHERE id = $1`
	e, err := r.scanExchange(r.db.QueryRow(query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrExchangeNotFound
	}
	return e, err
}

// GetByName returns an exchange by name.
func (r *ExchangeRepository) GetByName(name string) (*models.Exchange, error) {
	query := `SELECT ` + exchangeColumns + ` FROM exchanges WHERE name = $1`
	e, err := r.scanExchange(r.db.QueryRow(query, name))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrExchangeNotFound
	}
	return e, err
}

// GetAll returns every exchange, ordered by name.
func (r *ExchangeRepository) GetAll() ([]*models.Exchange, error) {
	query := `SELECT ` + exchangeColumns + ` FROM exchanges ORDER BY name`
	rows, err := r.db.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.Exchange
	for rows.Next() {
		e, err := r.scanExchange(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// GetEnabled returns only the enabled exchanges.
func (r *ExchangeRepository) GetEnabled() ([]*models.Exchange, error) {
	query := `SELECT ` + exchangeColumns + ` FROM exchanges WHERE enabled = true ORDER BY name`
	rows, err := r.db.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.Exchange
	for rows.Next() {
		e, err := r.scanExchange(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// GetByIDForUpdate is GetByID run inside tx with the row locked, used by the
// Snapshot Updater before computing and writing the per-exchange summary
// (spec §4.3 step 5).
func (r *ExchangeRepository) GetByIDForUpdate(tx *sql.Tx, id int) (*models.Exchange, error) {
	query := `SELECT ` + exchangeColumns + ` FROM exchanges WHERE id = $1 FOR UPDATE`
	e, err := r.scanExchange(tx.QueryRow(query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrExchangeNotFound
	}
	return e, err
}

// UpdateSummary writes only the fields the Snapshot Updater owns
// (volume, top_pair, top_pair_volume, last_data_fetch), leaving
// admin-controlled fields such as enabled/api credentials untouched. Must
// run inside the caller's transaction.
func (r *ExchangeRepository) UpdateSummary(tx *sql.Tx, e *models.Exchange) error {
	query := `
		UPDATE exchanges
		SET volume=$2, top_pair=$3, top_pair_volume=$4, last_data_fetch=$5, updated_at=$6
		WHERE id=$1`

	e.UpdatedAt = time.Now()
	res, err := tx.Exec(query, e.ID, e.Volume, e.TopPair, e.TopPairVolume, e.LastDataFetch, e.UpdatedAt)
	if err != nil {
		return err
	}
	return checkRowsAffected(res)
}

// Update writes the exchange's mutable fields.
func (r *ExchangeRepository) Update(e *models.Exchange) error {
	query := `
		UPDATE exchanges
		SET interval=$2, enabled=$3, fiat_markets=$4, url=$5, logo=$6, api_url=$7,
		    api_key=$8, api_secret=$9, volume=$10, top_pair=$11, top_pair_volume=$12,
		    last_data_fetch=$13, updated_at=$14
		WHERE id=$1`

	e.UpdatedAt = time.Now()

	apiKey, err := r.encryptCredential(e.APIKey)
	if err != nil {
		return err
	}
	apiSecret, err := r.encryptCredential(e.APISecret)
	if err != nil {
		return err
	}

	res, err := r.db.Exec(
		query, e.ID, e.Interval, e.Enabled, e.FiatMarkets, e.URL, e.Logo, e.APIURL,
		apiKey, apiSecret, e.Volume, e.TopPair, e.TopPairVolume, e.LastDataFetch, e.UpdatedAt,
	)
	if err != nil {
		return err
	}
	return checkRowsAffected(res)
}

// SetEnabled toggles the enabled flag (admin enable/disable actions).
func (r *ExchangeRepository) SetEnabled(id int, enabled bool) error {
	res, err := r.db.Exec(`UPDATE exchanges SET enabled=$2, updated_at=$3 WHERE id=$1`, id, enabled, time.Now())
	if err != nil {
		return err
	}
	return checkRowsAffected(res)
}

// SetFiatMarkets sets the sticky fiat_markets flag (Fetch Worker step 3).
func (r *ExchangeRepository) SetFiatMarkets(id int, fiatMarkets bool) error {
	res, err := r.db.Exec(`UPDATE exchanges SET fiat_markets=$2, updated_at=$3 WHERE id=$1`, id, fiatMarkets, time.Now())
	if err != nil {
		return err
	}
	return checkRowsAffected(res)
}

func checkRowsAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrExchangeNotFound
	}
	return nil
}
