package repository

import (
	"database/sql"
	"errors"
	"time"

	"marketmanager/internal/models"
)

// Exchange status repository errors.
var (
	ErrExchangeStatusNotFound = errors.New("exchange status not found")
	// ErrAlreadyRunning is returned by Claim when the exchange is already
	// mid-fetch, i.e. the atomic running=false->true claim lost the race.
	ErrAlreadyRunning = errors.New("exchange already running")
)

const exchangeStatusColumns = `exchange_id, running, time_started, last_run, last_run_id, last_run_status, timeout`

// ExchangeStatusRepository works with the exchange_statuses table, the
// one-to-one companion that tracks in-flight and most-recent fetch state.
type ExchangeStatusRepository struct {
	db *sql.DB
}

// NewExchangeStatusRepository creates a new repository instance.
func NewExchangeStatusRepository(db *sql.DB) *ExchangeStatusRepository {
	return &ExchangeStatusRepository{db: db}
}

func scanExchangeStatus(row interface{ Scan(...interface{}) error }) (*models.ExchangeStatus, error) {
	s := &models.ExchangeStatus{}
	err := row.Scan(
		&s.ExchangeID, &s.Running, &s.TimeStarted, &s.LastRun,
		&s.LastRunID, &s.LastRunStatus, &s.Timeout,
	)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// EnsureExists creates the zero-value status row for an exchange if one
// does not exist yet, per the Scheduler's startup pass (spec §4.6 step 2).
func (r *ExchangeStatusRepository) EnsureExists(exchangeID int) error {
	query := `
		INSERT INTO exchange_statuses (exchange_id, running, timeout)
		VALUES ($1, false, 0)
		ON CONFLICT (exchange_id) DO NOTHING`
	_, err := r.db.Exec(query, exchangeID)
	return err
}

// GetByExchangeID returns the status row for one exchange.
func (r *ExchangeStatusRepository) GetByExchangeID(exchangeID int) (*models.ExchangeStatus, error) {
	query := `SELECT ` + exchangeStatusColumns + ` FROM exchange_statuses WHERE exchange_id = $1`
	s, err := scanExchangeStatus(r.db.QueryRow(query, exchangeID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrExchangeStatusNotFound
	}
	return s, err
}

// GetAllRunning returns every status row currently marked running, used by
// the Poller's sweep (spec §4.7 step 1).
func (r *ExchangeStatusRepository) GetAllRunning() ([]*models.ExchangeStatus, error) {
	query := `SELECT ` + exchangeStatusColumns + ` FROM exchange_statuses WHERE running = true`
	rows, err := r.db.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.ExchangeStatus
	for rows.Next() {
		s, err := scanExchangeStatus(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Claim atomically flips running false->true, the Scheduler's dispatch
// primitive (spec §4.6 step 4). Returns ErrAlreadyRunning if another
// Scheduler tick (or a concurrent instance) already claimed the row.
func (r *ExchangeStatusRepository) Claim(exchangeID int, runID string, startedAt time.Time) error {
	query := `
		UPDATE exchange_statuses
		SET running = true, time_started = $2, last_run_id = $3
		WHERE exchange_id = $1 AND running = false`

	res, err := r.db.Exec(query, exchangeID, startedAt, runID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrAlreadyRunning
	}
	return nil
}

// Release marks a successful run: clears running, advances last_run, and
// clears any stale last_run_status (spec §4.5 step 8 success path).
func (r *ExchangeStatusRepository) Release(exchangeID int, finishedAt time.Time) error {
	query := `
		UPDATE exchange_statuses
		SET running = false, time_started = NULL, last_run = $2, last_run_status = ''
		WHERE exchange_id = $1`

	res, err := r.db.Exec(query, exchangeID, finishedAt)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrExchangeStatusNotFound
	}
	return nil
}

// Fail marks a run that did not complete successfully: clears running and
// records status, but deliberately leaves last_run untouched (spec §4.5
// step 8 failure path, and the Poller's timeout reap, spec §4.7 step 3:
// "do not advance last_run").
func (r *ExchangeStatusRepository) Fail(exchangeID int, status string) error {
	query := `
		UPDATE exchange_statuses
		SET running = false, time_started = NULL, last_run_status = $2
		WHERE exchange_id = $1`

	res, err := r.db.Exec(query, exchangeID, status)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrExchangeStatusNotFound
	}
	return nil
}

// SetTimeout updates the per-exchange timeout override (seconds). Zero
// restores the global default (spec §9 open question 3).
func (r *ExchangeStatusRepository) SetTimeout(exchangeID int, seconds int) error {
	res, err := r.db.Exec(`UPDATE exchange_statuses SET timeout = $2 WHERE exchange_id = $1`, exchangeID, seconds)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrExchangeStatusNotFound
	}
	return nil
}
