// Package statusstore composes the repository layer behind one narrow
// capability interface, per spec.md §9's "ORM row objects carrying
// behaviour -> capability interfaces" redesign note. The Fiat Rate
// Resolver, Scheduler, and Poller depend only on Store, never on
// *sql.DB or a concrete repository type.
package statusstore

import (
	"time"

	"marketmanager/internal/models"
)

// ExchangeRepo is the subset of internal/repository.ExchangeRepository
// the core consumes.
type ExchangeRepo interface {
	GetByID(id int) (*models.Exchange, error)
	GetByName(name string) (*models.Exchange, error)
	GetAll() ([]*models.Exchange, error)
	GetEnabled() ([]*models.Exchange, error)
	Create(e *models.Exchange) error
	Update(e *models.Exchange) error
	SetEnabled(id int, enabled bool) error
	SetFiatMarkets(id int, fiatMarkets bool) error
}

// StatusRepo is the subset of internal/repository.ExchangeStatusRepository
// the core consumes.
type StatusRepo interface {
	EnsureExists(exchangeID int) error
	GetByExchangeID(exchangeID int) (*models.ExchangeStatus, error)
	GetAllRunning() ([]*models.ExchangeStatus, error)
	Claim(exchangeID int, runID string, startedAt time.Time) error
	Release(exchangeID int, finishedAt time.Time) error
	Fail(exchangeID int, status string) error
	SetTimeout(exchangeID int, seconds int) error
}

// MarketRepo is the subset of internal/repository.MarketRepository the
// core consumes.
type MarketRepo interface {
	GetByExchangeID(exchangeID int) ([]*models.Market, error)
	GetAll() ([]*models.Market, error)
	DeleteStale(cutoff time.Time) (int64, error)
}

// FiatPriceRepo is the subset of internal/repository.FiatPriceRepository
// the core consumes.
type FiatPriceRepo interface {
	GetByCurrencyAndExchange(currency string, exchangeID int) (*models.CurrencyFiatPrices, error)
	GetByExchange(exchangeID int) ([]*models.CurrencyFiatPrices, error)
}

// Store is the facade the Scheduler, Poller, and Fiat Rate Resolver's
// local fallback are written against (spec §4.9).
type Store interface {
	Exchanges() ExchangeRepo
	Statuses() StatusRepo
	Markets() MarketRepo
	FiatPrices() FiatPriceRepo
}

// store is the concrete wiring of the four repositories behind Store.
type store struct {
	exchanges  ExchangeRepo
	statuses   StatusRepo
	markets    MarketRepo
	fiatPrices FiatPriceRepo
}

// New composes a Store from already-constructed repositories.
func New(exchanges ExchangeRepo, statuses StatusRepo, markets MarketRepo, fiatPrices FiatPriceRepo) Store {
	return &store{exchanges: exchanges, statuses: statuses, markets: markets, fiatPrices: fiatPrices}
}

func (s *store) Exchanges() ExchangeRepo     { return s.exchanges }
func (s *store) Statuses() StatusRepo        { return s.statuses }
func (s *store) Markets() MarketRepo         { return s.markets }
func (s *store) FiatPrices() FiatPriceRepo   { return s.fiatPrices }

var _ Store = (*store)(nil)
