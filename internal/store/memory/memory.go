// Package memory provides an in-memory implementation of the domain stores
// and the engine transaction runner. It backs unit tests and local
// development; the postgres package is the production implementation.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/yesnolabs/venue/internal/domain"
	"github.com/yesnolabs/venue/internal/money"
)

// Store holds all venue state in process memory. It implements
// domain.TxRunner plus every read-side store interface. A single mutex
// serializes transactions, which matches the row-lock semantics the engine
// relies on closely enough for tests.
type Store struct {
	mu        sync.Mutex
	markets   map[string]domain.Market
	accounts  map[string]domain.Account
	positions map[string]domain.Position
	orders    map[string]domain.Order
	ledger    []domain.LedgerEntry
	nextLedge int64
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{
		markets:   make(map[string]domain.Market),
		accounts:  make(map[string]domain.Account),
		positions: make(map[string]domain.Position),
		orders:    make(map[string]domain.Order),
		nextLedge: 1,
	}
}

// InTx runs fn against a snapshot-backed transaction. On error every
// mutation is discarded.
func (s *Store) InTx(ctx context.Context, fn func(tx domain.EngineTx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.snapshot()
	if err := fn(&memTx{store: s}); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

type snapshotState struct {
	markets   map[string]domain.Market
	accounts  map[string]domain.Account
	positions map[string]domain.Position
	orders    map[string]domain.Order
	ledger    []domain.LedgerEntry
	nextLedge int64
}

func (s *Store) snapshot() snapshotState {
	snap := snapshotState{
		markets:   make(map[string]domain.Market, len(s.markets)),
		accounts:  make(map[string]domain.Account, len(s.accounts)),
		positions: make(map[string]domain.Position, len(s.positions)),
		orders:    make(map[string]domain.Order, len(s.orders)),
		ledger:    append([]domain.LedgerEntry(nil), s.ledger...),
		nextLedge: s.nextLedge,
	}
	for k, v := range s.markets {
		snap.markets[k] = v
	}
	for k, v := range s.accounts {
		snap.accounts[k] = v
	}
	for k, v := range s.positions {
		snap.positions[k] = v
	}
	for k, v := range s.orders {
		snap.orders[k] = v
	}
	return snap
}

func (s *Store) restore(snap snapshotState) {
	s.markets = snap.markets
	s.accounts = snap.accounts
	s.positions = snap.positions
	s.orders = snap.orders
	s.ledger = snap.ledger
	s.nextLedge = snap.nextLedge
}

// memTx mutates the store directly; InTx holds the lock and rolls back via
// snapshot on error.
type memTx struct {
	store *Store
}

func (t *memTx) GetMarketForUpdate(_ context.Context, id string) (domain.Market, error) {
	m, ok := t.store.markets[id]
	if !ok {
		return domain.Market{}, domain.ErrMarketNotFound
	}
	return m, nil
}

func (t *memTx) CreateMarket(_ context.Context, m domain.Market) error {
	now := time.Now().UTC()
	m.CreatedAt = now
	m.UpdatedAt = now
	t.store.markets[m.ID] = m
	return nil
}

func (t *memTx) UpdateMarket(_ context.Context, m domain.Market) error {
	if _, ok := t.store.markets[m.ID]; !ok {
		return domain.ErrMarketNotFound
	}
	m.UpdatedAt = time.Now().UTC()
	t.store.markets[m.ID] = m
	return nil
}

func (t *memTx) GetAccount(_ context.Context, id string) (domain.Account, error) {
	a, ok := t.store.accounts[id]
	if !ok {
		return domain.Account{}, domain.ErrNotFound
	}
	return a, nil
}

func (t *memTx) AdjustBalance(_ context.Context, entry domain.LedgerEntry, allowNegative bool) (money.Cents, error) {
	a, ok := t.store.accounts[entry.AccountID]
	if !ok {
		return 0, domain.ErrNotFound
	}

	newBalance := a.Balance + entry.Amount
	if newBalance < 0 && !allowNegative {
		return 0, domain.ErrInsufficientBalance
	}
	a.Balance = newBalance
	a.UpdatedAt = time.Now().UTC()
	t.store.accounts[entry.AccountID] = a

	entry.ID = t.store.nextLedge
	entry.CreatedAt = time.Now().UTC()
	t.store.nextLedge++
	t.store.ledger = append(t.store.ledger, entry)

	return newBalance, nil
}

func (t *memTx) GetOpenPosition(_ context.Context, userID, marketID string, outcome domain.Outcome) (domain.Position, error) {
	for _, p := range t.store.positions {
		if p.UserID == userID && p.MarketID == marketID && p.Outcome == outcome && p.Status == domain.PositionStatusOpen {
			return p, nil
		}
	}
	return domain.Position{}, domain.ErrPositionNotFound
}

func (t *memTx) UpsertPosition(_ context.Context, p domain.Position) error {
	now := time.Now().UTC()
	if existing, ok := t.store.positions[p.ID]; ok {
		p.CreatedAt = existing.CreatedAt
	} else {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	t.store.positions[p.ID] = p
	return nil
}

func (t *memTx) ListOpenPositions(_ context.Context, marketID string) ([]domain.Position, error) {
	var out []domain.Position
	for _, p := range t.store.positions {
		if p.MarketID == marketID && p.Status == domain.PositionStatusOpen {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t *memTx) CreateOrder(_ context.Context, o domain.Order) error {
	now := time.Now().UTC()
	o.CreatedAt = now
	o.UpdatedAt = now
	t.store.orders[o.ID] = o
	return nil
}

func (t *memTx) GetOrderForUpdate(_ context.Context, id string) (domain.Order, error) {
	o, ok := t.store.orders[id]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return o, nil
}

func (t *memTx) UpdateOrder(_ context.Context, o domain.Order) error {
	if _, ok := t.store.orders[o.ID]; !ok {
		return domain.ErrOrderNotFound
	}
	o.UpdatedAt = time.Now().UTC()
	t.store.orders[o.ID] = o
	return nil
}

func (t *memTx) ListRestingOrders(_ context.Context, marketID string) ([]domain.Order, error) {
	var out []domain.Order
	for _, o := range t.store.orders {
		if o.MarketID == marketID && o.Resting() {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// Read-side interfaces.

func (s *Store) GetByID(ctx context.Context, id string) (domain.Market, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.markets[id]
	if !ok {
		return domain.Market{}, domain.ErrMarketNotFound
	}
	return m, nil
}

func (s *Store) ListByStatus(_ context.Context, status domain.MarketStatus, opts domain.ListOpts) ([]domain.Market, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Market
	for _, m := range s.markets {
		if m.Status == status {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return paginate(out, opts), nil
}

func (s *Store) ListExpired(_ context.Context, limit int) ([]domain.Market, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	var out []domain.Market
	for _, m := range s.markets {
		if m.Status == domain.MarketStatusOpen && !m.ClosesAt.After(now) {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ClosesAt.Before(out[j].ClosesAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Markets exposes the store as a domain.MarketStore.
func (s *Store) Markets() domain.MarketStore { return s }

// OrderReader adapts the store to domain.OrderStore.
type OrderReader struct{ store *Store }

// Orders exposes the store as a domain.OrderStore.
func (s *Store) Orders() domain.OrderStore { return &OrderReader{store: s} }

func (r *OrderReader) GetByID(_ context.Context, id string) (domain.Order, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	o, ok := r.store.orders[id]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return o, nil
}

func (r *OrderReader) ListResting(_ context.Context, marketID string) ([]domain.Order, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	tx := memTx{store: r.store}
	return tx.ListRestingOrders(context.Background(), marketID)
}

func (r *OrderReader) ListByUser(_ context.Context, userID string, opts domain.ListOpts) ([]domain.Order, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var out []domain.Order
	for _, o := range r.store.orders {
		if o.UserID == userID {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return paginate(out, opts), nil
}

func (r *OrderReader) ListFilledSince(_ context.Context, sinceID string, limit int) ([]domain.Order, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var out []domain.Order
	for _, o := range r.store.orders {
		if o.Status == domain.OrderStatusFilled && strings.Compare(o.ID, sinceID) > 0 {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// PositionReader adapts the store to domain.PositionStore.
type PositionReader struct{ store *Store }

// Positions exposes the store as a domain.PositionStore.
func (s *Store) Positions() domain.PositionStore { return &PositionReader{store: s} }

func (r *PositionReader) GetOpen(_ context.Context, userID, marketID string, outcome domain.Outcome) (domain.Position, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	tx := memTx{store: r.store}
	return tx.GetOpenPosition(context.Background(), userID, marketID, outcome)
}

func (r *PositionReader) ListByUser(_ context.Context, userID string, opts domain.ListOpts) ([]domain.Position, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var out []domain.Position
	for _, p := range r.store.positions {
		if p.UserID == userID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return paginate(out, opts), nil
}

func (r *PositionReader) ListOpenByMarket(_ context.Context, marketID string) ([]domain.Position, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	tx := memTx{store: r.store}
	return tx.ListOpenPositions(context.Background(), marketID)
}

func (r *PositionReader) ListByMarket(_ context.Context, marketID string, opts domain.ListOpts) ([]domain.Position, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var out []domain.Position
	for _, p := range r.store.positions {
		if p.MarketID == marketID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return paginate(out, opts), nil
}

// AccountReader adapts the store to domain.AccountStore.
type AccountReader struct{ store *Store }

// Accounts exposes the store as a domain.AccountStore.
func (s *Store) Accounts() domain.AccountStore { return &AccountReader{store: s} }

func (r *AccountReader) GetByID(_ context.Context, id string) (domain.Account, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	a, ok := r.store.accounts[id]
	if !ok {
		return domain.Account{}, domain.ErrNotFound
	}
	return a, nil
}

func (r *AccountReader) Ensure(_ context.Context, account domain.Account) (domain.Account, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if existing, ok := r.store.accounts[account.ID]; ok {
		return existing, nil
	}
	now := time.Now().UTC()
	account.CreatedAt = now
	account.UpdatedAt = now
	r.store.accounts[account.ID] = account
	return account, nil
}

// LedgerReader adapts the store to domain.LedgerStore.
type LedgerReader struct{ store *Store }

// Ledger exposes the store as a domain.LedgerStore.
func (s *Store) Ledger() domain.LedgerStore { return &LedgerReader{store: s} }

func (r *LedgerReader) ListByAccount(_ context.Context, accountID string, opts domain.ListOpts) ([]domain.LedgerEntry, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var out []domain.LedgerEntry
	for _, e := range r.store.ledger {
		if e.AccountID == accountID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return paginate(out, opts), nil
}

func paginate[T any](items []T, opts domain.ListOpts) []T {
	if opts.Offset > 0 {
		if opts.Offset >= len(items) {
			return nil
		}
		items = items[opts.Offset:]
	}
	if opts.Limit > 0 && len(items) > opts.Limit {
		items = items[:opts.Limit]
	}
	return items
}
