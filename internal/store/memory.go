package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/efreitasn/tradecore/internal/domain"
	"github.com/google/btree"
	"github.com/shopspring/decimal"
)

// pendingEntry keys a PENDING order in the scan index.
type pendingEntry struct {
	CreatedAt time.Time
	OrderID   string
}

// pendingLess orders by created_at ascending, then order_id ascending.
func pendingLess(a, b pendingEntry) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.OrderID < b.OrderID
}

// Memory is a thread-safe in-memory Ledger.
// Primary indexes: account_id → account, order_id → order.
// Secondary indexes: account_id → symbol → position, account_id → order ids
// (insertion order), and a B-tree of PENDING orders for the matching scan.
type Memory struct {
	mu         sync.RWMutex
	accounts   map[string]*domain.Account
	positions  map[string]map[string]domain.Position
	orders     map[string]*domain.Order
	byAccount  map[string][]string
	pending    *btree.BTreeG[pendingEntry]
	locksMu    sync.Mutex
	accountMus map[string]*sync.Mutex
}

// NewMemory creates an empty Memory ledger.
func NewMemory() *Memory {
	const degree = 32
	return &Memory{
		accounts:   make(map[string]*domain.Account),
		positions:  make(map[string]map[string]domain.Position),
		orders:     make(map[string]*domain.Order),
		byAccount:  make(map[string][]string),
		pending:    btree.NewG[pendingEntry](degree, pendingLess),
		accountMus: make(map[string]*sync.Mutex),
	}
}

// CreateAccount adds an account. It returns domain.ErrAccountExists if an
// account with the same ID already exists.
func (m *Memory) CreateAccount(_ context.Context, a *domain.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.accounts[a.ID]; exists {
		return domain.ErrAccountExists
	}
	c := *a
	m.accounts[a.ID] = &c
	return nil
}

// GetAccount retrieves an account by ID. It returns
// domain.ErrAccountNotFound if the account does not exist.
func (m *Memory) GetAccount(_ context.Context, accountID string) (*domain.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	a, ok := m.accounts[accountID]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	c := *a
	return &c, nil
}

// GetOrder retrieves an order by ID. It returns
// domain.ErrOrderNotFound if the order does not exist.
func (m *Memory) GetOrder(_ context.Context, orderID string) (*domain.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	o, ok := m.orders[orderID]
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	return o.Clone(), nil
}

// ListOrders returns the account's orders in reverse insertion order.
func (m *Memory) ListOrders(_ context.Context, accountID string) ([]*domain.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := m.byAccount[accountID]
	result := make([]*domain.Order, 0, len(ids))
	for i := len(ids) - 1; i >= 0; i-- {
		result = append(result, m.orders[ids[i]].Clone())
	}
	return result, nil
}

// ListPositions returns the account's positions sorted by symbol.
func (m *Memory) ListPositions(_ context.Context, accountID string) ([]domain.Position, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	bySymbol := m.positions[accountID]
	result := make([]domain.Position, 0, len(bySymbol))
	for _, p := range bySymbol {
		result = append(result, p)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Symbol < result[j].Symbol })
	return result, nil
}

// PendingOrders walks the pending index in ascending order.
func (m *Memory) PendingOrders(_ context.Context) ([]*domain.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*domain.Order, 0, m.pending.Len())
	m.pending.Ascend(func(e pendingEntry) bool {
		result = append(result, m.orders[e.OrderID].Clone())
		return true
	})
	return result, nil
}

// WithAccount locks the account, runs fn against a staging transaction and
// applies the staged writes if fn succeeds.
func (m *Memory) WithAccount(ctx context.Context, accountID string, fn func(Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.RLock()
	_, ok := m.accounts[accountID]
	m.mu.RUnlock()
	if !ok {
		return domain.ErrAccountNotFound
	}

	lock := m.accountLock(accountID)
	lock.Lock()
	defer lock.Unlock()

	tx := &memTx{
		m:         m,
		accountID: accountID,
		positions: make(map[string]domain.Position),
		orders:    make(map[string]*stagedOrder),
	}
	if err := fn(tx); err != nil {
		return err
	}
	return m.commit(tx)
}

func (m *Memory) accountLock(accountID string) *sync.Mutex {
	m.locksMu.Lock()
	defer m.locksMu.Unlock()

	l, ok := m.accountMus[accountID]
	if !ok {
		l = &sync.Mutex{}
		m.accountMus[accountID] = l
	}
	return l
}

// commit re-verifies every staged transition against the stored status and
// then applies all staged writes under the store lock.
func (m *Memory) commit(tx *memTx) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, staged := range tx.orders {
		if staged.inserted {
			continue
		}
		current, ok := m.orders[id]
		if !ok || current.Status != domain.OrderStatusPending {
			return domain.ErrStateConflict
		}
	}

	if tx.account != nil && tx.cashSet {
		a := *tx.account
		m.accounts[tx.accountID] = &a
	}

	for symbol, p := range tx.positions {
		bySymbol := m.positions[tx.accountID]
		if p.IsFlat() {
			delete(bySymbol, symbol)
			continue
		}
		if bySymbol == nil {
			bySymbol = make(map[string]domain.Position)
			m.positions[tx.accountID] = bySymbol
		}
		bySymbol[symbol] = p
	}

	for _, id := range tx.orderSeq {
		staged := tx.orders[id]
		o := staged.order.Clone()
		if prev, ok := m.orders[id]; ok && prev.Status == domain.OrderStatusPending {
			m.pending.Delete(pendingEntry{CreatedAt: prev.CreatedAt, OrderID: id})
		}
		m.orders[id] = o
		if staged.inserted {
			m.byAccount[o.AccountID] = append(m.byAccount[o.AccountID], id)
		}
		if o.Status == domain.OrderStatusPending {
			m.pending.ReplaceOrInsert(pendingEntry{CreatedAt: o.CreatedAt, OrderID: id})
		}
	}
	return nil
}

type stagedOrder struct {
	order    *domain.Order
	inserted bool
}

// memTx stages writes for one account until commit.
type memTx struct {
	m         *Memory
	accountID string
	account   *domain.Account
	cashSet   bool
	positions map[string]domain.Position
	orders    map[string]*stagedOrder
	orderSeq  []string
}

func (tx *memTx) Account(_ context.Context) (*domain.Account, error) {
	if tx.account == nil {
		tx.m.mu.RLock()
		a, ok := tx.m.accounts[tx.accountID]
		tx.m.mu.RUnlock()
		if !ok {
			return nil, domain.ErrAccountNotFound
		}
		c := *a
		tx.account = &c
	}
	c := *tx.account
	return &c, nil
}

func (tx *memTx) SetCash(ctx context.Context, balance decimal.Decimal) error {
	if balance.IsNegative() {
		return domain.ErrInsufficientFunds
	}
	if _, err := tx.Account(ctx); err != nil {
		return err
	}
	tx.account.CashBalance = balance
	tx.account.UpdatedAt = time.Now().UTC()
	tx.cashSet = true
	return nil
}

func (tx *memTx) Position(_ context.Context, symbol string) (domain.Position, error) {
	if p, ok := tx.positions[symbol]; ok {
		return p, nil
	}
	tx.m.mu.RLock()
	p, ok := tx.m.positions[tx.accountID][symbol]
	tx.m.mu.RUnlock()
	if !ok {
		return domain.Position{AccountID: tx.accountID, Symbol: symbol}, nil
	}
	return p, nil
}

func (tx *memTx) SavePosition(_ context.Context, p domain.Position) error {
	p.AccountID = tx.accountID
	p.IsShort = p.Quantity < 0
	p.UpdatedAt = time.Now().UTC()
	tx.positions[p.Symbol] = p
	return nil
}

func (tx *memTx) Order(_ context.Context, orderID string) (*domain.Order, error) {
	if s, ok := tx.orders[orderID]; ok {
		return s.order.Clone(), nil
	}
	tx.m.mu.RLock()
	o, ok := tx.m.orders[orderID]
	tx.m.mu.RUnlock()
	if !ok || o.AccountID != tx.accountID {
		return nil, domain.ErrOrderNotFound
	}
	return o.Clone(), nil
}

func (tx *memTx) InsertOrder(_ context.Context, o *domain.Order) error {
	c := o.Clone()
	c.AccountID = tx.accountID
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = c.CreatedAt
	}
	tx.stage(c, true)
	return nil
}

func (tx *memTx) CompleteOrder(ctx context.Context, orderID string, execPrice decimal.Decimal, at time.Time) error {
	o, err := tx.pendingOrder(ctx, orderID)
	if err != nil {
		return err
	}
	o.Status = domain.OrderStatusCompleted
	o.Price = execPrice
	o.ExecutionPrice = domain.NullPrice(execPrice)
	o.ExecutedAt = &at
	o.UpdatedAt = at
	tx.stage(o, false)
	return nil
}

func (tx *memTx) CancelOrder(ctx context.Context, orderID, reason string, at time.Time) error {
	o, err := tx.pendingOrder(ctx, orderID)
	if err != nil {
		return err
	}
	o.Status = domain.OrderStatusCancelled
	o.CancelReason = reason
	o.CancelledAt = &at
	o.UpdatedAt = at
	tx.stage(o, false)
	return nil
}

func (tx *memTx) PendingSiblings(ctx context.Context, parentID, exceptID string) ([]*domain.Order, error) {
	if parentID == "" {
		return nil, nil
	}
	tx.m.mu.RLock()
	ids := append([]string(nil), tx.m.byAccount[tx.accountID]...)
	tx.m.mu.RUnlock()
	for _, id := range tx.orderSeq {
		if tx.orders[id].inserted {
			ids = append(ids, id)
		}
	}

	var result []*domain.Order
	for _, id := range ids {
		if id == exceptID {
			continue
		}
		o, err := tx.Order(ctx, id)
		if err != nil {
			return nil, err
		}
		if o.ParentOrderID == parentID && o.Status == domain.OrderStatusPending {
			result = append(result, o)
		}
	}
	return result, nil
}

func (tx *memTx) CancelSiblings(ctx context.Context, parentID, exceptID, reason string, at time.Time) ([]*domain.Order, error) {
	siblings, err := tx.PendingSiblings(ctx, parentID, exceptID)
	if err != nil {
		return nil, err
	}
	cancelled := make([]*domain.Order, 0, len(siblings))
	for _, s := range siblings {
		if err := tx.CancelOrder(ctx, s.ID, reason, at); err != nil {
			return nil, err
		}
		o, _ := tx.Order(ctx, s.ID)
		cancelled = append(cancelled, o)
	}
	return cancelled, nil
}

func (tx *memTx) pendingOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	o, err := tx.Order(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.Status != domain.OrderStatusPending {
		return nil, domain.ErrStateConflict
	}
	return o, nil
}

func (tx *memTx) stage(o *domain.Order, inserted bool) {
	if s, ok := tx.orders[o.ID]; ok {
		s.order = o
		return
	}
	tx.orders[o.ID] = &stagedOrder{order: o, inserted: inserted}
	tx.orderSeq = append(tx.orderSeq, o.ID)
}
