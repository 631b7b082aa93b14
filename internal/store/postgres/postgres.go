// Package postgres implements store.Ledger on PostgreSQL.
//
// WithAccount opens a transaction and locks the account row with
// SELECT ... FOR UPDATE, so all writers of one account queue behind each
// other. Terminal order transitions are conditional updates on
// status = 'PENDING'.
package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/efreitasn/tradecore/internal/domain"
	"github.com/efreitasn/tradecore/internal/store"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

//go:embed schema.sql
var schema string

const orderColumns = `id, account_id, symbol, side, exec_kind, category, quantity,
	price::text, limit_price::text, stop_loss_price::text, target_price::text, execution_price::text,
	parent_order_id, reserved, reserved_cost::text, status, cancel_reason,
	created_at, updated_at, executed_at, cancelled_at`

// Store is a PostgreSQL-backed ledger.
type Store struct {
	pool *pgxpool.Pool
}

var _ store.Ledger = (*Store)(nil)

// New connects to the database at dsn and verifies the connection.
func New(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Migrate creates the ledger tables if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

func (s *Store) CreateAccount(ctx context.Context, a *domain.Account) error {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO accounts (id, cash_balance, created_at, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO NOTHING
	`, a.ID, a.CashBalance.String(), a.CreatedAt, a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert account: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrAccountExists
	}
	return nil
}

func (s *Store) GetAccount(ctx context.Context, accountID string) (*domain.Account, error) {
	return scanAccount(s.pool.QueryRow(ctx, `
		SELECT id, cash_balance::text, created_at, updated_at FROM accounts WHERE id = $1
	`, accountID))
}

func (s *Store) GetOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	o, err := scanOrder(s.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, orderID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrOrderNotFound
	}
	return o, err
}

func (s *Store) ListOrders(ctx context.Context, accountID string) ([]*domain.Order, error) {
	return queryOrders(ctx, s.pool, `
		SELECT `+orderColumns+` FROM orders WHERE account_id = $1 ORDER BY created_at DESC, id DESC
	`, accountID)
}

func (s *Store) ListPositions(ctx context.Context, accountID string) ([]domain.Position, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT account_id, symbol, quantity, average_cost::text, is_short, updated_at
		FROM positions WHERE account_id = $1 ORDER BY symbol
	`, accountID)
	if err != nil {
		return nil, fmt.Errorf("query positions: %w", err)
	}
	defer rows.Close()

	var result []domain.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, p)
	}
	return result, rows.Err()
}

func (s *Store) PendingOrders(ctx context.Context) ([]*domain.Order, error) {
	return queryOrders(ctx, s.pool, `
		SELECT `+orderColumns+` FROM orders WHERE status = 'PENDING' ORDER BY created_at, id
	`)
}

func (s *Store) WithAccount(ctx context.Context, accountID string, fn func(store.Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	a, err := scanAccount(tx.QueryRow(ctx, `
		SELECT id, cash_balance::text, created_at, updated_at FROM accounts WHERE id = $1 FOR UPDATE
	`, accountID))
	if err != nil {
		return err
	}

	if err := fn(&pgTx{tx: tx, account: a}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// pgTx is a store.Tx over one open transaction holding the account row lock.
type pgTx struct {
	tx      pgx.Tx
	account *domain.Account
}

func (t *pgTx) Account(_ context.Context) (*domain.Account, error) {
	c := *t.account
	return &c, nil
}

func (t *pgTx) SetCash(ctx context.Context, balance decimal.Decimal) error {
	if balance.IsNegative() {
		return domain.ErrInsufficientFunds
	}
	now := time.Now().UTC()
	if _, err := t.tx.Exec(ctx, `
		UPDATE accounts SET cash_balance = $1, updated_at = $2 WHERE id = $3
	`, balance.String(), now, t.account.ID); err != nil {
		return fmt.Errorf("update cash: %w", err)
	}
	t.account.CashBalance = balance
	t.account.UpdatedAt = now
	return nil
}

func (t *pgTx) Position(ctx context.Context, symbol string) (domain.Position, error) {
	p, err := scanPosition(t.tx.QueryRow(ctx, `
		SELECT account_id, symbol, quantity, average_cost::text, is_short, updated_at
		FROM positions WHERE account_id = $1 AND symbol = $2
	`, t.account.ID, symbol))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Position{AccountID: t.account.ID, Symbol: symbol}, nil
	}
	return p, err
}

func (t *pgTx) SavePosition(ctx context.Context, p domain.Position) error {
	if p.IsFlat() {
		if _, err := t.tx.Exec(ctx, `
			DELETE FROM positions WHERE account_id = $1 AND symbol = $2
		`, t.account.ID, p.Symbol); err != nil {
			return fmt.Errorf("delete position: %w", err)
		}
		return nil
	}
	if _, err := t.tx.Exec(ctx, `
		INSERT INTO positions (account_id, symbol, quantity, average_cost, is_short, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (account_id, symbol) DO UPDATE
		SET quantity = EXCLUDED.quantity,
		    average_cost = EXCLUDED.average_cost,
		    is_short = EXCLUDED.is_short,
		    updated_at = EXCLUDED.updated_at
	`, t.account.ID, p.Symbol, p.Quantity, p.AverageCost.String(), p.Quantity < 0, time.Now().UTC()); err != nil {
		return fmt.Errorf("upsert position: %w", err)
	}
	return nil
}

func (t *pgTx) Order(ctx context.Context, orderID string) (*domain.Order, error) {
	o, err := scanOrder(t.tx.QueryRow(ctx, `
		SELECT `+orderColumns+` FROM orders WHERE id = $1 AND account_id = $2
	`, orderID, t.account.ID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrOrderNotFound
	}
	return o, err
}

func (t *pgTx) InsertOrder(ctx context.Context, o *domain.Order) error {
	updatedAt := o.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = o.CreatedAt
	}
	_, err := t.tx.Exec(ctx, `
		INSERT INTO orders (id, account_id, symbol, side, exec_kind, category, quantity,
			price, limit_price, stop_loss_price, target_price, execution_price,
			parent_order_id, reserved, reserved_cost, status, cancel_reason,
			created_at, updated_at, executed_at, cancelled_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)
	`, o.ID, t.account.ID, o.Symbol, string(o.Side), string(o.ExecKind), string(o.Category), o.Quantity,
		o.Price.String(), nullText(o.LimitPrice), nullText(o.StopLossPrice), nullText(o.TargetPrice), nullText(o.ExecutionPrice),
		o.ParentOrderID, o.Reserved, o.ReservedCost.String(), string(o.Status), o.CancelReason,
		o.CreatedAt, updatedAt, o.ExecutedAt, o.CancelledAt)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

func (t *pgTx) CompleteOrder(ctx context.Context, orderID string, execPrice decimal.Decimal, at time.Time) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE orders
		SET status = 'COMPLETED', price = $1, execution_price = $1, executed_at = $2, updated_at = $2
		WHERE id = $3 AND account_id = $4 AND status = 'PENDING'
	`, execPrice.String(), at, orderID, t.account.ID)
	if err != nil {
		return fmt.Errorf("complete order: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrStateConflict
	}
	return nil
}

func (t *pgTx) CancelOrder(ctx context.Context, orderID, reason string, at time.Time) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE orders
		SET status = 'CANCELLED', cancel_reason = $1, cancelled_at = $2, updated_at = $2
		WHERE id = $3 AND account_id = $4 AND status = 'PENDING'
	`, reason, at, orderID, t.account.ID)
	if err != nil {
		return fmt.Errorf("cancel order: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrStateConflict
	}
	return nil
}

func (t *pgTx) PendingSiblings(ctx context.Context, parentID, exceptID string) ([]*domain.Order, error) {
	if parentID == "" {
		return nil, nil
	}
	return queryOrders(ctx, t.tx, `
		SELECT `+orderColumns+` FROM orders
		WHERE account_id = $1 AND parent_order_id = $2 AND id <> $3 AND status = 'PENDING'
		ORDER BY created_at, id
	`, t.account.ID, parentID, exceptID)
}

func (t *pgTx) CancelSiblings(ctx context.Context, parentID, exceptID, reason string, at time.Time) ([]*domain.Order, error) {
	if parentID == "" {
		return nil, nil
	}
	return queryOrders(ctx, t.tx, `
		UPDATE orders
		SET status = 'CANCELLED', cancel_reason = $4, cancelled_at = $5, updated_at = $5
		WHERE account_id = $1 AND parent_order_id = $2 AND id <> $3 AND status = 'PENDING'
		RETURNING `+orderColumns,
		t.account.ID, parentID, exceptID, reason, at)
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func queryOrders(ctx context.Context, q querier, sql string, args ...any) ([]*domain.Order, error) {
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	defer rows.Close()

	var result []*domain.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, o)
	}
	return result, rows.Err()
}

func scanAccount(row pgx.Row) (*domain.Account, error) {
	var (
		a    domain.Account
		cash string
	)
	if err := row.Scan(&a.ID, &cash, &a.CreatedAt, &a.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrAccountNotFound
		}
		return nil, fmt.Errorf("scan account: %w", err)
	}
	var err error
	if a.CashBalance, err = decimal.NewFromString(cash); err != nil {
		return nil, fmt.Errorf("parse cash balance: %w", err)
	}
	return &a, nil
}

func scanPosition(row pgx.Row) (domain.Position, error) {
	var (
		p   domain.Position
		avg string
	)
	if err := row.Scan(&p.AccountID, &p.Symbol, &p.Quantity, &avg, &p.IsShort, &p.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return p, err
		}
		return p, fmt.Errorf("scan position: %w", err)
	}
	var err error
	if p.AverageCost, err = decimal.NewFromString(avg); err != nil {
		return p, fmt.Errorf("parse average cost: %w", err)
	}
	return p, nil
}

func scanOrder(row pgx.Row) (*domain.Order, error) {
	var (
		o                              domain.Order
		side, kind, category, status   string
		price, reservedCost            string
		limit, stop, target, execution *string
	)
	err := row.Scan(&o.ID, &o.AccountID, &o.Symbol, &side, &kind, &category, &o.Quantity,
		&price, &limit, &stop, &target, &execution,
		&o.ParentOrderID, &o.Reserved, &reservedCost, &status, &o.CancelReason,
		&o.CreatedAt, &o.UpdatedAt, &o.ExecutedAt, &o.CancelledAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan order: %w", err)
	}
	o.Side = domain.Side(side)
	o.ExecKind = domain.ExecKind(kind)
	o.Category = domain.Category(category)
	o.Status = domain.OrderStatus(status)

	if o.Price, err = decimal.NewFromString(price); err != nil {
		return nil, fmt.Errorf("parse price: %w", err)
	}
	if o.ReservedCost, err = decimal.NewFromString(reservedCost); err != nil {
		return nil, fmt.Errorf("parse reserved cost: %w", err)
	}
	for _, f := range []struct {
		src *string
		dst *decimal.NullDecimal
	}{
		{limit, &o.LimitPrice},
		{stop, &o.StopLossPrice},
		{target, &o.TargetPrice},
		{execution, &o.ExecutionPrice},
	} {
		if f.src == nil {
			continue
		}
		d, err := decimal.NewFromString(*f.src)
		if err != nil {
			return nil, fmt.Errorf("parse order price: %w", err)
		}
		*f.dst = domain.NullPrice(d)
	}
	return &o, nil
}

func nullText(d decimal.NullDecimal) *string {
	if !d.Valid {
		return nil
	}
	s := d.Decimal.String()
	return &s
}
