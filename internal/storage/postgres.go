// internal/storage/postgres.go
//
// PostgresStore 為 bank.Store 的 PostgreSQL 實作（database/sql + pgx stdlib driver）。
// 單一 UPDATE / SELECT 由資料庫保證原子性；「先讀後寫」不包在交易內，
// 與其他 Store 一樣把協調責任留給提款策略。
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"ledger/internal/bank"
)

var _ bank.CASStore = (*PostgresStore)(nil)

const schema = `CREATE TABLE IF NOT EXISTS ledger_accounts (
	id      TEXT PRIMARY KEY,
	balance BIGINT NOT NULL CHECK (balance >= 0)
)`

// check_violation
const pgCheckViolation = "23514"

// PostgresStore 以 ledger_accounts 資料表保存餘額。
type PostgresStore struct {
	db *sql.DB
}

// OpenPostgres 以 DSN 開啟連線並確認可用。
func OpenPostgres(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// NewPostgresStore 建立 store 並確保資料表存在。
func NewPostgresStore(ctx context.Context, db *sql.DB) (*PostgresStore, error) {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

// Balance 回傳目前餘額。
func (s *PostgresStore) Balance(ctx context.Context, id string) (int64, error) {
	var bal int64
	err := s.db.QueryRowContext(ctx, `SELECT balance FROM ledger_accounts WHERE id = $1`, id).Scan(&bal)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, bank.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("select balance %s: %w", id, err)
	}
	return bal, nil
}

// SetBalance 覆寫既有帳戶的餘額。
func (s *PostgresStore) SetBalance(ctx context.Context, id string, balance int64) error {
	if balance < 0 {
		return bank.ErrInvalidBalance
	}
	res, err := s.db.ExecContext(ctx, `UPDATE ledger_accounts SET balance = $1 WHERE id = $2`, balance, id)
	if err != nil {
		return translatePgErr("update balance", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update balance %s: %w", id, err)
	}
	if n == 0 {
		return bank.ErrNotFound
	}
	return nil
}

// Create 建立帳戶。
func (s *PostgresStore) Create(ctx context.Context, id string, balance int64) error {
	if balance < 0 {
		return bank.ErrInvalidBalance
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO ledger_accounts (id, balance) VALUES ($1, $2) ON CONFLICT (id) DO NOTHING`, id, balance)
	if err != nil {
		return translatePgErr("insert account", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("insert account %s: %w", id, err)
	}
	if n == 0 {
		return bank.ErrAccountExists
	}
	return nil
}

// CompareAndSet 以條件式 UPDATE 實作；0 筆更新時再查一次以區分「不存在」與「值已改變」。
func (s *PostgresStore) CompareAndSet(ctx context.Context, id string, expected, next int64) (bool, error) {
	if next < 0 {
		return false, bank.ErrInvalidBalance
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE ledger_accounts SET balance = $1 WHERE id = $2 AND balance = $3`, next, id, expected)
	if err != nil {
		return false, translatePgErr("compare-and-set", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("compare-and-set %s: %w", id, err)
	}
	if n == 1 {
		return true, nil
	}
	if _, err := s.Balance(ctx, id); err != nil {
		return false, err
	}
	return false, nil
}

func translatePgErr(op, id string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgCheckViolation {
		return bank.ErrInvalidBalance
	}
	return fmt.Errorf("%s %s: %w", op, id, err)
}
