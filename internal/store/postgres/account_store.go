package postgres

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/poolwise/poolmarket/internal/domain"
)

// AccountStore implements domain.AccountStore over the accounts table. Bets
// and claims move balances inside the ledger transactions; this store serves
// reads plus external deposits and withdrawals.
type AccountStore struct {
	pool *pgxpool.Pool
}

// NewAccountStore creates an AccountStore backed by the given connection pool.
func NewAccountStore(pool *pgxpool.Pool) *AccountStore {
	return &AccountStore{pool: pool}
}

func (s *AccountStore) Balance(ctx context.Context, addr common.Address) (int64, error) {
	var balance int64
	err := s.pool.QueryRow(ctx,
		`SELECT COALESCE((SELECT balance FROM accounts WHERE address = $1), 0)`,
		addr.Hex(),
	).Scan(&balance)
	if err != nil {
		return 0, fmt.Errorf("postgres: balance %s: %w", addr.Hex(), err)
	}
	return balance, nil
}

func (s *AccountStore) Deposit(ctx context.Context, addr common.Address, amount int64) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO accounts (address, balance) VALUES ($1, $2)
		 ON CONFLICT (address) DO UPDATE SET balance = accounts.balance + EXCLUDED.balance`,
		addr.Hex(), amount,
	)
	if err != nil {
		return fmt.Errorf("postgres: deposit to %s: %w", addr.Hex(), err)
	}
	return nil
}

func (s *AccountStore) Withdraw(ctx context.Context, addr common.Address, amount int64) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE accounts SET balance = balance - $2 WHERE address = $1 AND balance >= $2`,
		addr.Hex(), amount,
	)
	if err != nil {
		return fmt.Errorf("postgres: withdraw from %s: %w", addr.Hex(), err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrInsufficientFunds
	}
	return nil
}

// Compile-time interface check.
var _ domain.AccountStore = (*AccountStore)(nil)
