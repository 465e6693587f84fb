package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/poolwise/poolmarket/internal/domain"
)

// AdminStore implements domain.AdminStore: the singleton ledger_params row,
// the resolver set, and the collected-fee accumulator.
type AdminStore struct {
	pool *pgxpool.Pool
}

// NewAdminStore creates an AdminStore backed by the given connection pool.
func NewAdminStore(pool *pgxpool.Pool) *AdminStore {
	return &AdminStore{pool: pool}
}

func (s *AdminStore) GetParams(ctx context.Context) (domain.Params, error) {
	var p domain.Params
	err := s.pool.QueryRow(ctx,
		`SELECT fee_bps, min_bet, max_bet FROM ledger_params WHERE id = 1`,
	).Scan(&p.FeeBps, &p.MinBet, &p.MaxBet)
	if err != nil {
		return domain.Params{}, fmt.Errorf("postgres: get params: %w", err)
	}
	return p, nil
}

func (s *AdminStore) SetFeeBps(ctx context.Context, feeBps int64) error {
	if _, err := s.pool.Exec(ctx,
		`UPDATE ledger_params SET fee_bps = $1 WHERE id = 1`, feeBps,
	); err != nil {
		return fmt.Errorf("postgres: set fee bps: %w", err)
	}
	return nil
}

func (s *AdminStore) SetBetLimits(ctx context.Context, minBet, maxBet int64) error {
	if _, err := s.pool.Exec(ctx,
		`UPDATE ledger_params SET min_bet = $1, max_bet = $2 WHERE id = 1`, minBet, maxBet,
	); err != nil {
		return fmt.Errorf("postgres: set bet limits: %w", err)
	}
	return nil
}

func (s *AdminStore) SetResolver(ctx context.Context, resolver common.Address, authorized bool) error {
	var err error
	if authorized {
		_, err = s.pool.Exec(ctx,
			`INSERT INTO resolvers (address) VALUES ($1) ON CONFLICT (address) DO NOTHING`,
			resolver.Hex(),
		)
	} else {
		_, err = s.pool.Exec(ctx,
			`DELETE FROM resolvers WHERE address = $1`, resolver.Hex(),
		)
	}
	if err != nil {
		return fmt.Errorf("postgres: set resolver %s: %w", resolver.Hex(), err)
	}
	return nil
}

func (s *AdminStore) IsResolver(ctx context.Context, resolver common.Address) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM resolvers WHERE address = $1)`, resolver.Hex(),
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("postgres: check resolver %s: %w", resolver.Hex(), err)
	}
	return exists, nil
}

func (s *AdminStore) ListResolvers(ctx context.Context) ([]common.Address, error) {
	rows, err := s.pool.Query(ctx, `SELECT address FROM resolvers ORDER BY authorized_at`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list resolvers: %w", err)
	}
	defer rows.Close()

	var resolvers []common.Address
	for rows.Next() {
		var hex string
		if err := rows.Scan(&hex); err != nil {
			return nil, fmt.Errorf("postgres: scan resolver: %w", err)
		}
		resolvers = append(resolvers, common.HexToAddress(hex))
	}
	return resolvers, rows.Err()
}

func (s *AdminStore) CollectedFees(ctx context.Context) (int64, error) {
	var fees int64
	err := s.pool.QueryRow(ctx,
		`SELECT collected_fees FROM ledger_params WHERE id = 1`,
	).Scan(&fees)
	if err != nil {
		return 0, fmt.Errorf("postgres: get collected fees: %w", err)
	}
	return fees, nil
}

func (s *AdminStore) WithdrawFees(ctx context.Context, to common.Address) (int64, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("postgres: begin withdraw fees: %w", err)
	}
	defer tx.Rollback(ctx)

	var fees int64
	err = tx.QueryRow(ctx,
		`SELECT collected_fees FROM ledger_params WHERE id = 1 FOR UPDATE`,
	).Scan(&fees)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, domain.ErrNoFeesToWithdraw
		}
		return 0, fmt.Errorf("postgres: lock collected fees: %w", err)
	}
	if fees == 0 {
		return 0, domain.ErrNoFeesToWithdraw
	}

	if _, err := tx.Exec(ctx,
		`UPDATE ledger_params SET collected_fees = 0 WHERE id = 1`,
	); err != nil {
		return 0, fmt.Errorf("postgres: zero collected fees: %w", err)
	}
	if err := credit(ctx, tx, to, fees); err != nil {
		return 0, err
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("postgres: commit withdraw fees: %w", err)
	}
	return fees, nil
}

// Compile-time interface check.
var _ domain.AdminStore = (*AdminStore)(nil)
