package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/poolwise/poolmarket/internal/domain"
	"github.com/poolwise/poolmarket/internal/settle"
)

// LedgerStore implements domain.LedgerStore using PostgreSQL. Mutations lock
// the market row with SELECT ... FOR UPDATE so that pool updates, claimed
// flags, fee accrual, and account movements commit as one unit.
type LedgerStore struct {
	pool *pgxpool.Pool
}

// NewLedgerStore creates a LedgerStore backed by the given connection pool.
func NewLedgerStore(pool *pgxpool.Pool) *LedgerStore {
	return &LedgerStore{pool: pool}
}

const marketColumns = `
	id, type, question, creator, created_at, resolution_time,
	status, winning_option, total_pool, pool_yes, pool_no,
	data_source_id, comparator, threshold, threshold_token`

func scanMarket(row pgx.Row) (domain.Market, error) {
	var (
		m                           domain.Market
		id, creator, comp, tokenHex string
		status, mtype               string
	)
	err := row.Scan(
		&id, &mtype, &m.Question, &creator, &m.CreatedAt, &m.ResolutionTime,
		&status, &m.WinningOption, &m.TotalPool, &m.OptionPools[0], &m.OptionPools[1],
		&m.DataSourceID, &comp, &m.Threshold, &tokenHex,
	)
	if err != nil {
		return domain.Market{}, err
	}
	m.ID = common.HexToHash(id)
	m.Type = domain.MarketType(mtype)
	m.Creator = common.HexToAddress(creator)
	m.Status = domain.MarketStatus(status)
	m.Comparator = domain.Comparator(comp)
	m.ThresholdToken = common.HexToAddress(tokenHex)
	return m, nil
}

func (s *LedgerStore) CreateMarket(ctx context.Context, m domain.Market) error {
	const query = `
		INSERT INTO markets (
			id, type, question, creator, created_at, resolution_time,
			status, winning_option, total_pool, pool_yes, pool_no,
			data_source_id, comparator, threshold, threshold_token
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, 0, 0, 0, 0,
			$8, $9, $10, $11
		)`

	_, err := s.pool.Exec(ctx, query,
		m.ID.Hex(), string(m.Type), m.Question, m.Creator.Hex(),
		m.CreatedAt, m.ResolutionTime, string(m.Status),
		m.DataSourceID, string(m.Comparator), m.Threshold, m.ThresholdToken.Hex(),
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" { // unique_violation
			return domain.ErrDuplicateMarket
		}
		return fmt.Errorf("postgres: create market %s: %w", m.ID.Hex(), err)
	}
	return nil
}

func (s *LedgerStore) GetMarket(ctx context.Context, id common.Hash) (domain.Market, error) {
	query := `SELECT ` + marketColumns + ` FROM markets WHERE id = $1`

	m, err := scanMarket(s.pool.QueryRow(ctx, query, id.Hex()))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Market{}, domain.ErrMarketNotFound
		}
		return domain.Market{}, fmt.Errorf("postgres: get market %s: %w", id.Hex(), err)
	}
	return m, nil
}

func (s *LedgerStore) ListActive(ctx context.Context, opts domain.ListOpts) ([]domain.Market, error) {
	query := `SELECT ` + marketColumns + `
		FROM markets
		WHERE status = 'active'
		ORDER BY created_at
		LIMIT $1 OFFSET $2`

	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.pool.Query(ctx, query, limit, opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("postgres: list active markets: %w", err)
	}
	defer rows.Close()

	var markets []domain.Market
	for rows.Next() {
		m, err := scanMarket(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan market: %w", err)
		}
		markets = append(markets, m)
	}
	return markets, rows.Err()
}

// ListTerminalBefore returns resolved and cancelled markets whose resolution
// time is strictly before the cutoff, oldest first. The archiver reads
// through this.
func (s *LedgerStore) ListTerminalBefore(ctx context.Context, before time.Time) ([]domain.Market, error) {
	query := `SELECT ` + marketColumns + `
		FROM markets
		WHERE status IN ('resolved', 'cancelled') AND resolution_time < $1
		ORDER BY created_at`

	rows, err := s.pool.Query(ctx, query, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list terminal markets: %w", err)
	}
	defer rows.Close()

	var markets []domain.Market
	for rows.Next() {
		m, err := scanMarket(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan market: %w", err)
		}
		markets = append(markets, m)
	}
	return markets, rows.Err()
}

func (s *LedgerStore) CountMarkets(ctx context.Context) (int64, error) {
	var count int64
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM markets`).Scan(&count); err != nil {
		return 0, fmt.Errorf("postgres: count markets: %w", err)
	}
	return count, nil
}

// lockMarket loads a market row FOR UPDATE inside the given transaction.
func lockMarket(ctx context.Context, tx pgx.Tx, id common.Hash) (domain.Market, error) {
	query := `SELECT ` + marketColumns + ` FROM markets WHERE id = $1 FOR UPDATE`

	m, err := scanMarket(tx.QueryRow(ctx, query, id.Hex()))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Market{}, domain.ErrMarketNotFound
		}
		return domain.Market{}, fmt.Errorf("postgres: lock market %s: %w", id.Hex(), err)
	}
	return m, nil
}

func (s *LedgerStore) PlaceBet(ctx context.Context, bet domain.Bet) (domain.Bet, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return domain.Bet{}, fmt.Errorf("postgres: begin place bet: %w", err)
	}
	defer tx.Rollback(ctx)

	m, err := lockMarket(ctx, tx, bet.MarketID)
	if err != nil {
		return domain.Bet{}, err
	}
	if m.Status != domain.MarketStatusActive {
		return domain.Bet{}, domain.ErrMarketNotActive
	}

	// Debit the bettor. The balance >= amount guard plus the CHECK
	// constraint makes overdrafts impossible.
	tag, err := tx.Exec(ctx,
		`UPDATE accounts SET balance = balance - $2 WHERE address = $1 AND balance >= $2`,
		bet.Bettor.Hex(), bet.Amount,
	)
	if err != nil {
		return domain.Bet{}, fmt.Errorf("postgres: debit %s: %w", bet.Bettor.Hex(), err)
	}
	if tag.RowsAffected() == 0 {
		return domain.Bet{}, domain.ErrInsufficientFunds
	}

	err = tx.QueryRow(ctx,
		`INSERT INTO bets (market_id, bettor, option, amount, placed_at, claimed)
		 VALUES ($1, $2, $3, $4, $5, FALSE)
		 RETURNING id`,
		bet.MarketID.Hex(), bet.Bettor.Hex(), bet.Option, bet.Amount, bet.PlacedAt,
	).Scan(&bet.ID)
	if err != nil {
		return domain.Bet{}, fmt.Errorf("postgres: insert bet: %w", err)
	}

	poolColumn := "pool_yes"
	if bet.Option == domain.OptionNo {
		poolColumn = "pool_no"
	}
	_, err = tx.Exec(ctx,
		`UPDATE markets SET total_pool = total_pool + $2, `+poolColumn+` = `+poolColumn+` + $2 WHERE id = $1`,
		bet.MarketID.Hex(), bet.Amount,
	)
	if err != nil {
		return domain.Bet{}, fmt.Errorf("postgres: update pools for %s: %w", bet.MarketID.Hex(), err)
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.Bet{}, fmt.Errorf("postgres: commit place bet: %w", err)
	}
	bet.Claimed = false
	return bet, nil
}

func (s *LedgerStore) ResolveMarket(ctx context.Context, id common.Hash, winningOption int) error {
	return s.transition(ctx, id, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			`UPDATE markets SET status = 'resolved', winning_option = $2 WHERE id = $1`,
			id.Hex(), winningOption,
		)
		return err
	})
}

func (s *LedgerStore) CancelMarket(ctx context.Context, id common.Hash) error {
	return s.transition(ctx, id, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			`UPDATE markets SET status = 'cancelled' WHERE id = $1`, id.Hex(),
		)
		return err
	})
}

// transition applies a terminal status change after verifying, under the row
// lock, that the market is still active. Whichever of resolve/cancel commits
// first wins; the other fails the precondition here.
func (s *LedgerStore) transition(ctx context.Context, id common.Hash, apply func(pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin transition: %w", err)
	}
	defer tx.Rollback(ctx)

	m, err := lockMarket(ctx, tx, id)
	if err != nil {
		return err
	}
	if m.Status != domain.MarketStatusActive {
		return domain.ErrMarketNotActive
	}
	if err := apply(tx); err != nil {
		return fmt.Errorf("postgres: transition market %s: %w", id.Hex(), err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit transition: %w", err)
	}
	return nil
}

func scanBet(row pgx.Row) (domain.Bet, error) {
	var (
		b                domain.Bet
		marketID, bettor string
	)
	if err := row.Scan(&b.ID, &marketID, &bettor, &b.Option, &b.Amount, &b.PlacedAt, &b.Claimed); err != nil {
		return domain.Bet{}, err
	}
	b.MarketID = common.HexToHash(marketID)
	b.Bettor = common.HexToAddress(bettor)
	return b, nil
}

const betColumns = `id, market_id, bettor, option, amount, placed_at, claimed`

func (s *LedgerStore) ListBets(ctx context.Context, marketID common.Hash, opts domain.ListOpts) ([]domain.Bet, error) {
	query := `SELECT ` + betColumns + ` FROM bets WHERE market_id = $1 ORDER BY id LIMIT $2 OFFSET $3`

	limit := opts.Limit
	if limit <= 0 {
		limit = 500
	}

	rows, err := s.pool.Query(ctx, query, marketID.Hex(), limit, opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("postgres: list bets for %s: %w", marketID.Hex(), err)
	}
	defer rows.Close()

	return collectBets(rows)
}

func (s *LedgerStore) ListBettorBets(ctx context.Context, marketID common.Hash, bettor common.Address) ([]domain.Bet, error) {
	query := `SELECT ` + betColumns + ` FROM bets WHERE market_id = $1 AND bettor = $2 ORDER BY id`

	rows, err := s.pool.Query(ctx, query, marketID.Hex(), bettor.Hex())
	if err != nil {
		return nil, fmt.Errorf("postgres: list bettor bets for %s: %w", marketID.Hex(), err)
	}
	defer rows.Close()

	return collectBets(rows)
}

func collectBets(rows pgx.Rows) ([]domain.Bet, error) {
	var bets []domain.Bet
	for rows.Next() {
		b, err := scanBet(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan bet: %w", err)
		}
		bets = append(bets, b)
	}
	return bets, rows.Err()
}

func (s *LedgerStore) ClaimWinnings(ctx context.Context, marketID common.Hash, bettor common.Address, feeBps int64) (domain.Settlement, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return domain.Settlement{}, fmt.Errorf("postgres: begin claim: %w", err)
	}
	defer tx.Rollback(ctx)

	m, err := lockMarket(ctx, tx, marketID)
	if err != nil {
		return domain.Settlement{}, err
	}
	if m.Status != domain.MarketStatusResolved {
		return domain.Settlement{}, domain.ErrMarketNotResolved
	}

	bets, err := lockBettorBets(ctx, tx, marketID, bettor)
	if err != nil {
		return domain.Settlement{}, err
	}
	if len(bets) == 0 {
		return domain.Settlement{}, domain.ErrNoBetsFound
	}

	st := domain.Settlement{MarketID: marketID, Bettor: bettor}
	var claimedIDs []int64
	for _, b := range bets {
		if b.Claimed || b.Option != m.WinningOption {
			continue
		}
		payout, fee := settle.Payout(b.Amount, m.OptionPools, m.WinningOption, feeBps)
		st.Payout += payout
		st.Fee += fee
		claimedIDs = append(claimedIDs, b.ID)
	}
	if st.Payout == 0 {
		return domain.Settlement{}, domain.ErrNoWinningsToClaim
	}
	st.Bets = len(claimedIDs)

	// Mark claimed before the credit lands; both are in the same tx, so a
	// concurrent claim either sees the committed marks or retries on the
	// row lock.
	if _, err := tx.Exec(ctx,
		`UPDATE bets SET claimed = TRUE WHERE id = ANY($1)`, claimedIDs,
	); err != nil {
		return domain.Settlement{}, fmt.Errorf("postgres: mark bets claimed: %w", err)
	}

	if st.Fee > 0 {
		if _, err := tx.Exec(ctx,
			`UPDATE ledger_params SET collected_fees = collected_fees + $1 WHERE id = 1`, st.Fee,
		); err != nil {
			return domain.Settlement{}, fmt.Errorf("postgres: accrue fees: %w", err)
		}
	}

	if err := credit(ctx, tx, bettor, st.Payout); err != nil {
		return domain.Settlement{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.Settlement{}, fmt.Errorf("postgres: commit claim: %w", err)
	}
	return st, nil
}

func (s *LedgerStore) RefundBets(ctx context.Context, marketID common.Hash, bettor common.Address) (domain.Settlement, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return domain.Settlement{}, fmt.Errorf("postgres: begin refund: %w", err)
	}
	defer tx.Rollback(ctx)

	m, err := lockMarket(ctx, tx, marketID)
	if err != nil {
		return domain.Settlement{}, err
	}
	if m.Status != domain.MarketStatusCancelled {
		return domain.Settlement{}, domain.ErrMarketNotCancelled
	}

	bets, err := lockBettorBets(ctx, tx, marketID, bettor)
	if err != nil {
		return domain.Settlement{}, err
	}
	if len(bets) == 0 {
		return domain.Settlement{}, domain.ErrNoBetsFound
	}

	st := domain.Settlement{MarketID: marketID, Bettor: bettor}
	var refundedIDs []int64
	for _, b := range bets {
		if b.Claimed {
			continue
		}
		st.Payout += b.Amount
		refundedIDs = append(refundedIDs, b.ID)
	}
	if len(refundedIDs) == 0 {
		return domain.Settlement{}, domain.ErrNoRefundsAvailable
	}
	st.Bets = len(refundedIDs)

	if _, err := tx.Exec(ctx,
		`UPDATE bets SET claimed = TRUE WHERE id = ANY($1)`, refundedIDs,
	); err != nil {
		return domain.Settlement{}, fmt.Errorf("postgres: mark bets refunded: %w", err)
	}

	if err := credit(ctx, tx, bettor, st.Payout); err != nil {
		return domain.Settlement{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.Settlement{}, fmt.Errorf("postgres: commit refund: %w", err)
	}
	return st, nil
}

// lockBettorBets loads all of a bettor's bets on a market FOR UPDATE.
func lockBettorBets(ctx context.Context, tx pgx.Tx, marketID common.Hash, bettor common.Address) ([]domain.Bet, error) {
	query := `SELECT ` + betColumns + ` FROM bets WHERE market_id = $1 AND bettor = $2 ORDER BY id FOR UPDATE`

	rows, err := tx.Query(ctx, query, marketID.Hex(), bettor.Hex())
	if err != nil {
		return nil, fmt.Errorf("postgres: lock bets for %s: %w", marketID.Hex(), err)
	}
	defer rows.Close()

	return collectBets(rows)
}

// credit upserts an account row, adding amount to its balance.
func credit(ctx context.Context, tx pgx.Tx, addr common.Address, amount int64) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO accounts (address, balance) VALUES ($1, $2)
		 ON CONFLICT (address) DO UPDATE SET balance = accounts.balance + EXCLUDED.balance`,
		addr.Hex(), amount,
	)
	if err != nil {
		return fmt.Errorf("postgres: credit %s: %w", addr.Hex(), err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.LedgerStore = (*LedgerStore)(nil)
