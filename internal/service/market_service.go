package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/poolwise/poolmarket/internal/domain"
	"github.com/poolwise/poolmarket/internal/notify"
	"github.com/poolwise/poolmarket/internal/settle"
)

// MarketService drives the market lifecycle: creation while anyone may bet,
// and the two terminal transitions (resolve, cancel) with their
// authorization and timing rules.
type MarketService struct {
	ledger   domain.LedgerStore
	admin    domain.AdminStore
	cache    domain.MarketCache
	bus      domain.SignalBus
	locks    domain.LockManager
	notifier *notify.Notifier
	owner    common.Address
	logger   *slog.Logger
}

// NewMarketService creates a MarketService. cache, bus, and notifier may be
// nil; the service degrades to store-only operation.
func NewMarketService(
	ledger domain.LedgerStore,
	admin domain.AdminStore,
	cache domain.MarketCache,
	bus domain.SignalBus,
	locks domain.LockManager,
	notifier *notify.Notifier,
	owner common.Address,
	logger *slog.Logger,
) *MarketService {
	return &MarketService{
		ledger:   ledger,
		admin:    admin,
		cache:    cache,
		bus:      bus,
		locks:    locks,
		notifier: notifier,
		owner:    owner,
		logger:   logger.With(slog.String("component", "market_service")),
	}
}

// CreateMarketRequest carries everything a creator supplies for a new market.
type CreateMarketRequest struct {
	Creator        common.Address
	Type           domain.MarketType
	Question       string
	ResolutionTime time.Time

	// Resolver parameters, stored opaquely.
	DataSourceID   string
	Comparator     domain.Comparator
	Threshold      int64
	ThresholdToken common.Address
}

// CreateMarket validates the request, derives the content-addressed market
// ID, and inserts the market as active with zeroed pools.
func (s *MarketService) CreateMarket(ctx context.Context, req CreateMarketRequest) (domain.Market, error) {
	if strings.TrimSpace(req.Question) == "" {
		return domain.Market{}, domain.ErrEmptyQuestion
	}
	now := time.Now().UTC()
	if !req.ResolutionTime.After(now) {
		return domain.Market{}, domain.ErrInvalidResolutionTime
	}

	m := domain.Market{
		ID:             domain.DeriveMarketID(req.Creator, now, req.Question),
		Type:           req.Type,
		Question:       req.Question,
		Creator:        req.Creator,
		CreatedAt:      now,
		ResolutionTime: req.ResolutionTime.UTC(),
		Status:         domain.MarketStatusActive,
		DataSourceID:   req.DataSourceID,
		Comparator:     req.Comparator,
		Threshold:      req.Threshold,
		ThresholdToken: req.ThresholdToken,
	}

	if err := s.ledger.CreateMarket(ctx, m); err != nil {
		return domain.Market{}, fmt.Errorf("market_service: create %s: %w", m.ID.Hex(), err)
	}

	s.logger.InfoContext(ctx, "market created",
		slog.String("market_id", m.ID.Hex()),
		slog.String("creator", m.Creator.Hex()),
		slog.Time("resolution_time", m.ResolutionTime),
	)
	publish(ctx, s.bus, s.logger, domain.ChannelMarket, domain.NewEvent(domain.EventMarketCreated, m))
	return m, nil
}

// GetMarket retrieves a market by ID, cache first, ledger on a miss.
func (s *MarketService) GetMarket(ctx context.Context, id common.Hash) (domain.Market, error) {
	if s.cache != nil {
		if m, err := s.cache.Get(ctx, id); err == nil {
			return m, nil
		}
	}

	m, err := s.ledger.GetMarket(ctx, id)
	if err != nil {
		return domain.Market{}, fmt.Errorf("market_service: get %s: %w", id.Hex(), err)
	}

	if s.cache != nil {
		if cacheErr := s.cache.Set(ctx, m); cacheErr != nil {
			s.logger.WarnContext(ctx, "cache set failed",
				slog.String("market_id", id.Hex()),
				slog.String("error", cacheErr.Error()),
			)
		}
	}
	return m, nil
}

// ListActive returns active markets straight from the ledger.
func (s *MarketService) ListActive(ctx context.Context, opts domain.ListOpts) ([]domain.Market, error) {
	markets, err := s.ledger.ListActive(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("market_service: list active: %w", err)
	}
	return markets, nil
}

// Count returns the total number of markets ever created.
func (s *MarketService) Count(ctx context.Context) (int64, error) {
	count, err := s.ledger.CountMarkets(ctx)
	if err != nil {
		return 0, fmt.Errorf("market_service: count: %w", err)
	}
	return count, nil
}

// GetOdds returns the implied payout multiplier per option, 2.0x/2.0x on an
// empty market.
func (s *MarketService) GetOdds(ctx context.Context, id common.Hash) ([2]float64, error) {
	m, err := s.GetMarket(ctx, id)
	if err != nil {
		return [2]float64{}, err
	}
	return settle.Odds(m.OptionPools), nil
}

// ResolveMarket records the winning option decided by an authorized
// resolver. The caller must be in the resolver set or be the owner, the
// market must still be active, and the resolution time must have passed.
// The transition is terminal and freezes the pools.
func (s *MarketService) ResolveMarket(ctx context.Context, id common.Hash, winningOption int, caller common.Address) (domain.Market, error) {
	authorized, err := s.admin.IsResolver(ctx, caller)
	if err != nil {
		return domain.Market{}, fmt.Errorf("market_service: check resolver %s: %w", caller.Hex(), err)
	}
	if !authorized && caller != s.owner {
		return domain.Market{}, domain.ErrNotAuthorized
	}
	if !domain.ValidOption(winningOption) {
		return domain.Market{}, domain.ErrInvalidOption
	}

	m, err := s.ledger.GetMarket(ctx, id)
	if err != nil {
		return domain.Market{}, fmt.Errorf("market_service: resolve %s: %w", id.Hex(), err)
	}
	if m.Status != domain.MarketStatusActive {
		return domain.Market{}, domain.ErrMarketNotActive
	}
	if time.Now().UTC().Before(m.ResolutionTime) {
		return domain.Market{}, domain.ErrTooEarly
	}

	unlock, err := s.locks.Acquire(ctx, domain.MarketLockKey(id), 10*time.Second)
	if err != nil {
		return domain.Market{}, fmt.Errorf("market_service: lock %s: %w", id.Hex(), err)
	}
	defer unlock()

	if err := s.ledger.ResolveMarket(ctx, id, winningOption); err != nil {
		return domain.Market{}, fmt.Errorf("market_service: resolve %s: %w", id.Hex(), err)
	}
	s.invalidate(ctx, id)

	resolved, err := s.ledger.GetMarket(ctx, id)
	if err != nil {
		return domain.Market{}, fmt.Errorf("market_service: reload %s: %w", id.Hex(), err)
	}

	s.logger.InfoContext(ctx, "market resolved",
		slog.String("market_id", id.Hex()),
		slog.Int("winning_option", winningOption),
		slog.Int64("total_pool", resolved.TotalPool),
		slog.String("resolver", caller.Hex()),
	)
	publish(ctx, s.bus, s.logger, domain.ChannelMarket, domain.NewEvent(domain.EventMarketResolved, resolved))
	s.notify(ctx, domain.EventMarketResolved, "Market resolved",
		fmt.Sprintf("%s resolved to option %d with pool %d", id.Hex(), winningOption, resolved.TotalPool))
	return resolved, nil
}

// CancelMarket voids an active market, opening the refund path. Only the
// creator or the owner may cancel.
func (s *MarketService) CancelMarket(ctx context.Context, id common.Hash, caller common.Address) (domain.Market, error) {
	m, err := s.ledger.GetMarket(ctx, id)
	if err != nil {
		return domain.Market{}, fmt.Errorf("market_service: cancel %s: %w", id.Hex(), err)
	}
	if caller != m.Creator && caller != s.owner {
		return domain.Market{}, domain.ErrNotAuthorized
	}
	if m.Status != domain.MarketStatusActive {
		return domain.Market{}, domain.ErrMarketNotActive
	}

	unlock, err := s.locks.Acquire(ctx, domain.MarketLockKey(id), 10*time.Second)
	if err != nil {
		return domain.Market{}, fmt.Errorf("market_service: lock %s: %w", id.Hex(), err)
	}
	defer unlock()

	if err := s.ledger.CancelMarket(ctx, id); err != nil {
		return domain.Market{}, fmt.Errorf("market_service: cancel %s: %w", id.Hex(), err)
	}
	s.invalidate(ctx, id)

	cancelled, err := s.ledger.GetMarket(ctx, id)
	if err != nil {
		return domain.Market{}, fmt.Errorf("market_service: reload %s: %w", id.Hex(), err)
	}

	s.logger.InfoContext(ctx, "market cancelled",
		slog.String("market_id", id.Hex()),
		slog.String("caller", caller.Hex()),
	)
	publish(ctx, s.bus, s.logger, domain.ChannelMarket, domain.NewEvent(domain.EventMarketCancelled, cancelled))
	s.notify(ctx, domain.EventMarketCancelled, "Market cancelled",
		fmt.Sprintf("%s cancelled; %d in stakes refundable", id.Hex(), cancelled.TotalPool))
	return cancelled, nil
}

func (s *MarketService) invalidate(ctx context.Context, id common.Hash) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, id); err != nil {
		s.logger.WarnContext(ctx, "cache invalidate failed",
			slog.String("market_id", id.Hex()),
			slog.String("error", err.Error()),
		)
	}
}

func (s *MarketService) notify(ctx context.Context, event, title, message string) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, event, title, message); err != nil {
		s.logger.WarnContext(ctx, "notify failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}
