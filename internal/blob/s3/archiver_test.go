package s3blob

import (
	"bytes"
	"context"
	"io"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poolwise/poolmarket/internal/domain"
)

// fakeLedger serves archive reads from fixtures, paginating ListBets the way
// the durable store does: an unset limit is capped, never unbounded.
type fakeLedger struct {
	markets []domain.Market
	bets    map[common.Hash][]domain.Bet
}

func (f *fakeLedger) ListTerminalBefore(_ context.Context, before time.Time) ([]domain.Market, error) {
	var out []domain.Market
	for _, m := range f.markets {
		if m.Status != domain.MarketStatusActive && m.ResolutionTime.Before(before) {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeLedger) ListBets(_ context.Context, marketID common.Hash, opts domain.ListOpts) ([]domain.Bet, error) {
	all := f.bets[marketID]
	limit := opts.Limit
	if limit <= 0 {
		limit = 500
	}
	if opts.Offset >= len(all) {
		return nil, nil
	}
	end := opts.Offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[opts.Offset:end], nil
}

// fakeBlobStore backs both the writer and reader sides with one object map,
// so Exists sees what Put stored.
type fakeBlobStore struct {
	objects map[string][]byte
}

func newFakeBlobStore() *fakeBlobStore {
	return &fakeBlobStore{objects: make(map[string][]byte)}
}

func (f *fakeBlobStore) Put(_ context.Context, path string, data io.Reader, _ string) error {
	buf, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	f.objects[path] = buf
	return nil
}

func (f *fakeBlobStore) PutMultipart(ctx context.Context, path string, data io.Reader, _ int64) error {
	return f.Put(ctx, path, data, "")
}

func (f *fakeBlobStore) Get(_ context.Context, path string) (io.ReadCloser, error) {
	buf, ok := f.objects[path]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(buf)), nil
}

func (f *fakeBlobStore) List(_ context.Context, prefix string) ([]domain.BlobInfo, error) {
	var infos []domain.BlobInfo
	for path, buf := range f.objects {
		if len(path) >= len(prefix) && path[:len(prefix)] == prefix {
			infos = append(infos, domain.BlobInfo{Path: path, Size: int64(len(buf))})
		}
	}
	return infos, nil
}

func (f *fakeBlobStore) Exists(_ context.Context, path string) (bool, error) {
	_, ok := f.objects[path]
	return ok, nil
}

func settledMarket(bettors int) (domain.Market, []domain.Bet) {
	creator := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	created := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	m := domain.Market{
		ID:             domain.DeriveMarketID(creator, created, "Will it settle?"),
		Type:           domain.MarketTypeTransfer,
		Question:       "Will it settle?",
		Creator:        creator,
		CreatedAt:      created,
		ResolutionTime: created.Add(24 * time.Hour),
		Status:         domain.MarketStatusResolved,
	}

	bets := make([]domain.Bet, 0, bettors)
	for i := 0; i < bettors; i++ {
		bets = append(bets, domain.Bet{
			ID:       int64(i + 1),
			MarketID: m.ID,
			Bettor:   common.BigToAddress(big.NewInt(int64(i + 1))),
			Option:   i % 2,
			Amount:   1_000_000,
			PlacedAt: created.Add(time.Duration(i) * time.Second),
			Claimed:  true,
		})
	}
	return m, bets
}

func TestArchiveSettledPagesFullBetHistory(t *testing.T) {
	// More bets than one store page; every bet must land in the object.
	const betCount = betPageSize*2 + 34

	m, bets := settledMarket(betCount)
	ledger := &fakeLedger{
		markets: []domain.Market{m},
		bets:    map[common.Hash][]domain.Bet{m.ID: bets},
	}
	blobs := newFakeBlobStore()
	arch := NewArchiver(blobs, blobs, ledger, "settled")

	archived, err := arch.ArchiveSettled(context.Background(), m.ResolutionTime.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), archived)

	path := arch.marketPath(m)
	obj, ok := blobs.objects[path]
	require.True(t, ok, "expected object at %s", path)

	// One line for the market, one per bet.
	lines := bytes.Split(bytes.TrimRight(obj, "\n"), []byte("\n"))
	assert.Len(t, lines, 1+betCount)
}

func TestArchiveSettledIdempotent(t *testing.T) {
	m, bets := settledMarket(3)
	ledger := &fakeLedger{
		markets: []domain.Market{m},
		bets:    map[common.Hash][]domain.Bet{m.ID: bets},
	}
	blobs := newFakeBlobStore()
	arch := NewArchiver(blobs, blobs, ledger, "settled")

	cutoff := m.ResolutionTime.Add(time.Hour)

	archived, err := arch.ArchiveSettled(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(1), archived)

	// A second pass finds the object and uploads nothing.
	archived, err = arch.ArchiveSettled(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Zero(t, archived)
	assert.Len(t, blobs.objects, 1)
}

func TestArchiveSettledHonoursCutoff(t *testing.T) {
	m, bets := settledMarket(2)
	ledger := &fakeLedger{
		markets: []domain.Market{m},
		bets:    map[common.Hash][]domain.Bet{m.ID: bets},
	}
	blobs := newFakeBlobStore()
	arch := NewArchiver(blobs, blobs, ledger, "settled")

	// Cutoff before the resolution time: too fresh to archive.
	archived, err := arch.ArchiveSettled(context.Background(), m.ResolutionTime.Add(-time.Hour))
	require.NoError(t, err)
	assert.Zero(t, archived)
	assert.Empty(t, blobs.objects)
}
