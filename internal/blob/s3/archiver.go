package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/poolwise/poolmarket/internal/domain"
)

// LedgerArchiveStore provides the read access the archiver needs. The ledger
// stores satisfy it implicitly; the archiver never sees their write surface.
type LedgerArchiveStore interface {
	// ListTerminalBefore returns resolved and cancelled markets whose
	// resolution time is strictly before the cutoff.
	ListTerminalBefore(ctx context.Context, before time.Time) ([]domain.Market, error)
	ListBets(ctx context.Context, marketID common.Hash, opts domain.ListOpts) ([]domain.Bet, error)
}

// ArchiveImpl exports terminally settled markets to object storage as one
// JSONL object per market: the market record on the first line, its bets on
// the following lines. Markets already present under the prefix are skipped,
// so repeated runs are idempotent.
//
// Deletion from the primary store is intentionally NOT performed here; the
// archive is a verified copy, not a destructive move.
type ArchiveImpl struct {
	writer domain.BlobWriter
	reader domain.BlobReader
	ledger LedgerArchiveStore
	prefix string
}

// NewArchiver creates a new ArchiveImpl writing under the given key prefix.
func NewArchiver(writer domain.BlobWriter, reader domain.BlobReader, ledger LedgerArchiveStore, prefix string) *ArchiveImpl {
	if prefix == "" {
		prefix = "settled"
	}
	return &ArchiveImpl{
		writer: writer,
		reader: reader,
		ledger: ledger,
		prefix: prefix,
	}
}

// ArchiveSettled exports every terminally settled market older than the
// cutoff that is not yet present in the archive. It returns the number of
// markets uploaded in this run.
func (a *ArchiveImpl) ArchiveSettled(ctx context.Context, before time.Time) (int64, error) {
	markets, err := a.ledger.ListTerminalBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive query: %w", err)
	}

	var archived int64
	for _, m := range markets {
		path := a.marketPath(m)

		exists, err := a.reader.Exists(ctx, path)
		if err != nil {
			return archived, fmt.Errorf("s3blob: archive check %s: %w", path, err)
		}
		if exists {
			continue
		}

		bets, err := a.listAllBets(ctx, m.ID)
		if err != nil {
			return archived, fmt.Errorf("s3blob: archive bets %s: %w", m.ID.Hex(), err)
		}

		buf, err := marshalMarketJSONL(m, bets)
		if err != nil {
			return archived, fmt.Errorf("s3blob: archive marshal %s: %w", m.ID.Hex(), err)
		}

		if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
			return archived, fmt.Errorf("s3blob: archive upload %s: %w", path, err)
		}
		archived++
	}

	return archived, nil
}

// betPageSize bounds each ListBets read while paging a market's history.
const betPageSize = 500

// listAllBets pages through the full bet history of one market. Stores cap
// unpaginated reads, so the archive must page explicitly or deep markets
// would be exported truncated.
func (a *ArchiveImpl) listAllBets(ctx context.Context, marketID common.Hash) ([]domain.Bet, error) {
	var bets []domain.Bet
	for offset := 0; ; offset += betPageSize {
		page, err := a.ledger.ListBets(ctx, marketID, domain.ListOpts{Limit: betPageSize, Offset: offset})
		if err != nil {
			return nil, err
		}
		bets = append(bets, page...)
		if len(page) < betPageSize {
			return bets, nil
		}
	}
}

// marketPath builds the S3 key for a settled market, partitioned by the
// year-month of its resolution time:
//
//	settled/2026-01/0xabc...def.jsonl
func (a *ArchiveImpl) marketPath(m domain.Market) string {
	return fmt.Sprintf("%s/%s/%s.jsonl", a.prefix, m.ResolutionTime.Format("2006-01"), m.ID.Hex())
}

// marshalMarketJSONL serialises a market and its bets as newline-delimited
// JSON: the market first, then each bet as its own compact line.
func marshalMarketJSONL(m domain.Market, bets []domain.Bet) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	if err := enc.Encode(m); err != nil {
		return nil, fmt.Errorf("jsonl encode market: %w", err)
	}
	for i, b := range bets {
		if err := enc.Encode(b); err != nil {
			return nil, fmt.Errorf("jsonl encode bet %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}
