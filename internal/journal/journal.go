// internal/journal/journal.go
package journal

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"slices"
	"sort"

	"parknet-api-server/internal/models"
	"parknet-api-server/internal/parking"

	badger "github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"
)

// Journal is an append-only log of slot change events kept in Badger.
// It is registered on the bus as a sink and read by the admin history endpoint.
type Journal struct {
	db     *badger.DB
	logger *zap.Logger
}

// Open opens (or creates) the journal at path. An empty path keeps the journal
// in memory, which is what tests use.
func Open(path string, logger *zap.Logger) (*Journal, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	var opts badger.Options
	if path == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		opts = badger.DefaultOptions(filepath.Clean(path))
	}
	opts = opts.WithLogger(nil).WithValueLogFileSize(1 << 24)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	return &Journal{db: db, logger: logger.Named("journal")}, nil
}

func (j *Journal) Close() error {
	return j.db.Close()
}

func (j *Journal) Name() string { return "journal" }

// Handle appends ev. Keys sort by facility, slot and sequence so a prefix scan
// returns a slot's history in order.
func (j *Journal) Handle(ctx context.Context, ev models.ChangeEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	err = j.db.Update(func(txn *badger.Txn) error {
		return txn.Set(eventKey(ev.FacilityID, ev.SlotNumber, ev.Sequence), data)
	})
	if err != nil {
		return fmt.Errorf("append event: %v: %w", err, parking.ErrTransientUnavailable)
	}
	return nil
}

// History returns up to limit of the most recent events for a facility, oldest
// first. A positive slot reads that slot's keys newest first and stops at
// limit. slot 0 means every slot: the whole facility is read and ordered by
// Timestamp, ties broken by slot number and sequence.
func (j *Journal) History(ctx context.Context, facilityID string, slot, limit int) ([]models.ChangeEvent, error) {
	if facilityID == "" || slot < 0 {
		return nil, fmt.Errorf("history query: %w", parking.ErrInvalidArgument)
	}
	if limit <= 0 {
		limit = 100
	}

	if slot > 0 {
		out, err := j.scan(ctx, slotPrefix(facilityID, slot), true, limit)
		if err != nil {
			return nil, err
		}
		slices.Reverse(out)
		return out, nil
	}

	out, err := j.scan(ctx, facilityPrefix(facilityID), false, 0)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(a, b int) bool {
		x, y := out[a], out[b]
		if !x.Timestamp.Equal(y.Timestamp) {
			return x.Timestamp.Before(y.Timestamp)
		}
		if x.SlotNumber != y.SlotNumber {
			return x.SlotNumber < y.SlotNumber
		}
		return x.Sequence < y.Sequence
	})
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

// scan decodes events under prefix in key order, or reverse key order. limit 0
// means no cap.
func (j *Journal) scan(ctx context.Context, prefix []byte, reverse bool, limit int) ([]models.ChangeEvent, error) {
	out := make([]models.ChangeEvent, 0)
	err := j.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = reverse
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		seek := prefix
		if reverse {
			seek = append(append([]byte{}, prefix...), 0xFF)
		}
		for it.Seek(seek); it.ValidForPrefix(prefix); it.Next() {
			if limit > 0 && len(out) >= limit {
				break
			}
			if err := ctx.Err(); err != nil {
				return err
			}
			var ev models.ChangeEvent
			if err := it.Item().Value(func(v []byte) error {
				return json.Unmarshal(v, &ev)
			}); err != nil {
				return err
			}
			out = append(out, ev)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func facilityPrefix(facilityID string) []byte {
	return []byte("event:" + facilityID + ":")
}

func slotPrefix(facilityID string, slot int) []byte {
	return []byte(fmt.Sprintf("event:%s:%06d:", facilityID, slot))
}

func eventKey(facilityID string, slot int, seq uint64) []byte {
	return []byte(fmt.Sprintf("event:%s:%06d:%020d", facilityID, slot, seq))
}
