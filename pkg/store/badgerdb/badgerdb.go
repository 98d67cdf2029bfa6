package badgerdb

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/shopspring/decimal"

	"github.com/tumaini/pesaflow/pkg/model"
)

// Key prefixes. Transactions sort by timestamp inside their prefix so the
// extractor can seek straight to the watermark.
var (
	prefixTxn   = []byte("txn/")
	prefixCust  = []byte("cust/")
	prefixTrend = []byte("trend/")
	keySnapshot = []byte("snapshot")
	keyHeatDay  = []byte("heat/")
	keyWM       = []byte("watermark")
)

// Store implements store.Store on BadgerDB (LSM tree).
type Store struct {
	db *badger.DB
}

// Config holds BadgerDB configuration.
type Config struct {
	// Path to store database files
	Path string

	// InMemory mode (for testing)
	InMemory bool

	// MaxMemoryMB limits BadgerDB memory usage in MB (0 = laptop-friendly
	// defaults, 48 MB total)
	MaxMemoryMB int64
}

// New opens a BadgerDB-backed store.
func New(cfg Config) (*Store, error) {
	opts := badger.DefaultOptions(cfg.Path)

	if cfg.InMemory {
		opts = opts.WithInMemory(true)
	}

	// Badger's defaults assume a server; bound the memtable and caches so
	// the pipeline can run next to the hosting process on small machines.
	memTableSize := int64(16 * 1024 * 1024)
	if cfg.MaxMemoryMB > 0 {
		memTableSize = cfg.MaxMemoryMB * 1024 * 1024 / 3
	}

	opts = opts.
		WithCompression(options.Snappy).
		WithNumVersionsToKeep(1).
		WithMemTableSize(memTableSize).
		WithNumMemtables(3).
		WithBlockCacheSize(memTableSize / 2).
		WithIndexCacheSize(memTableSize / 4).
		WithMaxLevels(4).
		// Badger refuses to open with fewer than 2 compactors.
		WithNumCompactors(2).
		WithValueThreshold(1024).
		WithValueLogFileSize(64 << 20)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger: %w", err)
	}

	return &Store{db: db}, nil
}

// AppendTransactions stores raw rows keyed by time + id hash. A row whose
// transaction_time does not parse is keyed at the epoch sentinel, below
// every real timestamp: it still persists, but only full-table extracts
// will see it.
func (s *Store) AppendTransactions(ctx context.Context, txns []model.RawTransaction) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return s.db.Update(func(txn *badger.Txn) error {
		for _, t := range txns {
			ts, err := t.Time()
			if err != nil {
				// The zero time has a negative UnixNano, which would wrap
				// past every real key once cast to uint64.
				ts = time.Unix(0, 0)
			}
			value, err := json.Marshal(t)
			if err != nil {
				return fmt.Errorf("failed to encode transaction: %w", err)
			}
			if err := txn.Set(txnKey(ts, t.TransactionID), value); err != nil {
				return fmt.Errorf("failed to write transaction: %w", err)
			}
		}
		return nil
	})
}

// TransactionsSince scans the transaction keyspace from just past the
// watermark. Keys sort by timestamp, so the scan seeks instead of filtering.
func (s *Store) TransactionsSince(ctx context.Context, since *time.Time) ([]model.RawTransaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var results []model.RawTransaction
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefixTxn
		opts.PrefetchSize = 100

		it := txn.NewIterator(opts)
		defer it.Close()

		seek := prefixTxn
		if since != nil {
			// Strictly after the watermark: seek to watermark+1ns.
			seek = binary.BigEndian.AppendUint64(bytes.Clone(prefixTxn),
				uint64(since.Add(time.Nanosecond).UnixNano()))
		}

		var iterCount int
		for it.Seek(seek); it.ValidForPrefix(prefixTxn); it.Next() {
			iterCount++
			if iterCount%1000 == 0 {
				if err := ctx.Err(); err != nil {
					return err
				}
			}

			err := it.Item().Value(func(val []byte) error {
				var t model.RawTransaction
				if err := json.Unmarshal(val, &t); err != nil {
					return fmt.Errorf("failed to decode transaction: %w", err)
				}
				results = append(results, t)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	return results, err
}

// Customers fetches aggregates for exactly the given msisdns.
func (s *Store) Customers(ctx context.Context, msisdns []string) (map[string]model.CustomerAggregate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	results := make(map[string]model.CustomerAggregate, len(msisdns))
	err := s.db.View(func(txn *badger.Txn) error {
		for _, m := range msisdns {
			item, err := txn.Get(custKey(m))
			if err == badger.ErrKeyNotFound {
				continue
			}
			if err != nil {
				return err
			}
			err = item.Value(func(val []byte) error {
				var row model.CustomerAggregate
				if err := json.Unmarshal(val, &row); err != nil {
					return fmt.Errorf("failed to decode customer %s: %w", m, err)
				}
				results[m] = row
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	return results, err
}

// UpsertCustomers replaces aggregate rows in full.
func (s *Store) UpsertCustomers(ctx context.Context, rows []model.CustomerAggregate) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return s.db.Update(func(txn *badger.Txn) error {
		for _, row := range rows {
			value, err := json.Marshal(row)
			if err != nil {
				return fmt.Errorf("failed to encode customer: %w", err)
			}
			if err := txn.Set(custKey(row.MSISDN), value); err != nil {
				return err
			}
		}
		return nil
	})
}

// AllCustomers returns every persisted aggregate, ordered by msisdn.
func (s *Store) AllCustomers(ctx context.Context) ([]model.CustomerAggregate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var results []model.CustomerAggregate
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefixCust

		it := txn.NewIterator(opts)
		defer it.Close()

		var iterCount int
		for it.Seek(prefixCust); it.ValidForPrefix(prefixCust); it.Next() {
			iterCount++
			if iterCount%1000 == 0 {
				if err := ctx.Err(); err != nil {
					return err
				}
			}

			err := it.Item().Value(func(val []byte) error {
				var row model.CustomerAggregate
				if err := json.Unmarshal(val, &row); err != nil {
					return fmt.Errorf("failed to decode customer: %w", err)
				}
				results = append(results, row)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	return results, err
}

// Snapshot returns the cumulative metrics row, zero-valued if never written.
func (s *Store) Snapshot(ctx context.Context) (model.MetricsSnapshot, error) {
	snap := model.MetricsSnapshot{TransactionVolume: decimal.Zero}
	if err := ctx.Err(); err != nil {
		return snap, err
	}

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(keySnapshot)
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &snap)
		})
	})
	return snap, err
}

// AddToSnapshot performs the read-or-insert-then-additive-update of the
// single metrics row inside one transaction.
func (s *Store) AddToSnapshot(ctx context.Context, count int64, volume decimal.Decimal) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return s.db.Update(func(txn *badger.Txn) error {
		snap := model.MetricsSnapshot{TransactionVolume: decimal.Zero}
		item, err := txn.Get(keySnapshot)
		if err == nil {
			err = item.Value(func(val []byte) error {
				return json.Unmarshal(val, &snap)
			})
			if err != nil {
				return fmt.Errorf("failed to decode snapshot: %w", err)
			}
		} else if err != badger.ErrKeyNotFound {
			return err
		}

		snap.TotalTransactions += count
		snap.TransactionVolume = snap.TransactionVolume.Add(volume)

		value, err := json.Marshal(snap)
		if err != nil {
			return fmt.Errorf("failed to encode snapshot: %w", err)
		}
		return txn.Set(keySnapshot, value)
	})
}

// Heatmap assembles the matrix from its per-day rows.
func (s *Store) Heatmap(ctx context.Context) (model.Heatmap, error) {
	var heat model.Heatmap
	if err := ctx.Err(); err != nil {
		return heat, err
	}

	err := s.db.View(func(txn *badger.Txn) error {
		for day := 0; day < len(heat); day++ {
			item, err := txn.Get(heatDayKey(day))
			if err == badger.ErrKeyNotFound {
				continue
			}
			if err != nil {
				return err
			}
			err = item.Value(func(val []byte) error {
				return json.Unmarshal(val, &heat[day])
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	return heat, err
}

// AddHeatmapDelta adds nonzero cells onto the persisted matrix. Days the
// batch never touched are not rewritten.
func (s *Store) AddHeatmapDelta(ctx context.Context, delta model.Heatmap) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return s.db.Update(func(txn *badger.Txn) error {
		for day := 0; day < len(delta); day++ {
			if delta.RowIsZero(day) {
				continue
			}

			var row [model.HoursPerDay]int64
			item, err := txn.Get(heatDayKey(day))
			if err == nil {
				err = item.Value(func(val []byte) error {
					return json.Unmarshal(val, &row)
				})
				if err != nil {
					return fmt.Errorf("failed to decode heatmap day %d: %w", day, err)
				}
			} else if err != badger.ErrKeyNotFound {
				return err
			}

			for c := 0; c < model.HoursPerDay; c++ {
				row[c] += delta[day][c]
			}

			value, err := json.Marshal(row)
			if err != nil {
				return fmt.Errorf("failed to encode heatmap day %d: %w", day, err)
			}
			if err := txn.Set(heatDayKey(day), value); err != nil {
				return err
			}
		}
		return nil
	})
}

// TrendPoints returns one series. Period keys are big-endian timestamps, so
// iteration order is period order.
func (s *Store) TrendPoints(ctx context.Context, res model.Resolution) ([]model.TrendPoint, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	prefix := trendPrefix(res)
	var results []model.TrendPoint
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var p model.TrendPoint
				if err := json.Unmarshal(val, &p); err != nil {
					return fmt.Errorf("failed to decode trend point: %w", err)
				}
				results = append(results, p)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	return results, err
}

// UpsertTrendPoints replaces points keyed by period start.
func (s *Store) UpsertTrendPoints(ctx context.Context, res model.Resolution, points []model.TrendPoint) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return s.db.Update(func(txn *badger.Txn) error {
		for _, p := range points {
			value, err := json.Marshal(p)
			if err != nil {
				return fmt.Errorf("failed to encode trend point: %w", err)
			}
			if err := txn.Set(trendKey(res, p.PeriodStart), value); err != nil {
				return err
			}
		}
		return nil
	})
}

// Watermark returns the committed extraction boundary.
func (s *Store) Watermark(ctx context.Context) (time.Time, bool, error) {
	if err := ctx.Err(); err != nil {
		return time.Time{}, false, err
	}

	var wm time.Time
	var ok bool
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(keyWM)
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			if err := wm.UnmarshalBinary(val); err != nil {
				return fmt.Errorf("failed to decode watermark: %w", err)
			}
			ok = true
			return nil
		})
	})
	return wm, ok, err
}

// SetWatermark advances the extraction boundary.
func (s *Store) SetWatermark(ctx context.Context, wm time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	value, err := wm.MarshalBinary()
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(keyWM, value)
	})
}

// RunGC runs Badger's value log garbage collection. Returns badger's
// ErrNoRewrite when there was nothing to reclaim.
func (s *Store) RunGC(discardRatio float64) error {
	return s.db.RunValueLogGC(discardRatio)
}

// Close shuts down BadgerDB cleanly.
func (s *Store) Close() error {
	return s.db.Close()
}

// txnKey builds a sortable transaction key:
// [prefix][timestamp (8 bytes)][id hash (8 bytes)]
func txnKey(ts time.Time, id string) []byte {
	key := make([]byte, 0, len(prefixTxn)+16)
	key = append(key, prefixTxn...)
	key = binary.BigEndian.AppendUint64(key, uint64(ts.UnixNano()))
	key = binary.BigEndian.AppendUint64(key, xxhash.Sum64String(id))
	return key
}

func custKey(msisdn string) []byte {
	return append(bytes.Clone(prefixCust), msisdn...)
}

func heatDayKey(day int) []byte {
	return append(bytes.Clone(keyHeatDay), byte('0'+day))
}

func trendPrefix(res model.Resolution) []byte {
	key := append(bytes.Clone(prefixTrend), res...)
	return append(key, '/')
}

func trendKey(res model.Resolution, period time.Time) []byte {
	return binary.BigEndian.AppendUint64(trendPrefix(res), uint64(period.Unix()))
}
