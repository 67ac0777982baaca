package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ahmed-com/cadence/storage"
	"github.com/dgraph-io/badger/v4"
)

// BadgerStorage implements the Storage interface using BadgerDB
type BadgerStorage struct {
	db *badger.DB
}

// NewBadgerStorage creates a new BadgerDB storage instance
func NewBadgerStorage(path string) (*BadgerStorage, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil // Disable default logging

	return open(opts)
}

// NewInMemoryStorage creates a journal that lives only as long as the process.
func NewInMemoryStorage() (*BadgerStorage, error) {
	opts := badger.DefaultOptions("").WithInMemory(true)
	opts.Logger = nil

	return open(opts)
}

func open(opts badger.Options) (*BadgerStorage, error) {
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger db: %w", err)
	}

	return &BadgerStorage{db: db}, nil
}

// Hierarchical key schema implementation
func (s *BadgerStorage) tickerKey(tickerID string) []byte {
	return []byte(fmt.Sprintf("ticker/%s", tickerID))
}

func (s *BadgerStorage) tickPrefix(tickerID string) []byte {
	return []byte(fmt.Sprintf("ticker/%s/tick/", tickerID))
}

// Tick keys sort by fire time within a ticker.
func (s *BadgerStorage) tickKey(r *storage.TickRecord) []byte {
	return []byte(fmt.Sprintf("ticker/%s/tick/%020d/%s", r.TickerID, r.FireTime.UnixNano(), r.ID))
}

// parseTickKey splits a tick key into its fire time and tick ID.
func parseTickKey(key string) (time.Time, string, bool) {
	parts := strings.Split(key, "/")
	if len(parts) != 5 || parts[0] != "ticker" || parts[2] != "tick" {
		return time.Time{}, "", false
	}
	nanos, err := strconv.ParseInt(parts[3], 10, 64)
	if err != nil {
		return time.Time{}, "", false
	}
	return time.Unix(0, nanos), parts[4], true
}

// Tick operations

func (s *BadgerStorage) RecordTick(ctx context.Context, record *storage.TickRecord) error {
	if record.ID == "" || record.TickerID == "" {
		return fmt.Errorf("tick record needs an ID and a ticker ID")
	}
	if record.RecordedAt.IsZero() {
		record.RecordedAt = time.Now()
	}

	return s.db.Update(func(txn *badger.Txn) error {
		key := s.tickKey(record)

		// Check if already exists
		_, err := txn.Get(key)
		if err == nil {
			return fmt.Errorf("tick %s: %w", record.ID, storage.ErrAlreadyExists)
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}

		data, err := json.Marshal(record)
		if err != nil {
			return fmt.Errorf("failed to marshal tick: %w", err)
		}
		if err := txn.Set(key, data); err != nil {
			return err
		}

		return s.ensureTicker(txn, record)
	})
}

// ensureTicker writes the ticker entry the first time a ticker records a tick.
func (s *BadgerStorage) ensureTicker(txn *badger.Txn, record *storage.TickRecord) error {
	key := s.tickerKey(record.TickerID)

	_, err := txn.Get(key)
	if err == nil {
		return nil
	}
	if !errors.Is(err, badger.ErrKeyNotFound) {
		return err
	}

	data, err := json.Marshal(&storage.TickerInfo{
		ID:        record.TickerID,
		Name:      record.TickerName,
		FirstSeen: record.FireTime,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal ticker: %w", err)
	}
	return txn.Set(key, data)
}

func (s *BadgerStorage) GetTick(ctx context.Context, tickID string) (*storage.TickRecord, error) {
	var record storage.TickRecord
	var found bool

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		// Search for the tick by ID across all tickers
		prefix := []byte("ticker/")
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			key := string(item.Key())

			if strings.Contains(key, "/tick/") && strings.HasSuffix(key, "/"+tickID) {
				err := item.Value(func(val []byte) error {
					return json.Unmarshal(val, &record)
				})
				if err != nil {
					return err
				}
				found = true
				return nil
			}
		}

		return nil
	})

	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("tick %s: %w", tickID, storage.ErrNotFound)
	}

	return &record, nil
}

func (s *BadgerStorage) ListTicks(ctx context.Context, tickerID string) ([]*storage.TickRecord, error) {
	var records []*storage.TickRecord

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = s.tickPrefix(tickerID)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}

			var record storage.TickRecord
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &record)
			})
			if err != nil {
				return err
			}
			records = append(records, &record)
		}

		return nil
	})

	return records, err
}

func (s *BadgerStorage) ListTickers(ctx context.Context) ([]*storage.TickerInfo, error) {
	var tickers []*storage.TickerInfo

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte("ticker/")
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			if strings.Count(string(item.Key()), "/") != 1 {
				continue
			}

			var info storage.TickerInfo
			err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &info)
			})
			if err != nil {
				return err
			}
			tickers = append(tickers, &info)
		}

		return nil
	})

	return tickers, err
}

func (s *BadgerStorage) DeleteTicksBefore(ctx context.Context, cutoff time.Time) (int, error) {
	var stale [][]byte

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte("ticker/")
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}

			item := it.Item()
			fired, _, ok := parseTickKey(string(item.Key()))
			if ok && fired.Before(cutoff) {
				stale = append(stale, item.KeyCopy(nil))
			}
		}

		return nil
	})
	if err != nil {
		return 0, err
	}
	if len(stale) == 0 {
		return 0, nil
	}

	wb := s.db.NewWriteBatch()
	defer wb.Cancel()
	for _, key := range stale {
		if err := wb.Delete(key); err != nil {
			return 0, fmt.Errorf("failed to delete tick: %w", err)
		}
	}
	if err := wb.Flush(); err != nil {
		return 0, fmt.Errorf("failed to flush deletes: %w", err)
	}

	return len(stale), nil
}

// Close closes the database connection
func (s *BadgerStorage) Close() error {
	return s.db.Close()
}
