// Copyright 2025 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package storage

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/blinklabs-io/marlin/internal/config"
	"github.com/blinklabs-io/marlin/internal/logging"
	"github.com/blinklabs-io/marlin/internal/template"
)

const txKeyPrefix = "tx_"

var _ template.TransactionCache = (*Storage)(nil)

// Storage is an in-memory cache of raw transactions keyed by txid. Entries
// expire after the configured TTL.
type Storage struct {
	db  *badger.DB
	ttl time.Duration
}

var globalStorage = &Storage{}

// Load opens the global storage using the storage config
func (s *Storage) Load() error {
	cfg := config.GetConfig()
	return s.open(cfg.Storage.TxTTL)
}

// New returns a standalone storage instance
func New(ttl time.Duration) (*Storage, error) {
	s := &Storage{}
	if err := s.open(ttl); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Storage) open(ttl time.Duration) error {
	badgerOpts := badger.DefaultOptions("").
		WithInMemory(true).
		WithLogger(NewBadgerLogger()).
		// The default INFO logging is a bit verbose
		WithLoggingLevel(badger.WARNING)
	db, err := badger.Open(badgerOpts)
	if err != nil {
		return fmt.Errorf("open transaction cache: %w", err)
	}
	s.db = db
	s.ttl = ttl
	return nil
}

func (s *Storage) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func txKey(hash string) []byte {
	return []byte(txKeyPrefix + hash)
}

// PutTransactions stores raw transaction hex keyed by txid
func (s *Storage) PutTransactions(txs map[string]string) error {
	wb := s.db.NewWriteBatch()
	defer wb.Cancel()
	for hash, txHex := range txs {
		entry := badger.NewEntry(txKey(hash), []byte(txHex))
		if s.ttl > 0 {
			entry = entry.WithTTL(s.ttl)
		}
		if err := wb.SetEntry(entry); err != nil {
			return fmt.Errorf("store transaction %s: %w", hash, err)
		}
	}
	if err := wb.Flush(); err != nil {
		return fmt.Errorf("store transactions: %w", err)
	}
	return nil
}

// GetTransaction returns the raw transaction hex for a txid
func (s *Storage) GetTransaction(hash string) (string, bool) {
	var ret string
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(txKey(hash))
		if err != nil {
			return err
		}
		return item.Value(func(v []byte) error {
			ret = string(v)
			return nil
		})
	})
	if err != nil {
		if !errors.Is(err, badger.ErrKeyNotFound) {
			slog.Error(
				fmt.Sprintf("failed to read transaction %s: %s", hash, err),
			)
		}
		return "", false
	}
	return ret, true
}

// Len returns the number of live transactions in the cache
func (s *Storage) Len() (int, error) {
	var ret int
	keyPrefix := []byte(txKeyPrefix)
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(keyPrefix); it.ValidForPrefix(keyPrefix); it.Next() {
			ret++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return ret, nil
}

func GetStorage() *Storage {
	return globalStorage
}

// BadgerLogger routes badger's log output through slog
type BadgerLogger struct {
	logger *slog.Logger
}

func NewBadgerLogger() *BadgerLogger {
	return &BadgerLogger{
		logger: logging.GetLogger().With("subsystem", "badger"),
	}
}

func (b *BadgerLogger) Errorf(msg string, args ...any) {
	b.logger.Error(formatBadger(msg, args...))
}

func (b *BadgerLogger) Warningf(msg string, args ...any) {
	b.logger.Warn(formatBadger(msg, args...))
}

func (b *BadgerLogger) Infof(msg string, args ...any) {
	b.logger.Info(formatBadger(msg, args...))
}

func (b *BadgerLogger) Debugf(msg string, args ...any) {
	b.logger.Debug(formatBadger(msg, args...))
}

// badger messages carry a trailing newline
func formatBadger(msg string, args ...any) string {
	return strings.TrimSpace(fmt.Sprintf(msg, args...))
}
