package saga

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/dgraph-io/badger/v4"
)

const (
	eventKeyPrefix        = "event:"
	eventVersionKeyPrefix = "event-version:"
)

// BadgerEventStore implements EventStore on top of Badger. Events for one
// saga live under "event:{sagaID}:{version:020d}" so a prefix iteration
// yields them in version order; the version counter lives at
// "event-version:{sagaID}" and is checked and advanced in the same
// transaction as the event write.
type BadgerEventStore struct {
	db     *badger.DB
	ownsDB bool
}

// OpenBadgerEventStore opens a dedicated Badger DB for event storage.
func OpenBadgerEventStore(path string) (*BadgerEventStore, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger event store: %w", err)
	}
	store, err := NewBadgerEventStore(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	store.ownsDB = true
	return store, nil
}

// NewBadgerEventStore creates an event store over an existing Badger DB.
func NewBadgerEventStore(db *badger.DB) (*BadgerEventStore, error) {
	if db == nil {
		return nil, fmt.Errorf("badger db cannot be nil")
	}
	return &BadgerEventStore{db: db}, nil
}

// Append appends one event under the optimistic version gate.
func (s *BadgerEventStore) Append(ctx context.Context, event Event, expectedVersion uint64) (uint64, error) {
	if event.SagaID == "" {
		return 0, fmt.Errorf("event saga_id cannot be empty")
	}
	if event.Type == "" {
		return 0, fmt.Errorf("event type cannot be empty")
	}

	var assigned uint64
	err := s.db.Update(func(txn *badger.Txn) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		current, err := readVersionInTxn(txn, event.SagaID)
		if err != nil {
			return err
		}
		if current != expectedVersion {
			return &VersionConflictError{SagaID: event.SagaID, Expected: expectedVersion, Actual: current}
		}

		assigned = current + 1
		event.Version = assigned
		data, err := json.Marshal(event)
		if err != nil {
			return fmt.Errorf("marshal event: %w", err)
		}

		if err := txn.Set([]byte(eventKey(event.SagaID, assigned)), data); err != nil {
			return err
		}
		return txn.Set([]byte(eventVersionKey(event.SagaID)), []byte(strconv.FormatUint(assigned, 10)))
	})
	if err != nil {
		return 0, err
	}
	return assigned, nil
}

// List returns all events for a saga in strict version order.
func (s *BadgerEventStore) List(ctx context.Context, sagaID string) ([]Event, error) {
	prefix := []byte(eventPrefixForSaga(sagaID))
	events := make([]Event, 0)

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			var event Event
			if err := it.Item().Value(func(v []byte) error {
				return json.Unmarshal(v, &event)
			}); err != nil {
				return fmt.Errorf("decode event: %w", err)
			}
			events = append(events, event)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return events, nil
}

// CurrentVersion returns the version of the last appended event, or 0.
func (s *BadgerEventStore) CurrentVersion(ctx context.Context, sagaID string) (uint64, error) {
	var version uint64
	err := s.db.View(func(txn *badger.Txn) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		current, err := readVersionInTxn(txn, sagaID)
		if err != nil {
			return err
		}
		version = current
		return nil
	})
	if err != nil {
		return 0, err
	}
	return version, nil
}

// DeleteBySagaID removes all events and the version counter for a saga.
func (s *BadgerEventStore) DeleteBySagaID(ctx context.Context, sagaID string) error {
	prefix := []byte(eventPrefixForSaga(sagaID))
	keys := make([][]byte, 0)

	if err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		return nil
	}); err != nil {
		return err
	}

	return s.db.Update(func(txn *badger.Txn) error {
		for _, key := range keys {
			if err := txn.Delete(key); err != nil {
				return err
			}
		}
		_ = txn.Delete([]byte(eventVersionKey(sagaID)))
		return nil
	})
}

// Close closes the db if owned.
func (s *BadgerEventStore) Close() error {
	if s.ownsDB {
		return s.db.Close()
	}
	return nil
}

func readVersionInTxn(txn *badger.Txn, sagaID string) (uint64, error) {
	item, err := txn.Get([]byte(eventVersionKey(sagaID)))
	switch {
	case err == nil:
		var current uint64
		if err := item.Value(func(v []byte) error {
			parsed, parseErr := strconv.ParseUint(string(v), 10, 64)
			if parseErr != nil {
				return parseErr
			}
			current = parsed
			return nil
		}); err != nil {
			return 0, err
		}
		return current, nil
	case err == badger.ErrKeyNotFound:
		return 0, nil
	default:
		return 0, err
	}
}

func eventPrefixForSaga(sagaID string) string {
	return fmt.Sprintf("%s%s:", eventKeyPrefix, sagaID)
}

func eventVersionKey(sagaID string) string {
	return fmt.Sprintf("%s%s", eventVersionKeyPrefix, sagaID)
}

func eventKey(sagaID string, version uint64) string {
	return fmt.Sprintf("%s%s:%020d", eventKeyPrefix, sagaID, version)
}
