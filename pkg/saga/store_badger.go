package saga

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dgraph-io/badger/v4"
)

const (
	sagaKeyPrefix              = "saga:"
	sagaIndexStatusPrefix      = "saga:index:status:"
	sagaIndexCorrelationPrefix = "saga:index:correlation:"
)

// BadgerStore stores saga instances in Badger, with secondary indexes by
// status and by correlation id. The optimistic version check and the index
// maintenance happen in the same transaction as the write.
type BadgerStore struct {
	db *badger.DB
}

// NewBadgerStore creates a Badger-backed saga store.
func NewBadgerStore(db *badger.DB) (*BadgerStore, error) {
	if db == nil {
		return nil, fmt.Errorf("badger db cannot be nil")
	}
	return &BadgerStore{db: db}, nil
}

// Save persists one saga instance if the stored version matches.
func (s *BadgerStore) Save(ctx context.Context, instance *Instance, expectedVersion uint64) error {
	if instance == nil {
		return fmt.Errorf("saga instance cannot be nil")
	}
	data, err := json.Marshal(instance)
	if err != nil {
		return err
	}

	key := []byte(sagaDataKey(instance.ID))
	newIndexKey := []byte(sagaStatusIndexKey(instance.Status.String(), instance.ID))
	correlationKey := []byte(sagaCorrelationIndexKey(instance.CorrelationID))

	return s.db.Update(func(txn *badger.Txn) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		var oldStatus string
		item, err := txn.Get(key)
		if err == nil {
			var previous Instance
			if err := item.Value(func(v []byte) error { return json.Unmarshal(v, &previous) }); err != nil {
				return err
			}
			if previous.Version != expectedVersion {
				return &VersionConflictError{SagaID: instance.ID, Expected: expectedVersion, Actual: previous.Version}
			}
			oldStatus = previous.Status.String()
		}

		if err := txn.Set(key, data); err != nil {
			return err
		}
		if err := txn.Set(newIndexKey, []byte{}); err != nil {
			return err
		}
		if instance.CorrelationID != "" {
			if err := txn.Set(correlationKey, []byte(instance.ID)); err != nil {
				return err
			}
		}
		if oldStatus != "" && oldStatus != instance.Status.String() {
			_ = txn.Delete([]byte(sagaStatusIndexKey(oldStatus, instance.ID)))
		}
		return nil
	})
}

// Get loads one saga instance by id.
func (s *BadgerStore) Get(ctx context.Context, sagaID string) (*Instance, error) {
	var instance Instance
	err := s.db.View(func(txn *badger.Txn) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		item, err := txn.Get([]byte(sagaDataKey(sagaID)))
		if err != nil {
			if err == badger.ErrKeyNotFound {
				return ErrSagaNotFound
			}
			return err
		}
		return item.Value(func(v []byte) error { return json.Unmarshal(v, &instance) })
	})
	if err != nil {
		return nil, err
	}
	return instance.Clone(), nil
}

// GetByCorrelationID looks up a saga by its correlation index.
func (s *BadgerStore) GetByCorrelationID(ctx context.Context, correlationID string) (*Instance, error) {
	var sagaID string
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(sagaCorrelationIndexKey(correlationID)))
		if err != nil {
			if err == badger.ErrKeyNotFound {
				return ErrSagaNotFound
			}
			return err
		}
		return item.Value(func(v []byte) error {
			sagaID = string(v)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, sagaID)
}

// List queries saga instances with optional filters and pagination.
func (s *BadgerStore) List(ctx context.Context, filter ListFilter) ([]*Instance, int, error) {
	instances := make([]*Instance, 0)

	err := s.db.View(func(txn *badger.Txn) error {
		if filter.Status != "" {
			prefix := []byte(sagaStatusIndexPrefix(filter.Status))
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

				key := string(it.Item().Key())
				sagaID := strings.TrimPrefix(key, sagaStatusIndexPrefix(filter.Status))
				instance, err := s.getInTxn(txn, sagaID)
				if err != nil {
					continue
				}
				if matchesFilter(instance, filter) {
					instances = append(instances, instance)
				}
			}
			return nil
		}

		prefix := []byte(sagaKeyPrefix)
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

			key := string(it.Item().Key())
			if strings.HasPrefix(key, sagaIndexStatusPrefix) || strings.HasPrefix(key, sagaIndexCorrelationPrefix) {
				continue
			}
			var instance Instance
			if err := it.Item().Value(func(v []byte) error { return json.Unmarshal(v, &instance) }); err != nil {
				continue
			}
			if matchesFilter(&instance, filter) {
				instances = append(instances, &instance)
			}
		}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}

	total := len(instances)
	offset, end := pageBounds(filter.Offset, filter.Limit, total)

	paged := make([]*Instance, 0, end-offset)
	for _, instance := range instances[offset:end] {
		paged = append(paged, instance.Clone())
	}
	return paged, total, nil
}

// Delete removes one saga instance and its index entries.
func (s *BadgerStore) Delete(ctx context.Context, sagaID string) error {
	key := []byte(sagaDataKey(sagaID))
	return s.db.Update(func(txn *badger.Txn) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		item, err := txn.Get(key)
		if err != nil {
			if err == badger.ErrKeyNotFound {
				return ErrSagaNotFound
			}
			return err
		}

		var instance Instance
		if err := item.Value(func(v []byte) error { return json.Unmarshal(v, &instance) }); err != nil {
			return err
		}
		if err := txn.Delete(key); err != nil {
			return err
		}
		_ = txn.Delete([]byte(sagaStatusIndexKey(instance.Status.String(), sagaID)))
		if instance.CorrelationID != "" {
			_ = txn.Delete([]byte(sagaCorrelationIndexKey(instance.CorrelationID)))
		}
		return nil
	})
}

func (s *BadgerStore) getInTxn(txn *badger.Txn, sagaID string) (*Instance, error) {
	item, err := txn.Get([]byte(sagaDataKey(sagaID)))
	if err != nil {
		return nil, err
	}
	var instance Instance
	if err := item.Value(func(v []byte) error { return json.Unmarshal(v, &instance) }); err != nil {
		return nil, err
	}
	return &instance, nil
}

func sagaDataKey(sagaID string) string {
	return sagaKeyPrefix + sagaID
}

func sagaStatusIndexPrefix(status string) string {
	return sagaIndexStatusPrefix + status + ":"
}

func sagaStatusIndexKey(status, sagaID string) string {
	return sagaStatusIndexPrefix(status) + sagaID
}

func sagaCorrelationIndexKey(correlationID string) string {
	return sagaIndexCorrelationPrefix + correlationID
}
