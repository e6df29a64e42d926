package repair

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
)

const (
	repairKeyPrefix         = "repair:"
	repairIndexStatusPrefix = "repair:index:status:"
	repairIndexParentPrefix = "repair:index:parent:"
)

// BadgerStore stores repair records in Badger, indexed by workflow status
// and by the originating saga. Version check and index maintenance run in
// the same transaction as the write.
type BadgerStore struct {
	db *badger.DB
}

// NewBadgerStore creates a Badger-backed repair store.
func NewBadgerStore(db *badger.DB) (*BadgerStore, error) {
	if db == nil {
		return nil, fmt.Errorf("badger db cannot be nil")
	}
	return &BadgerStore{db: db}, nil
}

// Save persists one repair record if the stored version matches.
func (s *BadgerStore) Save(ctx context.Context, record *TransactionRepair, expectedVersion uint64) error {
	if record == nil {
		return fmt.Errorf("repair record cannot be nil")
	}

	saved := record.Clone()
	saved.Version = expectedVersion + 1
	data, err := json.Marshal(saved)
	if err != nil {
		return err
	}

	key := []byte(repairDataKey(record.ID))
	newIndexKey := []byte(repairStatusIndexKey(string(saved.RepairStatus), record.ID))
	parentKey := []byte(repairParentIndexKey(record.ParentTransactionID))

	err = s.db.Update(func(txn *badger.Txn) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		var oldStatus string
		item, err := txn.Get(key)
		if err == nil {
			var previous TransactionRepair
			if err := item.Value(func(v []byte) error { return json.Unmarshal(v, &previous) }); err != nil {
				return err
			}
			if previous.Version != expectedVersion {
				return fmt.Errorf("repair %s version %d does not match expected %d", record.ID, previous.Version, expectedVersion)
			}
			oldStatus = string(previous.RepairStatus)
		}

		if err := txn.Set(key, data); err != nil {
			return err
		}
		if err := txn.Set(newIndexKey, []byte{}); err != nil {
			return err
		}
		if record.ParentTransactionID != "" {
			if err := txn.Set(parentKey, []byte(record.ID)); err != nil {
				return err
			}
		}
		if oldStatus != "" && oldStatus != string(saved.RepairStatus) {
			_ = txn.Delete([]byte(repairStatusIndexKey(oldStatus, record.ID)))
		}
		return nil
	})
	if err != nil {
		return err
	}
	record.Version = saved.Version
	return nil
}

// Get loads one repair record by id.
func (s *BadgerStore) Get(ctx context.Context, id string) (*TransactionRepair, error) {
	var record TransactionRepair
	err := s.db.View(func(txn *badger.Txn) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		item, err := txn.Get([]byte(repairDataKey(id)))
		if err != nil {
			if err == badger.ErrKeyNotFound {
				return ErrNotFound
			}
			return err
		}
		return item.Value(func(v []byte) error { return json.Unmarshal(v, &record) })
	})
	if err != nil {
		return nil, err
	}
	return record.Clone(), nil
}

// GetByParent looks up the repair record created for a saga.
func (s *BadgerStore) GetByParent(ctx context.Context, sagaID string) (*TransactionRepair, error) {
	var id string
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(repairParentIndexKey(sagaID)))
		if err != nil {
			if err == badger.ErrKeyNotFound {
				return ErrNotFound
			}
			return err
		}
		return item.Value(func(v []byte) error {
			id = string(v)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

// List queries repair records with optional filters and pagination, most
// urgent first.
func (s *BadgerStore) List(ctx context.Context, filter ListFilter) ([]*TransactionRepair, int, error) {
	records := make([]*TransactionRepair, 0)

	err := s.db.View(func(txn *badger.Txn) error {
		if filter.Status != "" {
			prefix := []byte(repairStatusIndexPrefix(filter.Status))
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
				id := strings.TrimPrefix(key, repairStatusIndexPrefix(filter.Status))
				record, err := s.getInTxn(txn, id)
				if err != nil {
					continue
				}
				if matchesFilter(record, filter) {
					records = append(records, record)
				}
			}
			return nil
		}

		prefix := []byte(repairKeyPrefix)
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
			if strings.HasPrefix(key, repairIndexStatusPrefix) || strings.HasPrefix(key, repairIndexParentPrefix) {
				continue
			}
			var record TransactionRepair
			if err := it.Item().Value(func(v []byte) error { return json.Unmarshal(v, &record) }); err != nil {
				continue
			}
			if matchesFilter(&record, filter) {
				records = append(records, record.Clone())
			}
		}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}

	sort.Slice(records, func(i, j int) bool {
		if records[i].Priority != records[j].Priority {
			return records[i].Priority < records[j].Priority
		}
		if !records[i].CreatedAt.Equal(records[j].CreatedAt) {
			return records[i].CreatedAt.Before(records[j].CreatedAt)
		}
		return records[i].ID < records[j].ID
	})

	total := len(records)
	offset, end := pageBounds(filter.Offset, filter.Limit, total)
	return records[offset:end], total, nil
}

// ListDue returns pending repairs whose retry window has opened.
func (s *BadgerStore) ListDue(ctx context.Context, now time.Time) ([]*TransactionRepair, error) {
	pending, _, err := s.List(ctx, ListFilter{Status: string(StatusPending)})
	if err != nil {
		return nil, err
	}
	due := make([]*TransactionRepair, 0, len(pending))
	for _, record := range pending {
		if record.CanRetry(now) {
			due = append(due, record)
		}
	}
	return due, nil
}

// Delete removes one repair record and its index entries.
func (s *BadgerStore) Delete(ctx context.Context, id string) error {
	key := []byte(repairDataKey(id))
	return s.db.Update(func(txn *badger.Txn) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		item, err := txn.Get(key)
		if err != nil {
			if err == badger.ErrKeyNotFound {
				return ErrNotFound
			}
			return err
		}

		var record TransactionRepair
		if err := item.Value(func(v []byte) error { return json.Unmarshal(v, &record) }); err != nil {
			return err
		}
		if err := txn.Delete(key); err != nil {
			return err
		}
		_ = txn.Delete([]byte(repairStatusIndexKey(string(record.RepairStatus), id)))
		if record.ParentTransactionID != "" {
			_ = txn.Delete([]byte(repairParentIndexKey(record.ParentTransactionID)))
		}
		return nil
	})
}

func (s *BadgerStore) getInTxn(txn *badger.Txn, id string) (*TransactionRepair, error) {
	item, err := txn.Get([]byte(repairDataKey(id)))
	if err != nil {
		return nil, err
	}
	var record TransactionRepair
	if err := item.Value(func(v []byte) error { return json.Unmarshal(v, &record) }); err != nil {
		return nil, err
	}
	return &record, nil
}

func repairDataKey(id string) string {
	return repairKeyPrefix + id
}

func repairStatusIndexPrefix(status string) string {
	return repairIndexStatusPrefix + status + ":"
}

func repairStatusIndexKey(status, id string) string {
	return repairStatusIndexPrefix(status) + id
}

func repairParentIndexKey(sagaID string) string {
	return repairIndexParentPrefix + sagaID
}
