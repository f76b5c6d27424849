package store

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

// KV is the durable scalar preference store on BadgerDB. Keys are grouped
// into namespaces and every getter falls back to a default on a missing key.
type KV struct {
	db *badger.DB
}

// NewKV wraps an open BadgerDB
func NewKV(db *badger.DB) *KV {
	return &KV{db: db}
}

// OpenInMemoryKV opens a throwaway BadgerDB, used by tests and dry runs
func OpenInMemoryKV() (*KV, error) {
	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	if err != nil {
		return nil, fmt.Errorf("failed to open badger: %w", err)
	}
	return NewKV(db), nil
}

// Close closes the underlying BadgerDB
func (k *KV) Close() error {
	return k.db.Close()
}

// Badger returns the BadgerDB instance
func (k *KV) Badger() *badger.DB {
	return k.db
}

func prefKey(namespace, key string) []byte {
	return []byte("pref:" + namespace + ":" + key)
}

func (k *KV) get(key []byte) ([]byte, bool, error) {
	var val []byte
	err := k.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		return item.Value(func(v []byte) error {
			val = append([]byte{}, v...)
			return nil
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return val, true, nil
}

func (k *KV) set(key, value []byte, ttl time.Duration) error {
	return k.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry(key, value)
		if ttl > 0 {
			e = e.WithTTL(ttl)
		}
		return txn.SetEntry(e)
	})
}

// ==================== Preference Methods ====================

// GetBool returns the stored flag or def when the key was never written
func (k *KV) GetBool(namespace, key string, def bool) (bool, error) {
	raw, ok, err := k.get(prefKey(namespace, key))
	if err != nil || !ok {
		return def, err
	}
	v, err := strconv.ParseBool(string(raw))
	if err != nil {
		return def, fmt.Errorf("corrupt bool at %s/%s: %w", namespace, key, err)
	}
	return v, nil
}

// SetBool durably writes a flag
func (k *KV) SetBool(namespace, key string, value bool) error {
	return k.set(prefKey(namespace, key), []byte(strconv.FormatBool(value)), 0)
}

// GetInt returns the stored integer or def when the key was never written
func (k *KV) GetInt(namespace, key string, def int) (int, error) {
	raw, ok, err := k.get(prefKey(namespace, key))
	if err != nil || !ok {
		return def, err
	}
	v, err := strconv.Atoi(string(raw))
	if err != nil {
		return def, fmt.Errorf("corrupt int at %s/%s: %w", namespace, key, err)
	}
	return v, nil
}

// SetInt durably writes an integer
func (k *KV) SetInt(namespace, key string, value int) error {
	return k.set(prefKey(namespace, key), []byte(strconv.Itoa(value)), 0)
}

// Keys lists the keys written under namespace
func (k *KV) Keys(namespace string) ([]string, error) {
	prefix := prefKey(namespace, "")
	var keys []string
	err := k.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			keys = append(keys, string(it.Item().Key()[len(prefix):]))
		}
		return nil
	})
	return keys, err
}

// ==================== Session Methods ====================

// SetSession stores session data with a TTL
func (k *KV) SetSession(key string, value []byte, ttl time.Duration) error {
	return k.set([]byte("session:"+key), value, ttl)
}

// GetSession retrieves session data, nil when absent or expired
func (k *KV) GetSession(key string) ([]byte, error) {
	val, _, err := k.get([]byte("session:" + key))
	return val, err
}

// DeleteSession removes session data
func (k *KV) DeleteSession(key string) error {
	return k.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte("session:" + key))
	})
}

// ==================== Action Token Methods ====================

// PutAction stores payload under a fresh one-shot token
func (k *KV) PutAction(payload []byte, ttl time.Duration) (string, error) {
	token := uuid.New().String()
	if err := k.set([]byte("action:"+token), payload, ttl); err != nil {
		return "", err
	}
	return token, nil
}

// TakeAction returns and deletes the payload for token, nil when unknown
func (k *KV) TakeAction(token string) ([]byte, error) {
	var payload []byte
	key := []byte("action:" + token)
	err := k.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		if err := item.Value(func(v []byte) error {
			payload = append([]byte{}, v...)
			return nil
		}); err != nil {
			return err
		}
		return txn.Delete(key)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	return payload, err
}
