package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/Medi-Pal/medipal/internal/config"
	"github.com/dgraph-io/badger/v4"
	_ "github.com/glebarez/go-sqlite" // Pure Go SQLite driver
	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Store provides unified access to the SQLite prescription cache and the
// BadgerDB preference store
type Store struct {
	db *gorm.DB
	kv *KV

	lockMu sync.Mutex
	locks  map[string]*prescriptionLock

	watchMu  sync.Mutex
	watchers map[int]chan []Prescription
	nextID   int
}

type prescriptionLock struct {
	mu   sync.Mutex
	refs int
}

// New opens SQLite and BadgerDB at the configured paths
func New(cfg *config.Config) (*Store, error) {
	sqlitePath := cfg.Storage.SQLitePath
	if sqlitePath == "" {
		sqlitePath = filepath.Join(cfg.Storage.DataDir, "medipal.db")
	}

	db, err := OpenSQLite(sqlitePath + "?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, err
	}

	badgerPath := cfg.Storage.BadgerPath
	if badgerPath == "" {
		badgerPath = filepath.Join(cfg.Storage.DataDir, "badger")
	}

	badgerOpts := badger.DefaultOptions(badgerPath).
		WithLogger(nil).
		WithNumVersionsToKeep(1).
		WithCompactL0OnClose(true).
		WithValueLogFileSize(16 << 20).
		WithMemTableSize(16 << 20)

	badgerDB, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger: %w", err)
	}

	return NewWithDB(db, NewKV(badgerDB))
}

// OpenSQLite opens a gorm handle on the pure Go sqlite driver and migrates
// the schema. A single connection keeps ":memory:" databases shared.
func OpenSQLite(dsn string) (*gorm.DB, error) {
	sqliteDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}

	sqliteDB.SetMaxOpenConns(1)
	sqliteDB.SetConnMaxLifetime(time.Hour)

	db, err := gorm.Open(sqlite.Dialector{Conn: sqliteDB}, &gorm.Config{
		Logger:                 logger.Default.LogMode(logger.Silent),
		SkipDefaultTransaction: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}

	if err := db.AutoMigrate(
		&Prescription{},
		&User{},
		&EmergencyContact{},
	); err != nil {
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}

	return db, nil
}

// NewWithDB builds a Store over already opened handles
func NewWithDB(db *gorm.DB, kv *KV) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlite handle is required")
	}
	return &Store{
		db:       db,
		kv:       kv,
		locks:    make(map[string]*prescriptionLock),
		watchers: make(map[int]chan []Prescription),
	}, nil
}

// Close closes all database connections
func (s *Store) Close() error {
	s.watchMu.Lock()
	for id, ch := range s.watchers {
		close(ch)
		delete(s.watchers, id)
	}
	s.watchMu.Unlock()

	var errs []error
	if s.kv != nil {
		errs = append(errs, s.kv.Close())
	}
	if sqlDB, err := s.db.DB(); err == nil {
		errs = append(errs, sqlDB.Close())
	}
	return errors.Join(errs...)
}

// DB returns the GORM database instance
func (s *Store) DB() *gorm.DB {
	return s.db
}

// KV returns the preference store
func (s *Store) KV() *KV {
	return s.kv
}

// ==================== Prescription Methods ====================

// ListPrescriptions returns every cached prescription, newest first
func (s *Store) ListPrescriptions(ctx context.Context) ([]Prescription, error) {
	var out []Prescription
	err := s.db.WithContext(ctx).Order("created_at DESC").Find(&out).Error
	return out, err
}

// GetPrescription returns the cached prescription or nil when absent
func (s *Store) GetPrescription(ctx context.Context, id string) (*Prescription, error) {
	var p Prescription
	if err := s.db.WithContext(ctx).First(&p, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

// UpsertPrescription inserts or replaces a single prescription
func (s *Store) UpsertPrescription(ctx context.Context, p *Prescription) error {
	if err := s.db.WithContext(ctx).Save(p).Error; err != nil {
		return err
	}
	s.publish(ctx)
	return nil
}

// UpsertPrescriptions writes a batch in one transaction
func (s *Store) UpsertPrescriptions(ctx context.Context, ps []Prescription) error {
	if len(ps) == 0 {
		return nil
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i := range ps {
			if err := tx.Save(&ps[i]).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.publish(ctx)
	return nil
}

// ClearPrescriptions removes every cached prescription
func (s *Store) ClearPrescriptions(ctx context.Context) error {
	if err := s.db.WithContext(ctx).Where("1 = 1").Delete(&Prescription{}).Error; err != nil {
		return err
	}
	s.publish(ctx)
	return nil
}

// ReplacePrescriptions clears the cache and writes ps in one transaction, so
// readers never observe the empty cache in between
func (s *Store) ReplacePrescriptions(ctx context.Context, ps ...Prescription) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&Prescription{}).Error; err != nil {
			return err
		}
		for i := range ps {
			if err := tx.Save(&ps[i]).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.publish(ctx)
	return nil
}

// LockPrescription enters the per-id critical section and returns the
// matching unlock func
func (s *Store) LockPrescription(id string) func() {
	s.lockMu.Lock()
	l, ok := s.locks[id]
	if !ok {
		l = &prescriptionLock{}
		s.locks[id] = l
	}
	l.refs++
	s.lockMu.Unlock()

	l.mu.Lock()

	return func() {
		l.mu.Unlock()
		s.lockMu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.locks, id)
		}
		s.lockMu.Unlock()
	}
}

// WatchPrescriptions emits the current snapshot and then one snapshot per
// committed write until ctx is done. Slow readers only see the latest one.
func (s *Store) WatchPrescriptions(ctx context.Context) <-chan []Prescription {
	ch := make(chan []Prescription, 1)

	s.watchMu.Lock()
	id := s.nextID
	s.nextID++
	s.watchers[id] = ch
	s.watchMu.Unlock()

	if snapshot, err := s.ListPrescriptions(ctx); err == nil {
		offer(ch, snapshot)
	}

	go func() {
		<-ctx.Done()
		s.watchMu.Lock()
		if c, ok := s.watchers[id]; ok {
			close(c)
			delete(s.watchers, id)
		}
		s.watchMu.Unlock()
	}()

	return ch
}

func (s *Store) publish(ctx context.Context) {
	s.watchMu.Lock()
	defer s.watchMu.Unlock()

	if len(s.watchers) == 0 {
		return
	}

	snapshot, err := s.ListPrescriptions(context.WithoutCancel(ctx))
	if err != nil {
		return
	}
	for _, ch := range s.watchers {
		offer(ch, snapshot)
	}
}

// offer replaces any unread snapshot with the newer one
func offer(ch chan []Prescription, snapshot []Prescription) {
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- snapshot:
	default:
	}
}

// ==================== User Methods ====================

// SaveUser stores the profile and marks it as the current user
func (s *Store) SaveUser(ctx context.Context, u *User) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&User{}).Where("phone_number <> ?", u.PhoneNumber).Update("is_current", false).Error; err != nil {
			return err
		}
		u.Current = true
		return tx.Save(u).Error
	})
}

// CurrentUser returns the signed-in user or nil
func (s *Store) CurrentUser(ctx context.Context) (*User, error) {
	var u User
	if err := s.db.WithContext(ctx).Where("is_current = ?", true).First(&u).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &u, nil
}

// SignOut clears the current user flag
func (s *Store) SignOut(ctx context.Context) error {
	return s.db.WithContext(ctx).Model(&User{}).Where("is_current = ?", true).Update("is_current", false).Error
}

// ==================== Emergency Contact Methods ====================

// ListContacts returns every emergency contact in insertion order
func (s *Store) ListContacts(ctx context.Context) ([]EmergencyContact, error) {
	var out []EmergencyContact
	err := s.db.WithContext(ctx).Order("created_at ASC").Find(&out).Error
	return out, err
}

// AddContact stores a new contact, assigning an id when empty
func (s *Store) AddContact(ctx context.Context, c *EmergencyContact) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	return s.db.WithContext(ctx).Create(c).Error
}

// DeleteContact removes a contact by id
func (s *Store) DeleteContact(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Delete(&EmergencyContact{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
