// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package settings implements the system settings key/value store the providers consult for their enable
// toggles, with change notification and optional bbolt persistence.
package settings

import (
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/wneessen/locationd/internal/logger"
)

// Key names a setting.
type Key string

const (
	// UseMyLocation is the master location toggle, also gating the hybrid and fused providers.
	UseMyLocation Key = "location.use_my_location"
	GPSEnabled    Key = "location.enabled"
	WPSEnabled    Key = "location.network_enabled"
	MockEnabled   Key = "location.mock_enabled"
	// GPSState holds one of the State values reported by the GPS backend.
	GPSState Key = "location.gps_state"
	WPSState Key = "location.wps_state"
	// Restricted is set when location access is restricted system wide.
	Restricted       Key = "location.restrict"
	LastGPSTimestamp Key = "location.last_gps_timestamp"
	LastWPSTimestamp Key = "location.last_wps_timestamp"
)

// State values of GPSState and WPSState.
const (
	StateOff       = 0
	StateSearching = 1
	StateConnected = 2
)

const bucketName = "settings"

var ErrUnknownKey = errors.New("unknown setting")

// Defaults returns the initial value of every known setting.
func Defaults() map[Key]int {
	return map[Key]int{
		UseMyLocation:    1,
		GPSEnabled:       1,
		WPSEnabled:       1,
		MockEnabled:      0,
		GPSState:         StateOff,
		WPSState:         StateOff,
		Restricted:       0,
		LastGPSTimestamp: 0,
		LastWPSTimestamp: 0,
	}
}

// Handler is notified about a changed setting.
type Handler func(key Key, value int)

// Option configures a Store.
type Option func(*Store)

// WithDispatcher routes change notifications through dispatch, typically an event loop's Post. Without a
// dispatcher handlers run synchronously on the goroutine that changed the value.
func WithDispatcher(dispatch func(func())) Option {
	return func(s *Store) {
		s.dispatch = dispatch
	}
}

// WithLogger sets the logger of the Store.
func WithLogger(log *logger.Logger) Option {
	return func(s *Store) {
		s.logger = logger.OrDiscard(log)
	}
}

// WithValues overrides initial values.
func WithValues(values map[Key]int) Option {
	return func(s *Store) {
		maps.Copy(s.values, values)
	}
}

type watcher struct {
	id uint64
	fn Handler
}

// Store is a concurrency safe settings store.
type Store struct {
	mu       sync.Mutex
	values   map[Key]int
	watchers map[Key][]watcher
	nextID   uint64
	dispatch func(func())
	db       *bolt.DB
	logger   *logger.Logger
}

// New returns an in-memory Store initialised with Defaults.
func New(opts ...Option) *Store {
	store := &Store{
		values:   Defaults(),
		watchers: make(map[Key][]watcher),
		dispatch: func(fn func()) { fn() },
		logger:   logger.Discard(),
	}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

// Open returns a Store persisted in the bbolt database at path. Persisted values take precedence over
// defaults and values given by WithValues.
func Open(path string, opts ...Option) (*Store, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open settings database: %w", err)
	}

	store := New(opts...)
	err = db.Update(func(tx *bolt.Tx) error {
		bucket, err := tx.CreateBucketIfNotExists([]byte(bucketName))
		if err != nil {
			return fmt.Errorf("failed to create settings bucket: %w", err)
		}
		return bucket.ForEach(func(k, v []byte) error {
			if len(v) != 8 {
				store.logger.Warn("ignoring malformed persisted setting", slog.String("key", string(k)))
				return nil
			}
			store.values[Key(k)] = int(int64(binary.BigEndian.Uint64(v)))
			return nil
		})
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	store.db = db
	return store, nil
}

// Close closes the backing database, if any.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Keys returns all known keys in lexical order.
func (s *Store) Keys() []Key {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Sorted(maps.Keys(s.values))
}

// Int returns the value of key.
func (s *Store) Int(key Key) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	value, ok := s.values[key]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}
	return value, nil
}

// Bool returns whether key holds a non-zero value.
func (s *Store) Bool(key Key) (bool, error) {
	value, err := s.Int(key)
	return value != 0, err
}

// SetBool stores 1 for true and 0 for false.
func (s *Store) SetBool(key Key, value bool) error {
	if value {
		return s.SetInt(key, 1)
	}
	return s.SetInt(key, 0)
}

// SetInt stores value and notifies the watchers of key if it changed.
func (s *Store) SetInt(key Key, value int) error {
	s.mu.Lock()
	prev, known := s.values[key]
	if known && prev == value {
		s.mu.Unlock()
		return nil
	}
	if err := s.persist(key, value); err != nil {
		s.mu.Unlock()
		return err
	}
	s.values[key] = value
	handlers := make([]Handler, 0, len(s.watchers[key]))
	for _, w := range s.watchers[key] {
		handlers = append(handlers, w.fn)
	}
	dispatch := s.dispatch
	s.mu.Unlock()

	s.logger.Debug("setting changed", slog.String("key", string(key)), slog.Int("value", value))
	for _, fn := range handlers {
		dispatch(func() { fn(key, value) })
	}
	return nil
}

// Watch registers fn for changes of key. The returned function removes the registration and may be
// called more than once.
func (s *Store) Watch(key Key, fn Handler) (func(), error) {
	if fn == nil {
		return nil, errors.New("settings handler must not be nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.values[key]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}
	s.nextID++
	id := s.nextID
	s.watchers[key] = append(s.watchers[key], watcher{id: id, fn: fn})

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			s.watchers[key] = slices.DeleteFunc(s.watchers[key], func(w watcher) bool { return w.id == id })
		})
	}, nil
}

// Watchers returns the number of handlers registered for key.
func (s *Store) Watchers(key Key) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.watchers[key])
}

func (s *Store) persist(key Key, value int) error {
	if s.db == nil {
		return nil
	}
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(int64(value)))
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketName)).Put([]byte(key), buf)
	})
	if err != nil {
		return fmt.Errorf("failed to persist setting %s: %w", key, err)
	}
	return nil
}
