package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"location-sync-service/internal/models"
	"location-sync-service/pkg/logger"
)

// MemoryStore is a RecordStore held in process memory
type MemoryStore struct {
	mu       sync.RWMutex
	records  map[string]*models.Record
	order    []string
	managers map[string][]string
	now      func() time.Time
	logger   logger.Logger
}

// MemoryOption configures a MemoryStore
type MemoryOption func(*MemoryStore)

// WithMemoryClock overrides the creation time source
func WithMemoryClock(now func() time.Time) MemoryOption {
	return func(s *MemoryStore) {
		s.now = now
	}
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		records:  make(map[string]*models.Record),
		managers: make(map[string][]string),
		now:      time.Now,
		logger:   logger.GetGlobalLogger().WithComponent("memory_store"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns the record with the given uid
func (s *MemoryStore) Get(ctx context.Context, uid string) (*models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.records[uid]
	if !ok {
		return nil, fmt.Errorf("uid %q: %w", uid, ErrNotFound)
	}
	return r.Clone(), nil
}

// Find returns the first record of kind with the exact key
func (s *MemoryStore) Find(ctx context.Context, kind models.Kind, key, parentUID string) (*models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, uid := range s.order {
		r := s.records[uid]
		if r.Kind == kind && r.Key == key && (parentUID == "" || r.ParentUID == parentUID) {
			return r.Clone(), nil
		}
	}
	return nil, fmt.Errorf("%s %q: %w", kind.Singular(), key, ErrNotFound)
}

// List returns the records of kind in creation order
func (s *MemoryStore) List(ctx context.Context, kind models.Kind, parentUID string) ([]*models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []*models.Record{}
	for _, uid := range s.order {
		r := s.records[uid]
		if r.Kind == kind && (parentUID == "" || r.ParentUID == parentUID) {
			out = append(out, r.Clone())
		}
	}
	return out, nil
}

// Create adds an active record
func (s *MemoryStore) Create(ctx context.Context, kind models.Kind, parentUID string, fields Fields) (*models.Record, error) {
	if !kind.IsValid() {
		return nil, fmt.Errorf("%q: %w", kind, ErrInvalidKind)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var parent *models.Record
	if parentUID != "" {
		parent = s.records[parentUID]
	}
	if err := CheckParent(kind, parentUID, parent); err != nil {
		return nil, err
	}

	r := &models.Record{
		UID:       NewUID(),
		Kind:      kind,
		Key:       fields.Key,
		ParentUID: parentUID,
		Title:     fields.Title,
		State:     models.StateActive,
		Email:     fields.Email,
		CreatedAt: s.now().UTC(),
	}
	if len(fields.Attributes) > 0 {
		r.Attributes = make(map[string]string, len(fields.Attributes))
		for k, v := range fields.Attributes {
			r.Attributes[k] = v
		}
	}

	s.records[r.UID] = r
	s.order = append(s.order, r.UID)

	s.logger.WithFields(logger.Fields{
		"kind": kind,
		"key":  r.Key,
		"uid":  r.UID,
	}).Debug("Created record")

	return r.Clone(), nil
}

func (s *MemoryStore) update(uid string, fn func(*models.Record)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.records[uid]
	if !ok {
		return fmt.Errorf("uid %q: %w", uid, ErrNotFound)
	}
	fn(r)
	return nil
}

// SetState changes the lifecycle state of a record
func (s *MemoryStore) SetState(ctx context.Context, uid string, state models.State) error {
	if !state.IsValid() {
		return fmt.Errorf("invalid state %q", state)
	}
	return s.update(uid, func(r *models.Record) { r.State = state })
}

// SetTitle renames a record
func (s *MemoryStore) SetTitle(ctx context.Context, uid, title string) error {
	return s.update(uid, func(r *models.Record) { r.Title = title })
}

// SetEmail changes the email of a record
func (s *MemoryStore) SetEmail(ctx context.Context, uid, email string) error {
	return s.update(uid, func(r *models.Record) { r.Email = email })
}

// Attach links a pooled contact to a location
func (s *MemoryStore) Attach(ctx context.Context, locationUID, contactUID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	location, ok := s.records[locationUID]
	if !ok || location.Kind != models.KindLocation {
		return fmt.Errorf("location %q: %w", locationUID, ErrNotFound)
	}
	contact, ok := s.records[contactUID]
	if !ok || contact.Kind != models.KindContact {
		return fmt.Errorf("contact %q: %w", contactUID, ErrNotFound)
	}

	s.managers[locationUID] = append(s.managers[locationUID], contactUID)
	return nil
}

// Managers returns the contacts linked to a location
func (s *MemoryStore) Managers(ctx context.Context, locationUID string) ([]*models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.records[locationUID]; !ok {
		return nil, fmt.Errorf("location %q: %w", locationUID, ErrNotFound)
	}

	out := []*models.Record{}
	for _, uid := range s.managers[locationUID] {
		if r, ok := s.records[uid]; ok {
			out = append(out, r.Clone())
		}
	}
	return out, nil
}

// Len returns the number of records held
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Close is a no-op
func (s *MemoryStore) Close() error {
	return nil
}

var _ RecordStore = (*MemoryStore)(nil)
