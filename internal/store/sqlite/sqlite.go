// Package sqlite provides a SQLite-backed record store.
//
// The database is opened with:
//   - WAL journal mode
//   - NORMAL synchronous mode
//   - a 5 second busy timeout
//   - foreign key enforcement
//
// and a single connection, since SQLite allows one writer at a time. The
// schema is embedded and applied on every Open.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"location-sync-service/internal/models"
	"location-sync-service/internal/store"
	"location-sync-service/pkg/errors"
	"location-sync-service/pkg/logger"
)

//go:embed schema.sql
var schemaSQL string

var pragmas = []string{
	"PRAGMA journal_mode = WAL",
	"PRAGMA synchronous = NORMAL",
	"PRAGMA busy_timeout = 5000",
	"PRAGMA foreign_keys = ON",
}

const recordColumns = "uid, kind, business_key, parent_uid, title, state, email, attributes, created_at"

// Store is a RecordStore persisted in a SQLite database
type Store struct {
	db     *sql.DB
	now    func() time.Time
	logger logger.Logger
}

// Open creates or opens the database at path. Use ":memory:" for a private
// in-memory database.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.StoreError(errors.CodeStoreUnavailable, "open "+path, err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, errors.StoreError(errors.CodeStoreUnavailable, "connect "+path, err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, errors.StoreError(errors.CodeStoreUnavailable, pragma, err)
		}
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, errors.StoreError(errors.CodeStoreUnavailable, "apply schema", err)
	}

	log := logger.GetGlobalLogger().WithComponent("sqlite_store")
	log.WithField("path", path).Debug("Opened record store")

	return &Store{db: db, now: time.Now, logger: log}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row rowScanner) (*models.Record, error) {
	var (
		r          models.Record
		kind       string
		state      string
		attributes string
		createdAt  string
	)
	if err := row.Scan(&r.UID, &kind, &r.Key, &r.ParentUID, &r.Title, &state, &r.Email, &attributes, &createdAt); err != nil {
		return nil, err
	}
	r.Kind = models.Kind(kind)
	r.State = models.State(state)

	if attributes != "" && attributes != "{}" {
		if err := json.Unmarshal([]byte(attributes), &r.Attributes); err != nil {
			return nil, fmt.Errorf("decode attributes of %s: %w", r.UID, err)
		}
	}

	t, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return nil, fmt.Errorf("decode created_at of %s: %w", r.UID, err)
	}
	r.CreatedAt = t

	return &r, nil
}

func (s *Store) queryRecords(ctx context.Context, query string, args ...interface{}) ([]*models.Record, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []*models.Record{}
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Get returns the record with the given uid
func (s *Store) Get(ctx context.Context, uid string) (*models.Record, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+recordColumns+" FROM records WHERE uid = ?", uid)
	r, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("uid %q: %w", uid, store.ErrNotFound)
	}
	if err != nil {
		return nil, errors.StoreError(errors.CodeStoreRead, "get record", err)
	}
	return r, nil
}

// Find returns the first record of kind with the exact key
func (s *Store) Find(ctx context.Context, kind models.Kind, key, parentUID string) (*models.Record, error) {
	query := "SELECT " + recordColumns + " FROM records WHERE kind = ? AND business_key = ?"
	args := []interface{}{string(kind), key}
	if parentUID != "" {
		query += " AND parent_uid = ?"
		args = append(args, parentUID)
	}
	query += " ORDER BY id LIMIT 1"

	r, err := scanRecord(s.db.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%s %q: %w", kind.Singular(), key, store.ErrNotFound)
	}
	if err != nil {
		return nil, errors.StoreError(errors.CodeStoreRead, "find record", err)
	}
	return r, nil
}

// List returns the records of kind in creation order
func (s *Store) List(ctx context.Context, kind models.Kind, parentUID string) ([]*models.Record, error) {
	query := "SELECT " + recordColumns + " FROM records WHERE kind = ?"
	args := []interface{}{string(kind)}
	if parentUID != "" {
		query += " AND parent_uid = ?"
		args = append(args, parentUID)
	}
	query += " ORDER BY id"

	records, err := s.queryRecords(ctx, query, args...)
	if err != nil {
		return nil, errors.StoreError(errors.CodeStoreRead, "list records", err)
	}
	return records, nil
}

// Create adds an active record
func (s *Store) Create(ctx context.Context, kind models.Kind, parentUID string, fields store.Fields) (*models.Record, error) {
	if !kind.IsValid() {
		return nil, fmt.Errorf("%q: %w", kind, store.ErrInvalidKind)
	}

	var parent *models.Record
	if parentUID != "" {
		p, err := s.Get(ctx, parentUID)
		if err != nil && !store.IsNotFound(err) {
			return nil, err
		}
		parent = p
	}
	if err := store.CheckParent(kind, parentUID, parent); err != nil {
		return nil, err
	}

	attributes := "{}"
	if len(fields.Attributes) > 0 {
		data, err := json.Marshal(fields.Attributes)
		if err != nil {
			return nil, errors.StoreError(errors.CodeStoreWrite, "encode attributes", err)
		}
		attributes = string(data)
	}

	r := &models.Record{
		UID:       store.NewUID(),
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

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO records ("+recordColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)",
		r.UID, string(r.Kind), r.Key, r.ParentUID, r.Title, string(r.State), r.Email, attributes,
		r.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return nil, errors.StoreError(errors.CodeStoreWrite, "create "+kind.Singular(), err)
	}

	s.logger.WithFields(logger.Fields{
		"kind": kind,
		"key":  r.Key,
		"uid":  r.UID,
	}).Debug("Created record")

	return r, nil
}

func (s *Store) update(ctx context.Context, column, uid, value string) error {
	res, err := s.db.ExecContext(ctx, "UPDATE records SET "+column+" = ? WHERE uid = ?", value, uid)
	if err != nil {
		return errors.StoreError(errors.CodeStoreWrite, "update "+column, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.StoreError(errors.CodeStoreWrite, "update "+column, err)
	}
	if n == 0 {
		return fmt.Errorf("uid %q: %w", uid, store.ErrNotFound)
	}
	return nil
}

// SetState changes the lifecycle state of a record
func (s *Store) SetState(ctx context.Context, uid string, state models.State) error {
	if !state.IsValid() {
		return fmt.Errorf("invalid state %q", state)
	}
	return s.update(ctx, "state", uid, string(state))
}

// SetTitle renames a record
func (s *Store) SetTitle(ctx context.Context, uid, title string) error {
	return s.update(ctx, "title", uid, title)
}

// SetEmail changes the email of a record
func (s *Store) SetEmail(ctx context.Context, uid, email string) error {
	return s.update(ctx, "email", uid, email)
}

// Attach links a pooled contact to a location
func (s *Store) Attach(ctx context.Context, locationUID, contactUID string) error {
	location, err := s.Get(ctx, locationUID)
	if err != nil {
		return err
	}
	if location.Kind != models.KindLocation {
		return fmt.Errorf("location %q: %w", locationUID, store.ErrNotFound)
	}
	contact, err := s.Get(ctx, contactUID)
	if err != nil {
		return err
	}
	if contact.Kind != models.KindContact {
		return fmt.Errorf("contact %q: %w", contactUID, store.ErrNotFound)
	}

	_, err = s.db.ExecContext(ctx,
		"INSERT INTO account_managers (location_uid, contact_uid) VALUES (?, ?)",
		locationUID, contactUID,
	)
	if err != nil {
		return errors.StoreError(errors.CodeStoreWrite, "attach contact", err)
	}
	return nil
}

// Managers returns the contacts linked to a location in attachment order
func (s *Store) Managers(ctx context.Context, locationUID string) ([]*models.Record, error) {
	if _, err := s.Get(ctx, locationUID); err != nil {
		return nil, err
	}

	records, err := s.queryRecords(ctx,
		"SELECT r.uid, r.kind, r.business_key, r.parent_uid, r.title, r.state, r.email, r.attributes, r.created_at "+
			"FROM account_managers m JOIN records r ON r.uid = m.contact_uid "+
			"WHERE m.location_uid = ? ORDER BY m.id",
		locationUID,
	)
	if err != nil {
		return nil, errors.StoreError(errors.CodeStoreRead, "list managers", err)
	}
	return records, nil
}

var _ store.RecordStore = (*Store)(nil)
