// Package store defines the record store the reconciliation engine reads and
// mutates, together with an in-memory implementation and YAML seed files.
//
// The store owns four kinds of records. Accounts are roots, Locations belong
// to an Account, Systems belong to a Location and Contacts live in a shared
// pool; a Location references pooled Contacts through its manager list.
package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"location-sync-service/internal/models"
	"location-sync-service/pkg/errors"
)

var (
	// ErrNotFound is returned when no record matches a lookup
	ErrNotFound = errors.NewPlain("record not found")
	// ErrParentNotFound is returned when a create names a missing or mismatched parent
	ErrParentNotFound = errors.NewPlain("parent record not found")
	// ErrInvalidKind is returned for an unknown record kind
	ErrInvalidKind = errors.NewPlain("invalid record kind")
)

// Fields carries the values of a record being created
type Fields struct {
	Key        string
	Title      string
	Email      string
	Attributes map[string]string
}

// RecordStore is the capability the reconciliation engine needs from the
// system of record. Every call is atomic and durable on return.
type RecordStore interface {
	// Get returns the record with the given uid
	Get(ctx context.Context, uid string) (*models.Record, error)
	// Find returns the first record, in creation order, of kind with the exact
	// business key. An empty parentUID searches every parent.
	Find(ctx context.Context, kind models.Kind, key, parentUID string) (*models.Record, error)
	// List returns the records of kind in creation order. An empty parentUID
	// lists every parent.
	List(ctx context.Context, kind models.Kind, parentUID string) ([]*models.Record, error)
	// Create adds an active record of kind under parentUID
	Create(ctx context.Context, kind models.Kind, parentUID string, fields Fields) (*models.Record, error)
	SetState(ctx context.Context, uid string, state models.State) error
	SetTitle(ctx context.Context, uid, title string) error
	SetEmail(ctx context.Context, uid, email string) error
	// Attach appends contactUID to the manager list of locationUID.
	// Attaching the same contact twice adds a second link.
	Attach(ctx context.Context, locationUID, contactUID string) error
	// Managers returns the contacts linked to locationUID in attachment order
	Managers(ctx context.Context, locationUID string) ([]*models.Record, error)
	Close() error
}

// ParentKind returns the kind a record of kind must be created under, or ""
// when records of kind have no parent
func ParentKind(kind models.Kind) models.Kind {
	switch kind {
	case models.KindLocation:
		return models.KindAccount
	case models.KindSystem:
		return models.KindLocation
	default:
		return ""
	}
}

// CheckParent validates that parent is an acceptable owner for a new record of kind
func CheckParent(kind models.Kind, parentUID string, parent *models.Record) error {
	want := ParentKind(kind)
	if want == "" {
		if parentUID != "" {
			return fmt.Errorf("%s records have no parent: %w", kind.Singular(), ErrParentNotFound)
		}
		return nil
	}
	if parent == nil {
		return fmt.Errorf("%s parent %q: %w", kind.Singular(), parentUID, ErrParentNotFound)
	}
	if parent.Kind != want {
		return fmt.Errorf("%s parent %q is a %s: %w", kind.Singular(), parentUID, parent.Kind.Singular(), ErrParentNotFound)
	}
	return nil
}

// NewUID returns a time-ordered identifier for a new record
func NewUID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// IsNotFound reports whether err is ErrNotFound
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
