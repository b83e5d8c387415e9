// Package models holds the domain vocabulary shared by the sync components:
// the four entity kinds, their inbound file layouts, validated rows and the
// records kept in the record store.
package models

import (
	"fmt"
	"strings"
	"time"
)

// Kind identifies one of the four fixed entity categories
type Kind string

const (
	KindAccount  Kind = "Accounts"
	KindLocation Kind = "Locations"
	KindSystem   Kind = "Systems"
	KindContact  Kind = "Contacts"
)

// Kinds lists the entity kinds in dependency order
var Kinds = []Kind{KindAccount, KindLocation, KindSystem, KindContact}

// String returns the string representation of Kind
func (k Kind) String() string {
	return string(k)
}

// IsValid checks if the kind is one of the known kinds
func (k Kind) IsValid() bool {
	for _, known := range Kinds {
		if k == known {
			return true
		}
	}
	return false
}

// Singular returns the human name of one record of this kind
func (k Kind) Singular() string {
	switch k {
	case KindAccount:
		return "Client"
	case KindLocation:
		return "Location"
	case KindSystem:
		return "System"
	case KindContact:
		return "Contact"
	default:
		return string(k)
	}
}

// Account file columns
const (
	ColCustomerNumber = "Customer_Number"
	ColAccountName    = "Account_name"
	ColInactive       = "Inactive"
	ColOnHold         = "On_HOLD"
)

// Location file columns
const (
	ColLocationName   = "location_name"
	ColLocationsID    = "Locations_id"
	ColAccountManager = "account_manager1"
	ColStreet         = "street"
	ColCity           = "city"
	ColState          = "state"
	ColPostcode       = "postcode"
	ColBranch         = "branch"
	ColContractNumber = "Contract_Number"
	ColHold           = "HOLD"
	ColCancelBox      = "Cancel_Box"
)

// System file columns
const (
	ColLocationID          = "Location_id"
	ColEquipmentID         = "Equipment_ID"
	ColSystemID            = "SystemID"
	ColEquipmentDesc       = "Equipment_Description2"
	ColSystemName          = "system_name"
	ColInactiveRetiredFlag = "Inactive_Retired_Flag"
	ColSystem              = "system"
)

// Contact file columns
const (
	ColContactID   = "contactID"
	ColContactName = "WS_Contact_Name"
	ColEmail       = "email"
)

// FlagSet is the cell value that marks a boolean column as set
const FlagSet = "1"

// FileSpec describes one expected inbound file
type FileSpec struct {
	Kind     Kind     `json:"kind" yaml:"kind"`
	FileName string   `json:"file_name" yaml:"file_name"`
	Headers  []string `json:"headers" yaml:"headers"`
}

// Validate checks that the file spec is usable
func (fs FileSpec) Validate() error {
	if !fs.Kind.IsValid() {
		return fmt.Errorf("invalid file kind: %q", fs.Kind)
	}
	if strings.TrimSpace(fs.FileName) == "" {
		return fmt.Errorf("file name for %s cannot be empty", fs.Kind)
	}
	if len(fs.Headers) == 0 {
		return fmt.Errorf("headers for %s cannot be empty", fs.Kind)
	}
	return nil
}

// AccountHeaders is the header schema of the account file
func AccountHeaders() []string {
	return []string{ColCustomerNumber, ColAccountName, ColInactive, ColOnHold}
}

// LocationHeaders is the header schema of the location file
func LocationHeaders() []string {
	return []string{
		ColCustomerNumber, ColLocationName, ColLocationsID, ColAccountManager,
		ColStreet, ColCity, ColState, ColPostcode, ColBranch, ColContractNumber,
		ColHold, ColCancelBox,
	}
}

// SystemHeaders is the header schema of the system file
func SystemHeaders() []string {
	return []string{
		ColLocationID, ColEquipmentID, ColSystemID, ColEquipmentDesc,
		ColSystemName, ColInactiveRetiredFlag, ColSystem,
	}
}

// ContactHeaders is the header schema of the contact file
func ContactHeaders() []string {
	return []string{ColContactID, ColLocationsID, ColContactName, ColEmail}
}

// Default inbound file names
const (
	DefaultAccountFile  = "Account lims.csv"
	DefaultLocationFile = "location lims.csv"
	DefaultSystemFile   = "system lims.csv"
	DefaultContactFile  = "attention contact lims.csv"
)

// DefaultFileSpecs returns the four inbound files in dependency order
func DefaultFileSpecs() []FileSpec {
	return []FileSpec{
		{Kind: KindAccount, FileName: DefaultAccountFile, Headers: AccountHeaders()},
		{Kind: KindLocation, FileName: DefaultLocationFile, Headers: LocationHeaders()},
		{Kind: KindSystem, FileName: DefaultSystemFile, Headers: SystemHeaders()},
		{Kind: KindContact, FileName: DefaultContactFile, Headers: ContactHeaders()},
	}
}

// Row maps a header column name to its cleaned cell value
type Row map[string]string

// Get returns the value of a column, or "" when the column is absent
func (r Row) Get(column string) string {
	return r[column]
}

// GetOr returns the value of a column, or fallback when the column is absent
func (r Row) GetOr(column, fallback string) string {
	if v, ok := r[column]; ok {
		return v
	}
	return fallback
}

// Flag reports whether a boolean column is set
func (r Row) Flag(column string) bool {
	return r[column] == FlagSet
}

// State is the lifecycle state of a record
type State string

const (
	StateActive   State = "active"
	StateInactive State = "inactive"
)

// IsValid checks if the state is known
func (s State) IsValid() bool {
	return s == StateActive || s == StateInactive
}

// Record is an entity held by the record store. Key is the business key
// (customer number, location id, system id or contact id) and ParentUID
// links a record to its owner; pooled contacts have no parent.
type Record struct {
	UID        string            `json:"uid" yaml:"uid"`
	Kind       Kind              `json:"kind" yaml:"kind"`
	Key        string            `json:"key" yaml:"key"`
	ParentUID  string            `json:"parent_uid,omitempty" yaml:"parent_uid,omitempty"`
	Title      string            `json:"title" yaml:"title"`
	State      State             `json:"state" yaml:"state"`
	Email      string            `json:"email,omitempty" yaml:"email,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty" yaml:"attributes,omitempty"`
	CreatedAt  time.Time         `json:"created_at" yaml:"created_at"`
}

// Clone returns a deep copy of the record
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	c := *r
	if r.Attributes != nil {
		c.Attributes = make(map[string]string, len(r.Attributes))
		for k, v := range r.Attributes {
			c.Attributes[k] = v
		}
	}
	return &c
}

// IsActive reports whether the record is in the active state
func (r *Record) IsActive() bool {
	return r.State != StateInactive
}

// String returns a string representation of the Record
func (r *Record) String() string {
	return fmt.Sprintf("%s{Key: %s, Title: %s, State: %s}", r.Kind.Singular(), r.Key, r.Title, r.State)
}
