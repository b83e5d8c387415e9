package store

import (
	"context"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"location-sync-service/internal/models"
	"location-sync-service/pkg/errors"
)

// SeedRecord is the portable form of one record in a seed file
type SeedRecord struct {
	Key        string            `yaml:"key"`
	Title      string            `yaml:"title"`
	State      models.State      `yaml:"state,omitempty"`
	Email      string            `yaml:"email,omitempty"`
	Attributes map[string]string `yaml:"attributes,omitempty"`
}

// SeedLocation is a location with its systems and manager contact keys
type SeedLocation struct {
	SeedRecord `yaml:",inline"`
	Systems    []SeedRecord `yaml:"systems,omitempty"`
	Managers   []string     `yaml:"managers,omitempty"`
}

// SeedAccount is an account with its locations
type SeedAccount struct {
	SeedRecord `yaml:",inline"`
	Locations  []SeedLocation `yaml:"locations,omitempty"`
}

// Seed is the YAML document describing a whole record store
type Seed struct {
	Accounts []SeedAccount `yaml:"accounts"`
	Contacts []SeedRecord  `yaml:"contacts"`
}

// LoadSeedFile reads a seed file into s
func LoadSeedFile(ctx context.Context, s RecordStore, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.FileError(errors.CodeFileNotFound, path, err)
	}
	defer f.Close()

	return LoadSeed(ctx, s, f)
}

// LoadSeed decodes a seed document and creates its records in s. Contacts are
// created first so that location manager keys can be resolved.
func LoadSeed(ctx context.Context, s RecordStore, r io.Reader) error {
	var seed Seed
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	if err := decoder.Decode(&seed); err != nil && err != io.EOF {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "seed", "", err)
	}

	contacts := make(map[string]string, len(seed.Contacts))
	for _, c := range seed.Contacts {
		rec, err := createSeeded(ctx, s, models.KindContact, "", c)
		if err != nil {
			return err
		}
		if _, dup := contacts[c.Key]; !dup {
			contacts[c.Key] = rec.UID
		}
	}

	for _, a := range seed.Accounts {
		account, err := createSeeded(ctx, s, models.KindAccount, "", a.SeedRecord)
		if err != nil {
			return err
		}
		for _, l := range a.Locations {
			location, err := createSeeded(ctx, s, models.KindLocation, account.UID, l.SeedRecord)
			if err != nil {
				return err
			}
			for _, sys := range l.Systems {
				if _, err := createSeeded(ctx, s, models.KindSystem, location.UID, sys); err != nil {
					return err
				}
			}
			for _, key := range l.Managers {
				contactUID, ok := contacts[key]
				if !ok {
					return errors.ConfigurationError(errors.CodeInvalidConfig, "seed.managers", key,
						fmt.Errorf("location %s references unknown contact %s", l.Key, key))
				}
				if err := s.Attach(ctx, location.UID, contactUID); err != nil {
					return errors.StoreError(errors.CodeStoreWrite, "seed attach", err)
				}
			}
		}
	}

	return nil
}

func createSeeded(ctx context.Context, s RecordStore, kind models.Kind, parentUID string, sr SeedRecord) (*models.Record, error) {
	rec, err := s.Create(ctx, kind, parentUID, Fields{
		Key:        sr.Key,
		Title:      sr.Title,
		Email:      sr.Email,
		Attributes: sr.Attributes,
	})
	if err != nil {
		return nil, errors.StoreError(errors.CodeStoreWrite, "seed create "+kind.Singular(), err)
	}
	if sr.State != "" && sr.State != models.StateActive {
		if err := s.SetState(ctx, rec.UID, sr.State); err != nil {
			return nil, errors.StoreError(errors.CodeStoreWrite, "seed state "+kind.Singular(), err)
		}
		rec.State = sr.State
	}
	return rec, nil
}

// DumpSeed writes the contents of s as a seed document
func DumpSeed(ctx context.Context, s RecordStore, w io.Writer) error {
	seed, err := Snapshot(ctx, s)
	if err != nil {
		return err
	}

	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)
	if err := encoder.Encode(seed); err != nil {
		return errors.InternalError(errors.CodeUnexpectedError, "encode seed", err)
	}
	return encoder.Close()
}

// Snapshot builds a seed document from the contents of s
func Snapshot(ctx context.Context, s RecordStore) (*Seed, error) {
	seed := &Seed{Accounts: []SeedAccount{}, Contacts: []SeedRecord{}}

	contacts, err := s.List(ctx, models.KindContact, "")
	if err != nil {
		return nil, errors.StoreError(errors.CodeStoreRead, "list contacts", err)
	}
	for _, c := range contacts {
		seed.Contacts = append(seed.Contacts, toSeedRecord(c))
	}

	accounts, err := s.List(ctx, models.KindAccount, "")
	if err != nil {
		return nil, errors.StoreError(errors.CodeStoreRead, "list accounts", err)
	}
	for _, a := range accounts {
		account := SeedAccount{SeedRecord: toSeedRecord(a)}

		locations, err := s.List(ctx, models.KindLocation, a.UID)
		if err != nil {
			return nil, errors.StoreError(errors.CodeStoreRead, "list locations", err)
		}
		for _, l := range locations {
			location := SeedLocation{SeedRecord: toSeedRecord(l)}

			systems, err := s.List(ctx, models.KindSystem, l.UID)
			if err != nil {
				return nil, errors.StoreError(errors.CodeStoreRead, "list systems", err)
			}
			for _, sys := range systems {
				location.Systems = append(location.Systems, toSeedRecord(sys))
			}

			managers, err := s.Managers(ctx, l.UID)
			if err != nil {
				return nil, errors.StoreError(errors.CodeStoreRead, "list managers", err)
			}
			for _, m := range managers {
				location.Managers = append(location.Managers, m.Key)
			}

			account.Locations = append(account.Locations, location)
		}
		seed.Accounts = append(seed.Accounts, account)
	}

	return seed, nil
}

func toSeedRecord(r *models.Record) SeedRecord {
	return SeedRecord{
		Key:        r.Key,
		Title:      r.Title,
		State:      r.State,
		Email:      r.Email,
		Attributes: r.Attributes,
	}
}
