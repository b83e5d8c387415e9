package reconciler

import (
	"context"

	"location-sync-service/internal/models"
	"location-sync-service/internal/store"
	"location-sync-service/pkg/errors"
)

const missingValue = "missing"

// locationAttributeColumns are the location file columns kept on a created location
var locationAttributeColumns = []string{
	models.ColStreet,
	models.ColCity,
	models.ColState,
	models.ColPostcode,
	models.ColBranch,
	models.ColContractNumber,
}

// systemAttributeColumns are the system file columns kept on a created system
var systemAttributeColumns = []string{
	models.ColEquipmentID,
	models.ColEquipmentDesc,
	models.ColSystem,
}

func attributesFrom(row models.Row, columns []string) map[string]string {
	attributes := make(map[string]string, len(columns))
	for _, column := range columns {
		if v := row.Get(column); v != "" {
			attributes[column] = v
		}
	}
	return attributes
}

func checkContext(ctx context.Context, operation string) error {
	if err := ctx.Err(); err != nil {
		return errors.InternalError(errors.CodeUnexpectedError, operation, err)
	}
	return nil
}

// loadIndex lists the records of kind and indexes them by business key
func (s *SyncService) loadIndex(ctx context.Context, kind models.Kind) (*RecordIndex, error) {
	records, err := s.store.List(ctx, kind, "")
	if err != nil {
		return nil, storeFailure(errors.CodeStoreRead, "list "+kind.String(), err)
	}
	return NewRecordIndex(records), nil
}

// titles resolves and caches the titles of parent records
type titles struct {
	store store.RecordStore
	cache map[string]string
}

func newTitles(rs store.RecordStore) *titles {
	return &titles{store: rs, cache: make(map[string]string)}
}

func (t *titles) parentOf(ctx context.Context, r *models.Record) (string, error) {
	if r.ParentUID == "" {
		return "", nil
	}
	if title, ok := t.cache[r.ParentUID]; ok {
		return title, nil
	}
	parent, err := t.store.Get(ctx, r.ParentUID)
	if err != nil {
		return "", storeFailure(errors.CodeStoreRead, "get parent", err)
	}
	t.cache[r.ParentUID] = parent.Title
	return parent.Title, nil
}

// reconcileAccounts applies the account rules. Accounts are indexed once; a
// created account is added to the index so a repeated row finds it.
func (s *SyncService) reconcileAccounts(ctx context.Context, p *pass) (bool, error) {
	accounts, err := s.loadIndex(ctx, models.KindAccount)
	if err != nil {
		return false, err
	}

	for i, row := range p.rows {
		if err := checkContext(ctx, "reconcile accounts"); err != nil {
			return false, err
		}

		number := row.Get(models.ColCustomerNumber)
		name := row.Get(models.ColAccountName)
		inactive := row.Flag(models.ColInactive) || row.Flag(models.ColOnHold)

		if number == "" {
			p.rowError("Client on row %d with name %s has no Customer_Number field", i, row.GetOr(models.ColAccountName, missingValue))
			continue
		}

		account, found := accounts.First(number)
		if !found {
			if inactive {
				p.log.Infof("Client %s doesn't exists but is marked as inactive/on_hold", name)
				continue
			}
			created, err := s.store.Create(ctx, models.KindAccount, "", store.Fields{Key: number, Title: name})
			if err != nil {
				return false, storeFailure(errors.CodeStoreWrite, "create account", err)
			}
			accounts.Add(created)
			p.log.Actionf("Created Client %s", name)
			continue
		}

		p.log.Infof("Found Client %s", name)

		if inactive {
			if !account.IsActive() {
				p.log.Infof("Client %s already inactive", name)
				continue
			}
			if err := s.store.SetState(ctx, account.UID, models.StateInactive); err != nil {
				return false, storeFailure(errors.CodeStoreWrite, "deactivate account", err)
			}
			account.State = models.StateInactive
			p.log.Actionf("Deactivate Client %s", name)
			continue
		}

		// Reactivation and rename are never applied to the same row.
		if !account.IsActive() {
			if err := s.store.SetState(ctx, account.UID, models.StateActive); err != nil {
				return false, storeFailure(errors.CodeStoreWrite, "activate account", err)
			}
			account.State = models.StateActive
			p.log.Actionf("Activate Client %s", name)
			continue
		}

		if account.Title != name {
			old := account.Title
			if err := s.store.SetTitle(ctx, account.UID, name); err != nil {
				return false, storeFailure(errors.CodeStoreWrite, "rename account", err)
			}
			account.Title = name
			p.log.Actionf("Rename Client '%s' title to %s", old, name)
		}
	}

	return true, nil
}

// reconcileLocations applies the location rules. Locations are looked up per
// row under the resolved account, so a repeated row finds the one just created.
func (s *SyncService) reconcileLocations(ctx context.Context, p *pass) (bool, error) {
	accounts, err := s.loadIndex(ctx, models.KindAccount)
	if err != nil {
		return false, err
	}

	for i, row := range p.rows {
		if err := checkContext(ctx, "reconcile locations"); err != nil {
			return false, err
		}

		number := row.Get(models.ColCustomerNumber)
		locationID := row.Get(models.ColLocationsID)
		name := row.Get(models.ColLocationName)

		account, found := accounts.First(number)
		if !found {
			p.rowError("Client %s on row %d in locations file not found in DB", number, i)
			continue
		}
		p.log.Infof("Found Client %s", number)

		if locationID == "" {
			p.rowError("Location on row %d with name %s in client %s has no Locations_id field", i, row.GetOr(models.ColLocationName, missingValue), account.Title)
			continue
		}

		_, err := s.store.Find(ctx, models.KindLocation, locationID, account.UID)
		if err == nil {
			p.log.Infof("Found location %s", locationID)
			continue
		}
		if !store.IsNotFound(err) {
			return false, storeFailure(errors.CodeStoreRead, "find location", err)
		}

		if row.Flag(models.ColHold) {
			p.log.Infof("Location %s in Client %s doesn't exists but is marked as Hold", name, account.Title)
			continue
		}

		location, err := s.store.Create(ctx, models.KindLocation, account.UID, store.Fields{
			Key:        locationID,
			Title:      name,
			Attributes: attributesFrom(row, locationAttributeColumns),
		})
		if err != nil {
			return false, storeFailure(errors.CodeStoreWrite, "create location", err)
		}
		p.log.Actionf("Created location %s", location.Title)
	}

	return true, nil
}

// reconcileSystems applies the system rules. Unless MatchExistingSystems is
// set, existing systems are not consulted and every eligible row creates one.
func (s *SyncService) reconcileSystems(ctx context.Context, p *pass) (bool, error) {
	locations, err := s.loadIndex(ctx, models.KindLocation)
	if err != nil {
		return false, err
	}
	clients := newTitles(s.store)

	for i, row := range p.rows {
		if err := checkContext(ctx, "reconcile systems"); err != nil {
			return false, err
		}

		systemID := row.Get(models.ColSystemID)
		locationID := row.Get(models.ColLocationID)
		name := row.Get(models.ColSystemName)

		if systemID == "" {
			p.rowError("System on row %d with name %s in location %s has no SystemID field",
				i, row.GetOr(models.ColSystemName, missingValue), row.GetOr(models.ColLocationID, missingValue))
			continue
		}

		location, found := locations.First(locationID)
		if !found {
			p.rowError("Location %s on row %d in systems file not found in DB", locationID, i)
			continue
		}
		p.log.Infof("Found Location %s", locationID)

		if s.config.MatchExistingSystems {
			_, err := s.store.Find(ctx, models.KindSystem, systemID, location.UID)
			if err == nil {
				p.log.Infof("Found System %s", systemID)
				continue
			}
			if !store.IsNotFound(err) {
				return false, storeFailure(errors.CodeStoreRead, "find system", err)
			}
		}

		if row.Flag(models.ColInactiveRetiredFlag) {
			p.log.Infof("System %s in location %s doesn't exists but is marked as Inactive_Retired_Flag", name, location.Title)
			continue
		}

		system, err := s.store.Create(ctx, models.KindSystem, location.UID, store.Fields{
			Key:        systemID,
			Title:      name,
			Attributes: attributesFrom(row, systemAttributeColumns),
		})
		if err != nil {
			return false, storeFailure(errors.CodeStoreWrite, "create system", err)
		}

		client, err := clients.parentOf(ctx, location)
		if err != nil {
			return false, err
		}
		p.log.Actionf("Created system %s in location %s in client %s", system.Title, location.Title, client)
	}

	return true, nil
}

// reconcileContacts applies the contact rules. The contact pool is indexed
// once and extended as contacts are created; manager links are read per row.
func (s *SyncService) reconcileContacts(ctx context.Context, p *pass) (bool, error) {
	locations, err := s.loadIndex(ctx, models.KindLocation)
	if err != nil {
		return false, err
	}
	pool, err := s.loadIndex(ctx, models.KindContact)
	if err != nil {
		return false, err
	}
	clients := newTitles(s.store)

	for i, row := range p.rows {
		if err := checkContext(ctx, "reconcile contacts"); err != nil {
			return false, err
		}

		contactID := row.Get(models.ColContactID)
		locationID := row.Get(models.ColLocationsID)
		email := row.Get(models.ColEmail)

		if contactID == "" {
			p.rowError("Contact on row %d in location %s has no contactID field", i, row.GetOr(models.ColLocationsID, missingValue))
			continue
		}
		if locationID == "" {
			p.rowError("Contact on row %d with contactID %s has no Locations_id field", i, contactID)
			continue
		}

		location, found := locations.First(locationID)
		if !found {
			p.rowError("Location %s on row %d in contacts file not found in DB", locationID, i)
			continue
		}
		p.log.Infof("Found Location %s", locationID)

		managers, err := s.store.Managers(ctx, location.UID)
		if err != nil {
			return false, storeFailure(errors.CodeStoreRead, "list managers", err)
		}
		client, err := clients.parentOf(ctx, location)
		if err != nil {
			return false, err
		}

		if attached := NewRecordIndex(managers); attached.Contains(contactID) {
			p.log.Infof("Found contact %s in location %s", contactID, location.Title)
			if s.config.RefreshContactEmail {
				contact, _ := attached.First(contactID)
				if contact.Email != email {
					if err := s.store.SetEmail(ctx, contact.UID, email); err != nil {
						return false, storeFailure(errors.CodeStoreWrite, "update contact email", err)
					}
					if pooled, ok := pool.First(contactID); ok && pooled.UID == contact.UID {
						pooled.Email = email
					}
					p.log.Actionf("Updated email of contact %s in location %s", contactID, location.Title)
				}
			}
			continue
		}

		contact, found := pool.First(contactID)
		if found {
			p.log.Infof("Found lab contact %s", contactID)
		} else {
			title := row.Get(models.ColContactName)
			contact, err = s.store.Create(ctx, models.KindContact, "", store.Fields{Key: contactID, Title: title})
			if err != nil {
				return false, storeFailure(errors.CodeStoreWrite, "create contact", err)
			}
			pool.Add(contact)
			p.log.Actionf("Created contact %s for location %s in client %s", contactID, location.Title, client)
		}

		if err := s.store.Attach(ctx, location.UID, contact.UID); err != nil {
			return false, storeFailure(errors.CodeStoreWrite, "attach contact", err)
		}
		if err := s.store.SetEmail(ctx, contact.UID, email); err != nil {
			return false, storeFailure(errors.CodeStoreWrite, "set contact email", err)
		}
		contact.Email = email
		p.log.Actionf("Added contact %s to location %s in client %s", contact.Title, location.Title, client)
	}

	return true, nil
}
