// Package store persists generated packages and user preferences.
package store

import (
	"errors"

	"tubestudio/pkg/domain"
)

// ErrNotFound indicates the requested row does not exist for this owner.
var ErrNotFound = errors.New("not found")

// Store is the durable home of generated packages. Rows are scoped to the
// owning user; ids and creation timestamps are assigned on insert and never
// chosen by the client.
type Store interface {
	// InsertPackage stores a new package, assigning its id and creation
	// timestamp, and returns the persisted-shape value.
	InsertPackage(ownerID string, pkg domain.GeneratedPackage) (domain.GeneratedPackage, error)
	// SavePackage overwrites an existing package's content.
	SavePackage(ownerID string, pkg domain.GeneratedPackage) error
	// GetPackage fetches one package by id.
	GetPackage(ownerID, id string) (domain.GeneratedPackage, bool, error)
	// ListPackages returns the owner's packages ordered by recency; a
	// limit <= 0 means no limit.
	ListPackages(ownerID string, limit int) ([]domain.GeneratedPackage, error)
	// DeletePackage removes one package by id.
	DeletePackage(ownerID, id string) error

	// GetPreferences fetches the user's studio settings.
	GetPreferences(userID string) (domain.Preferences, bool, error)
	// SavePreferences stores the user's studio settings.
	SavePreferences(prefs domain.Preferences) error
}
