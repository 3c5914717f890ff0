package store

import (
	"sort"
	"sync"
	"time"

	"tubestudio/internal/util"
	"tubestudio/pkg/domain"
)

// MemoryStore is an in-memory Store used by tests.
type MemoryStore struct {
	mu       sync.RWMutex
	packages map[string]map[string]domain.GeneratedPackage // ownerID -> id -> package
	prefs    map[string]domain.Preferences
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		packages: make(map[string]map[string]domain.GeneratedPackage),
		prefs:    make(map[string]domain.Preferences),
	}
}

func (s *MemoryStore) InsertPackage(ownerID string, pkg domain.GeneratedPackage) (domain.GeneratedPackage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pkg.ID = util.NewPrefixedID("pkg")
	pkg.CreatedAt = time.Now().UTC()
	if s.packages[ownerID] == nil {
		s.packages[ownerID] = make(map[string]domain.GeneratedPackage)
	}
	s.packages[ownerID][pkg.ID] = pkg
	return pkg, nil
}

func (s *MemoryStore) SavePackage(ownerID string, pkg domain.GeneratedPackage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	owned := s.packages[ownerID]
	if _, ok := owned[pkg.ID]; !ok {
		return ErrNotFound
	}
	owned[pkg.ID] = pkg
	return nil
}

func (s *MemoryStore) GetPackage(ownerID, id string) (domain.GeneratedPackage, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pkg, ok := s.packages[ownerID][id]
	return pkg, ok, nil
}

func (s *MemoryStore) ListPackages(ownerID string, limit int) ([]domain.GeneratedPackage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	res := make([]domain.GeneratedPackage, 0, len(s.packages[ownerID]))
	for _, pkg := range s.packages[ownerID] {
		res = append(res, pkg)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].CreatedAt.After(res[j].CreatedAt) })
	if limit > 0 && len(res) > limit {
		res = res[:limit]
	}
	return res, nil
}

func (s *MemoryStore) DeletePackage(ownerID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	owned := s.packages[ownerID]
	if _, ok := owned[id]; !ok {
		return ErrNotFound
	}
	delete(owned, id)
	return nil
}

func (s *MemoryStore) GetPreferences(userID string) (domain.Preferences, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	prefs, ok := s.prefs[userID]
	return prefs, ok, nil
}

func (s *MemoryStore) SavePreferences(prefs domain.Preferences) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prefs.CredentialSet = len(prefs.EncryptedCredential) > 0
	prefs.UpdatedAt = time.Now().UTC()
	s.prefs[prefs.UserID] = prefs
	return nil
}
