package store

import (
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"tubestudio/internal/util"
	"tubestudio/pkg/domain"
)

// GormStore implements Store using GORM + Postgres.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the DB and runs auto-migrations.
func NewGormStore(dsn string) (*GormStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.AutoMigrate(&PackageModel{}, &PreferencesModel{}); err != nil {
		return nil, fmt.Errorf("auto migrate: %w", err)
	}
	return &GormStore{db: db}, nil
}

// InsertPackage assigns the server-side id and creation timestamp and
// stores the package.
func (s *GormStore) InsertPackage(ownerID string, pkg domain.GeneratedPackage) (domain.GeneratedPackage, error) {
	pkg.ID = util.NewPrefixedID("pkg")
	pkg.CreatedAt = time.Now().UTC()
	model, err := packageToModel(ownerID, pkg)
	if err != nil {
		return domain.GeneratedPackage{}, err
	}
	if err := s.db.Create(&model).Error; err != nil {
		return domain.GeneratedPackage{}, fmt.Errorf("insert package: %w", err)
	}
	return pkg, nil
}

// SavePackage overwrites an existing package's content.
func (s *GormStore) SavePackage(ownerID string, pkg domain.GeneratedPackage) error {
	model, err := packageToModel(ownerID, pkg)
	if err != nil {
		return err
	}
	res := s.db.Model(&PackageModel{}).
		Where("id = ? AND owner_id = ?", pkg.ID, ownerID).
		Updates(map[string]any{
			"title":      model.Title,
			"content":    model.Content,
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return fmt.Errorf("save package: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// GetPackage fetches one package by id, scoped to the owner.
func (s *GormStore) GetPackage(ownerID, id string) (domain.GeneratedPackage, bool, error) {
	var model PackageModel
	if err := s.db.First(&model, "id = ? AND owner_id = ?", id, ownerID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.GeneratedPackage{}, false, nil
		}
		return domain.GeneratedPackage{}, false, err
	}
	pkg, err := packageFromModel(model)
	if err != nil {
		return domain.GeneratedPackage{}, false, err
	}
	return pkg, true, nil
}

// ListPackages returns the owner's packages newest first.
func (s *GormStore) ListPackages(ownerID string, limit int) ([]domain.GeneratedPackage, error) {
	var models []PackageModel
	tx := s.db.Order("created_at DESC").Where("owner_id = ?", ownerID)
	if limit > 0 {
		tx = tx.Limit(limit)
	}
	if err := tx.Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.GeneratedPackage, 0, len(models))
	for _, m := range models {
		pkg, err := packageFromModel(m)
		if err != nil {
			return nil, err
		}
		res = append(res, pkg)
	}
	return res, nil
}

// DeletePackage removes one package by id, scoped to the owner.
func (s *GormStore) DeletePackage(ownerID, id string) error {
	res := s.db.Delete(&PackageModel{}, "id = ? AND owner_id = ?", id, ownerID)
	if res.Error != nil {
		return fmt.Errorf("delete package: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// GetPreferences fetches the user's studio settings.
func (s *GormStore) GetPreferences(userID string) (domain.Preferences, bool, error) {
	var model PreferencesModel
	if err := s.db.First(&model, "user_id = ?", userID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.Preferences{}, false, nil
		}
		return domain.Preferences{}, false, err
	}
	return preferencesFromModel(model), true, nil
}

// SavePreferences stores or updates the user's studio settings.
func (s *GormStore) SavePreferences(prefs domain.Preferences) error {
	model := preferencesToModel(prefs)
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"default_mood", "default_duration", "encrypted_credential", "updated_at"}),
	}).Create(&model).Error
}

func packageToModel(ownerID string, pkg domain.GeneratedPackage) (PackageModel, error) {
	content, err := json.Marshal(pkg)
	if err != nil {
		return PackageModel{}, fmt.Errorf("encode package: %w", err)
	}
	return PackageModel{
		ID:        pkg.ID,
		OwnerID:   ownerID,
		ChannelID: pkg.ChannelID,
		Title:     pkg.Title,
		Content:   content,
		CreatedAt: pkg.CreatedAt,
		UpdatedAt: time.Now().UTC(),
	}, nil
}

func packageFromModel(m PackageModel) (domain.GeneratedPackage, error) {
	var pkg domain.GeneratedPackage
	if err := json.Unmarshal(m.Content, &pkg); err != nil {
		return domain.GeneratedPackage{}, fmt.Errorf("decode package %s: %w", m.ID, err)
	}
	pkg.ID = m.ID
	pkg.CreatedAt = m.CreatedAt
	return pkg, nil
}

func preferencesToModel(p domain.Preferences) PreferencesModel {
	return PreferencesModel{
		UserID:              p.UserID,
		DefaultMood:         p.DefaultMood,
		DefaultDuration:     string(p.DefaultDuration),
		EncryptedCredential: p.EncryptedCredential,
		UpdatedAt:           time.Now().UTC(),
	}
}

func preferencesFromModel(m PreferencesModel) domain.Preferences {
	return domain.Preferences{
		UserID:              m.UserID,
		DefaultMood:         m.DefaultMood,
		DefaultDuration:     domain.DurationBucket(m.DefaultDuration),
		EncryptedCredential: m.EncryptedCredential,
		CredentialSet:       len(m.EncryptedCredential) > 0,
		UpdatedAt:           m.UpdatedAt,
	}
}
