package userstore

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	sqliteDialector "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/Omianju/LMS/internal/authcore"
)

var (
	// ErrUnsupportedDialect indicates that no GORM dialector is available for the scheme.
	ErrUnsupportedDialect = errors.New("user_store.unsupported_dialect")

	errEmptyDatabaseURL    = errors.New("user_store.empty_database_url")
	errSQLiteEmptyPath     = errors.New("user_store.sqlite.empty_path")
	errSQLiteInvalidURL    = errors.New("user_store.sqlite.invalid_url")
	errUnsupportedNoScheme = errors.New("user_store.unsupported_no_scheme")
)

// DatabaseStore persists user identities using GORM.
type DatabaseStore struct {
	db          *gorm.DB
	driverLabel string
}

var _ authcore.CredentialStore = (*DatabaseStore)(nil)

// Driver exposes the selected database driver label.
func (store *DatabaseStore) Driver() string {
	return store.driverLabel
}

type userRecord struct {
	ID             string    `gorm:"column:id;primaryKey"`
	Name           string    `gorm:"column:name;not null"`
	Email          string    `gorm:"column:email;uniqueIndex;not null"`
	PasswordHash   string    `gorm:"column:password_hash;not null;default:''"`
	Role           string    `gorm:"column:role;not null;default:'user'"`
	AvatarURL      string    `gorm:"column:avatar_url;not null;default:''"`
	OwnedCourseIDs []string  `gorm:"column:owned_course_ids;serializer:json"`
	IsVerified     bool      `gorm:"column:is_verified;not null;default:false"`
	CreatedAt      time.Time `gorm:"column:created_at"`
}

func (userRecord) TableName() string {
	return "users"
}

// NewDatabaseStore constructs a GORM-backed store from a postgres:// or
// sqlite:// URL and runs the schema migration.
func NewDatabaseStore(ctx context.Context, databaseURL string) (*DatabaseStore, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("user_store.open: %w", errEmptyDatabaseURL)
	}
	dialector, driverLabel, err := resolveDialector(databaseURL)
	if err != nil {
		return nil, err
	}
	gormDB, openErr := gorm.Open(dialector, &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if openErr != nil {
		return nil, fmt.Errorf("user_store.open.%s: %w", driverLabel, openErr)
	}
	if migrateErr := gormDB.WithContext(ctx).AutoMigrate(&userRecord{}); migrateErr != nil {
		return nil, fmt.Errorf("user_store.migrate.%s: %w", driverLabel, migrateErr)
	}
	return &DatabaseStore{db: gormDB, driverLabel: driverLabel}, nil
}

// FindByEmail returns the identity for email, or nil when none exists.
func (store *DatabaseStore) FindByEmail(ctx context.Context, email string) (*authcore.Identity, error) {
	var record userRecord
	err := store.db.WithContext(ctx).Where("email = ?", strings.ToLower(email)).Take(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("user_store.find_by_email.%s: %w", store.driverLabel, err)
	}
	return record.toIdentity(), nil
}

// FindByID returns the identity for id, or nil when none exists.
func (store *DatabaseStore) FindByID(ctx context.Context, id string) (*authcore.Identity, error) {
	var record userRecord
	err := store.db.WithContext(ctx).Where("id = ?", id).Take(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("user_store.find_by_id.%s: %w", store.driverLabel, err)
	}
	return record.toIdentity(), nil
}

// Create inserts a new identity, assigning an id when none is set.
func (store *DatabaseStore) Create(ctx context.Context, identity *authcore.Identity) (*authcore.Identity, error) {
	record := recordFromIdentity(identity)
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	if createErr := store.db.WithContext(ctx).Create(&record).Error; createErr != nil {
		if errors.Is(createErr, gorm.ErrDuplicatedKey) {
			return nil, authcore.ErrEmailTaken
		}
		return nil, fmt.Errorf("user_store.create.%s: %w", store.driverLabel, createErr)
	}
	return record.toIdentity(), nil
}

// Save persists every mutable field of an existing identity.
func (store *DatabaseStore) Save(ctx context.Context, identity *authcore.Identity) error {
	record := recordFromIdentity(identity)
	result := store.db.WithContext(ctx).Model(&userRecord{}).
		Where("id = ?", record.ID).
		Select("name", "email", "password_hash", "role", "avatar_url", "owned_course_ids", "is_verified").
		Updates(record)
	if result.Error != nil {
		return fmt.Errorf("user_store.save.%s: %w", store.driverLabel, result.Error)
	}
	if result.RowsAffected == 0 {
		return authcore.ErrUserNotFound
	}
	return nil
}

// Delete removes the identity for id.
func (store *DatabaseStore) Delete(ctx context.Context, id string) error {
	result := store.db.WithContext(ctx).Where("id = ?", id).Delete(&userRecord{})
	if result.Error != nil {
		return fmt.Errorf("user_store.delete.%s: %w", store.driverLabel, result.Error)
	}
	if result.RowsAffected == 0 {
		return authcore.ErrUserNotFound
	}
	return nil
}

// List returns every identity ordered by creation time, newest first.
func (store *DatabaseStore) List(ctx context.Context) ([]authcore.Identity, error) {
	var records []userRecord
	if listErr := store.db.WithContext(ctx).Order("created_at DESC").Find(&records).Error; listErr != nil {
		return nil, fmt.Errorf("user_store.list.%s: %w", store.driverLabel, listErr)
	}
	identities := make([]authcore.Identity, 0, len(records))
	for _, record := range records {
		identities = append(identities, *record.toIdentity())
	}
	return identities, nil
}

func (record userRecord) toIdentity() *authcore.Identity {
	return &authcore.Identity{
		ID:             record.ID,
		Name:           record.Name,
		Email:          record.Email,
		PasswordHash:   record.PasswordHash,
		Role:           authcore.ParseRole(record.Role),
		AvatarURL:      record.AvatarURL,
		OwnedCourseIDs: record.OwnedCourseIDs,
		IsVerified:     record.IsVerified,
		CreatedAt:      record.CreatedAt,
	}
}

func recordFromIdentity(identity *authcore.Identity) userRecord {
	return userRecord{
		ID:             identity.ID,
		Name:           identity.Name,
		Email:          strings.ToLower(identity.Email),
		PasswordHash:   identity.PasswordHash,
		Role:           string(identity.Role),
		AvatarURL:      identity.AvatarURL,
		OwnedCourseIDs: identity.OwnedCourseIDs,
		IsVerified:     identity.IsVerified,
		CreatedAt:      identity.CreatedAt,
	}
}

func resolveDialector(databaseURL string) (gorm.Dialector, string, error) {
	parsed, err := url.Parse(databaseURL)
	if err != nil {
		return nil, "", fmt.Errorf("user_store.parse_url: %w", err)
	}
	if parsed.Scheme == "" {
		return nil, "", fmt.Errorf("user_store.dialect: %w", errUnsupportedNoScheme)
	}
	switch strings.ToLower(parsed.Scheme) {
	case "postgres", "postgresql":
		return postgres.Open(databaseURL), "postgres", nil
	case "sqlite", "sqlite3":
		dsn, dsnErr := buildSQLiteDSN(parsed)
		if dsnErr != nil {
			return nil, "", fmt.Errorf("user_store.sqlite: %w", dsnErr)
		}
		return sqliteDialector.Open(dsn), "sqlite", nil
	default:
		return nil, "", fmt.Errorf("user_store.dialect.%s: %w", strings.ToLower(parsed.Scheme), ErrUnsupportedDialect)
	}
}

func buildSQLiteDSN(parsed *url.URL) (string, error) {
	if parsed == nil {
		return "", errSQLiteInvalidURL
	}
	var builder strings.Builder
	switch {
	case parsed.Opaque != "":
		builder.WriteString(parsed.Opaque)
	case parsed.Host != "":
		builder.WriteString(parsed.Host)
		if parsed.Path != "" {
			if !strings.HasPrefix(parsed.Path, "/") {
				builder.WriteString("/")
			}
			builder.WriteString(parsed.Path)
		}
	default:
		builder.WriteString(parsed.Path)
	}
	if builder.Len() == 0 {
		return "", errSQLiteEmptyPath
	}
	if parsed.RawQuery != "" {
		builder.WriteString("?")
		builder.WriteString(parsed.RawQuery)
	}
	return builder.String(), nil
}
