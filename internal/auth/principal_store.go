package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/charlesng35/multiguard/internal/models"
)

var (
	// ErrPrincipalNotFound reports that no principal matched the lookup.
	ErrPrincipalNotFound = errors.New("auth: principal not found")
	// ErrEmailTaken reports a unique email violation within a partition.
	ErrEmailTaken = errors.New("auth: email already taken")
	// ErrStaleWrite reports that a concurrent request modified the principal first.
	ErrStaleWrite = errors.New("auth: principal modified concurrently")
)

// PrincipalStore persists principals per partition.
type PrincipalStore interface {
	FindByEmail(ctx context.Context, partition models.Partition, email string) (*models.Principal, error)
	FindByID(ctx context.Context, partition models.Partition, id string) (*models.Principal, error)
	Create(ctx context.Context, partition models.Partition, principal *models.Principal) error
	Update(ctx context.Context, partition models.Partition, id string, mutate func(*models.Principal) error) (*models.Principal, error)
	Delete(ctx context.Context, partition models.Partition, id string) error
}

// GormPrincipalStore implements PrincipalStore on gorm with an optimistic
// version column.
type GormPrincipalStore struct {
	db    *gorm.DB
	clock func() time.Time
}

// NewGormPrincipalStore constructs a store.
func NewGormPrincipalStore(db *gorm.DB, clock func() time.Time) (*GormPrincipalStore, error) {
	if db == nil {
		return nil, errors.New("principal store: db is required")
	}
	if clock == nil {
		clock = time.Now
	}
	return &GormPrincipalStore{db: db, clock: clock}, nil
}

// NormalizeEmail trims and lowercases an address for storage and lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *GormPrincipalStore) FindByEmail(ctx context.Context, partition models.Partition, email string) (*models.Principal, error) {
	email = NormalizeEmail(email)
	if email == "" {
		return nil, ErrPrincipalNotFound
	}
	return s.take(s.db.WithContext(ctx), partition, "email = ?", email)
}

func (s *GormPrincipalStore) FindByID(ctx context.Context, partition models.Partition, id string) (*models.Principal, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, ErrPrincipalNotFound
	}
	return s.take(s.db.WithContext(ctx), partition, "id = ?", id)
}

func (s *GormPrincipalStore) take(tx *gorm.DB, partition models.Partition, query string, arg string) (*models.Principal, error) {
	var principal models.Principal
	err := tx.Table(string(partition)).Where(query, arg).Take(&principal).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrPrincipalNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("principal store: query %s: %w", partition, err)
	}
	return &principal, nil
}

func (s *GormPrincipalStore) Create(ctx context.Context, partition models.Partition, principal *models.Principal) error {
	if principal == nil {
		return errors.New("principal store: principal is required")
	}
	principal.Email = NormalizeEmail(principal.Email)
	if principal.Version == 0 {
		principal.Version = 1
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.ensureEmailAvailable(tx, partition, principal.Email, ""); err != nil {
			return err
		}
		if err := tx.Table(string(partition)).Create(principal).Error; err != nil {
			if isUniqueConstraintError(err) {
				return ErrEmailTaken
			}
			return fmt.Errorf("principal store: create in %s: %w", partition, err)
		}
		return nil
	})
}

// Update loads the principal, applies mutate and writes it back only if no
// other writer bumped the version in between.
func (s *GormPrincipalStore) Update(ctx context.Context, partition models.Partition, id string, mutate func(*models.Principal) error) (*models.Principal, error) {
	var updated *models.Principal
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := s.take(tx, partition, "id = ?", id)
		if err != nil {
			return err
		}
		originalEmail := current.Email
		version := current.Version

		if err := mutate(current); err != nil {
			return err
		}
		current.Email = NormalizeEmail(current.Email)
		if current.Email != originalEmail {
			if err := s.ensureEmailAvailable(tx, partition, current.Email, current.ID); err != nil {
				return err
			}
		}

		now := s.clock()
		res := tx.Table(string(partition)).
			Where("id = ? AND version = ?", current.ID, version).
			Updates(map[string]any{
				"name":              current.Name,
				"email":             current.Email,
				"password":          current.Password,
				"email_verified_at": current.EmailVerifiedAt,
				"remember_token":    current.RememberToken,
				"version":           version + 1,
				"updated_at":        now,
			})
		if res.Error != nil {
			if isUniqueConstraintError(res.Error) {
				return ErrEmailTaken
			}
			return fmt.Errorf("principal store: update %s: %w", partition, res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrStaleWrite
		}

		current.Version = version + 1
		current.UpdatedAt = now
		updated = current
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *GormPrincipalStore) Delete(ctx context.Context, partition models.Partition, id string) error {
	res := s.db.WithContext(ctx).Table(string(partition)).Where("id = ?", id).Delete(&models.Principal{})
	if res.Error != nil {
		return fmt.Errorf("principal store: delete from %s: %w", partition, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrPrincipalNotFound
	}
	return nil
}

func (s *GormPrincipalStore) ensureEmailAvailable(tx *gorm.DB, partition models.Partition, email, ignoreID string) error {
	query := tx.Table(string(partition)).Where("email = ?", email)
	if ignoreID != "" {
		query = query.Where("id <> ?", ignoreID)
	}
	var count int64
	if err := query.Count(&count).Error; err != nil {
		return fmt.Errorf("principal store: check email: %w", err)
	}
	if count > 0 {
		return ErrEmailTaken
	}
	return nil
}
