package postgres

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/tinysteps-edu/dashboard-service/internal/models"
	"github.com/tinysteps-edu/dashboard-service/internal/repositories"
)

type UserPostgreSQL struct {
	db *gorm.DB
}

func NewUserPostgreSQL(db *gorm.DB) repositories.UserRepository {
	return &UserPostgreSQL{db: db}
}

func (r *UserPostgreSQL) GetByID(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).First(&user, "id = ?", id).Error
	if err != nil {
		return nil, translateErr(err)
	}
	return &user, nil
}

func (r *UserPostgreSQL) List(ctx context.Context, role *models.UserRole) ([]*models.User, error) {
	q := r.db.WithContext(ctx).Model(&models.User{})
	if role != nil {
		q = q.Where("role = ?", *role)
	}
	var users []*models.User
	if err := q.Order("name ASC").Find(&users).Error; err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	return users, nil
}

func (r *UserPostgreSQL) Upsert(ctx context.Context, user *models.User) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.User
		err := tx.First(&existing, "id = ?", user.ID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			if user.Role == "" {
				user.Role = models.DefaultRole
			}
			return tx.Create(user).Error
		}
		if err != nil {
			return err
		}

		updates := map[string]interface{}{}
		if user.Name != "" {
			updates["name"] = user.Name
		}
		if user.Email != "" {
			updates["email"] = user.Email
		}
		if user.Role != "" {
			updates["role"] = user.Role
		}
		if len(updates) == 0 {
			return nil
		}
		return tx.Model(&existing).Updates(updates).Error
	})
}

func (r *UserPostgreSQL) SetRole(ctx context.Context, id string, role models.UserRole) error {
	res := r.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Update("role", role)
	if res.Error != nil {
		return fmt.Errorf("failed to set role for %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return repositories.ErrNotFound
	}
	return nil
}

func (r *UserPostgreSQL) AppendChild(ctx context.Context, id, studentID string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user models.User
		if err := tx.First(&user, "id = ?", id).Error; err != nil {
			return translateErr(err)
		}
		for _, child := range user.Children {
			if child == studentID {
				return nil
			}
		}
		user.Children = append(user.Children, studentID)
		return tx.Model(&user).Update("children", user.Children).Error
	})
}

func (r *UserPostgreSQL) Delete(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Delete(&models.User{}, "id = ?", id)
	if res.Error != nil {
		return fmt.Errorf("failed to delete user %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return repositories.ErrNotFound
	}
	return nil
}
