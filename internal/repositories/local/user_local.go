package local

import (
	"context"
	"sort"
	"time"

	"github.com/tinysteps-edu/dashboard-service/internal/models"
	"github.com/tinysteps-edu/dashboard-service/internal/repositories"
)

type UserLocal struct {
	store *Store
}

func NewUserLocal(store *Store) repositories.UserRepository {
	return &UserLocal{store: store}
}

func (r *UserLocal) GetByID(_ context.Context, id string) (*models.User, error) {
	var out *models.User
	err := r.store.view(func(st *state) error {
		u, ok := st.Users[id]
		if !ok {
			return repositories.ErrNotFound
		}
		out = cloneUser(u)
		return nil
	})
	return out, err
}

func (r *UserLocal) List(_ context.Context, role *models.UserRole) ([]*models.User, error) {
	var out []*models.User
	err := r.store.view(func(st *state) error {
		for _, u := range st.Users {
			if role != nil && u.Role != *role {
				continue
			}
			out = append(out, cloneUser(u))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	if out == nil {
		out = []*models.User{}
	}
	return out, nil
}

func (r *UserLocal) Upsert(_ context.Context, user *models.User) error {
	return r.store.update(func(st *state) error {
		now := time.Now()
		existing, ok := st.Users[user.ID]
		if !ok {
			if user.Role == "" {
				user.Role = models.DefaultRole
			}
			user.CreatedAt = now
			user.UpdatedAt = now
			st.Users[user.ID] = cloneUser(user)
			return nil
		}
		if user.Name != "" {
			existing.Name = user.Name
		}
		if user.Email != "" {
			existing.Email = user.Email
		}
		if user.Role != "" {
			existing.Role = user.Role
		}
		existing.UpdatedAt = now
		return nil
	})
}

func (r *UserLocal) SetRole(_ context.Context, id string, role models.UserRole) error {
	return r.store.update(func(st *state) error {
		u, ok := st.Users[id]
		if !ok {
			return repositories.ErrNotFound
		}
		u.Role = role
		u.UpdatedAt = time.Now()
		return nil
	})
}

func (r *UserLocal) AppendChild(_ context.Context, id, studentID string) error {
	return r.store.update(func(st *state) error {
		u, ok := st.Users[id]
		if !ok {
			return repositories.ErrNotFound
		}
		for _, child := range u.Children {
			if child == studentID {
				return nil
			}
		}
		u.Children = append(u.Children, studentID)
		u.UpdatedAt = time.Now()
		return nil
	})
}

func (r *UserLocal) Delete(_ context.Context, id string) error {
	return r.store.update(func(st *state) error {
		if _, ok := st.Users[id]; !ok {
			return repositories.ErrNotFound
		}
		delete(st.Users, id)
		return nil
	})
}
