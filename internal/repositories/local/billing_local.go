package local

import (
	"context"
	"sort"
	"time"

	"gorm.io/datatypes"

	"github.com/tinysteps-edu/dashboard-service/internal/models"
	"github.com/tinysteps-edu/dashboard-service/internal/repositories"
)

type BillingLocal struct {
	store *Store
}

func NewBillingLocal(store *Store) repositories.BillingRepository {
	return &BillingLocal{store: store}
}

func (r *BillingLocal) Create(_ context.Context, billing *models.Billing) error {
	if billing.Rate == 0 {
		billing.Rate = models.DefaultRate
	}
	now := time.Now()
	billing.CreatedAt = now
	billing.UpdatedAt = now
	return r.store.update(func(st *state) error {
		st.Billing[billing.StudentID] = cloneBilling(billing)
		return nil
	})
}

func (r *BillingLocal) Get(_ context.Context, studentID string) (*models.Billing, error) {
	var out *models.Billing
	err := r.store.view(func(st *state) error {
		b, ok := st.Billing[studentID]
		if !ok {
			return repositories.ErrNotFound
		}
		out = cloneBilling(b)
		return nil
	})
	return out, err
}

func (r *BillingLocal) List(_ context.Context) ([]*models.Billing, error) {
	var out []*models.Billing
	err := r.store.view(func(st *state) error {
		for _, b := range st.Billing {
			out = append(out, cloneBilling(b))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StudentID < out[j].StudentID })
	if out == nil {
		out = []*models.Billing{}
	}
	return out, nil
}

func (r *BillingLocal) SetRate(_ context.Context, studentID string, rate int) error {
	return r.mutate(studentID, func(b *models.Billing) {
		b.Rate = rate
	})
}

func (r *BillingLocal) SetSubscriptions(_ context.Context, studentID string, subs []models.Subscription) error {
	return r.mutate(studentID, func(b *models.Billing) {
		b.Subscriptions = datatypes.NewJSONSlice(subs)
	})
}

func (r *BillingLocal) Delete(_ context.Context, studentID string) error {
	return r.store.update(func(st *state) error {
		if _, ok := st.Billing[studentID]; !ok {
			return repositories.ErrNotFound
		}
		delete(st.Billing, studentID)
		return nil
	})
}

func (r *BillingLocal) mutate(studentID string, fn func(*models.Billing)) error {
	return r.store.update(func(st *state) error {
		b, ok := st.Billing[studentID]
		if !ok {
			return repositories.ErrNotFound
		}
		fn(b)
		b.UpdatedAt = time.Now()
		return nil
	})
}
