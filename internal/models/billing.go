package models

import (
	"strings"
	"time"

	"gorm.io/datatypes"
)

// DefaultRate is the per-class rate (INR) applied when no rate is set.
const DefaultRate = 350

type Subscription struct {
	Name  string `json:"name"`
	Price int    `json:"price"`
}

// Billing is kept separate from Student so billing edits and teaching edits
// never contend on the same record. One billing record per student id.
type Billing struct {
	StudentID string `json:"studentId" gorm:"primaryKey;size:64"`
	Rate      int    `json:"rate" gorm:"default:350"`

	Subscriptions datatypes.JSONSlice[Subscription] `json:"subscriptions"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Billing) TableName() string {
	return "billing"
}

// SubscriptionTotal sums the monthly subscription prices.
func (b *Billing) SubscriptionTotal() int {
	total := 0
	for _, sub := range b.Subscriptions {
		total += sub.Price
	}
	return total
}

// MonthKey formats a time as the YYYY-MM key used by attendance filters and
// billing periods.
func MonthKey(t time.Time) string {
	return t.Format("2006-01")
}

// CountPresent counts attendance entries marked present within the given
// YYYY-MM month.
func CountPresent(attendance map[string]bool, month string) int {
	n := 0
	for date, present := range attendance {
		if present && strings.HasPrefix(date, month) {
			n++
		}
	}
	return n
}
