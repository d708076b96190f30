package model

import (
	"sort"
	"time"
)

const SettingsID = "main"

type ChatKind string

const (
	ChatKindChannel ChatKind = "channel"
	ChatKindGroup   ChatKind = "group"
)

type Settings struct {
	ID         string `gorm:"primaryKey;size:32;not null"`
	UPIID      string `gorm:"column:upi_id;size:128"`
	PayeeName  string `gorm:"size:128"`
	PayPalLink string `gorm:"column:paypal_link;size:255"`
	BankText   string `gorm:"type:text"`
	CreatedAt  time.Time
	UpdatedAt  time.Time

	Categories map[string]*Category `gorm:"-"`
}

type Category struct {
	Key       string   `gorm:"column:category_key;primaryKey;size:32;not null"`
	Name      string   `gorm:"size:128;not null"`
	Link      string   `gorm:"size:255"`
	ChatID    int64
	ChatKind  ChatKind `gorm:"size:16"`
	Position  int
	CreatedAt time.Time
	UpdatedAt time.Time

	Plans []*Plan `gorm:"-"`
}

type Plan struct {
	CategoryKey string `gorm:"primaryKey;size:32;not null"`
	ID          string `gorm:"primaryKey;size:32;not null"`
	Label       string `gorm:"size:128;not null"`
	Days        int    `gorm:"not null"`
	Price       string `gorm:"size:64;not null"` // display only
	ChatID      int64  // overrides the category chat when set
	Position    int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (c *Category) Plan(id string) *Plan {
	for _, p := range c.Plans {
		if p.ID == id {
			return p
		}
	}
	return nil
}

// AccessTarget is where a buyer of plan p is admitted.
type AccessTarget struct {
	ChatID   int64
	ChatKind ChatKind
	Link     string
}

func (c *Category) Target(p *Plan) AccessTarget {
	t := AccessTarget{ChatID: c.ChatID, ChatKind: c.ChatKind, Link: c.Link}
	if p != nil && p.ChatID != 0 {
		t.ChatID = p.ChatID
	}
	return t
}

// SortedCategories returns the categories in display order.
func (s *Settings) SortedCategories() []*Category {
	out := make([]*Category, 0, len(s.Categories))
	for _, c := range s.Categories {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Position != out[j].Position {
			return out[i].Position < out[j].Position
		}
		return out[i].Key < out[j].Key
	})
	return out
}

func (s *Settings) Lookup(categoryKey, planID string) (*Category, *Plan) {
	c, ok := s.Categories[categoryKey]
	if !ok {
		return nil, nil
	}
	return c, c.Plan(planID)
}
