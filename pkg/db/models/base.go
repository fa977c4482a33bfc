package models

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// assignID fills a zero primary key before insert so the same models run on
// Postgres and SQLite without relying on database-side uuid defaults.
func assignID(id *uuid.UUID) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
}

func (u *User) BeforeCreate(*gorm.DB) error            { assignID(&u.ID); return nil }
func (t *Transaction) BeforeCreate(*gorm.DB) error     { assignID(&t.ID); return nil }
func (o *Order) BeforeCreate(*gorm.DB) error           { assignID(&o.ID); return nil }
func (i *OrderItem) BeforeCreate(*gorm.DB) error       { assignID(&i.ID); return nil }
func (p *Product) BeforeCreate(*gorm.DB) error         { assignID(&p.ID); return nil }
func (c *CheckoutSession) BeforeCreate(*gorm.DB) error { assignID(&c.ID); return nil }
func (d *Dispute) BeforeCreate(*gorm.DB) error         { assignID(&d.ID); return nil }
func (m *DisputeMessage) BeforeCreate(*gorm.DB) error  { assignID(&m.ID); return nil }
func (p *Penalty) BeforeCreate(*gorm.DB) error         { assignID(&p.ID); return nil }
func (n *Notification) BeforeCreate(*gorm.DB) error    { assignID(&n.ID); return nil }
func (w *Withdrawal) BeforeCreate(*gorm.DB) error      { assignID(&w.ID); return nil }

// All lists every persisted model, used by SQLite bootstrapping and tests.
func All() []any {
	return []any{
		&User{},
		&Transaction{},
		&Product{},
		&CheckoutSession{},
		&Order{},
		&OrderItem{},
		&Dispute{},
		&DisputeMessage{},
		&Penalty{},
		&Notification{},
		&Withdrawal{},
	}
}
