package users

import (
	"context"
	"time"

	"github.com/uptrace/bun"
)

// EmailMaxLength matches the width of the email column.
const EmailMaxLength = 64

// User is the stored user record.
type User struct {
	bun.BaseModel `bun:"table:users,alias:u" json:"-" msgpack:"-"`

	ID        int64     `bun:"id,pk,autoincrement" json:"id" msgpack:"id"`
	Email     string    `bun:"email,type:varchar(64),notnull" json:"email" msgpack:"email"`
	CreatedAt time.Time `bun:"created_at,notnull" json:"created_at" msgpack:"created_at"`
	UpdatedAt time.Time `bun:"updated_at,notnull" json:"updated_at" msgpack:"updated_at"`
}

var _ bun.BeforeAppendModelHook = (*User)(nil)

// BeforeAppendModel stamps the timestamps on insert and update.
func (u *User) BeforeAppendModel(_ context.Context, query bun.Query) error {
	now := time.Now().UTC()
	switch query.(type) {
	case *bun.InsertQuery:
		if u.CreatedAt.IsZero() {
			u.CreatedAt = now
		}
		u.UpdatedAt = now
	case *bun.UpdateQuery:
		u.UpdatedAt = now
	}
	return nil
}

// GetID returns the primary key.
func (u *User) GetID() int64 { return u.ID }

// SetID sets the primary key.
func (u *User) SetID(id int64) { u.ID = id }
