package domain

import (
	"time"

	"github.com/google/uuid"
)

type User struct {
	ID        uuid.UUID `db:"id"`
	Email     string    `db:"email"`
	Name      string    `db:"name"`
	Coins     int64     `db:"coins" json:"coins"`
	Timezone  *string   `db:"timezone" json:"timezone,omitempty"`
	CreatedAt time.Time `db:"created_at"`
}

// UserZone pairs a user id with the IANA zone stored on the user record.
type UserZone struct {
	UserID   uuid.UUID `db:"id"`
	Timezone string    `db:"timezone"`
}
