package domain

import "time"

type Room struct {
	Name      string    `db:"name"`
	CreatedAt time.Time `db:"created_at"`
}
