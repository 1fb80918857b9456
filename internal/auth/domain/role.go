package domain

import "time"

// Role is a flat named permission set. Membership is checked by exact name.
type Role struct {
	Name        string
	Description string
	CreatedAt   time.Time
}
