package domain

import "time"

type Setting struct {
	Key       string
	Value     string
	UpdatedAt time.Time
}
