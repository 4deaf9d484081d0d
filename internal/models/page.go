package models

import "time"

type Page struct {
	ID          int64
	Slug        string
	Title       string
	Content     string
	MembersOnly bool
	UpdatedAt   time.Time
}
