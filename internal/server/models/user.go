// Package models defines server-side data models persisted in the database
// and the derived views returned by services.
package models

import "time"

type User struct {
	ID           string
	UserName     string
	PasswordHash []byte
	Salt         []byte
	CreatedAt    time.Time
}
