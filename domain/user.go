// notes/domain/user.go
package domain

import "time"

// User is a stored credential record. Records are created once on
// registration and never mutated afterwards.
type User struct {
	ID           string    `json:"id" yaml:"id" bson:"_id"`
	Email        string    `json:"email" yaml:"email" bson:"email"`
	PasswordHash string    `json:"-" yaml:"password_hash" bson:"password_hash"`
	FullName     string    `json:"full_name" yaml:"full_name" bson:"full_name"`
	PhoneNumber  string    `json:"phone_number" yaml:"phone_number" bson:"phone_number"`
	CreatedAt    time.Time `json:"created_at" yaml:"created_at" bson:"created_at"`
}
