// notes/store/store.go

// Package store defines the remote document store the sync engine and the
// credential service talk to. Nodes are addressed by flat keys produced by
// pathcodec; users live in a separate collection queried by email.
//
// Backends live in the sub-packages: memory, filesystem, postgres, mongodb.
package store

import (
	"context"

	"github.com/ViniZap4/lumi-notes/domain"
)

// Value is what a key holds. Folders are stored as an empty container, notes
// as their text. Kind is empty only for legacy entries written without a tag.
type Value struct {
	Kind    domain.Kind `json:"kind,omitempty" yaml:"kind,omitempty" bson:"kind,omitempty"`
	Content string      `json:"content,omitempty" yaml:"content,omitempty" bson:"content,omitempty"`
}

func FolderValue() Value             { return Value{Kind: domain.KindFolder} }
func NoteValue(content string) Value { return Value{Kind: domain.KindNote, Content: content} }

// Handler receives subscription callbacks. Both run on the backend's own
// goroutine; callers must hand the data off to their own execution context.
type Handler struct {
	OnSnapshot func(*Snapshot)
	OnError    func(error)
}

// RemoteStore is the path-addressed node store.
type RemoteStore interface {
	// Read returns the value at key, or nil if the key is absent.
	Read(ctx context.Context, key string) (*Value, error)

	// Write stores v at key, creating missing ancestors as folders. Writing
	// a note replaces the whole node, so anything stored below key is
	// dropped; writing a folder keeps its descendants.
	Write(ctx context.Context, key string, v Value) error

	// Delete removes key and every key below it. Deleting an absent key is
	// not an error.
	Delete(ctx context.Context, key string) error

	// Subscribe delivers the full subtree at rootKey right away and again
	// after every change below it. Delivery is at least once and rapid
	// changes may be coalesced into one snapshot. The subscription ends when
	// ctx is cancelled or Cancel is called.
	Subscribe(ctx context.Context, rootKey string, h Handler) (*Subscription, error)
}

// UserStore is the flat credential collection.
type UserStore interface {
	// FindUsersByEmail returns every record whose email equals email.
	// Emails are stored normalized so the match is exact.
	FindUsersByEmail(ctx context.Context, email string) ([]domain.User, error)

	// InsertUser persists a new record. Backends that enforce email
	// uniqueness return domain.ErrAlreadyExists on conflict.
	InsertUser(ctx context.Context, u *domain.User) error
}

// Backend is implemented by every concrete store.
type Backend interface {
	RemoteStore
	UserStore
	Close() error
}
