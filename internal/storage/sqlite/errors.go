package sqlite

import "errors"

var (
	// ErrEmptyPath indicates the database path was blank.
	ErrEmptyPath = errors.New("db path cannot be empty")
	// ErrEmptyPrincipal indicates a principal argument was blank.
	ErrEmptyPrincipal = errors.New("principal cannot be empty")
	// ErrEmptyMessage indicates an item was added without a message.
	ErrEmptyMessage = errors.New("message cannot be empty")
	// ErrItemNotFound indicates that an item cannot be found.
	ErrItemNotFound = errors.New("item not found")
	// ErrItemAlreadyRead indicates the item was already marked read.
	ErrItemAlreadyRead = errors.New("item already read")
)
