package repository

import "errors"

// Sentinel kinds for store errors.
var (
	ErrItemNotFound  = errors.New("item not found")
	ErrDuplicateItem = errors.New("duplicate item")
	ErrInvalidItem   = errors.New("invalid item")
	ErrInvalidLimit  = errors.New("invalid ranking limit")
)
