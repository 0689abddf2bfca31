package storage

import "errors"

var (
	ErrNotFound   = errors.New("record not found")
	ErrInvalidKey = errors.New("invalid storage key")
)
