package repository

import "errors"

var (
	ErrNotFound         = errors.New("record not found")
	ErrRevisionMismatch = errors.New("revision mismatch")
)
