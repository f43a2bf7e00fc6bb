package dao

import "errors"

var (
	// ErrInvalidID is returned when an entity resolves to an empty key
	ErrInvalidID = errors.New("dao: invalid id")

	ErrNilEntity = errors.New("dao: nil entity")
)
