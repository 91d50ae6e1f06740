package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores return these (optionally
// wrapped) and services translate them into domain errors:
// - ErrNotFound: entity does not exist in the store
// - ErrExpired: a retained record outlived its retention window
// - ErrConflict: a uniqueness rule rejected the write
// - ErrUnavailable: a backing service is temporarily unreachable
var (
	ErrNotFound    = errors.New("not found")
	ErrExpired     = errors.New("expired")
	ErrConflict    = errors.New("conflict")
	ErrUnavailable = errors.New("unavailable")
)
