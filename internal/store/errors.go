package store

import "errors"

var (
	ErrTicketNotFound  = errors.New("ticket not found")
	ErrCounterNotFound = errors.New("counter not found")
	ErrAdminNotFound   = errors.New("admin not found")
	ErrNoMatch         = errors.New("no matching record")
	ErrDuplicate       = errors.New("duplicate record")
)
