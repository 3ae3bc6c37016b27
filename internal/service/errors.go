package service

import "errors"

// Error definitions
var (
	ErrConflictNotFound        = errors.New("conflict not found")
	ErrConflictAlreadyResolved = errors.New("conflict already resolved")
	ErrSyncInProgress          = errors.New("a pricebook sync is already in progress")
	ErrUnknownEntityType       = errors.New("unknown entity type")
	ErrInvalidStrategy         = errors.New("invalid resolution strategy")
	ErrInvalidDirection        = errors.New("invalid sync direction")
	ErrItemNotFound            = errors.New("pricebook item not found")
	ErrRunNotFound             = errors.New("sync run not found")
	ErrEmptyEdit               = errors.New("edit contains no changes")
	ErrInvalidEdit             = errors.New("invalid edit")
)
