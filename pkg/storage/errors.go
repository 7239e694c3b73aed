package storage

import "errors"

// ErrNotFound is returned when a referenced account, transaction, message or
// conversation does not exist.
var ErrNotFound = errors.New("not found")

// ErrAlreadyExists is returned when a uniqueness invariant would be violated,
// e.g. a second account for the same (type, owner) pair.
var ErrAlreadyExists = errors.New("already exists")

// ErrInsufficientFunds is returned when a payer's recomputed balance cannot
// cover a charge. No transaction is created in that case.
var ErrInsufficientFunds = errors.New("insufficient funds")

// ErrForbidden is returned when the caller is not the owning party for a
// mutation or a read scoped to an owner.
var ErrForbidden = errors.New("forbidden")
