// Package store persists reminders, partnerships, archives and user preferences through gorm.
package store

import (
	"errors"
	"fmt"
	"strings"

	"learnbot/internal/schedule"

	"gorm.io/gorm"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrDuplicate        = errors.New("already exists")
	ErrStoreUnavailable = errors.New("store unavailable")
	ErrInvalidInput     = errors.New("invalid input")
	ErrAlreadyPartnered = errors.New("already has an active partner in this server")
	ErrInvitePending    = errors.New("invitation already pending")
	ErrSelfPartner      = errors.New("cannot partner with yourself")
	ErrNoPendingInvite  = errors.New("no pending invitation")
)

// translate maps gorm errors onto the store's sentinel errors
func translate(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	case isDuplicate(err):
		return fmt.Errorf("%s: %w", op, ErrDuplicate)
	case isDomainError(err):
		return fmt.Errorf("%s: %w", op, err)
	default:
		return fmt.Errorf("%s: %w: %w", op, ErrStoreUnavailable, err)
	}
}

// domainErrors are returned from inside transactions and must not be reported as outages
var domainErrors = []error{
	ErrNotFound, ErrDuplicate, ErrInvalidInput, ErrAlreadyPartnered, ErrInvitePending,
	ErrSelfPartner, ErrNoPendingInvite, schedule.ErrInvalidFrequency,
}

func isDomainError(err error) bool {
	for _, target := range domainErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func isDuplicate(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate key") || strings.Contains(msg, "unique constraint")
}
