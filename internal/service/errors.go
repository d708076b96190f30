package service

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"vip-access-bot/internal/model"
)

var (
	ErrUnauthorized     = errors.New("unauthorized")
	ErrNotFound         = errors.New("not found")
	ErrInvalidInput     = errors.New("invalid input")
	ErrCatalogMismatch  = errors.New("category or plan no longer exists")
	ErrSessionExpired   = errors.New("session expired")
	ErrStoreUnavailable = errors.New("store unavailable")
	ErrProvisioning     = errors.New("provisioning failure")
	ErrAlreadyProcessed = errors.New("control already processed")
	ErrEncoding         = errors.New("encoding error")
)

func isNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound) || errors.Is(err, ErrNotFound)
}

// ProcessedError carries the earlier decision on a control that was already used.
type ProcessedError struct {
	Decision  model.ApprovalDecision
	DecidedAt time.Time
}

func (e *ProcessedError) Error() string {
	return fmt.Sprintf("control already %s at %s", e.Decision, e.DecidedAt.UTC().Format(timeLayout))
}

func (e *ProcessedError) Unwrap() error {
	return ErrAlreadyProcessed
}
