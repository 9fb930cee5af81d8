package services

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidParticipants  = errors.New("invalid participants")
	ErrNotAuthorized        = errors.New("not authorized")
	ErrConversationNotFound = errors.New("conversation not found")
	ErrUserNotFound         = errors.New("user not found")
	ErrInvalidInput         = errors.New("invalid input")
	ErrRateLimited          = errors.New("rate limited")
)

// RateLimitedError carries the quota service's reset hint so callers can
// surface when sending becomes possible again. errors.Is(err, ErrRateLimited)
// matches it.
type RateLimitedError struct {
	ResetInHours int
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited: resets in %dh", e.ResetInHours)
}

func (e *RateLimitedError) Unwrap() error {
	return ErrRateLimited
}
