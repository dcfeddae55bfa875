package engine

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidConfiguration  = errors.New("invalid configuration")
	ErrSessionNotFound       = errors.New("session not found")
	ErrLevelNotFound         = errors.New("level not found")
	ErrInvalidFlip           = errors.New("invalid flip")
	ErrSessionConflict       = errors.New("session conflict")
	ErrTimeExpired           = errors.New("time expired")
	ErrWebhookDeliveryFailed = errors.New("webhook delivery failed")

	// ErrGameOver is returned when flipping a session that already finished.
	ErrGameOver = fmt.Errorf("%w: game over", ErrInvalidFlip)
)
