package usecase

import (
	"context"

	"device-pairing-service/internal/domain/model"
)

// IssueResult is returned to the display device at issuance.
type IssueResult struct {
	Code      string
	ExpiresIn int // seconds
}

// PollResult is the read-only view returned to a polling display device.
type PollResult struct {
	Status model.ActivationStatus
	UserID *string
}

// ConsumeResult carries the session token minted for a consumed activation.
type ConsumeResult struct {
	SessionToken string
}

// PairingService defines the pairing operations needed by transports and
// background workers.
type PairingService interface {
	Issue(ctx context.Context, deviceIdentifier, deviceName string) (*IssueResult, error)
	Claim(ctx context.Context, code, userID, callerKey string) error
	Poll(ctx context.Context, code string) (*PollResult, error)
	Consume(ctx context.Context, code, userID string) (*ConsumeResult, error)
	ExpireStale(ctx context.Context) (int, error)
}
