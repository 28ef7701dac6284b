package repository

import (
	"context"
	"time"

	"device-pairing-service/internal/domain/model"
)

// ActivationRepository is the port for the durable pairing-code store.
//
// ClaimIfPending and ConsumeIfClaimed are the only mutation paths after
// Create/RefreshPending; both must be applied by the implementation as a
// single atomic conditional write (predicate evaluated and update applied in
// one store operation), never as a separate read-then-write.
type ActivationRepository interface {
	// Create inserts a new PENDING activation. Returns domain.ErrAlreadyExists
	// when the code collides with another live record, so the caller can
	// re-roll the code.
	Create(ctx context.Context, tx Tx, a *model.Activation) error

	// FindByCode returns the activation regardless of status.
	FindByCode(ctx context.Context, tx Tx, code string) (*model.Activation, error)

	// FindPendingByDevice returns the live PENDING activation for a device,
	// if any.
	FindPendingByDevice(ctx context.Context, tx Tx, deviceIdentifier string) (*model.Activation, error)

	// RefreshPending extends the TTL of a still-pending activation.
	// Returns false when the record is no longer pending.
	RefreshPending(ctx context.Context, tx Tx, id string, expiresAt time.Time) (bool, error)

	// ClaimIfPending atomically transitions PENDING -> CLAIMED and attaches
	// the user, only while the record is pending and unexpired. Returns true
	// iff this call won the transition.
	ClaimIfPending(ctx context.Context, tx Tx, code, userID string) (bool, error)

	// ConsumeIfClaimed atomically transitions CLAIMED -> CONSUMED for the
	// claiming user. Returns true iff this call won the transition.
	ConsumeIfClaimed(ctx context.Context, tx Tx, code, userID string) (bool, error)

	// ExpireDevicePending flips the device's stale PENDING record, if any, to
	// EXPIRED. Lets issuance replace a dead code immediately instead of
	// waiting for the sweep to release the one-pending-per-device slot.
	// Returns true when a record was flipped.
	ExpireDevicePending(ctx context.Context, tx Tx, deviceIdentifier string) (bool, error)

	// ExpireStale marks PENDING records past their TTL as EXPIRED and
	// returns how many were flipped. Sweep optimization only; reads must not
	// depend on it.
	ExpireStale(ctx context.Context, tx Tx) (int, error)

	// PurgeExpiredBefore deletes non-pending records whose TTL elapsed before
	// the cutoff, bounding storage growth. Claims that were never consumed
	// count as abandoned once past the cutoff.
	PurgeExpiredBefore(ctx context.Context, tx Tx, cutoff time.Time) (int, error)
}
