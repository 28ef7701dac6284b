package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"device-pairing-service/internal/domain"
	"device-pairing-service/internal/domain/model"
	"device-pairing-service/internal/domain/ports/repository"
)

// Ensure implementation satisfies the interface.
var _ repository.ActivationRepository = (*activationRepo)(nil)

type activationRepo struct {
	pool *pgxpool.Pool
}

func NewActivationRepo(pool *pgxpool.Pool) repository.ActivationRepository {
	return &activationRepo{pool: pool}
}

const activationColumns = `id, code, device_identifier, device_name, status, user_id, created_at, expires_at, updated_at`

// Create inserts a new PENDING activation. A unique violation on either the
// live-code index or the one-pending-per-device index surfaces as
// ErrAlreadyExists so the caller can re-roll or re-read.
func (r *activationRepo) Create(ctx context.Context, tx repository.Tx, a *model.Activation) error {
	const q = `
INSERT INTO activations (id, code, device_identifier, device_name, status, user_id, created_at, expires_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9);`

	_, err := execSQL(ctx, r.pool, tx, q,
		a.ID, a.Code, a.DeviceIdentifier, a.DeviceName, string(a.Status), a.UserID, a.CreatedAt, a.ExpiresAt, a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidArgument) || errors.Is(err, domain.ErrInvalidExecContext) {
			return err
		}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return domain.ErrAlreadyExists
		}
		return domain.ErrOperationFailed
	}
	return nil
}

func (r *activationRepo) FindByCode(ctx context.Context, tx repository.Tx, code string) (*model.Activation, error) {
	const q = `
SELECT ` + activationColumns + `
  FROM activations
 WHERE code = $1
 ORDER BY created_at DESC
 LIMIT 1;`
	return r.queryOne(ctx, tx, q, code)
}

func (r *activationRepo) FindPendingByDevice(ctx context.Context, tx repository.Tx, deviceIdentifier string) (*model.Activation, error) {
	const q = `
SELECT ` + activationColumns + `
  FROM activations
 WHERE device_identifier = $1 AND status = 'pending' AND expires_at > NOW()
 LIMIT 1;`
	return r.queryOne(ctx, tx, q, deviceIdentifier)
}

func (r *activationRepo) RefreshPending(ctx context.Context, tx repository.Tx, id string, expiresAt time.Time) (bool, error) {
	const q = `
UPDATE activations
   SET expires_at = $2, updated_at = NOW()
 WHERE id = $1 AND status = 'pending' AND expires_at > NOW();`

	cmd, err := execSQL(ctx, r.pool, tx, q, id, expiresAt)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidArgument) || errors.Is(err, domain.ErrInvalidExecContext) {
			return false, err
		}
		return false, domain.ErrOperationFailed
	}
	return cmd.RowsAffected() >= 1, nil
}

// ClaimIfPending is the linearization point for concurrent claims: the
// predicate and the update are one statement, so of any number of racing
// claims on a code exactly one sees RowsAffected()==1.
func (r *activationRepo) ClaimIfPending(ctx context.Context, tx repository.Tx, code, userID string) (bool, error) {
	const q = `
UPDATE activations
   SET status = 'claimed', user_id = $2, updated_at = NOW()
 WHERE code = $1 AND status = 'pending' AND expires_at > NOW();`

	cmd, err := execSQL(ctx, r.pool, tx, q, code, userID)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidArgument) || errors.Is(err, domain.ErrInvalidExecContext) {
			return false, err
		}
		return false, domain.ErrOperationFailed
	}
	return cmd.RowsAffected() >= 1, nil
}

// ConsumeIfClaimed marks a claimed activation as consumed for the claiming
// user. The user predicate stops one user's consume from burning another's
// claim; the status predicate stops a second session from the same claim.
func (r *activationRepo) ConsumeIfClaimed(ctx context.Context, tx repository.Tx, code, userID string) (bool, error) {
	const q = `
UPDATE activations
   SET status = 'consumed', updated_at = NOW()
 WHERE code = $1 AND status = 'claimed' AND user_id = $2;`

	cmd, err := execSQL(ctx, r.pool, tx, q, code, userID)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidArgument) || errors.Is(err, domain.ErrInvalidExecContext) {
			return false, err
		}
		return false, domain.ErrOperationFailed
	}
	return cmd.RowsAffected() >= 1, nil
}

// ExpireDevicePending clears a stale pending row that would otherwise hold
// the one-pending-per-device index against a replacement code.
func (r *activationRepo) ExpireDevicePending(ctx context.Context, tx repository.Tx, deviceIdentifier string) (bool, error) {
	const q = `
UPDATE activations
   SET status = 'expired', updated_at = NOW()
 WHERE device_identifier = $1 AND status = 'pending' AND expires_at <= NOW();`

	cmd, err := execSQL(ctx, r.pool, tx, q, deviceIdentifier)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidArgument) || errors.Is(err, domain.ErrInvalidExecContext) {
			return false, err
		}
		return false, domain.ErrOperationFailed
	}
	return cmd.RowsAffected() >= 1, nil
}

func (r *activationRepo) ExpireStale(ctx context.Context, tx repository.Tx) (int, error) {
	const q = `
UPDATE activations
   SET status = 'expired', updated_at = NOW()
 WHERE status = 'pending' AND expires_at <= NOW();`

	cmd, err := execSQL(ctx, r.pool, tx, q)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidArgument) || errors.Is(err, domain.ErrInvalidExecContext) {
			return 0, err
		}
		return 0, domain.ErrOperationFailed
	}
	return int(cmd.RowsAffected()), nil
}

// PurgeExpiredBefore removes every non-pending row whose TTL elapsed before
// the cutoff. Claimed rows whose consume never arrived are included, so an
// abandoned claim cannot pin its code in the live-code index forever.
func (r *activationRepo) PurgeExpiredBefore(ctx context.Context, tx repository.Tx, cutoff time.Time) (int, error) {
	const q = `
DELETE FROM activations
 WHERE status <> 'pending' AND expires_at < $1;`

	cmd, err := execSQL(ctx, r.pool, tx, q, cutoff)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidArgument) || errors.Is(err, domain.ErrInvalidExecContext) {
			return 0, err
		}
		return 0, domain.ErrOperationFailed
	}
	return int(cmd.RowsAffected()), nil
}

func (r *activationRepo) queryOne(ctx context.Context, tx repository.Tx, q string, args ...interface{}) (*model.Activation, error) {
	row, err := pickRow(ctx, r.pool, tx, q, args...)
	if err != nil {
		return nil, err
	}

	var a model.Activation
	var status string
	err = row.Scan(
		&a.ID, &a.Code, &a.DeviceIdentifier, &a.DeviceName, &status, &a.UserID, &a.CreatedAt, &a.ExpiresAt, &a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	a.Status = model.ActivationStatus(status)
	return &a, nil
}
