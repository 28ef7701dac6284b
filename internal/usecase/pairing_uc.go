package usecase

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"device-pairing-service/internal/config"
	"device-pairing-service/internal/domain"
	"device-pairing-service/internal/domain/model"
	"device-pairing-service/internal/domain/ports/adapter"
	"device-pairing-service/internal/domain/ports/repository"
	ports "device-pairing-service/internal/domain/ports/usecase"
	"device-pairing-service/internal/infra/logging"
	"device-pairing-service/internal/infra/metrics"
)

// Ensure compile-time conformance
var _ ports.PairingService = (*PairingUseCase)(nil)

// PairingUseCase implements the pairing lifecycle: issue, claim, poll,
// consume, expire. All durable state lives in the activation repository; the
// use case itself holds no mutable state and is safe for concurrent use.
type PairingUseCase struct {
	repo    repository.ActivationRepository
	txm     repository.TransactionManager
	limiter adapter.RateLimiter // optional
	cache   adapter.StatusCache // optional
	tokens  adapter.SessionTokenIssuer
	cfg     config.PairingConfig
	log     *zerolog.Logger

	// now is swappable for expiry tests.
	now func() time.Time
}

func NewPairingUseCase(
	repo repository.ActivationRepository,
	txm repository.TransactionManager,
	limiter adapter.RateLimiter,
	cache adapter.StatusCache,
	tokens adapter.SessionTokenIssuer,
	cfg config.PairingConfig,
	logger *zerolog.Logger,
) *PairingUseCase {
	ucLog := logger.With().Str("component", "PairingUseCase").Logger()
	return &PairingUseCase{
		repo:    repo,
		txm:     txm,
		limiter: limiter,
		cache:   cache,
		tokens:  tokens,
		cfg:     cfg,
		log:     &ucLog,
		now:     time.Now,
	}
}

// Issue creates (or refreshes) the pairing code for a display device.
//
// Repeat issuance policy: one live code per device. If the device still has
// a PENDING unexpired code, that code is returned again with a fresh TTL, so
// device-side retries keep the on-screen code stable.
func (uc *PairingUseCase) Issue(ctx context.Context, deviceIdentifier, deviceName string) (*ports.IssueResult, error) {
	deviceIdentifier = strings.TrimSpace(deviceIdentifier)
	if deviceIdentifier == "" {
		return nil, domain.ErrInvalidArgument
	}

	now := uc.now()
	expiresIn := int(uc.cfg.TTL / time.Second)

	existing, err := uc.repo.FindPendingByDevice(ctx, repository.NoTX, deviceIdentifier)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	if existing != nil && !existing.Expired(now) {
		ok, err := uc.repo.RefreshPending(ctx, repository.NoTX, existing.ID, now.Add(uc.cfg.TTL))
		if err != nil {
			return nil, err
		}
		if ok {
			_ = uc.invalidateCache(ctx, existing.Code)
			return &ports.IssueResult{Code: existing.Code, ExpiresIn: expiresIn}, nil
		}
		// Lost a race with a claim or the sweep; fall through and mint a new code.
	}

	var namePtr *string
	if name := strings.TrimSpace(deviceName); name != "" {
		namePtr = &name
	}

	for attempt := 0; attempt < maxGenerateAttempts; attempt++ {
		code, err := generatePairingCode(uc.cfg.CodeLength)
		if err != nil {
			return nil, err
		}
		a := &model.Activation{
			ID:               ulid.Make().String(),
			Code:             code,
			DeviceIdentifier: deviceIdentifier,
			DeviceName:       namePtr,
			Status:           model.ActivationStatusPending,
			CreatedAt:        now,
			ExpiresAt:        now.Add(uc.cfg.TTL),
			UpdatedAt:        now,
		}
		err = uc.repo.Create(ctx, repository.NoTX, a)
		if errors.Is(err, domain.ErrAlreadyExists) {
			// Either the code collided with another live one, or a
			// concurrent Issue for this device won the one-pending-per-device
			// constraint. In the latter case return the winner's code.
			if winner, ferr := uc.repo.FindPendingByDevice(ctx, repository.NoTX, deviceIdentifier); ferr == nil && !winner.Expired(now) {
				return &ports.IssueResult{Code: winner.Code, ExpiresIn: expiresIn}, nil
			}
			// No live winner: the device's own stale pending row may still
			// hold the index slot. Expire it here so re-pairing never has to
			// wait for the sweep.
			if _, eerr := uc.repo.ExpireDevicePending(ctx, repository.NoTX, deviceIdentifier); eerr != nil {
				return nil, eerr
			}
			uc.log.Debug().Int("attempt", attempt+1).Msg("pairing code collision, re-rolling")
			continue
		}
		if err != nil {
			return nil, err
		}
		// The code may equal one that recently expired and is still cached
		// as terminal; drop any such entry before handing the code out.
		_ = uc.invalidateCache(ctx, code)
		metrics.IncActivationIssued()
		return &ports.IssueResult{Code: code, ExpiresIn: expiresIn}, nil
	}

	uc.log.Error().Int("attempts", maxGenerateAttempts).Msg("pairing code generation exhausted")
	return nil, domain.ErrCodeSpaceExhausted
}

// Claim atomically binds a pending code to a user. callerKey identifies the
// caller for rate limiting (typically the remote IP) and may be empty.
//
// Exactly one of any set of concurrent claims on the same code wins; the
// store's conditional write is the arbiter. A retry of an already-won claim
// by the same user succeeds without a second transition. Every other failure
// cause (unknown code, expired, claimed by someone else) collapses into
// ErrNotClaimable so callers cannot probe which codes exist.
func (uc *PairingUseCase) Claim(ctx context.Context, code, userID, callerKey string) error {
	code = normalizeCode(code)
	userID = strings.TrimSpace(userID)
	if len(code) != uc.cfg.CodeLength || userID == "" {
		return domain.ErrInvalidArgument
	}

	if err := uc.allowClaim(ctx, code, callerKey); err != nil {
		return err
	}

	won, err := uc.repo.ClaimIfPending(ctx, repository.NoTX, code, userID)
	if err != nil {
		return err
	}
	if won {
		_ = uc.invalidateCache(ctx, code)
		metrics.IncClaim("won")
		return nil
	}

	// Losing path: one read to keep same-user retries idempotent.
	a, err := uc.repo.FindByCode(ctx, repository.NoTX, code)
	if err == nil && a.UserID != nil && *a.UserID == userID &&
		(a.Status == model.ActivationStatusClaimed || a.Status == model.ActivationStatusConsumed) {
		metrics.IncClaim("retry")
		return nil
	}

	uc.log.Info().
		Str("code", logging.Redact(code)).
		Str("cause", claimFailureCause(a, err, uc.now())).
		Msg("claim rejected")
	metrics.IncClaim("rejected")
	return domain.ErrNotClaimable
}

// Poll returns the current lifecycle state of a code. Pure read: it never
// blocks, never mutates, and tolerates arbitrarily many redundant calls.
// Unknown codes read as EXPIRED so poll responses cannot be used to
// enumerate live codes.
func (uc *PairingUseCase) Poll(ctx context.Context, code string) (*ports.PollResult, error) {
	code = normalizeCode(code)
	if len(code) != uc.cfg.CodeLength {
		return nil, domain.ErrInvalidArgument
	}

	if uc.cache != nil {
		if status, userID, ok := uc.cache.Get(ctx, code); ok {
			res := &ports.PollResult{Status: model.ActivationStatus(status)}
			if userID != "" {
				res.UserID = &userID
			}
			metrics.IncPoll(status + "_cached")
			return res, nil
		}
	}

	a, err := uc.repo.FindByCode(ctx, repository.NoTX, code)
	if errors.Is(err, domain.ErrNotFound) {
		metrics.IncPoll("unknown")
		return &ports.PollResult{Status: model.ActivationStatusExpired}, nil
	}
	if err != nil {
		return nil, err
	}

	status := a.EffectiveStatus(uc.now())
	res := &ports.PollResult{Status: status}
	if status == model.ActivationStatusClaimed || status == model.ActivationStatusConsumed {
		res.UserID = a.UserID
	}
	if status != model.ActivationStatusPending {
		uc.cacheStatus(ctx, code, res)
	}
	metrics.IncPoll(string(status))
	return res, nil
}

// Consume transitions CLAIMED -> CONSUMED for the claiming user and mints
// the session token. The conditional write is what prevents a claimed code
// from materializing two sessions: the second consume loses and fails.
func (uc *PairingUseCase) Consume(ctx context.Context, code, userID string) (*ports.ConsumeResult, error) {
	code = normalizeCode(code)
	userID = strings.TrimSpace(userID)
	if len(code) != uc.cfg.CodeLength || userID == "" {
		return nil, domain.ErrInvalidArgument
	}

	// The conditional write and the follow-up read run in one transaction so
	// the token is always minted from the row this call consumed. Minting
	// itself happens after commit.
	var a *model.Activation
	err := uc.txm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		won, err := uc.repo.ConsumeIfClaimed(ctx, tx, code, userID)
		if err != nil {
			return err
		}
		if !won {
			return domain.ErrNotConsumable
		}
		a, err = uc.repo.FindByCode(ctx, tx, code)
		return err
	})
	if errors.Is(err, domain.ErrNotConsumable) {
		uc.log.Info().Str("code", logging.Redact(code)).Msg("consume rejected")
		return nil, domain.ErrNotConsumable
	}
	if err != nil {
		return nil, err
	}
	_ = uc.invalidateCache(ctx, code)
	metrics.IncConsume()

	token, err := uc.tokens.Issue(ctx, userID, a.DeviceIdentifier)
	if err != nil {
		return nil, err
	}
	return &ports.ConsumeResult{SessionToken: token}, nil
}

// ExpireStale runs one sweep pass. Lazy evaluation in Poll/Claim stays
// authoritative regardless of when (or whether) this runs.
func (uc *PairingUseCase) ExpireStale(ctx context.Context) (int, error) {
	return uc.repo.ExpireStale(ctx, repository.NoTX)
}

// PurgeExpiredBefore deletes terminal rows older than the retention window.
func (uc *PairingUseCase) PurgeExpiredBefore(ctx context.Context, retention time.Duration) (int, error) {
	return uc.repo.PurgeExpiredBefore(ctx, repository.NoTX, uc.now().Add(-retention))
}

func (uc *PairingUseCase) allowClaim(ctx context.Context, code, callerKey string) error {
	if uc.limiter == nil {
		return nil
	}
	if err := uc.allowKey(ctx, "pairing:claim:code:"+code, uc.cfg.ClaimLimitCode); err != nil {
		return err
	}
	if callerKey != "" {
		return uc.allowKey(ctx, "pairing:claim:caller:"+callerKey, uc.cfg.ClaimLimitCaller)
	}
	return nil
}

func (uc *PairingUseCase) allowKey(ctx context.Context, key string, limit int) error {
	allowed, err := uc.limiter.Allow(ctx, key, limit, uc.cfg.ClaimWindow)
	if err != nil {
		// Limiter backend trouble must not take pairing down; the TTL and
		// keyspace still bound exposure.
		uc.log.Warn().Err(err).Msg("rate limiter unavailable, allowing claim")
		return nil
	}
	if !allowed {
		metrics.IncClaim("throttled")
		return domain.ErrRateLimited
	}
	return nil
}

func (uc *PairingUseCase) cacheStatus(ctx context.Context, code string, res *ports.PollResult) {
	if uc.cache == nil {
		return
	}
	userID := ""
	if res.UserID != nil {
		userID = *res.UserID
	}
	if err := uc.cache.Set(ctx, code, string(res.Status), userID); err != nil {
		uc.log.Debug().Err(err).Msg("status cache set failed")
	}
}

func (uc *PairingUseCase) invalidateCache(ctx context.Context, code string) error {
	if uc.cache == nil {
		return nil
	}
	return uc.cache.Invalidate(ctx, code)
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// claimFailureCause names the detailed rejection reason for logs only; the
// caller-facing error stays collapsed.
func claimFailureCause(a *model.Activation, err error, now time.Time) string {
	switch {
	case err != nil:
		return "not_found"
	case a.Expired(now) && a.Status == model.ActivationStatusPending:
		return "expired"
	case a.Status == model.ActivationStatusExpired:
		return "expired"
	case a.Status == model.ActivationStatusClaimed || a.Status == model.ActivationStatusConsumed:
		return "already_claimed"
	default:
		return "unknown"
	}
}
