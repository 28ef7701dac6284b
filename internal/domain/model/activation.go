package model

import (
	"time"
)

// ActivationStatus enumerates the lifecycle states of a pairing code.
type ActivationStatus string

const (
	ActivationStatusPending  ActivationStatus = "pending"
	ActivationStatusClaimed  ActivationStatus = "claimed"
	ActivationStatusExpired  ActivationStatus = "expired"
	ActivationStatusConsumed ActivationStatus = "consumed"
)

// Activation binds a display device (no keyboard, no identity) to a user
// account through a short human-typeable code. The code is shown on the
// device, typed on an identity-bearing device, and the display device polls
// until the claim lands.
type Activation struct {
	ID               string
	Code             string
	DeviceIdentifier string
	DeviceName       *string    // Pointer to allow for NULL
	Status           ActivationStatus
	UserID           *string    // Set only on claim
	CreatedAt        time.Time
	ExpiresAt        time.Time
	UpdatedAt        time.Time
}

// Expired reports whether the activation is past its TTL relative to now.
func (a *Activation) Expired(now time.Time) bool {
	return !a.ExpiresAt.After(now)
}

// EffectiveStatus evaluates expiry lazily: a PENDING record whose TTL has
// elapsed reads as EXPIRED even before the sweep touches it. CLAIMED and
// CONSUMED are terminal for the device flow and are never demoted.
func (a *Activation) EffectiveStatus(now time.Time) ActivationStatus {
	if a.Status == ActivationStatusPending && a.Expired(now) {
		return ActivationStatusExpired
	}
	return a.Status
}

// Claimable reports whether a claim may still win this activation.
func (a *Activation) Claimable(now time.Time) bool {
	return a.EffectiveStatus(now) == ActivationStatusPending
}
