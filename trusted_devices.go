package authflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

const (
	trustedDeviceKeySegment = ":device:"
	trustedListKeySegment   = ":devices:"
)

// TrustedDeviceRegistry grants and checks bounded-duration second-factor
// exemptions for the current installation. Grants are persisted through the
// injected KeyValueStore under two keys per user that are kept consistent: a
// single-grant fast-lookup record and an ordered list of all grants. TTL is
// enforced lazily on read; expired grants are purged before any answer is
// returned.
//
// Trust mutation is reserved for the Engine after explicit user confirmation;
// the registry only enforces the confirmed-intent flag, not who calls it.
type TrustedDeviceRegistry struct {
	cfg      TrustedDeviceConfig
	store    KeyValueStore
	identity *deviceIdentity
	clock    Clock

	// onExpired is invoked once per grant purged on read, after the purge
	// succeeded. Set by the Engine builder to feed expiry metrics.
	onExpired func()
}

// NewTrustedDeviceRegistry describes the newtrusteddeviceregistry operation and its observable behavior.
//
// NewTrustedDeviceRegistry does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func NewTrustedDeviceRegistry(cfg TrustedDeviceConfig, store KeyValueStore, clock Clock) *TrustedDeviceRegistry {
	if cfg.TTL <= 0 {
		cfg.TTL = defaultTrustTTL
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "af"
	}
	if clock == nil {
		clock = systemClock{}
	}
	return &TrustedDeviceRegistry{
		cfg:      cfg,
		store:    store,
		identity: newDeviceIdentity(store, cfg.KeyPrefix),
		clock:    clock,
	}
}

// DeviceID returns the stable identifier of this installation, generating and
// persisting one on first use.
//
// DeviceID may return an error when input validation, dependency calls, or security checks fail.
func (r *TrustedDeviceRegistry) DeviceID(ctx context.Context) (string, error) {
	return r.identity.ID(ctx)
}

func (r *TrustedDeviceRegistry) deviceKey(userID string) string {
	return r.cfg.KeyPrefix + trustedDeviceKeySegment + userID
}

func (r *TrustedDeviceRegistry) listKey(userID string) string {
	return r.cfg.KeyPrefix + trustedListKeySegment + userID
}

// IsTrusted reports whether a non-expired grant exists for this installation
// on the given user. Finding an expired grant deletes it before returning
// false. Storage failures propagate; the caller decides the failure posture.
//
// IsTrusted may return an error when input validation, dependency calls, or security checks fail.
func (r *TrustedDeviceRegistry) IsTrusted(ctx context.Context, userID string) (bool, error) {
	deviceID, err := r.identity.ID(ctx)
	if err != nil {
		return false, err
	}

	grant, err := r.loadFastRecord(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrKeyNotFound) {
			return false, nil
		}
		return false, err
	}

	if grant.DeviceID != deviceID {
		return false, nil
	}
	if grant.Expired(r.clock.Now()) {
		if err := r.purge(ctx, userID, grant.DeviceID); err != nil {
			return false, err
		}
		r.expired(1)
		return false, nil
	}
	return true, nil
}

// Grant creates or replaces the trust grant for the current installation.
// The confirmed flag asserts that the caller re-verified the account password
// immediately before granting; without it the registry refuses.
//
// Grant may return an error when input validation, dependency calls, or security checks fail.
func (r *TrustedDeviceRegistry) Grant(ctx context.Context, userID, label string, confirmed bool) (TrustedDeviceGrant, error) {
	if !confirmed {
		return TrustedDeviceGrant{}, ErrTrustUnconfirmed
	}
	if userID == "" {
		return TrustedDeviceGrant{}, fieldErr("userID", "must not be empty")
	}

	deviceID, err := r.identity.ID(ctx)
	if err != nil {
		return TrustedDeviceGrant{}, err
	}

	now := r.clock.Now()
	grant := TrustedDeviceGrant{
		DeviceID:  deviceID,
		UserID:    userID,
		Label:     label,
		CreatedAt: now,
		ExpiresAt: now.Add(r.cfg.TTL),
	}

	grants, err := r.loadList(ctx, userID)
	if err != nil {
		return TrustedDeviceGrant{}, err
	}

	kept := grants[:0]
	for _, existing := range grants {
		if existing.DeviceID == deviceID || existing.Expired(now) {
			continue
		}
		kept = append(kept, existing)
	}
	kept = append(kept, grant)

	// List first, fast record second: a crash between the writes leaves the
	// grant visible to management but not to the trust check, which only
	// re-challenges the user.
	if err := r.saveList(ctx, userID, kept); err != nil {
		return TrustedDeviceGrant{}, err
	}
	if err := r.saveFastRecord(ctx, userID, grant); err != nil {
		return TrustedDeviceGrant{}, err
	}

	return grant, nil
}

// Revoke removes one grant from the user's list. When the grant belongs to
// the device in the fast-lookup record, that record is cleared too so both
// keys stay consistent.
//
// Revoke may return an error when input validation, dependency calls, or security checks fail.
func (r *TrustedDeviceRegistry) Revoke(ctx context.Context, userID, deviceID string) error {
	grants, err := r.loadList(ctx, userID)
	if err != nil {
		return err
	}

	now := r.clock.Now()
	kept := grants[:0]
	for _, existing := range grants {
		if existing.DeviceID == deviceID || existing.Expired(now) {
			continue
		}
		kept = append(kept, existing)
	}

	if len(kept) == 0 {
		if err := r.store.Remove(ctx, r.listKey(userID)); err != nil {
			return err
		}
	} else if err := r.saveList(ctx, userID, kept); err != nil {
		return err
	}

	fast, err := r.loadFastRecord(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrKeyNotFound) {
			return nil
		}
		return err
	}
	if fast.DeviceID == deviceID {
		return r.store.Remove(ctx, r.deviceKey(userID))
	}
	return nil
}

// RevokeAll clears every grant for the user, including the fast-lookup
// record. Used by "log out of all devices" flows.
//
// RevokeAll may return an error when input validation, dependency calls, or security checks fail.
func (r *TrustedDeviceRegistry) RevokeAll(ctx context.Context, userID string) error {
	if err := r.store.Remove(ctx, r.listKey(userID)); err != nil {
		return err
	}
	return r.store.Remove(ctx, r.deviceKey(userID))
}

// List returns the user's non-expired grants in issuance order. Expired
// entries are pruned from storage before the result is returned.
//
// List may return an error when input validation, dependency calls, or security checks fail.
func (r *TrustedDeviceRegistry) List(ctx context.Context, userID string) ([]TrustedDeviceGrant, error) {
	grants, err := r.loadList(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := r.clock.Now()
	kept := make([]TrustedDeviceGrant, 0, len(grants))
	pruned := 0
	for _, existing := range grants {
		if existing.Expired(now) {
			pruned++
			continue
		}
		kept = append(kept, existing)
	}

	if pruned > 0 {
		if len(kept) == 0 {
			if err := r.store.Remove(ctx, r.listKey(userID)); err != nil {
				return nil, err
			}
		} else if err := r.saveList(ctx, userID, kept); err != nil {
			return nil, err
		}
		r.expired(pruned)
	}

	return kept, nil
}

func (r *TrustedDeviceRegistry) expired(n int) {
	if r.onExpired == nil {
		return
	}
	for i := 0; i < n; i++ {
		r.onExpired()
	}
}

func (r *TrustedDeviceRegistry) loadFastRecord(ctx context.Context, userID string) (TrustedDeviceGrant, error) {
	raw, err := r.store.Get(ctx, r.deviceKey(userID))
	if err != nil {
		return TrustedDeviceGrant{}, err
	}

	var grant TrustedDeviceGrant
	if err := json.Unmarshal([]byte(raw), &grant); err != nil {
		// Corrupt record: drop it rather than trusting or erroring forever.
		if removeErr := r.store.Remove(ctx, r.deviceKey(userID)); removeErr != nil {
			return TrustedDeviceGrant{}, removeErr
		}
		return TrustedDeviceGrant{}, ErrKeyNotFound
	}
	return grant, nil
}

func (r *TrustedDeviceRegistry) saveFastRecord(ctx context.Context, userID string, grant TrustedDeviceGrant) error {
	encoded, err := json.Marshal(grant)
	if err != nil {
		return fmt.Errorf("encode trusted device grant: %w", err)
	}
	return r.store.Set(ctx, r.deviceKey(userID), string(encoded))
}

func (r *TrustedDeviceRegistry) loadList(ctx context.Context, userID string) ([]TrustedDeviceGrant, error) {
	raw, err := r.store.Get(ctx, r.listKey(userID))
	if err != nil {
		if errors.Is(err, ErrKeyNotFound) {
			return nil, nil
		}
		return nil, err
	}

	var grants []TrustedDeviceGrant
	if err := json.Unmarshal([]byte(raw), &grants); err != nil {
		if removeErr := r.store.Remove(ctx, r.listKey(userID)); removeErr != nil {
			return nil, removeErr
		}
		return nil, nil
	}
	return grants, nil
}

func (r *TrustedDeviceRegistry) saveList(ctx context.Context, userID string, grants []TrustedDeviceGrant) error {
	encoded, err := json.Marshal(grants)
	if err != nil {
		return fmt.Errorf("encode trusted device list: %w", err)
	}
	return r.store.Set(ctx, r.listKey(userID), string(encoded))
}

func (r *TrustedDeviceRegistry) purge(ctx context.Context, userID, deviceID string) error {
	if err := r.store.Remove(ctx, r.deviceKey(userID)); err != nil {
		return err
	}

	grants, err := r.loadList(ctx, userID)
	if err != nil {
		return err
	}
	kept := grants[:0]
	for _, existing := range grants {
		if existing.DeviceID == deviceID {
			continue
		}
		kept = append(kept, existing)
	}
	if len(kept) == 0 {
		return r.store.Remove(ctx, r.listKey(userID))
	}
	return r.saveList(ctx, userID, kept)
}
