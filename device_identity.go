package authflow

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

const deviceIdentityKeySuffix = ":identity"

// deviceIdentity resolves the stable identifier of the installation. The
// identifier is generated once, persisted through the configured
// KeyValueStore, and reused on every subsequent start. Losing the stored
// identifier simply produces a fresh one; the device then looks untrusted
// until re-confirmed.
type deviceIdentity struct {
	store  KeyValueStore
	prefix string

	mu     sync.Mutex
	cached string
}

func newDeviceIdentity(store KeyValueStore, prefix string) *deviceIdentity {
	return &deviceIdentity{
		store:  store,
		prefix: prefix,
	}
}

func (d *deviceIdentity) key() string {
	return d.prefix + deviceIdentityKeySuffix
}

// ID returns the persisted device identifier, generating and storing one on
// first use.
func (d *deviceIdentity) ID(ctx context.Context) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.cached != "" {
		return d.cached, nil
	}

	stored, err := d.store.Get(ctx, d.key())
	switch {
	case err == nil:
		if _, parseErr := uuid.Parse(stored); parseErr == nil {
			d.cached = stored
			return stored, nil
		}
		// Corrupt identity record. Regenerate below.
	case !errors.Is(err, ErrKeyNotFound):
		return "", err
	}

	id, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrIdentityUnavailable, err)
	}

	generated := id.String()
	if err := d.store.Set(ctx, d.key(), generated); err != nil {
		return "", err
	}

	d.cached = generated
	return generated, nil
}
