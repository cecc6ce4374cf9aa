package authflow

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/emberchat/authflow/internal"
)

// OneTimeCodeIssuer produces and validates short-lived numeric codes for an
// out-of-band delivery channel. Only a hash of the active code is retained;
// issuing a new code supersedes the previous one. All methods are safe for
// concurrent use.
type OneTimeCodeIssuer struct {
	cfg   OneTimeCodeConfig
	clock Clock

	mu       sync.Mutex
	active   bool
	codeHash [32]byte
	issuedAt time.Time
}

// NewOneTimeCodeIssuer describes the newonetimecodeissuer operation and its observable behavior.
//
// NewOneTimeCodeIssuer does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func NewOneTimeCodeIssuer(cfg OneTimeCodeConfig, clock Clock) *OneTimeCodeIssuer {
	if cfg.Digits <= 0 {
		cfg.Digits = defaultCodeDigits
	}
	if cfg.ResendCooldown <= 0 {
		cfg.ResendCooldown = defaultResendCooldown
	}
	if clock == nil {
		clock = systemClock{}
	}
	return &OneTimeCodeIssuer{
		cfg:   cfg,
		clock: clock,
	}
}

// Issue generates a fresh code, invalidating any previously issued one, and
// starts the resend cooldown. The plaintext code is returned exactly once for
// dispatch and is not retained.
//
// Issue may return an error when input validation, dependency calls, or security checks fail.
func (i *OneTimeCodeIssuer) Issue() (string, error) {
	code, err := internal.NewNumericCode()
	if err != nil {
		return "", fmt.Errorf("one-time code generation: %w", err)
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	i.active = true
	i.codeHash = internal.HashCode(code)
	i.issuedAt = i.clock.Now()

	return code, nil
}

// Validate checks a candidate against the most recently issued code. Input is
// filtered to digits before comparison. A mismatch is recoverable: the active
// code stays valid and the cooldown is untouched.
//
// Validate may return an error when input validation, dependency calls, or security checks fail.
func (i *OneTimeCodeIssuer) Validate(candidate string) error {
	digits := filterDigits(candidate)
	if len(digits) != i.cfg.Digits {
		return fieldErr("code", fmt.Sprintf("must be %d digits", i.cfg.Digits))
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	if i.cfg.BypassValidation {
		return nil
	}
	if !i.active {
		return ErrNoActiveCode
	}
	if !internal.CodesEqual(i.codeHash, digits) {
		return ErrCodeMismatch
	}
	return nil
}

// CanResend reports whether the resend cooldown from the last issuance has
// fully elapsed. True when no code has been issued yet.
func (i *OneTimeCodeIssuer) CanResend() bool {
	return i.Remaining() == 0
}

// Remaining returns the time left on the resend cooldown, derived from the
// issuance instant rather than a decremented counter. Zero when resending is
// allowed.
func (i *OneTimeCodeIssuer) Remaining() time.Duration {
	i.mu.Lock()
	defer i.mu.Unlock()

	if !i.active {
		return 0
	}
	remaining := i.issuedAt.Add(i.cfg.ResendCooldown).Sub(i.clock.Now())
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Invalidate discards the active code and clears the cooldown. Used when a
// flow is abandoned or a dispatched code could not be delivered.
func (i *OneTimeCodeIssuer) Invalidate() {
	i.mu.Lock()
	defer i.mu.Unlock()

	i.active = false
	i.codeHash = [32]byte{}
	i.issuedAt = time.Time{}
}

func filterDigits(input string) string {
	var b strings.Builder
	for _, r := range input {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
