package tiercache

import (
	"errors"
	"fmt"
	"strings"

	"github.com/hupe1980/tiercache/internal/tier"
)

var (
	// ErrInvalidConfig is wrapped by every *ConfigError.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrInvalidKey is returned for keys that cannot be used as file names.
	ErrInvalidKey = errors.New("invalid key")

	// ErrEntryTooLarge is returned when an entry does not fit in a tier at all.
	ErrEntryTooLarge = errors.New("entry too large")

	// ErrClosed is returned by operations on a closed cache.
	ErrClosed = errors.New("cache is closed")

	// ErrUnknownTier is returned for tier names or values outside Hot, Warm and Cold.
	ErrUnknownTier = errors.New("unknown tier")
)

// ConfigError describes a rejected configuration field.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid configuration: %s: %s", e.Field, e.Reason)
}

func (e *ConfigError) Unwrap() error { return ErrInvalidConfig }

// TierError is the failure of a single tier.
type TierError struct {
	Tier Tier
	Err  error
}

func (e TierError) Error() string { return fmt.Sprintf("%s: %v", e.Tier, e.Err) }

func (e TierError) Unwrap() error { return e.Err }

// SetError reports the tiers a Set could not write. Tiers not listed were
// written successfully.
type SetError struct {
	Key    string
	Failed []TierError
}

func (e *SetError) Error() string {
	parts := make([]string, len(e.Failed))
	for i, f := range e.Failed {
		parts[i] = f.Error()
	}
	return fmt.Sprintf("set %s: %d tier(s) failed: %s", e.Key, len(e.Failed), strings.Join(parts, "; "))
}

// Unwrap exposes every tier error to errors.Is and errors.As.
func (e *SetError) Unwrap() []error {
	errs := make([]error, len(e.Failed))
	for i, f := range e.Failed {
		errs[i] = f
	}
	return errs
}

// FailedTiers returns the tiers that were not written.
func (e *SetError) FailedTiers() []Tier {
	tiers := make([]Tier, len(e.Failed))
	for i, f := range e.Failed {
		tiers[i] = f.Tier
	}
	return tiers
}

func translateError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, tier.ErrTooLarge) {
		return fmt.Errorf("%w: %w", ErrEntryTooLarge, err)
	}
	return err
}
