package credential

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrExpired is returned by providers when the only bundle they can offer is past its expiry.
var ErrExpired = errors.New("upload credential expired")

// Provider hands out a credential bundle for uploading the given object key.
type Provider interface {
	Credential(ctx context.Context, key string) (Bundle, error)
}

// StaticProvider serves a single pre-computed bundle, typically read from the configuration.
type StaticProvider struct {
	bundle Bundle
	now    func() time.Time
}

// NewStaticProvider validates the bundle and fills in its expiry from the policy document
// when it is not set explicitly.
func NewStaticProvider(bundle Bundle) (*StaticProvider, error) {
	if err := bundle.Validate(); err != nil {
		return nil, err
	}

	if bundle.ExpiresAt.IsZero() {
		// the policy is opaque to us, an undecodable one simply has no known expiry
		if expiration, err := PolicyExpiration(bundle.Policy); err == nil {
			bundle.ExpiresAt = expiration
		}
	}

	return &StaticProvider{
		bundle: bundle,
		now:    time.Now,
	}, nil
}

// Credential ...
func (p *StaticProvider) Credential(ctx context.Context, key string) (Bundle, error) {
	if err := ctx.Err(); err != nil {
		return Bundle{}, err
	}
	if p.bundle.Expired(p.now()) {
		return Bundle{}, fmt.Errorf("%w at %s", ErrExpired, p.bundle.ExpiresAt.Format(time.RFC3339))
	}
	return p.bundle, nil
}
