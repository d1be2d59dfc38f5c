// Package access remembers why the remote service refused this client, so a
// session that cannot sync is not restored again.
package access

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"

	"github.com/openmined/trackd/internal/version"
	"golang.org/x/mod/semver"
)

var (
	ErrClientOutdated = errors.New("this version of trackd is no longer supported, please update")
	ErrApiOutdated    = errors.New("the service api used by this version of trackd is no longer available, please update")
	ErrUnauthorized   = errors.New("the stored credentials were rejected, please log in again")
)

// IsRestricted reports whether err is one of the restrictions returned by Check
func IsRestricted(err error) bool {
	return errors.Is(err, ErrClientOutdated) || errors.Is(err, ErrApiOutdated) || errors.Is(err, ErrUnauthorized)
}

const (
	keyClientOutdated = "access.outdated_client"
	keyApiOutdated    = "access.outdated_api"
	keyUnauthorized   = "access.unauthorized_token"
)

// SettingsStore is the key value storage the restrictions are kept in. It
// must survive logout.
type SettingsStore interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key string, value string) error
	Delete(ctx context.Context, key string) error
}

// Storage reads and writes access restrictions.
//
// The outdated flags record the client version that was refused. They apply
// to that version and every older one, so updating the client lifts them.
type Storage struct {
	settings SettingsStore
	version  string
}

func NewStorage(settings SettingsStore, clientVersion string) *Storage {
	return &Storage{
		settings: settings,
		version:  clientVersion,
	}
}

func (s *Storage) SetClientOutdated(ctx context.Context) error {
	slog.Warn("client version refused by the server", "version", s.version)
	return s.settings.Set(ctx, keyClientOutdated, s.version)
}

func (s *Storage) SetApiOutdated(ctx context.Context) error {
	slog.Warn("api version refused by the server", "version", s.version)
	return s.settings.Set(ctx, keyApiOutdated, s.version)
}

// SetUnauthorizedAccess marks apiToken as rejected. Only a digest of the token is stored.
func (s *Storage) SetUnauthorizedAccess(ctx context.Context, apiToken string) error {
	slog.Warn("api token refused by the server")
	return s.settings.Set(ctx, keyUnauthorized, tokenDigest(apiToken))
}

func (s *Storage) IsClientOutdated(ctx context.Context) (bool, error) {
	return s.isOutdated(ctx, keyClientOutdated)
}

func (s *Storage) IsApiOutdated(ctx context.Context) (bool, error) {
	return s.isOutdated(ctx, keyApiOutdated)
}

func (s *Storage) IsUnauthorized(ctx context.Context, apiToken string) (bool, error) {
	stored, ok, err := s.settings.Get(ctx, keyUnauthorized)
	if err != nil || !ok {
		return false, err
	}
	return stored == tokenDigest(apiToken), nil
}

// Check returns the first restriction that applies to apiToken, or nil
func (s *Storage) Check(ctx context.Context, apiToken string) error {
	checks := []struct {
		check func(context.Context) (bool, error)
		err   error
	}{
		{s.IsClientOutdated, ErrClientOutdated},
		{s.IsApiOutdated, ErrApiOutdated},
		{func(ctx context.Context) (bool, error) { return s.IsUnauthorized(ctx, apiToken) }, ErrUnauthorized},
	}

	for _, c := range checks {
		restricted, err := c.check(ctx)
		if err != nil {
			return fmt.Errorf("check access restrictions: %w", err)
		}
		if restricted {
			return c.err
		}
	}
	return nil
}

// Reset lifts every restriction
func (s *Storage) Reset(ctx context.Context) error {
	for _, key := range []string{keyClientOutdated, keyApiOutdated, keyUnauthorized} {
		if err := s.settings.Delete(ctx, key); err != nil {
			return err
		}
	}
	return nil
}

func (s *Storage) isOutdated(ctx context.Context, key string) (bool, error) {
	stored, ok, err := s.settings.Get(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	return isOutdated(stored, s.version), nil
}

func isOutdated(refused string, current string) bool {
	refusedSemver, currentSemver := version.Canonical(refused), version.Canonical(current)
	if refusedSemver == "" || currentSemver == "" {
		return refused == current
	}
	return semver.Compare(currentSemver, refusedSemver) <= 0
}

func tokenDigest(apiToken string) string {
	sum := sha256.Sum256([]byte(apiToken))
	return hex.EncodeToString(sum[:])
}
