// Package secrets resolves upstream credentials at request time.
//
// Stores are injected into provider clients at construction; nothing reads
// process-global credential state.
package secrets

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/wakakowasake/favthing/internal/domain"
)

const (
	KMDBAPIKey        = "KMDB_API_KEY"
	TMDBAPIKey        = "TMDB_API_KEY"
	LastFMAPIKey      = "LASTFM_API_KEY"
	NaverClientID     = "NAVER_CLIENT_ID"
	NaverClientSecret = "NAVER_CLIENT_SECRET"
)

// legacyPrefix is the prefix the credentials were deployed under originally.
const legacyPrefix = "VITE_"

// Names lists every secret the service knows about.
func Names() []string {
	return []string{KMDBAPIKey, TMDBAPIKey, LastFMAPIKey, NaverClientID, NaverClientSecret}
}

// Store returns the value of a named secret, or "" when it is not set.
// A non-nil error means the store itself could not be read.
type Store interface {
	Get(ctx context.Context, name string) (string, error)
}

type EnvStore struct {
	lookup func(string) (string, bool)
}

func NewEnvStore() *EnvStore {
	return &EnvStore{lookup: os.LookupEnv}
}

// NewEnvStoreFrom is used by tests to supply an environment map.
func NewEnvStoreFrom(env map[string]string) *EnvStore {
	return &EnvStore{lookup: func(key string) (string, bool) {
		value, ok := env[key]
		return value, ok
	}}
}

func (s *EnvStore) Get(_ context.Context, name string) (string, error) {
	if s == nil || s.lookup == nil {
		return "", nil
	}
	for _, key := range []string{name, legacyPrefix + name} {
		if value, ok := s.lookup(key); ok {
			if trimmed := strings.TrimSpace(value); trimmed != "" {
				return trimmed, nil
			}
		}
	}
	return "", nil
}

// Chain consults stores in order and returns the first non-empty value.
// A failing store is skipped; its error is returned only if no later
// store has the secret.
type Chain []Store

func (c Chain) Get(ctx context.Context, name string) (string, error) {
	var errs []error
	for _, store := range c {
		if store == nil {
			continue
		}
		value, err := store.Get(ctx, name)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if value != "" {
			return value, nil
		}
	}
	return "", errors.Join(errs...)
}

// Status reports which known secrets resolve to a value.
func Status(ctx context.Context, store Store) map[string]bool {
	out := make(map[string]bool, len(Names()))
	for _, name := range Names() {
		value, err := store.Get(ctx, name)
		out[name] = err == nil && value != ""
	}
	return out
}

// Require resolves a secret that an endpoint cannot work without. A missing
// value becomes *domain.ConfigurationError carrying message.
func Require(ctx context.Context, store Store, name, message string) (string, error) {
	if store == nil {
		return "", &domain.ConfigurationError{Secret: name, Message: message}
	}
	value, err := store.Get(ctx, name)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", name, err)
	}
	if value == "" {
		return "", &domain.ConfigurationError{Secret: name, Message: message}
	}
	return value, nil
}
