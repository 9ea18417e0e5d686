package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
)

// ErrSecretNotFound is returned when a secret store has no value for a key.
var ErrSecretNotFound = errors.New("secret not found")

// SecretStore resolves secret values by key.
type SecretStore interface {
	Get(ctx context.Context, key string) (string, error)
}

// EnvironmentSecretStore reads secrets from process environment variables.
type EnvironmentSecretStore struct {
	lookup lookupFunc
}

func NewEnvironmentSecretStore() *EnvironmentSecretStore {
	return &EnvironmentSecretStore{lookup: os.LookupEnv}
}

func (s *EnvironmentSecretStore) Get(_ context.Context, key string) (string, error) {
	v, ok := s.lookup(key)
	if !ok || v == "" {
		return "", fmt.Errorf("%w: %s", ErrSecretNotFound, key)
	}
	return v, nil
}

func (s *EnvironmentSecretStore) GetWithDefault(ctx context.Context, key, def string) string {
	v, err := s.Get(ctx, key)
	if err != nil {
		return def
	}
	return v
}

// Secret keys consulted by ApplySecrets.
const (
	SecretSQLDSN        = "QUESTKIT_SECRET_SQL_DSN"
	SecretRedisPassword = "QUESTKIT_SECRET_REDIS_PASSWORD"
	SecretWebhookSecret = "QUESTKIT_SECRET_WEBHOOK"
	SecretAPIKeys       = "QUESTKIT_SECRET_API_KEYS"
)

// ApplySecrets fills credential fields from the store. Missing secrets leave
// the configured value untouched; any other store error aborts.
func (c *Config) ApplySecrets(ctx context.Context, store SecretStore) error {
	fill := func(key string, dst *string) error {
		v, err := store.Get(ctx, key)
		switch {
		case errors.Is(err, ErrSecretNotFound):
			return nil
		case err != nil:
			return fmt.Errorf("resolve secret %s: %w", key, err)
		}
		*dst = v
		return nil
	}
	if err := fill(SecretSQLDSN, &c.Storage.SQL.DSN); err != nil {
		return err
	}
	if err := fill(SecretRedisPassword, &c.Storage.Redis.Password); err != nil {
		return err
	}
	if err := fill(SecretWebhookSecret, &c.Webhooks.Secret); err != nil {
		return err
	}
	var keys string
	if err := fill(SecretAPIKeys, &keys); err != nil {
		return err
	}
	if keys != "" {
		c.Security.APIKeys = nil
		for _, k := range strings.Split(keys, ",") {
			if k = strings.TrimSpace(k); k != "" {
				c.Security.APIKeys = append(c.Security.APIKeys, k)
			}
		}
	}
	return nil
}
