package main

import (
	"context"
	"fmt"

	"github.com/taurusgroup/confidential-identities/internal/config"
	"github.com/taurusgroup/confidential-identities/pkg/identity"
	"github.com/taurusgroup/confidential-identities/pkg/identity/kvregistry"
	"github.com/taurusgroup/confidential-identities/pkg/identity/pgregistry"
	"github.com/taurusgroup/confidential-identities/pkg/tx"
)

// openRegistry opens the configured registry. The returned function releases it.
func openRegistry(ctx context.Context, c config.RegistryConfig) (identity.Registry, func(), error) {
	switch c.Backend {
	case config.BackendMemory:
		return identity.NewMemory(), func() {}, nil
	case config.BackendLevelDB:
		reg, err := kvregistry.Open(c.Path)
		if err != nil {
			return nil, nil, err
		}
		return reg, func() { _ = reg.Close() }, nil
	case config.BackendPostgres:
		reg, err := pgregistry.Connect(ctx, c.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		return reg, reg.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown registry backend %q", c.Backend)
	}
}

// openStore opens the configured transaction store. The returned function releases it.
func openStore(c config.StoreConfig) (tx.Store, func(), error) {
	switch c.Backend {
	case config.BackendMemory:
		return tx.NewMemoryStore(), func() {}, nil
	case config.BackendLevelDB:
		s, err := tx.OpenLevelDBStore(c.Path)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { _ = s.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", c.Backend)
	}
}
