// Package pgregistry implements identity.Registry on PostgreSQL.
package pgregistry

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/taurusgroup/confidential-identities/pkg/identity"
	"github.com/taurusgroup/confidential-identities/pkg/keys"
	"github.com/taurusgroup/confidential-identities/pkg/party"
)

// Schema creates the single table holding key mappings.
const Schema = `CREATE TABLE IF NOT EXISTS key_mappings (
	public_key BYTEA PRIMARY KEY,
	owner_id   TEXT NOT NULL,
	owner_key  BYTEA NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

type Registry struct{ DB *pgxpool.Pool }

var _ identity.Registry = (*Registry)(nil)

func New(db *pgxpool.Pool) *Registry { return &Registry{DB: db} }

// Connect opens a pool for url and creates the schema.
func Connect(ctx context.Context, url string) (*Registry, error) {
	db, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("pgregistry: connect: %w", err)
	}
	r := New(db)
	if err = r.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return r, nil
}

// Migrate creates the schema if needed.
func (r *Registry) Migrate(ctx context.Context) error {
	if _, err := r.DB.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("pgregistry: migrate: %w", err)
	}
	return nil
}

// Close closes the pool.
func (r *Registry) Close() { r.DB.Close() }

func scanOwner(row pgx.Row) (party.Party, error) {
	var (
		id       string
		ownerKey []byte
	)
	if err := row.Scan(&id, &ownerKey); err != nil {
		return party.Party{}, err
	}
	k, err := keys.ParsePublicKey(ownerKey)
	if err != nil {
		return party.Party{}, fmt.Errorf("pgregistry: stored owner key: %w", err)
	}
	return party.Party{ID: party.ID(id), OwningKey: k}, nil
}

// Resolve implements identity.Registry.
func (r *Registry) Resolve(ctx context.Context, key keys.PublicKey) (party.Party, bool, error) {
	p, err := scanOwner(r.DB.QueryRow(ctx, `SELECT owner_id,owner_key FROM key_mappings WHERE public_key=$1`, key[:]))
	if errors.Is(err, pgx.ErrNoRows) {
		return party.Party{}, false, nil
	}
	if err != nil {
		return party.Party{}, false, fmt.Errorf("pgregistry: resolve: %w", err)
	}
	return p, true, nil
}

// Register implements identity.Registry.
//
// The insert is the conditional write: rows are never updated,
// so reading the existing owner after a conflicting insert is race free.
func (r *Registry) Register(ctx context.Context, key keys.PublicKey, owner party.Party) (bool, error) {
	if err := (identity.Mapping{Key: key, Owner: owner}).Validate(); err != nil {
		return false, err
	}
	tag, err := r.DB.Exec(ctx,
		`INSERT INTO key_mappings(public_key,owner_id,owner_key) VALUES($1,$2,$3) ON CONFLICT (public_key) DO NOTHING`,
		key[:], string(owner.ID), owner.OwningKey[:])
	if err != nil {
		return false, fmt.Errorf("pgregistry: register: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}
	existing, ok, err := r.Resolve(ctx, key)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, fmt.Errorf("pgregistry: register: mapping for %s vanished", key.Short())
	}
	return existing == owner, nil
}

// Mappings implements identity.Registry.
func (r *Registry) Mappings(ctx context.Context) ([]identity.Mapping, error) {
	rows, err := r.DB.Query(ctx, `SELECT public_key,owner_id,owner_key FROM key_mappings ORDER BY public_key ASC`)
	if err != nil {
		return nil, fmt.Errorf("pgregistry: mappings: %w", err)
	}
	defer rows.Close()

	var out []identity.Mapping
	for rows.Next() {
		var (
			publicKey, ownerKey []byte
			id                  string
		)
		if err = rows.Scan(&publicKey, &id, &ownerKey); err != nil {
			return nil, fmt.Errorf("pgregistry: scan: %w", err)
		}
		k, err := keys.ParsePublicKey(publicKey)
		if err != nil {
			return nil, fmt.Errorf("pgregistry: stored key: %w", err)
		}
		owning, err := keys.ParsePublicKey(ownerKey)
		if err != nil {
			return nil, fmt.Errorf("pgregistry: stored owner key: %w", err)
		}
		out = append(out, identity.Mapping{Key: k, Owner: party.Party{ID: party.ID(id), OwningKey: owning}})
	}
	return out, rows.Err()
}
