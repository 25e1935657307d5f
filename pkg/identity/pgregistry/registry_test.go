package pgregistry

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/taurusgroup/confidential-identities/internal/test"
)

// TestRegistry runs against a scratch database named by CID_TEST_DATABASE_URL.
func TestRegistry(t *testing.T) {
	url := os.Getenv("CID_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("CID_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	r, err := Connect(ctx, url)
	require.NoError(t, err)
	defer r.Close()

	_, err = r.DB.Exec(ctx, `TRUNCATE key_mappings`)
	require.NoError(t, err)
	test.RegistrySuite(t, r)
}
