package identity_test

import (
	"testing"

	"github.com/taurusgroup/confidential-identities/internal/test"
	"github.com/taurusgroup/confidential-identities/pkg/identity"
)

func TestMemory(t *testing.T) {
	test.RegistrySuite(t, identity.NewMemory())
}
