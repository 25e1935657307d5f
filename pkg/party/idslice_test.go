package party

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taurusgroup/confidential-identities/pkg/keys"
)

func TestIDSlice_Valid(t *testing.T) {
	assert.True(t, NewIDSlice([]ID{"alice", "bob"}).Valid())
	assert.False(t, NewIDSlice([]ID{"alice", "alice"}).Valid())
	assert.False(t, NewIDSlice([]ID{"alice", ""}).Valid())
	assert.Equal(t, IDSlice{"alice", "bob"}, NewIDSlice([]ID{"bob", "alice"}))
}

func TestIDSlice_WriteTo(t *testing.T) {
	var a, b bytes.Buffer
	_, err := NewIDSlice([]ID{"ab", "c"}).WriteTo(&a)
	require.NoError(t, err)
	_, err = NewIDSlice([]ID{"a", "bc"}).WriteTo(&b)
	require.NoError(t, err)
	assert.NotEqual(t, a.Bytes(), b.Bytes())
}

func TestParty_Validate(t *testing.T) {
	sk, err := keys.GeneratePrivateKey()
	require.NoError(t, err)

	p, err := New("alice", sk.PublicKey())
	require.NoError(t, err)
	assert.Equal(t, "alice", p.String())
	assert.False(t, p.IsZero())

	_, err = New("", sk.PublicKey())
	assert.ErrorIs(t, err, ErrInvalidParty)
	_, err = New("alice", keys.PublicKey{})
	assert.ErrorIs(t, err, ErrInvalidParty)
}
