package claim

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taurusgroup/confidential-identities/pkg/keys"
)

func newKey(t *testing.T) *keys.PrivateKey {
	sk, err := keys.GeneratePrivateKey()
	require.NoError(t, err)
	return sk
}

func TestSignVerify(t *testing.T) {
	signer, key := newKey(t), newKey(t)

	signed, err := Sign(Claim{Key: key.PublicKey()}, signer)
	require.NoError(t, err)
	assert.Equal(t, signer.PublicKey(), signed.Signer)

	c, err := Verify(signed, signer.PublicKey())
	require.NoError(t, err)
	assert.Equal(t, key.PublicKey(), c.Key)

	unverified, err := signed.Key()
	require.NoError(t, err)
	assert.Equal(t, key.PublicKey(), unverified)
}

func TestVerify_SignerMismatch(t *testing.T) {
	signer, stranger, key := newKey(t), newKey(t), newKey(t)

	signed, err := Sign(Claim{Key: key.PublicKey()}, signer)
	require.NoError(t, err)

	_, err = Verify(signed, stranger.PublicKey())
	require.ErrorIs(t, err, ErrSignerMismatch)
	var verr *VerificationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, SignerMismatch, verr.Kind)
}

func TestVerify_InvalidSignature(t *testing.T) {
	signer, stranger, key := newKey(t), newKey(t), newKey(t)

	t.Run("tampered payload", func(t *testing.T) {
		signed, err := Sign(Claim{Key: key.PublicKey()}, signer)
		require.NoError(t, err)
		other, err := Sign(Claim{Key: stranger.PublicKey()}, signer)
		require.NoError(t, err)
		signed.Payload = other.Payload
		_, err = Verify(signed, signer.PublicKey())
		assert.ErrorIs(t, err, ErrInvalidSignature)
	})

	t.Run("declared signer lies", func(t *testing.T) {
		signed, err := Sign(Claim{Key: key.PublicKey()}, stranger)
		require.NoError(t, err)
		signed.Signer = signer.PublicKey()
		_, err = Verify(signed, signer.PublicKey())
		assert.ErrorIs(t, err, ErrInvalidSignature)
	})

	t.Run("garbage signature", func(t *testing.T) {
		signed, err := Sign(Claim{Key: key.PublicKey()}, signer)
		require.NoError(t, err)
		signed.Signature = []byte{0x30, 0x01}
		_, err = Verify(signed, signer.PublicKey())
		assert.ErrorIs(t, err, ErrInvalidSignature)
	})

	t.Run("nil", func(t *testing.T) {
		_, err := Verify(nil, signer.PublicKey())
		assert.ErrorIs(t, err, ErrInvalidSignature)
	})
}

func TestSign_EmptyKey(t *testing.T) {
	_, err := Sign(Claim{}, newKey(t))
	assert.Error(t, err)
}
