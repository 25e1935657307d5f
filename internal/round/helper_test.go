package round_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taurusgroup/confidential-identities/internal/round"
	"github.com/taurusgroup/confidential-identities/internal/test"
	"github.com/taurusgroup/confidential-identities/pkg/party"
)

func TestNewSession(t *testing.T) {
	RNumber := round.Number(3)
	alice, bob := test.RandomParty(t, "alice"), test.RandomParty(t, "bob")
	tests := []struct {
		name    string
		self    party.Party
		peer    party.Party
		wantErr bool
	}{
		{"ok", alice, bob, false},
		{"empty self", party.Party{}, bob, true},
		{"peer without key", alice, party.Party{ID: "bob"}, true},
		{"same ID", alice, test.RandomParty(t, "alice"), true},
		{"same key", alice, party.Party{ID: "mallory", OwningKey: alice.OwningKey}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info := round.Info{
				ProtocolID:       "TEST",
				FinalRoundNumber: RNumber,
				Self:             tt.self,
				Peer:             tt.peer,
			}
			_, err := round.NewSession(info, nil)
			if tt.wantErr == (err == nil) {
				t.Error(err)
			}
		})
	}
}

func TestNewSession_SSID(t *testing.T) {
	alice, bob := test.RandomParty(t, "alice"), test.RandomParty(t, "bob")
	sessionID := []byte("session")

	a, err := round.NewSession(round.Info{ProtocolID: "TEST", Self: alice, Peer: bob}, sessionID)
	require.NoError(t, err)
	b, err := round.NewSession(round.Info{ProtocolID: "TEST", Self: bob, Peer: alice}, sessionID)
	require.NoError(t, err)
	assert.Equal(t, a.SSID(), b.SSID(), "both sides of a session share the SSID")
	assert.Equal(t, a.PartyIDs(), b.PartyIDs())

	c, err := round.NewSession(round.Info{ProtocolID: "OTHER", Self: alice, Peer: bob}, sessionID)
	require.NoError(t, err)
	assert.NotEqual(t, a.SSID(), c.SSID())

	d, err := round.NewSession(round.Info{ProtocolID: "TEST", Self: alice, Peer: bob}, []byte("other"))
	require.NoError(t, err)
	assert.NotEqual(t, a.SSID(), d.SSID())
}
