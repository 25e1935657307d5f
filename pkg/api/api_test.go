package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taurusgroup/confidential-identities/internal/test"
	"github.com/taurusgroup/confidential-identities/pkg/api"
	"github.com/taurusgroup/confidential-identities/pkg/identity"
	"github.com/taurusgroup/confidential-identities/pkg/keys"
	"github.com/taurusgroup/confidential-identities/pkg/tx"
)

func TestServer(t *testing.T) {
	ctx := context.Background()
	alice, bob := test.RandomParty(t, "alice"), test.RandomParty(t, "bob")
	reg := identity.NewMemory()
	require.NoError(t, identity.SeedNetworkMap(ctx, reg, alice, bob))
	k := test.RandomKey(t)
	_, err := reg.Register(ctx, k, bob)
	require.NoError(t, err)

	srv := httptest.NewServer(api.New(alice, reg, tx.NewMemoryStore(), zerolog.Nop()).Handler())
	defer srv.Close()

	get := func(path string, v any) int {
		resp, err := http.Get(srv.URL + path)
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, "application/json", resp.Header.Get("content-type"))
		if v != nil {
			require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
		}
		return resp.StatusCode
	}

	assert.Equal(t, http.StatusOK, get("/healthz", nil))

	var m api.Mapping
	require.Equal(t, http.StatusOK, get("/v1/mappings/"+k.String(), &m))
	assert.Equal(t, api.Mapping{Key: k, Owner: bob.ID, OwnerKey: bob.OwningKey}, m)

	var list struct {
		Mappings []api.Mapping `json:"mappings"`
	}
	require.Equal(t, http.StatusOK, get("/v1/mappings", &list))
	assert.Len(t, list.Mappings, 3)

	assert.Equal(t, http.StatusNotFound, get("/v1/mappings/"+test.RandomKey(t).String(), nil))
	assert.Equal(t, http.StatusBadRequest, get("/v1/mappings/zz", nil))
	assert.Equal(t, http.StatusBadRequest, get("/v1/mappings/02abcd", nil))
}

func TestServer_Transactions(t *testing.T) {
	ctx := context.Background()
	alice, bob := test.RandomParty(t, "alice"), test.RandomParty(t, "bob")
	reg := identity.NewMemory()
	require.NoError(t, identity.SeedNetworkMap(ctx, reg, alice, bob))
	kb, unknown := test.RandomKey(t), test.RandomKey(t)
	_, err := reg.Register(ctx, kb, bob)
	require.NoError(t, err)

	store := tx.NewMemoryStore()
	prior, err := tx.New(nil, []tx.State{{Contract: "cash", Participants: []keys.PublicKey{kb}}})
	require.NoError(t, err)
	require.NoError(t, store.RecordTransaction(ctx, prior))

	srv := httptest.NewServer(api.New(alice, reg, store, zerolog.Nop()).Handler())
	defer srv.Close()

	post := func(body string, v any) int {
		resp, err := http.Post(srv.URL+"/v1/transactions", "application/json", bytes.NewBufferString(body))
		require.NoError(t, err)
		defer resp.Body.Close()
		if v != nil {
			require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
		}
		return resp.StatusCode
	}
	get := func(path string, v any) int {
		resp, err := http.Get(srv.URL + path)
		require.NoError(t, err)
		defer resp.Body.Close()
		if v != nil {
			require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
		}
		return resp.StatusCode
	}

	body := `{"inputs":[{"tx":"` + prior.ID.String() + `","index":0}],` +
		`"outputs":[{"contract":"cash","participants":["` + unknown.String() + `","` + alice.OwningKey.String() + `"]}]}`
	var recorded api.RecordedTransaction
	require.Equal(t, http.StatusCreated, post(body, &recorded))
	assert.Equal(t, []api.Participant{{Key: kb, Owner: bob.ID}, {Key: unknown}}, recorded.ConfidentialIdentities,
		"the owning key of alice is not confidential")

	var out api.Output
	require.Equal(t, http.StatusOK, get("/v1/outputs/"+recorded.ID.String()+"/0", &out))
	assert.Equal(t, "cash", out.Contract)
	assert.Equal(t, []api.Participant{{Key: unknown}, {Key: alice.OwningKey, Owner: alice.ID}}, out.Participants)

	assert.Equal(t, http.StatusNotFound, get("/v1/outputs/"+recorded.ID.String()+"/1", nil))
	assert.Equal(t, http.StatusBadRequest, get("/v1/outputs/zz/0", nil))
	assert.Equal(t, http.StatusBadRequest, get("/v1/outputs/"+recorded.ID.String()+"/-1", nil))
	assert.Equal(t, http.StatusBadRequest, post(`{"outputs":[]}`, nil))
	assert.Equal(t, http.StatusBadRequest, post(`{`, nil))

}

func TestServer_TransactionTooLarge(t *testing.T) {
	alice := test.RandomParty(t, "alice")
	h := api.New(alice, identity.NewMemory(), tx.NewMemoryStore(), zerolog.Nop()).Handler()

	huge := `{"outputs":[{"contract":"` + strings.Repeat("x", 2<<20) + `"}]}`
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/transactions", strings.NewReader(huge)))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)

	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "TOO_LARGE", body.Error.Code)
}
