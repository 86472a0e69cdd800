package credentials

import (
	"encoding/json"
	"testing"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/ldclabs/cose/iana"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientDataJSON(t *testing.T) {
	b, err := ClientDataJSON(protocol.CreateCeremony, []byte{0xde, 0xad, 0xbe, 0xef, 0xfb, 0xff}, "wallet.example")
	require.NoError(t, err)

	var cd protocol.CollectedClientData
	require.NoError(t, json.Unmarshal(b, &cd))
	assert.Equal(t, protocol.CreateCeremony, cd.Type)
	assert.Equal(t, "3q2-7_v_", cd.Challenge)
	assert.Equal(t, "https://wallet.example", cd.Origin)
	assert.NotContains(t, string(b), "=")
}

func TestClientDataJSON_EmptyDomain(t *testing.T) {
	b, err := ClientDataJSON(protocol.AssertCeremony, []byte{1}, "")
	require.NoError(t, err)

	var cd protocol.CollectedClientData
	require.NoError(t, json.Unmarshal(b, &cd))
	assert.Equal(t, protocol.AssertCeremony, cd.Type)
	assert.Equal(t, "https://", cd.Origin)
}

func TestDecodeUserID(t *testing.T) {
	id, err := decodeUserID("AQID")
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, id)

	id, err = decodeUserID("AQI=")
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2}, id)

	_, err = decodeUserID(nil)
	assert.ErrorIs(t, err, ErrInvalidOptions)

	_, err = decodeUserID(42.0)
	assert.ErrorIs(t, err, ErrInvalidOptions)

	_, err = decodeUserID("not base64!")
	assert.ErrorIs(t, err, ErrInvalidOptions)
}

func TestDecodeCreation_MissingChallenge(t *testing.T) {
	_, err := decodeCreation(`{"publicKey":{"rp":{"id":"wallet.example"}}}`)
	assert.ErrorIs(t, err, ErrInvalidOptions)

	_, err = decodeAssertion(`{"publicKey":`)
	assert.ErrorIs(t, err, ErrInvalidOptions)
}

func TestCredentialParameters_Default(t *testing.T) {
	params := credentialParameters(nil)
	require.Len(t, params, 2)
	assert.Equal(t, iana.AlgorithmES256, params[0].Algorithm)
	assert.Equal(t, iana.AlgorithmRS256, params[1].Algorithm)
}

func TestPublicKeyCredential_OmitsAbsentFields(t *testing.T) {
	cred := newPublicKeyCredential([]byte{0xfb, 0xff}, AssertionResponse{
		ClientDataJSON:    []byte("{}"),
		AuthenticatorData: []byte{1},
		Signature:         []byte{2},
	})

	b, err := json.Marshal(cred)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(b, &raw))
	assert.Equal(t, "-_8", raw["id"])
	assert.Equal(t, "-_8", raw["rawId"])
	assert.Equal(t, "public-key", raw["type"])
	assert.Equal(t, map[string]any{}, raw["clientExtensionResults"])

	response := raw["response"].(map[string]any)
	assert.NotContains(t, response, "userHandle")
	assert.NotContains(t, string(b), "null")
}

func TestWithoutHints(t *testing.T) {
	out, err := withoutHints(`{"publicKey":{"challenge":"AAAA","hints":["emulator"]}}`)
	require.NoError(t, err)
	assert.JSONEq(t, `{"challenge":"AAAA"}`, out)

	_, err = withoutHints(`{"mediation":"silent"}`)
	assert.ErrorIs(t, err, ErrInvalidOptions)
}

func TestCandidate_Label(t *testing.T) {
	assert.Equal(t, "Alice", Candidate{Name: "alice", DisplayName: "Alice"}.Label())
	assert.Equal(t, "alice", Candidate{Name: "alice"}.Label())
}
