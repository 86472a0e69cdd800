package webauthntypes

import (
	"crypto/sha256"
	"encoding/json"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPRFSalt(t *testing.T) {
	input := []byte("wallet-key")
	want := sha256.Sum256(slices.Concat([]byte("WebAuthn PRF"), []byte{0}, input))

	assert.Equal(t, want[:], PRFSalt(input))
	assert.Len(t, PRFSalt(nil), 32)
}

func TestPRFInputs_Select(t *testing.T) {
	var in AuthenticationExtensionsClientInputs
	require.NoError(t, json.Unmarshal([]byte(`{
		"credProps": true,
		"prf": {
			"eval": {"first": "AQID"},
			"evalByCredential": {"Y3JlZA": {"first": "BAUG", "second": "BwgJ"}}
		},
		"largeBlob": {"read": true}
	}`), &in))

	assert.True(t, in.CredProps)
	require.NotNil(t, in.PRF)

	v := in.PRF.Select("Y3JlZA")
	require.NotNil(t, v)
	assert.Equal(t, []byte{4, 5, 6}, []byte(v.First))
	assert.Equal(t, []byte{7, 8, 9}, []byte(v.Second))

	v = in.PRF.Select("b3RoZXI")
	require.NotNil(t, v)
	assert.Equal(t, []byte{1, 2, 3}, []byte(v.First))

	assert.Equal(t, in.PRF.Eval, in.PRF.Select(""))
	assert.Nil(t, (&AuthenticationExtensionsPRFInputs{}).Select("Y3JlZA"))
}

func TestPRFResults(t *testing.T) {
	out := AuthenticationExtensionsClientOutputs{
		PRF: PRFResults(&HMACGetSecretOutput{Output1: []byte{0xfb, 0xff}}),
	}

	b, err := json.Marshal(out)
	require.NoError(t, err)
	assert.JSONEq(t, `{"prf":{"results":{"first":"-_8"}}}`, string(b))
}
