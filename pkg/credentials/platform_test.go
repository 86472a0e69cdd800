package credentials

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeManager struct {
	requests []string
	cred     PlatformCredential
	err      error
}

func (m *fakeManager) CreateCredential(_ context.Context, request string) (PlatformCredential, error) {
	m.requests = append(m.requests, request)
	return m.cred, m.err
}

func (m *fakeManager) GetCredential(_ context.Context, request string) (PlatformCredential, error) {
	m.requests = append(m.requests, request)
	return m.cred, m.err
}

func TestPlatform_ForwardsResponse(t *testing.T) {
	manager := &fakeManager{cred: PlatformCredential{Type: "public-key", ResponseJSON: `{"id":"AQID"}`}}
	p := NewPlatform(manager)

	op, ch := createOp(`{"publicKey":{"challenge":"AAAA","rp":{"id":"wallet.example"}}}`)
	p.Create(op)
	o := await(t, ch)
	require.NoError(t, o.err)
	assert.Equal(t, `{"id":"AQID"}`, o.result)

	require.Len(t, manager.requests, 1)
	assert.JSONEq(t, `{"challenge":"AAAA","rp":{"id":"wallet.example"}}`, manager.requests[0])
}

func TestPlatform_NoPublicKey(t *testing.T) {
	manager := &fakeManager{cred: PlatformCredential{Type: "password"}}
	p := NewPlatform(manager)

	op, ch := getOp(`{"publicKey":{"challenge":"AAAA"}}`)
	p.Get(op)
	o := await(t, ch)
	require.NoError(t, o.err)
	assert.JSONEq(t, `{"error":"no public key credential returned","actual":"password"}`, o.result)
}

func TestPlatform_ManagerError(t *testing.T) {
	boom := errors.New("user dismissed the sheet")
	p := NewPlatform(&fakeManager{err: boom})

	op, ch := getOp(`{"publicKey":{"challenge":"AAAA"}}`)
	p.Get(op)
	assert.ErrorIs(t, await(t, ch).err, boom)
}

func TestPlatform_Unavailable(t *testing.T) {
	p := NewPlatform(nil)

	op, ch := createOp(`{"publicKey":{"challenge":"AAAA"}}`)
	p.Create(op)
	assert.ErrorIs(t, await(t, ch).err, ErrPlatformUnavailable)
}

func TestPlatform_MissingPublicKey(t *testing.T) {
	p := NewPlatform(&fakeManager{})

	op, ch := getOp(`{}`)
	p.Get(op)
	assert.ErrorIs(t, await(t, ch).err, ErrInvalidOptions)
}
