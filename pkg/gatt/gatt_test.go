package gatt

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCatalogs(t *testing.T) {
	holder := CatalogFor(ModeHolder)
	assert.Equal(t, ModeHolder, holder.Mode)
	assert.Nil(t, holder.Ident)
	assert.Len(t, holder.All(), 3)
	assert.Equal(t, "00000001-a123-48ce-896b-4c76973373e6", holder.State.UUID.String())
	assert.Equal(t, "00000002-a123-48ce-896b-4c76973373e6", holder.ClientToServer.UUID.String())
	assert.Equal(t, "00000003-a123-48ce-896b-4c76973373e6", holder.ServerToClient.UUID.String())

	reader := CatalogFor(ModeReader)
	require.NotNil(t, reader.Ident)
	assert.Len(t, reader.All(), 4)
	assert.Equal(t, "00000005-a123-48ce-896b-4c76973373e6", reader.State.UUID.String())
	assert.Equal(t, "00000006-a123-48ce-896b-4c76973373e6", reader.ClientToServer.UUID.String())
	assert.Equal(t, "00000007-a123-48ce-896b-4c76973373e6", reader.ServerToClient.UUID.String())
	assert.Equal(t, "00000008-a123-48ce-896b-4c76973373e6", reader.Ident.UUID.String())
	assert.Equal(t, PropertyRead, reader.Ident.Properties)
	assert.Equal(t, PermissionRead, reader.Ident.Permissions)

	assert.Equal(t, Property(0x14), reader.State.Properties)
	assert.Equal(t, Property(0x14), reader.ClientToServer.Properties)
	assert.Equal(t, Property(0x18), reader.ServerToClient.Properties)
	assert.Equal(t, "write|notify", reader.ServerToClient.Properties.String())
}

func TestCatalogLookup(t *testing.T) {
	c := CatalogFor(ModeReader)

	ch, ok := c.Lookup(c.ClientToServer.UUID)
	require.True(t, ok)
	assert.Equal(t, RoleClientToServer, ch.Role)

	_, ok = c.Lookup(CatalogFor(ModeHolder).State.UUID)
	assert.False(t, ok)

	_, ok = c.Lookup(uuid.Nil)
	assert.False(t, ok)
}

func TestDescriptors(t *testing.T) {
	c := CatalogFor(ModeReader)

	d := c.State.Descriptors()
	require.Len(t, d, 1)
	assert.Equal(t, "00002902-0000-1000-8000-00805f9b34fb", d[0].UUID.String())
	assert.Equal(t, []byte{0x02, 0x00}, d[0].Value)

	assert.Empty(t, c.Ident.Descriptors())
}

func TestParseMode(t *testing.T) {
	for _, m := range []Mode{ModeHolder, ModeReader} {
		parsed, ok := ParseMode(m.String())
		require.True(t, ok)
		assert.Equal(t, m, parsed)
	}

	_, ok := ParseMode("Verifier")
	assert.False(t, ok)
}

func TestSelectorLock(t *testing.T) {
	s := NewSelector(ModeReader)
	require.NoError(t, s.SetMode(ModeHolder))

	session, catalog := s.Acquire()
	assert.Equal(t, ModeHolder, catalog.Mode)
	assert.True(t, s.Active())

	assert.ErrorIs(t, s.SetMode(ModeReader), ErrSessionActive)
	assert.Equal(t, ModeHolder, s.Mode())

	second, _ := s.Acquire()
	session.Release()
	session.Release()
	assert.ErrorIs(t, s.SetMode(ModeReader), ErrSessionActive)

	second.Release()
	assert.False(t, s.Active())
	require.NoError(t, s.SetMode(ModeReader))
	assert.Equal(t, ModeReader, s.Mode())
	assert.Equal(t, ModeHolder, catalog.Mode)
}
