package options

import (
	"log/slog"
	"testing"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewOptions_Defaults(t *testing.T) {
	oo := NewOptions()

	assert.Equal(t, slog.Default(), oo.Logger)
	assert.NotNil(t, oo.EncMode)
	assert.NotNil(t, oo.Context)
	assert.Equal(t, DefaultPollInterval, oo.PollInterval)
}

func TestWithPollInterval(t *testing.T) {
	assert.Equal(t, time.Second, NewOptions(WithPollInterval(time.Second)).PollInterval)
	assert.Equal(t, DefaultPollInterval, NewOptions(WithPollInterval(0)).PollInterval)
}

func TestWithPaths(t *testing.T) {
	oo := NewOptions(WithPaths("/dev/hidraw0", "/dev/hidraw1"))
	assert.Equal(t, []string{"/dev/hidraw0", "/dev/hidraw1"}, oo.Paths)
}

func TestWithEncMode(t *testing.T) {
	encMode, err := cbor.CoreDetEncOptions().EncMode()
	require.NoError(t, err)

	oo := NewOptions(WithEncMode(encMode))
	assert.Equal(t, encMode, oo.EncMode)
}
