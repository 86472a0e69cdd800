package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordBridgeCall(t *testing.T) {
	before := testutil.ToFloat64(BridgeCallsTotal.WithLabelValues("create", OutcomeResolved))
	RecordBridgeCall("create", OutcomeResolved)
	assert.Equal(t, before+1, testutil.ToFloat64(BridgeCallsTotal.WithLabelValues("create", OutcomeResolved)))
}

func TestRecordTransitionSkipsSelf(t *testing.T) {
	c := BLETransitionsTotal.WithLabelValues("server", "Connected", "Connected")
	RecordTransition("server", "Connected", "Connected")
	assert.Zero(t, testutil.ToFloat64(c))

	c = BLETransitionsTotal.WithLabelValues("server", "Advertising", "Connected")
	before := testutil.ToFloat64(c)
	RecordTransition("server", "Advertising", "Connected")
	assert.Equal(t, before+1, testutil.ToFloat64(c))
}

func TestDisable(t *testing.T) {
	Disable()
	defer Enable()

	assert.False(t, IsEnabled())
	c := CeremoniesTotal.WithLabelValues("software", OperationGet, OutcomeError)
	before := testutil.ToFloat64(c)
	RecordCeremony("software", OperationGet, OutcomeError)
	assert.Equal(t, before, testutil.ToFloat64(c))
}
