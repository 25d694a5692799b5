package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_RegistersAllCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.MessagesSent.WithLabelValues("Play").Inc()
	m.DeliveryFailures.WithLabelValues("LibraryChanged").Add(2)
	m.ActiveSessions.Set(3)

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.MessagesSent.WithLabelValues("Play")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.DeliveryFailures.WithLabelValues("LibraryChanged")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.ActiveSessions))
}

func TestNew_DuplicateRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)
	assert.Panics(t, func() { New(reg) })
}
