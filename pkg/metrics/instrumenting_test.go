package metrics

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRuntimeInstrumentsRegister(t *testing.T) {
	require.NoError(t, startCollectingRuntimeMetrics())
	require.NoError(t, startCollectingMemoryMetrics())
}
