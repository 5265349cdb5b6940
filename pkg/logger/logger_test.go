package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNew(t *testing.T) {
	prod, err := New(EnvProduction)
	require.NoError(t, err)
	assert.False(t, prod.Core().Enabled(zap.DebugLevel))

	dev, err := New("dev")
	require.NoError(t, err)
	assert.True(t, dev.Core().Enabled(zap.DebugLevel))
}
