package launcher_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/modbus-emu/slave/backend"
	"github.com/modbus-emu/slave/launcher"
)

func TestFleetStartStop(t *testing.T) {
	d1, err := launcher.ParseDescriptor("tcp:127.0.0.1:0")
	require.NoError(t, err)
	d2, err := launcher.ParseDescriptor("udp:127.0.0.1:0")
	require.NoError(t, err)

	fleet, err := launcher.Build([]launcher.Descriptor{d1, d2}, backend.NewExchange(), zap.NewNop())
	require.NoError(t, err)

	require.NoError(t, fleet.Start(context.Background()))
	require.NoError(t, fleet.Stop(context.Background()))
}

func TestBuildRejectsEmptyDescriptorList(t *testing.T) {
	_, err := launcher.Build(nil, backend.NewExchange(), zap.NewNop())
	assert.Error(t, err)
}
