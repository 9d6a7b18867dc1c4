package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNew(t *testing.T) {
	l, err := New("debug", "json")
	require.NoError(t, err)
	assert.NotNil(t, l)

	_, err = New("loud", "json")
	assert.Error(t, err)

	_, err = New("info", "xml")
	assert.Error(t, err)
}

func TestWithAddsFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := FromZap(zap.New(core))

	l.With("job_id", "abc").Info("job started", "kind", "Execute")

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "job started", entries[0].Message)
	fields := entries[0].ContextMap()
	assert.Equal(t, "abc", fields["job_id"])
	assert.Equal(t, "Execute", fields["kind"])
}

func TestNopDiscards(t *testing.T) {
	assert.NotPanics(t, func() {
		Nop().Error("ignored", "error", "x")
	})
}
