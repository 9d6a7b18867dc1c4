package arma

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BrettMayson/arma-bench/internal/runtime"
	"github.com/BrettMayson/arma-bench/protocol"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestHarvestExecute(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, ExecuteFile, `{"time":0.5,"iter":2,"ret":[1,"two",true,null]}`)

	resp, err := Harvest(dir, protocol.RequestExecute)
	require.NoError(t, err)
	assert.Equal(t, protocol.NewExecuteResponse(protocol.ExecuteResult{
		Time: 0.5,
		Iter: 2,
		Ret:  protocol.Array(protocol.Number(1), protocol.String("two"), protocol.Bool(true), protocol.Null()),
	}), *resp)
}

func TestHarvestCompare(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, CompareFile, `[{"id":3,"time":0.1,"iter":7,"ret":"x"}]`)

	resp, err := Harvest(dir, protocol.RequestCompare)
	require.NoError(t, err)
	assert.Equal(t, []protocol.CompareResult{{ID: 3, Time: 0.1, Iter: 7, Ret: protocol.String("x")}}, resp.Compare)
}

func TestHarvestEmptyCompare(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, CompareFile, `[]`)

	resp, err := Harvest(dir, protocol.RequestCompare)
	require.NoError(t, err)
	assert.NotNil(t, resp.Compare)
	assert.Empty(t, resp.Compare)
}

func TestHarvestResultWinsOverTimeoutMarker(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, ExecuteFile, `{"time":1,"iter":1,"ret":null}`)
	writeFile(t, dir, TimeoutFile, `30`)

	resp, err := Harvest(dir, protocol.RequestExecute)
	require.NoError(t, err)
	assert.True(t, resp.Execute.Ret.IsNull())
}

func TestHarvestTimeout(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, TimeoutFile, `120`)

	_, err := Harvest(dir, protocol.RequestCompare)
	assert.ErrorIs(t, err, runtime.ErrTimedOut)
}

func TestHarvestMissing(t *testing.T) {
	_, err := Harvest(t.TempDir(), protocol.RequestExecute)
	assert.ErrorIs(t, err, runtime.ErrNoResult)
	assert.Contains(t, err.Error(), ExecuteFile)
}

func TestHarvestMalformed(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, ExecuteFile, `{"time":`)

	_, err := Harvest(dir, protocol.RequestExecute)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing "+ExecuteFile)
}

func TestHarvestUnknownKind(t *testing.T) {
	_, err := Harvest(t.TempDir(), protocol.RequestKind("Profile"))
	assert.Error(t, err)
}
