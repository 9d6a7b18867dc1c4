package testutil

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/BrettMayson/arma-bench/internal/config"
	"github.com/BrettMayson/arma-bench/internal/store"
	"github.com/BrettMayson/arma-bench/protocol"
)

// TestConfig returns a Config with sensible test defaults rooted in a
// temporary directory.
func TestConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Listen = "127.0.0.1:0"
	cfg.DBPath = filepath.Join(dir, "armabench.db")
	cfg.ScratchDir = filepath.Join(dir, "arma_bench")
	cfg.HandshakeTimeoutMs = 2000
	cfg.Steam.User = "bench"
	cfg.Steam.Password = "secret"
	cfg.Steam.InstallDir = filepath.Join(dir, "servers")
	cfg.Runtime.ProfilesDir = filepath.Join(dir, "profiles")
	cfg.Runtime.ShimMod = filepath.Join(dir, "@tab")
	cfg.Runtime.KillGraceSeconds = 10
	return cfg
}

// NewTestStore creates a SQLite store in a temporary directory.
func NewTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.New(filepath.Join(t.TempDir(), "armabench.db"), 0)
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

// FakeServerMode selects how a fake server binary behaves.
type FakeServerMode int

const (
	// FakeServerOK writes execute.txt and compare.txt results that return 3.
	FakeServerOK FakeServerMode = iota
	// FakeServerTimeout writes only the timeout marker.
	FakeServerTimeout
	// FakeServerSilent exits without writing anything.
	FakeServerSilent
	// FakeServerWrongIDs writes a compare result with an unknown id.
	FakeServerWrongIDs
	// FakeServerHang never exits on its own.
	FakeServerHang
)

const fakeServerPrelude = `#!/bin/sh
job=""
for arg in "$@"; do
	case "$arg" in
	-mod=*)
		dir="${arg#-mod=}"
		if [ -d "$dir/addons" ]; then job="$dir"; fi
		;;
	esac
done
[ -n "$job" ] || exit 3
printf '%s\n' "$@" > "$job/args.txt"
`

const fakeServerOK = `
printf '%s' '{"time":0.0012,"iter":10000,"ret":3}' > "$job/execute.txt"
ids=$(grep -ao '\["[0-9]*", ' "$job/addons/execute.pbo" | tr -dc '0-9\n')
out="["
sep=""
for id in $ids; do
	out="$out$sep{\"id\":$id,\"time\":0.0021,\"iter\":10000,\"ret\":3}"
	sep=","
done
printf '%s]' "$out" > "$job/compare.txt"
`

// WriteFakeServer writes an executable named binary into dir that mimics a
// server with the callback shim loaded: it finds the job directory among
// its -mod= arguments and hands back results according to mode. It also
// records its arguments in args.txt.
func WriteFakeServer(t *testing.T, dir, binary string, mode FakeServerMode) string {
	t.Helper()
	var body string
	switch mode {
	case FakeServerOK:
		body = fakeServerOK
	case FakeServerTimeout:
		body = `printf '30' > "$job/timeout.txt"` + "\n"
	case FakeServerSilent:
		body = "exit 0\n"
	case FakeServerWrongIDs:
		body = `printf '%s' '[{"id":999,"time":0.1,"iter":1,"ret":null}]' > "$job/compare.txt"` + "\n"
	case FakeServerHang:
		body = "exec sleep 60\n"
	default:
		t.Fatalf("unknown fake server mode %d", mode)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("creating fake server dir: %v", err)
	}
	path := filepath.Join(dir, binary)
	if err := os.WriteFile(path, []byte(fakeServerPrelude+body), 0o755); err != nil {
		t.Fatalf("writing fake server: %v", err)
	}
	return path
}

// StaticInstaller returns Dir for every configuration.
type StaticInstaller struct {
	Dir   string
	Err   error
	calls atomic.Int32
}

func (s *StaticInstaller) Install(_ context.Context, cfg protocol.ServerConfig) (string, error) {
	s.calls.Add(1)
	if s.Err != nil {
		return "", fmt.Errorf("install %s: %w", cfg.Branch, s.Err)
	}
	return s.Dir, nil
}

func (s *StaticInstaller) Calls() int { return int(s.calls.Load()) }
