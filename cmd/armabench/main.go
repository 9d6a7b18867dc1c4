package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BrettMayson/arma-bench/client"
	"github.com/BrettMayson/arma-bench/protocol"
)

const usage = `usage: armabench [flags] execute <file.sqf>
       armabench [flags] compare <file.sqf|file.sqfc>...
`

func main() {
	var (
		host           = flag.String("host", "127.0.0.1", "server host")
		port           = flag.Int("port", protocol.DefaultPort, "server port")
		binary         = flag.String("binary", protocol.DefaultBinary, "server binary to run")
		branch         = flag.String("branch", protocol.DefaultBranch, "server branch to run")
		branchPassword = flag.String("branch-password", strings.TrimSpace(os.Getenv("ARMABENCH_BRANCH_PASSWORD")), "beta branch password (defaults to ARMABENCH_BRANCH_PASSWORD)")
		timeout        = flag.Duration("timeout", 10*time.Minute, "overall request timeout")
		script         = flag.String("e", "", "execute this script instead of reading a file")

		jsonOut = flag.Bool("json", false, "emit JSON report")
	)
	flag.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(2)
	}
	cmd, files := args[0], args[1:]

	cfg := protocol.ServerConfig{
		Binary:         *binary,
		Branch:         *branch,
		BranchPassword: *branchPassword,
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	addr := net.JoinHostPort(*host, strconv.Itoa(*port))
	rep := benchReport{
		GeneratedAt: time.Now().UTC(),
		Hardware:    collectHardware(),
		Server:      addr,
		Binary:      cfg.Binary,
		Branch:      cfg.Branch,
	}

	switch cmd {
	case "execute":
		src, name, err := executeSource(*script, files)
		if err != nil {
			fail("%v", err)
		}
		c := dial(ctx, addr, cfg)
		defer c.Close()

		res, err := c.Execute(ctx, src)
		if err != nil {
			fail("execute failed: %v", err)
		}
		rep.Results = []benchResult{newResult(name, 0, res.Time, res.Iter, res.Ret)}

	case "compare":
		items, names, err := compareItems(files)
		if err != nil {
			fail("%v", err)
		}
		c := dial(ctx, addr, cfg)
		defer c.Close()

		results, err := c.Compare(ctx, items)
		if err != nil {
			fail("compare failed: %v", err)
		}
		for _, r := range results {
			rep.Results = append(rep.Results, newResult(names[r.ID], r.ID, r.Time, r.Iter, r.Ret))
		}
		rep.sortResults()

	default:
		flag.Usage()
		os.Exit(2)
	}

	if *jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(rep)
		return
	}
	printReport(rep)
}

func dial(ctx context.Context, addr string, cfg protocol.ServerConfig) *client.Client {
	c, err := client.Dial(ctx, addr, cfg)
	if err != nil {
		fail("connect: %v", err)
	}
	return c
}

func executeSource(inline string, files []string) (string, string, error) {
	if inline != "" {
		if len(files) > 0 {
			return "", "", fmt.Errorf("-e and a file are mutually exclusive")
		}
		return inline, "<inline>", nil
	}
	if len(files) != 1 {
		return "", "", fmt.Errorf("execute takes exactly one file")
	}
	data, err := os.ReadFile(files[0])
	if err != nil {
		return "", "", err
	}
	return string(data), filepath.Base(files[0]), nil
}

// compareItems reads files in order and numbers them from 0. A .sqfc
// extension marks compiled bytecode.
func compareItems(files []string) ([]protocol.CompareRequest, map[uint16]string, error) {
	if len(files) == 0 {
		return nil, nil, fmt.Errorf("compare needs at least one file")
	}
	if len(files) > 1<<16 {
		return nil, nil, fmt.Errorf("too many files: %d", len(files))
	}

	items := make([]protocol.CompareRequest, 0, len(files))
	names := make(map[uint16]string, len(files))
	for i, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			return nil, nil, err
		}
		id := uint16(i)
		items = append(items, protocol.CompareRequest{
			ID:      id,
			SQFC:    strings.EqualFold(filepath.Ext(f), ".sqfc"),
			Content: data,
		})
		names[id] = filepath.Base(f)
	}
	return items, names, nil
}

func fail(msg string, args ...any) {
	fmt.Fprintf(os.Stderr, "armabench: "+msg+"\n", args...)
	os.Exit(1)
}
