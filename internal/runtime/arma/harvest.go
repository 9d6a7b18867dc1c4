package arma

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BrettMayson/arma-bench/internal/runtime"
	"github.com/BrettMayson/arma-bench/protocol"
)

// Files the callback shim writes into the job directory.
const (
	ExecuteFile = "execute.txt"
	CompareFile = "compare.txt"
	TimeoutFile = "timeout.txt"
)

// Harvest reads the JSON result the shim left in dir. A missing result
// with a timeout marker present yields runtime.ErrTimedOut.
func Harvest(dir string, kind protocol.RequestKind) (*protocol.Response, error) {
	var resp protocol.Response
	switch kind {
	case protocol.RequestExecute:
		var res protocol.ExecuteResult
		if err := readResult(dir, ExecuteFile, &res); err != nil {
			return nil, err
		}
		resp = protocol.NewExecuteResponse(res)
	case protocol.RequestCompare:
		var res []protocol.CompareResult
		if err := readResult(dir, CompareFile, &res); err != nil {
			return nil, err
		}
		resp = protocol.NewCompareResponse(res)
	default:
		return nil, fmt.Errorf("unknown request kind %q", kind)
	}
	return &resp, nil
}

func readResult(dir, name string, v any) error {
	data, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("reading %s: %w", name, err)
		}
		if _, serr := os.Stat(filepath.Join(dir, TimeoutFile)); serr == nil {
			return runtime.ErrTimedOut
		}
		return fmt.Errorf("%w: %s", runtime.ErrNoResult, name)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parsing %s: %w", name, err)
	}
	return nil
}
