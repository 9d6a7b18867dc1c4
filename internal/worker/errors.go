package worker

import (
	"errors"
	"fmt"

	"github.com/BrettMayson/arma-bench/protocol"
)

var (
	ErrClosed     = errors.New("worker closed")
	ErrBuild      = errors.New("build failed")
	ErrLaunch     = errors.New("launch failed")
	ErrHarvest    = errors.New("harvest failed")
	ErrIDMismatch = errors.New("compare result ids do not match request")
)

func errorResponse(err error) protocol.Response {
	return protocol.NewErrorResponse(err.Error())
}

// checkCompareIDs verifies that results carry exactly the requested ids.
func checkCompareIDs(items []protocol.CompareRequest, results []protocol.CompareResult) error {
	if len(items) != len(results) {
		return fmt.Errorf("%w: requested %d, got %d", ErrIDMismatch, len(items), len(results))
	}
	want := make(map[uint16]bool, len(items))
	for _, it := range items {
		want[it.ID] = false
	}
	for _, r := range results {
		seen, ok := want[r.ID]
		if !ok {
			return fmt.Errorf("%w: unexpected id %d", ErrIDMismatch, r.ID)
		}
		if seen {
			return fmt.Errorf("%w: duplicate id %d", ErrIDMismatch, r.ID)
		}
		want[r.ID] = true
	}
	return nil
}
