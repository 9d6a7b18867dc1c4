package main

import (
	"fmt"
	"os"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/BrettMayson/arma-bench/protocol"
)

type hardwareInfo struct {
	Hostname      string `json:"hostname"`
	Kernel        string `json:"kernel"`
	OS            string `json:"os"`
	Arch          string `json:"arch"`
	CPUModel      string `json:"cpu_model"`
	LogicalCPUs   int    `json:"logical_cpus"`
	MemoryTotalMB int64  `json:"memory_total_mb"`
}

// benchReport describes the client side of a run; the benchmark itself
// executes on the server.
type benchReport struct {
	GeneratedAt time.Time     `json:"generated_at"`
	Hardware    hardwareInfo  `json:"hardware"`
	Server      string        `json:"server"`
	Binary      string        `json:"binary"`
	Branch      string        `json:"branch"`
	Results     []benchResult `json:"results"`
}

type benchResult struct {
	Name     string         `json:"name"`
	ID       uint16         `json:"id"`
	TimeMs   float64        `json:"time_ms"`
	Iter     uint32         `json:"iter"`
	Ret      protocol.Value `json:"ret"`
	Relative float64        `json:"relative,omitempty"`
}

func newResult(name string, id uint16, ms float64, iter uint32, ret protocol.Value) benchResult {
	return benchResult{Name: name, ID: id, TimeMs: ms, Iter: iter, Ret: ret}
}

// sortResults orders results fastest first and fills Relative against the
// fastest.
func (r *benchReport) sortResults() {
	sort.SliceStable(r.Results, func(i, j int) bool { return r.Results[i].TimeMs < r.Results[j].TimeMs })
	if len(r.Results) < 2 || r.Results[0].TimeMs <= 0 {
		return
	}
	best := r.Results[0].TimeMs
	for i := range r.Results {
		r.Results[i].Relative = r.Results[i].TimeMs / best
	}
}

func printReport(rep benchReport) {
	fmt.Printf("arma-bench report (%s)\n", rep.GeneratedAt.Format(time.RFC3339))
	fmt.Printf("Server: %s | Binary: %s | Branch: %s\n\n", rep.Server, rep.Binary, rep.Branch)

	for _, r := range rep.Results {
		if len(rep.Results) > 1 {
			fmt.Printf("[%d] %s", r.ID, r.Name)
			if r.Relative > 0 {
				fmt.Printf(" (x%.2f)", r.Relative)
			}
			fmt.Println()
		}
		fmt.Printf("Time: %.4f ms, Iterations: %d\n", r.TimeMs, r.Iter)
		fmt.Printf("Result: %s\n", r.Ret)
	}
}

func collectHardware() hardwareInfo {
	host, _ := os.Hostname()
	return hardwareInfo{
		Hostname:      host,
		Kernel:        readOneLine("/proc/sys/kernel/osrelease"),
		OS:            runtime.GOOS,
		Arch:          runtime.GOARCH,
		CPUModel:      readCPUModel(),
		LogicalCPUs:   runtime.NumCPU(),
		MemoryTotalMB: readMemTotalMiB(),
	}
}

func readCPUModel() string {
	data, err := os.ReadFile("/proc/cpuinfo")
	if err != nil {
		return "unknown"
	}
	for _, ln := range strings.Split(string(data), "\n") {
		if strings.HasPrefix(ln, "model name") {
			parts := strings.SplitN(ln, ":", 2)
			if len(parts) == 2 {
				return strings.TrimSpace(parts[1])
			}
		}
	}
	return "unknown"
}

func readMemTotalMiB() int64 {
	data, err := os.ReadFile("/proc/meminfo")
	if err != nil {
		return 0
	}
	for _, ln := range strings.Split(string(data), "\n") {
		if strings.HasPrefix(ln, "MemTotal:") {
			f := strings.Fields(ln)
			if len(f) >= 2 {
				kb, _ := strconv.ParseInt(f[1], 10, 64)
				return kb / 1024
			}
		}
	}
	return 0
}

func readOneLine(path string) string {
	b, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(b))
}
