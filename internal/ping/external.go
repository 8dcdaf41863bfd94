package ping

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"regexp"
	"runtime"
	"strconv"
	"time"
)

var (
	addressPattern     = regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`)
	windowsTimePattern = regexp.MustCompile(`time=(\d+)ms`)
	summaryPattern     = regexp.MustCompile(`(?:rtt|round-trip) min/avg/max/(?:mdev|stddev) = [\d.]+/([\d.]+)/`)
)

var replyMarker = []byte("from")

// Platform selects the argument and output dialect of the system ping tool.
type Platform int

const (
	// PlatformUnix covers Linux and BSD style ping (-c, rtt summary line).
	PlatformUnix Platform = iota
	// PlatformWindows covers ping.exe (-n, time=<int>ms per reply).
	PlatformWindows
)

// HostPlatform returns the dialect of the ping tool on the running system.
func HostPlatform() Platform {
	if runtime.GOOS == "windows" {
		return PlatformWindows
	}
	return PlatformUnix
}

func (p Platform) String() string {
	if p == PlatformWindows {
		return "windows"
	}
	return "unix"
}

type runFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

// ExternalProber invokes the system ping command once per probe.
type ExternalProber struct {
	command  string
	platform Platform
	timeout  time.Duration
	run      runFunc
	now      func() time.Time
}

// NewExternalProber returns a prober that shells out to ping on the host platform.
// A zero timeout leaves the process bounded only by the caller's context.
func NewExternalProber(timeout time.Duration) *ExternalProber {
	return &ExternalProber{
		command:  "ping",
		platform: HostPlatform(),
		timeout:  timeout,
		run:      runCommand,
		now:      time.Now,
	}
}

// Probe sends a single echo request to hostname and parses the reply.
func (p *ExternalProber) Probe(ctx context.Context, hostname string) (Observation, error) {
	if err := ctx.Err(); err != nil {
		return Observation{}, &ProbeError{Host: hostname, Reason: "cancelled", Err: err}
	}

	runCtx := ctx
	if p.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	out, err := p.run(runCtx, p.command, pingArgs(p.platform, hostname)...)
	if err != nil {
		return Observation{}, &ProbeError{Host: hostname, Reason: failureReason(runCtx, err), Err: err}
	}
	return ParseOutput(p.platform, hostname, out, p.now())
}

// ParseOutput extracts an observation from the text printed by a successful ping run.
func ParseOutput(platform Platform, hostname string, output []byte, at time.Time) (Observation, error) {
	if len(bytes.TrimSpace(output)) == 0 {
		return Observation{}, &ProbeError{Host: hostname, Reason: "empty output"}
	}

	address, ok := parseAddress(output)
	if !ok {
		return Observation{}, &ProbeError{Host: hostname, Reason: "reply address not found"}
	}

	return Observation{
		Timestamp: civilSecond(at),
		Address:   address,
		Latency:   parseLatency(platform, output),
	}, nil
}

func pingArgs(platform Platform, hostname string) []string {
	if platform == PlatformWindows {
		return []string{"-n", "1", hostname}
	}
	return []string{"-c", "1", hostname}
}

func parseAddress(output []byte) (string, bool) {
	idx := bytes.Index(output, replyMarker)
	if idx < 0 {
		return "", false
	}
	match := addressPattern.Find(output[idx+len(replyMarker):])
	if match == nil {
		return "", false
	}
	return string(match), true
}

func parseLatency(platform Platform, output []byte) float64 {
	if platform == PlatformWindows {
		matches := windowsTimePattern.FindSubmatch(output)
		if len(matches) < 2 {
			return UnknownLatency
		}
		value, err := strconv.Atoi(string(matches[1]))
		if err != nil {
			return UnknownLatency
		}
		return float64(value)
	}

	matches := summaryPattern.FindSubmatch(lastLine(output))
	if len(matches) < 2 {
		return UnknownLatency
	}
	value, err := strconv.ParseFloat(string(matches[1]), 64)
	if err != nil {
		return UnknownLatency
	}
	return value
}

func lastLine(output []byte) []byte {
	trimmed := bytes.TrimRight(output, " \t\r\n")
	if idx := bytes.LastIndexByte(trimmed, '\n'); idx >= 0 {
		return trimmed[idx+1:]
	}
	return trimmed
}

func civilSecond(at time.Time) time.Time {
	return time.Date(at.Year(), at.Month(), at.Day(), at.Hour(), at.Minute(), at.Second(), 0, at.Location())
}

func failureReason(ctx context.Context, err error) string {
	switch {
	case errors.Is(err, exec.ErrNotFound):
		return "ping command not found"
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return "timeout"
	case errors.Is(ctx.Err(), context.Canceled):
		return "cancelled"
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return "non-zero exit status " + strconv.Itoa(exitErr.ExitCode())
	}
	return "command failed"
}

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}
