package telemetry

import (
	"os"
	"os/exec"
)

// spawnDetachedAnalytics re-execs the current binary as a short-lived
// "__send_analytics" subprocess carrying payloadJSON as its sole argument,
// then returns without waiting. The subprocess's Run call for SendEvent and
// the PostHog network round trip happen off the CLI's latency path.
func spawnDetachedAnalytics(payloadJSON string) {
	exe, err := os.Executable()
	if err != nil {
		return
	}

	cmd := exec.Command(exe, "__send_analytics", payloadJSON)
	cmd.Stdin = nil
	cmd.Stdout = nil
	cmd.Stderr = nil

	// Best-effort: a failure to spawn just means this invocation's usage
	// event is dropped, never surfaced to the user.
	_ = cmd.Start()
}
