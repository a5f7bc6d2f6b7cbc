package hooks

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"time"

	"github.com/enzo-wego/claude-mem/internal/config"
)

// DefaultWorkerPort mirrors the daemon default so hooks work with zero
// configuration.
const DefaultWorkerPort = config.DefaultWorkerPort

const (
	workerBinaryName = "claude-mem-worker"
	healthTimeout    = 500 * time.Millisecond
	startupDeadline  = 10 * time.Second
	requestTimeout   = 5 * time.Second
)

var healthClient = &http.Client{Timeout: healthTimeout}

// GetWorkerPort returns the daemon port: CLAUDE_MEM_WORKER_PORT when set
// and valid, the default otherwise.
func GetWorkerPort() int {
	if raw := os.Getenv("CLAUDE_MEM_WORKER_PORT"); raw != "" {
		if port, err := strconv.Atoi(raw); err == nil && port > 0 {
			return port
		}
	}
	return DefaultWorkerPort
}

// IsWorkerRunning probes the daemon's health endpoint.
func IsWorkerRunning(port int) bool {
	resp, err := healthClient.Get(fmt.Sprintf("http://127.0.0.1:%d/api/health", port))
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// IsPortInUse reports whether something is listening on the port.
func IsPortInUse(port int) bool {
	conn, err := net.DialTimeout("tcp", fmt.Sprintf("127.0.0.1:%d", port), healthTimeout)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

// EnsureWorkerRunning returns the port of a healthy daemon, spawning one
// when none is running. Hooks are short-lived; the daemon they spawn
// outlives them.
func EnsureWorkerRunning() (int, error) {
	port := GetWorkerPort()
	if IsWorkerRunning(port) {
		return port, nil
	}
	if IsPortInUse(port) {
		return 0, fmt.Errorf("port %d is in use by something that is not the worker", port)
	}

	binary := findWorkerBinary()
	if binary == "" {
		return 0, fmt.Errorf("%s binary not found in PATH or alongside this hook", workerBinaryName)
	}

	cmd := exec.Command(binary)
	cmd.Stdout = nil
	cmd.Stderr = nil
	cmd.Stdin = nil
	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("start worker: %w", err)
	}
	// Detach: the hook exits long before the daemon does.
	if err := cmd.Process.Release(); err != nil {
		return 0, fmt.Errorf("release worker process: %w", err)
	}

	deadline := time.Now().Add(startupDeadline)
	for time.Now().Before(deadline) {
		if IsWorkerRunning(port) {
			return port, nil
		}
		time.Sleep(100 * time.Millisecond)
	}
	return 0, fmt.Errorf("worker did not become healthy within %s", startupDeadline)
}

// findWorkerBinary looks for the daemon binary next to the running hook
// first, then in PATH.
func findWorkerBinary() string {
	if self, err := os.Executable(); err == nil {
		candidate := filepath.Join(filepath.Dir(self), workerBinaryName)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate
		}
	}
	if path, err := exec.LookPath(workerBinaryName); err == nil {
		return path
	}
	return ""
}

// GetJSON fetches a daemon endpoint and decodes the JSON response into
// out. Non-2xx answers are errors.
func GetJSON(port int, path string, out interface{}) error {
	client := &http.Client{Timeout: requestTimeout}
	url := fmt.Sprintf("http://127.0.0.1:%d%s", port, path)
	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("get %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("get %s: worker answered %d", path, resp.StatusCode)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode %s response: %w", path, err)
		}
	}
	return nil
}

// PostJSON sends a JSON payload to the daemon and decodes the response
// into out when out is non-nil. Non-2xx answers are errors.
func PostJSON(port int, path string, payload, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	client := &http.Client{Timeout: requestTimeout}
	url := fmt.Sprintf("http://127.0.0.1:%d%s", port, path)
	resp, err := client.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("post %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("post %s: worker answered %d", path, resp.StatusCode)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode %s response: %w", path, err)
		}
	}
	return nil
}
