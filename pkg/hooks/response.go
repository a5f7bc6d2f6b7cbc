// Package hooks is the shared front-end plumbing for the hook binaries:
// stdin parsing, worker discovery and spawn, project identity, and the
// response protocol the coding assistant expects on stdout.
package hooks

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// HookResponse is the minimal response written back on stdout.
type HookResponse struct {
	Continue bool `json:"continue"`
}

// ProjectIDWithName derives a stable project identifier from the working
// directory: the directory name plus a short hash of the absolute path, so
// same-named projects in different locations stay distinct.
func ProjectIDWithName(cwd string) string {
	absPath, err := filepath.Abs(cwd)
	if err != nil {
		absPath = cwd
	}

	dirName := filepath.Base(absPath)
	hash := sha256.Sum256([]byte(absPath))
	shortHash := hex.EncodeToString(hash[:3])

	return fmt.Sprintf("%s_%s", dirName, shortHash)
}

// WriteResponse writes a hook response to stdout.
func WriteResponse(hookName string, success bool) {
	data, _ := json.Marshal(HookResponse{Continue: success})
	fmt.Println(string(data))
}

// WriteError reports an error on stderr and emits a non-continue response.
// Capture failures must never block the primary session.
func WriteError(hookName string, err error) {
	fmt.Fprintf(os.Stderr, "[%s] Error: %v\n", hookName, err)
	WriteResponse(hookName, false)
}

// BaseInput contains the fields every hook payload carries.
type BaseInput struct {
	SessionID     string `json:"session_id"`
	CWD           string `json:"cwd"`
	HookEventName string `json:"hook_event_name"`
}

// HookContext is what a hook handler gets to work with: the resolved
// worker port, the derived project id, and the raw payload.
type HookContext struct {
	HookName  string
	Port      int
	Project   string
	SessionID string
	CWD       string
	RawInput  []byte
}

// HookHandler implements one hook's logic. A non-empty additionalContext
// is injected back into the primary session.
type HookHandler[T any] func(ctx *HookContext, input *T) (additionalContext string, err error)

// RunHook wraps the boilerplate shared by every hook binary: skip when
// invoked from inside the daemon itself, read and parse stdin, make sure
// the worker is up, derive the project id, run the handler, and answer.
func RunHook[T any](hookName string, handler HookHandler[T]) {
	if os.Getenv("CLAUDE_MEM_INTERNAL") == "1" {
		WriteResponse(hookName, true)
		return
	}

	inputData, err := io.ReadAll(os.Stdin)
	if err != nil {
		WriteError(hookName, err)
		os.Exit(1)
	}

	var input T
	if err := json.Unmarshal(inputData, &input); err != nil {
		WriteError(hookName, err)
		os.Exit(1)
	}

	port, err := EnsureWorkerRunning()
	if err != nil {
		WriteError(hookName, err)
		os.Exit(1)
	}

	var base BaseInput
	_ = json.Unmarshal(inputData, &base)

	ctx := &HookContext{
		HookName:  hookName,
		Port:      port,
		Project:   ProjectIDWithName(base.CWD),
		SessionID: base.SessionID,
		CWD:       base.CWD,
		RawInput:  inputData,
	}

	additionalContext, err := handler(ctx, &input)
	if err != nil {
		WriteError(hookName, err)
		os.Exit(1)
	}

	if additionalContext != "" {
		response := map[string]interface{}{
			"continue": true,
			"hookSpecificOutput": map[string]interface{}{
				"hookEventName":     hookName,
				"additionalContext": additionalContext,
			},
		}
		_ = json.NewEncoder(os.Stdout).Encode(response)
		os.Exit(0)
	}

	WriteResponse(hookName, true)
}
