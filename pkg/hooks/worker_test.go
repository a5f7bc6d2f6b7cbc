package hooks

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serverPort(t *testing.T, server *httptest.Server) int {
	t.Helper()
	u, err := url.Parse(server.URL)
	require.NoError(t, err)
	port, err := strconv.Atoi(u.Port())
	require.NoError(t, err)
	return port
}

func TestGetWorkerPort(t *testing.T) {
	assert.Equal(t, DefaultWorkerPort, GetWorkerPort())

	t.Setenv("CLAUDE_MEM_WORKER_PORT", "12345")
	assert.Equal(t, 12345, GetWorkerPort())

	t.Setenv("CLAUDE_MEM_WORKER_PORT", "invalid")
	assert.Equal(t, DefaultWorkerPort, GetWorkerPort())
}

func TestIsWorkerRunning(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/health" {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	assert.True(t, IsWorkerRunning(serverPort(t, server)))
	assert.False(t, IsWorkerRunning(1)) // nothing listens there
}

func TestIsPortInUse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer server.Close()

	assert.True(t, IsPortInUse(serverPort(t, server)))
	assert.False(t, IsPortInUse(1))
}

func TestPostJSON(t *testing.T) {
	var gotPath, gotBody string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		buf := make([]byte, r.ContentLength)
		r.Body.Read(buf)
		gotBody = string(buf)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"queued": true}`))
	}))
	defer server.Close()

	var out map[string]bool
	err := PostJSON(serverPort(t, server), "/api/sessions/observations",
		map[string]string{"tool_name": "Edit"}, &out)
	require.NoError(t, err)
	assert.Equal(t, "/api/sessions/observations", gotPath)
	assert.Contains(t, gotBody, `"tool_name":"Edit"`)
	assert.True(t, out["queued"])
}

func TestPostJSON_NonSuccessStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	err := PostJSON(serverPort(t, server), "/api/sessions/init", map[string]string{}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
}

func TestProjectIDWithName(t *testing.T) {
	id := ProjectIDWithName("/Users/test/projects/my-project")
	assert.True(t, strings.HasPrefix(id, "my-project_"), id)
	// 6-char hash suffix
	parts := strings.Split(id, "_")
	assert.Len(t, parts[len(parts)-1], 6)

	// same name, different path, different id
	other := ProjectIDWithName("/elsewhere/my-project")
	assert.NotEqual(t, id, other)
	assert.True(t, strings.HasPrefix(other, "my-project_"))

	// stable across calls
	assert.Equal(t, id, ProjectIDWithName("/Users/test/projects/my-project"))
}

func TestFindWorkerBinary_NoPanic(t *testing.T) {
	// depends on the environment; just exercise both lookup paths
	_ = findWorkerBinary()
}
