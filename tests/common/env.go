// Package common provides shared test infrastructure
package common

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/crab-bench/crab-server/internal/app"
	"github.com/crab-bench/crab-server/internal/server"
	"github.com/gorilla/websocket"
)

// DefaultDataset is the reference dataset the test environment loads
// unless a test supplies its own.
const DefaultDataset = `{
  "entries": [
    {
      "metadata": {
        "id": "ref-1",
        "repo": "acme/widget",
        "pr_number": 7,
        "pr_title": "Clean up logging",
        "merge_commit_sha": "1111111",
        "build_system": "maven"
      },
      "comments": [
        {
          "body": "Fix the typo in this log message",
          "file": "src/main/java/com/acme/App.java",
          "from": 10,
          "to": 12,
          "paraphrases": ["fix typo in log", "correct the log message typo"]
        }
      ]
    },
    {
      "metadata": {
        "id": "ref-2",
        "repo": "acme/widget",
        "pr_number": 9,
        "pr_title": "Refactor variables",
        "merge_commit_sha": "2222222",
        "build_system": "gradle"
      },
      "comments": [
        {
          "body": "Rename this variable for clarity",
          "file": "src/Main.java",
          "from": 3,
          "to": 3,
          "paraphrases": []
        }
      ]
    },
    {
      "metadata": {
        "id": "ref-3",
        "repo": "acme/widget",
        "pr_number": 12,
        "pr_title": "Utility helpers",
        "merge_commit_sha": "3333333"
      },
      "comments": [
        {
          "body": "Add unit tests for this class",
          "file": "src/Util.java",
          "from": null,
          "to": null,
          "paraphrases": []
        }
      ]
    }
  ]
}`

// EnvOptions configures the in-process test environment.
type EnvOptions struct {
	// Dataset is the reference dataset JSON. Defaults to DefaultDataset.
	Dataset string
	// MaxWorkers sizes the evaluation worker pool. Defaults to 2.
	MaxWorkers int
	// RealBuilds runs refinement evaluations in Docker containers instead
	// of the mock build handler. Requires the crab-maven/crab-gradle
	// images; see RequireDocker.
	RealBuilds bool
	// ResultsDir pins the results directory, letting a test share it
	// across environments to exercise restart recovery. Defaults to a
	// fresh temp directory.
	ResultsDir string
	// BuildTimeout bounds each compile/test container command.
	// Defaults to "2m".
	BuildTimeout string
}

// Env is an isolated in-process server environment: a full application
// core over temp directories, served through httptest.
type Env struct {
	t           *testing.T
	App         *app.App
	Server      *server.Server
	HTTP        *httptest.Server
	ResultsDir  string
	DataDir     string
	ArchivesDir string
}

// NewEnv creates a test environment with default options.
func NewEnv(t *testing.T) *Env {
	return NewEnvWithOptions(t, EnvOptions{})
}

// NewEnvWithOptions creates a test environment with custom options. The
// application boots from a generated config file, the same path the
// server binary takes.
func NewEnvWithOptions(t *testing.T, opts EnvOptions) *Env {
	t.Helper()

	neutralizeEnv(t)

	dataset := opts.Dataset
	if dataset == "" {
		dataset = DefaultDataset
	}
	maxWorkers := opts.MaxWorkers
	if maxWorkers <= 0 {
		maxWorkers = 2
	}
	buildTimeout := opts.BuildTimeout
	if buildTimeout == "" {
		buildTimeout = "2m"
	}

	dir := t.TempDir()
	dataDir := filepath.Join(dir, "data")
	archivesDir := filepath.Join(dataDir, "archives")
	publicDir := filepath.Join(dir, "public")
	resultsDir := opts.ResultsDir
	if resultsDir == "" {
		resultsDir = filepath.Join(dir, "results")
	}

	for _, d := range []string{dataDir, archivesDir, publicDir} {
		if err := os.MkdirAll(d, 0755); err != nil {
			t.Fatalf("Failed to create %s: %v", d, err)
		}
	}
	if err := os.WriteFile(filepath.Join(dataDir, "dataset.json"), []byte(dataset), 0644); err != nil {
		t.Fatalf("Failed to write dataset: %v", err)
	}

	config := fmt.Sprintf(`
environment = "test"

[server]
host = "127.0.0.1"
port = 0
public_dir = %q

[workers]
max_workers = %d

[storage]
results_dir = %q
data_path = %q

[evaluation]
mock_build_handler = %t
build_timeout = %q

[logging]
level = "error"
`, publicDir, maxWorkers, resultsDir, dataDir, !opts.RealBuilds, buildTimeout)

	configPath := filepath.Join(dir, "crab.toml")
	if err := os.WriteFile(configPath, []byte(config), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	a, err := app.NewApp(configPath)
	if err != nil {
		t.Fatalf("Failed to initialize app: %v", err)
	}

	srv := server.NewServer(a)
	ts := httptest.NewServer(srv.Handler())

	return &Env{
		t:           t,
		App:         a,
		Server:      srv,
		HTTP:        ts,
		ResultsDir:  resultsDir,
		DataDir:     dataDir,
		ArchivesDir: archivesDir,
	}
}

// neutralizeEnv clears the deployment environment overrides so the
// generated config file is the only source of configuration.
func neutralizeEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{
		"PORT", "MAX_WORKERS", "RESULTS_DIR", "MOCK_BUILD_HANDLER",
		"DATA_PATH", "DATASET_PATH", "ARCHIVES_ROOT",
		"CRAB_ENV", "CRAB_HOST", "CRAB_LOG_LEVEL", "CRAB_CONFIG",
		"CRAB_PUBLIC_DIR", "CRAB_BUILD_TIMEOUT",
	} {
		t.Setenv(name, "")
	}
}

// Cleanup tears down the HTTP server, the session hub, and the app core.
func (e *Env) Cleanup() {
	if e == nil {
		return
	}
	e.HTTP.Close()
	e.Server.Hub().Stop()
	e.App.Close()
}

// ServerURL returns the base URL of the test server.
func (e *Env) ServerURL() string {
	return e.HTTP.URL
}

// HTTPGet performs a GET request against the test server.
func (e *Env) HTTPGet(path string) (*http.Response, error) {
	return http.Get(e.HTTP.URL + path)
}

// HTTPPost performs a POST request against the test server.
func (e *Env) HTTPPost(path, contentType string, body io.Reader) (*http.Response, error) {
	return http.Post(e.HTTP.URL+path, contentType, body)
}

// HTTPRequest performs a request with custom method and headers.
func (e *Env) HTTPRequest(method, path string, body io.Reader, headers map[string]string) (*http.Response, error) {
	req, err := http.NewRequest(method, e.HTTP.URL+path, body)
	if err != nil {
		return nil, err
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return http.DefaultClient.Do(req)
}

// SubmitFile uploads contents as a multipart submission file of the
// given kind ("comment" or "refinement"). socketID, when non-empty, is
// sent as X-Socket-Id.
func (e *Env) SubmitFile(kind, filename, contents, socketID string) (*http.Response, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return nil, err
	}
	if _, err := fw.Write([]byte(contents)); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	headers := map[string]string{"Content-Type": mw.FormDataContentType()}
	if socketID != "" {
		headers["X-Socket-Id"] = socketID
	}
	return e.HTTPRequest(http.MethodPost, "/answers/submit/"+kind, &buf, headers)
}

// Submit uploads a submission and returns the accepted job id, failing
// the test on anything but a 200.
func (e *Env) Submit(kind, contents string) string {
	e.t.Helper()

	resp, err := e.SubmitFile(kind, "answers.json", contents, "")
	if err != nil {
		e.t.Fatalf("Failed to submit %s answers: %v", kind, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		e.t.Fatalf("Submission rejected with %d: %s", resp.StatusCode, body)
	}

	var accepted struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&accepted); err != nil {
		e.t.Fatalf("Failed to decode submission response: %v", err)
	}
	if accepted.ID == "" {
		e.t.Fatal("Submission response carries no id")
	}
	return accepted.ID
}

// JobStatus fetches /answers/status/<id> and decodes the body.
func (e *Env) JobStatus(id string) (int, map[string]any, error) {
	resp, err := e.HTTPGet("/answers/status/" + id)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return resp.StatusCode, nil, err
	}
	return resp.StatusCode, body, nil
}

// WaitForJob polls the status endpoint until the job reaches the wanted
// status. Reaching a different terminal status fails the test with the
// body for context.
func (e *Env) WaitForJob(id, want string, timeout time.Duration) map[string]any {
	e.t.Helper()

	deadline := time.Now().Add(timeout)
	for {
		code, body, err := e.JobStatus(id)
		if err != nil {
			e.t.Fatalf("Failed to fetch status for %s: %v", id, err)
		}
		if code != http.StatusOK {
			e.t.Fatalf("Status for %s returned %d: %v", id, code, body)
		}

		status, _ := body["status"].(string)
		if status == want {
			return body
		}
		if status == "complete" || status == "failed" {
			e.t.Fatalf("Job %s terminal in %q while waiting for %q: %v", id, status, want, body)
		}
		if time.Now().After(deadline) {
			e.t.Fatalf("Job %s stuck in %q while waiting for %q", id, status, want)
		}
		time.Sleep(20 * time.Millisecond)
	}
}

// DialSocket opens a WebSocket session and returns the connection with
// the server-assigned session id from the connected frame.
func (e *Env) DialSocket() (*websocket.Conn, string) {
	e.t.Helper()

	wsURL := "ws" + strings.TrimPrefix(e.HTTP.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		e.t.Fatalf("Failed to dial %s: %v", wsURL, err)
	}
	e.t.Cleanup(func() { conn.Close() })

	event, data, err := ReadSocketEvent(conn)
	if err != nil {
		e.t.Fatalf("Failed to read connected frame: %v", err)
	}
	if event != "connected" {
		e.t.Fatalf("First frame event %q, want connected", event)
	}

	var payload struct {
		Sid string `json:"sid"`
	}
	if err := json.Unmarshal(data, &payload); err != nil || payload.Sid == "" {
		e.t.Fatalf("Connected frame carries no session id: %s", data)
	}
	return conn, payload.Sid
}

// ReadSocketEvent reads one event frame with a five second deadline.
func ReadSocketEvent(conn *websocket.Conn) (string, json.RawMessage, error) {
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		return "", nil, err
	}

	var msg struct {
		Event string          `json:"event"`
		Data  json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &msg); err != nil {
		return "", nil, fmt.Errorf("decode frame %q: %w", raw, err)
	}
	return msg.Event, msg.Data, nil
}

// WaitSocketEvent reads frames until one matches event, skipping others.
func WaitSocketEvent(t *testing.T, conn *websocket.Conn, event string) json.RawMessage {
	t.Helper()

	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		got, data, err := ReadSocketEvent(conn)
		if err != nil {
			t.Fatalf("Failed waiting for %q frame: %v", event, err)
		}
		if got == event {
			return data
		}
	}
	t.Fatalf("No %q frame before deadline", event)
	return nil
}
