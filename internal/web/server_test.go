package web

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"video-compressor-go/internal/batch"
	"video-compressor-go/internal/compressor"
	"video-compressor-go/internal/config"
	"video-compressor-go/internal/logger"

	"github.com/gorilla/websocket"
)

// fakeRunner emits a fixed event sequence once gate is closed. With block
// set it waits for cancellation before finishing.
type fakeRunner struct {
	gate    chan struct{}
	block   bool
	started chan bool
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{gate: make(chan struct{}), started: make(chan bool, 1)}
}

func (f *fakeRunner) Start(ctx context.Context, folder string, keepOriginal bool) <-chan batch.Event {
	events := make(chan batch.Event, 8)
	f.started <- keepOriginal
	go func() {
		defer close(events)
		<-f.gate
		events <- batch.Event{Type: batch.EventProgress, RunID: "run-1", Progress: &batch.BatchProgress{FilesDone: 1, FilesTotal: 2, OverallPercent: 50}}
		if f.block {
			<-ctx.Done()
		}
		msg := "All compressions finished."
		cancelled := ctx.Err() != nil
		if cancelled {
			msg = "Cancelled after 1 of 2 files."
		}
		events <- batch.Event{Type: batch.EventDone, RunID: "run-1", Message: msg, Summary: &batch.Summary{RunID: "run-1", Folder: folder, Cancelled: cancelled, Message: msg}}
	}()
	return events
}

func (f *fakeRunner) Plan(folder string) ([]batch.PlannedFile, error) {
	return []batch.PlannedFile{{Path: filepath.Join(folder, "a.mp4"), SizeMB: 40, Action: compressor.ActionCompressed}}, nil
}

func newTestServer(t *testing.T, runner BatchRunner) (*Server, *httptest.Server) {
	t.Helper()
	s := NewServer(config.DefaultConfig(), logger.Discard(), runner)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return s, ts
}

func postJSON(t *testing.T, url string, body interface{}) (*http.Response, APIResponse) {
	t.Helper()
	var buf bytes.Buffer
	if s, ok := body.(string); ok {
		buf.WriteString(s)
	} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
		t.Fatal(err)
	}
	resp, err := http.Post(url, "application/json", &buf)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var out APIResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	return resp, out
}

func status(t *testing.T, base string) map[string]interface{} {
	t.Helper()
	resp, err := http.Get(base + "/api/status")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var out APIResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	return out.Data.(map[string]interface{})
}

func waitIdle(t *testing.T, base string) map[string]interface{} {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		st := status(t, base)
		if st["running"] == false {
			return st
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("batch did not finish")
	return nil
}

func TestCompress_Validation(t *testing.T) {
	_, ts := newTestServer(t, newFakeRunner())

	tests := []struct {
		name string
		body interface{}
		code int
	}{
		{"bad json", "{", http.StatusBadRequest},
		{"missing directory", CompressRequest{}, http.StatusBadRequest},
		{"nonexistent", CompressRequest{Directory: filepath.Join(t.TempDir(), "nope")}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		resp, out := postJSON(t, ts.URL+"/api/compress", tt.body)
		if resp.StatusCode != tt.code || out.Success {
			t.Errorf("%s: status = %d, body = %+v", tt.name, resp.StatusCode, out)
		}
	}
}

func TestCompress_RunsToCompletion(t *testing.T) {
	runner := newFakeRunner()
	close(runner.gate)
	_, ts := newTestServer(t, runner)

	keep := true
	resp, out := postJSON(t, ts.URL+"/api/compress", CompressRequest{Directory: t.TempDir(), KeepOriginals: &keep})
	if resp.StatusCode != http.StatusOK || !out.Success {
		t.Fatalf("status = %d, body = %+v", resp.StatusCode, out)
	}
	if got := <-runner.started; !got {
		t.Error("keep_originals was not passed through")
	}

	st := waitIdle(t, ts.URL)
	if st["run_id"] != "run-1" {
		t.Errorf("run_id = %v", st["run_id"])
	}
	summary, ok := st["summary"].(map[string]interface{})
	if !ok || summary["message"] != "All compressions finished." {
		t.Errorf("summary = %v", st["summary"])
	}
}

func TestCompress_ConflictAndStop(t *testing.T) {
	runner := newFakeRunner()
	runner.block = true
	close(runner.gate)
	_, ts := newTestServer(t, runner)
	dir := t.TempDir()

	if resp, _ := postJSON(t, ts.URL+"/api/compress", CompressRequest{Directory: dir}); resp.StatusCode != http.StatusOK {
		t.Fatalf("first start: %d", resp.StatusCode)
	}
	if got := <-runner.started; got {
		t.Error("keep_originals should default to the config value (false)")
	}

	resp, _ := postJSON(t, ts.URL+"/api/compress", CompressRequest{Directory: dir})
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("second start: status = %d, want 409", resp.StatusCode)
	}

	resp, out := postJSON(t, ts.URL+"/api/stop", struct{}{})
	if resp.StatusCode != http.StatusOK || !out.Success {
		t.Fatalf("stop: %d %+v", resp.StatusCode, out)
	}

	st := waitIdle(t, ts.URL)
	summary := st["summary"].(map[string]interface{})
	if summary["cancelled"] != true {
		t.Errorf("summary = %v", summary)
	}

	resp, _ = postJSON(t, ts.URL+"/api/stop", struct{}{})
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("stop when idle: status = %d, want 409", resp.StatusCode)
	}
}

func TestScan(t *testing.T) {
	_, ts := newTestServer(t, newFakeRunner())
	dir := t.TempDir()

	resp, out := postJSON(t, ts.URL+"/api/scan", ScanRequest{Directory: dir})
	if resp.StatusCode != http.StatusOK || !out.Success {
		t.Fatalf("status = %d, body = %+v", resp.StatusCode, out)
	}
	files := out.Data.([]interface{})
	if len(files) != 1 || files[0].(map[string]interface{})["action"] != "compressed" {
		t.Errorf("files = %v", files)
	}
}

func TestListDirectories(t *testing.T) {
	_, ts := newTestServer(t, newFakeRunner())
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "clip.mp4"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Mkdir(filepath.Join(dir, "compressed"), 0o755); err != nil {
		t.Fatal(err)
	}

	resp, err := http.Get(ts.URL + "/api/directories?path=" + dir)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var out struct {
		Success bool            `json:"success"`
		Data    []DirectoryInfo `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if len(out.Data) != 2 || out.Data[0].Name != "clip.mp4" || !out.Data[1].IsDirectory {
		t.Errorf("entries = %+v", out.Data)
	}

	bad, err := http.Get(ts.URL + "/api/directories?path=../etc")
	if err != nil {
		t.Fatal(err)
	}
	bad.Body.Close()
	if bad.StatusCode != http.StatusBadRequest {
		t.Errorf("traversal: status = %d", bad.StatusCode)
	}
}

func TestWebSocketReceivesEvents(t *testing.T) {
	runner := newFakeRunner()
	s, ts := newTestServer(t, runner)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(5 * time.Second)
	for s.clientCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(10 * time.Millisecond)
	}

	if resp, _ := postJSON(t, ts.URL+"/api/compress", CompressRequest{Directory: t.TempDir()}); resp.StatusCode != http.StatusOK {
		t.Fatalf("start: %d", resp.StatusCode)
	}
	close(runner.gate)

	var types []string
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		var msg WSMessage
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("read: %v (got %v)", err, types)
		}
		types = append(types, msg.Type)
		if msg.Type == string(batch.EventDone) {
			break
		}
	}

	want := []string{"compress_started", "progress", "done"}
	if strings.Join(types, ",") != strings.Join(want, ",") {
		t.Errorf("message types = %v, want %v", types, want)
	}
}

func TestBroadcastDropsStalledClient(t *testing.T) {
	s, ts := newTestServer(t, newFakeRunner())
	s.wsWait = 50 * time.Millisecond

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(5 * time.Second)
	for s.clientCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(10 * time.Millisecond)
	}

	// The client never reads, so the socket buffers fill and writes start timing out.
	payload := strings.Repeat("x", 1<<20)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 512 && s.clientCount() > 0; i++ {
			s.broadcastWSMessage("log", payload)
		}
	}()

	select {
	case <-done:
	case <-time.After(20 * time.Second):
		t.Fatal("broadcast blocked on a client that does not read")
	}
	if n := s.clientCount(); n != 0 {
		t.Errorf("clients = %d, want the stalled client dropped", n)
	}
}
