package web

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"video-compressor-go/internal/batch"
	"video-compressor-go/internal/config"
	"video-compressor-go/internal/logger"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// BatchRunner starts and plans compression batches.
type BatchRunner interface {
	Start(ctx context.Context, folder string, keepOriginal bool) <-chan batch.Event
	Plan(folder string) ([]batch.PlannedFile, error)
}

const defaultWSWriteWait = 10 * time.Second

type Server struct {
	cfg        *config.Config
	log        *logrus.Logger
	runner     BatchRunner
	router     *mux.Router
	httpServer *http.Server
	wsUpgrader websocket.Upgrader
	wsClients  map[*websocket.Conn]bool
	wsMutex    sync.Mutex
	wsWait     time.Duration

	// Current operation state
	operationMutex sync.RWMutex
	isRunning      bool
	cancel         context.CancelFunc
	runID          string
	directory      string
	lastProgress   *batch.BatchProgress
	lastSummary    *batch.Summary
}

type APIResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

type ScanRequest struct {
	Directory string `json:"directory"`
}

type CompressRequest struct {
	Directory     string `json:"directory"`
	KeepOriginals *bool  `json:"keep_originals,omitempty"`
}

type DirectoryInfo struct {
	Path         string `json:"path"`
	Name         string `json:"name"`
	IsDirectory  bool   `json:"is_directory"`
	Size         int64  `json:"size"`
	ModifiedTime string `json:"modified_time"`
}

type WSMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

func NewServer(cfg *config.Config, log *logrus.Logger, runner BatchRunner) *Server {
	s := &Server{
		cfg:       cfg,
		log:       log,
		runner:    runner,
		router:    mux.NewRouter(),
		wsClients: make(map[*websocket.Conn]bool),
		wsWait:    defaultWSWriteWait,
		wsUpgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // local tool, any origin may watch
			},
		},
	}

	s.setupRoutes()
	return s
}

// Handler returns the HTTP handler serving the API and the event stream.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/status", s.handleStatus).Methods("GET")
	api.HandleFunc("/scan", s.handleScan).Methods("POST")
	api.HandleFunc("/compress", s.handleCompress).Methods("POST")
	api.HandleFunc("/stop", s.handleStop).Methods("POST")
	api.HandleFunc("/directories", s.handleListDirectories).Methods("GET")

	s.router.HandleFunc("/ws", s.handleWebSocket)
}

func (s *Server) Start(port int) error {
	addr := fmt.Sprintf(":%d", port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	s.log.Infof("Starting web server on http://localhost%s", addr)
	return s.httpServer.ListenAndServe()
}

// Stop cancels any running batch and shuts the HTTP server down.
func (s *Server) Stop(ctx context.Context) error {
	s.operationMutex.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.operationMutex.Unlock()

	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.operationMutex.RLock()
	data := map[string]interface{}{
		"running":   s.isRunning,
		"run_id":    s.runID,
		"directory": s.directory,
		"progress":  s.lastProgress,
		"summary":   s.lastSummary,
	}
	if s.lastSummary != nil && s.lastSummary.Stats != nil {
		data["statistics"] = s.lastSummary.Stats.Snapshot()
	}
	s.operationMutex.RUnlock()

	s.writeJSON(w, APIResponse{
		Success: true,
		Data:    data,
	})
}

func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	var req ScanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if req.Directory == "" {
		s.writeError(w, "Directory is required", http.StatusBadRequest)
		return
	}

	if !isDir(req.Directory) {
		s.writeError(w, "Directory does not exist", http.StatusBadRequest)
		return
	}

	logger.WithOperation(s.log, "scan").WithField("directory", req.Directory).Info("Scan requested")

	planned, err := s.runner.Plan(req.Directory)
	if err != nil {
		s.writeError(w, fmt.Sprintf("Scan failed: %v", err), http.StatusInternalServerError)
		return
	}

	s.broadcastWSMessage("scan_completed", map[string]interface{}{
		"directory": req.Directory,
		"files":     planned,
	})

	s.writeJSON(w, APIResponse{
		Success: true,
		Message: fmt.Sprintf("Found %d video files", len(planned)),
		Data:    planned,
	})
}

func (s *Server) handleCompress(w http.ResponseWriter, r *http.Request) {
	var req CompressRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if req.Directory == "" {
		s.writeError(w, "Directory is required", http.StatusBadRequest)
		return
	}

	if !isDir(req.Directory) {
		s.writeError(w, "Directory does not exist", http.StatusBadRequest)
		return
	}

	keep := s.cfg.KeepOriginals
	if req.KeepOriginals != nil {
		keep = *req.KeepOriginals
	}

	s.operationMutex.Lock()
	if s.isRunning {
		s.operationMutex.Unlock()
		s.writeError(w, "Operation already in progress", http.StatusConflict)
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.isRunning = true
	s.cancel = cancel
	s.runID = ""
	s.directory = req.Directory
	s.lastProgress = nil
	s.lastSummary = nil
	s.operationMutex.Unlock()

	logger.WithOperation(s.log, "compress").WithFields(logrus.Fields{
		"directory":      req.Directory,
		"keep_originals": keep,
	}).Info("Compression requested")

	s.broadcastWSMessage("compress_started", map[string]interface{}{
		"directory":      req.Directory,
		"keep_originals": keep,
	})

	go s.forwardEvents(cancel, s.runner.Start(ctx, req.Directory, keep))

	s.writeJSON(w, APIResponse{
		Success: true,
		Message: "Compression started",
	})
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	s.operationMutex.RLock()
	running, cancel, runID := s.isRunning, s.cancel, s.runID
	s.operationMutex.RUnlock()

	if !running || cancel == nil {
		s.writeError(w, "No operation in progress", http.StatusConflict)
		return
	}
	cancel()
	logger.WithFields(s.log, logrus.Fields{
		"operation": "stop",
		"run_id":    runID,
	}).Info("Stop requested")

	s.broadcastWSMessage("operation_stopped", map[string]interface{}{
		"message": "Operation stopped by user",
	})

	s.writeJSON(w, APIResponse{
		Success: true,
		Message: "Stopping the current run",
	})
}

func (s *Server) handleListDirectories(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		path = "."
	}

	// Security check - prevent directory traversal
	if strings.Contains(path, "..") {
		s.writeError(w, "Invalid path", http.StatusBadRequest)
		return
	}
	path = filepath.Clean(path)

	entries, err := os.ReadDir(path)
	if err != nil {
		s.writeError(w, fmt.Sprintf("Failed to read directory: %v", err), http.StatusInternalServerError)
		return
	}

	directories := make([]DirectoryInfo, 0, len(entries))
	for _, entry := range entries {
		info, err := entry.Info()
		if err != nil {
			continue
		}

		fullPath := filepath.Join(path, entry.Name())
		directories = append(directories, DirectoryInfo{
			Path:         fullPath,
			Name:         entry.Name(),
			IsDirectory:  entry.IsDir(),
			Size:         info.Size(),
			ModifiedTime: info.ModTime().Format(time.RFC3339),
		})
	}

	s.writeJSON(w, APIResponse{
		Success: true,
		Data:    directories,
	})
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Errorf("WebSocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	s.wsMutex.Lock()
	s.wsClients[conn] = true
	s.wsMutex.Unlock()

	s.log.Debug("WebSocket client connected")

	defer func() {
		s.wsMutex.Lock()
		delete(s.wsClients, conn)
		s.wsMutex.Unlock()
		s.log.Debug("WebSocket client disconnected")
	}()

	// Keep connection alive
	for {
		_, _, err := conn.ReadMessage()
		if err != nil {
			break
		}
	}
}

// forwardEvents relays batch events to websocket clients and tracks the
// latest state for /api/status.
func (s *Server) forwardEvents(cancel context.CancelFunc, events <-chan batch.Event) {
	defer cancel()

	for ev := range events {
		s.operationMutex.Lock()
		s.runID = ev.RunID
		if ev.Progress != nil {
			s.lastProgress = ev.Progress
		}
		if ev.Summary != nil {
			s.lastSummary = ev.Summary
		}
		s.operationMutex.Unlock()

		s.broadcastWSMessage(string(ev.Type), ev)
	}

	s.operationMutex.Lock()
	s.isRunning = false
	s.cancel = nil
	s.operationMutex.Unlock()
}

func (s *Server) clientCount() int {
	s.wsMutex.Lock()
	defer s.wsMutex.Unlock()
	return len(s.wsClients)
}

func (s *Server) broadcastWSMessage(messageType string, data interface{}) {
	message := WSMessage{
		Type: messageType,
		Data: data,
	}

	msgBytes, err := json.Marshal(message)
	if err != nil {
		s.log.Errorf("Failed to marshal WebSocket message: %v", err)
		return
	}

	// gorilla connections allow one concurrent writer
	s.wsMutex.Lock()
	defer s.wsMutex.Unlock()

	for conn := range s.wsClients {
		conn.SetWriteDeadline(time.Now().Add(s.wsWait))
		if err := conn.WriteMessage(websocket.TextMessage, msgBytes); err != nil {
			s.log.Errorf("Failed to write WebSocket message: %v", err)
			delete(s.wsClients, conn)
			conn.Close()
		}
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func (s *Server) writeError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(APIResponse{
		Success: false,
		Error:   message,
	})
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
