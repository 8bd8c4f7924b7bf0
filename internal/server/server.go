package server

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jpalmerr/ihtml/internal/store"
)

const (
	// sseWriteTimeout bounds a single SSE write so a stalled client cannot
	// pin its handler. Must be <= the shutdown timeout.
	sseWriteTimeout = 5 * time.Second

	shutdownTimeout = 5 * time.Second

	defaultTitle = "ihtml preview"

	// titlePlaceholder is replaced with the escaped title in the inspector page.
	titlePlaceholder = "{{.Title}}"
)

// Page is the live document served at "/".
type Page interface {
	Render() string
}

// Config holds the collaborators of a [Server].
type Config struct {
	// Store holds the element snapshots. Required.
	Store store.Store

	// Page is rendered at "/". When nil, "/" redirects to the inspector.
	Page Page

	// Port is the TCP port to listen on. Zero picks a free port.
	Port int

	// Assets contains assets/index.html, the inspector UI. May be nil.
	Assets fs.FS

	// Title is shown by the inspector. Defaults to "ihtml preview".
	Title string

	// Gatherer backs "/metrics". When nil the route is not registered.
	Gatherer prometheus.Gatherer

	// Logger is required.
	Logger *slog.Logger
}

// Server serves the preview of one page.
//
// Routes:
//   - GET /: the page as currently rendered
//   - GET /inspect: the embedded inspector UI
//   - GET /api/elements: all element snapshots as JSON
//   - GET /api/sse: snapshot updates as Server-Sent Events
//   - GET /metrics: Prometheus metrics
type Server struct {
	store      store.Store
	page       Page
	port       int
	assets     fs.FS
	title      string
	gatherer   prometheus.Gatherer
	logger     *slog.Logger
	httpServer *http.Server
	addr       net.Addr
}

// NewServer creates a [Server]. It does not listen until [Server.Start].
func NewServer(cfg Config) *Server {
	title := cfg.Title
	if title == "" {
		title = defaultTitle
	}
	return &Server{
		store:    cfg.Store,
		page:     cfg.Page,
		port:     cfg.Port,
		assets:   cfg.Assets,
		title:    title,
		gatherer: cfg.Gatherer,
		logger:   cfg.Logger,
	}
}

// Handler returns the route multiplexer.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handlePage)
	mux.HandleFunc("/inspect", s.handleInspector)
	mux.HandleFunc("/api/elements", s.handleElements)
	mux.HandleFunc("/api/sse", s.handleSSE)
	if s.gatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	return mux
}

// Start begins serving in a background goroutine and returns once the port
// is bound. The server shuts down gracefully when ctx is cancelled.
//
// Returns an error if the server fails to bind to the configured port.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.port))
	if err != nil {
		return fmt.Errorf("failed to bind to port %d: %w", s.port, err)
	}
	s.addr = ln.Addr()

	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		// request contexts derive from ctx so SSE handlers end on shutdown
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error("http server error", "error", err)
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("http server shutdown error", "error", err)
		}
	}()

	s.logger.Info("preview server listening", "addr", s.addr.String())
	return nil
}

// Addr returns the bound address, or nil before [Server.Start].
func (s *Server) Addr() net.Addr {
	return s.addr
}

func (s *Server) handlePage(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if s.page == nil {
		http.Redirect(w, r, "/inspect", http.StatusFound)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	if _, err := w.Write([]byte(s.page.Render())); err != nil {
		s.logger.Error("failed to write page response", "error", err)
	}
}

func (s *Server) handleInspector(w http.ResponseWriter, r *http.Request) {
	if s.assets == nil {
		http.Error(w, "Inspector not found", http.StatusInternalServerError)
		return
	}
	content, err := fs.ReadFile(s.assets, "assets/index.html")
	if err != nil {
		http.Error(w, "Inspector not found", http.StatusInternalServerError)
		return
	}

	rendered := strings.ReplaceAll(string(content), titlePlaceholder, html.EscapeString(s.title))

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if _, err = w.Write([]byte(rendered)); err != nil {
		s.logger.Error("failed to write inspector response", "error", err)
	}
}

func (s *Server) handleElements(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")

	if err := json.NewEncoder(w).Encode(s.store.GetAll()); err != nil {
		s.logger.Error("failed to encode elements response", "error", err)
	}
}

// handleSSE streams snapshot updates. Every write carries a deadline so a
// slow or vanished client cannot block the handler past shutdown.
func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	if _, ok := w.(http.Flusher); !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}

	rc := http.NewResponseController(w)
	subscriber := uuid.New().String()
	deadlinesSupported := true

	writeAndFlush := func(data []byte) error {
		if deadlinesSupported {
			if err := rc.SetWriteDeadline(time.Now().Add(sseWriteTimeout)); err != nil {
				s.logger.Debug("sse write deadlines not supported", "subscriber", subscriber, "error", err)
				deadlinesSupported = false
			}
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			return err
		}
		return rc.Flush()
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	ch := s.store.Subscribe()
	defer s.store.Unsubscribe(ch)
	s.logger.Debug("sse subscriber connected", "subscriber", subscriber)
	defer s.logger.Debug("sse subscriber disconnected", "subscriber", subscriber)

	for _, snap := range s.store.GetAll() {
		data, err := json.Marshal(snap)
		if err != nil {
			continue
		}
		if err := writeAndFlush(data); err != nil {
			return
		}
	}

	for {
		select {
		case snap, ok := <-ch:
			if !ok {
				return
			}
			data, err := json.Marshal(snap)
			if err != nil {
				continue
			}
			if err := writeAndFlush(data); err != nil {
				return
			}
		case <-r.Context().Done():
			// fires on client disconnect and on server shutdown
			return
		}
	}
}
