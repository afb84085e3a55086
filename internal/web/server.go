// Package web serves a minimal progress page and an SSE stream of
// accumulation snapshots.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/vadiminshakov/stacker/internal/events"
)

type progressSource interface {
	Subscribe() chan events.ProgressSnapshot
	Unsubscribe(ch chan events.ProgressSnapshot)
}

// Server exposes HTTP endpoints serving the HTML UI and an SSE stream.
type Server struct {
	Addr     string
	Progress progressSource
}

// NewServer creates a new web server instance.
func NewServer(addr string, progress progressSource) *Server {
	return &Server{Addr: addr, Progress: progress}
}

// Start runs the HTTP server (blocking) and shuts it down when ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/progress/stream", s.handleProgressStream)

	server := &http.Server{
		Addr:              s.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, indexHTML)
}

func (s *Server) handleProgressStream(w http.ResponseWriter, r *http.Request) {
	if s.Progress == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprint(w, "progress source not available")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch := s.Progress.Subscribe()
	defer s.Progress.Unsubscribe(ch)

	for {
		select {
		case <-r.Context().Done():
			return
		case snapshot, open := <-ch:
			if !open {
				return
			}
			payload, err := json.Marshal(snapshot)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", payload)
			flusher.Flush()
		}
	}
}

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>stacker</title>
<style>
body { font-family: monospace; background: #111; color: #ddd; margin: 2rem; }
table { border-collapse: collapse; }
td { padding: 0.2rem 1rem 0.2rem 0; }
td.v { color: #7cf; }
</style>
</head>
<body>
<h3>accumulation progress</h3>
<table>
<tr><td>pair</td><td class="v" id="pair">-</td></tr>
<tr><td>acquired</td><td class="v" id="acquired">-</td></tr>
<tr><td>remaining</td><td class="v" id="remaining">-</td></tr>
<tr><td>target</td><td class="v" id="target">-</td></tr>
<tr><td>avg price</td><td class="v" id="avg_price">-</td></tr>
<tr><td>total cost</td><td class="v" id="total_cost">-</td></tr>
<tr><td>balance</td><td class="v" id="balance">-</td></tr>
<tr><td>open orders</td><td class="v" id="open_orders">-</td></tr>
</table>
<script>
const es = new EventSource('/progress/stream');
es.onmessage = (e) => {
  const s = JSON.parse(e.data);
  for (const k of ['pair','acquired','remaining','target','avg_price','total_cost','balance','open_orders']) {
    const el = document.getElementById(k);
    if (el && s[k] !== undefined) el.textContent = s[k];
  }
};
</script>
</body>
</html>`
