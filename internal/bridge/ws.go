package bridge

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ZebulonRouseFrantzich/heykeploy/internal/recorder"
)

const (
	writeTimeout    = 10 * time.Second
	shutdownTimeout = 5 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     allowedOrigin,
}

// allowedOrigin accepts requests without an Origin, from editor webviews,
// and from loopback pages. Anything else could be a web page driving the
// local recorder.
func allowedOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	if strings.HasSuffix(u.Scheme, "-webview") {
		return true
	}
	return isLoopbackHost(u.Hostname())
}

func isLoopbackHost(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// wsConn serializes writes to a websocket connection.
type wsConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *wsConn) send(reply Reply) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteJSON(reply)
}

// Handler returns an http.Handler serving the message protocol at /ws.
// Exit events from events, when non-nil, are broadcast as exited replies
// to every connected panel.
func (d *Dispatcher) Handler(ctx context.Context, events <-chan recorder.ExitEvent) http.Handler {
	hub := &hub{conns: make(map[*wsConn]struct{})}
	if events != nil {
		go d.Forward(ctx, events, hub.broadcast)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		d.serveWS(ctx, hub, w, r)
	})
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	return mux
}

func (d *Dispatcher) serveWS(ctx context.Context, hub *hub, w http.ResponseWriter, r *http.Request) {
	raw, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		d.logger.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	defer raw.Close()
	stop := context.AfterFunc(ctx, func() { raw.Close() })
	defer stop()

	conn := &wsConn{conn: raw}
	hub.add(conn)
	defer hub.remove(conn)
	d.logger.Info("panel connected", "remote", r.RemoteAddr)

	send := func(reply Reply) {
		if err := conn.send(reply); err != nil {
			d.logger.Debug("failed to write reply", "remote", r.RemoteAddr, "error", err)
		}
	}

	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		var msg Message
		if err := raw.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				d.logger.Warn("panel connection lost", "remote", r.RemoteAddr, "error", err)
			}
			return
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			d.Handle(ctx, msg, send)
		}()
	}
}

// hub tracks connected panels for broadcasts.
type hub struct {
	mu    sync.Mutex
	conns map[*wsConn]struct{}
}

func (h *hub) add(c *wsConn) {
	h.mu.Lock()
	h.conns[c] = struct{}{}
	h.mu.Unlock()
}

func (h *hub) remove(c *wsConn) {
	h.mu.Lock()
	delete(h.conns, c)
	h.mu.Unlock()
}

func (h *hub) broadcast(reply Reply) {
	h.mu.Lock()
	conns := make([]*wsConn, 0, len(h.conns))
	for c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	for _, c := range conns {
		_ = c.send(reply)
	}
}

// ListenAndServe serves Handler on addr, which must be a loopback address,
// until ctx is done.
func (d *Dispatcher) ListenAndServe(ctx context.Context, addr string, events <-chan recorder.ExitEvent) error {
	if err := ValidateListen(addr); err != nil {
		return err
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}

	srv := &http.Server{
		Handler:           d.Handler(ctx, events),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()
	d.logger.Info("bridge listening", "addr", ln.Addr().String())

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// ValidateListen requires addr to be host:port with a loopback host.
func ValidateListen(addr string) error {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("invalid listen address %q: %w", addr, err)
	}
	if !isLoopbackHost(host) {
		return fmt.Errorf("listen address %q is not loopback", addr)
	}
	return nil
}
