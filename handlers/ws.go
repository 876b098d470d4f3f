package handlers

import (
	"net/http"
	"net/url"

	"github.com/coder/websocket"
)

// DashboardWS upgrades the connection and hands it to the realtime manager.
// The handshake enforces the same origin list as the CORS middleware; a
// request without an Origin header (non-browser client) is let through.
// Blocks until the client disconnects.
func (h *Handlers) DashboardWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: originPatterns(h.corsOrigins),
	})
	if err != nil {
		h.log.Warn("websocket upgrade failed", "error", err, "origin", r.Header.Get("Origin"))
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	h.rt.HandleConnection(r.Context(), conn)
}

// originPatterns converts CORS origin URLs into the host[:port] patterns the
// websocket handshake matches against.
func originPatterns(origins []string) []string {
	patterns := make([]string, 0, len(origins))
	for _, o := range origins {
		if o == "*" {
			return []string{"*"}
		}
		u, err := url.Parse(o)
		if err != nil || u.Host == "" {
			patterns = append(patterns, o)
			continue
		}
		patterns = append(patterns, u.Host)
	}
	return patterns
}
