package realtime

import (
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/Bhavyapatel3096/Urban-Issue-Reporting-Platform/internal/ratelimit"
)

// HandshakeHandler upgrades HTTP requests to websocket connections. The
// credential is validated before the upgrade: a rejected connection never
// joins a room and never appears in the connected-user enumeration.
type HandshakeHandler struct {
	hub           *Hub
	auth          Authenticator
	guard         *ratelimit.Limiter
	connectMax    int
	connectWindow time.Duration
	upgrader      websocket.Upgrader
	logger        zerolog.Logger
}

func NewHandshakeHandler(hub *Hub, auth Authenticator, guard *ratelimit.Limiter, connectMax int, connectWindow time.Duration, allowedOrigins []string, logger zerolog.Logger) *HandshakeHandler {
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		allowed[strings.TrimRight(origin, "/")] = struct{}{}
	}

	return &HandshakeHandler{
		hub:           hub,
		auth:          auth,
		guard:         guard,
		connectMax:    connectMax,
		connectWindow: connectWindow,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" {
					return true
				}
				_, ok := allowed[strings.TrimRight(origin, "/")]
				return ok
			},
		},
		logger: logger.With().Str("component", "realtime_handshake").Logger(),
	}
}

func (h *HandshakeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.guard != nil && !h.guard.Allow("connect:"+clientAddr(r), h.connectMax, h.connectWindow) {
		http.Error(w, "too many connection attempts", http.StatusTooManyRequests)
		return
	}

	identity, err := h.auth.Authenticate(bearerToken(r))
	if err != nil {
		http.Error(w, "invalid credential", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the error response.
		h.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := newClient(h.hub, conn, identity, h.logger)
	h.hub.Register(client)

	go client.writePump()
	go client.readPump()
}

// bearerToken extracts the credential from the auth.token query parameter
// or the Authorization header.
func bearerToken(r *http.Request) string {
	if token := r.URL.Query().Get("auth.token"); token != "" {
		return token
	}
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}
	auth := r.Header.Get("Authorization")
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) == 2 && parts[0] == "Bearer" {
		return parts[1]
	}
	return ""
}

func clientAddr(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if idx := strings.IndexByte(fwd, ','); idx > 0 {
			return strings.TrimSpace(fwd[:idx])
		}
		return strings.TrimSpace(fwd)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
