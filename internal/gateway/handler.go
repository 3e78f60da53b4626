// internal/gateway/handler.go
package gateway

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/jason-s-yu/lobbyd/internal/auth"
	"github.com/jason-s-yu/lobbyd/internal/middleware"
	"github.com/sirupsen/logrus"
)

// Custom close codes used by the gateway.
const (
	InvalidAuthTokenError = 4004 // Token missing or failed verification.
)

const (
	outboundBuffer = 32
	pingInterval   = 30 * time.Second
	writeTimeout   = 5 * time.Second
)

// Handler upgrades authenticated requests to a gateway session on the hub.
func Handler(logger *logrus.Logger, hub *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: []string{"*"}, // Adjust in production
		})
		if err != nil {
			logger.Warnf("websocket accept error: %v", err)
			return
		}
		defer c.Close(websocket.StatusInternalError, "handler finished")

		userID, err := auth.UserFromRequest(r)
		if err != nil {
			c.Close(InvalidAuthTokenError, "Authentication failed.")
			return
		}

		middleware.LogWebSocketConnect(logger, r.RemoteAddr, r.URL.Path)

		conn := newConn(userID, outboundBuffer, logger)
		hub.Register(conn)
		defer hub.Unregister(conn)

		// clients never send anything we act on; CloseRead handles control frames
		// and cancels ctx once the peer goes away
		ctx := c.CloseRead(r.Context())
		err = writePump(ctx, c, conn)
		middleware.LogWebSocketDisconnect(logger, r.RemoteAddr, r.URL.Path, err)
	}
}

// writePump forwards queued frames to the socket and pings periodically.
// It returns nil when the peer closed normally.
func writePump(ctx context.Context, c *websocket.Conn, conn *Conn) error {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()
		case frame := <-conn.out:
			writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := c.Write(writeCtx, websocket.MessageText, frame)
			cancel()
			if err != nil {
				return err
			}
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
			err := c.Ping(pingCtx)
			cancel()
			if err != nil {
				return err
			}
		}
	}
}
