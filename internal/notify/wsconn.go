package notify

import (
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// wsSender adapts a gorilla websocket connection to the Sender interface.
type wsSender struct {
	conn         *websocket.Conn
	writeTimeout time.Duration
}

func (s *wsSender) Write(data []byte) error {
	s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

func (s *wsSender) Close() error {
	s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return s.conn.Close()
}

// WSHandlerOptions configures the websocket endpoint.
type WSHandlerOptions struct {
	// WriteTimeout bounds each outbound frame write. Defaults to 10s.
	WriteTimeout time.Duration
	// ReadTimeout bounds the idle wait for client control frames.
	// Defaults to 60s, refreshed on every pong.
	ReadTimeout time.Duration
	Logger      *log.Logger
}

// WSHandler upgrades HTTP requests to websocket connections and registers
// them with the registry. The optional "region" query parameter scopes the
// connection to one region's broadcasts; absent, it receives all regions.
func WSHandler(registry *Registry, opts WSHandlerOptions) http.HandlerFunc {
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 10 * time.Second
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = 60 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin:     func(*http.Request) bool { return true },
	}

	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			opts.Logger.Printf("[notify] websocket upgrade: %v", err)
			return
		}

		region := r.URL.Query().Get("region")
		handle := registry.Register(&wsSender{conn: conn, writeTimeout: opts.WriteTimeout}, region)

		conn.SetReadDeadline(time.Now().Add(opts.ReadTimeout))
		conn.SetPongHandler(func(string) error {
			conn.SetReadDeadline(time.Now().Add(opts.ReadTimeout))
			return nil
		})

		// Viewers never send application data; the read loop exists to
		// notice disconnects and release the registration.
		go func() {
			defer registry.Unregister(handle)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
				conn.SetReadDeadline(time.Now().Add(opts.ReadTimeout))
			}
		}()
	}
}
