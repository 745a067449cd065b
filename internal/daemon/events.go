package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	ws "github.com/coder/websocket"
)

const pingInterval = 30 * time.Second

// eventFrame is the envelope the daemon wraps every pushed event in. The
// payload is kept raw; its shape depends on the channel.
type eventFrame struct {
	Channel string          `json:"channel"`
	Payload json.RawMessage `json:"payload"`
}

// wsURL converts the daemon base URL to its websocket endpoint for a server
func (s *ServerAPI) wsURL() string {
	base := s.c.baseURL
	if strings.HasPrefix(base, "https://") {
		base = "wss://" + strings.TrimPrefix(base, "https://")
	} else if strings.HasPrefix(base, "http://") {
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	return fmt.Sprintf("%s/api/servers/%s/events", base, s.serverUUID)
}

// StreamEvents connects to the server's event feed and invokes handler for
// every frame until the connection drops or ctx is cancelled. Frames that
// fail to decode as an envelope are skipped; payload-level validation is
// the handler's concern.
func (s *ServerAPI) StreamEvents(ctx context.Context, handler func(channel string, payload []byte)) error {
	conn, _, err := ws.Dial(ctx, s.wsURL(), &ws.DialOptions{
		HTTPHeader: map[string][]string{
			"Authorization": {"Bearer " + s.c.token},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to connect to event feed: %w", err)
	}
	defer conn.Close(ws.StatusNormalClosure, "")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Ping pump to detect stale connections
	go func() {
		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := conn.Ping(ctx); err != nil {
					cancel()
					return
				}
			}
		}
	}()

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}

		var frame eventFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			continue
		}
		handler(frame.Channel, frame.Payload)
	}
}
