package connectivity

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jpillora/backoff"

	"github.com/teamgrid/workspace-client/internal/logging"
)

// reachabilityEvent is the wire form of a pushed connectivity change.
type reachabilityEvent struct {
	Online bool `json:"online"`
}

// eventFeedLoop keeps a websocket subscription to the platform's
// connectivity event feed, reconnecting with jittered backoff. The feed
// supplements the probe loop; losing the feed itself is treated as an
// offline observation.
func (m *Monitor) eventFeedLoop(ctx context.Context, stopCh <-chan struct{}) {
	defer m.wg.Done()

	b := &backoff.Backoff{
		Min:    m.cfg.ProbeMin,
		Max:    m.cfg.ProbeMax,
		Factor: 2,
		Jitter: true,
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		default:
		}

		conn, _, err := websocket.DefaultDialer.DialContext(ctx, m.cfg.EventsURL, nil)
		if err != nil {
			m.SetState(StateOffline)
			select {
			case <-ctx.Done():
				return
			case <-stopCh:
				return
			case <-time.After(b.Duration()):
			}
			continue
		}

		b.Reset()
		m.SetState(StateOnline)
		m.readEvents(ctx, conn, stopCh)
		conn.Close()
	}
}

// readEvents consumes the feed until it breaks or the monitor stops.
func (m *Monitor) readEvents(ctx context.Context, conn *websocket.Conn, stopCh <-chan struct{}) {
	done := make(chan struct{})
	defer close(done)

	// unblock ReadMessage on shutdown
	go func() {
		select {
		case <-ctx.Done():
		case <-stopCh:
		case <-done:
			return
		}
		conn.SetReadDeadline(time.Now())
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			m.SetState(StateOffline)
			return
		}

		var ev reachabilityEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			logging.Warn("ignoring malformed connectivity event", map[string]interface{}{
				"error": err.Error(),
			})
			continue
		}

		if ev.Online {
			m.SetState(StateOnline)
		} else {
			m.SetState(StateOffline)
		}
	}
}
