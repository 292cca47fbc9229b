package dashboard

import (
	"context"
	"net/http"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/gorilla/websocket"

	"pilot/internal/features"
	"pilot/internal/session/decoder"
	"pilot/internal/session/eventlog"
)

// Websocket messages carry either a new event or a features snapshot.
type wsMessage struct {
	Kind     string     `json:"kind"` // "event" or "features"
	Event    *eventJSON `json:"event,omitempty"`
	Features any        `json:"features,omitempty"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// The dashboard binds to loopback; cross-origin pages are fine.
	CheckOrigin: func(r *http.Request) bool { return true },
}

const wsTailInterval = 250 * time.Millisecond

// handleWS streams new events and features.json changes to the client
// until either side disconnects.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("websocket upgrade")
		return
	}
	defer conn.Close()

	ctx := r.Context()
	events, err := tailEvents(ctx, s.eventLogPath())
	if err != nil {
		s.logger.Warn().Err(err).Msg("tail event log")
	}

	featuresChanged, closeWatcher := s.watchFeatures()
	defer closeWatcher()

	// Reads are discarded; the read loop just surfaces disconnects.
	disconnected := make(chan struct{})
	go func() {
		defer close(disconnected)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		var msg wsMessage
		select {
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			ej := toEventJSON(ev)
			msg = wsMessage{Kind: "event", Event: &ej}
		case <-featuresChanged:
			list, err := features.Load(s.workDir)
			if err != nil {
				s.logger.Warn().Err(err).Msg("load features")
				continue
			}
			msg = wsMessage{Kind: "features", Features: list.Features}
		case <-disconnected:
			return
		case <-ctx.Done():
			return
		}
		if err := conn.WriteJSON(msg); err != nil {
			return
		}
	}
}

// watchFeatures signals on featuresChanged whenever features.json is
// written. Watch failures degrade to a never-firing channel.
func (s *Server) watchFeatures() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		s.logger.Warn().Err(err).Msg("fsnotify watcher")
		return ch, func() {}
	}
	// Watch the directory: the checklist is replaced by rename, which
	// would invalidate a watch on the file itself.
	if err := watcher.Add(s.workDir); err != nil {
		s.logger.Warn().Err(err).Msg("watch project dir")
		watcher.Close()
		return ch, func() {}
	}

	go func() {
		for {
			select {
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if ev.Name != features.Path(s.workDir) {
					continue
				}
				select {
				case ch <- struct{}{}:
				default:
				}
			case _, ok := <-watcher.Errors:
				if !ok {
					return
				}
			}
		}
	}()
	return ch, func() { watcher.Close() } //nolint:errcheck
}

func tailEvents(ctx context.Context, path string) (<-chan decoder.Event, error) {
	return eventlog.Tail(ctx, path, wsTailInterval)
}
