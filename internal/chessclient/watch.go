package chessclient

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/park285/Cheese-RelayChess/internal/obslog"
	"github.com/park285/Cheese-RelayChess/pkg/chessdto"
)

type ConnState string

const (
	ConnDisconnected ConnState = "disconnected"
	ConnConnecting   ConnState = "connecting"
	ConnConnected    ConnState = "connected"
	ConnReconnecting ConnState = "reconnecting"
	ConnFailed       ConnState = "failed"
	// ConnClosed means the server ended the stream; the game expired.
	ConnClosed ConnState = "closed"
)

type StateCallback func(st *chessdto.GameState)

type ConnCallback func(state ConnState)

type stateEntry struct {
	id       int
	callback StateCallback
}

type connEntry struct {
	id       int
	callback ConnCallback
}

// Watcher follows one game's websocket stream and fans states out to
// callbacks, reconnecting with backoff when the connection drops.
type Watcher struct {
	wsURL string

	conn   *websocket.Conn
	connM  sync.Mutex
	state  ConnState
	stateM sync.RWMutex

	stateCbs []stateEntry
	connCbs  []connEntry
	nextID   int
	cbM      sync.RWMutex

	maxReconnectAttempts int
	pingInterval         time.Duration

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	rootCtx    context.Context
	rootCancel context.CancelFunc
}

// NewWatcher builds a watcher for game id on the websocket base URL, e.g.
// ws://localhost:8081.
func NewWatcher(wsBase, id string, maxReconnectAttempts int) *Watcher {
	ctx, cancel := context.WithCancel(context.Background())
	return &Watcher{
		wsURL:                strings.TrimRight(wsBase, "/") + "/ws?game=" + url.QueryEscape(id),
		state:                ConnDisconnected,
		maxReconnectAttempts: maxReconnectAttempts,
		pingInterval:         30 * time.Second,
		stopCh:               make(chan struct{}),
		rootCtx:              ctx,
		rootCancel:           cancel,
	}
}

func (w *Watcher) Connect(ctx context.Context) error {
	switch w.State() {
	case ConnConnected, ConnConnecting:
		return nil
	}
	w.setState(ConnConnecting)
	if err := w.dial(ctx); err != nil {
		w.setState(ConnFailed)
		return err
	}
	return nil
}

func (w *Watcher) dial(ctx context.Context) error {
	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(dialCtx, w.wsURL, &websocket.DialOptions{
		CompressionMode: websocket.CompressionNoContextTakeover,
	})
	if err != nil {
		return err
	}
	w.connM.Lock()
	w.conn = conn
	w.connM.Unlock()
	w.setState(ConnConnected)

	w.wg.Add(2)
	go w.listen(conn)
	go w.pingLoop(conn)
	return nil
}

func (w *Watcher) listen(conn *websocket.Conn) {
	defer w.wg.Done()
	for {
		var st chessdto.GameState
		if err := wsjson.Read(w.rootCtx, conn, &st); err != nil {
			if w.isStopping() {
				return
			}
			_ = conn.CloseNow()
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				w.setState(ConnClosed)
				return
			}
			obslog.L().Debug("watch_read_error", zap.String("url", w.wsURL), zap.Error(err))
			w.setState(ConnDisconnected)
			w.scheduleReconnect()
			return
		}

		w.cbM.RLock()
		callbacks := make([]stateEntry, len(w.stateCbs))
		copy(callbacks, w.stateCbs)
		w.cbM.RUnlock()
		for _, entry := range callbacks {
			entry.callback(&st)
		}
	}
}

func (w *Watcher) pingLoop(conn *websocket.Conn) {
	defer w.wg.Done()
	t := time.NewTicker(w.pingInterval)
	defer t.Stop()
	failures := 0
	for {
		select {
		case <-w.stopCh:
			return
		case <-w.rootCtx.Done():
			return
		case <-t.C:
			ctx, cancel := context.WithTimeout(w.rootCtx, 3*time.Second)
			err := conn.Ping(ctx)
			cancel()
			if err == nil {
				failures = 0
				continue
			}
			if w.isStopping() || w.State() != ConnConnected {
				return
			}
			failures++
			if failures >= 2 {
				// listen sees the closed connection and reconnects
				_ = conn.Close(websocket.StatusGoingAway, "ping failure")
				return
			}
		}
	}
}

func (w *Watcher) scheduleReconnect() {
	if w.maxReconnectAttempts <= 0 {
		w.setState(ConnFailed)
		return
	}
	w.setState(ConnReconnecting)

	go func() {
		for attempt := 1; attempt <= w.maxReconnectAttempts; attempt++ {
			select {
			case <-w.stopCh:
				return
			case <-time.After(backoffDuration(attempt)):
			}
			if err := w.dial(w.rootCtx); err == nil {
				return
			}
		}
		w.setState(ConnFailed)
	}()
}

// OnState registers a callback for every received state. Callbacks run on
// the reader goroutine.
func (w *Watcher) OnState(cb StateCallback) int {
	w.cbM.Lock()
	defer w.cbM.Unlock()
	w.nextID++
	w.stateCbs = append(w.stateCbs, stateEntry{id: w.nextID, callback: cb})
	return w.nextID
}

func (w *Watcher) RemoveStateCallback(id int) {
	w.cbM.Lock()
	defer w.cbM.Unlock()
	for i, cb := range w.stateCbs {
		if cb.id == id {
			w.stateCbs = append(w.stateCbs[:i], w.stateCbs[i+1:]...)
			break
		}
	}
}

func (w *Watcher) OnConnState(cb ConnCallback) int {
	w.cbM.Lock()
	defer w.cbM.Unlock()
	w.nextID++
	w.connCbs = append(w.connCbs, connEntry{id: w.nextID, callback: cb})
	return w.nextID
}

func (w *Watcher) RemoveConnCallback(id int) {
	w.cbM.Lock()
	defer w.cbM.Unlock()
	for i, cb := range w.connCbs {
		if cb.id == id {
			w.connCbs = append(w.connCbs[:i], w.connCbs[i+1:]...)
			break
		}
	}
}

func (w *Watcher) State() ConnState {
	w.stateM.RLock()
	defer w.stateM.RUnlock()
	return w.state
}

func (w *Watcher) setState(state ConnState) {
	w.stateM.Lock()
	w.state = state
	w.stateM.Unlock()

	w.cbM.RLock()
	callbacks := make([]connEntry, len(w.connCbs))
	copy(callbacks, w.connCbs)
	w.cbM.RUnlock()
	for _, entry := range callbacks {
		entry.callback(state)
	}
}

func (w *Watcher) Close(ctx context.Context) error {
	w.stopOnce.Do(func() { close(w.stopCh) })
	w.connM.Lock()
	if w.conn != nil {
		_ = w.conn.Close(websocket.StatusNormalClosure, "close")
	}
	w.connM.Unlock()
	w.rootCancel()

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

func (w *Watcher) isStopping() bool {
	select {
	case <-w.stopCh:
		return true
	default:
		return false
	}
}
