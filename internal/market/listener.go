package market

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/gorilla/websocket"
)

// ListenerConfig configures BlockListener behavior.
type ListenerConfig struct {
	// ReconnectDelay is initial delay before reconnect attempt.
	ReconnectDelay time.Duration
	// MaxReconnectDelay is maximum delay between reconnect attempts.
	MaxReconnectDelay time.Duration
	// ReadTimeout is timeout for reading messages.
	ReadTimeout time.Duration
	// WriteTimeout is timeout for writing messages.
	WriteTimeout time.Duration
}

// DefaultListenerConfig returns default listener configuration.
func DefaultListenerConfig() ListenerConfig {
	return ListenerConfig{
		ReconnectDelay:    1 * time.Second,
		MaxReconnectDelay: 30 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      10 * time.Second,
	}
}

// BlockEvent is a push notification that a new block (slot) landed.
// The agent uses it to trigger an early market-update cycle.
type BlockEvent struct {
	Slot       uint64
	ReceivedAt time.Time
}

// BlockListener subscribes to slot notifications over WebSocket and
// emits them on Events. Connection drops are retried with exponential
// backoff until the context is cancelled; subscribers see a quiet
// channel during the gap, never an error.
type BlockListener struct {
	endpoint string
	config   ListenerConfig
	logger   *log.Logger
	events   chan BlockEvent
}

// NewBlockListener creates a listener for the WebSocket endpoint.
func NewBlockListener(endpoint string, config *ListenerConfig, logger *log.Logger) *BlockListener {
	cfg := DefaultListenerConfig()
	if config != nil {
		cfg = *config
	}
	return &BlockListener{
		endpoint: endpoint,
		config:   cfg,
		logger:   logger,
		events:   make(chan BlockEvent, 16),
	}
}

// Events is the notification channel. Closed when Run returns.
func (l *BlockListener) Events() <-chan BlockEvent {
	return l.events
}

// Run connects, subscribes, and pumps notifications until ctx is
// cancelled. Always returns ctx.Err().
func (l *BlockListener) Run(ctx context.Context) error {
	defer close(l.events)

	delay := l.config.ReconnectDelay
	for {
		received, err := l.listenOnce(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if received {
			// the connection was healthy before it dropped; restart
			// the backoff schedule
			delay = l.config.ReconnectDelay
		}
		if err != nil {
			l.logf("slot subscription dropped: %v, reconnecting in %s", err, delay)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
		if delay > l.config.MaxReconnectDelay {
			delay = l.config.MaxReconnectDelay
		}
	}
}

type wsRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params,omitempty"`
}

type slotNotification struct {
	Method string `json:"method"`
	Params struct {
		Result struct {
			Slot uint64 `json:"slot"`
		} `json:"result"`
	} `json:"params"`
}

// listenOnce runs a single connection lifetime: dial, subscribe, read
// until the connection or context dies. received reports whether at
// least one read succeeded before the drop.
func (l *BlockListener) listenOnce(ctx context.Context) (received bool, _ error) {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, l.endpoint, nil)
	if err != nil {
		return false, fmt.Errorf("websocket dial: %w", err)
	}
	defer conn.Close()

	// close the connection when ctx dies so ReadMessage unblocks
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-stop:
		}
	}()

	sub, err := json.Marshal(wsRequest{JSONRPC: "2.0", ID: 1, Method: "slotSubscribe"})
	if err != nil {
		return false, fmt.Errorf("marshal subscribe: %w", err)
	}
	conn.SetWriteDeadline(time.Now().Add(l.config.WriteTimeout))
	if err := conn.WriteMessage(websocket.TextMessage, sub); err != nil {
		return false, fmt.Errorf("subscribe: %w", err)
	}

	for {
		conn.SetReadDeadline(time.Now().Add(l.config.ReadTimeout))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return received, ctx.Err()
			}
			return received, fmt.Errorf("read: %w", err)
		}
		received = true

		var note slotNotification
		if err := json.Unmarshal(msg, &note); err != nil || note.Method != "slotNotification" {
			// subscription confirmations and unrelated frames
			continue
		}

		event := BlockEvent{Slot: note.Params.Result.Slot, ReceivedAt: time.Now()}
		select {
		case l.events <- event:
		default:
			// a slow consumer drops events rather than stalling the read loop
		}
	}
}

func (l *BlockListener) logf(format string, args ...interface{}) {
	if l.logger != nil {
		l.logger.Printf(format, args...)
	}
}
