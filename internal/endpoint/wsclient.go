package endpoint

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"docgofer/internal/analysis"
)

// wsRequest is one batch request frame on the streaming connection
type wsRequest struct {
	ID        int64               `json:"id"`
	Operation string              `json:"operation"`
	Documents []analysis.Document `json:"documents"`
}

// wsResponse is one batch response frame; the ID echoes the request frame
type wsResponse struct {
	ID           int64                    `json:"id"`
	Documents    []json.RawMessage        `json:"documents"`
	Errors       []analysis.DocumentError `json:"errors,omitempty"`
	ModelVersion string                   `json:"modelVersion,omitempty"`
	Error        *analysis.Error          `json:"error,omitempty"`
}

// WSClient owns a single streaming connection to an analysis endpoint.
// Concurrent batch requests are multiplexed on the connection and matched
// back by frame ID.
type WSClient struct {
	wsURL             string
	key               string
	messageTimeout    time.Duration
	reconnectInterval time.Duration
	logger            zerolog.Logger

	conn    *websocket.Conn
	connMu  sync.RWMutex
	writeMu sync.Mutex

	pending   map[int64]chan *wsResponse
	pendingMu sync.Mutex
	frameID   int64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWSClient creates a new streaming client for an endpoint
func NewWSClient(wsURL string, key string, messageTimeout time.Duration, reconnectInterval time.Duration, logger zerolog.Logger) *WSClient {
	ctx, cancel := context.WithCancel(context.Background())
	return &WSClient{
		wsURL:             wsURL,
		key:               key,
		messageTimeout:    messageTimeout,
		reconnectInterval: reconnectInterval,
		logger:            logger,
		pending:           make(map[int64]chan *wsResponse),
		ctx:               ctx,
		cancel:            cancel,
	}
}

// Connect establishes the streaming connection and starts the reader goroutine
func (c *WSClient) Connect(ctx context.Context) error {
	c.connMu.Lock()
	if c.conn != nil {
		c.connMu.Unlock()
		return nil
	}
	c.connMu.Unlock()

	c.logger.Info().Str("url", c.wsURL).Msg("streaming connection connecting")
	conn, err := c.dial(ctx)
	if err != nil {
		return fmt.Errorf("failed to connect streaming endpoint: %w", err)
	}

	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()

	c.logger.Info().Msg("streaming connection established")
	c.wg.Add(1)
	go c.readLoop()
	return nil
}

func (c *WSClient) dial(ctx context.Context) (*websocket.Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	header := http.Header{}
	header.Set(keyHeader, c.key)
	conn, _, err := dialer.DialContext(ctx, c.wsURL, header)
	return conn, err
}

// Connected returns true if the connection is established
func (c *WSClient) Connected() bool {
	c.connMu.RLock()
	ok := c.conn != nil
	c.connMu.RUnlock()
	return ok
}

// Close closes the connection and stops the reader
func (c *WSClient) Close() {
	c.cancel()
	c.connMu.Lock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.connMu.Unlock()

	c.pendingMu.Lock()
	for _, ch := range c.pending {
		close(ch)
	}
	c.pending = make(map[int64]chan *wsResponse)
	c.pendingMu.Unlock()

	c.wg.Wait()
	c.logger.Info().Msg("streaming connection closed")
}

// Send sends one batch request frame and waits for the matching response
func (c *WSClient) Send(ctx context.Context, op string, req *analysis.BatchRequest) (*analysis.BatchResponse, error) {
	c.connMu.RLock()
	conn := c.conn
	c.connMu.RUnlock()

	if conn == nil {
		return nil, fmt.Errorf("streaming connection not established")
	}

	frameID := atomic.AddInt64(&c.frameID, 1)
	respChan := make(chan *wsResponse, 1)

	c.pendingMu.Lock()
	c.pending[frameID] = respChan
	c.pendingMu.Unlock()

	frame := wsRequest{ID: frameID, Operation: op, Documents: req.Documents}
	frameBytes, err := json.Marshal(frame)
	if err != nil {
		c.dropPending(frameID)
		return nil, fmt.Errorf("failed to marshal request frame: %w", err)
	}

	c.writeMu.Lock()
	writeErr := conn.WriteMessage(websocket.TextMessage, frameBytes)
	c.writeMu.Unlock()
	if writeErr != nil {
		c.dropPending(frameID)
		return nil, fmt.Errorf("failed to send request frame: %w", writeErr)
	}

	select {
	case resp := <-respChan:
		if resp == nil {
			return nil, fmt.Errorf("streaming connection closed")
		}
		if resp.Error != nil {
			return nil, fmt.Errorf("batch rejected: %s", resp.Error.Error())
		}
		return &analysis.BatchResponse{
			Documents:    resp.Documents,
			Errors:       resp.Errors,
			ModelVersion: resp.ModelVersion,
		}, nil
	case <-ctx.Done():
		c.dropPending(frameID)
		return nil, ctx.Err()
	}
}

func (c *WSClient) dropPending(frameID int64) {
	c.pendingMu.Lock()
	delete(c.pending, frameID)
	c.pendingMu.Unlock()
}

func (c *WSClient) readLoop() {
	defer c.wg.Done()

	readTimeout := c.messageTimeout
	if readTimeout == 0 {
		readTimeout = 60 * time.Second
	}

	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}

		c.connMu.RLock()
		conn := c.conn
		c.connMu.RUnlock()

		if conn == nil {
			c.logger.Info().Msg("streaming reader stopped (no connection)")
			return
		}

		conn.SetReadDeadline(time.Now().Add(readTimeout))
		_, data, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-c.ctx.Done():
				c.logger.Info().Msg("streaming reader stopped (shutdown)")
				return
			default:
			}

			c.logger.Warn().Err(err).Msg("streaming connection lost, reconnecting")
			if c.reconnect() {
				continue
			}
			c.logger.Info().Msg("streaming reader stopped (shutdown)")
			return
		}

		c.dispatchFrame(data)
	}
}

// dispatchFrame routes a response frame to the pending request that sent it
func (c *WSClient) dispatchFrame(data []byte) {
	var resp wsResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		c.logger.Warn().Err(err).Int("len", len(data)).Msg("streaming frame parse error")
		return
	}

	c.pendingMu.Lock()
	ch, exists := c.pending[resp.ID]
	if exists {
		delete(c.pending, resp.ID)
	}
	c.pendingMu.Unlock()

	if !exists {
		c.logger.Warn().Int64("frameId", resp.ID).Msg("response frame for unknown request")
		return
	}

	select {
	case ch <- &resp:
	default:
	}
}

// reconnect fails all pending requests and re-dials until connected or shutdown
func (c *WSClient) reconnect() bool {
	c.connMu.Lock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.connMu.Unlock()

	// In-flight requests cannot be replayed on the new connection
	c.pendingMu.Lock()
	for _, ch := range c.pending {
		select {
		case ch <- nil:
		default:
		}
	}
	c.pending = make(map[int64]chan *wsResponse)
	c.pendingMu.Unlock()

	interval := c.reconnectInterval
	if interval < 3*time.Second {
		interval = 3 * time.Second
	}

	for {
		select {
		case <-c.ctx.Done():
			c.logger.Info().Msg("streaming reconnection stopped (shutdown)")
			return false
		case <-time.After(interval):
		}

		ctx, cancel := context.WithTimeout(c.ctx, 30*time.Second)
		conn, err := c.dial(ctx)
		cancel()
		if err != nil {
			c.logger.Warn().Err(err).Dur("nextRetry", interval).Msg("streaming reconnection failed, will retry")
			continue
		}

		c.connMu.Lock()
		c.conn = conn
		c.connMu.Unlock()

		c.logger.Info().Msg("streaming connection reestablished")
		return true
	}
}
