package tradernet

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"nhooyr.io/websocket"
)

const (
	fillStreamDialTimeout    = 30 * time.Second
	fillStreamBaseReconnect  = 5 * time.Second
	fillStreamMaxReconnect   = 2 * time.Minute
	fillStreamMaxReconnTries = 10
)

// FillEvent is one asynchronous fill confirmation pushed by the Tradernet
// microservice after an order is accepted. An order can arrive over
// several fill events when partially filled.
type FillEvent struct {
	OrderID     string    `json:"order_id"`
	RequestID   string    `json:"request_id"`
	Symbol      string    `json:"symbol"`
	FilledQty   float64   `json:"filled_qty"`
	FilledPrice float64   `json:"filled_price"`
	Status      string    `json:"status"`
	Timestamp   time.Time `json:"timestamp"`
}

// FillStream maintains a websocket connection to the microservice's fill
// feed and hands each decoded FillEvent to the configured handler. It
// reconnects with exponential backoff on disconnect, mirroring the
// microservice's REST client in treating transport errors as transient.
type FillStream struct {
	url        string
	httpClient *http.Client
	onFill     func(FillEvent)
	log        zerolog.Logger

	mu      sync.Mutex
	conn    *websocket.Conn
	cancel  context.CancelFunc
	stopped bool
}

// NewFillStream builds a FillStream that calls onFill for every decoded
// event. The websocket URL is the microservice's ws(s):// fill endpoint.
func NewFillStream(url string, onFill func(FillEvent), log zerolog.Logger) *FillStream {
	return &FillStream{
		url:        url,
		httpClient: http1Client(),
		onFill:     onFill,
		log:        log.With().Str("component", "tradernet_fill_stream").Logger(),
	}
}

// http1Client forces HTTP/1.1: the websocket upgrade handshake needs it,
// and a TLS-terminating proxy in front of the microservice may otherwise
// negotiate HTTP/2 via ALPN and break the upgrade.
func http1Client() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			DialContext: (&net.Dialer{Timeout: fillStreamDialTimeout, KeepAlive: 30 * time.Second}).DialContext,
			TLSClientConfig: &tls.Config{
				NextProtos: []string{"http/1.1"},
			},
			ForceAttemptHTTP2: false,
		},
	}
}

// Start connects and begins the read loop in the background, reconnecting
// on failure until Stop is called. It returns immediately; connection
// errors are logged, not returned, since the fill stream augments order
// status but its absence never blocks order submission itself.
func (s *FillStream) Start(ctx context.Context) {
	go s.reconnectLoop(ctx)
}

// Stop closes the active connection and prevents further reconnects.
func (s *FillStream) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	if s.cancel != nil {
		s.cancel()
	}
	if s.conn != nil {
		_ = s.conn.Close(websocket.StatusNormalClosure, "shutting down")
	}
}

func (s *FillStream) reconnectLoop(ctx context.Context) {
	delay := fillStreamBaseReconnect
	for attempt := 0; attempt < fillStreamMaxReconnTries; attempt++ {
		s.mu.Lock()
		if s.stopped {
			s.mu.Unlock()
			return
		}
		s.mu.Unlock()

		connCtx, cancel := context.WithCancel(ctx)
		conn, _, err := websocket.Dial(connCtx, s.url, &websocket.DialOptions{HTTPClient: s.httpClient})
		if err != nil {
			cancel()
			s.log.Warn().Err(err).Int("attempt", attempt+1).Dur("retry_in", delay).Msg("fill stream dial failed")
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
			if delay *= 2; delay > fillStreamMaxReconnect {
				delay = fillStreamMaxReconnect
			}
			continue
		}

		s.mu.Lock()
		s.conn = conn
		s.cancel = cancel
		s.mu.Unlock()

		delay = fillStreamBaseReconnect
		s.log.Info().Msg("fill stream connected")
		s.readLoop(connCtx, conn)

		s.mu.Lock()
		stopped := s.stopped
		s.mu.Unlock()
		if stopped {
			return
		}
	}
	s.log.Error().Msg("fill stream exhausted reconnect attempts, giving up")
}

func (s *FillStream) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			s.log.Warn().Err(err).Msg("fill stream read failed, reconnecting")
			return
		}

		var evt FillEvent
		if err := json.Unmarshal(data, &evt); err != nil {
			s.log.Warn().Err(err).Msg("fill stream received unparseable message")
			continue
		}
		s.onFill(evt)
	}
}
