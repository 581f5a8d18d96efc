package polymarket

// ws.go — stream de mejores precios del canal de mercado del CLOB.
//
// Una goroutine lectora por conexión decodifica los mensajes y publica
// BookUpdate en un canal con buffer. Si la conexión cae se reintenta con
// backoff exponencial y se vuelve a suscribir. MaxReconnects acota las
// conexiones fallidas consecutivas: sólo una conexión sana (que entregó algún
// mensaje o aguantó minHealthyConn) reinicia la cuenta. Agotados los intentos
// se publica ErrStreamDisconnect en el canal de errores.

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alejandrodnm/polysniper/internal/domain"
)

const (
	wsWriteWait      = 5 * time.Second
	wsReadTimeout    = 30 * time.Second
	wsPingPeriod     = 10 * time.Second
	wsUpdateBuffer   = 256
	maxReconnectWait = 10 * time.Second
	minHealthyConn   = wsPingPeriod
)

// StreamConfig controla la reconexión del stream.
type StreamConfig struct {
	MaxReconnects int
	ReconnectBase time.Duration
}

// DefaultStreamConfig: 5 reintentos empezando en 500ms.
func DefaultStreamConfig() StreamConfig {
	return StreamConfig{MaxReconnects: 5, ReconnectBase: 500 * time.Millisecond}
}

// Stream implementa ports.BookStream sobre gorilla/websocket.
type Stream struct {
	url    string
	cfg    StreamConfig
	dialer websocket.Dialer
}

// NewStream crea un Stream contra wsURL (vacío = producción).
func NewStream(wsURL string, cfg StreamConfig) *Stream {
	if wsURL == "" {
		wsURL = defaultWSURL
	}
	if cfg.MaxReconnects < 0 {
		cfg.MaxReconnects = 0
	}
	if cfg.ReconnectBase <= 0 {
		cfg.ReconnectBase = DefaultStreamConfig().ReconnectBase
	}
	return &Stream{
		url: wsURL,
		cfg: cfg,
		dialer: websocket.Dialer{
			HandshakeTimeout: 10 * time.Second,
			Proxy:            http.ProxyFromEnvironment,
		},
	}
}

// NewBookStream devuelve un Stream contra el endpoint WS del client.
func (c *Client) NewBookStream(cfg StreamConfig) *Stream {
	return NewStream(c.wsURL, cfg)
}

// Stream se suscribe a tokenIDs y publica actualizaciones hasta que ctx se
// cancele o se agoten las reconexiones.
func (s *Stream) Stream(ctx context.Context, tokenIDs []string) (<-chan domain.BookUpdate, <-chan error) {
	updates := make(chan domain.BookUpdate, wsUpdateBuffer)
	errs := make(chan error, 1)

	go func() {
		defer close(updates)
		defer close(errs)

		attempt := 0
		for {
			healthy, err := s.runConn(ctx, tokenIDs, updates)
			if ctx.Err() != nil {
				return
			}
			if healthy {
				attempt = 0
			}
			attempt++
			if attempt > s.cfg.MaxReconnects {
				errs <- fmt.Errorf("polymarket.Stream: after %d attempts: %w: %w", attempt, domain.ErrStreamDisconnect, err)
				return
			}

			wait := s.backoff(attempt)
			slog.Warn("stream: connection lost, reconnecting",
				"attempt", attempt,
				"max", s.cfg.MaxReconnects,
				"wait", wait,
				"err", err,
			)
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return
			}
		}
	}()

	return updates, errs
}

func (s *Stream) backoff(attempt int) time.Duration {
	wait := s.cfg.ReconnectBase << (attempt - 1)
	if wait <= 0 || wait > maxReconnectWait {
		wait = maxReconnectWait
	}
	return wait
}

// runConn mantiene una conexión hasta que falle. healthy indica si la conexión
// llegó a entregar mensajes o duró al menos minHealthyConn.
func (s *Stream) runConn(ctx context.Context, tokenIDs []string, out chan<- domain.BookUpdate) (healthy bool, err error) {
	conn, _, err := s.dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return false, fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	opened := time.Now()
	received := false
	defer func() {
		healthy = received || time.Since(opened) >= minHealthyConn
	}()

	sub := wsSubscribe{Type: "subscribe", Channel: "market", AssetsIDs: tokenIDs}
	conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	if err := conn.WriteJSON(sub); err != nil {
		return false, fmt.Errorf("subscribe: %w", err)
	}
	slog.Debug("stream: subscribed", "tokens", len(tokenIDs))

	// Cerrar la conexión desbloquea ReadMessage cuando ctx se cancela.
	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(wsPingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				conn.Close()
				return
			case <-done:
				return
			case <-ticker.C:
				conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
				if err := conn.WriteMessage(websocket.TextMessage, []byte("PING")); err != nil {
					return
				}
			}
		}
	}()

	for {
		conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return false, fmt.Errorf("read: %w", err)
		}
		received = true

		for _, u := range decodeWSPayload(raw, time.Now()) {
			select {
			case out <- u:
			case <-ctx.Done():
				return false, ctx.Err()
			}
		}
	}
}

// decodeWSPayload acepta un objeto o un array de objetos. Cada elemento se
// decodifica por separado: los malformados se descartan y el resto se aplica.
func decodeWSPayload(raw []byte, at time.Time) []domain.BookUpdate {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || (raw[0] != '{' && raw[0] != '[') {
		return nil // PONG u otros textos de control
	}

	elems := []json.RawMessage{raw}
	if raw[0] == '[' {
		if err := json.Unmarshal(raw, &elems); err != nil {
			slog.Debug("stream: dropped malformed message", "err", err)
			return nil
		}
	}

	var updates []domain.BookUpdate
	for _, e := range elems {
		var m wsMessage
		if err := json.Unmarshal(e, &m); err != nil {
			slog.Debug("stream: dropped malformed message", "err", err)
			continue
		}
		updates = append(updates, mapWSMessage(m, at)...)
	}
	return updates
}
