package exchange

import (
	"context"
	"net/http"
	"strings"

	"github.com/alanyoungcy/marketclient/internal/domain"
)

// Transport names accepted by NewTransport.
const (
	TransportAuto = "auto"
	TransportSSE  = "sse"
	TransportWS   = "ws"
)

// AutoTransport dials ws:// and wss:// URLs over WebSocket and everything
// else as server-sent events.
type AutoTransport struct {
	SSE *SSETransport
	WS  *WSTransport
}

// Dial picks the transport from the URL scheme.
func (t *AutoTransport) Dial(ctx context.Context, url string) (domain.StreamConn, error) {
	if isWebSocketURL(url) {
		return t.WS.Dial(ctx, url)
	}
	return t.SSE.Dial(ctx, url)
}

// NewTransport returns the transport for name ("auto", "sse" or "ws").
// Unknown names fall back to "auto".
func NewTransport(name string, hc *http.Client) domain.StreamTransport {
	switch strings.ToLower(name) {
	case TransportSSE:
		return NewSSETransport(hc)
	case TransportWS:
		return NewWSTransport()
	default:
		return &AutoTransport{SSE: NewSSETransport(hc), WS: NewWSTransport()}
	}
}

func isWebSocketURL(url string) bool {
	u := strings.ToLower(url)
	return strings.HasPrefix(u, "ws://") || strings.HasPrefix(u, "wss://")
}
