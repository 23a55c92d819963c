package main

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	apisrv "github.com/compose-network/radiolink/server/api"
	"github.com/compose-network/radiolink/x/codec"
	"github.com/compose-network/radiolink/x/decoder"
	"github.com/compose-network/radiolink/x/events"
	"github.com/compose-network/radiolink/x/modem"
	"github.com/compose-network/radiolink/x/pending"
	"github.com/compose-network/radiolink/x/poller"
	"github.com/compose-network/radiolink/x/protocol"
)

const (
	maxRequestBody  = 64 << 10
	eventQueueDepth = 256
	wsWriteTimeout  = 10 * time.Second
)

// handler serves the modem debug endpoints.
type handler struct {
	client   *modem.Client
	poller   *poller.Poller
	timeout  time.Duration
	log      zerolog.Logger
	upgrader websocket.Upgrader
}

func newHandler(client *modem.Client, p *poller.Poller, timeout time.Duration, log zerolog.Logger) *handler {
	return &handler{
		client:  client,
		poller:  p,
		timeout: timeout,
		log:     log.With().Str("component", "api-handlers").Logger(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
	}
}

// Register mounts every route on r.
func (h *handler) Register(r *mux.Router) {
	r.HandleFunc("/health", h.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/ready", h.handleReady).Methods(http.MethodGet)
	r.HandleFunc("/stats", h.handleStats).Methods(http.MethodGet)
	r.HandleFunc("/decoders", h.handleDecoders).Methods(http.MethodGet)
	r.HandleFunc("/polls", h.handlePolls).Methods(http.MethodGet)
	r.HandleFunc("/requests", h.handleIssue).Methods(http.MethodPost)
	r.HandleFunc("/requests/history", h.handleHistory).Methods(http.MethodGet)
	r.HandleFunc("/events/ws", h.handleEvents).Methods(http.MethodGet)
}

func (h *handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	apisrv.WriteJSON(w, http.StatusOK, map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *handler) handleReady(w http.ResponseWriter, _ *http.Request) {
	status, code := "ready", http.StatusOK
	if !h.client.Connected() {
		status, code = "no_modem", http.StatusServiceUnavailable
	}
	apisrv.WriteJSON(w, code, map[string]any{
		"status":     status,
		"session_id": h.client.SessionID(),
	})
}

func (h *handler) handleStats(w http.ResponseWriter, _ *http.Request) {
	apisrv.WriteJSON(w, http.StatusOK, map[string]any{
		"app_version":    Version,
		"app_build_time": BuildTime,
		"app_git_commit": GitCommit,
		"modem":          h.client.Stats(),
	})
}

func (h *handler) handleDecoders(w http.ResponseWriter, _ *http.Request) {
	apisrv.WriteJSON(w, http.StatusOK, map[string]any{
		"chain":    h.client.Chain().Name(),
		"decoders": h.client.Chain().Describe(),
	})
}

func (h *handler) handlePolls(w http.ResponseWriter, _ *http.Request) {
	results := []poller.Result{}
	if h.poller != nil {
		results = h.poller.Results()
	}
	apisrv.WriteJSON(w, http.StatusOK, map[string]any{"polls": results})
}

type historyEntry struct {
	Serial    uint32    `json:"serial"`
	Code      string    `json:"code"`
	Outcome   string    `json:"outcome"`
	Error     string    `json:"error,omitempty"`
	IssuedAt  time.Time `json:"issued_at"`
	LatencyMS float64   `json:"latency_ms"`
}

func (h *handler) handleHistory(w http.ResponseWriter, _ *http.Request) {
	hist := h.client.History()
	out := make([]historyEntry, 0, len(hist))
	for _, c := range hist {
		e := historyEntry{
			Serial:    c.Serial,
			Code:      c.Code.String(),
			Outcome:   c.Outcome,
			IssuedAt:  c.IssuedAt,
			LatencyMS: float64(c.Latency().Microseconds()) / 1000,
		}
		if c.Err != nil {
			e.Error = c.Err.Error()
		}
		out = append(out, e)
	}
	apisrv.WriteJSON(w, http.StatusOK, out)
}

type issueRequest struct {
	Code    int32    `json:"code"`
	Strings []string `json:"strings,omitempty"`
	Ints    []int32  `json:"ints,omitempty"`
	Timeout string   `json:"timeout,omitempty"`
}

type issueResponse struct {
	Code  string `json:"code"`
	Value any    `json:"value"`
}

func (h *handler) handleIssue(w http.ResponseWriter, r *http.Request) {
	var req issueRequest
	if err := apisrv.DecodeJSON(w, r, maxRequestBody, &req); err != nil {
		apisrv.WriteError(w, r, http.StatusBadRequest, "invalid_body", "request body must be JSON", err.Error())
		return
	}
	if req.Strings != nil && req.Ints != nil {
		apisrv.WriteError(w, r, http.StatusBadRequest, "invalid_body", "set strings or ints, not both", nil)
		return
	}

	timeout := h.timeout
	if req.Timeout != "" {
		d, err := time.ParseDuration(req.Timeout)
		if err != nil || d <= 0 {
			apisrv.WriteError(w, r, http.StatusBadRequest, "invalid_timeout", "timeout must be a positive duration", req.Timeout)
			return
		}
		timeout = d
	}

	var payload []byte
	var err error
	switch {
	case req.Strings != nil:
		payload, err = codec.Encode(req.Strings)
	case req.Ints != nil:
		payload, err = codec.Encode(req.Ints)
	}
	if err != nil {
		apisrv.WriteError(w, r, http.StatusBadRequest, "invalid_payload", "payload could not be encoded", err.Error())
		return
	}

	code := protocol.RequestCode(req.Code)
	value, err := h.client.Call(r.Context(), code, payload, modem.WithTimeout(timeout))
	if err != nil {
		h.writeCallError(w, r, code, err)
		return
	}
	apisrv.WriteJSON(w, http.StatusOK, issueResponse{Code: code.String(), Value: value})
}

func (h *handler) writeCallError(w http.ResponseWriter, r *http.Request, code protocol.RequestCode, err error) {
	var remote *pending.RemoteError
	switch {
	case errors.As(err, &remote):
		apisrv.WriteError(w, r, http.StatusBadGateway, "remote_error", err.Error(), map[string]any{
			"error_code": int32(remote.Code),
			"error_name": remote.Code.String(),
		})
	case errors.Is(err, pending.ErrRequestTimeout), errors.Is(err, context.DeadlineExceeded):
		apisrv.WriteError(w, r, http.StatusGatewayTimeout, "timeout", err.Error(), nil)
	case errors.Is(err, pending.ErrTransportUnavailable):
		apisrv.WriteError(w, r, http.StatusServiceUnavailable, "transport_unavailable", err.Error(), nil)
	case errors.Is(err, decoder.ErrUnknownCode):
		apisrv.WriteError(w, r, http.StatusUnprocessableEntity, "unknown_code", err.Error(), code.String())
	case errors.Is(err, modem.ErrPayloadTooLarge):
		apisrv.WriteError(w, r, http.StatusRequestEntityTooLarge, "payload_too_large", err.Error(), nil)
	case errors.Is(err, modem.ErrClientClosed), errors.Is(err, pending.ErrSerialsExhausted):
		apisrv.WriteError(w, r, http.StatusServiceUnavailable, "unavailable", err.Error(), nil)
	default:
		apisrv.WriteError(w, r, http.StatusInternalServerError, "request_failed", err.Error(), nil)
	}
}

type eventMessage struct {
	Code       int32     `json:"code"`
	Name       string    `json:"name"`
	Value      any       `json:"value"`
	ReceivedAt time.Time `json:"received_at"`
}

// handleEvents streams decoded events for ?code=N (repeatable) until the
// socket closes. Replay codes deliver their buffered value first.
func (h *handler) handleEvents(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query()["code"]
	if len(raw) == 0 {
		apisrv.WriteError(w, r, http.StatusBadRequest, "missing_code", "at least one code query parameter is required", nil)
		return
	}
	codes := make([]protocol.EventCode, 0, len(raw))
	for _, s := range raw {
		n, err := strconv.ParseInt(s, 10, 32)
		if err != nil {
			apisrv.WriteError(w, r, http.StatusBadRequest, "invalid_code", "code must be an integer", s)
			return
		}
		codes = append(codes, protocol.EventCode(n))
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("Websocket upgrade failed")
		return
	}
	defer ws.Close()

	queue := make(chan eventMessage, eventQueueDepth)
	onEvent := func(code protocol.EventCode, v any) {
		select {
		case queue <- eventMessage{Code: int32(code), Name: code.String(), Value: v, ReceivedAt: time.Now().UTC()}:
		default:
			h.log.Warn().Str("code", code.String()).Msg("Websocket subscriber queue full, dropping event")
		}
	}

	tokens := make([]events.Token, 0, len(codes))
	for _, code := range codes {
		tokens = append(tokens, h.client.Watch(code, onEvent))
	}
	defer func() {
		for _, t := range tokens {
			h.client.Unsubscribe(t)
		}
	}()

	h.log.Info().Int("codes", len(codes)).Str("remote_addr", r.RemoteAddr).Msg("Event stream opened")

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-closed:
			h.log.Info().Str("remote_addr", r.RemoteAddr).Msg("Event stream closed")
			return
		case msg := <-queue:
			_ = ws.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := ws.WriteJSON(msg); err != nil {
				h.log.Debug().Err(err).Msg("Event stream write failed")
				return
			}
		}
	}
}
