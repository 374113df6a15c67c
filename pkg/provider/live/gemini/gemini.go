// Package gemini implements the live.Provider interface for Google's Gemini
// Live API.
//
// It establishes a bidirectional WebSocket connection to the Gemini Live
// endpoint and exchanges JSON messages according to the BidiGenerateContent
// protocol. Audio is transmitted as base64-encoded PCM chunks; every inbound
// server message is translated into one or more live.Event values.
package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"google.golang.org/genai"

	"github.com/MrWong99/hiplay/pkg/audio"
	"github.com/MrWong99/hiplay/pkg/provider/live"
)

// Compile-time assertions that Provider and conn satisfy the live interfaces.
var _ live.Provider = (*Provider)(nil)
var _ live.Conn = (*conn)(nil)

const (
	// DefaultModel is the native-audio model used when none is configured.
	DefaultModel   = "gemini-2.5-flash-native-audio-preview-12-2025"
	defaultBaseURL = "wss://generativelanguage.googleapis.com/ws"

	defaultSetupTimeout = 15 * time.Second
	keepaliveInterval   = 20 * time.Second
	keepaliveTimeout    = 5 * time.Second

	eventBuffer = 128
	readLimit   = 16 << 20
)

// ── Options ────────────────────────────────────────────────────────────────────

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithModel sets the Gemini model used for connections.
func WithModel(model string) Option {
	return func(p *Provider) {
		if model != "" {
			p.model = model
		}
	}
}

// WithBaseURL overrides the base WebSocket URL. Primarily used in tests to
// point at a local mock server.
func WithBaseURL(url string) Option {
	return func(p *Provider) {
		if url != "" {
			p.baseURL = url
		}
	}
}

// WithSetupTimeout bounds how long Connect waits for setupComplete.
func WithSetupTimeout(d time.Duration) Option {
	return func(p *Provider) { p.setupTimeout = d }
}

// ── Provider ───────────────────────────────────────────────────────────────────

// Provider implements live.Provider for Google's Gemini Live API.
type Provider struct {
	apiKey       string
	model        string
	baseURL      string
	setupTimeout time.Duration
}

// New creates a new Gemini Live Provider with the given API key and options.
func New(apiKey string, opts ...Option) *Provider {
	p := &Provider{
		apiKey:       apiKey,
		model:        DefaultModel,
		baseURL:      defaultBaseURL,
		setupTimeout: defaultSetupTimeout,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Connect dials the endpoint, sends the setup message, and waits for
// setupComplete. Failures are returned as *live.ConnectionError.
func (p *Provider) Connect(ctx context.Context, cfg live.Config) (live.Conn, error) {
	wsURL := fmt.Sprintf(
		"%s/google.ai.generativelanguage.v1beta.GenerativeService.BidiGenerateContent?key=%s",
		p.baseURL, url.QueryEscape(p.apiKey),
	)

	ws, resp, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPHeader: http.Header{
			"Content-Type": []string{"application/json"},
		},
	})
	if err != nil {
		ce := &live.ConnectionError{Op: "dial", Err: err, AuthRequired: live.LooksLikeAuth(err.Error())}
		if resp != nil {
			ce.Code = resp.StatusCode
			ce.AuthRequired = ce.AuthRequired ||
				resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden
		}
		return nil, ce
	}
	ws.SetReadLimit(readLimit)

	model := p.model
	if cfg.Model != "" {
		model = cfg.Model
	}

	connCtx, connCancel := context.WithCancel(context.Background())
	c := &conn{
		ws:     ws,
		events: make(chan live.Event, eventBuffer),
		done:   make(chan struct{}),
		ctx:    connCtx,
		cancel: connCancel,
	}

	if err := c.writeJSON(ctx, setupMessage(model, cfg)); err != nil {
		c.abort()
		return nil, &live.ConnectionError{Op: "setup", Err: err}
	}

	setupCtx := ctx
	if p.setupTimeout > 0 {
		var cancel context.CancelFunc
		setupCtx, cancel = context.WithTimeout(ctx, p.setupTimeout)
		defer cancel()
	}
	if err := c.awaitSetup(setupCtx); err != nil {
		c.abort()
		return nil, err
	}

	go c.receiveLoop()
	go c.keepaliveLoop()

	return c, nil
}

// setupMessage builds the initial BidiGenerateContent setup message.
func setupMessage(model string, cfg live.Config) *genai.LiveClientMessage {
	if !strings.HasPrefix(model, "models/") {
		model = "models/" + model
	}
	modalities := cfg.ResponseModalities
	if len(modalities) == 0 {
		modalities = []genai.Modality{genai.ModalityAudio}
	}

	setup := &genai.LiveClientSetup{
		Model: model,
		GenerationConfig: &genai.GenerationConfig{
			ResponseModalities: modalities,
		},
	}
	if cfg.VoiceName != "" {
		setup.GenerationConfig.SpeechConfig = &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: cfg.VoiceName},
			},
		}
	}
	if cfg.SystemInstruction != "" {
		setup.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: cfg.SystemInstruction}},
		}
	}
	if len(cfg.Tools) > 0 {
		setup.Tools = append(setup.Tools, &genai.Tool{FunctionDeclarations: cfg.Tools})
	}
	if cfg.GoogleSearch {
		setup.Tools = append(setup.Tools, &genai.Tool{GoogleSearch: &genai.GoogleSearch{}})
	}
	if cfg.InputTranscription {
		setup.InputAudioTranscription = &genai.AudioTranscriptionConfig{}
	}
	if cfg.OutputTranscription {
		setup.OutputAudioTranscription = &genai.AudioTranscriptionConfig{}
	}
	return &genai.LiveClientMessage{Setup: setup}
}

// ── Protocol message types ─────────────────────────────────────────────────────

// Outbound audio keeps its base64 string as produced by the capture pipeline
// instead of going through genai.Blob, which would decode and re-encode it.
type realtimeInputMessage struct {
	RealtimeInput realtimeInput `json:"realtimeInput"`
}

type realtimeInput struct {
	MediaChunks []mediaChunk `json:"mediaChunks"`
}

type mediaChunk struct {
	MIMEType string `json:"mimeType"`
	Data     string `json:"data"` // base64-encoded
}

// Inbound messages are decoded into local types so that inline audio stays a
// base64 string. A malformed payload then only drops its own chunk.
type serverMessage struct {
	SetupComplete *json.RawMessage `json:"setupComplete,omitempty"`
	ServerContent *serverContent   `json:"serverContent,omitempty"`
	ToolCall      *toolCallMsg     `json:"toolCall,omitempty"`
	GoAway        *json.RawMessage `json:"goAway,omitempty"`
	Error         *geminiError     `json:"error,omitempty"`
}

type geminiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status,omitempty"`
}

type serverContent struct {
	ModelTurn           *modelTurn         `json:"modelTurn,omitempty"`
	TurnComplete        bool               `json:"turnComplete,omitempty"`
	Interrupted         bool               `json:"interrupted,omitempty"`
	InputTranscription  *transcription     `json:"inputTranscription,omitempty"`
	OutputTranscription *transcription     `json:"outputTranscription,omitempty"`
	GroundingMetadata   *groundingMetadata `json:"groundingMetadata,omitempty"`
}

type modelTurn struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inlineData,omitempty"`
}

type inlineData struct {
	MIMEType string `json:"mimeType"`
	Data     string `json:"data"` // base64-encoded
}

type transcription struct {
	Text string `json:"text"`
}

type groundingMetadata struct {
	GroundingChunks []groundingChunk `json:"groundingChunks"`
}

type groundingChunk struct {
	Web *webSource `json:"web,omitempty"`
}

type webSource struct {
	URI   string `json:"uri"`
	Title string `json:"title"`
}

type toolCallMsg struct {
	FunctionCalls []functionCall `json:"functionCalls"`
}

type functionCall struct {
	ID   string         `json:"id"`
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
}

// ── conn ───────────────────────────────────────────────────────────────────────

type conn struct {
	ws     *websocket.Conn
	events chan live.Event

	mu     sync.Mutex
	errVal error
	done   chan struct{}
	closed bool

	ctx    context.Context
	cancel context.CancelFunc
}

// awaitSetup reads until setupComplete arrives or the server rejects the
// configuration.
func (c *conn) awaitSetup(ctx context.Context) error {
	for {
		_, data, err := c.ws.Read(ctx)
		if err != nil {
			return classify("setup", err)
		}
		var msg serverMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		if msg.Error != nil {
			return serverError(msg.Error)
		}
		if msg.SetupComplete != nil {
			return nil
		}
	}
}

// writeJSON marshals v and writes it as a text WebSocket message.
func (c *conn) writeJSON(ctx context.Context, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("gemini: marshal: %w", err)
	}
	return c.ws.Write(ctx, websocket.MessageText, data)
}

// receiveLoop reads messages from the WebSocket and translates them into
// events. It owns the events channel: it emits the terminal Closed event and
// closes the channel when it exits.
func (c *conn) receiveLoop() {
	defer close(c.events)

	for {
		_, data, err := c.ws.Read(c.ctx)
		if err != nil {
			if c.ctx.Err() == nil {
				c.setErr(classify("read", err))
			}
			c.finish()
			return
		}

		var msg serverMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue // skip malformed frames
		}

		if msg.Error != nil {
			c.setErr(serverError(msg.Error))
			c.finish()
			return
		}
		for _, ev := range translate(&msg) {
			select {
			case c.events <- ev:
			case <-c.ctx.Done():
				c.finish()
				return
			}
		}
	}
}

// finish emits the terminal Closed event and releases the socket.
func (c *conn) finish() {
	err := c.Err()
	c.events <- live.Closed{Err: err}
	c.shutdown(websocket.StatusNormalClosure, "session closed")
}

// translate maps one server message to events in protocol order: audio,
// input transcript, output transcript, grounding, interruption, turn
// completion, then tool calls.
func translate(msg *serverMessage) []live.Event {
	var evs []live.Event
	if sc := msg.ServerContent; sc != nil {
		if sc.ModelTurn != nil {
			for _, p := range sc.ModelTurn.Parts {
				if p.InlineData != nil && p.InlineData.Data != "" {
					evs = append(evs, live.AudioChunk{Data: p.InlineData.Data, MIMEType: p.InlineData.MIMEType})
				}
			}
		}
		if sc.InputTranscription != nil && sc.InputTranscription.Text != "" {
			evs = append(evs, live.PartialTranscript{Direction: live.Input, Text: sc.InputTranscription.Text})
		}
		if sc.OutputTranscription != nil && sc.OutputTranscription.Text != "" {
			evs = append(evs, live.PartialTranscript{Direction: live.Output, Text: sc.OutputTranscription.Text})
		}
		if gm := sc.GroundingMetadata; gm != nil {
			var links []live.GroundingLink
			for _, ch := range gm.GroundingChunks {
				if ch.Web != nil {
					links = append(links, live.GroundingLink{Title: ch.Web.Title, URI: ch.Web.URI})
				}
			}
			if len(links) > 0 {
				evs = append(evs, live.Grounding{Links: links})
			}
		}
		if sc.Interrupted {
			evs = append(evs, live.Interrupted{})
		}
		if sc.TurnComplete {
			evs = append(evs, live.TurnComplete{})
		}
	}
	if tc := msg.ToolCall; tc != nil && len(tc.FunctionCalls) > 0 {
		calls := make([]live.FunctionCall, len(tc.FunctionCalls))
		for i, fc := range tc.FunctionCalls {
			calls[i] = live.FunctionCall{ID: fc.ID, Name: fc.Name, Args: fc.Args}
		}
		evs = append(evs, live.ToolCall{Calls: calls})
	}
	return evs
}

// keepaliveLoop sends WebSocket pings to keep the Gemini Live connection alive.
func (c *conn) keepaliveLoop() {
	ticker := time.NewTicker(keepaliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(c.ctx, keepaliveTimeout)
			_ = c.ws.Ping(pingCtx)
			cancel()
		}
	}
}

func (c *conn) setErr(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.errVal == nil {
		c.errVal = err
	}
}

// classify converts a WebSocket error into a *live.ConnectionError. Normal
// closures and session time limits (going away) are reported as nil.
func classify(op string, err error) error {
	var ce websocket.CloseError
	if errors.As(err, &ce) {
		if ce.Code == websocket.StatusNormalClosure || ce.Code == websocket.StatusGoingAway {
			if !live.LooksLikeAuth(ce.Reason) {
				return nil
			}
		}
		return &live.ConnectionError{
			Op:           op,
			Code:         int(ce.Code),
			Reason:       ce.Reason,
			AuthRequired: live.LooksLikeAuth(ce.Reason),
			Err:          err,
		}
	}
	return &live.ConnectionError{Op: op, Err: err, AuthRequired: live.LooksLikeAuth(err.Error())}
}

func serverError(ge *geminiError) error {
	msg := ge.Message
	if msg == "" {
		msg = "unknown error"
	}
	return &live.ConnectionError{
		Op:     "server",
		Code:   ge.Code,
		Reason: msg,
		AuthRequired: ge.Code == http.StatusUnauthorized || ge.Code == http.StatusForbidden ||
			ge.Status == "PERMISSION_DENIED" || ge.Status == "UNAUTHENTICATED" ||
			live.LooksLikeAuth(msg),
	}
}

// ── live.Conn methods ──────────────────────────────────────────────────────────

// SendAudio delivers one captured frame to the model.
func (c *conn) SendAudio(chunk audio.Chunk) error {
	if c.isClosed() {
		return live.ErrClosed
	}
	msg := realtimeInputMessage{
		RealtimeInput: realtimeInput{
			MediaChunks: []mediaChunk{{MIMEType: chunk.MIMEType, Data: chunk.Data}},
		},
	}
	return c.writeJSON(c.ctx, msg)
}

// SendToolResponse answers tool calls.
func (c *conn) SendToolResponse(responses ...*genai.FunctionResponse) error {
	if c.isClosed() {
		return live.ErrClosed
	}
	if len(responses) == 0 {
		return nil
	}
	return c.writeJSON(c.ctx, &genai.LiveClientMessage{
		ToolResponse: &genai.LiveClientToolResponse{FunctionResponses: responses},
	})
}

// Events returns the inbound event stream.
func (c *conn) Events() <-chan live.Event { return c.events }

// Err returns the first error that caused the connection to terminate.
func (c *conn) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.errVal
}

// Close terminates the connection and releases all resources. Idempotent.
func (c *conn) Close() error {
	c.shutdown(websocket.StatusNormalClosure, "session closed")
	return nil
}

func (c *conn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *conn) shutdown(code websocket.StatusCode, reason string) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	c.cancel()    // unblocks receiveLoop and keepaliveLoop
	close(c.done) // signals keepaliveLoop via done channel
	_ = c.ws.Close(code, reason)
}

// abort tears down a connection that never became ready.
func (c *conn) abort() {
	c.shutdown(websocket.StatusInternalError, "setup failed")
}
