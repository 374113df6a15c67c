// Package session owns the single realtime conversation: it opens the
// streaming connection with the negotiated configuration, wires the capture
// pipeline and the playback scheduler to it, dispatches inbound events, and
// tears everything down deterministically on stop, failure or remote close.
//
// Every lifecycle request (start, stop, restart, voice switch, automatic
// reconnect, remote close) is executed by one control goroutine, in the order
// the requests were queued. Two lifecycle operations therefore never overlap,
// and a reconnect timer that fires after the user acted is recognised by its
// generation and discarded.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"google.golang.org/genai"

	"github.com/MrWong99/hiplay/internal/observe"
	"github.com/MrWong99/hiplay/internal/tools"
	"github.com/MrWong99/hiplay/internal/transcript"
	"github.com/MrWong99/hiplay/pkg/audio"
	"github.com/MrWong99/hiplay/pkg/audio/capture"
	"github.com/MrWong99/hiplay/pkg/audio/playback"
	"github.com/MrWong99/hiplay/pkg/provider/live"
)

const (
	// maxHighlights bounds the object highlights kept on the status.
	maxHighlights = 8

	// defaultOutputRate is the sample rate of model audio.
	defaultOutputRate = 24000
)

// Devices opens the audio endpoints of a session.
type Devices interface {
	// OpenInput acquires the microphone. It is called once per session and
	// the returned source is closed when the session ends. ctx lives as long
	// as the manager, not just the start request.
	OpenInput(ctx context.Context) (capture.Source, error)

	// Output returns the playback device. It is called once; the device is
	// reused across sessions and resumed at every start.
	Output() (playback.Output, error)
}

// Config is the configuration negotiated for each session.
type Config struct {
	Voice             Voice
	SystemInstruction string

	// Model overrides the provider's default model when non-empty.
	Model string

	InputTranscription  bool
	OutputTranscription bool
	GoogleSearch        bool

	// FrameSize is the capture frame size in samples. Zero keeps the
	// pipeline default.
	FrameSize int

	// LevelGain maps microphone RMS to the 0–100 level.
	LevelGain float64

	// OutputSampleRate is the rate of inbound model audio. Defaults to 24 kHz.
	OutputSampleRate int

	Reconnect ReconnectPolicy
}

// instruction returns the system instruction with the active persona
// appended.
func (c Config) instruction() string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(c.SystemInstruction))
	if c.Voice.Name != "" {
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "Now speaking as: %s.", c.Voice.Name)
		if p := strings.TrimSpace(c.Voice.Persona); p != "" {
			b.WriteString(" ")
			b.WriteString(p)
		}
	}
	return b.String()
}

// Deps are the collaborators of a [Manager].
type Deps struct {
	Provider live.Provider
	Devices  Devices

	// Voices are the selectable personas.
	Voices []Voice

	// Tools are offered to the model in addition to the built-in
	// switchVoice and reportObjectDetection tools.
	Tools []tools.Tool

	// Matcher resolves spoken voice names. Optional.
	Matcher *tools.Matcher

	// Store persists finalized entries. Optional.
	Store transcript.Store

	// Metrics records telemetry. Defaults to [observe.DefaultMetrics].
	Metrics *observe.Metrics
}

// Manager runs the session lifecycle. All exported methods are safe for
// concurrent use.
type Manager struct {
	deps    Deps
	metrics *observe.Metrics
	matcher *tools.Matcher

	ctx    context.Context
	cancel context.CancelFunc

	cmds      chan func()
	quit      chan struct{}
	loopDone  chan struct{}
	closeOnce sync.Once

	// stopSeq is bumped by every Stop before it is queued. Start requests
	// queued earlier see the change and step aside.
	stopSeq atomic.Uint64

	connectMu     sync.Mutex
	cancelConnect context.CancelFunc

	// Owned by the control goroutine.
	cfg      Config
	registry *tools.Registry
	sess     *liveSession
	gen      uint64
	retry    *reconnector
	output   playback.Output

	mu      sync.Mutex
	status  Status
	voices  []Voice
	entries []transcript.Entry
	changes chan struct{}
}

// liveSession is everything bound to one open connection.
type liveSession struct {
	id       string
	gen      uint64
	ctx      context.Context
	cancel   context.CancelFunc
	conn     live.Conn
	sched    *playback.Scheduler
	outbox   *outbox
	capture  *capture.Pipeline
	done     chan struct{}
	stopping bool // guarded by Manager.mu
}

// New creates a Manager in the idle state and starts its control goroutine.
// Call [Manager.Close] to release it.
func New(cfg Config, deps Deps) (*Manager, error) {
	if deps.Provider == nil {
		return nil, errors.New("session: provider is required")
	}
	if deps.Devices == nil {
		return nil, errors.New("session: devices are required")
	}
	m := &Manager{
		deps:     deps,
		metrics:  deps.Metrics,
		matcher:  deps.Matcher,
		cmds:     make(chan func()),
		quit:     make(chan struct{}),
		loopDone: make(chan struct{}),
		cfg:      cfg,
		retry:    newReconnector(cfg.Reconnect),
		voices:   slices.Clone(deps.Voices),
		changes:  make(chan struct{}, 1),
	}
	if m.metrics == nil {
		m.metrics = observe.DefaultMetrics()
	}
	if m.matcher == nil {
		m.matcher = tools.NewMatcher()
	}
	reg, err := m.buildRegistry(m.voices)
	if err != nil {
		return nil, err
	}
	m.registry = reg
	m.status.Voice = cfg.Voice
	m.ctx, m.cancel = context.WithCancel(context.Background())

	go m.loop()
	return m, nil
}

func (m *Manager) buildRegistry(voices []Voice) (*tools.Registry, error) {
	ids := make([]string, len(voices))
	for i, v := range voices {
		ids[i] = v.ID
	}
	all := []tools.Tool{
		tools.SwitchVoice(ids, m.matcher, m),
		tools.ReportObjectDetection(m.addHighlight),
	}
	all = append(all, m.deps.Tools...)
	reg, err := tools.NewRegistry(all...)
	if err != nil {
		return nil, fmt.Errorf("session: tools: %w", err)
	}
	return reg, nil
}

// ─── Control goroutine ────────────────────────────────────────────────────────

func (m *Manager) loop() {
	defer close(m.loopDone)
	for {
		select {
		case fn := <-m.cmds:
			fn()
		case <-m.quit:
			return
		}
	}
}

// exec runs fn on the control goroutine and returns its result.
func (m *Manager) exec(fn func() error) error {
	reply := make(chan error, 1)
	select {
	case m.cmds <- func() { reply <- fn() }:
	case <-m.loopDone:
		return ErrClosed
	}
	// An accepted command always runs.
	return <-reply
}

// post queues fn without waiting. It is used from the dispatcher and timer
// goroutines, which must never block on the control goroutine.
func (m *Manager) post(fn func()) {
	go func() {
		select {
		case m.cmds <- fn:
		case <-m.loopDone:
		}
	}()
}

func (m *Manager) setConnectCancel(cancel context.CancelFunc) {
	m.connectMu.Lock()
	m.cancelConnect = cancel
	m.connectMu.Unlock()
}

func (m *Manager) abortConnect() {
	m.connectMu.Lock()
	if m.cancelConnect != nil {
		m.cancelConnect()
	}
	m.connectMu.Unlock()
}

// ─── Lifecycle operations ─────────────────────────────────────────────────────

// Start opens a session with the current configuration and returns once it
// is connected or has failed. It is a no-op while a session is connecting or
// connected. Device failures wrap [ErrAcquisition]; connection failures wrap
// [ErrConnection] and the underlying *live.ConnectionError.
func (m *Manager) Start(ctx context.Context) error {
	seq := m.stopSeq.Load()
	return m.exec(func() error {
		if m.stopSeq.Load() != seq {
			return nil
		}
		return m.start(ctx, seq, false)
	})
}

// Stop ends the session. It is idempotent and safe in every state: an
// in-flight connect is cancelled, a pending reconnect is discarded, and the
// manager ends up idle.
func (m *Manager) Stop() error {
	m.stopSeq.Add(1)
	m.abortConnect()
	return m.exec(func() error {
		m.stop()
		return nil
	})
}

// Restart replaces the configuration. When a session is active, or a retry
// is pending, it is fully stopped and started again with cfg; the
// configuration of an open connection is never changed in place.
func (m *Manager) Restart(ctx context.Context, cfg Config) error {
	seq := m.stopSeq.Load()
	return m.exec(func() error {
		return m.restart(ctx, seq, cfg)
	})
}

// SetVoice restarts with the persona id. The manager stays idle if it was.
func (m *Manager) SetVoice(ctx context.Context, id string) error {
	seq := m.stopSeq.Load()
	return m.exec(func() error {
		return m.setVoice(ctx, seq, id)
	})
}

// SwitchVoice implements [tools.VoiceSwitcher]. It validates id and queues
// the restart without waiting for it. Selecting the active voice keeps the
// session as it is.
func (m *Manager) SwitchVoice(id string) error {
	if _, ok := m.voice(id); !ok {
		return fmt.Errorf("%w: %q", ErrUnknownVoice, id)
	}
	seq := m.stopSeq.Load()
	m.post(func() {
		if id == m.cfg.Voice.ID {
			return
		}
		if err := m.setVoice(m.ctx, seq, id); err != nil {
			slog.Warn("session: voice switch failed", "voice", id, "err", err)
		}
	})
	return nil
}

// Reconfigure applies a reloaded configuration and persona list. An active
// session is restarted; an idle manager only remembers the new values.
func (m *Manager) Reconfigure(ctx context.Context, cfg Config, voices []Voice) error {
	seq := m.stopSeq.Load()
	return m.exec(func() error {
		reg, err := m.buildRegistry(voices)
		if err != nil {
			return err
		}
		m.registry = reg
		m.mu.Lock()
		m.voices = slices.Clone(voices)
		m.mu.Unlock()
		return m.restart(ctx, seq, cfg)
	})
}

// Close stops the session and shuts down the control goroutine. Every
// operation returns [ErrClosed] afterwards.
func (m *Manager) Close() error {
	var err error
	m.closeOnce.Do(func() {
		err = m.Stop()
		close(m.quit)
		<-m.loopDone
		m.cancel()
	})
	return err
}

func (m *Manager) setVoice(ctx context.Context, seq uint64, id string) error {
	v, ok := m.voice(id)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownVoice, id)
	}
	cfg := m.cfg
	cfg.Voice = v
	return m.restart(ctx, seq, cfg)
}

func (m *Manager) restart(ctx context.Context, seq uint64, cfg Config) error {
	m.mu.Lock()
	st := m.status
	m.mu.Unlock()
	active := st.State == StateConnected || st.State == StateConnecting || m.retry.pending()

	m.cfg = cfg
	m.retry.policy = cfg.Reconnect
	if !active {
		m.update(func(s *Status) { s.Voice = cfg.Voice })
		return nil
	}
	m.stop()
	if m.stopSeq.Load() != seq {
		return nil
	}
	return m.start(ctx, seq, false)
}

// start runs on the control goroutine. reconnect marks an automatic retry.
func (m *Manager) start(ctx context.Context, seq uint64, reconnect bool) error {
	m.mu.Lock()
	state := m.status.State
	m.mu.Unlock()
	if state == StateConnecting || state == StateConnected {
		return nil
	}

	// The cancel func is published before stopSeq is checked, so a
	// concurrent Stop either sees it or is seen here.
	connectCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	m.setConnectCancel(cancel)
	defer m.setConnectCancel(nil)
	if m.stopSeq.Load() != seq {
		return nil
	}

	if reconnect {
		m.retry.fired()
	} else {
		m.retry.reset()
	}
	m.gen++
	gen := m.gen
	cfg := m.cfg

	m.update(func(s *Status) {
		s.State = StateConnecting
		s.Reason = ReasonNone
		s.Voice = cfg.Voice
		s.StreamingText = ""
		if !reconnect {
			s.Err = nil
			s.AuthRequired = false
			s.Reconnecting = false
			s.Attempt = 0
		}
	})

	connectCtx, span := observe.StartSpan(connectCtx, "session.start")
	defer span.End()

	aborted := func() bool {
		return m.stopSeq.Load() != seq || ctx.Err() != nil
	}

	out, err := m.acquireOutput()
	if err != nil {
		return m.failAcquisition(err)
	}
	// The input outlives this call, so it is bound to the manager.
	in, err := m.deps.Devices.OpenInput(m.ctx)
	if err != nil {
		return m.failAcquisition(err)
	}

	begin := time.Now()
	conn, err := m.deps.Provider.Connect(connectCtx, m.liveConfig(cfg))
	if err != nil {
		_ = in.Close()
		if aborted() {
			return m.abandon(ctx)
		}
		return m.failConnect(connectCtx, err, reconnect)
	}
	if aborted() {
		_ = conn.Close()
		_ = in.Close()
		return m.abandon(ctx)
	}
	m.metrics.RecordConnect(connectCtx, time.Since(begin))
	m.metrics.RecordSessionStart(connectCtx, "ok")

	m.retry.reset()
	m.sess = m.open(gen, cfg, conn, in, out)
	m.update(func(s *Status) {
		s.State = StateConnected
		s.Err = nil
		s.AuthRequired = false
		s.Reconnecting = false
		s.Attempt = 0
		s.RetryAt = time.Time{}
	})
	observe.Logger(m.sess.ctx).Info("session: connected", "voice", cfg.Voice.ID, "reconnect", reconnect)
	return nil
}

func (m *Manager) acquireOutput() (playback.Output, error) {
	if m.output == nil {
		out, err := m.deps.Devices.Output()
		if err != nil {
			return nil, err
		}
		m.output = out
	}
	if err := m.output.Resume(); err != nil {
		return nil, err
	}
	return m.output, nil
}

// abandon handles a start that Stop or the caller cancelled. A start
// superseded by Stop is not an error.
func (m *Manager) abandon(ctx context.Context) error {
	m.update(func(s *Status) {
		s.State = StateIdle
		s.Reason = ReasonUser
	})
	return ctx.Err()
}

func (m *Manager) failAcquisition(cause error) error {
	err := fmt.Errorf("%w: %w", ErrAcquisition, cause)
	m.metrics.RecordSessionStart(m.ctx, "acquisition")
	m.retry.reset()
	m.update(func(s *Status) {
		s.State = StateError
		s.Reason = ReasonError
		s.Err = err
		s.AuthRequired = false
		s.Reconnecting = false
	})
	slog.Error("session: audio device unavailable", "err", cause)
	return err
}

func (m *Manager) failConnect(ctx context.Context, cause error, reconnect bool) error {
	err := fmt.Errorf("%w: %w", ErrConnection, cause)
	m.metrics.RecordSessionStart(ctx, "connection")
	auth := live.IsAuthRequired(cause)

	if reconnect && !auth && m.scheduleRetry(cause, ReasonError) {
		return err
	}
	m.retry.reset()
	m.update(func(s *Status) {
		s.State = StateError
		s.Reason = ReasonError
		s.Err = err
		s.AuthRequired = auth
		s.Reconnecting = false
	})
	slog.Error("session: connect failed", "err", cause, "auth_required", auth)
	return err
}

// scheduleRetry arms the next automatic reconnect and moves to idle. It
// reports false when the policy is disabled or exhausted.
func (m *Manager) scheduleRetry(cause error, reason CloseReason) bool {
	gen := m.gen
	attempt, delay, ok := m.retry.schedule(func() {
		m.post(func() { m.reconnect(gen) })
	})
	if !ok {
		return false
	}
	m.metrics.RecordReconnect(m.ctx, attempt)
	m.update(func(s *Status) {
		s.State = StateIdle
		s.Reason = reason
		s.Err = cause
		s.AuthRequired = false
		s.Reconnecting = true
		s.Attempt = attempt
		s.RetryAt = time.Now().Add(delay)
	})
	slog.Info("session: reconnect scheduled", "attempt", attempt, "delay", delay, "err", cause)
	return true
}

// reconnect runs when a retry timer fires. Timers armed before a later
// lifecycle change carry an old generation and are ignored.
func (m *Manager) reconnect(gen uint64) {
	if gen != m.gen || !m.retry.pending() {
		return
	}
	seq := m.stopSeq.Load()
	if err := m.start(m.ctx, seq, true); err != nil {
		slog.Debug("session: reconnect attempt failed", "err", err)
	}
}

// stop tears down any session and leaves the manager idle.
func (m *Manager) stop() {
	m.retry.reset()
	m.gen++
	m.update(func(s *Status) {
		s.State = StateIdle
		s.Reason = ReasonUser
		s.Err = nil
		s.AuthRequired = false
		s.Reconnecting = false
		s.Attempt = 0
		s.RetryAt = time.Time{}
	})
	if s := m.sess; s != nil {
		m.teardown(s)
	}
}

// remoteClosed handles the end of a session's event stream that was not
// caused by teardown.
func (m *Manager) remoteClosed(gen uint64, cause error) {
	s := m.sess
	if s == nil || s.gen != gen || gen != m.gen {
		return
	}
	observe.Logger(s.ctx).Info("session: closed by remote", "err", cause)
	m.teardown(s)

	reason := ReasonRemote
	if cause != nil {
		reason = ReasonError
	}
	auth := live.IsAuthRequired(cause)
	if !auth && m.scheduleRetry(cause, reason) {
		return
	}
	m.retry.reset()
	m.update(func(st *Status) {
		st.Reason = reason
		st.Reconnecting = false
		if cause == nil {
			st.State = StateIdle
			st.Err = nil
			return
		}
		st.State = StateError
		st.Err = fmt.Errorf("%w: %w", ErrConnection, cause)
		st.AuthRequired = auth
	})
}

// ─── Session wiring ───────────────────────────────────────────────────────────

func (m *Manager) liveConfig(cfg Config) live.Config {
	return live.Config{
		Model:               cfg.Model,
		VoiceName:           cfg.Voice.APIVoice,
		SystemInstruction:   cfg.instruction(),
		ResponseModalities:  []genai.Modality{genai.ModalityAudio},
		InputTranscription:  cfg.InputTranscription,
		OutputTranscription: cfg.OutputTranscription,
		Tools:               m.registry.Declarations(),
		GoogleSearch:        cfg.GoogleSearch,
	}
}

// open builds the session around an accepted connection and starts its
// goroutines.
func (m *Manager) open(gen uint64, cfg Config, conn live.Conn, in capture.Source, out playback.Output) *liveSession {
	id := uuid.NewString()
	ctx, cancel := context.WithCancel(observe.WithSessionID(m.ctx, id))
	s := &liveSession{
		id:     id,
		gen:    gen,
		ctx:    ctx,
		cancel: cancel,
		conn:   conn,
		done:   make(chan struct{}),
	}

	s.sched = playback.New(out,
		playback.WithRecorder(m.metrics),
		playback.WithSpeakingHook(func(bool) {
			speaking := s.sched.Speaking()
			m.updateFor(s, func(st *Status) { st.Speaking = speaking })
		}),
	)
	s.outbox = newOutbox(conn, 0,
		func() { m.metrics.RecordFrameSent(ctx) },
		func(reason string) { m.metrics.RecordFrameDropped(ctx, reason) },
	)
	opts := []capture.Option{
		capture.WithLevelGain(cfg.LevelGain),
		capture.WithLevelHook(func(level int) {
			m.updateFor(s, func(st *Status) { st.Level = level })
		}),
	}
	if cfg.FrameSize > 0 {
		opts = append(opts, capture.WithFrameSize(cfg.FrameSize))
	}
	s.capture = capture.New(in, func(c audio.Chunk) { s.outbox.Push(c) }, opts...)

	rate := cfg.OutputSampleRate
	if rate <= 0 {
		rate = defaultOutputRate
	}
	d := &dispatcher{
		ctx:        ctx,
		conn:       conn,
		sched:      s.sched,
		tools:      m.registry,
		metrics:    m.metrics,
		outputRate: rate,
		now:        time.Now,
		onStreaming: func(text string) {
			m.updateFor(s, func(st *Status) { st.StreamingText = text })
		},
		onTurn: func(entries []transcript.Entry) {
			m.appendEntries(ctx, id, entries)
		},
	}

	go func() {
		err := d.run()
		close(s.done)
		m.mu.Lock()
		stopping := s.stopping
		m.mu.Unlock()
		if !stopping {
			m.post(func() { m.remoteClosed(gen, err) })
		}
	}()
	go func() {
		<-s.capture.Done()
		m.mu.Lock()
		stopping := s.stopping
		m.mu.Unlock()
		if !stopping {
			cause := s.capture.Err()
			m.post(func() { m.inputLost(gen, cause) })
		}
	}()
	s.capture.Start()
	return s
}

// inputLost handles a microphone that stopped delivering frames while the
// session was open. The session is torn down and the failure is reported as
// an acquisition error; it is not retried.
func (m *Manager) inputLost(gen uint64, cause error) {
	s := m.sess
	if s == nil || s.gen != gen || gen != m.gen {
		return
	}
	if cause == nil {
		cause = errors.New("stream ended")
	}
	observe.Logger(s.ctx).Error("session: microphone lost", "err", cause)
	m.teardown(s)
	m.retry.reset()

	err := fmt.Errorf("%w: microphone: %w", ErrAcquisition, cause)
	m.update(func(st *Status) {
		st.State = StateError
		st.Reason = ReasonError
		st.Err = err
		st.AuthRequired = false
		st.Reconnecting = false
		st.Attempt = 0
		st.RetryAt = time.Time{}
	})
}

// teardown releases a session: playback is interrupted, capture stops and
// releases the microphone, the connection is closed, queued frames are
// flushed, and the dispatcher is awaited.
func (m *Manager) teardown(s *liveSession) {
	m.mu.Lock()
	s.stopping = true
	m.status.Speaking = false
	m.status.Level = 0
	m.status.StreamingText = ""
	m.mu.Unlock()

	s.sched.InterruptAll()
	if err := s.capture.Stop(); err != nil {
		observe.Logger(s.ctx).Debug("session: close input", "err", err)
	}
	if err := s.conn.Close(); err != nil {
		observe.Logger(s.ctx).Debug("session: close connection", "err", err)
	}
	s.outbox.Close()
	<-s.done
	_ = s.sched.Close()
	s.cancel()
	if m.sess == s {
		m.sess = nil
	}
	m.notify()
}

// ─── Observable surface ───────────────────────────────────────────────────────

// Status returns a snapshot of the observable state.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := m.status
	st.Highlights = slices.Clone(m.status.Highlights)
	return st
}

// Transcript returns a copy of the finalized entries, oldest first.
func (m *Manager) Transcript() []transcript.Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.entries)
}

// Voices returns the configured personas.
func (m *Manager) Voices() []Voice {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.voices)
}

// Changes returns a channel that receives a value after the observable state
// changed. Notifications coalesce; read [Manager.Status] after each one.
func (m *Manager) Changes() <-chan struct{} {
	return m.changes
}

// LoadHistory fills the transcript with the most recent persisted entries.
func (m *Manager) LoadHistory(ctx context.Context, limit int) error {
	if m.deps.Store == nil {
		return nil
	}
	entries, err := m.deps.Store.Recent(ctx, limit)
	if err != nil {
		return fmt.Errorf("session: load history: %w", err)
	}
	m.mu.Lock()
	m.entries = append(entries, m.entries...)
	m.mu.Unlock()
	m.notify()
	return nil
}

// ClearTranscript removes every finalized entry, including persisted ones.
func (m *Manager) ClearTranscript(ctx context.Context) error {
	m.mu.Lock()
	m.entries = nil
	m.status.Highlights = nil
	m.mu.Unlock()
	m.notify()
	if m.deps.Store == nil {
		return nil
	}
	if err := m.deps.Store.Clear(ctx); err != nil {
		return fmt.Errorf("session: clear transcript: %w", err)
	}
	return nil
}

func (m *Manager) voice(id string) (Voice, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, v := range m.voices {
		if v.ID == id {
			return v, true
		}
	}
	return Voice{}, false
}

func (m *Manager) appendEntries(ctx context.Context, sessionID string, entries []transcript.Entry) {
	m.mu.Lock()
	m.entries = append(m.entries, entries...)
	m.mu.Unlock()
	m.notify()

	if m.deps.Store == nil {
		return
	}
	for _, e := range entries {
		if err := m.deps.Store.Append(ctx, sessionID, e); err != nil {
			observe.Logger(ctx).Warn("session: persist entry failed", "id", e.ID, "err", err)
		}
	}
}

func (m *Manager) addHighlight(h tools.Highlight) {
	m.mu.Lock()
	m.status.Highlights = append(m.status.Highlights, h)
	if n := len(m.status.Highlights); n > maxHighlights {
		m.status.Highlights = slices.Clone(m.status.Highlights[n-maxHighlights:])
	}
	m.mu.Unlock()
	m.notify()
}

// update applies fn to the status, records state transitions and notifies
// observers.
func (m *Manager) update(fn func(*Status)) {
	m.mu.Lock()
	from := m.status.State
	fn(&m.status)
	to := m.status.State
	m.mu.Unlock()

	if from != to {
		m.metrics.RecordTransition(m.ctx, from.String(), to.String())
		slog.Debug("session: state changed", "from", from, "to", to)
	}
	m.notify()
}

// updateFor applies fn unless s is being torn down, so late callbacks of an
// old session never overwrite the state of the next one.
func (m *Manager) updateFor(s *liveSession, fn func(*Status)) {
	m.mu.Lock()
	if s.stopping {
		m.mu.Unlock()
		return
	}
	fn(&m.status)
	m.mu.Unlock()
	m.notify()
}

func (m *Manager) notify() {
	select {
	case m.changes <- struct{}{}:
	default:
	}
}
