package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/vango-go/taskvoice/pkg/archive"
	"github.com/vango-go/taskvoice/pkg/core/types"
	"github.com/vango-go/taskvoice/pkg/gateway/live/protocol"
	"github.com/vango-go/taskvoice/pkg/journal"
	"github.com/vango-go/taskvoice/pkg/modelgw"
	"github.com/vango-go/taskvoice/pkg/sandbox"
)

const (
	defaultMaxAudioBytes     = 25 << 20
	defaultOutboundQueueSize = 64
	defaultHistoryWindow     = 10
	defaultRecordTimeout     = 10 * time.Second
)

var errBackpressure = errors.New("session outbound queue full")

// ContextSource produces the formatted task overview for a turn.
type ContextSource interface {
	FetchContext(ctx context.Context) (string, error)
}

type Executor interface {
	Execute(ctx context.Context, capability sandbox.Capability, script string) string
	Describe(capability sandbox.Capability) string
}

type Models interface {
	Complete(ctx context.Context, role modelgw.Role, system, user string, history []types.Message) modelgw.Outcome
}

type Audio interface {
	Transcribe(ctx context.Context, audio []byte) (string, error)
	SynthesizeSpeech(ctx context.Context, text string) ([]byte, bool)
}

// Recorder receives turn and audio counters. *metrics.Metrics satisfies it.
type Recorder interface {
	RecordTurn(outcome string, duration time.Duration)
	RecordAudio(direction string, n int)
}

type Config struct {
	MaxMessageBytes   int64
	MaxAudioBytes     int
	PingInterval      time.Duration
	WriteTimeout      time.Duration
	ReadTimeout       time.Duration
	OutboundQueueSize int
	HistoryWindow     int
	RecordTimeout     time.Duration
}

type Dependencies struct {
	Conn       *websocket.Conn
	Logger     *slog.Logger
	Context    ContextSource
	Capability sandbox.Capability
	Executor   Executor
	Models     Models
	Audio      Audio
	Journal    journal.Journal
	Archive    archive.Archiver
	Metrics    Recorder
	SessionID  string
	Muted      bool
	Config     Config
	Now        func() time.Time
}

type state int

const (
	stateIdle state = iota
	stateAwaitingAudioEnd
	stateRunningTurn
)

func (s state) String() string {
	switch s {
	case stateAwaitingAudioEnd:
		return "awaiting_audio_end"
	case stateRunningTurn:
		return "running_turn"
	default:
		return "idle"
	}
}

// Session owns one connection. Inbound frames are handled one at a time by
// Run; everything below the "loop-owned" marker is touched only there.
type Session struct {
	conn       *websocket.Conn
	logger     *slog.Logger
	source     ContextSource
	capability sandbox.Capability
	executor   Executor
	models     Models
	audio      Audio
	journal    journal.Journal
	archive    archive.Archiver
	metrics    Recorder
	id         string
	muted      bool
	cfg        Config
	now        func() time.Time

	ctx    context.Context
	cancel context.CancelFunc

	outbound   chan frame
	background sync.WaitGroup

	// loop-owned
	state   state
	buffer  []byte
	pending *contextFetch
	history *historyManager
	// turns numbers completed turns for journal and archive keys. INIT does
	// not reset it.
	turns int
	// lastRecord closes when the previous turn's record write finishes.
	lastRecord chan struct{}
}

type inboundFrame struct {
	messageType int
	data        []byte
	err         error
}

func New(deps Dependencies) (*Session, error) {
	if deps.Conn == nil {
		return nil, fmt.Errorf("connection is required")
	}
	return build(deps)
}

func build(deps Dependencies) (*Session, error) {
	if deps.Context == nil {
		return nil, fmt.Errorf("context source is required")
	}
	if deps.Capability == nil {
		return nil, fmt.Errorf("capability is required")
	}
	if deps.Executor == nil {
		return nil, fmt.Errorf("executor is required")
	}
	if deps.Models == nil {
		return nil, fmt.Errorf("models are required")
	}
	if deps.Audio == nil {
		return nil, fmt.Errorf("audio pipeline is required")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Journal == nil {
		deps.Journal = journal.Noop{}
	}
	if deps.Archive == nil {
		deps.Archive = archive.Noop{}
	}
	if deps.Metrics == nil {
		deps.Metrics = noopRecorder{}
	}
	if deps.SessionID == "" {
		deps.SessionID = uuid.NewString()
	}
	if deps.Config.MaxAudioBytes <= 0 {
		deps.Config.MaxAudioBytes = defaultMaxAudioBytes
	}
	if deps.Config.OutboundQueueSize <= 0 {
		deps.Config.OutboundQueueSize = defaultOutboundQueueSize
	}
	if deps.Config.HistoryWindow <= 0 {
		deps.Config.HistoryWindow = defaultHistoryWindow
	}
	if deps.Config.RecordTimeout <= 0 {
		deps.Config.RecordTimeout = defaultRecordTimeout
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		conn:       deps.Conn,
		logger:     deps.Logger.With("session_id", deps.SessionID),
		source:     deps.Context,
		capability: deps.Capability,
		executor:   deps.Executor,
		models:     deps.Models,
		audio:      deps.Audio,
		journal:    deps.Journal,
		archive:    deps.Archive,
		metrics:    deps.Metrics,
		id:         deps.SessionID,
		muted:      deps.Muted,
		cfg:        deps.Config,
		now:        deps.Now,
		ctx:        ctx,
		cancel:     cancel,
		outbound:   make(chan frame, deps.Config.OutboundQueueSize),
		history:    newHistoryManager(deps.Config.HistoryWindow),
	}, nil
}

func (s *Session) ID() string { return s.id }

// Cancel ends the session. A turn in progress is interrupted.
func (s *Session) Cancel() { s.cancel() }

// Notify queues an info message without blocking.
func (s *Session) Notify(message string) error {
	payload, _ := json.Marshal(protocol.Info(message))
	select {
	case s.outbound <- textFrame(payload):
		return nil
	default:
		return errBackpressure
	}
}

// Run serves the connection until the client leaves, a write fails or the
// session is canceled.
func (s *Session) Run() error {
	defer s.cancel()

	if s.cfg.MaxMessageBytes > 0 {
		s.conn.SetReadLimit(s.cfg.MaxMessageBytes)
	}
	if s.cfg.ReadTimeout > 0 {
		_ = s.conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
		s.conn.SetPongHandler(func(string) error {
			return s.conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
		})
	}

	readCh := make(chan inboundFrame, 64)
	writerErrCh := make(chan error, 1)
	go s.readLoop(readCh)
	go func() {
		writerErrCh <- newPump(s.conn, s.outbound, s.cfg).run(s.ctx)
		close(writerErrCh)
	}()

	s.logger.Info("session started", "muted", s.muted)
	err := s.loop(readCh, writerErrCh)

	s.cancel()
	wait := 100 * time.Millisecond
	if s.cfg.WriteTimeout > 0 && s.cfg.WriteTimeout < wait {
		wait = s.cfg.WriteTimeout
	}
	timer := time.NewTimer(wait)
	select {
	case <-writerErrCh:
	case <-timer.C:
	}
	timer.Stop()
	s.background.Wait()

	s.logger.Info("session ended", "turns", s.turns, "error", err)
	return err
}

func (s *Session) loop(readCh <-chan inboundFrame, writerErrCh <-chan error) error {
	for {
		select {
		case <-s.ctx.Done():
			return nil
		case err := <-writerErrCh:
			if err != nil {
				return fmt.Errorf("write: %w", err)
			}
			return nil
		case in, ok := <-readCh:
			if !ok {
				return nil
			}
			if in.err != nil {
				if websocket.IsCloseError(in.err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
					return nil
				}
				return in.err
			}
			s.handleFrame(in)
		}
	}
}

func (s *Session) readLoop(out chan<- inboundFrame) {
	defer close(out)
	for {
		messageType, data, err := s.conn.ReadMessage()
		if err != nil {
			// The peer is gone; stop any turn that is still talking to it.
			s.cancel()
			select {
			case out <- inboundFrame{err: err}:
			default:
			}
			return
		}
		select {
		case out <- inboundFrame{messageType: messageType, data: data}:
		case <-s.ctx.Done():
			return
		}
	}
}

func (s *Session) handleFrame(in inboundFrame) {
	switch in.messageType {
	case websocket.BinaryMessage:
		s.onAudioChunk(in.data)
	case websocket.TextMessage:
		msg, err := protocol.DecodeClientText(in.data)
		if err != nil {
			s.sendError(err.Error())
			return
		}
		s.handleMessage(msg)
	}
}

func (s *Session) handleMessage(msg any) {
	switch m := msg.(type) {
	case protocol.ClientInit:
		s.onReset()
	case protocol.ClientStartAudio:
		s.onAudioStart()
	case protocol.ClientEndAudio:
		s.onAudioEnd()
	case protocol.ClientPing:
		if s.state == stateAwaitingAudioEnd {
			s.sendError("Cannot process 'ping' while receiving audio.")
			return
		}
		s.enqueue(textFrame([]byte(protocol.Pong)))
	case protocol.ClientTranscription:
		s.onTextTranscript(m.Message)
	}
}

func (s *Session) onReset() {
	s.history.reset()
	s.buffer = nil
	// The fetch keeps running against the session context; its result is dropped.
	s.pending = nil
	s.state = stateIdle
	s.logger.Debug("session reset")
	s.send(protocol.Info("Session reset."))
}

func (s *Session) onAudioStart() {
	if s.state == stateAwaitingAudioEnd {
		s.sendError("Already receiving audio.")
		return
	}
	s.buffer = s.buffer[:0]
	s.ensureFetch()
	s.state = stateAwaitingAudioEnd
	s.send(protocol.Info("Audio transmission started."))
}

func (s *Session) onAudioChunk(chunk []byte) {
	if s.state != stateAwaitingAudioEnd {
		s.sendError("Received unexpected binary data. Send 'START_AUDIO' first.")
		return
	}
	if len(s.buffer)+len(chunk) > s.cfg.MaxAudioBytes {
		s.buffer = nil
		s.state = stateIdle
		s.sendError(fmt.Sprintf("Audio exceeds %d bytes; recording discarded.", s.cfg.MaxAudioBytes))
		return
	}
	s.buffer = append(s.buffer, chunk...)
	s.metrics.RecordAudio("in", len(chunk))
}

func (s *Session) onAudioEnd() {
	if s.state != stateAwaitingAudioEnd {
		s.sendError("Received END_AUDIO without START_AUDIO.")
		return
	}
	audio := s.buffer
	s.buffer = nil
	s.state = stateIdle

	started := s.now()
	transcript, err := s.audio.Transcribe(s.ctx, audio)
	if err != nil {
		s.pending = nil
		s.failTurn("transcribe", started, "Transcription failed: "+err.Error())
		return
	}
	s.send(protocol.Transcription(transcript))
	s.runTurn(transcript, audio, started)
}

func (s *Session) onTextTranscript(text string) {
	if s.state == stateAwaitingAudioEnd {
		s.sendError("Cannot process other text messages while receiving audio.")
		return
	}
	s.ensureFetch()
	s.runTurn(text, nil, s.now())
}

func (s *Session) ensureFetch() {
	if s.pending == nil {
		s.pending = startContextFetch(s.ctx, s.source)
	}
}

// runTurn takes a transcript through code generation, execution,
// summarization and speech. Every abort sends exactly one error message.
func (s *Session) runTurn(transcript string, inputAudio []byte, started time.Time) {
	s.state = stateRunningTurn
	defer func() { s.state = stateIdle }()

	s.ensureFetch()
	fetch := s.pending
	s.pending = nil
	tasks, err := fetch.wait(s.ctx)
	if err != nil {
		s.failTurn("context", started, "Failed to load tasks: "+err.Error())
		return
	}

	capabilityDoc := s.executor.Describe(s.capability)
	code := s.models.Complete(s.ctx, modelgw.RoleCode,
		codeSystemPrompt(tasks, capabilityDoc, s.now()),
		codeUserMessage(transcript),
		s.history.codeMessages(),
	)
	if err := code.Err(); err != nil {
		s.failTurn("generate", started, "Code generation failed: "+err.Error())
		return
	}
	s.send(protocol.Code(code.Text))

	output := s.executor.Execute(s.ctx, s.capability, code.Text)
	s.send(protocol.Info(output))

	answer := s.models.Complete(s.ctx, modelgw.RoleAnswer,
		answerSystemPrompt,
		answerUserMessage(transcript, tasks, code.Text, output),
		nil,
	)
	if err := answer.Err(); err != nil {
		s.failTurn("summarize", started, "Summarization failed: "+err.Error())
		return
	}
	s.send(protocol.Answer(answer.Text))

	var speech []byte
	if !s.muted {
		if clip, ok := s.audio.SynthesizeSpeech(s.ctx, answer.Text); ok {
			speech = clip
			s.enqueue(binaryFrame(clip))
			s.metrics.RecordAudio("out", len(clip))
		} else {
			s.logger.Warn("no speech for answer", "turn", s.turns)
		}
	}

	s.history.append(turnRecord{
		transcript: transcript,
		script:     code.Text,
		output:     output,
		summary:    answer.Text,
	})
	idx := s.turns
	s.turns++
	finished := s.now()
	s.metrics.RecordTurn("ok", finished.Sub(started))
	s.logger.Info("turn completed",
		"turn", idx,
		"code_model", code.Model,
		"answer_model", answer.Model,
		"elapsed_ms", finished.Sub(started).Milliseconds(),
	)

	s.record(journal.Entry{
		SessionID:   s.id,
		Turn:        idx,
		Transcript:  transcript,
		Script:      code.Text,
		Output:      output,
		Summary:     answer.Text,
		CodeModel:   code.Model,
		AnswerModel: answer.Model,
		StartedAt:   started,
		FinishedAt:  finished,
	}, inputAudio, speech)
}

func (s *Session) failTurn(stage string, started time.Time, message string) {
	s.metrics.RecordTurn(stage, s.now().Sub(started))
	s.logger.Warn("turn failed", "stage", stage, "error", message)
	s.sendError(message)
}

// record writes the journal entry and audio off the loop, in turn order.
// Failures are logged.
func (s *Session) record(entry journal.Entry, input, speech []byte) {
	prev := s.lastRecord
	done := make(chan struct{})
	s.lastRecord = done

	s.background.Add(1)
	go func() {
		defer s.background.Done()
		defer close(done)
		if prev != nil {
			<-prev
		}
		ctx, cancel := context.WithTimeout(context.WithoutCancel(s.ctx), s.cfg.RecordTimeout)
		defer cancel()

		if err := s.journal.Record(ctx, entry); err != nil {
			s.logger.Warn("journal write failed", "turn", entry.Turn, "error", err)
		}
		if err := s.archive.StoreTurn(ctx, s.id, entry.Turn, input, speech); err != nil {
			s.logger.Warn("archive upload failed", "turn", entry.Turn, "error", err)
		}
	}()
}

func (s *Session) sendError(message string) {
	s.send(protocol.Error(message))
}

func (s *Session) send(msg protocol.ServerMessage) {
	payload, err := json.Marshal(msg)
	if err != nil {
		s.logger.Error("encode outbound message", "type", msg.Type, "error", err)
		return
	}
	s.enqueue(textFrame(payload))
}

// enqueue blocks until the writer has room, so nothing is reordered or
// silently dropped while the session is alive.
func (s *Session) enqueue(f frame) bool {
	select {
	case s.outbound <- f:
		return true
	case <-s.ctx.Done():
		return false
	}
}

type noopRecorder struct{}

func (noopRecorder) RecordTurn(string, time.Duration) {}
func (noopRecorder) RecordAudio(string, int)          {}
