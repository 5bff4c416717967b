package streaming

import (
	"context"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/agentfoundry/agentkit/pkg/errors"
	"github.com/agentfoundry/agentkit/pkg/logging"
)

// Producer yields the values a streaming session emits as data events.
// The contract mirrors iterator-style streaming clients: Next advances
// and reports whether a value is available, Current returns it, and Err
// returns the error that stopped iteration, if any.
type Producer interface {
	Next() bool
	Current() interface{}
	Err() error
}

// SliceProducer adapts a fixed slice of values into a Producer
type SliceProducer struct {
	values []interface{}
	pos    int
}

// NewSliceProducer creates a producer over the given values
func NewSliceProducer(values ...interface{}) *SliceProducer {
	return &SliceProducer{values: values, pos: -1}
}

func (p *SliceProducer) Next() bool {
	p.pos++
	return p.pos < len(p.values)
}

func (p *SliceProducer) Current() interface{} {
	return p.values[p.pos]
}

func (p *SliceProducer) Err() error {
	return nil
}

// StreamerConfig holds configuration for a Streamer
type StreamerConfig struct {
	// HeartbeatInterval is the idle interval between heartbeat events
	HeartbeatInterval time.Duration
	// BufferSize is the capacity of each session's event channel
	BufferSize int
}

// Streamer creates and tracks streaming sessions
type Streamer struct {
	heartbeatInterval time.Duration
	bufferSize        int

	mutex    sync.RWMutex
	sessions map[string]*Session

	logger *logging.Logger
}

// NewStreamer creates a new streamer
func NewStreamer(config StreamerConfig) *Streamer {
	if config.HeartbeatInterval <= 0 {
		config.HeartbeatInterval = 15 * time.Second
	}
	if config.BufferSize <= 0 {
		config.BufferSize = 64
	}

	return &Streamer{
		heartbeatInterval: config.HeartbeatInterval,
		bufferSize:        config.BufferSize,
		sessions:          make(map[string]*Session),
		logger:            logging.GetLogger(),
	}
}

// Session is a single streaming session. Events are consumed from the
// Events channel, which is closed when the session finishes.
type Session struct {
	id        string
	events    chan Event
	cancel    context.CancelFunc
	active    atomic.Bool
	startedAt time.Time

	// seq is only touched by the session's run goroutine
	seq int64

	errMutex sync.Mutex
	err      error
}

// ID returns the session's unique stream ID
func (s *Session) ID() string {
	return s.id
}

// Events returns the channel carrying the session's events
func (s *Session) Events() <-chan Event {
	return s.events
}

// Active reports whether the session is still producing events
func (s *Session) Active() bool {
	return s.active.Load()
}

// StartedAt returns when the session was created
func (s *Session) StartedAt() time.Time {
	return s.startedAt
}

// Err returns the error that terminated the session, if any. It is
// only meaningful after the Events channel has been closed.
func (s *Session) Err() error {
	s.errMutex.Lock()
	defer s.errMutex.Unlock()
	return s.err
}

func (s *Session) setErr(err error) {
	s.errMutex.Lock()
	s.err = err
	s.errMutex.Unlock()
}

// nextEvent stamps an event with the session's sequence number and
// timestamp. Sequences start at 1.
func (s *Session) nextEvent(eventType EventType, data interface{}, metadata map[string]interface{}) Event {
	s.seq++
	return Event{
		Type:      eventType,
		Data:      data,
		Timestamp: time.Now().UTC(),
		Sequence:  s.seq,
		Metadata:  metadata,
	}
}

// streamOptions holds per-stream settings
type streamOptions struct {
	metadata      map[string]interface{}
	progressTotal int
	transform     func(interface{}) interface{}
}

// StreamOption customizes a single streaming session
type StreamOption func(*streamOptions)

// WithMetadata emits a summary metadata event before the end event,
// carrying the given fields plus the chunk count and duration.
func WithMetadata(metadata map[string]interface{}) StreamOption {
	return func(o *streamOptions) {
		o.metadata = metadata
	}
}

// WithProgress interleaves progress events for a bounded stream of
// total values, roughly every total/10 values.
func WithProgress(total int) StreamOption {
	return func(o *streamOptions) {
		o.progressTotal = total
	}
}

// WithTransform applies fn to every produced value before it is
// emitted as a data event
func WithTransform(fn func(interface{}) interface{}) StreamOption {
	return func(o *streamOptions) {
		o.transform = fn
	}
}

// Stream starts a new session consuming the producer. The returned
// session's Events channel carries a start event first, then data
// events in producer order, interleaved with heartbeats on a
// best-effort basis, and finally an end event. A producer failure
// replaces the end event with an error event; cancellation ends the
// stream early with an end event marked cancelled, the cause is
// available from Session.Err.
func (st *Streamer) Stream(ctx context.Context, producer Producer, opts ...StreamOption) (*Session, error) {
	if producer == nil {
		return nil, errors.NewValidationError("producer is required")
	}

	options := streamOptions{}
	for _, opt := range opts {
		opt(&options)
	}

	ctx, cancel := context.WithCancel(ctx)

	session := &Session{
		id:        uuid.New().String(),
		events:    make(chan Event, st.bufferSize),
		cancel:    cancel,
		startedAt: time.Now().UTC(),
	}
	session.active.Store(true)

	st.mutex.Lock()
	st.sessions[session.id] = session
	st.mutex.Unlock()

	st.logger.LogStreamEvent(ctx, "stream_started", session.id, nil)

	go st.run(ctx, session, producer, options)

	return session, nil
}

// Cancel cancels an active session. The session emits a terminal end
// event marked cancelled and its Events channel is closed shortly after.
func (st *Streamer) Cancel(streamID string) error {
	st.mutex.RLock()
	session, exists := st.sessions[streamID]
	st.mutex.RUnlock()

	if !exists {
		return errors.NewNotFoundError("stream " + streamID)
	}

	session.cancel()
	return nil
}

// Get returns an active session by ID
func (st *Streamer) Get(streamID string) (*Session, bool) {
	st.mutex.RLock()
	defer st.mutex.RUnlock()

	session, exists := st.sessions[streamID]
	return session, exists
}

// ActiveCount returns the number of sessions currently producing events
func (st *Streamer) ActiveCount() int {
	st.mutex.RLock()
	defer st.mutex.RUnlock()
	return len(st.sessions)
}

func (st *Streamer) remove(streamID string) {
	st.mutex.Lock()
	delete(st.sessions, streamID)
	st.mutex.Unlock()
}

// run drives a session to completion
func (st *Streamer) run(ctx context.Context, session *Session, producer Producer, options streamOptions) {
	defer func() {
		session.active.Store(false)
		st.remove(session.id)
		close(session.events)
	}()

	// Heartbeats come in through a side channel that the main loop
	// drains opportunistically, so they interleave with data events
	// without ever blocking the producer.
	heartbeats := make(chan struct{}, 1)
	hbCtx, stopHeartbeats := context.WithCancel(ctx)
	defer stopHeartbeats()

	go func() {
		ticker := time.NewTicker(st.heartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-hbCtx.Done():
				return
			case <-ticker.C:
				select {
				case heartbeats <- struct{}{}:
				default:
				}
			}
		}
	}()

	emit := func(ev Event) bool {
		select {
		case session.events <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}

	if !emit(session.nextEvent(EventStart, nil, map[string]interface{}{"stream_id": session.id})) {
		st.finishCancelled(ctx, session, emitUnbuffered(session))
		return
	}

	progressEvery := 0
	if options.progressTotal > 0 {
		progressEvery = options.progressTotal / 10
		if progressEvery == 0 {
			progressEvery = 1
		}
	}

	produced := 0
	for producer.Next() {
		select {
		case <-ctx.Done():
			st.finishCancelled(ctx, session, emitUnbuffered(session))
			return
		case <-heartbeats:
			if !emit(session.nextEvent(EventHeartbeat, nil, nil)) {
				st.finishCancelled(ctx, session, emitUnbuffered(session))
				return
			}
		default:
		}

		value := producer.Current()
		if options.transform != nil {
			value = options.transform(value)
		}
		if !emit(session.nextEvent(EventData, value, map[string]interface{}{"chunk_index": produced})) {
			st.finishCancelled(ctx, session, emitUnbuffered(session))
			return
		}
		produced++

		if progressEvery > 0 && (produced%progressEvery == 0 || produced == options.progressTotal) {
			progress := Progress{
				Completed: produced,
				Total:     options.progressTotal,
				Percent:   math.Round(10000*float64(produced)/float64(options.progressTotal)) / 100,
			}
			if !emit(session.nextEvent(EventProgress, progress, nil)) {
				st.finishCancelled(ctx, session, emitUnbuffered(session))
				return
			}
		}
	}

	if err := producer.Err(); err != nil {
		session.setErr(err)
		emit(session.nextEvent(EventError, ErrorData{
			Code:    errors.GetCode(err),
			Type:    string(errors.GetType(err)),
			Message: err.Error(),
		}, nil))
		st.logger.LogStreamEvent(ctx, "stream_failed", session.id, map[string]interface{}{
			"error": err.Error(),
		})
		return
	}

	if ctx.Err() != nil {
		st.finishCancelled(ctx, session, emitUnbuffered(session))
		return
	}

	if options.metadata != nil {
		summary := make(map[string]interface{}, len(options.metadata)+2)
		for k, v := range options.metadata {
			summary[k] = v
		}
		summary["chunks"] = produced
		summary["duration_ms"] = time.Since(session.startedAt).Milliseconds()
		if !emit(session.nextEvent(EventMetadata, summary, nil)) {
			st.finishCancelled(ctx, session, emitUnbuffered(session))
			return
		}
	}

	emit(session.nextEvent(EventEnd, nil, map[string]interface{}{"events": session.seq + 1}))
	st.logger.LogStreamEvent(ctx, "stream_completed", session.id, map[string]interface{}{
		"data_events": produced,
	})
}

// finishCancelled records cancellation and emits a best-effort terminal
// end event without blocking on a consumer that may be gone. The
// cancellation itself is reported through Session.Err.
func (st *Streamer) finishCancelled(ctx context.Context, session *Session, emit func(Event) bool) {
	err := errors.NewCancelledError("stream " + session.id)
	session.setErr(err)
	emit(session.nextEvent(EventEnd, nil, map[string]interface{}{"cancelled": true}))
	st.logger.LogStreamEvent(ctx, "stream_cancelled", session.id, nil)
}

// emitUnbuffered returns an emitter that drops the event when the
// session buffer is full
func emitUnbuffered(session *Session) func(Event) bool {
	return func(ev Event) bool {
		select {
		case session.events <- ev:
			return true
		default:
			return false
		}
	}
}
