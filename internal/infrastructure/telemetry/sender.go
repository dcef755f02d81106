package telemetry

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	sonic "github.com/bytedance/sonic"
	crerr "github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"
	domain "github.com/riskibarqy/studio-profile/internal/domain/telemetry"
	"github.com/riskibarqy/studio-profile/internal/platform/logging"
	"github.com/sourcegraph/conc"
	"github.com/valyala/bytebufferpool"
)

// EventPath is where events are posted, relative to API_URL.
const EventPath = "/telemetry/event"

const (
	defaultQueueSize = 256
	defaultTimeout   = 5 * time.Second
)

// Poster delivers an encoded JSON body to the backend.
type Poster interface {
	PostJSON(ctx context.Context, path string, body []byte) error
}

type SenderConfig struct {
	Poster    Poster
	Enabled   bool
	QueueSize int
	Timeout   time.Duration
	Logger    *logging.Logger
}

type eventPayload struct {
	Action       string    `json:"action"`
	Category     string    `json:"category"`
	Label        string    `json:"label"`
	Value        string    `json:"value,omitempty"`
	PageReferrer string    `json:"page_referrer"`
	PageTitle    string    `json:"page_title"`
	PageLocation string    `json:"page_location"`
	GA           gaPayload `json:"ga"`
}

type gaPayload struct {
	ScreenResolution string `json:"screen_resolution"`
	Language         string `json:"language"`
}

type job struct {
	ctx  context.Context
	body []byte
}

// Sender posts analytics events from a bounded queue drained by one worker.
// Send never blocks: when the queue is full the event is dropped and counted.
type Sender struct {
	poster   Poster
	enabled  bool
	timeout  time.Duration
	logger   *logging.Logger
	validate *validator.Validate

	queue     chan job
	queueMu   sync.RWMutex
	closeOnce sync.Once
	closed    atomic.Bool
	wg        conc.WaitGroup
	dropped   atomic.Uint64
	sent      atomic.Uint64
}

func NewSender(cfg SenderConfig) (*Sender, error) {
	if cfg.Enabled && cfg.Poster == nil {
		return nil, crerr.New("telemetry poster is required when telemetry is enabled")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	s := &Sender{
		poster:   cfg.Poster,
		enabled:  cfg.Enabled,
		timeout:  timeout,
		logger:   logger,
		validate: validator.New(),
		queue:    make(chan job, queueSize),
	}
	s.wg.Go(s.run)

	return s, nil
}

// Send enqueues event with the page context it happened on.
func (s *Sender) Send(ctx context.Context, event domain.Event, page domain.Page) {
	if !s.enabled {
		return
	}
	if err := s.validate.Struct(event); err != nil {
		s.logger.WarnContext(ctx, "telemetry event rejected", "error", err, "category", event.Category, "action", event.Action)
		return
	}

	body, err := encodeEvent(event, page)
	if err != nil {
		s.logger.WarnContext(ctx, "telemetry event encode failed", "error", err, "action", event.Action)
		return
	}

	s.queueMu.RLock()
	defer s.queueMu.RUnlock()
	if s.closed.Load() {
		return
	}

	select {
	case s.queue <- job{ctx: context.WithoutCancel(ctx), body: body}:
	default:
		dropped := s.dropped.Add(1)
		if dropped == 1 || dropped%100 == 0 {
			s.logger.WarnContext(ctx, "telemetry queue full; event dropped", "dropped", dropped)
		}
	}
}

// Dropped reports how many events were discarded because the queue was full.
func (s *Sender) Dropped() uint64 {
	return s.dropped.Load()
}

// Sent reports how many events were accepted by the backend.
func (s *Sender) Sent() uint64 {
	return s.sent.Load()
}

func (s *Sender) run() {
	for item := range s.queue {
		s.deliver(item)
	}
}

func (s *Sender) deliver(item job) {
	ctx, cancel := context.WithTimeout(item.ctx, s.timeout)
	defer cancel()

	if err := s.poster.PostJSON(ctx, EventPath, item.body); err != nil {
		s.logger.WarnContext(ctx, "telemetry event delivery failed", "error", err)
		return
	}
	s.sent.Add(1)
}

// Close stops accepting events and waits for queued ones to be delivered.
func (s *Sender) Close(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	s.closeOnce.Do(func() {
		s.queueMu.Lock()
		s.closed.Store(true)
		close(s.queue)
		s.queueMu.Unlock()
	})

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return crerr.Wrap(ctx.Err(), "drain telemetry queue")
	}
}

func encodeEvent(event domain.Event, page domain.Page) ([]byte, error) {
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)

	payload := eventPayload{
		Action:       event.Action,
		Category:     event.Category,
		Label:        event.Label,
		Value:        event.Value,
		PageReferrer: page.Route.Referrer,
		PageTitle:    page.Route.Title,
		PageLocation: page.Route.Location,
		GA: gaPayload{
			ScreenResolution: page.Props.ScreenResolution,
			Language:         page.Props.Language,
		},
	}
	if err := sonic.ConfigDefault.NewEncoder(buf).Encode(payload); err != nil {
		return nil, crerr.Wrap(err, "encode telemetry event")
	}

	// buf goes back to the pool; the queued body must own its bytes.
	out := make([]byte, buf.Len())
	copy(out, buf.B)
	return out, nil
}
