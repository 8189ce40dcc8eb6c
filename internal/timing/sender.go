package timing

import (
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/CloudNativeWorks/sak-client/internal/transport"
	"github.com/CloudNativeWorks/sak-client/pkg/helper"
	"github.com/CloudNativeWorks/sak-client/pkg/logger"
	"github.com/benbjohnson/clock"
)

// DefaultInterval replaces a zero or unparsable interval
const DefaultInterval uint32 = 1000

// Item is the persisted form of a timed send
type Item struct {
	ID       int64                `yaml:"id"`
	Interval uint32               `yaml:"interval"`
	Format   transport.TextFormat `yaml:"format"`
	Comment  string               `yaml:"comment,omitempty"`
	Payload  string               `yaml:"payload"`
}

// Sender re-sends its payload to a writer every interval while enabled.
// All accessors read the current editable state.
type Sender struct {
	log    *logger.Logger
	clock  clock.Clock
	writer transport.Writer

	// life serializes Start, Stop and interval restarts; mu guards the fields
	life sync.Mutex

	mu       sync.Mutex
	id       int64
	interval uint32
	format   transport.TextFormat
	comment  string
	payload  string

	running bool
	stop    chan struct{}
	done    chan struct{}
}

// NewSender creates an idle sender from item
func NewSender(item Item, writer transport.Writer, clk clock.Clock, log *logger.Logger) *Sender {
	s := &Sender{
		log:     log,
		clock:   clk,
		writer:  writer,
		id:      item.ID,
		format:  item.Format,
		comment: item.Comment,
		payload: item.Payload,
	}
	s.interval = coerceInterval(item.Interval)
	return s
}

func coerceInterval(ms uint32) uint32 {
	if ms == 0 {
		return DefaultInterval
	}
	return ms
}

// ParseInterval reads interval text the way the interval field did:
// anything that is not a positive integer becomes DefaultInterval.
func ParseInterval(text string) uint32 {
	n, err := strconv.ParseUint(strings.TrimSpace(text), 10, 32)
	if err != nil {
		return DefaultInterval
	}
	return coerceInterval(uint32(n))
}

func (s *Sender) ID() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

func (s *Sender) Interval() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.interval
}

func (s *Sender) Format() transport.TextFormat {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.format
}

func (s *Sender) Comment() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.comment
}

func (s *Sender) Payload() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.payload
}

// Running reports whether the timer is active
func (s *Sender) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Item snapshots the current state for persistence
func (s *Sender) Item() Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Item{
		ID:       s.id,
		Interval: s.interval,
		Format:   s.format,
		Comment:  s.comment,
		Payload:  s.payload,
	}
}

func (s *Sender) SetFormat(f transport.TextFormat) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.format = f
}

func (s *Sender) SetComment(comment string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.comment = comment
}

func (s *Sender) SetPayload(payload string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.payload = payload
}

// SetInterval applies interval text. A running timer restarts with the new
// interval.
func (s *Sender) SetInterval(text string) {
	s.SetIntervalMillis(ParseInterval(text))
}

// SetIntervalMillis is SetInterval for an already parsed value
func (s *Sender) SetIntervalMillis(ms uint32) {
	s.life.Lock()
	defer s.life.Unlock()

	s.mu.Lock()
	s.interval = coerceInterval(ms)
	wasRunning := s.running
	s.mu.Unlock()

	if wasRunning {
		s.stopLocked()
		s.startLocked()
	}
}

// SetEnabled starts or stops the timer
func (s *Sender) SetEnabled(enabled bool) {
	if enabled {
		s.Start()
	} else {
		s.Stop()
	}
}

// Start arms the timer. The first write happens one full interval later.
func (s *Sender) Start() {
	s.life.Lock()
	defer s.life.Unlock()
	s.startLocked()
}

// Stop disarms the timer and waits for the loop to exit. A pending tick is
// discarded.
func (s *Sender) Stop() {
	s.life.Lock()
	defer s.life.Unlock()
	s.stopLocked()
}

// startLocked requires s.life
func (s *Sender) startLocked() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return
	}

	ticker := s.clock.Ticker(time.Duration(s.interval) * time.Millisecond)
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	s.running = true

	go s.run(ticker, s.stop, s.done)

	s.log.WithFields(logger.Fields{
		"id":       s.id,
		"interval": s.interval,
	}).Debug("Timed send started")
}

// stopLocked requires s.life. The loop may still take s.mu to fire, so the
// wait for it happens without s.mu held.
func (s *Sender) stopLocked() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	stop, done, id := s.stop, s.done, s.id
	s.running = false
	s.stop, s.done = nil, nil
	s.mu.Unlock()

	close(stop)
	<-done

	s.log.WithFields(logger.Fields{"id": id}).Debug("Timed send stopped")
}

func (s *Sender) run(ticker *clock.Ticker, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	defer ticker.Stop()
	defer helper.RecoverPanic(s.log, "timed-send")

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			select {
			case <-stop:
				return
			default:
			}
			if err := s.Fire(); err != nil {
				s.log.WithFields(logger.Fields{
					"id":    s.ID(),
					"error": err.Error(),
				}).Warn("Timed send write failed")
			}
		}
	}
}

// Fire writes the payload once. An empty payload writes nothing.
func (s *Sender) Fire() error {
	s.mu.Lock()
	payload, format := s.payload, s.format
	s.mu.Unlock()

	if payload == "" {
		return nil
	}
	return s.writer.WriteRawData(payload, format)
}
