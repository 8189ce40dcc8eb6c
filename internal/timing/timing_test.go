package timing

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/CloudNativeWorks/sak-client/internal/transport"
	"github.com/CloudNativeWorks/sak-client/pkg/logger"
	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type write struct {
	text   string
	format transport.TextFormat
}

type fakeWriter struct {
	mu     sync.Mutex
	writes []write
	err    error
}

func (w *fakeWriter) WriteRawData(text string, format transport.TextFormat) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.writes = append(w.writes, write{text, format})
	return w.err
}

func (w *fakeWriter) count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.writes)
}

type memStore struct {
	items map[string]map[int64]Item
	err   error
}

func newMemStore() *memStore {
	return &memStore{items: make(map[string]map[int64]Item)}
}

func (s *memStore) List(_ context.Context, page string) ([]Item, error) {
	if s.err != nil {
		return nil, s.err
	}
	var out []Item
	for _, it := range s.items[page] {
		out = append(out, it)
	}
	return out, nil
}

func (s *memStore) Upsert(_ context.Context, page string, item Item) error {
	if s.err != nil {
		return s.err
	}
	if s.items[page] == nil {
		s.items[page] = make(map[int64]Item)
	}
	s.items[page][item.ID] = item
	return nil
}

func (s *memStore) Delete(_ context.Context, page string, id int64) error {
	if s.err != nil {
		return s.err
	}
	delete(s.items[page], id)
	return nil
}

func newTestSender(w transport.Writer, clk clock.Clock, item Item) *Sender {
	return NewSender(item, w, clk, logger.NewDiscard("timing-test"))
}

func TestParseInterval(t *testing.T) {
	tests := []struct {
		text string
		want uint32
	}{
		{"0", 1000},
		{"", 1000},
		{"abc", 1000},
		{"-5", 1000},
		{"250", 250},
		{" 20 ", 20},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseInterval(tt.text))
		})
	}
}

func TestSender_ZeroIntervalCoerced(t *testing.T) {
	s := newTestSender(&fakeWriter{}, clock.NewMock(), Item{ID: 1})
	assert.Equal(t, DefaultInterval, s.Interval())

	s.SetInterval("0")
	assert.Equal(t, uint32(1000), s.Interval())
}

func TestSender_FireEmptyPayloadNoWrite(t *testing.T) {
	w := &fakeWriter{}
	s := newTestSender(w, clock.NewMock(), Item{ID: 1, Interval: 10})

	require.NoError(t, s.Fire())
	assert.Equal(t, 0, w.count())
}

func TestSender_FireWritesLiveState(t *testing.T) {
	w := &fakeWriter{}
	s := newTestSender(w, clock.NewMock(), Item{ID: 1, Payload: "old", Format: transport.FormatUTF8})

	s.SetPayload("aa bb")
	s.SetFormat(transport.FormatHex)
	s.SetComment("probe")
	require.NoError(t, s.Fire())

	require.Equal(t, 1, w.count())
	assert.Equal(t, write{"aa bb", transport.FormatHex}, w.writes[0])
	assert.Equal(t, Item{ID: 1, Interval: 1000, Format: transport.FormatHex, Comment: "probe", Payload: "aa bb"}, s.Item())
}

func TestSender_FireReturnsWriterError(t *testing.T) {
	w := &fakeWriter{err: errors.New("port closed")}
	s := newTestSender(w, clock.NewMock(), Item{ID: 1, Payload: "x"})

	assert.EqualError(t, s.Fire(), "port closed")
}

func TestSender_TimerFires(t *testing.T) {
	w := &fakeWriter{}
	mock := clock.NewMock()
	s := newTestSender(w, mock, Item{ID: 1, Interval: 100, Payload: "tick"})

	s.Start()
	defer s.Stop()
	assert.True(t, s.Running())

	mock.Add(100 * time.Millisecond)
	assert.Eventually(t, func() bool { return w.count() == 1 }, time.Second, 5*time.Millisecond)

	mock.Add(100 * time.Millisecond)
	assert.Eventually(t, func() bool { return w.count() == 2 }, time.Second, 5*time.Millisecond)
}

func TestSender_EmptyPayloadTimerNeverWrites(t *testing.T) {
	w := &fakeWriter{}
	mock := clock.NewMock()
	s := newTestSender(w, mock, Item{ID: 1, Interval: 0})

	s.Start()
	defer s.Stop()

	mock.Add(5 * time.Second)
	assert.Never(t, func() bool { return w.count() > 0 }, 50*time.Millisecond, 5*time.Millisecond)
}

func TestSender_ToggleRestartsWindow(t *testing.T) {
	w := &fakeWriter{}
	mock := clock.NewMock()
	s := newTestSender(w, mock, Item{ID: 1, Interval: 1000, Payload: "x"})

	s.SetEnabled(true)
	mock.Add(600 * time.Millisecond)
	s.SetEnabled(false)
	assert.False(t, s.Running())

	s.SetEnabled(true)
	defer s.Stop()

	// 1200ms since the first start, but only 600ms into the new window
	mock.Add(600 * time.Millisecond)
	assert.Never(t, func() bool { return w.count() > 0 }, 50*time.Millisecond, 5*time.Millisecond)

	mock.Add(400 * time.Millisecond)
	assert.Eventually(t, func() bool { return w.count() == 1 }, time.Second, 5*time.Millisecond)
}

func TestSender_StoppedTimerDoesNotFire(t *testing.T) {
	w := &fakeWriter{}
	mock := clock.NewMock()
	s := newTestSender(w, mock, Item{ID: 1, Interval: 100, Payload: "x"})

	s.Start()
	s.Stop()
	s.Stop() // idempotent

	mock.Add(time.Second)
	assert.Never(t, func() bool { return w.count() > 0 }, 50*time.Millisecond, 5*time.Millisecond)
}

func TestSender_SetIntervalWhileRunning(t *testing.T) {
	w := &fakeWriter{}
	mock := clock.NewMock()
	s := newTestSender(w, mock, Item{ID: 1, Interval: 1000, Payload: "x"})

	s.Start()
	defer s.Stop()

	s.SetInterval("200")
	assert.True(t, s.Running())
	assert.Equal(t, uint32(200), s.Interval())

	mock.Add(200 * time.Millisecond)
	assert.Eventually(t, func() bool { return w.count() == 1 }, time.Second, 5*time.Millisecond)
}

func TestManager_AddAssignsTimestampID(t *testing.T) {
	mock := clock.NewMock()
	mock.Set(time.UnixMilli(1_700_000_000_000))
	m := NewManager("tcp_client", &fakeWriter{}, newMemStore(), logger.NewDiscard("test"), WithClock(mock))

	a := m.Add(Item{Payload: "a"})
	b := m.Add(Item{Payload: "b"})

	assert.Equal(t, int64(1_700_000_000_000), a.ID())
	assert.Equal(t, int64(1_700_000_000_001), b.ID(), "same millisecond must not collide")
	assert.Len(t, m.Senders(), 2)
}

func TestManager_UpdateLoadRemove(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	mock := clock.NewMock()
	m := NewManager("udp", &fakeWriter{}, store, logger.NewDiscard("test"), WithClock(mock))

	s := m.Add(Item{Interval: 50, Format: transport.FormatHex, Payload: "01"})
	s.SetComment("keepalive")
	require.NoError(t, m.Update(ctx, s.ID()))
	assert.Equal(t, "keepalive", store.items["udp"][s.ID()].Comment)

	other := NewManager("udp", &fakeWriter{}, store, logger.NewDiscard("test"), WithClock(mock))
	require.NoError(t, other.Load(ctx))
	loaded, ok := other.Get(s.ID())
	require.True(t, ok)
	assert.Equal(t, s.Item(), loaded.Item())

	require.NoError(t, other.Remove(ctx, s.ID()))
	_, ok = other.Get(s.ID())
	assert.False(t, ok)
	assert.Empty(t, store.items["udp"])

	assert.Error(t, other.Remove(ctx, s.ID()))
	assert.Error(t, other.Update(ctx, 42))
}

func TestManager_LoadError(t *testing.T) {
	store := newMemStore()
	store.err = errors.New("disk full")
	m := NewManager("udp", &fakeWriter{}, store, logger.NewDiscard("test"))

	err := m.Load(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
}

func TestManager_StartAllSkipsEmpty(t *testing.T) {
	mock := clock.NewMock()
	m := NewManager("p", &fakeWriter{}, newMemStore(), logger.NewDiscard("test"), WithClock(mock))
	m.Add(Item{Payload: "x"})
	m.Add(Item{})

	assert.Equal(t, 1, m.StartAll())
	m.StopAll()
	for _, s := range m.Senders() {
		assert.False(t, s.Running())
	}
}

func TestSender_DisableDuringIntervalChangeStaysIdle(t *testing.T) {
	w := &fakeWriter{}

	for i := 0; i < 200; i++ {
		s := newTestSender(w, clock.NewMock(), Item{ID: 1, Interval: 1000, Payload: "x"})
		s.Start()

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			s.SetInterval("50")
		}()
		go func() {
			defer wg.Done()
			s.SetEnabled(false)
		}()
		wg.Wait()

		require.False(t, s.Running(), "iteration %d", i)
		assert.Equal(t, uint32(50), s.Interval())
	}
}
