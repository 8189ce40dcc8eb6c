package transport

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/CloudNativeWorks/sak-client/internal/config"
	"github.com/CloudNativeWorks/sak-client/pkg/logger"
	"github.com/gorilla/websocket"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingConn struct {
	mu     sync.Mutex
	writes [][]byte
	fail   error
	closed bool
}

func (c *recordingConn) Write(_ context.Context, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail != nil {
		return c.fail
	}
	c.writes = append(c.writes, append([]byte(nil), data...))
	return nil
}

func (c *recordingConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func testConfig() config.TransportConfig {
	return config.TransportConfig{
		URL:             "test://",
		WriteTimeout:    time.Second,
		BreakerFailures: 3,
		BreakerTimeout:  time.Minute,
	}
}

func TestEncode(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		format TextFormat
		want   []byte
	}{
		{"bin", "00000001 11111111", FormatBin, []byte{0x01, 0xff}},
		{"oct", "7 10 377", FormatOct, []byte{7, 8, 255}},
		{"dec", " 1  2\n255 ", FormatDec, []byte{1, 2, 255}},
		{"hex", "aa 0xBB cc", FormatHex, []byte{0xaa, 0xbb, 0xcc}},
		{"ascii", "AT\r\n", FormatASCII, []byte("AT\r\n")},
		{"utf8", "héllo", FormatUTF8, []byte("héllo")},
		{"empty hex", "", FormatHex, []byte{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Encode(tt.text, tt.format)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEncode_Errors(t *testing.T) {
	_, err := Encode("zz", FormatHex)
	assert.Error(t, err)

	_, err = Encode("256", FormatDec)
	assert.Error(t, err)

	_, err = Encode("héllo", FormatASCII)
	assert.Error(t, err)

	_, err = Encode("x", TextFormat(42))
	assert.Error(t, err)
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("HEX")
	require.NoError(t, err)
	assert.Equal(t, FormatHex, f)

	f, err = ParseFormat("utf-8")
	require.NoError(t, err)
	assert.Equal(t, FormatUTF8, f)

	f, err = ParseFormat("4")
	require.NoError(t, err)
	assert.Equal(t, FormatASCII, f)

	_, err = ParseFormat("ebcdic")
	assert.Error(t, err)
	_, err = ParseFormat("9")
	assert.Error(t, err)
}

func TestClient_WriteRawData(t *testing.T) {
	conn := &recordingConn{}
	dials := 0
	c := NewClient(testConfig(), logger.NewDiscard("test"), WithDialer(func(context.Context) (Conn, error) {
		dials++
		return conn, nil
	}))

	require.NoError(t, c.WriteRawData("01 02", FormatHex))
	require.NoError(t, c.WriteRawData("hi", FormatUTF8))

	assert.Equal(t, 1, dials, "connection should be reused")
	assert.Equal(t, [][]byte{{0x01, 0x02}, []byte("hi")}, conn.writes)
	assert.Equal(t, Stats{Packets: 2, Bytes: 4}, c.Stats())
}

func TestClient_EncodeErrorDoesNotDial(t *testing.T) {
	c := NewClient(testConfig(), logger.NewDiscard("test"), WithDialer(func(context.Context) (Conn, error) {
		t.Fatal("dial should not be called")
		return nil, nil
	}))

	err := c.WriteRawData("not hex", FormatHex)
	require.Error(t, err)
	assert.Equal(t, uint64(1), c.Stats().Errors)
}

func TestClient_RedialsAfterFailure(t *testing.T) {
	bad := &recordingConn{fail: errors.New("broken pipe")}
	good := &recordingConn{}
	conns := []*recordingConn{bad, good}
	c := NewClient(testConfig(), logger.NewDiscard("test"), WithDialer(func(context.Context) (Conn, error) {
		next := conns[0]
		conns = conns[1:]
		return next, nil
	}))

	require.Error(t, c.WriteRawData("a", FormatUTF8))
	assert.True(t, bad.closed)

	require.NoError(t, c.WriteRawData("b", FormatUTF8))
	assert.Equal(t, [][]byte{[]byte("b")}, good.writes)
}

func TestClient_BreakerOpens(t *testing.T) {
	c := NewClient(testConfig(), logger.NewDiscard("test"), WithDialer(func(context.Context) (Conn, error) {
		return nil, errors.New("connection refused")
	}))

	for i := 0; i < 3; i++ {
		require.Error(t, c.WriteRawData("x", FormatUTF8))
	}
	assert.Equal(t, gobreaker.StateOpen, c.BreakerState())

	err := c.WriteRawData("x", FormatUTF8)
	require.Error(t, err)
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
}

func TestDial_TCP(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	received := make(chan []byte, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		buf := make([]byte, 16)
		n, _ := io.ReadAtLeast(conn, buf, 3)
		received <- buf[:n]
	}()

	cfg := testConfig()
	cfg.URL = "tcp://" + ln.Addr().String()
	c := NewClient(cfg, logger.NewDiscard("test"))
	defer c.Close()

	require.NoError(t, c.WriteRawData("41 42 43", FormatHex))

	select {
	case got := <-received:
		assert.Equal(t, []byte("ABC"), got)
	case <-time.After(2 * time.Second):
		t.Fatal("tcp server did not receive data")
	}
}

func TestDial_WebSocket(t *testing.T) {
	received := make(chan []byte, 1)
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		received <- data
	}))
	defer srv.Close()

	cfg := testConfig()
	cfg.URL = "ws" + strings.TrimPrefix(srv.URL, "http")
	c := NewClient(cfg, logger.NewDiscard("test"))
	defer c.Close()

	require.NoError(t, c.WriteRawData("ping", FormatASCII))

	select {
	case got := <-received:
		assert.Equal(t, []byte("ping"), got)
	case <-time.After(2 * time.Second):
		t.Fatal("websocket server did not receive data")
	}
}

func TestDial_UnsupportedScheme(t *testing.T) {
	_, err := Dial(context.Background(), "serial:///dev/ttyUSB0", time.Second)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported transport scheme")
}

func TestDumpConn(t *testing.T) {
	var buf bytes.Buffer
	conn := NewDumpConn(&buf)

	require.NoError(t, conn.Write(context.Background(), []byte("AB")))
	assert.Contains(t, buf.String(), "41 42")
}
