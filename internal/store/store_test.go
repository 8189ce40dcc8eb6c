package store

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/CloudNativeWorks/sak-client/internal/timing"
	"github.com/CloudNativeWorks/sak-client/internal/transport"
	"github.com/CloudNativeWorks/sak-client/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	st, err := Open(context.Background(), filepath.Join(t.TempDir(), "nested", "sak.db"), logger.NewDiscard("store-test"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestSQLiteStore_CRUD(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)

	items, err := st.List(ctx, "tcp_client")
	require.NoError(t, err)
	assert.Empty(t, items)

	a := timing.Item{ID: 2, Interval: 500, Format: transport.FormatHex, Comment: "hb", Payload: "aa 55"}
	b := timing.Item{ID: 1, Interval: 1000, Format: transport.FormatUTF8, Payload: "AT\r\n"}
	require.NoError(t, st.Upsert(ctx, "tcp_client", a))
	require.NoError(t, st.Upsert(ctx, "tcp_client", b))

	items, err = st.List(ctx, "tcp_client")
	require.NoError(t, err)
	assert.Equal(t, []timing.Item{b, a}, items)

	a.Payload = "aa 66"
	require.NoError(t, st.Upsert(ctx, "tcp_client", a))
	items, err = st.List(ctx, "tcp_client")
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "aa 66", items[1].Payload)

	require.NoError(t, st.Delete(ctx, "tcp_client", 1))
	require.NoError(t, st.Delete(ctx, "tcp_client", 99))
	items, err = st.List(ctx, "tcp_client")
	require.NoError(t, err)
	assert.Equal(t, []timing.Item{a}, items)
}

func TestSQLiteStore_PagesAreSeparate(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)

	require.NoError(t, st.Upsert(ctx, "udp", timing.Item{ID: 1, Interval: 10, Payload: "u"}))
	require.NoError(t, st.Upsert(ctx, "serial", timing.Item{ID: 1, Interval: 10, Payload: "s"}))

	udp, err := st.List(ctx, "udp")
	require.NoError(t, err)
	require.Len(t, udp, 1)
	assert.Equal(t, "u", udp[0].Payload)
}

func TestSQLiteStore_RejectsBadPageType(t *testing.T) {
	st := openTestStore(t)

	_, err := st.List(context.Background(), "x; DROP TABLE y")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid page type")
}

func TestYAMLRoundTrip(t *testing.T) {
	ctx := context.Background()
	src := openTestStore(t)
	require.NoError(t, src.Upsert(ctx, "ws", timing.Item{ID: 7, Interval: 250, Format: transport.FormatHex, Payload: "01 02"}))

	var buf bytes.Buffer
	n, err := ExportYAML(ctx, src, "ws", &buf)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Contains(t, buf.String(), "format: hex")
	assert.Contains(t, buf.String(), "page_type: ws")

	dst := openTestStore(t)
	n, err = ImportYAML(ctx, dst, "", &buf)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	items, err := dst.List(ctx, "ws")
	require.NoError(t, err)
	assert.Equal(t, []timing.Item{{ID: 7, Interval: 250, Format: transport.FormatHex, Payload: "01 02"}}, items)
}

func TestImportYAML_Defaults(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)

	doc := "items:\n  - id: 3\n    format: ascii\n    payload: hello\n"
	n, err := ImportYAML(ctx, st, "tcp_server", strings.NewReader(doc))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	items, err := st.List(ctx, "tcp_server")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, timing.DefaultInterval, items[0].Interval)
	assert.Equal(t, transport.FormatASCII, items[0].Format)
}

func TestImportYAML_Errors(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)

	_, err := ImportYAML(ctx, st, "", strings.NewReader("items: []\n"))
	assert.Error(t, err, "missing page type")

	_, err = ImportYAML(ctx, st, "p", strings.NewReader("items:\n  - payload: x\n"))
	assert.Error(t, err, "missing id")

	_, err = ImportYAML(ctx, st, "p", strings.NewReader("items:\n  - id: 1\n    format: morse\n"))
	assert.Error(t, err, "bad format")
}
