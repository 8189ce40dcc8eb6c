package logger

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInit_InvalidLevel(t *testing.T) {
	err := Init(Config{Level: "loud"})
	assert.Error(t, err)
}

func TestInit_WithFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "logs", "sak.log")
	require.NoError(t, Init(Config{Level: "debug", Format: "json", File: file, MaxSize: 1}))

	l := NewLogger("test")
	assert.Equal(t, "test", l.Module())
	assert.Equal(t, logrus.DebugLevel, l.GetLevel())
}

func TestWithFields_AddsModule(t *testing.T) {
	var buf bytes.Buffer
	l := NewDiscard("timing")
	l.SetOutput(&buf)
	l.SetFormatter(&logrus.JSONFormatter{})

	l.WithFields(Fields{"id": 7}).Info("fired")

	assert.Contains(t, buf.String(), `"module":"timing"`)
	assert.Contains(t, buf.String(), `"id":7`)
}
