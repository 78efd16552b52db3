package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]LogLevel{
		"trace":   TRACE,
		"DEBUG":   DEBUG,
		" info ":  INFO,
		"warning": WARN,
		"error":   ERROR,
		"verbose": INFO,
	}
	for input, expected := range tests {
		assert.Equal(t, expected, ParseLevel(input), "уровень для %q", input)
	}
}

func TestWriterLogger_FiltersByLevel(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriterLogger("game", &buf, INFO)

	l.Debug("скрыто %d", 1)
	l.Info("видно %d", 2)
	l.Error("ошибка %s", "x")

	out := buf.String()
	assert.NotContains(t, out, "скрыто")
	assert.Contains(t, out, "[INFO] [game] видно 2")
	assert.Contains(t, out, "[ERROR] [game] ошибка x")
	assert.Equal(t, 2, strings.Count(out, "\n"))
}

func TestNewLogger_WritesFile(t *testing.T) {
	dir := t.TempDir()
	prev := LogDir
	LogDir = dir
	defer func() { LogDir = prev }()

	l, err := NewLogger("storage")
	require.NoError(t, err)
	l.Debug("записано в файл")
	require.NoError(t, l.Close())

	matches, err := filepath.Glob(filepath.Join(dir, "storage_*.log"))
	require.NoError(t, err)
	require.Len(t, matches, 1)

	data, err := os.ReadFile(matches[0])
	require.NoError(t, err)
	assert.Contains(t, string(data), "записано в файл")
}

func TestLoggerManager(t *testing.T) {
	prev := LogDir
	LogDir = t.TempDir()
	defer func() { LogDir = prev }()

	lm := newLoggerManager()

	a := lm.Logger(ComponentGame)
	assert.Same(t, a, lm.Logger(ComponentGame))
	assert.NotSame(t, a, lm.Logger(ComponentAPI))

	lm.SetConsoleLevel(ERROR)
	assert.Equal(t, ERROR, a.minConsoleLevel)
	assert.Equal(t, ERROR, lm.Logger(ComponentStorage).minConsoleLevel)

	require.NoError(t, lm.CloseAll())
	assert.NotSame(t, a, lm.Logger(ComponentGame), "после CloseAll логгер создается заново")
	require.NoError(t, lm.CloseAll())
}
