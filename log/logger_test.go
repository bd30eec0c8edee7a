/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package log

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func newFileLogger(t *testing.T, format Format) (FieldLogger, CloseFunc, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "reqbroker.log")
	cfg := NewDefaultConfig()
	cfg.Output = OutputFile
	cfg.Format = format
	cfg.NoColor = true
	cfg.File.Path = path
	logger, closeFunc := NewLogger(cfg)
	return logger, closeFunc, path
}

func TestLoggerToFile(t *testing.T) {
	logger, closeFunc, path := newFileLogger(t, FormatJSON)
	logger.Info("request dispatched", String("agent", "001"), Int("attempts", 2))
	logger.Debug("hidden at info level")
	logger.Error("send failed", Error(errors.New("no route to agent")))
	closeFunc()

	f, err := os.Open(path)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	var entries []map[string]interface{}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &entry))
		entries = append(entries, entry)
	}
	require.NoError(t, scanner.Err())
	require.Len(t, entries, 2)

	require.Equal(t, "info", entries[0]["level"])
	require.Equal(t, "request dispatched", entries[0]["msg"])
	require.Equal(t, "001", entries[0]["agent"])
	require.EqualValues(t, 2, entries[0]["attempts"])
	require.EqualValues(t, os.Getpid(), entries[0]["pid"])

	require.Equal(t, "error", entries[1]["level"])
	require.Equal(t, "no route to agent", entries[1]["error"])
}

func TestTextFormat(t *testing.T) {
	logger, closeFunc, path := newFileLogger(t, FormatText)
	logger.With(Error(errors.New("some error"))).Errorf("test %d", 42)
	logger.Debugf("hidden at info level")
	closeFunc()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(data)
	require.Contains(t, text, `|ERRO|`)
	require.Contains(t, text, ` test 42 `)
	require.NotContains(t, text, "hidden")
	require.Contains(t, text, `error="some error"`)
	require.Contains(t, text, fmt.Sprintf(`pid=%d`, os.Getpid()))
}

func TestResolvePlaceholders(t *testing.T) {
	res := resolvePlaceholders("/var/log/reqbroker-{{pid}}.log")
	require.Equal(t, fmt.Sprintf("/var/log/reqbroker-%d.log", os.Getpid()), res)
	require.False(t, strings.Contains(resolvePlaceholders("{{starttime}}.log"), "{{"))
}
