package analytics

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLogFileDataCollector(t *testing.T) {
	fileName := filepath.Join(t.TempDir(), "steps.log")
	require.NoError(t, InitDataCollector(DataCollectorConfig{FileName: fileName, CollectorType: LOG_FILE_DATA_COLLECTOR}))
	t.Cleanup(func() { SetDataCollector(noopDataCollector{}) })

	RecordStepSuccess("@events/creation", "as-1", "@events/textMetadata", 0, "input:in progress")
	RecordStepFailure("@events/creation", "as-1", "@events/datesConfiguration", 1, "no dates")
	require.NoError(t, Close())

	content, err := os.ReadFile(fileName)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(content)), "\n")
	require.Len(t, lines, 2)

	var first, second map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &second))
	require.Equal(t, "success", first["msg"])
	require.Equal(t, "@events/textMetadata", first["action"])
	require.Equal(t, "failure", second["msg"])
	require.Equal(t, "no dates", second["reason"])
	require.Equal(t, float64(1), second["actionIdx"])
}

func TestLogFileDataCollectorClosesFile(t *testing.T) {
	lc, err := NewLogFileDataCollector(filepath.Join(t.TempDir(), "steps.log"))
	require.NoError(t, err)
	lc.RecordStepSuccess("@cart/creation", "as-2", "@cart/ticketSelections", 0, "event:in progress")
	require.NoError(t, lc.Close())

	_, err = lc.file.Write([]byte("late"))
	require.True(t, errors.Is(err, os.ErrClosed))
}
