package printer_test

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slok/stepbridge/internal/model"
	"github.com/slok/stepbridge/internal/printer"
)

func recordFixture() model.ExecutionRecord {
	startedAt := time.Date(2026, 1, 30, 10, 0, 0, 0, time.UTC)
	return model.ExecutionRecord{
		ID:         "01HQZX3C4G7Y2W8N5V6B9K0M1P",
		StepID:     "build",
		Backend:    "docker",
		Command:    "go test ./...",
		WorkingDir: "/src",
		ExitCode:   1,
		Completed:  true,
		StartedAt:  startedAt,
		FinishedAt: startedAt.Add(1500 * time.Millisecond),
	}
}

func TestTablePrinterPrintHistory(t *testing.T) {
	tests := map[string]struct {
		records  []model.ExecutionRecord
		expLines []string
	}{
		"No records should print nothing.": {},

		"A completed record should print its exit code.": {
			records:  []model.ExecutionRecord{recordFixture()},
			expLines: []string{"ID", "STEP", "01HQZX3C4G7Y2W8N5V6B9K0M1P", "build", "exit 1", "1.5s"},
		},

		"A failed record should print its error kind.": {
			records: func() []model.ExecutionRecord {
				r := recordFixture()
				r.StepID = ""
				r.Completed = false
				r.ErrorKind = model.ErrorKindTimeoutExceeded
				return []model.ExecutionRecord{r}
			}(),
			expLines: []string{model.ErrorKindTimeoutExceeded, " - "},
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)
			require := require.New(t)

			var buf bytes.Buffer
			err := printer.NewTablePrinter(&buf).PrintHistory(test.records)
			require.NoError(err)

			if len(test.expLines) == 0 {
				assert.Empty(buf.String())
			}
			for _, exp := range test.expLines {
				assert.Contains(buf.String(), exp)
			}
		})
	}
}

func TestTablePrinterPrintRecord(t *testing.T) {
	assert := assert.New(t)

	r := recordFixture()
	r.Error = "docker backend: spawn failure: not found"
	var buf bytes.Buffer
	err := printer.NewTablePrinter(&buf).PrintRecord(r)
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(out, "Command:    go test ./...")
	assert.Contains(out, "Error:      docker backend: spawn failure: not found")
	assert.Contains(out, "Started:    2026-01-30 10:00:00 UTC")
}

func TestTablePrinterPrintEnvironment(t *testing.T) {
	var buf bytes.Buffer
	err := printer.NewTablePrinter(&buf).PrintEnvironment(model.EnvSnapshot{"PATH": "/bin", "HOME": "/root", "EMPTY": ""})
	require.NoError(t, err)

	assert.Equal(t, "EMPTY=\nHOME=/root\nPATH=/bin\n", buf.String())
}

func TestJSONPrinterPrintHistory(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	var buf bytes.Buffer
	err := printer.NewJSONPrinter(&buf).PrintHistory([]model.ExecutionRecord{recordFixture()})
	require.NoError(err)

	var got []map[string]any
	require.NoError(json.Unmarshal(buf.Bytes(), &got))
	require.Len(got, 1)
	assert.Equal("build", got[0]["step_id"])
	assert.Equal(float64(1), got[0]["exit_code"])
	assert.Equal(float64(1500), got[0]["duration_ms"])
	assert.NotContains(got[0], "error_kind")
}

func TestJSONPrinterPrintEmpty(t *testing.T) {
	assert := assert.New(t)

	var buf bytes.Buffer
	p := printer.NewJSONPrinter(&buf)
	require.NoError(t, p.PrintHistory(nil))
	require.NoError(t, p.PrintEnvironment(nil))
	assert.Equal("[]\n{}\n", buf.String())
}

func TestJSONPrinterPrintPlatform(t *testing.T) {
	var buf bytes.Buffer
	err := printer.NewJSONPrinter(&buf).PrintPlatform("ssh", model.PlatformDarwin)
	require.NoError(t, err)

	assert.JSONEq(t, `{"backend": "ssh", "platform": "Darwin"}`, buf.String())
}

func TestTablePrinterPrintMessage(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printer.NewTablePrinter(&buf).PrintMessage("ok"))
	assert.Equal(t, "ok\n", buf.String())
}
