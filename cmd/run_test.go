package cmd

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smazurov/procpool/internal/jobs"
	"github.com/smazurov/procpool/internal/process"
)

func sampleResults() []jobs.Result {
	return []jobs.Result{
		{Name: "list", State: process.StateFinished, Lines: 4},
		{Name: "sync", State: process.StateFinished, ExitCode: 2, ErrLines: 1},
	}
}

func TestWriteResultsTable(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeResultsTable(&buf, sampleResults()))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, []string{"JOB", "STATE", "EXIT", "LINES", "ERRORS"}, strings.Fields(lines[0]))
	assert.Equal(t, []string{"list", "finished", "0", "4", "0"}, strings.Fields(lines[1]))
	assert.Equal(t, []string{"sync", "finished", "2", "0", "1"}, strings.Fields(lines[2]))
}

func TestWriteResultsJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeResultsJSON(&buf, sampleResults()))

	var decoded []map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	require.Len(t, decoded, 2)
	assert.Equal(t, "sync", decoded[1]["name"])
	assert.InDelta(t, 2, decoded[1]["exit_code"], 0)
}

func TestCreateRunCmd(t *testing.T) {
	c := CreateRunCmd()
	assert.Equal(t, "run", c.Name())
	for _, name := range []string{"limit", "log-json", "json"} {
		assert.NotNil(t, c.Flags().Lookup(name), name)
	}
	assert.Error(t, c.Args(c, nil))
	assert.NoError(t, c.Args(c, []string{"jobs.toml"}))
}
