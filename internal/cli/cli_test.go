package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bandcal/internal/model"
)

func TestRootRegistersCommands(t *testing.T) {
	for _, path := range [][]string{
		{"login"}, {"signup"}, {"logout"}, {"whoami"}, {"serve"},
		{"events", "list"}, {"events", "next"}, {"events", "export"}, {"events", "import"},
		{"users", "list"}, {"users", "create"}, {"users", "delete"},
	} {
		cmd, rest, err := rootCmd.Find(path)
		require.NoError(t, err, path)
		assert.Empty(t, rest, path)
		assert.Equal(t, path[len(path)-1], cmd.Name())
	}
}

func TestParseID(t *testing.T) {
	id, err := parseID("8F14E45F-CEEA-467F-A8F7-5B2E1B3C7D10")
	require.NoError(t, err)
	assert.Equal(t, "8f14e45f-ceea-467f-a8f7-5b2e1b3c7d10", id)

	_, err = parseID("42")
	assert.Error(t, err)
}

func TestPrintEvents(t *testing.T) {
	var buf bytes.Buffer
	printEvents(&buf, nil)
	assert.Equal(t, "No events.\n", buf.String())

	buf.Reset()
	printEvents(&buf, []model.Event{{
		ID: "e1", Title: "Nunta Popescu", Type: model.EventNunta,
		Location: "Hotel Continental", EventDate: "2025-06-14", EventTime: "18:00:00",
	}})
	out := buf.String()
	assert.Contains(t, out, "DATE")
	assert.Contains(t, out, "2025-06-14")
	assert.Contains(t, out, "18:00 ")
	assert.NotContains(t, out, "18:00:00")
	assert.Contains(t, out, model.EventNunta.Label())
}
