package cli

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andywolf/wikiagent/internal/events"
)

func TestFormatRecord(t *testing.T) {
	ts := time.Date(2024, 6, 15, 14, 30, 45, 0, time.UTC)
	tests := []struct {
		name string
		rec  events.Record
		want string
	}{
		{
			name: "full record",
			rec: events.Record{
				Timestamp:  ts,
				Loop:       3,
				Type:       events.EventAnswer,
				QuestionID: "q1",
				Reason:     "posted",
				Data:       map[string]interface{}{"tx": "0xabc", "bid": 25},
			},
			want: "[14:30:45] #3 ANSWER q1 posted bid=25 tx=0xabc\n",
		},
		{
			name: "no timestamp or question",
			rec:  events.Record{Loop: 1, Type: events.EventLoopSkip, Reason: "budget paused"},
			want: "#1 LOOP_SKIP budget paused\n",
		},
		{
			name: "structured data",
			rec: events.Record{
				Loop: 2,
				Type: events.EventDecision,
				Data: map[string]interface{}{"topics": []string{"rust", "go"}, "gate": nil},
			},
			want: "#2 DECISION gate=null topics=[\"rust\",\"go\"]\n",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			formatRecord(&buf, tt.rec)
			assert.Equal(t, tt.want, buf.String())
		})
	}
}

func TestParseEventTypes(t *testing.T) {
	types, err := parseEventTypes([]string{"answer", " abstain "})
	require.NoError(t, err)
	assert.Equal(t, []events.EventType{events.EventAnswer, events.EventAbstain}, types)

	_, err = parseEventTypes([]string{"answered"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `invalid --type "answered"`)
	assert.Contains(t, err.Error(), "wiki_join")
}

func TestLogsCommand_FiltersTrace(t *testing.T) {
	dir := t.TempDir()
	sink, err := events.NewFileSink(dir, "ada", nil)
	require.NoError(t, err)
	for _, rec := range []events.Record{
		{Loop: 1, Type: events.EventLoopStart},
		{Loop: 1, Type: events.EventAnswer, QuestionID: "q1", Reason: "posted"},
		{Loop: 1, Type: events.EventAbstain, QuestionID: "q2", Reason: "low confidence"},
		{Loop: 2, Type: events.EventAnswer, QuestionID: "q3", Reason: "posted"},
	} {
		require.NoError(t, sink.WriteOne(rec))
	}
	require.NoError(t, sink.Close())

	out, err := execute(t, "logs", "--file", filepath.Join(dir, "ada"+events.FileSuffix), "--type", "answer", "--tail", "1")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], "#2 ANSWER q3 posted")
}
