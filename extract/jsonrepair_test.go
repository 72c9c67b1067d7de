package extract

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseExtractionClean(t *testing.T) {
	out, state := parseExtraction(`{"entities": [{"name": "Acme Corp", "type": "ORGANIZATION"}], "relations": []}`)
	require.Equal(t, parseOK, state)
	require.Len(t, out.Entities, 1)
	require.Equal(t, "Acme Corp", out.Entities[0].Name)
}

func TestParseExtractionCodeFence(t *testing.T) {
	out, state := parseExtraction("Here is the result:\n```json\n{\"entities\": [], \"relations\": []}\n```\nDone.")
	require.Equal(t, parseOK, state)
	require.NotNil(t, out)
}

func TestParseExtractionRepairs(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{
			name: "trailing comma",
			in:   `{"entities": [{"name": "Acme", "type": "ORGANIZATION",}], "relations": [],}`,
		},
		{
			name: "unquoted keys",
			in:   `{entities: [{name: "Acme", type: "ORGANIZATION"}], relations: []}`,
		},
		{
			name: "truncated output",
			in:   `{"entities": [{"name": "Acme", "type": "ORGANIZATION"`,
		},
		{
			name: "doubled braces between elements",
			in:   `{"entities": [{"name": "A", "type": "CONCEPT"} {"name": "B", "type": "CONCEPT"}], "relations": []}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, state := parseExtraction(tt.in)
			require.Equal(t, parseRepaired, state)
			require.NotEmpty(t, out.Entities)
		})
	}
}

func TestParseExtractionFails(t *testing.T) {
	for _, in := range []string{"", "no json here", "[1, 2, 3]"} {
		_, state := parseExtraction(in)
		require.Equal(t, parseFailed, state, "input %q", in)
	}
}

func TestRepairJSONUnquotedValue(t *testing.T) {
	repaired := repairJSON(`{"name": Acme Corp, "count": 3}`)
	require.Contains(t, repaired, `"Acme Corp"`)
	require.Contains(t, repaired, `"count": 3`)
}
