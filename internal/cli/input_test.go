package cli

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joacominatel/pgstore/internal/database"
	"github.com/joacominatel/pgstore/internal/filter"
)

func TestParseScalar(t *testing.T) {
	tests := []struct {
		in   string
		want any
	}{
		{"42", int64(42)},
		{"-7", int64(-7)},
		{"2.5", 2.5},
		{"true", true},
		{"false", false},
		{"null", nil},
		{"web-1", "web-1"},
		{"NaN", "NaN"},
		{"TRUE", "TRUE"},
	}
	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			assert.Equal(t, tc.want, parseScalar(tc.in))
		})
	}
}

func TestReadRows(t *testing.T) {
	rows, err := readRows(`{"id": 1, "load": 0.5, "tags": [1, "a"]}`, nil)
	require.NoError(t, err)
	assert.Equal(t, []database.Row{{"id": int64(1), "load": 0.5, "tags": []any{int64(1), "a"}}}, rows)

	rows, err = readRows("-", strings.NewReader(`[{"id": 1}, {"id": 2}]`))
	require.NoError(t, err)
	assert.Len(t, rows, 2)

	_, err = readRows(`[1, 2]`, nil)
	assert.Error(t, err)
	_, err = readRows(`"x"`, nil)
	assert.Error(t, err)
	_, err = readRows(`{`, nil)
	assert.Error(t, err)
}

func TestReadWhere(t *testing.T) {
	expr, err := readWhere("", nil)
	require.NoError(t, err)
	assert.Nil(t, expr)

	expr, err = readWhere(`{"cpu": {"$gte": 2}, "$or": [{"region": "us"}, {"region": "eu"}]}`, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"cpu", "region"}, filter.Columns(expr))

	_, err = readWhere(`[1]`, nil)
	assert.Error(t, err)
}

func TestParseID(t *testing.T) {
	id, err := parseID("17")
	require.NoError(t, err)
	assert.Equal(t, int64(17), id)

	id, err = parseID(`{"guild_id": "g1", "user_id": 9}`)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"guild_id": "g1", "user_id": int64(9)}, id)
}

func TestFormatCell(t *testing.T) {
	id := uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")

	assert.Equal(t, "NULL", formatCell(nil))
	assert.Equal(t, "abc", formatCell([]byte("abc")))
	assert.Equal(t, "2026-01-02T03:04:05Z", formatCell(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)))
	assert.Equal(t, id.String(), formatCell([16]byte(id)))
	assert.Equal(t, `{"a":1}`, formatCell(map[string]any{"a": 1}))
	assert.Equal(t, "12", formatCell(int64(12)))
}

func TestRenderTable(t *testing.T) {
	long := strings.Repeat("x", 60)
	out := renderTable([]string{"id", "note"}, [][]string{{"1", "short"}, {"2", long}})

	lines := strings.Split(out, "\n")
	require.Len(t, lines, 4)
	assert.Contains(t, lines[0], "id")
	assert.Contains(t, lines[0], "note")
	assert.Contains(t, lines[1], "┼")
	assert.Contains(t, lines[2], "short")
	assert.Contains(t, lines[3], "…")
	assert.NotContains(t, lines[3], long)
}
