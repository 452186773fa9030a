package report

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalCSVEmptyInput(t *testing.T) {
	out, err := MarshalCSV([]StatusCount{})
	require.NoError(t, err)
	assert.Equal(t, NoData, out)
}

func TestMarshalCSVHeaderFromJSONTags(t *testing.T) {
	out, err := MarshalCSV([]StatusCount{
		{Status: "confirmed", Count: 2, TotalRevenue: 200},
		{Status: "cancelled", Count: 1, TotalRevenue: 99.5},
	})
	require.NoError(t, err)

	lines := strings.Split(out, "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "status,count,totalRevenue", lines[0])
	assert.Equal(t, "confirmed,2,200", lines[1])
	assert.Equal(t, "cancelled,1,99.5", lines[2])
}

func TestMarshalCSVQuotesSpecialCharacters(t *testing.T) {
	type row struct {
		Name string `json:"name"`
		Note string `json:"note"`
	}
	out, err := MarshalCSV([]row{
		{Name: "Weber, Jonas", Note: `said "maybe"`},
	})
	require.NoError(t, err)

	lines := strings.Split(out, "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, `"Weber, Jonas","said ""maybe"""`, lines[1])
}

func TestMarshalCSVEncodesNestedValues(t *testing.T) {
	type row struct {
		ID   int      `json:"id"`
		Tags []string `json:"tags"`
	}
	out, err := MarshalCSV([]row{{ID: 1, Tags: []string{"a", "b"}}})
	require.NoError(t, err)

	lines := strings.Split(out, "\n")
	assert.Equal(t, `1,"[""a"",""b""]"`, lines[1])
}

func TestMarshalCSVSkipsDashTag(t *testing.T) {
	type row struct {
		Public string `json:"public"`
		Secret string `json:"-"`
	}
	out, err := MarshalCSV([]row{{Public: "x", Secret: "hidden"}})
	require.NoError(t, err)
	assert.Equal(t, "public\nx", out)
	assert.NotContains(t, out, "hidden")
}

func TestMarshalCSVRejectsNonSlice(t *testing.T) {
	_, err := MarshalCSV(StatusCount{})
	assert.Error(t, err)
}

func TestMarshalCSVRoundTrip(t *testing.T) {
	rows := []TrendPoint{
		{Bucket: "2026-03", Total: 3, Confirmed: 1, Cancelled: 1, Completed: 1},
		{Bucket: "2026-04", Total: 1, Confirmed: 1},
	}
	out, err := MarshalCSV(rows)
	require.NoError(t, err)

	lines := strings.Split(out, "\n")
	require.Len(t, lines, len(rows)+1)

	header := strings.Split(lines[0], ",")
	for i, row := range rows {
		fields := strings.Split(lines[i+1], ",")
		require.Len(t, fields, len(header))
		assert.Equal(t, row.Bucket, fields[0])
	}
}
