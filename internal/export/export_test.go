package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leadgrid/lead-engine/internal/lead"
)

func sampleLeads() []*lead.Lead {
	return []*lead.Lead{
		{
			ID:           1,
			BusinessName: "Hill Country Plumbing",
			Phone:        "+15125550134",
			City:         "Austin",
			State:        "TX",
			GoogleRating: 4.5,
			TechStack:    map[string]bool{"WordPress": true},
			QualityScore: 62,
			IsEnriched:   true,
			Source:       "yellowpages",
			ScrapedAt:    time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		},
		{
			ID:           2,
			BusinessName: "Empanadas, \"El Paso\"",
			State:        "TX",
			ScrapedAt:    time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		},
	}
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, sampleLeads()))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, Columns, rows[0])

	first := rows[1]
	assert.Equal(t, "Hill Country Plumbing", first[1])
	assert.Equal(t, "+15125550134", first[2])
	assert.Equal(t, "4.5", first[colIndex(t, "google_rating")])
	assert.Contains(t, first[colIndex(t, "tech_stack")], "WordPress")
	assert.Equal(t, "2025-06-01T12:00:00Z", first[colIndex(t, "scraped_at")])

	// Commas and quotes in names survive the round trip.
	assert.Equal(t, "Empanadas, \"El Paso\"", rows[2][1])
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, sampleLeads()))

	var records []map[string]string
	require.NoError(t, json.Unmarshal(buf.Bytes(), &records))
	require.Len(t, records, 2)
	assert.Equal(t, "Hill Country Plumbing", records[0]["business_name"])
	assert.Equal(t, "true", records[0]["is_enriched"])
	assert.Equal(t, "", records[1]["google_rating"])
}

func TestWriteCSVEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, nil))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 1)
}

func colIndex(t *testing.T, name string) int {
	t.Helper()
	for i, c := range Columns {
		if c == name {
			return i
		}
	}
	t.Fatalf("unknown column %q", name)
	return -1
}
