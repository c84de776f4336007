package report

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/tphakala/fallguard/internal/accident"
)

func sampleEpisodes() []accident.Episode {
	start := time.Date(2026, 5, 4, 7, 0, 0, 0, time.UTC)
	return []accident.Episode{
		{
			ID:                  "ep-1",
			StartedAt:           start,
			EndedAt:             start.Add(40 * time.Second),
			TriggeredAt:         start.Add(11 * time.Second),
			AccidentSeconds:     10.0333,
			EmergencyTriggered:  true,
			Outcome:             accident.OutcomeEmergency,
			AlertCount:          3,
			FramesProcessed:     900,
			CorroboratingFrames: 301,
		},
		{ID: "ep-2", StartedAt: start.Add(time.Hour), Outcome: accident.OutcomeCooldown, AlertCount: 1},
		{ID: "ep-3", StartedAt: start.Add(2 * time.Hour)},
	}
}

func TestWriteEpisodesXLSX(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteEpisodesXLSX(&buf, sampleEpisodes()))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(episodesSheet)
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, "Episode", rows[0][0])
	assert.Equal(t, "ep-1", rows[1][0])
	assert.Equal(t, "emergency", rows[1][3])
	assert.Equal(t, "10.03", rows[1][6])
	assert.Equal(t, "open", rows[3][3])

	summary, err := f.GetRows(summarySheet)
	require.NoError(t, err)
	assert.Equal(t, []string{"Episodes", "3"}, summary[0])
	assert.Equal(t, []string{"Emergencies", "1"}, summary[1])
}

func TestWriteEpisodesXLSXEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteEpisodesXLSX(&buf, nil))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows(episodesSheet)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestWriteIncidentPDF(t *testing.T) {
	ep := sampleEpisodes()[0]
	var buf bytes.Buffer
	require.NoError(t, WriteIncidentPDF(&buf, &ep, "hallway"))
	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("%PDF-")))
}
