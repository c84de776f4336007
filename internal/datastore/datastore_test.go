package datastore

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/fallguard/internal/accident"
	"github.com/tphakala/fallguard/internal/conf"
	"github.com/tphakala/fallguard/internal/errors"
	"github.com/tphakala/fallguard/internal/events"
)

type opCounter map[string]int

func (o opCounter) RecordDbOperation(operation, _, status string, _ float64) {
	o[operation+"/"+status]++
}

func openTestStore(t *testing.T, ops opCounter) *DataStore {
	t.Helper()
	var rec OperationRecorder
	if ops != nil {
		rec = ops
	}
	ds, err := OpenSQLite(filepath.Join(t.TempDir(), "db", "fallguard.db"), rec)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ds.Close() })
	return ds
}

var base = time.Date(2026, 5, 4, 7, 0, 0, 0, time.UTC)

func TestSaveEpisodeUpserts(t *testing.T) {
	ops := opCounter{}
	ds := openTestStore(t, ops)
	ctx := t.Context()

	open := accident.Episode{ID: "ep-1", StartedAt: base, AlertCount: 1}
	require.NoError(t, ds.SaveEpisode(ctx, open))

	closed := open
	closed.AlertCount = 3
	closed.FramesProcessed = 400
	closed.CorroboratingFrames = 301
	closed.AccidentSeconds = 10.03
	closed.EmergencyTriggered = true
	closed.TriggeredAt = base.Add(11 * time.Second)
	closed.EndedAt = base.Add(30 * time.Second)
	closed.Outcome = accident.OutcomeEmergency
	require.NoError(t, ds.SaveEpisode(ctx, closed))

	got, err := ds.GetEpisode(ctx, "ep-1")
	require.NoError(t, err)
	assert.Equal(t, 3, got.AlertCount)
	assert.Equal(t, 301, got.CorroboratingFrames)
	assert.True(t, got.EmergencyTriggered)
	assert.Equal(t, accident.OutcomeEmergency, got.Outcome)
	assert.True(t, closed.EndedAt.Equal(got.EndedAt))
	assert.True(t, closed.TriggeredAt.Equal(got.TriggeredAt))

	n, err := ds.CountEpisodes(ctx, ListOptions{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, 2, ops["save/success"])
}

func TestGetEpisodeNotFound(t *testing.T) {
	ds := openTestStore(t, nil)
	_, err := ds.GetEpisode(t.Context(), "missing")
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
}

func TestListEpisodesFiltersAndPages(t *testing.T) {
	ds := openTestStore(t, nil)
	ctx := t.Context()
	for i := range 5 {
		require.NoError(t, ds.SaveEpisode(ctx, accident.Episode{
			ID:                 string(rune('a' + i)),
			StartedAt:          base.Add(time.Duration(i) * time.Hour),
			EmergencyTriggered: i%2 == 0,
			Outcome:            accident.OutcomeCooldown,
		}))
	}

	all, err := ds.ListEpisodes(ctx, ListOptions{})
	require.NoError(t, err)
	require.Len(t, all, 5)
	assert.Equal(t, "e", all[0].ID, "newest first")

	page, err := ds.ListEpisodes(ctx, ListOptions{Limit: 2, Offset: 1})
	require.NoError(t, err)
	assert.Equal(t, []string{"d", "c"}, []string{page[0].ID, page[1].ID})

	emergencies, err := ds.ListEpisodes(ctx, ListOptions{EmergencyOnly: true, Since: base.Add(time.Hour)})
	require.NoError(t, err)
	require.Len(t, emergencies, 2)
	assert.Equal(t, "e", emergencies[0].ID)
	assert.Equal(t, "c", emergencies[1].ID)

	n, err := ds.CountEpisodes(ctx, ListOptions{EmergencyOnly: true})
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

func TestRecorderPersistsEpisodeEvents(t *testing.T) {
	ds := openTestStore(t, nil)
	r := NewRecorder(ds)

	require.NoError(t, r.ProcessEvent(events.Event{Kind: events.KindVideo}))
	require.NoError(t, r.ProcessEvent(events.Event{Kind: events.KindEpisode,
		Episode: accident.Episode{ID: "ep-7", StartedAt: base}}))

	got, err := ds.GetEpisode(t.Context(), "ep-7")
	require.NoError(t, err)
	assert.False(t, got.Ended())
}

func TestNewWithoutOutput(t *testing.T) {
	ds, err := New(&conf.OutputSettings{}, nil)
	require.NoError(t, err)
	assert.Nil(t, ds)
}
