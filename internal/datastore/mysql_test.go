package datastore

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcmysql "github.com/testcontainers/testcontainers-go/modules/mysql"

	"github.com/tphakala/fallguard/internal/accident"
	"github.com/tphakala/fallguard/internal/conf"
)

// TestMySQLRoundTrip runs against a throwaway MySQL container. It needs a
// Docker daemon and FALLGUARD_TEST_DOCKER=1.
func TestMySQLRoundTrip(t *testing.T) {
	if os.Getenv("FALLGUARD_TEST_DOCKER") == "" {
		t.Skip("FALLGUARD_TEST_DOCKER not set")
	}
	ctx := t.Context()

	container, err := tcmysql.Run(ctx, "mysql:8.0",
		tcmysql.WithDatabase("fallguard"),
		tcmysql.WithUsername("fallguard"),
		tcmysql.WithPassword("secret"),
	)
	testcontainers.CleanupContainer(t, container)
	require.NoError(t, err)

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "3306/tcp")
	require.NoError(t, err)

	ds, err := OpenMySQL(&conf.MySQLSettings{
		Enabled:  true,
		Username: "fallguard",
		Password: "secret",
		Database: "fallguard",
		Host:     host,
		Port:     port.Port(),
	}, nil)
	require.NoError(t, err)
	defer ds.Close()

	started := time.Date(2026, 5, 4, 7, 0, 0, 0, time.UTC)
	ep := accident.Episode{ID: "ep-mysql", StartedAt: started, AlertCount: 2}
	require.NoError(t, ds.SaveEpisode(ctx, ep))

	ep.EmergencyTriggered = true
	ep.Outcome = accident.OutcomeEmergency
	ep.EndedAt = started.Add(time.Minute)
	require.NoError(t, ds.SaveEpisode(ctx, ep))

	got, err := ds.GetEpisode(ctx, "ep-mysql")
	require.NoError(t, err)
	assert.True(t, got.EmergencyTriggered)
	assert.Equal(t, accident.OutcomeEmergency, got.Outcome)
	assert.True(t, started.Equal(got.StartedAt))

	n, err := ds.CountEpisodes(ctx, ListOptions{EmergencyOnly: true})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}
