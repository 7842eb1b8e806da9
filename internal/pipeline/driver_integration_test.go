package pipeline

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"

	"github.com/warble-io/warble/internal/config"
	"github.com/warble-io/warble/internal/warehouse"
)

const (
	e2eSongJSON = `{"artist_id": "AR1", "artist_name": "A1", "artist_location": "Memphis, TN", "artist_latitude": 35.14968, "artist_longitude": -90.04892, "song_id": "SOE2E1", "title": "S1", "duration": 210.5, "year": 2018}`

	e2ePlayOne = `{"artist":"A1","firstName":"Lily","gender":"F","lastName":"Koch","length":210.5,"level":"paid","location":"Chicago, IL","page":"NextSong","sessionId":139,"song":"S1","ts":1541105830796,"userAgent":"Mozilla/5.0","userId":"7"}`
	e2ePlayTwo = `{"artist":"A1","firstName":"Lily","gender":"F","lastName":"Koch","length":210.5,"level":"paid","location":"Chicago, IL","page":"NextSong","sessionId":139,"song":"S1","ts":1541106106796,"userAgent":"Mozilla/5.0","userId":"7"}`
	e2eHome    = `{"firstName":"Lily","gender":"F","lastName":"Koch","level":"paid","location":"Chicago, IL","page":"Home","sessionId":139,"ts":1541106200796,"userAgent":"Mozilla/5.0","userId":"7"}`
)

func TestRun_EndToEnd(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()

	tw := config.SetupTestWarehouse(ctx, t)
	t.Cleanup(func() {
		_ = tw.Connection.Close()
		_ = testcontainers.TerminateContainer(tw.Container)
	})

	conn, err := warehouse.NewConnection(warehouse.NewConfig(tw.URL))
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = conn.Close()
	})

	loader, err := warehouse.NewLoader(conn)
	require.NoError(t, err)

	songDir := t.TempDir()
	logDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(songDir, "song1.json"), []byte(e2eSongJSON), 0o600))
	require.NoError(t, os.WriteFile(
		filepath.Join(logDir, "2018-11-01-events.json"),
		[]byte(e2ePlayOne+"\n"+e2ePlayTwo+"\n"+e2eHome+"\n"),
		0o600,
	))

	runner, err := NewRunner(loader, &Config{SongDir: songDir, LogDir: logDir, Extension: ".json"})
	require.NoError(t, err)

	result, err := runner.Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, result.Catalog.Processed)
	assert.Equal(t, 1, result.Events.Processed)

	// One catalog file, two qualifying plays with distinct timestamps:
	// 1 artist, 1 song, 1 user, 2 time rows, 2 facts, both resolved.
	counts := map[string]int{}
	for _, table := range []string{"artists", "songs", "users", "time", "songplays"} {
		var n int
		require.NoError(t, tw.Connection.QueryRow("SELECT COUNT(*) FROM "+table).Scan(&n))
		counts[table] = n
	}

	assert.Equal(t, 1, counts["artists"])
	assert.Equal(t, 1, counts["songs"])
	assert.Equal(t, 1, counts["users"])
	assert.Equal(t, 2, counts["time"])
	assert.Equal(t, 2, counts["songplays"])

	rows, err := tw.Connection.Query("SELECT song_id, artist_id FROM songplays ORDER BY start_time")
	require.NoError(t, err)

	defer func() {
		_ = rows.Close()
	}()

	for rows.Next() {
		var songID, artistID sql.NullString
		require.NoError(t, rows.Scan(&songID, &artistID))
		assert.Equal(t, "SOE2E1", songID.String)
		assert.Equal(t, "AR1", artistID.String)
	}

	require.NoError(t, rows.Err())
}

func TestRun_EndToEndRerunIdempotentDimensions(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()

	tw := config.SetupTestWarehouse(ctx, t)
	t.Cleanup(func() {
		_ = tw.Connection.Close()
		_ = testcontainers.TerminateContainer(tw.Container)
	})

	conn, err := warehouse.NewConnection(warehouse.NewConfig(tw.URL))
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = conn.Close()
	})

	loader, err := warehouse.NewLoader(conn)
	require.NoError(t, err)

	songDir := t.TempDir()
	logDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(songDir, "song1.json"), []byte(e2eSongJSON), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(logDir, "events.json"), []byte(e2ePlayOne+"\n"), 0o600))

	runner, err := NewRunner(loader, &Config{SongDir: songDir, LogDir: logDir, Extension: ".json"})
	require.NoError(t, err)

	_, err = runner.Run(ctx)
	require.NoError(t, err)

	_, err = runner.Run(ctx)
	require.NoError(t, err)

	var songs, facts int
	require.NoError(t, tw.Connection.QueryRow("SELECT COUNT(*) FROM songs").Scan(&songs))
	require.NoError(t, tw.Connection.QueryRow("SELECT COUNT(*) FROM songplays").Scan(&facts))

	// Dimensions stay deduplicated; facts duplicate on re-run, as documented.
	assert.Equal(t, 1, songs)
	assert.Equal(t, 2, facts)
}
