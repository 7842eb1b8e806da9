package transform

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warble-io/warble/internal/ingest"
)

func floatPtr(f float64) *float64 { return &f }

func TestSongDimensions(t *testing.T) {
	record := &ingest.SongRecord{
		SongID:          "SOMZWCG12A8C13C480",
		Title:           "I Didn't Mean To",
		ArtistID:        "ARD7TVE1187B99BFB1",
		Year:            1994,
		Duration:        218.93179,
		ArtistName:      "Casual",
		ArtistLocation:  "Memphis, TN",
		ArtistLatitude:  floatPtr(35.14968),
		ArtistLongitude: floatPtr(-90.04892),
	}

	song, artist := SongDimensions(record)

	assert.Equal(t, Song{
		ID:       "SOMZWCG12A8C13C480",
		Title:    "I Didn't Mean To",
		ArtistID: "ARD7TVE1187B99BFB1",
		Year:     1994,
		Duration: 218.93179,
	}, song)

	assert.Equal(t, "ARD7TVE1187B99BFB1", artist.ID)
	assert.Equal(t, "Casual", artist.Name)
	assert.Equal(t, "Memphis, TN", artist.Location)
	require.NotNil(t, artist.Latitude)
	assert.InDelta(t, 35.14968, *artist.Latitude, 1e-9)
}

func TestTimeFromMillis(t *testing.T) {
	// 2018-11-01T20:57:10.796Z, a Thursday.
	row := TimeFromMillis(1541105830796)

	assert.Equal(t, int64(1541105830796), row.StartTime)
	assert.Equal(t, 20, row.Hour)
	assert.Equal(t, 1, row.Day)
	assert.Equal(t, 44, row.Week)
	assert.Equal(t, 11, row.Month)
	assert.Equal(t, 2018, row.Year)
	assert.Equal(t, 3, row.Weekday)
}

func TestTimeFromMillis_Reproducible(t *testing.T) {
	first := TimeFromMillis(1541105830796)
	second := TimeFromMillis(1541105830796)

	assert.Equal(t, first, second)
}

func TestTimeFromMillis_WeekdayConvention(t *testing.T) {
	tests := []struct {
		name    string
		ms      int64
		weekday int
	}{
		// 2018-11-05 was a Monday, 2018-11-11 a Sunday.
		{"monday is zero", 1541376000000, 0},
		{"sunday is six", 1541894400000, 6},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.weekday, TimeFromMillis(tt.ms).Weekday)
		})
	}
}

func TestUserFromEvent(t *testing.T) {
	event := ingest.PlayEvent{
		UserID:    8,
		FirstName: "Kaylee",
		LastName:  "Summers",
		Gender:    "F",
		Level:     "free",
	}

	assert.Equal(t, User{
		ID:        8,
		FirstName: "Kaylee",
		LastName:  "Summers",
		Gender:    "F",
		Level:     "free",
	}, UserFromEvent(event))
}

func TestSongplayFromEvent(t *testing.T) {
	event := ingest.PlayEvent{
		Timestamp: 1541106106796,
		UserID:    8,
		Level:     "free",
		Song:      "S1",
		Artist:    "A1",
		Length:    210.5,
		SessionID: 139,
		Location:  "Phoenix-Mesa-Scottsdale, AZ",
		UserAgent: "Mozilla/5.0",
	}

	play := SongplayFromEvent(event)

	assert.Equal(t, int64(1541106106796), play.StartTime)
	assert.Equal(t, 8, play.UserID)
	assert.Equal(t, "S1", play.SongTitle)
	assert.Equal(t, "A1", play.ArtistName)
	assert.InDelta(t, 210.5, play.Duration, 1e-9)
	assert.Equal(t, int64(139), play.SessionID)
}

func TestEventRows_DistinctTimestamps(t *testing.T) {
	events := []ingest.PlayEvent{
		{Timestamp: 1541105830796, UserID: 7, Level: "free"},
		{Timestamp: 1541106106796, UserID: 7, Level: "free"},
		{Timestamp: 1541105830796, UserID: 8, Level: "paid"},
	}

	times, users, plays := EventRows(events)

	require.Len(t, times, 2)
	assert.Equal(t, int64(1541105830796), times[0].StartTime)
	assert.Equal(t, int64(1541106106796), times[1].StartTime)

	// Users and facts keep one entry per event, in file order.
	require.Len(t, users, 3)
	require.Len(t, plays, 3)
	assert.Equal(t, 7, users[0].ID)
	assert.Equal(t, 8, users[2].ID)
}

func TestEventRows_PreservesLevelOrder(t *testing.T) {
	// Same user, free then paid: the order must survive so the loader's
	// last-write-wins upsert lands on paid.
	events := []ingest.PlayEvent{
		{Timestamp: 1541105830796, UserID: 7, Level: "free"},
		{Timestamp: 1541106106796, UserID: 7, Level: "paid"},
	}

	_, users, _ := EventRows(events)

	require.Len(t, users, 2)
	assert.Equal(t, "free", users[0].Level)
	assert.Equal(t, "paid", users[1].Level)
}

func TestEventRows_Empty(t *testing.T) {
	times, users, plays := EventRows(nil)

	assert.Empty(t, times)
	assert.Empty(t, users)
	assert.Empty(t, plays)
}
