// Package transform derives dimension and fact candidate rows from extracted
// records. It is pure data shaping: no database access happens here, which
// keeps the star-schema decomposition testable without a live warehouse.
//
// Foreign-key resolution (matching a play event's raw song/artist/length back
// to catalog keys) deliberately does NOT happen here; it needs a database
// round-trip and belongs to the warehouse loader.
package transform

import (
	"time"

	"github.com/warble-io/warble/internal/ingest"
)

type (
	// Artist is a row of the artists dimension, keyed by the catalog's
	// natural artist_id. Immutable once created.
	Artist struct {
		ID        string
		Name      string
		Location  string
		Latitude  *float64
		Longitude *float64
	}

	// Song is a row of the songs dimension, keyed by the catalog's natural
	// song_id. Year 0 means unknown.
	Song struct {
		ID       string
		Title    string
		ArtistID string
		Year     int
		Duration float64
	}

	// TimeRow is a row of the time dimension: one play-event timestamp broken
	// down into queryable parts. Keyed by the raw epoch-millisecond value.
	TimeRow struct {
		StartTime int64
		Hour      int
		Day       int
		Week      int
		Month     int
		Year      int
		Weekday   int
	}

	// User is a row of the users dimension, keyed by the log's natural
	// integer user id. Level is the only field the loader ever updates.
	User struct {
		ID        int
		FirstName string
		LastName  string
		Gender    string
		Level     string
	}

	// Songplay is a fact candidate: one playback event. SongTitle, ArtistName
	// and Duration carry the raw values the loader needs for its best-effort
	// catalog lookup.
	Songplay struct {
		StartTime  int64
		UserID     int
		Level      string
		SongTitle  string
		ArtistName string
		Duration   float64
		SessionID  int64
		Location   string
		UserAgent  string
	}
)

// SongDimensions projects one catalog record onto its song and artist
// dimension rows. Pure field selection, no computation.
func SongDimensions(record *ingest.SongRecord) (Song, Artist) {
	song := Song{
		ID:       record.SongID,
		Title:    record.Title,
		ArtistID: record.ArtistID,
		Year:     record.Year,
		Duration: record.Duration,
	}

	artist := Artist{
		ID:        record.ArtistID,
		Name:      record.ArtistName,
		Location:  record.ArtistLocation,
		Latitude:  record.ArtistLatitude,
		Longitude: record.ArtistLongitude,
	}

	return song, artist
}

// TimeFromMillis decomposes an epoch-millisecond timestamp into a time
// dimension row. Decomposition is done in UTC so the same millisecond value
// always yields the same tuple regardless of host timezone.
//
// Week is the ISO 8601 week number; Weekday uses Monday=0 .. Sunday=6, the
// convention the warehouse's downstream consumers already expect.
func TimeFromMillis(ms int64) TimeRow {
	t := time.UnixMilli(ms).UTC()
	_, week := t.ISOWeek()

	return TimeRow{
		StartTime: ms,
		Hour:      t.Hour(),
		Day:       t.Day(),
		Week:      week,
		Month:     int(t.Month()),
		Year:      t.Year(),
		Weekday:   (int(t.Weekday()) + 6) % 7,
	}
}

// UserFromEvent derives a user dimension candidate from a play event.
func UserFromEvent(event ingest.PlayEvent) User {
	return User{
		ID:        int(event.UserID),
		FirstName: event.FirstName,
		LastName:  event.LastName,
		Gender:    event.Gender,
		Level:     event.Level,
	}
}

// SongplayFromEvent derives a fact candidate from a play event.
func SongplayFromEvent(event ingest.PlayEvent) Songplay {
	return Songplay{
		StartTime:  event.Timestamp,
		UserID:     int(event.UserID),
		Level:      event.Level,
		SongTitle:  event.Song,
		ArtistName: event.Artist,
		Duration:   event.Length,
		SessionID:  event.SessionID,
		Location:   event.Location,
		UserAgent:  event.UserAgent,
	}
}

// EventRows derives everything the loader needs from one log file's
// qualifying events: time rows (one per distinct timestamp, first-seen
// order), user candidates (one per event, in file order so last-write-wins on
// level is preserved), and one fact candidate per event.
func EventRows(events []ingest.PlayEvent) ([]TimeRow, []User, []Songplay) {
	var (
		times     []TimeRow
		seenTimes = make(map[int64]struct{}, len(events))
		users     = make([]User, 0, len(events))
		plays     = make([]Songplay, 0, len(events))
	)

	for _, event := range events {
		if _, seen := seenTimes[event.Timestamp]; !seen {
			seenTimes[event.Timestamp] = struct{}{}
			times = append(times, TimeFromMillis(event.Timestamp))
		}

		users = append(users, UserFromEvent(event))
		plays = append(plays, SongplayFromEvent(event))
	}

	return times, users, plays
}
