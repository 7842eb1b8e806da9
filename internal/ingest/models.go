// Package ingest provides the raw record models and per-file extractors for
// the two input shapes the pipeline consumes: song catalog files (one JSON
// object per file) and listening-session log files (one JSON object per line).
//
// Extraction is file-at-a-time and fully in-memory; input files are small by
// contract. Extractors never touch the warehouse, so they are testable against
// plain fixture files.
package ingest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

// ErrMalformedRecord is returned when a file's JSON does not match the
// expected record shape. The failure is per-file: the driver logs it, skips
// the file and continues with the next one.
var ErrMalformedRecord = errors.New("malformed input record")

// PageNextSong is the log page value that marks an actual track playback.
// Every other page (Home, Login, Logout, ...) is discarded before
// transformation.
const PageNextSong = "NextSong"

type (
	// SongRecord is one row of the song catalog: a single song and the artist
	// that recorded it. Each catalog file carries exactly one of these.
	SongRecord struct {
		SongID          string   `json:"song_id"`
		Title           string   `json:"title"`
		ArtistID        string   `json:"artist_id"`
		Year            int      `json:"year"`
		Duration        float64  `json:"duration"`
		ArtistName      string   `json:"artist_name"`
		ArtistLocation  string   `json:"artist_location"`
		ArtistLatitude  *float64 `json:"artist_latitude"`
		ArtistLongitude *float64 `json:"artist_longitude"`
	}

	// PlayEvent is one qualifying row of a listening-session log file, i.e. a
	// line whose page is NextSong. Song, Artist and Length identify the track
	// as the client reported it; resolving them against the catalog is the
	// loader's job, not the extractor's.
	PlayEvent struct {
		Timestamp int64   `json:"ts"`
		UserID    FlexInt `json:"userId"`
		FirstName string  `json:"firstName"`
		LastName  string  `json:"lastName"`
		Gender    string  `json:"gender"`
		Level     string  `json:"level"`
		Song      string  `json:"song"`
		Artist    string  `json:"artist"`
		Length    float64 `json:"length"`
		SessionID int64   `json:"sessionId"`
		Location  string  `json:"location"`
		UserAgent string  `json:"userAgent"`

		// Page is kept so the extractor can filter; downstream code never
		// sees anything but NextSong.
		Page string `json:"page"`
	}

	// FlexInt is an integer that unmarshals from either a JSON number or a
	// quoted numeric string. The event logs carry userId both ways, and as ""
	// for anonymous sessions.
	FlexInt int
)

// UnmarshalJSON implements json.Unmarshaler.
func (f *FlexInt) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)

	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = 0

		return nil
	}

	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}

		if s == "" {
			*f = 0

			return nil
		}

		n, err := strconv.Atoi(s)
		if err != nil {
			return fmt.Errorf("invalid integer string %q: %w", s, err)
		}

		*f = FlexInt(n)

		return nil
	}

	var n int
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}

	*f = FlexInt(n)

	return nil
}

// Validate checks the invariants a catalog record must satisfy before it can
// seed the song and artist dimensions.
func (r *SongRecord) Validate() error {
	if r.SongID == "" {
		return fmt.Errorf("%w: song_id is empty", ErrMalformedRecord)
	}

	if r.Title == "" {
		return fmt.Errorf("%w: title is empty", ErrMalformedRecord)
	}

	if r.ArtistID == "" {
		return fmt.Errorf("%w: artist_id is empty", ErrMalformedRecord)
	}

	if r.Year < 0 {
		return fmt.Errorf("%w: year %d is negative", ErrMalformedRecord, r.Year)
	}

	if r.Duration <= 0 {
		return fmt.Errorf("%w: duration %f is not positive", ErrMalformedRecord, r.Duration)
	}

	return nil
}

// Validate checks the invariants a qualifying play event must satisfy before
// transformation. Only called on rows that already passed the NextSong filter.
func (e *PlayEvent) Validate() error {
	if e.Timestamp <= 0 {
		return fmt.Errorf("%w: ts %d is not a positive epoch millisecond", ErrMalformedRecord, e.Timestamp)
	}

	if e.UserID <= 0 {
		return fmt.Errorf("%w: userId %d is not a positive user key", ErrMalformedRecord, int(e.UserID))
	}

	if e.Level == "" {
		return fmt.Errorf("%w: level is empty", ErrMalformedRecord)
	}

	return nil
}
