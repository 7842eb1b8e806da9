package warehouse

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"golang.org/x/time/rate"

	"github.com/warble-io/warble/internal/config"
	"github.com/warble-io/warble/internal/transform"
)

// ErrStatement is returned when an insert or lookup fails against the
// warehouse outside the expected idempotent-upsert path. A statement failure
// aborts the current file's transaction and propagates to the driver; prior
// files stay committed.
var ErrStatement = errors.New("warehouse statement failed")

// Insert statements for the star schema. Dimension inserts are idempotent on
// their natural keys; the users upsert applies last-write-wins on level; the
// fact insert is unconditional (facts have no natural key in the source
// data, so re-running a file duplicates its facts - a documented caller
// contract, not something this loader guards against).
const (
	insertArtistSQL = `
		INSERT INTO artists (artist_id, name, location, latitude, longitude)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (artist_id) DO NOTHING`

	insertSongSQL = `
		INSERT INTO songs (song_id, title, artist_id, year, duration)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (song_id) DO NOTHING`

	insertTimeSQL = `
		INSERT INTO time (start_time, hour, day, week, month, year, weekday)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (start_time) DO NOTHING`

	upsertUserSQL = `
		INSERT INTO users (user_id, first_name, last_name, gender, level)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id) DO UPDATE SET level = EXCLUDED.level`

	insertSongplaySQL = `
		INSERT INTO songplays (start_time, user_id, level, song_id, artist_id, session_id, location, user_agent)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	// Best-effort catalog resolution: exact match on title, artist name and
	// duration. No match is expected and not an error.
	selectSongArtistSQL = `
		SELECT s.song_id, s.artist_id
		FROM songs s
		JOIN artists a ON s.artist_id = a.artist_id
		WHERE s.title = $1 AND a.name = $2 AND s.duration = $3`
)

type (
	// Loader performs idempotent, per-file transactional loads of dimension
	// and fact rows into the PostgreSQL star schema.
	Loader struct {
		conn    *Connection
		logger  *slog.Logger
		limiter *rate.Limiter
	}

	// LoaderOption configures optional Loader behavior.
	LoaderOption func(*Loader)
)

// WithStatementRate throttles statement execution to at most rps statements
// per second. Useful when the warehouse is shared and an unthrottled backfill
// would starve interactive queries. Zero or negative rps leaves the loader
// unthrottled (the default).
func WithStatementRate(rps int) LoaderOption {
	return func(l *Loader) {
		if rps > 0 {
			l.limiter = rate.NewLimiter(rate.Limit(rps), rps)
		}
	}
}

// NewLoader creates a star-schema loader on an established connection.
// Returns ErrNoDatabaseConnection if conn is nil.
func NewLoader(conn *Connection, opts ...LoaderOption) (*Loader, error) {
	if conn == nil {
		return nil, ErrNoDatabaseConnection
	}

	loader := &Loader{
		conn: conn,
		logger: slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: config.GetEnvLogLevel("LOG_LEVEL", slog.LevelInfo),
		})),
	}

	for _, opt := range opts {
		opt(loader)
	}

	return loader, nil
}

// HealthCheck verifies the underlying connection is ready.
func (l *Loader) HealthCheck(ctx context.Context) error {
	return l.conn.HealthCheck(ctx)
}

// LoadCatalogFile loads one catalog file's dimension rows in a single
// transaction: artist first (songs reference artists), then song, both with
// insert-or-ignore semantics on their natural keys. Re-running the same file
// neither raises a uniqueness violation nor duplicates a row.
func (l *Loader) LoadCatalogFile(ctx context.Context, song transform.Song, artist transform.Artist) error {
	tx, err := l.conn.BeginTx(ctx, nil)
	if err != nil {
		return l.wrapStatementErr("begin catalog transaction", err)
	}

	defer func() {
		_ = tx.Rollback() // Safe to call even after commit
	}()

	if err := l.exec(ctx, tx, insertArtistSQL,
		artist.ID, artist.Name, artist.Location, artist.Latitude, artist.Longitude); err != nil {
		return l.wrapStatementErr("insert artist "+artist.ID, err)
	}

	if err := l.exec(ctx, tx, insertSongSQL,
		song.ID, song.Title, song.ArtistID, song.Year, song.Duration); err != nil {
		return l.wrapStatementErr("insert song "+song.ID, err)
	}

	if err := tx.Commit(); err != nil {
		return l.wrapStatementErr("commit catalog transaction", err)
	}

	l.logger.Debug("catalog file loaded",
		slog.String("song_id", song.ID),
		slog.String("artist_id", artist.ID),
	)

	return nil
}

// LoadEventFile loads one log file's rows in a single transaction, in the
// order the star schema requires: time rows, then users, then facts. Every
// fact's start_time and user_id therefore exist before (atomically with) the
// fact insert. Song/artist resolution is best-effort; unresolved facts carry
// NULL song_id and artist_id and are still inserted.
func (l *Loader) LoadEventFile(
	ctx context.Context,
	times []transform.TimeRow,
	users []transform.User,
	plays []transform.Songplay,
) error {
	tx, err := l.conn.BeginTx(ctx, nil)
	if err != nil {
		return l.wrapStatementErr("begin event transaction", err)
	}

	defer func() {
		_ = tx.Rollback() // Safe to call even after commit
	}()

	for _, row := range times {
		if err := l.exec(ctx, tx, insertTimeSQL,
			row.StartTime, row.Hour, row.Day, row.Week, row.Month, row.Year, row.Weekday); err != nil {
			return l.wrapStatementErr(fmt.Sprintf("insert time row %d", row.StartTime), err)
		}
	}

	// Users are applied in file order so a later row's level wins for a
	// repeated user_id (last-write-wins).
	for _, user := range users {
		if err := l.exec(ctx, tx, upsertUserSQL,
			user.ID, user.FirstName, user.LastName, user.Gender, user.Level); err != nil {
			return l.wrapStatementErr(fmt.Sprintf("upsert user %d", user.ID), err)
		}
	}

	for _, play := range plays {
		songID, artistID, err := l.resolveSong(ctx, tx, play)
		if err != nil {
			return err
		}

		if err := l.exec(ctx, tx, insertSongplaySQL,
			play.StartTime, play.UserID, play.Level, songID, artistID,
			play.SessionID, play.Location, play.UserAgent); err != nil {
			return l.wrapStatementErr(fmt.Sprintf("insert songplay at %d", play.StartTime), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return l.wrapStatementErr("commit event transaction", err)
	}

	l.logger.Debug("event file loaded",
		slog.Int("time_rows", len(times)),
		slog.Int("user_rows", len(users)),
		slog.Int("fact_rows", len(plays)),
	)

	return nil
}

// resolveSong looks up (song_id, artist_id) for a fact candidate by exact
// match on (title, artist name, duration). No match returns NULLs, not an
// error.
func (l *Loader) resolveSong(
	ctx context.Context,
	tx *sql.Tx,
	play transform.Songplay,
) (sql.NullString, sql.NullString, error) {
	var songID, artistID sql.NullString

	if err := l.wait(ctx); err != nil {
		return songID, artistID, err
	}

	err := tx.QueryRowContext(ctx, selectSongArtistSQL,
		play.SongTitle, play.ArtistName, play.Duration,
	).Scan(&songID.String, &artistID.String)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		// Unresolved lookup: expected for any play not in the catalog.
		return sql.NullString{}, sql.NullString{}, nil
	case err != nil:
		return songID, artistID, l.wrapStatementErr("resolve song/artist for "+play.SongTitle, err)
	default:
		songID.Valid = true
		artistID.Valid = true

		return songID, artistID, nil
	}
}

// exec runs one statement inside the file transaction, honoring the optional
// statement-rate limiter.
func (l *Loader) exec(ctx context.Context, tx *sql.Tx, query string, args ...any) error {
	if err := l.wait(ctx); err != nil {
		return err
	}

	_, err := tx.ExecContext(ctx, query, args...)

	return err
}

func (l *Loader) wait(ctx context.Context) error {
	if l.limiter == nil {
		return nil
	}

	return l.limiter.Wait(ctx)
}

// wrapStatementErr classifies a failed statement: connection loss surfaces as
// ErrConnectivity (fatal to the run), anything else as ErrStatement (aborts
// the current file only).
func (l *Loader) wrapStatementErr(op string, err error) error {
	if isConnectionError(err) {
		l.logger.Error("warehouse connection lost",
			slog.String("op", op),
			slog.String("error", err.Error()),
		)

		return fmt.Errorf("%w: %s: %w", ErrConnectivity, op, err)
	}

	l.logger.Error("warehouse statement failed",
		slog.String("op", op),
		slog.String("error", err.Error()),
	)

	return fmt.Errorf("%w: %s: %w", ErrStatement, op, err)
}
