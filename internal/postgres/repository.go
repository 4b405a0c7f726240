package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/attendance-mainframe/internal/config"
	"github.com/attendance-mainframe/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository provides PostgreSQL-based data access
type Repository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewRepository creates a new PostgreSQL repository
func NewRepository(cfg *config.PostgresConfig, logger *slog.Logger) (*Repository, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parsing connection string: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxConnections)
	poolConfig.MinConns = int32(cfg.MinConnections)
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	// Test connection
	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	return &Repository{
		pool:   pool,
		logger: logger,
	}, nil
}

// Close closes the database connection pool
func (r *Repository) Close() {
	r.pool.Close()
}

// RunMigrations executes database migrations. Column encodings are kept
// wire-compatible with the legacy rows: attendance is JSON text, dates
// are RFC3339 text, and last_event_attended_date holds the literal
// string "null" for members who have never attended.
func (r *Repository) RunMigrations(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS events (
			id BIGSERIAL PRIMARY KEY,
			host BIGINT NOT NULL,
			attendance TEXT NOT NULL,
			event_date TEXT NOT NULL,
			location TEXT NOT NULL,
			kind TEXT NOT NULL,
			metadata TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS profiles (
			user_id BIGINT PRIMARY KEY,
			username TEXT,
			rank_id BIGINT NOT NULL,
			last_event_attended_date TEXT NOT NULL DEFAULT 'null',
			total_marks INT NOT NULL DEFAULT 0,
			marks_at_current_rank INT NOT NULL DEFAULT 0,
			events_attended_this_week INT NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_host ON events(host)`,
	}

	for _, migration := range migrations {
		_, err := r.pool.Exec(ctx, migration)
		if err != nil {
			return fmt.Errorf("executing migration: %w", err)
		}
	}

	r.logger.Info("database migrations completed")
	return nil
}

// InsertEvent stores a new event row and returns its id
func (r *Repository) InsertEvent(ctx context.Context, event domain.Event) (int64, error) {
	attendance, err := encodeAttendance(event.Attendance)
	if err != nil {
		return 0, err
	}
	metadata, err := encodeMetadata(event.Metadata)
	if err != nil {
		return 0, err
	}

	query := `
		INSERT INTO events (host, attendance, event_date, location, kind, metadata)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`
	var id int64
	err = r.pool.QueryRow(ctx, query,
		event.Host,
		attendance,
		encodeDate(event.EventDate),
		event.Location,
		event.Kind,
		metadata,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("inserting event: %w", err)
	}
	return id, nil
}

// scanEvent reconstructs an event from a stored row
func scanEvent(row pgx.Row) (*domain.Event, error) {
	var (
		event         domain.Event
		attendanceRaw string
		dateRaw       string
		metadataRaw   *string
	)
	err := row.Scan(
		&event.ID,
		&event.Host,
		&attendanceRaw,
		&dateRaw,
		&event.Location,
		&event.Kind,
		&metadataRaw,
	)
	if err != nil {
		return nil, err
	}

	if event.Attendance, err = decodeAttendance(attendanceRaw); err != nil {
		return nil, err
	}
	if event.EventDate, err = decodeDate(dateRaw); err != nil {
		return nil, err
	}
	if event.Metadata, err = decodeMetadata(metadataRaw); err != nil {
		return nil, err
	}
	return &event, nil
}

const eventColumns = `id, host, attendance, event_date, location, kind, metadata`

// GetEvent retrieves an event by id
func (r *Repository) GetEvent(ctx context.Context, eventID int64) (*domain.Event, error) {
	query := `SELECT ` + eventColumns + ` FROM events WHERE id = $1`
	event, err := scanEvent(r.pool.QueryRow(ctx, query, eventID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrEventNotFound
		}
		return nil, fmt.Errorf("getting event: %w", err)
	}
	return event, nil
}

// GetHostedEvents retrieves all events hosted by a member
func (r *Repository) GetHostedEvents(ctx context.Context, hostID int64) ([]domain.Event, error) {
	query := `SELECT ` + eventColumns + ` FROM events WHERE host = $1 ORDER BY id`
	rows, err := r.pool.Query(ctx, query, hostID)
	if err != nil {
		return nil, fmt.Errorf("getting hosted events: %w", err)
	}
	defer rows.Close()

	var events []domain.Event
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning event: %w", err)
		}
		events = append(events, *event)
	}
	return events, rows.Err()
}

// GetAttendedEventIDs returns the ids of all events whose attendance
// list contains the member. Attendance is opaque JSON text in the row,
// so the filter runs here after decoding.
func (r *Repository) GetAttendedEventIDs(ctx context.Context, userID int64) ([]int64, error) {
	query := `SELECT id, attendance FROM events ORDER BY id`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("getting attended events: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var (
			id            int64
			attendanceRaw string
		)
		if err := rows.Scan(&id, &attendanceRaw); err != nil {
			return nil, fmt.Errorf("scanning event: %w", err)
		}
		attendance, err := decodeAttendance(attendanceRaw)
		if err != nil {
			return nil, err
		}
		for _, attendee := range attendance {
			if attendee == userID {
				ids = append(ids, id)
				break
			}
		}
	}
	return ids, rows.Err()
}

// scanProfile reconstructs a profile from a stored row
func scanProfile(row pgx.Row) (*domain.Profile, error) {
	var (
		profile  domain.Profile
		username *string
		dateRaw  string
	)
	err := row.Scan(
		&profile.UserID,
		&username,
		&profile.RankID,
		&dateRaw,
		&profile.TotalMarks,
		&profile.MarksAtCurrentRank,
		&profile.EventsAttendedThisWeek,
	)
	if err != nil {
		return nil, err
	}

	if username != nil {
		profile.Username = *username
	}
	if profile.LastEventAttendedDate, err = decodeOptionalDate(dateRaw); err != nil {
		return nil, err
	}
	return &profile, nil
}

const profileColumns = `user_id, username, rank_id, last_event_attended_date, total_marks, marks_at_current_rank, events_attended_this_week`

// GetProfile retrieves a profile by member id
func (r *Repository) GetProfile(ctx context.Context, userID int64) (*domain.Profile, error) {
	query := `SELECT ` + profileColumns + ` FROM profiles WHERE user_id = $1`
	profile, err := scanProfile(r.pool.QueryRow(ctx, query, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrProfileNotFound
		}
		return nil, fmt.Errorf("getting profile: %w", err)
	}
	return profile, nil
}

// CreateProfile inserts a new profile row
func (r *Repository) CreateProfile(ctx context.Context, profile *domain.Profile) error {
	query := `
		INSERT INTO profiles (user_id, username, rank_id, last_event_attended_date, total_marks, marks_at_current_rank, events_attended_this_week)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id) DO NOTHING
	`
	var username *string
	if profile.Username != "" {
		username = &profile.Username
	}
	_, err := r.pool.Exec(ctx, query,
		profile.UserID,
		username,
		profile.RankID,
		encodeOptionalDate(profile.LastEventAttendedDate),
		profile.TotalMarks,
		profile.MarksAtCurrentRank,
		profile.EventsAttendedThisWeek,
	)
	if err != nil {
		return fmt.Errorf("creating profile: %w", err)
	}
	return nil
}

// WithProfile runs fn against the member's profile inside a transaction
// holding a row lock, then writes the mutated profile back. Concurrent
// attendance reports for the same member serialize here instead of
// losing updates.
func (r *Repository) WithProfile(ctx context.Context, userID int64, fn func(*domain.Profile) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `SELECT ` + profileColumns + ` FROM profiles WHERE user_id = $1 FOR UPDATE`
	profile, err := scanProfile(tx.QueryRow(ctx, query, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrProfileNotFound
		}
		return fmt.Errorf("locking profile: %w", err)
	}

	if err := fn(profile); err != nil {
		return err
	}

	var username *string
	if profile.Username != "" {
		username = &profile.Username
	}
	update := `
		UPDATE profiles
		SET username = $2,
		    rank_id = $3,
		    last_event_attended_date = $4,
		    total_marks = $5,
		    marks_at_current_rank = $6,
		    events_attended_this_week = $7
		WHERE user_id = $1
	`
	_, err = tx.Exec(ctx, update,
		profile.UserID,
		username,
		profile.RankID,
		encodeOptionalDate(profile.LastEventAttendedDate),
		profile.TotalMarks,
		profile.MarksAtCurrentRank,
		profile.EventsAttendedThisWeek,
	)
	if err != nil {
		return fmt.Errorf("updating profile: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing profile update: %w", err)
	}
	return nil
}

// ListProfiles retrieves all profiles
func (r *Repository) ListProfiles(ctx context.Context) ([]domain.Profile, error) {
	query := `SELECT ` + profileColumns + ` FROM profiles ORDER BY user_id`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing profiles: %w", err)
	}
	defer rows.Close()

	var profiles []domain.Profile
	for rows.Next() {
		profile, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning profile: %w", err)
		}
		profiles = append(profiles, *profile)
	}
	return profiles, rows.Err()
}
