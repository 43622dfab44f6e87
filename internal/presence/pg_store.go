package presence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/warpgate-live/warpgate-server/internal/schema"
)

// selectColumns lists the columns returned by queries that produce a Record. Every
// method that scans into a Record must select these columns in this exact order.
const selectColumns = `uuid, name, account_type, roles, online, last_join, last_seen, last_leave, COALESCE(ip, '')`

// scanRecord scans a single row into a Record. The row must contain the columns
// listed in selectColumns.
func scanRecord(row pgx.Row) (Record, error) {
	var rec Record
	err := row.Scan(
		&rec.UUID, &rec.Name, &rec.AccountType, &rec.Roles,
		&rec.Online, &rec.LastJoin, &rec.LastSeen, &rec.LastLeave, &rec.IP,
	)
	if err != nil {
		return Record{}, fmt.Errorf("scan presence record: %w", err)
	}
	return rec, nil
}

// PGStore implements Store and StartTimeStore using PostgreSQL.
type PGStore struct {
	db  *pgxpool.Pool
	log zerolog.Logger
	now func() time.Time
}

// NewPGStore creates a new PostgreSQL-backed presence store.
func NewPGStore(db *pgxpool.Pool, logger zerolog.Logger) *PGStore {
	return &PGStore{
		db:  db,
		log: logger.With().Str("component", "presence").Logger(),
		now: time.Now,
	}
}

// MarkOnline upserts the user record with online=true. The roles column is only
// replaced when rolesToPersist is non-nil, so canonical store roles are never
// overwritten by client hints.
func (s *PGStore) MarkOnline(ctx context.Context, rec Record, rolesToPersist []string) error {
	now := s.now().UnixMilli()

	_, err := s.db.Exec(ctx,
		`INSERT INTO presence_users (uuid, name, account_type, roles, online, last_join, last_seen, ip)
		 VALUES ($1, $2, $3, $4, TRUE, $5, $5, NULLIF($6, ''))
		 ON CONFLICT (uuid) DO UPDATE SET
		   name = EXCLUDED.name,
		   account_type = EXCLUDED.account_type,
		   roles = CASE WHEN $7 THEN EXCLUDED.roles ELSE presence_users.roles END,
		   online = TRUE,
		   last_seen = EXCLUDED.last_seen,
		   ip = COALESCE(EXCLUDED.ip, presence_users.ip)`,
		rec.UUID, rec.Name, rec.AccountType, defaultedRoles(rec.Roles), now, rec.IP, rolesToPersist != nil,
	)
	if err != nil {
		return fmt.Errorf("mark %s online: %w", rec.UUID, err)
	}
	return nil
}

// MarkOffline flags the user offline and stamps last_leave. A stub record with
// default identity is inserted when the uuid has never been seen.
func (s *PGStore) MarkOffline(ctx context.Context, uuid string) error {
	now := s.now().UnixMilli()

	_, err := s.db.Exec(ctx,
		`INSERT INTO presence_users (uuid, name, account_type, roles, online, last_leave)
		 VALUES ($1, 'Unknown', $2, $3, FALSE, $4)
		 ON CONFLICT (uuid) DO UPDATE SET
		   online = FALSE,
		   last_leave = EXCLUDED.last_leave`,
		uuid, schema.DefaultAccountType, []string{schema.DefaultRole}, now,
	)
	if err != nil {
		return fmt.Errorf("mark %s offline: %w", uuid, err)
	}
	return nil
}

// UpdateLastSeen stamps last_seen and flags the user online.
func (s *PGStore) UpdateLastSeen(ctx context.Context, uuid string) error {
	now := s.now().UnixMilli()

	_, err := s.db.Exec(ctx,
		`INSERT INTO presence_users (uuid, name, account_type, roles, online, last_seen)
		 VALUES ($1, 'Unknown', $2, $3, TRUE, $4)
		 ON CONFLICT (uuid) DO UPDATE SET
		   online = TRUE,
		   last_seen = EXCLUDED.last_seen`,
		uuid, schema.DefaultAccountType, []string{schema.DefaultRole}, now,
	)
	if err != nil {
		return fmt.Errorf("update last seen for %s: %w", uuid, err)
	}
	return nil
}

// UpdateRoles replaces the stored role set.
func (s *PGStore) UpdateRoles(ctx context.Context, uuid string, roles []string) error {
	_, err := s.db.Exec(ctx,
		`UPDATE presence_users SET roles = $2 WHERE uuid = $1`,
		uuid, roles,
	)
	if err != nil {
		return fmt.Errorf("update roles for %s: %w", uuid, err)
	}
	return nil
}

// FetchRoles returns the canonical role set, or nil when the record is absent or
// its role set is empty.
func (s *PGStore) FetchRoles(ctx context.Context, uuid string) ([]string, error) {
	var roles []string
	err := s.db.QueryRow(ctx,
		`SELECT roles FROM presence_users WHERE uuid = $1`,
		uuid,
	).Scan(&roles)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fetch roles for %s: %w", uuid, err)
	}
	if len(roles) == 0 {
		return nil, nil
	}
	return roles, nil
}

// FetchOnlineUsers returns up to limit online records, most recently seen first.
func (s *PGStore) FetchOnlineUsers(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = DefaultOnlineLimit
	}

	rows, err := s.db.Query(ctx,
		`SELECT `+selectColumns+`
		 FROM presence_users
		 WHERE online
		 ORDER BY last_seen DESC
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("fetch online users: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate online users: %w", err)
	}
	return records, nil
}

// CountOnlineUsers returns the number of online records.
func (s *PGStore) CountOnlineUsers(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM presence_users WHERE online`,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count online users: %w", err)
	}
	return count, nil
}

// EnsureStartedAt persists the process start time for the given environment. The
// stored value is kept while the commit hash matches (first writer wins); a new
// commit hash replaces both the hash and the start time.
func (s *PGStore) EnsureStartedAt(ctx context.Context, env, commitHash string, nowMS int64) (int64, error) {
	var startedAt int64
	err := s.db.QueryRow(ctx,
		`INSERT INTO gateway_health (env, started_at_ms, commit_hash)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (env) DO UPDATE SET
		   started_at_ms = CASE
		     WHEN gateway_health.commit_hash = EXCLUDED.commit_hash THEN gateway_health.started_at_ms
		     ELSE EXCLUDED.started_at_ms
		   END,
		   commit_hash = EXCLUDED.commit_hash
		 RETURNING started_at_ms`,
		env, nowMS, commitHash,
	).Scan(&startedAt)
	if err != nil {
		return 0, fmt.Errorf("ensure started_at for %s: %w", env, err)
	}
	return startedAt, nil
}

// defaultedRoles guards the invariant that a stored role set is never empty.
func defaultedRoles(roles []string) []string {
	if len(roles) == 0 {
		return []string{schema.DefaultRole}
	}
	return roles
}
