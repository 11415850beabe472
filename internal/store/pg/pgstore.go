package pg

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"unilink.org/internal/auth"
	"unilink.org/internal/reconcile"
)

const (
	pgErrUniqueViolation     = "23505"
	pgErrForeignKeyViolation = "23503"
)

type Store struct {
	db *sql.DB
}

var (
	_ auth.UserStore     = (*Store)(nil)
	_ auth.MappingStore  = (*Store)(nil)
	_ reconcile.LogStore = (*Store)(nil)
)

func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	// Tuned pool defaults; adjust under load tests
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{db: db}, nil
}

// NewWithDB wraps an existing connection, for tests.
func NewWithDB(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Create(ctx context.Context, u *auth.AuthUser) error {
	if u == nil || u.MemberID == "" {
		return auth.ErrInvalidInput
	}
	row := s.db.QueryRowContext(ctx, `
		insert into auth_users (member_id, username, registration_code, authenticated_at, duplicate_of_id)
		values ($1, $2, $3, $4, $5)
		returning id, created_at, updated_at
	`, u.MemberID, u.Username, u.RegistrationCode, u.AuthenticatedAt, u.DuplicateOfID)
	if err := row.Scan(&u.ID, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return auth.ErrAlreadyExists
		}
		return err
	}
	return nil
}

func (s *Store) FindByMember(ctx context.Context, memberID string) (*auth.AuthUser, error) {
	u, err := s.scanUser(s.db.QueryRowContext(ctx, `
		select id, member_id, username, registration_code, authenticated_at, duplicate_of_id, created_at, updated_at
		from auth_users
		where member_id = $1
	`, memberID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return u, nil
}

func (s *Store) FindByUsername(ctx context.Context, username string) ([]*auth.AuthUser, error) {
	if username == "" {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		select id, member_id, username, registration_code, authenticated_at, duplicate_of_id, created_at, updated_at
		from auth_users
		where username = $1
		order by id
	`, username)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []*auth.AuthUser
	for rows.Next() {
		u, err := s.scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) Update(ctx context.Context, u *auth.AuthUser) error {
	if u == nil || u.ID == 0 {
		return auth.ErrInvalidInput
	}
	res, err := s.db.ExecContext(ctx, `
		update auth_users
		set username = $2,
		    registration_code = $3,
		    authenticated_at = $4,
		    duplicate_of_id = $5,
		    updated_at = now()
		where id = $1
	`, u.ID, u.Username, u.RegistrationCode, u.AuthenticatedAt, u.DuplicateOfID)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return auth.ErrAlreadyExists
		}
		return err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return auth.ErrNotFound
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `delete from auth_users where id = $1`, id)
	if err != nil {
		return err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return auth.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *Store) scanUser(row rowScanner) (*auth.AuthUser, error) {
	var (
		u      auth.AuthUser
		authAt sql.NullTime
		dupOf  sql.NullInt64
	)
	if err := row.Scan(&u.ID, &u.MemberID, &u.Username, &u.RegistrationCode, &authAt, &dupOf, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	if authAt.Valid {
		t := authAt.Time
		u.AuthenticatedAt = &t
	}
	if dupOf.Valid {
		v := dupOf.Int64
		u.DuplicateOfID = &v
	}
	return &u, nil
}

// --- role assignment log ---

func (s *Store) Append(ctx context.Context, entries []reconcile.LogEntry) error {
	if len(entries) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, e := range entries {
		if _, err := tx.ExecContext(ctx, `
			insert into role_assignment_log (guild_id, member_id, role_id, is_add)
			values ($1, $2, $3, $4)
		`, e.GuildID, e.MemberID, e.RoleID, e.Add); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *Store) DeleteForMember(ctx context.Context, guildID, memberID string) error {
	_, err := s.db.ExecContext(ctx, `
		delete from role_assignment_log
		where guild_id = $1 and member_id = $2
	`, guildID, memberID)
	return err
}

func (s *Store) All(ctx context.Context) ([]reconcile.LogEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, guild_id, member_id, role_id, is_add, created_at
		from role_assignment_log
		order by id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []reconcile.LogEntry
	for rows.Next() {
		var e reconcile.LogEntry
		if err := rows.Scan(&e.ID, &e.GuildID, &e.MemberID, &e.RoleID, &e.Add, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

func maybePgError(err error) (*pgconn.PgError, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr, true
	}
	return nil, false
}
