// notes/store/postgres/postgres.go

// Package postgres is the PostgreSQL store backend. Nodes live in one table
// keyed by their flat path; a trigger publishes every changed key on the
// lumi_nodes channel, which subscriptions LISTEN on.
package postgres

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/ViniZap4/lumi-notes/domain"
	"github.com/ViniZap4/lumi-notes/pathcodec"
	"github.com/ViniZap4/lumi-notes/store"
)

//go:embed migrations/*.sql
var migrations embed.FS

const channel = "lumi_nodes"

type Store struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

// Migrate brings the schema at databaseURL up to date.
func Migrate(databaseURL string) error {
	src, err := iofs.New(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, databaseURL)
	if err != nil {
		return fmt.Errorf("init migrations: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

// Open migrates the database and connects a pool to it.
func Open(ctx context.Context, databaseURL string) (*Store, error) {
	if err := Migrate(databaseURL); err != nil {
		return nil, err
	}

	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: ping: %v", domain.ErrRemoteUnavailable, err)
	}
	return &Store{pool: pool, logger: zerolog.Nop()}, nil
}

func (s *Store) SetLogger(logger zerolog.Logger) {
	s.logger = logger.With().Str("component", "pgstore").Logger()
}

// descendants is a LIKE pattern matching every key strictly below key.
func descendants(key string) string {
	if key == "" {
		return "%"
	}
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(key) + pathcodec.Separator + "%"
}

func (s *Store) Read(ctx context.Context, key string) (*store.Value, error) {
	var v store.Value
	var hasChildren bool
	err := s.pool.QueryRow(ctx, `
		SELECT n.kind, n.content,
		       EXISTS (SELECT 1 FROM nodes c WHERE c.key LIKE $2)
		FROM nodes n WHERE n.key = $1`,
		key, descendants(key),
	).Scan(&v.Kind, &v.Content, &hasChildren)

	if errors.Is(err, pgx.ErrNoRows) {
		err = s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM nodes WHERE key LIKE $1)`, descendants(key)).Scan(&hasChildren)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", key, err)
		}
		if !hasChildren {
			return nil, nil
		}
	} else if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}

	switch {
	case hasChildren:
		v = store.FolderValue()
	case v.Kind == "":
		v.Kind = domain.KindNote
	}
	return &v, nil
}

func (s *Store) Write(ctx context.Context, key string, v store.Value) error {
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		segs := pathcodec.Decode(key)
		for i := 1; i < len(segs); i++ {
			ancestor := strings.Join(segs[:i], pathcodec.Separator)
			if _, err := tx.Exec(ctx,
				`INSERT INTO nodes (key, kind) VALUES ($1, $2) ON CONFLICT (key) DO NOTHING`,
				ancestor, domain.KindFolder,
			); err != nil {
				return err
			}
		}

		if v.Kind == domain.KindNote {
			if _, err := tx.Exec(ctx, `DELETE FROM nodes WHERE key LIKE $1`, descendants(key)); err != nil {
				return err
			}
		}

		_, err := tx.Exec(ctx, `
			INSERT INTO nodes (key, kind, content) VALUES ($1, $2, $3)
			ON CONFLICT (key) DO UPDATE
			SET kind = EXCLUDED.kind, content = EXCLUDED.content, updated_at = now()`,
			key, v.Kind, v.Content,
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}

	s.logger.Debug().Str("key", key).Str("kind", string(v.Kind)).Msg("write")
	return nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM nodes WHERE key = $1 OR key LIKE $2`, key, descendants(key))
	if err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	s.logger.Debug().Str("key", key).Msg("delete")
	return nil
}

func (s *Store) entries(ctx context.Context, rootKey string) ([]store.Entry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT key, kind, content, seq FROM nodes WHERE key = $1 OR key LIKE $2`,
		rootKey, descendants(rootKey),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.Entry
	for rows.Next() {
		var e store.Entry
		if err := rows.Scan(&e.Key, &e.Value.Kind, &e.Value.Content, &e.Seq); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) Subscribe(ctx context.Context, rootKey string, h store.Handler) (*store.Subscription, error) {
	return store.Follow(ctx, rootKey, h, &source{s: s, rootKey: rootKey}, nil), nil
}

type source struct {
	s       *Store
	rootKey string
}

func (src *source) Load(ctx context.Context) (*store.Snapshot, error) {
	entries, err := src.s.entries(ctx, src.rootKey)
	if err != nil {
		return nil, fmt.Errorf("%w: load %s: %v", domain.ErrRemoteUnavailable, src.rootKey, err)
	}
	return store.BuildSnapshot(src.rootKey, entries), nil
}

// Listen holds a dedicated connection in LISTEN mode for as long as ctx
// lives.
func (src *source) Listen(ctx context.Context, changed func()) error {
	conn, err := src.s.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("%w: acquire: %v", domain.ErrRemoteUnavailable, err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "LISTEN "+channel); err != nil {
		return fmt.Errorf("%w: listen: %v", domain.ErrRemoteUnavailable, err)
	}
	defer func() {
		if !conn.Conn().IsClosed() {
			_, _ = conn.Exec(context.Background(), "UNLISTEN "+channel)
		}
	}()

	src.s.logger.Debug().Str("root", src.rootKey).Msg("listening")
	changed()

	for {
		n, err := conn.Conn().WaitForNotification(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			return fmt.Errorf("%w: wait: %v", domain.ErrRemoteUnavailable, err)
		}
		if pathcodec.Within(src.rootKey, n.Payload) || pathcodec.Within(n.Payload, src.rootKey) {
			changed()
		}
	}
}

func (s *Store) FindUsersByEmail(ctx context.Context, email string) ([]domain.User, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, email, password_hash, full_name, phone_number, created_at
		FROM users WHERE email = $1`, email)
	if err != nil {
		return nil, fmt.Errorf("find users: %w", err)
	}
	defer rows.Close()

	var out []domain.User
	for rows.Next() {
		var u domain.User
		if err := rows.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.FullName, &u.PhoneNumber, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (s *Store) InsertUser(ctx context.Context, u *domain.User) error {
	if u.ID == "" {
		u.ID = uuid.New().String()
	}

	err := s.pool.QueryRow(ctx, `
		INSERT INTO users (id, email, password_hash, full_name, phone_number)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at`,
		u.ID, u.Email, u.PasswordHash, u.FullName, u.PhoneNumber,
	).Scan(&u.CreatedAt)

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
		return domain.ErrAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}
