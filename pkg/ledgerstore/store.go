// Copyright 2025 Certen Protocol
//
// Package ledgerstore is the persistent store: three append-only tables
// (leaf, branch, root) keyed by digest, backed by a local SQLite file —
// one engine, one working directory, no shared network database.
package ledgerstore

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/certen/ledgersubsystem/internal/logging"
	"github.com/certen/ledgersubsystem/pkg/digest"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store wraps the SQLite connection and exposes the leaf/branch/root
// operations the aggregation engine and verifier need.
type Store struct {
	db     *sql.DB
	logger *logging.Logger
}

// Option configures a Store at construction time.
type Option func(*Store)

// WithLogger overrides the store's logger.
func WithLogger(l *logging.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// Open opens (creating if absent) the SQLite database at path and applies
// any pending migrations. The connection pool is capped at one open
// connection: the store has exactly one writer, the engine goroutine.
func Open(ctx context.Context, path string, opts ...Option) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("ledgerstore: path cannot be empty")
	}

	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("ledgerstore: opening %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	s := &Store{db: db, logger: logging.Default().WithComponent("ledgerstore")}
	for _, opt := range opts {
		opt(s)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ledgerstore: ping %s: %w", path, err)
	}

	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// Close closes the underlying connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping verifies the connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// ----------------------------------------------------------------------
// Migrations
// ----------------------------------------------------------------------

type migration struct {
	version string
	sql     string
}

func (s *Store) migrate(ctx context.Context) error {
	migrations, err := loadMigrations()
	if err != nil {
		return fmt.Errorf("ledgerstore: loading migrations: %w", err)
	}

	applied := map[string]bool{}
	rows, err := s.db.QueryContext(ctx, "SELECT version FROM schema_migrations")
	if err == nil {
		defer rows.Close()
		for rows.Next() {
			var v string
			if err := rows.Scan(&v); err != nil {
				return fmt.Errorf("ledgerstore: scanning schema_migrations: %w", err)
			}
			applied[v] = true
		}
	} else if !strings.Contains(err.Error(), "no such table") {
		return fmt.Errorf("ledgerstore: reading schema_migrations: %w", err)
	}

	for _, m := range migrations {
		if applied[m.version] {
			continue
		}
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("ledgerstore: begin migration %s: %w", m.version, err)
		}
		if _, err := tx.ExecContext(ctx, m.sql); err != nil {
			tx.Rollback()
			return fmt.Errorf("ledgerstore: applying migration %s: %w", m.version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("ledgerstore: committing migration %s: %w", m.version, err)
		}
		s.logger.Info("applied migration", "version", m.version)
	}
	return nil
}

func loadMigrations() ([]migration, error) {
	var out []migration
	err := fs.WalkDir(migrationsFS, "migrations", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, ".sql") {
			return nil
		}
		content, err := migrationsFS.ReadFile(path)
		if err != nil {
			return err
		}
		out = append(out, migration{
			version: strings.TrimSuffix(d.Name(), ".sql"),
			sql:     string(content),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].version < out[j].version })
	return out, nil
}

// ----------------------------------------------------------------------
// Domain rows
// ----------------------------------------------------------------------

// Leaf is one row of the leaf table.
type Leaf struct {
	Digest, Left, Right, Prev digest.D
}

// Branch is one row of the branch table.
type Branch struct {
	Digest, Left, Right digest.D
}

// Root is one row of the root table.
type Root struct {
	Root digest.D
	Spec string
}

// InsertLeaf inserts a leaf row. A digest collision is logged as a
// warning and otherwise ignored per (I6): tables are append-only and the
// existing row is authoritative.
func (s *Store) InsertLeaf(ctx context.Context, l Leaf) error {
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO leaf (digest, left, right, prev) VALUES (?, ?, ?, ?)`,
		l.Digest.Hex(), l.Left.Hex(), l.Right.Hex(), l.Prev.Hex(),
	)
	if err != nil {
		return fmt.Errorf("ledgerstore: insert leaf: %w", err)
	}
	return s.warnOnCollision(res, "leaf", l.Digest)
}

// InsertBranch inserts a branch row, following the same collision policy.
func (s *Store) InsertBranch(ctx context.Context, b Branch) error {
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO branch (digest, left, right) VALUES (?, ?, ?)`,
		b.Digest.Hex(), b.Left.Hex(), b.Right.Hex(),
	)
	if err != nil {
		return fmt.Errorf("ledgerstore: insert branch: %w", err)
	}
	return s.warnOnCollision(res, "branch", b.Digest)
}

// InsertRoot inserts a root row, following the same collision policy.
func (s *Store) InsertRoot(ctx context.Context, r Root) error {
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO root (root, spec) VALUES (?, ?)`,
		r.Root.Hex(), r.Spec,
	)
	if err != nil {
		return fmt.Errorf("ledgerstore: insert root: %w", err)
	}
	return s.warnOnCollision(res, "root", r.Root)
}

func (s *Store) warnOnCollision(res sql.Result, table string, d digest.D) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("ledgerstore: rows affected: %w", err)
	}
	if n == 0 {
		s.logger.Warn("digest collision, keeping existing row", "table", table, "digest", d.Hex())
	}
	return nil
}

// LookupLeafByDigest returns the leaf keyed by d, or nil if absent.
func (s *Store) LookupLeafByDigest(ctx context.Context, d digest.D) (*Leaf, error) {
	row := s.db.QueryRowContext(ctx, `SELECT digest, left, right, prev FROM leaf WHERE digest = ?`, d.Hex())
	return scanLeaf(row)
}

// LookupLeafByChild returns the leaf row where left = d OR right = d.
func (s *Store) LookupLeafByChild(ctx context.Context, d digest.D) (*Leaf, error) {
	row := s.db.QueryRowContext(ctx, `SELECT digest, left, right, prev FROM leaf WHERE left = ? OR right = ? LIMIT 1`, d.Hex(), d.Hex())
	return scanLeaf(row)
}

func scanLeaf(row *sql.Row) (*Leaf, error) {
	var digHex, leftHex, rightHex, prevHex string
	if err := row.Scan(&digHex, &leftHex, &rightHex, &prevHex); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("ledgerstore: scan leaf: %w", err)
	}
	l := &Leaf{}
	var err error
	if l.Digest, err = digest.FromHex(digHex); err != nil {
		return nil, err
	}
	if l.Left, err = digest.FromHex(leftHex); err != nil {
		return nil, err
	}
	if l.Right, err = digest.FromHex(rightHex); err != nil {
		return nil, err
	}
	if prevHex != "" {
		if l.Prev, err = digest.FromHex(prevHex); err != nil {
			return nil, err
		}
	}
	return l, nil
}

// LookupBranchByChild returns the branch row where left = d OR right = d.
func (s *Store) LookupBranchByChild(ctx context.Context, d digest.D) (*Branch, error) {
	row := s.db.QueryRowContext(ctx, `SELECT digest, left, right FROM branch WHERE left = ? OR right = ? LIMIT 1`, d.Hex(), d.Hex())
	var digHex, leftHex, rightHex string
	if err := row.Scan(&digHex, &leftHex, &rightHex); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("ledgerstore: scan branch: %w", err)
	}
	b := &Branch{}
	var err error
	if b.Digest, err = digest.FromHex(digHex); err != nil {
		return nil, err
	}
	if b.Left, err = digest.FromHex(leftHex); err != nil {
		return nil, err
	}
	if b.Right, err = digest.FromHex(rightHex); err != nil {
		return nil, err
	}
	return b, nil
}

// LookupRoot returns the root row keyed by d, or nil if absent.
func (s *Store) LookupRoot(ctx context.Context, d digest.D) (*Root, error) {
	row := s.db.QueryRowContext(ctx, `SELECT root, spec FROM root WHERE root = ?`, d.Hex())
	var rootHex, spec string
	if err := row.Scan(&rootHex, &spec); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("ledgerstore: scan root: %w", err)
	}
	r := &Root{Spec: spec}
	var err error
	if r.Root, err = digest.FromHex(rootHex); err != nil {
		return nil, err
	}
	return r, nil
}
