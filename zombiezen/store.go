// Package zombiezen persists certificate collections in SQLite via
// zombiezen.com/go/sqlite.
package zombiezen

import (
	"context"
	"encoding/json"
	"fmt"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	acme "github.com/kvernetz/netcup-acme"
)

const schema = `
CREATE TABLE IF NOT EXISTS cert_collections (
	id INTEGER PRIMARY KEY,
	identifier TEXT NOT NULL,
	domains TEXT NOT NULL,
	staging INTEGER NOT NULL DEFAULT 0,
	certificate_chain TEXT NOT NULL,
	private_key TEXT NOT NULL,
	issued_at TEXT NOT NULL,
	expires_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_cert_collections_identifier
	ON cert_collections (identifier, issued_at DESC);
`

// Store implements acme.CollectionStore over a sqlitex pool.
type Store struct {
	pool *sqlitex.Pool
}

// NewStore wraps an externally managed pool.
func NewStore(pool *sqlitex.Pool) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("zombiezen: nil pool")
	}
	return &Store{pool: pool}, nil
}

var _ acme.CollectionStore = (*Store)(nil)

// Migrate creates the schema if it does not exist yet.
func (s *Store) Migrate(ctx context.Context) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("zombiezen: get connection: %w", err)
	}
	defer s.pool.Put(conn)

	if err := sqlitex.ExecuteScript(conn, schema, nil); err != nil {
		return fmt.Errorf("zombiezen: migrate: %w", err)
	}
	return nil
}

// Get returns the newest collection for identifier by issuance time.
func (s *Store) Get(identifier string) (*acme.CertCollection, error) {
	conn, err := s.pool.Take(context.TODO())
	if err != nil {
		return nil, fmt.Errorf("zombiezen: get connection: %w", err)
	}
	defer s.pool.Put(conn)

	var col *acme.CertCollection
	err = sqlitex.Execute(conn,
		`SELECT id, identifier, domains, staging, certificate_chain, private_key, issued_at, expires_at
		 FROM cert_collections WHERE identifier = ?
		 ORDER BY issued_at DESC LIMIT 1;`,
		&sqlitex.ExecOptions{
			Args: []any{identifier},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				c, err := scanCollection(stmt)
				if err != nil {
					return err
				}
				col = &c
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("zombiezen: get %q: %w", identifier, err)
	}
	if col == nil {
		return nil, fmt.Errorf("zombiezen: %q: %w", identifier, acme.ErrCollectionNotFound)
	}
	return col, nil
}

// Save appends a new history row for the collection's identifier.
func (s *Store) Save(col acme.CertCollection) error {
	domains, err := json.Marshal(col.Domains)
	if err != nil {
		return fmt.Errorf("zombiezen: marshal domains: %w", err)
	}

	conn, err := s.pool.Take(context.TODO())
	if err != nil {
		return fmt.Errorf("zombiezen: get connection: %w", err)
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn,
		`INSERT INTO cert_collections (
			identifier, domains, staging, certificate_chain, private_key, issued_at, expires_at
		) VALUES (?, ?, ?, ?, ?, ?, ?);`,
		&sqlitex.ExecOptions{
			Args: []any{
				col.Identifier,
				string(domains),
				boolToInt(col.Staging),
				col.CertificateChain,
				col.PrivateKey,
				acme.TimeFormat(col.IssuedAt),
				acme.TimeFormat(col.ExpiresAt),
			},
		})
	if err != nil {
		return fmt.Errorf("zombiezen: insert collection %q: %w", col.Identifier, err)
	}
	return nil
}

// List returns the newest collection per identifier.
func (s *Store) List() ([]acme.CertCollection, error) {
	conn, err := s.pool.Take(context.TODO())
	if err != nil {
		return nil, fmt.Errorf("zombiezen: get connection: %w", err)
	}
	defer s.pool.Put(conn)

	var out []acme.CertCollection
	err = sqlitex.Execute(conn,
		`SELECT id, identifier, domains, staging, certificate_chain, private_key, issued_at, expires_at
		 FROM cert_collections c
		 WHERE issued_at = (
			SELECT MAX(issued_at) FROM cert_collections WHERE identifier = c.identifier
		 )
		 ORDER BY identifier;`,
		&sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				c, err := scanCollection(stmt)
				if err != nil {
					return err
				}
				out = append(out, c)
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("zombiezen: list collections: %w", err)
	}
	return out, nil
}

// DeleteByID removes one history row.
func (s *Store) DeleteByID(id int64) error {
	conn, err := s.pool.Take(context.TODO())
	if err != nil {
		return fmt.Errorf("zombiezen: get connection: %w", err)
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn,
		`DELETE FROM cert_collections WHERE id = ?;`,
		&sqlitex.ExecOptions{Args: []any{id}})
	if err != nil {
		return fmt.Errorf("zombiezen: delete collection %d: %w", id, err)
	}
	return nil
}

func scanCollection(stmt *sqlite.Stmt) (acme.CertCollection, error) {
	var col acme.CertCollection
	col.ID = stmt.ColumnInt64(0)
	col.Identifier = stmt.ColumnText(1)
	if err := json.Unmarshal([]byte(stmt.ColumnText(2)), &col.Domains); err != nil {
		return col, fmt.Errorf("unmarshal domains for %q: %w", col.Identifier, err)
	}
	col.Staging = stmt.ColumnInt64(3) != 0
	col.CertificateChain = stmt.ColumnText(4)
	col.PrivateKey = stmt.ColumnText(5)

	issued, err := acme.TimeParse(stmt.ColumnText(6))
	if err != nil {
		return col, fmt.Errorf("parse issued_at for %q: %w", col.Identifier, err)
	}
	expires, err := acme.TimeParse(stmt.ColumnText(7))
	if err != nil {
		return col, fmt.Errorf("parse expires_at for %q: %w", col.Identifier, err)
	}
	col.IssuedAt, col.ExpiresAt = issued, expires
	return col, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
