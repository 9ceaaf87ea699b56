package callcache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

type sqlStore struct {
	db         *sql.DB
	table      string
	driverName string
	prefix     string
	getStmt    *sql.Stmt
	upsertStmt *sql.Stmt
	deleteStmt *sql.Stmt
	flushStmt  *sql.Stmt
}

var sqlIdentPartRE = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func newSQLStore(ctx context.Context, cfg StoreConfig) (Store, error) {
	if cfg.SQLDriverName == "" || cfg.SQLDSN == "" {
		return nil, errors.New("sql driver requires driver name and dsn")
	}
	table := cfg.SQLTable
	if table == "" {
		table = defaultSQLTable
	}
	if err := validateSQLTableName(table); err != nil {
		return nil, err
	}
	db, err := sql.Open(cfg.SQLDriverName, cfg.SQLDSN)
	if err != nil {
		return nil, err
	}
	if cfg.SQLDriverName == "sqlite" {
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	s := &sqlStore{
		db:         db,
		table:      table,
		driverName: cfg.SQLDriverName,
		prefix:     cfg.Prefix,
	}
	if err := s.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := s.prepareStatements(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *sqlStore) Driver() Driver { return DriverSQL }

func (s *sqlStore) Ready(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *sqlStore) ensureSchema(ctx context.Context) error {
	var stmt string
	switch s.driverName {
	case "postgres", "pgx":
		stmt = fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			k TEXT PRIMARY KEY,
			t SMALLINT NOT NULL,
			v BYTEA NOT NULL,
			ea BIGINT NOT NULL
		);`, s.table)
	case "mysql":
		stmt = fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			k VARBINARY(255) PRIMARY KEY,
			t SMALLINT NOT NULL,
			v LONGBLOB NOT NULL,
			ea BIGINT NOT NULL
		) ENGINE=InnoDB;`, s.table)
	default: // sqlite
		stmt = fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			k TEXT PRIMARY KEY,
			t INTEGER NOT NULL,
			v BLOB NOT NULL,
			ea INTEGER NOT NULL
		);`, s.table)
	}
	_, err := s.db.ExecContext(ctx, stmt)
	return err
}

func (s *sqlStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	rec, ok, err := s.load(ctx, s.getStmt, key)
	if err != nil || !ok {
		return nil, false, err
	}
	value, err := rec.scalar()
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

func (s *sqlStore) Set(ctx context.Context, key string, value []byte) error {
	return s.save(ctx, s.upsertStmt, key, scalarRecord(value))
}

func (s *sqlStore) Increment(ctx context.Context, key string, delta int64) (int64, error) {
	var next int64
	err := s.mutate(ctx, key, func(rec *record, found bool) (*record, error) {
		if !found {
			rec = &record{Kind: kindScalar}
		}
		var err error
		next, err = rec.increment(key, delta)
		return rec, err
	})
	if err != nil {
		return 0, err
	}
	return next, nil
}

func (s *sqlStore) Append(ctx context.Context, key string, value []byte) (int64, error) {
	var n int64
	err := s.mutate(ctx, key, func(rec *record, found bool) (*record, error) {
		if !found {
			rec = &record{Kind: kindList}
		}
		var err error
		n, err = rec.append(value)
		return rec, err
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

func (s *sqlStore) List(ctx context.Context, key string) ([][]byte, error) {
	rec, ok, err := s.load(ctx, s.getStmt, key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return [][]byte{}, nil
	}
	return rec.list()
}

func (s *sqlStore) Expire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	var existed bool
	err := s.mutate(ctx, key, func(rec *record, found bool) (*record, error) {
		existed = found
		if !found || ttl <= 0 {
			return nil, nil
		}
		rec.ExpiresAt = time.Now().Add(ttl).UnixMilli()
		return rec, nil
	})
	if err != nil {
		return false, err
	}
	return existed, nil
}

func (s *sqlStore) Delete(ctx context.Context, key string) error {
	_, err := s.deleteStmt.ExecContext(ctx, s.cacheKey(key))
	return err
}

func (s *sqlStore) Flush(ctx context.Context) error {
	if s.prefix == "" {
		_, err := s.flushStmt.ExecContext(ctx)
		return err
	}
	_, err := s.flushStmt.ExecContext(ctx, s.cacheKey(""))
	return err
}

// mutate runs a read-modify-write of one key inside a transaction. A nil record
// returned by fn deletes the row.
func (s *sqlStore) mutate(ctx context.Context, key string, fn func(rec *record, found bool) (*record, error)) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	selectSQL := s.getSQL()
	if s.driverName == "postgres" || s.driverName == "pgx" || s.driverName == "mysql" {
		selectSQL += " FOR UPDATE"
	}
	getStmt, err := tx.PrepareContext(ctx, selectSQL)
	if err != nil {
		return err
	}
	defer getStmt.Close()

	rec, found, err := s.load(ctx, getStmt, key)
	if err != nil {
		return err
	}
	next, err := fn(rec, found)
	if err != nil {
		return err
	}
	if next == nil {
		if _, err := tx.StmtContext(ctx, s.deleteStmt).ExecContext(ctx, s.cacheKey(key)); err != nil {
			return err
		}
	} else if err := s.save(ctx, tx.StmtContext(ctx, s.upsertStmt), key, next); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *sqlStore) load(ctx context.Context, stmt *sql.Stmt, key string) (*record, bool, error) {
	var (
		kind int64
		v    []byte
		exp  int64
	)
	err := stmt.QueryRowContext(ctx, s.cacheKey(key)).Scan(&kind, &v, &exp)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	rec := &record{Kind: recordKind(kind), ExpiresAt: exp}
	if rec.expired(time.Now()) {
		return nil, false, nil
	}
	if rec.Kind == kindList {
		if err := json.Unmarshal(v, &rec.Items); err != nil {
			return nil, false, fmt.Errorf("decode list %q: %w", key, err)
		}
	} else {
		rec.Value = cloneBytes(v)
	}
	return rec, true, nil
}

func (s *sqlStore) save(ctx context.Context, stmt *sql.Stmt, key string, rec *record) error {
	v := rec.Value
	if v == nil {
		v = []byte{}
	}
	if rec.Kind == kindList {
		var err error
		if v, err = json.Marshal(rec.Items); err != nil {
			return fmt.Errorf("encode list %q: %w", key, err)
		}
	}
	kind := int64(rec.Kind)
	_, err := stmt.ExecContext(ctx, s.cacheKey(key), kind, v, rec.ExpiresAt, kind, v, rec.ExpiresAt)
	return err
}

func (s *sqlStore) cacheKey(key string) string {
	if s.prefix == "" {
		return key
	}
	return s.prefix + ":" + key
}

func (s *sqlStore) upsertSQL() string {
	// Placeholders must be positional for postgres/pgx.
	p1, p2, p3, p4, p5, p6, p7 := s.ph(1), s.ph(2), s.ph(3), s.ph(4), s.ph(5), s.ph(6), s.ph(7)
	switch s.driverName {
	case "postgres", "pgx":
		return fmt.Sprintf("INSERT INTO %s (k, t, v, ea) VALUES (%s, %s, %s, %s) ON CONFLICT (k) DO UPDATE SET t = %s, v = %s, ea = %s", s.table, p1, p2, p3, p4, p5, p6, p7)
	case "mysql":
		return fmt.Sprintf("INSERT INTO %s (k, t, v, ea) VALUES (%s, %s, %s, %s) ON DUPLICATE KEY UPDATE t = %s, v = %s, ea = %s", s.table, p1, p2, p3, p4, p5, p6, p7)
	default: // sqlite
		return fmt.Sprintf("INSERT INTO %s (k, t, v, ea) VALUES (%s, %s, %s, %s) ON CONFLICT(k) DO UPDATE SET t = %s, v = %s, ea = %s", s.table, p1, p2, p3, p4, p5, p6, p7)
	}
}

func (s *sqlStore) getSQL() string {
	return fmt.Sprintf("SELECT t, v, ea FROM %s WHERE k = %s", s.table, s.ph(1))
}

func (s *sqlStore) deleteSQL() string {
	return fmt.Sprintf("DELETE FROM %s WHERE k = %s", s.table, s.ph(1))
}

// flushSQL deletes every key carrying the store prefix. Without a prefix the
// whole table is cleared.
func (s *sqlStore) flushSQL() string {
	if s.prefix == "" {
		return fmt.Sprintf("DELETE FROM %s", s.table)
	}
	return fmt.Sprintf("DELETE FROM %s WHERE SUBSTR(k, 1, %d) = %s", s.table, s.prefixLen(), s.ph(1))
}

// prefixLen measures the key prefix in the unit SUBSTR uses on the k column:
// bytes for mysql VARBINARY, characters for TEXT.
func (s *sqlStore) prefixLen() int {
	prefix := s.cacheKey("")
	if s.driverName == "mysql" {
		return len(prefix)
	}
	return utf8.RuneCountInString(prefix)
}

func (s *sqlStore) prepareStatements(ctx context.Context) error {
	var err error
	if s.getStmt, err = s.db.PrepareContext(ctx, s.getSQL()); err != nil {
		return err
	}
	if s.upsertStmt, err = s.db.PrepareContext(ctx, s.upsertSQL()); err != nil {
		return err
	}
	if s.deleteStmt, err = s.db.PrepareContext(ctx, s.deleteSQL()); err != nil {
		return err
	}
	if s.flushStmt, err = s.db.PrepareContext(ctx, s.flushSQL()); err != nil {
		return err
	}
	return nil
}

func (s *sqlStore) ph(i int) string {
	if s.driverName == "postgres" || s.driverName == "pgx" {
		return fmt.Sprintf("$%d", i)
	}
	return "?"
}

func validateSQLTableName(name string) error {
	if strings.TrimSpace(name) == "" {
		return errors.New("sql table name is required")
	}
	for _, part := range strings.Split(name, ".") {
		if !sqlIdentPartRE.MatchString(part) {
			return fmt.Errorf("invalid sql table name %q", name)
		}
	}
	return nil
}
