package history

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"net/url"
	"strconv"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/stupiduntilnot/rdmochat/internal/config"
)

var postgresDialect = dialect{
	name: "postgres",
	createTable: `
		CREATE TABLE IF NOT EXISTS history (
			id INT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
			user_identifier VARCHAR(150) NOT NULL,
			project_id INT,
			messages JSONB,
			created TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			UNIQUE (user_identifier, project_id)
		)`,
	count:     `SELECT count(*) FROM history WHERE user_identifier = $1 AND project_id IS NOT DISTINCT FROM $2`,
	selectRow: `SELECT messages FROM history WHERE user_identifier = $1 AND project_id IS NOT DISTINCT FROM $2`,
	upsert: `
		INSERT INTO history (user_identifier, project_id, messages) VALUES ($1, $2, $3::jsonb)
		ON CONFLICT (user_identifier, project_id) DO UPDATE SET
			messages = EXCLUDED.messages,
			updated = CURRENT_TIMESTAMP`,
	selectNull: `SELECT id FROM history WHERE user_identifier = $1 AND project_id IS NULL FOR UPDATE`,
	updateByID: `UPDATE history SET messages = $1::jsonb, updated = CURRENT_TIMESTAMP WHERE id = $2`,
	insertNull: `INSERT INTO history (user_identifier, project_id, messages) VALUES ($1, NULL, $2::jsonb)`,
	delete:     `DELETE FROM history WHERE user_identifier = $1 AND project_id IS NOT DISTINCT FROM $2`,
}

// PostgresStore keeps history in a PostgreSQL table with a JSONB column.
type PostgresStore struct {
	*sqlStore
}

// NewPostgresStore connects using the DSN or connection parameters in opts
// and bootstraps the history table.
func NewPostgresStore(ctx context.Context, opts Options) (*PostgresStore, error) {
	dsn, err := postgresDSN(opts.Connection)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, wrap(postgresDialect.name, opOpen, err)
	}
	return newPostgresStore(ctx, db, opts)
}

func newPostgresStore(ctx context.Context, db *sql.DB, opts Options) (*PostgresStore, error) {
	s, err := newSQLStore(ctx, db, postgresDialect, nil, opts.logger())
	if err != nil {
		db.Close()
		return nil, err
	}
	return &PostgresStore{sqlStore: s}, nil
}

// postgresDSN accepts a connection string/URL or a parameter mapping with
// host, port, user, password, dbname and sslmode.
func postgresDSN(conn config.Connection) (string, error) {
	if dsn := conn.Lookup("dsn", "conninfo"); dsn != "" {
		return dsn, nil
	}
	port, err := conn.Int("port", 5432)
	if err != nil {
		return "", err
	}
	host := conn.String("host")
	if host == "" {
		host = "localhost"
	}
	dbname := conn.String("dbname")
	if dbname == "" {
		dbname = conn.String("database")
	}
	if dbname == "" {
		return "", fmt.Errorf("postgres connection requires a dbname")
	}
	u := url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(host, strconv.Itoa(port)),
		Path:   "/" + dbname,
	}
	if user := conn.String("user"); user != "" {
		if pw := conn.String("password"); pw != "" {
			u.User = url.UserPassword(user, pw)
		} else {
			u.User = url.User(user)
		}
	}
	if mode := conn.String("sslmode"); mode != "" {
		u.RawQuery = url.Values{"sslmode": {mode}}.Encode()
	}
	return u.String(), nil
}

var _ Store = (*PostgresStore)(nil)
