package history

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"strconv"

	"github.com/go-sql-driver/mysql"

	"github.com/stupiduntilnot/rdmochat/internal/config"
)

var mysqlDialect = dialect{
	name: "mysql",
	createTable: `
		CREATE TABLE IF NOT EXISTS history (
			id INT AUTO_INCREMENT PRIMARY KEY,
			user_identifier VARCHAR(150) NOT NULL,
			project_id INT,
			messages JSON,
			created TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated TIMESTAMP DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
			UNIQUE KEY unique_user_project (user_identifier, project_id)
		)`,
	count:     `SELECT count(*) FROM history WHERE user_identifier = ? AND project_id <=> ?`,
	selectRow: `SELECT messages FROM history WHERE user_identifier = ? AND project_id <=> ?`,
	upsert: `
		INSERT INTO history (user_identifier, project_id, messages) VALUES (?, ?, ?)
		ON DUPLICATE KEY UPDATE
			messages = VALUES(messages),
			updated = CURRENT_TIMESTAMP`,
	selectNull: `SELECT id FROM history WHERE user_identifier = ? AND project_id IS NULL FOR UPDATE`,
	updateByID: `UPDATE history SET messages = ?, updated = CURRENT_TIMESTAMP WHERE id = ?`,
	insertNull: `INSERT INTO history (user_identifier, project_id, messages) VALUES (?, NULL, ?)`,
	delete:     `DELETE FROM history WHERE user_identifier = ? AND project_id <=> ?`,
}

// MySQLStore keeps history in a MySQL table. It is the one backend that
// recovers from a dropped server connection: the failed statement is retried
// once on a fresh connection.
type MySQLStore struct {
	*sqlStore
}

// NewMySQLStore connects using the DSN or connection parameters in opts and
// bootstraps the history table.
func NewMySQLStore(ctx context.Context, opts Options) (*MySQLStore, error) {
	dsn, err := mysqlDSN(opts.Connection)
	if err != nil {
		return nil, err
	}
	return newMySQLStore(ctx, func(ctx context.Context) (*sql.DB, error) {
		return sql.Open("mysql", dsn)
	}, opts)
}

func newMySQLStore(ctx context.Context, open func(context.Context) (*sql.DB, error), opts Options) (*MySQLStore, error) {
	db, err := open(ctx)
	if err != nil {
		return nil, wrap(mysqlDialect.name, opOpen, err)
	}
	s, err := newSQLStore(ctx, db, mysqlDialect, open, opts.logger())
	if err != nil {
		db.Close()
		return nil, err
	}
	return &MySQLStore{sqlStore: s}, nil
}

// mysqlDSN accepts either a raw DSN ("user:pass@tcp(host:3306)/db") or a
// parameter mapping with host, port, user, password and database.
func mysqlDSN(conn config.Connection) (string, error) {
	if dsn := conn.Lookup("dsn"); dsn != "" {
		if _, err := mysql.ParseDSN(dsn); err != nil {
			return "", fmt.Errorf("invalid mysql dsn: %w", err)
		}
		return dsn, nil
	}
	port, err := conn.Int("port", 3306)
	if err != nil {
		return "", err
	}
	host := conn.String("host")
	if host == "" {
		host = "localhost"
	}
	cfg := mysql.NewConfig()
	cfg.User = conn.String("user")
	cfg.Passwd = conn.String("password")
	cfg.Net = "tcp"
	cfg.Addr = net.JoinHostPort(host, strconv.Itoa(port))
	cfg.DBName = conn.Lookup("database", "db")
	if cfg.DBName == "" {
		return "", fmt.Errorf("mysql connection requires a database")
	}
	return cfg.FormatDSN(), nil
}

var _ Store = (*MySQLStore)(nil)
