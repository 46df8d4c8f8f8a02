package history

import (
	"database/sql/driver"
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"
)

const (
	opHas       = "has_history"
	opGet       = "get_history"
	opSet       = "set_history"
	opReset     = "reset_history"
	opBootstrap = "bootstrap"
	opOpen      = "open"
)

// ErrUnknownStore is wrapped by ConfigError when a store name does not
// resolve to a registered constructor.
var ErrUnknownStore = errors.New("unknown history store")

// ConfigError reports a store that cannot be resolved or constructed from the
// configuration. It is fatal at startup.
type ConfigError struct {
	Store string
	Err   error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("history store %q: %v", e.Store, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// BackendError reports a failed backend operation.
type BackendError struct {
	Backend string
	Op      string
	Err     error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Backend, e.Op, e.Err)
}

func (e *BackendError) Unwrap() error { return e.Err }

// MySQL server error numbers that mean the session is gone.
var staleServerErrors = map[uint16]struct{}{
	2006: {}, // server has gone away
	2013: {}, // lost connection during query
	4031: {}, // disconnected by the server because of inactivity
}

// IsStaleConnection reports whether err means the database connection died
// underneath the caller and a fresh connection may succeed.
func IsStaleConnection(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, mysql.ErrInvalidConn) {
		return true
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		_, ok := staleServerErrors[myErr.Number]
		return ok
	}
	return false
}
