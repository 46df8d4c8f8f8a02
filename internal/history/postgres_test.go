package history

import (
	"context"
	"errors"
	"net/url"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"

	"github.com/stupiduntilnot/rdmochat/internal/config"
	"github.com/stupiduntilnot/rdmochat/internal/message"
)

func TestPostgresStore_Statements(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS history .* messages JSONB").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`INSERT INTO history .* VALUES \(\$1, \$2, \$3::jsonb\)\s+ON CONFLICT \(user_identifier, project_id\) DO UPDATE`).
		WithArgs("alice", int64(7), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT messages FROM history WHERE user_identifier = \$1 AND project_id IS NOT DISTINCT FROM \$2`).
		WithArgs("alice", int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"messages"}).AddRow([]byte(`[{"type":"human","content":"hi"}]`)))
	mock.ExpectQuery(`SELECT count\(\*\) FROM history`).
		WithArgs("alice", nil).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(0)))

	s, err := newPostgresStore(context.Background(), db, Options{})
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	if err := s.SetHistory(ctx, NewKey("alice", 7), []message.Message{message.Human("hi")}); err != nil {
		t.Fatal(err)
	}
	got, err := s.GetHistory(ctx, NewKey("alice", 7))
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Content != "hi" {
		t.Fatalf("unexpected history: %+v", got)
	}
	ok, err := s.HasHistory(ctx, GlobalKey("alice"))
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("expected no global history")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestPostgresStore_MissingRow(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS history").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT messages FROM history").WillReturnRows(sqlmock.NewRows([]string{"messages"}))

	s, err := newPostgresStore(context.Background(), db, Options{})
	if err != nil {
		t.Fatal(err)
	}
	got, err := s.GetHistory(context.Background(), NewKey("alice", 7))
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || len(got) != 0 {
		t.Fatalf("expected empty history, got %#v", got)
	}
}

func TestPostgresStore_DoesNotRetry(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS history").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("DELETE FROM history").WillReturnError(mysql.ErrInvalidConn)

	s, err := newPostgresStore(context.Background(), db, Options{})
	if err != nil {
		t.Fatal(err)
	}
	err = s.ResetHistory(context.Background(), NewKey("alice", 7))
	var be *BackendError
	if !errors.As(err, &be) || be.Backend != "postgres" {
		t.Fatalf("expected postgres backend error, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestPostgresStore_BootstrapFailure(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS history").WillReturnError(errors.New("permission denied"))
	mock.ExpectClose()

	_, err := newPostgresStore(context.Background(), db, Options{})
	var be *BackendError
	if !errors.As(err, &be) || be.Op != opBootstrap {
		t.Fatalf("expected bootstrap error, got %v", err)
	}
}

func TestPostgresDSN(t *testing.T) {
	dsn, err := postgresDSN(config.Connection{Raw: "host=db dbname=rdmo"})
	if err != nil || dsn != "host=db dbname=rdmo" {
		t.Fatalf("unexpected dsn %q err=%v", dsn, err)
	}

	dsn, err = postgresDSN(config.Connection{Params: map[string]any{
		"host": "db", "user": "chat", "password": "p@ss", "dbname": "rdmo", "sslmode": "disable",
	}})
	if err != nil {
		t.Fatal(err)
	}
	u, err := url.Parse(dsn)
	if err != nil {
		t.Fatal(err)
	}
	if u.Host != "db:5432" || u.Path != "/rdmo" || u.Query().Get("sslmode") != "disable" {
		t.Fatalf("unexpected dsn: %s", dsn)
	}
	if pw, _ := u.User.Password(); pw != "p@ss" {
		t.Fatalf("password not preserved: %s", dsn)
	}

	if _, err := postgresDSN(config.Connection{}); err == nil {
		t.Fatal("expected error without dbname")
	}
}
