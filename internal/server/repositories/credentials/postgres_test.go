package credentials

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/rollcall/internal/common"
	"github.com/dmitrijs2005/rollcall/internal/server/models"
	"github.com/jackc/pgx/v5/pgconn"
)

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return NewPostgresRepository(db), mock, db
}

const (
	qInsert  = `(?s)INSERT\s+INTO\s+credentials\s*\(id,\s*email,\s*password_hash,\s*display_name,\s*role\).*RETURNING\s+created_at`
	qByEmail = `(?s)SELECT\s+id,\s*email,\s*password_hash,\s*display_name,\s*role,\s*created_at\s+FROM\s+credentials\s+WHERE\s+lower\(email\)\s*=\s*lower\(\$1\)`
	qByID    = `(?s)SELECT\s+id,.*FROM\s+credentials\s+WHERE\s+id\s*=\s*\$1`
	qSetRole = `(?s)UPDATE\s+credentials\s+SET\s+role\s*=\s*\$2\s+WHERE\s+id\s*=\s*\$1`
	qDelete  = `(?s)DELETE\s+FROM\s+credentials\s+WHERE\s+id\s*=\s*\$1`
)

var credCols = []string{"id", "email", "password_hash", "display_name", "role", "created_at"}

func TestCreate_Success(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := time.Now()
	mock.ExpectQuery(qInsert).
		WithArgs("u-1", "ann@school.edu", []byte("hash"), "Ann", "").
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(now))

	c := &models.Credential{ID: "u-1", Email: "ann@school.edu", PasswordHash: []byte("hash"), DisplayName: "Ann"}
	if err := repo.Create(context.Background(), c); err != nil {
		t.Fatalf("Create error: %v", err)
	}
	if !c.CreatedAt.Equal(now) {
		t.Fatalf("created_at not populated: %+v", c)
	}
}

func TestCreate_DuplicateEmail(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(qInsert).WillReturnError(&pgconn.PgError{Code: "23505"})

	err := repo.Create(context.Background(), &models.Credential{ID: "u-2", Email: "ANN@school.edu"})
	if !errors.Is(err, common.ErrDuplicateEmail) {
		t.Fatalf("expected ErrDuplicateEmail, got %v", err)
	}
}

func TestCreate_DBError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(qInsert).WillReturnError(errors.New("db down"))

	err := repo.Create(context.Background(), &models.Credential{ID: "u-2"})
	if err == nil || !regexp.MustCompile(`db error: .*db down`).MatchString(err.Error()) {
		t.Fatalf("expected wrapped db error, got %v", err)
	}
}

func TestGetByEmail_Found(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(qByEmail).
		WithArgs("Ann@School.edu").
		WillReturnRows(sqlmock.NewRows(credCols).AddRow("u-1", "ann@school.edu", []byte("hash"), "Ann", "admin", time.Now()))

	c, err := repo.GetByEmail(context.Background(), "Ann@School.edu")
	if err != nil {
		t.Fatalf("GetByEmail error: %v", err)
	}
	if c.ID != "u-1" || c.Role != "admin" {
		t.Fatalf("unexpected credential: %+v", c)
	}
}

func TestGetByID_NotFound(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(qByID).WithArgs("ghost").WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByID(context.Background(), "ghost")
	if !errors.Is(err, common.ErrorNotFound) {
		t.Fatalf("expected ErrorNotFound, got %v", err)
	}
}

func TestSetRole(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(qSetRole).WithArgs("u-1", "admin").WillReturnResult(sqlmock.NewResult(0, 1))
	if err := repo.SetRole(context.Background(), "u-1", "admin"); err != nil {
		t.Fatalf("SetRole error: %v", err)
	}

	mock.ExpectExec(qSetRole).WithArgs("ghost", "admin").WillReturnResult(sqlmock.NewResult(0, 0))
	if err := repo.SetRole(context.Background(), "ghost", "admin"); !errors.Is(err, common.ErrorNotFound) {
		t.Fatalf("expected ErrorNotFound, got %v", err)
	}
}

func TestDelete(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(qDelete).WithArgs("u-1").WillReturnResult(sqlmock.NewResult(0, 1))
	if err := repo.Delete(context.Background(), "u-1"); err != nil {
		t.Fatalf("Delete error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
