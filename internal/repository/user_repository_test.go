package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/incident-portal-api/internal/models"
)

func newMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	sqlxdb := sqlx.NewDb(db, "sqlmock")
	return sqlxdb, mock, func() {
		db.Close()
	}
}

const (
	pendingUserID = "0b7d8a5e-6a52-4c1e-9a43-2f0c2d1c9e11"
	activeUserID  = "5f1c2e0a-93d4-4b8e-8f6a-7d2c1b0e4a22"
)

var userRowColumns = []string{"id", "username", "email", "password_hash", "role", "status", "full_name", "house_number", "receive_emails", "custom_fields", "last_login", "created_at", "updated_at"}

func TestFindByIdentifier(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows(userRowColumns).
		AddRow("u1", "ana", "ana@x.com", "hash", "user", "pending", "Ana", "12B", true, []byte(`{"Mascota":"gato"}`), nil, now, now)
	mock.ExpectQuery(`FROM users\s+WHERE LOWER\(username\) = LOWER\(\$1\) OR \(email <> '' AND LOWER\(email\) = LOWER\(\$1\)\)`).
		WithArgs("ANA@X.COM").
		WillReturnRows(rows)

	user, err := repo.FindByIdentifier(context.Background(), "ANA@X.COM")
	require.NoError(t, err)
	assert.Equal(t, "ana", user.Username)
	assert.Equal(t, models.UserStatusPending, user.Status)
	assert.Equal(t, "gato", user.CustomFields["Mascota"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindByIdentifierNotFound(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	mock.ExpectQuery(`FROM users`).WillReturnError(sql.ErrNoRows)

	_, err := repo.FindByIdentifier(context.Background(), "ghost")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestCreateUserMapsUniqueViolation(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	mock.ExpectExec("INSERT INTO users").
		WillReturnError(&pq.Error{Code: "23505", Constraint: "users_username_lower_idx"})
	err := repo.Create(context.Background(), &models.User{Username: "ana"})
	assert.ErrorIs(t, err, ErrUsernameTaken)

	mock.ExpectExec("INSERT INTO users").
		WillReturnError(&pq.Error{Code: "23505", Constraint: "users_email_lower_idx"})
	err = repo.Create(context.Background(), &models.User{Username: "bea", Email: "a@x.com"})
	assert.ErrorIs(t, err, ErrEmailTaken)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateUserSetsDefaults(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	mock.ExpectExec("INSERT INTO users").WillReturnResult(sqlmock.NewResult(1, 1))

	user := &models.User{Username: "ana", Status: models.UserStatusPending, Role: models.RoleUser}
	require.NoError(t, repo.Create(context.Background(), user))
	assert.NotEmpty(t, user.ID)
	assert.Equal(t, user.CreatedAt, user.UpdatedAt)
	assert.NotNil(t, user.CustomFields)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestActivateOnlyPending(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	query := regexp.QuoteMeta("UPDATE users SET status = $2, updated_at = $3 WHERE id = $1 AND status = $4")
	mock.ExpectExec(query).
		WithArgs(pendingUserID, models.UserStatusActive, sqlmock.AnyArg(), models.UserStatusPending).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(query).
		WithArgs(activeUserID, models.UserStatusActive, sqlmock.AnyArg(), models.UserStatusPending).
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := repo.Activate(context.Background(), pendingUserID, time.Now())
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.Activate(context.Background(), activeUserID, time.Now())
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeletePending(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM users WHERE id = $1 AND status = $2")).
		WithArgs(pendingUserID, models.UserStatusPending).
		WillReturnResult(sqlmock.NewResult(0, 1))

	ok, err := repo.DeletePending(context.Background(), pendingUserID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListByStatusOldestFirst(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows(userRowColumns).
		AddRow("u1", "ana", "", "", "user", "pending", "", "", false, nil, nil, now.Add(-time.Hour), now).
		AddRow("u2", "bea", "", "", "user", "pending", "", "", false, nil, nil, now, now)
	mock.ExpectQuery(regexp.QuoteMeta("FROM users WHERE status = $1 ORDER BY created_at ASC, id ASC")).
		WithArgs(models.UserStatusPending).
		WillReturnRows(rows)

	users, err := repo.ListByStatus(context.Background(), models.UserStatusPending)
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, "ana", users[0].Username)
	assert.NotNil(t, users[0].CustomFields)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEmailExists(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS(SELECT 1 FROM users WHERE email <> '' AND LOWER(email) = LOWER($1) AND id::text <> $2)")).
		WithArgs("Ana@X.com", "").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	exists, err := repo.EmailExists(context.Background(), "Ana@X.com", "")
	require.NoError(t, err)
	assert.True(t, exists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListUsers(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	now := time.Now()
	status := models.UserStatusActive
	listRows := sqlmock.NewRows(userRowColumns).
		AddRow("1", "admin", "a@example.com", "hash", "admin", "active", "A", "", true, []byte(`{}`), now, now, now)
	mock.ExpectQuery(regexp.QuoteMeta("FROM users WHERE 1=1 AND status = $1 ORDER BY username ASC LIMIT 20 OFFSET 0")).
		WithArgs(status).
		WillReturnRows(listRows)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM users WHERE 1=1 AND status = $1")).
		WithArgs(status).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	users, total, err := repo.List(context.Background(), models.UserFilter{Status: &status, SortBy: "username", SortOrder: "asc"})
	require.NoError(t, err)
	assert.Len(t, users, 1)
	assert.Equal(t, 1, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateRefreshToken(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	mock.ExpectExec("INSERT INTO refresh_tokens").WillReturnResult(sqlmock.NewResult(1, 1))

	err := repo.CreateRefreshToken(context.Background(), &models.RefreshToken{UserID: "u1", Token: "token", ExpiresAt: time.Now()})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMalformedUserIDNeverReachesPostgres(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)
	ctx := context.Background()

	_, err := repo.FindByID(ctx, "abc")
	assert.ErrorIs(t, err, sql.ErrNoRows)

	ok, err := repo.Activate(ctx, "abc", time.Now())
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = repo.DeletePending(ctx, "1; DROP TABLE users")
	require.NoError(t, err)
	assert.False(t, ok)

	assert.NoError(t, mock.ExpectationsWereMet())
}
