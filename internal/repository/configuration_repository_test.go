package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/incident-portal-api/internal/models"
)

func TestConfigurationRepositoryGet(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewConfigurationRepository(db)

	rows := sqlmock.NewRows([]string{"key", "value", "updated_by", "updated_at"}).
		AddRow(models.AppConfigKey, []byte(`{"categories":["Otros"]}`), "admin", time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("SELECT key, value, updated_by, updated_at FROM configurations WHERE key = $1")).
		WithArgs(models.AppConfigKey).
		WillReturnRows(rows)

	cfg, err := repo.Get(context.Background(), models.AppConfigKey)
	require.NoError(t, err)
	assert.JSONEq(t, `{"categories":["Otros"]}`, string(cfg.Value))
	require.NotNil(t, cfg.UpdatedBy)
	assert.Equal(t, "admin", *cfg.UpdatedBy)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConfigurationRepositoryGetMissing(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewConfigurationRepository(db)

	mock.ExpectQuery("SELECT key, value").WillReturnError(sql.ErrNoRows)

	_, err := repo.Get(context.Background(), models.AppConfigKey)
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestConfigurationRepositoryUpsert(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewConfigurationRepository(db)

	admin := "admin"
	mock.ExpectExec("INSERT INTO configurations").
		WithArgs(models.AppConfigKey, []byte(`{}`), admin, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	cfg := &models.Configuration{Key: models.AppConfigKey, Value: []byte(`{}`), UpdatedBy: &admin}
	require.NoError(t, repo.Upsert(context.Background(), cfg))
	assert.False(t, cfg.UpdatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}
