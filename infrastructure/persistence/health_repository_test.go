package persistence

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthRepository_Check(t *testing.T) {
	pg, pgMock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer pg.Close()
	ms, msMock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer ms.Close()

	pgMock.ExpectPing()
	msMock.ExpectPing().WillReturnError(errors.New("login failed"))

	repo := NewHealthRepository(pg, ms, nil).
		With("redis", func(context.Context) error { return nil }).
		With("skipped", nil)

	got := repo.Check(context.Background())
	assert.Equal(t, map[string]string{
		"postgres": "ok",
		"mssql":    "login failed",
		"redis":    "ok",
	}, got)
	assert.NoError(t, pgMock.ExpectationsWereMet())
	assert.NoError(t, msMock.ExpectationsWereMet())
}

func TestHealthRepository_CheckNothingConfigured(t *testing.T) {
	assert.Empty(t, NewHealthRepository(nil, nil, nil).Check(context.Background()))
}
