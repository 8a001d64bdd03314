package repository_test

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cybertip/triage/pkg/model"
	"github.com/cybertip/triage/pkg/repository"
)

func TestPostgresRepository_Get_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`SELECT aggregate FROM tips WHERE tip_id = \$1`).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	repo := repository.NewPostgresRepository(db)
	_, err = repo.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, repository.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_Get_Found(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	tip := model.Tip{TipID: "t-1", Status: model.StatusTriaged, ReceivedAt: time.Now().UTC()}
	aggregate, err := json.Marshal(tip)
	require.NoError(t, err)

	rows := sqlmock.NewRows([]string{"aggregate"}).AddRow(aggregate)
	mock.ExpectQuery(`SELECT aggregate FROM tips WHERE tip_id = \$1`).
		WithArgs("t-1").
		WillReturnRows(rows)

	repo := repository.NewPostgresRepository(db)
	got, err := repo.Get(context.Background(), "t-1")
	require.NoError(t, err)
	assert.Equal(t, "t-1", got.TipID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_Stats_AggregatesCounts(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	tierRows := sqlmock.NewRows([]string{"tier", "count"}).
		AddRow("IMMEDIATE", 2).
		AddRow("MONITOR", 5)
	mock.ExpectQuery(`SELECT tier, count\(\*\) FROM tips WHERE tier != '' GROUP BY tier`).
		WillReturnRows(tierRows)

	totalsRow := sqlmock.NewRows([]string{"count", "count", "count"}).AddRow(7, 1, 0)
	mock.ExpectQuery(`SELECT count\(\*\),`).WillReturnRows(totalsRow)

	repo := repository.NewPostgresRepository(db)
	stats, err := repo.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7, stats.Total)
	assert.Equal(t, 1, stats.CrisisAlerts)
	assert.Equal(t, 2, stats.ByTier[model.TierImmediate])
	require.NoError(t, mock.ExpectationsWereMet())
}
