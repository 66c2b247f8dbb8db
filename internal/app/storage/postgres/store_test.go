package postgres

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/orchestrator/internal/app/domain/asset"
	"github.com/R3E-Network/orchestrator/internal/app/domain/project"
	"github.com/R3E-Network/orchestrator/internal/app/storage"
)

func sqlNow() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) }

func assetFixture() asset.Asset {
	return asset.Asset{
		ID:        uuid.New(),
		ProjectID: uuid.New(),
		Type:      asset.TypeHost,
		Value:     "10.0.0.1",
	}
}

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return New(sqlx.NewDb(db, "postgres")), mock
}

func TestCreateProjectInsertsRow(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(".*INSERT INTO projects.*").
		WillReturnResult(sqlmock.NewResult(1, 1))

	created, err := store.CreateProject(context.Background(), project.Project{Name: "demo"})
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, created.ID)
	assert.Equal(t, "demo", created.Name)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetProjectReturnsErrNotFoundOnNoRows(t *testing.T) {
	store, mock := newMockStore(t)
	id := uuid.New()

	mock.ExpectQuery(".*FROM projects WHERE id = .*").
		WithArgs(id).
		WillReturnError(sql.ErrNoRows)

	_, err := store.GetProject(context.Background(), id)
	require.ErrorIs(t, err, storage.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetProjectScansRow(t *testing.T) {
	store, mock := newMockStore(t)
	id := uuid.New()
	rows := sqlmock.NewRows([]string{"id", "name", "description", "created_by", "created_at", "updated_at"}).
		AddRow(id, "demo", "desc", uuid.New(), sqlNow(), sqlNow())

	mock.ExpectQuery(".*FROM projects WHERE id = .*").
		WithArgs(id).
		WillReturnRows(rows)

	got, err := store.GetProject(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "demo", got.Name)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateAssetReturnsErrNotFoundWhenNoRowsAffected(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(".*UPDATE assets SET.*").
		WillReturnResult(sqlmock.NewResult(0, 0))

	_, err := store.UpdateAsset(context.Background(), assetFixture())
	require.ErrorIs(t, err, storage.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}
