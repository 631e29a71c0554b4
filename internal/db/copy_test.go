package db

import (
	"context"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCopyFrom_EmptyRows(t *testing.T) {
	n, err := CopyFrom(context.TODO(), nil, "waterways", []string{"site_id", "geom"}, nil)
	assert.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestCopyFrom_Success(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectCopyFrom(pgx.Identifier{"waterways"}, []string{"site_id", "geom"}).WillReturnResult(3)

	rows := [][]any{{"hoover", []byte{1}}, {"glen-canyon", []byte{2}}, {"oroville", []byte{3}}}
	n, err := CopyFrom(context.Background(), mock, "waterways", []string{"site_id", "geom"}, rows)
	assert.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCopyFrom_Error(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectCopyFrom(pgx.Identifier{"waterways"}, []string{"site_id", "geom"}).WillReturnError(fmt.Errorf("copy failed"))

	rows := [][]any{{"hoover", []byte{1}}}
	_, err = CopyFrom(context.Background(), mock, "waterways", []string{"site_id", "geom"}, rows)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "COPY INTO waterways")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCopyFromSchema_EmptyRows(t *testing.T) {
	n, err := CopyFromSchema(context.TODO(), nil, "hydro", "waterways", []string{"site_id"}, [][]any{})
	assert.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestCopyFromSchema_Success(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectCopyFrom(pgx.Identifier{"hydro", "waterways"}, []string{"site_id", "geom"}).WillReturnResult(2)

	rows := [][]any{{"hoover", []byte{1}}, {"oroville", []byte{2}}}
	n, err := CopyFromSchema(context.Background(), mock, "hydro", "waterways", []string{"site_id", "geom"}, rows)
	assert.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCopyFromSchema_Error(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectCopyFrom(pgx.Identifier{"hydro", "waterways"}, []string{"site_id"}).WillReturnError(fmt.Errorf("permission denied"))

	rows := [][]any{{"hoover"}}
	_, err = CopyFromSchema(context.Background(), mock, "hydro", "waterways", []string{"site_id"}, rows)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "COPY INTO hydro.waterways")
	assert.NoError(t, mock.ExpectationsWereMet())
}
