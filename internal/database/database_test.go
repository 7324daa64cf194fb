package database

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amasuba/uraics-revenue-assurance/internal/types"
)

func newMockDB(t *testing.T) (*DB, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })

	db := New(sqlx.NewDb(mockDB, "sqlmock"), 5*time.Second)
	return db, mock
}

func TestExecuteBindsNamedParamsAndLowersKeys(t *testing.T) {
	db, mock := newMockDB(t)

	rows := sqlmock.NewRows([]string{"TIN_NO", "TAX_PAYER_NAME", "EXPOSURE"}).
		AddRow("1000012345", "Kampala Traders Ltd", int64(200000000))
	mock.ExpectQuery("SELECT .+ FROM flagged").
		WithArgs("Central").
		WillReturnRows(rows)

	got, err := db.Execute(context.Background(),
		"SELECT * FROM flagged WHERE region = :region",
		map[string]any{"region": "Central"})
	require.NoError(t, err)
	require.Len(t, got, 1)

	// Engine case conventions must not leak to callers.
	assert.Equal(t, "1000012345", got[0]["tin_no"])
	assert.Equal(t, int64(200000000), got[0]["exposure"])
	assert.NotContains(t, got[0], "TIN_NO")

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestExecuteEmptyResult(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectQuery("SELECT .+ FROM flagged").
		WillReturnRows(sqlmock.NewRows([]string{"tin_no"}))

	got, err := db.Execute(context.Background(), "SELECT tin_no FROM flagged", map[string]any{})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestExecuteWrapsQueryFailure(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectQuery("SELECT .+ FROM flagged").
		WillReturnError(assert.AnError)

	_, err := db.Execute(context.Background(), "SELECT tin_no FROM flagged", map[string]any{})
	require.Error(t, err)
	assert.Equal(t, types.DB_QUERY_FAILED, types.ErrorCodeOf(err))
}

func TestHealth(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectPing()
	status := db.Health(context.Background())
	assert.True(t, status.IsHealthy())

	mock.ExpectPing().WillReturnError(assert.AnError)
	status = db.Health(context.Background())
	assert.True(t, status.IsUnhealthy())
}

func TestCountRegisteredTaxpayers(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectQuery("SELECT COUNT\\(\\*\\) AS total").
		WillReturnRows(sqlmock.NewRows([]string{"total"}).AddRow(int64(1245780)))

	total, err := db.CountRegisteredTaxpayers(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1245780), total)
}

func TestRegionalTaxpayerCounts(t *testing.T) {
	db, mock := newMockDB(t)

	rows := sqlmock.NewRows([]string{"region", "total"}).
		AddRow("Central", int64(520000)).
		AddRow("Eastern", int64(180000))
	mock.ExpectQuery("GROUP BY ST2.region_name").WillReturnRows(rows)

	counts, err := db.RegionalTaxpayerCounts(context.Background())
	require.NoError(t, err)
	require.Len(t, counts, 2)
	assert.Equal(t, RegionCount{Region: "Central", Total: 520000}, counts[0])
	assert.Equal(t, RegionCount{Region: "Eastern", Total: 180000}, counts[1])
}

func TestTaxpayerByTIN(t *testing.T) {
	db, mock := newMockDB(t)

	rows := sqlmock.NewRows([]string{"tin_no", "tax_payer_name", "reg_status", "region_name"}).
		AddRow("1000012345", "Kampala Traders Ltd", "REGD", "Central")
	mock.ExpectQuery("WHERE ST.tin_no").
		WithArgs("1000012345").
		WillReturnRows(rows)

	row, err := db.TaxpayerByTIN(context.Background(), "1000012345")
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.Equal(t, "Kampala Traders Ltd", row["tax_payer_name"])
}

func TestTaxpayerByTINNotFound(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectQuery("WHERE ST.tin_no").
		WithArgs("9999999999").
		WillReturnRows(sqlmock.NewRows([]string{"tin_no"}))

	row, err := db.TaxpayerByTIN(context.Background(), "9999999999")
	require.NoError(t, err)
	assert.Nil(t, row)
}
