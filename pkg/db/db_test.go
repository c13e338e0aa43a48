package db

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devicelab-dev/crm-e2e/pkg/config"
	"github.com/devicelab-dev/crm-e2e/pkg/core"
	"github.com/devicelab-dev/crm-e2e/pkg/poll"
)

var fastPoll = poll.Options{Interval: 10 * time.Millisecond, Timeout: time.Second}

func newMock(t *testing.T) (*Repositories, sqlmock.Sqlmock) {
	t.Helper()
	raw, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { raw.Close() })

	repos, err := NewRepositories(sqlx.NewDb(raw, "postgres"), "")
	require.NoError(t, err)
	return repos, mock
}

var otpColumns = []string{"id", "user_name", "otp", "is_used", "created_on"}

func TestOTP_Latest(t *testing.T) {
	repos, mock := newMock(t)
	created := time.Date(2026, 10, 19, 9, 30, 0, 0, time.UTC)

	mock.ExpectQuery(`FROM channelplay_aurora\.b2b_otp_reset_password`).
		WithArgs("qa.admin", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows(otpColumns).AddRow(11, "QA.Admin", " 482133 ", false, created))

	rec, err := repos.OTP.Latest(context.Background(), "qa.admin")
	require.NoError(t, err)
	assert.Equal(t, "482133", rec.OTP)
	assert.Equal(t, created, rec.CreatedOn)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOTP_NotFound(t *testing.T) {
	repos, mock := newMock(t)
	mock.ExpectQuery(`b2b_otp_reset_password`).WillReturnRows(sqlmock.NewRows(otpColumns))

	_, err := repos.OTP.Latest(context.Background(), "nobody")
	assert.True(t, errors.Is(err, core.ErrRecordNotFound), "got %v", err)
}

func TestWaitForOTP(t *testing.T) {
	repos, mock := newMock(t)
	since := time.Now().Add(-time.Minute)

	mock.ExpectQuery(`b2b_otp_reset_password`).WithArgs("qa.admin", since).WillReturnRows(sqlmock.NewRows(otpColumns))
	mock.ExpectQuery(`b2b_otp_reset_password`).WithArgs("qa.admin", since).
		WillReturnRows(sqlmock.NewRows(otpColumns).AddRow(12, "qa.admin", "771204", false, time.Now()))

	otp, err := WaitForOTP(context.Background(), repos.OTP, "qa.admin", since, fastPoll)
	require.NoError(t, err)
	assert.Equal(t, "771204", otp)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWaitForOTP_Timeout(t *testing.T) {
	repos, mock := newMock(t)
	mock.MatchExpectationsInOrder(false)
	for i := 0; i < 20; i++ {
		mock.ExpectQuery(`b2b_otp_reset_password`).WillReturnRows(sqlmock.NewRows(otpColumns))
	}

	_, err := WaitForOTP(context.Background(), repos.OTP, "qa.admin", time.Now(), poll.Options{Interval: 20 * time.Millisecond, Timeout: 100 * time.Millisecond})
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrWaitTimeout))
	assert.Contains(t, err.Error(), "OTP for qa.admin")
}

func TestCompany_ByCode(t *testing.T) {
	repos, mock := newMock(t)
	mock.ExpectQuery(`FROM channelplay_aurora\.b2b_company_master\s+WHERE company_code = \$1`).
		WithArgs("CP001").
		WillReturnRows(sqlmock.NewRows([]string{"company_id", "company_code", "company_name", "is_active", "created_on"}).
			AddRow(7, "CP001", "Channelplay Retail", true, time.Now()))

	c, err := repos.Company.ByCode(context.Background(), "CP001")
	require.NoError(t, err)
	assert.Equal(t, int64(7), c.ID)
	assert.Equal(t, "Channelplay Retail", c.Name)
	assert.True(t, c.IsActive)
}

var batchColumns = []string{"batch_id", "template_name", "status", "total_rows", "success_rows", "failed_rows", "created_on"}

func TestWaitForBatchComplete(t *testing.T) {
	repos, mock := newMock(t)
	now := time.Now()
	mock.ExpectQuery(`b2b_bulk_upload_batch`).WithArgs("5512").WillReturnRows(sqlmock.NewRows(batchColumns))
	mock.ExpectQuery(`b2b_bulk_upload_batch`).WithArgs("5512").
		WillReturnRows(sqlmock.NewRows(batchColumns).AddRow("5512", "Outlet Master", "PROCESSING", 10, 4, 0, now))
	mock.ExpectQuery(`b2b_bulk_upload_batch`).WithArgs("5512").
		WillReturnRows(sqlmock.NewRows(batchColumns).AddRow("5512", "Outlet Master", "COMPLETED", 10, 10, 0, now))

	b, err := WaitForBatchComplete(context.Background(), repos.Staging, "5512", fastPoll)
	require.NoError(t, err)
	assert.Equal(t, BatchCompleted, b.Status)
	assert.Equal(t, 10, b.SuccessRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWaitForBatchComplete_Failed(t *testing.T) {
	repos, mock := newMock(t)
	mock.ExpectQuery(`b2b_bulk_upload_batch`).
		WillReturnRows(sqlmock.NewRows(batchColumns).AddRow("5513", "Outlet Master", "FAILED", 10, 0, 10, time.Now()))

	start := time.Now()
	_, err := WaitForBatchComplete(context.Background(), repos.Staging, "5513", poll.Options{Interval: time.Second, Timeout: 5 * time.Second})
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrConditionNotMet), "got %v", err)
	assert.Contains(t, err.Error(), "10 of 10 rows rejected")
	assert.Less(t, time.Since(start), time.Second, "a failed batch ends the wait at once")
}

func TestWaitForAllMoved(t *testing.T) {
	repos, mock := newMock(t)
	counts := []string{"total", "pending"}
	mock.ExpectQuery(`FROM channelplay_aurora\.b2b_outlet_master_staging`).WithArgs("5512").
		WillReturnRows(sqlmock.NewRows(counts).AddRow(0, 0))
	mock.ExpectQuery(`FROM channelplay_aurora\.b2b_outlet_master_staging`).WithArgs("5512").
		WillReturnRows(sqlmock.NewRows(counts).AddRow(3, 2))
	mock.ExpectQuery(`FROM channelplay_aurora\.b2b_outlet_master_staging`).WithArgs("5512").
		WillReturnRows(sqlmock.NewRows(counts).AddRow(3, 0))

	c, err := WaitForAllMoved(context.Background(), repos.Staging, TableOutletStg, "5512", fastPoll)
	require.NoError(t, err)
	assert.Equal(t, Counts{Total: 3, Pending: 0}, c)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWaitForAllMoved_RetriesConnectionError(t *testing.T) {
	repos, mock := newMock(t)
	counts := []string{"total", "pending"}
	mock.ExpectQuery(`b2b_outlet_master_staging`).WithArgs("5512").
		WillReturnError(&pq.Error{Code: "08006", Message: "connection failure"})
	mock.ExpectQuery(`b2b_outlet_master_staging`).WithArgs("5512").
		WillReturnRows(sqlmock.NewRows(counts).AddRow(3, 0))

	c, err := WaitForAllMoved(context.Background(), repos.Staging, TableOutletStg, "5512", fastPoll)
	require.NoError(t, err)
	assert.Equal(t, Counts{Total: 3, Pending: 0}, c)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWaitForAllMoved_StopsOnSchemaError(t *testing.T) {
	repos, mock := newMock(t)
	mock.ExpectQuery(`b2b_outlet_master_staging`).WithArgs("5512").
		WillReturnError(&pq.Error{Code: "42P01", Message: "relation does not exist"})

	_, err := WaitForAllMoved(context.Background(), repos.Staging, TableOutletStg, "5512", poll.Options{Interval: time.Second, Timeout: 5 * time.Second})
	assert.True(t, errors.Is(err, core.ErrInvalidConfig), "got %v", err)
	assert.False(t, errors.Is(err, core.ErrWaitTimeout))
}

func TestStaging_RejectsUnknownTable(t *testing.T) {
	repos, mock := newMock(t)

	_, err := repos.Staging.CountPending(context.Background(), "users; drop table x", "1")
	assert.True(t, errors.Is(err, core.ErrInvalidConfig))
	assert.Contains(t, err.Error(), TableOutletStg)

	_, err = repos.Staging.Rows(context.Background(), "b2b_company_master", "1")
	assert.True(t, errors.Is(err, core.ErrInvalidConfig))
	assert.NoError(t, mock.ExpectationsWereMet(), "no query may run for a rejected table")
}

func TestStaging_Rows(t *testing.T) {
	repos, mock := newMock(t)
	mock.ExpectQuery(`SELECT \* FROM channelplay_aurora\.b2b_outlet_master_staging WHERE batch_id = \$1`).
		WithArgs("5512").
		WillReturnRows(sqlmock.NewRows([]string{"id", "outlet_code", "is_moved", "error_message"}).
			AddRow(1, []byte("OUT-1"), true, nil).
			AddRow(2, "OUT-2", false, "duplicate outlet code"))

	rows, err := repos.Staging.Rows(context.Background(), TableOutletStg, "5512")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "OUT-1", rows[0]["outlet_code"])
	assert.Equal(t, false, rows[1]["is_moved"])
	assert.Equal(t, "duplicate outlet code", rows[1]["error_message"])
}

func TestQueryError_SchemaMistake(t *testing.T) {
	repos, mock := newMock(t)
	mock.ExpectQuery(`b2b_activity_master`).
		WillReturnError(&pq.Error{Code: "42P01", Message: `relation "channelplay_aurora.b2b_activity_master" does not exist`})

	_, err := repos.Activity.ByName(context.Background(), "Store Audit")
	assert.True(t, errors.Is(err, core.ErrInvalidConfig), "got %v", err)
	assert.Contains(t, err.Error(), "SQLSTATE 42P01")
}

func TestWaitForActivity(t *testing.T) {
	repos, mock := newMock(t)
	cols := []string{"activity_id", "activity_name", "activity_type", "frequency", "description", "status", "company_id", "is_active", "created_on"}
	mock.ExpectQuery(`b2b_activity_master`).WithArgs("Store Audit").WillReturnRows(sqlmock.NewRows(cols))
	mock.ExpectQuery(`b2b_activity_master`).WithArgs("Store Audit").
		WillReturnRows(sqlmock.NewRows(cols).AddRow(901, "Store Audit", "Visit", nil, "Monthly audit", "Active", 7, true, time.Now()))

	a, err := WaitForActivity(context.Background(), repos.Activity, "Store Audit", fastPoll)
	require.NoError(t, err)
	assert.Equal(t, int64(901), a.ID)
	assert.False(t, a.Frequency.Valid)
	assert.Equal(t, "Monthly audit", a.Description.String)
}

func TestWaitForActivity_QueryErrorStops(t *testing.T) {
	repos, mock := newMock(t)
	mock.ExpectQuery(`b2b_activity_master`).WillReturnError(errors.New("connection reset by peer"))

	_, err := WaitForActivity(context.Background(), repos.Activity, "Store Audit", poll.Options{Interval: time.Second, Timeout: 5 * time.Second})
	require.Error(t, err)
	assert.False(t, errors.Is(err, core.ErrWaitTimeout))
	assert.Contains(t, err.Error(), "connection reset by peer")
}

func TestNewRepositories_InvalidSchema(t *testing.T) {
	_, err := NewRepositories(nil, "public; drop")
	assert.True(t, errors.Is(err, core.ErrInvalidConfig))
}

func TestManager(t *testing.T) {
	m := NewManager(config.DatabaseProperties{Host: "db", Port: 5432, Schema: "crm_qa"})

	_, err := m.DB(context.Background(), "reporting")
	assert.True(t, errors.Is(err, core.ErrInvalidConfig), "unknown connection")

	_, err = m.DB(context.Background(), DefaultConnection)
	assert.True(t, errors.Is(err, core.ErrInvalidConfig), "db.name missing")

	raw, mock, err := sqlmock.New()
	require.NoError(t, err)
	mock.ExpectClose()
	m.Attach(DefaultConnection, sqlx.NewDb(raw, "postgres"))

	repos, err := m.Repositories(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "crm_qa", repos.OTP.schema)

	require.NoError(t, m.Close())
	assert.NoError(t, mock.ExpectationsWereMet())
	assert.Equal(t, DefaultSchema, NewManager(config.DatabaseProperties{}).Schema(DefaultConnection))
}

func TestShippedConfig_QueriesCRMSchema(t *testing.T) {
	t.Setenv("CRM_DB_SCHEMA", "")
	for _, env := range []config.Environment{config.EnvQA, config.EnvPreProd, config.EnvProduction} {
		t.Run(string(env), func(t *testing.T) {
			props, err := config.LoadProperties("../../config", env)
			require.NoError(t, err)
			assert.Equal(t, DefaultSchema, props.DB.Schema)

			raw, mock, err := sqlmock.New()
			require.NoError(t, err)
			m := NewManager(props.DB)
			m.Attach(DefaultConnection, sqlx.NewDb(raw, "postgres"))
			t.Cleanup(func() { _ = m.Close() })

			repos, err := m.Repositories(context.Background())
			require.NoError(t, err)

			mock.ExpectQuery(`FROM channelplay_aurora\.b2b_otp_reset_password`).
				WillReturnRows(sqlmock.NewRows(otpColumns).AddRow(1, "qa.admin", "123456", false, time.Now()))
			rec, err := repos.OTP.Latest(context.Background(), "qa.admin")
			require.NoError(t, err)
			assert.Equal(t, "123456", rec.OTP)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestManager_SlowPingDoesNotBlockOthers(t *testing.T) {
	// A server that accepts and never answers the startup message.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	accepted := make(chan net.Conn, 1)
	go func() {
		if c, err := ln.Accept(); err == nil {
			accepted <- c
		}
	}()

	m := NewManager(config.DatabaseProperties{})
	m.Register("reporting", config.DatabaseProperties{
		Host: "127.0.0.1", Port: ln.Addr().(*net.TCPAddr).Port, Name: "crm", SSLMode: "disable",
	})
	raw, _, err := sqlmock.New()
	require.NoError(t, err)
	defer raw.Close()
	m.Attach(DefaultConnection, sqlx.NewDb(raw, "postgres"))

	stalled := make(chan error, 1)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	go func() {
		_, err := m.DB(ctx, "reporting")
		stalled <- err
	}()

	var conn net.Conn
	select {
	case conn = <-accepted:
	case <-time.After(5 * time.Second):
		t.Fatal("reporting connection never dialed")
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		db, err := m.DB(context.Background(), DefaultConnection)
		assert.NoError(t, err)
		assert.NotNil(t, db)
		assert.Equal(t, DefaultSchema, m.Schema("reporting"))
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("default connection blocked behind the reporting ping")
	}

	ln.Close()
	conn.Close()
	err = <-stalled
	assert.True(t, errors.Is(err, core.ErrDatabaseUnavailable), "got %v", err)
}
