package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/devicelab-dev/crm-e2e/pkg/core"
)

// DefaultSchema holds the CRM tables.
const DefaultSchema = "channelplay_aurora"

// Tables read by the repositories.
const (
	TableOTP       = "b2b_otp_reset_password"
	TableCompany   = "b2b_company_master"
	TableBatch     = "b2b_bulk_upload_batch"
	TableActivity  = "b2b_activity_master"
	TableOutletStg = "b2b_outlet_master_staging"
	TableOutlet    = "b2b_outlet_master"
	TableUserStg   = "b2b_user_master_staging"
	TableUser      = "b2b_user_master"
	TableProdStg   = "b2b_product_master_staging"
	TableProduct   = "b2b_product_master"
)

// bulkTables are the staging and master tables a step may name. Table
// names cannot be bound as parameters, so only these are interpolated.
var bulkTables = map[string]bool{
	TableOutletStg: true, TableOutlet: true,
	TableUserStg: true, TableUser: true,
	TableProdStg: true, TableProduct: true,
}

var identRe = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// BulkTables lists the table names accepted by StagingRepository.
func BulkTables() []string {
	out := make([]string, 0, len(bulkTables))
	for t := range bulkTables {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Repositories groups the repositories of one connection.
type Repositories struct {
	OTP      *OTPRepository
	Company  *CompanyRepository
	Staging  *StagingRepository
	Activity *ActivityRepository
}

// NewRepositories creates repositories reading tables of schema.
func NewRepositories(db *sqlx.DB, schema string) (*Repositories, error) {
	if schema == "" {
		schema = DefaultSchema
	}
	if !identRe.MatchString(schema) {
		return nil, core.ErrInvalidConfig.WithMessage(fmt.Sprintf("invalid schema name %q", schema))
	}
	return &Repositories{
		OTP:      &OTPRepository{db: db, schema: schema},
		Company:  &CompanyRepository{db: db, schema: schema},
		Staging:  &StagingRepository{db: db, schema: schema},
		Activity: &ActivityRepository{db: db, schema: schema},
	}, nil
}

func notFound(what string) error {
	return core.ErrRecordNotFound.WithMessage(what)
}

// OTPRecord is a row of the reset OTP table.
type OTPRecord struct {
	ID        int64     `db:"id"`
	UserName  string    `db:"user_name"`
	OTP       string    `db:"otp"`
	IsUsed    bool      `db:"is_used"`
	CreatedOn time.Time `db:"created_on"`
}

// OTPRepository reads password reset OTPs.
type OTPRepository struct {
	db     *sqlx.DB
	schema string
}

// Latest returns the newest OTP issued to username.
func (r *OTPRepository) Latest(ctx context.Context, username string) (*OTPRecord, error) {
	return r.LatestSince(ctx, username, time.Time{})
}

// LatestSince returns the newest OTP issued to username after since, so a
// scenario does not pick up an OTP left by an earlier run.
func (r *OTPRepository) LatestSince(ctx context.Context, username string, since time.Time) (*OTPRecord, error) {
	query := `SELECT id, user_name, otp, is_used, created_on
FROM ` + r.schema + `.` + TableOTP + `
WHERE lower(user_name) = lower($1) AND created_on >= $2
ORDER BY created_on DESC
LIMIT 1`

	var rec OTPRecord
	err := r.db.GetContext(ctx, &rec, query, username, since)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("no OTP for " + username)
	}
	if err != nil {
		return nil, queryError("query OTP", err)
	}
	rec.OTP = strings.TrimSpace(rec.OTP)
	return &rec, nil
}

// Company is a row of the company master.
type Company struct {
	ID        int64     `db:"company_id"`
	Code      string    `db:"company_code"`
	Name      string    `db:"company_name"`
	IsActive  bool      `db:"is_active"`
	CreatedOn time.Time `db:"created_on"`
}

// CompanyRepository reads the company master.
type CompanyRepository struct {
	db     *sqlx.DB
	schema string
}

func (r *CompanyRepository) one(ctx context.Context, column, value string) (*Company, error) {
	query := `SELECT company_id, company_code, company_name, is_active, created_on
FROM ` + r.schema + `.` + TableCompany + `
WHERE ` + column + ` = $1
LIMIT 1`

	var c Company
	err := r.db.GetContext(ctx, &c, query, value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound(fmt.Sprintf("no company with %s %q", column, value))
	}
	if err != nil {
		return nil, queryError("query company", err)
	}
	return &c, nil
}

// ByCode finds a company by its code.
func (r *CompanyRepository) ByCode(ctx context.Context, code string) (*Company, error) {
	return r.one(ctx, "company_code", code)
}

// ByName finds a company by its display name.
func (r *CompanyRepository) ByName(ctx context.Context, name string) (*Company, error) {
	return r.one(ctx, "company_name", name)
}

// Batch is a bulk upload batch.
type Batch struct {
	BatchID     string    `db:"batch_id"`
	Template    string    `db:"template_name"`
	Status      string    `db:"status"`
	TotalRows   int       `db:"total_rows"`
	SuccessRows int       `db:"success_rows"`
	FailedRows  int       `db:"failed_rows"`
	CreatedOn   time.Time `db:"created_on"`
}

// Batch statuses written by the upload processor.
const (
	BatchPending    = "PENDING"
	BatchProcessing = "PROCESSING"
	BatchCompleted  = "COMPLETED"
	BatchFailed     = "FAILED"
)

// Done reports whether the processor has finished with the batch.
func (b *Batch) Done() bool {
	s := strings.ToUpper(b.Status)
	return s == BatchCompleted || s == BatchFailed
}

// StagingRepository reads bulk upload batches and their staging rows.
type StagingRepository struct {
	db     *sqlx.DB
	schema string
}

func (r *StagingRepository) table(name string) (string, error) {
	if !bulkTables[name] || !identRe.MatchString(name) {
		return "", core.ErrInvalidConfig.WithMessage(fmt.Sprintf("table %q is not a bulk upload table (known: %s)", name, strings.Join(BulkTables(), ", ")))
	}
	return r.schema + "." + name, nil
}

// BatchStatus returns the batch row.
func (r *StagingRepository) BatchStatus(ctx context.Context, batchID string) (*Batch, error) {
	query := `SELECT batch_id, template_name, status, total_rows, success_rows, failed_rows, created_on
FROM ` + r.schema + `.` + TableBatch + `
WHERE batch_id = $1`

	var b Batch
	err := r.db.GetContext(ctx, &b, query, batchID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("no bulk upload batch " + batchID)
	}
	if err != nil {
		return nil, queryError("query batch", err)
	}
	return &b, nil
}

// Rows returns every row of table loaded by the batch, keyed by column.
func (r *StagingRepository) Rows(ctx context.Context, table, batchID string) ([]map[string]interface{}, error) {
	t, err := r.table(table)
	if err != nil {
		return nil, err
	}
	rows, err := r.db.QueryxContext(ctx, `SELECT * FROM `+t+` WHERE batch_id = $1 ORDER BY 1`, batchID)
	if err != nil {
		return nil, queryError("query "+table, err)
	}
	defer rows.Close()

	var out []map[string]interface{}
	for rows.Next() {
		row := map[string]interface{}{}
		if err := rows.MapScan(row); err != nil {
			return nil, queryError("scan "+table, err)
		}
		for k, v := range row {
			if b, ok := v.([]byte); ok {
				row[k] = string(b)
			}
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// Counts is the progress of a batch through a staging table.
type Counts struct {
	Total   int `db:"total"`
	Pending int `db:"pending"`
}

// Count returns how many rows of the batch are in table and how many of
// them still have is_moved = false.
func (r *StagingRepository) Count(ctx context.Context, table, batchID string) (Counts, error) {
	var c Counts
	t, err := r.table(table)
	if err != nil {
		return c, err
	}
	query := `SELECT count(*) AS total, count(*) FILTER (WHERE NOT coalesce(is_moved, false)) AS pending
FROM ` + t + `
WHERE batch_id = $1`
	if err := r.db.GetContext(ctx, &c, query, batchID); err != nil {
		return c, queryError("count "+table, err)
	}
	return c, nil
}

// CountPending returns the rows of the batch not yet moved to the master.
func (r *StagingRepository) CountPending(ctx context.Context, table, batchID string) (int, error) {
	c, err := r.Count(ctx, table, batchID)
	return c.Pending, err
}

// ActivityRecord is a row of the activity master.
type ActivityRecord struct {
	ID           int64          `db:"activity_id"`
	Name         string         `db:"activity_name"`
	ActivityType string         `db:"activity_type"`
	Frequency    sql.NullString `db:"frequency"`
	Description  sql.NullString `db:"description"`
	Status       string         `db:"status"`
	CompanyID    int64          `db:"company_id"`
	IsActive     bool           `db:"is_active"`
	CreatedOn    time.Time      `db:"created_on"`
}

// ActivityRepository reads the activity master.
type ActivityRepository struct {
	db     *sqlx.DB
	schema string
}

// ByName returns the newest activity called name.
func (r *ActivityRepository) ByName(ctx context.Context, name string) (*ActivityRecord, error) {
	query := `SELECT activity_id, activity_name, activity_type, frequency, description, status, company_id, is_active, created_on
FROM ` + r.schema + `.` + TableActivity + `
WHERE activity_name = $1
ORDER BY created_on DESC
LIMIT 1`

	var a ActivityRecord
	err := r.db.GetContext(ctx, &a, query, name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("no activity named " + name)
	}
	if err != nil {
		return nil, queryError("query activity", err)
	}
	return &a, nil
}
