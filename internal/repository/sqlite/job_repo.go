package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/printshop/scheduler/internal/domain"
	"github.com/printshop/scheduler/internal/orchestrator"
)

// allJobTables lists every category partition plus the fallback table, per
// the source system's dynamic-table-selection design note.
var allJobTables = []string{
	"production_jobs", "business_cards_jobs", "flyers_jobs", "postcards_jobs",
	"posters_jobs", "sleeves_jobs", "stickers_jobs", "covers_jobs", "boxes_jobs",
}

// JobRepository implements orchestrator.JobLister, orchestrator.JobDueDateWriter,
// and orchestrator.ProofPendingLister across every category-partitioned jobs table.
type JobRepository struct {
	db *DB
}

// NewJobRepository builds a JobRepository.
func NewJobRepository(db *DB) *JobRepository {
	return &JobRepository{db: db}
}

func scanJob(row interface {
	Scan(dest ...interface{}) error
}) (*domain.Job, error) {
	j := &domain.Job{}
	var categoryID sql.NullString
	var status string
	var hasCustom, expedited int
	var tentative, proofApproved sql.NullTime

	err := row.Scan(&j.JobID, &j.WorkOrderNumber, &categoryID, &j.DueDate, &status,
		&hasCustom, &expedited, &j.CreatedAt, &tentative, &proofApproved)
	if err != nil {
		return nil, err
	}

	if categoryID.Valid {
		c := domain.ProductCategory(categoryID.String)
		j.CategoryID = &c
	}
	j.Status = domain.JobStatus(status)
	j.HasCustomWorkflow = hasCustom != 0
	j.IsExpedited = expedited != 0
	if tentative.Valid {
		t := tentative.Time
		j.TentativeDueDate = &t
	}
	if proofApproved.Valid {
		t := proofApproved.Time
		j.ProofApprovedAt = &t
	}
	return j, nil
}

const jobColumns = `job_id, work_order_number, category_id, due_date, status,
	has_custom_workflow, is_expedited, created_at, tentative_due_date, proof_approved_at`

// ActiveJobs returns every job across every category table that is not yet
// completed or cancelled.
func (r *JobRepository) ActiveJobs(ctx context.Context) ([]*domain.Job, error) {
	var all []*domain.Job
	for _, table := range allJobTables {
		query := fmt.Sprintf(`SELECT %s FROM %s WHERE status NOT IN ('completed', 'cancelled')`, jobColumns, table)
		rows, err := r.db.Conn().QueryContext(ctx, query)
		if err != nil {
			return nil, fmt.Errorf("listing active jobs from %s: %w", table, err)
		}
		for rows.Next() {
			j, err := scanJob(rows)
			if err != nil {
				rows.Close()
				return nil, fmt.Errorf("scanning job row from %s: %w", table, err)
			}
			all = append(all, j)
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, err
		}
		rows.Close()
	}
	return all, nil
}

// SetTentativeDueDate persists the TentativeDueDateEstimator's dry-run
// result. Every category table is tried since the caller only has a jobID.
func (r *JobRepository) SetTentativeDueDate(ctx context.Context, jobID string, date time.Time) error {
	for _, table := range allJobTables {
		query := fmt.Sprintf(`UPDATE %s SET tentative_due_date = ? WHERE job_id = ?`, table)
		res, err := r.db.Conn().ExecContext(ctx, query, r.db.ToDBTime(date), jobID)
		if err != nil {
			return fmt.Errorf("updating tentative due date in %s: %w", table, err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			return nil
		}
	}
	return fmt.Errorf("job %s not found in any job table", jobID)
}

// JobsAwaitingProofApproval implements orchestrator.ProofPendingLister: jobs
// with a pending stage whose name contains "proof" and no recorded approval
// timestamp.
func (r *JobRepository) JobsAwaitingProofApproval(ctx context.Context) ([]orchestrator.PendingProofJob, error) {
	var out []orchestrator.PendingProofJob
	for _, table := range allJobTables {
		query := fmt.Sprintf(`
			SELECT j.job_id FROM %s j
			JOIN production_stage_instances si ON si.job_id = j.job_id
			JOIN production_stages ps ON ps.stage_id = si.stage_id
			WHERE LOWER(ps.name) LIKE '%%proof%%' AND si.status = 'pending' AND j.proof_approved_at IS NULL`, table)
		rows, err := r.db.Conn().QueryContext(ctx, query)
		if err != nil {
			return nil, fmt.Errorf("listing jobs awaiting proof approval from %s: %w", table, err)
		}
		for rows.Next() {
			var jobID string
			if err := rows.Scan(&jobID); err != nil {
				rows.Close()
				return nil, err
			}
			out = append(out, orchestrator.PendingProofJob{JobID: jobID, JobTableName: table})
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, err
		}
		rows.Close()
	}
	return out, nil
}
