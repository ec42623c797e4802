package surgery

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ACW-Developers/urological-patient-mis-sub001/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

func connFor(ctx context.Context, pool *pgxpool.Pool) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return pool
}

// =========== Surgery Repository ===========

type surgeryRepoPG struct{ pool *pgxpool.Pool }

func NewSurgeryRepoPG(pool *pgxpool.Pool) SurgeryRepository { return &surgeryRepoPG{pool: pool} }

func (r *surgeryRepoPG) conn(ctx context.Context) queryable { return connFor(ctx, r.pool) }

const surgeryCols = `id, patient_id, surgeon_id, surgery_type, surgery_name, scheduled_date, scheduled_time,
	duration_minutes, operating_room, status, pre_op_assessment, pre_op_checklist_complete,
	who_checklist_complete, sign_out_complete, intra_op_notes, complications, post_op_notes,
	cancel_reason, created_at, updated_at`

func (r *surgeryRepoPG) scan(row pgx.Row) (*Surgery, error) {
	var s Surgery
	err := row.Scan(&s.ID, &s.PatientID, &s.SurgeonID, &s.SurgeryType, &s.SurgeryName,
		&s.ScheduledDate, &s.ScheduledTime, &s.DurationMinutes, &s.OperatingRoom, &s.Status,
		&s.PreOpAssessment, &s.PreOpChecklistComplete, &s.WHOChecklistComplete, &s.SignOutComplete,
		&s.IntraOpNotes, &s.Complications, &s.PostOpNotes, &s.CancelReason, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *surgeryRepoPG) Create(ctx context.Context, s *Surgery) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO surgeries (`+surgeryCols+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)`,
		s.ID, s.PatientID, s.SurgeonID, s.SurgeryType, s.SurgeryName, s.ScheduledDate, s.ScheduledTime,
		s.DurationMinutes, s.OperatingRoom, s.Status, s.PreOpAssessment, s.PreOpChecklistComplete,
		s.WHOChecklistComplete, s.SignOutComplete, s.IntraOpNotes, s.Complications, s.PostOpNotes,
		s.CancelReason, s.CreatedAt, s.UpdatedAt)
	return err
}

func (r *surgeryRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Surgery, error) {
	return r.scan(r.conn(ctx).QueryRow(ctx, `SELECT `+surgeryCols+` FROM surgeries WHERE id = $1`, id))
}

func (r *surgeryRepoPG) Update(ctx context.Context, s *Surgery) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE surgeries SET scheduled_date=$2, scheduled_time=$3, duration_minutes=$4, operating_room=$5,
			status=$6, pre_op_assessment=$7, pre_op_checklist_complete=$8, who_checklist_complete=$9,
			sign_out_complete=$10, intra_op_notes=$11, complications=$12, post_op_notes=$13,
			cancel_reason=$14, updated_at=$15
		WHERE id = $1`,
		s.ID, s.ScheduledDate, s.ScheduledTime, s.DurationMinutes, s.OperatingRoom,
		s.Status, s.PreOpAssessment, s.PreOpChecklistComplete, s.WHOChecklistComplete,
		s.SignOutComplete, s.IntraOpNotes, s.Complications, s.PostOpNotes,
		s.CancelReason, s.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *surgeryRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM surgeries WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// whereClause renders the filter as a WHERE fragment with positional args.
func (f ListFilter) whereClause() (string, []interface{}) {
	var conds []string
	var args []interface{}
	add := func(cond string, v interface{}) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if f.PatientID != nil {
		add("patient_id = $%d", *f.PatientID)
	}
	if f.SurgeonID != nil {
		add("surgeon_id = $%d", *f.SurgeonID)
	}
	if f.Status != "" {
		add("status = $%d", f.Status)
	}
	if f.From != nil {
		add("scheduled_date >= $%d", *f.From)
	}
	if f.To != nil {
		add("scheduled_date <= $%d", *f.To)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func (r *surgeryRepoPG) List(ctx context.Context, f ListFilter, limit, offset int) ([]*Surgery, int, error) {
	where, args := f.whereClause()

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM surgeries`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	q := fmt.Sprintf(`SELECT `+surgeryCols+` FROM surgeries%s ORDER BY scheduled_date, scheduled_time LIMIT $%d OFFSET $%d`,
		where, len(args)+1, len(args)+2)
	rows, err := r.conn(ctx).Query(ctx, q, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Surgery
	for rows.Next() {
		s, err := r.scan(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, s)
	}
	return items, total, rows.Err()
}

// =========== Checklist Repository ===========

type checklistRepoPG struct{ pool *pgxpool.Pool }

func NewChecklistRepoPG(pool *pgxpool.Pool) ChecklistRepository { return &checklistRepoPG{pool: pool} }

func (r *checklistRepoPG) conn(ctx context.Context) queryable { return connFor(ctx, r.pool) }

const checklistCols = `id, surgery_id, kind, items, completed, completed_at, completed_by, created_at`

func (r *checklistRepoPG) scan(row pgx.Row) (*Checklist, error) {
	var c Checklist
	var items []byte
	err := row.Scan(&c.ID, &c.SurgeryID, &c.Kind, &items, &c.Completed, &c.CompletedAt, &c.CompletedBy, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrChecklistNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(items, &c.Items); err != nil {
		return nil, fmt.Errorf("decode checklist items: %w", err)
	}
	return &c, nil
}

func (r *checklistRepoPG) Create(ctx context.Context, c *Checklist) error {
	items, err := json.Marshal(c.Items)
	if err != nil {
		return err
	}
	_, err = r.conn(ctx).Exec(ctx, `
		INSERT INTO surgery_checklists (`+checklistCols+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		c.ID, c.SurgeryID, c.Kind, items, c.Completed, c.CompletedAt, c.CompletedBy, c.CreatedAt)
	return err
}

func (r *checklistRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Checklist, error) {
	return r.scan(r.conn(ctx).QueryRow(ctx, `SELECT `+checklistCols+` FROM surgery_checklists WHERE id = $1`, id))
}

func (r *checklistRepoPG) GetBySurgeryAndKind(ctx context.Context, surgeryID uuid.UUID, kind ChecklistKind) (*Checklist, error) {
	return r.scan(r.conn(ctx).QueryRow(ctx,
		`SELECT `+checklistCols+` FROM surgery_checklists WHERE surgery_id = $1 AND kind = $2`, surgeryID, kind))
}

func (r *checklistRepoPG) ListBySurgery(ctx context.Context, surgeryID uuid.UUID) ([]*Checklist, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+checklistCols+` FROM surgery_checklists WHERE surgery_id = $1 ORDER BY created_at`, surgeryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Checklist
	for rows.Next() {
		c, err := r.scan(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, c)
	}
	return items, rows.Err()
}

// Update only ever completes a checklist; completed rows are never rewritten.
func (r *checklistRepoPG) Update(ctx context.Context, c *Checklist) error {
	items, err := json.Marshal(c.Items)
	if err != nil {
		return err
	}
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE surgery_checklists SET items=$2, completed=$3, completed_at=$4, completed_by=$5
		WHERE id = $1 AND completed = false`,
		c.ID, items, c.Completed, c.CompletedAt, c.CompletedBy)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrChecklistLocked
	}
	return nil
}

func (r *checklistRepoPG) DeleteBySurgery(ctx context.Context, surgeryID uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `DELETE FROM surgery_checklists WHERE surgery_id = $1`, surgeryID)
	return err
}
