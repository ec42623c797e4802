package admission

import (
	"context"
	"errors"
	"fmt"
	"strings"

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

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

func (r *repoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const cols = `id, patient_id, surgery_id, icu_admission_id, unit, bed_number, admission_reason,
	source, status, admitted_at, discharged_at, discharge_notes`

func (r *repoPG) scan(row pgx.Row) (*Admission, error) {
	var a Admission
	err := row.Scan(&a.ID, &a.PatientID, &a.SurgeryID, &a.ICUAdmissionID, &a.Unit, &a.BedNumber,
		&a.Reason, &a.Source, &a.Status, &a.AdmittedAt, &a.DischargedAt, &a.DischargeNotes)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *repoPG) Create(ctx context.Context, a *Admission) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO admissions (`+cols+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		a.ID, a.PatientID, a.SurgeryID, a.ICUAdmissionID, a.Unit, a.BedNumber, a.Reason,
		a.Source, a.Status, a.AdmittedAt, a.DischargedAt, a.DischargeNotes)
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Admission, error) {
	return r.scan(r.conn(ctx).QueryRow(ctx, `SELECT `+cols+` FROM admissions WHERE id = $1`, id))
}

// Update writes the mutable discharge fields. Discharged rows are never reopened.
func (r *repoPG) Update(ctx context.Context, a *Admission) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE admissions SET status=$2, discharged_at=$3, discharge_notes=$4
		WHERE id = $1 AND status = 'admitted'`,
		a.ID, a.Status, a.DischargedAt, a.DischargeNotes)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAlreadyDischarged
	}
	return nil
}

func (r *repoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM admissions WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (f ListFilter) whereClause() (string, []interface{}) {
	var conds []string
	var args []interface{}
	add := func(cond string, v interface{}) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if f.Unit != "" {
		add("unit = $%d", f.Unit)
	}
	if f.Status != "" {
		add("status = $%d", f.Status)
	}
	if f.PatientID != nil {
		add("patient_id = $%d", *f.PatientID)
	}
	if f.SurgeryID != nil {
		add("surgery_id = $%d", *f.SurgeryID)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func (r *repoPG) List(ctx context.Context, f ListFilter, limit, offset int) ([]*Admission, int, error) {
	where, args := f.whereClause()

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM admissions`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	q := fmt.Sprintf(`SELECT `+cols+` FROM admissions%s ORDER BY admitted_at DESC LIMIT $%d OFFSET $%d`,
		where, len(args)+1, len(args)+2)
	items, err := r.query(ctx, q, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (r *repoPG) ListOccupying(ctx context.Context) ([]*Admission, error) {
	return r.query(ctx, `SELECT `+cols+` FROM admissions
		WHERE status = 'admitted' AND bed_number IS NOT NULL ORDER BY admitted_at`)
}

func (r *repoPG) query(ctx context.Context, sql string, args ...interface{}) ([]*Admission, error) {
	rows, err := r.conn(ctx).Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Admission
	for rows.Next() {
		a, err := r.scan(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, a)
	}
	return items, rows.Err()
}

func (r *repoPG) ExistsForSurgery(ctx context.Context, surgeryID uuid.UUID) (bool, error) {
	var exists bool
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM admissions WHERE surgery_id = $1)`, surgeryID).Scan(&exists)
	return exists, err
}
