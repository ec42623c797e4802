package scheduling

import (
	"context"
	"errors"
	"time"

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

// =========== Availability Repository ===========

type availabilityRepoPG struct {
	pool *pgxpool.Pool
	tx   db.TxRunner
}

func NewAvailabilityRepoPG(pool *pgxpool.Pool) AvailabilityRepository {
	return &availabilityRepoPG{pool: pool, tx: db.NewTxRunner(pool)}
}

func (r *availabilityRepoPG) conn(ctx context.Context) queryable { return connFor(ctx, r.pool) }

const availabilityCols = `id, provider_id, day_of_week, start_time, end_time, is_available, created_at`

func (r *availabilityRepoPG) ListByProvider(ctx context.Context, providerID uuid.UUID) ([]Availability, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+availabilityCols+` FROM provider_availability
		WHERE provider_id = $1 ORDER BY day_of_week, start_time`, providerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Availability
	for rows.Next() {
		var a Availability
		var dow int
		if err := rows.Scan(&a.ID, &a.ProviderID, &dow, &a.StartTime, &a.EndTime, &a.IsAvailable, &a.CreatedAt); err != nil {
			return nil, err
		}
		a.DayOfWeek = time.Weekday(dow)
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *availabilityRepoPG) ReplaceForProvider(ctx context.Context, providerID uuid.UUID, rows []Availability) error {
	return r.tx.WithinTx(ctx, func(ctx context.Context) error {
		tx := db.TxFromContext(ctx)
		if _, err := tx.Exec(ctx, `DELETE FROM provider_availability WHERE provider_id = $1`, providerID); err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		batch := &pgx.Batch{}
		for _, a := range rows {
			batch.Queue(`INSERT INTO provider_availability (`+availabilityCols+`) VALUES ($1,$2,$3,$4,$5,$6,$7)`,
				a.ID, providerID, int(a.DayOfWeek), a.StartTime, a.EndTime, a.IsAvailable, a.CreatedAt)
		}
		return tx.SendBatch(ctx, batch).Close()
	})
}

// =========== Appointment Repository ===========

type appointmentRepoPG struct{ pool *pgxpool.Pool }

func NewAppointmentRepoPG(pool *pgxpool.Pool) AppointmentRepository {
	return &appointmentRepoPG{pool: pool}
}

func (r *appointmentRepoPG) conn(ctx context.Context) queryable { return connFor(ctx, r.pool) }

const appointmentCols = `id, provider_id, patient_id, start_at, duration_minutes, status, reason, cancel_reason, created_at`

func (r *appointmentRepoPG) scan(row pgx.Row) (*Appointment, error) {
	var a Appointment
	err := row.Scan(&a.ID, &a.ProviderID, &a.PatientID, &a.Start, &a.DurationMinutes,
		&a.Status, &a.Reason, &a.CancelReason, &a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *appointmentRepoPG) Create(ctx context.Context, a *Appointment) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO appointments (`+appointmentCols+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		a.ID, a.ProviderID, a.PatientID, a.Start, a.DurationMinutes, a.Status, a.Reason, a.CancelReason, a.CreatedAt)
	return err
}

func (r *appointmentRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return r.scan(r.conn(ctx).QueryRow(ctx, `SELECT `+appointmentCols+` FROM appointments WHERE id = $1`, id))
}

func (r *appointmentRepoPG) Update(ctx context.Context, a *Appointment) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE appointments SET status=$2, cancel_reason=$3 WHERE id = $1`,
		a.ID, a.Status, a.CancelReason)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *appointmentRepoPG) ListBooked(ctx context.Context, providerID uuid.UUID, from, to time.Time) ([]*Appointment, error) {
	return r.query(ctx, `SELECT `+appointmentCols+` FROM appointments
		WHERE provider_id = $1 AND status = 'booked' AND start_at >= $2 AND start_at < $3
		ORDER BY start_at`, providerID, from, to)
}

func (r *appointmentRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Appointment, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM appointments WHERE patient_id = $1`, patientID).Scan(&total); err != nil {
		return nil, 0, err
	}
	items, err := r.query(ctx, `SELECT `+appointmentCols+` FROM appointments
		WHERE patient_id = $1 ORDER BY start_at DESC LIMIT $2 OFFSET $3`, patientID, limit, offset)
	return items, total, err
}

func (r *appointmentRepoPG) query(ctx context.Context, sql string, args ...interface{}) ([]*Appointment, error) {
	rows, err := r.conn(ctx).Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Appointment
	for rows.Next() {
		a, err := r.scan(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, a)
	}
	return items, rows.Err()
}
