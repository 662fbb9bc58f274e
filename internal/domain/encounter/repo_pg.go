package encounter

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinic/clinic/internal/platform/db"
	"github.com/clinic/clinic/internal/platform/lifecycle"
)

func querier(ctx context.Context, pool *pgxpool.Pool) db.Querier {
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return pool
}

// -- Encounter --

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

const encounterSelect = `SELECT e.id, e.appointment_id, e.doctor_id, COALESCE(d.full_name, ''),
	e.patient_id, COALESCE(p.full_name, ''), e.notes, e.diagnosis, e.service_fee, e.encounter_date, e.lifecycle
	FROM encounters e
	LEFT JOIN doctors d ON d.id = e.doctor_id
	LEFT JOIN patients p ON p.id = e.patient_id`

func scanEncounter(row pgx.Row) (*Encounter, error) {
	var e Encounter
	err := row.Scan(&e.ID, &e.AppointmentID, &e.DoctorID, &e.DoctorName,
		&e.PatientID, &e.PatientName, &e.Notes, &e.Diagnosis, &e.ServiceFee, &e.EncounterDate, &e.Lifecycle)
	return &e, err
}

func (r *repoPG) Create(ctx context.Context, e *Encounter) error {
	e.ID = uuid.New()
	e.Lifecycle = lifecycle.Active
	return querier(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO encounters (id, appointment_id, doctor_id, patient_id, notes, diagnosis, service_fee, lifecycle)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING encounter_date`,
		e.ID, e.AppointmentID, e.DoctorID, e.PatientID, e.Notes, e.Diagnosis, e.ServiceFee, e.Lifecycle,
	).Scan(&e.EncounterDate)
}

func (r *repoPG) AddItem(ctx context.Context, item *PrescriptionItem) error {
	item.ID = uuid.New()
	_, err := querier(ctx, r.pool).Exec(ctx, `
		INSERT INTO prescription_items (id, encounter_id, drug_id, quantity, unit_price, usage)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		item.ID, item.EncounterID, item.DrugID, item.Quantity, item.UnitPrice, item.Usage)
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Encounter, error) {
	return scanEncounter(querier(ctx, r.pool).QueryRow(ctx,
		encounterSelect+` WHERE e.id = $1 AND e.lifecycle = 'active'`, id))
}

func (r *repoPG) ListItems(ctx context.Context, encounterID uuid.UUID) ([]*PrescriptionItem, error) {
	rows, err := querier(ctx, r.pool).Query(ctx, `
		SELECT pi.id, pi.encounter_id, pi.drug_id, COALESCE(d.name, ''), pi.quantity, pi.unit_price, pi.usage
		FROM prescription_items pi
		LEFT JOIN drugs d ON d.id = pi.drug_id
		WHERE pi.encounter_id = $1
		ORDER BY d.name`, encounterID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*PrescriptionItem
	for rows.Next() {
		var it PrescriptionItem
		if err := rows.Scan(&it.ID, &it.EncounterID, &it.DrugID, &it.DrugName, &it.Quantity, &it.UnitPrice, &it.Usage); err != nil {
			return nil, err
		}
		items = append(items, &it)
	}
	return items, rows.Err()
}

func (r *repoPG) SoftDelete(ctx context.Context, id uuid.UUID) error {
	tag, err := querier(ctx, r.pool).Exec(ctx,
		`UPDATE encounters SET lifecycle = $2 WHERE id = $1 AND lifecycle = 'active'`, id, lifecycle.Deleted)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *repoPG) Search(ctx context.Context, params map[string]string, limit, offset int) ([]*Encounter, int, error) {
	where := ` WHERE e.lifecycle = 'active'`
	var args []interface{}
	idx := 1

	if p, ok := params["doctor_id"]; ok {
		where += fmt.Sprintf(` AND e.doctor_id = $%d`, idx)
		args = append(args, p)
		idx++
	}
	if p, ok := params["patient_id"]; ok {
		where += fmt.Sprintf(` AND e.patient_id = $%d`, idx)
		args = append(args, p)
		idx++
	}

	q := querier(ctx, r.pool)
	var total int
	if err := q.QueryRow(ctx, `SELECT COUNT(*) FROM encounters e`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := encounterSelect + where + fmt.Sprintf(` ORDER BY e.encounter_date DESC LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, limit, offset)

	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Encounter
	for rows.Next() {
		e, err := scanEncounter(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, e)
	}
	return items, total, rows.Err()
}

// -- Clinic --

type clinicPG struct{ pool *pgxpool.Pool }

func NewClinicPG(pool *pgxpool.Pool) Clinic { return &clinicPG{pool: pool} }

func (r *clinicPG) DoctorIDForAccount(ctx context.Context, accountID uuid.UUID) (*uuid.UUID, error) {
	var id uuid.UUID
	err := querier(ctx, r.pool).QueryRow(ctx,
		`SELECT id FROM doctors WHERE account_id = $1 AND lifecycle = 'active'`, accountID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &id, nil
}

func (r *clinicPG) LockAppointment(ctx context.Context, id uuid.UUID) (*AppointmentRef, error) {
	var a AppointmentRef
	err := querier(ctx, r.pool).QueryRow(ctx, `
		SELECT id, patient_id, doctor_id, status FROM appointments
		WHERE id = $1 AND lifecycle = 'active'
		FOR UPDATE`, id).Scan(&a.ID, &a.PatientID, &a.DoctorID, &a.Status)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *clinicPG) CompleteAppointment(ctx context.Context, id uuid.UUID) error {
	tag, err := querier(ctx, r.pool).Exec(ctx, `
		UPDATE appointments SET status = 'completed', updated_at = NOW()
		WHERE id = $1 AND status = 'scheduled'`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *clinicPG) Drug(ctx context.Context, id uuid.UUID) (*DrugRef, error) {
	var d DrugRef
	err := querier(ctx, r.pool).QueryRow(ctx,
		`SELECT id, name, price FROM drugs WHERE id = $1 AND lifecycle = 'active'`, id).Scan(&d.ID, &d.Name, &d.Price)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *clinicPG) Dispense(ctx context.Context, drugID uuid.UUID, quantity int) (bool, error) {
	tag, err := querier(ctx, r.pool).Exec(ctx, `
		UPDATE drug_stock SET quantity_available = quantity_available - $2, last_updated = NOW()
		WHERE drug_id = $1 AND quantity_available >= $2`, drugID, quantity)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}
