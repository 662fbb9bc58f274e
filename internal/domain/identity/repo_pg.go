package identity

import (
	"context"
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

func softDelete(ctx context.Context, q db.Querier, table string, id uuid.UUID) error {
	tag, err := q.Exec(ctx,
		`UPDATE `+table+` SET lifecycle = $2, updated_at = NOW() WHERE id = $1 AND lifecycle = 'active'`,
		id, lifecycle.Deleted)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// -- Patient --

type patientRepoPG struct{ pool *pgxpool.Pool }

func NewPatientRepoPG(pool *pgxpool.Pool) PatientRepository { return &patientRepoPG{pool: pool} }

func (r *patientRepoPG) conn(ctx context.Context) db.Querier { return querier(ctx, r.pool) }

const patientCols = `id, account_id, full_name, date_of_birth, gender, phone, email, address,
	medical_history, lifecycle, created_at, updated_at`

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(&p.ID, &p.AccountID, &p.FullName, &p.DateOfBirth, &p.Gender, &p.Phone, &p.Email,
		&p.Address, &p.MedicalHistory, &p.Lifecycle, &p.CreatedAt, &p.UpdatedAt)
	return &p, err
}

func (r *patientRepoPG) Create(ctx context.Context, p *Patient) error {
	p.ID = uuid.New()
	p.Lifecycle = lifecycle.Active
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO patients (id, account_id, full_name, date_of_birth, gender, phone, email, address, medical_history, lifecycle)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at, updated_at`,
		p.ID, p.AccountID, p.FullName, p.DateOfBirth, p.Gender, p.Phone, p.Email, p.Address,
		p.MedicalHistory, p.Lifecycle).Scan(&p.CreatedAt, &p.UpdatedAt)
}

func (r *patientRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return scanPatient(r.conn(ctx).QueryRow(ctx,
		`SELECT `+patientCols+` FROM patients WHERE id = $1 AND lifecycle = 'active'`, id))
}

func (r *patientRepoPG) GetByAccountID(ctx context.Context, accountID uuid.UUID) (*Patient, error) {
	return scanPatient(r.conn(ctx).QueryRow(ctx,
		`SELECT `+patientCols+` FROM patients WHERE account_id = $1 AND lifecycle = 'active'`, accountID))
}

func (r *patientRepoPG) Update(ctx context.Context, p *Patient) error {
	return r.conn(ctx).QueryRow(ctx, `
		UPDATE patients SET full_name = $2, date_of_birth = $3, gender = $4, phone = $5, email = $6,
			address = $7, medical_history = $8, updated_at = NOW()
		WHERE id = $1 AND lifecycle = 'active'
		RETURNING updated_at`,
		p.ID, p.FullName, p.DateOfBirth, p.Gender, p.Phone, p.Email, p.Address, p.MedicalHistory).Scan(&p.UpdatedAt)
}

func (r *patientRepoPG) SoftDelete(ctx context.Context, id uuid.UUID) error {
	return softDelete(ctx, r.conn(ctx), "patients", id)
}

func (r *patientRepoPG) Search(ctx context.Context, params map[string]string, limit, offset int) ([]*Patient, int, error) {
	where := ` WHERE lifecycle = 'active'`
	var args []interface{}
	idx := 1

	if p, ok := params["name"]; ok {
		where += fmt.Sprintf(` AND full_name ILIKE $%d`, idx)
		args = append(args, "%"+p+"%")
		idx++
	}
	if p, ok := params["phone"]; ok {
		where += fmt.Sprintf(` AND phone LIKE $%d`, idx)
		args = append(args, "%"+p+"%")
		idx++
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM patients`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + patientCols + ` FROM patients` + where +
		fmt.Sprintf(` ORDER BY full_name LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, limit, offset)

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Patient
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, p)
	}
	return items, total, rows.Err()
}

// -- Doctor --

type doctorRepoPG struct{ pool *pgxpool.Pool }

func NewDoctorRepoPG(pool *pgxpool.Pool) DoctorRepository { return &doctorRepoPG{pool: pool} }

func (r *doctorRepoPG) conn(ctx context.Context) db.Querier { return querier(ctx, r.pool) }

const doctorSelect = `SELECT d.id, d.account_id, d.full_name, d.specialty_id, COALESCE(s.name, ''),
	d.phone, d.email, d.lifecycle, d.created_at, d.updated_at
	FROM doctors d LEFT JOIN specialties s ON s.id = d.specialty_id`

func scanDoctor(row pgx.Row) (*Doctor, error) {
	var d Doctor
	err := row.Scan(&d.ID, &d.AccountID, &d.FullName, &d.SpecialtyID, &d.SpecialtyName,
		&d.Phone, &d.Email, &d.Lifecycle, &d.CreatedAt, &d.UpdatedAt)
	return &d, err
}

func (r *doctorRepoPG) Create(ctx context.Context, d *Doctor) error {
	d.ID = uuid.New()
	d.Lifecycle = lifecycle.Active
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO doctors (id, account_id, full_name, specialty_id, phone, email, lifecycle)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at`,
		d.ID, d.AccountID, d.FullName, d.SpecialtyID, d.Phone, d.Email, d.Lifecycle).Scan(&d.CreatedAt, &d.UpdatedAt)
}

func (r *doctorRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	return scanDoctor(r.conn(ctx).QueryRow(ctx, doctorSelect+` WHERE d.id = $1 AND d.lifecycle = 'active'`, id))
}

func (r *doctorRepoPG) Update(ctx context.Context, d *Doctor) error {
	return r.conn(ctx).QueryRow(ctx, `
		UPDATE doctors SET full_name = $2, specialty_id = $3, phone = $4, email = $5, updated_at = NOW()
		WHERE id = $1 AND lifecycle = 'active'
		RETURNING updated_at`,
		d.ID, d.FullName, d.SpecialtyID, d.Phone, d.Email).Scan(&d.UpdatedAt)
}

func (r *doctorRepoPG) SoftDelete(ctx context.Context, id uuid.UUID) error {
	return softDelete(ctx, r.conn(ctx), "doctors", id)
}

func (r *doctorRepoPG) Search(ctx context.Context, params map[string]string, limit, offset int) ([]*Doctor, int, error) {
	where := ` WHERE d.lifecycle = 'active'`
	var args []interface{}
	idx := 1

	if p, ok := params["specialty_id"]; ok {
		where += fmt.Sprintf(` AND d.specialty_id = $%d`, idx)
		args = append(args, p)
		idx++
	}
	if p, ok := params["name"]; ok {
		where += fmt.Sprintf(` AND d.full_name ILIKE $%d`, idx)
		args = append(args, "%"+p+"%")
		idx++
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM doctors d`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := doctorSelect + where + fmt.Sprintf(` ORDER BY d.full_name LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, limit, offset)

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Doctor
	for rows.Next() {
		d, err := scanDoctor(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, d)
	}
	return items, total, rows.Err()
}

// -- Specialty --

type specialtyRepoPG struct{ pool *pgxpool.Pool }

func NewSpecialtyRepoPG(pool *pgxpool.Pool) SpecialtyRepository { return &specialtyRepoPG{pool: pool} }

func (r *specialtyRepoPG) conn(ctx context.Context) db.Querier { return querier(ctx, r.pool) }

const specialtyCols = `id, name, description, lifecycle, created_at, updated_at`

func scanSpecialty(row pgx.Row) (*Specialty, error) {
	var s Specialty
	err := row.Scan(&s.ID, &s.Name, &s.Description, &s.Lifecycle, &s.CreatedAt, &s.UpdatedAt)
	return &s, err
}

func (r *specialtyRepoPG) Create(ctx context.Context, s *Specialty) error {
	s.ID = uuid.New()
	s.Lifecycle = lifecycle.Active
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO specialties (id, name, description, lifecycle)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at, updated_at`,
		s.ID, s.Name, s.Description, s.Lifecycle).Scan(&s.CreatedAt, &s.UpdatedAt)
}

func (r *specialtyRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Specialty, error) {
	return scanSpecialty(r.conn(ctx).QueryRow(ctx,
		`SELECT `+specialtyCols+` FROM specialties WHERE id = $1 AND lifecycle = 'active'`, id))
}

func (r *specialtyRepoPG) GetByName(ctx context.Context, name string) (*Specialty, error) {
	return scanSpecialty(r.conn(ctx).QueryRow(ctx,
		`SELECT `+specialtyCols+` FROM specialties WHERE LOWER(name) = LOWER($1) AND lifecycle = 'active'`, name))
}

func (r *specialtyRepoPG) Update(ctx context.Context, s *Specialty) error {
	return r.conn(ctx).QueryRow(ctx, `
		UPDATE specialties SET name = $2, description = $3, updated_at = NOW()
		WHERE id = $1 AND lifecycle = 'active'
		RETURNING updated_at`,
		s.ID, s.Name, s.Description).Scan(&s.UpdatedAt)
}

func (r *specialtyRepoPG) SoftDelete(ctx context.Context, id uuid.UUID) error {
	return softDelete(ctx, r.conn(ctx), "specialties", id)
}

func (r *specialtyRepoPG) List(ctx context.Context) ([]*Specialty, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+specialtyCols+` FROM specialties WHERE lifecycle = 'active' ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Specialty
	for rows.Next() {
		s, err := scanSpecialty(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, s)
	}
	return items, rows.Err()
}
