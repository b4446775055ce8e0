package emergency

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mediledger/nexus/internal/platform/db"
)

// =========== Profile Repository ===========

type profileRepoPG struct{ pool *pgxpool.Pool }

func NewProfileRepoPG(pool *pgxpool.Pool) ProfileRepository {
	return &profileRepoPG{pool: pool}
}

func (r *profileRepoPG) conn(ctx context.Context) db.Queryable {
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const profileCols = `id, patient, COALESCE(blood_type, ''), allergies, medications, conditions, COALESCE(emergency_contact, ''), COALESCE(insurance_ref, ''), is_active, created_at, last_updated`

func (r *profileRepoPG) Create(ctx context.Context, p *Profile) error {
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO emergency_profile (id, patient, blood_type, allergies, medications, conditions,
			emergency_contact, insurance_ref, is_active, created_at, last_updated)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		p.ID, p.Patient, p.BloodType, p.Allergies, p.Medications, p.Conditions,
		p.EmergencyContact, p.InsuranceRef, p.IsActive, p.CreatedAt, p.LastUpdated)
	return err
}

func (r *profileRepoPG) GetActiveByPatient(ctx context.Context, patient uuid.UUID) (*Profile, error) {
	var p Profile
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT `+profileCols+` FROM emergency_profile WHERE patient = $1 AND is_active`, patient).
		Scan(&p.ID, &p.Patient, &p.BloodType, &p.Allergies, &p.Medications, &p.Conditions,
			&p.EmergencyContact, &p.InsuranceRef, &p.IsActive, &p.CreatedAt, &p.LastUpdated)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *profileRepoPG) Update(ctx context.Context, p *Profile) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE emergency_profile
		SET blood_type = $2, allergies = $3, medications = $4, conditions = $5,
			emergency_contact = $6, insurance_ref = $7, last_updated = $8
		WHERE id = $1`,
		p.ID, p.BloodType, p.Allergies, p.Medications, p.Conditions,
		p.EmergencyContact, p.InsuranceRef, p.LastUpdated)
	return err
}

func (r *profileRepoPG) Deactivate(ctx context.Context, id uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `UPDATE emergency_profile SET is_active = FALSE WHERE id = $1`, id)
	return err
}

// =========== AccessRecord Repository ===========

type accessRecordRepoPG struct{ pool *pgxpool.Pool }

func NewAccessRecordRepoPG(pool *pgxpool.Pool) AccessRecordRepository {
	return &accessRecordRepoPG{pool: pool}
}

func (r *accessRecordRepoPG) conn(ctx context.Context) db.Queryable {
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

func (r *accessRecordRepoPG) Upsert(ctx context.Context, rec *AccessRecord) error {
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO emergency_access_record (patient, requester, emergency_type, location, urgency_level, requested_at, expires_at, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (patient, requester) DO UPDATE SET
			emergency_type = EXCLUDED.emergency_type,
			location = EXCLUDED.location,
			urgency_level = EXCLUDED.urgency_level,
			requested_at = EXCLUDED.requested_at,
			expires_at = EXCLUDED.expires_at,
			is_active = EXCLUDED.is_active`,
		rec.Patient, rec.Requester, rec.EmergencyType, rec.Location, rec.UrgencyLevel,
		rec.RequestedAt, rec.ExpiresAt, rec.IsActive)
	return err
}

func (r *accessRecordRepoPG) Get(ctx context.Context, patient, requester uuid.UUID) (*AccessRecord, error) {
	var rec AccessRecord
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT patient, requester, emergency_type, COALESCE(location, ''), urgency_level, requested_at, expires_at, is_active
		FROM emergency_access_record WHERE patient = $1 AND requester = $2`, patient, requester).
		Scan(&rec.Patient, &rec.Requester, &rec.EmergencyType, &rec.Location, &rec.UrgencyLevel,
			&rec.RequestedAt, &rec.ExpiresAt, &rec.IsActive)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *accessRecordRepoPG) Deactivate(ctx context.Context, patient, requester uuid.UUID) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE emergency_access_record SET is_active = FALSE
		WHERE patient = $1 AND requester = $2 AND is_active`, patient, requester)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// =========== Request Repository ===========

type requestRepoPG struct{ pool *pgxpool.Pool }

func NewRequestRepoPG(pool *pgxpool.Pool) RequestRepository {
	return &requestRepoPG{pool: pool}
}

func (r *requestRepoPG) conn(ctx context.Context) db.Queryable {
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const requestCols = `id, patient, requester, emergency_type, COALESCE(location, ''), urgency_level, requested_at, approved, expires_at`

func (r *requestRepoPG) Create(ctx context.Context, req *Request) error {
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO emergency_request (patient, requester, emergency_type, location, urgency_level, requested_at, approved)
		VALUES ($1, $2, $3, $4, $5, $6, FALSE)
		RETURNING id`,
		req.Patient, req.Requester, req.EmergencyType, req.Location, req.UrgencyLevel, req.RequestedAt).
		Scan(&req.ID)
}

func (r *requestRepoPG) GetByID(ctx context.Context, id int64) (*Request, error) {
	var req Request
	err := r.conn(ctx).QueryRow(ctx, `SELECT `+requestCols+` FROM emergency_request WHERE id = $1`, id).
		Scan(&req.ID, &req.Patient, &req.Requester, &req.EmergencyType, &req.Location,
			&req.UrgencyLevel, &req.RequestedAt, &req.Approved, &req.ExpiresAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &req, nil
}

func (r *requestRepoPG) MarkApproved(ctx context.Context, id int64, expiresAt time.Time) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE emergency_request SET approved = TRUE, expires_at = $2 WHERE id = $1`, id, expiresAt)
	return err
}

func (r *requestRepoPG) ListByPatient(ctx context.Context, patient uuid.UUID, limit, offset int) ([]*Request, int, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+requestCols+` FROM emergency_request
		WHERE patient = $1 ORDER BY requested_at DESC LIMIT $2 OFFSET $3`, patient, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []*Request
	for rows.Next() {
		var req Request
		if err := rows.Scan(&req.ID, &req.Patient, &req.Requester, &req.EmergencyType, &req.Location,
			&req.UrgencyLevel, &req.RequestedAt, &req.Approved, &req.ExpiresAt); err != nil {
			return nil, 0, err
		}
		out = append(out, &req)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM emergency_request WHERE patient = $1`, patient).Scan(&total); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}
