package consent

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mediledger/nexus/internal/platform/db"
)

// =========== Agreement Repository ===========

type agreementRepoPG struct{ pool *pgxpool.Pool }

func NewAgreementRepoPG(pool *pgxpool.Pool) AgreementRepository {
	return &agreementRepoPG{pool: pool}
}

func (r *agreementRepoPG) conn(ctx context.Context) db.Queryable {
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const agreementCols = `id, patient, provider, data_types, duration_hours, rate_unit, purpose, privacy_level, auto_renewal, state, COALESCE(revocation_reason, ''), created_at, activated_at, expires_at`

func scanAgreement(row pgx.Row) (*Agreement, error) {
	var a Agreement
	err := row.Scan(&a.ID, &a.Patient, &a.Provider, &a.DataTypes, &a.DurationHours, &a.RateUnit,
		&a.Purpose, &a.PrivacyLevel, &a.AutoRenewal, &a.State, &a.RevocationReason,
		&a.CreatedAt, &a.ActivatedAt, &a.ExpiresAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *agreementRepoPG) Create(ctx context.Context, a *Agreement) error {
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO consent_agreement (id, patient, provider, data_types, duration_hours, rate_unit,
			purpose, privacy_level, auto_renewal, state, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		a.ID, a.Patient, a.Provider, a.DataTypes, a.DurationHours, a.RateUnit,
		a.Purpose, a.PrivacyLevel, a.AutoRenewal, a.State, a.CreatedAt)
	return err
}

func (r *agreementRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Agreement, error) {
	return scanAgreement(r.conn(ctx).QueryRow(ctx, `SELECT `+agreementCols+` FROM consent_agreement WHERE id = $1`, id))
}

func (r *agreementRepoPG) Update(ctx context.Context, a *Agreement) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE consent_agreement
		SET state = $2, revocation_reason = NULLIF($3, ''), activated_at = $4, expires_at = $5
		WHERE id = $1`,
		a.ID, a.State, a.RevocationReason, a.ActivatedAt, a.ExpiresAt)
	return err
}

func (r *agreementRepoPG) ListByPatient(ctx context.Context, patient uuid.UUID, limit, offset int) ([]*Agreement, int, error) {
	return r.list(ctx, `patient`, patient, limit, offset)
}

func (r *agreementRepoPG) ListByProvider(ctx context.Context, provider uuid.UUID, limit, offset int) ([]*Agreement, int, error) {
	return r.list(ctx, `provider`, provider, limit, offset)
}

func (r *agreementRepoPG) list(ctx context.Context, col string, who uuid.UUID, limit, offset int) ([]*Agreement, int, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+agreementCols+` FROM consent_agreement
		WHERE `+col+` = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`, who, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []*Agreement
	for rows.Next() {
		var a Agreement
		if err := rows.Scan(&a.ID, &a.Patient, &a.Provider, &a.DataTypes, &a.DurationHours, &a.RateUnit,
			&a.Purpose, &a.PrivacyLevel, &a.AutoRenewal, &a.State, &a.RevocationReason,
			&a.CreatedAt, &a.ActivatedAt, &a.ExpiresAt); err != nil {
			return nil, 0, err
		}
		out = append(out, &a)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM consent_agreement WHERE `+col+` = $1`, who).Scan(&total); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// =========== SubGrant Repository ===========

type subGrantRepoPG struct{ pool *pgxpool.Pool }

func NewSubGrantRepoPG(pool *pgxpool.Pool) SubGrantRepository {
	return &subGrantRepoPG{pool: pool}
}

func (r *subGrantRepoPG) conn(ctx context.Context) db.Queryable {
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

func (r *subGrantRepoPG) Upsert(ctx context.Context, g *SubGrant) error {
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO data_access_grant (consent_id, requester, data_type, granted_at, is_active, compensation_paid)
		VALUES ($1, $2, $3, $4, $5, 0)
		ON CONFLICT (consent_id, requester, data_type) DO UPDATE SET
			granted_at = EXCLUDED.granted_at,
			is_active = EXCLUDED.is_active`,
		g.ConsentID, g.Requester, g.DataType, g.GrantedAt, g.IsActive)
	return err
}

func (r *subGrantRepoPG) Get(ctx context.Context, consentID, requester uuid.UUID, dataType string) (*SubGrant, error) {
	var g SubGrant
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT consent_id, requester, data_type, granted_at, is_active, compensation_paid
		FROM data_access_grant WHERE consent_id = $1 AND requester = $2 AND data_type = $3`,
		consentID, requester, dataType).
		Scan(&g.ConsentID, &g.Requester, &g.DataType, &g.GrantedAt, &g.IsActive, &g.CompensationPaid)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &g, nil
}

func (r *subGrantRepoPG) Deactivate(ctx context.Context, consentID, requester uuid.UUID, dataType string) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE data_access_grant SET is_active = FALSE
		WHERE consent_id = $1 AND requester = $2 AND data_type = $3 AND is_active`,
		consentID, requester, dataType)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *subGrantRepoPG) AddCompensation(ctx context.Context, consentID, requester uuid.UUID, dataType string, amount int64) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE data_access_grant SET compensation_paid = compensation_paid + $4
		WHERE consent_id = $1 AND requester = $2 AND data_type = $3`,
		consentID, requester, dataType, amount)
	return err
}

func (r *subGrantRepoPG) ListByConsent(ctx context.Context, consentID uuid.UUID) ([]*SubGrant, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT consent_id, requester, data_type, granted_at, is_active, compensation_paid
		FROM data_access_grant WHERE consent_id = $1 ORDER BY granted_at`, consentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*SubGrant
	for rows.Next() {
		var g SubGrant
		if err := rows.Scan(&g.ConsentID, &g.Requester, &g.DataType, &g.GrantedAt, &g.IsActive, &g.CompensationPaid); err != nil {
			return nil, err
		}
		out = append(out, &g)
	}
	return out, rows.Err()
}
