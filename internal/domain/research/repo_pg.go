package research

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mediledger/nexus/internal/platform/db"
)

// =========== Study Repository ===========

type studyRepoPG struct{ pool *pgxpool.Pool }

func NewStudyRepoPG(pool *pgxpool.Pool) StudyRepository {
	return &studyRepoPG{pool: pool}
}

func (r *studyRepoPG) conn(ctx context.Context) db.Queryable {
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const studyCols = `id, investigator, data_types, unit_compensation, capacity, participant_count, start_at, end_at, state, COALESCE(pause_reason, ''), created_at`

func scanStudy(row pgx.Row) (*Study, error) {
	var s Study
	err := row.Scan(&s.ID, &s.Investigator, &s.DataTypes, &s.UnitCompensation, &s.Capacity,
		&s.ParticipantCount, &s.StartAt, &s.EndAt, &s.State, &s.PauseReason, &s.CreatedAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *studyRepoPG) Create(ctx context.Context, s *Study) error {
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO research_study (id, investigator, data_types, unit_compensation, capacity,
			participant_count, start_at, end_at, state, created_at)
		VALUES ($1, $2, $3, $4, $5, 0, $6, $7, $8, $9)`,
		s.ID, s.Investigator, s.DataTypes, s.UnitCompensation, s.Capacity,
		s.StartAt, s.EndAt, s.State, s.CreatedAt)
	return err
}

func (r *studyRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Study, error) {
	return scanStudy(r.conn(ctx).QueryRow(ctx, `SELECT `+studyCols+` FROM research_study WHERE id = $1`, id))
}

func (r *studyRepoPG) Update(ctx context.Context, s *Study) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE research_study SET state = $2, pause_reason = NULLIF($3, '') WHERE id = $1`,
		s.ID, s.State, s.PauseReason)
	return err
}

func (r *studyRepoPG) ReserveSeat(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE research_study SET participant_count = participant_count + 1
		WHERE id = $1 AND participant_count < capacity`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *studyRepoPG) ReleaseSeat(ctx context.Context, id uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE research_study SET participant_count = participant_count - 1 WHERE id = $1`, id)
	return err
}

func (r *studyRepoPG) List(ctx context.Context, limit, offset int) ([]*Study, int, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+studyCols+` FROM research_study ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []*Study
	for rows.Next() {
		var s Study
		if err := rows.Scan(&s.ID, &s.Investigator, &s.DataTypes, &s.UnitCompensation, &s.Capacity,
			&s.ParticipantCount, &s.StartAt, &s.EndAt, &s.State, &s.PauseReason, &s.CreatedAt); err != nil {
			return nil, 0, err
		}
		out = append(out, &s)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM research_study`).Scan(&total); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// =========== Participant Repository ===========

type participantRepoPG struct{ pool *pgxpool.Pool }

func NewParticipantRepoPG(pool *pgxpool.Pool) ParticipantRepository {
	return &participantRepoPG{pool: pool}
}

func (r *participantRepoPG) conn(ctx context.Context) db.Queryable {
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const participantCols = `study_id, identity, joined_at, data_type_consents, contribution_count, compensation_earned, is_active`

func (r *participantRepoPG) Upsert(ctx context.Context, p *Participant) error {
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO study_participant (study_id, identity, joined_at, data_type_consents, contribution_count, compensation_earned, is_active)
		VALUES ($1, $2, $3, $4, 0, 0, $5)
		ON CONFLICT (study_id, identity) DO UPDATE SET
			joined_at = EXCLUDED.joined_at,
			data_type_consents = EXCLUDED.data_type_consents,
			is_active = EXCLUDED.is_active`,
		p.StudyID, p.Identity, p.JoinedAt, p.DataTypeConsents, p.IsActive)
	return err
}

func (r *participantRepoPG) Get(ctx context.Context, studyID, identity uuid.UUID) (*Participant, error) {
	var p Participant
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT `+participantCols+` FROM study_participant WHERE study_id = $1 AND identity = $2`,
		studyID, identity).
		Scan(&p.StudyID, &p.Identity, &p.JoinedAt, &p.DataTypeConsents, &p.ContributionCount, &p.CompensationEarned, &p.IsActive)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *participantRepoPG) Deactivate(ctx context.Context, studyID, identity uuid.UUID) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE study_participant SET is_active = FALSE
		WHERE study_id = $1 AND identity = $2 AND is_active`, studyID, identity)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *participantRepoPG) IncrementContributions(ctx context.Context, studyID, identity uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE study_participant SET contribution_count = contribution_count + 1
		WHERE study_id = $1 AND identity = $2`, studyID, identity)
	return err
}

func (r *participantRepoPG) AddCompensation(ctx context.Context, studyID, identity uuid.UUID, amount int64) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE study_participant SET compensation_earned = compensation_earned + $3
		WHERE study_id = $1 AND identity = $2`, studyID, identity, amount)
	return err
}

func (r *participantRepoPG) ListByStudy(ctx context.Context, studyID uuid.UUID) ([]*Participant, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+participantCols+` FROM study_participant WHERE study_id = $1 ORDER BY joined_at`, studyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Participant
	for rows.Next() {
		var p Participant
		if err := rows.Scan(&p.StudyID, &p.Identity, &p.JoinedAt, &p.DataTypeConsents, &p.ContributionCount, &p.CompensationEarned, &p.IsActive); err != nil {
			return nil, err
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}

// =========== Contribution Repository ===========

type contributionRepoPG struct{ pool *pgxpool.Pool }

func NewContributionRepoPG(pool *pgxpool.Pool) ContributionRepository {
	return &contributionRepoPG{pool: pool}
}

func (r *contributionRepoPG) conn(ctx context.Context) db.Queryable {
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const contributionCols = `id, study_id, participant, data_type, content_ref, value, contributed_at, validated`

func (r *contributionRepoPG) Create(ctx context.Context, c *Contribution) error {
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO data_contribution (id, study_id, participant, data_type, content_ref, value, contributed_at, validated)
		VALUES ($1, $2, $3, $4, $5, $6, $7, FALSE)`,
		c.ID, c.StudyID, c.Participant, c.DataType, c.ContentRef, c.Value, c.ContributedAt)
	return err
}

func (r *contributionRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Contribution, error) {
	var c Contribution
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT `+contributionCols+` FROM data_contribution WHERE id = $1`, id).
		Scan(&c.ID, &c.StudyID, &c.Participant, &c.DataType, &c.ContentRef, &c.Value, &c.ContributedAt, &c.Validated)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *contributionRepoPG) MarkValidated(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE data_contribution SET validated = TRUE WHERE id = $1 AND NOT validated`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *contributionRepoPG) ListByStudy(ctx context.Context, studyID uuid.UUID, limit, offset int) ([]*Contribution, int, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+contributionCols+` FROM data_contribution
		WHERE study_id = $1 ORDER BY contributed_at DESC LIMIT $2 OFFSET $3`, studyID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []*Contribution
	for rows.Next() {
		var c Contribution
		if err := rows.Scan(&c.ID, &c.StudyID, &c.Participant, &c.DataType, &c.ContentRef, &c.Value, &c.ContributedAt, &c.Validated); err != nil {
			return nil, 0, err
		}
		out = append(out, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM data_contribution WHERE study_id = $1`, studyID).Scan(&total); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}
