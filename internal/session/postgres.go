package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MarcinMove37ai/vodmatch-sub001/internal/models"
)

// PostgresStore implements Store on top of a pgx connection pool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a Postgres-backed session store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const sessionColumns = `code, admin_user_id, status, platforms, mode, admin_profile,
	group_analysis, movie_batches, final_verdict, expires_at, created_at, updated_at`

func (s *PostgresStore) CreateSession(ctx context.Context, sess *models.Session) (*models.Session, error) {
	platforms, err := marshalNullable(sess.Platforms)
	if err != nil {
		return nil, fmt.Errorf("marshal platforms: %w", err)
	}
	adminProfile, err := marshalNullable(sess.AdminProfile)
	if err != nil {
		return nil, fmt.Errorf("marshal admin profile: %w", err)
	}

	status := sess.Status
	if status == "" {
		status = models.StatusRecruiting
	}

	tag, err := s.pool.Exec(ctx, `
		INSERT INTO sessions (code, admin_user_id, status, platforms, mode, admin_profile, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (code) DO NOTHING`,
		sess.Code, sess.AdminUserID, string(status), platforms, string(sess.Mode), adminProfile, sess.ExpiresAt)
	if err != nil {
		return nil, fmt.Errorf("insert session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrSessionExists
	}
	return s.GetSession(ctx, sess.Code)
}

func (s *PostgresStore) GetSession(ctx context.Context, code string) (*models.Session, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE code = $1`, code)
	sess, err := scanSession(row)
	if err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx, `
		SELECT session_code, user_id, is_admin, username, display_name, avatar_url,
		       letterboxd_url, quiz_answers, joined_at
		FROM profiles WHERE session_code = $1 ORDER BY joined_at, user_id`, code)
	if err != nil {
		return nil, fmt.Errorf("query profiles: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			p       models.Profile
			answers []byte
		)
		if err := rows.Scan(&p.SessionCode, &p.UserID, &p.IsAdmin, &p.Username, &p.DisplayName,
			&p.AvatarURL, &p.LetterboxdURL, &answers, &p.JoinedAt); err != nil {
			return nil, fmt.Errorf("scan profile: %w", err)
		}
		if len(answers) > 0 {
			var set models.QuizAnswerSet
			if err := json.Unmarshal(answers, &set); err != nil {
				return nil, fmt.Errorf("unmarshal quiz answers: %w", err)
			}
			p.QuizAnswers = &set
		}
		sess.Profiles = append(sess.Profiles, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate profiles: %w", err)
	}
	return sess, nil
}

func (s *PostgresStore) UpdateSession(ctx context.Context, code string, patch SessionPatch) (*models.Session, error) {
	set := "updated_at = now()"
	args := []any{code}
	add := func(column string, value any) {
		args = append(args, value)
		set += fmt.Sprintf(", %s = $%d", column, len(args))
	}

	if patch.Platforms != nil {
		data, err := json.Marshal(*patch.Platforms)
		if err != nil {
			return nil, fmt.Errorf("marshal platforms: %w", err)
		}
		add("platforms", data)
	}
	if patch.Mode != nil {
		add("mode", string(*patch.Mode))
	}
	if patch.AdminProfile != nil {
		data, err := json.Marshal(patch.AdminProfile)
		if err != nil {
			return nil, fmt.Errorf("marshal admin profile: %w", err)
		}
		add("admin_profile", data)
	}
	if patch.GroupAnalysis != nil {
		data, err := json.Marshal(patch.GroupAnalysis)
		if err != nil {
			return nil, fmt.Errorf("marshal group analysis: %w", err)
		}
		add("group_analysis", data)
	}
	if patch.MovieBatches != nil {
		data, err := json.Marshal(*patch.MovieBatches)
		if err != nil {
			return nil, fmt.Errorf("marshal movie batches: %w", err)
		}
		add("movie_batches", data)
	}
	if patch.FinalVerdict != nil {
		add("final_verdict", *patch.FinalVerdict)
	}
	if patch.ExpiresAt != nil {
		add("expires_at", *patch.ExpiresAt)
	}

	tag, err := s.pool.Exec(ctx, `UPDATE sessions SET `+set+` WHERE code = $1`, args...)
	if err != nil {
		return nil, fmt.Errorf("update session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrSessionNotFound
	}
	return s.GetSession(ctx, code)
}

// AdvanceStatus moves the status forward under a row lock so that two
// concurrent advance requests stay idempotent: the second sees the already
// advanced row and no-ops.
func (s *PostgresStore) AdvanceStatus(ctx context.Context, code string, status models.SessionStatus) (*models.Session, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	var current string
	err = tx.QueryRow(ctx, `SELECT status FROM sessions WHERE code = $1 FOR UPDATE`, code).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lock session: %w", err)
	}

	if status.Rank() > models.SessionStatus(current).Rank() {
		if _, err := tx.Exec(ctx, `UPDATE sessions SET status = $2, updated_at = now() WHERE code = $1`,
			code, string(status)); err != nil {
			return nil, fmt.Errorf("advance status: %w", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return s.GetSession(ctx, code)
}

func (s *PostgresStore) AddOrUpdateProfile(ctx context.Context, code, userID string, isAdmin bool, fields ProfileFields) (*models.Session, error) {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO profiles (session_code, user_id, is_admin, username, display_name, avatar_url, letterboxd_url)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (session_code, user_id) DO UPDATE SET
			username       = CASE WHEN EXCLUDED.username       <> '' THEN EXCLUDED.username       ELSE profiles.username       END,
			display_name   = CASE WHEN EXCLUDED.display_name   <> '' THEN EXCLUDED.display_name   ELSE profiles.display_name   END,
			avatar_url     = CASE WHEN EXCLUDED.avatar_url     <> '' THEN EXCLUDED.avatar_url     ELSE profiles.avatar_url     END,
			letterboxd_url = CASE WHEN EXCLUDED.letterboxd_url <> '' THEN EXCLUDED.letterboxd_url ELSE profiles.letterboxd_url END`,
		code, userID, isAdmin, fields.Username, fields.DisplayName, fields.AvatarURL, fields.LetterboxdURL)
	if err != nil {
		return nil, fmt.Errorf("upsert profile: %w", err)
	}

	if _, err := s.pool.Exec(ctx, `UPDATE sessions SET updated_at = now() WHERE code = $1`, code); err != nil {
		return nil, fmt.Errorf("touch session: %w", err)
	}
	return s.GetSession(ctx, code)
}

// RecordQuizAnswers is write-once: the guarded UPDATE only matches a row
// whose quiz_answers column is still NULL.
func (s *PostgresStore) RecordQuizAnswers(ctx context.Context, code, userID string, answers models.QuizAnswerSet) (*models.Session, error) {
	if answers.CompletedAt.IsZero() {
		answers.CompletedAt = time.Now().UTC()
	}
	data, err := json.Marshal(answers)
	if err != nil {
		return nil, fmt.Errorf("marshal quiz answers: %w", err)
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE profiles SET quiz_answers = $3
		WHERE session_code = $1 AND user_id = $2 AND quiz_answers IS NULL`,
		code, userID, data)
	if err != nil {
		return nil, fmt.Errorf("record quiz answers: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := s.pool.QueryRow(ctx, `
			SELECT EXISTS(SELECT 1 FROM profiles WHERE session_code = $1 AND user_id = $2)`,
			code, userID).Scan(&exists); err != nil {
			return nil, fmt.Errorf("check profile: %w", err)
		}
		if !exists {
			return nil, ErrProfileNotFound
		}
		return nil, ErrQuizAlreadyRecorded
	}

	if _, err := s.pool.Exec(ctx, `UPDATE sessions SET updated_at = now() WHERE code = $1`, code); err != nil {
		return nil, fmt.Errorf("touch session: %w", err)
	}
	return s.GetSession(ctx, code)
}

func (s *PostgresStore) DeleteSession(ctx context.Context, code string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM sessions WHERE code = $1`, code)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSessionNotFound
	}
	return nil
}

func (s *PostgresStore) ListExpiredCodes(ctx context.Context, now time.Time) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT code FROM sessions WHERE expires_at <= $1 ORDER BY code`, now)
	if err != nil {
		return nil, fmt.Errorf("query expired sessions: %w", err)
	}
	defer rows.Close()

	var codes []string
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, fmt.Errorf("scan code: %w", err)
		}
		codes = append(codes, code)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate codes: %w", err)
	}
	return codes, nil
}

func scanSession(row pgx.Row) (*models.Session, error) {
	var (
		sess          models.Session
		status, mode  string
		platforms     []byte
		adminProfile  []byte
		groupAnalysis []byte
		movieBatches  []byte
	)
	err := row.Scan(&sess.Code, &sess.AdminUserID, &status, &platforms, &mode, &adminProfile,
		&groupAnalysis, &movieBatches, &sess.FinalVerdict, &sess.ExpiresAt, &sess.CreatedAt, &sess.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan session: %w", err)
	}

	sess.Status = models.SessionStatus(status)
	sess.Mode = models.ViewingMode(mode)
	if err := unmarshalInto(platforms, &sess.Platforms); err != nil {
		return nil, fmt.Errorf("unmarshal platforms: %w", err)
	}
	if len(adminProfile) > 0 {
		sess.AdminProfile = &models.ProfileCard{}
		if err := json.Unmarshal(adminProfile, sess.AdminProfile); err != nil {
			return nil, fmt.Errorf("unmarshal admin profile: %w", err)
		}
	}
	if len(groupAnalysis) > 0 {
		sess.GroupAnalysis = &models.GroupAnalysis{}
		if err := json.Unmarshal(groupAnalysis, sess.GroupAnalysis); err != nil {
			return nil, fmt.Errorf("unmarshal group analysis: %w", err)
		}
	}
	if err := unmarshalInto(movieBatches, &sess.MovieBatches); err != nil {
		return nil, fmt.Errorf("unmarshal movie batches: %w", err)
	}
	return &sess, nil
}

func unmarshalInto[T any](data []byte, dst *T) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, dst)
}

func marshalNullable(v any) ([]byte, error) {
	switch val := v.(type) {
	case nil:
		return nil, nil
	case []string:
		if val == nil {
			return nil, nil
		}
	case *models.ProfileCard:
		if val == nil {
			return nil, nil
		}
	}
	return json.Marshal(v)
}
