package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"live-quiz-service/internal/app"
	"live-quiz-service/internal/domain"
)

const uniqueViolation = "23505"

// OpenDB opens a bun handle on the Postgres DSN.
func OpenDB(dsn string) *bun.DB {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	return bun.NewDB(sqldb, pgdialect.New())
}

// Store is the Postgres implementation of app.Store. Every unit of work is one READ COMMITTED
// transaction; row locks are taken with SELECT ... FOR UPDATE / FOR SHARE.
type Store struct {
	db *bun.DB
}

func NewStore(db *bun.DB) *Store {
	return &Store{db: db}
}

func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx app.Tx) error) error {
	return s.db.RunInTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted}, func(ctx context.Context, tx bun.Tx) error {
		return fn(ctx, &storeTx{tx: tx})
	})
}

type storeTx struct {
	tx bun.Tx
}

func (t *storeTx) CreateSession(ctx context.Context, session *domain.GameSession) error {
	_, err := t.tx.NewInsert().Model(newSessionRow(session)).Exec(ctx)
	if isUniqueViolation(err) {
		return app.ErrPinConflict
	}
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (t *storeTx) GetSession(ctx context.Context, sessionID string, lock app.LockMode) (domain.GameSession, error) {
	row := new(sessionRow)
	q := t.tx.NewSelect().Model(row).Where("id = ?", sessionID)
	err := withLock(q, lock).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.GameSession{}, domain.ErrSessionNotFound
	}
	if err != nil {
		return domain.GameSession{}, fmt.Errorf("select session: %w", err)
	}
	return row.toDomain(), nil
}

func (t *storeTx) GetSessionByPin(ctx context.Context, pin string) (domain.GameSession, error) {
	row := new(sessionRow)
	err := t.tx.NewSelect().Model(row).
		Where("pin_code = ?", pin).
		OrderExpr("created_at DESC").
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.GameSession{}, domain.ErrInvalidPin
	}
	if err != nil {
		return domain.GameSession{}, fmt.Errorf("select session by pin: %w", err)
	}
	return row.toDomain(), nil
}

func (t *storeTx) UpdateSession(ctx context.Context, session *domain.GameSession) error {
	res, err := t.tx.NewUpdate().Model(newSessionRow(session)).WherePK().Exec(ctx)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrSessionNotFound
	}
	return nil
}

// HasLiveSession takes a transaction-scoped advisory lock on the host first, so two creates for
// the same host cannot both see "no live session" and insert.
func (t *storeTx) HasLiveSession(ctx context.Context, hostID string) (bool, error) {
	if _, err := t.tx.ExecContext(ctx, "SELECT pg_advisory_xact_lock(hashtext(?))", "host:"+hostID); err != nil {
		return false, fmt.Errorf("lock host: %w", err)
	}
	exists, err := t.tx.NewSelect().Model((*sessionRow)(nil)).
		Where("host_id = ?", hostID).
		Where("status IN (?)", bun.In(liveStatuses())).
		Exists(ctx)
	if err != nil {
		return false, fmt.Errorf("select live sessions: %w", err)
	}
	return exists, nil
}

func (t *storeTx) ListSessionsByHost(ctx context.Context, hostID string, limit, offset int) ([]domain.GameSession, error) {
	var rows []sessionRow
	q := t.tx.NewSelect().Model(&rows).
		Where("host_id = ?", hostID).
		OrderExpr("created_at DESC, id DESC").
		Offset(offset)
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("list host sessions: %w", err)
	}
	out := make([]domain.GameSession, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toDomain())
	}
	return out, nil
}

func (t *storeTx) CreateParticipant(ctx context.Context, p *domain.Participant) error {
	if _, err := t.tx.NewInsert().Model(newParticipantRow(p)).Exec(ctx); err != nil {
		return fmt.Errorf("insert participant: %w", err)
	}
	return nil
}

func (t *storeTx) GetParticipant(ctx context.Context, participantID string, lock app.LockMode) (domain.Participant, error) {
	row := new(participantRow)
	q := t.tx.NewSelect().Model(row).Where("id = ?", participantID)
	err := withLock(q, lock).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Participant{}, domain.ErrParticipantNotFound
	}
	if err != nil {
		return domain.Participant{}, fmt.Errorf("select participant: %w", err)
	}
	return row.toDomain(), nil
}

func (t *storeTx) GetParticipantByGuestToken(ctx context.Context, token string) (domain.Participant, error) {
	row := new(participantRow)
	err := t.tx.NewSelect().Model(row).Where("guest_token = ?", token).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Participant{}, domain.ErrParticipantNotFound
	}
	if err != nil {
		return domain.Participant{}, fmt.Errorf("select participant by token: %w", err)
	}
	return row.toDomain(), nil
}

func (t *storeTx) ListParticipants(ctx context.Context, sessionID string) ([]domain.Participant, error) {
	var rows []participantRow
	err := t.tx.NewSelect().Model(&rows).
		Where("session_id = ?", sessionID).
		OrderExpr("joined_at ASC, id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	out := make([]domain.Participant, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toDomain())
	}
	return out, nil
}

func (t *storeTx) UpdateParticipant(ctx context.Context, p *domain.Participant) error {
	res, err := t.tx.NewUpdate().Model(newParticipantRow(p)).WherePK().Exec(ctx)
	if err != nil {
		return fmt.Errorf("update participant: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrParticipantNotFound
	}
	return nil
}

// InsertAnswer uses ON CONFLICT DO NOTHING so a duplicate does not abort the transaction.
func (t *storeTx) InsertAnswer(ctx context.Context, a *domain.Answer) error {
	res, err := t.tx.NewInsert().Model(newAnswerRow(a)).
		On("CONFLICT (session_id, participant_id, question_id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("insert answer: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return app.ErrDuplicateAnswer
	}
	return nil
}

func (t *storeTx) GetAnswer(ctx context.Context, sessionID, participantID, questionID string) (domain.Answer, error) {
	row := new(answerRow)
	err := t.tx.NewSelect().Model(row).
		Where("session_id = ?", sessionID).
		Where("participant_id = ?", participantID).
		Where("question_id = ?", questionID).
		Scan(ctx)
	if err != nil {
		return domain.Answer{}, fmt.Errorf("select answer: %w", err)
	}
	return row.toDomain(), nil
}

func (t *storeTx) CountAnswers(ctx context.Context, sessionID, questionID string) (int, error) {
	n, err := t.tx.NewSelect().Model((*answerRow)(nil)).
		Where("session_id = ?", sessionID).
		Where("question_id = ?", questionID).
		Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("count answers: %w", err)
	}
	return n, nil
}

func (t *storeTx) ListAnswers(ctx context.Context, sessionID string) ([]domain.Answer, error) {
	var rows []answerRow
	err := t.tx.NewSelect().Model(&rows).
		Where("session_id = ?", sessionID).
		OrderExpr("received_at ASC, id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list answers: %w", err)
	}
	out := make([]domain.Answer, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toDomain())
	}
	return out, nil
}

// AddUserQuizStats upserts the totals in one statement so concurrent finishes of different
// sessions never lose an increment.
func (t *storeTx) AddUserQuizStats(ctx context.Context, delta domain.UserQuizStats) error {
	_, err := t.tx.NewInsert().Model(newUserQuizStatsRow(&delta)).
		On("CONFLICT (user_id, quiz_id) DO UPDATE").
		Set("games_played = user_quiz_stats.games_played + EXCLUDED.games_played").
		Set("games_completed = user_quiz_stats.games_completed + EXCLUDED.games_completed").
		Set("total_points = user_quiz_stats.total_points + EXCLUDED.total_points").
		Set("highest_score = GREATEST(user_quiz_stats.highest_score, EXCLUDED.highest_score)").
		Set("total_correct_answers = user_quiz_stats.total_correct_answers + EXCLUDED.total_correct_answers").
		Set("total_questions_answered = user_quiz_stats.total_questions_answered + EXCLUDED.total_questions_answered").
		Set("total_time_spent_ms = user_quiz_stats.total_time_spent_ms + EXCLUDED.total_time_spent_ms").
		Set("best_rank = LEAST(user_quiz_stats.best_rank, EXCLUDED.best_rank)").
		Set("longest_streak = GREATEST(user_quiz_stats.longest_streak, EXCLUDED.longest_streak)").
		Set("last_played_at = GREATEST(user_quiz_stats.last_played_at, EXCLUDED.last_played_at)").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("upsert user quiz stats: %w", err)
	}
	return nil
}

func (t *storeTx) GetUserQuizStats(ctx context.Context, userID, quizID string) (domain.UserQuizStats, bool, error) {
	row := new(userQuizStatsRow)
	err := t.tx.NewSelect().Model(row).
		Where("user_id = ?", userID).
		Where("quiz_id = ?", quizID).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.UserQuizStats{}, false, nil
	}
	if err != nil {
		return domain.UserQuizStats{}, false, fmt.Errorf("select user quiz stats: %w", err)
	}
	return row.toDomain(), true, nil
}

func withLock(q *bun.SelectQuery, lock app.LockMode) *bun.SelectQuery {
	switch lock {
	case app.LockUpdate:
		return q.For("UPDATE")
	case app.LockShare:
		return q.For("SHARE")
	}
	return q
}

func liveStatuses() []string {
	return []string{string(domain.StatusWaiting), string(domain.StatusInProgress), string(domain.StatusPaused)}
}

func isUniqueViolation(err error) bool {
	var pgErr pgdriver.Error
	return errors.As(err, &pgErr) && pgErr.Field('C') == uniqueViolation
}
