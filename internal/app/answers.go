package app

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/grading"
)

// Submission is one answer as received from a participant.
type Submission struct {
	SessionID     string
	ParticipantID string
	// QuestionID is optional; when set it must name the open question.
	QuestionID        string
	Payload           json.RawMessage
	ClientSubmittedAt *time.Time
}

// SubmitAnswer grades one submission against the open question. Response time is measured on
// the server. A submission after the window closed is stored as a timeout and reported with
// ErrQuestionTimedOut alongside the result.
func (s *GameService) SubmitAnswer(ctx context.Context, sub Submission) (domain.AnswerResult, error) {
	if len(sub.Payload) == 0 {
		return domain.AnswerResult{}, domain.ErrInvalidAnswer
	}
	return s.record(ctx, sub, false)
}

// Skip records that the participant passes on the open question.
func (s *GameService) Skip(ctx context.Context, sessionID, participantID, questionID string) (domain.AnswerResult, error) {
	return s.record(ctx, Submission{SessionID: sessionID, ParticipantID: participantID, QuestionID: questionID}, true)
}

func (s *GameService) record(ctx context.Context, sub Submission, skip bool) (domain.AnswerResult, error) {
	receivedAt := s.now()
	var result domain.AnswerResult
	timedOut := false

	err := s.runTx(ctx, sub.SessionID, func(ctx context.Context, tx Tx, uow *unitOfWork) error {
		session, err := tx.GetSession(ctx, sub.SessionID, LockShare)
		if err != nil {
			return err
		}
		if session.Status.Terminal() {
			return domain.ErrAlreadyEnded
		}
		if !session.QuestionOpen() || session.QuestionStartedAt == nil {
			return domain.ErrQuestionNotOpen
		}
		q, err := s.currentQuestion(ctx, &session)
		if err != nil {
			return err
		}
		if sub.QuestionID != "" && sub.QuestionID != q.ID {
			return domain.ErrQuestionNotOpen
		}

		p, err := tx.GetParticipant(ctx, sub.ParticipantID, LockUpdate)
		if err != nil {
			return err
		}
		if p.SessionID != session.ID {
			return domain.ErrParticipantNotFound
		}
		if !p.Active() {
			return domain.ErrParticipantRemoved
		}

		limit := questionLimit(q)
		elapsed := receivedAt.Sub(*session.QuestionStartedAt)
		if elapsed < 0 {
			elapsed = 0
		}
		answer := domain.Answer{
			ID:                s.newID(),
			SessionID:         session.ID,
			ParticipantID:     p.ID,
			QuestionID:        q.ID,
			QuestionIndex:     session.CurrentQuestionIndex,
			ClientSubmittedAt: sub.ClientSubmittedAt,
			ReceivedAt:        receivedAt,
		}

		switch {
		case elapsed > limit+s.settings.AnswerGrace:
			answer.Timeout = true
			answer.ResponseMs = limit.Milliseconds()
			answer.Payload = sub.Payload
			if err := s.insertAnswer(ctx, tx, &answer); err != nil {
				return err
			}
			p.RecordSkip(answer.ResponseMs)
			timedOut = true
		case skip:
			answer.Skipped = true
			answer.ResponseMs = limit.Milliseconds()
			if err := s.insertAnswer(ctx, tx, &answer); err != nil {
				return err
			}
			p.RecordSkip(answer.ResponseMs)
		default:
			graded, err := grading.Grade(q, sub.Payload)
			if err != nil {
				return err
			}
			if elapsed > limit {
				elapsed = limit
			}
			answer.Payload = sub.Payload
			answer.ResponseMs = elapsed.Milliseconds()
			answer.Correct = graded.Correct
			answer.NeedsReview = graded.NeedsReview
			if !graded.NeedsReview {
				answer.PointsEarned = s.scorer.Points(q, graded.Credit, elapsed)
			}
			if err := s.insertAnswer(ctx, tx, &answer); err != nil {
				return err
			}
			switch {
			case graded.NeedsReview:
				p.RecordPending(answer.ResponseMs)
			case graded.Correct:
				p.RecordCorrect(answer.PointsEarned, answer.ResponseMs)
			default:
				p.RecordIncorrect(answer.PointsEarned, answer.ResponseMs)
			}
		}

		p.LastSeenAt = timePtr(receivedAt)
		if err := tx.UpdateParticipant(ctx, &p); err != nil {
			return err
		}
		answeredCount, err := tx.CountAnswers(ctx, session.ID, q.ID)
		if err != nil {
			return err
		}
		uow.emit(s.event(domain.EventAnswerCount, &session, map[string]any{
			"questionId": q.ID,
			"answered":   answeredCount,
			"active":     session.ActivePlayerCount,
		}))

		result = domain.AnswerResult{
			QuestionID:  q.ID,
			Correct:     answer.Correct,
			Awarded:     answer.PointsEarned,
			TotalScore:  p.Score,
			Streak:      p.CurrentStreak,
			ResponseMs:  answer.ResponseMs,
			Timeout:     answer.Timeout,
			Skipped:     answer.Skipped,
			NeedsReview: answer.NeedsReview,
		}
		return nil
	})
	if err != nil {
		return domain.AnswerResult{}, err
	}
	if timedOut {
		return result, domain.ErrQuestionTimedOut
	}
	return result, nil
}

// insertAnswer relies on the store's uniqueness on (session, participant, question). A rejected
// insert is reported as already answered, or as timed out when the existing row is a timeout.
func (s *GameService) insertAnswer(ctx context.Context, tx Tx, answer *domain.Answer) error {
	err := tx.InsertAnswer(ctx, answer)
	if !errors.Is(err, ErrDuplicateAnswer) {
		return err
	}
	existing, getErr := tx.GetAnswer(ctx, answer.SessionID, answer.ParticipantID, answer.QuestionID)
	if getErr == nil && existing.Timeout {
		return domain.ErrQuestionTimedOut
	}
	return domain.ErrAlreadyAnswered
}
