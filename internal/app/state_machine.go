package app

import (
	"context"
	"errors"
	"log"
	"time"

	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/grading"
)

// StartGameFromQuiz creates a WAITING session for the quiz with a fresh join code.
func (s *GameService) StartGameFromQuiz(ctx context.Context, quizID, hostID string) (domain.SessionHandle, error) {
	if hostID == "" {
		return domain.SessionHandle{}, domain.ErrUnauthorized
	}
	quiz, err := s.loadQuiz(ctx, quizID)
	if err != nil {
		return domain.SessionHandle{}, err
	}
	if len(quiz.Questions) == 0 {
		return domain.SessionHandle{}, domain.ErrQuizEmpty
	}
	questionIDs := make([]string, 0, len(quiz.Questions))
	for _, q := range quiz.Questions {
		questionIDs = append(questionIDs, q.ID)
	}
	if s.settings.RandomizeQuestions {
		s.shuffle(questionIDs)
	}

	sessionID := s.newID()
	for attempt := 0; attempt < maxPinAttempts; attempt++ {
		var handle domain.SessionHandle
		err = s.runTx(ctx, sessionID, func(ctx context.Context, tx Tx, uow *unitOfWork) error {
			if s.settings.SingleActiveSessionPerHost {
				live, err := tx.HasLiveSession(ctx, hostID)
				if err != nil {
					return err
				}
				if live {
					return domain.ErrHostSessionActive
				}
			}
			now := s.now()
			session := domain.GameSession{
				ID:                   sessionID,
				QuizID:               quiz.ID,
				HostID:               hostID,
				PinCode:              s.newPin(),
				Status:               domain.StatusWaiting,
				Phase:                domain.PhaseLobby,
				Capacity:             s.settings.DefaultCapacity,
				AllowAnonymous:       s.settings.AllowAnonymous,
				QuestionIDs:          questionIDs,
				CurrentQuestionIndex: -1,
				TotalQuestions:       len(questionIDs),
				CreatedAt:            now,
				UpdatedAt:            now,
				Revision:             1,
			}
			if err := tx.CreateSession(ctx, &session); err != nil {
				return err
			}
			uow.emit(s.event(domain.EventGameCreated, &session, session))
			handle = domain.SessionHandle{SessionID: session.ID, PinCode: session.PinCode, TotalQuestions: session.TotalQuestions}
			return nil
		})
		if errors.Is(err, ErrPinConflict) {
			continue
		}
		if err != nil {
			return domain.SessionHandle{}, err
		}
		return handle, nil
	}
	return domain.SessionHandle{}, err
}

// Start moves a WAITING session into the pre-start countdown. The first question opens when the
// countdown timer fires.
func (s *GameService) Start(ctx context.Context, sessionID, hostID string) error {
	return s.runTx(ctx, sessionID, func(ctx context.Context, tx Tx, uow *unitOfWork) error {
		session, err := tx.GetSession(ctx, sessionID, LockUpdate)
		if err != nil {
			return err
		}
		if err := requireHost(&session, hostID); err != nil {
			return err
		}
		switch {
		case session.Status.Terminal():
			return domain.ErrAlreadyEnded
		case session.Status != domain.StatusWaiting:
			return domain.ErrAlreadyStarted
		}
		participants, err := tx.ListParticipants(ctx, sessionID)
		if err != nil {
			return err
		}
		now := s.now()
		for i := range participants {
			if participants[i].Status != domain.ParticipantJoined {
				continue
			}
			participants[i].Status = domain.ParticipantPlaying
			if err := tx.UpdateParticipant(ctx, &participants[i]); err != nil {
				return err
			}
		}
		recount(&session, participants)
		if session.PlayerCount == 0 {
			return domain.ErrNoPlayers
		}

		session.Status = domain.StatusInProgress
		session.Phase = domain.PhaseCountdown
		session.StartedAt = timePtr(now)
		session.PhaseEndsAt = timePtr(now.Add(s.settings.Countdown))
		s.touch(&session, now)
		if err := tx.UpdateSession(ctx, &session); err != nil {
			return err
		}
		uow.emit(s.event(domain.EventGameStarting, &session, map[string]any{
			"countdownMs":    s.settings.Countdown.Milliseconds(),
			"totalQuestions": session.TotalQuestions,
			"playerCount":    session.PlayerCount,
		}))
		uow.schedule(&session, s.settings.Countdown, s.advanceTask(sessionID, -1, domain.PhaseCountdown))
		return nil
	})
}

// AdvanceQuestion is the host's "next" action. An open question is closed first.
func (s *GameService) AdvanceQuestion(ctx context.Context, sessionID, hostID string) error {
	return s.runTx(ctx, sessionID, func(ctx context.Context, tx Tx, uow *unitOfWork) error {
		session, err := tx.GetSession(ctx, sessionID, LockUpdate)
		if err != nil {
			return err
		}
		if err := requireHost(&session, hostID); err != nil {
			return err
		}
		if session.Status.Terminal() {
			return domain.ErrAlreadyEnded
		}
		if session.Status != domain.StatusInProgress {
			return domain.ErrInvalidState
		}
		if session.Phase == domain.PhaseQuestion {
			if err := s.closeQuestion(ctx, tx, uow, &session); err != nil {
				return err
			}
		}
		return s.openNext(ctx, tx, uow, &session)
	})
}

// EndQuestion closes the open question on the host's request. A question that is already
// closed makes this a no-op.
func (s *GameService) EndQuestion(ctx context.Context, sessionID, hostID string) error {
	return s.runTx(ctx, sessionID, func(ctx context.Context, tx Tx, uow *unitOfWork) error {
		session, err := tx.GetSession(ctx, sessionID, LockUpdate)
		if err != nil {
			return err
		}
		if err := requireHost(&session, hostID); err != nil {
			return err
		}
		if session.Status.Terminal() {
			return domain.ErrAlreadyEnded
		}
		if session.Status != domain.StatusInProgress {
			return domain.ErrInvalidState
		}
		if session.Phase != domain.PhaseQuestion {
			return nil
		}
		return s.closeQuestion(ctx, tx, uow, &session)
	})
}

// End finishes the game and assigns final ranks. isAuto marks a system-triggered end, which
// skips the host check.
func (s *GameService) End(ctx context.Context, sessionID, requesterID string, isAuto bool) error {
	return s.runTx(ctx, sessionID, func(ctx context.Context, tx Tx, uow *unitOfWork) error {
		session, err := tx.GetSession(ctx, sessionID, LockUpdate)
		if err != nil {
			return err
		}
		if !isAuto {
			if err := requireHost(&session, requesterID); err != nil {
				return err
			}
		}
		if session.Status.Terminal() {
			return domain.ErrAlreadyEnded
		}
		if session.Status == domain.StatusWaiting {
			return domain.ErrInvalidState
		}
		return s.finish(ctx, tx, uow, &session, isAuto)
	})
}

// Cancel aborts a session without ranking anyone.
func (s *GameService) Cancel(ctx context.Context, sessionID, hostID string) error {
	return s.runTx(ctx, sessionID, func(ctx context.Context, tx Tx, uow *unitOfWork) error {
		session, err := tx.GetSession(ctx, sessionID, LockUpdate)
		if err != nil {
			return err
		}
		if err := requireHost(&session, hostID); err != nil {
			return err
		}
		if session.Status.Terminal() {
			return domain.ErrAlreadyEnded
		}
		now := s.now()
		session.Status = domain.StatusCancelled
		session.Phase = domain.PhaseDone
		session.EndedAt = timePtr(now)
		session.PhaseEndsAt = nil
		session.PausedAt = nil
		s.touch(&session, now)
		if err := tx.UpdateSession(ctx, &session); err != nil {
			return err
		}
		uow.stopTimers(&session)
		uow.emit(s.event(domain.EventGameCancelled, &session, map[string]any{"status": session.Status}))
		return nil
	})
}

// Pause freezes an IN_PROGRESS session. The pending timer is replaced by the pause timeout.
func (s *GameService) Pause(ctx context.Context, sessionID, hostID string) error {
	return s.runTx(ctx, sessionID, func(ctx context.Context, tx Tx, uow *unitOfWork) error {
		session, err := tx.GetSession(ctx, sessionID, LockUpdate)
		if err != nil {
			return err
		}
		if err := requireHost(&session, hostID); err != nil {
			return err
		}
		if session.Status.Terminal() {
			return domain.ErrAlreadyEnded
		}
		if session.Status != domain.StatusInProgress {
			return domain.ErrInvalidState
		}
		now := s.now()
		session.Status = domain.StatusPaused
		session.PausedAt = timePtr(now)
		s.touch(&session, now)
		if err := tx.UpdateSession(ctx, &session); err != nil {
			return err
		}
		uow.emit(s.event(domain.EventGamePaused, &session, map[string]any{
			"phase":          session.Phase,
			"pauseTimeoutMs": s.settings.PauseTimeout.Milliseconds(),
		}))
		if s.settings.PauseTimeout > 0 {
			uow.schedule(&session, s.settings.PauseTimeout, s.pauseTimeoutTask(sessionID, now))
		} else {
			uow.stopTimers(&session)
		}
		return nil
	})
}

// Resume continues a paused session. Deadlines move forward by the paused duration and the
// remaining time of the current phase is re-armed.
func (s *GameService) Resume(ctx context.Context, sessionID, hostID string) error {
	return s.runTx(ctx, sessionID, func(ctx context.Context, tx Tx, uow *unitOfWork) error {
		session, err := tx.GetSession(ctx, sessionID, LockUpdate)
		if err != nil {
			return err
		}
		if err := requireHost(&session, hostID); err != nil {
			return err
		}
		if session.Status.Terminal() {
			return domain.ErrAlreadyEnded
		}
		if session.Status != domain.StatusPaused || session.PausedAt == nil {
			return domain.ErrInvalidState
		}
		now := s.now()
		pausedFor := now.Sub(*session.PausedAt)
		shift := func(t *time.Time) *time.Time {
			if t == nil {
				return nil
			}
			return timePtr(t.Add(pausedFor))
		}
		session.QuestionStartedAt = shift(session.QuestionStartedAt)
		session.QuestionEndsAt = shift(session.QuestionEndsAt)
		session.PhaseEndsAt = shift(session.PhaseEndsAt)
		session.Status = domain.StatusInProgress
		session.PausedAt = nil
		s.touch(&session, now)
		if err := tx.UpdateSession(ctx, &session); err != nil {
			return err
		}

		remaining := time.Duration(0)
		if session.PhaseEndsAt != nil {
			remaining = session.PhaseEndsAt.Sub(now)
		}
		switch session.Phase {
		case domain.PhaseQuestion:
			uow.schedule(&session, remaining+s.settings.AnswerGrace, s.endQuestionTask(sessionID, session.CurrentQuestionIndex))
		case domain.PhaseCountdown, domain.PhaseReveal:
			uow.schedule(&session, remaining, s.advanceTask(sessionID, session.CurrentQuestionIndex, session.Phase))
		}
		uow.emit(s.event(domain.EventGameResumed, &session, map[string]any{
			"phase":       session.Phase,
			"index":       session.CurrentQuestionIndex,
			"phaseEndsAt": session.PhaseEndsAt,
		}))
		return nil
	})
}

// openNext opens the question after the current index, or ends the game when none is left.
func (s *GameService) openNext(ctx context.Context, tx Tx, uow *unitOfWork, session *domain.GameSession) error {
	next := session.CurrentQuestionIndex + 1
	if next >= session.TotalQuestions {
		return s.finish(ctx, tx, uow, session, true)
	}
	session.CurrentQuestionIndex = next
	q, err := s.currentQuestion(ctx, session)
	if err != nil {
		return err
	}
	now := s.now()
	limit := questionLimit(q)
	session.Phase = domain.PhaseQuestion
	session.QuestionStartedAt = timePtr(now)
	session.QuestionEndsAt = timePtr(now.Add(limit))
	session.PhaseEndsAt = session.QuestionEndsAt
	s.touch(session, now)
	if err := tx.UpdateSession(ctx, session); err != nil {
		return err
	}
	uow.emit(s.event(domain.EventQuestionStarted, session, map[string]any{
		"index":          next,
		"totalQuestions": session.TotalQuestions,
		"question":       q.Public(),
		"startedAt":      session.QuestionStartedAt,
		"endsAt":         session.QuestionEndsAt,
	}))
	uow.schedule(session, limit+s.settings.AnswerGrace, s.endQuestionTask(session.ID, next))
	return nil
}

// closeQuestion records timeouts for everyone who did not answer, then reveals the result.
func (s *GameService) closeQuestion(ctx context.Context, tx Tx, uow *unitOfWork, session *domain.GameSession) error {
	q, err := s.currentQuestion(ctx, session)
	if err != nil {
		return err
	}
	participants, err := tx.ListParticipants(ctx, session.ID)
	if err != nil {
		return err
	}
	answers, err := tx.ListAnswers(ctx, session.ID)
	if err != nil {
		return err
	}
	answered := make(map[string]struct{}, len(answers))
	var forQuestion []domain.Answer
	for _, a := range answers {
		if a.QuestionID != q.ID {
			continue
		}
		answered[a.ParticipantID] = struct{}{}
		forQuestion = append(forQuestion, a)
	}

	now := s.now()
	limitMs := questionLimit(q).Milliseconds()
	for i := range participants {
		p := &participants[i]
		if !p.Active() {
			continue
		}
		if _, ok := answered[p.ID]; ok {
			continue
		}
		timeout := domain.Answer{
			ID:            s.newID(),
			SessionID:     session.ID,
			ParticipantID: p.ID,
			QuestionID:    q.ID,
			QuestionIndex: session.CurrentQuestionIndex,
			ResponseMs:    limitMs,
			Timeout:       true,
			ReceivedAt:    now,
		}
		if err := tx.InsertAnswer(ctx, &timeout); err != nil {
			if errors.Is(err, ErrDuplicateAnswer) {
				continue
			}
			return err
		}
		forQuestion = append(forQuestion, timeout)
		p.RecordSkip(limitMs)
		if err := tx.UpdateParticipant(ctx, p); err != nil {
			return err
		}
	}

	session.Phase = domain.PhaseReveal
	session.QuestionEndsAt = timePtr(now)
	session.PhaseEndsAt = timePtr(now.Add(s.settings.RevealWindow))
	recount(session, participants)
	s.touch(session, now)
	if err := tx.UpdateSession(ctx, session); err != nil {
		return err
	}

	lb := buildLeaderboard(session, participants, now)
	uow.leaderboard = &lb
	uow.emit(s.event(domain.EventQuestionEnded, session, map[string]any{
		"index":       session.CurrentQuestionIndex,
		"questionId":  q.ID,
		"answer":      grading.AnswerKeyView(q),
		"stats":       questionStats(q.ID, session.CurrentQuestionIndex, forQuestion),
		"leaderboard": lb,
		"last":        session.CurrentQuestionIndex >= session.TotalQuestions-1,
	}))
	uow.emit(s.event(domain.EventLeaderboardUpdated, session, lb))
	uow.schedule(session, s.settings.RevealWindow, s.advanceTask(session.ID, session.CurrentQuestionIndex, domain.PhaseReveal))
	return nil
}

// finish assigns final ranks and moves the session to FINISHED.
func (s *GameService) finish(ctx context.Context, tx Tx, uow *unitOfWork, session *domain.GameSession, isAuto bool) error {
	if session.Phase == domain.PhaseQuestion {
		if err := s.closeQuestion(ctx, tx, uow, session); err != nil {
			return err
		}
	}
	participants, err := tx.ListParticipants(ctx, session.ID)
	if err != nil {
		return err
	}
	now := s.now()
	ranked := rankParticipants(participants)
	ranks := make(map[string]int, len(ranked))
	for _, entry := range ranked {
		ranks[entry.ParticipantID] = entry.Rank
	}
	for i := range participants {
		p := &participants[i]
		if rank, ok := ranks[p.ID]; ok {
			p.FinalRank = &rank
			if p.Active() {
				p.Status = domain.ParticipantCompleted
			}
			if err := tx.UpdateParticipant(ctx, p); err != nil {
				return err
			}
		}
		if p.IsGuest() || p.Status == domain.ParticipantKicked {
			continue
		}
		if err := tx.AddUserQuizStats(ctx, domain.GameResult(session.QuizID, *p, now)); err != nil {
			return err
		}
	}

	session.Status = domain.StatusFinished
	session.Phase = domain.PhaseDone
	session.EndedAt = timePtr(now)
	session.PhaseEndsAt = nil
	session.PausedAt = nil
	recount(session, participants)
	s.touch(session, now)
	if err := tx.UpdateSession(ctx, session); err != nil {
		return err
	}

	lb := domain.Leaderboard{SessionID: session.ID, Revision: session.Revision, Final: true, Entries: ranked, UpdatedAt: now}
	uow.leaderboard = &lb
	uow.stopTimers(session)
	uow.emit(s.event(domain.EventGameEnded, session, map[string]any{
		"auto":         isAuto,
		"leaderboard":  lb,
		"averageScore": session.AverageScore,
	}))
	return nil
}

// Timer callbacks run outside any request. Each opens its own transaction and re-validates the
// session, so a stale or repeated fire is a no-op.

func (s *GameService) advanceTask(sessionID string, fromIndex int, fromPhase domain.Phase) func(ctx context.Context) {
	return func(ctx context.Context) {
		err := s.runTx(ctx, sessionID, func(ctx context.Context, tx Tx, uow *unitOfWork) error {
			session, err := tx.GetSession(ctx, sessionID, LockUpdate)
			if err != nil {
				return err
			}
			if session.Status != domain.StatusInProgress || session.CurrentQuestionIndex != fromIndex || session.Phase != fromPhase {
				return nil
			}
			return s.openNext(ctx, tx, uow, &session)
		})
		if err != nil {
			log.Printf("advance timer for session %s failed: %v", sessionID, err)
		}
	}
}

func (s *GameService) endQuestionTask(sessionID string, index int) func(ctx context.Context) {
	return func(ctx context.Context) {
		err := s.runTx(ctx, sessionID, func(ctx context.Context, tx Tx, uow *unitOfWork) error {
			session, err := tx.GetSession(ctx, sessionID, LockUpdate)
			if err != nil {
				return err
			}
			if !session.QuestionOpen() || session.CurrentQuestionIndex != index {
				return nil
			}
			return s.closeQuestion(ctx, tx, uow, &session)
		})
		if err != nil {
			log.Printf("question timer for session %s failed: %v", sessionID, err)
		}
	}
}

func (s *GameService) pauseTimeoutTask(sessionID string, pausedAt time.Time) func(ctx context.Context) {
	return func(ctx context.Context) {
		err := s.runTx(ctx, sessionID, func(ctx context.Context, tx Tx, uow *unitOfWork) error {
			session, err := tx.GetSession(ctx, sessionID, LockUpdate)
			if err != nil {
				return err
			}
			if session.Status != domain.StatusPaused || session.PausedAt == nil || !session.PausedAt.Equal(pausedAt) {
				return nil
			}
			log.Printf("session %s paused for too long, ending", sessionID)
			return s.finish(ctx, tx, uow, &session, true)
		})
		if err != nil {
			log.Printf("pause timer for session %s failed: %v", sessionID, err)
		}
	}
}
