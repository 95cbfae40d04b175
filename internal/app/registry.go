package app

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"live-quiz-service/internal/domain"
)

const maxNicknameLength = 32

// Join registers a player in the WAITING session behind the join code. An empty userID joins
// as a guest and receives a resumable guest token.
func (s *GameService) Join(ctx context.Context, pin, userID, nickname string) (domain.ParticipantHandle, error) {
	nickname = strings.TrimSpace(nickname)
	if pin == "" || nickname == "" || utf8.RuneCountInString(nickname) > maxNicknameLength {
		return domain.ParticipantHandle{}, domain.ErrInvalidRequest
	}

	var handle domain.ParticipantHandle
	var sessionID string
	err := s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		found, err := tx.GetSessionByPin(ctx, pin)
		if err != nil {
			return err
		}
		sessionID = found.ID
		return nil
	})
	if err != nil {
		return domain.ParticipantHandle{}, err
	}

	err = s.runTx(ctx, sessionID, func(ctx context.Context, tx Tx, uow *unitOfWork) error {
		session, err := tx.GetSession(ctx, sessionID, LockUpdate)
		if err != nil {
			return err
		}
		switch {
		case session.Status.Terminal():
			return domain.ErrPinExpired
		case session.Status != domain.StatusWaiting:
			return domain.ErrAlreadyStarted
		}
		if userID == "" && !session.AllowAnonymous {
			return domain.ErrAnonymousNotAllowed
		}

		participants, err := tx.ListParticipants(ctx, sessionID)
		if err != nil {
			return err
		}
		for _, p := range participants {
			if userID != "" && p.UserID == userID && p.Active() {
				handle = participantHandle(p, true)
				return nil
			}
		}
		for _, p := range participants {
			if p.Active() && strings.EqualFold(p.Nickname, nickname) {
				return domain.ErrNicknameTaken
			}
		}
		recount(&session, participants)
		if session.PlayerCount >= session.Capacity {
			return domain.ErrSessionFull
		}

		now := s.now()
		p := domain.Participant{
			ID:         s.newID(),
			SessionID:  sessionID,
			UserID:     userID,
			Nickname:   nickname,
			Status:     domain.ParticipantJoined,
			JoinedAt:   now,
			LastSeenAt: timePtr(now),
		}
		if userID == "" {
			p.GuestToken = s.newID()
			p.GuestExpiresAt = timePtr(now.Add(s.settings.GuestTokenTTL))
		}
		if err := tx.CreateParticipant(ctx, &p); err != nil {
			return err
		}
		participants = append(participants, p)
		recount(&session, participants)
		s.touch(&session, now)
		if err := tx.UpdateSession(ctx, &session); err != nil {
			return err
		}
		uow.emit(s.event(domain.EventParticipantJoined, &session, map[string]any{
			"participant": p,
			"playerCount": session.PlayerCount,
		}))
		lb := buildLeaderboard(&session, participants, now)
		uow.leaderboard = &lb
		handle = participantHandle(p, false)
		return nil
	})
	if err != nil {
		return domain.ParticipantHandle{}, err
	}
	return handle, nil
}

// ResumeGuest returns the participant a guest token belongs to, so a reconnecting guest keeps
// their score instead of joining twice.
func (s *GameService) ResumeGuest(ctx context.Context, guestToken string) (domain.ParticipantHandle, error) {
	if guestToken == "" {
		return domain.ParticipantHandle{}, domain.ErrInvalidRequest
	}
	var handle domain.ParticipantHandle
	err := s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		found, err := tx.GetParticipantByGuestToken(ctx, guestToken)
		if err != nil {
			return err
		}
		p, err := tx.GetParticipant(ctx, found.ID, LockUpdate)
		if err != nil {
			return err
		}
		now := s.now()
		if p.GuestExpiresAt == nil || !now.Before(*p.GuestExpiresAt) {
			return domain.ErrGuestTokenExpired
		}
		if !p.Counted() {
			return domain.ErrParticipantRemoved
		}
		session, err := tx.GetSession(ctx, p.SessionID, LockNone)
		if err != nil {
			return err
		}
		if session.Status.Terminal() {
			return domain.ErrAlreadyEnded
		}
		p.LastSeenAt = timePtr(now)
		if err := tx.UpdateParticipant(ctx, &p); err != nil {
			return err
		}
		handle = participantHandle(p, true)
		return nil
	})
	if err != nil {
		return domain.ParticipantHandle{}, err
	}
	return handle, nil
}

// ResolveParticipant maps a caller to their participant in a session, by guest token or by
// account id.
func (s *GameService) ResolveParticipant(ctx context.Context, sessionID, userID, guestToken string) (domain.Participant, error) {
	var out domain.Participant
	err := s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		if guestToken != "" {
			p, err := tx.GetParticipantByGuestToken(ctx, guestToken)
			if err != nil {
				return err
			}
			if p.SessionID != sessionID {
				return domain.ErrParticipantNotFound
			}
			if p.GuestExpiresAt == nil || !s.now().Before(*p.GuestExpiresAt) {
				return domain.ErrGuestTokenExpired
			}
			out = p
			return nil
		}
		if userID == "" {
			return domain.ErrUnauthorized
		}
		participants, err := tx.ListParticipants(ctx, sessionID)
		if err != nil {
			return err
		}
		for _, p := range participants {
			if p.UserID != userID {
				continue
			}
			if out.ID == "" || p.Counted() {
				out = p
			}
		}
		if out.ID == "" {
			return domain.ErrParticipantNotFound
		}
		return nil
	})
	return out, err
}

// Leave removes a participant by their own request. Before the game starts this frees the slot;
// during the game the participant stops being ranked. When the last active player leaves a
// running game, the game ends automatically.
func (s *GameService) Leave(ctx context.Context, sessionID, participantID string) error {
	return s.runTx(ctx, sessionID, func(ctx context.Context, tx Tx, uow *unitOfWork) error {
		session, p, err := s.lockMembership(ctx, tx, sessionID, participantID)
		if err != nil {
			return err
		}
		if !p.Counted() {
			return nil
		}
		beforeStart := session.Status == domain.StatusWaiting
		now := s.now()
		p.Status = domain.ParticipantLeft
		p.LeftAt = timePtr(now)
		if err := tx.UpdateParticipant(ctx, &p); err != nil {
			return err
		}
		uow.emit(s.event(domain.EventParticipantLeft, &session, map[string]any{
			"participantId": p.ID,
			"nickname":      p.Nickname,
			"beforeStart":   beforeStart,
		}))
		return s.afterDeparture(ctx, tx, uow, &session, now)
	})
}

// Kick removes a participant on the host's request. The kicked player gets an addressed notice
// in addition to the room event.
func (s *GameService) Kick(ctx context.Context, sessionID, hostID, participantID, reason string) error {
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
		p, err := lockMember(ctx, tx, sessionID, participantID)
		if err != nil {
			return err
		}
		if !p.Counted() {
			return domain.ErrParticipantRemoved
		}
		now := s.now()
		p.Status = domain.ParticipantKicked
		p.KickReason = reason
		p.LeftAt = timePtr(now)
		if err := tx.UpdateParticipant(ctx, &p); err != nil {
			return err
		}
		uow.emit(s.event(domain.EventParticipantKicked, &session, map[string]any{
			"participantId": p.ID,
			"nickname":      p.Nickname,
		}))
		notice := s.event(domain.EventKicked, &session, map[string]any{"reason": reason})
		notice.ParticipantID = p.ID
		uow.emit(notice)
		return s.afterDeparture(ctx, tx, uow, &session, now)
	})
}

func (s *GameService) lockMembership(ctx context.Context, tx Tx, sessionID, participantID string) (domain.GameSession, domain.Participant, error) {
	session, err := tx.GetSession(ctx, sessionID, LockUpdate)
	if err != nil {
		return domain.GameSession{}, domain.Participant{}, err
	}
	if session.Status.Terminal() {
		return domain.GameSession{}, domain.Participant{}, domain.ErrAlreadyEnded
	}
	p, err := lockMember(ctx, tx, sessionID, participantID)
	if err != nil {
		return domain.GameSession{}, domain.Participant{}, err
	}
	return session, p, nil
}

func lockMember(ctx context.Context, tx Tx, sessionID, participantID string) (domain.Participant, error) {
	p, err := tx.GetParticipant(ctx, participantID, LockUpdate)
	if err != nil {
		return domain.Participant{}, err
	}
	if p.SessionID != sessionID {
		return domain.Participant{}, domain.ErrParticipantNotFound
	}
	return p, nil
}

// afterDeparture refreshes the counters once a participant left or was kicked.
func (s *GameService) afterDeparture(ctx context.Context, tx Tx, uow *unitOfWork, session *domain.GameSession, now time.Time) error {
	participants, err := tx.ListParticipants(ctx, session.ID)
	if err != nil {
		return err
	}
	recount(session, participants)
	running := session.Status == domain.StatusInProgress || session.Status == domain.StatusPaused
	if running && session.ActivePlayerCount == 0 {
		return s.finish(ctx, tx, uow, session, true)
	}
	s.touch(session, now)
	if err := tx.UpdateSession(ctx, session); err != nil {
		return err
	}
	if running {
		lb := buildLeaderboard(session, participants, now)
		uow.leaderboard = &lb
		uow.emit(s.event(domain.EventLeaderboardUpdated, session, lb))
	}
	return nil
}

// recount refreshes the cached counters from the participant set.
func recount(session *domain.GameSession, participants []domain.Participant) {
	var counted, active, completed, total int
	for _, p := range participants {
		if !p.Counted() {
			continue
		}
		counted++
		total += p.Score
		switch {
		case p.Active():
			active++
		case p.Status == domain.ParticipantCompleted:
			completed++
		}
	}
	session.PlayerCount = counted
	session.ActivePlayerCount = active
	session.CompletedPlayerCount = completed
	session.AverageScore = 0
	if counted > 0 {
		session.AverageScore = float64(total) / float64(counted)
	}
}

func participantHandle(p domain.Participant, resumed bool) domain.ParticipantHandle {
	return domain.ParticipantHandle{
		ParticipantID:  p.ID,
		SessionID:      p.SessionID,
		Nickname:       p.Nickname,
		GuestToken:     p.GuestToken,
		GuestExpiresAt: p.GuestExpiresAt,
		Resumed:        resumed,
	}
}
