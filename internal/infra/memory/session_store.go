package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/domain"
)

// SessionStore is an in-memory implementation of app.Store. One mutex serializes units of work;
// writes are staged and applied only when the unit of work succeeds.
type SessionStore struct {
	mu           sync.Mutex
	sessions     map[string]domain.GameSession
	participants map[string]domain.Participant
	answers      map[answerKey]domain.Answer
	stats        map[statsKey]domain.UserQuizStats
}

type statsKey struct {
	userID string
	quizID string
}

type answerKey struct {
	sessionID     string
	participantID string
	questionID    string
}

func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions:     make(map[string]domain.GameSession),
		participants: make(map[string]domain.Participant),
		answers:      make(map[answerKey]domain.Answer),
		stats:        make(map[statsKey]domain.UserQuizStats),
	}
}

func (s *SessionStore) InTx(ctx context.Context, fn func(ctx context.Context, tx app.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	tx := &sessionTx{
		store:        s,
		sessions:     make(map[string]domain.GameSession),
		participants: make(map[string]domain.Participant),
		answers:      make(map[answerKey]domain.Answer),
		stats:        make(map[statsKey]domain.UserQuizStats),
	}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	for id, session := range tx.sessions {
		s.sessions[id] = session
	}
	for id, p := range tx.participants {
		s.participants[id] = p
	}
	for key, a := range tx.answers {
		s.answers[key] = a
	}
	for key, st := range tx.stats {
		s.stats[key] = st
	}
	return nil
}

// sessionTx overlays staged writes on the committed maps. It is only used while the store
// mutex is held.
type sessionTx struct {
	store        *SessionStore
	sessions     map[string]domain.GameSession
	participants map[string]domain.Participant
	answers      map[answerKey]domain.Answer
	stats        map[statsKey]domain.UserQuizStats
}

func (t *sessionTx) session(id string) (domain.GameSession, bool) {
	if session, ok := t.sessions[id]; ok {
		return session, true
	}
	session, ok := t.store.sessions[id]
	return session, ok
}

func (t *sessionTx) eachSession(fn func(domain.GameSession)) {
	for id, session := range t.store.sessions {
		if _, staged := t.sessions[id]; !staged {
			fn(session)
		}
	}
	for _, session := range t.sessions {
		fn(session)
	}
}

func (t *sessionTx) participant(id string) (domain.Participant, bool) {
	if p, ok := t.participants[id]; ok {
		return p, true
	}
	p, ok := t.store.participants[id]
	return p, ok
}

func (t *sessionTx) eachParticipant(fn func(domain.Participant)) {
	for id, p := range t.store.participants {
		if _, staged := t.participants[id]; !staged {
			fn(p)
		}
	}
	for _, p := range t.participants {
		fn(p)
	}
}

func (t *sessionTx) answer(key answerKey) (domain.Answer, bool) {
	if a, ok := t.answers[key]; ok {
		return a, true
	}
	a, ok := t.store.answers[key]
	return a, ok
}

func (t *sessionTx) CreateSession(_ context.Context, session *domain.GameSession) error {
	if _, exists := t.session(session.ID); exists {
		return fmt.Errorf("session %s already exists", session.ID)
	}
	conflict := false
	t.eachSession(func(other domain.GameSession) {
		if other.PinCode == session.PinCode && other.Status.Live() {
			conflict = true
		}
	})
	if conflict {
		return app.ErrPinConflict
	}
	t.sessions[session.ID] = copySession(*session)
	return nil
}

func (t *sessionTx) GetSession(_ context.Context, sessionID string, _ app.LockMode) (domain.GameSession, error) {
	session, ok := t.session(sessionID)
	if !ok {
		return domain.GameSession{}, domain.ErrSessionNotFound
	}
	return copySession(session), nil
}

func (t *sessionTx) GetSessionByPin(_ context.Context, pin string) (domain.GameSession, error) {
	var latest *domain.GameSession
	t.eachSession(func(session domain.GameSession) {
		if session.PinCode != pin {
			return
		}
		if latest == nil || session.CreatedAt.After(latest.CreatedAt) {
			s := session
			latest = &s
		}
	})
	if latest == nil {
		return domain.GameSession{}, domain.ErrInvalidPin
	}
	return copySession(*latest), nil
}

func (t *sessionTx) UpdateSession(_ context.Context, session *domain.GameSession) error {
	if _, ok := t.session(session.ID); !ok {
		return domain.ErrSessionNotFound
	}
	t.sessions[session.ID] = copySession(*session)
	return nil
}

func (t *sessionTx) HasLiveSession(_ context.Context, hostID string) (bool, error) {
	live := false
	t.eachSession(func(session domain.GameSession) {
		if session.HostID == hostID && session.Status.Live() {
			live = true
		}
	})
	return live, nil
}

func (t *sessionTx) ListSessionsByHost(_ context.Context, hostID string, limit, offset int) ([]domain.GameSession, error) {
	var out []domain.GameSession
	t.eachSession(func(session domain.GameSession) {
		if session.HostID == hostID {
			out = append(out, copySession(session))
		}
	})
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	if offset >= len(out) {
		return []domain.GameSession{}, nil
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (t *sessionTx) CreateParticipant(_ context.Context, p *domain.Participant) error {
	if _, exists := t.participant(p.ID); exists {
		return fmt.Errorf("participant %s already exists", p.ID)
	}
	if p.GuestToken != "" {
		if _, err := t.GetParticipantByGuestToken(context.Background(), p.GuestToken); err == nil {
			return fmt.Errorf("guest token already issued")
		}
	}
	t.participants[p.ID] = *p
	return nil
}

func (t *sessionTx) GetParticipant(_ context.Context, participantID string, _ app.LockMode) (domain.Participant, error) {
	p, ok := t.participant(participantID)
	if !ok {
		return domain.Participant{}, domain.ErrParticipantNotFound
	}
	return p, nil
}

func (t *sessionTx) GetParticipantByGuestToken(_ context.Context, token string) (domain.Participant, error) {
	var found *domain.Participant
	t.eachParticipant(func(p domain.Participant) {
		if p.GuestToken == token {
			match := p
			found = &match
		}
	})
	if found == nil {
		return domain.Participant{}, domain.ErrParticipantNotFound
	}
	return *found, nil
}

func (t *sessionTx) ListParticipants(_ context.Context, sessionID string) ([]domain.Participant, error) {
	var out []domain.Participant
	t.eachParticipant(func(p domain.Participant) {
		if p.SessionID == sessionID {
			out = append(out, p)
		}
	})
	sort.Slice(out, func(i, j int) bool {
		if !out[i].JoinedAt.Equal(out[j].JoinedAt) {
			return out[i].JoinedAt.Before(out[j].JoinedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (t *sessionTx) UpdateParticipant(_ context.Context, p *domain.Participant) error {
	if _, ok := t.participant(p.ID); !ok {
		return domain.ErrParticipantNotFound
	}
	t.participants[p.ID] = *p
	return nil
}

func (t *sessionTx) InsertAnswer(_ context.Context, a *domain.Answer) error {
	key := answerKey{sessionID: a.SessionID, participantID: a.ParticipantID, questionID: a.QuestionID}
	if _, exists := t.answer(key); exists {
		return app.ErrDuplicateAnswer
	}
	stored := *a
	stored.Payload = append([]byte(nil), a.Payload...)
	t.answers[key] = stored
	return nil
}

func (t *sessionTx) GetAnswer(_ context.Context, sessionID, participantID, questionID string) (domain.Answer, error) {
	a, ok := t.answer(answerKey{sessionID: sessionID, participantID: participantID, questionID: questionID})
	if !ok {
		return domain.Answer{}, fmt.Errorf("answer for %s/%s not found", participantID, questionID)
	}
	return a, nil
}

func (t *sessionTx) CountAnswers(ctx context.Context, sessionID, questionID string) (int, error) {
	answers, err := t.ListAnswers(ctx, sessionID)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, a := range answers {
		if a.QuestionID == questionID {
			n++
		}
	}
	return n, nil
}

func (t *sessionTx) ListAnswers(_ context.Context, sessionID string) ([]domain.Answer, error) {
	var out []domain.Answer
	for key, a := range t.store.answers {
		if _, staged := t.answers[key]; !staged && key.sessionID == sessionID {
			out = append(out, a)
		}
	}
	for key, a := range t.answers {
		if key.sessionID == sessionID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ReceivedAt.Equal(out[j].ReceivedAt) {
			return out[i].ReceivedAt.Before(out[j].ReceivedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (t *sessionTx) AddUserQuizStats(_ context.Context, delta domain.UserQuizStats) error {
	key := statsKey{userID: delta.UserID, quizID: delta.QuizID}
	current, ok := t.stats[key]
	if !ok {
		current, ok = t.store.stats[key]
	}
	if !ok {
		current = domain.UserQuizStats{UserID: delta.UserID, QuizID: delta.QuizID}
	}
	current.Add(delta)
	t.stats[key] = current
	return nil
}

func (t *sessionTx) GetUserQuizStats(_ context.Context, userID, quizID string) (domain.UserQuizStats, bool, error) {
	key := statsKey{userID: userID, quizID: quizID}
	if st, ok := t.stats[key]; ok {
		return st, true, nil
	}
	st, ok := t.store.stats[key]
	return st, ok, nil
}

func copySession(session domain.GameSession) domain.GameSession {
	session.QuestionIDs = append([]string(nil), session.QuestionIDs...)
	return session
}
