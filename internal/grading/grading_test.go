package grading

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"live-quiz-service/internal/domain"
)

func TestGradeVariants(t *testing.T) {
	yes := true
	cases := []struct {
		name    string
		q       domain.Question
		payload string
		correct bool
		credit  float64
	}{
		{"single choice right", choiceQuestion(domain.QuestionSingleChoice, "b"), `"b"`, true, 1},
		{"single choice wrong", choiceQuestion(domain.QuestionSingleChoice, "b"), `"a"`, false, 0},
		{"multiple choice exact set", choiceQuestion(domain.QuestionMultipleChoice, "a", "c"), `["c","a"]`, true, 1},
		{"multiple choice subset", choiceQuestion(domain.QuestionMultipleChoice, "a", "c"), `["a"]`, false, 0},
		{"true false", domain.Question{Type: domain.QuestionTrueFalse, Key: domain.AnswerKey{Boolean: &yes}}, `true`, true, 1},
		{"true false from option", domain.Question{Type: domain.QuestionTrueFalse, Options: []domain.Option{{ID: "false", Correct: true}}}, `true`, false, 0},
		{"fill in blank case folded", fillQuestion(false, 0, "Paris"), `"  paris "`, true, 1},
		{"fill in blank case sensitive", fillQuestion(true, 0, "Paris"), `"paris"`, false, 0},
		{"fill in blank typo tolerated", fillQuestion(false, 1, "Amsterdam"), `"amsterdan"`, true, 1},
		{"fill in blank too many typos", fillQuestion(false, 1, "Amsterdam"), `"amstredan"`, false, 0},
		{"matching all pairs", matchingQuestion(), `{"cat":"meow","dog":"woof"}`, true, 1},
		{"matching half pairs", matchingQuestion(), `{"cat":"meow","dog":"moo"}`, false, 0.5},
		{"ordering exact", domain.Question{Type: domain.QuestionOrdering, Key: domain.AnswerKey{Sequence: []string{"x", "y", "z"}}}, `["x","y","z"]`, true, 1},
		{"ordering swapped", domain.Question{Type: domain.QuestionOrdering, Key: domain.AnswerKey{Sequence: []string{"x", "y", "z"}}}, `["y","x","z"]`, false, 0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res, err := Grade(tc.q, json.RawMessage(tc.payload))
			if err != nil {
				t.Fatalf("grade: %v", err)
			}
			if res.Correct != tc.correct || res.Credit != tc.credit {
				t.Fatalf("expected correct=%v credit=%v, got %+v", tc.correct, tc.credit, res)
			}
		})
	}
}

func TestEssayNeedsReview(t *testing.T) {
	res, err := Grade(domain.Question{Type: domain.QuestionEssay}, json.RawMessage(`"long answer"`))
	if err != nil {
		t.Fatalf("grade: %v", err)
	}
	if !res.NeedsReview || res.Correct || res.Credit != 0 {
		t.Fatalf("expected ungraded essay, got %+v", res)
	}
}

func TestGradeRejectsMalformedPayload(t *testing.T) {
	_, err := Grade(choiceQuestion(domain.QuestionSingleChoice, "a"), json.RawMessage(`{"x":1}`))
	if !errors.Is(err, domain.ErrInvalidAnswer) {
		t.Fatalf("expected invalid answer, got %v", err)
	}
	_, err = Grade(choiceQuestion(domain.QuestionSingleChoice, "a"), json.RawMessage(`"zzz"`))
	if !errors.Is(err, domain.ErrInvalidAnswer) {
		t.Fatalf("expected unknown option to be invalid, got %v", err)
	}
	_, err = Grade(choiceQuestion(domain.QuestionSingleChoice, "a"), json.RawMessage(`["a","b"]`))
	if !errors.Is(err, domain.ErrInvalidAnswer) {
		t.Fatalf("expected two picks on single choice to be invalid, got %v", err)
	}
}

func TestScorerDecaysWithResponseTime(t *testing.T) {
	q := domain.Question{TimeLimit: 10}
	s := Scorer{BasePoints: 1000, MinSpeedFactor: 0.5}

	fast := s.Points(q, 1, 2*time.Second)
	mid := s.Points(q, 1, 5*time.Second)
	slow := s.Points(q, 1, 9*time.Second)
	if fast != 900 || mid != 750 || slow != 550 {
		t.Fatalf("unexpected curve: %d %d %d", fast, mid, slow)
	}
	if got := s.Points(q, 1, time.Minute); got != 500 {
		t.Fatalf("expected floor at limit, got %d", got)
	}
	if got := s.Points(q, 0, time.Second); got != 0 {
		t.Fatalf("expected no points without credit, got %d", got)
	}
	if got := s.Points(domain.Question{TimeLimit: 10, Points: 200}, 0.5, 0); got != 100 {
		t.Fatalf("expected partial credit on question points, got %d", got)
	}
}

func choiceQuestion(typ domain.QuestionType, correct ...string) domain.Question {
	q := domain.Question{ID: "q", Type: typ}
	isCorrect := map[string]bool{}
	for _, id := range correct {
		isCorrect[id] = true
	}
	for _, id := range []string{"a", "b", "c"} {
		q.Options = append(q.Options, domain.Option{ID: id, Text: id, Correct: isCorrect[id]})
	}
	return q
}

func fillQuestion(caseSensitive bool, typos int, accepted ...string) domain.Question {
	return domain.Question{
		Type: domain.QuestionFillInBlank,
		Key:  domain.AnswerKey{Accepted: accepted, CaseSensitive: caseSensitive, MaxTypos: typos},
	}
}

func matchingQuestion() domain.Question {
	return domain.Question{
		ID:   "m",
		Type: domain.QuestionMatching,
		Key: domain.AnswerKey{Pairs: []domain.MatchPair{
			{Left: "cat", Right: "meow"},
			{Left: "dog", Right: "woof"},
		}},
	}
}
