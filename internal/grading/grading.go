package grading

import (
	"encoding/json"
	"fmt"
	"strconv"

	"live-quiz-service/internal/domain"
)

// Result is the outcome of grading one payload.
type Result struct {
	Correct bool
	// Credit is the share of the question's points earned before the speed factor, 0..1.
	Credit      float64
	NeedsReview bool
}

// Grader decides correctness for one question type.
type Grader interface {
	Grade(q domain.Question, payload json.RawMessage) (Result, error)
}

var graders = map[domain.QuestionType]Grader{
	domain.QuestionSingleChoice:   Choice{Single: true},
	domain.QuestionMultipleChoice: Choice{},
	domain.QuestionTrueFalse:      TrueFalse{},
	domain.QuestionFillInBlank:    FillInBlank{},
	domain.QuestionMatching:       Matching{},
	domain.QuestionOrdering:       Ordering{},
	domain.QuestionEssay:          Essay{},
}

// For returns the grader registered for a question type.
func For(t domain.QuestionType) (Grader, bool) {
	g, ok := graders[t]
	return g, ok
}

// Grade picks the grader by the question's type tag and applies it.
func Grade(q domain.Question, payload json.RawMessage) (Result, error) {
	g, ok := For(q.Type)
	if !ok {
		return Result{}, fmt.Errorf("unsupported question type %q", q.Type)
	}
	return g.Grade(q, payload)
}

// AnswerKeyView renders the correct answer of a question for the reveal payload.
func AnswerKeyView(q domain.Question) any {
	switch q.Type {
	case domain.QuestionSingleChoice, domain.QuestionMultipleChoice:
		return correctOptionIDs(q)
	case domain.QuestionTrueFalse:
		v, _ := trueFalseKey(q)
		return v
	case domain.QuestionFillInBlank:
		return acceptedTexts(q)
	case domain.QuestionMatching:
		return q.Key.Pairs
	case domain.QuestionOrdering:
		return sequenceKey(q)
	default:
		return nil
	}
}

// Choice grades single and multiple choice questions by exact set match.
type Choice struct {
	Single bool
}

func (c Choice) Grade(q domain.Question, payload json.RawMessage) (Result, error) {
	selected, err := decodeIDs(payload)
	if err != nil {
		return Result{}, err
	}
	if c.Single && len(selected) != 1 {
		return Result{}, fmt.Errorf("%w: expected exactly one option", domain.ErrInvalidAnswer)
	}
	if len(selected) == 0 {
		return Result{}, fmt.Errorf("%w: no option selected", domain.ErrInvalidAnswer)
	}

	known := make(map[string]bool, len(q.Options))
	for _, opt := range q.Options {
		known[opt.ID] = opt.Correct
	}
	picked := make(map[string]struct{}, len(selected))
	for _, id := range selected {
		if _, ok := known[id]; !ok {
			return Result{}, fmt.Errorf("%w: unknown option %q", domain.ErrInvalidAnswer, id)
		}
		picked[id] = struct{}{}
	}

	correct := correctOptionIDs(q)
	if len(correct) != len(picked) {
		return Result{}, nil
	}
	for _, id := range correct {
		if _, ok := picked[id]; !ok {
			return Result{}, nil
		}
	}
	return Result{Correct: true, Credit: 1}, nil
}

// TrueFalse grades a boolean payload.
type TrueFalse struct{}

func (TrueFalse) Grade(q domain.Question, payload json.RawMessage) (Result, error) {
	var submitted bool
	if err := json.Unmarshal(payload, &submitted); err != nil {
		return Result{}, fmt.Errorf("%w: expected boolean", domain.ErrInvalidAnswer)
	}
	want, ok := trueFalseKey(q)
	if !ok {
		return Result{}, fmt.Errorf("question %s has no boolean key", q.ID)
	}
	if submitted == want {
		return Result{Correct: true, Credit: 1}, nil
	}
	return Result{}, nil
}

// Essay answers always wait for manual grading.
type Essay struct{}

func (Essay) Grade(_ domain.Question, payload json.RawMessage) (Result, error) {
	var text string
	if err := json.Unmarshal(payload, &text); err != nil {
		return Result{}, fmt.Errorf("%w: expected text", domain.ErrInvalidAnswer)
	}
	return Result{NeedsReview: true}, nil
}

func decodeIDs(payload json.RawMessage) ([]string, error) {
	var many []string
	if err := json.Unmarshal(payload, &many); err == nil {
		return many, nil
	}
	var one string
	if err := json.Unmarshal(payload, &one); err == nil {
		return []string{one}, nil
	}
	return nil, fmt.Errorf("%w: expected option id or list of option ids", domain.ErrInvalidAnswer)
}

func correctOptionIDs(q domain.Question) []string {
	ids := make([]string, 0, len(q.Options))
	for _, opt := range q.Options {
		if opt.Correct {
			ids = append(ids, opt.ID)
		}
	}
	return ids
}

func trueFalseKey(q domain.Question) (bool, bool) {
	if q.Key.Boolean != nil {
		return *q.Key.Boolean, true
	}
	for _, opt := range q.Options {
		if !opt.Correct {
			continue
		}
		if v, err := strconv.ParseBool(opt.ID); err == nil {
			return v, true
		}
		if v, err := strconv.ParseBool(opt.Text); err == nil {
			return v, true
		}
	}
	return false, false
}

func sequenceKey(q domain.Question) []string {
	if len(q.Key.Sequence) > 0 {
		return q.Key.Sequence
	}
	seq := make([]string, 0, len(q.Options))
	for _, opt := range q.Options {
		seq = append(seq, opt.ID)
	}
	return seq
}
