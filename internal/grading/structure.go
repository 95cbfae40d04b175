package grading

import (
	"encoding/json"
	"fmt"

	"live-quiz-service/internal/domain"
)

// Matching grades a left -> right mapping. Each correct pair earns a share of the credit;
// the answer is correct only when every pair matches.
type Matching struct{}

func (Matching) Grade(q domain.Question, payload json.RawMessage) (Result, error) {
	var submitted map[string]string
	if err := json.Unmarshal(payload, &submitted); err != nil {
		return Result{}, fmt.Errorf("%w: expected object of left to right pairs", domain.ErrInvalidAnswer)
	}
	pairs := q.Key.Pairs
	if len(pairs) == 0 {
		return Result{}, fmt.Errorf("question %s has no pairs", q.ID)
	}

	matched := 0
	for _, pair := range pairs {
		if right, ok := submitted[pair.Left]; ok && right == pair.Right {
			matched++
		}
	}
	if matched == len(pairs) && len(submitted) == len(pairs) {
		return Result{Correct: true, Credit: 1}, nil
	}
	return Result{Credit: float64(matched) / float64(len(pairs))}, nil
}

// Ordering grades an exact sequence of item ids.
type Ordering struct{}

func (Ordering) Grade(q domain.Question, payload json.RawMessage) (Result, error) {
	var submitted []string
	if err := json.Unmarshal(payload, &submitted); err != nil {
		return Result{}, fmt.Errorf("%w: expected list of item ids", domain.ErrInvalidAnswer)
	}
	want := sequenceKey(q)
	if len(submitted) != len(want) {
		return Result{}, nil
	}
	for i := range want {
		if submitted[i] != want[i] {
			return Result{}, nil
		}
	}
	return Result{Correct: true, Credit: 1}, nil
}
