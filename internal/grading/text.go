package grading

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/agnivade/levenshtein"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
	"live-quiz-service/internal/domain"
)

// FillInBlank compares normalized text against the accepted answers, allowing up to
// Key.MaxTypos edits.
type FillInBlank struct{}

func (FillInBlank) Grade(q domain.Question, payload json.RawMessage) (Result, error) {
	var submitted string
	if err := json.Unmarshal(payload, &submitted); err != nil {
		return Result{}, fmt.Errorf("%w: expected text", domain.ErrInvalidAnswer)
	}
	got := normalize(submitted, q.Key.CaseSensitive)
	if got == "" {
		return Result{}, nil
	}
	for _, accepted := range acceptedTexts(q) {
		want := normalize(accepted, q.Key.CaseSensitive)
		if got == want {
			return Result{Correct: true, Credit: 1}, nil
		}
		if q.Key.MaxTypos > 0 && levenshtein.ComputeDistance(got, want) <= q.Key.MaxTypos {
			return Result{Correct: true, Credit: 1}, nil
		}
	}
	return Result{}, nil
}

func acceptedTexts(q domain.Question) []string {
	if len(q.Key.Accepted) > 0 {
		return q.Key.Accepted
	}
	texts := make([]string, 0, len(q.Options))
	for _, opt := range q.Options {
		if opt.Correct {
			texts = append(texts, opt.Text)
		}
	}
	return texts
}

// normalize applies NFKC, collapses whitespace and folds case unless caseSensitive.
func normalize(s string, caseSensitive bool) string {
	s = norm.NFKC.String(s)
	s = strings.Join(strings.Fields(s), " ")
	if !caseSensitive {
		s = cases.Fold().String(s)
	}
	return s
}
