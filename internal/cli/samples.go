package cli

import "live-quiz-service/internal/domain"

// sampleQuizzes is the content served when no quiz database is configured.
func sampleQuizzes() []domain.Quiz {
	yes := true
	return []domain.Quiz{
		{
			ID:    "quiz-1",
			Title: "Warm-up",
			Questions: []domain.Question{
				{
					ID:     "q1",
					Type:   domain.QuestionSingleChoice,
					Prompt: "What is 2 + 2?",
					Options: []domain.Option{
						{ID: "o1", Text: "3"},
						{ID: "o2", Text: "4", Correct: true},
						{ID: "o3", Text: "5"},
					},
					TimeLimit: 20,
				},
				{
					ID:        "q2",
					Type:      domain.QuestionTrueFalse,
					Prompt:    "The Pacific is the largest ocean.",
					Key:       domain.AnswerKey{Boolean: &yes},
					TimeLimit: 15,
				},
				{
					ID:     "q3",
					Type:   domain.QuestionMultipleChoice,
					Prompt: "Which of these are prime?",
					Options: []domain.Option{
						{ID: "o1", Text: "2", Correct: true},
						{ID: "o2", Text: "9"},
						{ID: "o3", Text: "11", Correct: true},
					},
					TimeLimit: 20,
				},
				{
					ID:        "q4",
					Type:      domain.QuestionFillInBlank,
					Prompt:    "The capital of Australia is ____.",
					Key:       domain.AnswerKey{Accepted: []string{"Canberra"}, MaxTypos: 1},
					TimeLimit: 20,
				},
				{
					ID:     "q5",
					Type:   domain.QuestionOrdering,
					Prompt: "Order these planets from the Sun outwards.",
					Options: []domain.Option{
						{ID: "mars", Text: "Mars"},
						{ID: "mercury", Text: "Mercury"},
						{ID: "earth", Text: "Earth"},
					},
					Key:       domain.AnswerKey{Sequence: []string{"mercury", "earth", "mars"}},
					TimeLimit: 25,
					Points:    1500,
				},
			},
		},
	}
}
