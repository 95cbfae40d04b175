package domain

// QuestionType tags which grading variant applies to a question.
type QuestionType string

const (
	QuestionSingleChoice   QuestionType = "SINGLE_CHOICE"
	QuestionMultipleChoice QuestionType = "MULTIPLE_CHOICE"
	QuestionTrueFalse      QuestionType = "TRUE_FALSE"
	QuestionFillInBlank    QuestionType = "FILL_IN_THE_BLANK"
	QuestionMatching       QuestionType = "MATCHING"
	QuestionOrdering       QuestionType = "ORDERING"
	QuestionEssay          QuestionType = "ESSAY"
)

// Option represents a possible answer for a question.
type Option struct {
	ID      string `json:"id"`
	Text    string `json:"text"`
	Correct bool   `json:"correct"`
}

// MatchPair links a left-hand item to its right-hand counterpart.
type MatchPair struct {
	Left  string `json:"left"`
	Right string `json:"right"`
}

// AnswerKey holds the correct-answer specification for the non-choice variants.
// Choice questions take their key from Option.Correct.
type AnswerKey struct {
	Boolean       *bool       `json:"boolean,omitempty"`
	Accepted      []string    `json:"accepted,omitempty"`
	CaseSensitive bool        `json:"caseSensitive,omitempty"`
	MaxTypos      int         `json:"maxTypos,omitempty"`
	Pairs         []MatchPair `json:"pairs,omitempty"`
	Sequence      []string    `json:"sequence,omitempty"`
}

// Question is one item of a quiz, including what counts as correct.
type Question struct {
	ID     string       `json:"id"`
	Type   QuestionType `json:"type"`
	Prompt string       `json:"prompt"`
	// Options are shown to players for choice, matching and ordering questions.
	Options []Option  `json:"options,omitempty"`
	Key     AnswerKey `json:"key"`
	// TimeLimit is in seconds.
	TimeLimit int `json:"timeLimit"`
	Points    int `json:"points"` // falls back to the configured base when zero
}

// Quiz is an ordered collection of questions.
type Quiz struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Questions []Question `json:"questions"`
}

// QuestionByID finds a question by id.
func (q Quiz) QuestionByID(id string) (Question, bool) {
	for _, question := range q.Questions {
		if question.ID == id {
			return question, true
		}
	}
	return Question{}, false
}

// PublicQuestion is what players see while a question is open: no correctness data.
type PublicQuestion struct {
	ID        string       `json:"id"`
	Type      QuestionType `json:"type"`
	Prompt    string       `json:"prompt"`
	Options   []PublicItem `json:"options,omitempty"`
	Left      []string     `json:"left,omitempty"`
	TimeLimit int          `json:"timeLimit"`
	Points    int          `json:"points"`
}

// PublicItem is an option without its correctness flag.
type PublicItem struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// Public strips the answer key from a question.
func (q Question) Public() PublicQuestion {
	pub := PublicQuestion{
		ID:        q.ID,
		Type:      q.Type,
		Prompt:    q.Prompt,
		TimeLimit: q.TimeLimit,
		Points:    q.Points,
	}
	for _, opt := range q.Options {
		pub.Options = append(pub.Options, PublicItem{ID: opt.ID, Text: opt.Text})
	}
	for _, pair := range q.Key.Pairs {
		pub.Left = append(pub.Left, pair.Left)
	}
	return pub
}
