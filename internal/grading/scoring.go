package grading

import (
	"math"
	"time"

	"live-quiz-service/internal/domain"
)

// Scorer turns grading credit and response time into points.
//
// points = round(base * credit * (1 - (1 - MinSpeedFactor) * t / limit))
//
// t is clamped to [0, limit], so an instant answer earns the full base and an answer on the
// buzzer earns MinSpeedFactor of it.
type Scorer struct {
	BasePoints     int
	MinSpeedFactor float64
}

// DefaultScorer is used when no game configuration overrides it.
var DefaultScorer = Scorer{BasePoints: 1000, MinSpeedFactor: 0.5}

// Points computes the award for one graded answer.
func (s Scorer) Points(q domain.Question, credit float64, response time.Duration) int {
	if credit <= 0 {
		return 0
	}
	if credit > 1 {
		credit = 1
	}
	base := q.Points
	if base <= 0 {
		base = s.BasePoints
	}
	limit := time.Duration(q.TimeLimit) * time.Second
	factor := 1.0
	if limit > 0 {
		floor := s.MinSpeedFactor
		if floor < 0 || floor > 1 {
			floor = DefaultScorer.MinSpeedFactor
		}
		t := response
		if t < 0 {
			t = 0
		}
		if t > limit {
			t = limit
		}
		factor = 1 - (1-floor)*float64(t)/float64(limit)
	}
	return int(math.Round(float64(base) * credit * factor))
}
