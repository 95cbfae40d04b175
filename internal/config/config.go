package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
	"live-quiz-service/internal/app"
	"live-quiz-service/internal/grading"
)

type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		TTL      string `yaml:"ttl"`
		// Broadcast switches event fan-out to Redis pub/sub so several instances share rooms.
		Broadcast     bool   `yaml:"broadcast"`
		ChannelPrefix string `yaml:"channel_prefix"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Quiz struct {
		TTL string `yaml:"ttl"`
	} `yaml:"quiz"`
	Auth struct {
		JWTSecret string `yaml:"jwt_secret"`
		TokenTTL  string `yaml:"token_ttl"`
	} `yaml:"auth"`
	Game GameConfig `yaml:"game"`
}

// GameConfig holds the game rules. Unset values fall back to app.DefaultSettings.
type GameConfig struct {
	DefaultCapacity            int     `yaml:"default_capacity"`
	AllowAnonymous             *bool   `yaml:"allow_anonymous"`
	Countdown                  string  `yaml:"countdown"`
	RevealWindow               string  `yaml:"reveal_window"`
	PauseTimeout               string  `yaml:"pause_timeout"`
	GuestTokenTTL              string  `yaml:"guest_token_ttl"`
	AnswerGrace                string  `yaml:"answer_grace"`
	SingleActiveSessionPerHost bool    `yaml:"single_active_session_per_host"`
	RandomizeQuestions         bool    `yaml:"randomize_questions"`
	BasePoints                 int     `yaml:"base_points"`
	MinSpeedFactor             float64 `yaml:"min_speed_factor"`
	LeaderboardCacheTTL        string  `yaml:"leaderboard_cache_ttl"`
}

// Load reads YAML config from path. A missing file yields the defaults.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Settings converts the game block into engine settings.
func (g GameConfig) Settings() app.Settings {
	defaults := app.DefaultSettings()
	s := defaults
	if g.DefaultCapacity > 0 {
		s.DefaultCapacity = g.DefaultCapacity
	}
	if g.AllowAnonymous != nil {
		s.AllowAnonymous = *g.AllowAnonymous
	}
	s.Countdown = TTLDuration(g.Countdown, defaults.Countdown)
	s.RevealWindow = TTLDuration(g.RevealWindow, defaults.RevealWindow)
	s.PauseTimeout = TTLDuration(g.PauseTimeout, defaults.PauseTimeout)
	s.GuestTokenTTL = TTLDuration(g.GuestTokenTTL, defaults.GuestTokenTTL)
	s.AnswerGrace = TTLDuration(g.AnswerGrace, defaults.AnswerGrace)
	s.SingleActiveSessionPerHost = g.SingleActiveSessionPerHost
	s.RandomizeQuestions = g.RandomizeQuestions
	return s
}

// Scorer returns the points curve with configured overrides.
func (g GameConfig) Scorer() grading.Scorer {
	s := grading.DefaultScorer
	if g.BasePoints > 0 {
		s.BasePoints = g.BasePoints
	}
	if g.MinSpeedFactor > 0 && g.MinSpeedFactor <= 1 {
		s.MinSpeedFactor = g.MinSpeedFactor
	}
	return s
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
