package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// OrchestratorSettings tunes the orchestration control loop
type OrchestratorSettings struct {
	// RepetitionLimit is how many identical consecutive decisions trip the circuit breaker
	RepetitionLimit int `yaml:"repetition_limit"`

	// ErrorThreshold is how many consecutive failed iterations enter safe mode
	ErrorThreshold int `yaml:"error_threshold"`

	// IterationDelay is the pause after every successful iteration
	IterationDelay time.Duration `yaml:"iteration_delay"`

	// RetryDelay is the pause after a failed consultation or a skipped cycle
	RetryDelay time.Duration `yaml:"retry_delay"`

	// WaitDelay is how long a wait decision sleeps
	WaitDelay time.Duration `yaml:"wait_delay"`

	// BusyDelay is the pause when the chosen role already has an active session
	BusyDelay time.Duration `yaml:"busy_delay"`

	// AskUserDelay is the pause after surfacing an ask_user decision
	AskUserDelay time.Duration `yaml:"ask_user_delay"`

	// ErrorBackoff is the pause after a failed iteration below the error threshold
	ErrorBackoff time.Duration `yaml:"error_backoff"`

	// SafeModeCooldown is the pause after the operator declines to leave safe mode
	SafeModeCooldown time.Duration `yaml:"safe_mode_cooldown"`

	// RequireApproval enables the human approval gate before run_agent and wait
	RequireApproval bool `yaml:"require_approval"`
}

// Settings are the optional ada.yaml runtime settings
type Settings struct {
	// LogLevel sets the console verbosity (trace, debug, info, warn, error)
	LogLevel string `yaml:"log_level"`

	// StatusRetries is the retry budget for status document reads and writes
	StatusRetries int `yaml:"status_retries"`

	// ZombieMaxAge is the age after which a session without a pid is reaped
	ZombieMaxAge time.Duration `yaml:"zombie_max_age"`

	// LockTimeout is when an advisory lock in the status document expires
	LockTimeout time.Duration `yaml:"lock_timeout"`

	// Orchestrator tunes the control loop
	Orchestrator OrchestratorSettings `yaml:"orchestrator"`
}

// DefaultSettings returns Settings with the stock values
func DefaultSettings() *Settings {
	return &Settings{
		LogLevel:      "info",
		StatusRetries: 3,
		ZombieMaxAge:  60 * time.Minute,
		LockTimeout:   30 * time.Second,
		Orchestrator: OrchestratorSettings{
			RepetitionLimit:  3,
			ErrorThreshold:   5,
			IterationDelay:   2 * time.Second,
			RetryDelay:       5 * time.Second,
			WaitDelay:        10 * time.Second,
			BusyDelay:        10 * time.Second,
			AskUserDelay:     5 * time.Second,
			ErrorBackoff:     5 * time.Second,
			SafeModeCooldown: 30 * time.Second,
			RequireApproval:  true,
		},
	}
}

// LoadSettings loads ada.yaml from path, merged over the defaults.
// A missing file yields the defaults without error; a malformed one is an error.
func LoadSettings(path string) (*Settings, error) {
	cfg := DefaultSettings()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read settings file: %w", err)
	}

	// Durations are read as strings so "90s" and "2m" work
	type yamlOrchestrator struct {
		RepetitionLimit  int    `yaml:"repetition_limit"`
		ErrorThreshold   int    `yaml:"error_threshold"`
		IterationDelay   string `yaml:"iteration_delay"`
		RetryDelay       string `yaml:"retry_delay"`
		WaitDelay        string `yaml:"wait_delay"`
		BusyDelay        string `yaml:"busy_delay"`
		AskUserDelay     string `yaml:"ask_user_delay"`
		ErrorBackoff     string `yaml:"error_backoff"`
		SafeModeCooldown string `yaml:"safe_mode_cooldown"`
		RequireApproval  *bool  `yaml:"require_approval"`
	}
	type yamlSettings struct {
		LogLevel      string           `yaml:"log_level"`
		StatusRetries int              `yaml:"status_retries"`
		ZombieMaxAge  string           `yaml:"zombie_max_age"`
		LockTimeout   string           `yaml:"lock_timeout"`
		Orchestrator  yamlOrchestrator `yaml:"orchestrator"`
	}

	var raw yamlSettings
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse settings file: %w", err)
	}

	if raw.LogLevel != "" {
		cfg.LogLevel = raw.LogLevel
	}
	if raw.StatusRetries != 0 {
		cfg.StatusRetries = raw.StatusRetries
	}

	durations := []struct {
		name  string
		value string
		dst   *time.Duration
	}{
		{"zombie_max_age", raw.ZombieMaxAge, &cfg.ZombieMaxAge},
		{"lock_timeout", raw.LockTimeout, &cfg.LockTimeout},
		{"orchestrator.iteration_delay", raw.Orchestrator.IterationDelay, &cfg.Orchestrator.IterationDelay},
		{"orchestrator.retry_delay", raw.Orchestrator.RetryDelay, &cfg.Orchestrator.RetryDelay},
		{"orchestrator.wait_delay", raw.Orchestrator.WaitDelay, &cfg.Orchestrator.WaitDelay},
		{"orchestrator.busy_delay", raw.Orchestrator.BusyDelay, &cfg.Orchestrator.BusyDelay},
		{"orchestrator.ask_user_delay", raw.Orchestrator.AskUserDelay, &cfg.Orchestrator.AskUserDelay},
		{"orchestrator.error_backoff", raw.Orchestrator.ErrorBackoff, &cfg.Orchestrator.ErrorBackoff},
		{"orchestrator.safe_mode_cooldown", raw.Orchestrator.SafeModeCooldown, &cfg.Orchestrator.SafeModeCooldown},
	}
	for _, d := range durations {
		if d.value == "" {
			continue
		}
		parsed, err := time.ParseDuration(d.value)
		if err != nil {
			return nil, fmt.Errorf("invalid %s format %q: %w", d.name, d.value, err)
		}
		*d.dst = parsed
	}

	if raw.Orchestrator.RepetitionLimit != 0 {
		cfg.Orchestrator.RepetitionLimit = raw.Orchestrator.RepetitionLimit
	}
	if raw.Orchestrator.ErrorThreshold != 0 {
		cfg.Orchestrator.ErrorThreshold = raw.Orchestrator.ErrorThreshold
	}
	// require_approval may be explicitly switched off
	if raw.Orchestrator.RequireApproval != nil {
		cfg.Orchestrator.RequireApproval = *raw.Orchestrator.RequireApproval
	}

	return cfg, nil
}

// MergeWithFlags applies CLI flag overrides. Nil values are ignored.
func (s *Settings) MergeWithFlags(logLevel *string, requireApproval *bool, zombieMaxAge *time.Duration) {
	if logLevel != nil {
		s.LogLevel = *logLevel
	}
	if requireApproval != nil {
		s.Orchestrator.RequireApproval = *requireApproval
	}
	if zombieMaxAge != nil {
		s.ZombieMaxAge = *zombieMaxAge
	}
}

// Validate validates the settings values
func (s *Settings) Validate() error {
	validLevels := map[string]bool{
		"trace": true,
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[s.LogLevel] {
		return fmt.Errorf("invalid log_level %q, must be one of: trace, debug, info, warn, error", s.LogLevel)
	}

	if s.StatusRetries < 1 {
		return fmt.Errorf("status_retries must be >= 1, got %d", s.StatusRetries)
	}
	if s.ZombieMaxAge <= 0 {
		return fmt.Errorf("zombie_max_age must be > 0, got %v", s.ZombieMaxAge)
	}
	if s.LockTimeout <= 0 {
		return fmt.Errorf("lock_timeout must be > 0, got %v", s.LockTimeout)
	}

	o := s.Orchestrator
	if o.RepetitionLimit < 1 {
		return fmt.Errorf("orchestrator.repetition_limit must be >= 1, got %d", o.RepetitionLimit)
	}
	if o.ErrorThreshold < 1 {
		return fmt.Errorf("orchestrator.error_threshold must be >= 1, got %d", o.ErrorThreshold)
	}
	for name, d := range map[string]time.Duration{
		"iteration_delay":    o.IterationDelay,
		"retry_delay":        o.RetryDelay,
		"wait_delay":         o.WaitDelay,
		"busy_delay":         o.BusyDelay,
		"ask_user_delay":     o.AskUserDelay,
		"error_backoff":      o.ErrorBackoff,
		"safe_mode_cooldown": o.SafeModeCooldown,
	} {
		if d < 0 {
			return fmt.Errorf("orchestrator.%s must be >= 0, got %v", name, d)
		}
	}

	return nil
}
