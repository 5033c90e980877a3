package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/claude/repform/internal/models"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server     ServerConfig              `yaml:"server"`
	Database   DatabaseConfig            `yaml:"database"`
	Auth       AuthConfig                `yaml:"auth"`
	Tailscale  TailscaleConfig           `yaml:"tailscale"`
	Session    SessionConfig             `yaml:"session"`
	Smoothing  SmoothingConfig           `yaml:"smoothing"`
	Features   FeatureConfig             `yaml:"features"`
	Classifier ClassifierConfig          `yaml:"classifier"`
	Feedback   FeedbackConfig            `yaml:"feedback"`
	Exercises  map[string]ExerciseConfig `yaml:"exercises"`

	forced models.ExerciseKind
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"sslmode"`
}

type AuthConfig struct {
	APIKey string `yaml:"api_key"`
}

type TailscaleConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Hostname string `yaml:"hostname"`
	StateDir string `yaml:"state_dir"`
}

// SessionConfig holds per-session runner settings.
type SessionConfig struct {
	FPS float64 `yaml:"fps"`
	// Exercise forces the exercise kind and disables auto-detection when set.
	Exercise string `yaml:"exercise"`
}

// SmoothingConfig configures the landmark smoother.
type SmoothingConfig struct {
	Method        string  `yaml:"method"` // ema, moving_average or kalman
	Alpha         float64 `yaml:"alpha"`
	Window        int     `yaml:"window"`
	Q             float64 `yaml:"q"`
	R             float64 `yaml:"r"`
	MinConfidence float64 `yaml:"min_confidence"`
	MaxHoldFrames int     `yaml:"max_hold_frames"`
}

// FeatureConfig configures the feature extractor.
type FeatureConfig struct {
	MinConfidence   float64 `yaml:"min_confidence"`
	VelocityHistory int     `yaml:"velocity_history"`
	BaselineFrames  int     `yaml:"baseline_frames"`
}

// ClassifierConfig configures exercise auto-detection.
type ClassifierConfig struct {
	Window         int                        `yaml:"window"`
	MinWindow      int                        `yaml:"min_window"`
	MaxFrames      int                        `yaml:"max_frames"`
	LockConfidence float64                    `yaml:"lock_confidence"`
	Signatures     map[string][]SignatureTerm `yaml:"signatures"`
}

// SignatureTerm is one ramp-scored term of an exercise signature.
type SignatureTerm struct {
	Feature   string  `yaml:"feature"`
	Aggregate string  `yaml:"aggregate"` // mean, min, max, range or last
	Lo        float64 `yaml:"lo"`
	Hi        float64 `yaml:"hi"`
	Invert    bool    `yaml:"invert"`
}

// FeedbackConfig configures fault deduplication and delivery.
type FeedbackConfig struct {
	Granularity     string        `yaml:"granularity"` // phase or rep
	PraiseThreshold float64       `yaml:"praise_threshold"`
	PraiseLines     []string      `yaml:"praise_lines"`
	QueueSize       int           `yaml:"queue_size"`
	MinGap          time.Duration `yaml:"min_gap"`
	Webhook         string        `yaml:"webhook"`
}

// ExerciseConfig is the rule table of one exercise.
type ExerciseConfig struct {
	Phase PhaseConfig `yaml:"phase"`
	Form  FormProfile `yaml:"form"`
}

// PhaseConfig holds phase thresholds on the exercise's primary signal.
type PhaseConfig struct {
	Primary     string  `yaml:"primary"`
	Direction   string  `yaml:"direction"` // decreasing or increasing
	TopLabel    string  `yaml:"top_label"`
	TopExit     float64 `yaml:"top_exit"`
	BottomEnter float64 `yaml:"bottom_enter"`
	BottomExit  float64 `yaml:"bottom_exit"`
	TopEnter    float64 `yaml:"top_enter"`
	Debounce    int     `yaml:"debounce"`
	TopGuards   []Guard `yaml:"top_guards"`
}

// Guard is an extra condition a frame must meet to re-enter the top phase.
type Guard struct {
	Feature string  `yaml:"feature"`
	Op      string  `yaml:"op"`
	Value   float64 `yaml:"value"`
}

// FormProfile is the scoring rule set of one exercise.
type FormProfile struct {
	GoodFormCutoff float64 `yaml:"good_form_cutoff"`
	// PhaseWeights weights the in-rep phases. Top is not accepted: a rep
	// opens on leaving top and closes on returning to it.
	PhaseWeights map[string]float64 `yaml:"phase_weights"`
	Rules        []Rule             `yaml:"rules"`
}

// Rule is a fault predicate with its score deduction.
type Rule struct {
	Category  string   `yaml:"category"`
	Scope     string   `yaml:"scope"` // frame or rep
	Phases    []string `yaml:"phases"`
	Metric    string   `yaml:"metric"`
	Op        string   `yaml:"op"`
	Threshold *float64 `yaml:"threshold"`
	Weight    float64  `yaml:"weight"`
	Severity  string   `yaml:"severity"`
	Message   string   `yaml:"message"`
}

// DSN returns a PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	sslmode := d.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, sslmode)
}

// Load reads config from a YAML file, then applies environment variable overrides.
// Env vars use the prefix REPFORM_ and underscore-separated paths:
//
//	REPFORM_SERVER_HOST, REPFORM_SERVER_PORT,
//	REPFORM_DB_HOST, REPFORM_DB_PORT, REPFORM_DB_NAME,
//	REPFORM_DB_USER, REPFORM_DB_PASSWORD, REPFORM_DB_SSLMODE,
//	REPFORM_AUTH_API_KEY, REPFORM_SESSION_FPS, REPFORM_SESSION_EXERCISE
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML config bytes, applies env overrides and validates the
// engine sections. Unknown keys are rejected so a misspelled threshold cannot
// silently fall back to zero.
func Parse(data []byte) (*Config, error) {
	cfg := &Config{}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("REPFORM_SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("REPFORM_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("REPFORM_DB_HOST"); v != "" {
		cfg.Database.Host = v
	}
	if v := os.Getenv("REPFORM_DB_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Database.Port = port
		}
	}
	if v := os.Getenv("REPFORM_DB_NAME"); v != "" {
		cfg.Database.Name = v
	}
	if v := os.Getenv("REPFORM_DB_USER"); v != "" {
		cfg.Database.User = v
	}
	if v := os.Getenv("REPFORM_DB_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}
	if v := os.Getenv("REPFORM_DB_SSLMODE"); v != "" {
		cfg.Database.SSLMode = v
	}
	if v := os.Getenv("REPFORM_AUTH_API_KEY"); v != "" {
		cfg.Auth.APIKey = v
	}
	if v := os.Getenv("REPFORM_SESSION_FPS"); v != "" {
		if fps, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Session.FPS = fps
		}
	}
	if v := os.Getenv("REPFORM_SESSION_EXERCISE"); v != "" {
		cfg.Session.Exercise = v
	}
}

// ForcedExercise returns the configured exercise, or Unknown when the
// session should auto-detect.
func (c *Config) ForcedExercise() models.ExerciseKind {
	return c.forced
}

// Exercise returns the rule table for kind.
func (c *Config) Exercise(kind models.ExerciseKind) (ExerciseConfig, bool) {
	ex, ok := c.Exercises[string(kind)]
	return ex, ok
}

// ValidateServer checks the sections only the HTTP server needs.
func (c *Config) ValidateServer() error {
	if c.Server.Port == 0 {
		return fmt.Errorf("server.port is required")
	}
	if c.Database.Host == "" {
		return fmt.Errorf("database.host is required")
	}
	if c.Database.Port == 0 {
		return fmt.Errorf("database.port is required")
	}
	if c.Database.Name == "" {
		return fmt.Errorf("database.name is required")
	}
	if c.Database.User == "" {
		return fmt.Errorf("database.user is required")
	}
	if c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key is required")
	}
	if c.Tailscale.Enabled && c.Tailscale.Hostname == "" {
		return fmt.Errorf("tailscale.hostname is required when tailscale is enabled")
	}
	return nil
}

// ErrInvalidConfiguration matches every validation failure via errors.Is.
var ErrInvalidConfiguration = errors.New("invalid configuration")

// FieldError describes one invalid config field.
type FieldError struct {
	Field   string
	Problem string
}

func (e *FieldError) Error() string {
	return e.Field + ": " + e.Problem
}

// ValidationError collects every field problem found in one pass.
type ValidationError struct {
	Fields []*FieldError
}

func (e *ValidationError) Error() string {
	var b bytes.Buffer
	b.WriteString(ErrInvalidConfiguration.Error())
	for i, f := range e.Fields {
		if i == 0 {
			b.WriteString(": ")
		} else {
			b.WriteString("; ")
		}
		b.WriteString(f.Error())
	}
	return b.String()
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidConfiguration
}
