package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/comigor/roundtable/internal/apperr"
)

// HumanRole is the sender used for messages typed by the person who set the goal.
const HumanRole = "user"

// Match modes for a phrase set.
const (
	MatchAny = "any"
	MatchAll = "all"
)

// Phrase set names consulted by the termination detector.
const (
	PhraseSetFeedback         = "feedback"
	PhraseSetClosingQuestion  = "closing_question"
	PhraseSetAgreement        = "agreement"
	PhraseSetClosingStatement = "closing_statement"
)

// Config holds the application configuration
type Config struct {
	LogLevel     string            `mapstructure:"log_level"`
	LLM          LLMConfig         `mapstructure:"llm"`
	Server       ServerConfig      `mapstructure:"server"`
	Agents       []AgentConfig     `mapstructure:"agents"`
	ReviewerRole string            `mapstructure:"reviewer_role"`
	Limits       LimitsConfig      `mapstructure:"limits"`
	Termination  TerminationConfig `mapstructure:"termination"`
	Chunking     ChunkingConfig    `mapstructure:"chunking"`
	Pacing       PacingConfig      `mapstructure:"pacing"`
	History      HistoryConfig     `mapstructure:"history"`
	Redis        RedisConfig       `mapstructure:"redis"`
}

// LLMConfig holds the LLM configuration
type LLMConfig struct {
	BaseURL     string  `mapstructure:"base_url"`
	APIKey      string  `mapstructure:"api_key"`
	Model       string  `mapstructure:"model"`
	Temperature float32 `mapstructure:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens"`
}

// ServerConfig holds the server configuration
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port string `mapstructure:"port"`
}

// AgentConfig is one roster entry. Order in Config.Agents is the turn order.
type AgentConfig struct {
	Role    string `mapstructure:"role"`
	Persona string `mapstructure:"persona"`
}

// LimitsConfig bounds resource use of a single run.
type LimitsConfig struct {
	MaxTurns                    int  `mapstructure:"max_turns"`
	MaxMessages                 int  `mapstructure:"max_messages"`
	MinMessageLength            int  `mapstructure:"min_message_length"`
	ExemptReviewerFromMinLength bool `mapstructure:"exempt_reviewer_from_min_length"`
}

// TerminationConfig tunes the lexical convergence check.
type TerminationConfig struct {
	MinMessages int                        `mapstructure:"min_messages"`
	MinTurns    int                        `mapstructure:"min_turns"`
	Window      int                        `mapstructure:"window"`
	PhraseSets  map[string]PhraseSetConfig `mapstructure:"phrase_sets"`
}

// PhraseSetConfig is a named list of phrases and how many of them must occur.
type PhraseSetConfig struct {
	Match   string   `mapstructure:"match"`
	Phrases []string `mapstructure:"phrases"`
}

// ChunkingConfig controls how streamed text is cut into messages.
type ChunkingConfig struct {
	FenceMarker string `mapstructure:"fence_marker"`
	Boundaries  string `mapstructure:"boundaries"`
}

// PacingConfig is the randomized delay applied before each emitted message.
type PacingConfig struct {
	Min time.Duration `mapstructure:"min"`
	Max time.Duration `mapstructure:"max"`
}

// HistoryConfig enables the write-only sqlite transcript archive.
type HistoryConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// RedisConfig enables publishing conversation events to a redis stream.
type RedisConfig struct {
	URL    string `mapstructure:"url"`
	Stream string `mapstructure:"stream"`
}

// DefaultAgents is the roster used when the configuration does not name one.
func DefaultAgents() []AgentConfig {
	return []AgentConfig{
		{
			Role: "researcher",
			Persona: "You are the Research agent. Find and extract the information relevant to the goal. " +
				"Keep it focused and short, highlight the key concepts. You are writing in a group chat: " +
				"no markdown, casual tone, talk to the other agents directly.",
		},
		{
			Role: "assembler",
			Persona: "You are the Assembly agent. Take what the researcher found and compile it into a clear, " +
				"well-structured answer, with code examples when they help. You are writing in a group chat: " +
				"keep it short, casual, and talk to the other agents directly.",
		},
		{
			Role: "critic",
			Persona: "You are the Critic agent. Review the assembled answer for technical accuracy, completeness " +
				"and clarity, and give specific feedback when something needs to change. When everyone agrees the " +
				"answer is done, ask if anything else is needed and wrap up. You are writing in a group chat: " +
				"keep it short, casual, and talk to the other agents directly.",
		},
	}
}

// DefaultPhraseSets is the rule table used when the configuration does not override it.
func DefaultPhraseSets() map[string]PhraseSetConfig {
	return map[string]PhraseSetConfig{
		PhraseSetFeedback: {Match: MatchAny, Phrases: []string{
			"however", "should be improved", "needs to", "is missing", "could be better", "i suggest", "let's fix",
		}},
		PhraseSetClosingQuestion: {Match: MatchAll, Phrases: []string{"anything else", "?"}},
		PhraseSetAgreement: {Match: MatchAny, Phrases: []string{
			"i agree", "agreed", "looks good", "sounds good", "lgtm", "nothing to add",
		}},
		PhraseSetClosingStatement: {Match: MatchAny, Phrases: []string{
			"great work", "we're done", "we are done", "wrapping up", "that's a wrap",
		}},
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "info")
	v.SetDefault("llm.base_url", "https://api.openai.com/v1")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.model", "gpt-4o-mini")
	v.SetDefault("llm.temperature", 0.7)
	v.SetDefault("llm.max_tokens", 1000)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", "8080")
	v.SetDefault("reviewer_role", "critic")
	v.SetDefault("limits.max_turns", 5)
	v.SetDefault("limits.max_messages", 40)
	v.SetDefault("limits.min_message_length", 40)
	v.SetDefault("limits.exempt_reviewer_from_min_length", false)
	v.SetDefault("termination.min_messages", 15)
	v.SetDefault("termination.min_turns", 2)
	v.SetDefault("termination.window", 6)
	v.SetDefault("chunking.fence_marker", "```")
	v.SetDefault("chunking.boundaries", "\n.?")
	v.SetDefault("pacing.min", "300ms")
	v.SetDefault("pacing.max", "1200ms")
	v.SetDefault("history.enabled", false)
	v.SetDefault("history.path", "history.db")
	v.SetDefault("redis.url", "")
	v.SetDefault("redis.stream", "roundtable:events")
}

// Load loads the configuration from CONFIG_PATH, or from config.yaml in the
// working directory when it exists. A missing default file is not an error.
func Load() (*Config, error) {
	return LoadFile(os.Getenv("CONFIG_PATH"))
}

// LoadFile loads the configuration from path. An empty path searches for
// config.yaml in the working directory.
func LoadFile(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, apperr.Configuration("config.Load", fmt.Errorf("load .env: %w", err))
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("ROUNDTABLE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("llm.api_key", "ROUNDTABLE_LLM_API_KEY", "OPENAI_API_KEY"); err != nil {
		return nil, apperr.Configuration("config.Load", err)
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, apperr.Configuration("config.Load", fmt.Errorf("read config: %w", err))
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, apperr.Configuration("config.Load", fmt.Errorf("decode config: %w", err))
	}
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the configuration used when no file or environment overrides exist.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	_ = v.Unmarshal(&cfg)
	cfg.applyDefaults()
	return &cfg
}

func (c *Config) applyDefaults() {
	if len(c.Agents) == 0 {
		c.Agents = DefaultAgents()
	}
	defaults := DefaultPhraseSets()
	if c.Termination.PhraseSets == nil {
		c.Termination.PhraseSets = defaults
	}
	for name, set := range defaults {
		if _, ok := c.Termination.PhraseSets[name]; !ok {
			c.Termination.PhraseSets[name] = set
		}
	}
	for name, set := range c.Termination.PhraseSets {
		if set.Match == "" {
			set.Match = MatchAny
			c.Termination.PhraseSets[name] = set
		}
	}
}

// Roles returns the configured turn order.
func (c *Config) Roles() []string {
	roles := make([]string, len(c.Agents))
	for i, a := range c.Agents {
		roles[i] = a.Role
	}
	return roles
}

// Validate reports setup problems as configuration errors.
func (c *Config) Validate() error {
	fail := func(format string, args ...any) error {
		return apperr.Configuration("config.Validate", fmt.Errorf(format, args...))
	}

	if len(c.Agents) == 0 {
		return fail("agents: roster is empty")
	}
	seen := make(map[string]bool, len(c.Agents))
	for i, a := range c.Agents {
		if strings.TrimSpace(a.Role) == "" {
			return fail("agents[%d]: role is empty", i)
		}
		if a.Role == HumanRole {
			return fail("agents[%d]: role %q is reserved for the human", i, a.Role)
		}
		if seen[a.Role] {
			return fail("agents[%d]: duplicate role %q", i, a.Role)
		}
		seen[a.Role] = true
	}
	if !seen[c.ReviewerRole] {
		return fail("reviewer_role %q is not in the roster", c.ReviewerRole)
	}

	if c.Limits.MaxTurns <= 0 {
		return fail("limits.max_turns must be positive, got %d", c.Limits.MaxTurns)
	}
	if c.Limits.MaxMessages <= 0 {
		return fail("limits.max_messages must be positive, got %d", c.Limits.MaxMessages)
	}
	if c.Limits.MinMessageLength < 0 {
		return fail("limits.min_message_length must not be negative, got %d", c.Limits.MinMessageLength)
	}
	if c.Termination.Window <= 0 {
		return fail("termination.window must be positive, got %d", c.Termination.Window)
	}
	for name, set := range c.Termination.PhraseSets {
		if set.Match != MatchAny && set.Match != MatchAll {
			return fail("termination.phrase_sets.%s: unknown match mode %q", name, set.Match)
		}
	}
	if c.Chunking.FenceMarker == "" {
		return fail("chunking.fence_marker is empty")
	}
	if c.Pacing.Min < 0 || c.Pacing.Max < c.Pacing.Min {
		return fail("pacing: invalid range [%s, %s]", c.Pacing.Min, c.Pacing.Max)
	}
	return nil
}
