// Package persona defines the YAML persona file that configures Hanako's
// behavior: the system prompt, model names, token budgeting, and every
// canned user-facing reply. Policy (budgets, quotas) lives next to voice
// (prompt, replies) because the operator tunes them together.
package persona

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults applied by Parse when the file leaves a field empty.
const (
	DefaultChatModel          = "gpt-4o-mini"
	DefaultTranscriptionModel = "whisper-1"
	DefaultEmbeddingModel     = "text-embedding-3-small"
	DefaultContextWindow      = 128000
	DefaultAnswerReserve      = 4096
	DefaultQuietPeriod        = 4 * time.Second
)

// Persona is the root type of the persona file.
type Persona struct {
	// Name is a display name used in logs.
	Name string `yaml:"name"`

	// SystemPrompt is the lead message of every completion.
	SystemPrompt string `yaml:"systemPrompt"`

	// Models selects which models serve each concern.
	Models Models `yaml:"models,omitempty"`

	// Budget controls token accounting for the context window.
	Budget Budget `yaml:"budget,omitempty"`

	// QuietPeriod is how long a sender must stay silent before their
	// buffered fragments dispatch as one turn.
	QuietPeriod Duration `yaml:"quietPeriod,omitempty"`

	// TrialTokenQuota is the total tokens a keyless, non-premium user may
	// consume. 0 disables the trial.
	TrialTokenQuota int64 `yaml:"trialTokenQuota,omitempty"`

	// Memory toggles long-term-memory augmentation.
	Memory Memory `yaml:"memory,omitempty"`

	// Replies holds every canned user-facing message.
	Replies Replies `yaml:"replies"`
}

// Duration is a time.Duration that unmarshals from YAML strings like "4s".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return fmt.Errorf("duration must be a string like \"4s\": %w", err)
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Models names the models used for each concern.
type Models struct {
	Chat          string `yaml:"chat,omitempty"`
	Transcription string `yaml:"transcription,omitempty"`
	Embedding     string `yaml:"embedding,omitempty"`
}

// Budget controls how the context window is divided.
type Budget struct {
	// ContextWindow is the model's total context size in tokens.
	ContextWindow int `yaml:"contextWindow,omitempty"`

	// AnswerReserve is held back from the window for the model's answer.
	AnswerReserve int `yaml:"answerReserve,omitempty"`
}

// Memory configures long-term-memory augmentation.
type Memory struct {
	Enabled bool `yaml:"enabled,omitempty"`
}

// Replies holds the pre-configured user-facing messages. Every message a
// user ever sees outside of model output comes from here.
type Replies struct {
	Greeting        string `yaml:"greeting"`
	Help            string `yaml:"help"`
	ResetDone       string `yaml:"resetDone"`
	TrialEnded      string `yaml:"trialEnded"`
	TrialDisabled   string `yaml:"trialDisabled"`
	GenericFailure  string `yaml:"genericFailure"`
	UnsupportedType string `yaml:"unsupportedType"`
	KeySaved        string `yaml:"keySaved"`
}

// Load reads and parses a persona file from disk.
func Load(path string) (*Persona, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("persona read: %w", err)
	}
	return Parse(data)
}

// Parse decodes a persona YAML document, applies defaults and validates it.
// It is the canonical entry point for loading personas.
func Parse(data []byte) (*Persona, error) {
	var p Persona
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("persona parse: %w", err)
	}
	applyDefaults(&p)
	if err := Validate(&p); err != nil {
		return nil, err
	}
	return &p, nil
}

func applyDefaults(p *Persona) {
	if p.Models.Chat == "" {
		p.Models.Chat = DefaultChatModel
	}
	if p.Models.Transcription == "" {
		p.Models.Transcription = DefaultTranscriptionModel
	}
	if p.Models.Embedding == "" {
		p.Models.Embedding = DefaultEmbeddingModel
	}
	if p.Budget.ContextWindow == 0 {
		p.Budget.ContextWindow = DefaultContextWindow
	}
	if p.Budget.AnswerReserve == 0 {
		p.Budget.AnswerReserve = DefaultAnswerReserve
	}
	if p.QuietPeriod == 0 {
		p.QuietPeriod = Duration(DefaultQuietPeriod)
	}
	if p.Replies.GenericFailure == "" {
		p.Replies.GenericFailure = "Something went wrong on my side. Please try again in a moment."
	}
	if p.Replies.UnsupportedType == "" {
		p.Replies.UnsupportedType = "Sorry, I can't handle that kind of message yet."
	}
	if p.Replies.KeySaved == "" {
		p.Replies.KeySaved = "Got it. I'll use your key from now on."
	}
}

// Validate checks a Persona for structural correctness. It returns the first
// validation error encountered, or nil if the persona is valid.
func Validate(p *Persona) error {
	if p == nil {
		return fmt.Errorf("persona must not be nil")
	}

	if strings.TrimSpace(p.SystemPrompt) == "" {
		return fmt.Errorf("systemPrompt must not be empty")
	}

	if p.Budget.ContextWindow <= 0 {
		return fmt.Errorf("budget: contextWindow must be > 0")
	}
	if p.Budget.AnswerReserve < 0 {
		return fmt.Errorf("budget: answerReserve must be >= 0")
	}
	if p.Budget.AnswerReserve >= p.Budget.ContextWindow {
		return fmt.Errorf("budget: answerReserve %d must be smaller than contextWindow %d",
			p.Budget.AnswerReserve, p.Budget.ContextWindow)
	}

	if p.QuietPeriod < 0 {
		return fmt.Errorf("quietPeriod must be >= 0")
	}
	if p.TrialTokenQuota < 0 {
		return fmt.Errorf("trialTokenQuota must be >= 0")
	}

	if strings.TrimSpace(p.Replies.Greeting) == "" {
		return fmt.Errorf("replies: greeting must not be empty")
	}
	if strings.TrimSpace(p.Replies.Help) == "" {
		return fmt.Errorf("replies: help must not be empty")
	}
	if strings.TrimSpace(p.Replies.ResetDone) == "" {
		return fmt.Errorf("replies: resetDone must not be empty")
	}
	if p.TrialTokenQuota > 0 && strings.TrimSpace(p.Replies.TrialEnded) == "" {
		return fmt.Errorf("replies: trialEnded must not be empty when a trial quota is set")
	}
	if p.TrialTokenQuota == 0 && strings.TrimSpace(p.Replies.TrialDisabled) == "" {
		return fmt.Errorf("replies: trialDisabled must not be empty when the trial is disabled")
	}

	return nil
}

// TokenBudget returns the token allowance available for prompt context. The
// lead prompt itself still has to fit inside it; promptCost lets callers
// verify the whole construction is viable at startup.
func (p *Persona) TokenBudget() int {
	return p.Budget.ContextWindow - p.Budget.AnswerReserve
}

// CheckBudget fails when the system prompt alone (promptCost tokens) leaves
// no room for conversation inside the budget. Called once at startup so a
// bad configuration stops the process instead of failing every turn.
func (p *Persona) CheckBudget(promptCost int) error {
	if remaining := p.TokenBudget() - promptCost; remaining <= 0 {
		return fmt.Errorf("system prompt (%d tokens) exhausts the %d-token budget (window %d, reserve %d)",
			promptCost, p.TokenBudget(), p.Budget.ContextWindow, p.Budget.AnswerReserve)
	}
	return nil
}
