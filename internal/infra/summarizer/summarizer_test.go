package summarizer

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestValidateCharacterLimit(t *testing.T) {
	tests := []struct {
		name    string
		limit   int
		wantErr bool
	}{
		{name: "valid default", limit: 900, wantErr: false},
		{name: "minimum boundary", limit: 100, wantErr: false},
		{name: "maximum boundary", limit: 5000, wantErr: false},
		{name: "below minimum", limit: 99, wantErr: true},
		{name: "above maximum", limit: 5001, wantErr: true},
		{name: "zero", limit: 0, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateCharacterLimit(tt.limit)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateCharacterLimit(%d) = %v, wantErr %v", tt.limit, err, tt.wantErr)
			}
		})
	}
}

func TestLoadClaudeConfig_FallsBackOnInvalidEnv(t *testing.T) {
	t.Setenv("SUMMARIZER_CHAR_LIMIT", "not-a-number")

	cfg := LoadClaudeConfig()
	if cfg.CharacterLimit != 900 {
		t.Errorf("CharacterLimit = %d, want default 900", cfg.CharacterLimit)
	}
}

func TestLoadClaudeConfig_UsesEnvValue(t *testing.T) {
	t.Setenv("SUMMARIZER_CHAR_LIMIT", "1200")

	cfg := LoadClaudeConfig()
	if cfg.CharacterLimit != 1200 {
		t.Errorf("CharacterLimit = %d, want 1200", cfg.CharacterLimit)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() = %v, want nil", err)
	}
}

func TestLoadOpenAIConfig_FailsClosedOnInvalidEnv(t *testing.T) {
	t.Setenv("SUMMARIZER_CHAR_LIMIT", "50")

	if _, err := LoadOpenAIConfig(); err == nil {
		t.Fatal("LoadOpenAIConfig accepted out-of-range limit")
	}
}

func TestLoadOpenAIConfig_Defaults(t *testing.T) {
	cfg, err := LoadOpenAIConfig()
	if err != nil {
		t.Fatalf("LoadOpenAIConfig err=%v", err)
	}
	if cfg.CharacterLimit != 900 {
		t.Errorf("CharacterLimit = %d, want 900", cfg.CharacterLimit)
	}
	if cfg.Timeout != 60*time.Second {
		t.Errorf("Timeout = %v, want 60s", cfg.Timeout)
	}
}

func TestOpenAIConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*OpenAIConfig)
		wantErr bool
	}{
		{name: "valid", mutate: func(c *OpenAIConfig) {}, wantErr: false},
		{name: "bad limit", mutate: func(c *OpenAIConfig) { c.CharacterLimit = 10 }, wantErr: true},
		{name: "empty model", mutate: func(c *OpenAIConfig) { c.Model = "" }, wantErr: true},
		{name: "zero tokens", mutate: func(c *OpenAIConfig) { c.MaxTokens = 0 }, wantErr: true},
		{name: "zero timeout", mutate: func(c *OpenAIConfig) { c.Timeout = 0 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &OpenAIConfig{
				CharacterLimit: 900,
				Model:          "gpt-4o-mini",
				MaxTokens:      1024,
				Timeout:        60 * time.Second,
			}
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestClaudeBuildPrompt_IncludesLimit(t *testing.T) {
	c := &Claude{config: ClaudeConfig{CharacterLimit: 700}}

	prompt := c.buildPrompt("some article body")
	if !strings.Contains(prompt, "700") {
		t.Errorf("prompt does not mention character limit: %q", prompt)
	}
	if !strings.Contains(prompt, "some article body") {
		t.Errorf("prompt does not contain input text: %q", prompt)
	}
}

func TestNoOpSummarize(t *testing.T) {
	n := NewNoOp()

	short, err := n.Summarize(context.Background(), "short text")
	if err != nil {
		t.Fatalf("Summarize err=%v", err)
	}
	if short != "short text" {
		t.Errorf("short input modified: %q", short)
	}

	long := strings.Repeat("a", 600)
	got, err := n.Summarize(context.Background(), long)
	if err != nil {
		t.Fatalf("Summarize err=%v", err)
	}
	if len(got) != 503 {
		t.Errorf("truncated length = %d, want 503", len(got))
	}
	if !strings.HasSuffix(got, "...") {
		t.Errorf("truncated output missing ellipsis: %q", got[490:])
	}
}

type recordedMetrics struct {
	lengths    []int
	exceeded   int
	compliance []bool
	durations  []time.Duration
}

func (r *recordedMetrics) RecordLength(length int)                 { r.lengths = append(r.lengths, length) }
func (r *recordedMetrics) RecordLimitExceeded()                    { r.exceeded++ }
func (r *recordedMetrics) RecordCompliance(withinLimit bool)       { r.compliance = append(r.compliance, withinLimit) }
func (r *recordedMetrics) RecordDuration(duration time.Duration)   { r.durations = append(r.durations, duration) }

func TestSummaryMetricsRecorderInterface(t *testing.T) {
	var rec SummaryMetricsRecorder = &recordedMetrics{}
	rec.RecordLength(42)
	rec.RecordCompliance(true)
	rec.RecordDuration(time.Second)

	m := rec.(*recordedMetrics)
	if len(m.lengths) != 1 || m.lengths[0] != 42 {
		t.Errorf("lengths = %v, want [42]", m.lengths)
	}
	if len(m.compliance) != 1 || !m.compliance[0] {
		t.Errorf("compliance = %v, want [true]", m.compliance)
	}
}

func TestNewPrometheusSummaryMetrics_Singleton(t *testing.T) {
	a := NewPrometheusSummaryMetrics()
	b := NewPrometheusSummaryMetrics()
	if a != b {
		t.Error("NewPrometheusSummaryMetrics returned different instances")
	}
}
