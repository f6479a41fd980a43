package config

import (
	"fmt"
	"strings"
)

// Validator validates configuration values
type Validator struct{}

// NewValidator creates a new validator
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateAPIKey validates an API key format
func (v *Validator) ValidateAPIKey(key string, provider string) error {
	if key == "" {
		return fmt.Errorf("%s API key cannot be empty", provider)
	}

	switch provider {
	case "gemini":
		if !strings.HasPrefix(key, "AIza") {
			return fmt.Errorf("invalid Gemini API key format (should start with AIza)")
		}
		if strings.ContainsAny(key, " \t") {
			return fmt.Errorf("invalid Gemini API key format (contains spaces)")
		}
	case "anthropic":
		if !strings.HasPrefix(key, "sk-ant-") {
			return fmt.Errorf("invalid Anthropic API key format (should start with sk-ant-)")
		}
	case "openai":
		if !strings.HasPrefix(key, "sk-") {
			return fmt.Errorf("invalid OpenAI API key format (should start with sk-)")
		}
	}

	return nil
}

// ValidateTemperature validates temperature value
func (v *Validator) ValidateTemperature(temp float64) error {
	if temp < 0 || temp > 2 {
		return fmt.Errorf("temperature must be between 0 and 2, got %f", temp)
	}
	return nil
}

// ValidateImportance validates an importance score used by the memory policy
func (v *Validator) ValidateImportance(name string, value float64) error {
	if value < 0 {
		return fmt.Errorf("%s must be >= 0, got %v", name, value)
	}
	return nil
}

// ValidateLogLevel validates log level
func (v *Validator) ValidateLogLevel(level string) error {
	validLevels := []string{"debug", "info", "warn", "error"}
	if contains(validLevels, level) {
		return nil
	}
	return fmt.Errorf("invalid log level: %s (must be one of: %s)", level, strings.Join(validLevels, ", "))
}

// ValidateConfig collects every problem instead of stopping at the first.
func (v *Validator) ValidateConfig(cfg *Config) []error {
	var errs []error

	for i, profile := range cfg.AI.Profiles {
		if err := v.ValidateAPIKey(profile.APIKey, profile.Provider); err != nil {
			errs = append(errs, fmt.Errorf("AI profile %d (%s): %w", i, profile.ID, err))
		}
	}
	if err := v.ValidateTemperature(cfg.AI.Temperature); err != nil {
		errs = append(errs, err)
	}

	importance := map[string]float64{
		"memory.promotion_threshold":   cfg.Memory.PromotionThreshold,
		"memory.user_turn_importance":  cfg.Memory.UserTurnImportance,
		"memory.agent_turn_importance": cfg.Memory.AgentTurnImportance,
		"memory.error_importance":      cfg.Memory.ErrorImportance,
	}
	for _, name := range []string{
		"memory.promotion_threshold",
		"memory.user_turn_importance",
		"memory.agent_turn_importance",
		"memory.error_importance",
	} {
		if err := v.ValidateImportance(name, importance[name]); err != nil {
			errs = append(errs, err)
		}
	}

	if err := v.ValidateLogLevel(cfg.Logging.Level); err != nil {
		errs = append(errs, err)
	}

	return errs
}

// KeyReport describes a Gemini API key without revealing it.
type KeyReport struct {
	Present   bool
	Length    int
	HasPrefix bool
	Preview   string
	Issues    []string
}

// DiagnoseGeminiKey inspects a key the way the check-key command reports it.
// Errors are prefixed "error:" and soft findings "warning:".
func DiagnoseGeminiKey(key string) KeyReport {
	key = strings.TrimSpace(key)
	report := KeyReport{
		Present:   key != "",
		Length:    len(key),
		HasPrefix: strings.HasPrefix(key, "AIza"),
		Preview:   MaskKey(key),
	}
	if !report.Present {
		report.Issues = append(report.Issues, "error: no API key found (checked GEMINI_API_KEY, GOOGLE_API_KEY)")
		return report
	}
	if !report.HasPrefix {
		report.Issues = append(report.Issues, "error: key doesn't start with 'AIza' - invalid format")
	}
	if report.Length < 35 || report.Length > 45 {
		report.Issues = append(report.Issues, fmt.Sprintf("warning: key length (%d) seems unusual (expected ~39)", report.Length))
	}
	if strings.Contains(key, " ") {
		report.Issues = append(report.Issues, "error: key contains spaces - check .env file formatting")
	}
	return report
}

// HasErrors reports whether any issue is a hard error.
func (r KeyReport) HasErrors() bool {
	for _, issue := range r.Issues {
		if strings.HasPrefix(issue, "error:") {
			return true
		}
	}
	return false
}

// MaskKey keeps the first 8 and last 4 characters of a key.
func MaskKey(key string) string {
	if key == "" {
		return ""
	}
	if len(key) <= 12 {
		return strings.Repeat("*", len(key))
	}
	return key[:8] + "..." + key[len(key)-4:]
}
