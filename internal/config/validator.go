package config

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/bmatcuk/doublestar/v4"

	rmerrors "github.com/standardbeagle/rmodel/internal/errors"
	"github.com/standardbeagle/rmodel/internal/model"
)

// Validator validates configuration and sets smart defaults
type Validator struct{}

// NewValidator creates a new configuration validator
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateAndSetDefaults validates configuration and applies smart defaults.
// Failures are returned as *errors.ConfigError.
func (v *Validator) ValidateAndSetDefaults(cfg *Config) error {
	v.setSmartDefaults(cfg)

	if err := v.validateModelConfig(&cfg.Model); err != nil {
		return err
	}
	if err := v.validateTags(cfg.Tags); err != nil {
		return err
	}
	if err := v.validateMirrorConfig(&cfg.Mirror); err != nil {
		return err
	}
	return nil
}

func (v *Validator) validateModelConfig(m *Model) error {
	if m.Name == "" {
		return rmerrors.NewConfigError("model.name", "", errors.New("model name cannot be empty"))
	}
	if m.HistorySize < 1 || m.HistorySize > MaxAllowedHistorySize {
		return rmerrors.NewConfigError("model.history_size", strconv.Itoa(m.HistorySize),
			fmt.Errorf("history size must be between 1 and %d", MaxAllowedHistorySize))
	}
	return nil
}

func (v *Validator) validateTags(tags []Tag) error {
	seen := make(map[string]bool, len(tags))
	for _, t := range tags {
		if t.Name == "" {
			return rmerrors.NewConfigError("tags.tag", "", errors.New("tag name cannot be empty"))
		}
		if seen[t.Name] {
			return rmerrors.NewConfigError("tags.tag", t.Name, errors.New("duplicate tag name"))
		}
		seen[t.Name] = true

		if t.Match != "" && t.Match != "any" && t.Match != "all" {
			return rmerrors.NewConfigError("tags.tag."+t.Name+".match", t.Match, errors.New(`match must be "any" or "all"`))
		}
		if _, err := t.Rule(); err != nil {
			return rmerrors.NewConfigError("tags.tag."+t.Name, "", err)
		}
	}
	return nil
}

func (v *Validator) validateMirrorConfig(m *Mirror) error {
	if m.Root == "" {
		return rmerrors.NewConfigError("mirror.root", "", errors.New("mirror root cannot be empty"))
	}
	if _, err := model.ParsePath(m.Mount); err != nil {
		return rmerrors.NewConfigError("mirror.mount", m.Mount, err)
	}
	if m.DebounceMs < 0 {
		return rmerrors.NewConfigError("mirror.debounce_ms", strconv.Itoa(m.DebounceMs), errors.New("debounce cannot be negative"))
	}
	if m.MaxFileSize <= 0 || m.MaxFileSize > MaxAllowedFileSize {
		return rmerrors.NewConfigError("mirror.max_file_size", strconv.FormatInt(m.MaxFileSize, 10),
			fmt.Errorf("max file size must be between 1 and %d bytes", MaxAllowedFileSize))
	}
	if m.MaxTextSize < 0 || m.MaxTextSize > m.MaxFileSize {
		return rmerrors.NewConfigError("mirror.max_text_size", strconv.FormatInt(m.MaxTextSize, 10),
			errors.New("max text size must be between 0 and max_file_size"))
	}
	for _, p := range append(append([]string{}, m.Include...), m.Exclude...) {
		if !doublestar.ValidatePattern(p) {
			return rmerrors.NewConfigError("mirror.pattern", p, errors.New("invalid glob pattern"))
		}
	}
	return nil
}

// setSmartDefaults fills zero values that have a sensible default
func (v *Validator) setSmartDefaults(cfg *Config) {
	if cfg.Model.Name == "" {
		cfg.Model.Name = DefaultModelName
	}
	if cfg.Model.HistorySize == 0 {
		cfg.Model.HistorySize = DefaultHistorySize
	}
	if cfg.Mirror.Mount == "" {
		cfg.Mirror.Mount = DefaultMountPath
	}
	if cfg.Mirror.MaxFileSize == 0 {
		cfg.Mirror.MaxFileSize = DefaultMaxFileSize
	}
	cfg.Mirror.Workers = workerCount(cfg.Mirror.Workers)
	for i := range cfg.Tags {
		if cfg.Tags[i].Match == "" {
			cfg.Tags[i].Match = "any"
		}
	}
}

// ValidateConfig is a convenience function for quick validation
func ValidateConfig(cfg *Config) error {
	return NewValidator().ValidateAndSetDefaults(cfg)
}
