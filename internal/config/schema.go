package config

import (
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"
)

// OptionType is the expected type of a configuration value.
type OptionType string

const (
	TypeString   OptionType = "string"
	TypeBool     OptionType = "bool"
	TypeInt      OptionType = "int"
	TypeDuration OptionType = "duration"
)

// ConfigOption declares a single configuration option.
type ConfigOption struct {
	// Key is the option name as it appears in the config file (kebab-case).
	Key         string
	Type        OptionType
	Default     string
	Description string
	// Section is "" for global options, or a command name.
	Section string
	// EnvVar overrides the option when set, even to "".
	EnvVar string
}

// ConfigSchema declares the known options. It drives validation, the
// `config` command's help output, and env var resolution.
type ConfigSchema struct {
	options []ConfigOption
	index   map[[2]string]int
}

// NewSchema creates an empty ConfigSchema.
func NewSchema() *ConfigSchema {
	return &ConfigSchema{index: make(map[[2]string]int)}
}

// Register adds options; a repeated section/key pair replaces the earlier
// registration.
func (s *ConfigSchema) Register(opts ...ConfigOption) {
	for _, opt := range opts {
		k := [2]string{opt.Section, opt.Key}
		if i, ok := s.index[k]; ok {
			s.options[i] = opt
			continue
		}
		s.index[k] = len(s.options)
		s.options = append(s.options, opt)
	}
}

// Lookup returns the option for a key in a section ("" for global), or nil.
func (s *ConfigSchema) Lookup(section, key string) *ConfigOption {
	if i, ok := s.index[[2]string{section, key}]; ok {
		opt := s.options[i]
		return &opt
	}
	return nil
}

// IsKnown reports whether key may appear in section. Global keys may appear
// in any command section.
func (s *ConfigSchema) IsKnown(section, key string) bool {
	return s.Lookup(section, key) != nil || s.Lookup("", key) != nil
}

// Options returns the options of one section in registration order.
func (s *ConfigSchema) Options(section string) []ConfigOption {
	var out []ConfigOption
	for _, o := range s.options {
		if o.Section == section {
			out = append(out, o)
		}
	}
	return out
}

// Sections returns the sorted non-empty section names.
func (s *ConfigSchema) Sections() []string {
	var out []string
	for _, o := range s.options {
		if o.Section != "" && !slices.Contains(out, o.Section) {
			out = append(out, o.Section)
		}
	}
	slices.Sort(out)
	return out
}

// Resolve returns the effective value of a global key: its env var, then the
// config file, then the schema default.
func (s *ConfigSchema) Resolve(c *Config, key string) string {
	return s.ResolveCommand(c, "", key)
}

// ResolveCommand is Resolve for a key read by command, so the command's
// section is consulted before the global section. The section default wins
// over the global default.
func (s *ConfigSchema) ResolveCommand(c *Config, command, key string) string {
	opt := s.Lookup(command, key)
	if opt == nil {
		opt = s.Lookup("", key)
	}
	if opt != nil && opt.EnvVar != "" {
		if v, ok := os.LookupEnv(opt.EnvVar); ok {
			return v
		}
	}
	if c != nil {
		if v, ok := c.GetCommandOption(command, key); ok {
			return v
		}
	}
	if opt != nil {
		return opt.Default
	}
	return ""
}

// ResolveInt is Resolve, parsed as an int. An empty value is 0.
func (s *ConfigSchema) ResolveInt(c *Config, key string) (int, error) {
	v := s.Resolve(c, key)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("option %q: expected int, got %q", key, v)
	}
	return n, nil
}

// ResolveBool is Resolve, parsed as a bool. An empty value is false.
func (s *ConfigSchema) ResolveBool(c *Config, key string) (bool, error) {
	return s.ResolveCommandBool(c, "", key)
}

// ResolveCommandBool is ResolveCommand, parsed as a bool.
func (s *ConfigSchema) ResolveCommandBool(c *Config, command, key string) (bool, error) {
	v := s.ResolveCommand(c, command, key)
	if v == "" {
		return false, nil
	}
	b, err := parseBool(v)
	if err != nil {
		return false, fmt.Errorf("option %q: expected bool, got %q", key, v)
	}
	return b, nil
}

// ResolveDuration is Resolve, parsed as a time.Duration. An empty value is 0.
func (s *ConfigSchema) ResolveDuration(c *Config, key string) (time.Duration, error) {
	v := s.Resolve(c, key)
	if v == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("option %q: expected duration, got %q", key, v)
	}
	return d, nil
}

// ValidateConfig reports unknown options and values of the wrong type, sorted.
func ValidateConfig(c *Config, s *ConfigSchema) []string {
	var issues []string

	for key, value := range c.Global {
		opt := s.Lookup("", key)
		if opt == nil {
			issues = append(issues, fmt.Sprintf("unknown global option: %q (value: %q)", key, value))
			continue
		}
		if err := validateType(opt.Type, value); err != nil {
			issues = append(issues, fmt.Sprintf("global option %q: %v", key, err))
		}
	}

	for section, opts := range c.Commands {
		for key, value := range opts {
			opt := s.Lookup(section, key)
			if opt == nil {
				opt = s.Lookup("", key)
			}
			if opt == nil {
				issues = append(issues, fmt.Sprintf("unknown option for command %q: %q (value: %q)", section, key, value))
				continue
			}
			if err := validateType(opt.Type, value); err != nil {
				issues = append(issues, fmt.Sprintf("option %q in [%s]: %v", key, section, err))
			}
		}
	}

	slices.Sort(issues)
	return issues
}

func validateType(t OptionType, value string) error {
	switch t {
	case TypeString, "":
		return nil
	case TypeBool:
		if _, err := parseBool(value); err != nil {
			return fmt.Errorf("expected bool, got %q", value)
		}
	case TypeInt:
		if _, err := strconv.Atoi(value); err != nil {
			return fmt.Errorf("expected int, got %q", value)
		}
	case TypeDuration:
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("expected duration, got %q", value)
		}
	default:
		return fmt.Errorf("unknown option type %q", t)
	}
	return nil
}

// FormatHelp lists every option, global ones first, then by section.
func (s *ConfigSchema) FormatHelp() string {
	var b strings.Builder
	if globals := s.Options(""); len(globals) > 0 {
		b.WriteString("Global Options:\n")
		for _, o := range globals {
			writeOptionHelp(&b, o)
		}
	}
	for _, sec := range s.Sections() {
		fmt.Fprintf(&b, "\n[%s] Options:\n", sec)
		for _, o := range s.Options(sec) {
			writeOptionHelp(&b, o)
		}
	}
	return b.String()
}

func writeOptionHelp(b *strings.Builder, o ConfigOption) {
	fmt.Fprintf(b, "  %-28s %s", o.Key, o.Description)
	var parts []string
	if o.Type != "" && o.Type != TypeString {
		parts = append(parts, "type: "+string(o.Type))
	}
	if o.Default != "" {
		parts = append(parts, "default: "+o.Default)
	}
	if o.EnvVar != "" {
		parts = append(parts, "env: "+o.EnvVar)
	}
	if len(parts) > 0 {
		fmt.Fprintf(b, " (%s)", strings.Join(parts, ", "))
	}
	b.WriteString("\n")
}

// DefaultSchema returns the schema of every hostbridge option.
func DefaultSchema() *ConfigSchema {
	s := NewSchema()
	s.Register([]ConfigOption{
		{Key: "log.level", Type: TypeString, Default: "info", Description: "Log level: debug, info, warn, error", EnvVar: "HOSTBRIDGE_LOG_LEVEL"},
		{Key: "log.file", Type: TypeString, Description: "Log file path (JSON output); stderr if unset", EnvVar: "HOSTBRIDGE_LOG_FILE"},
		{Key: "log.max-size-mb", Type: TypeInt, Default: "10", Description: "Max log file size in MB before rotation"},
		{Key: "log.max-files", Type: TypeInt, Default: "5", Description: "Max number of rotated log backup files"},

		{Key: "bridge.queue-capacity", Type: TypeInt, Default: "0", Description: "Max tasks waiting behind the running one; 0 is unbounded"},
		{Key: "bridge.submit-timeout", Type: TypeDuration, Default: "0s", Description: "Max wait for a submitted task; 0 waits forever"},
		{Key: "bridge.console", Type: TypeBool, Default: "true", Description: "Expose console to scripts, logged at info/warn/error"},

		{Key: "format", Section: "eval", Type: TypeString, Default: "text", Description: "Result format: text or json"},
		{Key: "format", Section: "run", Type: TypeString, Default: "text", Description: "Result format: text or json"},
		{Key: "quiet", Section: "run", Type: TypeBool, Default: "false", Description: "Do not print the script's completion value"},
	}...)
	return s
}
