// Package config loads the aflr configuration file and merges it with
// environment variables and (eventually, at the CLI layer) command line
// flags. AFLR_*-prefixed environment values override file values for the
// keys the file sets; command line flags, applied by the caller after Load
// returns, win over everything.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// DefaultFileName is the configuration file aflr looks for in the working
// directory when --config is not given.
const DefaultFileName = "aflr_cfg"

// TargetConfig describes the [target] section.
type TargetConfig struct {
	BinaryPath      string   `mapstructure:"binary_path"`
	SanitizerBinary string   `mapstructure:"sanitizer_binary"`
	CmplogBinary    string   `mapstructure:"cmplog_binary"`
	CmplogCovBinary string   `mapstructure:"cmplog_cov_binary"`
	CoverageBinary  string   `mapstructure:"coverage_binary"`
	Args            []string `mapstructure:"args"`
	SeedDir         string   `mapstructure:"seed_dir"`
	SolutionDir     string   `mapstructure:"solution_dir"`
	DictPath        string   `mapstructure:"dict_path"`
}

// AFLConfig describes the [afl_cfg] section (named after the fuzzer
// engine's own config section, not the AFL project specifically).
type AFLConfig struct {
	EnginePath      string   `mapstructure:"engine_path"`
	Workers         int      `mapstructure:"workers"`
	Mode            string   `mapstructure:"mode"`
	Seed            *int64   `mapstructure:"seed"`
	SeedPassthrough bool     `mapstructure:"seed_passthrough"`
	ExtraFlags      []string `mapstructure:"extra_flags"`
}

// SessionConfig describes the [session] section.
type SessionConfig struct {
	Name    string `mapstructure:"name"`
	Backend string `mapstructure:"backend"`
}

// CoverageConfig describes the [coverage] section.
type CoverageConfig struct {
	ShowCmd      string   `mapstructure:"show_cmd"`
	ReportCmd    string   `mapstructure:"report_cmd"`
	ExtraFlags   []string `mapstructure:"extra_flags"`
	TextReport   bool     `mapstructure:"text_report"`
	SplitReports bool     `mapstructure:"split_reports"`
}

// MiscConfig describes the [misc] section.
type MiscConfig struct {
	LogLevel     string `mapstructure:"log_level"`
	LogDir       string `mapstructure:"log_dir"`
	TickSeconds  int    `mapstructure:"tick_seconds"`
	UseRamdisk   bool   `mapstructure:"use_ramdisk"`
	RamdiskSize  string `mapstructure:"ramdisk_size_mb"`
}

// FileConfig is the top-level shape of aflr_cfg.toml.
type FileConfig struct {
	Target   TargetConfig   `mapstructure:"target"`
	AFL      AFLConfig      `mapstructure:"afl_cfg"`
	Session  SessionConfig  `mapstructure:"session"`
	Coverage CoverageConfig `mapstructure:"coverage"`
	Misc     MiscConfig     `mapstructure:"misc"`
}

// Load reads the configuration file at path (or DefaultFileName.toml in the
// working directory when path is empty) and overlays AFLR_*-prefixed
// environment variables over it. Returns a zero FileConfig, not an error,
// when no file is found — a config file is optional because every field
// can also come from CLI flags.
func Load(path string) (*FileConfig, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(DefaultFileName)
		v.SetConfigType("toml")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("aflr")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg FileConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	resolveStringFields(&cfg)

	return &cfg, nil
}

// envVarPattern matches environment variable placeholders: ${VAR_NAME} or $VAR_NAME.
var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}|\$([A-Za-z_][A-Za-z0-9_]*)`)

// resolveEnvVars replaces environment variable placeholders in s with their
// values. Unset variables are left as-is in the string.
func resolveEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := match
		switch {
		case strings.HasPrefix(match, "${") && strings.HasSuffix(match, "}"):
			varName = match[2 : len(match)-1]
		case strings.HasPrefix(match, "$"):
			varName = match[1:]
		}
		if value, ok := os.LookupEnv(varName); ok {
			return value
		}
		return match
	})
}

// resolveStringFields expands ${VAR}/$VAR placeholders in every path-like
// string field of the config, so a checked-in config file can defer host
// specifics (binary locations, dict paths) to the environment.
func resolveStringFields(cfg *FileConfig) {
	cfg.Target.BinaryPath = resolveEnvVars(cfg.Target.BinaryPath)
	cfg.Target.SanitizerBinary = resolveEnvVars(cfg.Target.SanitizerBinary)
	cfg.Target.CmplogBinary = resolveEnvVars(cfg.Target.CmplogBinary)
	cfg.Target.CmplogCovBinary = resolveEnvVars(cfg.Target.CmplogCovBinary)
	cfg.Target.CoverageBinary = resolveEnvVars(cfg.Target.CoverageBinary)
	cfg.Target.SeedDir = resolveEnvVars(cfg.Target.SeedDir)
	cfg.Target.SolutionDir = resolveEnvVars(cfg.Target.SolutionDir)
	cfg.Target.DictPath = resolveEnvVars(cfg.Target.DictPath)
	cfg.AFL.EnginePath = resolveEnvVars(cfg.AFL.EnginePath)
	for i, a := range cfg.Target.Args {
		cfg.Target.Args[i] = resolveEnvVars(a)
	}
}

// LoadEnvFromDotEnv loads KEY=value pairs from a .env file in dir, without
// overriding variables already present in the environment. The file is
// optional; a missing file is not an error.
func LoadEnvFromDotEnv(dir string) error {
	envPath := filepath.Join(dir, ".env")

	if _, err := os.Stat(envPath); os.IsNotExist(err) {
		return nil
	}

	if err := godotenv.Load(envPath); err != nil {
		return fmt.Errorf("failed to load .env file: %w", err)
	}

	return nil
}

// LoadEnvFromDotEnvRecursive searches startDir and its parents for a .env
// file and loads the first one found. Returns nil (not an error) if none
// is found within 10 levels.
func LoadEnvFromDotEnvRecursive(startDir string) error {
	dir := startDir
	for i := 0; i < 10; i++ {
		if _, err := os.Stat(filepath.Join(dir, ".env")); err == nil {
			return LoadEnvFromDotEnv(dir)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return nil
}
