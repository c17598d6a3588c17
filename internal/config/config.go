// Package config loads the fdog configuration: where the reference library
// lives, which external tool commands to invoke, and runtime defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/trvinh/fDOG/internal/toolrun"
)

// Config is the fdog configuration file. Empty fields fall back to the
// built-in defaults.
type Config struct {
	Library struct {
		Root string `yaml:"root"`
	} `yaml:"library"`

	Tools struct {
		Search  string `yaml:"search"`
		Indexer string `yaml:"indexer"`
		SignalP string `yaml:"signalp"`
		TMHMM   string `yaml:"tmhmm"`
		FAS     string `yaml:"fas"`
	} `yaml:"tools"`

	Annotation struct {
		Tools       []string `yaml:"tools"`        // annotation phase, in order
		ExcludeFile string   `yaml:"exclude_file"` // optional exclusion manifest
	} `yaml:"annotation"`

	Run struct {
		OutDir      string `yaml:"out_dir"`
		CPUs        int    `yaml:"cpus"`
		MaxParallel int    `yaml:"max_parallel"`
	} `yaml:"run"`

	Metrics struct {
		Enabled bool `yaml:"enabled"`
		Port    int  `yaml:"port"`
	} `yaml:"metrics"`
}

// Default returns the built-in configuration.
func Default() *Config {
	var cfg Config
	cfg.Tools.Search = "blastp"
	cfg.Tools.Indexer = "makeblastdb"
	cfg.Tools.SignalP = "signalp"
	cfg.Tools.TMHMM = "tmhmm"
	cfg.Tools.FAS = "fas.doAnno"
	cfg.Annotation.Tools = []string{"fas"}
	cfg.Run.OutDir = "out"
	cfg.Run.CPUs = 1
	cfg.Run.MaxParallel = 1
	cfg.Metrics.Port = 9464
	return &cfg
}

// Load reads and parses the configuration at path, filling empty fields
// from the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config YAML: %w", err)
	}

	cfg.applyDefaults()
	return &cfg, nil
}

// LoadOrDefault loads path when given, otherwise the per-user config file if
// one exists, otherwise the built-in defaults.
func LoadOrDefault(path string) (*Config, error) {
	if path != "" {
		return Load(path)
	}
	userPath, err := DefaultPath()
	if err == nil {
		if _, statErr := os.Stat(userPath); statErr == nil {
			return Load(userPath)
		}
	}
	return Default(), nil
}

// Save writes the configuration to path, creating parent directories.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func (c *Config) applyDefaults() {
	def := Default()
	if c.Tools.Search == "" {
		c.Tools.Search = def.Tools.Search
	}
	if c.Tools.Indexer == "" {
		c.Tools.Indexer = def.Tools.Indexer
	}
	if c.Tools.SignalP == "" {
		c.Tools.SignalP = def.Tools.SignalP
	}
	if c.Tools.TMHMM == "" {
		c.Tools.TMHMM = def.Tools.TMHMM
	}
	if c.Tools.FAS == "" {
		c.Tools.FAS = def.Tools.FAS
	}
	if len(c.Annotation.Tools) == 0 {
		c.Annotation.Tools = def.Annotation.Tools
	}
	if c.Run.OutDir == "" {
		c.Run.OutDir = def.Run.OutDir
	}
	if c.Run.CPUs == 0 {
		c.Run.CPUs = def.Run.CPUs
	}
	if c.Run.MaxParallel == 0 {
		c.Run.MaxParallel = def.Run.MaxParallel
	}
	if c.Metrics.Port == 0 {
		c.Metrics.Port = def.Metrics.Port
	}
}

// ToolCommand resolves the executable configured for one tool kind.
func (c *Config) ToolCommand(kind toolrun.Kind) string {
	switch kind {
	case toolrun.KindSearch:
		return c.Tools.Search
	case toolrun.KindIndexer:
		return c.Tools.Indexer
	case toolrun.KindSignalP:
		return c.Tools.SignalP
	case toolrun.KindTMHMM:
		return c.Tools.TMHMM
	case toolrun.KindFAS:
		return c.Tools.FAS
	default:
		return ""
	}
}

// userDir returns the per-user fdog directory.
func userDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, ".fdog"), nil
}

// DefaultPath returns the per-user configuration file location.
func DefaultPath() (string, error) {
	dir, err := userDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// PathconfigFile returns the per-user file recording the default library
// root, written by setup and consulted when neither flag nor config names
// one.
func PathconfigFile() (string, error) {
	dir, err := userDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "pathconfig.txt"), nil
}

// ReadLibraryRoot returns the library root recorded by setup, or empty when
// none is recorded.
func ReadLibraryRoot() (string, error) {
	path, err := PathconfigFile()
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("read pathconfig: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

// WriteLibraryRoot records root as the default library location.
func WriteLibraryRoot(root string) error {
	path, err := PathconfigFile()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create pathconfig dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(root+"\n"), 0o644); err != nil {
		return fmt.Errorf("write pathconfig: %w", err)
	}
	return nil
}

// ResolveLibraryRoot picks the library root with precedence: explicit flag,
// configuration file, per-user pathconfig.
func ResolveLibraryRoot(flag string, cfg *Config) (string, error) {
	if flag != "" {
		return flag, nil
	}
	if cfg != nil && cfg.Library.Root != "" {
		return cfg.Library.Root, nil
	}
	root, err := ReadLibraryRoot()
	if err != nil {
		return "", err
	}
	if root == "" {
		return "", fmt.Errorf("library root not configured (run fdog setup or pass --library)")
	}
	return root, nil
}
