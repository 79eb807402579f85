// internal/config/config.go
//
// This package handles project configuration. A project may carry a
// .texflow.yaml file next to its data; every value has a default so the file
// is optional.

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kingrea/texflow/internal/task"
)

const (
	// FileName is the project configuration file looked up in the working directory.
	FileName = ".texflow.yaml"
	// EnvConfig may point at an alternative configuration file.
	EnvConfig = "TEXFLOW_CONFIG"

	defaultBuildDir = "build"
	defaultTemplate = "journal"
	defaultLogFile  = "texflow.log"
)

const defaultProjectConfigYAML = `# texflow project configuration
version: 1

# Output directory; cleaned at the start of every build.
build_dir: build

# Template folder path or built-in template name.
template: journal

# Size of the thread and process pools (0 = number of CPUs).
workers: 0

# Per-task time limit, e.g. 2m. Empty disables the limit.
# task_timeout: 2m

log:
  level: info
  format: text
  # Relative paths are resolved against build_dir. Empty logs to stderr.
  file: texflow.log

compile:
  # inline or multiprocess
  mode: inline
  # timeout: 5m

# Optional socket.io endpoint that receives task progress events.
# events:
#   url: http://localhost:3000
#   namespace: /
`

// LogConfig selects logger level, format and destination.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"`
}

// CompileConfig controls the typesetting task.
type CompileConfig struct {
	Mode    task.Mode     `yaml:"mode"`
	Timeout time.Duration `yaml:"timeout,omitempty"`
}

// EventsConfig points at an optional socket.io event sink.
type EventsConfig struct {
	URL       string `yaml:"url,omitempty"`
	Namespace string `yaml:"namespace,omitempty"`
}

// ProjectConfig models .texflow.yaml.
type ProjectConfig struct {
	Version     int           `yaml:"version"`
	BuildDir    string        `yaml:"build_dir"`
	Template    string        `yaml:"template"`
	Workers     int           `yaml:"workers"`
	TaskTimeout time.Duration `yaml:"task_timeout,omitempty"`
	Log         LogConfig     `yaml:"log"`
	Compile     CompileConfig `yaml:"compile"`
	Events      EventsConfig  `yaml:"events,omitempty"`
}

// Config holds the runtime configuration for texflow.
type Config struct {
	// ProjectDir is the directory texflow was invoked from.
	ProjectDir string

	// Path is the configuration file that was loaded, if any.
	Path string

	Project ProjectConfig
}

// Overrides carries command-line values that replace file values. Zero
// values leave the file value untouched; LogFile uses a pointer because an
// empty path is meaningful.
type Overrides struct {
	BuildDir    string
	Template    string
	Workers     int
	LogLevel    string
	LogFormat   string
	LogFile     *string
	CompileMode string
	EventsURL   string
}

// Load reads the project configuration for projectDir. explicit, when set,
// names the file to load and must exist; otherwise TEXFLOW_CONFIG is
// consulted and finally .texflow.yaml in projectDir, which may be absent.
func Load(projectDir, explicit string) (*Config, error) {
	cfg := &Config{
		ProjectDir: projectDir,
		Project:    defaultProjectConfig(),
	}
	path, required := explicit, true
	if strings.TrimSpace(path) == "" {
		path = os.Getenv(EnvConfig)
	}
	if strings.TrimSpace(path) == "" {
		path, required = FileName, false
	}
	cfg.Path = resolvePath(projectDir, path)
	if err := cfg.loadProjectConfig(required); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a configuration with every default applied.
func Default(projectDir string) *Config {
	return &Config{ProjectDir: projectDir, Project: defaultProjectConfig()}
}

// WriteDefault creates a commented default configuration file at path. It
// refuses to overwrite an existing file.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config: %s: %w", path, fs.ErrExist)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("config: stat %s: %w", path, err)
	}
	if err := os.WriteFile(path, []byte(defaultProjectConfigYAML), 0o644); err != nil {
		return fmt.Errorf("config: write %s: %w", path, err)
	}
	return nil
}

// BuildDir returns the absolute build directory.
func (c *Config) BuildDir() string {
	return resolvePath(c.ProjectDir, c.Project.BuildDir)
}

// LogFile returns the absolute log file path, or "" when logs go to stderr.
func (c *Config) LogFile() string {
	if strings.TrimSpace(c.Project.Log.File) == "" {
		return ""
	}
	return resolvePath(c.BuildDir(), c.Project.Log.File)
}

// Apply merges command-line overrides and re-validates the result.
func (c *Config) Apply(o Overrides) error {
	p := &c.Project
	if v := strings.TrimSpace(o.BuildDir); v != "" {
		p.BuildDir = v
	}
	if v := strings.TrimSpace(o.Template); v != "" {
		p.Template = v
	}
	if o.Workers > 0 {
		p.Workers = o.Workers
	}
	if v := strings.TrimSpace(o.LogLevel); v != "" {
		p.Log.Level = v
	}
	if v := strings.TrimSpace(o.LogFormat); v != "" {
		p.Log.Format = v
	}
	if o.LogFile != nil {
		p.Log.File = strings.TrimSpace(*o.LogFile)
	}
	if v := strings.TrimSpace(o.CompileMode); v != "" {
		mode, err := task.ParseMode(v)
		if err != nil {
			return fmt.Errorf("config: compile mode: %w", err)
		}
		p.Compile.Mode = mode
	}
	if v := strings.TrimSpace(o.EventsURL); v != "" {
		p.Events.URL = v
	}
	p.applyDefaults()
	p.normalize()
	if err := p.validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

func (c *Config) loadProjectConfig(required bool) error {
	data, err := os.ReadFile(c.Path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) && !required {
			c.Path = ""
			return nil
		}
		return fmt.Errorf("config: read %s: %w", c.Path, err)
	}

	parsed := defaultProjectConfig()
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("config: parse %s: %w", c.Path, err)
	}

	parsed.applyDefaults()
	parsed.normalize()
	if err := parsed.validate(); err != nil {
		return fmt.Errorf("config: %s: %w", c.Path, err)
	}

	c.Project = parsed
	return nil
}

func defaultProjectConfig() ProjectConfig {
	return ProjectConfig{
		Version:  1,
		BuildDir: defaultBuildDir,
		Template: defaultTemplate,
		Workers:  runtime.GOMAXPROCS(0),
		Log: LogConfig{
			Level:  "info",
			Format: "text",
			File:   defaultLogFile,
		},
		Compile: CompileConfig{Mode: task.ModeInline},
	}
}

func (pc *ProjectConfig) applyDefaults() {
	if pc.Version == 0 {
		pc.Version = 1
	}
	if pc.Workers <= 0 {
		pc.Workers = runtime.GOMAXPROCS(0)
	}
	if strings.TrimSpace(pc.BuildDir) == "" {
		pc.BuildDir = defaultBuildDir
	}
	if strings.TrimSpace(pc.Template) == "" {
		pc.Template = defaultTemplate
	}
	if pc.Log.Level == "" {
		pc.Log.Level = "info"
	}
	if pc.Log.Format == "" {
		pc.Log.Format = "text"
	}
}

func (pc *ProjectConfig) normalize() {
	pc.BuildDir = strings.TrimSpace(pc.BuildDir)
	pc.Template = strings.TrimSpace(pc.Template)
	pc.Log.Level = strings.ToLower(strings.TrimSpace(pc.Log.Level))
	pc.Log.Format = strings.ToLower(strings.TrimSpace(pc.Log.Format))
	pc.Log.File = strings.TrimSpace(pc.Log.File)
	pc.Events.URL = strings.TrimSpace(pc.Events.URL)
	pc.Events.Namespace = strings.TrimSpace(pc.Events.Namespace)
	if pc.Events.URL != "" && pc.Events.Namespace == "" {
		pc.Events.Namespace = "/"
	}
}

func (pc *ProjectConfig) validate() error {
	if pc.Version != 1 {
		return fmt.Errorf("unsupported config version %d", pc.Version)
	}
	switch pc.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be one of debug, info, warn, error")
	}
	switch pc.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be 'text' or 'json'")
	}
	switch pc.Compile.Mode {
	case task.ModeInline, task.ModeMultiprocess:
	default:
		return fmt.Errorf("compile.mode must be 'inline' or 'multiprocess'")
	}
	if pc.Compile.Timeout < 0 || pc.TaskTimeout < 0 {
		return fmt.Errorf("timeouts must not be negative")
	}
	if pc.Events.URL != "" && !strings.HasPrefix(pc.Events.URL, "http://") && !strings.HasPrefix(pc.Events.URL, "https://") {
		return fmt.Errorf("events.url must be an http(s) URL")
	}
	return nil
}

func resolvePath(base, candidate string) string {
	trimmed := strings.TrimSpace(candidate)
	if trimmed == "" {
		return ""
	}
	if filepath.IsAbs(trimmed) {
		return filepath.Clean(trimmed)
	}
	return filepath.Clean(filepath.Join(base, trimmed))
}
