// Package config provides configuration management for sitepipe using Viper
// for loading from files, environment variables and command-line flags.
//
// The configuration system supports YAML files, environment variable overrides
// with the SITEPIPE_ prefix and validation. It describes where the site source
// and output live, how each producer (content generator, stylesheet compiler,
// script bundler) is invoked and how the dev server is exposed.
//
// A single environment flag selects production or development behaviour. It
// is read from the "environment" key, which is also bound to
// SITEPIPE_ENVIRONMENT and NODE_ENV. Any value other than production or test
// runs the development pipeline.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"time"

	siteerrors "github.com/conneroisu/sitepipe/internal/errors"
	"github.com/spf13/viper"
)

// Environment names.
const (
	Development = "development"
	Production  = "production"
	Test        = "test"
)

// Post-processing stage names accepted in styles.chain.
const (
	StageSortMedia  = "sort-media"
	StageUncss      = "uncss"
	StageAutoprefix = "autoprefix"
	StageMinify     = "minify"
)

// Media query sort orders.
const (
	SortDesktopFirst = "desktop-first"
	SortMobileFirst  = "mobile-first"
)

type Config struct {
	Environment string        `mapstructure:"environment" yaml:"environment"`
	Site        SiteConfig    `mapstructure:"site" yaml:"site"`
	Content     ContentConfig `mapstructure:"content" yaml:"content"`
	Styles      StylesConfig  `mapstructure:"styles" yaml:"styles"`
	Scripts     ScriptsConfig `mapstructure:"scripts" yaml:"scripts"`
	Server      ServerConfig  `mapstructure:"server" yaml:"server"`
	Watch       WatchConfig   `mapstructure:"watch" yaml:"watch"`
	Notify      NotifyConfig  `mapstructure:"notify" yaml:"notify"`

	// Warnings collects non-fatal problems found while loading.
	Warnings []string `mapstructure:"-" yaml:"-"`
}

type SiteConfig struct {
	Source string `mapstructure:"source" yaml:"source"`
	Output string `mapstructure:"output" yaml:"output"`
}

type ContentConfig struct {
	Command   string   `mapstructure:"command" yaml:"command"`
	Args      []string `mapstructure:"args" yaml:"args"`
	WatchFlag string   `mapstructure:"watch_flag" yaml:"watch_flag"`
}

type StylesConfig struct {
	Entry     string   `mapstructure:"entry" yaml:"entry"`
	Output    string   `mapstructure:"output" yaml:"output"`
	Command   string   `mapstructure:"command" yaml:"command"`
	LoadPaths []string `mapstructure:"load_paths" yaml:"load_paths"`
	Watch     []string `mapstructure:"watch" yaml:"watch"`
	Chain     ChainConfig  `mapstructure:"chain" yaml:"chain"`
	SortMedia string       `mapstructure:"sort_media" yaml:"sort_media"`
	Unused    UnusedConfig `mapstructure:"unused" yaml:"unused"`
	Targets   []string     `mapstructure:"targets" yaml:"targets"`
}

// ChainConfig lists the post-processing stages of each environment.
// The development chain runs alongside the content generator, so it must
// not contain stages that read generated markup.
type ChainConfig struct {
	Development []string `mapstructure:"development" yaml:"development"`
	Production  []string `mapstructure:"production" yaml:"production"`
}

// UnusedConfig scopes dead-rule elimination.
type UnusedConfig struct {
	HTML   []string `mapstructure:"html" yaml:"html"`
	Ignore []string `mapstructure:"ignore" yaml:"ignore"`
}

type ScriptsConfig struct {
	Entries    []string `mapstructure:"entries" yaml:"entries"`
	OutDir     string   `mapstructure:"out_dir" yaml:"out_dir"`
	Format     string   `mapstructure:"format" yaml:"format"`
	Sourcemap  bool     `mapstructure:"sourcemap" yaml:"sourcemap"`
	Minify     bool     `mapstructure:"minify" yaml:"minify"`
	Target     string   `mapstructure:"target" yaml:"target"`
	GlobalName string   `mapstructure:"global_name" yaml:"global_name"`
}

type ServerConfig struct {
	Host string `mapstructure:"host" yaml:"host"`
	Port int    `mapstructure:"port" yaml:"port"`
	Open bool   `mapstructure:"open" yaml:"open"`
	// Root defaults to site.output.
	Root string `mapstructure:"root" yaml:"root"`
}

type WatchConfig struct {
	Debounce time.Duration `mapstructure:"debounce" yaml:"debounce"`
}

type NotifyConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
}

// SetDefaults registers every default and the environment bindings on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("environment", Development)
	_ = v.BindEnv("environment", "SITEPIPE_ENVIRONMENT", "NODE_ENV")

	v.SetDefault("site.source", "src")
	v.SetDefault("site.output", "dist")

	v.SetDefault("content.command", "npx")
	v.SetDefault("content.args", []string{"@11ty/eleventy"})
	v.SetDefault("content.watch_flag", "--watch")

	v.SetDefault("styles.entry", "src/css/main.scss")
	v.SetDefault("styles.output", "dist/css/main.css")
	v.SetDefault("styles.command", "sass")
	v.SetDefault("styles.load_paths", []string{"node_modules", "src/_sass"})
	v.SetDefault("styles.watch", []string{"src/css/**/*.scss", "src/_sass/**/*.scss"})
	v.SetDefault("styles.chain.development", []string{})
	v.SetDefault("styles.chain.production", []string{StageSortMedia, StageUncss, StageAutoprefix, StageMinify})
	v.SetDefault("styles.sort_media", SortDesktopFirst)
	v.SetDefault("styles.unused.html", []string{"dist/**/*.html"})
	v.SetDefault("styles.unused.ignore", []string{"*--*", "hidden"})
	v.SetDefault("styles.targets", []string{"chrome58", "firefox57", "safari11", "edge16"})

	v.SetDefault("scripts.entries", []string{"src/js/main.js"})
	v.SetDefault("scripts.out_dir", "dist/js")
	v.SetDefault("scripts.format", "iife")
	v.SetDefault("scripts.sourcemap", true)
	v.SetDefault("scripts.minify", true)
	v.SetDefault("scripts.target", "es2015")
	v.SetDefault("scripts.global_name", "")

	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.open", false)
	v.SetDefault("server.root", "")

	v.SetDefault("watch.debounce", 100*time.Millisecond)
	v.SetDefault("notify.enabled", false)
}

// Default returns the configuration produced by the defaults alone.
func Default() *Config {
	v := viper.New()
	SetDefaults(v)
	cfg, err := LoadFrom(v)
	if err != nil {
		panic("config: defaults do not validate: " + err.Error())
	}
	return cfg
}

// Load reads the configuration from the global viper instance.
func Load() (*Config, error) {
	return LoadFrom(viper.GetViper())
}

// LoadFrom decodes and validates the configuration held by v.
func LoadFrom(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, siteerrors.NewConfigError(siteerrors.ErrCodeConfigInvalid, "failed to decode configuration: "+err.Error())
	}

	cfg.Environment = strings.ToLower(strings.TrimSpace(cfg.Environment))
	switch cfg.Environment {
	case Development, Production, Test:
	case "":
		cfg.Environment = Development
	default:
		cfg.Warnings = append(cfg.Warnings, fmt.Sprintf("unknown environment %q, using %s", cfg.Environment, Development))
		cfg.Environment = Development
	}
	if cfg.Server.Root == "" {
		cfg.Server.Root = cfg.Site.Output
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// IsProduction reports whether the production pipeline is selected.
func (c *Config) IsProduction() bool {
	return c.Environment == Production
}

// StyleChain returns the post-processing stages for the selected
// environment.
func (c *Config) StyleChain() []string {
	if c.IsProduction() {
		return c.Styles.Chain.Production
	}
	return c.Styles.Chain.Development
}

// markupStages read generated markup and may only run after the content
// generator has finished.
var markupStages = []string{StageUncss}

// Validate checks c for values the pipeline cannot run with.
func Validate(c *Config) error {
	paths := map[string]string{
		"site.source":     c.Site.Source,
		"site.output":     c.Site.Output,
		"styles.entry":    c.Styles.Entry,
		"styles.output":   c.Styles.Output,
		"scripts.out_dir": c.Scripts.OutDir,
		"server.root":     c.Server.Root,
	}
	for _, field := range []string{"site.source", "site.output", "styles.entry", "styles.output", "scripts.out_dir", "server.root"} {
		if err := validatePath(paths[field]); err != nil {
			return siteerrors.ErrConfigInvalid(field, "%v", err)
		}
	}

	if c.Content.Command == "" {
		return siteerrors.ErrConfigInvalid("content.command", "must not be empty")
	}
	if c.Styles.Command == "" {
		return siteerrors.ErrConfigInvalid("styles.command", "must not be empty")
	}

	if err := validateChain("styles.chain.production", c.Styles.Chain.Production); err != nil {
		return err
	}
	if err := validateChain("styles.chain.development", c.Styles.Chain.Development); err != nil {
		return err
	}
	for _, stage := range c.Styles.Chain.Development {
		if slices.Contains(markupStages, stage) {
			return siteerrors.ErrConfigInvalid("styles.chain.development", "stage %q reads generated markup and cannot run during development", stage)
		}
	}
	if c.Styles.SortMedia != SortDesktopFirst && c.Styles.SortMedia != SortMobileFirst {
		return siteerrors.ErrConfigInvalid("styles.sort_media", "must be %s or %s, got %q", SortDesktopFirst, SortMobileFirst, c.Styles.SortMedia)
	}

	if len(c.Scripts.Entries) == 0 {
		return siteerrors.ErrConfigInvalid("scripts.entries", "at least one entry point is required")
	}
	for _, entry := range c.Scripts.Entries {
		if err := validatePath(entry); err != nil {
			return siteerrors.ErrConfigInvalid("scripts.entries", "%v", err)
		}
	}
	if !slices.Contains([]string{"iife", "esm", "cjs"}, c.Scripts.Format) {
		return siteerrors.ErrConfigInvalid("scripts.format", "unsupported bundle format %q", c.Scripts.Format)
	}

	// allow 0 for system-assigned ports in testing
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return siteerrors.ErrConfigInvalid("server.port", "port %d is not in valid range 0-65535", c.Server.Port)
	}
	if strings.ContainsAny(c.Server.Host, ";&|$`()<>\"'\\ ") {
		return siteerrors.ErrConfigInvalid("server.host", "host contains invalid characters: %q", c.Server.Host)
	}

	if c.Watch.Debounce < 0 {
		return siteerrors.ErrConfigInvalid("watch.debounce", "must not be negative")
	}
	return nil
}

func validateChain(field string, stages []string) error {
	for _, stage := range stages {
		if !slices.Contains([]string{StageSortMedia, StageUncss, StageAutoprefix, StageMinify}, stage) {
			return siteerrors.ErrConfigInvalid(field, "unknown stage %q", stage)
		}
	}
	return nil
}

// validatePath rejects empty paths and paths escaping the project through
// "..".
func validatePath(path string) error {
	if path == "" {
		return errors.New("empty path")
	}
	for _, elem := range strings.Split(filepath.ToSlash(filepath.Clean(path)), "/") {
		if elem == ".." {
			return fmt.Errorf("path contains traversal: %s", path)
		}
	}
	return nil
}
