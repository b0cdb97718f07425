package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	siteerrors "github.com/conneroisu/sitepipe/internal/errors"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newViper(t *testing.T) *viper.Viper {
	t.Helper()
	t.Setenv("NODE_ENV", "")
	t.Setenv("SITEPIPE_ENVIRONMENT", "")
	v := viper.New()
	SetDefaults(v)
	return v
}

func TestDefaults(t *testing.T) {
	cfg, err := LoadFrom(newViper(t))
	require.NoError(t, err)

	assert.Equal(t, Development, cfg.Environment)
	assert.False(t, cfg.IsProduction())
	assert.Equal(t, "dist", cfg.Site.Output)
	assert.Equal(t, "dist", cfg.Server.Root)
	assert.Equal(t, "src/css/main.scss", cfg.Styles.Entry)
	assert.Equal(t, "dist/css/main.css", cfg.Styles.Output)
	assert.Equal(t, []string{"node_modules", "src/_sass"}, cfg.Styles.LoadPaths)
	assert.Equal(t, []string{"*--*", "hidden"}, cfg.Styles.Unused.Ignore)
	assert.Equal(t, []string{"src/js/main.js"}, cfg.Scripts.Entries)
	assert.Equal(t, "iife", cfg.Scripts.Format)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "localhost", cfg.Server.Host)
	assert.False(t, cfg.Server.Open)
	assert.Equal(t, 100*time.Millisecond, cfg.Watch.Debounce)
	assert.Empty(t, cfg.StyleChain())
}

func TestEnvironmentSelection(t *testing.T) {
	tests := []struct {
		name       string
		env        map[string]string
		set        map[string]interface{}
		production bool
	}{
		{name: "NODE_ENV production", env: map[string]string{"NODE_ENV": "production"}, production: true},
		{name: "prefixed variable", env: map[string]string{"SITEPIPE_ENVIRONMENT": "Production"}, production: true},
		{name: "prefixed variable wins", env: map[string]string{"SITEPIPE_ENVIRONMENT": "development", "NODE_ENV": "production"}, production: false},
		{name: "explicit key", set: map[string]interface{}{"environment": "production"}, production: true},
		{name: "test environment", env: map[string]string{"NODE_ENV": "test"}, production: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := newViper(t)
			for k, val := range tt.env {
				t.Setenv(k, val)
			}
			for k, val := range tt.set {
				v.Set(k, val)
			}

			cfg, err := LoadFrom(v)
			require.NoError(t, err)
			assert.Equal(t, tt.production, cfg.IsProduction())
		})
	}
}

func TestStyleChain(t *testing.T) {
	fullChain := []string{StageSortMedia, StageUncss, StageAutoprefix, StageMinify}

	tests := []struct {
		name        string
		environment string
		set         map[string]interface{}
		want        []string
	}{
		{name: "production default", environment: Production, want: fullChain},
		{name: "development default", environment: Development, want: []string{}},
		{
			name:        "production override",
			environment: Production,
			set:         map[string]interface{}{"styles.chain.production": []string{StageMinify}},
			want:        []string{StageMinify},
		},
		{
			name:        "development override keeps production chain",
			environment: Production,
			set:         map[string]interface{}{"styles.chain.development": []string{StageSortMedia}},
			want:        fullChain,
		},
		{
			name:        "development override",
			environment: Development,
			set:         map[string]interface{}{"styles.chain.development": []string{StageSortMedia, StageAutoprefix}},
			want:        []string{StageSortMedia, StageAutoprefix},
		},
		{
			name:        "production override leaves development empty",
			environment: Development,
			set:         map[string]interface{}{"styles.chain.production": []string{StageMinify}},
			want:        []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := newViper(t)
			v.Set("environment", tt.environment)
			for k, val := range tt.set {
				v.Set(k, val)
			}

			cfg, err := LoadFrom(v)
			require.NoError(t, err)
			if len(tt.want) == 0 {
				assert.Empty(t, cfg.StyleChain())
				return
			}
			assert.Equal(t, tt.want, cfg.StyleChain())
		})
	}
}

func TestStyleChainFromFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), ".sitepipe.yml")
	require.NoError(t, os.WriteFile(file, []byte(`
styles:
  chain:
    development: [sort-media]
    production: [sort-media, minify]
`), 0o644))

	v := newViper(t)
	v.SetConfigFile(file)
	require.NoError(t, v.ReadInConfig())

	cfg, err := LoadFrom(v)
	require.NoError(t, err)
	assert.Equal(t, []string{StageSortMedia}, cfg.StyleChain())

	cfg.Environment = Production
	assert.Equal(t, []string{StageSortMedia, StageMinify}, cfg.StyleChain())
}

func TestUnknownEnvironmentFallsBackToDevelopment(t *testing.T) {
	for _, value := range []string{"staging", "qa", "PREVIEW"} {
		t.Run(value, func(t *testing.T) {
			v := newViper(t)
			t.Setenv("NODE_ENV", value)

			cfg, err := LoadFrom(v)
			require.NoError(t, err)
			assert.Equal(t, Development, cfg.Environment)
			assert.False(t, cfg.IsProduction())
			require.Len(t, cfg.Warnings, 1)
			assert.Contains(t, cfg.Warnings[0], strings.ToLower(value))
		})
	}

	cfg, err := LoadFrom(newViper(t))
	require.NoError(t, err)
	assert.Empty(t, cfg.Warnings)
}

func TestValidation(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value interface{}
		field string
	}{
		{"port out of range", "server.port", 70000, "server.port"},
		{"negative port", "server.port", -1, "server.port"},
		{"dangerous host", "server.host", "localhost;rm", "server.host"},
		{"output traversal", "site.output", "../outside", "site.output"},
		{"empty entry point", "styles.entry", "", "styles.entry"},
		{"unknown production stage", "styles.chain.production", []string{"purge"}, "styles.chain.production"},
		{"unknown development stage", "styles.chain.development", []string{"purge"}, "styles.chain.development"},
		{"markup stage in development", "styles.chain.development", []string{StageSortMedia, StageUncss}, "styles.chain.development"},
		{"bad sort order", "styles.sort_media", "random", "styles.sort_media"},
		{"no script entries", "scripts.entries", []string{}, "scripts.entries"},
		{"bad format", "scripts.format", "umd", "scripts.format"},
		{"empty content command", "content.command", "", "content.command"},
		{"negative debounce", "watch.debounce", "-1s", "watch.debounce"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := newViper(t)
			v.Set(tt.key, tt.value)

			cfg, err := LoadFrom(v)
			require.Error(t, err)
			assert.Nil(t, cfg)
			assert.True(t, siteerrors.IsConfigError(err))
			assert.Contains(t, err.Error(), tt.field)
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, ".sitepipe.yml")
	require.NoError(t, os.WriteFile(file, []byte(`
environment: production
server:
  port: 3000
styles:
  sort_media: mobile-first
scripts:
  entries: [src/js/main.js, src/js/search.js]
  global_name: site
watch:
  debounce: 250ms
`), 0o644))

	v := newViper(t)
	v.SetConfigFile(file)
	require.NoError(t, v.ReadInConfig())

	cfg, err := LoadFrom(v)
	require.NoError(t, err)
	assert.True(t, cfg.IsProduction())
	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, SortMobileFirst, cfg.Styles.SortMedia)
	assert.Equal(t, []string{"src/js/main.js", "src/js/search.js"}, cfg.Scripts.Entries)
	assert.Equal(t, "site", cfg.Scripts.GlobalName)
	assert.Equal(t, 250*time.Millisecond, cfg.Watch.Debounce)
	// untouched keys keep their defaults
	assert.Equal(t, "dist/js", cfg.Scripts.OutDir)
}

func TestDefault(t *testing.T) {
	t.Setenv("NODE_ENV", "")
	t.Setenv("SITEPIPE_ENVIRONMENT", "")
	assert.NotPanics(t, func() {
		cfg := Default()
		assert.Equal(t, "dist", cfg.Site.Output)
	})
}
