package confloader

import (
	"fmt"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// DefaultEnvPrefix is the default environment variable prefix.
const DefaultEnvPrefix = "AUTHCORE_"

// Loader layers the config file, the environment and explicit overrides,
// in that order, on top of whatever the target already holds.
type Loader struct {
	envPrefix string
	filePath  string
	overrides map[string]any
}

// Option configures a Loader.
type Option func(*Loader)

// WithEnvPrefix sets the environment variable prefix.
func WithEnvPrefix(prefix string) Option {
	return func(l *Loader) {
		l.envPrefix = prefix
	}
}

// WithConfigFile sets the YAML file to read.
func WithConfigFile(path string) Option {
	return func(l *Loader) {
		l.filePath = path
	}
}

// WithOverrides applies flat "a.b" keyed values last. The server's
// command-line flags arrive this way.
func WithOverrides(values map[string]any) Option {
	return func(l *Loader) {
		l.overrides = values
	}
}

// NewLoader creates a Loader.
func NewLoader(opts ...Option) *Loader {
	l := &Loader{envPrefix: DefaultEnvPrefix}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// FilePath returns the configuration file path, if any.
func (l *Loader) FilePath() string {
	return l.filePath
}

// source is one configuration layer.
type source struct {
	name     string
	provider koanf.Provider
	parser   koanf.Parser
}

func (l *Loader) sources() []source {
	var out []source
	if l.filePath != "" {
		out = append(out, source{
			name:     "file " + l.filePath,
			provider: file.Provider(l.filePath),
			parser:   yaml.Parser(),
		})
	}
	prefix := l.envPrefix
	out = append(out, source{
		name: "env " + prefix + "*",
		provider: env.Provider(prefix, ".", func(s string) string {
			return EnvKey(prefix, s)
		}),
	})
	if len(l.overrides) > 0 {
		out = append(out, source{name: "overrides", provider: mapProvider(l.overrides)})
	}
	return out
}

// Load reads every source afresh and unmarshals the result into target.
// Fields no source sets keep their current values, so callers pass a
// struct pre-filled with defaults. Calling Load again picks up changes.
func (l *Loader) Load(target any) error {
	k := koanf.New(".")
	for _, src := range l.sources() {
		if err := k.Load(src.provider, src.parser); err != nil {
			return fmt.Errorf("load %s: %w", src.name, err)
		}
	}
	if err := k.Unmarshal("", target); err != nil {
		return fmt.Errorf("unmarshal config: %w", err)
	}
	return nil
}

// EnvKey converts an environment variable name into a config key. The
// first underscore after the prefix separates the section, so
// AUTHCORE_HTTP_LOGIN_BURST is http.login_burst. A double underscore marks
// every level explicitly: AUTHCORE_A__B__C_D is a.b.c_d.
func EnvKey(prefix, name string) string {
	s := strings.ToLower(strings.TrimPrefix(name, prefix))
	if strings.Contains(s, "__") {
		return strings.ReplaceAll(s, "__", ".")
	}
	return strings.Replace(s, "_", ".", 1)
}
