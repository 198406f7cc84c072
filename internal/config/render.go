package config

import (
	"bytes"

	"gopkg.in/yaml.v3"

	"mightyhooks/pkg/fileutil"
)

const (
	// EnvConfigPath names a config file when --config is not given.
	EnvConfigPath = "MIGHTY_HOOKS_CONFIG_PATH"

	DefaultFilename = "config.yaml"

	redacted = "[redacted]"
)

// Locate resolves the config path: explicit flag, then
// MIGHTY_HOOKS_CONFIG_PATH, then the default search paths.
func Locate(explicit string) (string, error) {
	return fileutil.Resolve(explicit, EnvConfigPath, DefaultFilename)
}

// Redacted returns a deep copy with every secret masked.
func (c *Config) Redacted() *Config {
	out := *c
	if c.HTTPS != nil {
		https := *c.HTTPS
		out.HTTPS = &https
	}
	out.Hooks = make(map[string]HookConfig, len(c.Hooks))
	for key, hook := range c.Hooks {
		hook.In.Secret256 = mask(hook.In.Secret256)
		outs := make([]HookOut, len(hook.Out))
		for i, o := range hook.Out {
			o.Secret256 = mask(o.Secret256)
			o.KeepHeaders = append([]string(nil), o.KeepHeaders...)
			if o.Reword != nil {
				rw := *o.Reword
				o.Reword = &rw
			}
			outs[i] = o
		}
		hook.Out = outs
		out.Hooks[key] = hook
	}
	return &out
}

// YAML renders the effective config with secrets masked.
func (c *Config) YAML() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(c.Redacted()); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func mask(secret string) string {
	if secret == "" {
		return ""
	}
	return redacted
}
