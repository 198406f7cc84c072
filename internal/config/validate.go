package config

import (
	"fmt"
	"net/url"
	"sort"
	"strings"

	"mightyhooks/internal/logging"
	"mightyhooks/internal/reword"
	"mightyhooks/internal/route"
	"mightyhooks/internal/security"
	"mightyhooks/pkg/fileutil"
)

// Validate checks a decoded config and returns one line per problem.
func Validate(cfg *Config) []string {
	var errors []string

	if cfg.Port < 1 || cfg.Port > 65535 {
		errors = append(errors, fmt.Sprintf("  - port must be between 1 and 65535, got %d", cfg.Port))
	}

	if cfg.HTTPS != nil {
		for _, f := range []struct{ name, path string }{
			{"https.cert", cfg.HTTPS.Cert},
			{"https.key", cfg.HTTPS.Key},
		} {
			if f.path == "" {
				errors = append(errors, fmt.Sprintf("  - %s is required when https is set", f.name))
				continue
			}
			if !fileutil.FileExists(f.path) {
				errors = append(errors, fmt.Sprintf("  - %s: file does not exist: '%s'", f.name, f.path))
			}
		}
	}

	if !logging.ValidLevel(cfg.LogLevel) {
		errors = append(errors, fmt.Sprintf("  - log_level must be one of debug, info, warn, error, got '%s'", cfg.LogLevel))
	}

	if _, err := ParseSize(cfg.MaxBodySize); err != nil {
		errors = append(errors, fmt.Sprintf("  - max_body_size: %v", err))
	}

	if cfg.DeliveryTimeout < 0 {
		errors = append(errors, "  - delivery_timeout must not be negative")
	}
	if cfg.DispatchTimeout < 0 {
		errors = append(errors, "  - dispatch_timeout must not be negative")
	}
	if cfg.MaxConcurrentDeliveries < 0 {
		errors = append(errors, fmt.Sprintf("  - max_concurrent_deliveries must not be negative, got %d", cfg.MaxConcurrentDeliveries))
	}

	keys := make([]string, 0, len(cfg.Hooks))
	for key := range cfg.Hooks {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		errors = append(errors, ValidateHook(key, cfg.Hooks[key])...)
	}

	return errors
}

// ValidateHook validates a single route entry
func ValidateHook(key string, hook HookConfig) []string {
	var errors []string

	host, _, found := strings.Cut(key, "/")
	if !found || host == "" {
		errors = append(errors, fmt.Sprintf("  - Hook '%s': key must look like 'host/path'", key))
	}

	if hook.In.ContentType == "" {
		errors = append(errors, fmt.Sprintf("  - Hook '%s': missing required 'in.content_type' field", key))
	}
	if hook.In.Secret256 != "" && security.IsPlaceholder(hook.In.Secret256) {
		errors = append(errors, fmt.Sprintf("  - Hook '%s': in.secret_256 appears to be a placeholder value, replace with real secret", key))
	}

	for i, out := range hook.Out {
		prefix := fmt.Sprintf("  - Hook '%s': out[%d]", key, i)

		u, err := url.Parse(out.Href)
		switch {
		case out.Href == "":
			errors = append(errors, prefix+": missing required 'href' field")
		case err != nil:
			errors = append(errors, fmt.Sprintf("%s: invalid href '%s': %v", prefix, out.Href, err))
		case u.Scheme != "http" && u.Scheme != "https":
			errors = append(errors, fmt.Sprintf("%s: href must be an http or https URL, got '%s'", prefix, out.Href))
		case u.Host == "":
			errors = append(errors, fmt.Sprintf("%s: href has no host: '%s'", prefix, out.Href))
		}

		if out.Secret256 != "" && security.IsPlaceholder(out.Secret256) {
			errors = append(errors, prefix+": secret_256 appears to be a placeholder value, replace with real secret")
		}

		for j, h := range out.KeepHeaders {
			if strings.TrimSpace(h) == "" {
				errors = append(errors, fmt.Sprintf("%s: keep_headers[%d] is empty", prefix, j))
			}
		}

		if out.Reword != nil {
			if out.Reword.ContentType == "" {
				errors = append(errors, prefix+": reword.content_type is required")
			}
			if _, err := reword.Parse(out.Reword.Content); err != nil {
				errors = append(errors, fmt.Sprintf("%s: reword.content: %v", prefix, err))
			}
		}
	}

	return errors
}

// Audit returns non-fatal findings: weak secrets and a config file that
// others can read.
func Audit(cfg *Config) []string {
	var warnings []string

	hasSecrets := false
	weak := func(where, secret string) {
		if secret == "" {
			return
		}
		hasSecrets = true
		if why := security.WeakSecret(secret); why != "" {
			warnings = append(warnings, fmt.Sprintf("%s is weak: %s", where, why))
		}
	}

	keys := make([]string, 0, len(cfg.Hooks))
	for key := range cfg.Hooks {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		hook := cfg.Hooks[key]
		weak(fmt.Sprintf("Hook '%s': in.secret_256", key), hook.In.Secret256)
		for i, out := range hook.Out {
			weak(fmt.Sprintf("Hook '%s': out[%d].secret_256", key, i), out.Secret256)
		}
	}

	if hasSecrets && cfg.path != "" {
		if err := security.CheckSensitiveFile(cfg.path); err != nil {
			warnings = append(warnings, err.Error())
		}
	}
	if cfg.HTTPS != nil && cfg.HTTPS.Key != "" {
		if err := security.CheckSensitiveFile(cfg.HTTPS.Key); err != nil {
			warnings = append(warnings, err.Error())
		}
	}

	return warnings
}

// Routes builds the immutable route table from the hooks section.
func (c *Config) Routes() *route.Table {
	routes := make(map[route.Key]*route.Route, len(c.Hooks))
	for key, hook := range c.Hooks {
		r := &route.Route{
			Key: key,
			Incoming: route.Contract{
				ContentType: hook.In.ContentType,
				Secret:      hook.In.Secret256,
			},
			Destinations: make([]route.Destination, 0, len(hook.Out)),
		}
		for _, out := range hook.Out {
			dest := route.Destination{
				URL:         out.Href,
				Secret:      out.Secret256,
				KeepHeaders: append([]string(nil), out.KeepHeaders...),
			}
			if out.Reword != nil {
				dest.Reword = &route.Reword{
					ContentType: out.Reword.ContentType,
					Template:    out.Reword.Content,
				}
			}
			r.Destinations = append(r.Destinations, dest)
		}
		routes[key] = r
	}
	return route.NewTable(routes)
}
