package config

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/santhosh-tekuri/jsonschema/v6"
	"github.com/zeebo/blake3"
)

const (
	// EnvPrefix namespaces environment overrides, e.g. MIGHTY_HOOKS_PORT=9000.
	// A double underscore descends into a section: MIGHTY_HOOKS_TRACING__ENABLED.
	EnvPrefix = "MIGHTY_HOOKS_"

	DefaultHost            = "0.0.0.0"
	DefaultPort            = 8080
	DefaultLogLevel        = "info"
	DefaultMaxBodySize     = 1 << 20
	DefaultServiceName     = "mightyhooks"
	DefaultDeliveryTimeout = 30 * time.Second

	// keys are "host/path" so "." cannot be the path delimiter
	delim = "::"
)

var (
	ErrInvalidConfig = errors.New("invalid configuration")

	//go:embed schema.json
	schemaJSON []byte

	schemaOnce     sync.Once
	compiledSchema *jsonschema.Schema
	schemaErr      error

	envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)
)

// Load reads the YAML file at path, checks it against the embedded schema,
// layers MIGHTY_HOOKS_ environment overrides on top and validates the result.
func Load(path string) (*Config, error) {
	fp := file.Provider(path)
	raw, err := fp.ReadBytes()
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	k := koanf.New(delim)
	if err := k.Load(fp, yaml.Parser()); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}

	if err := validateSchema(k.Raw()); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidConfig, err)
	}

	if err := k.Load(env.Provider(EnvPrefix, delim, envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment overrides: %w", err)
	}

	setDefaults(k)

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if cfg.Hooks == nil {
		cfg.Hooks = make(map[string]HookConfig)
	}
	cfg.expandSecrets()

	if errs := Validate(&cfg); len(errs) > 0 {
		return nil, fmt.Errorf("%w:\n%s", ErrInvalidConfig, strings.Join(errs, "\n"))
	}

	cfg.path = path
	cfg.fingerprint = Fingerprint(raw)
	cfg.warnings = Audit(&cfg)
	return &cfg, nil
}

// Fingerprint returns the hex BLAKE3 digest of raw config bytes.
func Fingerprint(raw []byte) string {
	sum := blake3.Sum256(raw)
	return fmt.Sprintf("%x", sum[:])
}

// MaxBodyBytes returns the parsed max_body_size.
func (c *Config) MaxBodyBytes() int64 {
	n, err := ParseSize(c.MaxBodySize)
	if err != nil {
		return DefaultMaxBodySize
	}
	return n
}

// ParseSize parses sizes like "1MB", "512KB" or "1048576" to bytes.
// An empty string yields DefaultMaxBodySize.
func ParseSize(size string) (int64, error) {
	if size == "" {
		return DefaultMaxBodySize, nil
	}

	upper := strings.ToUpper(strings.TrimSpace(size))
	multiplier := int64(1)
	for _, unit := range []struct {
		suffix string
		factor int64
	}{
		{"GB", 1 << 30},
		{"MB", 1 << 20},
		{"KB", 1 << 10},
		{"B", 1},
	} {
		if strings.HasSuffix(upper, unit.suffix) {
			multiplier = unit.factor
			upper = strings.TrimSuffix(upper, unit.suffix)
			break
		}
	}

	value, err := strconv.ParseInt(strings.TrimSpace(upper), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size value %q: %w", size, err)
	}
	if value <= 0 {
		return 0, fmt.Errorf("size must be positive, got %q", size)
	}

	result := value * multiplier
	if result/multiplier != value {
		return 0, fmt.Errorf("size too large: %q", size)
	}
	return result, nil
}

func envKey(s string) string {
	key := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(key, "__", delim)
}

func setDefaults(k *koanf.Koanf) {
	defaults := map[string]any{
		"host":                  DefaultHost,
		"port":                  DefaultPort,
		"log_level":             DefaultLogLevel,
		"delivery_timeout":      DefaultDeliveryTimeout.String(),
		"tracing::service_name": DefaultServiceName,
	}
	for key, value := range defaults {
		if !k.Exists(key) {
			_ = k.Set(key, value)
		}
	}
}

// expandSecrets substitutes ${VAR} references in secrets so they can live
// outside the config file.
func (c *Config) expandSecrets() {
	for key, hook := range c.Hooks {
		hook.In.Secret256 = substituteEnvVars(hook.In.Secret256)
		for i := range hook.Out {
			hook.Out[i].Secret256 = substituteEnvVars(hook.Out[i].Secret256)
		}
		c.Hooks[key] = hook
	}
}

func substituteEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(envVarPattern.FindStringSubmatch(match)[1])
	})
}

func validateSchema(doc map[string]any) error {
	schemaOnce.Do(func() {
		var parsed any
		parsed, schemaErr = jsonschema.UnmarshalJSON(bytes.NewReader(schemaJSON))
		if schemaErr != nil {
			return
		}
		c := jsonschema.NewCompiler()
		if schemaErr = c.AddResource("config.schema.json", parsed); schemaErr != nil {
			return
		}
		compiledSchema, schemaErr = c.Compile("config.schema.json")
	})
	if schemaErr != nil {
		return fmt.Errorf("compile config schema: %w", schemaErr)
	}

	// normalise YAML scalars into JSON types
	encoded, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(encoded))
	if err != nil {
		return err
	}
	return compiledSchema.Validate(inst)
}

func joinHostPort(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}
