package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
	"gopkg.in/yaml.v3"
)

// #region load

// Options controls where Load looks beyond the built-in defaults.
type Options struct {
	// File is an optional YAML file layered over defaults.
	File string
	// DotEnv is an optional .env file loaded into the process environment first.
	DotEnv string
	// Environ overrides os.Environ, mainly for tests.
	Environ func() []string
}

// Load builds a Config from defaults, an optional YAML file and the environment,
// in that order of precedence, then validates it.
func Load(opts Options) (*Config, error) {
	if opts.DotEnv != "" {
		if err := godotenv.Load(opts.DotEnv); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load dotenv %s: %w", opts.DotEnv, err)
		}
	}

	k := koanf.New(".")
	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if opts.File != "" {
		data, err := readYAML(opts.File)
		if err != nil {
			return nil, err
		}
		if err := k.Load(rawMap(data), nil); err != nil {
			return nil, fmt.Errorf("apply %s: %w", opts.File, err)
		}
	}

	envToPath := envMappings()
	if err := k.Load(env.Provider(".", env.Opt{
		Prefix:      "",
		EnvironFunc: opts.Environ,
		TransformFunc: func(key, value string) (string, any) {
			if path, ok := envToPath[key]; ok && value != "" {
				return path, value
			}
			return "", nil
		},
	}), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{
		Tag: "koanf",
		DecoderConfig: &mapstructure.DecoderConfig{
			WeaklyTypedInput: true,
			Result:           &cfg,
			TagName:          "koanf",
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				secondsToDurationHook(),
				mapstructure.StringToTimeDurationHookFunc(),
			),
		},
	}); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks field constraints declared in validate tags.
func Validate(cfg *Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// #endregion load

// #region paths

// QueryLogPath is the JSONL query log location.
func (c *Config) QueryLogPath() string {
	return filepath.Join(c.QueryLog.Dir, c.QueryLog.File)
}

// QueryDBPath is the SQLite query log location, or "" when disabled.
func (c *Config) QueryDBPath() string {
	if !c.QueryLog.EnableDB || c.QueryLog.DBPath == "" {
		return ""
	}
	if filepath.IsAbs(c.QueryLog.DBPath) {
		return c.QueryLog.DBPath
	}
	return filepath.Join(c.QueryLog.Dir, c.QueryLog.DBPath)
}

// #endregion paths

// #region helpers

type rawMap map[string]any

func (r rawMap) Read() (map[string]any, error) {
	return r, nil
}

func (r rawMap) ReadBytes() ([]byte, error) {
	return nil, fmt.Errorf("ReadBytes not implemented")
}

func readYAML(path string) (map[string]any, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	out := map[string]any{}
	if err := yaml.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return out, nil
}

// envMappings walks the env tags on Config and returns ENV_NAME -> koanf path.
// A tag may list several names; all map to the same path.
func envMappings() map[string]string {
	out := map[string]string{}
	walkEnvTags(reflect.TypeOf(Config{}), "", out)
	return out
}

func walkEnvTags(t reflect.Type, prefix string, out map[string]string) {
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		key := f.Tag.Get("koanf")
		if key == "" {
			continue
		}
		path := key
		if prefix != "" {
			path = prefix + "." + key
		}
		if f.Type.Kind() == reflect.Struct && f.Type != reflect.TypeOf(time.Duration(0)) {
			walkEnvTags(f.Type, path, out)
			continue
		}
		for _, name := range strings.Split(f.Tag.Get("env"), ",") {
			if name = strings.TrimSpace(name); name != "" {
				out[name] = path
			}
		}
	}
}

// secondsToDurationHook accepts bare integers as seconds, e.g. WEB_SEARCH_TIMEOUT=10.
func secondsToDurationHook() mapstructure.DecodeHookFuncType {
	return func(from reflect.Type, to reflect.Type, data any) (any, error) {
		if to != reflect.TypeOf(time.Duration(0)) || from.Kind() != reflect.String {
			return data, nil
		}
		s := strings.TrimSpace(data.(string))
		if n, err := strconv.Atoi(s); err == nil {
			return time.Duration(n) * time.Second, nil
		}
		return data, nil
	}
}

// #endregion helpers
