package config

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/zeromv/zeromv/pkg/errors"
)

// Candidates are probed in order when no config file is named.
var Candidates = []string{"config.yaml", "config.yml", "config.toml"}

// EnvPrefix prefixes every environment key.
const EnvPrefix = "ZEROMV_"

// LoadOptions tells [Load] where to look.
type LoadOptions struct {
	// Path names a config file explicitly; it must exist.
	Path string
	// Dir is searched for [Candidates] when Path is empty. Default ".".
	Dir string
	// Getenv reads the environment; nil disables the env layer.
	Getenv func(string) string
	// Flags holds explicitly set command-line values.
	Flags Layer
}

// Load resolves defaults, file, environment and flags into one Config.
// The result is not validated.
func Load(opts LoadOptions) (Config, error) {
	cfg := Defaults()

	path, err := FindFile(opts.Dir, opts.Path)
	if err != nil {
		return cfg, err
	}
	if path != "" {
		fileLayer, err := LoadFile(path)
		if err != nil {
			return cfg, err
		}
		cfg = Merge(cfg, fileLayer)
		cfg.Source = path
	}

	if opts.Getenv != nil {
		envLayer, err := FromEnv(opts.Getenv)
		if err != nil {
			return cfg, err
		}
		cfg = Merge(cfg, envLayer)
	}

	return Merge(cfg, opts.Flags), nil
}

// FindFile returns explicit when set, otherwise the first candidate that
// exists in dir. No file at all is not an error.
func FindFile(dir, explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", errors.Wrap(errors.ErrCodeConfig, err, "config file %s", explicit)
		}
		return explicit, nil
	}
	if dir == "" {
		dir = "."
	}
	for _, name := range Candidates {
		p := filepath.Join(dir, name)
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			return p, nil
		}
	}
	return "", nil
}

// LoadFile parses a YAML or TOML file by extension. Unknown keys are errors.
func LoadFile(path string) (Layer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Layer{}, errors.Wrap(errors.ErrCodeConfig, err, "read config %s", path)
	}
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		return parseTOML(path, data)
	}
	return parseYAML(path, data)
}

func parseYAML(path string, data []byte) (Layer, error) {
	var l Layer
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&l); err != nil && err != io.EOF {
		return Layer{}, errors.Wrap(errors.ErrCodeConfig, err, "parse %s", path)
	}
	return l, nil
}

func parseTOML(path string, data []byte) (Layer, error) {
	var l Layer
	md, err := toml.Decode(string(data), &l)
	if err != nil {
		return Layer{}, errors.Wrap(errors.ErrCodeConfig, err, "parse %s", path)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return Layer{}, errors.New(errors.ErrCodeConfig, "parse %s: unknown keys %s", path, strings.Join(keys, ", "))
	}
	return l, nil
}

// FromEnv reads the ZEROMV_* overlay.
func FromEnv(getenv func(string) string) (Layer, error) {
	var l Layer
	str := func(key string) *string {
		if v := strings.TrimSpace(getenv(EnvPrefix + key)); v != "" {
			return &v
		}
		return nil
	}

	l.Image = str("IMAGE")
	l.Out = str("OUT")
	l.ModelID = str("MODEL_ID")
	l.Device = str("DEVICE")
	l.Backend.Kind = str("BACKEND")
	l.Backend.URL = str("BACKEND_URL")
	l.Backend.Command = str("BACKEND_COMMAND")
	l.Cache.RedisAddr = str("REDIS_ADDR")
	l.History.MongoURI = str("MONGO_URI")
	l.Upload.AccessKey = str("UPLOAD_ACCESS_KEY")
	l.Upload.SecretKey = str("UPLOAD_SECRET_KEY")

	if s := str("STEPS"); s != nil {
		n, err := strconv.Atoi(*s)
		if err != nil {
			return Layer{}, errors.Wrap(errors.ErrCodeConfig, err, "%sSTEPS", EnvPrefix)
		}
		l.Steps = &n
	}
	return l, nil
}
