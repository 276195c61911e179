package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/dekarrin/lectern"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Format is a format that a Config can be stored in.
type Format int

const (
	NoFormat Format = iota
	JSON
	YAML
)

func (f Format) String() string {
	switch f {
	case NoFormat:
		return "none"
	case JSON:
		return "JSON"
	case YAML:
		return "YAML"
	default:
		return fmt.Sprintf("Format(%d)", int(f))
	}
}

// Extensions returns the file extensions, without a leading dot, of files in
// the format.
func (f Format) Extensions() []string {
	switch f {
	case JSON:
		return []string{"json", "jsn"}
	case YAML:
		return []string{"yaml", "yml"}
	default:
		return nil
	}
}

// SupportedFormats returns a list of formats that the config module supports
// decoding. Includes all but NoFormat.
func SupportedFormats() []Format {
	return []Format{JSON, YAML}
}

// DetectFormat detects the format of a given configuration file and returns the
// Format that can decode it. Returns NoFormat if the format could not be
// detected.
func DetectFormat(file string) Format {
	ext := strings.ToLower(filepath.Ext(file))
	ext = strings.TrimPrefix(ext, ".")

	for _, f := range SupportedFormats() {
		for _, checkedExt := range f.Extensions() {
			if ext == checkedExt {
				return f
			}
		}
	}

	return NoFormat
}

type marshaledStore struct {
	Type string `yaml:"type" json:"type"`
	Dir  string `yaml:"dir,omitempty" json:"dir,omitempty"`
	File string `yaml:"file,omitempty" json:"file,omitempty"`
	DSN  string `yaml:"dsn,omitempty" json:"dsn,omitempty"`
}

type marshaledLog struct {
	Enabled  bool   `yaml:"enabled" json:"enabled"`
	Provider string `yaml:"provider" json:"provider"`
	File     string `yaml:"file,omitempty" json:"file,omitempty"`
}

type marshaledThrottle struct {
	RPS   float64 `yaml:"rps" json:"rps"`
	Burst int     `yaml:"burst" json:"burst"`
}

type marshaledAuth struct {
	Secret string `yaml:"secret,omitempty" json:"secret,omitempty"`
}

type marshaledConfig struct {
	Listen       string            `yaml:"listen" json:"listen"`
	Base         string            `yaml:"base" json:"base"`
	AppName      string            `yaml:"app_name" json:"app_name" split_words:"true"`
	Message      string            `yaml:"message" json:"message"`
	Store        marshaledStore    `yaml:"store" json:"store"`
	Logging      marshaledLog      `yaml:"logging" json:"logging"`
	Interceptors []string          `yaml:"interceptors" json:"interceptors"`
	Throttle     marshaledThrottle `yaml:"throttle" json:"throttle"`
	Auth         marshaledAuth     `yaml:"auth" json:"auth"`
}

// Load loads a configuration from a JSON or YAML file and then applies any
// overrides given in LECTERN_* environment variables. The format of the file is
// determined by examining its extension; files ending in .json or .jsn are
// parsed as JSON files, and files ending in .yaml or .yml are parsed as YAML
// files. Other extensions are not supported. The extension is not
// case-sensitive.
//
// If file is empty, the Config is read from the environment alone.
//
// The returned Config has not had defaults filled or been validated.
func Load(file string) (Config, error) {
	var mc marshaledConfig
	f := NoFormat

	if file != "" {
		f = DetectFormat(file)
		if f == NoFormat {
			var exts []string
			for _, sf := range SupportedFormats() {
				for _, ext := range sf.Extensions() {
					exts = append(exts, "."+ext)
				}
			}
			return Config{}, fmt.Errorf("%s: incompatible format; must be one of %s", file, strings.Join(exts, ", "))
		}

		data, err := os.ReadFile(file)
		if err != nil {
			return Config{}, fmt.Errorf("%s: %w", file, err)
		}

		if err := decode(f, data, &mc); err != nil {
			return Config{}, fmt.Errorf("%s: %w", file, err)
		}
	}

	if err := envconfig.Process(EnvPrefix, &mc); err != nil {
		return Config{}, fmt.Errorf("environment: %w", err)
	}

	var cfg Config
	if err := cfg.unmarshal(mc); err != nil {
		return Config{}, err
	}
	cfg.format = f
	return cfg, nil
}

// Decode decodes a Config from data in the given format. Environment variables
// are not consulted.
func Decode(f Format, data []byte) (Config, error) {
	var mc marshaledConfig
	if err := decode(f, data, &mc); err != nil {
		return Config{}, err
	}

	var cfg Config
	if err := cfg.unmarshal(mc); err != nil {
		return Config{}, err
	}
	cfg.format = f
	return cfg, nil
}

// Dump dumps the configuration into the bytes of a formatted file. This is the
// complete representation of the current state of the Config, and if parsed by
// Load, would result in an equivalent config.
//
// The config will be dumped in the same format it was loaded with, or will
// default to YAML if the cfg was created without loading from a data stream.
//
// This function will cause a panic if there is a problem marshaling the config
// data in its format.
func Dump(cfg Config) []byte {
	f := cfg.format
	if f == NoFormat {
		f = YAML
	}

	mc := cfg.marshal()
	var data []byte
	var err error

	switch f {
	case JSON:
		data, err = json.MarshalIndent(mc, "", "  ")
	case YAML:
		data, err = yaml.Marshal(mc)
	default:
		err = fmt.Errorf("cannot marshal data in format %q", f.String())
	}
	if err != nil {
		panic(fmt.Sprintf("format encoding failed: %v", err))
	}
	return data
}

func decode(f Format, data []byte, mc *marshaledConfig) error {
	var err error

	switch f {
	case JSON:
		err = json.Unmarshal(data, mc)
	case YAML:
		err = yaml.Unmarshal(data, mc)
	default:
		return fmt.Errorf("cannot unmarshal data in format %q", f.String())
	}

	return err
}

// unmarshal completely replaces all attributes with the values or missing
// values in the marshaledConfig.
//
// does no validation except that which is required for parsing.
func (cfg *Config) unmarshal(m marshaledConfig) error {
	var err error

	// listen address part...
	if m.Listen != "" {
		bindParts := strings.SplitN(m.Listen, ":", 2)
		if len(bindParts) != 2 {
			return fmt.Errorf("listen: not in \"ADDRESS:PORT\" or \":PORT\" format")
		}
		cfg.Address = bindParts[0]
		cfg.Port, err = strconv.Atoi(bindParts[1])
		if err != nil {
			return fmt.Errorf("listen: %q is not a valid port number", bindParts[1])
		}
	}

	// ...and the rest
	cfg.URIBase = m.Base
	cfg.AppName = m.AppName
	cfg.Message = m.Message

	cfg.Store.Type, err = ParseStoreType(m.Store.Type)
	if err != nil {
		return fmt.Errorf("store: type: %w", err)
	}
	cfg.Store.Dir = m.Store.Dir
	cfg.Store.File = m.Store.File
	cfg.Store.DSN = m.Store.DSN

	cfg.Log.Enabled = m.Logging.Enabled
	cfg.Log.Provider, err = lectern.ParseLogProvider(m.Logging.Provider)
	if err != nil {
		return fmt.Errorf("logging: provider: %w", err)
	}
	cfg.Log.File = m.Logging.File

	cfg.Interceptors = nil
	if m.Interceptors != nil {
		cfg.Interceptors = make([]string, len(m.Interceptors))
		for i := range m.Interceptors {
			cfg.Interceptors[i] = strings.ToLower(strings.TrimSpace(m.Interceptors[i]))
		}
	}
	cfg.Throttle = Throttle{RPS: m.Throttle.RPS, Burst: m.Throttle.Burst}

	cfg.TokenSecret = nil
	if m.Auth.Secret != "" {
		cfg.TokenSecret = []byte(m.Auth.Secret)
	}

	return nil
}

// marshal converts cfg to the marshaledConfig that would recreate it if passed
// to unmarshal.
func (cfg Config) marshal() marshaledConfig {
	mc := marshaledConfig{
		Base:    cfg.URIBase,
		AppName: cfg.AppName,
		Message: cfg.Message,
		Store: marshaledStore{
			Type: cfg.Store.Type.String(),
			Dir:  cfg.Store.Dir,
			File: cfg.Store.File,
			DSN:  cfg.Store.DSN,
		},
		Logging: marshaledLog{
			Enabled:  cfg.Log.Enabled,
			Provider: cfg.Log.Provider.String(),
			File:     cfg.Log.File,
		},
		Interceptors: cfg.Interceptors,
		Throttle:     marshaledThrottle{RPS: cfg.Throttle.RPS, Burst: cfg.Throttle.Burst},
		Auth:         marshaledAuth{Secret: string(cfg.TokenSecret)},
	}

	if cfg.Address != "" || cfg.Port != 0 {
		mc.Listen = cfg.Listen()
	}

	return mc
}
