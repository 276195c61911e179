// Package config contains configuration options for a lectern server as well
// as the loading of them from files and the environment.
package config

import (
	"fmt"
	"strings"

	"github.com/dekarrin/lectern"
	"github.com/dekarrin/lectern/intercept"
	"github.com/dekarrin/lectern/internal/logging"
)

const (
	MaxSecretSize = 64
	MinSecretSize = 32
)

// EnvPrefix is the prefix of every environment variable that Load reads.
// For example, the listen address is read from LECTERN_LISTEN and the store
// type from LECTERN_STORE_TYPE.
const EnvPrefix = "LECTERN"

// Log contains logging options.
type Log struct {
	// Enabled is whether to enable built-in logging statements.
	Enabled bool

	// Provider must be the name of one of the logging providers. If set to
	// None or unset, it will default to lectern.Jellog.
	Provider lectern.LogProvider

	// File to log to. If not set, all logging will be done to stderr and it
	// will display all logging statements. If set, the file will receive all
	// levels of log messages and stderr will show only those of Info level or
	// higher.
	File string
}

// Create creates the Logger that log describes. If logging is not enabled, a
// Logger that discards everything is returned.
func (log Log) Create() (lectern.Logger, error) {
	if !log.Enabled {
		return logging.NoOpLogger{}, nil
	}
	return logging.New(log.Provider, log.File)
}

func (log Log) FillDefaults() Log {
	newLog := log

	if newLog.Provider == lectern.NoLog {
		newLog.Provider = lectern.Jellog
	}

	return newLog
}

func (log Log) Validate() error {
	if log.Provider == lectern.NoLog {
		return fmt.Errorf("provider: must not be empty")
	}

	return nil
}

// Throttle contains the options of the throttle interceptor. They are only
// used if "throttle" is one of the configured interceptors.
type Throttle struct {
	// RPS is the number of invocations of each operation allowed per second.
	RPS float64

	// Burst is the number of invocations of each operation allowed at once.
	Burst int
}

func (th Throttle) FillDefaults() Throttle {
	newTh := th

	if newTh.RPS == 0 {
		newTh.RPS = 100
	}
	if newTh.Burst == 0 {
		newTh.Burst = 50
	}

	return newTh
}

func (th Throttle) Validate() error {
	if th.RPS <= 0 {
		return fmt.Errorf("rps: must be greater than 0")
	}
	if th.Burst < 1 {
		return fmt.Errorf("burst: must be greater than 0")
	}
	return nil
}

// Config is a complete configuration for a server. It contains all parameters
// that can be used to configure its operation.
type Config struct {
	// Port is the port that the server will listen on. It will default to 8080
	// if none is given.
	Port int

	// Address is the internet address that the server will listen on. It will
	// default to "localhost" if none is given.
	Address string

	// URIBase is the base path that the book routes are rooted on. It will
	// default to "/", which is equivalent to being directly on root.
	URIBase string

	// AppName is bound into the root binding context under "app.name". It
	// defaults to "lectern".
	AppName string

	// Message is bound into the root binding context under "message" and is
	// returned by the ping route.
	Message string

	// Store is the configuration of the store that books are kept in. If not
	// provided, an in-memory store is used.
	Store Store

	// Log is used to configure the built-in logging system. It can be left
	// blank to disable logging entirely.
	Log Log

	// Interceptors are the names of the interceptors that every operation is
	// invoked through, outermost first. If nil, only the log interceptor is
	// used. An empty non-nil list means no interceptors.
	Interceptors []string

	// Throttle configures the throttle interceptor.
	Throttle Throttle

	// TokenSecret is the secret used to verify bearer tokens. If empty, no
	// token is required to call the book routes.
	TokenSecret []byte

	// format is the format of config, used in Dump.
	format Format
}

// FillDefaults returns a new Config identical to cfg but with unset values
// set to their defaults.
func (cfg Config) FillDefaults() Config {
	newCFG := cfg

	if newCFG.Port == 0 {
		newCFG.Port = 8080
	}
	if newCFG.Address == "" {
		newCFG.Address = "localhost"
	}
	if !strings.HasPrefix(newCFG.URIBase, "/") {
		newCFG.URIBase = "/" + newCFG.URIBase
	}
	if len(newCFG.URIBase) > 1 {
		newCFG.URIBase = strings.TrimSuffix(newCFG.URIBase, "/")
	}
	if newCFG.AppName == "" {
		newCFG.AppName = "lectern"
	}
	if newCFG.Message == "" {
		newCFG.Message = "Hello from " + newCFG.AppName
	}
	if newCFG.Interceptors == nil {
		newCFG.Interceptors = []string{intercept.NameLog}
	}
	newCFG.Store = newCFG.Store.FillDefaults()
	newCFG.Log = newCFG.Log.FillDefaults()
	newCFG.Throttle = newCFG.Throttle.FillDefaults()

	return newCFG
}

// Validate returns an error if the Config has invalid field values set. Empty
// and unset values are considered invalid; if defaults are intended to be used,
// call Validate on the return value of FillDefaults.
func (cfg Config) Validate() error {
	if cfg.Port < 1 {
		return fmt.Errorf("port: must be greater than 0")
	}
	if cfg.Address == "" {
		return fmt.Errorf("address: must not be empty")
	}
	if err := validateBaseURI(cfg.URIBase); err != nil {
		return fmt.Errorf("base: %w", err)
	}
	if err := cfg.Store.Validate(); err != nil {
		return fmt.Errorf("store: %w", err)
	}
	if err := cfg.Log.Validate(); err != nil {
		return fmt.Errorf("logging: %w", err)
	}

	seen := map[string]bool{}
	for i, name := range cfg.Interceptors {
		if !isKnownInterceptor(name) {
			return fmt.Errorf("interceptors[%d]: %q is not one of %s", i, name, strings.Join(KnownInterceptors, ", "))
		}
		if seen[name] {
			return fmt.Errorf("interceptors[%d]: %q is listed more than once", i, name)
		}
		seen[name] = true
	}
	if seen[intercept.NameThrottle] {
		if err := cfg.Throttle.Validate(); err != nil {
			return fmt.Errorf("throttle: %w", err)
		}
	}

	if len(cfg.TokenSecret) > 0 {
		if len(cfg.TokenSecret) < MinSecretSize {
			return fmt.Errorf("auth: secret must be at least %d bytes, but is %d", MinSecretSize, len(cfg.TokenSecret))
		}
		if len(cfg.TokenSecret) > MaxSecretSize {
			return fmt.Errorf("auth: secret must be no more than %d bytes, but is %d", MaxSecretSize, len(cfg.TokenSecret))
		}
	}

	return nil
}

// Listen returns the address the server listens on in ADDRESS:PORT form.
func (cfg Config) Listen() string {
	return fmt.Sprintf("%s:%d", cfg.Address, cfg.Port)
}

// KnownInterceptors are the interceptor names a Config may list.
var KnownInterceptors = []string{intercept.NameLog, intercept.NameMetrics, intercept.NameThrottle}

func isKnownInterceptor(name string) bool {
	for _, known := range KnownInterceptors {
		if name == known {
			return true
		}
	}
	return false
}

func validateBaseURI(base string) error {
	if strings.ContainsRune(base, '{') {
		return fmt.Errorf("contains disallowed char \"{\"")
	}
	if strings.ContainsRune(base, '}') {
		return fmt.Errorf("contains disallowed char \"}\"")
	}
	if strings.Contains(base, "//") {
		return fmt.Errorf("contains disallowed double-slash \"//\"")
	}
	return nil
}
