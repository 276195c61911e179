package server

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/dekarrin/lectern"
	"github.com/dekarrin/lectern/bind"
	"github.com/dekarrin/lectern/books"
	"github.com/dekarrin/lectern/config"
	"github.com/dekarrin/lectern/dao"
	"github.com/dekarrin/lectern/intercept"
	"github.com/dekarrin/lectern/sequence"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/time/rate"
)

// Environment is a full lectern environment that contains everything needed
// to create a server. Creating an Environment prior to config loading allows
// custom store connectors to be registered before they are referred to.
type Environment struct {
	connectors *config.ConnectorRegistry

	DisableDefaults bool
}

func (env *Environment) initDefaults() {
	if env.connectors == nil {
		env.connectors = &config.ConnectorRegistry{DisableDefaults: env.DisableDefaults}
	}
}

// RegisterConnector allows the specification of additional store types. The
// registered type can then be given as the type of the store in config.
func (env *Environment) RegisterConnector(st config.StoreType, connector func(config.Store) (dao.Connector, error)) error {
	env.initDefaults()
	return env.connectors.Register(st, connector)
}

// LoadConfig loads a configuration from file, with environment variables
// taking precedence over what the file sets. If file is empty, only the
// environment is used.
func (env *Environment) LoadConfig(file string) (config.Config, error) {
	env.initDefaults()
	return config.Load(file)
}

// DumpConfig dumps the given config to bytes. If Format is not set on the
// Config, YAML is assumed.
func (env *Environment) DumpConfig(cfg config.Config) []byte {
	env.initDefaults()
	return config.Dump(cfg)
}

// NewServer creates a new Server from cfg. This is where the application is
// assembled: the logger is created, the store is opened and connected, every
// binding is registered in a new root context, and the interceptor chain named
// in cfg is built in order.
//
// If creation fails after the store was connected, the store is closed before
// NewServer returns.
func (env *Environment) NewServer(cfg *config.Config) (*Server, error) {
	env.initDefaults()

	// check config
	if cfg == nil {
		cfg = &config.Config{}
	} else {
		copy := new(config.Config)
		*copy = *cfg
		cfg = copy
	}
	*cfg = cfg.FillDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	// config is loaded, make the first thing we start be our logger
	logger, err := cfg.Log.Create()
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}

	store, err := env.connectors.Open(cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	if err := store.Connect(context.Background()); err != nil {
		store.Close()
		return nil, fmt.Errorf("connect %s store: %w", cfg.Store.Type, err)
	}
	logger.Debugf("Connected to %s store", cfg.Store.Type)

	root := newRootContext(*cfg, logger, store)

	metrics := prometheus.NewRegistry()
	metrics.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	chain, err := newInterceptorRegistry(*cfg, logger, metrics).Build(cfg.Interceptors)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("interceptors: %w", err)
	}
	if len(cfg.Interceptors) > 0 {
		logger.Debugf("Using interceptors (outermost first): %s", strings.Join(cfg.Interceptors, ", "))
	}

	for _, k := range root.Find(bind.All) {
		b, _ := root.Binding(k)
		logger.Debugf("Bound %s", b)
	}

	return &Server{
		mtx:     &sync.Mutex{},
		cfg:     *cfg,
		log:     logger,
		root:    root,
		store:   store,
		metrics: metrics,
		seq:     sequence.New(root, chain, logger),
	}, nil
}

// newRootContext creates the application-level binding context. Values that
// the rest of the application resolves at request time are bound here.
func newRootContext(cfg config.Config, logger lectern.Logger, store dao.Connector) *bind.Context {
	root := bind.New("application")

	bind.BindValue(root, bind.KeyLogger, logger)
	bind.BindValue(root, bind.KeyAppName, cfg.AppName)
	bind.BindValue(root, bind.KeyMessage, cfg.Message)
	root.Bind(dao.KeyStore, bind.ToValue(store))

	books.Register(root)

	root.Bind(KeyOpPing, bind.ToClass(pingOperation, bind.KeyMessage.String(), bind.KeyAppName.String())).
		InScope(bind.Singleton).
		WithTags(books.TagOperation)

	return root
}

// newInterceptorRegistry returns a registry holding a factory for each
// built-in interceptor. Metrics are registered with reg.
func newInterceptorRegistry(cfg config.Config, logger lectern.Logger, reg prometheus.Registerer) *intercept.Registry {
	ir := intercept.NewRegistry()

	ir.Register(intercept.NameLog, func() (intercept.Interceptor, error) {
		return intercept.Logging(logger), nil
	})
	ir.Register(intercept.NameMetrics, func() (intercept.Interceptor, error) {
		return intercept.Metrics(reg)
	})
	ir.Register(intercept.NameThrottle, func() (intercept.Interceptor, error) {
		return intercept.Throttle(rate.Limit(cfg.Throttle.RPS), cfg.Throttle.Burst), nil
	})

	return ir
}
