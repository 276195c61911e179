/*
Lecternd starts a lectern book server.

Usage:

	lecternd [flags]

Once started, the server will listen for HTTP requests and respond to them as
configured. The endpoints are:

  - POST /books - create a book
  - GET /books - list all books
  - GET, PUT, PATCH, DELETE /books/{isbn} - read, replace, or remove a book
  - GET /ping - reply with the configured greeting
  - GET /metrics - prometheus metrics

The book endpoints are under the base URI for the server, if one is configured.
If an auth secret is configured, they also require a bearer token.

Configuration is read from the file given with --config and then from
LECTERN_* environment variables, which take precedence.

The flags are:

	-c, --config PATH
		Use the given file for the configuration. The file must be in JSON or
		YAML format. If not given, only the environment is used.

	-l, --listen ADDRESS:PORT
		Listen on the given address instead of the one in config.

	-t, --token SUBJECT
		Print a bearer token for SUBJECT signed with the configured auth secret
		and exit without starting the server.

	--ttl DURATION
		How long a token printed with --token is valid for. Defaults to 24h.
*/
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"time"

	"github.com/dekarrin/jellog"
	"github.com/dekarrin/lectern/config"
	"github.com/dekarrin/lectern/server"
	"github.com/dekarrin/lectern/token"
	"github.com/spf13/pflag"
)

const (
	exitSuccess   = 0
	exitError     = 1
	exitPanic     = 2
	exitInterrupt = 3
)

var exitCode int

var (
	flagConf   = pflag.StringP("config", "c", "", "Path to configuration file")
	flagListen = pflag.StringP("listen", "l", "", "Address to listen on, as ADDRESS:PORT")
	flagToken  = pflag.StringP("token", "t", "", "Print a bearer token for the given subject and exit")
	flagTTL    = pflag.Duration("ttl", 24*time.Hour, "Lifetime of the token printed with --token")
)

func main() {
	ctx := context.Background()
	ctx, cancelMainContext := context.WithCancel(ctx)
	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, os.Interrupt)
	defer func() {
		signal.Stop(signalChan)
		cancelMainContext()
	}()
	// listen for signals
	go func() {
		select {
		case <-signalChan: // first signal, cancel context
			cancelMainContext()
		case <-ctx.Done():
		}

		<-signalChan // second signal, hard exit
		os.Exit(exitInterrupt)
	}()

	defer func() {
		if panicErr := recover(); panicErr != nil {
			fmt.Fprintf(os.Stderr, "fatal panic: %v\n", panicErr)
			exitCode = exitPanic
		}
		os.Exit(exitCode)
	}()

	pflag.Parse()

	logger := jellog.New(jellog.Defaults[string]().
		WithComponent("lecternd"))
	logger.AddHandler(jellog.LvInfo, jellog.NewStderrHandler(nil))

	env := &server.Environment{}

	if *flagConf != "" {
		logger.Infof("Loading config file %s...", *flagConf)
	}
	conf, err := env.LoadConfig(*flagConf)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %s\n", err.Error())
		exitCode = exitError
		return
	}

	if *flagListen != "" {
		if err := setListen(&conf, *flagListen); err != nil {
			fmt.Fprintf(os.Stderr, "ERROR: --listen: %s\n", err.Error())
			exitCode = exitError
			return
		}
	}

	if pflag.CommandLine.Changed("token") {
		if err := printToken(conf, *flagToken, *flagTTL); err != nil {
			fmt.Fprintf(os.Stderr, "ERROR: %s\n", err.Error())
			exitCode = exitError
		}
		return
	}

	srv, err := env.NewServer(&conf)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %s\n", err.Error())
		exitCode = exitError
		return
	}

	logger.Infof("Routes:\n%s", srv.RoutesIndex())
	logger.Info("Starting server...")

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.ServeForever()
	}()

	logger.Info("Lectern server started; Ctrl-C (SIGINT) to stop")

	select {
	case <-ctx.Done():
		// ctrl-C likes to write "^C" or similar in some console output, so
		// insert a break right after that.
		logger.InsertBreak(jellog.LvAll)

		logger.Info("SIGINT received; cleaning up server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn(err.Error())
		}
		if err := <-serveErr; !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("Server encountered a problem: %v", err)
		}
		logger.Info("Server shutdown complete")
	case err := <-serveErr:
		logger.Errorf("Server encountered a problem: %v", err)
		if err := srv.Shutdown(context.Background()); err != nil {
			logger.Warn(err.Error())
		}
		exitCode = exitError
	}
}

func setListen(conf *config.Config, listen string) error {
	addr, portStr, err := net.SplitHostPort(listen)
	if err != nil {
		return err
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return fmt.Errorf("port %q is not a number", portStr)
	}
	conf.Address = addr
	conf.Port = port
	return nil
}

func printToken(conf config.Config, subject string, ttl time.Duration) error {
	if len(conf.TokenSecret) == 0 {
		return fmt.Errorf("no auth secret is configured")
	}
	if err := conf.FillDefaults().Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if subject == "" {
		return fmt.Errorf("--token: subject must not be empty")
	}

	tok, err := token.Generate(conf.TokenSecret, subject, ttl)
	if err != nil {
		return err
	}
	fmt.Println(tok)
	return nil
}
