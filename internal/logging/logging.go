// Package logging provides creation of lectern.Logger implementations.
//
// Loggers made here write through one of two backends, jellog or the standard
// library log package, and can be narrowed to a single request with
// ForRequest so every line about that request carries its ID.
package logging

import (
	"errors"
	"fmt"
	"io"
	stdlog "log"
	"net"
	"net/http"
	"os"

	"github.com/dekarrin/jellog"
	"github.com/dekarrin/lectern"
)

// New creates a new logger of the given provider. If filename is blank, it will
// not log to disk, only stderr, and the stderr logger will be configured at
// trace level instead of info level.
func New(p lectern.LogProvider, filename string) (lectern.Logger, error) {
	switch p {
	case lectern.NoLog:
		return nil, errors.New("log provider cannot be NoLog")
	case lectern.Jellog:
		j := jellog.New(jellog.Defaults[string]().WithComponent("lectern"))
		if filename == "" {
			j.AddHandler(jellog.LvTrace, jellog.NewStderrHandler(nil))
			return logger{out: jellogSink{j: j}}, nil
		}

		fh, err := jellog.OpenFile(filename, nil)
		if err != nil {
			return nil, fmt.Errorf("open logfile: %q: %w", filename, err)
		}
		j.AddHandler(jellog.LvTrace, fh)
		j.AddHandler(jellog.LvInfo, jellog.NewStderrHandler(nil))
		return logger{out: jellogSink{j: j}}, nil
	case lectern.StdLog:
		var w io.Writer = os.Stderr
		if filename != "" {
			f, err := os.OpenFile(filename, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0666)
			if err != nil {
				return nil, fmt.Errorf("open logfile: %q: %w", filename, err)
			}
			w = io.MultiWriter(os.Stderr, f)
		}
		return NewStd(w), nil
	default:
		return nil, fmt.Errorf("unknown provider: %q", p.String())
	}
}

// NewStd creates a Logger that writes every level to w using the standard
// library log package.
func NewStd(w io.Writer) lectern.Logger {
	return logger{out: stdSink{std: stdlog.New(w, "", stdlog.Ldate|stdlog.Ltime|stdlog.LUTC)}}
}

// ForRequest returns a Logger that writes to log with every message prefixed
// by the given request ID. Results logged through it are attributed to that
// request as well.
func ForRequest(log lectern.Logger, requestID string) lectern.Logger {
	if _, ok := log.(NoOpLogger); ok {
		return log
	}
	tag := "[" + requestID + "] "
	if l, ok := log.(logger); ok {
		l.prefix += tag
		return l
	}
	return logger{out: foreignSink{log: log}, prefix: tag}
}

// NoOpLogger is a logger that performs no operations.
type NoOpLogger struct{}

func (log NoOpLogger) Debug(msg string)                              {}
func (log NoOpLogger) Warn(msg string)                               {}
func (log NoOpLogger) Trace(msg string)                              {}
func (log NoOpLogger) Info(msg string)                               {}
func (log NoOpLogger) Error(msg string)                              {}
func (log NoOpLogger) Debugf(msg string, a ...interface{})           {}
func (log NoOpLogger) Warnf(msg string, a ...interface{})            {}
func (log NoOpLogger) Tracef(msg string, a ...interface{})           {}
func (log NoOpLogger) Infof(msg string, a ...interface{})            {}
func (log NoOpLogger) Errorf(msg string, a ...interface{})           {}
func (log NoOpLogger) ErrorBreak()                                   {}
func (log NoOpLogger) InfoBreak()                                    {}
func (log NoOpLogger) WarnBreak()                                    {}
func (log NoOpLogger) TraceBreak()                                   {}
func (log NoOpLogger) DebugBreak()                                   {}
func (log NoOpLogger) LogResult(req *http.Request, r lectern.Result) {}

type level int

const (
	lvTrace level = iota
	lvDebug
	lvInfo
	lvWarn
	lvError
)

// sink is a backend that a logger hands finished messages to.
type sink interface {
	write(lv level, msg string)
	brk(lv level)
}

// logger is the lectern.Logger returned by this package. prefix is prepended
// to every message.
type logger struct {
	out    sink
	prefix string
}

func (l logger) emit(lv level, msg string) {
	l.out.write(lv, l.prefix+msg)
}

func (l logger) Trace(msg string)                    { l.emit(lvTrace, msg) }
func (l logger) Tracef(msg string, a ...interface{}) { l.emit(lvTrace, fmt.Sprintf(msg, a...)) }
func (l logger) TraceBreak()                         { l.out.brk(lvTrace) }
func (l logger) Debug(msg string)                    { l.emit(lvDebug, msg) }
func (l logger) Debugf(msg string, a ...interface{}) { l.emit(lvDebug, fmt.Sprintf(msg, a...)) }
func (l logger) DebugBreak()                         { l.out.brk(lvDebug) }
func (l logger) Info(msg string)                     { l.emit(lvInfo, msg) }
func (l logger) Infof(msg string, a ...interface{})  { l.emit(lvInfo, fmt.Sprintf(msg, a...)) }
func (l logger) InfoBreak()                          { l.out.brk(lvInfo) }
func (l logger) Warn(msg string)                     { l.emit(lvWarn, msg) }
func (l logger) Warnf(msg string, a ...interface{})  { l.emit(lvWarn, fmt.Sprintf(msg, a...)) }
func (l logger) WarnBreak()                          { l.out.brk(lvWarn) }
func (l logger) Error(msg string)                    { l.emit(lvError, msg) }
func (l logger) Errorf(msg string, a ...interface{}) { l.emit(lvError, fmt.Sprintf(msg, a...)) }
func (l logger) ErrorBreak()                         { l.out.brk(lvError) }

// LogResult writes one line describing the response r made to req. Successes
// are logged at Info, client errors at Warn, and server errors at Error, so
// that the failures a Sequence turns into HTTP 500 stand out.
func (l logger) LogResult(req *http.Request, r lectern.Result) {
	// the ephemeral port of the client is not useful
	client, _, err := net.SplitHostPort(req.RemoteAddr)
	if err != nil {
		client = req.RemoteAddr
	}

	line := fmt.Sprintf("%s %s from %s: HTTP-%d", req.Method, req.URL.Path, client, r.Status)
	if r.InternalMsg != "" {
		line += " " + r.InternalMsg
	}

	switch {
	case !r.IsErr:
		l.emit(lvInfo, line)
	case r.Status >= http.StatusInternalServerError:
		l.emit(lvError, line)
	default:
		l.emit(lvWarn, line)
	}
}

type stdSink struct {
	std *stdlog.Logger
}

var stdLevelNames = [...]string{
	lvTrace: "TRACE ",
	lvDebug: "DEBUG ",
	lvInfo:  "INFO  ",
	lvWarn:  "WARN  ",
	lvError: "ERROR ",
}

func (s stdSink) write(lv level, msg string) {
	s.std.Print(stdLevelNames[lv] + msg)
}

func (s stdSink) brk(lv level) {
	s.std.Print("")
}

type jellogSink struct {
	j jellog.Logger[string]
}

var jellogLevels = [...]jellog.Level{
	lvTrace: jellog.LvTrace,
	lvDebug: jellog.LvDebug,
	lvInfo:  jellog.LvInfo,
	lvWarn:  jellog.LvWarn,
	lvError: jellog.LvError,
}

func (s jellogSink) write(lv level, msg string) {
	switch lv {
	case lvTrace:
		s.j.Trace(msg)
	case lvDebug:
		s.j.Debug(msg)
	case lvInfo:
		s.j.Info(msg)
	case lvWarn:
		s.j.Warn(msg)
	default:
		s.j.Error(msg)
	}
}

func (s jellogSink) brk(lv level) {
	s.j.InsertBreak(jellogLevels[lv])
}

// foreignSink adapts a lectern.Logger made outside this package.
type foreignSink struct {
	log lectern.Logger
}

func (s foreignSink) write(lv level, msg string) {
	switch lv {
	case lvTrace:
		s.log.Trace(msg)
	case lvDebug:
		s.log.Debug(msg)
	case lvInfo:
		s.log.Info(msg)
	case lvWarn:
		s.log.Warn(msg)
	default:
		s.log.Error(msg)
	}
}

func (s foreignSink) brk(lv level) {
	switch lv {
	case lvTrace:
		s.log.TraceBreak()
	case lvDebug:
		s.log.DebugBreak()
	case lvInfo:
		s.log.InfoBreak()
	case lvWarn:
		s.log.WarnBreak()
	default:
		s.log.ErrorBreak()
	}
}
