package observability

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// Level is a tracing verbosity level, ordered Debug < Info < Warn < Error <
// Off so that "emit if event level >= threshold" also naturally disables a
// sink when its threshold is Off.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelOff
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "OFF"
	}
}

func parseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug", "trace":
		return LevelDebug
	case "info":
		return LevelInfo
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelOff
	}
}

// directive is one clause of an SF_LOG/SF_DEV_LOG filter string, modeled as
// a small directive mini-language (`target=level,target=level`) the way
// tracing_subscriber::EnvFilter directives work (SPEC_FULL.md domain-stack
// supplement 4), rather than a single global level, since per-target
// overrides (e.g. "mapstd=debug") are the whole point of the developer
// workflow these env vars serve.
type directive struct {
	target string // "" matches any target (a bare level directive)
	level  Level
}

func parseDirectives(spec string) []directive {
	var out []directive
	for _, part := range strings.Split(spec, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if eq := strings.IndexByte(part, '='); eq >= 0 {
			out = append(out, directive{target: part[:eq], level: parseLevel(part[eq+1:])})
		} else {
			out = append(out, directive{level: parseLevel(part)})
		}
	}
	return out
}

// resolveLevel picks the threshold for target: the longest matching
// target-prefixed directive wins, falling back to a bare directive, then to
// def.
func resolveLevel(directives []directive, target string, def Level) Level {
	best := def
	bestLen := -1
	hasBare := false
	for _, d := range directives {
		if d.target == "" {
			if !hasBare {
				hasBare = true
				if bestLen < 0 {
					best = d.level
					bestLen = 0
				}
			}
			continue
		}
		if strings.HasPrefix(target, d.target) && len(d.target) > bestLen {
			best = d.level
			bestLen = len(d.target)
		}
	}
	return best
}

// Router implements the four-sink layout from spec.md §4.9. It owns no
// state beyond its writers/directives/buffers, matching the teacher's
// Logger's "wrap a plain writer, add level filtering" shape, but dispatches
// by target instead of carrying one fixed level.
type Router struct {
	mu sync.Mutex

	userWriter     io.Writer
	userDirectives []directive

	devWriter     io.Writer
	devDirectives []directive

	metrics *SharedEventBuffer
	dump    *SharedEventBuffer
}

// NewRouter builds a Router reading SF_LOG/SF_DEV_LOG from the environment,
// matching core/observability/mod.rs's init_tracing wiring (user layer
// default WARN, developer layer default OFF).
func NewRouter(metrics, dump *SharedEventBuffer) *Router {
	return &Router{
		userWriter:     os.Stdout,
		userDirectives: parseDirectives(os.Getenv("SF_LOG")),
		devWriter:      os.Stderr,
		devDirectives:  parseDirectives(os.Getenv("SF_DEV_LOG")),
		metrics:        metrics,
		dump:           dump,
	}
}

func (r *Router) formatLine(target string, level Level, message string) string {
	return fmt.Sprintf("%s %-5s %s %s\n", time.Now().UTC().Format(time.RFC3339), level, target, message)
}

// Log routes one event by target, writing to whichever sinks currently
// accept it.
func (r *Router) Log(target string, level Level, message string) {
	line := r.formatLine(target, level, message)

	r.mu.Lock()
	defer r.mu.Unlock()

	if strings.HasPrefix(target, "@user") && level >= resolveLevel(r.userDirectives, target, LevelWarn) {
		fmt.Fprint(r.userWriter, line)
	}
	if level >= resolveLevel(r.devDirectives, target, LevelOff) {
		fmt.Fprint(r.devWriter, line)
	}
	if !strings.HasPrefix(target, "@metrics") {
		r.dump.Write(append([]byte(line), eventSeparator))
	}
}

// LogMetric serializes event as one JSON line into the metrics buffer
// (always on, regardless of SF_LOG/SF_DEV_LOG) and also routes it through
// the developer sink for live visibility, mirroring the dual
// tracing::info!+log_metric_event emission in metrics.rs.
func (r *Router) LogMetric(jsonEvent []byte) {
	r.metrics.Write(append(append([]byte{}, jsonEvent...), eventSeparator))
	r.Log("@metrics", LevelInfo, string(jsonEvent))
}

// Logger is a target-scoped view over a Router, matching the teacher's
// Logger method set (Info/Infof/Error/Errorf/Debug/Debugf) so existing
// call-site idioms only need a target added at construction.
type Logger struct {
	router *Router
	target string
}

// For returns a Logger scoped to target (e.g. "@user", "@user/perform",
// "mapstd", "security").
func (r *Router) For(target string) *Logger {
	return &Logger{router: r, target: target}
}

func (l *Logger) Debug(msg string) { l.router.Log(l.target, LevelDebug, msg) }
func (l *Logger) Debugf(format string, args ...any) {
	l.Debug(fmt.Sprintf(format, args...))
}

func (l *Logger) Info(msg string) { l.router.Log(l.target, LevelInfo, msg) }
func (l *Logger) Infof(format string, args ...any) {
	l.Info(fmt.Sprintf(format, args...))
}

func (l *Logger) Warn(msg string) { l.router.Log(l.target, LevelWarn, msg) }
func (l *Logger) Warnf(format string, args ...any) {
	l.Warn(fmt.Sprintf(format, args...))
}

func (l *Logger) Error(msg string) { l.router.Log(l.target, LevelError, msg) }
func (l *Logger) Errorf(format string, args ...any) {
	l.Error(fmt.Sprintf(format, args...))
}
