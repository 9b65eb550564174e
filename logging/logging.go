// Package logging provides the leveled debug output used across smbmux.
//
// Output goes through a Writer function so callers can redirect it to a
// terminal, a file or a test log. Messages raised from interrupt context
// must use the Async variants, which never block: when the queue is full
// the message is dropped.
package logging

import (
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"sync/atomic"
)

// Writer is a function type for writing a single log line
type Writer func(string)

// Level selects which messages are emitted
type Level int32

const (
	LevelError Level = iota
	LevelInfo
	LevelDebug
)

// AsyncQueueSize is the number of messages buffered for async output
const AsyncQueueSize = 64

func (l Level) String() string {
	switch l {
	case LevelError:
		return "error"
	case LevelInfo:
		return "info"
	case LevelDebug:
		return "debug"
	}
	return fmt.Sprintf("level(%d)", int32(l))
}

// ParseLevel converts a level name into a Level
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "error", "err":
		return LevelError, nil
	case "", "info":
		return LevelInfo, nil
	case "debug":
		return LevelDebug, nil
	}
	return LevelInfo, fmt.Errorf("unknown log level %q", s)
}

// sink is shared between a Logger and the children made by With
type sink struct {
	write   Writer
	level   atomic.Int32
	queue   atomic.Pointer[asyncQueue]
	once    sync.Once
	dropped atomic.Uint64
}

// asyncQueue is never closed; stop tells the worker to drain and exit
type asyncQueue struct {
	ch      chan string
	stop    chan struct{}
	done    chan struct{}
	stopped atomic.Bool
	close   sync.Once
}

// Logger writes prefixed, leveled messages. A nil *Logger discards
// everything, so components can hold one unconditionally.
type Logger struct {
	prefix string
	s      *sink
}

// New creates a logger writing to w
func New(prefix string, level Level, w Writer) *Logger {
	s := &sink{write: w}
	s.level.Store(int32(level))
	return &Logger{prefix: prefix, s: s}
}

// Std creates a logger backed by the standard library logger on stderr
func Std(prefix string, level Level) *Logger {
	std := log.New(os.Stderr, "", log.LstdFlags|log.Lmicroseconds)
	return New(prefix, level, func(s string) { std.Println(s) })
}

// Discard returns a logger that drops every message
func Discard() *Logger {
	return nil
}

// With returns a child logger sharing the same sink and level
func (l *Logger) With(prefix string) *Logger {
	if l == nil {
		return nil
	}
	p := prefix
	if l.prefix != "" {
		p = l.prefix + ": " + prefix
	}
	return &Logger{prefix: p, s: l.s}
}

// SetLevel changes the level for this logger and all of its children
func (l *Logger) SetLevel(level Level) {
	if l != nil {
		l.s.level.Store(int32(level))
	}
}

// Enabled reports whether messages at level would be written
func (l *Logger) Enabled(level Level) bool {
	return l != nil && l.s.write != nil && Level(l.s.level.Load()) >= level
}

func (l *Logger) format(level Level, format string, args []any) string {
	msg := fmt.Sprintf(format, args...)
	if l.prefix != "" {
		msg = l.prefix + ": " + msg
	}
	return "[" + strings.ToUpper(level.String()) + "] " + msg
}

func (l *Logger) logf(level Level, format string, args []any) {
	if !l.Enabled(level) {
		return
	}
	l.s.write(l.format(level, format, args))
}

func (l *Logger) Errorf(format string, args ...any) { l.logf(LevelError, format, args) }
func (l *Logger) Infof(format string, args ...any)  { l.logf(LevelInfo, format, args) }
func (l *Logger) Debugf(format string, args ...any) { l.logf(LevelDebug, format, args) }

// StartAsync starts the background worker draining async messages.
// Until it is called the Async variants write synchronously.
func (l *Logger) StartAsync() {
	if l == nil {
		return
	}
	l.s.once.Do(func() {
		q := &asyncQueue{
			ch:   make(chan string, AsyncQueueSize),
			stop: make(chan struct{}),
			done: make(chan struct{}),
		}
		go l.s.worker(q)
		l.s.queue.Store(q)
	})
}

func (s *sink) worker(q *asyncQueue) {
	defer close(q.done)
	for {
		select {
		case msg := <-q.ch:
			s.write(msg)
		case <-q.stop:
			for {
				select {
				case msg := <-q.ch:
					s.write(msg)
				default:
					return
				}
			}
		}
	}
}

// Close stops the async worker after flushing queued messages. Async
// messages raised after Close are counted as dropped. Close may be called
// more than once.
func (l *Logger) Close() {
	if l == nil {
		return
	}
	q := l.s.queue.Load()
	if q == nil {
		return
	}
	q.close.Do(func() {
		q.stopped.Store(true)
		close(q.stop)
	})
	<-q.done
}

// Dropped returns how many async messages were discarded
func (l *Logger) Dropped() uint64 {
	if l == nil {
		return 0
	}
	return l.s.dropped.Load()
}

// Async queues a message without blocking, dropping it if the queue is full
func (l *Logger) Async(level Level, format string, args ...any) {
	if !l.Enabled(level) {
		return
	}
	msg := l.format(level, format, args)
	q := l.s.queue.Load()
	if q == nil {
		l.s.write(msg)
		return
	}
	if q.stopped.Load() {
		l.s.dropped.Add(1)
		return
	}
	select {
	case q.ch <- msg:
	default:
		l.s.dropped.Add(1)
	}
}
