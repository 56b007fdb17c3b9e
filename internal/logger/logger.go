// Package logger is the single process-wide log used by the model and the
// tooling around it. Entries are tagged, consecutive duplicates are folded
// into a repeat count and only the most recent entries are kept.
package logger

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

// maximum number of entries kept by the central log.
const maxCentral = 512

// Entry is a single line in the log.
type Entry struct {
	Timestamp time.Time
	Tag       string
	Detail    string
	Repeated  int
}

func (e Entry) String() string {
	s := strings.Builder{}
	s.WriteString(e.Tag)
	s.WriteString(": ")
	s.WriteString(e.Detail)
	if e.Repeated > 0 {
		fmt.Fprintf(&s, " (repeat x%d)", e.Repeated+1)
	}
	s.WriteString("\n")
	return s.String()
}

type logger struct {
	mu         sync.Mutex
	maxEntries int
	entries    []Entry
	echo       io.Writer
}

var central = newLogger(maxCentral)

func newLogger(maxEntries int) *logger {
	return &logger{maxEntries: maxEntries}
}

func (l *logger) log(tag, detail string) {
	tag = strings.ReplaceAll(tag, "\n", "")
	detail = strings.ReplaceAll(detail, "\n", "")

	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	n := len(l.entries)
	if n > 0 && l.entries[n-1].Tag == tag && l.entries[n-1].Detail == detail {
		l.entries[n-1].Repeated++
		l.entries[n-1].Timestamp = now
	} else {
		l.entries = append(l.entries, Entry{Timestamp: now, Tag: tag, Detail: detail})
		n++
	}

	if n > l.maxEntries {
		l.entries = append(l.entries[:0], l.entries[n-l.maxEntries:]...)
	}

	if l.echo != nil {
		io.WriteString(l.echo, l.entries[len(l.entries)-1].String())
	}
}

// Log adds an entry to the central log.
func Log(tag, detail string) {
	central.log(tag, detail)
}

// Logf adds a formatted entry to the central log.
func Logf(tag, format string, args ...interface{}) {
	central.log(tag, fmt.Sprintf(format, args...))
}

// Clear removes every entry.
func Clear() {
	central.mu.Lock()
	central.entries = central.entries[:0]
	central.mu.Unlock()
}

// Write copies the whole log to output.
func Write(output io.Writer) {
	Tail(output, maxCentral)
}

// Tail writes the last number entries to output.
func Tail(output io.Writer, number int) {
	for _, e := range Recent(number) {
		io.WriteString(output, e.String())
	}
}

// Recent returns a copy of the last number entries, oldest first.
func Recent(number int) []Entry {
	central.mu.Lock()
	defer central.mu.Unlock()

	if number > len(central.entries) {
		number = len(central.entries)
	}
	if number <= 0 {
		return nil
	}
	out := make([]Entry, number)
	copy(out, central.entries[len(central.entries)-number:])
	return out
}

// SetEcho mirrors every new entry to output as it is logged. A nil writer
// turns echoing off.
func SetEcho(output io.Writer) {
	central.mu.Lock()
	central.echo = output
	central.mu.Unlock()
}
