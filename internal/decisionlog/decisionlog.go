// Package decisionlog appends one structured record per pipeline
// decision to a daily JSONL file. The schema is fixed so paper and
// live runs diff cleanly.
package decisionlog

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/allendforbes/0dte-bot-v2-sub000/internal/observ"
)

// Decision kinds.
const (
	KindEntry = "ENTRY"
	KindHold  = "HOLD"
	KindExit  = "EXIT"
	KindBlock = "BLOCK"
)

// Record is one decision. Score, Grade, and Price are zero-valued for
// decisions that never reached signal building.
type Record struct {
	TS       time.Time `json:"ts"`
	Phase    string    `json:"phase"`
	Symbol   string    `json:"symbol"`
	Decision string    `json:"decision"`
	Reason   string    `json:"reason"`
	Score    float64   `json:"score"`
	Grade    string    `json:"grade"`
	Price    float64   `json:"price"`
}

// Logger appends records serially. Safe for use from both event
// dispatch goroutines.
type Logger struct {
	mu    sync.Mutex
	phase string
	dir   string
	w     io.Writer // non-nil overrides file output
	day   string
	f     *os.File
	now   func() time.Time
}

// New writes daily files under dir, one line per decision. Phase is
// "shadow", "paper", or "live".
func New(dir, phase string) (*Logger, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("decisionlog dir: %w", err)
	}
	return &Logger{phase: phase, dir: dir, now: time.Now}, nil
}

// NewWithWriter bypasses the filesystem.
func NewWithWriter(w io.Writer, phase string) *Logger {
	return &Logger{phase: phase, w: w, now: time.Now}
}

// Write appends one record, stamping ts and phase.
func (l *Logger) Write(symbol, decision, reason string, score float64, grade string, price float64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec := Record{
		TS:       l.now().UTC(),
		Phase:    l.phase,
		Symbol:   symbol,
		Decision: decision,
		Reason:   reason,
		Score:    score,
		Grade:    grade,
		Price:    price,
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	data = append(data, '\n')

	w := l.w
	if w == nil {
		f, err := l.file(rec.TS)
		if err != nil {
			return err
		}
		w = f
	}
	if _, err := w.Write(data); err != nil {
		return err
	}
	observ.IncCounter("decisions_logged_total", map[string]string{"symbol": symbol, "decision": decision})
	return nil
}

// file returns the open handle for the record's UTC day, rolling to a
// new file at midnight.
func (l *Logger) file(ts time.Time) (*os.File, error) {
	day := ts.Format("20060102")
	if l.f != nil && day == l.day {
		return l.f, nil
	}
	if l.f != nil {
		l.f.Close()
	}
	path := filepath.Join(l.dir, "decisions-"+day+".jsonl")
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("decisionlog open: %w", err)
	}
	l.f = f
	l.day = day
	return f, nil
}

// Close releases the current file handle, if any.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.f == nil {
		return nil
	}
	err := l.f.Close()
	l.f = nil
	return err
}
