package recognize

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"
)

// Progress receives analysis progress as a percentage in [0, 100] and a
// human-readable status line.
type Progress interface {
	Report(percent int, status string)
}

// NoOpProgress discards every report.
type NoOpProgress struct{}

func (NoOpProgress) Report(int, string) {}

// FuncProgress adapts a plain function to Progress.
type FuncProgress func(percent int, status string)

func (f FuncProgress) Report(percent int, status string) { f(percent, status) }

// ConsoleProgress draws a single-line progress bar.
type ConsoleProgress struct {
	writer     io.Writer
	prefix     string
	width      int
	mu         sync.Mutex
	lastStatus string
	finished   bool
}

// NewConsoleProgress creates a console progress bar on writer (stderr when nil).
func NewConsoleProgress(writer io.Writer, prefix string) *ConsoleProgress {
	if writer == nil {
		writer = os.Stderr
	}
	return &ConsoleProgress{writer: writer, prefix: prefix, width: 30}
}

// WithWidth sets the bar width in cells.
func (c *ConsoleProgress) WithWidth(width int) *ConsoleProgress {
	if width > 0 {
		c.width = width
	}
	return c
}

func (c *ConsoleProgress) Report(percent int, status string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.finished {
		return
	}
	percent = clampPercent(percent)
	if status == "" {
		status = c.lastStatus
	}
	c.lastStatus = status

	filled := c.width * percent / 100
	bar := strings.Repeat("█", filled) + strings.Repeat("░", c.width-filled)
	_, _ = fmt.Fprintf(c.writer, "\r%s[%s] %3d%% %s", c.prefix, bar, percent, status)
	if percent == 100 {
		c.finished = true
		_, _ = fmt.Fprintln(c.writer)
	}
}

// LogProgress logs progress through slog, skipping reports that advance by
// less than step percent unless the status changed.
type LogProgress struct {
	logger      *slog.Logger
	level       slog.Level
	step        int
	mu          sync.Mutex
	lastPercent int
	lastStatus  string
	startTime   time.Time
}

// NewLogProgress creates a log-based progress reporter.
func NewLogProgress(logger *slog.Logger, level slog.Level) *LogProgress {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogProgress{logger: logger, level: level, step: 10, lastPercent: -1}
}

// WithStep sets the minimum percentage advance between log lines.
func (l *LogProgress) WithStep(step int) *LogProgress {
	l.step = step
	return l
}

func (l *LogProgress) Report(percent int, status string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.startTime.IsZero() {
		l.startTime = time.Now()
	}
	percent = clampPercent(percent)
	if status == l.lastStatus && percent-l.lastPercent < l.step && percent != 100 {
		return
	}
	l.lastPercent = percent
	l.lastStatus = status
	l.logger.Log(context.Background(), l.level, "Analysis progress",
		"percent", percent,
		"status", status,
		"elapsed", time.Since(l.startTime).Round(time.Millisecond),
	)
}

// MultiProgress fans reports out to several reporters.
type MultiProgress []Progress

func (m MultiProgress) Report(percent int, status string) {
	for _, p := range m {
		if p != nil {
			p.Report(percent, status)
		}
	}
}

func clampPercent(p int) int {
	return max(0, min(100, p))
}
