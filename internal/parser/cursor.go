package parser

import (
	"strings"
	"time"
)

// lineCursor is the forward-only scan position shared by the log parsers.
// next is the only way to move it, so skipping and timestamp capture stay
// consistent for every sub-parser.
type lineCursor struct {
	lines []string
	idx   int // index of the current line, -1 before the first call to next

	line  string    // current body, timestamp prefix removed
	stamp time.Time // timestamp of the most recent prefixed line

	skip func(body string) bool
	loc  *time.Location

	// progress reporting
	onProgress ProgressCallback
	retained   int
	bytesRead  int64
	totalBytes int64
}

func newLineCursor(text string, skip func(string) bool, loc *time.Location) *lineCursor {
	if loc == nil {
		loc = time.UTC
	}
	return &lineCursor{
		lines:      strings.Split(text, "\n"),
		idx:        -1,
		skip:       skip,
		loc:        loc,
		totalBytes: int64(len(text)),
	}
}

// next advances to the next retained line. It returns false at end of input.
func (c *lineCursor) next() bool {
	for {
		c.idx++
		if c.idx >= len(c.lines) {
			c.idx = len(c.lines)
			c.line = ""
			return false
		}
		raw := strings.TrimSuffix(c.lines[c.idx], "\r")
		c.bytesRead += int64(len(c.lines[c.idx]) + 1)

		body := raw
		var stamp time.Time
		stamped := false
		if len(raw) >= 20 && raw[19] == ' ' && isTimestampPrefix(raw) {
			if ts, err := ParseTimestamp(raw[:19], c.loc); err == nil {
				stamp = ts
				stamped = true
				body = raw[20:]
			}
		}

		if c.skip != nil && c.skip(body) {
			continue
		}

		c.line = body
		if stamped {
			c.stamp = stamp
		}
		c.retained++
		if c.onProgress != nil && c.retained%progressInterval == 0 {
			c.onProgress(c.retained, c.bytesRead, c.totalBytes)
		}
		return true
	}
}

// advanceUntil moves forward until pred accepts the current body.
// It returns false if the input ends first.
func (c *lineCursor) advanceUntil(pred func(string) bool) bool {
	for c.next() {
		if pred(c.line) {
			return true
		}
	}
	return false
}

// lineNumber is the 1-based number of the current line.
func (c *lineCursor) lineNumber() int {
	if c.idx < 0 || c.idx >= len(c.lines) {
		return 0
	}
	return c.idx + 1
}

func (c *lineCursor) atEnd() bool {
	return c.idx >= len(c.lines)
}

// fail builds a FormatError for the current line.
func (c *lineCursor) fail(expected string) *FormatError {
	if c.atEnd() {
		return &FormatError{Expected: expected}
	}
	return &FormatError{Line: c.lineNumber(), Content: c.line, Expected: expected}
}

// finish reports final progress.
func (c *lineCursor) finish() {
	if c.onProgress != nil {
		c.onProgress(c.retained, c.totalBytes, c.totalBytes)
	}
}
