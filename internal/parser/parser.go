package parser

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/agp-analyzer/backend/internal/models"
)

// ProgressCallback is called periodically during parsing to report progress.
type ProgressCallback func(linesProcessed int, bytesProcessed int64, totalBytes int64)

// Parser defines the interface for log file parsers.
type Parser interface {
	// Name returns the unique name of the parser.
	Name() string
	// Kind returns the log format produced by this parser.
	Kind() models.LogKind
	// CanParse returns true if this parser can handle the given file.
	CanParse(filePath string) (bool, error)
	// Sniff reports whether the first line of a log belongs to this format.
	Sniff(firstLine string) bool
	// Parse parses the entire file and returns the result.
	Parse(filePath string) (*models.ParsedLog, error)
	// ParseWithProgress parses with progress callbacks for large files.
	ParseWithProgress(filePath string, onProgress ProgressCallback) (*models.ParsedLog, error)
	// ParseReader parses a complete log read from r.
	ParseReader(r io.Reader) (*models.ParsedLog, error)
	// ParseText parses a complete in-memory log.
	ParseText(text string) (*models.ParsedLog, error)
}

// FormatError reports a structurally required line that did not have the
// expected shape. It aborts the whole parse.
type FormatError struct {
	Line     int    // 1-based; 0 when the input ended early
	Content  string // offending line body
	Expected string // name of the construct that was expected
}

func (e *FormatError) Error() string {
	if e.Line == 0 {
		return fmt.Sprintf("unexpected end of log: expected %s", e.Expected)
	}
	return fmt.Sprintf("line %d: expected %s, got %q", e.Line, e.Expected, e.Content)
}

// ToParseError converts the error for session reporting.
func (e *FormatError) ToParseError() models.ParseError {
	return models.ParseError{Line: e.Line, Content: e.Content, Reason: "expected " + e.Expected}
}

// progressInterval is how many retained lines pass between progress reports.
const progressInterval = 10000

// readFile loads a whole log file. Both formats are line-oriented text
// of modest size, and the parsers need random access to the text.
func readFile(filePath string) (string, int64, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return "", 0, err
	}
	return string(data), int64(len(data)), nil
}

// readFirstLine returns the first line of a file without loading the rest.
func readFirstLine(filePath string) (string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return "", err
	}
	defer file.Close()

	return FirstLine(file)
}

// FirstLine reads the first line from r, stripping a UTF-8 BOM and CR.
func FirstLine(r io.Reader) (string, error) {
	reader := bufio.NewReader(r)
	line, err := reader.ReadString('\n')
	if err != nil && err != io.EOF {
		return "", err
	}
	line = strings.TrimPrefix(line, "\ufeff")
	return strings.TrimRight(line, "\r\n"), nil
}

// ParseTimestamp parses "YYYY-MM-DD HH:MM:SS" or "YYYY/MM/DD HH:MM:SS" in loc
// using manual parsing for speed.
func ParseTimestamp(ts string, loc *time.Location) (time.Time, error) {
	if len(ts) < 19 {
		return time.Time{}, fmt.Errorf("timestamp too short: %s", ts)
	}
	if !isTimestampPrefix(ts) {
		return time.Time{}, fmt.Errorf("invalid timestamp: %s", ts)
	}

	year := parseInt4(ts[0:4])
	month := parseInt2(ts[5:7])
	day := parseInt2(ts[8:10])
	hour := parseInt2(ts[11:13])
	min := parseInt2(ts[14:16])
	sec := parseInt2(ts[17:19])

	if month < 1 || month > 12 || day < 1 || day > 31 ||
		hour > 23 || min > 59 || sec > 59 {
		return time.Time{}, fmt.Errorf("timestamp out of range: %s", ts)
	}

	// Fractional seconds are rare but PHD2 debug builds emit them
	var nsec int
	if len(ts) > 20 && ts[19] == '.' {
		frac := ts[20:]
		n := 0
		for n < len(frac) && n < 9 && frac[n] >= '0' && frac[n] <= '9' {
			n++
		}
		nsec = parseIntN(frac, n)
		for i := n; i < 9; i++ {
			nsec *= 10
		}
	}

	if loc == nil {
		loc = time.UTC
	}
	return time.Date(year, time.Month(month), day, hour, min, sec, nsec, loc), nil
}

// isTimestampPrefix checks the fixed-width date/time shape without regex.
func isTimestampPrefix(s string) bool {
	if len(s) < 19 {
		return false
	}
	for i := 0; i < 19; i++ {
		c := s[i]
		switch i {
		case 4, 7:
			if c != '-' && c != '/' {
				return false
			}
		case 10:
			if c != ' ' && c != 'T' {
				return false
			}
		case 13, 16:
			if c != ':' {
				return false
			}
		default:
			if c < '0' || c > '9' {
				return false
			}
		}
	}
	return true
}

// parseInt2 parses a 2-digit decimal string. Returns -1 on error.
func parseInt2(s string) int {
	if len(s) != 2 {
		return -1
	}
	d1, d2 := s[0]-'0', s[1]-'0'
	if d1 > 9 || d2 > 9 {
		return -1
	}
	return int(d1)*10 + int(d2)
}

// parseInt4 parses a 4-digit decimal string. Returns -1 on error.
func parseInt4(s string) int {
	if len(s) != 4 {
		return -1
	}
	d1, d2, d3, d4 := s[0]-'0', s[1]-'0', s[2]-'0', s[3]-'0'
	if d1 > 9 || d2 > 9 || d3 > 9 || d4 > 9 {
		return -1
	}
	return int(d1)*1000 + int(d2)*100 + int(d3)*10 + int(d4)
}

// parseIntN parses an n-digit decimal string. Returns 0 on error.
func parseIntN(s string, n int) int {
	result := 0
	for i := 0; i < n; i++ {
		d := s[i] - '0'
		if d > 9 {
			return 0
		}
		result = result*10 + int(d)
	}
	return result
}

// numericPrefix returns the longest leading substring of s that looks like
// a decimal number, after trimming spaces. Log fields such as
// "960, have dark" or "2000 ms" carry their value at the front.
func numericPrefix(s string) string {
	s = strings.TrimSpace(s)
	end := 0
	if end < len(s) && (s[end] == '+' || s[end] == '-') {
		end++
	}
	digits := false
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
		digits = true
	}
	if end < len(s) && s[end] == '.' {
		end++
		for end < len(s) && s[end] >= '0' && s[end] <= '9' {
			end++
			digits = true
		}
	}
	if !digits {
		return ""
	}
	// Optional exponent, only when followed by digits
	if end < len(s) && (s[end] == 'e' || s[end] == 'E') {
		exp := end + 1
		if exp < len(s) && (s[exp] == '+' || s[exp] == '-') {
			exp++
		}
		start := exp
		for exp < len(s) && s[exp] >= '0' && s[exp] <= '9' {
			exp++
		}
		if exp > start {
			end = exp
		}
	}
	return s[:end]
}

// leadingFloat parses the numeric prefix of s.
func leadingFloat(s string) (float64, bool) {
	p := numericPrefix(s)
	if p == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(p, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// leadingInt parses the integer part of the numeric prefix of s.
func leadingInt(s string) (int, bool) {
	v, ok := leadingFloat(s)
	if !ok {
		return 0, false
	}
	return int(v), true
}

// floatField parses a header or telemetry number; missing values read as 0.
func floatField(s string) float64 {
	v, _ := leadingFloat(s)
	return v
}

// intField parses a header or telemetry integer; missing values read as 0.
func intField(s string) int {
	v, _ := leadingInt(s)
	return v
}

// unquote strips every double quote from a CSV cell.
func unquote(s string) string {
	return strings.ReplaceAll(strings.TrimSpace(s), `"`, "")
}
