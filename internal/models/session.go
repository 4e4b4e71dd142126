package models

// SessionStatus represents the status of a parse session.
type SessionStatus string

const (
	SessionStatusPending  SessionStatus = "pending"
	SessionStatusParsing  SessionStatus = "parsing"
	SessionStatusComplete SessionStatus = "complete"
	SessionStatusError    SessionStatus = "error"
)

// ParseSession tracks one uploaded log through parsing. Counts are filled
// in once the result is ready.
type ParseSession struct {
	ID               string        `json:"id"`
	FileID           string        `json:"fileId"`
	Status           SessionStatus `json:"status"`
	Progress         float64       `json:"progress"` // 0-100
	Kind             LogKind       `json:"kind,omitempty"`
	SessionCount     int           `json:"sessionCount,omitempty"` // guiding sessions or autoruns
	RecordCount      int           `json:"recordCount,omitempty"`  // frames or exposures
	ProcessingTimeMs int64         `json:"processingTimeMs,omitempty"`
	StartTime        int64         `json:"startTime,omitempty"` // Unix ms
	EndTime          int64         `json:"endTime,omitempty"`   // Unix ms
	ParserName       string        `json:"parserName,omitempty"`
	Errors           []ParseError  `json:"errors,omitempty"`
}

// Finished reports whether parsing has stopped, successfully or not.
func (s *ParseSession) Finished() bool {
	return s.Status == SessionStatusComplete || s.Status == SessionStatusError
}

// ParseError locates a log line that did not have the expected shape.
type ParseError struct {
	Line    int    `json:"line"`
	Content string `json:"content"`
	Reason  string `json:"reason"`
}

// NewParseSession creates a new ParseSession in pending status.
func NewParseSession(id, fileID string) *ParseSession {
	return &ParseSession{
		ID:       id,
		FileID:   fileID,
		Status:   SessionStatusPending,
		Progress: 0,
		Errors:   make([]ParseError, 0),
	}
}
