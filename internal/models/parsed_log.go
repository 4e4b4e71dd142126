package models

import "time"

// LogKind identifies which log format a ParsedLog came from.
type LogKind string

const (
	LogKindGuiding LogKind = "guiding"
	LogKindAutorun LogKind = "autorun"
)

// ParsedLog represents the result of parsing a log file.
// Exactly one of Guiding and Autorun is set, matching Kind.
type ParsedLog struct {
	Kind      LogKind     `json:"kind"`
	Guiding   *PHDLog     `json:"guiding,omitempty"`
	Autorun   *AutorunLog `json:"autorun,omitempty"`
	TimeRange *TimeRange  `json:"timeRange,omitempty"`
}

// TimeRange represents a time window.
type TimeRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// NewGuidingResult wraps a PHD log and computes its overall time range.
func NewGuidingResult(log *PHDLog) *ParsedLog {
	res := &ParsedLog{Kind: LogKindGuiding, Guiding: log}
	for _, s := range log.GuidingSessions {
		res.extend(s.StartTime, s.EndTime)
	}
	for _, c := range log.CalibrationSessions {
		res.extend(c.DateTime, c.DateTime)
	}
	return res
}

// NewAutorunResult wraps an autorun log and computes its overall time range.
func NewAutorunResult(log *AutorunLog) *ParsedLog {
	res := &ParsedLog{Kind: LogKindAutorun, Autorun: log}
	for _, a := range log.Autoruns {
		res.extend(a.StartTime, a.EndTime)
	}
	return res
}

func (p *ParsedLog) extend(start, end time.Time) {
	if p.TimeRange == nil {
		p.TimeRange = &TimeRange{Start: start, End: end}
		return
	}
	if start.Before(p.TimeRange.Start) {
		p.TimeRange.Start = start
	}
	if end.After(p.TimeRange.End) {
		p.TimeRange.End = end
	}
}

// Summary counts the top-level records of the log.
func (p *ParsedLog) Summary() (sessions, records int) {
	switch p.Kind {
	case LogKindGuiding:
		if p.Guiding == nil {
			return 0, 0
		}
		for _, s := range p.Guiding.GuidingSessions {
			records += len(s.Frames)
		}
		return len(p.Guiding.GuidingSessions), records
	case LogKindAutorun:
		if p.Autorun == nil {
			return 0, 0
		}
		for _, a := range p.Autorun.Autoruns {
			records += len(a.ExposureEvents)
		}
		return len(p.Autorun.Autoruns), records
	}
	return 0, 0
}
