package parser

import (
	"io"
	"strings"
	"time"

	"github.com/agp-analyzer/backend/internal/models"
)

// ASIAIR autorun logs look like:
//
//	Log enabled at 2022/03/18 20:50:12
//	2022/03/18 20:55:01 [Autorun|Begin] M42 Start
//	2022/03/18 20:55:01 [AutoCenter|Begin] Auto-Center 1#
//	2022/03/18 20:55:01 Mount slews to target position: RA:05h35m17s DEC:-05°23'28"
//	...
//	2022/03/18 21:00:14 Exposure 300.0s image 1#
//	2022/03/18 23:10:40 [Autorun|End] M42 End

var (
	autorunHeaderRule = newRule("Log enabled header", `^Log enabled at (.*)$`)
	autorunBeginRule  = newRule("Autorun plan name", `\[Autorun\|Begin\] (.*) Start`)

	centerBeginRule  = newRule("AutoCenter attempt", `\[AutoCenter\|Begin\] Auto-Center (.*)#`)
	centerSlewRule   = newRule("Mount slews line", `Mount slews to target position: RA:(.*) DEC:(.*)`)
	centerSolveRule  = newRule("Solve succeeded line", `Solve succeeded: RA:(.*) DEC:(.*) Angle = (.*), Star number = (.*)`)
	centerTooFarRule = newRule("AutoCenter End line", `\[AutoCenter\|End\] Too far from center, distance = (.*)`)
	focusBeginRule   = newRule("AutoFocus begin line", `\[AutoFocus\|Begin\] (?:Run AF before Autorun start|Run AF .* later), exposure (.*), temperature (.*)℃`)
	focusVCurveRule  = newRule("Calculate V-Curve line", `Calculate V-Curve: detect and calculate star size (.*) ,  EAF position (.*)`)
	focusSucceeded   = newRule("Auto focus succeeded position line", `Auto focus succeeded, the focused position is (.*)`)
	exposureRule     = newRule("Exposure line", `Exposure (.*) image (.*)#`)
	shootingRule     = newRule("Shooting line", `Shooting (\d+) (\w+) frames`)
)

const (
	centeredLine      = "[AutoCenter|End] The target is centered"
	piersideWrongLine = "Pierside is wrong"
	cancelFocusLine   = "Cancel AF Manually"
	vCurveStartLine   = "Calculate V-Curve"
)

// AutorunLogParser handles ASIAIR autorun logs.
type AutorunLogParser struct {
	loc *time.Location
}

// NewAutorunLogParser creates a parser that reads timestamps as UTC.
func NewAutorunLogParser() *AutorunLogParser {
	return &AutorunLogParser{loc: time.UTC}
}

// WithLocation returns a copy of the parser that reads timestamps in loc.
func (p *AutorunLogParser) WithLocation(loc *time.Location) *AutorunLogParser {
	return &AutorunLogParser{loc: loc}
}

func (p *AutorunLogParser) Name() string {
	return "asiair_autorun_log"
}

func (p *AutorunLogParser) Kind() models.LogKind {
	return models.LogKindAutorun
}

func (p *AutorunLogParser) Sniff(firstLine string) bool {
	return strings.HasPrefix(firstLine, "Log enabled at")
}

func (p *AutorunLogParser) CanParse(filePath string) (bool, error) {
	line, err := readFirstLine(filePath)
	if err != nil {
		return false, err
	}
	return p.Sniff(line), nil
}

func (p *AutorunLogParser) Parse(filePath string) (*models.ParsedLog, error) {
	return p.ParseWithProgress(filePath, nil)
}

func (p *AutorunLogParser) ParseWithProgress(filePath string, onProgress ProgressCallback) (*models.ParsedLog, error) {
	text, _, err := readFile(filePath)
	if err != nil {
		return nil, err
	}
	log, err := p.parse(text, onProgress)
	if err != nil {
		return nil, err
	}
	return models.NewAutorunResult(log), nil
}

func (p *AutorunLogParser) ParseReader(r io.Reader) (*models.ParsedLog, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return p.ParseText(string(data))
}

func (p *AutorunLogParser) ParseText(text string) (*models.ParsedLog, error) {
	log, err := p.ParseAutorun(text)
	if err != nil {
		return nil, err
	}
	return models.NewAutorunResult(log), nil
}

// ParseAutorun parses a complete autorun log.
func (p *AutorunLogParser) ParseAutorun(text string) (*models.AutorunLog, error) {
	return p.parse(text, nil)
}

// Lines starting with "Log" are controller banners, not events.
func isAutorunSkippable(body string) bool {
	return body == "" || strings.HasPrefix(body, "Log")
}

// autorunBuilder accumulates one open autorun.
type autorunBuilder struct {
	run       models.Autorun
	frameType string
}

func (p *AutorunLogParser) parse(text string, onProgress ProgressCallback) (*models.AutorunLog, error) {
	text = strings.TrimPrefix(text, "\ufeff")
	first, _ := FirstLine(strings.NewReader(text))
	m := autorunHeaderRule.matches(first)
	if m == nil {
		return nil, &FormatError{Line: 1, Content: first, Expected: autorunHeaderRule.name}
	}
	started, err := ParseTimestamp(strings.TrimSpace(m[1]), p.loc)
	if err != nil {
		return nil, &FormatError{Line: 1, Content: first, Expected: "log start timestamp"}
	}

	log := &models.AutorunLog{
		Datetime: started,
		Autoruns: make([]models.Autorun, 0),
	}

	c := newLineCursor(text, isAutorunSkippable, p.loc)
	c.onProgress = onProgress

	// current is nil outside an autorun; markers there are inert
	var current *autorunBuilder

	for c.next() {
		line := c.line
		switch {
		case strings.HasPrefix(line, "[Autorun|Begin]"):
			m, err := autorunBeginRule.match(c)
			if err != nil {
				return nil, err
			}
			current = &autorunBuilder{run: models.Autorun{
				StartTime:        c.stamp,
				Plan:             m[1],
				ExposureEvents:   make([]models.ExposureEvent, 0),
				AutoCenterEvents: make([]models.AutoCenterEvent, 0),
				AutoFocusEvents:  make([]models.AutoFocusEvent, 0),
				DitherEvents:     make([]models.DitherEvent, 0),
			}}

		case current == nil:
			continue

		case strings.HasPrefix(line, "[Autorun|End]"):
			current.run.EndTime = c.stamp
			if len(current.run.ExposureEvents) > 0 {
				log.Autoruns = append(log.Autoruns, current.run)
			}
			current = nil

		case strings.HasPrefix(line, "[AutoCenter|Begin]"):
			ev, err := p.parseAutoCenter(c)
			if err != nil {
				return nil, err
			}
			current.run.AutoCenterEvents = append(current.run.AutoCenterEvents, ev)

		case strings.HasPrefix(line, "[AutoFocus|Begin]"):
			ev, err := p.parseAutoFocus(c)
			if err != nil {
				return nil, err
			}
			current.run.AutoFocusEvents = append(current.run.AutoFocusEvents, ev)

		case strings.HasPrefix(line, "[Guide] Dither"):
			current.run.DitherEvents = append(current.run.DitherEvents, parseDither(c))

		case strings.HasPrefix(line, "Shooting"):
			if s := shootingRule.matches(line); s != nil {
				current.frameType = capitalize(s[2])
			}

		case strings.HasPrefix(line, "Exposure"):
			m, err := exposureRule.match(c)
			if err != nil {
				return nil, err
			}
			current.run.ExposureEvents = append(current.run.ExposureEvents, models.ExposureEvent{
				IntegrationTime: m[1],
				Image:           intField(m[2]),
				Datetime:        c.stamp,
				Type:            current.frameType,
			})
		}
	}
	c.finish()

	return log, nil
}

// parseAutoCenter reads one centering attempt. The cursor starts on the
// begin marker and is left on the attempt's End line.
func (p *AutorunLogParser) parseAutoCenter(c *lineCursor) (models.AutoCenterEvent, error) {
	var ev models.AutoCenterEvent

	m, err := centerBeginRule.match(c)
	if err != nil {
		return ev, err
	}
	ev.Attempt = intField(m[1])
	ev.StartTime = c.stamp

	c.next()
	if m, err = centerSlewRule.match(c); err != nil {
		return ev, err
	}
	ev.TargetPosition = models.Position{RA: m[1], DEC: m[2]}

	// exposure and plate-solve progress lines
	c.next()
	c.next()
	c.next()
	if m, err = centerSolveRule.match(c); err != nil {
		return ev, err
	}
	ev.SolvedPosition = models.Position{RA: m[1], DEC: m[2]}
	ev.SolvedAngle = floatField(m[3])
	ev.DetectedStars = intField(m[4])

	c.next()
	if c.line == piersideWrongLine {
		c.next()
	}
	ev.EndTime = c.stamp
	if c.line == centeredLine {
		ev.IsCentered = true
		return ev, nil
	}
	if m, err = centerTooFarRule.match(c); err != nil {
		return ev, err
	}
	ev.DistanceFromCenter = m[1]
	return ev, nil
}

// parseAutoFocus reads one autofocus run. A run the operator cancelled is
// recorded with FocusPositionCancelled and ends at its End marker.
func (p *AutorunLogParser) parseAutoFocus(c *lineCursor) (models.AutoFocusEvent, error) {
	m, err := focusBeginRule.match(c)
	if err != nil {
		return models.AutoFocusEvent{}, err
	}
	ev := models.AutoFocusEvent{
		StartTime:          c.stamp,
		EndTime:            c.stamp,
		Temperature:        floatField(m[2]),
		VCurveMeasurements: make([]models.VCurveMeasurement, 0, 16),
		FocusPosition:      models.FocusPositionCancelled,
	}

	for c.line != vCurveStartLine {
		if c.line == cancelFocusLine {
			if !c.advanceUntil(func(s string) bool { return strings.HasPrefix(s, "[AutoFocus|End]") }) {
				return ev, c.fail("AutoFocus End line")
			}
			ev.EndTime = c.stamp
			return ev, nil
		}
		if !c.next() {
			return ev, c.fail("Calculate V-Curve line")
		}
	}

	c.next()
	for !strings.HasPrefix(c.line, "Find Focus Point") {
		m, err := focusVCurveRule.match(c)
		if err != nil {
			return ev, err
		}
		ev.VCurveMeasurements = append(ev.VCurveMeasurements, models.VCurveMeasurement{
			StarSize:    floatField(m[1]),
			EAFPosition: intField(m[2]),
			Datetime:    c.stamp,
		})
		c.next()
	}

	if !strings.HasPrefix(c.line, "Auto focus succeeded") &&
		!c.advanceUntil(func(s string) bool { return strings.HasPrefix(s, "Auto focus succeeded") }) {
		return ev, c.fail(focusSucceeded.name)
	}
	if m, err = focusSucceeded.match(c); err != nil {
		return ev, err
	}
	ev.FocusPosition = intField(m[1])
	ev.EndTime = c.stamp
	return ev, nil
}

// parseDither reads from the dither command to its settle result. A log
// that ends mid-settle yields an event ending at the last timestamp seen.
func parseDither(c *lineCursor) models.DitherEvent {
	ev := models.DitherEvent{StartTime: c.stamp}
	c.advanceUntil(func(s string) bool {
		return strings.Contains(s, "Settle Done") || strings.Contains(s, "Settle Timeout")
	})
	ev.EndTime = c.stamp
	ev.TimedOut = strings.Contains(c.line, "Settle Timeout")
	return ev
}

// capitalize upper-cases the first letter and lower-cases the rest,
// so "light" and "LIGHT" both read as "Light".
func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + strings.ToLower(s[1:])
}
