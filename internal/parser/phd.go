package parser

import (
	"io"
	"math"
	"strings"
	"time"

	"github.com/agp-analyzer/backend/internal/models"
)

// PHD2 guide logs look like:
//
//	PHD2 version 2.6.11, Log version 2.5. Log enabled at 2022-03-18 20:54:55
//	Guiding Begins at 2022-03-18 21:02:59
//	Dither = both axes, Dither scale = 1.000, ...
//	...
//	Frame,Time,mount,dx,dy,RARawDistance,...
//	1,1.894,"Mount",-0.335,-0.207,-0.348,0.194,-0.219,0.000,522,E,0,,,,1330,25.34,0
//	Guiding Ends at 2022-03-18 22:14:03

var (
	phdHeaderRule      = newRule("PHD2 log header", `^PHD2 version ?(.*?), Log version (.*?)\.? Log enabled at (.*)$`)
	guidingBeginsRule  = newRule("Guiding Begins line", `Guiding Begins at (.*)`)
	calibrationBegins  = newRule("Calibration Begins line", `Calibration Begins at (.*)`)
	calibrationResult  = newRule("calibration result", `^(West|North) calibration complete\. Angle = (.*) deg, Rate = (.*) px/sec, Parity = (.*)$`)
	calibrationStepDir = map[string]bool{"West": true, "East": true, "North": true, "South": true, "Backlash": true}
)

// Patterns shared by the guiding and calibration headers.
const (
	equipmentProfilePattern = `Equipment Profile = (.*)`
	cameraPattern           = `Camera = (.*), gain = (.*), full size = (.*) x (.*), (?:.*), (?:.*), pixel size = (.*) um`
	exposurePattern         = `Exposure = (.*) (?:.*)s`
	pixelScalePattern       = `Pixel scale = (.*) arc-sec/px, Binning = (.*), Focal length = (.*) mm`
	pointingPattern         = `Dec = (.*) deg, Hour angle = (.*) hr, Pier side = (.*), Rotator pos = (.*)`
	lockPositionPattern     = `Lock position = (.*), (.*), Star position = (.*), (.*), HFD = (.*) px`
)

// sessionHeaderRules is the fixed line sequence that follows "Guiding Begins".
var sessionHeaderRules = []fieldRule[models.GuidingSession]{
	field("dither settings", `Dither = (.*), Dither scale = (.*), Image noise reduction = (.*), (?:.*), (?:.*)`,
		func(s *models.GuidingSession, m []string) {
			s.Dither = m[1]
			s.DitherScale = floatField(m[2])
			s.ImageNoiseReduction = m[3]
		}),
	field("pixel scale", pixelScalePattern,
		func(s *models.GuidingSession, m []string) {
			s.PixelScale = floatField(m[1])
			s.Binning = intField(m[2])
			s.FocalLength = floatField(m[3])
		}),
	field("search region", `Search region = (.*) px, Star mass tolerance = (.*)%`,
		func(s *models.GuidingSession, m []string) {
			s.SearchRegionInPixels = floatField(m[1])
			s.StarMassTolerancePercentage = floatField(m[2])
		}),
	field("equipment profile", equipmentProfilePattern,
		func(s *models.GuidingSession, m []string) {
			s.EquipmentProfile = m[1]
		}),
	field("camera", cameraPattern,
		func(s *models.GuidingSession, m []string) {
			s.Camera = m[1]
			s.CameraGain = floatField(m[2])
			s.CameraWidth = intField(m[3])
			s.CameraHeight = intField(m[4])
			s.CameraPixelSize = floatField(m[5])
		}),
	field("exposure", exposurePattern,
		func(s *models.GuidingSession, m []string) {
			s.ExposureTime = floatField(m[1])
		}),
	field("mount", `Mount = (.*),  (?:.*), (?:.*), xAngle = (.*), xRate = (.*), yAngle = (.*), yRate = (.*), parity = (.*),`,
		func(s *models.GuidingSession, m []string) {
			s.Mount = m[1]
			s.XAngle = floatField(m[2])
			s.XRate = floatField(m[3])
			s.YAngle = floatField(m[4])
			s.YRate = floatField(m[5])
			s.Parity = m[6]
		}),
	field("X guide algorithm", `X guide algorithm = (.*), (?:.*), (?:.*), (?:.*)`,
		func(s *models.GuidingSession, m []string) {
			s.XGuidingAlgorithm = m[1]
		}),
	field("Y guide algorithm", `Y guide algorithm = (.*), (?:.*)`,
		func(s *models.GuidingSession, m []string) {
			s.YGuidingAlgorithm = m[1]
		}),
	field("backlash compensation", `Backlash comp = (.*), pulse = (?:.*) (?:.*)s`,
		func(s *models.GuidingSession, m []string) {
			s.BacklashCompensation = m[1]
		}),
	field("calibration limits", `Calibration step = (.*), Max RA duration = (.*), Max DEC duration = (.*), DEC guide mode = (.*)`,
		func(s *models.GuidingSession, m []string) {
			s.CalibrationStep = m[1]
			s.MaxRADuration = floatField(m[2])
			s.MaxDECDuration = floatField(m[3])
			s.DECGuideMode = m[4]
		}),
	field("guide speeds", `RA Guide Speed = (.*), Dec Guide Speed = (.*), Cal Dec = (?:.*), Last Cal Issue = (?:.*), Timestamp = (?:.*)`,
		func(s *models.GuidingSession, m []string) {
			s.RAGuideSpeed = m[1]
			s.DECGuideSpeed = m[2]
		}),
	field("pointing", pointingPattern,
		func(s *models.GuidingSession, m []string) {
			s.Degrees = floatField(m[1])
			s.HourAngle = floatField(m[2])
			s.PierSide = m[3]
			s.RotatorPosition = m[4]
		}),
	field("lock position", lockPositionPattern,
		func(s *models.GuidingSession, m []string) {
			s.LockPositionX = floatField(m[1])
			s.LockPositionY = floatField(m[2])
			s.StarPositionX = floatField(m[3])
			s.StarPositionY = floatField(m[4])
			s.HalfFluxDiameterInPixels = floatField(m[5])
		}),
}

// calibrationHeaderRules is the fixed line sequence that follows "Calibration Begins".
var calibrationHeaderRules = []fieldRule[models.CalibrationSession]{
	field("equipment profile", equipmentProfilePattern,
		func(s *models.CalibrationSession, m []string) {
			s.EquipmentProfile = m[1]
		}),
	field("camera", cameraPattern,
		func(s *models.CalibrationSession, m []string) {
			s.Camera = m[1]
			s.CameraPixelSize = floatField(m[5])
		}),
	field("exposure", exposurePattern,
		func(s *models.CalibrationSession, m []string) {
			s.Exposure = floatField(m[1])
		}),
	field("pixel scale", pixelScalePattern,
		func(s *models.CalibrationSession, m []string) {
			s.PixelScale = floatField(m[1])
			s.Binning = intField(m[2])
			s.FocalLength = floatField(m[3])
		}),
	field("calibration mount", `Mount = (.*), Calibration Step = (.*) ms, Calibration Distance = (.*) px, Assume orthogonal axes = (.*)`,
		func(s *models.CalibrationSession, m []string) {
			s.Mount = m[1]
			s.CalibrationStep = floatField(m[2])
			s.CalibrationDistance = floatField(m[3])
			s.AssumeOrthogonalAxes = strings.TrimSpace(m[4])
		}),
	field("pointing", pointingPattern,
		func(s *models.CalibrationSession, m []string) {
			s.Degrees = floatField(m[1])
			s.HourAngle = floatField(m[2])
			s.PierSide = m[3]
			s.RotatorPosition = m[4]
		}),
	field("lock position", lockPositionPattern,
		func(s *models.CalibrationSession, m []string) {
			s.LockPositionX = floatField(m[1])
			s.LockPositionY = floatField(m[2])
			s.StarPositionX = floatField(m[3])
			s.StarPositionY = floatField(m[4])
			s.HalfFluxDiameterInPixels = floatField(m[5])
		}),
}

// PHDLogParser handles PHD2 guide logs.
type PHDLogParser struct {
	loc    *time.Location
	intern *StringIntern
}

// NewPHDLogParser creates a parser that reads timestamps as UTC.
func NewPHDLogParser() *PHDLogParser {
	return &PHDLogParser{loc: time.UTC, intern: GetGlobalIntern()}
}

// WithLocation returns a copy of the parser that reads timestamps in loc.
func (p *PHDLogParser) WithLocation(loc *time.Location) *PHDLogParser {
	cp := *p
	cp.loc = loc
	return &cp
}

func (p *PHDLogParser) Name() string {
	return "phd2_guide_log"
}

func (p *PHDLogParser) Kind() models.LogKind {
	return models.LogKindGuiding
}

func (p *PHDLogParser) Sniff(firstLine string) bool {
	return strings.HasPrefix(firstLine, "PHD2")
}

func (p *PHDLogParser) CanParse(filePath string) (bool, error) {
	line, err := readFirstLine(filePath)
	if err != nil {
		return false, err
	}
	return p.Sniff(line), nil
}

func (p *PHDLogParser) Parse(filePath string) (*models.ParsedLog, error) {
	return p.ParseWithProgress(filePath, nil)
}

func (p *PHDLogParser) ParseWithProgress(filePath string, onProgress ProgressCallback) (*models.ParsedLog, error) {
	text, _, err := readFile(filePath)
	if err != nil {
		return nil, err
	}
	log, err := p.parse(text, onProgress)
	if err != nil {
		return nil, err
	}
	return models.NewGuidingResult(log), nil
}

func (p *PHDLogParser) ParseReader(r io.Reader) (*models.ParsedLog, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return p.ParseText(string(data))
}

func (p *PHDLogParser) ParseText(text string) (*models.ParsedLog, error) {
	log, err := p.ParsePHD(text)
	if err != nil {
		return nil, err
	}
	return models.NewGuidingResult(log), nil
}

// ParsePHD parses a complete PHD2 guide log.
func (p *PHDLogParser) ParsePHD(text string) (*models.PHDLog, error) {
	return p.parse(text, nil)
}

func isPHDSkippable(body string) bool {
	return body == "" || strings.HasPrefix(body, "INFO:")
}

func (p *PHDLogParser) parse(text string, onProgress ProgressCallback) (*models.PHDLog, error) {
	text = strings.TrimPrefix(text, "\ufeff")
	if !strings.HasPrefix(text, "PHD2") {
		line, _ := FirstLine(strings.NewReader(text))
		return nil, &FormatError{Line: 1, Content: line, Expected: phdHeaderRule.name}
	}

	c := newLineCursor(text, isPHDSkippable, p.loc)
	c.onProgress = onProgress
	c.next()

	m, err := phdHeaderRule.match(c)
	if err != nil {
		return nil, err
	}
	log := &models.PHDLog{
		PHDVersion:          strings.TrimSpace(m[1]),
		PHDLogVersion:       m[2],
		GuidingSessions:     make([]models.GuidingSession, 0),
		CalibrationSessions: make([]models.CalibrationSession, 0),
	}
	if ts, err := ParseTimestamp(strings.TrimSpace(m[3]), p.loc); err == nil {
		log.Datetime = ts
	} else {
		return nil, c.fail("PHD2 log start timestamp")
	}

	// current is nil outside a guiding session
	var current *models.GuidingSession

	c.next()
	for !c.atEnd() {
		line := c.line
		switch {
		case strings.HasPrefix(line, "Guiding Begins"):
			// An unterminated session is dropped, like one cut off by EOF
			current, err = p.parseSessionHeader(c)
			if err != nil {
				return nil, err
			}
			continue

		case strings.HasPrefix(line, "Guiding Ends"):
			if current != nil && len(current.Frames) > 0 {
				log.GuidingSessions = append(log.GuidingSessions, *current)
			}
			current = nil

		case strings.HasPrefix(line, "Calibration Begins"):
			cal, err := p.parseCalibration(c)
			if err != nil {
				return nil, err
			}
			log.CalibrationSessions = append(log.CalibrationSessions, *cal)
			continue

		default:
			if current != nil {
				p.addFrame(current, line)
			}
		}
		c.next()
	}
	c.finish()

	return log, nil
}

// parseSessionHeader reads "Guiding Begins" and the header lines after it.
// The cursor is left on the first line after the header.
func (p *PHDLogParser) parseSessionHeader(c *lineCursor) (*models.GuidingSession, error) {
	m, err := guidingBeginsRule.match(c)
	if err != nil {
		return nil, err
	}
	start, err := ParseTimestamp(strings.TrimSpace(m[1]), p.loc)
	if err != nil {
		return nil, c.fail("Guiding Begins timestamp")
	}

	session := &models.GuidingSession{
		StartTime: start,
		EndTime:   start,
		Frames:    make([]models.GuidingFrame, 0, 1024),
	}
	c.next()
	if err := applyRules(c, session, sessionHeaderRules); err != nil {
		return nil, err
	}
	return session, nil
}

// parseCalibration reads one calibration run. The cursor is left on the
// line that ended it, which starts with "Calibration".
func (p *PHDLogParser) parseCalibration(c *lineCursor) (*models.CalibrationSession, error) {
	m, err := calibrationBegins.match(c)
	if err != nil {
		return nil, err
	}
	start, err := ParseTimestamp(strings.TrimSpace(m[1]), p.loc)
	if err != nil {
		return nil, c.fail("Calibration Begins timestamp")
	}

	cal := &models.CalibrationSession{
		DateTime: start,
		Steps:    make([]models.CalibrationStep, 0, 64),
	}
	c.next()
	if err := applyRules(c, cal, calibrationHeaderRules); err != nil {
		return nil, err
	}

	for ; !c.atEnd(); c.next() {
		line := c.line
		if strings.HasPrefix(line, "Calibration") {
			break
		}
		if r := calibrationResult.matches(line); r != nil {
			if r[1] == "West" {
				cal.WestCalibrationAngle = floatField(r[2])
				cal.WestCalibrationRate = floatField(r[3])
				cal.WestCalibrationParity = r[4]
			} else {
				cal.NorthCalibrationAngle = floatField(r[2])
				cal.NorthCalibrationRate = floatField(r[3])
				cal.NorthCalibrationParity = r[4]
			}
			continue
		}
		if step, ok := parseCalibrationStep(line); ok {
			step.Direction = p.intern.Intern(step.Direction)
			cal.Steps = append(cal.Steps, step)
		}
	}
	return cal, nil
}

// parseCalibrationStep reads "West,3,1.20,-0.04,641.6,480.5,1.20".
// The column header row and free-text lines are rejected.
func parseCalibrationStep(line string) (models.CalibrationStep, bool) {
	cells := strings.Split(line, ",")
	if len(cells) < 7 || !calibrationStepDir[cells[0]] {
		return models.CalibrationStep{}, false
	}
	step, ok := leadingInt(cells[1])
	if !ok {
		return models.CalibrationStep{}, false
	}
	return models.CalibrationStep{
		Direction: cells[0],
		Step:      step,
		DX:        floatField(cells[2]),
		DY:        floatField(cells[3]),
		X:         floatField(cells[4]),
		Y:         floatField(cells[5]),
		Distance:  floatField(cells[6]),
	}, true
}

// addFrame appends a telemetry row to the session. Rows without a numeric
// frame number (the column header, stray text) and DROP rows are skipped.
func (p *PHDLogParser) addFrame(s *models.GuidingSession, line string) {
	cells := strings.Split(line, ",")
	cell := func(i int) string {
		if i < len(cells) {
			return cells[i]
		}
		return ""
	}

	frame, ok := leadingInt(cell(0))
	if !ok {
		return
	}
	mount := unquote(cell(2))
	if mount == models.MountStatusDrop {
		return
	}

	ms := floatField(cell(1)) * 1000
	f := models.GuidingFrame{
		Frame:              frame,
		TimeInMilliseconds: ms,
		Datetime:           s.StartTime.Add(elapsed(ms)),
		Mount:              p.intern.Intern(mount),
		DX:                 floatField(cell(3)),
		DY:                 floatField(cell(4)),
		RARawDistance:      floatField(cell(5)),
		DECRawDistance:     floatField(cell(6)),
		RAGuideDistance:    floatField(cell(7)),
		DECGuideDistance:   floatField(cell(8)),
		RADuration:         floatField(cell(9)),
		RADirection:        p.intern.Intern(unquote(cell(10))),
		DECDuration:        floatField(cell(11)),
		DECDirection:       p.intern.Intern(unquote(cell(12))),
		XStep:              floatField(cell(13)),
		YStep:              floatField(cell(14)),
		StarMass:           floatField(cell(15)),
		SNR:                floatField(cell(16)),
		ErrorCode:          p.intern.Intern(unquote(cell(17))),
	}
	s.Frames = append(s.Frames, f)
	s.EndTime = f.Datetime
}

// elapsed converts fractional milliseconds to a Duration.
func elapsed(ms float64) time.Duration {
	return time.Duration(math.Round(ms * float64(time.Millisecond)))
}
