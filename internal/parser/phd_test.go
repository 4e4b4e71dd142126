package parser

import (
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/agp-analyzer/backend/internal/models"
)

const phdSessionHeader = `Dither = both axes, Dither scale = 1.000, Image noise reduction = none, Guide-frame time lapse = 0, Server enabled
Pixel scale = 3.87 arc-sec/px, Binning = 1, Focal length = 200 mm
Search region = 15 px, Star mass tolerance = 50.0%
Equipment Profile = ASIAIR
Camera = ZWO ASI120MM Mini, gain = 60, full size = 1280 x 960, have dark, dark dur = 0, pixel size = 3.8 um
Exposure = 2000 ms
Mount = Sky-Watcher EQ6-R,  connected, guiding enabled, xAngle = 178.8, xRate = 1.075, yAngle = -88.6, yRate = 0.999, parity = +/-,
X guide algorithm = Hysteresis, Hysteresis = 0.100, Aggression = 0.700, Minimum move = 0.150
Y guide algorithm = Resist Switch, Minimum move = 0.150 Aggression = 100% FastSwitch = enabled
Backlash comp = disabled, pulse = 20 ms
Calibration step = 1250, Max RA duration = 2500, Max DEC duration = 2500, DEC guide mode = Auto
RA Guide Speed = 7.5 a-s/s, Dec Guide Speed = 7.5 a-s/s, Cal Dec = 41.3, Last Cal Issue = None, Timestamp = 3/18/2022 8:57:12 PM
Dec = 41.3 deg, Hour angle = -1.23 hr, Pier side = West, Rotator pos = N/A
Lock position = 640.123, 480.456, Star position = 640.200, 480.500, HFD = 2.61 px
Frame,Time,mount,dx,dy,RARawDistance,DECRawDistance,RAGuideDistance,DECGuideDistance,RADuration,RADirection,DECDuration,DECDirection,XStep,YStep,StarMass,SNR,ErrorCode
`

const phdCalibration = `Calibration Begins at 2022-03-18 20:57:01
Equipment Profile = ASIAIR
Camera = ZWO ASI120MM Mini, gain = 60, full size = 1280 x 960, have dark, dark dur = 0, pixel size = 3.8 um
Exposure = 2000 ms
Pixel scale = 3.87 arc-sec/px, Binning = 1, Focal length = 200 mm
Mount = Sky-Watcher EQ6-R, Calibration Step = 1250 ms, Calibration Distance = 25 px, Assume orthogonal axes = no
Dec = 41.3 deg, Hour angle = -1.40 hr, Pier side = West, Rotator pos = N/A
Lock position = 640.000, 480.000, Star position = 640.000, 480.000, HFD = 2.55 px
Direction,Step,dx,dy,x,y,Dist
West,1,0.000,0.000,640.000,480.000,0.000
West,2,-4.410,0.090,635.590,480.090,4.411
East,1,-2.000,0.050,638.000,480.050,2.000
West calibration complete. Angle = 178.8 deg, Rate = 1.075 px/sec, Parity = +/-
North,1,0.000,0.000,640.000,480.000,0.000
North,2,0.100,-4.400,640.100,475.600,4.401
North calibration complete. Angle = -88.6 deg, Rate = 0.999 px/sec, Parity = +/-
Calibration complete, mount = Sky-Watcher EQ6-R.
`

// testPHDLog has one calibration, one session with four data rows (one
// DROP, one malformed), an empty session and an unterminated session.
var testPHDLog = "PHD2 version 2.6.11, Log version 2.5. Log enabled at 2022-03-18 20:54:55\n" +
	"\n" +
	phdCalibration +
	"\n" +
	"Guiding Begins at 2022-03-18 21:02:59\n" +
	phdSessionHeader +
	"1,2.006,\"Mount\",-0.335,-0.207,-0.348,0.194,-0.219,0.000,522,E,0,,,,1330,25.34,0\n" +
	"INFO: SETTLING STATE CHANGE, Settling started\n" +
	"2,4.010,\"Mount\",0.120,0.310,0.110,-0.300,0.080,-0.210,190,W,150,N,,,1322,25.10,0\n" +
	"3,6.010,\"DROP\",,,,,,,,,,,,,0,0.00,2,\"Star lost - low SNR\"\n" +
	"garbage,8.0,\"Mount\",1,1,1,1,1,1,1,E,1,N,,,1,1,0\n" +
	"4,8.012,\"Mount\",-0.050,0.020,-0.060,0.010,0.000,0.000,0,,0,,,,1340,25.60,0\n" +
	"Guiding Ends at 2022-03-18 21:03:10\n" +
	"\n" +
	"Guiding Begins at 2022-03-18 21:10:00\n" +
	phdSessionHeader +
	"Guiding Ends at 2022-03-18 21:10:01\n" +
	"\n" +
	"Guiding Begins at 2022-03-18 21:20:00\n" +
	phdSessionHeader +
	"1,2.000,\"Mount\",0.1,0.1,0.1,0.1,0,0,0,,0,,,,1300,25,0\n"

func TestPHDParseHeaderAndSessions(t *testing.T) {
	log, err := NewPHDLogParser().ParsePHD(testPHDLog)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if log.PHDVersion != "2.6.11" {
		t.Errorf("Expected PHD version 2.6.11, got %q", log.PHDVersion)
	}
	if log.PHDLogVersion != "2.5" {
		t.Errorf("Expected log version 2.5, got %q", log.PHDLogVersion)
	}
	wantStart := time.Date(2022, 3, 18, 20, 54, 55, 0, time.UTC)
	if !log.Datetime.Equal(wantStart) {
		t.Errorf("Expected log datetime %v, got %v", wantStart, log.Datetime)
	}

	// the empty and the unterminated sessions are dropped
	if len(log.GuidingSessions) != 1 {
		t.Fatalf("Expected 1 guiding session, got %d", len(log.GuidingSessions))
	}

	s := log.GuidingSessions[0]
	checks := []struct {
		name string
		got  interface{}
		want interface{}
	}{
		{"Dither", s.Dither, "both axes"},
		{"DitherScale", s.DitherScale, 1.0},
		{"ImageNoiseReduction", s.ImageNoiseReduction, "none"},
		{"PixelScale", s.PixelScale, 3.87},
		{"Binning", s.Binning, 1},
		{"FocalLength", s.FocalLength, 200.0},
		{"SearchRegionInPixels", s.SearchRegionInPixels, 15.0},
		{"StarMassTolerancePercentage", s.StarMassTolerancePercentage, 50.0},
		{"EquipmentProfile", s.EquipmentProfile, "ASIAIR"},
		{"Camera", s.Camera, "ZWO ASI120MM Mini"},
		{"CameraGain", s.CameraGain, 60.0},
		{"CameraWidth", s.CameraWidth, 1280},
		{"CameraHeight", s.CameraHeight, 960},
		{"CameraPixelSize", s.CameraPixelSize, 3.8},
		{"ExposureTime", s.ExposureTime, 2000.0},
		{"Mount", s.Mount, "Sky-Watcher EQ6-R"},
		{"XAngle", s.XAngle, 178.8},
		{"XRate", s.XRate, 1.075},
		{"YAngle", s.YAngle, -88.6},
		{"YRate", s.YRate, 0.999},
		{"Parity", s.Parity, "+/-"},
		{"XGuidingAlgorithm", s.XGuidingAlgorithm, "Hysteresis"},
		{"YGuidingAlgorithm", s.YGuidingAlgorithm, "Resist Switch"},
		{"BacklashCompensation", s.BacklashCompensation, "disabled"},
		{"CalibrationStep", s.CalibrationStep, "1250"},
		{"MaxRADuration", s.MaxRADuration, 2500.0},
		{"MaxDECDuration", s.MaxDECDuration, 2500.0},
		{"DECGuideMode", s.DECGuideMode, "Auto"},
		{"RAGuideSpeed", s.RAGuideSpeed, "7.5 a-s/s"},
		{"DECGuideSpeed", s.DECGuideSpeed, "7.5 a-s/s"},
		{"Degrees", s.Degrees, 41.3},
		{"HourAngle", s.HourAngle, -1.23},
		{"PierSide", s.PierSide, "West"},
		{"RotatorPosition", s.RotatorPosition, "N/A"},
		{"LockPositionX", s.LockPositionX, 640.123},
		{"LockPositionY", s.LockPositionY, 480.456},
		{"StarPositionX", s.StarPositionX, 640.2},
		{"StarPositionY", s.StarPositionY, 480.5},
		{"HalfFluxDiameterInPixels", s.HalfFluxDiameterInPixels, 2.61},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s: expected %v, got %v", c.name, c.want, c.got)
		}
	}
}

func TestPHDParseFrames(t *testing.T) {
	log, err := NewPHDLogParser().ParsePHD(testPHDLog)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	s := log.GuidingSessions[0]

	if len(s.Frames) != 3 {
		t.Fatalf("Expected 3 frames (DROP and malformed rows skipped), got %d", len(s.Frames))
	}
	for _, f := range s.Frames {
		if f.Mount == models.MountStatusDrop {
			t.Errorf("DROP frame %d was kept", f.Frame)
		}
		want := s.StartTime.Add(time.Duration(f.TimeInMilliseconds * float64(time.Millisecond)))
		if d := f.Datetime.Sub(want); d > time.Microsecond || d < -time.Microsecond {
			t.Errorf("Frame %d: expected datetime %v, got %v", f.Frame, want, f.Datetime)
		}
	}

	f := s.Frames[1]
	if f.Frame != 2 {
		t.Errorf("Expected frame 2, got %d", f.Frame)
	}
	if math.Abs(f.TimeInMilliseconds-4010) > 1e-9 {
		t.Errorf("Expected 4010 ms, got %v", f.TimeInMilliseconds)
	}
	if f.Mount != "Mount" {
		t.Errorf("Expected unquoted mount, got %q", f.Mount)
	}
	if f.RARawDistance != 0.11 || f.DECRawDistance != -0.3 {
		t.Errorf("Expected raw distances 0.11/-0.3, got %v/%v", f.RARawDistance, f.DECRawDistance)
	}
	if f.RADuration != 190 || f.RADirection != "W" {
		t.Errorf("Expected RA pulse 190 W, got %v %s", f.RADuration, f.RADirection)
	}
	if f.DECDuration != 150 || f.DECDirection != "N" {
		t.Errorf("Expected DEC pulse 150 N, got %v %s", f.DECDuration, f.DECDirection)
	}
	if f.StarMass != 1322 || f.SNR != 25.1 {
		t.Errorf("Expected star mass 1322 and SNR 25.1, got %v %v", f.StarMass, f.SNR)
	}

	last := s.Frames[2]
	if !s.EndTime.Equal(last.Datetime) {
		t.Errorf("Expected session end %v to equal last frame time %v", s.EndTime, last.Datetime)
	}
	if want := time.Date(2022, 3, 18, 21, 3, 7, 12*int(time.Millisecond), time.UTC); !last.Datetime.Equal(want) {
		t.Errorf("Expected last frame at %v, got %v", want, last.Datetime)
	}
}

func TestPHDParseCalibration(t *testing.T) {
	log, err := NewPHDLogParser().ParsePHD(testPHDLog)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(log.CalibrationSessions) != 1 {
		t.Fatalf("Expected 1 calibration session, got %d", len(log.CalibrationSessions))
	}
	cal := log.CalibrationSessions[0]

	if cal.Mount != "Sky-Watcher EQ6-R" {
		t.Errorf("Expected mount Sky-Watcher EQ6-R, got %q", cal.Mount)
	}
	if cal.CalibrationStep != 1250 || cal.CalibrationDistance != 25 {
		t.Errorf("Expected step 1250 and distance 25, got %v %v", cal.CalibrationStep, cal.CalibrationDistance)
	}
	if cal.AssumeOrthogonalAxes != "no" {
		t.Errorf("Expected orthogonal axes 'no', got %q", cal.AssumeOrthogonalAxes)
	}
	if cal.HourAngle != -1.4 || cal.PierSide != "West" {
		t.Errorf("Expected HA -1.4 on West, got %v %s", cal.HourAngle, cal.PierSide)
	}
	if len(cal.Steps) != 5 {
		t.Fatalf("Expected 5 steps, got %d", len(cal.Steps))
	}
	if cal.Steps[2].Direction != "East" || cal.Steps[2].DX != -2 {
		t.Errorf("Expected East step with dx -2, got %+v", cal.Steps[2])
	}
	if cal.Steps[4].Distance != 4.401 {
		t.Errorf("Expected last step distance 4.401, got %v", cal.Steps[4].Distance)
	}
	if cal.WestCalibrationAngle != 178.8 || cal.WestCalibrationRate != 1.075 || cal.WestCalibrationParity != "+/-" {
		t.Errorf("Unexpected west result: %v %v %s", cal.WestCalibrationAngle, cal.WestCalibrationRate, cal.WestCalibrationParity)
	}
	if cal.NorthCalibrationAngle != -88.6 || cal.NorthCalibrationRate != 0.999 {
		t.Errorf("Unexpected north result: %v %v", cal.NorthCalibrationAngle, cal.NorthCalibrationRate)
	}
}

func TestPHDParseFormatErrors(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		line     int
		expected string
	}{
		{
			name:     "missing marker",
			text:     "Log enabled at 2022/03/18 20:50:12\n",
			line:     1,
			expected: "PHD2 log header",
		},
		{
			name:     "bad header line",
			text:     "PHD2 something else\n",
			line:     1,
			expected: "PHD2 log header",
		},
		{
			name: "bad session header",
			text: "PHD2 version 2.6.11, Log version 2.5. Log enabled at 2022-03-18 20:54:55\n" +
				"Guiding Begins at 2022-03-18 21:02:59\n" +
				strings.Replace(phdSessionHeader, "Search region", "Search area", 1),
			line:     5,
			expected: "search region",
		},
		{
			name: "truncated session header",
			text: "PHD2 version 2.6.11, Log version 2.5. Log enabled at 2022-03-18 20:54:55\n" +
				"Guiding Begins at 2022-03-18 21:02:59\n" +
				"Dither = both axes, Dither scale = 1.000, Image noise reduction = none, Guide-frame time lapse = 0, Server enabled\n",
			line:     0,
			expected: "pixel scale",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log, err := NewPHDLogParser().ParsePHD(tt.text)
			if err == nil {
				t.Fatalf("Expected FormatError, got log %+v", log)
			}
			var fe *FormatError
			if !errors.As(err, &fe) {
				t.Fatalf("Expected *FormatError, got %T", err)
			}
			if fe.Line != tt.line {
				t.Errorf("Expected line %d, got %d", tt.line, fe.Line)
			}
			if fe.Expected != tt.expected {
				t.Errorf("Expected construct %q, got %q", tt.expected, fe.Expected)
			}
		})
	}
}

func TestPHDParseWindowsLineEndings(t *testing.T) {
	text := strings.ReplaceAll(testPHDLog, "\n", "\r\n")
	log, err := NewPHDLogParser().ParsePHD(text)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(log.GuidingSessions) != 1 || len(log.GuidingSessions[0].Frames) != 3 {
		t.Errorf("Expected 1 session with 3 frames, got %d sessions", len(log.GuidingSessions))
	}
}

func TestPHDParseLocation(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*3600)
	log, err := NewPHDLogParser().WithLocation(loc).ParsePHD(testPHDLog)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	want := time.Date(2022, 3, 18, 19, 2, 59, 0, time.UTC)
	if !log.GuidingSessions[0].StartTime.Equal(want) {
		t.Errorf("Expected session start %v, got %v", want, log.GuidingSessions[0].StartTime.UTC())
	}
}

func TestPHDParseText(t *testing.T) {
	result, err := NewPHDLogParser().ParseText(testPHDLog)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if result.Kind != models.LogKindGuiding || result.Guiding == nil {
		t.Fatalf("Expected guiding result, got kind %q", result.Kind)
	}
	sessions, records := result.Summary()
	if sessions != 1 || records != 3 {
		t.Errorf("Expected summary 1/3, got %d/%d", sessions, records)
	}
}

func TestParseReader(t *testing.T) {
	tests := []struct {
		name string
		p    Parser
		text string
		want models.LogKind
	}{
		{"guide log", NewPHDLogParser(), testPHDLog, models.LogKindGuiding},
		{"autorun log", NewAutorunLogParser(), testAutorunLog, models.LogKindAutorun},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := tt.p.ParseReader(strings.NewReader(tt.text))
			if err != nil {
				t.Fatalf("ParseReader failed: %v", err)
			}
			if result.Kind != tt.want {
				t.Errorf("Expected kind %q, got %q", tt.want, result.Kind)
			}
		})
	}

	_, err := NewPHDLogParser().ParseReader(strings.NewReader("Log enabled at 2022/03/18 20:50:12\n"))
	var fe *FormatError
	if !errors.As(err, &fe) {
		t.Errorf("Expected FormatError, got %v", err)
	}
}

func TestParseCalibrationStep(t *testing.T) {
	tests := []struct {
		line string
		ok   bool
	}{
		{"West,3,1.20,-0.04,641.6,480.5,1.20", true},
		{"Backlash,1,0.0,1.1,640.0,481.1,1.1", true},
		{"Direction,Step,dx,dy,x,y,Dist", false},
		{"West,x,1,1,1,1,1", false},
		{"West,1,1,1", false},
	}
	for _, tt := range tests {
		_, ok := parseCalibrationStep(tt.line)
		if ok != tt.ok {
			t.Errorf("%q: expected ok=%v, got %v", tt.line, tt.ok, ok)
		}
	}
}
