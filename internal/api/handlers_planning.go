// handlers_planning.go - Visibility, meridian flip and scheduling handlers
package api

import (
	"math/rand"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/agp-analyzer/backend/internal/astro"
	"github.com/agp-analyzer/backend/internal/config"
	"github.com/agp-analyzer/backend/internal/models"
	"github.com/agp-analyzer/backend/internal/scheduler"
	"github.com/agp-analyzer/backend/internal/visibility"
)

const dateLayout = "2006-01-02"

// PlanningHandlerImpl implements the PlanningHandler interface
type PlanningHandlerImpl struct {
	profile        *config.Profile
	zone           *time.Location
	optimizeRounds int
	metrics        *Metrics

	now func() time.Time
}

// NewPlanningHandler creates a planning handler for an observing profile.
// Dates without a zone are read in zone.
func NewPlanningHandler(profile *config.Profile, zone *time.Location, optimizeRounds int, metrics *Metrics) PlanningHandler {
	if profile == nil {
		profile = config.DefaultProfile()
	}
	if zone == nil {
		zone = time.UTC
	}
	return &PlanningHandlerImpl{
		profile:        profile,
		zone:           zone,
		optimizeRounds: optimizeRounds,
		metrics:        metrics,
		now:            time.Now,
	}
}

// HandleGetProfile returns the observing profile
func (h *PlanningHandlerImpl) HandleGetProfile(c echo.Context) error {
	return c.JSON(http.StatusOK, h.profile)
}

// HandleVisibility returns a day of altitude samples for ra/dec with the
// dark window, best window, rise, set and overlap with an optional second
// target (ra2/dec2)
func (h *PlanningHandlerImpl) HandleVisibility(c echo.Context) error {
	target, err := h.target(c, "ra", "dec")
	if err != nil {
		return err
	}
	loc, err := h.location(c)
	if err != nil {
		return err
	}
	date, err := h.date(c)
	if err != nil {
		return err
	}
	interval, err := optionalInt(c, "intervalMinutes")
	if err != nil {
		return err
	}
	minAlt, ok, err := optionalFloat(c, "minAltitude")
	if err != nil {
		return err
	}
	if !ok {
		minAlt = h.profile.Constraints.MinAltitude
	}
	h.metrics.CountAnalysis("visibility")

	resp := visibilityResponse{
		TargetVisibility: visibility.Calculate(target, loc, date, time.Duration(interval)*time.Minute),
	}
	if t, ok := visibility.FindRiseTime(target, loc, date, minAlt); ok {
		resp.RiseTime = &t
	}
	if t, ok := visibility.FindSetTime(target, loc, date, minAlt); ok {
		resp.SetTime = &t
	}
	if t, ok := visibility.FindOptimalObservingTime(target, loc, date); ok {
		resp.OptimalTime = &t
	}

	if c.QueryParam("ra2") != "" {
		other, err := h.target(c, "ra2", "dec2")
		if err != nil {
			return err
		}
		if o, ok := visibility.FindOverlappingVisibility(target, other, loc, date); ok {
			resp.Overlap = &o
		}
	}
	return c.JSON(http.StatusOK, resp)
}

// HandleMeridianFlip predicts the next flip for ra/dec at time (default
// now), checks an exposure of exposureMinutes against it and splits the
// next hoursAhead hours into pier-side windows
func (h *PlanningHandlerImpl) HandleMeridianFlip(c echo.Context) error {
	target, err := h.target(c, "ra", "dec")
	if err != nil {
		return err
	}
	loc, err := h.location(c)
	if err != nil {
		return err
	}
	at, err := h.instant(c)
	if err != nil {
		return err
	}
	exposure, ok, err := optionalFloat(c, "exposureMinutes")
	if err != nil {
		return err
	}
	if !ok {
		exposure = 5
	}
	hours, ok, err := optionalFloat(c, "hoursAhead")
	if err != nil {
		return err
	}
	if !ok || hours <= 0 {
		hours = 4
	}
	h.metrics.CountAnalysis("meridian")

	limits := h.profile.MountLimits
	span := time.Duration(hours * float64(time.Hour))
	resp := meridianResponse{
		Prediction: visibility.PredictMeridianFlip(target, loc, at, limits),
		Safety:     visibility.IsFlipSafe(target, loc, at, time.Duration(exposure*float64(time.Minute)), limits),
		Windows:    visibility.CalculateFlipWindows(target, loc, at, span, limits),
	}
	if t, ok := visibility.CalculateOptimalFlipTime(target, loc, at, at.Add(span), limits); ok {
		resp.OptimalFlipTime = &t
	}
	return c.JSON(http.StatusOK, resp)
}

// HandleSchedule plans a night. The body may carry targets and
// constraints; missing parts come from the profile.
func (h *PlanningHandlerImpl) HandleSchedule(c echo.Context) error {
	var req scheduleRequest
	if c.Request().ContentLength != 0 {
		if err := c.Bind(&req); err != nil {
			return NewBadRequestError("invalid request body", err)
		}
	}

	loc := h.profile.Observer
	if req.Observer != nil {
		loc = *req.Observer
	}
	if loc.Latitude < -90 || loc.Latitude > 90 {
		return NewValidationError("observer.latitude")
	}

	date := h.now().In(h.zone)
	if req.Date != "" {
		d, err := time.ParseInLocation(dateLayout, req.Date, h.zone)
		if err != nil {
			return NewBadRequestError("invalid date", err)
		}
		date = d
	}

	targets := req.Targets
	if len(targets) == 0 {
		targets = h.profile.Targets
	}
	if len(targets) == 0 {
		return NewBadRequestError("no targets to schedule", nil)
	}
	for i, t := range targets {
		if t.Target.RA < 0 || t.Target.RA >= 24 || t.Target.Dec < -90 || t.Target.Dec > 90 {
			return NewBadRequestError("target coordinates out of range: "+targets[i].Target.Name, nil)
		}
	}

	constraints := h.profile.Constraints
	if req.Constraints != nil {
		constraints = *req.Constraints
	}
	limits := h.profile.MountLimits
	h.metrics.CountAnalysis("schedule")

	var plan scheduler.SessionPlan
	if req.Optimize && h.optimizeRounds > 0 {
		seed := req.Seed
		if seed == 0 {
			seed = date.UnixNano()
		}
		rng := rand.New(rand.NewSource(seed))
		plan = scheduler.OptimizeSchedule(targets, loc, date, constraints, limits, h.optimizeRounds, rng)
	} else {
		plan = scheduler.ScheduleSession(targets, loc, date, constraints, limits)
	}

	return c.JSON(http.StatusOK, scheduleResponse{
		Plan:       plan,
		TotalScore: plan.TotalScore(),
		Timeline:   scheduler.GenerateTimeline(plan, loc, date),
	})
}

// HandleSky returns sun, moon and sidereal time at time (default now).
// With ra/dec the target's horizontal position is included.
func (h *PlanningHandlerImpl) HandleSky(c echo.Context) error {
	loc, err := h.location(c)
	if err != nil {
		return err
	}
	at, err := h.instant(c)
	if err != nil {
		return err
	}
	if !astro.IsValidAstronomicalDate(at) {
		return NewBadRequestError("time outside supported range", nil)
	}

	lst := astro.LocalSiderealTimeAt(at, loc.Longitude)
	phase := astro.MoonPhase(at)
	resp := skyResponse{
		Time:             at,
		JulianDate:       astro.JulianDate(at),
		LocalSidereal:    lst,
		LocalSiderealStr: astro.FormatSiderealTime(lst),
		Sun:              astro.SunPosition(at),
		SunAltitude:      astro.SunAltitude(loc, at),
		Sunset:           astro.Sunset(loc, at),
		Sunrise:          astro.Sunrise(loc, at),
		MoonPhase:        phase,
		MoonIllumination: astro.MoonIllumination(phase),
	}
	if c.QueryParam("ra") != "" {
		target, err := h.target(c, "ra", "dec")
		if err != nil {
			return err
		}
		hz := astro.AltAz(target, loc, at)
		resp.Target = &skyTarget{
			Equatorial: target,
			RAText:     astro.FormatRA(target.RA * 15),
			DecText:    astro.FormatDec(target.Dec),
			HourAngle:  astro.HourAngle(target.RA, loc, at),
			Horizontal: hz,
		}
		if hz.Altitude > 0 {
			am := visibility.Airmass(hz.Altitude)
			resp.Target.Airmass = &am
		}
	}
	return c.JSON(http.StatusOK, resp)
}

// HandleOptics returns the imaging and guiding figures for a telescope
// and camera
func (h *PlanningHandlerImpl) HandleOptics(c echo.Context) error {
	var req opticsRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid request body", err)
	}
	if req.FocalLengthMm <= 0 {
		return NewValidationError("focalLengthMm")
	}
	if req.PixelSizeMicrons <= 0 {
		return NewValidationError("pixelSizeMicrons")
	}

	scale := astro.PixelScale(req.PixelSizeMicrons, req.FocalLengthMm, req.Binning)
	resp := opticsResponse{
		PixelScale:    scale,
		GuidingTarget: astro.GuidingTarget(scale),
	}
	if req.ApertureMm > 0 {
		res := astro.TheoreticalResolution(req.ApertureMm)
		resp.Resolution = res
		resp.SamplingRatio = astro.SamplingRatio(scale, res)
	}
	if req.WidthPixels > 0 {
		resp.FieldWidthArcmin = astro.FieldOfViewArcmin(req.WidthPixels, scale)
	}
	if req.HeightPixels > 0 {
		resp.FieldHeightArcmin = astro.FieldOfViewArcmin(req.HeightPixels, scale)
	}
	if req.GuideRMSPixels > 0 {
		resp.GuideRMSArcsec = astro.PixelsToArcsec(req.GuideRMSPixels, scale)
	}
	return c.JSON(http.StatusOK, resp)
}

// HandleCompatibility ranks camera/telescope setups for a target and
// suggests focal lengths for the first setup's camera. The target size
// comes from targetSizeArcmin or from a profile target by targetId.
func (h *PlanningHandlerImpl) HandleCompatibility(c echo.Context) error {
	var req compatibilityRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid request body", err)
	}

	size := req.TargetSizeArcmin
	if req.TargetID != "" {
		found := false
		for _, tp := range h.profile.Targets {
			if tp.Target.ID == req.TargetID {
				size, found = tp.Target.Size, true
				break
			}
		}
		if !found {
			return NewNotFoundError("target", req.TargetID)
		}
	}
	if size <= 0 {
		return NewValidationError("targetSizeArcmin")
	}
	if len(req.Setups) == 0 {
		return NewBadRequestError("no setups to compare", nil)
	}
	for _, s := range req.Setups {
		if s.Telescope.FocalLengthMm <= 0 || s.Telescope.ApertureMm <= 0 {
			return NewValidationError("telescope")
		}
		if s.Camera.SensorWidthMm <= 0 || s.Camera.SensorHeightMm <= 0 || s.Camera.PixelSizeUm <= 0 {
			return NewValidationError("camera")
		}
	}
	h.metrics.CountAnalysis("compatibility")

	return c.JSON(http.StatusOK, compatibilityResponse{
		TargetSizeArcmin: size,
		Setups:           astro.CompareSetups(size, req.Setups),
		FocalLength:      astro.SuggestFocalLength(size, req.Setups[0].Camera, req.CoveragePercent),
	})
}

// target reads an RA (hours) and Dec (degrees) pair.
func (h *PlanningHandlerImpl) target(c echo.Context, raName, decName string) (astro.Equatorial, error) {
	ra, ok, err := optionalFloat(c, raName)
	if err != nil {
		return astro.Equatorial{}, err
	}
	if !ok || ra < 0 || ra >= 24 {
		return astro.Equatorial{}, NewValidationError(raName)
	}
	dec, ok, err := optionalFloat(c, decName)
	if err != nil {
		return astro.Equatorial{}, err
	}
	if !ok || dec < -90 || dec > 90 {
		return astro.Equatorial{}, NewValidationError(decName)
	}
	return astro.Equatorial{RA: ra, Dec: dec}, nil
}

// location is the profile observer with lat/lon overrides.
func (h *PlanningHandlerImpl) location(c echo.Context) (astro.Location, error) {
	loc := h.profile.Observer
	lat, ok, err := optionalFloat(c, "lat")
	if err != nil {
		return loc, err
	}
	if ok {
		if lat < -90 || lat > 90 {
			return loc, NewValidationError("lat")
		}
		loc.Latitude = lat
	}
	lon, ok, err := optionalFloat(c, "lon")
	if err != nil {
		return loc, err
	}
	if ok {
		if lon < -180 || lon > 180 {
			return loc, NewValidationError("lon")
		}
		loc.Longitude = lon
	}
	return loc, nil
}

func (h *PlanningHandlerImpl) date(c echo.Context) (time.Time, error) {
	s := c.QueryParam("date")
	if s == "" {
		return h.now().In(h.zone), nil
	}
	d, err := time.ParseInLocation(dateLayout, s, h.zone)
	if err != nil {
		return time.Time{}, NewBadRequestError("invalid date, expected YYYY-MM-DD", err)
	}
	return d, nil
}

// instant reads an RFC 3339 time parameter, defaulting to now.
func (h *PlanningHandlerImpl) instant(c echo.Context) (time.Time, error) {
	s := c.QueryParam("time")
	if s == "" {
		return h.now(), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, NewBadRequestError("invalid time, expected RFC 3339", err)
	}
	return t, nil
}

// Request/Response types

type visibilityResponse struct {
	visibility.TargetVisibility
	RiseTime    *time.Time          `json:"riseTime,omitempty"`
	SetTime     *time.Time          `json:"setTime,omitempty"`
	OptimalTime *time.Time          `json:"optimalTime,omitempty"`
	Overlap     *visibility.Overlap `json:"overlap,omitempty"`
}

type meridianResponse struct {
	Prediction      visibility.FlipPrediction `json:"prediction"`
	Safety          visibility.FlipSafety     `json:"safety"`
	Windows         visibility.FlipWindows    `json:"windows"`
	OptimalFlipTime *time.Time                `json:"optimalFlipTime,omitempty"`
}

type scheduleRequest struct {
	Date        string                  `json:"date"` // YYYY-MM-DD
	Observer    *astro.Location         `json:"observer"`
	Targets     []models.TargetPriority `json:"targets"`
	Constraints *scheduler.Constraints  `json:"constraints"`
	Optimize    bool                    `json:"optimize"`
	Seed        int64                   `json:"seed"`
}

type scheduleResponse struct {
	Plan       scheduler.SessionPlan     `json:"plan"`
	TotalScore float64                   `json:"totalScore"`
	Timeline   []scheduler.TimelineEntry `json:"timeline"`
}

type skyTarget struct {
	astro.Equatorial
	RAText     string           `json:"raFormatted"`
	DecText    string           `json:"decFormatted"`
	HourAngle  float64          `json:"hourAngle"`
	Horizontal astro.Horizontal `json:"horizontal"`
	Airmass    *float64         `json:"airmass"`
}

type skyResponse struct {
	Time             time.Time        `json:"time"`
	JulianDate       float64          `json:"julianDate"`
	LocalSidereal    float64          `json:"localSiderealTime"`
	LocalSiderealStr string           `json:"localSiderealTimeFormatted"`
	Sun              astro.Equatorial `json:"sun"`
	SunAltitude      float64          `json:"sunAltitude"`
	Sunset           time.Time        `json:"sunset"`
	Sunrise          time.Time        `json:"sunrise"`
	MoonPhase        float64          `json:"moonPhase"`
	MoonIllumination float64          `json:"moonIllumination"`
	Target           *skyTarget       `json:"target,omitempty"`
}

type opticsRequest struct {
	FocalLengthMm    float64 `json:"focalLengthMm"`
	ApertureMm       float64 `json:"apertureMm"`
	PixelSizeMicrons float64 `json:"pixelSizeMicrons"`
	Binning          int     `json:"binning"`
	WidthPixels      int     `json:"widthPixels"`
	HeightPixels     int     `json:"heightPixels"`
	GuideRMSPixels   float64 `json:"guideRmsPixels"`
}

type compatibilityRequest struct {
	TargetID         string        `json:"targetId"`
	TargetSizeArcmin float64       `json:"targetSizeArcmin"`
	CoveragePercent  float64       `json:"coveragePercent"`
	Setups           []astro.Setup `json:"setups"`
}

type compatibilityResponse struct {
	TargetSizeArcmin float64                `json:"targetSizeArcmin"`
	Setups           []astro.RankedSetup    `json:"setups"`
	FocalLength      astro.FocalLengthRange `json:"focalLength"`
}

type opticsResponse struct {
	PixelScale        float64 `json:"pixelScale"`
	GuidingTarget     float64 `json:"guidingTarget"`
	Resolution        float64 `json:"resolution,omitempty"`
	SamplingRatio     float64 `json:"samplingRatio,omitempty"`
	FieldWidthArcmin  float64 `json:"fieldWidthArcmin,omitempty"`
	FieldHeightArcmin float64 `json:"fieldHeightArcmin,omitempty"`
	GuideRMSArcsec    float64 `json:"guideRmsArcsec,omitempty"`
}
