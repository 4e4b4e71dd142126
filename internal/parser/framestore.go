package parser

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/marcboeker/go-duckdb"

	"github.com/agp-analyzer/backend/internal/models"
)

// FrameStore indexes the guiding frames of one parsed PHD2 log in a DuckDB
// file so the API can serve time-range slices and SQL summaries without
// walking the in-memory sessions.
type FrameStore struct {
	db     *sql.DB
	dbPath string

	mu           sync.Mutex
	sessionCount int
	frameCount   int

	// Limits concurrent queries from the API
	querySem chan struct{}
}

// SessionSummary is the per-session aggregate computed in SQL.
// RMS values are in arc-seconds.
type SessionSummary struct {
	Index      int       `json:"index"`
	StartTime  time.Time `json:"startTime"`
	EndTime    time.Time `json:"endTime"`
	Camera     string    `json:"camera"`
	Mount      string    `json:"mount"`
	PixelScale float64   `json:"pixelScale"`
	FrameCount int       `json:"frameCount"`
	RMSRA      float64   `json:"rmsRA"`
	RMSDEC     float64   `json:"rmsDEC"`
	RMSTotal   float64   `json:"rmsTotal"`
}

// NewFrameStore creates a store for a parse session in dir.
func NewFrameStore(dir string, sessionID string) (*FrameStore, error) {
	return NewFrameStoreAtPath(filepath.Join(dir, fmt.Sprintf("frames_%s.duckdb", sessionID)))
}

// NewFrameStoreAtPath creates a store backed by the DuckDB file at dbPath.
func NewFrameStoreAtPath(dbPath string) (*FrameStore, error) {
	fmt.Printf("[FrameStore] Creating database at: %s\n", dbPath)

	connector, err := duckdb.NewConnector(dbPath, func(execer driver.ExecerContext) error {
		pragmas := []string{
			"PRAGMA memory_limit='512MB'",
			"PRAGMA threads=2",
			"PRAGMA enable_progress_bar=false",
		}
		for _, pragma := range pragmas {
			if _, err := execer.ExecContext(context.Background(), pragma, nil); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create DuckDB connector: %w", err)
	}

	db := sql.OpenDB(connector)

	schema := []string{
		`CREATE TABLE sessions (
			idx         INTEGER PRIMARY KEY,
			start_ts    BIGINT NOT NULL,
			end_ts      BIGINT NOT NULL,
			pixel_scale DOUBLE NOT NULL,
			camera      VARCHAR,
			mount       VARCHAR,
			profile     VARCHAR
		)`,
		`CREATE TABLE frames (
			session_idx   INTEGER NOT NULL,
			frame         INTEGER NOT NULL,
			ts            BIGINT NOT NULL,
			elapsed_ms    DOUBLE NOT NULL,
			mount         VARCHAR,
			dx            DOUBLE,
			dy            DOUBLE,
			ra_raw        DOUBLE,
			dec_raw       DOUBLE,
			ra_guide      DOUBLE,
			dec_guide     DOUBLE,
			ra_duration   DOUBLE,
			ra_direction  VARCHAR,
			dec_duration  DOUBLE,
			dec_direction VARCHAR,
			x_step        DOUBLE,
			y_step        DOUBLE,
			star_mass     DOUBLE,
			snr           DOUBLE,
			error_code    VARCHAR
		)`,
	}
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			os.Remove(dbPath)
			return nil, fmt.Errorf("failed to create schema: %w", err)
		}
	}

	return &FrameStore{
		db:       db,
		dbPath:   dbPath,
		querySem: make(chan struct{}, 3),
	}, nil
}

// IndexLog writes every guiding session of log and its frames.
func (fs *FrameStore) IndexLog(ctx context.Context, log *models.PHDLog) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	start := time.Now()
	for i := range log.GuidingSessions {
		if err := fs.appendSession(ctx, &log.GuidingSessions[i]); err != nil {
			return err
		}
	}

	if _, err := fs.db.ExecContext(ctx, "CREATE INDEX IF NOT EXISTS idx_frames_ts ON frames(session_idx, ts)"); err != nil {
		return fmt.Errorf("idx_frames_ts creation failed: %w", err)
	}

	fmt.Printf("[FrameStore] Indexed %d sessions, %d frames in %v\n",
		fs.sessionCount, fs.frameCount, time.Since(start))
	return nil
}

// appendSession writes one session row and bulk-loads its frames through
// the DuckDB Appender.
func (fs *FrameStore) appendSession(ctx context.Context, s *models.GuidingSession) error {
	idx := fs.sessionCount

	_, err := fs.db.ExecContext(ctx,
		"INSERT INTO sessions VALUES (?, ?, ?, ?, ?, ?, ?)",
		int32(idx), s.StartTime.UnixMicro(), s.EndTime.UnixMicro(), s.PixelScale,
		s.Camera, s.Mount, s.EquipmentProfile)
	if err != nil {
		return fmt.Errorf("failed to insert session %d: %w", idx, err)
	}

	conn, err := fs.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to get connection: %w", err)
	}
	defer conn.Close()

	err = conn.Raw(func(driverConn interface{}) error {
		dConn, ok := driverConn.(driver.Conn)
		if !ok {
			return fmt.Errorf("failed to cast to duckdb.Conn")
		}

		appender, err := duckdb.NewAppenderFromConn(dConn, "", "frames")
		if err != nil {
			return fmt.Errorf("failed to create appender: %w", err)
		}
		defer appender.Close()

		for i := range s.Frames {
			f := &s.Frames[i]
			err := appender.AppendRow(
				int32(idx),
				int32(f.Frame),
				f.Datetime.UnixMicro(),
				f.TimeInMilliseconds,
				f.Mount,
				f.DX,
				f.DY,
				f.RARawDistance,
				f.DECRawDistance,
				f.RAGuideDistance,
				f.DECGuideDistance,
				f.RADuration,
				f.RADirection,
				f.DECDuration,
				f.DECDirection,
				f.XStep,
				f.YStep,
				f.StarMass,
				f.SNR,
				f.ErrorCode,
			)
			if err != nil {
				return fmt.Errorf("failed to append frame %d: %w", f.Frame, err)
			}
		}
		return appender.Flush()
	})
	if err != nil {
		return fmt.Errorf("appender error: %w", err)
	}

	fs.sessionCount++
	fs.frameCount += len(s.Frames)
	return nil
}

// SessionCount returns the number of indexed sessions.
func (fs *FrameStore) SessionCount() int {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.sessionCount
}

// FrameCount returns the number of indexed frames.
func (fs *FrameStore) FrameCount() int {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.frameCount
}

func (fs *FrameStore) acquire(ctx context.Context) (func(), error) {
	select {
	case fs.querySem <- struct{}{}:
		return func() { <-fs.querySem }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// FramesInRange returns the frames of one session with from <= datetime <= to,
// in frame order. A zero from or to leaves that side open.
func (fs *FrameStore) FramesInRange(ctx context.Context, sessionIdx int, from, to time.Time) ([]models.GuidingFrame, error) {
	release, err := fs.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	lo, hi := int64(-1<<62), int64(1<<62)
	if !from.IsZero() {
		lo = from.UnixMicro()
	}
	if !to.IsZero() {
		hi = to.UnixMicro()
	}

	rows, err := fs.db.QueryContext(ctx, `
		SELECT frame, ts, elapsed_ms, mount, dx, dy, ra_raw, dec_raw, ra_guide, dec_guide,
		       ra_duration, ra_direction, dec_duration, dec_direction, x_step, y_step,
		       star_mass, snr, error_code
		FROM frames
		WHERE session_idx = ? AND ts >= ? AND ts <= ?
		ORDER BY ts, frame
	`, int32(sessionIdx), lo, hi)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	frames := make([]models.GuidingFrame, 0, 256)
	for rows.Next() {
		var f models.GuidingFrame
		var frame int32
		var ts int64
		if err := rows.Scan(&frame, &ts, &f.TimeInMilliseconds, &f.Mount, &f.DX, &f.DY,
			&f.RARawDistance, &f.DECRawDistance, &f.RAGuideDistance, &f.DECGuideDistance,
			&f.RADuration, &f.RADirection, &f.DECDuration, &f.DECDirection,
			&f.XStep, &f.YStep, &f.StarMass, &f.SNR, &f.ErrorCode); err != nil {
			return nil, err
		}
		f.Frame = int(frame)
		f.Datetime = time.UnixMicro(ts).UTC()
		frames = append(frames, f)
	}
	return frames, rows.Err()
}

// Summaries returns one aggregate row per indexed session, RMS computed
// over the raw RA/Dec distances and scaled by the session pixel scale.
func (fs *FrameStore) Summaries(ctx context.Context) ([]SessionSummary, error) {
	release, err := fs.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	rows, err := fs.db.QueryContext(ctx, `
		SELECT s.idx, s.start_ts, s.end_ts, s.camera, s.mount, s.pixel_scale,
		       COUNT(f.frame),
		       COALESCE(sqrt(avg(f.ra_raw * f.ra_raw)), 0) * s.pixel_scale,
		       COALESCE(sqrt(avg(f.dec_raw * f.dec_raw)), 0) * s.pixel_scale,
		       COALESCE(sqrt(avg(f.ra_raw * f.ra_raw + f.dec_raw * f.dec_raw)), 0) * s.pixel_scale
		FROM sessions s
		LEFT JOIN frames f ON f.session_idx = s.idx
		GROUP BY s.idx, s.start_ts, s.end_ts, s.camera, s.mount, s.pixel_scale
		ORDER BY s.idx
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SessionSummary
	for rows.Next() {
		var sum SessionSummary
		var idx int32
		var startTs, endTs, count int64
		var camera, mount sql.NullString
		if err := rows.Scan(&idx, &startTs, &endTs, &camera, &mount, &sum.PixelScale,
			&count, &sum.RMSRA, &sum.RMSDEC, &sum.RMSTotal); err != nil {
			return nil, err
		}
		sum.Index = int(idx)
		sum.StartTime = time.UnixMicro(startTs).UTC()
		sum.EndTime = time.UnixMicro(endTs).UTC()
		sum.Camera = camera.String
		sum.Mount = mount.String
		sum.FrameCount = int(count)
		out = append(out, sum)
	}
	return out, rows.Err()
}

// Close closes the database and removes its file.
func (fs *FrameStore) Close() error {
	if fs.db != nil {
		fs.db.Close()
	}
	if fs.dbPath != "" {
		os.Remove(fs.dbPath)
		os.Remove(fs.dbPath + ".wal")
	}
	return nil
}
