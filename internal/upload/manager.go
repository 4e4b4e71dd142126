package upload

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"

	"github.com/agp-analyzer/backend/internal/models"
)

// Status represents the upload processing status.
type Status string

const (
	StatusProcessing    Status = "processing"
	StatusAssembling    Status = "assembling"
	StatusDecompressing Status = "decompressing"
	StatusComplete      Status = "complete"
	StatusError         Status = "error"
)

// EncodingGzip marks chunks that concatenate to a gzip stream.
const EncodingGzip = "gzip"

// Job tracks the assembly of one chunked log upload.
type Job struct {
	ID             string           `json:"id"`
	UploadID       string           `json:"uploadId"`
	FileName       string           `json:"fileName"`
	TotalChunks    int              `json:"totalChunks"`
	OriginalSize   int64            `json:"originalSize"`
	CompressedSize int64            `json:"compressedSize"`
	Encoding       string           `json:"encoding"`
	Status         Status           `json:"status"`
	Progress       float64          `json:"progress"`
	Stage          string           `json:"stage"`
	FileInfo       *models.FileInfo `json:"fileInfo,omitempty"`
	Error          string           `json:"error,omitempty"`
	CreatedAt      time.Time        `json:"createdAt"`
	CompletedAt    *time.Time       `json:"completedAt,omitempty"`
}

// Store is the part of the storage layer a job needs.
type Store interface {
	CompleteChunkedUpload(uploadID string, name string, totalChunks int) (*models.FileInfo, error)
	GetFilePath(id string) (string, error)
	Refresh(id string) (*models.FileInfo, error)
}

// Manager runs chunk assembly and decompression off the request path.
type Manager struct {
	jobs  map[string]*Job
	mu    sync.RWMutex
	store Store
}

// NewManager creates a new upload processing manager.
func NewManager(store Store) *Manager {
	return &Manager{
		jobs:  make(map[string]*Job),
		store: store,
	}
}

// StartJob begins async processing of an upload and returns a snapshot.
func (m *Manager) StartJob(uploadID, fileName string, totalChunks int, originalSize, compressedSize int64, encoding string) Job {
	job := &Job{
		ID:             uuid.New().String(),
		UploadID:       uploadID,
		FileName:       fileName,
		TotalChunks:    totalChunks,
		OriginalSize:   originalSize,
		CompressedSize: compressedSize,
		Encoding:       encoding,
		Status:         StatusProcessing,
		Stage:          "preparing",
		CreatedAt:      time.Now(),
	}

	m.mu.Lock()
	m.jobs[job.ID] = job
	snapshot := *job
	m.mu.Unlock()

	go m.processJob(job)

	return snapshot
}

// GetJob returns a snapshot of a job.
func (m *Manager) GetJob(id string) (Job, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	job, ok := m.jobs[id]
	if !ok {
		return Job{}, false
	}
	return *job, true
}

func (m *Manager) processJob(job *Job) {
	short := job.ID[:8]
	fmt.Printf("[UploadJob %s] Starting processing: %s\n", short, job.FileName)

	m.update(job, StatusAssembling, "assembling chunks", 0)

	info, err := m.store.CompleteChunkedUpload(job.UploadID, job.FileName, job.TotalChunks)
	if err != nil {
		m.fail(job, fmt.Sprintf("failed to assemble chunks: %v", err))
		return
	}
	fmt.Printf("[UploadJob %s] Chunks assembled: %s (%d bytes)\n", short, info.ID, info.Size)

	if job.Encoding == EncodingGzip {
		m.update(job, StatusDecompressing, "decompressing log", 0)
		if err := m.decompress(job, info.ID); err != nil {
			m.fail(job, fmt.Sprintf("failed to decompress log: %v", err))
			return
		}
		if info, err = m.store.Refresh(info.ID); err != nil {
			m.fail(job, fmt.Sprintf("failed to refresh file info: %v", err))
			return
		}
	}

	m.mu.Lock()
	job.FileInfo = info
	job.Status = StatusComplete
	job.Stage = "complete"
	job.Progress = 100
	now := time.Now()
	job.CompletedAt = &now
	m.mu.Unlock()

	fmt.Printf("[UploadJob %s] Processing complete: %s (%d bytes, kind=%q)\n", short, info.ID, info.Size, info.Kind)
}

// decompress replaces a gzip file with its contents. A declared original
// size, when present, must match.
func (m *Manager) decompress(job *Job, fileID string) error {
	path, err := m.store.GetFilePath(fileID)
	if err != nil {
		return err
	}

	in, err := os.Open(path)
	if err != nil {
		return err
	}
	defer in.Close()

	zr, err := gzip.NewReader(in)
	if err != nil {
		return err
	}
	defer zr.Close()

	tempPath := path + ".decompressing"
	out, err := os.Create(tempPath)
	if err != nil {
		return err
	}

	written, err := m.copyWithProgress(job, out, zr)
	out.Close()
	if err != nil {
		os.Remove(tempPath)
		return err
	}

	if job.OriginalSize > 0 && written != job.OriginalSize {
		os.Remove(tempPath)
		return fmt.Errorf("decompressed size mismatch: got %d bytes, expected %d bytes", written, job.OriginalSize)
	}

	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return err
	}
	return nil
}

func (m *Manager) copyWithProgress(job *Job, dst io.Writer, src io.Reader) (int64, error) {
	buf := make([]byte, 1024*1024)
	var written int64
	lastUpdate := time.Now()

	for {
		n, readErr := src.Read(buf)
		if n > 0 {
			if _, err := dst.Write(buf[:n]); err != nil {
				return written, fmt.Errorf("write error: %w", err)
			}
			written += int64(n)

			if job.OriginalSize > 0 && time.Since(lastUpdate) > 100*time.Millisecond {
				progress := float64(written) / float64(job.OriginalSize) * 100
				if progress > 99 {
					progress = 99
				}
				m.update(job, StatusDecompressing, "decompressing log", progress)
				lastUpdate = time.Now()
			}
		}
		if readErr == io.EOF {
			return written, nil
		}
		if readErr != nil {
			return written, fmt.Errorf("read error: %w", readErr)
		}
	}
}

// update sets the stage; assembling covers 0-40%, decompressing 40-90%.
func (m *Manager) update(job *Job, status Status, stage string, stageProgress float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job.Status = status
	job.Stage = stage
	switch status {
	case StatusAssembling:
		job.Progress = stageProgress * 0.4
	case StatusDecompressing:
		job.Progress = 40 + stageProgress*0.5
	}
}

func (m *Manager) fail(job *Job, msg string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job.Status = StatusError
	job.Error = msg
	now := time.Now()
	job.CompletedAt = &now
	fmt.Printf("[UploadJob %s] Error: %s\n", job.ID[:8], msg)
}

// CleanupOldJobs removes finished jobs older than maxAge.
func (m *Manager) CleanupOldJobs(maxAge time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := time.Now().Add(-maxAge)
	for id, job := range m.jobs {
		if job.CompletedAt != nil && job.CompletedAt.Before(cutoff) {
			delete(m.jobs, id)
		}
	}
}
