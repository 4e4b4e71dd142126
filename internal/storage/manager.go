package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/agp-analyzer/backend/internal/models"
	"github.com/agp-analyzer/backend/internal/parser"
)

// File statuses.
const (
	StatusUploaded = "uploaded"
	StatusParsing  = "parsing"
	StatusParsed   = "parsed"
	StatusError    = "error"
)

// ErrFileNotFound is returned for unknown file ids.
var ErrFileNotFound = errors.New("file not found")

// Store defines the interface for uploaded log storage.
type Store interface {
	Save(name string, r io.Reader) (*models.FileInfo, error)
	Get(id string) (*models.FileInfo, error)
	List(limit int) ([]*models.FileInfo, error)
	Delete(id string) error
	Rename(id string, newName string) (*models.FileInfo, error)
	SetStatus(id string, status string) error
	GetFilePath(id string) (string, error)
	SaveChunk(uploadID string, chunkIndex int, r io.Reader) error
	CompleteChunkedUpload(uploadID string, name string, totalChunks int) (*models.FileInfo, error)
	Refresh(id string) (*models.FileInfo, error)
}

// LocalStore implements Store using the local filesystem. Files are named
// by id; metadata lives in memory.
type LocalStore struct {
	mu        sync.RWMutex
	uploadDir string
	files     map[string]*models.FileInfo
	registry  *parser.Registry
}

// NewLocalStore creates a new LocalStore.
func NewLocalStore(uploadDir string) (*LocalStore, error) {
	if err := os.MkdirAll(uploadDir, 0755); err != nil {
		return nil, fmt.Errorf("creating upload directory: %w", err)
	}

	return &LocalStore{
		uploadDir: uploadDir,
		files:     make(map[string]*models.FileInfo),
		registry:  parser.GetGlobalRegistry(),
	}, nil
}

func notFound(id string) error {
	return fmt.Errorf("%w: %s", ErrFileNotFound, id)
}

// sniff reads the first line of the stored file to tag its log kind.
// Unknown formats are left blank and fail later at parse time.
func (s *LocalStore) sniff(path string) models.LogKind {
	f, err := os.Open(path)
	if err != nil {
		return ""
	}
	defer f.Close()

	p, err := s.registry.FindParserForReader(f)
	if err != nil {
		return ""
	}
	return p.Kind()
}

// Save saves a file to the local filesystem.
func (s *LocalStore) Save(name string, r io.Reader) (*models.FileInfo, error) {
	id := uuid.New().String()
	path := filepath.Join(s.uploadDir, id)

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating file: %w", err)
	}

	size, err := io.Copy(f, r)
	f.Close()
	if err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("writing file: %w", err)
	}

	return s.register(id, name, size, path), nil
}

func (s *LocalStore) register(id, name string, size int64, path string) *models.FileInfo {
	info := &models.FileInfo{
		ID:         id,
		Name:       name,
		Size:       size,
		UploadedAt: time.Now(),
		Status:     StatusUploaded,
		Kind:       s.sniff(path),
	}

	s.mu.Lock()
	s.files[id] = info
	s.mu.Unlock()

	fmt.Printf("[Storage] Stored %s as %s (%d bytes, kind=%q)\n", name, id, size, info.Kind)
	return info
}

// Get retrieves file metadata by ID.
func (s *LocalStore) Get(id string) (*models.FileInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	info, ok := s.files[id]
	if !ok {
		return nil, notFound(id)
	}
	cp := *info
	return &cp, nil
}

// List returns the most recent files first. A non-positive limit lists all.
func (s *LocalStore) List(limit int) ([]*models.FileInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := make([]*models.FileInfo, 0, len(s.files))
	for _, info := range s.files {
		cp := *info
		list = append(list, &cp)
	}

	sort.Slice(list, func(i, j int) bool {
		return list[i].UploadedAt.After(list[j].UploadedAt)
	})

	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}

	return list, nil
}

// Delete removes a file from storage.
func (s *LocalStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.files[id]; !ok {
		return notFound(id)
	}

	path := filepath.Join(s.uploadDir, id)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("deleting file: %w", err)
	}

	delete(s.files, id)
	return nil
}

// Rename updates the display name of a file.
func (s *LocalStore) Rename(id string, newName string) (*models.FileInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	info, ok := s.files[id]
	if !ok {
		return nil, notFound(id)
	}

	info.Name = newName
	cp := *info
	return &cp, nil
}

// SetStatus records the parse state of a file.
func (s *LocalStore) SetStatus(id string, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	info, ok := s.files[id]
	if !ok {
		return notFound(id)
	}
	info.Status = status
	return nil
}

// GetFilePath returns the absolute path to a file.
func (s *LocalStore) GetFilePath(id string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.files[id]; !ok {
		return "", notFound(id)
	}

	return filepath.Join(s.uploadDir, id), nil
}

// Refresh re-reads size and kind after the file was rewritten in place.
func (s *LocalStore) Refresh(id string) (*models.FileInfo, error) {
	path, err := s.GetFilePath(id)
	if err != nil {
		return nil, err
	}
	st, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat file: %w", err)
	}
	kind := s.sniff(path)

	s.mu.Lock()
	defer s.mu.Unlock()
	info, ok := s.files[id]
	if !ok {
		return nil, notFound(id)
	}
	info.Size = st.Size()
	info.Kind = kind
	cp := *info
	return &cp, nil
}

// validUploadID rejects ids that would escape the chunk directory.
func validUploadID(uploadID string) error {
	if uploadID == "" || uploadID == "." || uploadID == ".." || strings.ContainsAny(uploadID, `/\`) {
		return fmt.Errorf("invalid upload id %q", uploadID)
	}
	return nil
}

// SaveChunk saves a single chunk to a temporary location.
func (s *LocalStore) SaveChunk(uploadID string, chunkIndex int, r io.Reader) error {
	if err := validUploadID(uploadID); err != nil {
		return err
	}
	if chunkIndex < 0 {
		return fmt.Errorf("invalid chunk index %d", chunkIndex)
	}

	chunkDir := filepath.Join(s.uploadDir, "chunks", uploadID)
	if err := os.MkdirAll(chunkDir, 0755); err != nil {
		return fmt.Errorf("creating chunk directory: %w", err)
	}

	path := filepath.Join(chunkDir, fmt.Sprintf("chunk_%d", chunkIndex))
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating chunk file: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, r); err != nil {
		return fmt.Errorf("writing chunk: %w", err)
	}

	return nil
}

// CompleteChunkedUpload assembles all chunks into a final file.
func (s *LocalStore) CompleteChunkedUpload(uploadID string, name string, totalChunks int) (*models.FileInfo, error) {
	if err := validUploadID(uploadID); err != nil {
		return nil, err
	}

	id := uuid.New().String()
	finalPath := filepath.Join(s.uploadDir, id)
	chunkDir := filepath.Join(s.uploadDir, "chunks", uploadID)

	out, err := os.Create(finalPath)
	if err != nil {
		return nil, fmt.Errorf("creating final file: %w", err)
	}

	var totalSize int64
	for i := 0; i < totalChunks; i++ {
		n, err := appendChunk(out, filepath.Join(chunkDir, fmt.Sprintf("chunk_%d", i)))
		if err != nil {
			out.Close()
			os.Remove(finalPath)
			return nil, fmt.Errorf("chunk %d: %w", i, err)
		}
		totalSize += n
	}
	if err := out.Close(); err != nil {
		os.Remove(finalPath)
		return nil, fmt.Errorf("closing final file: %w", err)
	}

	os.RemoveAll(chunkDir)
	return s.register(id, name, totalSize, finalPath), nil
}

func appendChunk(out io.Writer, chunkPath string) (int64, error) {
	in, err := os.Open(chunkPath)
	if err != nil {
		return 0, err
	}
	defer in.Close()
	return io.Copy(out, in)
}
