package upload

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agp-analyzer/backend/internal/models"
	"github.com/agp-analyzer/backend/internal/storage"
)

const autorunLog = "Log enabled at 2022/03/18 20:50:12\r\n" +
	"2022/03/18 20:55:01 [Autorun|Begin] M42 Start\r\n" +
	"2022/03/18 21:09:30 [Autorun|End] M42 End\r\n"

func newStore(t *testing.T) *storage.LocalStore {
	t.Helper()
	s, err := storage.NewLocalStore(t.TempDir())
	require.NoError(t, err)
	return s
}

func waitForJob(t *testing.T, m *Manager, id string) Job {
	t.Helper()
	var job Job
	require.Eventually(t, func() bool {
		var ok bool
		job, ok = m.GetJob(id)
		return ok && (job.Status == StatusComplete || job.Status == StatusError)
	}, 5*time.Second, 10*time.Millisecond)
	return job
}

func saveChunks(t *testing.T, s *storage.LocalStore, uploadID string, data []byte, size int) int {
	t.Helper()
	n := 0
	for off := 0; off < len(data); off += size {
		end := off + size
		if end > len(data) {
			end = len(data)
		}
		require.NoError(t, s.SaveChunk(uploadID, n, bytes.NewReader(data[off:end])))
		n++
	}
	return n
}

func TestJobAssemblesPlainUpload(t *testing.T) {
	store := newStore(t)
	m := NewManager(store)

	chunks := saveChunks(t, store, "plain", []byte(autorunLog), 16)
	started := m.StartJob("plain", "autorun.txt", chunks, int64(len(autorunLog)), 0, "")
	assert.Equal(t, StatusProcessing, started.Status)

	job := waitForJob(t, m, started.ID)
	require.Equal(t, StatusComplete, job.Status, job.Error)
	require.NotNil(t, job.FileInfo)
	assert.Equal(t, int64(len(autorunLog)), job.FileInfo.Size)
	assert.Equal(t, models.LogKindAutorun, job.FileInfo.Kind)
	assert.Equal(t, 100.0, job.Progress)
}

func TestJobDecompressesGzipUpload(t *testing.T) {
	store := newStore(t)
	m := NewManager(store)

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write([]byte(autorunLog))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	chunks := saveChunks(t, store, "gz", buf.Bytes(), 20)
	started := m.StartJob("gz", "autorun.txt.gz", chunks, int64(len(autorunLog)), int64(buf.Len()), EncodingGzip)

	job := waitForJob(t, m, started.ID)
	require.Equal(t, StatusComplete, job.Status, job.Error)
	assert.Equal(t, int64(len(autorunLog)), job.FileInfo.Size)
	assert.Equal(t, models.LogKindAutorun, job.FileInfo.Kind)

	path, err := store.GetFilePath(job.FileInfo.ID)
	require.NoError(t, err)
	fi, err := store.Get(job.FileInfo.ID)
	require.NoError(t, err)
	assert.Equal(t, job.FileInfo.Size, fi.Size)
	assert.NotEmpty(t, path)
}

func TestJobErrors(t *testing.T) {
	t.Run("missing chunks", func(t *testing.T) {
		m := NewManager(newStore(t))
		job := waitForJob(t, m, m.StartJob("none", "x.txt", 2, 0, 0, "").ID)
		assert.Equal(t, StatusError, job.Status)
		assert.Contains(t, job.Error, "assemble")
	})

	t.Run("not gzip", func(t *testing.T) {
		store := newStore(t)
		m := NewManager(store)
		chunks := saveChunks(t, store, "bad", []byte(autorunLog), 64)
		job := waitForJob(t, m, m.StartJob("bad", "x.gz", chunks, 0, 0, EncodingGzip).ID)
		assert.Equal(t, StatusError, job.Status)
		assert.True(t, strings.HasPrefix(job.Error, "failed to decompress"), job.Error)
	})

	t.Run("size mismatch", func(t *testing.T) {
		store := newStore(t)
		m := NewManager(store)
		var buf bytes.Buffer
		zw := gzip.NewWriter(&buf)
		zw.Write([]byte(autorunLog))
		zw.Close()
		chunks := saveChunks(t, store, "short", buf.Bytes(), 64)
		job := waitForJob(t, m, m.StartJob("short", "x.gz", chunks, 5, 0, EncodingGzip).ID)
		assert.Equal(t, StatusError, job.Status)
		assert.Contains(t, job.Error, "size mismatch")
	})
}

func TestCleanupOldJobs(t *testing.T) {
	m := NewManager(newStore(t))
	id := m.StartJob("none", "x.txt", 1, 0, 0, "").ID
	waitForJob(t, m, id)

	m.CleanupOldJobs(time.Hour)
	_, ok := m.GetJob(id)
	require.True(t, ok)

	m.CleanupOldJobs(0)
	_, ok = m.GetJob(id)
	assert.False(t, ok)
}
