package lode

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"
	"sync"

	"github.com/justapithecus/lode/lode"
)

// FileWriter stores sidecar files (session reports) next to a session's
// records. Files bypass the Dataset manifest machinery.
type FileWriter interface {
	PutFile(ctx context.Context, filename, contentType string, data []byte) error
}

var _ FileWriter = (*LodeClient)(nil)

// PutFile writes data under the session's files/ prefix.
func (c *LodeClient) PutFile(ctx context.Context, filename, _ string, data []byte) error {
	if filename == "" || strings.ContainsAny(filename, `/\`) || strings.Contains(filename, "..") {
		return fmt.Errorf("invalid sidecar filename %q", filename)
	}

	store, err := c.getOrCreateStore()
	if err != nil {
		return WrapInitError(err, c.config.Dataset)
	}

	p := c.filePath(filename)
	if err := store.Put(ctx, p, bytes.NewReader(data)); err != nil {
		return WrapWriteError(err, p)
	}
	return nil
}

func (c *LodeClient) getOrCreateStore() (lode.Store, error) {
	c.storeOnce.Do(func() {
		c.store, c.storeErr = c.storeFactory()
	})
	return c.store, c.storeErr
}

// filePath is datasets/<dataset>/partitions/feed=<f>/day=<d>/session_id=<s>/files/<name>.
func (c *LodeClient) filePath(filename string) string {
	return path.Join(
		"datasets", c.config.Dataset, "partitions",
		"feed="+c.config.Feed,
		"day="+c.config.Day,
		"session_id="+c.config.SessionID,
		"files", filename,
	)
}

// StubFileWriter records PutFile calls for testing.
type StubFileWriter struct {
	mu    sync.Mutex
	Files []StubFileRecord
}

// StubFileRecord is a recorded file write.
type StubFileRecord struct {
	Filename    string
	ContentType string
	Data        []byte
}

// NewStubFileWriter creates a new stub file writer.
func NewStubFileWriter() *StubFileWriter {
	return &StubFileWriter{}
}

// PutFile implements FileWriter by recording the call.
func (w *StubFileWriter) PutFile(_ context.Context, filename, contentType string, data []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.Files = append(w.Files, StubFileRecord{
		Filename:    filename,
		ContentType: contentType,
		Data:        data,
	})
	return nil
}

var _ FileWriter = (*StubFileWriter)(nil)
