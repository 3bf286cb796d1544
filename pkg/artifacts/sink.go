// Package artifacts writes the outputs of a run to a local directory or an S3 bucket.
package artifacts

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sync"
)

// ErrAlreadyWritten is returned when a sink is asked to write the same name twice.
var ErrAlreadyWritten = errors.New("artifact already written")

// Sink stores named artifacts. Each name may be written at most once per sink.
type Sink interface {
	Write(ctx context.Context, name string, body []byte) error
	// Location describes where name is stored, for logs and CLI output.
	Location(name string) string
}

type writeOnce struct {
	mu      sync.Mutex
	written map[string]struct{}
}

func (w *writeOnce) claim(name string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.written == nil {
		w.written = make(map[string]struct{})
	}
	if _, ok := w.written[name]; ok {
		return fmt.Errorf("%w: %s", ErrAlreadyWritten, name)
	}
	w.written[name] = struct{}{}
	return nil
}

func (w *writeOnce) release(name string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.written, name)
}

// FileSink writes artifacts into a directory, creating it on first use. Existing files
// from earlier runs are replaced.
type FileSink struct {
	Dir string

	once writeOnce
}

func NewFileSink(dir string) *FileSink {
	return &FileSink{Dir: dir}
}

func (s *FileSink) Location(name string) string {
	return filepath.Join(s.Dir, name)
}

func (s *FileSink) Write(ctx context.Context, name string, body []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validName(name); err != nil {
		return err
	}
	if err := s.once.claim(name); err != nil {
		return err
	}
	if err := s.write(name, body); err != nil {
		s.once.release(name)
		return err
	}
	return nil
}

func (s *FileSink) write(name string, body []byte) error {
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", s.Dir, err)
	}

	// Write to a temp file and rename so readers never see a partial artifact.
	tmp, err := os.CreateTemp(s.Dir, "."+name+".*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(body); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", name, err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("failed to chmod %s: %w", name, err)
	}
	if err := os.Rename(tmp.Name(), s.Location(name)); err != nil {
		return fmt.Errorf("failed to rename %s: %w", name, err)
	}
	return nil
}

func validName(name string) error {
	if name == "" || name != path.Base(name) || name == "." || name == ".." {
		return fmt.Errorf("invalid artifact name %q", name)
	}
	return nil
}
