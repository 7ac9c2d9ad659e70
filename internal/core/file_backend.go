package core

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/go-hclog"
)

var ErrInvalidJobName = errors.New("job name cannot be used as a file name")

// FileBackend "prints" by writing the payload to <dir>/<job name>.txt.
type FileBackend struct {
	outDir string
	logger hclog.Logger
}

func NewFileBackend(outDir string, logger hclog.Logger) *FileBackend {
	if outDir == "" {
		outDir = "out"
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &FileBackend{
		outDir: outDir,
		logger: logger,
	}
}

func (b *FileBackend) OutputPath(name string) string {
	return filepath.Join(b.outDir, name+".txt")
}

func (b *FileBackend) Print(job *Job, payload []byte) bool {
	if err := b.write(job.Name(), payload); err != nil {
		b.logger.Error("print failed", "job", job.Name(), "error", err)
		return false
	}
	b.logger.Debug("printed job", "job", job.Name(), "bytes", len(payload))
	return true
}

func (b *FileBackend) write(name string, payload []byte) error {
	if err := ValidateJobName(name); err != nil {
		return err
	}

	if err := os.MkdirAll(b.outDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	if err := os.WriteFile(b.OutputPath(name), payload, 0644); err != nil {
		return fmt.Errorf("failed to write output file: %w", err)
	}
	return nil
}

// ValidateJobName rejects names that would escape the output directory.
func ValidateJobName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("%w: %q", ErrInvalidJobName, name)
	}
	return nil
}
