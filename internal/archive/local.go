package archive

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Local stores archives under a base directory on the local filesystem.
type Local struct {
	baseDir string
}

// NewLocal builds a filesystem provider rooted at baseDir, creating it
// when absent.
func NewLocal(baseDir string) (*Local, error) {
	if strings.TrimSpace(baseDir) == "" {
		return nil, fmt.Errorf("base directory is required")
	}
	info, err := os.Stat(baseDir)
	switch {
	case os.IsNotExist(err):
		if mkErr := os.MkdirAll(baseDir, 0o750); mkErr != nil {
			return nil, fmt.Errorf("create base directory: %w", mkErr)
		}
	case err != nil:
		return nil, fmt.Errorf("stat base directory: %w", err)
	case !info.IsDir():
		return nil, fmt.Errorf("base directory path is not a directory")
	}
	return &Local{baseDir: baseDir}, nil
}

func (l *Local) resolve(landID, expressionID int64) (string, error) {
	full := filepath.Join(l.baseDir, filepath.FromSlash(pagePath(landID, expressionID)))
	cleanBase := filepath.Clean(l.baseDir)
	if !strings.HasPrefix(filepath.Clean(full), cleanBase+string(filepath.Separator)) {
		return "", fmt.Errorf("path escapes archive root")
	}
	return full, nil
}

func (l *Local) SavePage(_ context.Context, landID, expressionID int64, html []byte) error {
	full, err := l.resolve(landID, expressionID)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o750); err != nil {
		return fmt.Errorf("create archive directory: %w", err)
	}
	if err := os.WriteFile(full, html, 0o640); err != nil {
		return fmt.Errorf("write archive: %w", err)
	}
	return nil
}

func (l *Local) ReadPage(_ context.Context, landID, expressionID int64) ([]byte, error) {
	full, err := l.resolve(landID, expressionID)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(full)
	if err != nil {
		return nil, fmt.Errorf("read archive: %w", err)
	}
	return data, nil
}
