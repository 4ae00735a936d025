package images

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DiskStore writes images into a single directory and references them as
// paths under a public URL prefix (served as static files).
type DiskStore struct {
	dir    string
	prefix string
	log    *zap.Logger
}

func NewDiskStore(dir, publicPrefix string, log *zap.Logger) (*DiskStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create image dir: %w", err)
	}
	if !strings.HasSuffix(publicPrefix, "/") {
		publicPrefix += "/"
	}
	return &DiskStore{dir: dir, prefix: publicPrefix, log: log}, nil
}

// Dir returns the backing directory, for wiring the static file server.
func (s *DiskStore) Dir() string { return s.dir }

// PublicPrefix returns the URL prefix refs are rooted under.
func (s *DiskStore) PublicPrefix() string { return s.prefix }

func (s *DiskStore) Save(ctx context.Context, declaredMIME, originalFilename string, data []byte) (string, error) {
	ext, err := validate(declaredMIME, originalFilename, data)
	if err != nil {
		return "", err
	}

	// Timestamp plus a random suffix so concurrent uploads never collide.
	name := fmt.Sprintf("%d-%s%s", time.Now().UnixMilli(), uuid.NewString(), ext)

	if err := os.WriteFile(filepath.Join(s.dir, name), data, 0o644); err != nil {
		return "", fmt.Errorf("write image: %w", err)
	}

	if s.log != nil {
		s.log.Info("image stored", zap.String("file", name), zap.Int("bytes", len(data)))
	}
	return s.prefix + name, nil
}

func (s *DiskStore) Remove(ctx context.Context, ref string) error {
	name, err := s.filename(ref)
	if err != nil {
		return err
	}

	if err := os.Remove(filepath.Join(s.dir, name)); err != nil {
		if os.IsNotExist(err) {
			if s.log != nil {
				s.log.Warn("image already gone", zap.String("ref", ref))
			}
			return nil
		}
		return fmt.Errorf("delete image: %w", err)
	}

	if s.log != nil {
		s.log.Info("image deleted", zap.String("ref", ref))
	}
	return nil
}

// filename maps a public ref back to its on-disk name, rejecting refs that
// point outside the store or outside the public prefix.
func (s *DiskStore) filename(ref string) (string, error) {
	if !strings.HasPrefix(ref, s.prefix) {
		return "", fmt.Errorf("ref %q not under %q", ref, s.prefix)
	}
	name := strings.TrimPrefix(ref, s.prefix)
	if name == "" || name != filepath.Base(name) {
		return "", fmt.Errorf("ref %q is not a plain filename", ref)
	}
	return name, nil
}
