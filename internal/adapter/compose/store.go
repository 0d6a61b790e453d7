package compose

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/neomorfeo/stackhost/internal/domain"
)

const (
	composeFileName = "docker-compose.yml"
	envFileName     = ".env"

	dirPerm  = 0o755
	filePerm = 0o644
	// envPerm keeps the database password out of world-readable files.
	envPerm = 0o600
)

// DirStore persists stack artifacts under <root>/<tenant>/. The
// routing unit is installed separately by the proxy adapter.
type DirStore struct {
	root string
}

var _ domain.ArtifactStore = (*DirStore)(nil)

func NewDirStore(root string) *DirStore {
	return &DirStore{root: root}
}

// Dir returns the stack directory for a tenant.
func (s *DirStore) Dir(tenantName string) string {
	return filepath.Join(s.root, tenantName)
}

func (s *DirStore) Write(ctx context.Context, tenantName string, artifacts domain.Artifacts) error {
	dir := s.Dir(tenantName)
	if err := os.MkdirAll(filepath.Join(dir, "addons"), dirPerm); err != nil {
		return fmt.Errorf("creating stack directory: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, composeFileName), artifacts.ComposeSpec, filePerm); err != nil {
		return fmt.Errorf("writing compose spec: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, envFileName), artifacts.EnvFile, envPerm); err != nil {
		return fmt.Errorf("writing env file: %w", err)
	}
	return nil
}

func (s *DirStore) Remove(ctx context.Context, tenantName string) error {
	if err := os.RemoveAll(s.Dir(tenantName)); err != nil {
		return fmt.Errorf("removing stack directory: %w", err)
	}
	return nil
}
