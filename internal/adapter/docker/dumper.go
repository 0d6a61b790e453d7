package docker

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/neomorfeo/stackhost/internal/domain"
)

const dumpTimeout = 5 * time.Minute

// PGDumper produces logical dumps of tenant databases on the shared
// database server using the tenant's own role.
type PGDumper struct {
	host string
	port int
}

var _ domain.DatabaseDumper = (*PGDumper)(nil)

func NewPGDumper(host string, port int) *PGDumper {
	return &PGDumper{host: host, port: port}
}

// Dump writes a custom-format dump to destPath, creating parent
// directories as needed.
func (d *PGDumper) Dump(ctx context.Context, tenant domain.Tenant, destPath string) error {
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return fmt.Errorf("creating backup directory: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, dumpTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "pg_dump",
		"-h", d.host,
		"-p", fmt.Sprintf("%d", d.port),
		"-U", tenant.DBUser,
		"-Fc",
		"-f", destPath,
		tenant.DBName,
	)
	cmd.Env = append(os.Environ(), "PGPASSWORD="+tenant.DBSecret)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("pg_dump for %s: %w: %s", tenant.Name, err, bytes.TrimSpace(stderr.Bytes()))
	}
	return nil
}
