// Package nginx manages per-tenant reverse proxy routing units using
// the sites-available/sites-enabled layout.
package nginx

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/neomorfeo/stackhost/internal/adapter/compose"
	"github.com/neomorfeo/stackhost/internal/domain"
)

const reloadTimeout = 30 * time.Second

// Proxy writes routing units to availableDir and activates them by
// symlink in enabledDir.
type Proxy struct {
	availableDir string
	enabledDir   string
	logger       *slog.Logger
}

var _ domain.Proxy = (*Proxy)(nil)

func New(availableDir, enabledDir string, logger *slog.Logger) *Proxy {
	if logger == nil {
		logger = slog.Default()
	}
	return &Proxy{availableDir: availableDir, enabledDir: enabledDir, logger: logger}
}

func (p *Proxy) unitName(tenantName string) string {
	return tenantName + ".conf"
}

// WriteRoutingUnit renders and installs the tenant's server block and
// returns the path of the active unit. Rewriting an existing unit is
// how domain changes propagate.
func (p *Proxy) WriteRoutingUnit(ctx context.Context, tenantName string, domains []string, upstreamPort int) (string, error) {
	unit, err := compose.RenderRouting(domains, upstreamPort)
	if err != nil {
		return "", fmt.Errorf("rendering routing unit for %s: %w", tenantName, err)
	}

	available := filepath.Join(p.availableDir, p.unitName(tenantName))
	if err := os.MkdirAll(p.availableDir, 0o755); err != nil {
		return "", fmt.Errorf("creating available dir: %w", err)
	}
	if err := os.WriteFile(available, unit, 0o644); err != nil {
		return "", fmt.Errorf("writing routing unit for %s: %w", tenantName, err)
	}

	enabled := filepath.Join(p.enabledDir, p.unitName(tenantName))
	if err := os.MkdirAll(p.enabledDir, 0o755); err != nil {
		return "", fmt.Errorf("creating enabled dir: %w", err)
	}
	if _, err := os.Lstat(enabled); os.IsNotExist(err) {
		if err := os.Symlink(available, enabled); err != nil {
			return "", fmt.Errorf("enabling routing unit for %s: %w", tenantName, err)
		}
	}

	p.logger.Info("routing unit written", "tenant", tenantName, "domains", len(domains))
	return enabled, nil
}

// RemoveRoutingUnit drops the symlink and the unit. Absence of either
// is not an error.
func (p *Proxy) RemoveRoutingUnit(ctx context.Context, tenantName string) error {
	enabled := filepath.Join(p.enabledDir, p.unitName(tenantName))
	if err := os.Remove(enabled); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("disabling routing unit for %s: %w", tenantName, err)
	}
	available := filepath.Join(p.availableDir, p.unitName(tenantName))
	if err := os.Remove(available); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing routing unit for %s: %w", tenantName, err)
	}
	return nil
}

// Reload validates the full configuration before asking the server to
// reload, so one bad unit cannot take the proxy down.
func (p *Proxy) Reload(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, reloadTimeout)
	defer cancel()

	if err := runCommand(ctx, "nginx", "-t"); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	if err := runCommand(ctx, "systemctl", "reload", "nginx"); err != nil {
		return fmt.Errorf("reload failed: %w", err)
	}
	return nil
}

func runCommand(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s: %w: %s", name, err, bytes.TrimSpace(stderr.Bytes()))
	}
	return nil
}
