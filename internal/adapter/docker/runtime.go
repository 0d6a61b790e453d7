// Package docker drives per-tenant container stacks. Lifecycle goes
// through the compose CLI, which owns service dependency ordering and
// volume naming; inspection goes through the engine API directly.
package docker

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/neomorfeo/stackhost/internal/domain"
)

const (
	startTimeout  = 3 * time.Minute
	stopTimeout   = 2 * time.Minute
	removeTimeout = 3 * time.Minute
)

// ComposeRuntime runs stacks from their artifact directories under root.
type ComposeRuntime struct {
	root   string
	logger *slog.Logger
}

var _ domain.StackRuntime = (*ComposeRuntime)(nil)

func NewComposeRuntime(root string, logger *slog.Logger) *ComposeRuntime {
	if logger == nil {
		logger = slog.Default()
	}
	return &ComposeRuntime{root: root, logger: logger}
}

func (r *ComposeRuntime) stackDir(tenantName string) string {
	return filepath.Join(r.root, tenantName)
}

// Start brings the stack up detached. Starting an already-running stack
// is a no-op for compose.
func (r *ComposeRuntime) Start(ctx context.Context, tenantName string) error {
	ctx, cancel := context.WithTimeout(ctx, startTimeout)
	defer cancel()
	return r.compose(ctx, tenantName, "up", "-d")
}

func (r *ComposeRuntime) Stop(ctx context.Context, tenantName string) error {
	if _, err := os.Stat(r.stackDir(tenantName)); os.IsNotExist(err) {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, stopTimeout)
	defer cancel()
	return r.compose(ctx, tenantName, "down")
}

// Remove tears down containers and volumes, then deletes the stack
// directory. Absent stacks are treated as already removed.
func (r *ComposeRuntime) Remove(ctx context.Context, tenantName string) error {
	dir := r.stackDir(tenantName)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, removeTimeout)
	defer cancel()
	if err := r.compose(ctx, tenantName, "down", "-v", "--remove-orphans"); err != nil {
		return err
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("removing stack directory: %w", err)
	}
	return nil
}

func (r *ComposeRuntime) compose(ctx context.Context, tenantName string, args ...string) error {
	full := append([]string{"compose", "-p", tenantName}, args...)
	cmd := exec.CommandContext(ctx, "docker", full...)
	cmd.Dir = r.stackDir(tenantName)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	r.logger.Debug("running compose", "tenant", tenantName, "args", args)
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("docker compose %s for %s: %w: %s",
			args[0], tenantName, err, bytes.TrimSpace(stderr.Bytes()))
	}
	return nil
}
