package nginx_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/neomorfeo/stackhost/internal/adapter/nginx"
)

func newTestProxy(t *testing.T) (*nginx.Proxy, string, string) {
	t.Helper()
	root := t.TempDir()
	available := filepath.Join(root, "sites-available")
	enabled := filepath.Join(root, "sites-enabled")
	return nginx.New(available, enabled, nil), available, enabled
}

func TestWriteRoutingUnit(t *testing.T) {
	proxy, available, enabled := newTestProxy(t)
	ctx := context.Background()

	path, err := proxy.WriteRoutingUnit(ctx, "acme", []string{"acme.example.com", "shop.acme.io"}, 20007)
	if err != nil {
		t.Fatalf("WriteRoutingUnit failed: %v", err)
	}
	if path != filepath.Join(enabled, "acme.conf") {
		t.Errorf("path = %q, want enabled unit path", path)
	}

	content, err := os.ReadFile(filepath.Join(available, "acme.conf"))
	if err != nil {
		t.Fatalf("reading unit: %v", err)
	}
	if !strings.Contains(string(content), "server_name acme.example.com shop.acme.io;") {
		t.Errorf("unit missing server_name:\n%s", content)
	}
	if !strings.Contains(string(content), "proxy_pass http://127.0.0.1:20007;") {
		t.Errorf("unit missing upstream:\n%s", content)
	}

	link, err := os.Readlink(path)
	if err != nil {
		t.Fatalf("enabled unit is not a symlink: %v", err)
	}
	if link != filepath.Join(available, "acme.conf") {
		t.Errorf("symlink target = %q", link)
	}
}

func TestWriteRoutingUnit_RewriteKeepsSymlink(t *testing.T) {
	proxy, available, _ := newTestProxy(t)
	ctx := context.Background()

	if _, err := proxy.WriteRoutingUnit(ctx, "acme", []string{"acme.example.com"}, 20007); err != nil {
		t.Fatalf("first write failed: %v", err)
	}
	if _, err := proxy.WriteRoutingUnit(ctx, "acme", []string{"acme.example.com", "new.acme.io"}, 20007); err != nil {
		t.Fatalf("rewrite failed: %v", err)
	}

	content, _ := os.ReadFile(filepath.Join(available, "acme.conf"))
	if !strings.Contains(string(content), "new.acme.io") {
		t.Error("rewrite did not propagate the new domain")
	}
}

func TestRemoveRoutingUnit(t *testing.T) {
	proxy, available, enabled := newTestProxy(t)
	ctx := context.Background()

	if _, err := proxy.WriteRoutingUnit(ctx, "acme", []string{"acme.example.com"}, 20007); err != nil {
		t.Fatalf("WriteRoutingUnit failed: %v", err)
	}
	if err := proxy.RemoveRoutingUnit(ctx, "acme"); err != nil {
		t.Fatalf("RemoveRoutingUnit failed: %v", err)
	}

	if _, err := os.Lstat(filepath.Join(enabled, "acme.conf")); !os.IsNotExist(err) {
		t.Error("enabled symlink should be gone")
	}
	if _, err := os.Stat(filepath.Join(available, "acme.conf")); !os.IsNotExist(err) {
		t.Error("available unit should be gone")
	}

	// Removing again is a no-op.
	if err := proxy.RemoveRoutingUnit(ctx, "acme"); err != nil {
		t.Errorf("second remove = %v, want nil", err)
	}
}
