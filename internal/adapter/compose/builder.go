// Package compose renders the declarative per-tenant stack artifacts
// (compose file, runtime env file, reverse proxy routing unit). All
// output is derived from the tenant record and the database endpoint,
// so artifacts can be regenerated at any time.
package compose

import (
	"fmt"
	"sort"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"

	"github.com/neomorfeo/stackhost/internal/domain"
)

// DatabaseEndpoint locates the shared PostgreSQL server the stacks
// connect to.
type DatabaseEndpoint struct {
	Host string
	Port int
}

// Builder renders stack artifacts. The zero value is not usable; use
// NewBuilder.
type Builder struct {
	db DatabaseEndpoint
}

func NewBuilder(db DatabaseEndpoint) *Builder {
	return &Builder{db: db}
}

// composeFile mirrors the compose v2 file schema for the subset of
// fields the stacks use.
type composeFile struct {
	Services map[string]composeService `yaml:"services"`
	Volumes  map[string]struct{}       `yaml:"volumes,omitempty"`
}

type composeService struct {
	Image       string            `yaml:"image"`
	Restart     string            `yaml:"restart,omitempty"`
	Ports       []string          `yaml:"ports,omitempty"`
	Environment map[string]string `yaml:"environment,omitempty"`
	Volumes     []string          `yaml:"volumes,omitempty"`
	Command     []string          `yaml:"command,omitempty"`
	DependsOn   []string          `yaml:"depends_on,omitempty"`
	MemLimit    string            `yaml:"mem_limit,omitempty"`
	CPUs        float64           `yaml:"cpus,omitempty"`
	Labels      map[string]string `yaml:"labels,omitempty"`
}

const (
	odooImage  = "odoo:17.0"
	cacheImage = "redis:7-alpine"

	// cacheMemory caps the optional cache sidecar; it is not part of
	// the plan profile.
	cacheMemory = "512m"
)

// Build renders all artifacts for a tenant. Deterministic for a given
// tenant record.
func (b *Builder) Build(t domain.Tenant) (domain.Artifacts, error) {
	spec, err := b.composeSpec(t)
	if err != nil {
		return domain.Artifacts{}, fmt.Errorf("rendering compose spec: %w", err)
	}
	routing, err := RenderRoutingUnit(t)
	if err != nil {
		return domain.Artifacts{}, fmt.Errorf("rendering routing unit: %w", err)
	}
	return domain.Artifacts{
		ComposeSpec:   spec,
		EnvFile:       b.envFile(t),
		RoutingConfig: routing,
	}, nil
}

func (b *Builder) composeSpec(t domain.Tenant) ([]byte, error) {
	profile := t.Plan.Profile()

	web := composeService{
		Image:   odooImage,
		Restart: "unless-stopped",
		Ports:   []string{fmt.Sprintf("127.0.0.1:%d:8069", t.Port)},
		Environment: map[string]string{
			"HOST":     b.db.Host,
			"PORT":     fmt.Sprintf("%d", b.db.Port),
			"USER":     t.DBUser,
			"PASSWORD": t.DBSecret,
		},
		Volumes: []string{
			"odoo-data:/var/lib/odoo",
			"./addons:/mnt/extra-addons",
		},
		Command:  []string{"odoo", "--database", t.DBName, "--db-filter", "^" + t.DBName + "$"},
		MemLimit: profile.MemoryLimit,
		CPUs:     profile.CPULimit,
		Labels: map[string]string{
			"stackhost.tenant": t.Name,
			"stackhost.role":   "web",
			"stackhost.plan":   string(t.Plan),
		},
	}

	file := composeFile{
		Services: map[string]composeService{"web": web},
		Volumes:  map[string]struct{}{"odoo-data": {}},
	}

	if t.CacheEnabled {
		file.Services["cache"] = composeService{
			Image:    cacheImage,
			Restart:  "unless-stopped",
			Command:  []string{"redis-server", "--maxmemory", cacheMemory, "--maxmemory-policy", "allkeys-lru"},
			MemLimit: cacheMemory,
			Labels: map[string]string{
				"stackhost.tenant": t.Name,
				"stackhost.role":   "cache",
			},
		}
		web.DependsOn = []string{"cache"}
		file.Services["web"] = web
	}

	return yaml.Marshal(file)
}

// envFile renders the key=value runtime environment. Keys are emitted
// in a fixed order so regenerated files diff cleanly.
func (b *Builder) envFile(t domain.Tenant) []byte {
	profile := t.Plan.Profile()

	pairs := [][2]string{
		{"TENANT_NAME", t.Name},
		{"TENANT_DOMAIN", t.Domain},
		{"DB_HOST", b.db.Host},
		{"DB_PORT", fmt.Sprintf("%d", b.db.Port)},
		{"DB_NAME", t.DBName},
		{"DB_USER", t.DBUser},
		{"DB_PASSWORD", t.DBSecret},
		{"ODOO_PORT", fmt.Sprintf("%d", t.Port)},
		{"PLAN", string(t.Plan)},
		{"MEMORY_LIMIT", profile.MemoryLimit},
		{"DB_MEMORY_LIMIT", profile.DBMemoryLimit},
		{"CPU_LIMIT", fmt.Sprintf("%g", profile.CPULimit)},
		{"DB_CPU_LIMIT", fmt.Sprintf("%g", profile.DBCPULimit)},
		{"CACHE_ENABLED", fmt.Sprintf("%t", t.CacheEnabled)},
		{"RETENTION_DAILY", fmt.Sprintf("%d", t.Retention.Daily)},
		{"RETENTION_WEEKLY", fmt.Sprintf("%d", t.Retention.Weekly)},
		{"RETENTION_MONTHLY", fmt.Sprintf("%d", t.Retention.Monthly)},
		{"BACKUP_SCHEDULE", "0 2 * * *"},
	}

	var sb strings.Builder
	for _, kv := range pairs {
		sb.WriteString(kv[0])
		sb.WriteByte('=')
		sb.WriteString(kv[1])
		sb.WriteByte('\n')
	}
	return []byte(sb.String())
}

var routingTemplate = template.Must(template.New("routing").Parse(`server {
    listen 80;
    server_name {{.ServerNames}};

    client_max_body_size 128m;

    location / {
        proxy_pass http://127.0.0.1:{{.Port}};
        proxy_set_header Host $host;
        proxy_set_header X-Real-IP $remote_addr;
        proxy_set_header X-Forwarded-For $proxy_add_x_forwarded_for;
        proxy_set_header X-Forwarded-Proto $scheme;
        proxy_read_timeout 720s;
        proxy_connect_timeout 720s;
        proxy_send_timeout 720s;
    }

    location /longpolling {
        proxy_pass http://127.0.0.1:{{.Port}};
    }

    gzip on;
    gzip_types text/css text/plain application/json application/javascript;
}
`))

// RenderRoutingUnit renders the reverse proxy server block covering
// every domain bound to the tenant. The primary domain always leads;
// custom domains follow in sorted order.
func RenderRoutingUnit(t domain.Tenant) ([]byte, error) {
	custom := append([]string(nil), t.CustomDomains...)
	sort.Strings(custom)
	return RenderRouting(append([]string{t.Domain}, custom...), t.Port)
}

// RenderRouting renders a server block for the given domains, in order,
// proxying to the upstream port.
func RenderRouting(domains []string, upstreamPort int) ([]byte, error) {
	var sb strings.Builder
	err := routingTemplate.Execute(&sb, struct {
		ServerNames string
		Port        int
	}{
		ServerNames: strings.Join(domains, " "),
		Port:        upstreamPort,
	})
	if err != nil {
		return nil, err
	}
	return []byte(sb.String()), nil
}
