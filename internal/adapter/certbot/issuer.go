// Package certbot obtains TLS certificates through the certbot CLI.
package certbot

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"time"

	"github.com/neomorfeo/stackhost/internal/domain"
)

const issueTimeout = 2 * time.Minute

// Issuer shells out to certbot's nginx authenticator. Callers treat
// issuance failure as non-fatal; the domain stays served over plain
// HTTP until a retry succeeds.
type Issuer struct {
	logger *slog.Logger
}

var _ domain.CertificateIssuer = (*Issuer)(nil)

func New(logger *slog.Logger) *Issuer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Issuer{logger: logger}
}

func (i *Issuer) Issue(ctx context.Context, domainName, contactEmail string) error {
	ctx, cancel := context.WithTimeout(ctx, issueTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "certbot", "certonly",
		"--nginx",
		"-d", domainName,
		"--non-interactive",
		"--agree-tos",
		"--email", contactEmail,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("certbot for %s: %w: %s", domainName, err, bytes.TrimSpace(stderr.Bytes()))
	}

	i.logger.Info("certificate issued", "domain", domainName)
	return nil
}
