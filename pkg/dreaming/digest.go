package dreaming

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
	"time"

	"github.com/healer-ai/p8fs/pkg/errs"
	"github.com/healer-ai/p8fs/pkg/obs"
	"github.com/healer-ai/p8fs/pkg/repository"
)

// DigestConfig configures the email digest pass, dispatched through
// net/smtp directly; the SMTP relay itself is an external collaborator.
type DigestConfig struct {
	Enabled  bool
	SMTPAddr string
	From     string
	Subject  string
}

// DefaultDigestSubject is the subject line used when DigestConfig.Subject is
// empty; the pipeline does not vary it per tenant or run.
const DefaultDigestSubject = "Your recent activity digest"

// SendDigest renders the Moments created within lookback into an HTML
// email body and sends it to the tenant's recipient. A
// disabled config or a tenant with no resolvable recipient is a no-op, not
// an error, since most tenants never opt in.
func SendDigest(ctx context.Context, sp *storageProviders, tenantID string, lookback time.Duration, cfg DigestConfig) error {
	log := obs.WithTenant(obs.Component("dreaming.digest"), tenantID)

	if !cfg.Enabled {
		return nil
	}

	recipient, err := resolveDigestRecipient(ctx, sp, tenantID)
	if err != nil {
		return err
	}
	if recipient == "" {
		log.Debug().Msg("no digest recipient configured for tenant, skipping")
		return nil
	}

	moments, err := repository.New(sp.Storage, sp.KV, sp.Embeddings, tenantID, "moments")
	if err != nil {
		return err
	}
	cutoff := time.Now().Add(-lookback)
	rows, err := moments.Select(ctx, nil, "", 100)
	if err != nil {
		return err
	}

	var recent []string
	for _, m := range rows {
		ts, ok := rowTime(m["created_at"])
		if ok && ts.Before(cutoff) {
			continue
		}
		name := rowString(m["name"])
		summary := rowString(m["summary"])
		if summary == "" {
			summary = rowString(m["content"])
		}
		recent = append(recent, renderDigestItem(name, summary))
	}
	if len(recent) == 0 {
		log.Debug().Msg("no new moments in digest window, skipping send")
		return nil
	}

	subject := cfg.Subject
	if subject == "" {
		subject = DefaultDigestSubject
	}
	body := renderDigestBody(recent)
	return dispatchDigestEmail(cfg, recipient, subject, body)
}

func resolveDigestRecipient(ctx context.Context, sp *storageProviders, tenantID string) (string, error) {
	users, err := repository.New(sp.Storage, sp.KV, sp.Embeddings, tenantID, "users")
	if err != nil {
		return "", err
	}
	rows, err := users.Select(ctx, nil, "", 1)
	if err != nil {
		return "", err
	}
	for _, u := range rows {
		if email := rowString(u["email"]); email != "" {
			return email, nil
		}
	}

	tenants, err := repository.New(sp.Storage, sp.KV, sp.Embeddings, tenantID, "tenants")
	if err != nil {
		return "", err
	}
	t, err := tenants.Get(ctx, tenantID)
	if err != nil || t == nil {
		return "", nil
	}
	meta, _ := t["metadata"].(map[string]any)
	if meta == nil {
		return "", nil
	}
	email, _ := meta["digest_email"].(string)
	return email, nil
}

func renderDigestItem(name, summary string) string {
	if name == "" {
		name = "Untitled moment"
	}
	return fmt.Sprintf("<li><strong>%s</strong><br>%s</li>", htmlEscape(name), htmlEscape(summary))
}

func renderDigestBody(items []string) string {
	var b strings.Builder
	b.WriteString("<html><body><h2>Recent moments</h2><ul>")
	for _, it := range items {
		b.WriteString(it)
	}
	b.WriteString("</ul></body></html>")
	return b.String()
}

func htmlEscape(s string) string {
	r := strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")
	return r.Replace(s)
}

func dispatchDigestEmail(cfg DigestConfig, to, subject, htmlBody string) error {
	if cfg.SMTPAddr == "" || cfg.From == "" {
		return errs.Validation("dreaming.SendDigest", "smtp_addr and from must be configured when digest is enabled")
	}
	msg := fmt.Sprintf(
		"From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/html; charset=UTF-8\r\n\r\n%s",
		cfg.From, to, subject, htmlBody,
	)
	if err := smtp.SendMail(cfg.SMTPAddr, nil, cfg.From, []string{to}, []byte(msg)); err != nil {
		return errs.Transient("dreaming.SendDigest", "smtp send failed", err)
	}
	return nil
}
