// Package mailer sends rendered emails through the configured
// provider. The provider is a singleton row the config applier and
// /email/config endpoint overwrite as a unit.
package mailer

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/ignite/segflow/internal/db"
	"github.com/ignite/segflow/internal/engine"
)

// Sender delivers one rendered email.
type Sender interface {
	Send(ctx context.Context, from, to, subject, html string) error
}

// ProviderConfig is the tagged union stored in the email_providers row.
type ProviderConfig struct {
	Name            string `json:"name"`
	APIKey          string `json:"apiKey,omitempty"`
	AccessKeyID     string `json:"accessKeyId,omitempty"`
	SecretAccessKey string `json:"secretAccessKey,omitempty"`
	Region          string `json:"region,omitempty"`
}

// Validate checks the union tag and its required fields.
func (c *ProviderConfig) Validate() error {
	switch c.Name {
	case "postmark":
		if c.APIKey == "" {
			return engine.Validationf("postmark provider requires apiKey")
		}
	case "ses":
		if c.AccessKeyID == "" || c.SecretAccessKey == "" || c.Region == "" {
			return engine.Validationf("ses provider requires accessKeyId, secretAccessKey and region")
		}
	default:
		return engine.Validationf("unknown email provider %q", c.Name)
	}
	return nil
}

// Provider is the configured provider plus the fixed sender address.
type Provider struct {
	Config      ProviderConfig `json:"config"`
	FromAddress string         `json:"fromAddress"`
}

// Validate checks the provider row as a whole.
func (p *Provider) Validate() error {
	if p.FromAddress == "" {
		return engine.Validationf("fromAddress is required")
	}
	return p.Config.Validate()
}

// New builds a Sender for the configured provider.
func New(cfg ProviderConfig) (Sender, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Name {
	case "postmark":
		return NewPostmark(cfg.APIKey), nil
	case "ses":
		return NewSES(cfg.AccessKeyID, cfg.SecretAccessKey, cfg.Region), nil
	}
	return nil, engine.Validationf("unknown email provider %q", cfg.Name)
}

// Store provides database access to the provider singleton.
type Store struct {
	db db.DBTX
}

// NewStore creates a provider store over a pool or transaction.
func NewStore(dbtx db.DBTX) *Store {
	return &Store{db: dbtx}
}

// Set replaces the singleton row. Truncate-then-insert keeps exactly
// one active provider regardless of prior state.
func (s *Store) Set(ctx context.Context, p *Provider) error {
	if err := p.Validate(); err != nil {
		return err
	}
	doc, err := json.Marshal(p.Config)
	if err != nil {
		return fmt.Errorf("marshal provider config: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM email_providers`); err != nil {
		return fmt.Errorf("clear provider: %w", err)
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO email_providers (id, config, from_address) VALUES (1, ?, ?)`,
		doc, p.FromAddress); err != nil {
		return fmt.Errorf("insert provider: %w", err)
	}
	return nil
}

// Current loads the singleton provider row.
func (s *Store) Current(ctx context.Context) (*Provider, error) {
	var doc []byte
	var p Provider
	err := s.db.QueryRowContext(ctx,
		`SELECT config, from_address FROM email_providers WHERE id = 1`).
		Scan(&doc, &p.FromAddress)
	if err == sql.ErrNoRows {
		return nil, engine.NotFound("email provider", "1")
	}
	if err != nil {
		return nil, fmt.Errorf("get provider: %w", err)
	}
	if err := json.Unmarshal(doc, &p.Config); err != nil {
		return nil, fmt.Errorf("decode provider config: %w", err)
	}
	return &p, nil
}

// Sender loads the singleton and builds its Sender in one step.
func (s *Store) Sender(ctx context.Context) (Sender, string, error) {
	p, err := s.Current(ctx)
	if err != nil {
		return nil, "", err
	}
	sender, err := New(p.Config)
	if err != nil {
		return nil, "", err
	}
	return sender, p.FromAddress, nil
}
