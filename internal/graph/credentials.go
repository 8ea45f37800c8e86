package graph

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/oauth2/microsoft"
)

// DefaultScope requests the application permissions granted to the daemon app.
const DefaultScope = "https://graph.microsoft.com/.default"

// CredentialConfig identifies the multi-tenant daemon application.
type CredentialConfig struct {
	ClientID     string
	ClientSecret string
	// AuthorityURL overrides https://login.microsoftonline.com, mainly for tests.
	AuthorityURL string
}

// CredentialProvider issues app-only Graph tokens per tenant using the OAuth2
// client-credentials grant. Token sources are reused per tenant so a valid token is
// not requested twice.
type CredentialProvider struct {
	config     CredentialConfig
	httpClient *http.Client

	mu      sync.Mutex
	sources map[string]oauth2.TokenSource
}

// NewCredentialProvider validates the app credentials and returns a provider.
func NewCredentialProvider(cfg CredentialConfig, httpClient *http.Client) (*CredentialProvider, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, fmt.Errorf("%w: daemon client id and secret must be set", ErrAuthFailed)
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &CredentialProvider{
		config:     cfg,
		httpClient: httpClient,
		sources:    make(map[string]oauth2.TokenSource),
	}, nil
}

// AccessToken returns a bearer token for tenantID.
func (p *CredentialProvider) AccessToken(ctx context.Context, tenantID string) (string, error) {
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return "", fmt.Errorf("%w: empty tenant id", ErrAuthFailed)
	}

	tok, err := p.source(ctx, tenantID).Token()
	if err != nil {
		p.forget(tenantID)
		return "", fmt.Errorf("%w: tenant %s: %v", ErrAuthFailed, tenantID, err)
	}
	if tok.AccessToken == "" {
		p.forget(tenantID)
		return "", fmt.Errorf("%w: tenant %s: empty access token", ErrAuthFailed, tenantID)
	}
	return tok.AccessToken, nil
}

func (p *CredentialProvider) source(ctx context.Context, tenantID string) oauth2.TokenSource {
	p.mu.Lock()
	defer p.mu.Unlock()
	if ts, ok := p.sources[tenantID]; ok {
		return ts
	}
	cc := &clientcredentials.Config{
		ClientID:     p.config.ClientID,
		ClientSecret: p.config.ClientSecret,
		TokenURL:     p.tokenURL(tenantID),
		Scopes:       []string{DefaultScope},
		AuthStyle:    oauth2.AuthStyleInParams,
	}
	// The token source keeps the context for refreshes, so it must outlive the run.
	base := context.WithValue(context.WithoutCancel(ctx), oauth2.HTTPClient, p.httpClient)
	ts := cc.TokenSource(base)
	p.sources[tenantID] = ts
	return ts
}

func (p *CredentialProvider) forget(tenantID string) {
	p.mu.Lock()
	delete(p.sources, tenantID)
	p.mu.Unlock()
}

func (p *CredentialProvider) tokenURL(tenantID string) string {
	if p.config.AuthorityURL == "" {
		return microsoft.AzureADEndpoint(tenantID).TokenURL
	}
	return fmt.Sprintf("%s/%s/oauth2/v2.0/token", strings.TrimRight(p.config.AuthorityURL, "/"), tenantID)
}
