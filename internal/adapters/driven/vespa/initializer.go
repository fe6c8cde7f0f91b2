package vespa

import (
	"archive/zip"
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strings"
	"text/template"
	"time"

	"github.com/custodia-labs/flight-catalog/internal/core/domain"
	"github.com/custodia-labs/flight-catalog/internal/core/ports/driven"
)

//go:embed schemas/services.xml.tmpl schemas/*.sd
var schemaFS embed.FS

// Verify interface compliance
var _ driven.IndexInitializer = (*Initializer)(nil)

// Initializer deploys the application package for every registered index kind
// through the Vespa config server.
type Initializer struct {
	endpoint   string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewInitializer creates an Initializer for the config server at endpoint
// (e.g., http://localhost:19071).
func NewInitializer(endpoint string, logger *slog.Logger) (*Initializer, error) {
	endpoint, err := validateEndpoint(endpoint)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Initializer{
		endpoint: endpoint,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		logger: logger,
	}, nil
}

// validateEndpoint accepts only http(s) URLs with a host and strips a trailing slash
func validateEndpoint(endpoint string) (string, error) {
	if endpoint == "" {
		return "", errors.New("vespa endpoint is required")
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("invalid vespa endpoint: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("invalid vespa endpoint scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", errors.New("vespa endpoint has no host")
	}
	return strings.TrimSuffix(endpoint, "/"), nil
}

// Initialize builds an application package with one schema per mapping and
// deploys it with prepareandactivate. Redeploying the same package is a no-op on the Vespa side.
func (i *Initializer) Initialize(ctx context.Context, mappings []domain.IndexMapping) error {
	if len(mappings) == 0 {
		return errors.New("no index mappings to deploy")
	}

	zipData, err := buildAppPackage(mappings)
	if err != nil {
		return fmt.Errorf("failed to create app package: %w", err)
	}

	deployURL := fmt.Sprintf("%s/application/v2/tenant/default/prepareandactivate", i.endpoint)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, deployURL, bytes.NewReader(zipData))
	if err != nil {
		return fmt.Errorf("failed to create deploy request: %w", err)
	}
	req.Header.Set("Content-Type", "application/zip")

	resp, err := i.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("deployment request failed: %w: %v", domain.ErrServiceUnavailable, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 400 {
		return fmt.Errorf("deployment failed with status %s: %s", resp.Status, string(body))
	}

	types := make([]string, len(mappings))
	for j, m := range mappings {
		types[j] = m.DocumentType
	}
	i.logger.Info("vespa application deployed", "document_types", types)
	return nil
}

// buildAppPackage zips services.xml and the embedded schema of every mapping
func buildAppPackage(mappings []domain.IndexMapping) ([]byte, error) {
	tmpl, err := template.ParseFS(schemaFS, "schemas/services.xml.tmpl")
	if err != nil {
		return nil, err
	}

	var services bytes.Buffer
	if err := tmpl.Execute(&services, mappings); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	zipWriter := zip.NewWriter(&buf)

	servicesWriter, err := zipWriter.Create("services.xml")
	if err != nil {
		return nil, err
	}
	if _, err := servicesWriter.Write(services.Bytes()); err != nil {
		return nil, err
	}

	for _, m := range mappings {
		schema, err := schemaFS.ReadFile(m.SchemaFile)
		if err != nil {
			return nil, fmt.Errorf("schema for %s: %w", m.Kind, err)
		}
		schemaWriter, err := zipWriter.Create(path.Join("schemas", m.DocumentType+".sd"))
		if err != nil {
			return nil, err
		}
		if _, err := schemaWriter.Write(schema); err != nil {
			return nil, err
		}
	}

	if err := zipWriter.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
