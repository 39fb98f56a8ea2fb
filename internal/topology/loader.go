package topology

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"TrainCtl/internal/domain/models"
	xhttp "TrainCtl/pkg/http"

	"gopkg.in/yaml.v3"
)

// LoaderOption configures Load.
type LoaderOption func(*loaderConfig)

type loaderConfig struct {
	client  *xhttp.Client
	timeout time.Duration
}

// WithHTTPClient sets the client used for http(s) sources.
func WithHTTPClient(c *xhttp.Client) LoaderOption {
	return func(cfg *loaderConfig) { cfg.client = c }
}

// WithFetchTimeout bounds remote fetches.
func WithFetchTimeout(d time.Duration) LoaderOption {
	return func(cfg *loaderConfig) {
		if d > 0 {
			cfg.timeout = d
		}
	}
}

// Load reads a YAML or JSON topology from a file path or an http(s) URL.
func Load(ctx context.Context, source string, opts ...LoaderOption) (*Topology, error) {
	cfg := &loaderConfig{timeout: 10 * time.Second}
	for _, opt := range opts {
		opt(cfg)
	}

	raw, err := fetch(ctx, source, cfg)
	if err != nil {
		return nil, &models.TopologyLoadError{Source: source, Err: err}
	}
	t, err := Parse(raw)
	if err != nil {
		var le *models.TopologyLoadError
		if errors.As(err, &le) {
			le.Source = source
			return nil, le
		}
		return nil, &models.TopologyLoadError{Source: source, Err: err}
	}
	return t, nil
}

// Parse decodes a YAML or JSON document and builds a Topology from it.
func Parse(raw []byte) (*Topology, error) {
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)

	var data models.TopologyData
	if err := dec.Decode(&data); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, loadErr(fmt.Errorf("empty document"))
		}
		return nil, loadErr(fmt.Errorf("decode: %w", err))
	}
	return New(data)
}

func fetch(ctx context.Context, source string, cfg *loaderConfig) ([]byte, error) {
	if source == "" {
		return nil, fmt.Errorf("no source configured")
	}
	if !strings.HasPrefix(source, "http://") && !strings.HasPrefix(source, "https://") {
		b, err := os.ReadFile(source)
		if err != nil {
			return nil, fmt.Errorf("read file: %w", err)
		}
		return b, nil
	}

	client := cfg.client
	if client == nil {
		client = xhttp.NewClient(xhttp.WithTimeout(cfg.timeout))
	}
	ctx, cancel := context.WithTimeout(ctx, cfg.timeout)
	defer cancel()

	var body []byte
	err := client.SendAndParse(ctx, &xhttp.RequestOptions{
		Method:  xhttp.MethodGet,
		URL:     source,
		Headers: map[string]string{"Accept": "application/yaml, application/json"},
	}, &body)
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}
	return body, nil
}
