// Package serving talks to a deployed model server through its public route.
package serving

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/davidmdm/mlflow-openshift/internal/k8s"
)

const DefaultTimeout = 30 * time.Second

type Client struct {
	HTTP *http.Client
}

// NewClient returns a client for reaching routes over TLS. Insecure disables certificate verification,
// which is needed for clusters serving routes with self signed certificates.
func NewClient(insecure bool) *Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if insecure {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}
	return &Client{
		HTTP: &http.Client{Transport: transport, Timeout: DefaultTimeout},
	}
}

// Probe requests the root of the route and returns the response status code.
func (client Client) Probe(ctx context.Context, route k8s.RouteInfo) (int, error) {
	req, err := newRequest(ctx, http.MethodGet, route, "/", nil)
	if err != nil {
		return 0, err
	}

	resp, err := client.HTTP.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	_, _ = io.Copy(io.Discard, resp.Body)

	return resp.StatusCode, nil
}

// Predict posts frame to the invocations endpoint of the model server and parses the predictions.
func (client Client) Predict(ctx context.Context, route k8s.RouteInfo, frame Frame) (Array, error) {
	payload, err := json.Marshal(frame)
	if err != nil {
		return Array{}, fmt.Errorf("failed to encode input: %w", err)
	}

	req, err := newRequest(ctx, http.MethodPost, route, "/invocations", bytes.NewReader(payload))
	if err != nil {
		return Array{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.HTTP.Do(req)
	if err != nil {
		return Array{}, fmt.Errorf("failed to reach model server: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Array{}, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return Array{}, fmt.Errorf("model server responded with %s: %s", resp.Status, bytes.TrimSpace(body))
	}

	return ParseArray(body)
}

func newRequest(ctx context.Context, method string, route k8s.RouteInfo, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, "https://"+route.Host+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.SetBasicAuth(route.Auth.Username, route.Auth.Password)
	return req, nil
}
