package backend

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/velofit/velofit/internal/telemetry/tracing"

	"go.opentelemetry.io/otel/attribute"
)

// Storage uploads objects (avatar images, form-check videos) to the
// platform's object store by path and hands back public URLs.
type Storage struct {
	baseURL    string
	apiKey     string
	tokens     TokenProvider
	httpClient *http.Client
}

func NewStorage(baseURL, apiKey string, tokens TokenProvider, httpClient *http.Client) *Storage {
	return &Storage{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		apiKey:     apiKey,
		tokens:     tokens,
		httpClient: httpClient,
	}
}

// Upload stores data under bucket/path and returns the public URL of the
// object. With upsert set, an existing object at the same path is
// overwritten instead of rejected.
func (s *Storage) Upload(
	ctx context.Context,
	bucket, path, contentType string,
	data []byte,
	upsert bool,
) (_ string, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "storage.upload")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("bucket", bucket))
	span.SetAttributes(attribute.String("path", path))
	span.SetAttributes(attribute.Int("size", len(data)))

	operation := fmt.Sprintf("upload %s/%s", bucket, path)
	if len(data) == 0 {
		return "", NewValidationError("upload payload must not be empty")
	}

	objectURL := fmt.Sprintf("%s/storage/v1/object/%s/%s", s.baseURL, bucket, path)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, objectURL, bytes.NewReader(data))
	if err != nil {
		return "", &RemoteError{Operation: operation, Message: err.Error()}
	}

	req.Header.Set("apikey", s.apiKey)
	req.Header.Set("Content-Type", contentType)
	if upsert {
		req.Header.Set("x-upsert", "true")
	}
	if token := s.tokens.AccessToken(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", &RemoteError{Operation: operation, Message: err.Error()}
	}
	defer resp.Body.Close()

	respBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &RemoteError{Operation: operation, Message: fmt.Sprintf("read response: %s", err)}
	}

	if resp.StatusCode == http.StatusUnauthorized {
		return "", ErrNotAuthenticated
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", remoteError(operation, resp.StatusCode, respBytes)
	}

	return s.PublicURL(bucket, path), nil
}

// PublicURL is deterministic: the object's public address depends only on
// bucket and path, so the URL reported by Upload and the one stored on a
// profile row always match.
func (s *Storage) PublicURL(bucket, path string) string {
	return fmt.Sprintf("%s/storage/v1/object/public/%s/%s", s.baseURL, bucket, path)
}
