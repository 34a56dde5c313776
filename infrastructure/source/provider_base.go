package source

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"

	"github.com/tidwall/gjson"

	"github.com/ahrav/imgverdict/internal/domain"
)

// maxResponseBytes caps how much of a vendor response is read.
const maxResponseBytes = 4 << 20

// BaseProvider provides the identity shared by all providers.
type BaseProvider struct {
	name     string
	provider string
}

// Name returns the configured source name.
func (b *BaseProvider) Name() string { return b.name }

// Provider returns the provider type.
func (b *BaseProvider) Provider() string { return b.provider }

func newBaseProvider(config ClientConfig, provider string) BaseProvider {
	name := config.Name
	if name == "" {
		name = provider
	}
	return BaseProvider{name: name, provider: provider}
}

// httpCaller performs vendor HTTP calls and turns transport failures and
// non-2xx statuses into ProviderErrors.
type httpCaller struct {
	client     *http.Client
	classifier *ErrorClassifier
}

func newHTTPCaller(client *http.Client, provider string) httpCaller {
	if client == nil {
		client = &http.Client{}
	}
	return httpCaller{client: client, classifier: &ErrorClassifier{Provider: provider}}
}

// postMultipart uploads img as a single file field and returns the
// response body. Extra form fields are written before the file.
func (h httpCaller) postMultipart(
	ctx context.Context,
	url string,
	header http.Header,
	field string,
	img domain.Image,
	extra map[string]string,
) ([]byte, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range extra {
		if err := mw.WriteField(k, v); err != nil {
			return nil, fmt.Errorf("write form field %s: %w", k, err)
		}
	}
	fw, err := mw.CreateFormFile(field, filepath.Base(img.Name))
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := fw.Write(img.Data); err != nil {
		return nil, fmt.Errorf("write form file: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("close multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return h.do(req)
}

// postBinary sends the raw image bytes as the request body.
func (h httpCaller) postBinary(ctx context.Context, url string, header http.Header, img domain.Image) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(img.Data))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if img.MIMEType != "" {
		req.Header.Set("Content-Type", img.MIMEType)
	}
	return h.do(req)
}

func (h httpCaller) do(req *http.Request) ([]byte, error) {
	req.Header.Set("Accept", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, h.classifier.ClassifyTransportError(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, h.classifier.ClassifyTransportError(err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, h.classifier.ClassifyHTTPError(resp.StatusCode, errorMessage(data, resp.Status), nil)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, NewProviderError(h.classifier.Provider, ErrorTypeInvalidResponse, resp.StatusCode, "", ErrEmptyResponse)
	}
	if !gjson.ValidBytes(data) {
		return nil, h.classifier.InvalidResponse("response is not JSON")
	}
	return data, nil
}

// errorMessage extracts a readable message from a vendor error payload.
func errorMessage(data []byte, fallback string) string {
	if gjson.ValidBytes(data) {
		for _, path := range []string{"error.message", "error", "message", "detail"} {
			if r := gjson.GetBytes(data, path); r.Exists() && r.Type == gjson.String && r.String() != "" {
				return r.String()
			}
		}
	}
	return fallback
}

func bearer(key string) http.Header {
	h := http.Header{}
	if key != "" {
		h.Set("Authorization", "Bearer "+key)
	}
	return h
}
