// Package detector talks to the image damage classification service.
package detector

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	pkgerrors "github.com/angelmondragon/sheerent-backend/pkg/errors"
	"github.com/google/uuid"
)

const (
	defaultTimeout             = 10 * time.Second
	detectPath                 = "/detect"
	responseBodyReadLimit int64 = 1024
)

var errURLRequired = errors.New("damage detector url is required")

// Request carries the canonical before image and the freshly captured after image.
type Request struct {
	ItemID   uuid.UUID
	RentalID uuid.UUID
	Before   []byte
	After    []byte
}

// Result is the classifier verdict. Info is passed through to clients untouched.
type Result struct {
	Damaged bool           `json:"damaged"`
	Info    map[string]any `json:"info"`
}

// Detector compares two images of an item. Failures surface as DETECTOR_UNAVAILABLE.
type Detector interface {
	Detect(ctx context.Context, req Request) (Result, error)
}

// Client is the HTTP implementation of Detector.
type Client struct {
	httpClient *http.Client
	baseURL    string
	timeout    time.Duration
}

// Option configures optional client behavior.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithTimeout bounds every Detect call.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

func NewClient(baseURL string, opts ...Option) (*Client, error) {
	trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if trimmed == "" {
		return nil, errURLRequired
	}
	client := &Client{
		baseURL:    trimmed,
		timeout:    defaultTimeout,
		httpClient: &http.Client{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client, nil
}

func (c *Client) Detect(ctx context.Context, req Request) (Result, error) {
	if c == nil {
		return Result{}, pkgerrors.New(pkgerrors.CodeDetectorUnavailable, "damage detector not configured")
	}
	if len(req.Before) == 0 || len(req.After) == 0 {
		return Result{}, pkgerrors.New(pkgerrors.CodeValidation, "before and after images are required")
	}

	body, contentType, err := encodeRequest(req)
	if err != nil {
		return Result{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode detect request")
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+detectPath, body)
	if err != nil {
		return Result{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build detect request")
	}
	httpReq.Header.Set("Content-Type", contentType)
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return Result{}, pkgerrors.Wrap(pkgerrors.CodeDetectorUnavailable, err, "execute detect request")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, responseBodyReadLimit))
		return Result{}, pkgerrors.Wrap(pkgerrors.CodeDetectorUnavailable,
			fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))), "detect request failed")
	}

	var result Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return Result{}, pkgerrors.Wrap(pkgerrors.CodeDetectorUnavailable, err, "decode detect response")
	}
	if result.Info == nil {
		result.Info = map[string]any{}
	}
	return result, nil
}

func encodeRequest(req Request) (*bytes.Buffer, string, error) {
	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)
	if err := w.WriteField("item_id", req.ItemID.String()); err != nil {
		return nil, "", err
	}
	if err := w.WriteField("rental_id", req.RentalID.String()); err != nil {
		return nil, "", err
	}
	for _, part := range []struct {
		field string
		data  []byte
	}{{"before", req.Before}, {"after", req.After}} {
		fw, err := w.CreateFormFile(part.field, part.field+".jpg")
		if err != nil {
			return nil, "", err
		}
		if _, err := fw.Write(part.data); err != nil {
			return nil, "", err
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf, w.FormDataContentType(), nil
}
