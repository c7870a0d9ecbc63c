package deepface

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/example/face-verify/internal/config"
	"github.com/example/face-verify/internal/faceverifier"
	"github.com/example/face-verify/internal/imagecodec"
	"github.com/example/face-verify/internal/logging"
)

// Config holds the configuration for the DeepFace client
type Config struct {
	BaseURL        string
	Timeout        time.Duration
	Model          string
	Detector       string
	DistanceMetric string
}

// ConfigFrom maps the environment settings onto a client Config.
func ConfigFrom(settings config.DeepFaceConfig) Config {
	return Config{
		BaseURL:        settings.URL,
		Timeout:        settings.Timeout,
		Model:          settings.Model,
		Detector:       settings.Detector,
		DistanceMetric: settings.DistanceMetric,
	}
}

// Client calls a DeepFace REST service. It implements faceverifier.Verifier.
type Client struct {
	httpClient *http.Client
	config     Config
	logger     *zap.Logger
}

// NewClient creates a new DeepFace client
func NewClient(config Config, logger *zap.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: config.Timeout},
		config:     config,
		logger:     logger.Named("deepface"),
	}
}

// Verify calls POST /verify with both images re-encoded as PNG data URIs.
func (c *Client) Verify(ctx context.Context, img1, img2 *imagecodec.PixelArray, opts faceverifier.Options) (faceverifier.Result, error) {
	uri1, err := dataURI(img1)
	if err != nil {
		return nil, logging.NewOperationError("deepface.encode_img1", "", err)
	}
	uri2, err := dataURI(img2)
	if err != nil {
		return nil, logging.NewOperationError("deepface.encode_img2", "", err)
	}

	req := VerifyRequest{
		Img1:             uri1,
		Img2:             uri2,
		ModelName:        c.config.Model,
		DetectorBackend:  c.config.Detector,
		DistanceMetric:   c.config.DistanceMetric,
		EnforceDetection: opts.EnforceDetection,
		Align:            true,
	}

	var result faceverifier.Result
	if err := c.doRequest(ctx, http.MethodPost, "/verify", req, &result); err != nil {
		wrapped := logging.NewOperationError("deepface.verify", "", err)
		c.logger.Error("deepface verify failed", zap.Error(wrapped), zap.String("base_url", c.config.BaseURL))
		return nil, wrapped
	}
	return result, nil
}

func dataURI(p *imagecodec.PixelArray) (string, error) {
	data, err := p.EncodePNG()
	if err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(data), nil
}

// doRequest executes a single HTTP request. Numbers in the response keep their
// original textual form.
func (c *Client) doRequest(ctx context.Context, method, path string, body interface{}, result interface{}) error {
	var bodyReader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	url := strings.TrimRight(c.config.BaseURL, "/") + path
	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("%w: %v", ErrDeepFaceUnavailable, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return &ServiceError{StatusCode: resp.StatusCode, Message: serviceMessage(respBody)}
	}

	if result != nil {
		dec := json.NewDecoder(bytes.NewReader(respBody))
		dec.UseNumber()
		if err := dec.Decode(result); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidResponse, err)
		}
	}
	return nil
}

func serviceMessage(body []byte) string {
	var payload errorResponse
	if err := json.Unmarshal(body, &payload); err == nil && payload.Error != "" {
		return payload.Error
	}
	return strings.TrimSpace(string(body))
}

var _ faceverifier.Verifier = (*Client)(nil)
