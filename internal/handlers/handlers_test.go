package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/example/face-verify/internal/faceverifier"
	"github.com/example/face-verify/internal/imagecodec"
	"github.com/example/face-verify/internal/usecase"
)

// pixelMatcher stands in for the face-verification capability: identical
// pixel arrays are the same person.
type pixelMatcher struct {
	err   error
	panic bool
	opts  faceverifier.Options
	calls int
}

func (m *pixelMatcher) Verify(ctx context.Context, img1, img2 *imagecodec.PixelArray, opts faceverifier.Options) (faceverifier.Result, error) {
	m.opts = opts
	m.calls++
	if m.panic {
		panic("capability blew up")
	}
	if m.err != nil {
		return nil, m.err
	}
	verified := img1.Equal(img2)
	distance := 0.0
	if !verified {
		distance = 0.9
	}
	return faceverifier.Result{
		"verified":  verified,
		"distance":  distance,
		"threshold": 0.4,
		"model":     "pixel-matcher",
	}, nil
}

type part struct {
	field       string
	contentType string
	payload     []byte
}

func faceFixture(t *testing.T, person uint8) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 6, 6))
	for y := 0; y < 6; y++ {
		for x := 0; x < 6; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: person, G: uint8(x * 40), B: uint8(y * 40), A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("failed to encode fixture: %v", err)
	}
	return buf.Bytes()
}

func buildMultipartBody(t *testing.T, parts ...part) (*bytes.Buffer, string) {
	t.Helper()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	for _, p := range parts {
		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition", `form-data; name="`+p.field+`"; filename="upload"`)
		header.Set("Content-Type", p.contentType)

		w, err := writer.CreatePart(header)
		if err != nil {
			t.Fatalf("failed to create multipart part: %v", err)
		}
		if _, err := w.Write(p.payload); err != nil {
			t.Fatalf("failed to write payload: %v", err)
		}
	}

	if err := writer.Close(); err != nil {
		t.Fatalf("failed to close writer: %v", err)
	}

	return body, writer.FormDataContentType()
}

const testMaxImagePixels = 25_000_000

func newTestRouter(verifier faceverifier.Verifier, maxUpload int64) *gin.Engine {
	gin.SetMode(gin.TestMode)
	uc := usecase.NewVerificationUseCase(verifier, testMaxImagePixels, zap.NewNop())
	return NewRouter(Options{MaxUploadBytes: maxUpload, CORSOrigins: []string{"*"}}, uc, zap.NewNop())
}

func post(t *testing.T, router *gin.Engine, path string, parts ...part) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()

	body, contentType := buildMultipartBody(t, parts...)
	req := httptest.NewRequest(http.MethodPost, path, body)
	req.Header.Set("Content-Type", contentType)

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	var decoded map[string]any
	if err := json.Unmarshal(resp.Body.Bytes(), &decoded); err != nil {
		t.Fatalf("response is not JSON: %v (%s)", err, resp.Body.String())
	}
	return resp, decoded
}

func assertErrorEnvelope(t *testing.T, resp *httptest.ResponseRecorder, body map[string]any) string {
	t.Helper()
	if resp.Code != http.StatusInternalServerError {
		t.Fatalf("expected status %d, got %d", http.StatusInternalServerError, resp.Code)
	}
	msg, ok := body["error"].(string)
	if !ok || msg == "" {
		t.Fatalf("expected non-empty error field, got %v", body)
	}
	if len(body) != 1 {
		t.Fatalf("expected only the error field, got %v", body)
	}
	return msg
}

func TestVerifySamePersonMatches(t *testing.T) {
	matcher := &pixelMatcher{}
	router := newTestRouter(matcher, 0)
	face := faceFixture(t, 100)

	resp, body := post(t, router, "/verify",
		part{"img1", "image/png", face},
		part{"img2", "image/png", face})

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %v", http.StatusOK, resp.Code, body)
	}
	if body["verified"] != true {
		t.Fatalf("expected verified=true, got %v", body["verified"])
	}
	if body["model"] != "pixel-matcher" {
		t.Fatalf("expected result to pass through unmodified, got %v", body)
	}
	if matcher.opts.EnforceDetection {
		t.Fatal("expected enforce_detection to be disabled")
	}
	if resp.Header().Get(RequestIDHeader) == "" {
		t.Fatal("expected a request id header")
	}
}

func TestVerifyDifferentPeopleDoNotMatch(t *testing.T) {
	router := newTestRouter(&pixelMatcher{}, 0)

	resp, body := post(t, router, "/verify",
		part{"img1", "image/png", faceFixture(t, 100)},
		part{"img2", "image/png", faceFixture(t, 200)})

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, resp.Code)
	}
	if body["verified"] != false {
		t.Fatalf("expected verified=false, got %v", body["verified"])
	}
}

func TestVerifyMissingFields(t *testing.T) {
	router := newTestRouter(&pixelMatcher{}, 0)
	face := faceFixture(t, 1)

	cases := map[string][]part{
		"missing img2": {{"img1", "image/png", face}},
		"missing img1": {{"img2", "image/png", face}},
		"missing both": {{"other", "image/png", face}},
	}
	for name, parts := range cases {
		t.Run(name, func(t *testing.T) {
			resp, body := post(t, router, "/verify", parts...)
			msg := assertErrorEnvelope(t, resp, body)
			if !strings.Contains(msg, "missing required file field") {
				t.Fatalf("unexpected error message: %s", msg)
			}
		})
	}
}

func TestVerifyNonMultipartRequest(t *testing.T) {
	router := newTestRouter(&pixelMatcher{}, 0)

	req := httptest.NewRequest(http.MethodPost, "/verify", strings.NewReader(`{"img1":"x"}`))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	var body map[string]any
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("response is not JSON: %v", err)
	}
	assertErrorEnvelope(t, resp, body)
}

func TestVerifyRejectsTextFile(t *testing.T) {
	router := newTestRouter(&pixelMatcher{}, 0)

	resp, body := post(t, router, "/verify",
		part{"img1", "text/plain", []byte("hello, I am a text file")},
		part{"img2", "image/png", faceFixture(t, 1)})

	msg := assertErrorEnvelope(t, resp, body)
	if !strings.HasPrefix(msg, "img1:") {
		t.Fatalf("expected error to name the field, got %s", msg)
	}
}

func TestVerifyCapabilityFailure(t *testing.T) {
	router := newTestRouter(&pixelMatcher{err: context.DeadlineExceeded}, 0)
	face := faceFixture(t, 1)

	resp, body := post(t, router, "/verify", part{"img1", "image/png", face}, part{"img2", "image/png", face})

	msg := assertErrorEnvelope(t, resp, body)
	if !strings.Contains(msg, "face verification failed") {
		t.Fatalf("unexpected error message: %s", msg)
	}
}

func TestVerifyRecoversFromPanics(t *testing.T) {
	router := newTestRouter(&pixelMatcher{panic: true}, 0)
	face := faceFixture(t, 1)

	resp, body := post(t, router, "/verify", part{"img1", "image/png", face}, part{"img2", "image/png", face})
	assertErrorEnvelope(t, resp, body)
}

func TestVerifyRejectsLargeUpload(t *testing.T) {
	router := newTestRouter(&pixelMatcher{}, 1024)

	resp, body := post(t, router, "/verify",
		part{"img1", "image/png", bytes.Repeat([]byte("a"), 4096)},
		part{"img2", "image/png", faceFixture(t, 1)})

	assertErrorEnvelope(t, resp, body)
}

func TestVerifyRejectsImagesOverPixelLimit(t *testing.T) {
	matcher := &pixelMatcher{}
	router := newTestRouter(matcher, 0)

	var huge bytes.Buffer
	if err := png.Encode(&huge, image.NewGray(image.Rect(0, 0, 8000, 8000))); err != nil {
		t.Fatalf("failed to encode large fixture: %v", err)
	}
	if huge.Len() > 200<<10 {
		t.Fatalf("expected a small compressed upload, got %d bytes", huge.Len())
	}

	resp, body := post(t, router, "/verify",
		part{"img1", "image/png", faceFixture(t, 1)},
		part{"img2", "image/png", huge.Bytes()})

	msg := assertErrorEnvelope(t, resp, body)
	if !strings.HasPrefix(msg, "img2:") || !strings.Contains(msg, "pixel limit") {
		t.Fatalf("unexpected error message: %s", msg)
	}
	if matcher.calls != 0 {
		t.Fatalf("verifier must not be called, got %d calls", matcher.calls)
	}
}

func TestGatewayRouteUsesGatewayFieldNames(t *testing.T) {
	router := newTestRouter(&pixelMatcher{}, 0)
	face := faceFixture(t, 42)

	resp, body := post(t, router, "/api/verify-face",
		part{"id_image", "image/png", face},
		part{"face_image", "image/png", face})
	if resp.Code != http.StatusOK || body["verified"] != true {
		t.Fatalf("expected verified match, got %d %v", resp.Code, body)
	}

	resp, body = post(t, router, "/api/verify-face",
		part{"img1", "image/png", face},
		part{"img2", "image/png", face})
	msg := assertErrorEnvelope(t, resp, body)
	if !strings.Contains(msg, "id_image") {
		t.Fatalf("expected gateway field name in message, got %s", msg)
	}
}

func TestRequestIDIsEchoed(t *testing.T) {
	router := newTestRouter(&pixelMatcher{}, 0)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, resp.Code)
	}
	if got := resp.Header().Get(RequestIDHeader); got != "abc-123" {
		t.Fatalf("expected echoed request id, got %q", got)
	}
}

func TestCORSPreflight(t *testing.T) {
	router := newTestRouter(&pixelMatcher{}, 0)

	req := httptest.NewRequest(http.MethodOptions, "/verify", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, resp.Code)
	}
	if got := resp.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("unexpected allow origin header: %q", got)
	}
}
