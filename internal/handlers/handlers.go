package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/example/face-verify/internal/logging"
	"github.com/example/face-verify/internal/usecase"
)

// DefaultMaxUploadSize bounds the whole multipart body.
const DefaultMaxUploadSize = 10 << 20

// Options configures the router.
type Options struct {
	MaxUploadBytes int64
	CORSOrigins    []string
}

// NewRouter builds the Gin engine with middleware and routes attached.
func NewRouter(opts Options, uc *usecase.VerificationUseCase, logger *zap.Logger) *gin.Engine {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = DefaultMaxUploadSize
	}

	r := gin.New()
	r.MaxMultipartMemory = opts.MaxUploadBytes
	r.Use(RequestID(), AccessLog(logger), Recovery(logger), CORS(opts.CORSOrigins), BodyLimit(opts.MaxUploadBytes))

	RegisterRoutes(r, uc, logger)
	return r
}

// RegisterRoutes wires the HTTP handlers to the Gin router.
func RegisterRoutes(router *gin.Engine, uc *usecase.VerificationUseCase, logger *zap.Logger) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.POST("/verify", verifyHandler(uc, logger, "img1", "img2"))

	// Gateway route used by the mobile/web client.
	router.POST("/api/verify-face", verifyHandler(uc, logger, "id_image", "face_image"))
}

func verifyHandler(uc *usecase.VerificationUseCase, logger *zap.Logger, field1, field2 string) gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := requestIDFrom(c)

		first, err := readUpload(c, field1)
		if err != nil {
			respondError(c, logger, requestID, err)
			return
		}
		second, err := readUpload(c, field2)
		if err != nil {
			respondError(c, logger, requestID, err)
			return
		}

		result, err := uc.Verify(c.Request.Context(), requestID, first, second)
		if err != nil {
			respondError(c, logger, requestID, err)
			return
		}

		c.JSON(http.StatusOK, result)
	}
}

func readUpload(c *gin.Context, field string) (usecase.Upload, error) {
	file, err := c.FormFile(field)
	if err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.Is(err, http.ErrMissingFile), errors.Is(err, http.ErrNotMultipart):
			return usecase.Upload{}, &usecase.MissingFieldError{Field: field}
		case errors.As(err, &tooLarge):
			return usecase.Upload{}, fmt.Errorf("upload exceeds %d bytes", tooLarge.Limit)
		default:
			return usecase.Upload{}, fmt.Errorf("invalid multipart form: %w", err)
		}
	}

	src, err := file.Open()
	if err != nil {
		return usecase.Upload{}, fmt.Errorf("unable to open %s: %w", field, err)
	}
	defer src.Close()

	data, err := io.ReadAll(src)
	if err != nil {
		return usecase.Upload{}, fmt.Errorf("failed to read %s: %w", field, err)
	}
	return usecase.Upload{Field: field, Data: data}, nil
}

// respondError writes the uniform error envelope. Every failure kind maps to
// HTTP 500; the kind is only visible in logs.
func respondError(c *gin.Context, logger *zap.Logger, requestID string, err error) {
	logging.WithOperation(logger, "handlers.verify", requestID).Warn("verification request failed",
		zap.String("kind", errorKind(err)),
		zap.Error(err),
	)
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": logging.PublicMessage(err)})
}

func errorKind(err error) string {
	var (
		missing *usecase.MissingFieldError
		decode  *usecase.DecodeError
		verify  *usecase.VerificationError
	)
	switch {
	case errors.As(err, &missing):
		return usecase.KindMissingInput
	case errors.As(err, &decode):
		return usecase.KindDecode
	case errors.As(err, &verify):
		return usecase.KindVerification
	default:
		return "request"
	}
}
