package usecase

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/example/face-verify/internal/faceverifier"
	"github.com/example/face-verify/internal/imagecodec"
	"github.com/example/face-verify/internal/logging"
)

// Upload is one named image payload taken from the request.
type Upload struct {
	Field string
	Data  []byte
}

// VerificationUseCase decodes two uploads and asks the verifier to compare them.
type VerificationUseCase struct {
	verifier  faceverifier.Verifier
	maxPixels int64
	logger    *zap.Logger
}

// NewVerificationUseCase constructs a new use case instance. Uploads whose
// declared width*height exceeds maxImagePixels are rejected before decoding;
// zero or less disables the check.
func NewVerificationUseCase(verifier faceverifier.Verifier, maxImagePixels int64, logger *zap.Logger) *VerificationUseCase {
	return &VerificationUseCase{
		verifier:  verifier,
		maxPixels: maxImagePixels,
		logger:    logger.Named("verification_usecase"),
	}
}

// Verify decodes both uploads and runs face verification with face detection
// enforcement disabled. The capability's result is returned as is. The returned error is an *logging.OperationError
// wrapping a *DecodeError or *VerificationError.
func (uc *VerificationUseCase) Verify(ctx context.Context, requestID string, first, second Upload) (faceverifier.Result, error) {
	opLogger := logging.WithOperation(uc.logger, "usecase.verify", requestID)

	img1, err := uc.decodeUpload(first)
	if err != nil {
		opLogger.Warn("image decode failed", zap.String("field", first.Field), zap.Error(err))
		return nil, logging.NewOperationError("usecase.decode", requestID, err)
	}
	img2, err := uc.decodeUpload(second)
	if err != nil {
		opLogger.Warn("image decode failed", zap.String("field", second.Field), zap.Error(err))
		return nil, logging.NewOperationError("usecase.decode", requestID, err)
	}

	started := time.Now()
	result, err := uc.verifier.Verify(ctx, img1, img2, faceverifier.Options{EnforceDetection: false})
	if err != nil {
		wrapped := logging.NewOperationError("usecase.face_verify", requestID, &VerificationError{Err: err})
		opLogger.Error("face verification failed", zap.Error(wrapped), zap.Duration("latency", time.Since(started)))
		return nil, wrapped
	}

	verified, ok := result.Verified()
	if !ok {
		opLogger.Warn("verification result has no boolean match decision", zap.Strings("fields", fieldNames(result)))
	}
	fields := []zap.Field{
		zap.Bool("verified", verified),
		zap.Duration("latency", time.Since(started)),
		zap.Ints("img1_shape", shape(img1)),
		zap.Ints("img2_shape", shape(img2)),
	}
	if distance, ok := result.Distance(); ok {
		fields = append(fields, zap.Float64("distance", distance))
	}
	opLogger.Info("face verification completed", fields...)
	return result, nil
}

func (uc *VerificationUseCase) decodeUpload(u Upload) (*imagecodec.PixelArray, error) {
	img, err := imagecodec.Decode(u.Data, uc.maxPixels)
	if err != nil {
		return nil, &DecodeError{Field: u.Field, Err: err}
	}
	return img, nil
}

func shape(p *imagecodec.PixelArray) []int {
	s := p.Shape()
	return s[:]
}

func fieldNames(r faceverifier.Result) []string {
	names := make([]string, 0, len(r))
	for k := range r {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
