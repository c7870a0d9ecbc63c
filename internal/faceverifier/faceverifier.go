// Package faceverifier defines the contract for external face-verification
// capabilities. Implementations live in the deepface and grpcclient packages.
package faceverifier

import (
	"context"
	"encoding/json"

	"github.com/example/face-verify/internal/imagecodec"
)

// VerifiedKey is the result field holding the match decision.
const VerifiedKey = "verified"

// Options tunes a single verification call.
type Options struct {
	// EnforceDetection makes the capability fail when no face is found.
	// The endpoint always sends false so such images degrade to a non-match.
	EnforceDetection bool
}

// Result is the capability's result mapping. It is passed through to the
// caller without modification.
type Result map[string]any

// Verified returns the match decision and whether it was present and boolean.
func (r Result) Verified() (verified, ok bool) {
	verified, ok = r[VerifiedKey].(bool)
	return verified, ok
}

// Distance returns the numeric distance score, if any.
func (r Result) Distance() (float64, bool) {
	switch v := r["distance"].(type) {
	case float64:
		return v, true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	}
	return 0, false
}

// Verifier compares the faces in two decoded images.
type Verifier interface {
	Verify(ctx context.Context, img1, img2 *imagecodec.PixelArray, opts Options) (Result, error)
}
