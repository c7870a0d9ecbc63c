package grpcclient

import (
	"context"
	"encoding/base64"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/example/face-verify/internal/faceverifier"
	"github.com/example/face-verify/internal/imagecodec"
	"github.com/example/face-verify/internal/logging"
)

// VerifyMethod is the unary RPC served by the verification sidecar. Request and
// response are google.protobuf.Struct messages.
const VerifyMethod = "/faceverify.v1.FaceVerifier/Verify"

// DialFaceVerifier returns a ready-to-use gRPC client for the verification sidecar.
func DialFaceVerifier(ctx context.Context, addr string, dialTimeout, callTimeout time.Duration, logger *zap.Logger, opts ...grpc.DialOption) (*Client, *grpc.ClientConn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	dialOpts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithBlock(),
	}, opts...)

	conn, err := grpc.DialContext(dialCtx, addr, dialOpts...)
	if err != nil {
		wrapped := logging.NewOperationError("grpcclient.dial_face_verifier", "", err)
		logger.Error("failed to dial face verifier", zap.Error(wrapped), zap.String("addr", addr))
		return nil, nil, wrapped
	}
	return NewClient(conn, callTimeout, logger), conn, nil
}

// NewClient wraps an existing connection.
func NewClient(conn grpc.ClientConnInterface, callTimeout time.Duration, logger *zap.Logger) *Client {
	return &Client{conn: conn, callTimeout: callTimeout, logger: logger.Named("grpcclient")}
}

// Client implements faceverifier.Verifier over gRPC.
type Client struct {
	conn        grpc.ClientConnInterface
	callTimeout time.Duration
	logger      *zap.Logger
}

func (g *Client) Verify(ctx context.Context, img1, img2 *imagecodec.PixelArray, opts faceverifier.Options) (faceverifier.Result, error) {
	req, err := structpb.NewStruct(map[string]interface{}{
		"img1":              tensor(img1),
		"img2":              tensor(img2),
		"enforce_detection": opts.EnforceDetection,
	})
	if err != nil {
		return nil, logging.NewOperationError("grpcclient.build_request", "", err)
	}

	if g.callTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.callTimeout)
		defer cancel()
	}

	resp := &structpb.Struct{}
	if err := g.conn.Invoke(ctx, VerifyMethod, req, resp); err != nil {
		wrapped := logging.NewOperationError("grpcclient.verify", "", err)
		g.logger.Error("face verifier call failed", zap.Error(wrapped))
		return nil, wrapped
	}
	return faceverifier.Result(resp.AsMap()), nil
}

func tensor(p *imagecodec.PixelArray) map[string]interface{} {
	return map[string]interface{}{
		"height":   p.Height,
		"width":    p.Width,
		"channels": imagecodec.Channels,
		"data":     base64.StdEncoding.EncodeToString(p.Pix),
	}
}

var _ faceverifier.Verifier = (*Client)(nil)
