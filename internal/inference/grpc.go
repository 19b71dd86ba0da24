package inference

import (
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/xela07ax/proctor/internal/domain"
)

// ClassifyMethod is the full method name served by the face service. The
// service exchanges google.protobuf.Struct messages.
const ClassifyMethod = "/proctor.inference.v1.FaceClassifier/Classify"

// GRPCClassifier calls a remote face classifier.
type GRPCClassifier struct {
	conn    grpc.ClientConnInterface
	method  string
	timeout time.Duration
}

// DialClassifier opens a plaintext connection; the face service runs next
// to the detector on a private network.
func DialClassifier(addr string, timeout time.Duration) (*GRPCClassifier, *grpc.ClientConn, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, nil, fmt.Errorf("dial classifier %s: %w", addr, err)
	}
	return NewGRPCClassifier(conn, timeout), conn, nil
}

func NewGRPCClassifier(conn grpc.ClientConnInterface, timeout time.Duration) *GRPCClassifier {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &GRPCClassifier{conn: conn, method: ClassifyMethod, timeout: timeout}
}

func (c *GRPCClassifier) Classify(ctx context.Context, face image.Image) (string, float64, error) {
	img, err := EncodeJPEG(face)
	if err != nil {
		return "", 0, fmt.Errorf("encode face: %w", err)
	}
	req, err := structpb.NewStruct(map[string]any{
		"image": base64.StdEncoding.EncodeToString(img),
	})
	if err != nil {
		return "", 0, err
	}

	tCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp := &structpb.Struct{}
	if err := c.conn.Invoke(tCtx, c.method, req, resp); err != nil {
		return "", 0, fmt.Errorf("classify: %w", err)
	}

	fields := resp.GetFields()
	identity := normalizeIdentity(fields["identity"].GetStringValue())
	var conf any
	if v, ok := fields["confidence"]; ok {
		conf = v.AsInterface()
	}
	return identity, domain.CoerceConfidence(conf), nil
}
