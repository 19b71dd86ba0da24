package inference

import (
	"context"
	"errors"
	"image"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/xela07ax/proctor/internal/domain"
)

type fakeConn struct {
	method string
	reply  map[string]any
	err    error
}

func (f *fakeConn) Invoke(_ context.Context, method string, args, reply any, _ ...grpc.CallOption) error {
	f.method = method
	if f.err != nil {
		return f.err
	}
	req := args.(*structpb.Struct)
	if req.GetFields()["image"].GetStringValue() == "" {
		return errors.New("missing image")
	}
	out, err := structpb.NewStruct(f.reply)
	if err != nil {
		return err
	}
	proto.Merge(reply.(*structpb.Struct), out)
	return nil
}

func (f *fakeConn) NewStream(context.Context, *grpc.StreamDesc, string, ...grpc.CallOption) (grpc.ClientStream, error) {
	return nil, errors.New("not supported")
}

func TestGRPCClassifier(t *testing.T) {
	conn := &fakeConn{reply: map[string]any{"identity": "41210033", "confidence": 0.88}}
	c := NewGRPCClassifier(conn, time.Second)

	id, conf, err := c.Classify(context.Background(), frame())
	require.NoError(t, err)
	assert.Equal(t, ClassifyMethod, conn.method)
	assert.Equal(t, "41210033", id)
	assert.Equal(t, 0.88, conf)

	conn.reply = map[string]any{"identity": "", "confidence": "garbage"}
	id, conf, err = c.Classify(context.Background(), frame())
	require.NoError(t, err)
	assert.Equal(t, domain.UnknownIdentity, id)
	assert.Zero(t, conf)
}

type flakyClassifier struct {
	failures int32
	calls    atomic.Int32
}

func (f *flakyClassifier) Classify(context.Context, image.Image) (string, float64, error) {
	n := f.calls.Add(1)
	if n <= f.failures {
		return "", 0, &ThrottleError{RetryAfter: time.Millisecond, Cause: errors.New("busy")}
	}
	return "41210081", 0.75, nil
}

func TestReliableClassifierRetries(t *testing.T) {
	next := &flakyClassifier{failures: 2}
	c := NewReliableClassifier(next, DefaultReliabilityConfig(), nil)

	id, conf, err := c.Classify(context.Background(), frame())
	require.NoError(t, err)
	assert.Equal(t, "41210081", id)
	assert.Equal(t, 0.75, conf)
	assert.Equal(t, int32(3), next.calls.Load())
}

type brokenClassifier struct{}

func (brokenClassifier) Classify(context.Context, image.Image) (string, float64, error) {
	return "", 0, errors.New("connection refused")
}

func TestReliableClassifierOpensBreaker(t *testing.T) {
	var opened atomic.Bool
	cfg := DefaultReliabilityConfig()
	cfg.Attempts = 1
	cfg.MaxConsecutiveFails = 1
	c := NewReliableClassifier(brokenClassifier{}, cfg, func(_ string, open bool) { opened.Store(open) })

	for i := 0; i < 2; i++ {
		_, _, err := c.Classify(context.Background(), frame())
		require.Error(t, err)
	}
	_, _, err := c.Classify(context.Background(), frame())
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.True(t, opened.Load())
	assert.Equal(t, "open", c.State())
}
