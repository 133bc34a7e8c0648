// Package grpcclient runs inference on a remote model server. Messages are
// google.protobuf.Struct values so the server needs no generated stubs.
package grpcclient

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/example/neuroscan/internal/imageprocessor"
	"github.com/example/neuroscan/internal/inference"
	"github.com/example/neuroscan/internal/logging"
)

const (
	ServiceName     = "neuroscan.inference.v1.Classifier"
	loadMethod      = "/" + ServiceName + "/Load"
	predictMethod   = "/" + ServiceName + "/Predict"
	configureMethod = "/" + ServiceName + "/Configure"
)

// Runtime loads models on a remote classifier service.
type Runtime struct {
	conn   *grpc.ClientConn
	logger *zap.Logger
}

var (
	_ inference.Runtime               = (*Runtime)(nil)
	_ inference.AcceleratorConfigurer = (*Runtime)(nil)
)

// Dial returns a runtime for the classifier service at addr. The connection
// is established lazily on the first call.
func Dial(addr string, logger *zap.Logger, opts ...grpc.DialOption) (*Runtime, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		wrapped := logging.NewOperationError("grpcclient.dial", "", err)
		logger.Error("failed to create inference client", zap.Error(wrapped), zap.String("addr", addr))
		return nil, wrapped
	}
	return &Runtime{conn: conn, logger: logger.Named("grpcclient")}, nil
}

// Close tears down the connection.
func (r *Runtime) Close() error {
	return r.conn.Close()
}

func (r *Runtime) EnableMemoryGrowth(ctx context.Context) error {
	req, _ := structpb.NewStruct(map[string]interface{}{"memory_growth": true})
	return r.invoke(ctx, "grpcclient.configure", configureMethod, req, new(structpb.Struct))
}

// Load asks the server to load the artifact at path. The local file's digest
// is sent along so the server can refuse a copy that differs from ours.
func (r *Runtime) Load(ctx context.Context, path string) (inference.Model, error) {
	digest, err := fileDigest(path)
	if err != nil {
		return nil, err
	}
	req, err := structpb.NewStruct(map[string]interface{}{
		"path":   path,
		"sha256": digest,
	})
	if err != nil {
		return nil, err
	}

	resp := new(structpb.Struct)
	if err := r.invoke(ctx, "grpcclient.load", loadMethod, req, resp); err != nil {
		return nil, err
	}

	fields := resp.GetFields()
	id := fields["model_id"].GetStringValue()
	if id == "" {
		return nil, errors.New("server returned no model_id")
	}
	var classes []string
	for _, v := range fields["classes"].GetListValue().GetValues() {
		classes = append(classes, v.GetStringValue())
	}
	if len(classes) == 0 {
		return nil, errors.New("server returned no class names")
	}

	r.logger.Info("remote model loaded", zap.String("model_id", id), zap.Strings("classes", classes))
	return &remoteModel{runtime: r, id: id, classes: classes}, nil
}

func (r *Runtime) invoke(ctx context.Context, operation, method string, req, resp *structpb.Struct) error {
	if err := r.conn.Invoke(ctx, method, req, resp); err != nil {
		requestID := logging.RequestIDFrom(ctx)
		wrapped := logging.NewOperationError(operation, requestID, err)
		logging.WithOperation(r.logger, operation, requestID).Error("inference call failed", zap.Error(wrapped))
		return wrapped
	}
	return nil
}

type remoteModel struct {
	runtime *Runtime
	id      string
	classes []string
}

var _ inference.ClassNamer = (*remoteModel)(nil)

func (m *remoteModel) ClassNames() []string {
	return append([]string(nil), m.classes...)
}

func (m *remoteModel) Predict(ctx context.Context, batch imageprocessor.Tensor) ([][]float32, error) {
	if batch.Len() != len(batch.Data) {
		return nil, fmt.Errorf("tensor has %d values for shape %v", len(batch.Data), batch.Shape)
	}
	shape := make([]interface{}, len(batch.Shape))
	for i, d := range batch.Shape {
		shape[i] = d
	}
	req, err := structpb.NewStruct(map[string]interface{}{
		"model_id": m.id,
		"shape":    shape,
		"data":     EncodeFloats(batch.Data),
	})
	if err != nil {
		return nil, err
	}

	resp := new(structpb.Struct)
	if err := m.runtime.invoke(ctx, "grpcclient.predict", predictMethod, req, resp); err != nil {
		return nil, err
	}

	rows := resp.GetFields()["probabilities"].GetListValue().GetValues()
	out := make([][]float32, len(rows))
	for i, row := range rows {
		values := row.GetListValue().GetValues()
		out[i] = make([]float32, len(values))
		for j, v := range values {
			out[i][j] = float32(v.GetNumberValue())
		}
	}
	return out, nil
}

// Close is a no-op; the connection belongs to the Runtime.
func (m *remoteModel) Close() error { return nil }

// EncodeFloats packs values as little-endian float32 and base64-encodes them.
func EncodeFloats(values []float32) string {
	buf := make([]byte, 4*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return base64.StdEncoding.EncodeToString(buf)
}

// DecodeFloats reverses EncodeFloats.
func DecodeFloats(s string) ([]float32, error) {
	buf, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, err
	}
	if len(buf)%4 != 0 {
		return nil, fmt.Errorf("payload length %d is not a multiple of 4", len(buf))
	}
	out := make([]float32, len(buf)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return out, nil
}

func fileDigest(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
