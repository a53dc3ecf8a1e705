package ml

import (
	"fmt"

	ort "github.com/yalue/onnxruntime_go"
)

// session wraps a DynamicAdvancedSession for a single-input tabular model.
type session struct {
	session    *ort.DynamicAdvancedSession
	inputName  string
	outputName string
	outLen     int64
}

// newSession loads an ONNX model expecting one float32 input of shape
// [batch, 6] and one float32 output of shape [batch, outLen].
func newSession(modelPath, libPath string, outLen int64) (*session, error) {
	if err := initORT(libPath); err != nil {
		return nil, fmt.Errorf("onnx: failed to initialize runtime: %w", err)
	}

	inputs, outputs, err := ort.GetInputOutputInfo(modelPath)
	if err != nil {
		return nil, fmt.Errorf("onnx: failed to read model info: %w", err)
	}
	if len(inputs) == 0 || len(outputs) == 0 {
		return nil, fmt.Errorf("onnx: model has no inputs or outputs")
	}

	opts, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("onnx: failed to create session options: %w", err)
	}
	defer opts.Destroy()
	opts.SetIntraOpNumThreads(1)
	opts.SetInterOpNumThreads(1)

	sess, err := ort.NewDynamicAdvancedSession(
		modelPath,
		[]string{inputs[0].Name},
		[]string{outputs[0].Name},
		opts,
	)
	if err != nil {
		return nil, fmt.Errorf("onnx: failed to create session: %w", err)
	}

	return &session{
		session:    sess,
		inputName:  inputs[0].Name,
		outputName: outputs[0].Name,
		outLen:     outLen,
	}, nil
}

// run executes one inference for a single feature vector and returns the
// flat output values.
func (s *session) run(features []float32) ([]float32, error) {
	in, err := ort.NewTensor(ort.NewShape(1, int64(len(features))), features)
	if err != nil {
		return nil, fmt.Errorf("onnx: failed to create input tensor: %w", err)
	}
	defer in.Destroy()

	out, err := ort.NewEmptyTensor[float32](ort.NewShape(1, s.outLen))
	if err != nil {
		return nil, fmt.Errorf("onnx: failed to create output tensor: %w", err)
	}
	defer out.Destroy()

	if err := s.session.Run([]ort.Value{in}, []ort.Value{out}); err != nil {
		return nil, fmt.Errorf("onnx: inference failed: %w", err)
	}

	// Copy data out before the tensor is destroyed.
	src := out.GetData()
	result := make([]float32, len(src))
	copy(result, src)
	return result, nil
}

func (s *session) close() error {
	return s.session.Destroy()
}
