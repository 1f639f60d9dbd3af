package model

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"slices"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/Brownie44l1/letter-api/internal/raster"
	"github.com/Brownie44l1/letter-api/internal/tensor"
)

// Server runs the letter model through ONNX Runtime. The input and output
// tensors are allocated once and reused, so Classify serialises calls.
type Server struct {
	mu           sync.Mutex
	session      *ort.AdvancedSession
	Metadata     Metadata
	inputTensor  *ort.Tensor[float32]
	outputTensor *ort.Tensor[float32]
}

// LoadMetadata reads the model metadata file and fills defaults for the
// letter model: input [1,28,28,1], output [1,26], classes A-Z.
func LoadMetadata(path string) (Metadata, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Metadata{}, fmt.Errorf("failed to read metadata: %w", err)
	}

	var metadata Metadata
	if err := json.Unmarshal(raw, &metadata); err != nil {
		return Metadata{}, fmt.Errorf("failed to parse metadata: %w", err)
	}
	if err := metadata.normalize(); err != nil {
		return Metadata{}, err
	}
	return metadata, nil
}

func (m *Metadata) normalize() error {
	want := []int64{1, raster.Size, raster.Size, 1}
	if len(m.InputShape) == 0 {
		m.InputShape = want
	}
	if !slices.Equal(m.InputShape, want) {
		return fmt.Errorf("%w: input shape %v, want %v", ErrBadMetadata, m.InputShape, want)
	}
	if len(m.Classes) == 0 {
		m.Classes = Letters()
	}
	if len(m.Classes) != NumClasses {
		return fmt.Errorf("%w: %d classes, want %d", ErrBadMetadata, len(m.Classes), NumClasses)
	}
	if len(m.OutputShape) == 0 {
		m.OutputShape = []int64{1, NumClasses}
	}
	size := int64(1)
	for _, d := range m.OutputShape {
		size *= d
	}
	if size != NumClasses {
		return fmt.Errorf("%w: output shape %v holds %d scores", ErrBadMetadata, m.OutputShape, size)
	}
	if m.ImageSize == 0 {
		m.ImageSize = raster.Size
	}
	if m.ImageSize != raster.Size {
		return fmt.Errorf("%w: image size %d, want %d", ErrBadMetadata, m.ImageSize, raster.Size)
	}
	if m.InputName == "" {
		m.InputName = "input"
	}
	if m.OutputName == "" {
		m.OutputName = "output"
	}
	return nil
}

// NewServer initialises ONNX Runtime and loads the model. libPath may be
// empty to use the runtime's default shared library lookup.
func NewServer(modelPath, metadataPath, libPath string) (*Server, error) {
	metadata, err := LoadMetadata(metadataPath)
	if err != nil {
		return nil, err
	}

	if libPath != "" {
		ort.SetSharedLibraryPath(libPath)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return nil, fmt.Errorf("failed to initialize ONNX environment: %w", err)
	}

	inputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(metadata.InputShape...))
	if err != nil {
		ort.DestroyEnvironment()
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}

	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(metadata.OutputShape...))
	if err != nil {
		inputTensor.Destroy()
		ort.DestroyEnvironment()
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(modelPath,
		[]string{metadata.InputName}, []string{metadata.OutputName},
		[]ort.ArbitraryTensor{inputTensor}, []ort.ArbitraryTensor{outputTensor},
		nil)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		ort.DestroyEnvironment()
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}

	log.Printf("ONNX session ready: input %v, output %v", metadata.InputShape, metadata.OutputShape)

	return &Server{
		session:      session,
		Metadata:     metadata,
		inputTensor:  inputTensor,
		outputTensor: outputTensor,
	}, nil
}

// Ready reports whether the session is loaded and not closed.
func (s *Server) Ready() bool {
	if s == nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session != nil
}

func (s *Server) Classify(ctx context.Context, t *tensor.Scaled) (Scores, error) {
	if s == nil {
		return nil, ErrClassifierUnavailable
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return nil, ErrClassifierUnavailable
	}

	copy(s.inputTensor.GetData(), t.Data())

	if err := s.session.Run(); err != nil {
		return nil, fmt.Errorf("%w: inference failed: %v", ErrClassifierUnavailable, err)
	}

	return append(Scores(nil), s.outputTensor.GetData()...), nil
}

func (s *Server) Close() {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inputTensor != nil {
		s.inputTensor.Destroy()
		s.inputTensor = nil
	}
	if s.outputTensor != nil {
		s.outputTensor.Destroy()
		s.outputTensor = nil
	}
	if s.session != nil {
		s.session.Destroy()
		s.session = nil
		ort.DestroyEnvironment()
	}
}
