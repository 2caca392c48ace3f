package similarity

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// maxTensorFileSize caps tensor files read from disk.
const maxTensorFileSize = 256 * 1024 * 1024

// tensorFile is the on-disk JSON layout of a Tensor.
type tensorFile struct {
	Classes    []string      `json:"classes"`
	Times      []float64     `json:"times"`
	Similarity [][][]float64 `json:"similarity"`
}

// ReadTensor decodes a tensor from JSON.
func ReadTensor(r io.Reader) (*Tensor, error) {
	var f tensorFile
	if err := json.NewDecoder(r).Decode(&f); err != nil {
		return nil, fmt.Errorf("failed to parse tensor JSON: %w", err)
	}
	return FromArray(f.Classes, f.Times, f.Similarity)
}

// LoadTensor reads a tensor from a .json file.
func LoadTensor(path string) (*Tensor, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("tensor file must have .json extension, got %q", ext)
	}
	info, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat tensor file: %w", err)
	}
	if info.Size() > maxTensorFileSize {
		return nil, fmt.Errorf("tensor file too large: %d bytes (max %d)", info.Size(), maxTensorFileSize)
	}
	fh, err := os.Open(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open tensor file: %w", err)
	}
	defer fh.Close()
	return ReadTensor(fh)
}

// WriteTensor encodes t as JSON.
func WriteTensor(w io.Writer, t *Tensor) error {
	return json.NewEncoder(w).Encode(tensorFile{
		Classes:    t.Classes(),
		Times:      t.Times(),
		Similarity: t.Array(),
	})
}
