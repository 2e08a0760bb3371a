// Package matrixfile stores a probability matrix in a flat binary file: N×N
// little-endian float32 values in row-major order with no header. The token
// order is written next to it as a JSON sidecar, since the binary file alone
// cannot be read back without knowing N.
package matrixfile

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"

	"github.com/CTAG07/defgen/pkg/markov"
	"github.com/natefinch/atomic"
	"github.com/shirou/gopsutil/v3/disk"
)

const (
	// VocabSuffix is appended to the matrix path to name the vocabulary sidecar.
	VocabSuffix = ".vocab.json"
	cellSize    = 4
)

// ErrInsufficientSpace is returned when the target filesystem cannot hold
// the matrix file.
var ErrInsufficientSpace = errors.New("insufficient disk space")

// ErrInvalidCell is returned when a matrix file holds a cell that is not a
// probability: a negative, NaN or infinite value.
var ErrInvalidCell = errors.New("invalid matrix cell")

// freeSpace reports the free bytes on the filesystem holding dir.
var freeSpace = func(dir string) (uint64, error) {
	usage, err := disk.Usage(dir)
	if err != nil {
		return 0, err
	}
	return usage.Free, nil
}

// FileSize returns the size in bytes of the matrix file for n tokens.
func FileSize(n int) int64 {
	return int64(n) * int64(n) * cellSize
}

// Save writes probs to path and vocab to path+VocabSuffix. Both files are
// replaced atomically.
func Save(path string, probs *markov.Matrix, vocab *markov.Vocabulary) error {
	n := probs.Size()
	if n != vocab.Len() {
		return fmt.Errorf("%w: matrix is %d×%d, vocabulary has %d tokens", markov.ErrSizeMismatch, n, n, vocab.Len())
	}

	vocabData, err := json.Marshal(vocab)
	if err != nil {
		return fmt.Errorf("failed to encode vocabulary: %w", err)
	}

	need := uint64(FileSize(n)) + uint64(len(vocabData))
	dir := filepath.Dir(path)
	// Filesystems gopsutil cannot inspect skip the check.
	if free, err := freeSpace(dir); err == nil && free < need {
		return fmt.Errorf("%w: need %d bytes in %s, %d free", ErrInsufficientSpace, need, dir, free)
	}

	if err := atomic.WriteFile(path, newRowReader(probs)); err != nil {
		return fmt.Errorf("failed to write matrix file: %w", err)
	}
	if err := atomic.WriteFile(path+VocabSuffix, bytes.NewReader(vocabData)); err != nil {
		return fmt.Errorf("failed to write vocabulary file: %w", err)
	}
	return nil
}

// Load reads a matrix and its vocabulary sidecar from path.
func Load(path string) (*markov.Matrix, *markov.Vocabulary, error) {
	data, err := os.ReadFile(path + VocabSuffix)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read vocabulary file: %w", err)
	}
	vocab := &markov.Vocabulary{}
	if err := json.Unmarshal(data, vocab); err != nil {
		return nil, nil, fmt.Errorf("failed to decode vocabulary file: %w", err)
	}

	probs, err := LoadWithVocabulary(path, vocab)
	if err != nil {
		return nil, nil, err
	}
	return probs, vocab, nil
}

// LoadWithVocabulary reads the matrix at path, taking N from vocab. The file
// must hold exactly N×N cells. Zero cells are left out of the result and any
// cell that is not a probability fails the load with ErrInvalidCell.
func LoadWithVocabulary(path string, vocab *markov.Vocabulary) (*markov.Matrix, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func(f *os.File) {
		_ = f.Close()
	}(f)

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	n := vocab.Len()
	if info.Size() != FileSize(n) {
		return nil, fmt.Errorf("%w: %s holds %d bytes, %d tokens need %d", markov.ErrSizeMismatch, path, info.Size(), n, FileSize(n))
	}

	probs := markov.NewMatrix(n)
	r := bufio.NewReader(f)
	row := make([]byte, n*cellSize)
	for i := 0; i < n; i++ {
		if _, err := io.ReadFull(r, row); err != nil {
			return nil, fmt.Errorf("failed to read row %d: %w", i, err)
		}
		for j := 0; j < n; j++ {
			v := math.Float32frombits(binary.LittleEndian.Uint32(row[j*cellSize:]))
			if v < 0 || math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
				return nil, fmt.Errorf("%w: %s row %d column %d holds %v", ErrInvalidCell, path, i, j, v)
			}
			if v != 0 {
				probs.Set(i, j, float64(v))
			}
		}
	}
	return probs, nil
}

// rowReader encodes a matrix one dense row at a time so the whole file is
// never held in memory.
type rowReader struct {
	m     *markov.Matrix
	next  int
	dense []float64
	buf   []byte
	off   int
}

func newRowReader(m *markov.Matrix) *rowReader {
	return &rowReader{
		m:     m,
		dense: make([]float64, m.Size()),
		buf:   make([]byte, 0, m.Size()*cellSize),
	}
}

func (r *rowReader) Read(p []byte) (int, error) {
	if r.off == len(r.buf) {
		if r.next == r.m.Size() {
			return 0, io.EOF
		}
		r.m.DenseRow(r.next, r.dense)
		r.buf = r.buf[:0]
		for _, v := range r.dense {
			r.buf = binary.LittleEndian.AppendUint32(r.buf, math.Float32bits(float32(v)))
		}
		r.next++
		r.off = 0
	}
	n := copy(p, r.buf[r.off:])
	r.off += n
	return n, nil
}
