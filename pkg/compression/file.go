package compression

import (
	"io"
	"os"
	"path/filepath"
	"strings"
)

var suffixes = map[string]Algorithm{
	".gz":  Gzip,
	".zst": Zstd,
	".lz4": LZ4,
	".sz":  Snappy,
	".s2":  S2,
}

// ForPath returns the algorithm implied by the file suffix, or None.
func ForPath(path string) Algorithm {
	if alg, ok := suffixes[strings.ToLower(filepath.Ext(path))]; ok {
		return alg
	}
	return None
}

// TrimSuffix removes a compression suffix from path, if any.
func TrimSuffix(path string) string {
	if ForPath(path) == None {
		return path
	}
	return strings.TrimSuffix(path, filepath.Ext(path))
}

// OpenFile opens path for reading and decompresses according to its suffix.
// Closing the result closes the underlying file.
func OpenFile(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	codec, err := NewCodec(ForPath(path), Default)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	r, err := codec.NewReader(f)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return &fileReader{ReadCloser: r, file: f}, nil
}

// CreateFile creates path for writing and compresses according to its suffix.
// Closing the result flushes the compressor and closes the file.
func CreateFile(path string, level Level) (io.WriteCloser, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	codec, err := NewCodec(ForPath(path), level)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	w, err := codec.NewWriter(f)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return &fileWriter{WriteCloser: w, file: f}, nil
}

type fileReader struct {
	io.ReadCloser
	file *os.File
}

func (r *fileReader) Close() error {
	err := r.ReadCloser.Close()
	if cerr := r.file.Close(); err == nil {
		err = cerr
	}
	return err
}

type fileWriter struct {
	io.WriteCloser
	file *os.File
}

func (w *fileWriter) Close() error {
	err := w.WriteCloser.Close()
	if cerr := w.file.Close(); err == nil {
		err = cerr
	}
	return err
}
