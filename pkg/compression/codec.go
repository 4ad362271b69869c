// Package compression provides transparent compression for ADAT files.
//
// ADAT files are plain text and compress well. The algorithm is selected by
// file suffix so that every command accepts "run.adat", "run.adat.gz",
// "run.adat.zst" and friends without extra flags.
//
// # Suffixes
//
//   - .gz  Gzip (klauspost/compress/gzip)
//   - .zst Zstandard
//   - .lz4 LZ4 frame (pierrec/lz4)
//   - .sz  Snappy framed stream
//   - .s2  S2 stream
//
// Any other suffix is read and written uncompressed.
//
// # Basic Usage
//
//	rc, err := compression.OpenFile("run.adat.gz")
//	if err != nil {
//	    return err
//	}
//	defer rc.Close()
//
// Streams that are not files go through a Codec directly:
//
//	codec, err := compression.NewCodec(compression.Zstd, compression.Best)
//	w, err := codec.NewWriter(conn)
package compression

import (
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/s2"
	"github.com/klauspost/compress/snappy"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Algorithm represents a compression algorithm.
type Algorithm string

const (
	// None represents no compression
	None Algorithm = "none"
	// Gzip represents gzip compression
	Gzip Algorithm = "gzip"
	// Snappy represents framed snappy compression
	Snappy Algorithm = "snappy"
	// LZ4 represents lz4 frame compression
	LZ4 Algorithm = "lz4"
	// Zstd represents zstandard compression
	Zstd Algorithm = "zstd"
	// S2 represents s2 compression (Snappy compatible)
	S2 Algorithm = "s2"
)

// Level trades compression speed for ratio.
type Level int

const (
	Fastest Level = 1
	Default Level = 5
	Better  Level = 7
	Best    Level = 9
)

// String returns the level name used in configuration files.
func (l Level) String() string {
	switch l {
	case Fastest:
		return "fastest"
	case Default:
		return "default"
	case Better:
		return "better"
	case Best:
		return "best"
	default:
		return "unknown"
	}
}

// ParseLevel maps a configuration name to a Level. Empty means Default.
func ParseLevel(name string) (Level, error) {
	switch name {
	case "", "default":
		return Default, nil
	case "fastest":
		return Fastest, nil
	case "better":
		return Better, nil
	case "best":
		return Best, nil
	default:
		return 0, fmt.Errorf("unknown compression level: %q", name)
	}
}

type (
	writerFunc func(dst io.Writer, level Level) (io.WriteCloser, error)
	readerFunc func(src io.Reader) (io.ReadCloser, error)
)

type codecFuncs struct {
	writer writerFunc
	reader readerFunc
}

var codecs = map[Algorithm]codecFuncs{
	None: {
		writer: func(dst io.Writer, _ Level) (io.WriteCloser, error) { return nopWriteCloser{dst}, nil },
		reader: func(src io.Reader) (io.ReadCloser, error) { return io.NopCloser(src), nil },
	},
	Gzip: {
		writer: func(dst io.Writer, level Level) (io.WriteCloser, error) {
			return gzip.NewWriterLevel(dst, gzipLevel(level))
		},
		reader: func(src io.Reader) (io.ReadCloser, error) { return gzip.NewReader(src) },
	},
	Snappy: {
		writer: func(dst io.Writer, _ Level) (io.WriteCloser, error) { return snappy.NewBufferedWriter(dst), nil },
		reader: func(src io.Reader) (io.ReadCloser, error) { return io.NopCloser(snappy.NewReader(src)), nil },
	},
	LZ4: {
		writer: func(dst io.Writer, level Level) (io.WriteCloser, error) {
			w := lz4.NewWriter(dst)
			if err := w.Apply(lz4.CompressionLevelOption(lz4Level(level))); err != nil {
				return nil, err
			}
			return w, nil
		},
		reader: func(src io.Reader) (io.ReadCloser, error) { return io.NopCloser(lz4.NewReader(src)), nil },
	},
	Zstd: {
		writer: func(dst io.Writer, level Level) (io.WriteCloser, error) {
			return zstd.NewWriter(dst, zstd.WithEncoderLevel(zstdLevel(level)))
		},
		reader: func(src io.Reader) (io.ReadCloser, error) {
			dec, err := zstd.NewReader(src)
			if err != nil {
				return nil, err
			}
			return dec.IOReadCloser(), nil
		},
	},
	S2: {
		writer: func(dst io.Writer, level Level) (io.WriteCloser, error) {
			var opts []s2.WriterOption
			switch level {
			case Better:
				opts = append(opts, s2.WriterBetterCompression())
			case Best:
				opts = append(opts, s2.WriterBestCompression())
			}
			return s2.NewWriter(dst, opts...), nil
		},
		reader: func(src io.Reader) (io.ReadCloser, error) { return io.NopCloser(s2.NewReader(src)), nil },
	},
}

// Codec wraps streams in one algorithm at a fixed level. A Codec is
// stateless and safe for concurrent use.
type Codec struct {
	algorithm Algorithm
	level     Level
	funcs     codecFuncs
}

// NewCodec returns the codec for alg. An empty algorithm means None.
func NewCodec(alg Algorithm, level Level) (*Codec, error) {
	if alg == "" {
		alg = None
	}
	funcs, ok := codecs[alg]
	if !ok {
		return nil, fmt.Errorf("unsupported compression algorithm: %s", alg)
	}
	return &Codec{algorithm: alg, level: level, funcs: funcs}, nil
}

// Algorithm returns the compression algorithm.
func (c *Codec) Algorithm() Algorithm { return c.algorithm }

// Level returns the compression level.
func (c *Codec) Level() Level { return c.level }

// NewWriter wraps dst so that everything written is compressed. Close
// flushes the final frame and does not close dst.
func (c *Codec) NewWriter(dst io.Writer) (io.WriteCloser, error) {
	return c.funcs.writer(dst, c.level)
}

// NewReader wraps src so that reads return decompressed bytes.
func (c *Codec) NewReader(src io.Reader) (io.ReadCloser, error) {
	return c.funcs.reader(src)
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

func gzipLevel(level Level) int {
	switch level {
	case Fastest:
		return gzip.BestSpeed
	case Best:
		return gzip.BestCompression
	default:
		return gzip.DefaultCompression
	}
}

func lz4Level(level Level) lz4.CompressionLevel {
	switch level {
	case Fastest:
		return lz4.Fast
	case Best:
		return lz4.Level9
	default:
		return lz4.Level5
	}
}

func zstdLevel(level Level) zstd.EncoderLevel {
	switch level {
	case Fastest:
		return zstd.SpeedFastest
	case Better:
		return zstd.SpeedBetterCompression
	case Best:
		return zstd.SpeedBestCompression
	default:
		return zstd.SpeedDefault
	}
}
