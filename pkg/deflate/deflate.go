// Package deflate compresses and decompresses the byte stream between the
// Base45 text layer and the COSE envelope of a health certificate.
package deflate

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zlib"
)

// MaxInflatedSize caps the output of Inflate.
const MaxInflatedSize = 4 << 20

// ErrCompression is wrapped by every Inflate and Deflate failure.
var ErrCompression = errors.New("deflate: corrupt compressed stream")

// ErrTooLarge indicates the inflated output exceeded MaxInflatedSize.
var ErrTooLarge = fmt.Errorf("%w: inflated size exceeds %d bytes", ErrCompression, MaxInflatedSize)

// Inflate decompresses a zlib stream. When the input does not start with a
// zlib header it is treated as raw DEFLATE data.
func Inflate(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty input", ErrCompression)
	}

	var r io.ReadCloser
	if hasZlibHeader(data) {
		zr, err := zlib.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCompression, err)
		}
		r = zr
	} else {
		r = flate.NewReader(bytes.NewReader(data))
	}
	defer r.Close()

	out, err := io.ReadAll(io.LimitReader(r, MaxInflatedSize+1))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCompression, err)
	}
	if len(out) > MaxInflatedSize {
		return nil, ErrTooLarge
	}
	return out, nil
}

// Deflate compresses data into a zlib stream at best compression.
func Deflate(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := zlib.NewWriterLevel(&buf, zlib.BestCompression)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCompression, err)
	}
	if _, err := w.Write(data); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCompression, err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCompression, err)
	}
	return buf.Bytes(), nil
}

// hasZlibHeader reports whether data starts with a valid RFC 1950 header:
// compression method 8 and a CMF/FLG pair divisible by 31.
func hasZlibHeader(data []byte) bool {
	if len(data) < 2 {
		return false
	}
	cmf, flg := data[0], data[1]
	return cmf&0x0f == 8 && cmf>>4 <= 7 && (uint16(cmf)<<8|uint16(flg))%31 == 0
}
