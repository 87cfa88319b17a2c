package capture

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"sync"

	"github.com/disintegration/imaging"
)

// Encoded JPEGs for large desktops run to megabytes; buffers are pooled so
// the capture loop does not keep growing fresh ones every cycle.
var bufferPool = sync.Pool{New: func() any { return new(bytes.Buffer) }}

func acquireBuffer() *bytes.Buffer {
	b := bufferPool.Get().(*bytes.Buffer)
	b.Reset()
	return b
}

// recycleBuffer returns b to the pool. b must not be used afterwards.
func recycleBuffer(b *bytes.Buffer) {
	if b == nil || b.Cap() > 64<<20 {
		return
	}
	bufferPool.Put(b)
}

// encodeJPEG writes img as JPEG at quality into a pooled buffer. The caller
// owns the buffer and must recycle it.
func encodeJPEG(img image.Image, quality int) (*bytes.Buffer, error) {
	if img == nil {
		return nil, fmt.Errorf("%w: nil image", ErrCaptureFailed)
	}
	buf := acquireBuffer()
	if err := imaging.Encode(buf, img, imaging.JPEG, imaging.JPEGQuality(ClampQuality(quality))); err != nil {
		recycleBuffer(buf)
		return nil, err
	}
	return buf, nil
}

// EncodeBase64JPEG returns img as a base64 JPEG string.
func EncodeBase64JPEG(img image.Image, quality int) (string, error) {
	buf, err := encodeJPEG(img, quality)
	if err != nil {
		return "", err
	}
	defer recycleBuffer(buf)
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
