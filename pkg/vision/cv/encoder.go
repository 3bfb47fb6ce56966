package cv

import (
	"fmt"

	"github.com/teslashibe/go-dronescan/pkg/frame"
	"gocv.io/x/gocv"
)

// JPEGEncoder encodes frames as JPEG.
type JPEGEncoder struct {
	Quality int // 1-100; 0 uses OpenCV's default of 95
}

// Ext implements vision.Encoder.
func (e JPEGEncoder) Ext() string { return ".jpg" }

// Encode implements vision.Encoder.
func (e JPEGEncoder) Encode(f *frame.Frame) ([]byte, error) {
	img, err := toMat(f)
	if err != nil {
		img.Close()
		return nil, fmt.Errorf("jpeg: %w", err)
	}
	defer img.Close()

	var buf *gocv.NativeByteBuffer
	if e.Quality > 0 {
		buf, err = gocv.IMEncodeWithParams(gocv.JPEGFileExt, img, []int{int(gocv.IMWriteJpegQuality), e.Quality})
	} else {
		buf, err = gocv.IMEncode(gocv.JPEGFileExt, img)
	}
	if err != nil {
		return nil, fmt.Errorf("jpeg: %w", err)
	}
	defer buf.Close()

	// GetBytes aliases native memory released by buf.Close.
	return append([]byte(nil), buf.GetBytes()...), nil
}
