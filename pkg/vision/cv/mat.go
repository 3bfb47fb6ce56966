// Package cv implements the vision capabilities and the video decoder with
// OpenCV through gocv: ORB features, brute-force Hamming matching, ArUco
// marker detection, JPEG encoding and H.264 stream decoding.
package cv

import (
	"fmt"

	"github.com/teslashibe/go-dronescan/pkg/frame"
	"gocv.io/x/gocv"
)

func matType(channels int) (gocv.MatType, error) {
	switch channels {
	case 1:
		return gocv.MatTypeCV8UC1, nil
	case 3:
		return gocv.MatTypeCV8UC3, nil
	case 4:
		return gocv.MatTypeCV8UC4, nil
	default:
		return 0, fmt.Errorf("unsupported channel count %d", channels)
	}
}

// toMat wraps a frame's pixels in a Mat. The caller must Close it.
func toMat(f *frame.Frame) (gocv.Mat, error) {
	if !f.Valid() {
		return gocv.NewMat(), fmt.Errorf("invalid frame %dx%dx%d with %d bytes", f.Width, f.Height, f.Channels, len(f.Pix))
	}
	mt, err := matType(f.Channels)
	if err != nil {
		return gocv.NewMat(), err
	}
	return gocv.NewMatFromBytes(f.Height, f.Width, mt, f.Pix)
}

// toGray returns a single-channel copy of the frame. The caller must Close it.
func toGray(f *frame.Frame) (gocv.Mat, error) {
	src, err := toMat(f)
	if err != nil {
		src.Close()
		return gocv.NewMat(), err
	}
	if f.Channels == 1 {
		return src, nil
	}
	defer src.Close()

	gray := gocv.NewMat()
	code := gocv.ColorBGRToGray
	if f.Channels == 4 {
		code = gocv.ColorBGRAToGray
	}
	gocv.CvtColor(src, &gray, code)
	return gray, nil
}
