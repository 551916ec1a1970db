package imagecodec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"strings"

	ffmpeg "github.com/u2takey/ffmpeg-go"
)

// DefaultQuality WebP 默认质量
const DefaultQuality = 80

// ClampQuality 把质量限制在 0..100
func ClampQuality(q int) int {
	if q < 0 {
		return 0
	}
	if q > 100 {
		return 100
	}
	return q
}

// EncodeWebP 把图片以 PNG 形式送入 ffmpeg（libwebp），结果写入 w
func EncodeWebP(ctx context.Context, w io.Writer, img image.Image, quality int) error {
	var src bytes.Buffer
	if err := EncodePNG(&src, img); err != nil {
		return err
	}

	var stderr bytes.Buffer
	cmd := ffmpeg.Input("pipe:0", ffmpeg.KwArgs{"f": "png_pipe"}).
		Output("pipe:1", ffmpeg.KwArgs{
			"f":                 "webp",
			"c:v":               "libwebp",
			"quality":           ClampQuality(quality),
			"compression_level": 6,
			"lossless":          0,
		}).
		WithInput(&src).
		WithOutput(w).
		WithErrorOutput(&stderr)
	cmd.Context = ctx

	if err := cmd.Run(); err != nil {
		if msg := lastLine(stderr.String()); msg != "" {
			err = fmt.Errorf("%w: %s", err, msg)
		}
		return &CodecError{Op: "encode webp", Err: err}
	}
	return nil
}

// Encode 按格式编码；WebP 需要 ffmpeg
func Encode(ctx context.Context, w io.Writer, img image.Image, format Format, quality int) error {
	switch format {
	case PNG:
		return EncodePNG(w, img)
	case WebP:
		return EncodeWebP(ctx, w, img, quality)
	}
	return &CodecError{Op: "encode", Err: errors.New("unknown format " + format.String())}
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}
