package imagecodec

import (
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"
)

// ErrCodec 编解码失败，原样上抛，不重试
var ErrCodec = errors.New("codec error")

// CodecError 记录失败的操作与文件
type CodecError struct {
	Op   string
	Path string
	Err  error
}

func (e *CodecError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *CodecError) Unwrap() error { return e.Err }

func (e *CodecError) Is(target error) bool { return target == ErrCodec }

// Format 输出格式
type Format int

const (
	// PNG 无损带 alpha，用于中间结果
	PNG Format = iota
	// WebP 有损带 alpha，用于最终交付
	WebP
)

func (f Format) String() string {
	if f == WebP {
		return "webp"
	}
	return "png"
}

// FormatFromPath 按扩展名选择输出格式
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		return PNG, nil
	case ".webp":
		return WebP, nil
	}
	return PNG, fmt.Errorf("unsupported output format %q", filepath.Ext(path))
}

// Decode 解码任意支持的格式，统一转成原点为 (0,0) 的 NRGBA
func Decode(r io.Reader) (*image.NRGBA, string, error) {
	img, format, err := image.Decode(r)
	if err != nil {
		return nil, "", &CodecError{Op: "decode", Err: err}
	}
	return imaging.Clone(img), format, nil
}

// Load 打开并解码图片文件
func Load(path string) (*image.NRGBA, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, _, err := Decode(f)
	if err != nil {
		var ce *CodecError
		if errors.As(err, &ce) {
			ce.Path = path
		}
		return nil, err
	}
	return img, nil
}

// Fit 宽度超过 maxWidth 时用 Lanczos 等比缩小；maxWidth <= 0 表示不缩放
func Fit(img *image.NRGBA, maxWidth int) *image.NRGBA {
	if maxWidth <= 0 || img.Bounds().Dx() <= maxWidth {
		return img
	}
	return imaging.Resize(img, maxWidth, 0, imaging.Lanczos)
}

// EncodePNG 无损编码
func EncodePNG(w io.Writer, img image.Image) error {
	if err := imaging.Encode(w, img, imaging.PNG); err != nil {
		return &CodecError{Op: "encode png", Err: err}
	}
	return nil
}
