package regionmatte

import (
	"image"
	"image/color"
)

// DefaultTrimTolerance 与左上角颜色的差值超过该值才算内容
const DefaultTrimTolerance = 100

// TrimBounds 计算与 Min 处颜色（含 alpha）差异超过 tolerance 的像素包围盒。
// 全图与背景一致时返回 ok=false。
func TrimBounds(img *image.NRGBA, tolerance int) (image.Rectangle, bool) {
	if img == nil || img.Bounds().Empty() {
		return image.Rectangle{}, false
	}
	b := img.Bounds()
	bg := img.NRGBAAt(b.Min.X, b.Min.Y)

	box := image.Rectangle{}
	found := false
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := img.NRGBAAt(x, y)
			if absDiff(c.R, bg.R) <= tolerance && absDiff(c.G, bg.G) <= tolerance &&
				absDiff(c.B, bg.B) <= tolerance && absDiff(c.A, bg.A) <= tolerance {
				continue
			}
			px := image.Rect(x, y, x+1, y+1)
			if !found {
				box = px
				found = true
				continue
			}
			box = box.Union(px)
		}
	}
	return box, found
}

// AlphaMask 生成黑白掩码：alpha >= cutoff 的主体为黑，其余为白
func AlphaMask(img *image.NRGBA, cutoff uint8) *image.Gray {
	b := img.Bounds()
	mask := image.NewGray(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if img.NRGBAAt(x, y).A >= cutoff {
				mask.SetGray(x, y, color.Gray{Y: 0})
			} else {
				mask.SetGray(x, y, color.Gray{Y: 255})
			}
		}
	}
	return mask
}
