package regionmatte

import (
	"image"
	"image/color"
)

// Erased 全局阈值擦除时写入的颜色
var Erased = color.NRGBA{R: 255, G: 255, B: 255, A: 0}

// Predicate 判断一个像素是否属于背景
type Predicate func(c color.NRGBA) bool

// Whitish 三个通道都严格大于 level
func Whitish(level uint8) Predicate {
	return func(c color.NRGBA) bool {
		return c.R > level && c.G > level && c.B > level
	}
}

// Checkerboard 匹配纯白或接近中性灰的亮色方块（透明棋盘格残留）
func Checkerboard(white, grey uint8, spread int) Predicate {
	isWhite := Whitish(white)
	isLight := Whitish(grey)
	return func(c color.NRGBA) bool {
		if isWhite(c) {
			return true
		}
		return isLight(c) &&
			absDiff(c.R, c.G) < spread &&
			absDiff(c.G, c.B) < spread &&
			absDiff(c.R, c.B) < spread
	}
}

// Background 全图范围的参考色匹配，不做连通性判断
func Background(ref color.NRGBA, tolerance int) Predicate {
	return func(c color.NRGBA) bool {
		return Matches(c, ref, tolerance)
	}
}

// Threshold 把所有满足 pred 的像素替换为 replacement，返回替换数量。
// 与 Matte 不同，主体内部同色的像素也会被擦除。
func Threshold(grid *image.NRGBA, pred Predicate, replacement color.NRGBA) int {
	if grid == nil {
		return 0
	}
	b := grid.Bounds()
	n := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if pred(grid.NRGBAAt(x, y)) {
				grid.SetNRGBA(x, y, replacement)
				n++
			}
		}
	}
	return n
}

// HeaderBackground 页头背景色 rgba(255, 255, 255, 0.8)
var HeaderBackground = color.NRGBA{R: 255, G: 255, B: 255, A: 204}

// FillBackground 把完全透明或偏白（大于 level）的像素填成 fill，返回填充数量
func FillBackground(grid *image.NRGBA, fill color.NRGBA, level uint8) int {
	light := Whitish(level)
	return Threshold(grid, func(c color.NRGBA) bool {
		return c.A == 0 || light(c)
	}, fill)
}
