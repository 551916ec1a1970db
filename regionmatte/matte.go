package regionmatte

import (
	"errors"
	"fmt"
	"image"
	"image/color"
)

// DefaultTolerance 默认逐通道容差
const DefaultTolerance = 30

// ErrInvalidArgument 调用方传入了非法的网格、种子或容差
var ErrInvalidArgument = errors.New("invalid argument")

// Options 一次抠图的参数
type Options struct {
	// Reference 背景参考色，为 nil 时在第一个种子处取样一次
	Reference *color.NRGBA
	Tolerance int
	// ClearRGB 命中像素同时清零 RGB（旧脚本的行为），默认只改 alpha
	ClearRGB bool
}

var neighbours = [4]image.Point{{1, 0}, {-1, 0}, {0, 1}, {0, -1}}

// Matte 从种子点出发做 4 连通洪水填充，把与参考色匹配的连通区域原地设为透明。
// 不匹配的像素视为墙，不会越过它继续扩展。
func Matte(grid *image.NRGBA, seeds []image.Point, opts Options) error {
	if err := validate(grid, seeds, opts.Tolerance); err != nil {
		return err
	}

	b := grid.Bounds()
	w := b.Dx()

	ref, hasRef := reference(grid, seeds, opts)

	visited := make([]bool, w*b.Dy())
	index := func(p image.Point) int {
		return (p.Y-b.Min.Y)*w + (p.X - b.Min.X)
	}

	stack := make([]image.Point, len(seeds), len(seeds)+64)
	copy(stack, seeds)

	for len(stack) > 0 {
		p := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		i := index(p)
		if visited[i] {
			continue
		}
		visited[i] = true

		off := grid.PixOffset(p.X, p.Y)
		px := grid.Pix[off : off+4 : off+4]
		// ClearRGB 模式下 alpha 为 0 的像素已丢失原色，视为已抠掉的背景
		cleared := opts.ClearRGB && px[3] == 0
		if !cleared && !(hasRef && matchChannels(px[0], px[1], px[2], ref, opts.Tolerance)) {
			continue
		}
		px[3] = 0
		if opts.ClearRGB {
			px[0], px[1], px[2] = 0, 0, 0
		}

		for _, d := range neighbours {
			n := p.Add(d)
			if !n.In(b) || visited[index(n)] {
				continue
			}
			stack = append(stack, n)
		}
	}
	return nil
}

// reference 确定参考色：显式给出时直接使用，否则在第一个种子处取样。
// ClearRGB 模式下第一个种子已被清零时原色无从得知，返回 false，此时只有已抠掉的像素会被匹配。
func reference(grid *image.NRGBA, seeds []image.Point, opts Options) (color.NRGBA, bool) {
	if opts.Reference != nil {
		return *opts.Reference, true
	}
	c := grid.NRGBAAt(seeds[0].X, seeds[0].Y)
	if opts.ClearRGB && c.A == 0 {
		return color.NRGBA{}, false
	}
	return c, true
}

func validate(grid *image.NRGBA, seeds []image.Point, tolerance int) error {
	if grid == nil || grid.Bounds().Empty() {
		return fmt.Errorf("%w: empty grid", ErrInvalidArgument)
	}
	if tolerance < 0 {
		return fmt.Errorf("%w: negative tolerance %d", ErrInvalidArgument, tolerance)
	}
	if len(seeds) == 0 {
		return fmt.Errorf("%w: no seeds", ErrInvalidArgument)
	}
	b := grid.Bounds()
	for i, s := range seeds {
		if !s.In(b) {
			return fmt.Errorf("%w: seed %d %v outside %v", ErrInvalidArgument, i, s, b)
		}
	}
	return nil
}

// CornerSeeds 返回矩形的四个角（左上、右上、左下、右下），单行或单列时去重
func CornerSeeds(r image.Rectangle) []image.Point {
	if r.Empty() {
		return nil
	}
	corners := []image.Point{
		{r.Min.X, r.Min.Y},
		{r.Max.X - 1, r.Min.Y},
		{r.Min.X, r.Max.Y - 1},
		{r.Max.X - 1, r.Max.Y - 1},
	}
	seeds := make([]image.Point, 0, len(corners))
	for _, c := range corners {
		dup := false
		for _, s := range seeds {
			if s == c {
				dup = true
				break
			}
		}
		if !dup {
			seeds = append(seeds, c)
		}
	}
	return seeds
}

// Matches 判断颜色 c 的 RGB 是否在参考色 ref 的容差内，不比较 alpha
func Matches(c, ref color.NRGBA, tolerance int) bool {
	return matchChannels(c.R, c.G, c.B, ref, tolerance)
}

func matchChannels(r, g, b uint8, ref color.NRGBA, tol int) bool {
	return absDiff(r, ref.R) <= tol && absDiff(g, ref.G) <= tol && absDiff(b, ref.B) <= tol
}

func absDiff(a, b uint8) int {
	d := int(a) - int(b)
	if d < 0 {
		return -d
	}
	return d
}
