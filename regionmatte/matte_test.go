package regionmatte

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"math/rand"
	"testing"
)

var (
	white = color.NRGBA{255, 255, 255, 255}
	black = color.NRGBA{0, 0, 0, 255}
	grey  = color.NRGBA{200, 200, 200, 255}
)

func fill(r image.Rectangle, c color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(r)
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	return img
}

func clone(img *image.NRGBA) *image.NRGBA {
	out := image.NewNRGBA(img.Bounds())
	copy(out.Pix, img.Pix)
	return out
}

// islandGrid 5x5 白底，(2,2)..(4,4) 的黑环包住 (3,3) 的白色孤岛
func islandGrid() *image.NRGBA {
	img := fill(image.Rect(0, 0, 5, 5), white)
	for y := 2; y <= 4; y++ {
		for x := 2; x <= 4; x++ {
			if x == 3 && y == 3 {
				continue
			}
			img.SetNRGBA(x, y, black)
		}
	}
	return img
}

func TestMatteScenarios(t *testing.T) {
	row := fill(image.Rect(0, 0, 3, 1), white)
	row.SetNRGBA(1, 0, black)

	for _, tc := range []struct {
		name        string
		grid        *image.NRGBA
		seeds       []image.Point
		tolerance   int
		transparent map[image.Point]bool
	}{
		{
			name:      "uniform_2x2",
			grid:      fill(image.Rect(0, 0, 2, 2), grey),
			seeds:     CornerSeeds(image.Rect(0, 0, 2, 2)),
			tolerance: 30,
			transparent: map[image.Point]bool{
				{0, 0}: true, {1, 0}: true, {0, 1}: true, {1, 1}: true,
			},
		},
		{
			name:        "wall_3x1",
			grid:        row,
			seeds:       []image.Point{{0, 0}},
			tolerance:   10,
			transparent: map[image.Point]bool{{0, 0}: true},
		},
		{
			name:      "island_5x5",
			grid:      islandGrid(),
			seeds:     CornerSeeds(image.Rect(0, 0, 5, 5)),
			tolerance: 10,
			transparent: func() map[image.Point]bool {
				m := map[image.Point]bool{}
				for y := 0; y < 5; y++ {
					for x := 0; x < 5; x++ {
						if x < 2 || y < 2 {
							m[image.Pt(x, y)] = true
						}
					}
				}
				return m
			}(),
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			orig := clone(tc.grid)
			if err := Matte(tc.grid, tc.seeds, Options{Tolerance: tc.tolerance}); err != nil {
				t.Fatalf("Matte: %v", err)
			}
			b := tc.grid.Bounds()
			for y := b.Min.Y; y < b.Max.Y; y++ {
				for x := b.Min.X; x < b.Max.X; x++ {
					got := tc.grid.NRGBAAt(x, y)
					want := orig.NRGBAAt(x, y)
					if tc.transparent[image.Pt(x, y)] {
						want.A = 0
					}
					if got != want {
						t.Errorf("pixel (%d,%d) = %v, want %v", x, y, got, want)
					}
				}
			}
		})
	}
}

func TestMatteIdempotent(t *testing.T) {
	grid := randomGrid(rand.New(rand.NewSource(7)), 24, 18)
	opts := Options{Tolerance: DefaultTolerance}
	seeds := CornerSeeds(grid.Bounds())

	if err := Matte(grid, seeds, opts); err != nil {
		t.Fatalf("Matte: %v", err)
	}
	once := clone(grid)
	if err := Matte(grid, seeds, opts); err != nil {
		t.Fatalf("Matte: %v", err)
	}
	if !bytes.Equal(once.Pix, grid.Pix) {
		t.Errorf("second pass changed the grid")
	}
}

func TestMatteClearRGBIdempotent(t *testing.T) {
	for _, tc := range []struct {
		name  string
		grid  *image.NRGBA
		seeds []image.Point
	}{
		{"dark wall", func() *image.NRGBA {
			g := fill(image.Rect(0, 0, 4, 1), white)
			g.SetNRGBA(2, 0, black)
			return g
		}(), []image.Point{{0, 0}}},
		{"random corners", randomGrid(rand.New(rand.NewSource(11)), 24, 18), nil},
		{"island", islandGrid(), []image.Point{{0, 0}, {4, 0}}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			seeds := tc.seeds
			if seeds == nil {
				seeds = CornerSeeds(tc.grid.Bounds())
			}
			opts := Options{Tolerance: DefaultTolerance, ClearRGB: true}

			if err := Matte(tc.grid, seeds, opts); err != nil {
				t.Fatalf("Matte: %v", err)
			}
			once := clone(tc.grid)
			if err := Matte(tc.grid, seeds, opts); err != nil {
				t.Fatalf("second Matte: %v", err)
			}
			if !bytes.Equal(once.Pix, tc.grid.Pix) {
				t.Errorf("second pass changed the grid")
			}
		})
	}

	grid := fill(image.Rect(0, 0, 4, 1), white)
	grid.SetNRGBA(2, 0, black)
	opts := Options{Tolerance: DefaultTolerance, ClearRGB: true}
	for pass := 0; pass < 2; pass++ {
		if err := Matte(grid, []image.Point{{0, 0}}, opts); err != nil {
			t.Fatalf("Matte: %v", err)
		}
	}
	want := []color.NRGBA{{}, {}, black, white}
	for x, w := range want {
		if got := grid.NRGBAAt(x, 0); got != w {
			t.Errorf("pixel %d = %v, want %v", x, got, w)
		}
	}
}

func TestMatteClearRGBTransparentSeed(t *testing.T) {
	row := func() *image.NRGBA {
		g := fill(image.Rect(0, 0, 4, 1), white)
		g.SetNRGBA(0, 0, color.NRGBA{})
		g.SetNRGBA(2, 0, black)
		return g
	}
	seeds := []image.Point{{0, 0}, {3, 0}}

	// 第一个种子已清零且没有显式参考色：只扩展已抠掉的像素
	grid := row()
	if err := Matte(grid, seeds, Options{Tolerance: DefaultTolerance, ClearRGB: true}); err != nil {
		t.Fatalf("Matte: %v", err)
	}
	for x, w := range []color.NRGBA{{}, white, black, white} {
		if got := grid.NRGBAAt(x, 0); got != w {
			t.Errorf("pixel %d = %v, want %v", x, got, w)
		}
	}

	grid = row()
	ref := white
	if err := Matte(grid, seeds, Options{Tolerance: DefaultTolerance, ClearRGB: true, Reference: &ref}); err != nil {
		t.Fatalf("Matte: %v", err)
	}
	for x, w := range []color.NRGBA{{}, {}, black, {}} {
		if got := grid.NRGBAAt(x, 0); got != w {
			t.Errorf("with reference: pixel %d = %v, want %v", x, got, w)
		}
	}
}

// TestMatteReachability 与独立的 BFS 结果对比：透明像素集合恰好等于从种子经匹配像素可达的集合
func TestMatteReachability(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 20; i++ {
		grid := randomGrid(rng, 1+rng.Intn(30), 1+rng.Intn(30))
		b := grid.Bounds()
		seeds := []image.Point{
			{rng.Intn(b.Dx()), rng.Intn(b.Dy())},
			{rng.Intn(b.Dx()), rng.Intn(b.Dy())},
		}
		tol := rng.Intn(40)
		orig := clone(grid)
		want := reachable(orig, seeds, orig.NRGBAAt(seeds[0].X, seeds[0].Y), tol)

		if err := Matte(grid, seeds, Options{Tolerance: tol}); err != nil {
			t.Fatalf("Matte: %v", err)
		}
		for y := b.Min.Y; y < b.Max.Y; y++ {
			for x := b.Min.X; x < b.Max.X; x++ {
				p := image.Pt(x, y)
				got := grid.NRGBAAt(x, y)
				o := orig.NRGBAAt(x, y)
				if want[p] {
					if got.A != 0 || got.R != o.R || got.G != o.G || got.B != o.B {
						t.Fatalf("case %d: pixel %v = %v, want transparent %v", i, p, got, o)
					}
				} else if got != o {
					t.Fatalf("case %d: pixel %v = %v, want untouched %v", i, p, got, o)
				}
			}
		}
	}
}

func TestMatteToleranceZero(t *testing.T) {
	grid := fill(image.Rect(0, 0, 3, 1), white)
	grid.SetNRGBA(1, 0, color.NRGBA{254, 255, 255, 255})
	if err := Matte(grid, []image.Point{{0, 0}}, Options{Tolerance: 0}); err != nil {
		t.Fatalf("Matte: %v", err)
	}
	if a := grid.NRGBAAt(0, 0).A; a != 0 {
		t.Errorf("seed alpha = %d, want 0", a)
	}
	if a := grid.NRGBAAt(1, 0).A; a != 255 {
		t.Errorf("off-by-one pixel alpha = %d, want 255", a)
	}
	if a := grid.NRGBAAt(2, 0).A; a != 255 {
		t.Errorf("pixel behind wall alpha = %d, want 255", a)
	}
}

func TestMatteFirstSeedAlwaysCleared(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	for i := 0; i < 10; i++ {
		grid := randomGrid(rng, 8, 8)
		seed := image.Pt(rng.Intn(8), rng.Intn(8))
		if err := Matte(grid, []image.Point{seed}, Options{Tolerance: 0}); err != nil {
			t.Fatalf("Matte: %v", err)
		}
		if a := grid.NRGBAAt(seed.X, seed.Y).A; a != 0 {
			t.Errorf("seed %v alpha = %d, want 0", seed, a)
		}
	}
}

func TestMatteExplicitReference(t *testing.T) {
	grid := fill(image.Rect(0, 0, 4, 4), black)
	grid.SetNRGBA(3, 3, white)
	ref := white
	if err := Matte(grid, CornerSeeds(grid.Bounds()), Options{Reference: &ref, Tolerance: 5}); err != nil {
		t.Fatalf("Matte: %v", err)
	}
	if a := grid.NRGBAAt(0, 0).A; a != 255 {
		t.Errorf("black corner alpha = %d, want 255", a)
	}
	if a := grid.NRGBAAt(3, 3).A; a != 0 {
		t.Errorf("white corner alpha = %d, want 0", a)
	}
}

func TestMatteClearRGB(t *testing.T) {
	grid := fill(image.Rect(0, 0, 2, 1), grey)
	if err := Matte(grid, []image.Point{{0, 0}}, Options{Tolerance: 0, ClearRGB: true}); err != nil {
		t.Fatalf("Matte: %v", err)
	}
	for x := 0; x < 2; x++ {
		if got := grid.NRGBAAt(x, 0); got != (color.NRGBA{}) {
			t.Errorf("pixel %d = %v, want zero", x, got)
		}
	}
}

func TestMatteNonZeroOrigin(t *testing.T) {
	r := image.Rect(10, 20, 13, 22)
	grid := fill(r, white)
	grid.SetNRGBA(11, 20, black)
	grid.SetNRGBA(11, 21, black)
	if err := Matte(grid, []image.Point{{10, 20}}, Options{Tolerance: 10}); err != nil {
		t.Fatalf("Matte: %v", err)
	}
	if a := grid.NRGBAAt(10, 21).A; a != 0 {
		t.Errorf("(10,21) alpha = %d, want 0", a)
	}
	if a := grid.NRGBAAt(12, 20).A; a != 255 {
		t.Errorf("(12,20) alpha = %d, want 255", a)
	}
}

func TestMatteInvalidArgument(t *testing.T) {
	ok := fill(image.Rect(0, 0, 3, 3), white)
	for _, tc := range []struct {
		name  string
		grid  *image.NRGBA
		seeds []image.Point
		tol   int
	}{
		{name: "nil_grid", grid: nil, seeds: []image.Point{{0, 0}}},
		{name: "empty_grid", grid: image.NewNRGBA(image.Rect(0, 0, 0, 4)), seeds: []image.Point{{0, 0}}},
		{name: "no_seeds", grid: ok, seeds: nil},
		{name: "seed_x_out", grid: ok, seeds: []image.Point{{0, 0}, {3, 0}}},
		{name: "seed_y_negative", grid: ok, seeds: []image.Point{{0, -1}}},
		{name: "negative_tolerance", grid: ok, seeds: []image.Point{{0, 0}}, tol: -1},
	} {
		t.Run(tc.name, func(t *testing.T) {
			var before []byte
			if tc.grid != nil {
				before = append([]byte(nil), tc.grid.Pix...)
			}
			err := Matte(tc.grid, tc.seeds, Options{Tolerance: tc.tol})
			if !errors.Is(err, ErrInvalidArgument) {
				t.Fatalf("Matte error = %v, want ErrInvalidArgument", err)
			}
			if tc.grid != nil && !bytes.Equal(before, tc.grid.Pix) {
				t.Errorf("grid mutated on invalid input")
			}
		})
	}
}

func TestCornerSeeds(t *testing.T) {
	for _, tc := range []struct {
		r    image.Rectangle
		want []image.Point
	}{
		{image.Rect(0, 0, 4, 3), []image.Point{{0, 0}, {3, 0}, {0, 2}, {3, 2}}},
		{image.Rect(0, 0, 1, 1), []image.Point{{0, 0}}},
		{image.Rect(0, 0, 3, 1), []image.Point{{0, 0}, {2, 0}}},
		{image.Rect(5, 5, 5, 5), nil},
	} {
		got := CornerSeeds(tc.r)
		if len(got) != len(tc.want) {
			t.Fatalf("CornerSeeds(%v) = %v, want %v", tc.r, got, tc.want)
		}
		for i := range got {
			if got[i] != tc.want[i] {
				t.Errorf("CornerSeeds(%v)[%d] = %v, want %v", tc.r, i, got[i], tc.want[i])
			}
		}
	}
}

func randomGrid(rng *rand.Rand, w, h int) *image.NRGBA {
	palette := []color.NRGBA{white, black, grey, {250, 245, 255, 255}, {30, 200, 90, 128}}
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, palette[rng.Intn(len(palette))])
		}
	}
	return img
}

func reachable(img *image.NRGBA, seeds []image.Point, ref color.NRGBA, tol int) map[image.Point]bool {
	b := img.Bounds()
	seen := map[image.Point]bool{}
	out := map[image.Point]bool{}
	queue := append([]image.Point(nil), seeds...)
	for len(queue) > 0 {
		p := queue[0]
		queue = queue[1:]
		if seen[p] {
			continue
		}
		seen[p] = true
		if !Matches(img.NRGBAAt(p.X, p.Y), ref, tol) {
			continue
		}
		out[p] = true
		for _, d := range []image.Point{{1, 0}, {-1, 0}, {0, 1}, {0, -1}} {
			if n := p.Add(d); n.In(b) {
				queue = append(queue, n)
			}
		}
	}
	return out
}
