package mask2svg

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"image"
	"io"
	"math"
	"strconv"
	"strings"

	svgo "github.com/ajstarks/svgo"
	"github.com/gotranspile/gotrace"
	"github.com/lucasb-eyer/go-colorful"
	"github.com/rustyoz/svg"
)

// Trace 使用 gotrace 将黑白掩码（黑=主体）转成 SVG 字符串
func Trace(mask *image.Gray) (string, error) {
	bm := gotrace.BitmapFromGray(mask, nil)

	paths, err := gotrace.Trace(bm, nil)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	sz := mask.Bounds().Size()
	if err := gotrace.Render("svg", nil, &buf, paths, sz.X, sz.Y); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// Group 一组共享 transform 的路径
type Group struct {
	Transform string
	Paths     []string
}

// Outline 描边结果：viewBox 与按 transform 分组的路径
type Outline struct {
	ViewBox [4]float64
	Groups  []Group
}

// PathCount 路径总数
func (o Outline) PathCount() int {
	n := 0
	for _, g := range o.Groups {
		n += len(g.Paths)
	}
	return n
}

type xmlPath struct {
	D string `xml:"d,attr"`
}

type xmlGroup struct {
	Transform string     `xml:"transform,attr"`
	Paths     []xmlPath  `xml:"path"`
	Groups    []xmlGroup `xml:"g"`
}

type xmlSVG struct {
	Paths  []xmlPath  `xml:"path"`
	Groups []xmlGroup `xml:"g"`
}

// ParseOutline 读取 SVG 的 viewBox 与所有 <path> 的 d 属性
func ParseOutline(svgData string) (Outline, error) {
	parsed, err := svg.ParseSvg(svgData, "outline", 1.0)
	if err != nil {
		return Outline{}, fmt.Errorf("parse svg: %w", err)
	}

	var o Outline
	fields := strings.Fields(strings.ReplaceAll(parsed.ViewBox, ",", " "))
	if len(fields) != 4 {
		return Outline{}, fmt.Errorf("parse svg: bad viewBox %q", parsed.ViewBox)
	}
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return Outline{}, fmt.Errorf("parse svg: bad viewBox %q: %w", parsed.ViewBox, err)
		}
		o.ViewBox[i] = v
	}

	var s xmlSVG
	if err := xml.Unmarshal([]byte(svgData), &s); err != nil {
		return Outline{}, fmt.Errorf("parse svg: %w", err)
	}
	if len(s.Paths) > 0 {
		o.Groups = append(o.Groups, Group{Paths: pathData(s.Paths)})
	}
	for _, g := range s.Groups {
		o.Groups = flatten(o.Groups, g, "")
	}
	return o, nil
}

func flatten(out []Group, g xmlGroup, parent string) []Group {
	transform := strings.TrimSpace(parent + " " + g.Transform)
	if len(g.Paths) > 0 {
		out = append(out, Group{Transform: transform, Paths: pathData(g.Paths)})
	}
	for _, child := range g.Groups {
		out = flatten(out, child, transform)
	}
	return out
}

func pathData(paths []xmlPath) []string {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if d := strings.TrimSpace(p.D); d != "" {
			out = append(out, d)
		}
	}
	return out
}

// NormalizeHex 校验颜色并统一成 #rrggbb
func NormalizeHex(s string) (string, error) {
	if !strings.HasPrefix(s, "#") {
		s = "#" + s
	}
	c, err := colorful.Hex(s)
	if err != nil {
		return "", fmt.Errorf("bad color %q: %w", s, err)
	}
	return c.Hex(), nil
}

// Render 用指定填充色重新输出 SVG
func (o Outline) Render(w io.Writer, fill string) error {
	hex, err := NormalizeHex(fill)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	canvas := svgo.New(&buf)
	vb := o.ViewBox
	canvas.Startview(round(vb[2]), round(vb[3]), round(vb[0]), round(vb[1]), round(vb[2]), round(vb[3]))
	for _, g := range o.Groups {
		if g.Transform != "" {
			canvas.Gtransform(g.Transform)
		}
		for _, d := range g.Paths {
			canvas.Path(d, "fill:"+hex)
		}
		if g.Transform != "" {
			canvas.Gend()
		}
	}
	canvas.End()

	_, err = w.Write(buf.Bytes())
	return err
}

func round(v float64) int {
	return int(math.Round(v))
}
