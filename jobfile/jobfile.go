package jobfile

import (
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/color"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/lucasb-eyer/go-colorful"

	"sitetools/htmlpatch"
	"sitetools/imagecodec"
	"sitetools/regionmatte"
	sttypes "sitetools/type"
)

// DefaultParallel 未指定 parallel 时的并发数
const DefaultParallel = 4

// ErrInvalid 任务文件内容不合法
var ErrInvalid = errors.New("invalid job file")

// Load 读取并校验任务文件，相对路径按任务文件所在目录解析
func Load(path string) (*sttypes.Jobs, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dir, err := filepath.Abs(filepath.Dir(path))
	if err != nil {
		return nil, err
	}
	return Decode(f, dir)
}

// Decode 从 r 解码任务文件，未知字段视为错误
func Decode(r io.Reader, baseDir string) (*sttypes.Jobs, error) {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()

	var jobs sttypes.Jobs
	if err := dec.Decode(&jobs); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if jobs.Parallel <= 0 {
		jobs.Parallel = DefaultParallel
	}
	for i := range jobs.Matte {
		if err := NormalizeMatte(&jobs.Matte[i], baseDir); err != nil {
			return nil, fmt.Errorf("%w: matte[%d]: %v", ErrInvalid, i, err)
		}
	}
	for i := range jobs.Patch {
		if err := normalizePatch(&jobs.Patch[i], baseDir); err != nil {
			return nil, fmt.Errorf("%w: patch[%d]: %v", ErrInvalid, i, err)
		}
	}
	return &jobs, nil
}

// NormalizeMatte 填充默认值、解析相对路径并校验单个抠图任务
func NormalizeMatte(job *sttypes.MatteJob, baseDir string) error {
	if job.Input == "" {
		return errors.New("input is required")
	}
	job.Input = resolve(baseDir, job.Input)
	if job.Output == "" {
		job.Output = job.Input
	} else {
		job.Output = resolve(baseDir, job.Output)
	}
	if job.WebP {
		job.Output = imagecodec.WebPPath(job.Output)
	}
	if _, err := imagecodec.FormatFromPath(job.Output); err != nil {
		return err
	}

	if job.Tolerance == nil {
		t := regionmatte.DefaultTolerance
		job.Tolerance = &t
	} else if *job.Tolerance < 0 {
		return fmt.Errorf("tolerance %d is negative", *job.Tolerance)
	}
	if job.Quality == nil {
		q := imagecodec.DefaultQuality
		job.Quality = &q
	} else {
		q := imagecodec.ClampQuality(*job.Quality)
		job.Quality = &q
	}
	if job.MaxWidth < 0 {
		return fmt.Errorf("maxWidth %d is negative", job.MaxWidth)
	}

	for _, s := range job.Seeds {
		if len(s) != 2 {
			return fmt.Errorf("seed %v must have 2 coordinates", s)
		}
	}
	if job.Reference != "" {
		if _, err := ParseColor(job.Reference); err != nil {
			return err
		}
	}
	return nil
}

func normalizePatch(job *sttypes.PatchJob, baseDir string) error {
	if job.Dir == "" {
		job.Dir = baseDir
	} else {
		job.Dir = resolve(baseDir, job.Dir)
	}
	if len(job.Files) == 0 && job.Glob == "" {
		return errors.New("files or glob is required")
	}
	if len(job.Rules) == 0 {
		return errors.New("no rules")
	}
	_, err := htmlpatch.Compile(job.Rules)
	return err
}

func resolve(baseDir, p string) string {
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(baseDir, filepath.FromSlash(p))
}

// ParseColor 解析 #rrggbb / #rgb 颜色，结果不透明
func ParseColor(s string) (color.NRGBA, error) {
	if !strings.HasPrefix(s, "#") {
		s = "#" + s
	}
	c, err := colorful.Hex(s)
	if err != nil {
		return color.NRGBA{}, fmt.Errorf("bad color %q: %w", s, err)
	}
	r, g, b := c.RGB255()
	return color.NRGBA{R: r, G: g, B: b, A: 255}, nil
}

// MatteOptions 把已校验的任务转换为 Matte 的种子与选项，种子为空时取四角
func MatteOptions(job sttypes.MatteJob, bounds image.Rectangle) ([]image.Point, regionmatte.Options, error) {
	opts := regionmatte.Options{Tolerance: regionmatte.DefaultTolerance, ClearRGB: job.ClearRGB}
	if job.Tolerance != nil {
		opts.Tolerance = *job.Tolerance
	}
	if job.Reference != "" {
		ref, err := ParseColor(job.Reference)
		if err != nil {
			return nil, opts, err
		}
		opts.Reference = &ref
	}

	if len(job.Seeds) == 0 {
		return regionmatte.CornerSeeds(bounds), opts, nil
	}
	seeds := make([]image.Point, 0, len(job.Seeds))
	for _, s := range job.Seeds {
		if len(s) != 2 {
			return nil, opts, fmt.Errorf("%w: seed %v must have 2 coordinates", ErrInvalid, s)
		}
		seeds = append(seeds, image.Pt(s[0], s[1]))
	}
	return seeds, opts, nil
}
