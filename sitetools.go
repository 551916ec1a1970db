package main

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/disintegration/imaging"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	"sitetools/backup"
	"sitetools/htmlpatch"
	"sitetools/imagecodec"
	"sitetools/jobfile"
	"sitetools/linkcheck"
	"sitetools/mask2svg"
	"sitetools/regionmatte"
	sttypes "sitetools/type"
)

// runBatch 并发处理 n 个互不相关的条目。单个条目失败只记录，不影响其他条目；
// 全部结束后汇总为 "N of M items failed"。被取消时仍汇总已完成的条目。
func runBatch(ctx context.Context, names []string, parallel int, fn func(ctx context.Context, i int) (string, error)) error {
	if parallel <= 0 {
		parallel = 1
	}
	results := make([]sttypes.Result, len(names))
	finished := make([]bool, len(names))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallel)
	for i, name := range names {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			note, err := fn(gctx, i)
			results[i] = sttypes.Result{Name: name, Note: note, Err: err}
			finished[i] = true
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		done := lo.Filter(results, func(_ sttypes.Result, i int) bool { return finished[i] })
		log.Printf("Cancelled after %d of %d items", len(done), len(names))
		return errors.Join(err, summarize(done))
	}
	return summarize(results)
}

func summarize(results []sttypes.Result) error {
	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
			log.Printf("%s: %v", r.Name, r.Err)
			continue
		}
		if r.Note != "" {
			log.Printf("%s: %s", r.Name, r.Note)
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d items failed", failed, len(results))
	}
	return nil
}

// writeImage 按扩展名编码并原子替换 path
func writeImage(ctx context.Context, path string, img image.Image, quality int, keep bool) error {
	format, err := imagecodec.FormatFromPath(path)
	if err != nil {
		return err
	}
	return backup.Replace(path, keep, func(w io.Writer) error {
		return imagecodec.Encode(ctx, w, img, format, quality)
	})
}

// matteImage 加载、缩放、从种子抠掉背景并写出
func matteImage(ctx context.Context, job sttypes.MatteJob) (string, error) {
	img, err := imagecodec.Load(job.Input)
	if err != nil {
		return "", err
	}
	img = imagecodec.Fit(img, job.MaxWidth)

	seeds, opts, err := jobfile.MatteOptions(job, img.Bounds())
	if err != nil {
		return "", err
	}
	if err := regionmatte.Matte(img, seeds, opts); err != nil {
		return "", err
	}

	quality := imagecodec.DefaultQuality
	if job.Quality != nil {
		quality = *job.Quality
	}
	if err := writeImage(ctx, job.Output, img, quality, job.Backup); err != nil {
		return "", err
	}
	sz := img.Bounds().Size()
	return fmt.Sprintf("%dx%d -> %s", sz.X, sz.Y, job.Output), nil
}

// editImage 加载图片、原地修改后写出，edit 返回被修改的像素数
func editImage(ctx context.Context, in, out string, keep bool, edit func(img *image.NRGBA) int) (string, error) {
	img, err := imagecodec.Load(in)
	if err != nil {
		return "", err
	}
	n := edit(img)
	if err := writeImage(ctx, out, img, imagecodec.DefaultQuality, keep); err != nil {
		return "", err
	}
	return fmt.Sprintf("%d pixels replaced -> %s", n, out), nil
}

// outputPath 决定输出路径：显式指定只允许单个输入；默认原地覆盖，jpg 等改写为同名 .png
func outputPath(in, out string, inputs int) (string, error) {
	if out != "" {
		if inputs > 1 {
			return "", errors.New("--output needs exactly one input")
		}
		return out, nil
	}
	if _, err := imagecodec.FormatFromPath(in); err == nil {
		return in, nil
	}
	return strings.TrimSuffix(in, filepath.Ext(in)) + ".png", nil
}

// trimImage 裁掉与左上角颜色相同的边框
func trimImage(ctx context.Context, in, out string, tolerance int, keep bool) (string, error) {
	img, err := imagecodec.Load(in)
	if err != nil {
		return "", err
	}
	r, ok := regionmatte.TrimBounds(img, tolerance)
	if !ok {
		return "nothing to trim", nil
	}
	cropped := imaging.Crop(img, r)
	if err := writeImage(ctx, out, cropped, imagecodec.DefaultQuality, keep); err != nil {
		return "", err
	}
	before, after := img.Bounds().Size(), cropped.Bounds().Size()
	return fmt.Sprintf("%dx%d -> %dx%d", before.X, before.Y, after.X, after.Y), nil
}

// outlineImage 把图片的不透明部分描成 SVG，输出浅色与深色两个版本
func outlineImage(in, base string, cutoff uint8, light, dark string) (string, error) {
	img, err := imagecodec.Load(in)
	if err != nil {
		return "", err
	}
	traced, err := mask2svg.Trace(regionmatte.AlphaMask(img, cutoff))
	if err != nil {
		return "", fmt.Errorf("trace: %w", err)
	}
	outline, err := mask2svg.ParseOutline(traced)
	if err != nil {
		return "", err
	}

	for _, v := range []struct{ path, fill string }{
		{base + ".svg", light},
		{base + "_dark.svg", dark},
	} {
		err := backup.Replace(v.path, false, func(w io.Writer) error {
			return outline.Render(w, v.fill)
		})
		if err != nil {
			return "", err
		}
	}
	return fmt.Sprintf("%d paths -> %s.svg, %s_dark.svg", outline.PathCount(), base, base), nil
}

// optimizeOptions optimize 子命令的参数
type optimizeOptions struct {
	Root      string
	MaxWidth  int
	IconWidth int
	Quality   int
	Skip      []string
	Rewrite   bool
	Probe     bool
	Backup    bool
	Parallel  int
}

// optimizeSite 把 assets 下的 jpg/png 转为 WebP（保留原文件），再更新顶层 HTML 中的引用
func optimizeSite(ctx context.Context, o optimizeOptions) error {
	images, err := imagecodec.FindImages(filepath.Join(o.Root, "assets"), o.Skip)
	if err != nil {
		return err
	}
	log.Printf("Found %d images to convert", len(images))

	log.Println("Converting images to WebP...")
	shared := imagecodec.SharedWebPTargets(images)
	var totalBefore, totalAfter atomic.Int64
	convErr := runBatch(ctx, images, o.Parallel, func(ctx context.Context, i int) (string, error) {
		target := imagecodec.WebPPath(images[i])
		if srcs, ok := shared[target]; ok {
			names := lo.Map(srcs, func(p string, _ int) string { return filepath.Base(p) })
			return "", fmt.Errorf("webp target %s has several sources: %s", filepath.Base(target), strings.Join(names, ", "))
		}
		before, after, note, err := convertImage(ctx, images[i], o)
		if err == nil {
			totalBefore.Add(before)
			totalAfter.Add(after)
		}
		return note, err
	})
	if b, a := totalBefore.Load(), totalAfter.Load(); b > 0 {
		log.Printf("Total original: %s, total WebP: %s (%.0f%% reduction)", humanSize(b), humanSize(a), reduction(b, a))
	}
	if ctx.Err() != nil || !o.Rewrite {
		return convErr
	}

	log.Println("Updating HTML references...")
	files, err := linkcheck.FindHTML(o.Root, false)
	if err != nil {
		return errors.Join(convErr, err)
	}
	rules := []htmlpatch.Rule{htmlpatch.WebPReferenceRule(o.Skip)}
	patchErr := runBatch(ctx, files, o.Parallel, func(ctx context.Context, i int) (string, error) {
		changed, _, err := htmlpatch.PatchFile(files[i], rules, o.Backup)
		if err != nil || !changed {
			return "", err
		}
		return "updated references", nil
	})
	return errors.Join(convErr, patchErr)
}

func convertImage(ctx context.Context, path string, o optimizeOptions) (int64, int64, string, error) {
	st, err := os.Stat(path)
	if err != nil {
		return 0, 0, "", err
	}
	img, err := imagecodec.Load(path)
	if err != nil {
		return 0, 0, "", err
	}

	width := o.MaxWidth
	if strings.Contains(filepath.ToSlash(path), "icons") {
		width = o.IconWidth
	}
	img = imagecodec.Fit(img, width)

	out := imagecodec.WebPPath(path)
	if err := writeImage(ctx, out, img, o.Quality, o.Backup); err != nil {
		return 0, 0, "", err
	}
	outSt, err := os.Stat(out)
	if err != nil {
		return 0, 0, "", err
	}

	before, after := st.Size(), outSt.Size()
	note := fmt.Sprintf("%s -> %s (%.0f%% smaller)", humanSize(before), humanSize(after), reduction(before, after))
	if o.Probe {
		if d, err := imagecodec.Probe(out); err == nil {
			note += fmt.Sprintf(", %s %dx%d", d.Codec, d.Width, d.Height)
		}
	}
	return before, after, note, nil
}

func reduction(before, after int64) float64 {
	if before == 0 {
		return 0
	}
	return (1 - float64(after)/float64(before)) * 100
}

func humanSize(n int64) string {
	if n >= 1024*1024 {
		return fmt.Sprintf("%.1fMB", float64(n)/(1024*1024))
	}
	return fmt.Sprintf("%.0fKB", float64(n)/1024)
}

// patchFiles 对每个文件应用同一组规则，缺失的必需规则记为警告
func patchFiles(ctx context.Context, files []string, rules []htmlpatch.Rule, keep bool, parallel int) error {
	return runBatch(ctx, files, parallel, func(ctx context.Context, i int) (string, error) {
		changed, outcomes, err := htmlpatch.PatchFile(files[i], rules, keep)
		if err != nil {
			return "", err
		}
		var notes []string
		for _, o := range outcomes {
			if o.Missing() {
				notes = append(notes, fmt.Sprintf("rule %q not found", o.Rule))
			}
		}
		if changed {
			notes = append(notes, "updated")
		} else {
			notes = append(notes, "unchanged")
		}
		return strings.Join(notes, ", "), nil
	})
}

// runJobs 依次执行任务文件中的抠图与替换任务
func runJobs(ctx context.Context, jobs *sttypes.Jobs) error {
	var errs []error

	if len(jobs.Matte) > 0 {
		log.Printf("Processing %d images...", len(jobs.Matte))
		names := make([]string, len(jobs.Matte))
		for i, j := range jobs.Matte {
			names[i] = j.Input
		}
		errs = append(errs, runBatch(ctx, names, jobs.Parallel, func(ctx context.Context, i int) (string, error) {
			return matteImage(ctx, jobs.Matte[i])
		}))
	}

	for i, p := range jobs.Patch {
		if ctx.Err() != nil {
			break
		}
		log.Printf("Applying patch job %d...", i)
		files, err := htmlpatch.ResolveFiles(p.Dir, p.Files, p.Glob)
		if err != nil {
			errs = append(errs, fmt.Errorf("patch[%d]: %w", i, err))
			continue
		}
		rules, err := htmlpatch.Compile(p.Rules)
		if err != nil {
			errs = append(errs, fmt.Errorf("patch[%d]: %w", i, err))
			continue
		}
		errs = append(errs, patchFiles(ctx, files, rules, p.Backup, jobs.Parallel))
	}
	return errors.Join(errs...)
}
