package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/alecthomas/kong"

	"sitetools/backup"
	"sitetools/htmlpatch"
	"sitetools/imagecodec"
	"sitetools/jobfile"
	"sitetools/linkcheck"
	"sitetools/publish"
	"sitetools/regionmatte"
	sttypes "sitetools/type"
)

const desc = `Maintenance tools for a static site: background matting, image optimization, HTML patching and link checking.`

type cli struct {
	Matte     matteCmd     `cmd:"" help:"从种子点连通地抠掉背景"`
	Threshold thresholdCmd `cmd:"" help:"全图阈值擦除背景（旧做法）"`
	Trim      trimCmd      `cmd:"" help:"裁掉纯色边框"`
	HeaderBg  headerBgCmd  `cmd:"" name:"header-bg" help:"给透明或偏白的像素填充页头背景色"`
	Outline   outlineCmd   `cmd:"" help:"把不透明部分描成浅色/深色两份 SVG"`
	Optimize  optimizeCmd  `cmd:"" help:"把 assets 下的 jpg/png 转为 WebP 并更新 HTML 引用"`
	Patch     patchCmd     `cmd:"" help:"对 HTML 文件做字面块或正则替换"`
	Links     linksCmd     `cmd:"" help:"检查 HTML 中的本地链接与 SEO 标签"`
	Jobs      jobsCmd      `cmd:"" help:"执行 JSON 任务文件"`
	Restore   restoreCmd   `cmd:"" help:"从 .bak.zst 备份恢复文件"`
	Publish   publishCmd   `cmd:"" help:"上传站点文件到 S3"`
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)

	var c cli
	kctx := kong.Parse(&c,
		kong.Name("sitetools"),
		kong.Description(desc),
		kong.UsageOnError(),
		kong.BindTo(ctx, (*context.Context)(nil)),
	)
	err := kctx.Run()
	stop()
	kctx.FatalIfErrorf(err)
}

type matteCmd struct {
	Inputs    []string `arg:"" type:"existingfile" help:"输入图片"`
	Output    string   `short:"o" help:"输出路径，只能用于单个输入；默认覆盖输入"`
	Seed      []string `sep:"none" help:"种子坐标 x,y，可重复；默认四个角"`
	Tolerance int      `default:"30" help:"每个通道允许的最大差值"`
	Reference string   `help:"背景参考色 #rrggbb；默认取第一个种子处的颜色"`
	ClearRGB  bool     `name:"clear-rgb" help:"同时把被抠掉像素的 RGB 置零"`
	MaxWidth  int      `help:"抠图前先缩放到的最大宽度，0 表示不缩放"`
	WebP      bool     `name:"webp" help:"输出 WebP"`
	Quality   int      `default:"80" help:"WebP 质量"`
	Backup    bool     `help:"覆盖前保存 .bak.zst 备份"`
	Parallel  int      `default:"4" help:"并行处理的最大协程数"`
}

func (c *matteCmd) Run(ctx context.Context) error {
	seeds, err := parseSeeds(c.Seed)
	if err != nil {
		return err
	}

	jobs := &sttypes.Jobs{Parallel: c.Parallel}
	for _, in := range c.Inputs {
		out, err := outputPath(in, c.Output, len(c.Inputs))
		if err != nil {
			return err
		}
		tol, q := c.Tolerance, c.Quality
		job := sttypes.MatteJob{
			Input:     in,
			Output:    out,
			Tolerance: &tol,
			Seeds:     seeds,
			Reference: c.Reference,
			ClearRGB:  c.ClearRGB,
			MaxWidth:  c.MaxWidth,
			WebP:      c.WebP,
			Quality:   &q,
			Backup:    c.Backup,
		}
		if err := jobfile.NormalizeMatte(&job, ""); err != nil {
			return fmt.Errorf("%s: %w", in, err)
		}
		jobs.Matte = append(jobs.Matte, job)
	}
	return runJobs(ctx, jobs)
}

// parseSeeds 解析 "x,y" 形式的种子坐标
func parseSeeds(raw []string) ([][]int, error) {
	seeds := make([][]int, 0, len(raw))
	for _, s := range raw {
		parts := strings.Split(s, ",")
		if len(parts) != 2 {
			return nil, fmt.Errorf("%w: seed %q is not x,y", regionmatte.ErrInvalidArgument, s)
		}
		x, errX := strconv.Atoi(strings.TrimSpace(parts[0]))
		y, errY := strconv.Atoi(strings.TrimSpace(parts[1]))
		if errX != nil || errY != nil {
			return nil, fmt.Errorf("%w: seed %q is not x,y", regionmatte.ErrInvalidArgument, s)
		}
		seeds = append(seeds, []int{x, y})
	}
	return seeds, nil
}

type thresholdCmd struct {
	Inputs    []string `arg:"" type:"existingfile" help:"输入图片"`
	Output    string   `short:"o" help:"输出路径，只能用于单个输入；默认覆盖输入"`
	Mode      string   `enum:"whitish,checkerboard,color" default:"whitish" help:"判定方式：whitish、checkerboard 或 color"`
	Level     uint8    `default:"240" help:"whitish/checkerboard 的白色阈值"`
	Grey      uint8    `default:"200" help:"checkerboard 的灰色阈值"`
	Spread    int      `default:"10" help:"checkerboard 灰色方块允许的通道差"`
	Reference string   `default:"#ffffff" help:"color 模式的参考色"`
	Tolerance int      `default:"30" help:"color 模式的通道容差"`
	Backup    bool     `help:"覆盖前保存 .bak.zst 备份"`
	Parallel  int      `default:"4" help:"并行处理的最大协程数"`
}

func (c *thresholdCmd) predicate() (regionmatte.Predicate, error) {
	switch c.Mode {
	case "checkerboard":
		return regionmatte.Checkerboard(c.Level, c.Grey, c.Spread), nil
	case "color":
		ref, err := jobfile.ParseColor(c.Reference)
		if err != nil {
			return nil, err
		}
		if c.Tolerance < 0 {
			return nil, fmt.Errorf("%w: tolerance %d is negative", regionmatte.ErrInvalidArgument, c.Tolerance)
		}
		return regionmatte.Background(ref, c.Tolerance), nil
	}
	return regionmatte.Whitish(c.Level), nil
}

func (c *thresholdCmd) Run(ctx context.Context) error {
	pred, err := c.predicate()
	if err != nil {
		return err
	}
	return eachImage(ctx, c.Inputs, c.Output, c.Parallel, func(ctx context.Context, in, out string) (string, error) {
		return editImage(ctx, in, out, c.Backup, func(img *image.NRGBA) int {
			return regionmatte.Threshold(img, pred, regionmatte.Erased)
		})
	})
}

type trimCmd struct {
	Inputs    []string `arg:"" type:"existingfile" help:"输入图片"`
	Output    string   `short:"o" help:"输出路径，只能用于单个输入；默认覆盖输入"`
	Tolerance int      `default:"100" help:"与左上角颜色的最大差值"`
	Backup    bool     `help:"覆盖前保存 .bak.zst 备份"`
	Parallel  int      `default:"4" help:"并行处理的最大协程数"`
}

func (c *trimCmd) Run(ctx context.Context) error {
	return eachImage(ctx, c.Inputs, c.Output, c.Parallel, func(ctx context.Context, in, out string) (string, error) {
		return trimImage(ctx, in, out, c.Tolerance, c.Backup)
	})
}

type headerBgCmd struct {
	Inputs   []string `arg:"" type:"existingfile" help:"输入图片"`
	Output   string   `short:"o" help:"输出路径，只能用于单个输入；默认覆盖输入"`
	Fill     string   `default:"#ffffff" help:"填充色"`
	Alpha    uint8    `default:"204" help:"填充色的 alpha"`
	Level    uint8    `default:"200" help:"偏白判定阈值"`
	Backup   bool     `help:"覆盖前保存 .bak.zst 备份"`
	Parallel int      `default:"4" help:"并行处理的最大协程数"`
}

func (c *headerBgCmd) Run(ctx context.Context) error {
	fill, err := jobfile.ParseColor(c.Fill)
	if err != nil {
		return err
	}
	fill.A = c.Alpha
	return eachImage(ctx, c.Inputs, c.Output, c.Parallel, func(ctx context.Context, in, out string) (string, error) {
		return editImage(ctx, in, out, c.Backup, func(img *image.NRGBA) int {
			return regionmatte.FillBackground(img, fill, c.Level)
		})
	})
}

// eachImage 为每个输入确定输出路径并批量执行 fn
func eachImage(ctx context.Context, inputs []string, output string, parallel int, fn func(ctx context.Context, in, out string) (string, error)) error {
	outs := make([]string, len(inputs))
	for i, in := range inputs {
		out, err := outputPath(in, output, len(inputs))
		if err != nil {
			return err
		}
		outs[i] = out
	}
	return runBatch(ctx, inputs, parallel, func(ctx context.Context, i int) (string, error) {
		return fn(ctx, inputs[i], outs[i])
	})
}

type outlineCmd struct {
	Inputs   []string `arg:"" type:"existingfile" help:"输入图片（带透明背景）"`
	Output   string   `short:"o" help:"输出文件名前缀，只能用于单个输入；默认与输入同名"`
	Cutoff   uint8    `default:"128" help:"alpha 不低于该值视为主体"`
	Light    string   `default:"#212121" help:"浅色背景版本的填充色"`
	Dark     string   `default:"#ffffff" help:"深色背景版本（_dark）的填充色"`
	Parallel int      `default:"4" help:"并行处理的最大协程数"`
}

func (c *outlineCmd) Run(ctx context.Context) error {
	if c.Output != "" && len(c.Inputs) > 1 {
		return errors.New("--output needs exactly one input")
	}
	return runBatch(ctx, c.Inputs, c.Parallel, func(ctx context.Context, i int) (string, error) {
		in := c.Inputs[i]
		base := c.Output
		if base == "" {
			base = strings.TrimSuffix(in, filepath.Ext(in))
		}
		return outlineImage(in, base, c.Cutoff, c.Light, c.Dark)
	})
}

type optimizeCmd struct {
	Root      string   `arg:"" optional:"" default:"." type:"existingdir" help:"站点根目录（包含 assets/ 与 HTML 文件）"`
	MaxWidth  int      `default:"1920" help:"内容图片最大宽度"`
	IconWidth int      `default:"512" help:"icons 目录下图片最大宽度"`
	Quality   int      `default:"80" help:"WebP 质量"`
	Skip      []string `default:"favicon.png" help:"保持原样的文件名"`
	Rewrite   bool     `default:"true" negatable:"" help:"更新 HTML 中的图片引用"`
	Probe     bool     `help:"用 ffprobe 报告输出尺寸"`
	Backup    bool     `help:"覆盖前保存 .bak.zst 备份"`
	Parallel  int      `default:"4" help:"并行处理的最大协程数"`
}

func (c *optimizeCmd) Run(ctx context.Context) error {
	return optimizeSite(ctx, optimizeOptions{
		Root:      c.Root,
		MaxWidth:  c.MaxWidth,
		IconWidth: c.IconWidth,
		Quality:   imagecodec.ClampQuality(c.Quality),
		Skip:      c.Skip,
		Rewrite:   c.Rewrite,
		Probe:     c.Probe,
		Backup:    c.Backup,
		Parallel:  c.Parallel,
	})
}

type patchCmd struct {
	Files    []string `arg:"" optional:"" help:"要修改的 HTML 文件（相对 --dir）"`
	Dir      string   `default:"." type:"existingdir" help:"文件与 glob 的基准目录"`
	Glob     string   `help:"额外匹配的文件，如 *.html"`
	Literal  string   `help:"要替换的字面块"`
	Pattern  string   `help:"要替换的正则表达式"`
	Replace  string   `help:"替换内容，正则模式下可引用分组，换行写作 nl 占位符"`
	Optional bool     `help:"未匹配时不报告"`
	Backup   bool     `help:"覆盖前保存 .bak.zst 备份"`
	Parallel int      `default:"4" help:"并行处理的最大协程数"`
}

func (c *patchCmd) Run(ctx context.Context) error {
	rules, err := htmlpatch.Compile([]sttypes.PatchRule{{
		Name:     "cli",
		Literal:  c.Literal,
		Pattern:  c.Pattern,
		Replace:  c.Replace,
		Optional: c.Optional,
	}})
	if err != nil {
		return err
	}
	files, err := htmlpatch.ResolveFiles(c.Dir, c.Files, c.Glob)
	if err != nil {
		return err
	}
	return patchFiles(ctx, files, rules, c.Backup, c.Parallel)
}

type linksCmd struct {
	Root      string `arg:"" optional:"" default:"." type:"existingdir" help:"站点根目录"`
	Recursive bool   `short:"r" help:"包含子目录"`
	JSON      bool   `name:"json" help:"以 JSON 输出报告"`
	Parallel  int    `default:"4" help:"并行处理的最大协程数"`
}

func (c *linksCmd) Run(ctx context.Context) error {
	reports, errs, err := linkcheck.CheckDir(ctx, c.Root, c.Recursive, c.Parallel)
	if err != nil {
		return err
	}

	issues, failed := 0, 0
	for i, r := range reports {
		if errs[i] != nil {
			failed++
			log.Printf("%s: %v", r.File, errs[i])
			continue
		}
		issues += len(r.Issues)
		if c.JSON {
			continue
		}
		for _, is := range r.Issues {
			if is.Ref == "" {
				log.Printf("%s: %s", r.File, is.Kind)
			} else {
				log.Printf("%s: %s: %s", r.File, is.Kind, is.Ref)
			}
		}
	}
	if c.JSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(reports); err != nil {
			return err
		}
	}

	log.Printf("Checked %d files, found %d issues", len(reports), issues)
	if failed > 0 || issues > 0 {
		return fmt.Errorf("%d issues, %d of %d files unreadable", issues, failed, len(reports))
	}
	return nil
}

type jobsCmd struct {
	File     string `arg:"" type:"existingfile" help:"JSON 任务文件"`
	Parallel int    `help:"覆盖任务文件中的 parallel"`
}

func (c *jobsCmd) Run(ctx context.Context) error {
	jobs, err := jobfile.Load(c.File)
	if err != nil {
		return err
	}
	if c.Parallel > 0 {
		jobs.Parallel = c.Parallel
	}
	return runJobs(ctx, jobs)
}

type restoreCmd struct {
	Files []string `arg:"" help:"要恢复的原文件路径（不带 .bak.zst）"`
}

func (c *restoreCmd) Run(ctx context.Context) error {
	return runBatch(ctx, c.Files, 1, func(ctx context.Context, i int) (string, error) {
		if err := backup.Restore(c.Files[i]); err != nil {
			return "", err
		}
		return "restored from " + backup.Path(c.Files[i]), nil
	})
}

type publishCmd struct {
	Dir      string   `arg:"" type:"existingdir" help:"要上传的目录"`
	Bucket   string   `required:"" help:"S3 bucket"`
	Prefix   string   `help:"对象键前缀"`
	Region   string   `env:"AWS_REGION" help:"AWS 区域"`
	Profile  string   `env:"AWS_PROFILE" help:"共享配置中的 profile"`
	Ext      []string `default:"html,css,js,webp,svg,png,ico" help:"要上传的扩展名"`
	Parallel int      `default:"4" help:"并行上传的最大协程数"`
}

func (c *publishCmd) Run(ctx context.Context) error {
	up, err := publish.NewUploader(c.Region, c.Profile)
	if err != nil {
		return err
	}
	log.Printf("Uploading %s to s3://%s/%s...", c.Dir, c.Bucket, c.Prefix)
	results, err := publish.UploadDir(ctx, up, c.Dir, c.Bucket, c.Prefix, c.Ext, c.Parallel)
	if err != nil {
		return err
	}
	return summarize(results)
}
