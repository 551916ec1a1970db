package linkcheck

import (
	"context"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	sttypes "sitetools/type"
)

// 问题类型
const (
	BrokenLink       = "Broken Link"
	BrokenImage      = "Broken Image"
	BrokenScript     = "Broken Script"
	BrokenStylesheet = "Broken Stylesheet"
	MissingMetaDesc  = "Missing Meta Description"
	MissingTitleTag  = "Missing Title Tag"
)

type refKind struct {
	issue    string
	re       *regexp.Regexp
	external []string
	// suffix 非空时只检查该后缀的目标
	suffix string
}

var kinds = []refKind{
	{
		issue:    BrokenLink,
		re:       regexp.MustCompile(`<a\s+(?:[^>]*?\s+)?href=["']([^"']*)["']`),
		external: []string{"http", "mailto:", "tel:", "#"},
	},
	{
		issue:    BrokenImage,
		re:       regexp.MustCompile(`<img\s+(?:[^>]*?\s+)?src=["']([^"']*)["']`),
		external: []string{"http", "data:"},
	},
	{
		issue:    BrokenScript,
		re:       regexp.MustCompile(`<script\s+(?:[^>]*?\s+)?src=["']([^"']*)["']`),
		external: []string{"http"},
	},
	{
		issue:    BrokenStylesheet,
		re:       regexp.MustCompile(`<link\s+(?:[^>]*?\s+)?href=["']([^"']*)["']`),
		external: []string{"http"},
		suffix:   ".css",
	},
}

// StripRef 去掉查询串与锚点
func StripRef(ref string) string {
	if i := strings.IndexAny(ref, "?#"); i >= 0 {
		return ref[:i]
	}
	return ref
}

// Resolve 把引用解析为文件路径：以 / 开头的相对站点根目录，其余相对 dir
func Resolve(siteRoot, dir, ref string) string {
	ref = StripRef(ref)
	if strings.HasPrefix(ref, "/") {
		return filepath.Join(siteRoot, filepath.FromSlash(strings.TrimLeft(ref, "/")))
	}
	return filepath.Join(dir, filepath.FromSlash(ref))
}

// Exists 判断引用指向的文件是否存在，原样不存在时再尝试 URL 解码后的路径
func Exists(siteRoot, dir, ref string) bool {
	p := Resolve(siteRoot, dir, ref)
	if _, err := os.Stat(p); err == nil {
		return true
	}
	unescaped, err := url.PathUnescape(StripRef(ref))
	if err != nil {
		return false
	}
	_, err = os.Stat(Resolve(siteRoot, dir, unescaped))
	return err == nil
}

// CheckContent 检查一段 HTML 中的本地引用与 SEO 标签
func CheckContent(siteRoot, dir, content string) []sttypes.LinkIssue {
	var issues []sttypes.LinkIssue
	for _, k := range kinds {
		for _, m := range k.re.FindAllStringSubmatch(content, -1) {
			ref := m[1]
			if ref == "" || hasAnyPrefix(ref, k.external) {
				continue
			}
			if k.suffix != "" && !strings.HasSuffix(StripRef(ref), k.suffix) {
				continue
			}
			if !Exists(siteRoot, dir, ref) {
				issues = append(issues, sttypes.LinkIssue{Kind: k.issue, Ref: ref})
			}
		}
	}
	if !strings.Contains(content, `<meta name="description"`) {
		issues = append(issues, sttypes.LinkIssue{Kind: MissingMetaDesc})
	}
	if !strings.Contains(content, "<title>") {
		issues = append(issues, sttypes.LinkIssue{Kind: MissingTitleTag})
	}
	return lo.Uniq(issues)
}

// CheckFile 检查单个 HTML 文件
func CheckFile(siteRoot, file string) (sttypes.LinkReport, error) {
	raw, err := os.ReadFile(file)
	if err != nil {
		return sttypes.LinkReport{File: file}, err
	}
	return sttypes.LinkReport{
		File:   file,
		Issues: CheckContent(siteRoot, filepath.Dir(file), string(raw)),
	}, nil
}

// FindHTML 列出 root 下的 HTML 文件，recursive 为 false 时只看顶层
func FindHTML(root string, recursive bool) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && (!recursive || strings.HasPrefix(d.Name(), ".") || d.Name() == "node_modules") {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasSuffix(d.Name(), ".html") {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

// CheckDir 并发检查目录下所有 HTML 文件，报告按文件顺序返回。
// 单个文件读取失败时记录在对应位置，不影响其他文件。
func CheckDir(ctx context.Context, root string, recursive bool, parallel int) ([]sttypes.LinkReport, []error, error) {
	files, err := FindHTML(root, recursive)
	if err != nil {
		return nil, nil, err
	}
	if parallel <= 0 {
		parallel = 1
	}

	reports := make([]sttypes.LinkReport, len(files))
	errs := make([]error, len(files))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(parallel)
	for i, f := range files {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			reports[i], errs[i] = CheckFile(root, f)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return reports, errs, nil
}

func hasAnyPrefix(s string, prefixes []string) bool {
	return lo.SomeBy(prefixes, func(p string) bool {
		return strings.HasPrefix(s, p)
	})
}
