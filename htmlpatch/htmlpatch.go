package htmlpatch

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/samber/lo"

	"sitetools/backup"
	sttypes "sitetools/type"
)

// NewlineToken 替换文本中的换行占位符，展开为文件自身的换行符
const NewlineToken = "${nl}"

// Rule 编译后的替换规则
type Rule struct {
	Name     string
	Literal  string
	Pattern  *regexp.Regexp
	Replace  string
	Optional bool
	// ReplaceFunc 非空时代替 Replace，参数为整体匹配与各分组
	ReplaceFunc func(groups []string) string
}

// Outcome 单条规则在一个文件上的执行结果
type Outcome struct {
	Rule     string
	Count    int
	Optional bool
	// Stripped 字面块只在去掉首尾空白后才匹配上
	Stripped bool
}

// Missing 必需规则未匹配
func (o Outcome) Missing() bool {
	return o.Count == 0 && !o.Optional
}

// Compile 把任务文件中的规则编译为 Rule
func Compile(defs []sttypes.PatchRule) ([]Rule, error) {
	rules := make([]Rule, 0, len(defs))
	for i, s := range defs {
		name := s.Name
		if name == "" {
			name = fmt.Sprintf("rule %d", i)
		}
		r := Rule{Name: name, Literal: s.Literal, Replace: s.Replace, Optional: s.Optional}
		switch {
		case s.Literal != "" && s.Pattern != "":
			return nil, fmt.Errorf("%s: literal and pattern are exclusive", name)
		case s.Pattern != "":
			re, err := regexp.Compile(s.Pattern)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", name, err)
			}
			r.Pattern = re
		case s.Literal == "":
			return nil, fmt.Errorf("%s: empty rule", name)
		}
		rules = append(rules, r)
	}
	return rules, nil
}

// DetectNewline 文件中出现 \r\n 时返回 \r\n，否则返回 \n
func DetectNewline(content string) string {
	if strings.Contains(content, "\r\n") {
		return "\r\n"
	}
	return "\n"
}

func adaptNewlines(s, nl string) string {
	s = strings.ReplaceAll(s, NewlineToken, nl)
	if nl == "\r\n" && !strings.Contains(s, "\r\n") {
		s = strings.ReplaceAll(s, "\n", "\r\n")
	}
	return s
}

// Apply 依次在内存中应用所有规则
func Apply(content string, rules []Rule) (string, []Outcome) {
	nl := DetectNewline(content)
	outcomes := make([]Outcome, 0, len(rules))
	for _, r := range rules {
		o := Outcome{Rule: r.Name, Optional: r.Optional}
		if r.Pattern != nil {
			content, o.Count = replacePattern(content, r, nl)
		} else {
			content, o.Count, o.Stripped = replaceLiteral(content, r, nl)
		}
		outcomes = append(outcomes, o)
	}
	return content, outcomes
}

func replaceLiteral(content string, r Rule, nl string) (string, int, bool) {
	block := adaptNewlines(r.Literal, nl)
	repl := adaptNewlines(r.Replace, nl)
	if n := strings.Count(content, block); n > 0 {
		return strings.ReplaceAll(content, block, repl), n, false
	}
	stripped := strings.TrimSpace(block)
	if stripped == "" || stripped == block {
		return content, 0, false
	}
	n := strings.Count(content, stripped)
	if n == 0 {
		return content, 0, false
	}
	return strings.ReplaceAll(content, stripped, strings.TrimSpace(repl)), n, true
}

func replacePattern(content string, r Rule, nl string) (string, int) {
	matches := r.Pattern.FindAllStringSubmatchIndex(content, -1)
	if len(matches) == 0 {
		return content, 0
	}
	tmpl := strings.ReplaceAll(r.Replace, NewlineToken, nl)

	var b strings.Builder
	last := 0
	for _, m := range matches {
		b.WriteString(content[last:m[0]])
		if r.ReplaceFunc != nil {
			groups := make([]string, len(m)/2)
			for i := range groups {
				if m[2*i] >= 0 {
					groups[i] = content[m[2*i]:m[2*i+1]]
				}
			}
			b.WriteString(r.ReplaceFunc(groups))
		} else {
			b.Write(r.Pattern.ExpandString(nil, tmpl, content, m))
		}
		last = m[1]
	}
	b.WriteString(content[last:])
	return b.String(), len(matches)
}

// PatchFile 读取整个文件、内存中替换、有变化时整体写回。
// 任一步失败时文件保持原样。
func PatchFile(file string, rules []Rule, keep bool) (bool, []Outcome, error) {
	raw, err := os.ReadFile(file)
	if err != nil {
		return false, nil, err
	}
	content := string(raw)
	patched, outcomes := Apply(content, rules)
	if patched == content {
		return false, outcomes, nil
	}
	err = backup.Replace(file, keep, func(w io.Writer) error {
		_, err := io.WriteString(w, patched)
		return err
	})
	if err != nil {
		return false, outcomes, err
	}
	return true, outcomes, nil
}

// ResolveFiles 合并显式文件列表与 glob 结果（相对 dir），去重排序
func ResolveFiles(dir string, files []string, glob string) ([]string, error) {
	var out []string
	for _, f := range files {
		if !filepath.IsAbs(f) {
			f = filepath.Join(dir, f)
		}
		out = append(out, f)
	}
	if glob != "" {
		pattern := glob
		if !filepath.IsAbs(pattern) {
			pattern = filepath.Join(dir, pattern)
		}
		matched, err := filepath.Glob(pattern)
		if err != nil {
			return nil, fmt.Errorf("glob %q: %w", glob, err)
		}
		out = append(out, matched...)
	}
	if len(out) == 0 {
		return nil, errors.New("no files to patch")
	}
	out = lo.Uniq(out)
	sort.Strings(out)
	return out, nil
}

var imageRef = regexp.MustCompile(`(?i)(assets/(?:images|icons)/[^"'>\s]+?)\.(jpg|jpeg|png)`)

// WebPReferenceRule 把 HTML 中 assets/images、assets/icons 下的 jpg/png 引用改为 .webp，
// skip 中的文件名（如 favicon.png）保持不变
func WebPReferenceRule(skip []string) Rule {
	return Rule{
		Name:     "webp references",
		Pattern:  imageRef,
		Optional: true,
		ReplaceFunc: func(g []string) string {
			if lo.Contains(skip, path.Base(g[1])+"."+g[2]) {
				return g[0]
			}
			return g[1] + ".webp"
		},
	}
}
