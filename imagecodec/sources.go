package imagecodec

import (
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"github.com/samber/lo"
)

var convertible = map[string]bool{".jpg": true, ".jpeg": true, ".png": true}

// IsConvertible 是否是可转换为 WebP 的源图片
func IsConvertible(path string) bool {
	return convertible[strings.ToLower(filepath.Ext(path))]
}

// FindImages 递归查找可转换的图片，跳过 skip 中列出的文件名
func FindImages(root string, skip []string) ([]string, error) {
	skipped := make(map[string]bool, len(skip))
	for _, s := range skip {
		skipped[s] = true
	}

	var images []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || skipped[d.Name()] || !IsConvertible(path) {
			return nil
		}
		images = append(images, path)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(images)
	return images, nil
}

// WebPPath 把扩展名替换为 .webp
func WebPPath(path string) string {
	return strings.TrimSuffix(path, filepath.Ext(path)) + ".webp"
}

// SharedWebPTargets 找出会写到同一个 .webp 的源图片（如 logo.jpg 与 logo.png），按目标路径分组
func SharedWebPTargets(images []string) map[string][]string {
	groups := lo.GroupBy(images, WebPPath)
	return lo.PickBy(groups, func(_ string, srcs []string) bool {
		return len(srcs) > 1
	})
}
