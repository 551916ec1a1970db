package publish

import (
	"context"
	"io/fs"
	"mime"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	sttypes "sitetools/type"
)

// Uploader s3manager.Uploader 中用到的部分
type Uploader interface {
	UploadWithContext(ctx aws.Context, input *s3manager.UploadInput, opts ...func(*s3manager.Uploader)) (*s3manager.UploadOutput, error)
}

// NewUploader 按区域与共享配置 profile 创建 S3 上传器
func NewUploader(region, profile string) (*s3manager.Uploader, error) {
	opts := session.Options{
		Profile:           profile,
		SharedConfigState: session.SharedConfigEnable,
	}
	if region != "" {
		opts.Config = aws.Config{Region: aws.String(region)}
	}
	sess, err := session.NewSessionWithOptions(opts)
	if err != nil {
		return nil, err
	}
	return s3manager.NewUploader(sess), nil
}

// ContentType 根据扩展名推断 Content-Type
func ContentType(name string) string {
	if t := mime.TypeByExtension(strings.ToLower(filepath.Ext(name))); t != "" {
		return t
	}
	return "application/octet-stream"
}

// Key 生成对象键：prefix/相对路径，统一使用正斜杠
func Key(prefix, rel string) string {
	rel = filepath.ToSlash(rel)
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return rel
	}
	return path.Join(prefix, rel)
}

// FindFiles 列出 dir 下扩展名在 exts 中的文件（相对路径，已排序），exts 为空表示全部
func FindFiles(dir string, exts []string) ([]string, error) {
	exts = lo.Map(exts, func(e string, _ int) string {
		e = strings.ToLower(e)
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		return e
	})

	var files []string
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if p != dir && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if len(exts) > 0 && !lo.Contains(exts, strings.ToLower(filepath.Ext(p))) {
			return nil
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		files = append(files, rel)
		return nil
	})
	sort.Strings(files)
	return files, err
}

// UploadDir 并发上传 dir 下匹配的文件。单个文件失败记录在结果中，其余继续；
// 返回的 error 只表示目录无法遍历或 ctx 被取消。
func UploadDir(ctx context.Context, up Uploader, dir, bucket, prefix string, exts []string, parallel int) ([]sttypes.Result, error) {
	files, err := FindFiles(dir, exts)
	if err != nil {
		return nil, err
	}
	if parallel <= 0 {
		parallel = 1
	}

	results := make([]sttypes.Result, len(files))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(parallel)
	for i, rel := range files {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			key := Key(prefix, rel)
			err := uploadFile(ctx, up, filepath.Join(dir, rel), bucket, key)
			results[i] = sttypes.Result{Name: rel, Note: "s3://" + bucket + "/" + key, Err: err}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}

func uploadFile(ctx context.Context, up Uploader, file, bucket, key string) error {
	f, err := os.Open(file)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = up.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		Body:        f,
		ContentType: aws.String(ContentType(file)),
	})
	return err
}
