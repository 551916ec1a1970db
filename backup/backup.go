package backup

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"

	"github.com/klauspost/compress/zstd"
)

// Suffix 备份文件后缀
const Suffix = ".bak.zst"

// Path 返回 path 对应的备份文件路径
func Path(path string) string {
	return path + Suffix
}

// Save 把 path 压缩备份到 path.bak.zst，返回备份路径
func Save(path string) (string, error) {
	in, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer in.Close()

	out := Path(path)
	err = Replace(out, false, func(w io.Writer) error {
		enc, err := zstd.NewWriter(w, zstd.WithEncoderConcurrency(runtime.NumCPU()))
		if err != nil {
			return err
		}
		if _, err := io.Copy(enc, in); err != nil {
			enc.Close()
			return err
		}
		return enc.Close()
	})
	if err != nil {
		return "", fmt.Errorf("backup %s: %w", path, err)
	}
	return out, nil
}

// Restore 用备份覆盖 path
func Restore(path string) error {
	f, err := os.Open(Path(path))
	if err != nil {
		return err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return fmt.Errorf("restore %s: %w", path, err)
	}
	defer dec.Close()

	return Replace(path, false, func(w io.Writer) error {
		_, err := io.Copy(w, dec)
		return err
	})
}

// Replace 先写同目录的临时文件，成功后再重命名覆盖 path。
// keep 为 true 且 path 已存在时先做备份。write 失败时 path 保持原样。
func Replace(path string, keep bool, write func(w io.Writer) error) error {
	mode := fs.FileMode(0644)
	if st, err := os.Stat(path); err == nil {
		mode = st.Mode().Perm()
		if keep {
			if _, err := Save(path); err != nil {
				return err
			}
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if err := write(tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), mode); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
