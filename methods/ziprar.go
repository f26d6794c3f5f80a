package methods

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	kzip "github.com/klauspost/compress/zip"
	"github.com/mholt/archiver/v3"
)

// GeometryExts 发布到图层时保留的矢量文件
var GeometryExts = []string{".shp", ".shx", ".dbf", ".prj"}

// ProbeExts 探测时需要解出的文件，包含编码文件
var ProbeExts = []string{".shp", ".shx", ".dbf", ".prj", ".cpg"}

var ErrEntryNotFound = errors.New("archive entry not found")

// MatchExt 文件扩展名匹配（忽略大小写）
func MatchExt(name string, exts []string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return IsStringInSlice(ext, exts)
}

// ExtractEntries 把压缩包中匹配扩展名的文件逐个解压到 dest，扩展名统一转为小写
func ExtractEntries(src, dest string, exts []string) (int, error) {
	count := 0
	z := archiver.NewZip()
	err := z.Walk(src, func(f archiver.File) error {
		if f.IsDir() {
			return nil
		}
		name := entryName(f)
		if !MatchExt(name, exts) {
			return nil
		}
		name = strings.TrimSuffix(name, filepath.Ext(name)) + strings.ToLower(filepath.Ext(name))
		if err := extractFile(f, name, dest); err != nil {
			return err
		}
		count++
		return nil
	})
	if err != nil {
		return count, err
	}
	return count, nil
}

// entryName 压缩包内的完整路径，f.Name() 只有文件名
func entryName(f archiver.File) string {
	switch h := f.Header.(type) {
	case kzip.FileHeader:
		return h.Name
	case zip.FileHeader:
		return h.Name
	}
	return f.Name()
}

func extractFile(r io.Reader, name string, dest string) error {
	fpath := filepath.Join(dest, name)

	// 防止解压到目标目录之外
	if !strings.HasPrefix(fpath, filepath.Clean(dest)+string(os.PathSeparator)) {
		return fmt.Errorf("%s: illegal file path", fpath)
	}
	if err := os.MkdirAll(filepath.Dir(fpath), os.ModePerm); err != nil {
		return err
	}
	outFile, err := os.OpenFile(fpath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	_, err = io.Copy(outFile, r)
	if cerr := outFile.Close(); err == nil {
		err = cerr
	}
	return err
}

// FilterZip 把 src 中匹配扩展名的条目原样拷贝到新的压缩包，不解压内容
func FilterZip(src string, dst io.Writer, exts []string) ([]string, error) {
	reader, err := zip.OpenReader(src)
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	zipWriter := zip.NewWriter(dst)
	var names []string
	for _, file := range reader.File {
		if file.FileInfo().IsDir() || !MatchExt(file.Name, exts) {
			continue
		}
		if err := zipWriter.Copy(file); err != nil {
			zipWriter.Close()
			return names, fmt.Errorf("copy %s: %w", file.Name, err)
		}
		names = append(names, file.Name)
	}
	if err := zipWriter.Close(); err != nil {
		return names, err
	}
	return names, nil
}

// FilterZipTo 同 FilterZip，输出到文件
func FilterZipTo(src string, outpath string, exts []string) ([]string, error) {
	zipFile, err := os.Create(outpath)
	if err != nil {
		return nil, err
	}
	names, err := FilterZip(src, zipFile, exts)
	if cerr := zipFile.Close(); err == nil {
		err = cerr
	}
	return names, err
}

// CopyZipEntry 只读取压缩包中的一个条目写入 w
func CopyZipEntry(src string, name string, w io.Writer) (int64, error) {
	reader, err := zip.OpenReader(src)
	if err != nil {
		return 0, err
	}
	defer reader.Close()

	for _, file := range reader.File {
		if file.Name != name {
			continue
		}
		rc, err := file.Open()
		if err != nil {
			return 0, err
		}
		defer rc.Close()
		return io.Copy(w, rc)
	}
	return 0, ErrEntryNotFound
}
