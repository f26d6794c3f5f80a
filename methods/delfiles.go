package methods

import (
	"errors"
	"io/fs"
	"path/filepath"
	"strings"
)

var errFound = errors.New("found")

// FindShpFile 在目录（含子目录）中查找第一个指定扩展名的文件
func FindShpFile(dir string, ex string) *string {
	var result string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.EqualFold(filepath.Ext(d.Name()), ex) {
			result = path
			return errFound
		}
		return nil
	})
	if !errors.Is(err, errFound) {
		return nil
	}
	return &result
}
