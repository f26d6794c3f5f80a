// service/file_service.go
package services

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/GrainArc/RasterImport/methods"
	"github.com/GrainArc/RasterImport/models"
)

// FileService 上传目录的只读访问
type FileService struct {
	RootPath string // 限制访问的根目录
	repo     *RasterRepository
}

func NewFileService(rootPath string, repo *RasterRepository) *FileService {
	// 确保根路径是绝对路径
	absRoot, _ := filepath.Abs(rootPath)
	return &FileService{
		RootPath: absRoot,
		repo:     repo,
	}
}

// Resolve 返回记录某日期键对应的存储文件
func (s *FileService) Resolve(rec *models.RasterRecord, day string) (string, error) {
	name := rec.FileFor(day)
	if name == "" {
		return "", fmt.Errorf("%w: record %d has no file for %s", ErrNotFound, rec.ID, day)
	}
	path := filepath.Join(s.RootPath, name)
	if !s.isPathSafe(path) {
		return "", os.ErrPermission
	}
	return path, nil
}

// TractorImage 从图层某日的压缩包中取出一张图片，只解压这一个条目
func (s *FileService) TractorImage(layer, day, image string, w io.Writer) (int64, error) {
	rec, err := s.repo.FindByLayerName(layer)
	if err != nil {
		return 0, err
	}
	path, err := s.Resolve(rec, day)
	if err != nil {
		return 0, err
	}
	n, err := methods.CopyZipEntry(path, image, w)
	if errors.Is(err, methods.ErrEntryNotFound) {
		return 0, fmt.Errorf("%w: %s not in %s", ErrNotFound, image, filepath.Base(path))
	}
	if errors.Is(err, os.ErrNotExist) {
		return 0, fmt.Errorf("%w: %s", ErrNotFound, filepath.Base(path))
	}
	return n, err
}

// isPathSafe 检查路径是否安全（防止目录遍历攻击）
func (s *FileService) isPathSafe(path string) bool {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return false
	}

	// 检查请求的路径是否在根目录下
	rel, err := filepath.Rel(s.RootPath, absPath)
	if err != nil {
		return false
	}

	// 不允许访问根目录之外的路径
	return !strings.HasPrefix(rel, "..") && !filepath.IsAbs(rel)
}
