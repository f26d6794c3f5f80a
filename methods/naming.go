package methods

import (
	"fmt"
	"path/filepath"
	"time"
)

// DayKey 日期键，例如 20240601
func DayKey(t time.Time) string {
	return t.UTC().Format("20060102")
}

// RasterFileName 上传文件的存储名，同一逻辑采集总是得到同一个名字
func RasterFileName(expcode string, category string, t time.Time, sensor string, format string) string {
	code := filterString(filepath.Base(expcode))
	return fmt.Sprintf("%s_%s_%s_%s_%s.zip", code, filterString(category), DayKey(t), filterString(sensor), filterString(format))
}

// ParseDate 支持 ISO 时间串和纯日期
func ParseDate(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q", s)
}
