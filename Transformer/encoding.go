package Transformer

import (
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"gitee.com/LJ_COOL/go-shp"
	"github.com/saintfish/chardet"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
)

// readCPGEncoding 读取 CPG 文件获取字符编码，没有时返回空串
func readCPGEncoding(shpfilePath string) string {
	base := filepath.Base(shpfilePath)
	newBase := strings.TrimSuffix(base, filepath.Ext(base)) + ".cpg"
	cpgContent, err := os.ReadFile(filepath.Join(filepath.Dir(shpfilePath), newBase))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(cpgContent))
}

// sampleAttributes 拼接一行属性用于编码检测
func sampleAttributes(shape *shp.Reader, n int, fields []shp.Field) []byte {
	var sb strings.Builder
	for k, f := range fields {
		sb.WriteString(f.String())
		sb.WriteByte(' ')
		sb.WriteString(shape.ReadAttribute(n, k))
		sb.WriteByte(' ')
	}
	return []byte(sb.String())
}

func isASCII(b []byte) bool {
	for _, c := range b {
		if c >= utf8.RuneSelf {
			return false
		}
	}
	return true
}

// detectString 用 chardet 猜测编码
func detectString(data []byte) string {
	detector := chardet.NewTextDetector()
	result, err := detector.DetectBest(data)
	if err != nil || result == nil {
		return ""
	}
	return result.Charset
}

type textDecoder struct {
	name string
	enc  encoding.Encoding
}

// newTextDecoder CPG 优先，否则对非 ASCII 样本做检测；UTF-8 或无法识别时不转换
func newTextDecoder(cpg string, sample []byte) *textDecoder {
	name := cpg
	if name == "" && !isASCII(sample) && !utf8.Valid(sample) {
		name = detectString(sample)
	}
	if name == "" {
		return &textDecoder{name: "UTF-8"}
	}
	normalized := strings.ToLower(strings.ReplaceAll(name, "GB-", "GB"))
	if normalized == "utf-8" || normalized == "utf8" {
		return &textDecoder{name: "UTF-8"}
	}
	enc, err := htmlindex.Get(normalized)
	if err != nil {
		return &textDecoder{name: "UTF-8"}
	}
	return &textDecoder{name: name, enc: enc}
}

func (d *textDecoder) decode(s string) string {
	if d == nil || d.enc == nil {
		return s
	}
	out, err := d.enc.NewDecoder().String(s)
	if err != nil {
		return s
	}
	return out
}
