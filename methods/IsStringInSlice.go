package methods

import (
	"regexp"
	"strings"
)

func IsStringInSlice(s string, slice []string) bool {
	for _, v := range slice {
		if v == s {
			return true
		}
	}
	return false
}

// filterString 去掉文件名中不安全的字符，只保留字母、数字、下划线和连字符
func filterString(str string) string {
	reg := regexp.MustCompile(`[^\p{L}\p{N}_-]`)
	result := reg.ReplaceAllString(str, "")
	return strings.ReplaceAll(result, " ", "")
}
