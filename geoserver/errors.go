package geoserver

import "fmt"

// StatusError 非 2xx 响应
type StatusError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("geoserver: %s %s: status %d", e.Method, e.URL, e.StatusCode)
	}
	return fmt.Sprintf("geoserver: %s %s: status %d: %s", e.Method, e.URL, e.StatusCode, e.Body)
}
