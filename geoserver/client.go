package geoserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Config GeoServer 导入接口配置
type Config struct {
	BaseURL   string // 以 / 结尾，例如 http://host/geoserver/
	Workspace string
	Username  string
	Password  string
	Timeout   time.Duration
}

// Client GeoServer REST 导入客户端
type Client struct {
	baseURL    string
	workspace  string
	username   string
	password   string
	httpClient *http.Client
}

// NewClient 创建导入客户端
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	base := cfg.BaseURL
	if base != "" && !strings.HasSuffix(base, "/") {
		base += "/"
	}
	return &Client{
		baseURL:   base,
		workspace: cfg.Workspace,
		username:  cfg.Username,
		password:  cfg.Password,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        20,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

func (c *Client) Workspace() string {
	return c.workspace
}

type importRequest struct {
	Import struct {
		TargetWorkspace struct {
			Workspace struct {
				Name string `json:"name"`
			} `json:"workspace"`
		} `json:"targetWorkspace"`
	} `json:"import"`
}

type importResponse struct {
	Import struct {
		ID    int64  `json:"id"`
		State string `json:"state"`
	} `json:"import"`
}

// Task 导入任务元数据
type Task struct {
	ID    int64  `json:"id"`
	State string `json:"state"`
	Layer struct {
		Name string `json:"name"`
	} `json:"layer"`
}

type taskResponse struct {
	Task  *Task  `json:"task"`
	Tasks []Task `json:"tasks"`
}

// Layer 工作空间中的图层
type Layer struct {
	Name string `json:"name"`
	Href string `json:"href"`
}

// CreateImport 在目标工作空间下创建空的导入作业，返回作业 id
func (c *Client) CreateImport(ctx context.Context) (int64, error) {
	var body importRequest
	body.Import.TargetWorkspace.Workspace.Name = c.workspace
	data, err := json.Marshal(body)
	if err != nil {
		return 0, err
	}

	log.Printf("geoserver: preparing import in workspace %s", c.workspace)
	var resp importResponse
	if err := c.do(ctx, http.MethodPost, "rest/imports", "application/json", bytes.NewReader(data), &resp); err != nil {
		return 0, err
	}
	return resp.Import.ID, nil
}

// UploadTask 以 multipart 方式上传文件作为作业的唯一任务，文件以流的方式发送
func (c *Client) UploadTask(ctx context.Context, importID int64, filePath string) (int64, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return 0, err
	}
	defer file.Close()

	name := filepath.Base(filePath)
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, name))
		h.Set("Content-Type", "application/zip")
		part, err := mw.CreatePart(h)
		if err == nil {
			_, err = io.Copy(part, file)
		}
		if err == nil {
			err = mw.Close()
		}
		pw.CloseWithError(err)
	}()

	log.Printf("geoserver: preparing import task %d for %s", importID, name)
	var resp taskResponse
	path := fmt.Sprintf("rest/imports/%d/tasks", importID)
	if err := c.do(ctx, http.MethodPost, path, mw.FormDataContentType(), pr, &resp); err != nil {
		pr.CloseWithError(err)
		return 0, err
	}
	switch {
	case resp.Task != nil:
		return resp.Task.ID, nil
	case len(resp.Tasks) > 0:
		return resp.Tasks[0].ID, nil
	}
	return 0, fmt.Errorf("geoserver: import %d returned no task", importID)
}

// RunImport 触发作业执行，请求返回即表示执行完成
func (c *Client) RunImport(ctx context.Context, importID int64) error {
	log.Printf("geoserver: performing import %d", importID)
	return c.do(ctx, http.MethodPost, fmt.Sprintf("rest/imports/%d", importID), "", nil, nil)
}

// Task 读取作业第一个任务的元数据
func (c *Client) Task(ctx context.Context, importID int64) (*Task, error) {
	var resp taskResponse
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("rest/imports/%d/tasks/0", importID), "", nil, &resp); err != nil {
		return nil, err
	}
	if resp.Task == nil {
		return nil, fmt.Errorf("geoserver: import %d has no task", importID)
	}
	return resp.Task, nil
}

// LayerName 读取导入后生成的图层名
func (c *Client) LayerName(ctx context.Context, importID int64) (string, error) {
	log.Printf("geoserver: get layer name of import %d", importID)
	task, err := c.Task(ctx, importID)
	if err != nil {
		return "", err
	}
	if task.Layer.Name == "" {
		return "", fmt.Errorf("geoserver: import %d task has no layer", importID)
	}
	return task.Layer.Name, nil
}

// Layers 列出工作空间中的图层
func (c *Client) Layers(ctx context.Context) ([]Layer, error) {
	var resp struct {
		Layers json.RawMessage `json:"layers"`
	}
	path := fmt.Sprintf("rest/workspaces/%s/layers.json", c.workspace)
	if err := c.do(ctx, http.MethodGet, path, "", nil, &resp); err != nil {
		return nil, err
	}
	// 没有图层时 GeoServer 返回空字符串
	var wrapped struct {
		Layer []Layer `json:"layer"`
	}
	if len(resp.Layers) == 0 || resp.Layers[0] != '{' {
		return []Layer{}, nil
	}
	if err := json.Unmarshal(resp.Layers, &wrapped); err != nil {
		return nil, err
	}
	return wrapped.Layer, nil
}

func (c *Client) do(ctx context.Context, method, path, contentType string, body io.Reader, out interface{}) error {
	if c.baseURL == "" {
		return fmt.Errorf("geoserver: base url not configured")
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	if c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &StatusError{Method: method, URL: req.URL.String(), StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("geoserver: decode %s %s: %w", method, path, err)
	}
	return nil
}
