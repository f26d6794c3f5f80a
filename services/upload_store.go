package services

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
)

// Upload 一个进行中的二进制传输
type Upload struct {
	Handle   string
	RecordID int64
	FileName string
	Path     string

	mu      sync.Mutex
	file    *os.File
	written int64
	closed  bool
}

func (u *Upload) Written() int64 {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.written
}

// UploadStore 进程内的传输句柄表
type UploadStore struct {
	root    string
	mu      sync.RWMutex
	uploads map[string]*Upload
}

func NewUploadStore(root string) *UploadStore {
	return &UploadStore{
		root:    root,
		uploads: make(map[string]*Upload),
	}
}

func (s *UploadStore) Root() string {
	return s.root
}

// PathOf 上传根目录下的文件路径
func (s *UploadStore) PathOf(fileName string) string {
	return filepath.Join(s.root, filepath.Base(fileName))
}

// Open 创建（截断）目标文件并登记新的句柄
func (s *UploadStore) Open(recordID int64, fileName string) (*Upload, error) {
	if err := os.MkdirAll(s.root, os.ModePerm); err != nil {
		return nil, fmt.Errorf("%w: create upload dir: %w", ErrStorage, err)
	}
	path := s.PathOf(fileName)
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("%w: create %s: %w", ErrStorage, path, err)
	}

	u := &Upload{
		Handle:   uuid.NewString(),
		RecordID: recordID,
		FileName: filepath.Base(fileName),
		Path:     path,
		file:     file,
	}
	s.mu.Lock()
	s.uploads[u.Handle] = u
	s.mu.Unlock()
	uploadSessions.Inc()
	log.Printf("upload %s opened for record %d: %s", u.Handle, recordID, path)
	return u, nil
}

func (s *UploadStore) Get(handle string) (*Upload, error) {
	s.mu.RLock()
	u, ok := s.uploads[handle]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownHandle, handle)
	}
	return u, nil
}

// Write 追加一个数据块，写入前先落盘已写内容。
// 返回的是该句柄累计写入的字节数而不是本块的字节数，二进制通道据此回复确认，
// 客户端收到等于文件大小的确认后再发送 endfile。
func (s *UploadStore) Write(handle string, p []byte) (int64, error) {
	u, err := s.Get(handle)
	if err != nil {
		return 0, err
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.closed {
		return 0, fmt.Errorf("%w: %s", ErrUnknownHandle, handle)
	}
	if err := u.file.Sync(); err != nil {
		return u.written, fmt.Errorf("%w: sync %s: %w", ErrStorage, u.Path, err)
	}
	n, err := u.file.Write(p)
	u.written += int64(n)
	uploadBytes.Add(float64(n))
	if err != nil {
		return u.written, fmt.Errorf("%w: write %s: %w", ErrStorage, u.Path, err)
	}
	return u.written, nil
}

// Close 落盘并关闭文件，移除句柄；同一句柄只能关闭一次
func (s *UploadStore) Close(handle string) (*Upload, error) {
	s.mu.Lock()
	u, ok := s.uploads[handle]
	delete(s.uploads, handle)
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownHandle, handle)
	}
	uploadSessions.Dec()

	u.mu.Lock()
	defer u.mu.Unlock()
	u.closed = true
	syncErr := u.file.Sync()
	closeErr := u.file.Close()
	if syncErr != nil {
		return u, fmt.Errorf("%w: sync %s: %w", ErrStorage, u.Path, syncErr)
	}
	if closeErr != nil {
		return u, fmt.Errorf("%w: close %s: %w", ErrStorage, u.Path, closeErr)
	}
	log.Printf("upload %s closed, %d bytes written", handle, u.written)
	return u, nil
}

// CloseRecord 关闭某条记录的全部句柄，返回关闭的数量
func (s *UploadStore) CloseRecord(recordID int64) int {
	s.mu.RLock()
	var handles []string
	for h, u := range s.uploads {
		if u.RecordID == recordID {
			handles = append(handles, h)
		}
	}
	s.mu.RUnlock()
	closed := 0
	for _, h := range handles {
		if _, err := s.Close(h); err != nil {
			log.Printf("close upload %s: %v", h, err)
		}
		closed++
	}
	return closed
}

// CloseAll 关闭全部句柄，进程退出时调用
func (s *UploadStore) CloseAll() {
	s.mu.RLock()
	handles := make([]string, 0, len(s.uploads))
	for h := range s.uploads {
		handles = append(handles, h)
	}
	s.mu.RUnlock()
	for _, h := range handles {
		if _, err := s.Close(h); err != nil {
			log.Printf("close upload %s: %v", h, err)
		}
	}
}

func (s *UploadStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.uploads)
}
