package services

import (
	"fmt"
	"log"
	"runtime/debug"

	"golang.org/x/sync/errgroup"
)

// TaskGroup 运行脱离请求周期的后台任务，错误和 panic 都会记录日志
type TaskGroup struct {
	g errgroup.Group
}

func (t *TaskGroup) Go(name string, fn func() error) {
	t.g.Go(func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				log.Printf("task %s panic: %v\n%s", name, r, debug.Stack())
				err = fmt.Errorf("task %s panic: %v", name, r)
			}
		}()
		if err = fn(); err != nil {
			log.Printf("task %s: %v", name, err)
		}
		return err
	})
}

// Wait 等待全部任务结束，返回第一个失败任务的错误
func (t *TaskGroup) Wait() error {
	return t.g.Wait()
}
