// Copyright 2026 肖其顿 (XIAO QI DUN)
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package scanmark

import (
	"context"
	"sync"
)

// Loop 单协程事件循环
// 手势状态机与注释模型只在循环协程上访问
type Loop struct {
	tasks chan func()
	done  chan struct{}
	once  sync.Once
}

// NewLoop 创建事件循环, 需调用 Run 启动
// 入参: buffer 任务队列长度
// 返回: *Loop 事件循环
func NewLoop(buffer int) *Loop {
	return &Loop{tasks: make(chan func(), max(buffer, 1)), done: make(chan struct{})}
}

// Run 在当前协程处理任务直到 Stop 或 ctx 结束, 返回后循环即停止
func (l *Loop) Run(ctx context.Context) {
	defer l.Stop()
	for {
		select {
		case fn := <-l.tasks:
			fn()
		case <-l.done:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Post 投递任务, 循环已停止时返回 false
func (l *Loop) Post(fn func()) bool {
	select {
	case <-l.done:
		return false
	default:
	}
	select {
	case l.tasks <- fn:
		return true
	case <-l.done:
		return false
	}
}

// Call 投递任务并等待执行完成
// 入参: ctx 上下文, fn 任务
// 返回: error 循环停止或 ctx 结束时的错误
func (l *Loop) Call(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	if !l.Post(func() { fn(); close(finished) }) {
		return context.Canceled
	}
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-l.done:
		return context.Canceled
	}
}

// Stop 停止循环, 可重复调用
func (l *Loop) Stop() {
	l.once.Do(func() { close(l.done) })
}

// Async 在后台执行 work, 结果回到循环上交给 done
// loop 为 nil 时同步执行, 供命令行与测试使用
// 入参: loop 事件循环, ctx 上下文, work 后台任务, done 结果回调
func Async[T any](loop *Loop, ctx context.Context, work func(context.Context) (T, error), done func(T, error)) {
	if loop == nil {
		v, err := work(ctx)
		done(v, err)
		return
	}
	go func() {
		v, err := work(ctx)
		loop.Post(func() { done(v, err) })
	}()
}
