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
	"errors"
	"fmt"
)

var (
	// ErrNotFound 源文档不存在
	ErrNotFound = errors.New("source not found")
	// ErrCorrupt 源文档无法解析
	ErrCorrupt = errors.New("source corrupt")
	// ErrClosed 光栅器已关闭
	ErrClosed = errors.New("rasterizer closed")
	// ErrPageRange 页码越界
	ErrPageRange = errors.New("page index out of range")
	// ErrEmptySignature 签名板没有任何笔画
	ErrEmptySignature = errors.New("signature pad is empty")
	// ErrNothingToExport 没有任何注释可导出
	ErrNothingToExport = errors.New("no annotations to export")
	// ErrUnknownSignature 签名库中不存在该签名
	ErrUnknownSignature = errors.New("unknown signature")
)

// SourceError 源文档打开失败, 对编辑会话来说是终止性错误
type SourceError struct {
	Source string
	Err    error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("open %s: %v", e.Source, e.Err)
}

func (e *SourceError) Unwrap() error { return e.Err }

// PageError 单页光栅化失败
type PageError struct {
	Page int
	Err  error
}

func (e *PageError) Error() string {
	return fmt.Sprintf("render page %d: %v", e.Page, e.Err)
}

func (e *PageError) Unwrap() error { return e.Err }

// ExportError 导出失败, 部分输出已丢弃
// Page 为 -1 表示失败发生在写出阶段而非某一页
type ExportError struct {
	Page int
	Err  error
}

func (e *ExportError) Error() string {
	if e.Page < 0 {
		return fmt.Sprintf("export: %v", e.Err)
	}
	return fmt.Sprintf("export page %d: %v", e.Page, e.Err)
}

func (e *ExportError) Unwrap() error { return e.Err }

// Reason 生成面向宿主应用的可读失败原因
// 入参: err 错误
// 返回: string 原因描述
func Reason(err error) string {
	if err == nil {
		return ""
	}
	var se *SourceError
	var ee *ExportError
	switch {
	case errors.As(err, &se):
		switch {
		case errors.Is(err, ErrNotFound):
			return "document not found"
		case errors.Is(err, ErrCorrupt):
			return "document is damaged or not supported"
		}
		return "document could not be opened"
	case errors.As(err, &ee):
		switch {
		case errors.Is(err, ErrNothingToExport):
			return "nothing to save"
		case errors.Is(err, context.Canceled):
			return "save cancelled"
		}
		return "save failed"
	case errors.Is(err, ErrEmptySignature):
		return "signature is empty"
	}
	return err.Error()
}
