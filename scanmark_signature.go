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
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/mitchellh/go-homedir"
	"golang.org/x/text/unicode/norm"
)

// signatureIndex 签名库元数据文件名
const signatureIndex = "signatures.json"

// SavedSignature 已保存的签名
type SavedSignature struct {
	ID      string    `json:"id"`
	Name    string    `json:"name"`
	File    string    `json:"file"`
	Created time.Time `json:"created"`
}

// SignatureLibrary 签名库, 存放于指定目录
type SignatureLibrary struct {
	mu      sync.Mutex
	root    string
	entries []SavedSignature
	now     func() time.Time
}

// NewSignatureLibrary 创建签名库, root 支持 ~ 开头
// 入参: root 存储目录
// 返回: *SignatureLibrary 签名库, error 错误信息
func NewSignatureLibrary(root string) (*SignatureLibrary, error) {
	dir, err := homedir.Expand(root)
	if err != nil {
		return nil, fmt.Errorf("expand signature dir: %w", err)
	}
	return &SignatureLibrary{root: dir, now: time.Now}, nil
}

// Root 存储目录
func (l *SignatureLibrary) Root() string { return l.root }

// Load 读取元数据, 只保留位图文件仍存在的条目
// 返回: error 错误信息
func (l *SignatureLibrary) Load() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	data, err := os.ReadFile(filepath.Join(l.root, signatureIndex))
	if errors.Is(err, fs.ErrNotExist) {
		l.entries = nil
		return nil
	}
	if err != nil {
		return err
	}
	var entries []SavedSignature
	if err := json.Unmarshal(data, &entries); err != nil {
		return fmt.Errorf("decode %s: %w", signatureIndex, err)
	}
	l.entries = slices.DeleteFunc(entries, func(e SavedSignature) bool {
		_, err := os.Stat(l.path(e))
		return e.ID == "" || err != nil
	})
	return nil
}

// List 按创建时间倒序列出
func (l *SignatureLibrary) List() []SavedSignature {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := slices.Clone(l.entries)
	slices.SortStableFunc(out, func(a, b SavedSignature) int {
		return b.Created.Compare(a.Created)
	})
	return out
}

// Save 保存签名位图与元数据
// 入参: name 显示名称, img 签名位图
// 返回: SavedSignature 签名条目, error 错误信息
func (l *SignatureLibrary) Save(name string, img image.Image) (SavedSignature, error) {
	if img == nil || img.Bounds().Empty() {
		return SavedSignature{}, ErrEmptySignature
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := os.MkdirAll(l.root, 0o755); err != nil {
		return SavedSignature{}, err
	}
	e := SavedSignature{
		ID:      newID(),
		Name:    norm.NFC.String(strings.TrimSpace(name)),
		Created: l.now().UTC(),
	}
	e.File = e.ID + ".png"
	if err := WritePNG(l.path(e), img); err != nil {
		return SavedSignature{}, err
	}
	entries := append(slices.Clone(l.entries), e)
	if err := l.writeIndex(entries); err != nil {
		_ = os.Remove(l.path(e))
		return SavedSignature{}, err
	}
	l.entries = entries
	return e, nil
}

// Delete 删除签名位图与元数据
// 入参: id 签名ID
// 返回: error 错误信息
func (l *SignatureLibrary) Delete(id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	i := slices.IndexFunc(l.entries, func(e SavedSignature) bool { return e.ID == id })
	if i < 0 {
		return ErrUnknownSignature
	}
	e := l.entries[i]
	entries := slices.Delete(slices.Clone(l.entries), i, i+1)
	if err := l.writeIndex(entries); err != nil {
		return err
	}
	l.entries = entries
	if err := os.Remove(l.path(e)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// Image 读取签名位图
// 入参: id 签名ID
// 返回: image.Image 位图, error 错误信息
func (l *SignatureLibrary) Image(id string) (image.Image, error) {
	l.mu.Lock()
	i := slices.IndexFunc(l.entries, func(e SavedSignature) bool { return e.ID == id })
	var e SavedSignature
	if i >= 0 {
		e = l.entries[i]
	}
	l.mu.Unlock()
	if i < 0 {
		return nil, ErrUnknownSignature
	}
	f, err := os.Open(l.path(e))
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return png.Decode(f)
}

func (l *SignatureLibrary) path(e SavedSignature) string {
	return filepath.Join(l.root, filepath.Base(e.File))
}

// writeIndex 原子写入元数据
func (l *SignatureLibrary) writeIndex(entries []SavedSignature) error {
	if entries == nil {
		entries = []SavedSignature{}
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return err
	}
	return writeFileAtomic(filepath.Join(l.root, signatureIndex), data)
}

// WritePNG 把图片编码为 PNG 写入 path
// 先写同目录临时文件再改名, 失败时不留下残缺文件, 也不改动已有文件
// 入参: path 目标路径, img 图片
// 返回: error 错误信息
func WritePNG(path string, img image.Image) error {
	f, err := os.CreateTemp(filepath.Dir(path), ".scanmark-*.png")
	if err != nil {
		return err
	}
	if err := png.Encode(f, img); err != nil {
		_ = f.Close()
		_ = os.Remove(f.Name())
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(f.Name())
		return err
	}
	return os.Rename(f.Name(), path)
}

func writeFileAtomic(path string, data []byte) error {
	f, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(f.Name())
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(f.Name())
		return err
	}
	return os.Rename(f.Name(), path)
}
