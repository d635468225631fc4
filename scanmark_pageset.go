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
	"maps"
	"slices"
)

// PageSet 按页保存的注释列表
// 列表顺序即绘制顺序, 靠后的注释在上层
type PageSet struct {
	pages map[int][]*Item
}

// NewPageSet 创建空注释集
func NewPageSet() *PageSet {
	return &PageSet{}
}

// Items 获取某页注释的副本
// 入参: page 页码
// 返回: []*Item 注释列表副本
func (s *PageSet) Items(page int) []*Item {
	return cloneItems(s.pages[page])
}

// Set 替换某页注释, 空列表会移除该页
// 入参: page 页码, items 注释列表
func (s *PageSet) Set(page int, items []*Item) {
	if len(items) == 0 {
		delete(s.pages, page)
		return
	}
	if s.pages == nil {
		s.pages = make(map[int][]*Item)
	}
	kept := make([]*Item, 0, len(items))
	for _, it := range items {
		if it != nil && it.Page() == page {
			kept = append(kept, it.Clone())
		}
	}
	if len(kept) == 0 {
		delete(s.pages, page)
		return
	}
	s.pages[page] = kept
}

// Append 向某页末尾追加一个注释
func (s *PageSet) Append(it *Item) {
	s.Set(it.Page(), append(s.pages[it.Page()], it))
}

// Len 某页注释数量
func (s *PageSet) Len(page int) int {
	return len(s.pages[page])
}

// Count 全部注释数量
func (s *PageSet) Count() int {
	n := 0
	for _, items := range s.pages {
		n += len(items)
	}
	return n
}

// Any 是否存在任意注释
func (s *PageSet) Any() bool {
	return len(s.pages) > 0
}

// Pages 含注释的页码, 升序
func (s *PageSet) Pages() []int {
	return slices.Sorted(maps.Keys(s.pages))
}

// Clone 深拷贝
func (s *PageSet) Clone() *PageSet {
	c := NewPageSet()
	for page, items := range s.pages {
		c.Set(page, items)
	}
	return c
}

// cloneItems 深拷贝注释列表
func cloneItems(items []*Item) []*Item {
	if len(items) == 0 {
		return nil
	}
	out := make([]*Item, len(items))
	for i, it := range items {
		out[i] = it.Clone()
	}
	return out
}
