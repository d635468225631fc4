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

// Package scanmark 扫描文档注释编辑器
//
// 在光栅化的页面 (OFD 或扫描图片) 之上叠加可编辑的矢量注释:
// 手绘, 形状, 文本, 印章, 签名与高亮. 注释使用页面比例坐标保存,
// 交互画布与导出共用同一套绘制例程, 导出时把注释烘焙进新的 PDF 位图页.
package scanmark
