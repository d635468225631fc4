// Copyright 2025-2026 肖其顿 (XIAO QI DUN)
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
	"archive/zip"
	"encoding/xml"
	"fmt"
	"io"
	"io/fs"
	"path"
	"strings"

	"github.com/tdewolff/canvas"
)

// ofdDocumentReader OFD 包读取器
type ofdDocumentReader struct {
	zip        *zip.Reader
	closer     io.Closer
	root       ofdRoot
	doc        ofdDocument
	rootDir    string
	media      map[string]string
	fonts      map[string]*ofdFont
	drawParams map[string]*ofdDrawParam
	families   map[string]*canvas.FontFamily
	seals      map[string][]ofdSeal
	fontDirs   []string
	fontFS     []fs.FS
}

// openOFD 解析OFD入口与主文档
// 入参: ra 数据源, size 数据大小, closer 文件句柄, o 配置选项
// 返回: document 文档, error 错误信息
func openOFD(ra io.ReaderAt, size int64, closer io.Closer, o rasterOptions) (document, error) {
	r, err := newOFDReader(ra, size, closer, o)
	if err != nil {
		return nil, err
	}
	return r, nil
}

func newOFDReader(ra io.ReaderAt, size int64, closer io.Closer, o rasterOptions) (*ofdDocumentReader, error) {
	zr, err := zip.NewReader(ra, size)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	r := &ofdDocumentReader{
		zip:        zr,
		closer:     closer,
		media:      make(map[string]string),
		fonts:      make(map[string]*ofdFont),
		drawParams: make(map[string]*ofdDrawParam),
		families:   make(map[string]*canvas.FontFamily),
		seals:      make(map[string][]ofdSeal),
		fontDirs:   o.fontDirs,
		fontFS:     o.fontFS,
	}
	if err := r.init(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return r, nil
}

// init 读取 OFD.xml 与首个文档体
func (r *ofdDocumentReader) init() error {
	if err := r.readXML("OFD.xml", &r.root); err != nil {
		return fmt.Errorf("failed to read ofd.xml: %w", err)
	}
	if len(r.root.DocBody) == 0 || r.root.DocBody[0].DocRoot == "" {
		return fmt.Errorf("no docbody found")
	}
	docRoot := r.root.DocBody[0].DocRoot
	r.rootDir = path.Dir(cleanZipPath(docRoot))
	if err := r.readXML(docRoot, &r.doc); err != nil {
		return fmt.Errorf("failed to read document.xml: %w", err)
	}
	for _, res := range append(r.doc.CommonData.DocumentRes, r.doc.CommonData.PublicRes...) {
		r.loadRes(res)
	}
	r.loadSeals()
	return nil
}

// cleanZipPath 统一包内路径分隔符
func cleanZipPath(name string) string {
	name = strings.ReplaceAll(strings.TrimSpace(name), "\\", "/")
	return strings.TrimPrefix(name, "/")
}

// readFile 读取压缩包内的文件
// 入参: name 文件名
// 返回: []byte 文件内容, error 错误信息
func (r *ofdDocumentReader) readFile(name string) ([]byte, error) {
	name = cleanZipPath(name)
	for _, f := range r.zip.File {
		if f.Name == name {
			rc, err := f.Open()
			if err != nil {
				return nil, err
			}
			defer rc.Close()
			return io.ReadAll(rc)
		}
	}
	return nil, fmt.Errorf("file not found: %s", name)
}

func (r *ofdDocumentReader) readXML(name string, v any) error {
	data, err := r.readFile(name)
	if err != nil {
		return err
	}
	return xml.Unmarshal(data, v)
}

// resolve 文档根目录下的相对路径
func (r *ofdDocumentReader) resolve(loc string) string {
	loc = cleanZipPath(loc)
	if loc == "" || strings.HasPrefix(loc, r.rootDir+"/") {
		return loc
	}
	return path.Join(r.rootDir, loc)
}

// loadRes 加载资源文件, 损坏的资源文件被忽略
// 入参: resPath 资源路径
func (r *ofdDocumentReader) loadRes(resPath string) {
	if resPath = strings.TrimSpace(resPath); resPath == "" {
		return
	}
	var res ofdRes
	if err := r.readXML(r.resolve(resPath), &res); err != nil {
		return
	}
	dir := path.Dir(cleanZipPath(resPath))
	if res.BaseLoc != "" && dir != res.BaseLoc {
		dir = path.Join(dir, res.BaseLoc)
	}
	for _, mm := range res.MultiMedias.MultiMedia {
		if p := strings.TrimSpace(mm.MediaFile); p != "" {
			r.media[mm.ID] = path.Join(dir, p)
		}
	}
	for i := range res.Fonts.Font {
		f := &res.Fonts.Font[i]
		if f.FontFile != "" {
			f.FontFile = path.Join(dir, strings.TrimSpace(f.FontFile))
		}
		r.fonts[f.ID] = f
	}
	for i := range res.DrawParams.DrawParam {
		dp := &res.DrawParams.DrawParam[i]
		r.drawParams[dp.ID] = dp
	}
}

// resData 读取资源数据
func (r *ofdDocumentReader) resData(loc string) ([]byte, error) {
	return r.readFile(r.resolve(loc))
}

// title 文档标题
func (r *ofdDocumentReader) title() string {
	return r.root.DocBody[0].DocInfo.Title
}

func (r *ofdDocumentReader) pageCount() int { return len(r.doc.Pages.Page) }

// pageContent 读取页面内容
func (r *ofdDocumentReader) pageContent(baseLoc string) (*ofdPageContent, error) {
	var content ofdPageContent
	if err := r.readXML(r.resolve(baseLoc), &content); err != nil {
		return nil, fmt.Errorf("failed to read page content: %w", err)
	}
	return &content, nil
}

// pageBox 页面物理区域, 依次回退到应用区域与文档默认区域
func (r *ofdDocumentReader) pageBox(content *ofdPageContent) Rect {
	candidates := []string{
		content.Area.PhysicalBox,
		content.Area.ApplicationBox,
		content.Area.ContentBox,
		r.doc.CommonData.PageArea.PhysicalBox,
		"0 0 210 297",
	}
	for _, s := range candidates {
		if box, ok := ofdBox(s); ok && box.W > 0 && box.H > 0 {
			return box
		}
	}
	return Rect{W: 210, H: 297}
}

func (r *ofdDocumentReader) pageSize(i int) (Size, error) {
	content, err := r.pageContent(r.doc.Pages.Page[i].BaseLoc)
	if err != nil {
		return Size{}, err
	}
	box := r.pageBox(content)
	return Size{W: box.W, H: box.H}, nil
}

func (r *ofdDocumentReader) openPage(i int) (page, error) {
	content, err := r.pageContent(r.doc.Pages.Page[i].BaseLoc)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	ref := r.doc.Pages.Page[i]
	return &ofdPage{doc: r, content: content, box: r.pageBox(content), seals: r.seals[ref.ID]}, nil
}

func (r *ofdDocumentReader) close() error {
	r.families = nil
	if r.closer != nil {
		return r.closer.Close()
	}
	return nil
}

// ofdPage 已解析的OFD页面
type ofdPage struct {
	doc     *ofdDocumentReader
	content *ofdPageContent
	box     Rect
	seals   []ofdSeal
}

func (p *ofdPage) size() Size { return Size{W: p.box.W, H: p.box.H} }

func (p *ofdPage) close() { p.content = nil }
