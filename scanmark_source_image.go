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
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"unicode"

	"github.com/anthonynsimon/bild/clone"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// imageExts 目录模式下识别的页面图片扩展名
var imageExts = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true,
	".tif": true, ".tiff": true, ".bmp": true, ".webp": true,
}

// imageDocument 扫描图片文档, 每张图片为一页
type imageDocument struct {
	dpi    float64
	pages  []func() (io.ReadCloser, error)
	sizes  []*image.Point
	closer io.Closer
}

// openImageFile 单张图片作为单页文档
func openImageFile(ra io.ReaderAt, size int64, closer io.Closer, o rasterOptions) (document, error) {
	d := &imageDocument{dpi: o.scanDPI, closer: closer}
	d.pages = []func() (io.ReadCloser, error){func() (io.ReadCloser, error) {
		return io.NopCloser(io.NewSectionReader(ra, 0, size)), nil
	}}
	d.sizes = make([]*image.Point, 1)
	if _, err := d.pageSize(0); err != nil {
		return nil, err
	}
	return d, nil
}

// openImageDir 目录下的图片按自然顺序组成文档
func openImageDir(dir string, o rasterOptions) (document, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && imageExts[strings.ToLower(filepath.Ext(e.Name()))] {
			names = append(names, e.Name())
		}
	}
	slices.SortFunc(names, naturalCompare)
	d := &imageDocument{dpi: o.scanDPI, sizes: make([]*image.Point, len(names))}
	for _, name := range names {
		path := filepath.Join(dir, name)
		d.pages = append(d.pages, func() (io.ReadCloser, error) { return os.Open(path) })
	}
	return d, nil
}

func (d *imageDocument) pageCount() int { return len(d.pages) }

func (d *imageDocument) pageSize(i int) (Size, error) {
	if d.sizes[i] == nil {
		rc, err := d.pages[i]()
		if err != nil {
			return Size{}, err
		}
		defer rc.Close()
		cfg, _, err := image.DecodeConfig(rc)
		if err != nil {
			return Size{}, fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
		d.sizes[i] = &image.Point{X: cfg.Width, Y: cfg.Height}
	}
	return d.mm(*d.sizes[i]), nil
}

// mm 像素尺寸按扫描分辨率换算为毫米
func (d *imageDocument) mm(px image.Point) Size {
	return Size{W: float64(px.X) / d.dpi * 25.4, H: float64(px.Y) / d.dpi * 25.4}
}

func (d *imageDocument) openPage(i int) (page, error) {
	rc, err := d.pages[i]()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	img, _, err := image.Decode(rc)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	b := img.Bounds()
	d.sizes[i] = &image.Point{X: b.Dx(), Y: b.Dy()}
	return &imagePage{doc: d, img: clone.AsRGBA(img)}, nil
}

func (d *imageDocument) close() error {
	d.pages = nil
	if d.closer != nil {
		return d.closer.Close()
	}
	return nil
}

// imagePage 已解码的扫描页
type imagePage struct {
	doc *imageDocument
	img *image.RGBA
}

func (p *imagePage) size() Size {
	b := p.img.Bounds()
	return p.doc.mm(image.Point{X: b.Dx(), Y: b.Dy()})
}

func (p *imagePage) renderInto(dst *image.RGBA) error {
	if p.img == nil {
		return ErrClosed
	}
	db := dst.Bounds()
	draw.Draw(dst, db, image.NewUniform(color.White), image.Point{}, draw.Src)
	if db.Size() == p.img.Bounds().Size() {
		draw.Draw(dst, db, p.img, p.img.Bounds().Min, draw.Over)
		return nil
	}
	draw.CatmullRom.Scale(dst, db, p.img, p.img.Bounds(), draw.Over, nil)
	return nil
}

func (p *imagePage) close() { p.img = nil }

// naturalCompare 文件名自然排序, 数字段按数值比较
func naturalCompare(a, b string) int {
	ar, br := []rune(a), []rune(b)
	i, j := 0, 0
	for i < len(ar) && j < len(br) {
		if unicode.IsDigit(ar[i]) && unicode.IsDigit(br[j]) {
			si := i
			for i < len(ar) && unicode.IsDigit(ar[i]) {
				i++
			}
			sj := j
			for j < len(br) && unicode.IsDigit(br[j]) {
				j++
			}
			na := strings.TrimLeft(string(ar[si:i]), "0")
			nb := strings.TrimLeft(string(br[sj:j]), "0")
			if len(na) != len(nb) {
				return len(na) - len(nb)
			}
			if c := strings.Compare(na, nb); c != 0 {
				return c
			}
			continue
		}
		ca, cb := unicode.ToLower(ar[i]), unicode.ToLower(br[j])
		if ca != cb {
			return int(ca) - int(cb)
		}
		i++
		j++
	}
	return (len(ar) - i) - (len(br) - j)
}
