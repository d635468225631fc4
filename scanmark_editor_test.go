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
	"bytes"
	"context"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// editorEvents 收集编辑器事件
type editorEvents struct {
	pageCount   int
	pages       []int
	changed     []int
	requests    []Request
	renderFails []int
}

func (ev *editorEvents) options() EditorEvents {
	return EditorEvents{
		PageCountKnown:     func(n int) { ev.pageCount = n },
		PageChanged:        func(p int) { ev.pages = append(ev.pages, p) },
		AnnotationsChanged: func(p int) { ev.changed = append(ev.changed, p) },
		Request:            func(r Request) { ev.requests = append(ev.requests, r) },
		PageRenderFailed:   func(p int, err error) { ev.renderFails = append(ev.renderFails, p) },
	}
}

// openTestEditor 三页 210x297mm 文档, 预览与导出都按 1 像素/毫米
func openTestEditor(t *testing.T, extra ...EditorOption) (*Editor, *editorEvents, Source) {
	t.Helper()
	src := FileSource(writePages(t, 3, 210, 297))
	ev := &editorEvents{}
	opts := append([]EditorOption{
		WithEvents(ev.options()),
		WithRasterOptions(mmSource),
		WithPreviewDPI(25.4),
		WithEditorExportDPI(25.4),
	}, extra...)
	e, err := OpenEditor(context.Background(), src, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return e, ev, src
}

// drag 在编辑器画布上按归一化坐标拖拽
func drag(e *Editor, from, to Point) {
	w, h := e.Canvas().ViewSize()
	e.Canvas().Press(from.X*w, from.Y*h)
	e.Canvas().Move((from.X+to.X)/2*w, (from.Y+to.Y)/2*h)
	e.Canvas().Release(to.X*w, to.Y*h)
}

func TestOpenEditorShowsFirstPage(t *testing.T) {
	e, ev, _ := openTestEditor(t)
	assert.Equal(t, 3, ev.pageCount)
	assert.Equal(t, 0, e.Page())
	w, h := e.Canvas().ViewSize()
	assert.Equal(t, 210.0, w)
	assert.Equal(t, 297.0, h)
	require.NotNil(t, e.Canvas().background)
	assert.False(t, e.Unsaved())
	assert.False(t, e.HasAnnotations())
}

func TestOpenEditorMissingSource(t *testing.T) {
	_, err := OpenEditor(context.Background(), FileSource(filepath.Join(t.TempDir(), "absent.png")))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAnnotationsSurviveNavigation(t *testing.T) {
	e, ev, _ := openTestEditor(t)
	require.NoError(t, e.GoToPage(1))
	e.SetTool(ToolRectangle)
	drag(e, Point{X: 0.1, Y: 0.1}, Point{X: 0.5, Y: 0.3})

	items := e.Annotations(1)
	require.Len(t, items, 1)
	before := items[0].Bounds()
	assert.InDelta(t, 0.1, before.X, 1e-9)
	assert.InDelta(t, 0.1, before.Y, 1e-9)
	assert.InDelta(t, 0.4, before.W, 1e-9)
	assert.InDelta(t, 0.2, before.H, 1e-9)

	require.NoError(t, e.GoToPage(0))
	assert.Empty(t, e.Annotations(0))
	assert.Empty(t, e.Canvas().Items())
	require.NoError(t, e.GoToPage(1))

	after := e.Annotations(1)
	require.Len(t, after, 1)
	assert.Equal(t, items[0].ID, after[0].ID)
	assert.Equal(t, before, after[0].Bounds())
	assert.Equal(t, []int{1, 0, 1}, ev.pages)
	assert.Equal(t, []int{1}, ev.changed)
	assert.True(t, e.Unsaved())
}

func TestGoToPageBounds(t *testing.T) {
	e, ev, _ := openTestEditor(t)
	assert.ErrorIs(t, e.GoToPage(3), ErrPageRange)
	assert.ErrorIs(t, e.PrevPage(), ErrPageRange)
	require.NoError(t, e.NextPage())
	require.NoError(t, e.NextPage())
	assert.ErrorIs(t, e.NextPage(), ErrPageRange)
	assert.Equal(t, 2, e.Page())
	require.NoError(t, e.GoToPage(2))
	assert.Equal(t, []int{1, 2}, ev.pages)
}

func TestApplyText(t *testing.T) {
	e, ev, _ := openTestEditor(t)
	e.SetTool(ToolText)
	w, h := e.Canvas().ViewSize()
	e.Canvas().Press(0.2*w, 0.3*h)
	e.Canvas().Release(0.2*w, 0.3*h)
	require.Len(t, ev.requests, 1)
	req := ev.requests[0]
	assert.Equal(t, RequestText, req.Kind)

	assert.Nil(t, e.ApplyText(req, "   ", red, 16, 0))
	it := e.ApplyText(req, "Received", red, 16, TextBold)
	require.NotNil(t, it)
	assert.InDelta(t, 0.2, it.Bounds().X, 1e-9)
	assert.InDelta(t, 0.3, it.Bounds().Y, 1e-9)
	aw, ah := TextExtent(&Text{Content: "Received", Size: 16, Style: TextBold}, 297.0/210.0)
	assert.InDelta(t, aw, it.Bounds().W, 1e-9)
	assert.InDelta(t, ah, it.Bounds().H, 1e-9)
	assert.Len(t, e.Annotations(0), 1)
}

func TestApplySignatureCentered(t *testing.T) {
	e, _, _ := openTestEditor(t)
	req := Request{Kind: RequestSignature, Page: 0, At: Point{X: 0.5, Y: 0.5}}
	_, err := e.ApplySignature(req, image.NewRGBA(image.Rect(0, 0, 0, 0)))
	assert.ErrorIs(t, err, ErrEmptySignature)

	it, err := e.ApplySignature(req, opaqueImage(200, 100))
	require.NoError(t, err)
	r := it.Bounds()
	assert.InDelta(t, SignatureWidth, r.W, 1e-9)
	assert.InDelta(t, SignatureWidth*0.5*210/297, r.H, 1e-9)
	assert.InDelta(t, 0.5, r.Center().X, 1e-9)
	assert.InDelta(t, 0.5, r.Center().Y, 1e-9)
}

func TestApplyOnOtherPage(t *testing.T) {
	e, ev, _ := openTestEditor(t)
	it := e.ApplyStamp(Request{Kind: RequestStamp, Page: 2, At: Point{X: 0.5, Y: 0.5}}, StampApproved)
	require.NotNil(t, it)
	assert.Empty(t, e.Canvas().Items())
	assert.Len(t, e.Annotations(2), 1)
	assert.Equal(t, []int{2}, ev.changed)
	assert.Equal(t, StampApproved.DefaultColor(), it.Payload.(*Stamp).Color)

	assert.Nil(t, e.ApplyStamp(Request{Page: 7}, StampApproved))
	assert.Nil(t, e.ApplyStamp(Request{Page: 0}, StampKind(99)))
}

func TestApplySignatureStrokes(t *testing.T) {
	e, _, _ := openTestEditor(t)
	req := Request{Kind: RequestSignature, Page: 0, At: Point{X: 0.4, Y: 0.6}}
	_, err := e.ApplySignatureStrokes(req, nil, 0.5)
	assert.ErrorIs(t, err, ErrEmptySignature)

	strokes := [][]Point{{{0.1, 0.2}, {0.5, 0.8}}, {{0.6, 0.3}, {0.9, 0.5}}}
	it, err := e.ApplySignatureStrokes(req, strokes, 0.5)
	require.NoError(t, err)
	d := it.Payload.(*Drawing)
	require.Len(t, d.Strokes, 2)
	r := it.Bounds()
	assert.InDelta(t, SignatureWidth, r.W, 1e-9)
	assert.InDelta(t, 0.4, r.Center().X, 1e-9)
	assert.InDelta(t, 0.6, r.Center().Y, 1e-9)
	assertInPage(t, r)
}

func TestApplySavedSignature(t *testing.T) {
	lib, err := NewSignatureLibrary(t.TempDir())
	require.NoError(t, err)
	saved, err := lib.Save("Initials", opaqueImage(30, 10))
	require.NoError(t, err)

	e, _, _ := openTestEditor(t, WithSignatureLibrary(lib))
	req := Request{Kind: RequestSignature, Page: 0, At: Point{X: 0.5, Y: 0.5}}
	it, err := e.ApplySavedSignature(req, saved.ID)
	require.NoError(t, err)
	assert.Equal(t, KindSignature, it.Kind())
	_, err = e.ApplySavedSignature(req, "nope")
	assert.ErrorIs(t, err, ErrUnknownSignature)
}

func TestToolSettings(t *testing.T) {
	style := ToolStyle{Color: red, StrokeWidth: 4, TextSize: 20}
	e, _, _ := openTestEditor(t, WithToolStyle(style))
	assert.Equal(t, red, e.Color())
	assert.Equal(t, 4.0, e.StrokeWidth())
	e.SetStrokeWidth(-1)
	assert.Equal(t, 4.0, e.StrokeWidth())
	e.SetTextSize(500)
	assert.Equal(t, MaxTextSize, e.TextSize())
	blue := color.NRGBA{B: 0xFF, A: 0xFF}
	e.SetColor(blue)
	e.SetFill(&blue)
	e.SetTool(ToolOval)
	assert.Equal(t, ToolOval, e.Tool())
	drag(e, Point{X: 0.2, Y: 0.2}, Point{X: 0.4, Y: 0.4})
	s := e.Annotations(0)[0].Payload.(*Shape)
	assert.Equal(t, blue, s.Color)
	require.NotNil(t, s.Fill)
}

func TestSaveClearsUnsaved(t *testing.T) {
	e, _, src := openTestEditor(t)
	dir := t.TempDir()
	_, err := e.Save(context.Background(), filepath.Join(dir, "empty.pdf"))
	assert.ErrorIs(t, err, ErrNothingToExport)
	assert.Equal(t, "nothing to save", Reason(err))

	e.SetTool(ToolHighlight)
	drag(e, Point{X: 0.1, Y: 0.1}, Point{X: 0.6, Y: 0.15})
	require.True(t, e.Unsaved())

	first := filepath.Join(dir, "first.pdf")
	res, err := e.Save(context.Background(), first)
	require.NoError(t, err)
	assert.Equal(t, ExportResult{Pages: 3, Annotations: 1}, res)
	assert.False(t, e.Unsaved())

	second := filepath.Join(dir, "second.pdf")
	res2, err := e.Save(context.Background(), second)
	require.NoError(t, err)
	assert.Equal(t, res, res2)
	for _, p := range []string{first, second} {
		data, err := os.ReadFile(p)
		require.NoError(t, err)
		assert.True(t, bytes.HasPrefix(data, []byte("%PDF")))
	}

	r, err := Open(src, mmSource)
	require.NoError(t, err)
	defer r.Close()
	assert.Equal(t, 3, r.PageCount())
}

func TestSetAnnotationsReplacesPage(t *testing.T) {
	e, ev, _ := openTestEditor(t)
	it := NewItem(0, Rect{X: 0.1, Y: 0.1, W: 0.2, H: 0.2}, &Highlight{})
	e.SetAnnotations(0, []*Item{it})
	require.Len(t, e.Canvas().Items(), 1)
	e.SetAnnotations(5, []*Item{it})
	assert.Equal(t, []int{0}, ev.changed)
	assert.True(t, e.HasAnnotations())

	e.Canvas().Select(it.ID)
	require.NotNil(t, e.Selected())
	assert.InDelta(t, 1.5, e.ResizeSelected(1.5), 1e-9)
	assert.True(t, e.DeleteSelected())
	assert.False(t, e.HasAnnotations())
}

func TestCloseEditor(t *testing.T) {
	e, _, _ := openTestEditor(t)
	e.ApplyStamp(Request{Page: 0, At: Point{X: 0.5, Y: 0.5}}, StampVoid)
	require.NoError(t, e.Close())
	require.NoError(t, e.Close())
	assert.ErrorIs(t, e.GoToPage(1), ErrClosed)
	_, err := e.Save(context.Background(), filepath.Join(t.TempDir(), "x.pdf"))
	assert.ErrorIs(t, err, ErrClosed)
	assert.Nil(t, e.ApplyStamp(Request{Page: 0}, StampVoid))
}

// runLoop 启动事件循环, 测试结束时停止
func runLoop(t *testing.T) *Loop {
	t.Helper()
	loop := NewLoop(16)
	ctx, cancel := context.WithCancel(context.Background())
	go loop.Run(ctx)
	t.Cleanup(func() {
		loop.Stop()
		cancel()
	})
	return loop
}

func TestEditorOnLoop(t *testing.T) {
	loop := runLoop(t)
	ctx := context.Background()
	src := FileSource(writePages(t, 3, 210, 297))
	ev := &editorEvents{}

	var e *Editor
	var openErr error
	require.NoError(t, loop.Call(ctx, func() {
		e, openErr = OpenEditor(ctx, src,
			WithLoop(loop), WithEvents(ev.options()), WithRasterOptions(mmSource),
			WithPreviewDPI(25.4), WithEditorExportDPI(25.4))
	}))
	require.NoError(t, openErr)
	defer loop.Call(ctx, func() { _ = e.Close() })

	require.Eventually(t, func() bool {
		var ready bool
		_ = loop.Call(ctx, func() { ready = e.Canvas().background != nil })
		return ready
	}, 5*time.Second, 10*time.Millisecond)

	var navErr error
	require.NoError(t, loop.Call(ctx, func() {
		if navErr = e.GoToPage(1); navErr == nil {
			navErr = e.GoToPage(2)
		}
	}))
	require.NoError(t, navErr)
	require.Eventually(t, func() bool {
		var bg image.Image
		_ = loop.Call(ctx, func() { bg = e.Canvas().background })
		img, ok := bg.(*image.RGBA)
		return ok && img.RGBAAt(5, 5).R == pageShade(2)
	}, 5*time.Second, 10*time.Millisecond)
	assert.Empty(t, ev.renderFails)
}

func TestSaveAsyncKeepsUnsavedAfterConcurrentEdit(t *testing.T) {
	loop := runLoop(t)
	ctx := context.Background()
	src := FileSource(writePages(t, 2, 105, 148))
	var e *Editor
	var openErr error
	require.NoError(t, loop.Call(ctx, func() {
		e, openErr = OpenEditor(ctx, src, WithLoop(loop), WithRasterOptions(mmSource),
			WithPreviewDPI(25.4), WithEditorExportDPI(25.4))
	}))
	require.NoError(t, openErr)
	defer loop.Call(ctx, func() { _ = e.Close() })

	out := filepath.Join(t.TempDir(), "out.pdf")
	done := make(chan error, 2)
	require.NoError(t, loop.Call(ctx, func() {
		e.ApplyStamp(Request{Page: 0, At: Point{X: 0.5, Y: 0.5}}, StampPaid)
		e.SaveAsync(out, func(_ ExportResult, err error) { done <- err })
		e.ApplyStamp(Request{Page: 1, At: Point{X: 0.5, Y: 0.5}}, StampDraft)
	}))
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("save did not finish")
	}
	var unsaved bool
	require.NoError(t, loop.Call(ctx, func() { unsaved = e.Unsaved() }))
	assert.True(t, unsaved)

	require.NoError(t, loop.Call(ctx, func() {
		e.SaveAsync(out, func(_ ExportResult, err error) { done <- err })
	}))
	require.NoError(t, <-done)
	require.NoError(t, loop.Call(ctx, func() { unsaved = e.Unsaved() }))
	assert.False(t, unsaved)
}
