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

// scanmark 命令行: 查看, 渲染与导出带注释的扫描文档
package main

import (
	"context"
	"fmt"
	"image/png"
	"log/slog"
	"os"
	"os/signal"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/xiaoqidun/scanmark"
)

type app struct {
	configPath string
	cfg        scanmark.Config
	logger     *slog.Logger
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", scanmark.Reason(err))
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "scanmark",
		Short:         "Annotate and flatten scanned documents",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			a.cfg = scanmark.DefaultConfig()
			if a.configPath != "" {
				cfg, err := scanmark.LoadConfig(a.configPath)
				if err != nil {
					return err
				}
				a.cfg = cfg
			}
			a.logger = a.cfg.Logger(cmd.ErrOrStderr())
			return nil
		},
	}
	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "TOML config file")
	root.AddCommand(a.infoCmd(), a.renderCmd(), a.flattenCmd(), a.signaturesCmd())
	return root
}

func (a *app) infoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info <source>",
		Short: "Print page count and page sizes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return scanmark.WithRasterizer(cmd.Context(), scanmark.FileSource(args[0]), func(r *scanmark.Rasterizer) error {
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintf(w, "pages\t%d\n", r.PageCount())
				for i := 0; i < r.PageCount(); i++ {
					s, err := r.PageSize(i)
					if err != nil {
						fmt.Fprintf(w, "page %d\t%v\n", i+1, err)
						continue
					}
					fmt.Fprintf(w, "page %d\t%.1f x %.1f mm\n", i+1, s.W, s.H)
				}
				return w.Flush()
			}, a.cfg.RasterOptions()...)
		},
	}
}

// loadAnnotations 读取注释文件, 路径为空时返回空集
func loadAnnotations(path string) (*scanmark.PageSet, error) {
	if path == "" {
		return scanmark.NewPageSet(), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return scanmark.DecodeAnnotations(f)
}

func (a *app) renderCmd() *cobra.Command {
	var (
		page        int
		dpi         float64
		annotations string
		output      string
	)
	cmd := &cobra.Command{
		Use:   "render <source>",
		Short: "Render one page, with annotations baked in, to PNG",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			set, err := loadAnnotations(annotations)
			if err != nil {
				return err
			}
			if dpi <= 0 {
				dpi = a.cfg.Render.PreviewDPI
			}
			return scanmark.WithRasterizer(cmd.Context(), scanmark.FileSource(args[0]), func(r *scanmark.Rasterizer) error {
				img, err := scanmark.RenderAnnotatedPage(cmd.Context(), r, set, page-1, dpi)
				if err != nil {
					return err
				}
				if err := scanmark.WritePNG(output, img); err != nil {
					return err
				}
				a.logger.Info("page rendered", "page", page, "output", output)
				return nil
			}, a.cfg.RasterOptions()...)
		},
	}
	cmd.Flags().IntVarP(&page, "page", "p", 1, "page number, starting at 1")
	cmd.Flags().Float64Var(&dpi, "dpi", 0, "render resolution (default from config)")
	cmd.Flags().StringVarP(&annotations, "annotations", "a", "", "annotations JSON file")
	cmd.Flags().StringVarP(&output, "output", "o", "page.png", "output PNG file")
	return cmd
}

func (a *app) flattenCmd() *cobra.Command {
	var (
		dpi         float64
		annotations string
		output      string
	)
	cmd := &cobra.Command{
		Use:   "flatten <source>",
		Short: "Bake annotations into a new PDF",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			set, err := loadAnnotations(annotations)
			if err != nil {
				return err
			}
			if dpi <= 0 {
				dpi = a.cfg.Render.ExportDPI
			}
			res, err := scanmark.FlattenFile(cmd.Context(), scanmark.FileSource(args[0]), set, output,
				scanmark.WithExportDPI(dpi),
				scanmark.WithExportRasterOptions(a.cfg.RasterOptions()...),
				scanmark.WithExportLogger(a.logger),
			)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d pages, %d annotations\n", output, res.Pages, res.Annotations)
			return nil
		},
	}
	cmd.Flags().Float64Var(&dpi, "dpi", 0, "export resolution (default from config)")
	cmd.Flags().StringVarP(&annotations, "annotations", "a", "", "annotations JSON file")
	cmd.Flags().StringVarP(&output, "output", "o", "flattened.pdf", "output PDF file")
	return cmd
}

func (a *app) library() (*scanmark.SignatureLibrary, error) {
	lib, err := scanmark.NewSignatureLibrary(a.cfg.Signatures.Dir)
	if err != nil {
		return nil, err
	}
	return lib, lib.Load()
}

func (a *app) signaturesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "signatures",
		Short: "Manage saved signatures",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List saved signatures, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			lib, err := a.library()
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tCREATED")
			for _, s := range lib.List() {
				fmt.Fprintf(w, "%s\t%s\t%s\n", s.ID, s.Name, s.Created.Local().Format("2006-01-02 15:04"))
			}
			return w.Flush()
		},
	}, &cobra.Command{
		Use:   "add <name> <png>",
		Short: "Save a signature image for reuse",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			lib, err := a.library()
			if err != nil {
				return err
			}
			f, err := os.Open(args[1])
			if err != nil {
				return err
			}
			defer f.Close()
			img, err := png.Decode(f)
			if err != nil {
				return err
			}
			s, err := lib.Save(args[0], img)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), s.ID)
			return nil
		},
	}, &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a saved signature",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			lib, err := a.library()
			if err != nil {
				return err
			}
			return lib.Delete(args[0])
		},
	})
	return cmd
}
