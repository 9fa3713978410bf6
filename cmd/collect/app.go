package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/urfave/cli"
	"go.uber.org/zap"

	"github.com/LJTian/ThreatHub/internal/aggregator"
	"github.com/LJTian/ThreatHub/internal/processor"
	"github.com/LJTian/ThreatHub/internal/report"
)

// Runner 命令行只依赖聚合结果
type Runner interface {
	Latest(ctx context.Context) aggregator.Result
	All(ctx context.Context) aggregator.Result
}

type AppConfig struct {
	Runner Runner
	Logger *zap.Logger
	Out    io.Writer
	Now    func() time.Time
}

func (ac AppConfig) NewApp(version string) *cli.App {
	app := cli.NewApp()
	app.Name = "threathub-collect"
	app.Version = version
	app.Usage = "Run one security news aggregation and print or export it"

	app.Commands = []cli.Command{
		{
			Name:   "list",
			Usage:  "aggregate and print the latest threats",
			Action: ac.list,
			Flags: []cli.Flag{
				cli.IntFlag{
					Name:  "limit",
					Usage: "max items to print (0 = no limit)",
					Value: aggregator.ListingLimit,
				},
				cli.BoolFlag{
					Name:  "json",
					Usage: "print items as JSON",
				},
			},
		},
		{
			Name:   "report",
			Usage:  "aggregate and write a weekly or monthly report",
			Action: ac.report,
			Flags: []cli.Flag{
				cli.StringFlag{
					Name:  "kind",
					Usage: "weekly or monthly",
					Value: report.Weekly.Name,
				},
				cli.StringFlag{
					Name:  "format",
					Usage: "pdf or docx",
					Value: "pdf",
				},
				cli.StringFlag{
					Name:  "out",
					Usage: "output file path (default: derived from the report title)",
				},
			},
		},
	}

	return app
}

func (ac AppConfig) list(c *cli.Context) error {
	limit := c.Int("limit")
	var res aggregator.Result
	if limit > 0 && limit <= aggregator.ListingLimit {
		res = ac.Runner.Latest(context.Background())
	} else {
		res = ac.Runner.All(context.Background())
	}
	if res.Failed() {
		return fmt.Errorf("aggregation failed: no items from %d sources", len(res.Sources))
	}

	items := res.Items
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}

	if c.Bool("json") {
		enc := json.NewEncoder(ac.Out)
		enc.SetIndent("", "  ")
		return enc.Encode(items)
	}
	printItems(ac.Out, items)
	return nil
}

func printItems(w io.Writer, items []processor.ThreatItem) {
	for i, it := range items {
		fmt.Fprintf(w, "%2d. [%s] %s\n", i+1, processor.ColorizeSeverity(it.Severity), it.Title)
		fmt.Fprintf(w, "    %s | %s\n", it.Source, it.DatePublished.Format("2006-01-02"))
		if it.CVSSScore != nil {
			fmt.Fprintf(w, "    CVSS %.1f\n", *it.CVSSScore)
		}
		fmt.Fprintf(w, "    %s\n", it.URL)
	}
}

func (ac AppConfig) report(c *cli.Context) error {
	kind, ok := report.KindByName(c.String("kind"))
	if !ok {
		return fmt.Errorf("unknown report kind: %s", c.String("kind"))
	}
	renderer, ok := report.RendererFor(c.String("format"))
	if !ok {
		return fmt.Errorf("unknown report format: %s", c.String("format"))
	}

	res := ac.Runner.All(context.Background())
	doc, err := kind.Build(res.Items, ac.Now())
	if err != nil {
		return fmt.Errorf("build %s report: %w", kind.Name, err)
	}

	path := c.String("out")
	if path == "" {
		path = report.Filename(doc.Title, renderer.Ext())
	}
	if err := writeReport(path, renderer, doc); err != nil {
		return err
	}
	ac.Logger.Info("report written",
		zap.String("kind", kind.Name),
		zap.String("path", path),
		zap.Int("items", len(doc.Entries)))
	return nil
}

// writeReport 渲染或关闭失败时删除文件，不留下半截报表
func writeReport(path string, r report.Renderer, doc *report.Document) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := r.Render(f, doc); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return fmt.Errorf("close %s: %w", path, err)
	}
	return nil
}
