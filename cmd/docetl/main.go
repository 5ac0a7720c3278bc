// docetl runs the pipeline over a single file, or exports completed jobs to
// an XLSX workbook.
//
//	docetl process caminho/para/documento.pdf
//	docetl export -out resultado.xlsx [-since 2026-01-01]
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/mvbarbosa/docetl/constants"
	"github.com/mvbarbosa/docetl/internal/app"
	"github.com/mvbarbosa/docetl/internal/common"
	"github.com/mvbarbosa/docetl/internal/entity"
	"github.com/mvbarbosa/docetl/internal/export"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var err error
	switch os.Args[1] {
	case "process":
		err = runProcess(ctx, logger, os.Args[2:])
	case "export":
		err = runExport(ctx, logger, os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		logger.Error("command failed", "error", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: docetl process <arquivo> | docetl export -out <arquivo.xlsx> [-since AAAA-MM-DD]")
}

func runProcess(ctx context.Context, logger *slog.Logger, args []string) error {
	fs := flag.NewFlagSet("process", flag.ExitOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("process expects exactly one file")
	}
	path := fs.Arg(0)

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	a, err := app.Build(ctx, common.LoadConfig(), logger)
	if err != nil {
		return err
	}
	defer a.Close()

	ext := constants.NormalizeExt(filepath.Ext(path))
	doc := entity.Document{
		Name:       filepath.Base(path),
		Bytes:      data,
		MIMEType:   constants.MIMEForExt(ext),
		SourcePath: path,
	}

	rec, err := a.Orchestrator.Process(common.WithCallerID(ctx, "cli"), doc)
	if rec != nil {
		out, merr := json.MarshalIndent(rec, "", "  ")
		if merr == nil {
			fmt.Println(string(out))
		}
	}
	if err != nil {
		return err
	}
	if rec != nil && rec.State != constants.StateCompleted {
		return fmt.Errorf("job finished in state %s", rec.State)
	}
	return nil
}

func runExport(ctx context.Context, logger *slog.Logger, args []string) error {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	out := fs.String("out", "", "output .xlsx path")
	sinceStr := fs.String("since", "", "only jobs completed on/after this date (AAAA-MM-DD)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *out == "" {
		return fmt.Errorf("export requires -out")
	}
	var since *time.Time
	if *sinceStr != "" {
		t, err := time.Parse("2006-01-02", *sinceStr)
		if err != nil {
			return fmt.Errorf("parse -since: %w", err)
		}
		since = &t
	}

	a, err := app.Build(ctx, common.LoadConfig(), logger)
	if err != nil {
		return err
	}
	defer a.Close()

	svc := export.NewService(a.Store, a.Catalog, logger)
	data, err := svc.ExportCompletedXLSX(ctx, since)
	if err != nil {
		return err
	}
	if err := os.WriteFile(*out, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", *out, err)
	}
	logger.Info("workbook written", "path", *out, "bytes", len(data))
	return nil
}
