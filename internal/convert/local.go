package convert

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/mvbarbosa/docetl/constants"
	"github.com/mvbarbosa/docetl/internal/common"
	"github.com/mvbarbosa/docetl/internal/entity"
	"github.com/mvbarbosa/docetl/internal/quality"
)

// LocalConfig configures the offline converter binaries.
type LocalConfig struct {
	Pdftotext     string // binary name or absolute path; if empty -> "pdftotext"
	Pdftoppm      string
	Tesseract     string
	TesseractLang string // default "por"
	DPI           int    // rasterization DPI for scanned PDFs, default 300
	MaxPages      int    // 0 = no limit
}

// Local is the primary offline provider: pdftotext for digital PDFs,
// pdftoppm+tesseract for scanned ones, tesseract for images, passthrough for
// plain text.
type Local struct {
	cfg    LocalConfig
	runner Runner
	logger *slog.Logger
}

func NewLocal(cfg LocalConfig, logger *slog.Logger) *Local {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Pdftotext == "" {
		cfg.Pdftotext = "pdftotext"
	}
	if cfg.Pdftoppm == "" {
		cfg.Pdftoppm = "pdftoppm"
	}
	if cfg.Tesseract == "" {
		cfg.Tesseract = "tesseract"
	}
	if cfg.TesseractLang == "" {
		cfg.TesseractLang = "por"
	}
	if cfg.DPI <= 0 {
		cfg.DPI = 300
	}
	return &Local{cfg: cfg, runner: execRunner{}, logger: logger}
}

func (l *Local) Name() string { return "local" }

func (l *Local) Supports(format string) bool {
	switch format {
	case constants.PDF, constants.IMAGE, constants.TXT:
		return true
	}
	return false
}

func (l *Local) Convert(ctx context.Context, doc entity.Document) (Output, error) {
	start := time.Now()
	format := constants.MapExtToFormat(doc.Ext())
	if !l.Supports(format) {
		return Output{}, fmt.Errorf("local: %q: %w", doc.Ext(), common.ErrUnsupportedFormat)
	}

	path, cleanup, err := l.materialize(doc)
	if err != nil {
		return Output{}, fmt.Errorf("local: stage input: %w", err)
	}
	if cleanup != nil {
		defer cleanup()
	}

	var out Output
	switch format {
	case constants.TXT:
		out = Output{Text: string(doc.Bytes), Pages: 1, NativeConfidence: quality.NoNative}
	case constants.PDF:
		out, err = l.convertPDF(ctx, path)
	case constants.IMAGE:
		out, err = l.convertImage(ctx, path)
	}
	if err != nil {
		return Output{}, err
	}
	out.Text = normalize(out.Text)
	out.Duration = time.Since(start)
	l.logger.Debug("local conversion done",
		"name", doc.Name, "format", format,
		"pages", out.Pages, "chars", len(out.Text),
		"duration_ms", out.Duration.Milliseconds())
	return out, nil
}

// materialize returns a filesystem path for the document, writing a temp file
// when the bytes arrived in memory.
func (l *Local) materialize(doc entity.Document) (string, func(), error) {
	if doc.SourcePath != "" {
		return doc.SourcePath, nil, nil
	}
	f, err := os.CreateTemp("", "docetl-*."+doc.Ext())
	if err != nil {
		return "", nil, err
	}
	if _, err := f.Write(doc.Bytes); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", nil, err
	}
	f.Close()
	name := f.Name()
	return name, func() { os.Remove(name) }, nil
}

func (l *Local) convertPDF(ctx context.Context, path string) (Output, error) {
	// pdftotext -layout -enc UTF-8 -eol unix <path> -
	raw, errb, err := l.runner.Run(ctx, l.cfg.Pdftotext, "-layout", "-enc", "UTF-8", "-eol", "unix", path, "-")
	if err != nil {
		return Output{}, mapExecErr(ctx, "pdftotext", errb, err)
	}
	text := string(raw)
	pages := 1 + strings.Count(text, "\f")

	// digital text layer present: good enough, no OCR pass
	if len(strings.TrimSpace(text)) >= 32 {
		return Output{Text: text, Pages: pages, NativeConfidence: quality.NoNative, Warnings: nil}, nil
	}

	// scanned PDF: rasterize and OCR each page
	l.logger.Debug("pdf has no text layer, falling back to ocr", "path", path)
	return l.pdfOCR(ctx, path)
}

func (l *Local) pdfOCR(ctx context.Context, path string) (Output, error) {
	tmpDir, err := os.MkdirTemp("", "docetl-pp-*")
	if err != nil {
		return Output{}, err
	}
	defer os.RemoveAll(tmpDir)

	prefix := filepath.Join(tmpDir, "page")
	// pdftoppm -r 300 -png <in.pdf> <tmp/page>
	if _, errb, err := l.runner.Run(ctx, l.cfg.Pdftoppm, "-r", fmt.Sprintf("%d", l.cfg.DPI), "-png", path, prefix); err != nil {
		return Output{}, mapExecErr(ctx, "pdftoppm", errb, err)
	}

	matches, _ := filepath.Glob(prefix + "-*.png")
	sort.Strings(matches)
	if l.cfg.MaxPages > 0 && len(matches) > l.cfg.MaxPages {
		matches = matches[:l.cfg.MaxPages]
	}
	if len(matches) == 0 {
		return Output{}, fmt.Errorf("local: no pages rendered: %w", common.ErrProviderRejected)
	}

	var b strings.Builder
	var warns []string
	for _, img := range matches {
		txt, err := l.tesseract(ctx, img)
		if err != nil {
			warns = append(warns, err.Error())
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n\f\n")
		}
		b.WriteString(txt)
	}
	return Output{Text: b.String(), Pages: len(matches), NativeConfidence: quality.NoNative, Warnings: warns}, nil
}

func (l *Local) convertImage(ctx context.Context, path string) (Output, error) {
	txt, err := l.tesseract(ctx, path)
	if err != nil {
		return Output{}, err
	}
	return Output{Text: txt, Pages: 1, NativeConfidence: quality.NoNative}, nil
}

func (l *Local) tesseract(ctx context.Context, path string) (string, error) {
	// tesseract <file> stdout -l <lang>
	out, errb, err := l.runner.Run(ctx, l.cfg.Tesseract, path, "stdout", "-l", l.cfg.TesseractLang)
	if err != nil {
		return "", mapExecErr(ctx, "tesseract", errb, err)
	}
	return string(out), nil
}

// mapExecErr folds external-binary failures onto the pipeline taxonomy: a
// missing binary or elapsed deadline is transient, anything the tool itself
// choked on means this document is beyond this provider.
func mapExecErr(ctx context.Context, tool string, stderr []byte, err error) error {
	if ctx.Err() != nil {
		return fmt.Errorf("%s: %v: %w", tool, ctx.Err(), common.ErrProviderUnavailable)
	}
	if errors.Is(err, exec.ErrNotFound) {
		return fmt.Errorf("%s: binary not found: %w", tool, common.ErrProviderUnavailable)
	}
	msg := strings.TrimSpace(string(stderr))
	if msg == "" {
		msg = err.Error()
	}
	return fmt.Errorf("%s: %s: %w", tool, truncate(msg, 512), common.ErrProviderRejected)
}

// normalize collapses CRLF and trims trailing whitespace per line.
func normalize(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	lines := strings.Split(s, "\n")
	for i, ln := range lines {
		lines[i] = strings.TrimRight(ln, " \t")
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
