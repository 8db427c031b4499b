// Package pdf extracts text from PDF documents.
//
// Two strategies are tried in order: a layout-aware pass through poppler's
// pdftotext, then a pure-Go page-text pass. ExtractionFailure is returned
// only when both fail or produce no text.
package pdf

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/custodia-labs/legalvault/internal/core/domain"
	"github.com/custodia-labs/legalvault/internal/core/ports/driven"
	"github.com/custodia-labs/legalvault/internal/logger"
	"github.com/custodia-labs/legalvault/internal/normalisers"
)

// Ensure Normaliser implements the interface.
var _ driven.Normaliser = (*Normaliser)(nil)

// ErrPDFToolNotFound indicates pdftotext is not installed.
var ErrPDFToolNotFound = errors.New("pdftotext not found in PATH")

// CommandRunner runs an external command and returns its stdout.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// execRunner runs commands with os/exec.
type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	if _, err := exec.LookPath(name); err != nil {
		return nil, ErrPDFToolNotFound
	}
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("%w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return out, nil
}

// Inspection is what the page-text strategy learns about a file.
type Inspection struct {
	Pages []string
	Info  map[string]string
}

// Inspector opens a PDF in-process and returns its page texts and
// document info dictionary.
type Inspector func(content []byte) (*Inspection, error)

// Normaliser handles PDF documents.
type Normaliser struct {
	runner  CommandRunner
	inspect Inspector
}

// New creates a PDF normaliser using pdftotext and the built-in reader.
func New() *Normaliser {
	return &Normaliser{runner: execRunner{}, inspect: inspectPDF}
}

// NewWithRunner creates a PDF normaliser with a custom command runner.
func NewWithRunner(runner CommandRunner) *Normaliser {
	return &Normaliser{runner: runner, inspect: inspectPDF}
}

// NewWithStrategies replaces both strategies. Used by tests.
func NewWithStrategies(runner CommandRunner, inspect Inspector) *Normaliser {
	return &Normaliser{runner: runner, inspect: inspect}
}

// CheckAvailable reports whether pdftotext can be found.
func CheckAvailable() error {
	if _, err := exec.LookPath("pdftotext"); err != nil {
		return ErrPDFToolNotFound
	}
	return nil
}

// InstallInstructions returns platform hints for installing pdftotext.
func InstallInstructions() string {
	return "Layout-aware PDF extraction requires pdftotext (poppler).\n" +
		"  macOS:  brew install poppler\n" +
		"  Debian: apt install poppler-utils\n" +
		"Without it, the built-in page-text extractor is used."
}

// Format returns the format tag this normaliser handles.
func (n *Normaliser) Format() domain.Format {
	return domain.FormatPDF
}

// Normalise extracts text from a PDF.
func (n *Normaliser) Normalise(ctx context.Context, src *domain.SourceDocument) (*domain.ParsedDocument, error) {
	if src == nil {
		return nil, domain.ErrInvalidInput
	}

	// Page count and the info dictionary come from the in-process reader
	// regardless of which strategy produced the text.
	inspection, inspectErr := n.inspect(src.Content)

	text, layoutPages, layoutErr := n.extractLayout(ctx, src.Content)
	strategy := "layout"
	if layoutErr != nil || text == "" {
		logger.Debug("pdf: layout strategy failed for %s: %v", src.URI, layoutErr)
		strategy = "page-text"
		text = ""
		if inspectErr == nil {
			text = normalisers.NormalizeLines(strings.Join(inspection.Pages, "\n"))
		}
	}
	if text == "" {
		return nil, fmt.Errorf("%w: pdf: layout: %v; page-text: %v",
			domain.ErrExtractionFailure, describe(layoutErr, "no text"), describe(inspectErr, "no text"))
	}

	parsed := &domain.ParsedDocument{
		Text:     text,
		Metadata: normalisers.CopyMetadata(src.Metadata),
	}
	if parsed.Metadata == nil {
		parsed.Metadata = make(map[string]any)
	}
	parsed.Metadata["pdf_strategy"] = strategy

	switch {
	case inspectErr == nil:
		pages := len(inspection.Pages)
		parsed.PageCount = &pages
	case strategy == "layout" && layoutPages > 0:
		parsed.PageCount = &layoutPages
	}
	if inspectErr == nil {
		for _, key := range []string{"title", "author", "subject", "creator"} {
			if v := inspection.Info[key]; v != "" {
				parsed.Metadata[key] = v
			}
		}
	}

	parsed.Title = extractTitle(parsed.Metadata, text, src.URI)
	return parsed, nil
}

// extractLayout runs pdftotext -layout over a temporary copy of content.
// pdftotext ends every page with a form feed, which yields the page count.
func (n *Normaliser) extractLayout(ctx context.Context, content []byte) (string, int, error) {
	tmp, err := os.CreateTemp("", "legalvault-*.pdf")
	if err != nil {
		return "", 0, fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		return "", 0, fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", 0, fmt.Errorf("close temp file: %w", err)
	}

	out, err := n.runner.Run(ctx, "pdftotext", "-layout", "-enc", "UTF-8", tmp.Name(), "-")
	if err != nil {
		return "", 0, fmt.Errorf("pdftotext failed: %w", err)
	}
	return normalisers.NormalizeLines(string(out)), bytes.Count(out, []byte("\f")), nil
}

// extractTitle prefers the info dictionary title, then the first line.
func extractTitle(meta map[string]any, content, uri string) string {
	if t, ok := meta["title"].(string); ok && strings.TrimSpace(t) != "" {
		return strings.TrimSpace(t)
	}
	return normalisers.FirstLineTitle(content, uri)
}

func describe(err error, fallback string) string {
	if err != nil {
		return err.Error()
	}
	return fallback
}

// inspectPDF reads every page's plain text and the info dictionary.
func inspectPDF(content []byte) (insp *Inspection, err error) {
	// The reader panics on some malformed files.
	defer func() {
		if r := recover(); r != nil {
			insp, err = nil, fmt.Errorf("pdf reader: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}

	insp = &Inspection{Info: make(map[string]string)}
	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			insp.Pages = append(insp.Pages, "")
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", i, err)
		}
		insp.Pages = append(insp.Pages, text)
	}

	info := r.Trailer().Key("Info")
	for key, field := range map[string]string{"title": "Title", "author": "Author", "subject": "Subject", "creator": "Creator"} {
		if v := strings.TrimSpace(info.Key(field).Text()); v != "" {
			insp.Info[key] = v
		}
	}
	return insp, nil
}
