// Package parser turns local files into markdown documents ready for
// chunking. Plain text and markdown are read as-is, HTML is converted to
// markdown, and PDF text is extracted page by page. Files with unknown
// extensions are sniffed by content type.
package parser

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/gabriel-vasile/mimetype"
	"github.com/ledongthuc/pdf"

	"knowledgebase/internal/logging"
)

// ErrUnsupportedFormat is returned when a file's format cannot be parsed.
var ErrUnsupportedFormat = errors.New("unsupported format")

// Document is one parsed file with its content normalized to markdown or
// plain text.
type Document struct {
	// Path is the file path the document was read from.
	Path string
	// Title comes from the first markdown heading when present, otherwise
	// the file name without extension.
	Title string
	// Content is the extracted text.
	Content string
	// Format is the lowercased extension without the dot, e.g. "pdf".
	Format string
	Metadata map[string]any
}

var plainTextFormats = map[string]bool{
	"txt":      true,
	"md":       true,
	"markdown": true,
	"rst":      true,
	"json":     true,
	"yaml":     true,
	"yml":      true,
}

// SupportedFormats lists the file extensions ParseFile accepts, sorted.
func SupportedFormats() []string {
	formats := []string{"pdf", "html", "htm"}
	for f := range plainTextFormats {
		formats = append(formats, f)
	}
	sort.Strings(formats)
	return formats
}

// ParseFile parses a single file. Files with an unrecognized extension are
// sniffed by content; unparseable formats return ErrUnsupportedFormat.
func ParseFile(path string) (*Document, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}

	format := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
	if format == "" || (!plainTextFormats[format] && format != "pdf" && format != "html" && format != "htm") {
		sniffed, err := sniffFormat(path)
		if err != nil {
			return nil, err
		}
		format = sniffed
	}

	var content string
	switch {
	case plainTextFormats[format]:
		content, err = readPlainText(path)
	case format == "pdf":
		content, err = readPDF(path)
	case format == "html" || format == "htm":
		content, err = readHTML(path)
	default:
		return nil, fmt.Errorf("%w: %s (.%s)", ErrUnsupportedFormat, path, format)
	}
	if err != nil {
		return nil, err
	}

	return &Document{
		Path:    path,
		Title:   extractTitle(content, path),
		Content: content,
		Format:  format,
		Metadata: map[string]any{
			"filename":   filepath.Base(path),
			"size_bytes": info.Size(),
		},
	}, nil
}

// ParseDir walks a directory and parses every supported file, passing each
// document to visit. Unsupported files are skipped; parse failures are
// logged and skipped. Returns the number of documents parsed.
func ParseDir(ctx context.Context, dir string, recursive bool, visit func(*Document) error) (int, error) {
	logger := logging.FromContext(ctx)

	var parsed int
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			if !recursive && path != dir {
				return fs.SkipDir
			}
			return nil
		}

		doc, err := ParseFile(path)
		if err != nil {
			if !errors.Is(err, ErrUnsupportedFormat) {
				logger.WarnContext(ctx, "failed to parse file", "path", path, "error", err)
			}
			return nil
		}

		if err := visit(doc); err != nil {
			return err
		}
		parsed++
		return nil
	})
	if err != nil {
		return parsed, err
	}
	return parsed, nil
}

func readPlainText(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	return string(data), nil
}

func readHTML(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	markdown, err := htmltomarkdown.ConvertString(string(data))
	if err != nil {
		return "", fmt.Errorf("convert %s: %w", path, err)
	}
	return strings.TrimSpace(markdown), nil
}

func readPDF(path string) (string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("open pdf %s: %w", path, err)
	}
	defer func() {
		_ = f.Close()
	}()

	reader, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("extract pdf text %s: %w", path, err)
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, reader); err != nil {
		return "", fmt.Errorf("extract pdf text %s: %w", path, err)
	}
	return strings.TrimSpace(buf.String()), nil
}

// sniffFormat detects the content type of files whose extension gives no
// hint.
func sniffFormat(path string) (string, error) {
	mtype, err := mimetype.DetectFile(path)
	if err != nil {
		return "", fmt.Errorf("detect type %s: %w", path, err)
	}
	switch {
	case mtype.Is("application/pdf"):
		return "pdf", nil
	case mtype.Is("text/html"):
		return "html", nil
	case strings.HasPrefix(mtype.String(), "text/"):
		return "txt", nil
	}
	return "", fmt.Errorf("%w: %s (%s)", ErrUnsupportedFormat, path, mtype)
}

// extractTitle returns the first ATX heading in content, or the file name
// without extension.
func extractTitle(content, path string) string {
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if after, ok := strings.CutPrefix(line, "# "); ok {
			return strings.TrimSpace(after)
		}
		if line != "" && !strings.HasPrefix(line, "#") {
			break
		}
	}
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
