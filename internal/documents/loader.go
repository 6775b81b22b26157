package documents

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/ledongthuc/pdf"
)

// Loader extracts the raw text of one file
type Loader interface {
	Extract(ctx context.Context, path string) (string, error)
}

// DefaultLoaders maps the supported extensions to their loaders
func DefaultLoaders() map[string]Loader {
	text := TextLoader{}
	return map[string]Loader{
		".pdf": PDFLoader{},
		".txt": text,
		".md":  text,
	}
}

// TextLoader reads UTF-8 text files (.txt, .md)
type TextLoader struct{}

func (TextLoader) Extract(ctx context.Context, path string) (string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(content), nil
}

// PDFLoader extracts page text from PDF files, pages separated by a blank line
type PDFLoader struct{}

func (PDFLoader) Extract(ctx context.Context, path string) (string, error) {
	f, reader, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()

	var b strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("extract page %d: %w", i, err)
		}
		b.WriteString(text)
		b.WriteString("\n\n")
	}
	return b.String(), nil
}
