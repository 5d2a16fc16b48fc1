package source

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"ragqa/internal/domain"
)

// FileFetcher reads local .txt, .md and .html files.
type FileFetcher struct{}

func (FileFetcher) Fetch(ctx context.Context, path string) (domain.Document, error) {
	if err := ctx.Err(); err != nil {
		return domain.Document{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.Document{}, err
	}
	var text string
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".txt", ".md", ".markdown", "":
		text = string(data)
	case ".html", ".htm":
		text, err = ExtractText(bytes.NewReader(data))
		if err != nil {
			return domain.Document{}, err
		}
	default:
		return domain.Document{}, fmt.Errorf("unsupported file type %q", ext)
	}
	if strings.TrimSpace(text) == "" {
		return domain.Document{}, fmt.Errorf("file is empty")
	}
	return domain.Document{ID: path, Location: path, Content: text}, nil
}
