// Package extract はPDFドキュメントからのテキスト抽出を提供します。
package extract

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	pdfapi "github.com/pdfcpu/pdfcpu/pkg/api"

	"github.com/yourusername/findoc-analyzer/internal/storage"
)

var (
	// ErrNotFound は参照先のドキュメントが存在しない場合に返されます。
	ErrNotFound = errors.New("source document not found")
	// ErrUnreadable はドキュメントが破損している等で読み取れない場合に返されます。
	ErrUnreadable = errors.New("source document is unreadable")
)

// 巨大なドキュメントでトークン上限を超えないための切り詰めマーカーです。
const truncationMarker = "\n...[Text truncated due to length]..."

// Service は保管済みドキュメントの参照名からプレーンテキストを取り出します。
type Service struct {
	files    *storage.Local
	maxChars int
}

// NewService は Service を作成します。maxChars が0以下の場合は切り詰めを行いません。
func NewService(files *storage.Local, maxChars int) *Service {
	return &Service{
		files:    files,
		maxChars: maxChars,
	}
}

// ExtractText は参照名のPDFからテキストを抽出します。
// ページごとのコンテンツストリームを展開し、テキスト描画オペレータの
// 文字列を連結して返します。
func (s *Service) ExtractText(ctx context.Context, ref string) (string, error) {
	if ref == "" {
		return "", fmt.Errorf("%w: empty reference", ErrNotFound)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	path := s.files.Path(ref)
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, ref)
		}
		return "", err
	}

	outDir, err := os.MkdirTemp("", "extract-*")
	if err != nil {
		return "", err
	}
	defer os.RemoveAll(outDir)

	if err := pdfapi.ExtractContentFile(path, outDir, nil, nil); err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnreadable, err)
	}

	pages, err := readExtractedPages(outDir)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnreadable, err)
	}

	var b strings.Builder
	for _, page := range pages {
		text := collapseBlankLines(strings.TrimSpace(textFromContent(page)))
		if text == "" {
			continue
		}
		b.WriteString(text)
		b.WriteString("\n")
	}

	full := b.String()
	if s.maxChars > 0 && len(full) > s.maxChars {
		return full[:s.maxChars] + truncationMarker, nil
	}
	return full, nil
}

// readExtractedPages は展開されたページコンテンツをページ番号順で返します。
func readExtractedPages(dir string) ([][]byte, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Slice(names, func(i, j int) bool {
		pi, pj := pageNumber(names[i]), pageNumber(names[j])
		if pi != pj {
			return pi < pj
		}
		return names[i] < names[j]
	})

	pages := make([][]byte, 0, len(names))
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		pages = append(pages, data)
	}
	return pages, nil
}

// pageNumber はファイル名末尾のページ番号（例: x_Content_page_12.txt）を取り出します。
func pageNumber(name string) int {
	base := strings.TrimSuffix(name, filepath.Ext(name))
	idx := strings.LastIndex(base, "_")
	if idx < 0 {
		return 0
	}
	n, err := strconv.Atoi(base[idx+1:])
	if err != nil {
		return 0
	}
	return n
}

// collapseBlankLines は連続する空行を1つの改行に畳み込みます。
func collapseBlankLines(text string) string {
	for strings.Contains(text, "\n\n") {
		text = strings.ReplaceAll(text, "\n\n", "\n")
	}
	return text
}
