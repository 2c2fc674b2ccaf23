package transcribe

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"github.com/gabriel-vasile/mimetype"
)

// Page is one rasterized page of a student's submission.
// Index is zero-based and is the value referenced by PageAssignment.Pages.
type Page struct {
	MIMEType string
	Data     []byte
	Index    int
}

// Number is the one-based page number used in markers and separators.
func (p Page) Number() int {
	return p.Index + 1
}

// DetectMIME fills MIMEType from the page bytes when it is empty.
func (p *Page) DetectMIME() {
	if p.MIMEType == "" {
		p.MIMEType = mimetype.Detect(p.Data).String()
	}
}

// PageSource supplies the ordered pages of one document.
type PageSource interface {
	Pages(ctx context.Context) ([]Page, error)
}

// DirSource loads page images from a directory. Files are ordered by a
// natural sort of their names, so page2.png comes before page10.png.
// Files that are not images are skipped.
type DirSource struct {
	Dir string
}

// Pages implements PageSource.
func (s DirSource) Pages(ctx context.Context) ([]Page, error) {
	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read page directory: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.SliceStable(names, func(i, j int) bool {
		return naturalLess(names[i], names[j])
	})

	pages := make([]Page, 0, len(names))
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		data, err := os.ReadFile(filepath.Join(s.Dir, name)) //nolint:gosec // operator-supplied directory
		if err != nil {
			return nil, fmt.Errorf("failed to read page %s: %w", name, err)
		}

		mime := mimetype.Detect(data)
		if !strings.HasPrefix(mime.String(), "image/") {
			continue
		}

		pages = append(pages, Page{
			Index:    len(pages),
			Data:     data,
			MIMEType: mime.String(),
		})
	}

	return pages, nil
}

// naturalLess compares strings treating runs of digits as numbers.
func naturalLess(a, b string) bool {
	for a != "" && b != "" {
		ra, rb := rune(a[0]), rune(b[0])
		if unicode.IsDigit(ra) && unicode.IsDigit(rb) {
			na, restA := leadingNumber(a)
			nb, restB := leadingNumber(b)
			if na != nb {
				return na < nb
			}
			a, b = restA, restB
			continue
		}
		if ra != rb {
			return ra < rb
		}
		a, b = a[1:], b[1:]
	}
	return len(a) < len(b)
}

func leadingNumber(s string) (int, string) {
	end := 0
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	n, err := strconv.Atoi(s[:end])
	if err != nil {
		return 0, s[end:]
	}
	return n, s[end:]
}
