package ingest

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"iter"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/de-tools/advisor-reports/pkg/models/domain"
)

// RequiredColumns must all be present in a CSV header.
var RequiredColumns = []string{
	domain.FieldCategory,
	domain.FieldBusinessImpact,
	domain.FieldRecommendation,
	domain.FieldSubscriptionID,
	domain.FieldResourceGroup,
	domain.FieldResourceName,
	domain.FieldResourceType,
}

var knownColumns = map[string]bool{
	domain.FieldCategory:         true,
	domain.FieldBusinessImpact:   true,
	domain.FieldRecommendation:   true,
	domain.FieldSubscriptionID:   true,
	domain.FieldSubscriptionName: true,
	domain.FieldResourceGroup:    true,
	domain.FieldResourceName:     true,
	domain.FieldResourceType:     true,
	domain.FieldPotentialSavings: true,
	domain.FieldCurrency:         true,
}

// Header spellings seen in Azure Advisor portal exports.
var columnAliases = map[string]string{
	"potential annual cost savings": domain.FieldPotentialSavings,
	"potential annual savings":      domain.FieldPotentialSavings,
	"savings currency":              domain.FieldCurrency,
	"impact":                        domain.FieldBusinessImpact,
	"resource":                      domain.FieldResourceName,
	"type":                          domain.FieldResourceType,
}

const utf8BOM = "\ufeff"

// FileOpener resolves a source file path to its content.
type FileOpener func(ctx context.Context, path string) (io.ReadCloser, error)

func OpenLocalFile(_ context.Context, path string) (io.ReadCloser, error) {
	return os.Open(path)
}

// OpenInDir resolves paths relative to dir and refuses any path that escapes it.
func OpenInDir(dir string) FileOpener {
	return func(_ context.Context, path string) (io.ReadCloser, error) {
		root, err := os.OpenRoot(dir)
		if err != nil {
			return nil, fmt.Errorf("open upload dir: %w", err)
		}
		defer root.Close()
		return root.Open(filepath.Clean(path))
	}
}

type CSVAdapter struct {
	open FileOpener
}

func NewCSVAdapter(open FileOpener) *CSVAdapter {
	if open == nil {
		open = OpenLocalFile
	}
	return &CSVAdapter{open: open}
}

func (a *CSVAdapter) Kind() domain.SourceKind {
	return domain.SourceKindCSVUpload
}

func (a *CSVAdapter) Fetch(ctx context.Context, ref domain.SourceRef) iter.Seq2[domain.SourceRow, error] {
	return func(yield func(domain.SourceRow, error) bool) {
		if ref.FilePath == "" {
			yield(domain.SourceRow{}, domain.Errorf(domain.ErrorKindInvalidFormat, "csv source requires a file"))
			return
		}
		origin := filepath.Base(ref.FilePath)

		rc, err := a.open(ctx, ref.FilePath)
		if err != nil {
			yield(domain.SourceRow{}, domain.NewError(domain.ErrorKindInternal,
				fmt.Sprintf("could not read %s", origin), err))
			return
		}
		defer rc.Close()

		reader := csv.NewReader(bufio.NewReader(rc))
		reader.FieldsPerRecord = -1
		reader.TrimLeadingSpace = true

		header, err := reader.Read()
		if errors.Is(err, io.EOF) {
			yield(domain.SourceRow{}, domain.Errorf(domain.ErrorKindInvalidFormat, "%s is empty, a header row is required", origin))
			return
		}
		if err != nil {
			yield(domain.SourceRow{}, domain.NewError(domain.ErrorKindInvalidFormat,
				fmt.Sprintf("%s has a malformed header", origin), err))
			return
		}

		columns, err := mapHeader(header)
		if err != nil {
			yield(domain.SourceRow{}, domain.NewError(domain.ErrorKindInvalidFormat,
				fmt.Sprintf("%s: %v", origin, err), nil))
			return
		}

		for index := 0; ; index++ {
			record, err := reader.Read()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield(domain.SourceRow{}, domain.NewError(domain.ErrorKindInvalidFormat,
					fmt.Sprintf("%s: malformed data row %d", origin, index+1), err))
				return
			}

			fields := make(map[string]string, len(columns))
			for key, col := range columns {
				var value string
				if col < len(record) {
					value = strings.TrimSpace(record[col])
				}
				if !utf8.ValidString(value) {
					yield(domain.SourceRow{}, domain.Errorf(domain.ErrorKindInvalidFormat,
						"%s: data row %d is not valid UTF-8", origin, index+1))
					return
				}
				fields[key] = value
			}

			if !yield(domain.SourceRow{Origin: origin, Index: index, Fields: fields}, nil) {
				return
			}
		}
	}
}

// ValidateHeader checks a CSV header without reading any data rows.
func (a *CSVAdapter) ValidateHeader(ctx context.Context, path string) error {
	for _, err := range a.Fetch(ctx, domain.SourceRef{FilePath: path}) {
		return err
	}
	return nil
}

// mapHeader returns canonical column name -> record index. Unknown columns are ignored.
func mapHeader(header []string) (map[string]int, error) {
	columns := make(map[string]int, len(header))
	for i, raw := range header {
		if i == 0 {
			raw = strings.TrimPrefix(raw, utf8BOM)
		}
		if !utf8.ValidString(raw) {
			return nil, fmt.Errorf("header is not valid UTF-8")
		}
		name := canonicalColumn(raw)
		if alias, ok := columnAliases[name]; ok {
			name = alias
		}
		if !knownColumns[name] {
			continue
		}
		if _, dup := columns[name]; !dup {
			columns[name] = i
		}
	}

	var missing []string
	for _, col := range RequiredColumns {
		if _, ok := columns[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, fmt.Errorf("missing required columns: %s", strings.Join(missing, ", "))
	}
	return columns, nil
}

func canonicalColumn(raw string) string {
	return strings.ToLower(strings.Join(strings.Fields(raw), " "))
}
