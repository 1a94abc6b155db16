// Package addressfile reads address lists for batch geocoding from plain
// text, CSV, TSV, and XLSX files.
package addressfile

import (
	"bufio"
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

// Format identifies an input file layout.
type Format string

const (
	FormatText Format = "txt"
	FormatCSV  Format = "csv"
	FormatTSV  Format = "tsv"
	FormatXLSX Format = "xlsx"
)

// defaultColumns are header names recognized as a full address when no
// columns are requested.
var defaultColumns = []string{"address", "full_address", "location"}

// Options configures column selection for tabular input.
type Options struct {
	// Columns names the header columns joined with ", " to form an address,
	// e.g. street, city, state, zip. Empty picks a column named "address"
	// (or full_address/location), falling back to the first column.
	Columns []string

	// NoHeader treats the first row as data. Columns must be empty.
	NoHeader bool

	// Sheet selects an XLSX sheet by name. Default is the first sheet.
	Sheet string
}

// DetectFormat maps a file extension to a Format.
func DetectFormat(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt", "":
		return FormatText, nil
	case ".csv":
		return FormatCSV, nil
	case ".tsv":
		return FormatTSV, nil
	case ".xlsx":
		return FormatXLSX, nil
	default:
		return "", eris.Errorf("addressfile: unsupported file type %q", filepath.Ext(path))
	}
}

// Read loads addresses from path, choosing the parser by extension. Blank
// rows are skipped.
func Read(path string, opts Options) ([]string, error) {
	format, err := DetectFormat(path)
	if err != nil {
		return nil, err
	}
	if format == FormatXLSX {
		return readXLSX(path, opts)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrap(err, "addressfile: open")
	}
	defer f.Close() //nolint:errcheck

	return ReadFrom(f, format, opts)
}

// ReadFrom loads addresses from r in the given text-based format.
func ReadFrom(r io.Reader, format Format, opts Options) ([]string, error) {
	switch format {
	case FormatText:
		return readText(r)
	case FormatCSV:
		return readDelimited(r, ',', opts)
	case FormatTSV:
		return readDelimited(r, '\t', opts)
	default:
		return nil, eris.Errorf("addressfile: format %q cannot be read from a stream", format)
	}
}

// readText reads one address per line. Lines starting with # are comments.
func readText(r io.Reader) ([]string, error) {
	var out []string
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1<<20)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	if err := sc.Err(); err != nil {
		return nil, eris.Wrap(err, "addressfile: read text")
	}
	return out, nil
}

func readDelimited(r io.Reader, delim rune, opts Options) ([]string, error) {
	reader := csv.NewReader(r)
	reader.Comma = delim
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	var rows [][]string
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrap(err, "addressfile: read row")
		}
		rows = append(rows, record)
	}
	return extract(rows, opts)
}

func readXLSX(path string, opts Options) ([]string, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "addressfile: open xlsx")
	}

	var sheet *xlsx.Sheet
	switch {
	case opts.Sheet != "":
		s, ok := f.Sheet[opts.Sheet]
		if !ok {
			return nil, eris.Errorf("addressfile: sheet %q not found", opts.Sheet)
		}
		sheet = s
	case len(f.Sheets) == 0:
		return nil, eris.New("addressfile: workbook has no sheets")
	default:
		sheet = f.Sheets[0]
	}

	rows := make([][]string, 0, len(sheet.Rows))
	for _, row := range sheet.Rows {
		cells := make([]string, len(row.Cells))
		for j, cell := range row.Cells {
			cells[j] = cell.String()
		}
		rows = append(rows, cells)
	}
	return extract(rows, opts)
}

// extract resolves the address columns against the header and joins each
// data row.
func extract(rows [][]string, opts Options) ([]string, error) {
	if len(rows) == 0 {
		return nil, nil
	}
	if opts.NoHeader && len(opts.Columns) > 0 {
		return nil, eris.New("addressfile: columns require a header row")
	}

	idx := []int{0}
	data := rows
	if !opts.NoHeader {
		var err error
		idx, err = columnIndexes(rows[0], opts.Columns)
		if err != nil {
			return nil, err
		}
		data = rows[1:]
	}

	var out []string
	for _, row := range data {
		parts := make([]string, 0, len(idx))
		for _, i := range idx {
			if i < len(row) {
				if v := strings.TrimSpace(row[i]); v != "" {
					parts = append(parts, v)
				}
			}
		}
		if len(parts) == 0 {
			continue
		}
		out = append(out, strings.Join(parts, ", "))
	}
	return out, nil
}

func columnIndexes(header, columns []string) ([]int, error) {
	pos := make(map[string]int, len(header))
	for i, h := range header {
		key := strings.ToLower(strings.TrimSpace(h))
		if _, dup := pos[key]; !dup {
			pos[key] = i
		}
	}

	if len(columns) == 0 {
		for _, name := range defaultColumns {
			if i, ok := pos[name]; ok {
				return []int{i}, nil
			}
		}
		return []int{0}, nil
	}

	idx := make([]int, 0, len(columns))
	for _, c := range columns {
		i, ok := pos[strings.ToLower(strings.TrimSpace(c))]
		if !ok {
			return nil, eris.Errorf("addressfile: column %q not found in header", c)
		}
		idx = append(idx, i)
	}
	return idx, nil
}
