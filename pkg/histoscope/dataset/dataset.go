// Package dataset loads and saves the text datasets the engine operates on.
// A dataset is an ordered list of rows; the row id is the position in that
// order and stays stable across save/load round trips.
package dataset

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/text/unicode/norm"
)

// TextColumn is the canonical column name rows are stored under once loaded.
const TextColumn = "text"

// Row is one unit of the input dataset.
type Row struct {
	ID       int
	Text     string
	Entities []string // filled by the annotator, empty on fresh load
}

// LoadCSV reads rows from a CSV file, keeping only the named column and
// renaming it to "text". Row ids follow file order.
func LoadCSV(path, column string) ([]Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadRows(f, column)
}

// ReadRows reads rows from CSV data with a header line.
func ReadRows(r io.Reader, column string) ([]Row, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}

	col := -1
	for i, name := range header {
		if strings.TrimSpace(name) == column {
			col = i
			break
		}
	}
	if col < 0 {
		return nil, fmt.Errorf("column %q not found in csv headers %v", column, header)
	}

	var rows []Row
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv record: %w", err)
		}
		text := ""
		if col < len(record) {
			text = record[col]
		}
		rows = append(rows, Row{
			ID:   len(rows),
			Text: CleanText(text),
		})
	}
	return rows, nil
}

// ReadAnnotated reads rows previously written by WriteRows: a "text" column
// plus an optional "entities" column.
func ReadAnnotated(r io.Reader) ([]Row, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	textCol, entCol := -1, -1
	for i, name := range header {
		switch strings.TrimSpace(name) {
		case TextColumn:
			textCol = i
		case "entities":
			entCol = i
		}
	}
	if textCol < 0 {
		return nil, fmt.Errorf("column %q not found in csv headers %v", TextColumn, header)
	}

	var rows []Row
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv record: %w", err)
		}
		row := Row{ID: len(rows)}
		if textCol < len(record) {
			row.Text = record[textCol]
		}
		if entCol >= 0 && entCol < len(record) {
			row.Entities = ParseEntities(record[entCol])
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// WriteRows writes rows as CSV with a "text" and an "entities" column.
// Entities are joined with "|" so the file stays a plain CSV.
func WriteRows(w io.Writer, rows []Row) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{TextColumn, "entities"}); err != nil {
		return err
	}
	for _, row := range rows {
		if err := cw.Write([]string{row.Text, strings.Join(row.Entities, "|")}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ParseEntities splits the "entities" column back into a slice.
func ParseEntities(field string) []string {
	if field == "" {
		return nil
	}
	return strings.Split(field, "|")
}

// CleanText strips markup and normalizes unicode so downstream annotation
// and entity keying see a consistent form. Rows scraped from the web often
// carry tags and entities like &amp;.
func CleanText(s string) string {
	return strings.TrimSpace(norm.NFKC.String(stripHTML(s)))
}

func stripHTML(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return s
	}

	doc, err := html.Parse(strings.NewReader(s))
	if err != nil {
		// Fallback to string if parsing fails
		return s
	}

	var buf strings.Builder
	var extractText func(*html.Node)
	extractText = func(n *html.Node) {
		if n.Type == html.TextNode {
			buf.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			extractText(c)
		}
	}
	extractText(doc)

	return buf.String()
}
