package site

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var bondCodePattern = regexp.MustCompile(`^\d{6}$`)

// BondRow is one row of the subscription table
type BondRow struct {
	Code  string   `json:"code" yaml:"code"`
	Name  string   `json:"name" yaml:"name"`
	Cells []string `json:"cells" yaml:"cells"`
}

// Text joins the row's cells with single spaces
func (r BondRow) Text() string {
	return strings.Join(r.Cells, " ")
}

// ParseInventory parses the inner HTML of the subscription table body.
// Rows without any text are skipped.
func ParseInventory(tbodyHTML string) ([]BondRow, error) {
	// Bare <tr> fragments are dropped by the HTML parser outside a table
	wrapped := "<table><tbody>" + tbodyHTML + "</tbody></table>"
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(wrapped))
	if err != nil {
		return nil, fmt.Errorf("failed to parse inventory table: %w", err)
	}

	var rows []BondRow
	doc.Find("tbody > tr").Each(func(i int, tr *goquery.Selection) {
		row := BondRow{}
		tr.Find("td").Each(func(j int, td *goquery.Selection) {
			text := strings.Join(strings.Fields(td.Text()), " ")
			if text == "" {
				return
			}
			row.Cells = append(row.Cells, text)
		})
		if len(row.Cells) == 0 {
			return
		}
		for k, cell := range row.Cells {
			if bondCodePattern.MatchString(cell) {
				row.Code = cell
				if k+1 < len(row.Cells) {
					row.Name = row.Cells[k+1]
				}
				break
			}
		}
		rows = append(rows, row)
	})

	return rows, nil
}

// IsEmptyInventory reports whether the table offers nothing: no rows, or a first row carrying the placeholder text
func IsEmptyInventory(rows []BondRow, noDataText string) bool {
	if len(rows) == 0 {
		return true
	}
	return noDataText != "" && strings.Contains(rows[0].Text(), noDataText)
}
