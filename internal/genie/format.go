package genie

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
)

// DefaultMaxRows caps the rows rendered by FormatMarkdownTable.
const DefaultMaxRows = 10

// FormatMarkdownTable renders result as a padded markdown table of at most
// maxRows rows, with footers for row capping and service-side truncation.
func FormatMarkdownTable(result Result, maxRows int) string {
	if result.Error != "" {
		return "**Error**: " + result.Error
	}
	if result.RowCount == 0 || len(result.Rows) == 0 {
		return "*No results found*"
	}
	if maxRows <= 0 {
		maxRows = DefaultMaxRows
	}

	shown := result.Rows
	if len(shown) > maxRows {
		shown = shown[:maxRows]
	}
	cells := make([][]string, 0, len(shown))
	for _, record := range shown {
		line := make([]string, len(result.Columns))
		for i, col := range result.Columns {
			line[i] = formatCell(record[col])
		}
		cells = append(cells, line)
	}

	var sb strings.Builder
	table := tablewriter.NewWriter(&sb)
	table.SetHeader(result.Columns)
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetBorders(tablewriter.Border{Left: true, Top: false, Right: true, Bottom: false})
	table.SetCenterSeparator("|")
	table.AppendBulk(cells)
	table.Render()

	out := strings.TrimRight(sb.String(), "\n")
	if result.RowCount > maxRows {
		out += fmt.Sprintf("\n\n*Showing %d of %d rows*", maxRows, result.RowCount)
	}
	if result.Truncated {
		out += "\n\n*Note: results were truncated by the query service*"
	}
	return out
}

func formatCell(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case json.Number:
		return v.String()
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		return fmt.Sprint(v)
	}
}
