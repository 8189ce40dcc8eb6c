package ui

import (
	"strconv"

	"github.com/CloudNativeWorks/sak-client/internal/timing"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

const maxPayloadWidth = 40

// ItemRow is one line of the timed-send table
type ItemRow struct {
	Item    timing.Item
	Running bool
}

// ItemsTable renders timed sends the way the sending page lists them
func ItemsTable(rows []ItemRow) string {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(dimStyle).
		Headers("ID", "ON", "INTERVAL", "FORMAT", "COMMENT", "DATA").
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle.Padding(0, 1)
			}
			return lipgloss.NewStyle().Padding(0, 1)
		})

	for _, r := range rows {
		on := ""
		if r.Running {
			on = infoStyle.Render("*")
		}
		t.Row(
			strconv.FormatInt(r.Item.ID, 10),
			on,
			strconv.FormatUint(uint64(r.Item.Interval), 10)+"ms",
			r.Item.Format.String(),
			r.Item.Comment,
			truncate(r.Item.Payload, maxPayloadWidth),
		)
	}
	return t.String()
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n-3]) + "..."
}
