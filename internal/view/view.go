// Package view renders a saved snapshot as an interactive terminal
// table, one column per sleeper and one row per record field.
package view

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/gdamore/tcell/v2"
	"github.com/jroca/siqscrape/internal/types"
	"github.com/jroca/siqscrape/internal/utils"
	"github.com/rivo/tview"
)

// Load reads a snapshot from a JSON file produced by one of the output
// writers.
func Load(path string) (types.Snapshot, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var snapshot types.Snapshot
	if err := json.Unmarshal(raw, &snapshot); err != nil {
		return nil, fmt.Errorf("%s does not hold a snapshot: %w", path, err)
	}
	if len(snapshot) == 0 {
		return nil, fmt.Errorf("%s holds an empty snapshot", path)
	}
	for name, record := range snapshot {
		if record == nil {
			return nil, fmt.Errorf("%s holds no record for sleeper %s", path, name)
		}
	}
	return snapshot, nil
}

// Show displays the snapshot table until Escape is hit.
func Show(snapshot types.Snapshot) {
	app := tview.NewApplication()
	table := buildTable(snapshot)
	table.SetDoneFunc(func(key tcell.Key) {
		if key == tcell.KeyEscape {
			app.Stop()
		}
	})
	if err := app.SetRoot(table, true).SetFocus(table).Run(); err != nil {
		panic(err)
	}
}

func buildTable(snapshot types.Snapshot) *tview.Table {
	sleepers := make([]string, 0, len(snapshot))
	for name := range snapshot {
		sleepers = append(sleepers, name)
	}
	sort.Strings(sleepers)

	table := tview.NewTable().SetBorders(true)
	table.SetCell(0, 0, tview.NewTableCell("field").
		SetTextColor(tcell.ColorBlue).
		SetAlign(tview.AlignCenter))
	for c, name := range sleepers {
		table.SetCell(0, c+1, tview.NewTableCell(name).
			SetTextColor(tcell.ColorGreen).
			SetAlign(tview.AlignCenter))
	}
	for r, field := range types.FieldNames() {
		table.SetCell(r+1, 0, tview.NewTableCell(field).
			SetTextColor(tcell.ColorGreen).
			SetAlign(tview.AlignLeft))
		for c, name := range sleepers {
			value := snapshot[name].FieldValues()[r]
			table.SetCell(r+1, c+1, tview.NewTableCell(utils.ShortenString(value, 60)).
				SetTextColor(tcell.ColorWhite).
				SetAlign(tview.AlignLeft))
		}
	}
	table.SetFixed(1, 1)
	table.SetSelectable(true, false)
	return table
}
