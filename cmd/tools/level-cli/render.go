package main

import (
	"fmt"
	"strings"

	"github.com/annel0/blockroll/internal/game"
	"github.com/annel0/blockroll/internal/level"
)

// tileBlock - клетка, на которой лежит блок
const tileBlock = 'B'

// render рисует схему уровня с блоком поверх
func render(lvl *level.Level, snap game.Snapshot) string {
	layout, origin := lvl.Layout()
	lines := strings.Split(strings.TrimRight(layout, "\n"), "\n")
	rows := make([][]byte, len(lines))
	for i, l := range lines {
		rows[i] = []byte(l)
	}

	for _, c := range snap.Cells {
		r := c.X - int(origin.X)
		col := c.Y - int(origin.Z)
		if r >= 0 && r < len(rows) && col >= 0 && col < len(rows[r]) {
			rows[r][col] = tileBlock
		}
	}

	var sb strings.Builder
	for _, r := range rows {
		sb.Write(r)
		sb.WriteByte('\n')
	}
	fmt.Fprintf(&sb, "%s moves=%d\n", snap.Pose, snap.Moves)
	return sb.String()
}
