package main

import (
	"log"
	"math/rand"
	"os"

	"github.com/dot5enko/sparsedb/block"
	"github.com/dot5enko/sparsedb/compression"
	"github.com/dot5enko/sparsedb/manager"
	"github.com/fatih/color"
)

const demoBlocksize = 1024

func gen_sparse_block(id uint64, rows uint32, cols []string, fillPercent int) manager.RowBlock {
	rb := manager.RowBlock{
		BlockId: id,
		Rows:    rows,
		Columns: map[string]block.ColumnEntries{},
	}

	for _, col := range cols {
		entries := block.ColumnEntries{}

		for local := uint32(0); local < rows; local++ {
			if rand.Intn(100) < fillPercent {
				entries.Rows = append(entries.Rows, local)
				entries.Values = append(entries.Values, float64(rand.Int63n(50000)))
			}
		}

		rb.Columns[col] = entries
	}

	return rb
}

func main() {
	cols := []string{"created_at", "value", "flags", "score"}

	m := manager.New(manager.ManagerConfig{
		PathToStorage: "./storage",
		Name:          "health_checks",
		Compression:   compression.Lz4,
	})

	if m.Exists() {
		if attachErr := m.Attach(); attachErr != nil {
			panic(attachErr)
		}
	} else {
		if createErr := m.Create(cols); createErr != nil {
			panic(createErr)
		}

		blocks := []manager.RowBlock{
			gen_sparse_block(0, demoBlocksize, cols, 20),
			gen_sparse_block(1, demoBlocksize, cols, 5),
		}

		if putErr := m.PutDataBlocks(demoBlocksize, blocks); putErr != nil {
			panic(putErr)
		}
	}

	defer m.Close()

	rows, _ := m.Rows()
	log.Printf(" instance holds %d rows", rows)

	for _, expr := range []string{
		"created_at value &",
		"created_at value |",
		"flags score ^",
		"created_at !",
		"created_at value -",
		"created_at&value", // formatter handles unspaced operators
	} {
		indices, findErr := m.Find(expr)
		if findErr != nil {
			color.Red("query '%s' failed: %v", expr, findErr)
			os.Exit(1)
		}

		log.Printf(" %s -> %s rows", color.CyanString("%-20s", expr), color.GreenString("%d", len(indices)))
	}

	matches, findErr := m.Find("created_at value &")
	if findErr != nil {
		panic(findErr)
	}

	if len(matches) > 8 {
		matches = matches[:8]
	}

	data, getErr := m.GetData([]string{"created_at", "value"}, matches)
	if getErr != nil {
		panic(getErr)
	}

	for _, t := range data.Triples {
		log.Printf("  row %6d  %-12s %v", t.Row, t.Column, t.Value)
	}
}
