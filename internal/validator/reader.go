package validator

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rm-3284/mle-bench-hpc/internal/registry"
	"github.com/xuri/excelize/v2"
)

// Cada cuántas filas se revisa la cancelación del contexto
const ctxCheckInterval = 1024

// table es una submission ya parseada
type table struct {
	header []string
	rows   [][]string
}

func readTable(ctx context.Context, path, format string) (*table, error) {
	switch format {
	case registry.FormatCSV:
		return readCSV(ctx, path)
	case registry.FormatXLSX:
		return readXLSX(ctx, path)
	default:
		return nil, fmt.Errorf("unsupported format %q", format)
	}
}

func readCSV(ctx context.Context, path string) (*table, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	// Las filas con distinto número de columnas se reportan como submission inválida
	reader.FieldsPerRecord = -1

	t := &table{}
	for line := 0; ; line++ {
		if line%ctxCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}

		if t.header == nil {
			t.header = normalizeHeader(record)
			continue
		}
		t.rows = append(t.rows, record)
	}

	return t, nil
}

func readXLSX(ctx context.Context, path string) (*table, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("no sheets")
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	t := &table{}
	if len(rows) == 0 {
		return t, nil
	}

	t.header = normalizeHeader(rows[0])
	for _, row := range rows[1:] {
		// excelize recorta las celdas vacías al final de cada fila
		for len(row) < len(t.header) {
			row = append(row, "")
		}
		t.rows = append(t.rows, row)
	}

	return t, nil
}

func normalizeHeader(record []string) []string {
	header := make([]string, len(record))
	for i, h := range record {
		if i == 0 {
			h = strings.TrimPrefix(h, "\ufeff")
		}
		header[i] = strings.TrimSpace(h)
	}
	return header
}
