// SPDX-License-Identifier: MPL-2.0

package materialize

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/datafy/datafy/pkg/artifact"

	"github.com/extrame/xls"
	"github.com/xuri/excelize/v2"
)

func decodeCSV(m *Materializer, hint artifact.TypeHint, src Source) (Materialized, error) {
	r := csv.NewReader(bytes.NewReader(m.text(src)))
	// Column consistency is the consumer's concern.
	r.FieldsPerRecord = -1

	records, err := r.ReadAll()
	if err != nil {
		return Materialized{}, decodeError(hint, err)
	}
	return Materialized{Payload: tableFromRecords(records)}, nil
}

func decodeJSON(m *Materializer, hint artifact.TypeHint, src Source) (Materialized, error) {
	dec := json.NewDecoder(bytes.NewReader(m.text(src)))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return Materialized{}, decodeError(hint, err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return Materialized{}, decodeError(hint, errors.New("trailing data after JSON value"))
	}
	return Materialized{Payload: &artifact.JSONValue{Value: v}}, nil
}

// decodeXLSX reads the first sheet of an Office Open XML workbook.
func decodeXLSX(m *Materializer, hint artifact.TypeHint, src Source) (Materialized, error) {
	f, err := excelize.OpenReader(bytes.NewReader(src.Data))
	if err != nil {
		return m.rawFallback(hint, src, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return m.rawFallback(hint, src, errors.New("workbook has no sheets"))
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return m.rawFallback(hint, src, err)
	}
	return Materialized{Payload: tableFromRecords(rows)}, nil
}

// decodeXLS reads the first sheet of a legacy BIFF workbook. The decoder
// panics on some malformed inputs, so panics are absorbed like errors.
func decodeXLS(m *Materializer, hint artifact.TypeHint, src Source) (out Materialized, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, err = m.rawFallback(hint, src, fmt.Errorf("xls decoder panic: %v", r))
		}
	}()

	wb, openErr := xls.OpenReader(bytes.NewReader(src.Data), "utf-8")
	if openErr != nil {
		return m.rawFallback(hint, src, openErr)
	}
	sheet := wb.GetSheet(0)
	if sheet == nil {
		return m.rawFallback(hint, src, errors.New("workbook has no sheets"))
	}

	records := make([][]string, 0, int(sheet.MaxRow)+1)
	for i := 0; i <= int(sheet.MaxRow); i++ {
		row := sheet.Row(i)
		if row == nil {
			continue
		}
		record := make([]string, 0, row.LastCol())
		for j := 0; j < row.LastCol(); j++ {
			record = append(record, row.Col(j))
		}
		records = append(records, record)
	}
	return Materialized{Payload: tableFromRecords(records)}, nil
}

// tableFromRecords treats the first record as the header row.
func tableFromRecords(records [][]string) *artifact.Table {
	t := &artifact.Table{Columns: []string{}, Rows: [][]string{}}
	if len(records) == 0 {
		return t
	}
	t.Columns = records[0]
	t.Rows = records[1:]
	return t
}
