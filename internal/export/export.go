// Package export writes stored run traces as Arrow IPC files or JSON.
//
// The Arrow layout is one row per outer iteration with fixed leading columns
// (iteration, close, output_scale, labor_scale, price_scale) followed by one
// float64 column per model variable in name order. Run metadata is attached to
// the schema.
package export

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"slices"
	"strconv"
	"time"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
	"github.com/apache/arrow/go/v17/arrow/ipc"
	"github.com/apache/arrow/go/v17/arrow/memory"

	"github.com/nvandessel/sfcsim/internal/store"
)

// Format selects the output encoding.
type Format string

const (
	FormatArrow Format = "arrow"
	FormatJSON  Format = "json"
)

// ParseFormat maps a format name to a Format.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatArrow, FormatJSON:
		return Format(s), nil
	default:
		return "", fmt.Errorf("unknown export format %q (valid: arrow, json)", s)
	}
}

// ErrNotSeekable is returned when an Arrow file is written to a stream that
// cannot seek, such as stdout or a buffered writer.
var ErrNotSeekable = errors.New("arrow export needs a seekable writer")

// Write encodes run and trace to w in the given format. Arrow files need w to
// implement io.WriteSeeker.
func Write(w io.Writer, format Format, run *store.Run, trace []store.Iteration) error {
	switch format {
	case FormatArrow:
		ws, ok := w.(io.WriteSeeker)
		if !ok {
			return ErrNotSeekable
		}
		return WriteArrow(ws, run, trace)
	case FormatJSON:
		return WriteJSON(w, run, trace)
	default:
		return fmt.Errorf("unknown export format %q", format)
	}
}

// Document is the JSON export layout.
type Document struct {
	Run   *store.Run        `json:"run"`
	Trace []store.Iteration `json:"trace"`
}

// WriteJSON writes run and trace as one indented JSON document.
func WriteJSON(w io.Writer, run *store.Run, trace []store.Iteration) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(Document{Run: run, Trace: trace}); err != nil {
		return fmt.Errorf("encode json export: %w", err)
	}
	return nil
}

const fixedColumns = 5

// Schema builds the Arrow schema for a trace over the given variable names.
func Schema(run *store.Run, names []string) *arrow.Schema {
	fields := make([]arrow.Field, 0, fixedColumns+len(names))
	fields = append(fields,
		arrow.Field{Name: "iteration", Type: arrow.PrimitiveTypes.Int64},
		arrow.Field{Name: "close", Type: arrow.FixedWidthTypes.Boolean},
		arrow.Field{Name: "output_scale", Type: arrow.PrimitiveTypes.Float64},
		arrow.Field{Name: "labor_scale", Type: arrow.PrimitiveTypes.Float64},
		arrow.Field{Name: "price_scale", Type: arrow.PrimitiveTypes.Float64},
	)
	for _, name := range names {
		fields = append(fields, arrow.Field{Name: name, Type: arrow.PrimitiveTypes.Float64, Nullable: true})
	}

	md := arrow.NewMetadata(
		[]string{"run_id", "model", "created_at", "converged", "iterations"},
		[]string{
			run.ID,
			run.Model,
			run.CreatedAt.UTC().Format(time.RFC3339),
			strconv.FormatBool(run.Converged),
			strconv.Itoa(run.Iterations),
		},
	)
	return arrow.NewSchema(fields, &md)
}

// traceNames returns the sorted union of variable names in the trace, falling
// back to the run's final values.
func traceNames(run *store.Run, trace []store.Iteration) []string {
	set := make(map[string]struct{})
	for _, it := range trace {
		for name := range it.Values {
			set[name] = struct{}{}
		}
	}
	if len(set) == 0 {
		for name := range run.Values {
			set[name] = struct{}{}
		}
	}
	return slices.Sorted(maps.Keys(set))
}

// WriteArrow writes the trace as a single-record Arrow IPC file.
func WriteArrow(w io.WriteSeeker, run *store.Run, trace []store.Iteration) error {
	mem := memory.NewGoAllocator()
	names := traceNames(run, trace)
	schema := Schema(run, names)

	b := array.NewRecordBuilder(mem, schema)
	defer b.Release()

	iter := b.Field(0).(*array.Int64Builder)
	closeCol := b.Field(1).(*array.BooleanBuilder)
	outCol := b.Field(2).(*array.Float64Builder)
	laborCol := b.Field(3).(*array.Float64Builder)
	priceCol := b.Field(4).(*array.Float64Builder)

	for _, it := range trace {
		iter.Append(int64(it.Iteration))
		closeCol.Append(it.Close)
		outCol.Append(it.Factors.Output)
		laborCol.Append(it.Factors.Labor)
		priceCol.Append(it.Factors.Price)
		for j, name := range names {
			col := b.Field(fixedColumns + j).(*array.Float64Builder)
			if v, ok := it.Values[name]; ok {
				col.Append(v)
			} else {
				col.AppendNull()
			}
		}
	}

	rec := b.NewRecord()
	defer rec.Release()

	fw, err := ipc.NewFileWriter(w, ipc.WithSchema(schema), ipc.WithAllocator(mem))
	if err != nil {
		return fmt.Errorf("create arrow writer: %w", err)
	}
	if err := fw.Write(rec); err != nil {
		fw.Close()
		return fmt.Errorf("write arrow record: %w", err)
	}
	if err := fw.Close(); err != nil {
		return fmt.Errorf("close arrow writer: %w", err)
	}
	return nil
}
