package export

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/apache/arrow/go/v17/arrow/array"
	"github.com/apache/arrow/go/v17/arrow/ipc"
	"github.com/apache/arrow/go/v17/arrow/memory"

	"github.com/nvandessel/sfcsim/internal/model"
	"github.com/nvandessel/sfcsim/internal/rescale"
	"github.com/nvandessel/sfcsim/internal/store"
)

func sample() (*store.Run, []store.Iteration) {
	run := &store.Run{
		ID:         "run-1",
		Model:      "new-developmentalist",
		CreatedAt:  time.Date(2026, 5, 4, 3, 2, 1, 0, time.UTC),
		Converged:  true,
		Iterations: 3,
		Values:     model.Solution{"Y": 100, "u": 0.7},
	}
	trace := []store.Iteration{
		{Iteration: 0, Factors: rescale.Factors{Output: 0.9, Labor: 1, Price: 1}, Values: model.Solution{"Y": 100, "u": 0.71}},
		{Iteration: 1, Factors: rescale.Factors{Output: 0.95, Labor: 1, Price: 0.98}, Values: model.Solution{"Y": 100}},
		{Iteration: 2, Factors: rescale.Factors{Output: 0.96, Labor: 1, Price: 0.99}, Close: true, Values: model.Solution{"Y": 100, "u": 0.7}},
	}
	return run, trace
}

// createFile opens a fresh file in a temp directory.
func createFile(t *testing.T, name string) *os.File {
	t.Helper()
	f, err := os.Create(filepath.Join(t.TempDir(), name))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { f.Close() })
	return f
}

func TestParseFormat(t *testing.T) {
	for _, s := range []string{"arrow", "json"} {
		if f, err := ParseFormat(s); err != nil || string(f) != s {
			t.Errorf("ParseFormat(%q) = %q, %v", s, f, err)
		}
	}
	if _, err := ParseFormat("parquet"); err == nil {
		t.Error("expected error for unknown format")
	}
}

func TestWriteArrow_ReadBack(t *testing.T) {
	run, trace := sample()
	f := createFile(t, "run.arrow")
	if err := Write(f, FormatArrow, run, trace); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	r, err := ipc.NewFileReader(f, ipc.WithAllocator(memory.NewGoAllocator()))
	if err != nil {
		t.Fatalf("NewFileReader() error = %v", err)
	}
	defer r.Close()

	schema := r.Schema()
	wantCols := []string{"iteration", "close", "output_scale", "labor_scale", "price_scale", "Y", "u"}
	if schema.NumFields() != len(wantCols) {
		t.Fatalf("schema has %d fields, want %d", schema.NumFields(), len(wantCols))
	}
	for i, name := range wantCols {
		if schema.Field(i).Name != name {
			t.Errorf("field %d = %s, want %s", i, schema.Field(i).Name, name)
		}
	}
	md := schema.Metadata()
	if i := md.FindKey("run_id"); i < 0 || md.Values()[i] != "run-1" {
		t.Errorf("run_id metadata missing: %v", md)
	}

	if r.NumRecords() != 1 {
		t.Fatalf("NumRecords = %d, want 1", r.NumRecords())
	}
	rec, err := r.Record(0)
	if err != nil {
		t.Fatalf("Record(0) error = %v", err)
	}
	if rec.NumRows() != 3 {
		t.Fatalf("NumRows = %d, want 3", rec.NumRows())
	}

	iters := rec.Column(0).(*array.Int64)
	closes := rec.Column(1).(*array.Boolean)
	prices := rec.Column(4).(*array.Float64)
	u := rec.Column(6).(*array.Float64)

	if iters.Value(2) != 2 || !closes.Value(2) || closes.Value(0) {
		t.Errorf("iteration/close columns wrong")
	}
	if prices.Value(1) != 0.98 {
		t.Errorf("price_scale[1] = %v", prices.Value(1))
	}
	if u.Value(0) != 0.71 || !u.IsNull(1) || u.Value(2) != 0.7 {
		t.Errorf("u column = %v", u)
	}
}

func TestWriteArrow_EmptyTraceUsesFinalValues(t *testing.T) {
	run, _ := sample()
	f := createFile(t, "empty.arrow")
	if err := WriteArrow(f, run, nil); err != nil {
		t.Fatalf("WriteArrow() error = %v", err)
	}
	r, err := ipc.NewFileReader(f)
	if err != nil {
		t.Fatalf("NewFileReader() error = %v", err)
	}
	defer r.Close()
	if got := r.Schema().NumFields(); got != fixedColumns+2 {
		t.Errorf("fields = %d, want %d", got, fixedColumns+2)
	}
}

func TestWriteJSON(t *testing.T) {
	run, trace := sample()
	var buf bytes.Buffer
	if err := Write(&buf, FormatJSON, run, trace); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	var doc Document
	if err := json.Unmarshal(buf.Bytes(), &doc); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if doc.Run.ID != "run-1" || len(doc.Trace) != 3 || !doc.Trace[2].Close {
		t.Errorf("decoded document = %+v", doc)
	}
}

func TestWrite_ArrowNeedsSeeker(t *testing.T) {
	run, trace := sample()
	var buf bytes.Buffer
	if err := Write(&buf, FormatArrow, run, trace); !errors.Is(err, ErrNotSeekable) {
		t.Errorf("Write(bytes.Buffer) error = %v, want ErrNotSeekable", err)
	}
}
