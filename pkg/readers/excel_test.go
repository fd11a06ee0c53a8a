package readers

import (
	"path/filepath"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/dsiflow/dsi/pkg/abstraction"
)

func TestExcel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "book.xlsx")
	f := excelize.NewFile()
	if err := f.SetSheetRow("Sheet1", "A1", &[]interface{}{"a", "b"}); err != nil {
		t.Fatal(err)
	}
	_ = f.SetSheetRow("Sheet1", "A2", &[]interface{}{1, "x"})
	_ = f.SetSheetRow("Sheet1", "A3", &[]interface{}{2.5})
	if _, err := f.NewSheet("runs"); err != nil {
		t.Fatal(err)
	}
	_ = f.SetSheetRow("runs", "A1", &[]interface{}{"run"})
	_ = f.SetSheetRow("runs", "A2", &[]interface{}{7})
	if err := f.SaveAs(path); err != nil {
		t.Fatal(err)
	}
	f.Close()

	frag := read(t, KindExcel, Options{Filenames: []string{path}, Prefix: "wb"})

	sheet := table(t, frag, "wb__Sheet1")
	if sheet.NumRows() != 2 {
		t.Fatalf("rows = %d", sheet.NumRows())
	}
	if v := cell(t, sheet, "a", 1); !v.Equal(abstraction.Float(2.5)) {
		t.Errorf("a[1] = %v", v)
	}
	if v := cell(t, sheet, "b", 1); !v.IsNull() {
		t.Errorf("short row should pad with null, got %v", v)
	}
	if v := cell(t, table(t, frag, "wb__runs"), "run", 0); !v.Equal(abstraction.Int(7)) {
		t.Errorf("runs.run[0] = %v", v)
	}
}
