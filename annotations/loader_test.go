package annotations

import (
	"os"
	"path/filepath"
	"testing"
)

func writeAnnotations(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "annos.csv")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test annotations: %v", err)
	}
	return path
}

func TestLoadPreservesSourceOrder(t *testing.T) {
	path := writeAnnotations(t, "39,116,569,375,14,img_001.jpg\n36,116,868,587,3,img_002.jpg\n85,109,601,381,91,img_003.jpg\n")

	records, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if len(records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(records))
	}

	expected := []Record{
		{Filename: "img_001.jpg", BBox: BBox{39, 116, 569, 375}, Class: 14},
		{Filename: "img_002.jpg", BBox: BBox{36, 116, 868, 587}, Class: 3},
		{Filename: "img_003.jpg", BBox: BBox{85, 109, 601, 381}, Class: 91},
	}

	for i, want := range expected {
		if records[i] != want {
			t.Errorf("record %d: got %+v, want %+v", i, records[i], want)
		}
	}
}

func TestLoadNoDeduplication(t *testing.T) {
	path := writeAnnotations(t, "0,0,10,10,1,dup.jpg\n0,0,10,10,1,dup.jpg\n")

	records, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(records) != 2 {
		t.Errorf("duplicate rows must both survive, got %d records", len(records))
	}
}

func TestLoadMissingFileIsFatal(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.csv")); err == nil {
		t.Error("expected error for missing annotation source")
	}
}

func TestLoadMalformedRows(t *testing.T) {
	cases := []struct {
		name    string
		content string
	}{
		{"short row", "1,2,3,4,5\n"},
		{"bad coordinate", "a,2,3,4,5,x.jpg\n"},
		{"bad class", "1,2,3,4,zero,x.jpg\n"},
		{"zero class", "1,2,3,4,0,x.jpg\n"},
		{"empty filename", "1,2,3,4,5,\n"},
		{"empty file", ""},
	}

	for _, tc := range cases {
		path := writeAnnotations(t, tc.content)
		if _, err := Load(path); err == nil {
			t.Errorf("%s: expected error", tc.name)
		}
	}
}

func TestBBoxValid(t *testing.T) {
	tests := []struct {
		box   BBox
		valid bool
	}{
		{BBox{0, 0, 10, 10}, true},
		{BBox{5, 5, 5, 5}, false},   // zero area
		{BBox{10, 0, 5, 10}, false}, // right <= left
		{BBox{0, 10, 10, 5}, false}, // bottom <= top
		{BBox{-1, 0, 10, 10}, false},
	}

	for _, test := range tests {
		if test.box.Valid() != test.valid {
			t.Errorf("BBox %+v: expected Valid()=%v", test.box, test.valid)
		}
	}
}

func TestBBoxDimensions(t *testing.T) {
	b := BBox{39, 116, 569, 375}
	if b.Width() != 530 {
		t.Errorf("expected width 530, got %d", b.Width())
	}
	if b.Height() != 259 {
		t.Errorf("expected height 259, got %d", b.Height())
	}
}
