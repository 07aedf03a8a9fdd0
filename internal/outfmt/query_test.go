package outfmt

import (
	"bytes"
	"context"
	"strings"
	"testing"
)

type repo struct {
	Name string `json:"name"`
}

func TestQueryContext(t *testing.T) {
	if GetQuery(context.Background()) != "" {
		t.Error("GetQuery should be empty by default")
	}
	if GetQuery(WithQuery(context.Background(), ".name")) != ".name" {
		t.Error("GetQuery should return the query set with WithQuery")
	}
}

func TestApplyQuery_WrapsSlices(t *testing.T) {
	v, err := ApplyQuery([]repo{{Name: "Samples"}}, "")
	if err != nil {
		t.Fatal(err)
	}
	m, ok := v.(map[string]any)
	if !ok || m["items"] == nil {
		t.Fatalf("slice should be wrapped in items, got %#v", v)
	}

	var nilSlice []repo
	v, _ = ApplyQuery(nilSlice, "")
	if items := v.(map[string]any)["items"].([]any); len(items) != 0 {
		t.Errorf("nil slice should become empty items, got %v", items)
	}

	v, _ = ApplyQuery([]byte("raw"), "")
	if _, ok := v.([]byte); !ok {
		t.Error("byte slices are not wrapped")
	}
}

func TestApplyQuery_Filters(t *testing.T) {
	v, err := ApplyQuery([]repo{{Name: "Samples"}, {Name: "Clip"}}, "[.items[].name]")
	if err != nil {
		t.Fatal(err)
	}
	names := v.([]any)
	if len(names) != 2 || names[1] != "Clip" {
		t.Errorf("names = %v", names)
	}

	if _, err := ApplyQuery(repo{}, "[[["); err == nil {
		t.Error("expected invalid query error")
	}
}

func TestWriteJSONFiltered(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteJSONFiltered(&buf, repo{Name: "Samples"}, ".name", true); err != nil {
		t.Fatal(err)
	}
	if buf.String() != "\"Samples\"\n" {
		t.Errorf("got %q", buf.String())
	}

	buf.Reset()
	_ = WriteJSONFiltered(&buf, repo{Name: "Samples"}, "", false)
	if !strings.Contains(buf.String(), `"name": "Samples"`) {
		t.Errorf("got %q", buf.String())
	}
}
