package message

import (
	"os"
	"path/filepath"
	"testing"
)

func writeMessage(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestSplitHeader(t *testing.T) {
	tests := []struct {
		name       string
		input      string
		wantHeader string
		wantBody   string
		wantHas    bool
	}{
		{
			name:     "no header",
			input:    "just a body\nwith lines\n",
			wantBody: "just a body\nwith lines\n",
		},
		{
			name:       "with header",
			input:      "---\nchain: abc\nseq: 1\n---\nbody text\n",
			wantHeader: "chain: abc\nseq: 1\n",
			wantBody:   "body text\n",
			wantHas:    true,
		},
		{
			name:       "empty header",
			input:      "---\n---\nbody only\n",
			wantHeader: "",
			wantBody:   "body only\n",
			wantHas:    true,
		},
		{
			name:     "unterminated header treated as body",
			input:    "---\nchain: abc\n",
			wantBody: "---\nchain: abc\n",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			header, body, has := splitHeader(tc.input)
			if has != tc.wantHas {
				t.Errorf("hasHeader = %v, want %v", has, tc.wantHas)
			}
			if header != tc.wantHeader {
				t.Errorf("header = %q, want %q", header, tc.wantHeader)
			}
			if body != tc.wantBody {
				t.Errorf("body = %q, want %q", body, tc.wantBody)
			}
		})
	}
}

func TestParseFile_WithHeader(t *testing.T) {
	dir := t.TempDir()
	path := writeMessage(t, dir, "20260101120000-0.task",
		"---\nchain: 2026010112000000\nseq: 0\ntype: task\n---\ndo the thing\n")

	pf, err := ParseFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !pf.HasHeader {
		t.Fatal("expected header to be present")
	}
	if pf.Header.Chain != "2026010112000000" {
		t.Errorf("chain = %q, want 2026010112000000", pf.Header.Chain)
	}
	if pf.Header.Seq == nil || *pf.Header.Seq != 0 {
		t.Errorf("seq = %v, want 0", pf.Header.Seq)
	}
	if pf.Body != "do the thing\n" {
		t.Errorf("body = %q", pf.Body)
	}
}

func TestParseFile_NoHeader(t *testing.T) {
	dir := t.TempDir()
	path := writeMessage(t, dir, "20260101120000-0.task", "just the body\n")

	pf, err := ParseFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if pf.HasHeader {
		t.Fatal("expected no header")
	}
	if pf.Body != "just the body\n" {
		t.Errorf("body = %q", pf.Body)
	}
}

func TestRender_RoundTrip(t *testing.T) {
	seq := 2
	h := headerDoc{Chain: "abc", Seq: &seq, Type: "task", Routine: "develop"}
	data, err := render(h, "hello\n")
	if err != nil {
		t.Fatal(err)
	}

	pf, err := parse("mem", data)
	if err != nil {
		t.Fatal(err)
	}
	if pf.Header.Chain != "abc" || pf.Header.Seq == nil || *pf.Header.Seq != 2 {
		t.Errorf("round-tripped header = %+v", pf.Header)
	}
	if pf.Body != "hello\n" {
		t.Errorf("round-tripped body = %q", pf.Body)
	}
}

func TestRender_EmptyHeaderOmitsDelimiters(t *testing.T) {
	data, err := render(headerDoc{}, "plain body\n")
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "plain body\n" {
		t.Errorf("got %q, want no delimiter block for empty header", data)
	}
}
