package output

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestSave(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "Downloads")
	ts := time.Date(2024, 1, 1, 12, 0, 0, 0, time.Local)
	path, err := Save("hello", "testuser", ts, dir)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if filepath.Base(path) != "testuser_20240101_1200.txt" {
		t.Fatalf("unexpected file name %s", path)
	}
	if !filepath.IsAbs(path) {
		t.Fatalf("expected absolute path, got %s", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	want := "WhisperLite Transcript - Generated on 2024-01-01 12:00\n\nhello"
	if string(data) != want {
		t.Fatalf("expected %q, got %q", want, data)
	}
}

func TestSaveUnwritableDir(t *testing.T) {
	file := filepath.Join(t.TempDir(), "not-a-dir")
	if err := os.WriteFile(file, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Save("x", "u", time.Now(), file); err == nil {
		t.Fatal("expected error writing under a regular file")
	}
}

func TestParseTimestamp(t *testing.T) {
	cases := []struct {
		in   string
		want time.Duration
		ok   bool
	}{
		{"00:00:00.000", 0, true},
		{"00:00:01.500", 1500 * time.Millisecond, true},
		{"01:02:03.004", time.Hour + 2*time.Minute + 3*time.Second + 4*time.Millisecond, true},
		{"00:60:00.000", 0, false},
		{"00:00:00", 0, false},
		{"0:0:0.0", 0, false},
		{"aa:00:00.000", 0, false},
		{"00:00:-1.000", 0, false},
		{"", 0, false},
	}
	for _, tc := range cases {
		got, err := ParseTimestamp(tc.in)
		if tc.ok != (err == nil) {
			t.Fatalf("%q: unexpected error state %v", tc.in, err)
		}
		if tc.ok && got != tc.want {
			t.Fatalf("%q: expected %v, got %v", tc.in, tc.want, got)
		}
	}
}

func TestRenderFormats(t *testing.T) {
	ts := time.Date(2024, 3, 9, 8, 5, 0, 0, time.UTC)
	segments := []Segment{
		{Start: "00:00:00.000", End: "00:00:01.500", Text: " hello "},
		{Start: "00:00:01.500", End: "01:00:02.250", Text: "world"},
	}

	txt, err := Render(segments, FormatText, ts)
	if err != nil {
		t.Fatalf("render txt: %v", err)
	}
	wantTxt := "WhisperLite Transcript - Generated on 2024-03-09 08:05\n\n" +
		"[00:00:00.000 --> 00:00:01.500] hello\n" +
		"[00:00:01.500 --> 01:00:02.250] world\n"
	if string(txt) != wantTxt {
		t.Fatalf("unexpected txt:\n%s", txt)
	}

	srt, err := Render(segments, FormatSRT, ts)
	if err != nil {
		t.Fatalf("render srt: %v", err)
	}
	wantSRT := "1\n00:00:00,000 --> 00:00:01,500\nhello\n\n2\n00:00:01,500 --> 01:00:02,250\nworld\n\n"
	if string(srt) != wantSRT {
		t.Fatalf("unexpected srt:\n%s", srt)
	}

	js, err := Render(segments, FormatJSON, ts)
	if err != nil {
		t.Fatalf("render json: %v", err)
	}
	var decoded []Segment
	if err := json.Unmarshal(js, &decoded); err != nil {
		t.Fatalf("decode json: %v", err)
	}
	if len(decoded) != 2 || decoded[1].Text != "world" {
		t.Fatalf("unexpected json: %s", js)
	}
	if !strings.Contains(string(js), "\n  {") {
		t.Fatalf("expected indented json: %s", js)
	}

	empty, _ := Render(nil, FormatJSON, ts)
	if strings.TrimSpace(string(empty)) != "[]" {
		t.Fatalf("expected empty array, got %s", empty)
	}
}

func TestParseFormat(t *testing.T) {
	for _, in := range []string{"txt", "JSON", " srt "} {
		if _, err := ParseFormat(in); err != nil {
			t.Fatalf("%q: %v", in, err)
		}
	}
	if _, err := ParseFormat("vtt"); err == nil {
		t.Fatal("expected vtt to be rejected")
	}
}

func TestValidate(t *testing.T) {
	if err := Validate([]Segment{{Start: "00:00:02.000", End: "00:00:01.000"}}); err == nil {
		t.Fatal("expected end before start to fail")
	}
	if err := Validate([]Segment{{Start: "00:00:00.000", End: "bogus"}}); err == nil {
		t.Fatal("expected bad end to fail")
	}
	if err := Validate(nil); err != nil {
		t.Fatalf("empty input: %v", err)
	}
}

func TestUsername(t *testing.T) {
	if got := Username("alice"); got != "alice" {
		t.Fatalf("expected configured user, got %s", got)
	}
	if got := Username(""); got == "" || strings.ContainsAny(got, `\/`) {
		t.Fatalf("unexpected resolved user %q", got)
	}
}
