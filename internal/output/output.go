// Package output renders and saves finished transcripts.
package output

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Segment is one timed piece of a batch transcript.
type Segment struct {
	Start string `json:"start"`
	End   string `json:"end"`
	Text  string `json:"text"`
}

// Format selects how segments are rendered.
type Format string

const (
	FormatText Format = "txt"
	FormatSRT  Format = "srt"
	FormatJSON Format = "json"
)

// ParseFormat validates a format name.
func ParseFormat(v string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(v))); f {
	case FormatText, FormatSRT, FormatJSON:
		return f, nil
	default:
		return "", fmt.Errorf("unsupported output format %q (want txt, json or srt)", v)
	}
}

// Header is the first line of every text transcript, followed by a blank line.
func Header(ts time.Time) string {
	return "WhisperLite Transcript - Generated on " + ts.Format("2006-01-02 15:04") + "\n\n"
}

// FileName returns <username>_<YYYYMMDD_HHMM>.<ext>.
func FileName(username string, ts time.Time, ext string) string {
	return fmt.Sprintf("%s_%s.%s", username, ts.Format("20060102_1504"), ext)
}

// Username resolves the name used in saved file names. A configured value
// wins; otherwise the current OS user is used.
func Username(configured string) string {
	if configured != "" {
		return configured
	}
	if u, err := user.Current(); err == nil && u.Username != "" {
		name := u.Username
		// Windows reports DOMAIN\user.
		if i := strings.LastIndexAny(name, `\/`); i >= 0 {
			name = name[i+1:]
		}
		return name
	}
	if name := os.Getenv("USER"); name != "" {
		return name
	}
	return "user"
}

// Save writes header and text to <dir>/<username>_<YYYYMMDD_HHMM>.txt and
// returns the absolute path. The directory is created if missing.
func Save(text, username string, ts time.Time, dir string) (string, error) {
	return write(dir, FileName(username, ts, string(FormatText)), []byte(Header(ts)+text))
}

// SaveSegments renders segments in format and writes them like Save.
func SaveSegments(segments []Segment, format Format, username string, ts time.Time, dir string) (string, error) {
	data, err := Render(segments, format, ts)
	if err != nil {
		return "", err
	}
	return write(dir, FileName(username, ts, string(format)), data)
}

func write(dir, name string, data []byte) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	path, err := filepath.Abs(filepath.Join(dir, name))
	if err != nil {
		return "", fmt.Errorf("resolve output path: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write transcript to %s: %w", path, err)
	}
	return path, nil
}

// Render formats segments. Text output carries the header; SRT and JSON do
// not, so they stay machine readable.
func Render(segments []Segment, format Format, ts time.Time) ([]byte, error) {
	var buf bytes.Buffer
	switch format {
	case FormatText:
		buf.WriteString(Header(ts))
		for _, s := range segments {
			fmt.Fprintf(&buf, "[%s --> %s] %s\n", s.Start, s.End, strings.TrimSpace(s.Text))
		}
	case FormatSRT:
		for i, s := range segments {
			start, err := ParseTimestamp(s.Start)
			if err != nil {
				return nil, err
			}
			end, err := ParseTimestamp(s.End)
			if err != nil {
				return nil, err
			}
			fmt.Fprintf(&buf, "%d\n%s --> %s\n%s\n\n", i+1, srtTimestamp(start), srtTimestamp(end), strings.TrimSpace(s.Text))
		}
	case FormatJSON:
		if segments == nil {
			segments = []Segment{}
		}
		data, err := json.MarshalIndent(segments, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("encode segments: %w", err)
		}
		buf.Write(data)
		buf.WriteByte('\n')
	default:
		return nil, fmt.Errorf("unsupported output format %q", format)
	}
	return buf.Bytes(), nil
}

// ParseTimestamp parses HH:MM:SS.mmm.
func ParseTimestamp(v string) (time.Duration, error) {
	bad := fmt.Errorf("invalid timestamp %q (want HH:MM:SS.mmm)", v)
	clock, frac, ok := strings.Cut(v, ".")
	if !ok || len(frac) != 3 {
		return 0, bad
	}
	parts := strings.Split(clock, ":")
	if len(parts) != 3 || len(parts[1]) != 2 || len(parts[2]) != 2 {
		return 0, bad
	}
	limits := []int{-1, 59, 59}
	var fields [4]int
	for i, p := range append(parts, frac) {
		if p == "" || strings.Trim(p, "0123456789") != "" {
			return 0, bad
		}
		n, err := strconv.Atoi(p)
		if err != nil {
			return 0, bad
		}
		if i < 3 && limits[i] >= 0 && n > limits[i] {
			return 0, bad
		}
		fields[i] = n
	}
	return time.Duration(fields[0])*time.Hour +
		time.Duration(fields[1])*time.Minute +
		time.Duration(fields[2])*time.Second +
		time.Duration(fields[3])*time.Millisecond, nil
}

func srtTimestamp(d time.Duration) string {
	ms := d.Milliseconds()
	return fmt.Sprintf("%02d:%02d:%02d,%03d", ms/3_600_000, ms/60_000%60, ms/1000%60, ms%1000)
}

// Validate checks every segment's timestamps and ordering.
func Validate(segments []Segment) error {
	for i, s := range segments {
		start, err := ParseTimestamp(s.Start)
		if err != nil {
			return fmt.Errorf("segment %d: %w", i, err)
		}
		end, err := ParseTimestamp(s.End)
		if err != nil {
			return fmt.Errorf("segment %d: %w", i, err)
		}
		if end < start {
			return fmt.Errorf("segment %d: end %s before start %s", i, s.End, s.Start)
		}
	}
	return nil
}
