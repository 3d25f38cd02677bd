// Package batch implements the one-shot transcript writer: timed segments in
// on stdin, a saved file path out on stdout.
package batch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/loqalabs/whisperlite/internal/output"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Options controls one batch run.
type Options struct {
	Format    string
	OutputDir string
	Username  string
	// Now defaults to time.Now.
	Now func() time.Time
}

// Run decodes a JSON array of segments from in, saves it under
// opts.OutputDir and writes the absolute path as one line to out.
func Run(ctx context.Context, opts Options, in io.Reader, out io.Writer) (string, error) {
	_, span := otel.Tracer("whisperlite/batch").Start(ctx, "batch.run")
	defer span.End()

	path, err := run(opts, in, out)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	span.SetAttributes(attribute.String("batch.path", path), attribute.String("batch.format", opts.Format))
	return path, nil
}

func run(opts Options, in io.Reader, out io.Writer) (string, error) {
	format, err := output.ParseFormat(opts.Format)
	if err != nil {
		return "", err
	}
	if opts.OutputDir == "" {
		return "", errors.New("output dir is required")
	}

	segments, err := decode(in)
	if err != nil {
		return "", err
	}
	if err := output.Validate(segments); err != nil {
		return "", err
	}

	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}
	path, err := output.SaveSegments(segments, format, output.Username(opts.Username), now(), opts.OutputDir)
	if err != nil {
		return "", err
	}
	if _, err := fmt.Fprintln(out, path); err != nil {
		return "", fmt.Errorf("write path: %w", err)
	}
	return path, nil
}

func decode(in io.Reader) ([]output.Segment, error) {
	dec := json.NewDecoder(in)
	dec.DisallowUnknownFields()
	var segments []output.Segment
	if err := dec.Decode(&segments); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("decode segments: empty input")
		}
		return nil, fmt.Errorf("decode segments: %w", err)
	}
	if dec.More() {
		return nil, errors.New("decode segments: trailing data after array")
	}
	return segments, nil
}
