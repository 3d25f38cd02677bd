//go:build !whisper

package stt

import "errors"

// NewWhisperRecognizer reports that this binary was built without whisper.cpp.
// Build with -tags whisper to enable the in-process backend.
func NewWhisperRecognizer(cfg WhisperConfig) (Recognizer, error) {
	return nil, &RecognitionError{Op: "load model", Err: errors.New("whisper backend not compiled in (build with -tags whisper)")}
}
