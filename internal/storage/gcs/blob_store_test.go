package gcs

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

type recordingWriter struct {
	buf      bytes.Buffer
	writeErr error
	closeErr error
	closed   bool
}

func (w *recordingWriter) Write(p []byte) (int, error) {
	if w.writeErr != nil {
		return 0, w.writeErr
	}
	return w.buf.Write(p)
}

func (w *recordingWriter) Close() error {
	w.closed = true
	return w.closeErr
}

func TestPutObjectUploadsWithPrefix(t *testing.T) {
	t.Parallel()

	w := &recordingWriter{}
	var gotObject, gotType string
	store := newStore(Config{Bucket: "snapshots", Prefix: "/jobscout/"}, func(_ context.Context, object, contentType string) objectWriter {
		gotObject, gotType = object, contentType
		return w
	})

	uri, err := store.PutObject(context.Background(), "ab/abcd.html", "text/html", strings.NewReader("<html>"))
	require.NoError(t, err)
	require.Equal(t, "gs://snapshots/jobscout/ab/abcd.html", uri)
	require.Equal(t, "jobscout/ab/abcd.html", gotObject)
	require.Equal(t, "text/html", gotType)
	require.Equal(t, "<html>", w.buf.String())
	require.True(t, w.closed)
}

func TestPutObjectErrors(t *testing.T) {
	t.Parallel()

	store := newStore(Config{Bucket: "b"}, func(context.Context, string, string) objectWriter {
		return &recordingWriter{writeErr: errors.New("quota")}
	})
	_, err := store.PutObject(context.Background(), "x.html", "text/html", strings.NewReader("data"))
	require.ErrorContains(t, err, "copy object")

	_, err = store.PutObject(context.Background(), " ", "text/html", strings.NewReader("data"))
	require.Error(t, err)

	closing := newStore(Config{Bucket: "b"}, func(context.Context, string, string) objectWriter {
		return &recordingWriter{closeErr: errors.New("precondition")}
	})
	_, err = closing.PutObject(context.Background(), "x.html", "text/html", strings.NewReader("data"))
	require.ErrorContains(t, err, "close writer")
}

func TestNewValidates(t *testing.T) {
	t.Parallel()

	_, err := New(nil, Config{Bucket: "b"})
	require.Error(t, err)
}
