package stdlib

import (
	"archive/zip"
	"bytes"
	"compress/gzip"
	"encoding/base64"
	"io"

	"github.com/xnlogical/via/pkg/runtime"
	"github.com/xnlogical/via/pkg/value"
)

// registerCompress installs the zip and gzip round-trip helpers. Both
// return base64 text so compressed bytes survive the string-only
// foreign boundary.
func registerCompress(m *runtime.Manager) {
	register(m, "compress.zip", zipCompress)
	register(m, "compress.unzip", zipDecompress)
	register(m, "compress.gzip", gzipCompress)
	register(m, "compress.gunzip", gzipDecompress)
}

func zipCompress(h value.Handle) error {
	data, err := argString(h, 0)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	f, err := w.Create("data")
	if err != nil {
		return runtime.ArgumentError("failed to create zip entry: %v", err)
	}
	if _, err := f.Write([]byte(data)); err != nil {
		return runtime.ArgumentError("failed to write to zip: %v", err)
	}
	if err := w.Close(); err != nil {
		return runtime.ArgumentError("failed to close zip: %v", err)
	}

	return pushString(h, base64.StdEncoding.EncodeToString(buf.Bytes()))
}

func zipDecompress(h value.Handle) error {
	data, err := argString(h, 0)
	if err != nil {
		return err
	}

	decoded, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return runtime.ArgumentError("failed to decode base64: %v", err)
	}

	r, err := zip.NewReader(bytes.NewReader(decoded), int64(len(decoded)))
	if err != nil {
		return runtime.ArgumentError("failed to open zip: %v", err)
	}
	if len(r.File) == 0 {
		return runtime.ArgumentError("zip archive is empty")
	}

	f, err := r.File[0].Open()
	if err != nil {
		return runtime.ArgumentError("failed to open zip entry: %v", err)
	}
	defer f.Close()

	content, err := io.ReadAll(f)
	if err != nil {
		return runtime.ArgumentError("failed to read zip entry: %v", err)
	}
	return pushString(h, string(content))
}

func gzipCompress(h value.Handle) error {
	data, err := argString(h, 0)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write([]byte(data)); err != nil {
		return runtime.ArgumentError("failed to write to gzip: %v", err)
	}
	if err := w.Close(); err != nil {
		return runtime.ArgumentError("failed to close gzip: %v", err)
	}
	return pushString(h, base64.StdEncoding.EncodeToString(buf.Bytes()))
}

func gzipDecompress(h value.Handle) error {
	data, err := argString(h, 0)
	if err != nil {
		return err
	}

	decoded, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return runtime.ArgumentError("failed to decode base64: %v", err)
	}

	r, err := gzip.NewReader(bytes.NewReader(decoded))
	if err != nil {
		return runtime.ArgumentError("failed to open gzip: %v", err)
	}
	defer r.Close()

	content, err := io.ReadAll(r)
	if err != nil {
		return runtime.ArgumentError("failed to read gzip: %v", err)
	}
	return pushString(h, string(content))
}
