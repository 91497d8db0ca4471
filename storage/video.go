package storage

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
)

// MaxVideoBytes is the default upload ceiling for video pledges.
const MaxVideoBytes = int64(50 * 1024 * 1024) // 50 MB

// ErrVideoTooLarge is returned when an upload exceeds the configured ceiling.
var ErrVideoTooLarge = errors.New("video file is too large")

// InlineVideo checks the upload against maxBytes and returns it as a data URI.
func InlineVideo(fh *multipart.FileHeader, maxBytes int64) (string, error) {
	if fh.Size > maxBytes {
		return "", fmt.Errorf("%w: %d bytes exceeds %d", ErrVideoTooLarge, fh.Size, maxBytes)
	}

	f, err := fh.Open()
	if err != nil {
		return "", fmt.Errorf("failed to open upload '%s': %w", fh.Filename, err)
	}
	defer f.Close()

	return DataURI(f, fh.Header.Get("Content-Type"), maxBytes)
}

// DataURI reads r (at most maxBytes) and encodes it as
// data:<mime>;base64,<payload>. The MIME type is sniffed when contentType is empty.
func DataURI(r io.Reader, contentType string, maxBytes int64) (string, error) {
	body, err := io.ReadAll(io.LimitReader(r, maxBytes+1))
	if err != nil {
		return "", fmt.Errorf("failed to read upload: %w", err)
	}
	if int64(len(body)) > maxBytes {
		return "", fmt.Errorf("%w: more than %d bytes", ErrVideoTooLarge, maxBytes)
	}

	mime := strings.TrimSpace(contentType)
	if mime == "" || mime == "application/octet-stream" {
		mime = http.DetectContentType(body)
	}

	var sb strings.Builder
	sb.Grow(len("data:;base64,") + len(mime) + base64.StdEncoding.EncodedLen(len(body)))
	sb.WriteString("data:")
	sb.WriteString(mime)
	sb.WriteString(";base64,")
	sb.WriteString(base64.StdEncoding.EncodeToString(body))
	return sb.String(), nil
}

// DataURISize estimates the decoded size of a base64 data URI without decoding it.
func DataURISize(uri string) int64 {
	_, payload, ok := strings.Cut(uri, ";base64,")
	if !ok {
		return int64(len(uri))
	}
	return int64(base64.StdEncoding.DecodedLen(len(payload)))
}
