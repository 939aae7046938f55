package mirror

import (
	"bytes"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/standardbeagle/rmodel/internal/model"
)

// Keys of a mirrored file node
const (
	KeySize     = "size"
	KeyMode     = "mode"
	KeyModified = "modified"
	KeyText     = "text"
)

// sniffSize is how much of a file is inspected for NUL bytes
const sniffSize = 8192

// binaryExtensions are never read for text content
var binaryExtensions = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".bmp": true, ".ico": true, ".webp": true,
	".woff": true, ".woff2": true, ".ttf": true, ".otf": true,
	".zip": true, ".tar": true, ".gz": true, ".bz2": true, ".xz": true, ".7z": true, ".jar": true,
	".exe": true, ".dll": true, ".so": true, ".dylib": true, ".a": true, ".o": true, ".bin": true,
	".mp3": true, ".mp4": true, ".mov": true, ".wav": true, ".ogg": true,
	".pdf": true, ".docx": true, ".xlsx": true, ".pptx": true,
	".db": true, ".sqlite": true, ".pyc": true, ".class": true,
}

// fileNode builds the model node for a regular file. Text content is
// attached when the file is small enough and looks like UTF-8 text.
func fileNode(path string, info fs.FileInfo, maxText int64) model.Model {
	entries := []model.Entry{
		{Key: KeyModified, Value: model.String(info.ModTime().UTC().Format(time.RFC3339Nano))},
		{Key: KeyMode, Value: model.String(info.Mode().String())},
		{Key: KeySize, Value: model.Int(info.Size())},
	}
	if text, ok := readText(path, info, maxText); ok {
		entries = append(entries, model.Entry{Key: KeyText, Value: model.String(text)})
	}
	return model.NewMap(entries...)
}

func readText(path string, info fs.FileInfo, maxText int64) (string, bool) {
	if maxText <= 0 || info.Size() > maxText {
		return "", false
	}
	if binaryExtensions[strings.ToLower(filepath.Ext(path))] {
		return "", false
	}

	f, err := os.Open(path)
	if err != nil {
		return "", false
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, maxText+1))
	if err != nil || int64(len(data)) > maxText {
		return "", false
	}
	sample := data
	if len(sample) > sniffSize {
		sample = sample[:sniffSize]
	}
	if bytes.IndexByte(sample, 0) >= 0 || !utf8.Valid(data) {
		return "", false
	}
	return string(data), true
}
