// Package audiometa extracts metadata from uploaded audio files.
package audiometa

import (
	"io"
	"path/filepath"
	"strings"

	"github.com/tcolgate/mp3"
)

// DefaultFormat is used for files without an extension.
const DefaultFormat = "bin"

var mimeTypes = map[string]string{
	"mp3":  "audio/mpeg",
	"wav":  "audio/wav",
	"ogg":  "audio/ogg",
	"flac": "audio/flac",
	"aac":  "audio/aac",
}

// Extension returns the lowercase extension of filename without the dot,
// or DefaultFormat when there is none.
func Extension(filename string) string {
	ext := strings.TrimPrefix(filepath.Ext(filename), ".")
	if ext == "" {
		return DefaultFormat
	}
	return strings.ToLower(ext)
}

// MimeType maps a format to its content type.
func MimeType(format string) string {
	if m, ok := mimeTypes[strings.ToLower(format)]; ok {
		return m
	}
	return "application/octet-stream"
}

// minFrames is the shortest run of back-to-back frames accepted as MP3.
// Arbitrary bytes produce isolated false frame syncs, never such a run.
const minFrames = 4

// Duration returns the playing time of an MP3 stream in whole seconds.
// Junk is tolerated only before the first frame (an ID3 tag, for example);
// after that frames must follow each other without gaps. Anything that
// cannot be decoded yields 0.
func Duration(r io.Reader) (seconds int) {
	defer func() {
		if recover() != nil {
			seconds = 0
		}
	}()

	d := mp3.NewDecoder(r)

	var (
		f      mp3.Frame
		total  float64
		frames int
	)
	for {
		skipped := 0
		err := d.Decode(&f, &skipped)
		if err != nil {
			break
		}
		if frames > 0 && skipped != 0 {
			break
		}
		total += f.Duration().Seconds()
		frames++
	}

	if frames < minFrames {
		return 0
	}
	return int(total)
}
