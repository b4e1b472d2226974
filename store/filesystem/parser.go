// notes/store/filesystem/parser.go
package filesystem

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"github.com/natefinch/atomic"
	"gopkg.in/yaml.v3"

	"github.com/ViniZap4/lumi-notes/domain"
)

const (
	noteExt     = ".md"
	folderMeta  = ".folder.yaml"
	fenceMarker = "---\n"
)

// frontmatter is the header written above every note body and, on its own,
// into each folder's marker file.
type frontmatter struct {
	Kind      domain.Kind `yaml:"kind,omitempty"`
	Seq       int64       `yaml:"seq,omitempty"`
	UpdatedAt time.Time   `yaml:"updated_at,omitempty"`
}

// parseNote splits a note file into header and body. A file without a
// frontmatter fence is a legacy note: no kind, the whole file is the body.
func parseNote(data []byte) (frontmatter, string, error) {
	var fm frontmatter
	if !bytes.HasPrefix(data, []byte(fenceMarker)) {
		return fm, string(data), nil
	}

	rest := data[len(fenceMarker):]
	var header, body []byte
	switch {
	case bytes.HasPrefix(rest, []byte(fenceMarker)):
		body = rest[len(fenceMarker):]
	default:
		end := bytes.Index(rest, []byte("\n"+fenceMarker))
		if end < 0 {
			return fm, "", fmt.Errorf("invalid frontmatter format")
		}
		header = rest[:end+1]
		body = rest[end+1+len(fenceMarker):]
	}

	if err := yaml.Unmarshal(header, &fm); err != nil {
		return fm, "", fmt.Errorf("failed to parse frontmatter: %w", err)
	}
	// One blank line separates the fence from the body.
	body = bytes.TrimPrefix(body, []byte("\n"))
	return fm, string(body), nil
}

func encodeNote(fm frontmatter, content string) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(fenceMarker)

	encoder := yaml.NewEncoder(&buf)
	encoder.SetIndent(2)
	if err := encoder.Encode(fm); err != nil {
		return nil, fmt.Errorf("failed to encode frontmatter: %w", err)
	}
	encoder.Close()

	buf.WriteString(fenceMarker)
	buf.WriteString("\n")
	buf.WriteString(content)
	return buf.Bytes(), nil
}

func readNote(path string) (frontmatter, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return frontmatter{}, "", err
	}
	return parseNote(data)
}

func writeNote(path string, fm frontmatter, content string) error {
	data, err := encodeNote(fm, content)
	if err != nil {
		return err
	}
	return atomic.WriteFile(path, bytes.NewReader(data))
}

func readFolderMeta(dir string) (frontmatter, bool, error) {
	var fm frontmatter
	data, err := os.ReadFile(dir + string(os.PathSeparator) + folderMeta)
	if os.IsNotExist(err) {
		return fm, false, nil
	}
	if err != nil {
		return fm, false, err
	}
	if err := yaml.Unmarshal(data, &fm); err != nil {
		return fm, false, fmt.Errorf("failed to parse folder marker: %w", err)
	}
	return fm, true, nil
}

func writeFolderMeta(dir string, fm frontmatter) error {
	data, err := yaml.Marshal(fm)
	if err != nil {
		return fmt.Errorf("failed to encode folder marker: %w", err)
	}
	return atomic.WriteFile(dir+string(os.PathSeparator)+folderMeta, bytes.NewReader(data))
}
