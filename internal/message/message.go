// Package message implements the inbox message store and normalizer:
// parsing the optional structured header and free-form body of a message
// file, filling in whatever fields are missing or inconsistent, and
// discovering the routines a normalized message may be routed to.
package message

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// headerDelim brackets the optional structured header block.
const headerDelim = "---"

// specExt is the filename suffix that marks a spec-type input file
// (specs/01-x.spec.md).
const specExt = ".spec.md"

// headerDoc mirrors the YAML header block. Seq is a pointer so the
// normalizer can distinguish "absent from the header" from "explicitly
// zero"; Extra collects any field the schema doesn't name so custom
// routine parameters round-trip untouched.
type headerDoc struct {
	ID        string            `yaml:"id,omitempty"`
	Chain     string            `yaml:"chain,omitempty"`
	Seq       *int              `yaml:"seq,omitempty"`
	Type      string            `yaml:"type,omitempty"`
	InputFile string            `yaml:"input_file,omitempty"`
	Routine   string            `yaml:"routine,omitempty"`
	Extra     map[string]string `yaml:",inline"`
}

func (h headerDoc) empty() bool {
	return h.ID == "" && h.Chain == "" && h.Seq == nil && h.Type == "" &&
		h.InputFile == "" && h.Routine == "" && len(h.Extra) == 0
}

// Message is a fully parsed and (once Normalize has run) fully resolved
// inbox message.
type Message struct {
	// Path is the absolute path of the message file.
	Path string

	// Ext is the filename extension, including the leading dot.
	Ext string

	ID        string
	Chain     string
	Seq       int
	Type      string
	InputFile string
	Routine   string

	// Extra holds arbitrary custom parameter fields carried in the header.
	Extra map[string]string

	Body string
}

// ParsedFile is the raw decomposition of a message file, before
// normalization resolves its missing or conflicting fields.
type ParsedFile struct {
	Path string
	Ext  string

	// HasHeader reports whether a structured header block was present.
	HasHeader bool
	Header    headerDoc
	Body      string
}

// ParseFile reads and decomposes the message file at path into its
// optional header and body.
func ParseFile(path string) (*ParsedFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read message %s: %w", path, err)
	}
	return parse(path, data)
}

func parse(path string, data []byte) (*ParsedFile, error) {
	headerText, body, hasHeader := splitHeader(string(data))

	pf := &ParsedFile{
		Path:      path,
		Ext:       filepath.Ext(path),
		HasHeader: hasHeader,
		Body:      body,
	}

	if hasHeader && strings.TrimSpace(headerText) != "" {
		if err := yaml.Unmarshal([]byte(headerText), &pf.Header); err != nil {
			return nil, fmt.Errorf("parse header in %s: %w", path, err)
		}
	}
	return pf, nil
}

// splitHeader separates an optional "---\n...\n---\n" header block from
// the body that follows it. When no header block is present, the entire
// input is returned as body.
func splitHeader(text string) (headerText, body string, hasHeader bool) {
	const open = headerDelim + "\n"
	if !strings.HasPrefix(text, open) {
		return "", text, false
	}
	rest := text[len(open):]

	if strings.HasPrefix(rest, open) {
		return "", rest[len(open):], true
	}

	const close1 = "\n" + headerDelim + "\n"
	if idx := strings.Index(rest, close1); idx != -1 {
		return rest[:idx+1], rest[idx+len(close1):], true
	}

	const close2 = "\n" + headerDelim
	if strings.HasSuffix(rest, close2) {
		return rest[:len(rest)-len(close2)], "", true
	}
	// Opening delimiter with no matching close: treat as plain body rather
	// than fail the parse.
	return "", text, false
}

// render serializes h and body back into message-file form. An empty
// header is rendered as a bare body with no delimiter block, matching the
// file's original shape when nothing was ever set.
func render(h headerDoc, body string) ([]byte, error) {
	if h.empty() {
		return []byte(body), nil
	}

	headerBytes, err := yaml.Marshal(h)
	if err != nil {
		return nil, fmt.Errorf("marshal header: %w", err)
	}

	var sb strings.Builder
	sb.WriteString(headerDelim)
	sb.WriteString("\n")
	sb.Write(headerBytes)
	sb.WriteString(headerDelim)
	sb.WriteString("\n")
	sb.WriteString(body)
	return []byte(sb.String()), nil
}

// toMessage flattens a headerDoc plus resolved identity fields into the
// public Message type.
func toMessage(path string, h headerDoc, body string) *Message {
	seq := 0
	if h.Seq != nil {
		seq = *h.Seq
	}
	return &Message{
		Path:      path,
		Ext:       filepath.Ext(path),
		ID:        h.ID,
		Chain:     h.Chain,
		Seq:       seq,
		Type:      h.Type,
		InputFile: h.InputFile,
		Routine:   h.Routine,
		Extra:     h.Extra,
		Body:      body,
	}
}
