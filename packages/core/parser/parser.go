package parser

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Request is one parsed request block, still carrying {{...}}
// placeholders.
type Request struct {
	Name       string
	Method     string
	URL        string
	Headers    map[string]string
	Body       string
	BodyFile   string
	MaxRetries int
	RetryDelay int // milliseconds
	Skip       string
	Line       int // 1-based line of the request line
}

// File is a parsed request file.
type File struct {
	Path      string
	Variables map[string]string
	Requests  []*Request
}

// ParseError points at the offending line.
type ParseError struct {
	Path    string
	Line    int
	Message string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s:%d: %s", e.Path, e.Line, e.Message)
}

func ParseFile(path string) (*File, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(string(content), path)
}

func Parse(input, path string) (*File, error) {
	file := &File{
		Path:      path,
		Variables: make(map[string]string),
	}

	lines := strings.Split(input, "\n")
	block := newBlock()
	blockStart := 1

	flush := func(endLine int) error {
		req, err := block.build(path)
		if err != nil {
			return err
		}
		if req != nil {
			file.Requests = append(file.Requests, req)
		}
		block = newBlock()
		blockStart = endLine + 1
		return nil
	}

	for i, raw := range lines {
		lineNo := i + 1
		line := strings.TrimRight(raw, "\r")

		if strings.HasPrefix(strings.TrimSpace(line), "###") {
			if err := flush(lineNo); err != nil {
				return nil, err
			}
			continue
		}

		// File-level variables may only appear before the first
		// request line of the file.
		if len(file.Requests) == 0 && !block.started() && isVariableLine(line) {
			name, value := parseVariableLine(line)
			file.Variables[name] = value
			continue
		}

		block.add(line, lineNo)
	}

	if err := flush(len(lines)); err != nil {
		return nil, err
	}

	if len(file.Requests) == 0 {
		return nil, &ParseError{Path: path, Line: blockStart, Message: "no requests found"}
	}

	return file, nil
}

// LineOffsets returns the byte offset of each line start, for mapping
// diagnostics back to positions.
func LineOffsets(content string) []int {
	offsets := []int{0}
	for i := 0; i < len(content); i++ {
		if content[i] == '\n' {
			offsets = append(offsets, i+1)
		}
	}
	return offsets
}

// block accumulates the lines of one request between separators.
type block struct {
	meta       map[string]string
	method     string
	url        string
	reqLine    int
	headers    map[string]string
	bodyLines  []string
	inBody     bool
	sawRequest bool
}

func newBlock() *block {
	return &block{
		meta:    make(map[string]string),
		headers: make(map[string]string),
	}
}

func (b *block) started() bool {
	return b.sawRequest || len(b.meta) > 0
}

func (b *block) add(line string, lineNo int) {
	trimmed := strings.TrimSpace(line)

	if !b.sawRequest {
		switch {
		case trimmed == "":
			return
		case strings.HasPrefix(trimmed, "# @") || strings.HasPrefix(trimmed, "// @"):
			key, value := parseMetaLine(trimmed)
			if key != "" {
				b.meta[key] = value
			}
			return
		case strings.HasPrefix(trimmed, "#") || strings.HasPrefix(trimmed, "//"):
			return // plain comment
		default:
			parts := strings.Fields(trimmed)
			if len(parts) >= 2 {
				b.method = parts[0]
				b.url = parts[1]
			} else if len(parts) == 1 {
				// URL without method defaults to GET
				b.method = "GET"
				b.url = parts[0]
			}
			b.reqLine = lineNo
			b.sawRequest = true
			return
		}
	}

	if b.inBody {
		b.bodyLines = append(b.bodyLines, line)
		return
	}

	if trimmed == "" {
		b.inBody = true
		return
	}

	if key, value, found := strings.Cut(line, ":"); found {
		b.headers[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}
}

func (b *block) build(path string) (*Request, error) {
	if !b.sawRequest {
		return nil, nil
	}
	if b.method == "" || b.url == "" {
		return nil, &ParseError{Path: path, Line: b.reqLine, Message: "malformed request line"}
	}
	if !isMethod(b.method) {
		return nil, &ParseError{Path: path, Line: b.reqLine, Message: fmt.Sprintf("unknown method %q", b.method)}
	}

	req := &Request{
		Name:    b.meta["name"],
		Method:  b.method,
		URL:     b.url,
		Headers: b.headers,
		Line:    b.reqLine,
	}

	if reason, ok := b.meta["skip"]; ok {
		if reason == "" {
			reason = "skipped"
		}
		req.Skip = reason
	}

	if v, ok := b.meta["maxRetries"]; ok {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return nil, &ParseError{Path: path, Line: b.reqLine, Message: fmt.Sprintf("invalid maxRetries %q", v)}
		}
		req.MaxRetries = n
	}
	if v, ok := b.meta["retryDelay"]; ok {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return nil, &ParseError{Path: path, Line: b.reqLine, Message: fmt.Sprintf("invalid retryDelay %q", v)}
		}
		req.RetryDelay = n
	}

	body := strings.TrimSpace(strings.Join(b.bodyLines, "\n"))
	if strings.HasPrefix(body, "< ") {
		req.BodyFile = strings.TrimSpace(body[2:])
	} else {
		req.Body = body
	}

	return req, nil
}

func isVariableLine(line string) bool {
	trimmed := strings.TrimSpace(line)
	return strings.HasPrefix(trimmed, "@") && strings.Contains(trimmed, "=")
}

func parseVariableLine(line string) (string, string) {
	trimmed := strings.TrimPrefix(strings.TrimSpace(line), "@")
	name, value, _ := strings.Cut(trimmed, "=")
	return strings.TrimSpace(name), strings.TrimSpace(value)
}

func parseMetaLine(line string) (string, string) {
	at := strings.Index(line, "@")
	if at < 0 {
		return "", ""
	}
	rest := line[at+1:]
	parts := strings.SplitN(rest, " ", 2)
	key := strings.TrimSpace(parts[0])
	value := ""
	if len(parts) == 2 {
		value = strings.TrimSpace(parts[1])
	}
	return key, value
}

var methods = map[string]bool{
	"GET": true, "POST": true, "PUT": true, "PATCH": true,
	"DELETE": true, "HEAD": true, "OPTIONS": true, "TRACE": true,
}

func isMethod(m string) bool {
	return methods[m]
}
