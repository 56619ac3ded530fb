package pipeline

import (
	"bytes"
	"fmt"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"

	treqhttp "github.com/abdul-hamid-achik/treq/packages/http"
)

// compile turns an interpolated request into a transmission-ready one:
// default headers merge under request headers, file bodies are loaded
// relative to the base path, and an obvious Content-Type is filled in
// when absent.
func compile(req *treqhttp.Request, basePath string, defaults map[string]string) (*treqhttp.Request, error) {
	compiled := req.Clone()

	for k, v := range defaults {
		if compiled.Header(k) == "" {
			compiled.Headers[k] = v
		}
	}

	if compiled.BodyFile != "" {
		path := compiled.BodyFile
		if !filepath.IsAbs(path) {
			path = filepath.Join(basePath, path)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading body file: %w", err)
		}
		compiled.Body = string(data)
		compiled.BodyFile = ""
	}

	if strings.HasPrefix(compiled.Header("Content-Type"), "multipart/form-data") {
		if err := encodeMultipart(compiled, basePath); err != nil {
			return nil, err
		}
	}

	if compiled.Body != "" && compiled.Header("Content-Type") == "" {
		if looksLikeJSON(compiled.Body) {
			compiled.Headers["Content-Type"] = "application/json"
		}
	}

	return compiled, nil
}

// encodeMultipart turns a body of field=value lines into a multipart
// payload. A value of @path attaches the file's contents as a file part,
// resolved relative to the base path. The Content-Type header is
// rewritten to carry the generated boundary.
func encodeMultipart(req *treqhttp.Request, basePath string) error {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	for _, line := range strings.Split(req.Body, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		field, value, ok := strings.Cut(line, "=")
		if !ok {
			return fmt.Errorf("multipart body line %q is not field=value", line)
		}

		if !strings.HasPrefix(value, "@") {
			if err := writer.WriteField(field, value); err != nil {
				return fmt.Errorf("writing form field %s: %w", field, err)
			}
			continue
		}

		path := value[1:]
		if !filepath.IsAbs(path) {
			path = filepath.Join(basePath, path)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading form file for field %s: %w", field, err)
		}
		part, err := writer.CreateFormFile(field, filepath.Base(path))
		if err != nil {
			return fmt.Errorf("creating form file %s: %w", field, err)
		}
		if _, err := part.Write(data); err != nil {
			return fmt.Errorf("writing form file %s: %w", field, err)
		}
	}

	if err := writer.Close(); err != nil {
		return fmt.Errorf("finishing multipart body: %w", err)
	}

	req.Body = buf.String()
	for k := range req.Headers {
		if strings.EqualFold(k, "Content-Type") {
			delete(req.Headers, k)
		}
	}
	req.Headers["Content-Type"] = writer.FormDataContentType()
	return nil
}

func looksLikeJSON(body string) bool {
	trimmed := strings.TrimSpace(body)
	return (strings.HasPrefix(trimmed, "{") && strings.HasSuffix(trimmed, "}")) ||
		(strings.HasPrefix(trimmed, "[") && strings.HasSuffix(trimmed, "]"))
}
