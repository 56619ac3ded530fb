// Package insomnia converts Insomnia JSON exports into treq request
// files.
package insomnia

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strings"
)

type Converter struct{}

func NewConverter() *Converter {
	return &Converter{}
}

// Export is the top level of an Insomnia v4 export.
type Export struct {
	Type         string     `json:"_type"`
	ExportFormat int        `json:"__export_format"`
	Resources    []Resource `json:"resources"`
}

// Resource is one entry in the export: a request, folder, or other
// record; only requests and folders matter here.
type Resource struct {
	ID             string      `json:"_id"`
	Type           string      `json:"_type"`
	ParentID       string      `json:"parentId"`
	Name           string      `json:"name"`
	Description    string      `json:"description,omitempty"`
	Method         string      `json:"method,omitempty"`
	URL            string      `json:"url,omitempty"`
	Headers        []Header    `json:"headers,omitempty"`
	Body           *Body       `json:"body,omitempty"`
	Parameters     []Parameter `json:"parameters,omitempty"`
	Authentication *Auth       `json:"authentication,omitempty"`
}

type Header struct {
	Name     string `json:"name"`
	Value    string `json:"value"`
	Disabled bool   `json:"disabled,omitempty"`
}

type Body struct {
	MimeType string `json:"mimeType,omitempty"`
	Text     string `json:"text,omitempty"`
}

type Parameter struct {
	Name     string `json:"name"`
	Value    string `json:"value"`
	Disabled bool   `json:"disabled,omitempty"`
}

type Auth struct {
	Type     string `json:"type"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
	Token    string `json:"token,omitempty"`
}

// ConvertFile converts an Insomnia export file.
func (c *Converter) ConvertFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", path, err)
	}
	return c.Convert(data)
}

// Convert converts export JSON into a request file.
func (c *Converter) Convert(data []byte) (string, error) {
	var export Export
	if err := json.Unmarshal(data, &export); err != nil {
		return "", fmt.Errorf("parsing Insomnia export: %w", err)
	}

	var requests []Resource
	folders := make(map[string]Resource)
	for _, res := range export.Resources {
		switch res.Type {
		case "request":
			requests = append(requests, res)
		case "request_group":
			folders[res.ID] = res
		}
	}

	if len(requests) == 0 {
		return "", fmt.Errorf("no requests in export")
	}

	var sb strings.Builder
	sb.WriteString("# Imported from Insomnia\n\n")
	for _, req := range requests {
		c.writeRequest(&sb, req, folders)
	}
	return sb.String(), nil
}

func (c *Converter) writeRequest(sb *strings.Builder, req Resource, folders map[string]Resource) {
	sb.WriteString("### ")
	if folderPath := folderPath(req.ParentID, folders); folderPath != "" {
		sb.WriteString(folderPath)
		sb.WriteString(" - ")
	}
	sb.WriteString(req.Name)
	sb.WriteString("\n")

	sb.WriteString("# @name ")
	sb.WriteString(sanitizeName(req.Name))
	sb.WriteString("\n")

	if req.Description != "" {
		sb.WriteString("# ")
		sb.WriteString(strings.ReplaceAll(req.Description, "\n", " "))
		sb.WriteString("\n")
	}

	method := req.Method
	if method == "" {
		method = "GET"
	}
	sb.WriteString(method)
	sb.WriteString(" ")
	sb.WriteString(urlWithParams(convertVariables(req.URL), req.Parameters))
	sb.WriteString("\n")

	for _, h := range req.Headers {
		if h.Disabled {
			continue
		}
		sb.WriteString(h.Name)
		sb.WriteString(": ")
		sb.WriteString(convertVariables(h.Value))
		sb.WriteString("\n")
	}
	if line := authHeader(req.Authentication); line != "" {
		sb.WriteString(line)
		sb.WriteString("\n")
	}

	if req.Body != nil && req.Body.Text != "" {
		sb.WriteString("\n")
		sb.WriteString(convertVariables(req.Body.Text))
		sb.WriteString("\n")
	}

	sb.WriteString("\n")
}

// authHeader folds Insomnia auth records into an Authorization header.
func authHeader(auth *Auth) string {
	if auth == nil {
		return ""
	}
	switch auth.Type {
	case "basic":
		if auth.Username == "" {
			return ""
		}
		credentials := convertVariables(auth.Username) + ":" + convertVariables(auth.Password)
		return "Authorization: Basic " + base64.StdEncoding.EncodeToString([]byte(credentials))
	case "bearer":
		if auth.Token == "" {
			return ""
		}
		return "Authorization: Bearer " + convertVariables(auth.Token)
	}
	return ""
}

// urlWithParams appends enabled query parameters to the URL, preserving
// {{...}} placeholders verbatim.
func urlWithParams(rawURL string, params []Parameter) string {
	var pairs []string
	for _, p := range params {
		if p.Disabled {
			continue
		}
		pairs = append(pairs, url.QueryEscape(p.Name)+"="+convertVariables(p.Value))
	}
	if len(pairs) == 0 {
		return rawURL
	}

	sep := "?"
	if strings.Contains(rawURL, "?") {
		sep = "&"
	}
	return rawURL + sep + strings.Join(pairs, "&")
}

func folderPath(parentID string, folders map[string]Resource) string {
	var path []string
	currentID := parentID
	for {
		folder, ok := folders[currentID]
		if !ok {
			break
		}
		path = append([]string{folder.Name}, path...)
		currentID = folder.ParentID
	}
	return strings.Join(path, "/")
}

var (
	scopedVarPattern = regexp.MustCompile(`\{\{\s*_\.(\w+)\s*\}\}`)
	plainVarPattern  = regexp.MustCompile(`\{\{\s*(\w+)\s*\}\}`)
	namePattern      = regexp.MustCompile(`[^a-zA-Z0-9]+`)
)

// convertVariables rewrites Insomnia's {{ _.name }} and {{ name }}
// syntax to treq's {{name}}.
func convertVariables(s string) string {
	s = scopedVarPattern.ReplaceAllString(s, "{{$1}}")
	s = plainVarPattern.ReplaceAllString(s, "{{$1}}")
	return s
}

func sanitizeName(name string) string {
	result := namePattern.ReplaceAllString(name, "_")
	result = strings.Trim(result, "_")
	for strings.Contains(result, "__") {
		result = strings.ReplaceAll(result, "__", "_")
	}
	return strings.ToLower(result)
}
