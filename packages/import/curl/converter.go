// Package curl converts curl command lines into treq request files.
package curl

import (
	"bufio"
	"encoding/base64"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"
)

// Converter turns curl invocations into .http request blocks.
type Converter struct{}

func NewConverter() *Converter {
	return &Converter{}
}

// ParsedCurl is the subset of curl's surface the converter understands.
type ParsedCurl struct {
	Method    string
	URL       string
	Headers   map[string]string
	Body      string
	BasicAuth string
	Name      string
}

// ConvertCommand converts one curl command into a request block.
func (c *Converter) ConvertCommand(curlCmd string) (string, error) {
	parsed, err := c.Parse(curlCmd)
	if err != nil {
		return "", err
	}
	return c.Render(parsed), nil
}

// ConvertFile converts a file of curl commands, one per line with
// backslash continuations, into a request file.
func (c *Converter) ConvertFile(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening %s: %w", path, err)
	}
	defer file.Close()

	var commands []string
	var current strings.Builder
	scanner := bufio.NewScanner(file)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.HasSuffix(line, "\\") {
			current.WriteString(strings.TrimSuffix(line, "\\"))
			current.WriteString(" ")
			continue
		}
		current.WriteString(line)
		commands = append(commands, current.String())
		current.Reset()
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("reading %s: %w", path, err)
	}
	if current.Len() > 0 {
		commands = append(commands, current.String())
	}

	var sb strings.Builder
	sb.WriteString("# Imported from curl\n\n")
	for i, cmd := range commands {
		converted, err := c.ConvertCommand(cmd)
		if err != nil {
			return "", fmt.Errorf("command %d: %w", i+1, err)
		}
		sb.WriteString(converted)
		sb.WriteString("\n")
	}
	return sb.String(), nil
}

// Parse extracts the method, url, headers, body, and basic-auth
// credentials from a curl command.
func (c *Converter) Parse(curlCmd string) (*ParsedCurl, error) {
	parsed := &ParsedCurl{
		Method:  "GET",
		Headers: make(map[string]string),
	}

	curlCmd = strings.TrimSpace(curlCmd)
	if curlCmd == "curl" {
		return nil, fmt.Errorf("no URL specified")
	}
	curlCmd = strings.TrimPrefix(curlCmd, "curl ")

	tokens := tokenize(curlCmd)

	takeValue := func(i int, flag string) (string, error) {
		if i+1 >= len(tokens) {
			return "", fmt.Errorf("missing value for %s", flag)
		}
		return tokens[i+1], nil
	}

	i := 0
	for i < len(tokens) {
		token := tokens[i]

		switch {
		case token == "-X" || token == "--request":
			value, err := takeValue(i, token)
			if err != nil {
				return nil, err
			}
			parsed.Method = strings.ToUpper(value)
			i += 2

		case token == "-H" || token == "--header":
			value, err := takeValue(i, token)
			if err != nil {
				return nil, err
			}
			if name, v, found := strings.Cut(value, ":"); found {
				parsed.Headers[strings.TrimSpace(name)] = strings.TrimSpace(v)
			}
			i += 2

		case token == "-d" || token == "--data" || token == "--data-raw" || token == "--data-binary":
			value, err := takeValue(i, token)
			if err != nil {
				return nil, err
			}
			parsed.Body = value
			if parsed.Method == "GET" {
				parsed.Method = "POST"
			}
			i += 2

		case token == "-u" || token == "--user":
			value, err := takeValue(i, token)
			if err != nil {
				return nil, err
			}
			parsed.BasicAuth = value
			i += 2

		case token == "-A" || token == "--user-agent":
			value, err := takeValue(i, token)
			if err != nil {
				return nil, err
			}
			parsed.Headers["User-Agent"] = value
			i += 2

		case token == "-b" || token == "--cookie":
			value, err := takeValue(i, token)
			if err != nil {
				return nil, err
			}
			parsed.Headers["Cookie"] = value
			i += 2

		case strings.HasPrefix(token, "-"):
			// Unknown flag; skip its value when one follows.
			if i+1 < len(tokens) && !strings.HasPrefix(tokens[i+1], "-") && !isURL(tokens[i+1]) {
				i += 2
			} else {
				i++
			}

		default:
			if parsed.URL == "" && isURL(token) {
				parsed.URL = token
			}
			i++
		}
	}

	if parsed.URL == "" {
		return nil, fmt.Errorf("no URL found in curl command")
	}

	parsed.Name = generateName(parsed.URL, parsed.Method)
	return parsed, nil
}

// Render writes a ParsedCurl as a request block the treq parser accepts.
// Basic auth becomes an Authorization header.
func (c *Converter) Render(parsed *ParsedCurl) string {
	var sb strings.Builder

	sb.WriteString("### ")
	sb.WriteString(parsed.Name)
	sb.WriteString("\n# @name ")
	sb.WriteString(parsed.Name)
	sb.WriteString("\n")

	headers := make(map[string]string, len(parsed.Headers)+1)
	for k, v := range parsed.Headers {
		headers[k] = v
	}
	if parsed.BasicAuth != "" {
		headers["Authorization"] = "Basic " + base64.StdEncoding.EncodeToString([]byte(parsed.BasicAuth))
	}

	sb.WriteString(parsed.Method)
	sb.WriteString(" ")
	sb.WriteString(parsed.URL)
	sb.WriteString("\n")

	names := make([]string, 0, len(headers))
	for name := range headers {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		sb.WriteString(name)
		sb.WriteString(": ")
		sb.WriteString(headers[name])
		sb.WriteString("\n")
	}

	if parsed.Body != "" {
		sb.WriteString("\n")
		sb.WriteString(parsed.Body)
		sb.WriteString("\n")
	}

	return sb.String()
}

// tokenize splits a command line on whitespace, respecting single and
// double quotes and backslash escapes.
func tokenize(cmd string) []string {
	var tokens []string
	var current strings.Builder
	inSingle := false
	inDouble := false
	escaped := false

	for _, r := range cmd {
		if escaped {
			current.WriteRune(r)
			escaped = false
			continue
		}

		switch r {
		case '\\':
			escaped = true
		case '\'':
			if inDouble {
				current.WriteRune(r)
			} else {
				inSingle = !inSingle
			}
		case '"':
			if inSingle {
				current.WriteRune(r)
			} else {
				inDouble = !inDouble
			}
		case ' ', '\t':
			if inSingle || inDouble {
				current.WriteRune(r)
			} else if current.Len() > 0 {
				tokens = append(tokens, current.String())
				current.Reset()
			}
		default:
			current.WriteRune(r)
		}
	}

	if current.Len() > 0 {
		tokens = append(tokens, current.String())
	}
	return tokens
}

func isURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://") || strings.HasPrefix(s, "{{")
}

var pathPattern = regexp.MustCompile(`https?://[^/]+(/[^?#]*)?`)

// generateName derives a request name like get_users_42 from the method
// and URL path.
func generateName(url, method string) string {
	matches := pathPattern.FindStringSubmatch(url)

	path := "/"
	if len(matches) > 1 && matches[1] != "" {
		path = matches[1]
	}

	path = strings.Trim(path, "/")
	if path == "" {
		path = "root"
	}
	path = strings.ReplaceAll(path, "/", "_")
	path = strings.ReplaceAll(path, "-", "_")

	return strings.ToLower(method) + "_" + path
}
