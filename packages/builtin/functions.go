package builtin

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"math/rand"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
)

// Func is the builtin resolver signature, matching the plugin resolver
// contract.
type Func func(ctx context.Context, args []string) (string, error)

type Registry struct {
	funcs map[string]Func
}

func NewRegistry() *Registry {
	r := &Registry{
		funcs: make(map[string]Func),
	}
	r.registerDefaults()
	return r
}

// Names used by resolvers carry no "$" prefix here; the interpolation
// layer strips it before the lookup.
func (r *Registry) registerDefaults() {
	r.funcs["now"] = funcNow
	r.funcs["timestamp"] = funcTimestamp
	r.funcs["timestampMs"] = funcTimestampMs
	r.funcs["uuid"] = funcUUID
	r.funcs["env"] = funcEnv
	r.funcs["randomInt"] = funcRandomInt
	r.funcs["randomString"] = funcRandomString
	r.funcs["base64"] = funcBase64
	r.funcs["base64Decode"] = funcBase64Decode
	r.funcs["sha256"] = funcSHA256
	r.funcs["urlEncode"] = funcURLEncode
	r.funcs["urlDecode"] = funcURLDecode
	r.funcs["date"] = funcDate
	r.funcs["jsonpath"] = funcJSONPath
}

func (r *Registry) Register(name string, fn Func) {
	r.funcs[name] = fn
}

// Call invokes a builtin by bare name. The second return reports whether
// the builtin exists at all.
func (r *Registry) Call(ctx context.Context, name string, args []string) (string, bool, error) {
	fn, ok := r.funcs[name]
	if !ok {
		return "", false, nil
	}
	value, err := fn(ctx, args)
	return value, true, err
}

// Names returns the registered builtin names.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.funcs))
	for name := range r.funcs {
		names = append(names, name)
	}
	return names
}

func funcNow(_ context.Context, _ []string) (string, error) {
	return time.Now().UTC().Format(time.RFC3339), nil
}

func funcTimestamp(_ context.Context, _ []string) (string, error) {
	return strconv.FormatInt(time.Now().Unix(), 10), nil
}

func funcTimestampMs(_ context.Context, _ []string) (string, error) {
	return strconv.FormatInt(time.Now().UnixMilli(), 10), nil
}

func funcUUID(_ context.Context, _ []string) (string, error) {
	return uuid.New().String(), nil
}

func funcEnv(_ context.Context, args []string) (string, error) {
	if len(args) < 1 {
		return "", fmt.Errorf("env: variable name required")
	}
	return os.Getenv(args[0]), nil
}

func funcRandomInt(_ context.Context, args []string) (string, error) {
	min, max := 0, 1000000
	if len(args) >= 1 {
		v, err := strconv.Atoi(args[0])
		if err != nil {
			return "", fmt.Errorf("randomInt: min %q is not an integer", args[0])
		}
		min = v
	}
	if len(args) >= 2 {
		v, err := strconv.Atoi(args[1])
		if err != nil {
			return "", fmt.Errorf("randomInt: max %q is not an integer", args[1])
		}
		max = v
	}
	if max < min {
		return "", fmt.Errorf("randomInt: max %d is less than min %d", max, min)
	}
	return strconv.Itoa(rand.Intn(max-min+1) + min), nil
}

func funcRandomString(_ context.Context, args []string) (string, error) {
	length := 16
	if len(args) >= 1 {
		v, err := strconv.Atoi(args[0])
		if err != nil {
			return "", fmt.Errorf("randomString: length %q is not an integer", args[0])
		}
		length = v
	}
	const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	result := make([]byte, length)
	for i := range result {
		result[i] = charset[rand.Intn(len(charset))]
	}
	return string(result), nil
}

func funcBase64(_ context.Context, args []string) (string, error) {
	if len(args) < 1 {
		return "", fmt.Errorf("base64: value required")
	}
	return base64.StdEncoding.EncodeToString([]byte(args[0])), nil
}

func funcBase64Decode(_ context.Context, args []string) (string, error) {
	if len(args) < 1 {
		return "", fmt.Errorf("base64Decode: value required")
	}
	decoded, err := base64.StdEncoding.DecodeString(args[0])
	if err != nil {
		return "", fmt.Errorf("base64Decode: %w", err)
	}
	return string(decoded), nil
}

func funcSHA256(_ context.Context, args []string) (string, error) {
	if len(args) < 1 {
		return "", fmt.Errorf("sha256: value required")
	}
	hash := sha256.Sum256([]byte(args[0]))
	return hex.EncodeToString(hash[:]), nil
}

func funcURLEncode(_ context.Context, args []string) (string, error) {
	if len(args) < 1 {
		return "", fmt.Errorf("urlEncode: value required")
	}
	return url.QueryEscape(args[0]), nil
}

func funcURLDecode(_ context.Context, args []string) (string, error) {
	if len(args) < 1 {
		return "", fmt.Errorf("urlDecode: value required")
	}
	decoded, err := url.QueryUnescape(args[0])
	if err != nil {
		return "", fmt.Errorf("urlDecode: %w", err)
	}
	return decoded, nil
}

func funcDate(_ context.Context, args []string) (string, error) {
	format := "2006-01-02"
	if len(args) >= 1 {
		format = args[0]
	}
	return time.Now().UTC().Format(format), nil
}

// funcJSONPath extracts a value from a JSON document with a gjson path.
func funcJSONPath(_ context.Context, args []string) (string, error) {
	if len(args) < 2 {
		return "", fmt.Errorf("jsonpath: document and path required")
	}
	result := gjson.Get(args[0], args[1])
	if !result.Exists() {
		return "", fmt.Errorf("jsonpath: path %q not found", args[1])
	}
	return result.String(), nil
}
