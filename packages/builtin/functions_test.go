package builtin

import (
	"context"
	"regexp"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func call(t *testing.T, name string, args ...string) string {
	t.Helper()
	value, found, err := NewRegistry().Call(context.Background(), name, args)
	require.True(t, found, "builtin %s not registered", name)
	require.NoError(t, err)
	return value
}

func TestCall_UnknownName(t *testing.T) {
	_, found, err := NewRegistry().Call(context.Background(), "nope", nil)
	assert.False(t, found)
	assert.NoError(t, err)
}

func TestNow(t *testing.T) {
	value := call(t, "now")
	_, err := time.Parse(time.RFC3339, value)
	assert.NoError(t, err)
}

func TestTimestamp(t *testing.T) {
	value := call(t, "timestamp")
	ts, err := strconv.ParseInt(value, 10, 64)
	require.NoError(t, err)
	assert.InDelta(t, time.Now().Unix(), ts, 5)
}

func TestUUID(t *testing.T) {
	value := call(t, "uuid")
	assert.Regexp(t, regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`), value)
	assert.NotEqual(t, value, call(t, "uuid"))
}

func TestEnv(t *testing.T) {
	t.Setenv("TREQ_TEST_VALUE", "hello")
	assert.Equal(t, "hello", call(t, "env", "TREQ_TEST_VALUE"))

	_, _, err := NewRegistry().Call(context.Background(), "env", nil)
	assert.Error(t, err)
}

func TestRandomInt(t *testing.T) {
	for i := 0; i < 20; i++ {
		value := call(t, "randomInt", "5", "10")
		n, err := strconv.Atoi(value)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, n, 5)
		assert.LessOrEqual(t, n, 10)
	}

	_, _, err := NewRegistry().Call(context.Background(), "randomInt", []string{"10", "5"})
	assert.Error(t, err)
}

func TestRandomString(t *testing.T) {
	assert.Len(t, call(t, "randomString", "32"), 32)
	assert.Len(t, call(t, "randomString"), 16)
}

func TestBase64RoundTrip(t *testing.T) {
	encoded := call(t, "base64", "hello world")
	assert.Equal(t, "aGVsbG8gd29ybGQ=", encoded)
	assert.Equal(t, "hello world", call(t, "base64Decode", encoded))

	_, _, err := NewRegistry().Call(context.Background(), "base64Decode", []string{"!!!"})
	assert.Error(t, err)
}

func TestSHA256(t *testing.T) {
	assert.Equal(t,
		"2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824",
		call(t, "sha256", "hello"))
}

func TestURLEncodeDecode(t *testing.T) {
	encoded := call(t, "urlEncode", "a b&c")
	assert.Equal(t, "a+b%26c", encoded)
	assert.Equal(t, "a b&c", call(t, "urlDecode", encoded))
}

func TestDate(t *testing.T) {
	value := call(t, "date")
	_, err := time.Parse("2006-01-02", value)
	assert.NoError(t, err)

	custom := call(t, "date", "2006")
	assert.Equal(t, time.Now().UTC().Format("2006"), custom)
}

func TestJSONPath(t *testing.T) {
	doc := `{"user":{"name":"alice","roles":["admin","dev"]}}`
	assert.Equal(t, "alice", call(t, "jsonpath", doc, "user.name"))
	assert.Equal(t, "admin", call(t, "jsonpath", doc, "user.roles.0"))

	_, _, err := NewRegistry().Call(context.Background(), "jsonpath", []string{doc, "user.missing"})
	assert.Error(t, err)
}

func TestRegister_CustomBuiltin(t *testing.T) {
	r := NewRegistry()
	r.Register("greet", func(ctx context.Context, args []string) (string, error) {
		return "hi " + args[0], nil
	})

	value, found, err := r.Call(context.Background(), "greet", []string{"bob"})
	require.True(t, found)
	require.NoError(t, err)
	assert.Equal(t, "hi bob", value)
}
