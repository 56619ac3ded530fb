package insomnia

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abdul-hamid-achik/treq/packages/core/parser"
)

const sampleExport = `{
  "_type": "export",
  "__export_format": 4,
  "resources": [
    {
      "_id": "fld_1",
      "_type": "request_group",
      "parentId": "wrk_1",
      "name": "Users"
    },
    {
      "_id": "req_1",
      "_type": "request",
      "parentId": "fld_1",
      "name": "Get User",
      "method": "GET",
      "url": "{{ _.baseUrl }}/users/1",
      "headers": [
        {"name": "Accept", "value": "application/json"},
        {"name": "X-Debug", "value": "1", "disabled": true}
      ],
      "parameters": [
        {"name": "expand", "value": "profile"}
      ],
      "authentication": {"type": "bearer", "token": "{{ _.token }}"}
    },
    {
      "_id": "req_2",
      "_type": "request",
      "parentId": "wrk_1",
      "name": "Create User!",
      "description": "Creates a user\nwith a JSON payload",
      "method": "POST",
      "url": "{{ baseUrl }}/users",
      "body": {"mimeType": "application/json", "text": "{\"name\": \"{{ _.userName }}\"}"},
      "authentication": {"type": "basic", "username": "admin", "password": "secret"}
    }
  ]
}`

func TestConvert(t *testing.T) {
	c := NewConverter()

	out, err := c.Convert([]byte(sampleExport))
	require.NoError(t, err)

	file, err := parser.Parse(out, "imported.http")
	require.NoError(t, err)
	require.Len(t, file.Requests, 2)

	get := file.Requests[0]
	assert.Equal(t, "get_user", get.Name)
	assert.Equal(t, "GET", get.Method)
	assert.Equal(t, "{{baseUrl}}/users/1?expand=profile", get.URL)
	assert.Equal(t, "application/json", get.Headers["Accept"])
	assert.NotContains(t, get.Headers, "X-Debug")
	assert.Equal(t, "Bearer {{token}}", get.Headers["Authorization"])

	create := file.Requests[1]
	assert.Equal(t, "create_user", create.Name)
	assert.Equal(t, "POST", create.Method)
	assert.Equal(t, "{{baseUrl}}/users", create.URL)
	assert.Contains(t, create.Body, `{{userName}}`)

	expected := "Basic " + base64.StdEncoding.EncodeToString([]byte("admin:secret"))
	assert.Equal(t, expected, create.Headers["Authorization"])
}

func TestConvert_FolderPathInTitle(t *testing.T) {
	c := NewConverter()

	out, err := c.Convert([]byte(sampleExport))
	require.NoError(t, err)
	assert.Contains(t, out, "### Users - Get User")
}

func TestConvert_Errors(t *testing.T) {
	c := NewConverter()

	_, err := c.Convert([]byte("not json"))
	assert.Error(t, err)

	_, err = c.Convert([]byte(`{"_type":"export","resources":[]}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no requests in export")
}
