package xmlrpc

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeRequest(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		body := `<?xml version="1.0"?>
<methodCall>
  <methodName>login_to_simulator</methodName>
  <params>
    <param>
      <value>
        <struct>
          <member><name>first</name><value><string>Test</string></value></member>
          <member><name>last</name><value>User</value></member>
          <member><name>start</name><value><string>home</string></value></member>
        </struct>
      </value>
    </param>
  </params>
</methodCall>`

		request, err := DecodeRequest(strings.NewReader(body))
		require.NoError(t, err)
		assert.Equal(t, "login_to_simulator", request.Method)

		params := request.StructParam()
		assert.Equal(t, "Test", params.String("first", ""))
		assert.Equal(t, "User", params.String("last", ""))
		assert.Equal(t, "home", params.String("start", "last"))
		assert.Equal(t, "fallback", params.String("missing", "fallback"))
	})

	t.Run("Success_NestedValues", func(t *testing.T) {
		body := `<?xml version="1.0"?>
<methodCall>
  <methodName>expect_user</methodName>
  <params>
    <param>
      <value>
        <struct>
          <member><name>circuit_code</name><value><i4>12345</i4></value></member>
          <member><name>child</name><value><boolean>1</boolean></value></member>
          <member>
            <name>capabilities</name>
            <value>
              <array>
                <data>
                  <value><string>http://assets.example.com/caps/a</string></value>
                  <value><string>http://assets.example.com/caps/b</string></value>
                </data>
              </array>
            </value>
          </member>
        </struct>
      </value>
    </param>
  </params>
</methodCall>`

		request, err := DecodeRequest(strings.NewReader(body))
		require.NoError(t, err)

		params := request.StructParam()
		assert.Equal(t, 12345, params["circuit_code"])
		assert.Equal(t, true, params["child"])
		assert.Equal(t, Array{
			"http://assets.example.com/caps/a",
			"http://assets.example.com/caps/b",
		}, params["capabilities"])
	})

	t.Run("Success_NoParams", func(t *testing.T) {
		request, err := DecodeRequest(strings.NewReader(`<methodCall><methodName>ping</methodName></methodCall>`))
		require.NoError(t, err)
		assert.Equal(t, "ping", request.Method)
		assert.Empty(t, request.StructParam())
	})

	t.Run("Error_NotAMethodCall", func(t *testing.T) {
		_, err := DecodeRequest(strings.NewReader(`<methodResponse></methodResponse>`))
		assert.Error(t, err)
	})

	t.Run("Error_MalformedXML", func(t *testing.T) {
		_, err := DecodeRequest(strings.NewReader(`<methodCall><methodName>login`))
		assert.Error(t, err)
	})
}

func TestEncodeResponse(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		var buf bytes.Buffer
		err := EncodeResponse(&buf, Struct{
			"login":        "true",
			"circuit_code": 54321,
			"buddy-list": Array{
				Struct{"buddy_id": "a8c88a37-5b3c-4866-a30a-0b7a2a2e9ae3", "buddy_rights_has": 1},
			},
		})
		require.NoError(t, err)

		body := buf.String()
		assert.Contains(t, body, "<methodResponse><params><param><value><struct>")
		assert.Contains(t, body, "<member><name>login</name><value><string>true</string></value></member>")
		assert.Contains(t, body, "<member><name>circuit_code</name><value><i4>54321</i4></value></member>")
		assert.Contains(t, body, "<name>buddy_rights_has</name><value><i4>1</i4></value>")
	})

	t.Run("Success_RoundTrip", func(t *testing.T) {
		var buf bytes.Buffer
		err := EncodeResponse(&buf, Struct{"reason": "presence", "message": "ok", "count": 2})
		require.NoError(t, err)

		// The response body reuses the value grammar of a call, so wrap it to
		// read the struct back.
		wrapped := strings.Replace(buf.String(), "methodResponse", "methodCall", 2)
		request, err := DecodeRequest(strings.NewReader(wrapped))
		require.NoError(t, err)
		assert.Equal(t, Struct{"reason": "presence", "message": "ok", "count": 2}, request.StructParam())
	})

	t.Run("Success_EscapesText", func(t *testing.T) {
		var buf bytes.Buffer
		err := EncodeResponse(&buf, Struct{"message": `<b>"hi" & bye</b>`})
		require.NoError(t, err)
		assert.Contains(t, buf.String(), "&lt;b&gt;&#34;hi&#34; &amp; bye&lt;/b&gt;")
	})

	t.Run("Error_UnsupportedType", func(t *testing.T) {
		var buf bytes.Buffer
		err := EncodeResponse(&buf, Struct{"bad": 1.5})
		assert.Error(t, err)
	})
}

func TestEncodeCall(t *testing.T) {
	var buf bytes.Buffer
	err := EncodeCall(&buf, "expect_user", Struct{"agent_id": "abc", "circuit_code": 99})
	require.NoError(t, err)

	request, err := DecodeRequest(&buf)
	require.NoError(t, err)
	assert.Equal(t, "expect_user", request.Method)
	assert.Equal(t, Struct{"agent_id": "abc", "circuit_code": 99}, request.StructParam())
}

func TestDecodeResponse(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, EncodeResponse(&buf, Struct{"seed_capability": "http://sim.example.com/caps/seed", "success": true}))

		value, err := DecodeResponse(&buf)
		require.NoError(t, err)
		assert.Equal(t, Struct{"seed_capability": "http://sim.example.com/caps/seed", "success": true}, value)
	})

	t.Run("Error_Fault", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, EncodeFault(&buf, 8, "region is down"))

		_, err := DecodeResponse(&buf)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "remote fault 8: region is down")
	})

	t.Run("Error_NoValue", func(t *testing.T) {
		_, err := DecodeResponse(strings.NewReader(`<methodResponse><params></params></methodResponse>`))
		assert.Error(t, err)
	})
}

func TestEncodeFault(t *testing.T) {
	var buf bytes.Buffer
	err := EncodeFault(&buf, 4, "method not supported")
	require.NoError(t, err)

	body := buf.String()
	assert.Contains(t, body, "<methodResponse><fault><value><struct>")
	assert.Contains(t, body, "<name>faultCode</name><value><i4>4</i4></value>")
	assert.Contains(t, body, "<name>faultString</name><value><string>method not supported</string></value>")
}
