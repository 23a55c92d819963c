package modemsim

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/compose-network/radiolink/x/codec"
	"github.com/compose-network/radiolink/x/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleScript = `
name: sample
on_connect:
  - code: 1034
    ints: [15]
  - code: 1550
    string: "8901,310,260"
responses:
  11:
    string: "001010123456789"
  2:
    error: 3
  59:
    raw_hex: "deadbeef"
    delay: 50ms
  60:
    strings: ["a", "b"]
    events:
      - code: 1028
        oem:
          band: 7
  23:
    silent: true
default:
  ints: [0]
`

func TestParseScript(t *testing.T) {
	t.Parallel()

	s, err := ParseScript([]byte(sampleScript))
	require.NoError(t, err)

	assert.Equal(t, "sample", s.Name)
	require.Len(t, s.OnConnect, 2)
	assert.Equal(t, protocol.EventRILConnected, s.OnConnect[0].Code)
	assert.Equal(t, []int32{15}, s.OnConnect[0].Ints)
	require.NotNil(t, s.OnConnect[1].String)
	assert.Equal(t, "8901,310,260", *s.OnConnect[1].String)

	assert.Equal(t, protocol.ErrorPasswordIncorrect, s.Responses[protocol.RequestEnterSIMPIN].Error)
	assert.Equal(t, 50*time.Millisecond, s.Responses[protocol.RequestOEMHookRaw].Delay)
	assert.True(t, s.Responses[protocol.RequestRadioPower].Silent)
	require.Len(t, s.Responses[protocol.RequestOEMHookStrings].Events, 1)

	assert.Equal(t, []int32{0}, s.responseFor(protocol.RequestDial).Ints)
}

func TestParseScript_Invalid(t *testing.T) {
	t.Parallel()

	for name, doc := range map[string]string{
		"two fields": "responses:\n  11:\n    string: x\n    ints: [1]\n",
		"bad hex":    "on_connect:\n  - code: 1028\n    raw_hex: zz\n",
		"not yaml":   "responses: [",
	} {
		_, err := ParseScript([]byte(doc))
		assert.ErrorIs(t, err, ErrInvalidScript, name)
	}
}

func TestPayloadEncode(t *testing.T) {
	t.Parallel()

	raw, err := Payload{RawHex: "0102"}.Encode()
	require.NoError(t, err)
	vals, err := codec.Decode(raw, codec.KindBytes)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2}, vals[0])

	empty, err := Payload{}.Encode()
	require.NoError(t, err)
	assert.Empty(t, empty)

	s := "x"
	str, err := Payload{String: &s}.Encode()
	require.NoError(t, err)
	vals, err = codec.Decode(str, codec.KindString)
	require.NoError(t, err)
	assert.Equal(t, "x", vals[0])
}

func TestLoadScript_RoundTrip(t *testing.T) {
	t.Parallel()

	data, err := DefaultScript().Marshal()
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "modem.yaml")
	require.NoError(t, os.WriteFile(path, data, 0o600))

	s, err := LoadScript(path)
	require.NoError(t, err)
	assert.Equal(t, "default", s.Name)
	assert.Len(t, s.OnConnect, len(DefaultScript().OnConnect))
	assert.Contains(t, s.Responses, protocol.RequestGetIMSI)

	_, err = LoadScript(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
