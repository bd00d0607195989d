package secretstore

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey(t *testing.T) []byte {
	key, err := hex.DecodeString("00112233445566778899aabbccddeeff00112233445566778899aabbccddeeff")
	require.NoError(t, err)
	return key
}

func TestSetGetRoundTrip(t *testing.T) {
	s, err := Open(Options{Path: t.TempDir(), Key: testKey(t)})
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Set(EnvPrefix+"LIGHTER_API_KEY", "sk-test-123"))

	val, found, err := s.Get(EnvPrefix + "LIGHTER_API_KEY")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "sk-test-123", val)
}

func TestGetMissingKey(t *testing.T) {
	s, err := Open(Options{Path: t.TempDir(), Key: testKey(t)})
	require.NoError(t, err)
	defer s.Close()

	_, found, err := s.Get("env/NOPE")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestOpenRequiresPath(t *testing.T) {
	_, err := Open(Options{})
	assert.Error(t, err)
}

func TestParseKey(t *testing.T) {
	hexKey := "00112233445566778899aabbccddeeff00112233445566778899aabbccddeeff"

	b, err := ParseKey(hexKey)
	require.NoError(t, err)
	assert.Len(t, b, 32)

	b, err = ParseKey("0x" + hexKey)
	require.NoError(t, err)
	assert.Len(t, b, 32)

	b, err = ParseKey("")
	require.NoError(t, err)
	assert.Nil(t, b)

	_, err = ParseKey("deadbeef") // 4 字节，太短
	assert.Error(t, err)

	_, err = ParseKey("not-a-key!!")
	assert.Error(t, err)
}
