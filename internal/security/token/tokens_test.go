package tokens

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRandomDigits_LengthAndAlphabet(t *testing.T) {
	t.Parallel()
	for i := 0; i < 50; i++ {
		code, err := RandomDigits(nil, 8)
		require.NoError(t, err)
		require.Len(t, code, 8)
		for _, c := range code {
			require.True(t, c >= '0' && c <= '9', "non digit %q", c)
		}
	}
}

func TestRandomDigits_RejectsBiasedBytes(t *testing.T) {
	t.Parallel()
	// 255 y 250 se descartan; 3 y 17 producen '3' y '7'.
	src := bytes.NewReader([]byte{255, 250, 3, 17})
	code, err := RandomDigits(src, 2)
	require.NoError(t, err)
	require.Equal(t, "37", code)
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("entropy exhausted") }

func TestRandomHex_PropagatesReaderError(t *testing.T) {
	t.Parallel()
	_, err := RandomHex(failingReader{}, 32)
	require.Error(t, err)
	require.Contains(t, err.Error(), "entropy exhausted")
}

func TestRandomHex_Length(t *testing.T) {
	t.Parallel()
	tok, err := RandomHex(nil, 32)
	require.NoError(t, err)
	require.Len(t, tok, 64)
}

func TestConstantTimeEqual(t *testing.T) {
	t.Parallel()
	tok := strings.Repeat("ab", 32)
	require.True(t, ConstantTimeEqual(tok, tok))
	require.False(t, ConstantTimeEqual(tok, tok[:63]+"c"))
	require.False(t, ConstantTimeEqual("", ""))
	require.False(t, ConstantTimeEqual(tok, ""))
	require.False(t, ConstantTimeEqual(tok, tok+"a"))
}

func TestSHA256Hex(t *testing.T) {
	t.Parallel()
	require.Equal(t,
		"e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855",
		SHA256Hex(""))
}
