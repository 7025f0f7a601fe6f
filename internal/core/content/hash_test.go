package content

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func hashText(t *testing.T, h *Hasher, text string) string {
	t.Helper()
	digest, ok := h.Hash(&text)
	require.True(t, ok)
	return digest
}

func TestHash_Deterministic(t *testing.T) {
	h := NewHasher(nil)

	first := hashText(t, h, "hello, world!")
	second := hashText(t, h, "hello, world!")

	assert.Equal(t, first, second)
	assert.Equal(t, "71abb44f43f76b938a35d06a541eb6c670210ccfd2baf2aa1627fee3", first)
	assert.Len(t, first, 56)
}

func TestHash_AcceptsBadText(t *testing.T) {
	logger, hook := test.NewNullLogger()
	h := NewHasher(logger)

	assert.Equal(t, EmptyDigest, hashText(t, h, ""))
	assert.Empty(t, hook.AllEntries(), "empty text is valid and must not warn")

	digest, ok := h.Hash(nil)
	assert.Equal(t, EmptyDigest, digest)
	assert.False(t, ok)
	require.Len(t, hook.AllEntries(), 1)
	assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)

	invalid := string([]byte{0xff, 0xfe, 'a'})
	digest, ok = h.Hash(&invalid)
	assert.Equal(t, EmptyDigest, digest)
	assert.False(t, ok)
	assert.Len(t, hook.AllEntries(), 2)
}

func TestHash_Unicode(t *testing.T) {
	h := NewHasher(nil)
	assert.Equal(t, "16fe99168c57c4c059ad7134cf4a59e95f4577a26f73c4a97a0b439c", hashText(t, h, "Zürich"))
}

func TestDigest_Empty(t *testing.T) {
	assert.Equal(t, EmptyDigest, Digest(nil))
	assert.Equal(t, EmptyDigest, Digest([]byte{}))
}
