package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWithOutput_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewWithOutput(&buf, "DEBUG", "json")
	require.NoError(t, err)
	assert.Equal(t, logrus.DebugLevel, logger.GetLevel())

	logger.WithField("title", "Zürich").Debug("revision committed")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "Zürich", entry["title"])
	assert.Equal(t, "revision committed", entry["msg"])
}

func TestNewWithOutput_Errors(t *testing.T) {
	_, err := NewWithOutput(&bytes.Buffer{}, "loud", "text")
	assert.ErrorIs(t, err, errLogLevelNotRecognized)

	_, err = NewWithOutput(&bytes.Buffer{}, "info", "xml")
	assert.Error(t, err)
}

func TestLevelDefaults(t *testing.T) {
	lvl, err := levelFromString("")
	require.NoError(t, err)
	assert.Equal(t, logrus.InfoLevel, lvl)

	lvl, err = levelFromString("warning")
	require.NoError(t, err)
	assert.Equal(t, logrus.WarnLevel, lvl)
}
