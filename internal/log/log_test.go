package log

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigure(t *testing.T) {
	defer Configure("", "")

	Configure("debug", "")
	assert.Equal(t, logrus.DebugLevel, GetLogger().GetLevel())
	Configure("ERROR", "")
	assert.Equal(t, logrus.ErrorLevel, GetLogger().GetLevel())
	Configure("verbose", "")
	assert.Equal(t, logrus.InfoLevel, GetLogger().GetLevel())
}

func TestJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	out := GetLogger().Out
	defer func() {
		GetLogger().SetOutput(out)
		Configure("", "")
	}()
	Configure("INFO", "json")
	GetLogger().SetOutput(&buf)

	WithWorkspace("plant-a").Info("evaluated")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "plant-a", entry["workspace"])
	assert.Equal(t, "evaluated", entry["msg"])
}
