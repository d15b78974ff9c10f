package logger

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestNew(t *testing.T) {
	t.Run("json by default", func(t *testing.T) {
		l := New("debug", "")
		assert.Equal(t, logrus.DebugLevel, l.GetLevel())
		_, ok := l.Formatter.(*logrus.JSONFormatter)
		assert.True(t, ok)
	})

	t.Run("text format", func(t *testing.T) {
		l := New("warn", "TEXT")
		assert.Equal(t, logrus.WarnLevel, l.GetLevel())
		_, ok := l.Formatter.(*logrus.TextFormatter)
		assert.True(t, ok)
	})

	t.Run("unknown level falls back to info", func(t *testing.T) {
		l := New("loud", "json")
		assert.Equal(t, logrus.InfoLevel, l.GetLevel())
	})
}

func TestInit(t *testing.T) {
	Init("error", "json")
	assert.Equal(t, logrus.ErrorLevel, Log.GetLevel())
}
