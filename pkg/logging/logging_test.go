// Copyright 2025 The Sigstore Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bufferLogger(level LogLevel, format LogFormat) (*DefaultLogger, *bytes.Buffer) {
	var buf bytes.Buffer
	return New(Options{Level: level, Format: format, Output: &buf}), &buf
}

func TestLevelFiltering(t *testing.T) {
	tests := []struct {
		name     string
		level    LogLevel
		expected string
	}{
		{name: "debug shows everything", level: LevelDebug, expected: "d\ni\nw\ne\n"},
		{name: "info hides debug", level: LevelInfo, expected: "i\nw\ne\n"},
		{name: "error only", level: LevelError, expected: "e\n"},
		{name: "silent", level: LevelSilent, expected: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, buf := bufferLogger(tt.level, FormatText)
			logger.Debug("d")
			logger.Info("%s", "i")
			logger.Warn("w")
			logger.Error("e")
			assert.Equal(t, tt.expected, buf.String())
		})
	}
}

func TestParseLogLevel(t *testing.T) {
	cases := map[string]LogLevel{
		"debug":   LevelDebug,
		" INFO ":  LevelInfo,
		"warning": LevelWarn,
		"error":   LevelError,
		"silent":  LevelSilent,
		"off":     LevelSilent,
		"bogus":   LevelInfo,
	}
	for in, want := range cases {
		assert.Equal(t, want, ParseLogLevel(in), in)
	}
	assert.Equal(t, "warn", LevelWarn.String())
	assert.Equal(t, "unknown", LogLevel(99).String())
}

func TestParseLogFormat(t *testing.T) {
	assert.Equal(t, FormatJSON, ParseLogFormat("JSON"))
	assert.Equal(t, FormatText, ParseLogFormat("plain"))
	assert.Equal(t, FormatText, ParseLogFormat(""))
}

func TestTextComponentPrefixAndSortedFields(t *testing.T) {
	logger, buf := bufferLogger(LevelInfo, FormatText)
	ForComponent(logger, "verify").WithFields(map[string]interface{}{
		"scheme": "gpg",
		"target": "/srv/site",
	}).Info("verifying")

	assert.Equal(t, "verify: verifying {scheme=gpg, target=/srv/site}\n", buf.String())
}

func TestJSONFormat(t *testing.T) {
	logger, buf := bufferLogger(LevelInfo, FormatJSON)
	ForComponent(logger, "signing").WithField("scheme", "sigstore").Warn("removing %s", "sha256sum.txt.sig")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "warn", entry["level"])
	assert.Equal(t, "signing", entry["component"])
	assert.Equal(t, "removing sha256sum.txt.sig", entry["message"])
	assert.Equal(t, map[string]interface{}{"scheme": "sigstore"}, entry["fields"])
	assert.NotEmpty(t, entry["timestamp"])
}

func TestSensitiveFieldsAreMasked(t *testing.T) {
	logger, buf := bufferLogger(LevelInfo, FormatText)
	logger.WithField("identity_token", "eyJhbGciOiJSUzI1NiJ9.payload.sig").Info("signing")
	assert.Equal(t, "signing {identity_token=eyJh....sig}\n", buf.String())
}

func TestWithFieldsDoesNotMutateOriginal(t *testing.T) {
	logger, buf := bufferLogger(LevelInfo, FormatText)
	_ = logger.WithField("k", "v")
	logger.Info("plain")
	assert.Equal(t, "plain\n", buf.String())
}

func TestShowLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Options{Level: LevelInfo, Output: &buf, ShowLevel: true})
	ForComponent(logger, "cli").Error("boom")
	assert.Equal(t, "[ERROR] cli: boom\n", buf.String())
}

func TestEnsureLoggerAndDiscard(t *testing.T) {
	require.NotNil(t, EnsureLogger(nil))
	l := Discard()
	assert.Same(t, l, EnsureLogger(l))
	assert.Equal(t, LevelSilent, l.(*DefaultLogger).Level())
}
