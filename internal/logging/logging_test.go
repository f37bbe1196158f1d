// Copyright 2025 go-highway Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
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

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func TestJSONFields(t *testing.T) {
	var buf bytes.Buffer
	log, err := New("debug", "json", &buf)
	require.NoError(t, err)
	log.WithFields(logrus.Fields{"turn": 3, "particles": 1000}).Debug("turn tracked")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	require.Equal(t, "turn tracked", entry["msg"])
	require.EqualValues(t, 3, entry["turn"])
	require.Equal(t, "debug", entry["level"])
}

func TestLevelFilters(t *testing.T) {
	var buf bytes.Buffer
	log, err := New("warn", "text", &buf)
	require.NoError(t, err)
	log.Info("hidden")
	require.Zero(t, buf.Len())
	log.Warn("shown")
	require.Contains(t, buf.String(), "shown")
}

func TestRejectsUnknown(t *testing.T) {
	_, err := New("loud", "text", &bytes.Buffer{})
	require.Error(t, err)
	_, err = New("info", "xml", &bytes.Buffer{})
	require.Error(t, err)
}
