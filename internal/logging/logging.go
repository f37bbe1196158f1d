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

// Package logging builds the process logger.
package logging

import (
	"fmt"
	"io"
	"strings"

	"github.com/sirupsen/logrus"
)

// Formats accepted by New.
const (
	FormatText = "text"
	FormatJSON = "json"
)

const timestampFormat = "2006-01-02 15:04:05"

// New returns a logger writing to out at the given level ("debug", "info",
// "warn", "error") in text or JSON form.
func New(level, format string, out io.Writer) (*logrus.Logger, error) {
	lvl, err := logrus.ParseLevel(strings.TrimSpace(level))
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}

	logger := logrus.New()
	logger.SetOutput(out)
	logger.SetLevel(lvl)
	switch strings.ToLower(strings.TrimSpace(format)) {
	case FormatText, "":
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: timestampFormat,
		})
	case FormatJSON:
		logger.SetFormatter(&logrus.JSONFormatter{TimestampFormat: timestampFormat})
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}
	return logger, nil
}
