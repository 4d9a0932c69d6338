/*
 * Copyright 2025 Veritime Systems, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package logger provides JSON structured logging using zerolog.
package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Config controls log level and destination.
type Config struct {
	Level      string `json:"level"`
	Debug      bool   `json:"debug"`
	Output     string `json:"output"` // "stdout" or "stderr"
	TimeFormat string `json:"time_format,omitempty"`
}

// DefaultConfig returns info-level logging to stdout.
func DefaultConfig() *Config {
	return &Config{Level: "info", Output: "stdout"}
}

type logImpl struct {
	logger zerolog.Logger
}

// New builds a Logger from config without touching global zerolog state.
func New(config *Config) (Logger, error) {
	if config == nil {
		config = DefaultConfig()
	}

	var output io.Writer = os.Stdout
	if config.Output == "stderr" {
		output = os.Stderr
	}

	level := zerolog.InfoLevel

	if config.Debug {
		level = zerolog.DebugLevel
	} else if config.Level != "" {
		var err error

		level, err = zerolog.ParseLevel(config.Level)
		if err != nil {
			return nil, err
		}
	}

	timeFormat := config.TimeFormat
	if timeFormat == "" {
		timeFormat = time.RFC3339
	}

	zl := zerolog.New(output).
		Level(level).
		With().
		Timestamp().
		Logger()

	zerolog.TimeFieldFormat = timeFormat

	return &logImpl{logger: zl}, nil
}

func (l *logImpl) Trace() *zerolog.Event { return l.logger.Trace() }
func (l *logImpl) Debug() *zerolog.Event { return l.logger.Debug() }
func (l *logImpl) Info() *zerolog.Event  { return l.logger.Info() }
func (l *logImpl) Warn() *zerolog.Event  { return l.logger.Warn() }
func (l *logImpl) Error() *zerolog.Event { return l.logger.Error() }
func (l *logImpl) Fatal() *zerolog.Event { return l.logger.Fatal() }
func (l *logImpl) With() zerolog.Context { return l.logger.With() }

func (l *logImpl) WithComponent(component string) Logger {
	return &logImpl{logger: l.logger.With().Str("component", component).Logger()}
}
