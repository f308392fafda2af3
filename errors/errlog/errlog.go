// Copyright 2025 Terramate GmbH
// SPDX-License-Identifier: MPL-2.0

// Package errlog logs bindgraph errors as structured log entries.
//
// The kind, source range and binding stack of an errors.Error are logged as
// the "kind", "file" and "stack" fields. The details of an
// errors.DetailedError are logged as the "details" field.
package errlog

import (
	"strings"

	"github.com/rs/zerolog"
	"github.com/terramate-io/bindgraph/errors"
)

// Error logs the error with the error level if the error is not nil.
// Each error of an errors.List is logged in its own entry, followed by an
// entry with msg.
func Error(logger zerolog.Logger, msg string, err error) {
	logerrs(logger, zerolog.ErrorLevel, msg, err)
}

// Warn logs the error as a warning if the error is not nil.
// Each error of an errors.List is logged in its own entry, followed by an
// entry with msg.
func Warn(logger zerolog.Logger, msg string, err error) {
	logerrs(logger, zerolog.WarnLevel, msg, err)
}

func logerrs(logger zerolog.Logger, level zerolog.Level, msg string, err error) {
	if err == nil {
		return
	}

	var list *errors.List
	if !errors.As(err, &list) {
		logerr(logger, level, msg, err)
		return
	}

	for _, item := range list.Unwrap() {
		logerr(logger, level, "", item)
	}
	logger.WithLevel(level).
		Int("errors", list.Len()).
		Msg(msg)
}

func logerr(logger zerolog.Logger, level zerolog.Level, msg string, err error) {
	ctx := logger.With()
	msgparts := []string{}
	if msg != "" {
		msgparts = append(msgparts, msg)
	}

	var (
		bgerr    *errors.Error
		detailed *errors.DetailedError
	)
	switch {
	case errors.As(err, &detailed):
		var details []string
		detailed.Inspect(func(_ int, _ string, _ error, ds []errors.ErrorDetails) {
			for _, d := range ds {
				details = append(details, d.Msg)
			}
		})
		if detailed.Code != "" {
			ctx = ctx.Str("kind", string(detailed.Code))
		}
		if len(details) > 0 {
			ctx = ctx.Strs("details", details)
		}
		msgparts = append(msgparts, detailed.Msg)
		if detailed.Cause != nil {
			msgparts = append(msgparts, detailed.Cause.Error())
		}

	case errors.As(err, &bgerr):
		if bgerr.Kind != "" {
			ctx = ctx.Str("kind", string(bgerr.Kind))
		}
		if !bgerr.FileRange.Empty() {
			ctx = ctx.Stringer("file", bgerr.FileRange)
		}
		if bgerr.Stack != "" {
			ctx = ctx.Str("stack", string(bgerr.Stack))
		}
		if bgerr.Description != "" {
			msgparts = append(msgparts, bgerr.Description)
		}
		if bgerr.Err != nil {
			msgparts = append(msgparts, bgerr.Err.Error())
		}

	default:
		msgparts = append(msgparts, err.Error())
	}

	logger = ctx.Logger()
	logger.WithLevel(level).Msg(strings.Join(msgparts, errors.Separator))
}
