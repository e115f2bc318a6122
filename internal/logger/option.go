package logger

import (
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Redacted replaces every registered secret in log output.
const Redacted = "[REDACTED]"

// coreWithRedaction wraps a zapcore.Core and scrubs secrets from messages and fields.
type coreWithRedaction struct {
	zapcore.Core

	// replacer substitutes every secret with Redacted.
	replacer *strings.Replacer
}

// Check adds the redacting core to a checked entry if the level is enabled.
//
//nolint:gocritic // AddCore requires ent to be passed by value.
func (c *coreWithRedaction) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}

	return ce
}

// With returns a redacting core over the wrapped core with scrubbed fields attached.
//
//nolint:ireturn,nolintlint // Returning zapcore.Core is intended for zap integration.
func (c *coreWithRedaction) With(fields []zapcore.Field) zapcore.Core {
	return &coreWithRedaction{
		Core:     c.Core.With(c.scrubFields(fields)),
		replacer: c.replacer,
	}
}

// Write scrubs the entry message and fields before delegating.
//
//nolint:gocritic // zapcore.Core requires ent to be passed by value.
func (c *coreWithRedaction) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	ent.Message = c.replacer.Replace(ent.Message)

	return c.Core.Write(ent, c.scrubFields(fields))
}

func (c *coreWithRedaction) scrubFields(fields []zapcore.Field) []zapcore.Field {
	scrubbed := make([]zapcore.Field, len(fields))

	for i, field := range fields {
		switch field.Type {
		case zapcore.StringType:
			field.String = c.replacer.Replace(field.String)
		case zapcore.ErrorType:
			if err, ok := field.Interface.(error); ok {
				field.Interface = errors.New(c.replacer.Replace(err.Error()))
			}
		case zapcore.StringerType:
			if s, ok := field.Interface.(fmt.Stringer); ok {
				field = zap.String(field.Key, c.replacer.Replace(s.String()))
			}
		default:
		}

		scrubbed[i] = field
	}

	return scrubbed
}

// WithRedaction is an option that replaces each non-empty secret with Redacted
// in every message and string-like field the logger writes.
//
//nolint:ireturn,nolintlint // Returning zap.Option is intended for zap integration.
func WithRedaction(secrets ...string) zap.Option {
	pairs := make([]string, 0, len(secrets)*2)

	for _, secret := range secrets {
		if secret == "" {
			continue
		}

		pairs = append(pairs, secret, Redacted)
	}

	return zap.WrapCore(func(core zapcore.Core) zapcore.Core {
		if len(pairs) == 0 {
			return core
		}

		return &coreWithRedaction{
			Core:     core,
			replacer: strings.NewReplacer(pairs...),
		}
	})
}
