// Package feature turns raw image bytes into indexable fields.
//
// A Builder produces named string fields from a payload. Builders are
// composed with Chain and their output is merged with the record's own
// metadata by Merge, which never lets a builder overwrite metadata.
package feature

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Aman-CERP/imagedex/internal/record"
)

// Builder extracts fields from raw bytes. Implementations must not mutate
// raw and may return an empty result.
type Builder interface {
	Name() string
	Extract(ctx context.Context, raw []byte) (record.Fields, error)
}

// Chain runs builders in order and unions their fields.
// When two builders produce the same field, the earlier one wins.
type Chain struct {
	builders []Builder
}

// NewChain creates a chain over builders. Nil builders are ignored.
func NewChain(builders ...Builder) *Chain {
	c := &Chain{builders: make([]Builder, 0, len(builders))}
	for _, b := range builders {
		if b != nil {
			c.builders = append(c.builders, b)
		}
	}
	return c
}

// Name implements Builder.
func (c *Chain) Name() string {
	return "chain"
}

// Len returns the number of builders in the chain.
func (c *Chain) Len() int {
	return len(c.builders)
}

// Extract implements Builder. The first builder error aborts the chain.
func (c *Chain) Extract(ctx context.Context, raw []byte) (record.Fields, error) {
	out := record.Fields{}
	for _, b := range c.builders {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		fields, err := b.Extract(ctx, raw)
		if err != nil {
			return nil, fmt.Errorf("builder %s: %w", b.Name(), err)
		}

		for k, v := range fields {
			if _, exists := out[k]; exists {
				slog.Debug("feature_field_conflict",
					slog.String("builder", b.Name()),
					slog.String("field", k))
				continue
			}
			out[k] = v
		}
	}
	return out, nil
}

// Merge combines metadata with built features into a new field set.
// Metadata fields take precedence over features with the same name.
func Merge(metadata, features record.Fields) record.Fields {
	out := make(record.Fields, len(metadata)+len(features))
	for k, v := range features {
		out[k] = v
	}
	for k, v := range metadata {
		out[k] = v
	}
	return out
}
