// Package feeds reads the periodic flat-file exports.
//
// A feed lives in a location (a local directory or a bucket prefix) that holds
// exactly one file of interest, picked by extension. The file is decoded from
// its declared character set, parsed as comma-separated values with a header
// row, and turned into typed rows through the declared column names.
package feeds

import (
	"context"
	"io"

	"github.com/agentstation/enrollsync/pkg/constants"
	"github.com/agentstation/enrollsync/pkg/errors"
	"github.com/agentstation/enrollsync/pkg/logging"
)

// Source finds and opens the feed file in one location.
type Source interface {
	// Open returns the name and contents of the first file whose extension
	// matches ext, compared case-insensitively.
	Open(ctx context.Context, ext string) (name string, rc io.ReadCloser, err error)

	// String describes the location for logs.
	String() string
}

// Spec describes how one feed is stored.
type Spec struct {
	Source    Source
	Extension string
	Encoding  string
}

func (s Spec) extension() string {
	if s.Extension == "" {
		return constants.DefaultFeedExtension
	}
	return s.Extension
}

func (s Spec) encoding() string {
	if s.Encoding == "" {
		return constants.DefaultFeedEncoding
	}
	return s.Encoding
}

// Load locates, decodes and parses one feed. Every failure is batch-fatal.
func Load(ctx context.Context, spec Spec) (*Table, error) {
	if spec.Source == nil {
		return nil, errors.Fatal(errors.NewValidationError("source", nil, "feed source is required"))
	}

	logger := logging.FromContext(ctx)

	name, rc, err := spec.Source.Open(ctx, spec.extension())
	if err != nil {
		return nil, errors.Fatal(err)
	}
	defer func() { _ = rc.Close() }()

	decoded, err := Decode(rc, spec.encoding())
	if err != nil {
		return nil, errors.Fatal(err)
	}

	table, err := Parse(decoded, name)
	if err != nil {
		return nil, errors.Fatal(err)
	}

	logger.Info().
		Str("location", spec.Source.String()).
		Str("file", name).
		Str("encoding", spec.encoding()).
		Int("rows", len(table.Rows)).
		Msg("Feed loaded")

	return table, nil
}
