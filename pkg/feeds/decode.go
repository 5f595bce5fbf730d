package feeds

import (
	"io"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/transform"

	"github.com/agentstation/enrollsync/pkg/errors"
)

// LookupEncoding resolves an IANA character set name such as "Shift_JIS".
func LookupEncoding(name string) (encoding.Encoding, error) {
	enc, err := ianaindex.IANA.Encoding(name)
	if err != nil {
		return nil, errors.NewValidationError("encoding", name, err.Error())
	}
	if enc == nil {
		return nil, errors.NewValidationError("encoding", name, "character set is not supported")
	}
	return enc, nil
}

// Decode wraps r so that it yields UTF-8 text decoded from the named charset.
// Bytes the charset cannot map come out as U+FFFD.
func Decode(r io.Reader, name string) (io.Reader, error) {
	enc, err := LookupEncoding(name)
	if err != nil {
		return nil, err
	}
	return transform.NewReader(r, enc.NewDecoder()), nil
}
