package upload

import (
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"strings"
)

// Part is one field of a multipart body. Its bytes must be read before the
// next call to Demux.Next.
type Part struct {
	FieldName string
	// FileName is the client declared filename, empty for plain form fields.
	FileName string

	r io.Reader
}

// Read reads the raw bytes of the part. A body ending before the closing
// boundary fails with ErrMalformedUpload.
func (p *Part) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if err != nil && err != io.EOF {
		return n, fmt.Errorf("%w: %w", ErrMalformedUpload, err)
	}
	return n, err
}

// Demux splits a multipart body into its parts, one at a time.
type Demux struct {
	mr *multipart.Reader
}

// NewDemux reads the boundary out of contentType and prepares to split body.
func NewDemux(body io.Reader, contentType string) (*Demux, error) {
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return nil, fmt.Errorf("%w: content type: %w", ErrMalformedUpload, err)
	}
	if !strings.HasPrefix(mediaType, "multipart/") {
		return nil, fmt.Errorf("%w: unexpected content type %q", ErrMalformedUpload, mediaType)
	}
	boundary := params["boundary"]
	if boundary == "" {
		return nil, fmt.Errorf("%w: missing boundary", ErrMalformedUpload)
	}
	return &Demux{mr: multipart.NewReader(body, boundary)}, nil
}

// Next returns the next part, or io.EOF once the closing boundary was read.
// Parts are handed out raw: no Content-Transfer-Encoding is undone.
func (d *Demux) Next() (*Part, error) {
	p, err := d.mr.NextRawPart()
	// NextRawPart wraps io.EOF when the body ends early, so only the bare
	// sentinel means a clean end.
	if err == io.EOF {
		return nil, io.EOF
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedUpload, err)
	}
	return &Part{
		FieldName: p.FormName(),
		FileName:  p.FileName(),
		r:         p,
	}, nil
}
