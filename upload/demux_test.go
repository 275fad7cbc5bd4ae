package upload_test

import (
	"bytes"
	"io"
	"mime/multipart"
	"testing"

	. "github.com/imrenagi/go-drive-upload/upload"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type formPart struct {
	field string
	name  string
	data  []byte
}

func multipartBody(t *testing.T, parts ...formPart) ([]byte, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, p := range parts {
		var (
			w   io.Writer
			err error
		)
		if p.name == "" {
			w, err = mw.CreateFormField(p.field)
		} else {
			w, err = mw.CreateFormFile(p.field, p.name)
		}
		require.NoError(t, err)
		_, err = w.Write(p.data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return buf.Bytes(), mw.FormDataContentType()
}

func TestDemux(t *testing.T) {
	t.Run("should yield every part with its field name and filename", func(t *testing.T) {
		body, ct := multipartBody(t,
			formPart{field: "video", name: "mockFile.mov", data: []byte("hey")},
			formPart{field: "comment", data: []byte("plain")},
			formPart{field: "doc", name: "jude.txt", data: []byte("jude")},
		)

		d, err := NewDemux(bytes.NewReader(body), ct)
		require.NoError(t, err)

		var got []string
		for {
			p, err := d.Next()
			if err == io.EOF {
				break
			}
			require.NoError(t, err)
			b, err := io.ReadAll(p)
			require.NoError(t, err)
			got = append(got, p.FieldName+"|"+p.FileName+"|"+string(b))
		}
		assert.Equal(t, []string{
			"video|mockFile.mov|hey",
			"comment||plain",
			"doc|jude.txt|jude",
		}, got)
	})

	t.Run("a missing boundary is a malformed upload", func(t *testing.T) {
		_, err := NewDemux(bytes.NewReader(nil), "multipart/form-data; boundary=")
		assert.ErrorIs(t, err, ErrMalformedUpload)

		_, err = NewDemux(bytes.NewReader(nil), "multipart/form-data")
		assert.ErrorIs(t, err, ErrMalformedUpload)
	})

	t.Run("a non multipart content type is a malformed upload", func(t *testing.T) {
		_, err := NewDemux(bytes.NewReader(nil), "application/json")
		assert.ErrorIs(t, err, ErrMalformedUpload)

		_, err = NewDemux(bytes.NewReader(nil), "")
		assert.ErrorIs(t, err, ErrMalformedUpload)
	})

	t.Run("a body cut before the closing boundary fails the open part", func(t *testing.T) {
		body, ct := multipartBody(t, formPart{field: "file", name: "a.bin", data: bytes.Repeat([]byte("a"), 1024)})
		body = body[:len(body)-20]

		d, err := NewDemux(bytes.NewReader(body), ct)
		require.NoError(t, err)
		p, err := d.Next()
		require.NoError(t, err)

		_, err = io.ReadAll(p)
		assert.ErrorIs(t, err, ErrMalformedUpload)
	})

	t.Run("a body without any boundary fails on the first part", func(t *testing.T) {
		d, err := NewDemux(bytes.NewReader([]byte("not a multipart body")), "multipart/form-data; boundary=xyz")
		require.NoError(t, err)
		_, err = d.Next()
		assert.ErrorIs(t, err, ErrMalformedUpload)
	})
}
