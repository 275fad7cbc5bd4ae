package v1

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/imrenagi/go-drive-upload/storage"
	"github.com/imrenagi/go-drive-upload/upload"
	"github.com/rs/zerolog/log"
)

const (
	ContentTypeHeader = "Content-Type"
	// SubscriberQueryParam carries the token progress events are routed to.
	SubscriberQueryParam = "socketId"

	uploadSuccessMessage = "Files uploaded with success!"
)

// Uploader streams a multipart body to storage.
type Uploader interface {
	Handle(ctx context.Context, req upload.Request, onComplete func(upload.Summary)) error
}

// Lister reports the files already stored.
type Lister interface {
	List(ctx context.Context) ([]storage.FileStatus, error)
}

type Options struct {
	MaxBytes int64
}

type Option func(*Options)

// WithMaxBytes limits the size of an upload request body. Zero means no limit.
func WithMaxBytes(n int64) Option {
	return func(o *Options) {
		o.MaxBytes = n
	}
}

func NewController(u Uploader, l Lister, opts ...Option) *Controller {
	o := Options{}
	for _, opt := range opts {
		opt(&o)
	}
	c := &Controller{
		uploader: u,
		lister:   l,
		maxBytes: o.MaxBytes,
	}
	c.routes = map[string]http.HandlerFunc{
		http.MethodGet:     c.List(),
		http.MethodPost:    c.Upload(),
		http.MethodOptions: c.Options(),
	}
	c.fallback = c.Default()
	return c
}

type Controller struct {
	uploader Uploader
	lister   Lister
	maxBytes int64

	routes   map[string]http.HandlerFunc
	fallback http.HandlerFunc
}

// ServeHTTP picks the handler registered for the request method, or the
// default route when there is none.
func (c *Controller) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h, ok := c.routes[r.Method]
	if !ok {
		h = c.fallback
	}
	h(w, r)
}

func (c *Controller) Default() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("hello world"))
	}
}

// Options answers browser preflight probes.
func (c *Controller) Options() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}
}

func (c *Controller) List() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		files, err := c.lister.List(r.Context())
		if err != nil {
			log.Ctx(r.Context()).Error().Err(err).Msg("Error listing the files")
			writeError(w, http.StatusInternalServerError, errors.New("error listing the files"))
			return
		}
		if files == nil {
			files = []storage.FileStatus{}
		}
		writeJSON(w, http.StatusOK, files)
	}
}

type uploadResult struct {
	Result string `json:"result"`
	Files  int    `json:"files"`
	Bytes  int64  `json:"bytes"`
}

// Upload streams every file of a multipart/form-data body to storage. The
// response is only written once the whole body was consumed.
func (c *Controller) Upload() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := log.Ctx(r.Context())
		token := r.URL.Query().Get(SubscriberQueryParam)
		contentType := r.Header.Get(ContentTypeHeader)

		log.Debug().
			Str("content_type", contentType).
			Str("content_length", r.Header.Get("Content-Length")).
			Str("token", token).
			Msg("received upload")

		if c.maxBytes > 0 {
			r.Body = http.MaxBytesReader(w, r.Body, c.maxBytes)
		}
		defer r.Body.Close()

		err := c.uploader.Handle(r.Context(), upload.Request{
			Body:        r.Body,
			ContentType: contentType,
			Token:       token,
		}, func(sum upload.Summary) {
			writeJSON(w, http.StatusOK, uploadResult{
				Result: uploadSuccessMessage,
				Files:  sum.Files,
				Bytes:  sum.Bytes,
			})
		})
		if err != nil {
			writeError(w, statusCode(err), err)
		}
	}
}

// statusCode maps a failed upload to a server error. Only a body cut off by
// the size limit is reported as the client's fault.
func statusCode(err error) int {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return http.StatusRequestEntityTooLarge
	}
	return http.StatusInternalServerError
}

type cError struct {
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, cError{Message: err.Error()})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	b, _ := json.Marshal(v)
	w.Header().Set(ContentTypeHeader, "application/json")
	w.WriteHeader(code)
	w.Write(b)
}
