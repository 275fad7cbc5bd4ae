package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/gorilla/websocket"
	v1 "github.com/imrenagi/go-drive-upload/api/v1"
	"github.com/imrenagi/go-drive-upload/notify"
	"github.com/imrenagi/go-drive-upload/server"
	"github.com/imrenagi/go-drive-upload/upload"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func main() {
	var (
		serverURL string
		field     string
		logLevel  string
	)

	rootCmd := &cobra.Command{
		Use:   "upload-client FILE...",
		Short: "Stream files to the drive and follow the upload progress",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_ = server.InitializeLogger(logLevel)
			return run(cmd.Context(), serverURL, field, args)
		},
		SilenceUsage: true,
	}
	rootCmd.Flags().StringVarP(&serverURL, "server", "s", "http://localhost:8080", "drive server url")
	rootCmd.Flags().StringVarP(&field, "field", "f", "files", "form field name of the files")
	rootCmd.Flags().StringVar(&logLevel, "log-level", "debug", "log level")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		log.Error().Err(err).Msg("upload failed")
		os.Exit(1)
	}
}

type socketMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func run(ctx context.Context, serverURL, field string, files []string) error {
	base, err := url.Parse(serverURL)
	if err != nil {
		return fmt.Errorf("invalid server url: %w", err)
	}

	socketURL := *base
	socketURL.Scheme = strings.Replace(base.Scheme, "http", "ws", 1)
	socketURL.Path = "/socket"
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, socketURL.String(), nil)
	if err != nil {
		return fmt.Errorf("failed to connect to the progress socket: %w", err)
	}
	defer conn.Close()

	var msg socketMessage
	if err := conn.ReadJSON(&msg); err != nil {
		return fmt.Errorf("failed to read the subscriber id: %w", err)
	}
	if msg.Event != notify.ConnectedEvent {
		return fmt.Errorf("unexpected first event %q", msg.Event)
	}
	var connected notify.Connected
	if err := json.Unmarshal(msg.Data, &connected); err != nil {
		return err
	}
	log.Debug().Str("id", connected.ID).Msg("subscribed to upload progress")

	g, ctx := errgroup.WithContext(ctx)
	done := make(chan struct{})

	g.Go(func() error {
		return listen(conn, done)
	})
	g.Go(func() error {
		defer close(done)
		return post(ctx, base, connected.ID, field, files)
	})
	return g.Wait()
}

// listen logs progress events until the upload is finished.
func listen(conn *websocket.Conn, done <-chan struct{}) error {
	go func() {
		<-done
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	}()

	for {
		var msg socketMessage
		if err := conn.ReadJSON(&msg); err != nil {
			select {
			case <-done:
				return nil
			default:
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("progress socket: %w", err)
		}
		if msg.Event != upload.ProgressEventName {
			continue
		}
		var p upload.ProgressEvent
		if err := json.Unmarshal(msg.Data, &p); err != nil {
			log.Warn().Err(err).Msg("malformed progress event")
			continue
		}
		log.Info().
			Str("file", p.Filename).
			Int64("processed", p.ProcessedAlready).
			Msg("upload progress")
	}
}

// post streams every file in a single multipart request without buffering
// them in memory.
func post(ctx context.Context, base *url.URL, token, field string, files []string) error {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		pw.CloseWithError(writeForm(mw, field, files))
	}()

	target := *base
	target.Path = "/"
	target.RawQuery = url.Values{v1.SubscriberQueryParam: {token}}.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target.String(), pr)
	if err != nil {
		pr.Close()
		return err
	}
	req.Header.Set(v1.ContentTypeHeader, mw.FormDataContentType())

	log.Debug().Strs("files", files).Msg("Sending file data")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("error sending request: %w", err)
	}
	defer resp.Body.Close()

	d, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("error reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server answered %d: %s", resp.StatusCode, strings.TrimSpace(string(d)))
	}
	log.Info().Int("status", resp.StatusCode).Msg(string(d))
	return nil
}

func writeForm(mw *multipart.Writer, field string, files []string) error {
	for _, name := range files {
		if err := writeFile(mw, field, name); err != nil {
			return err
		}
	}
	return mw.Close()
}

func writeFile(mw *multipart.Writer, field, name string) error {
	f, err := os.Open(name)
	if err != nil {
		return err
	}
	defer f.Close()

	fw, err := mw.CreateFormFile(field, filepath.Base(name))
	if err != nil {
		return err
	}
	n, err := io.Copy(fw, f)
	if err != nil {
		return err
	}
	log.Debug().Str("file", name).Int64("bytesWritten", n).Msg("data written")
	return nil
}
