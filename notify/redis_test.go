package notify_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/imrenagi/go-drive-upload/config"
	"github.com/imrenagi/go-drive-upload/notify"
	"github.com/imrenagi/go-drive-upload/upload"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	observer := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer observer.Close()
	sub := observer.Subscribe(ctx, "uploads")
	defer sub.Close()
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	r := notify.NewRedis(config.RedisConfig{Addr: mr.Addr(), Channel: "uploads"})
	defer r.Close()
	require.NoError(t, r.Ping(ctx))

	err = r.Notify(ctx, "01", upload.ProgressEventName,
		upload.ProgressEvent{Filename: "file.txt", ProcessedAlready: 5})
	require.NoError(t, err)

	select {
	case msg := <-sub.Channel():
		assert.Equal(t, "uploads", msg.Channel)
		assert.JSONEq(t,
			`{"token":"01","event":"file-upload","data":{"filename":"file.txt","processedAlready":5}}`,
			msg.Payload)
	case <-time.After(5 * time.Second):
		t.Fatal("no message published")
	}
}

func TestRedisPingFails(t *testing.T) {
	mr := miniredis.RunT(t)
	r := notify.NewRedis(config.RedisConfig{Addr: mr.Addr(), Channel: "uploads"})
	defer r.Close()
	mr.Close()

	assert.Error(t, r.Ping(context.Background()))
}
