package avatar

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePresignClient struct {
	calls   atomic.Int32
	delay   time.Duration
	err     error
	expires time.Duration
	mu      sync.Mutex
}

func (f *fakePresignClient) PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.err != nil {
		return nil, f.err
	}
	opts := s3.PresignOptions{}
	for _, fn := range optFns {
		fn(&opts)
	}
	f.mu.Lock()
	f.expires = opts.Expires
	f.mu.Unlock()
	return &v4.PresignedHTTPRequest{
		URL:    "https://bucket.example.com/" + *params.Bucket + "/" + *params.Key + "?sig=abc",
		Method: "GET",
	}, nil
}

func TestPassthrough(t *testing.T) {
	url, err := Passthrough{}.URL(context.Background(), "https://cdn.example.com/a.png")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/a.png", url)
}

func TestS3Presigner_DirectReferences(t *testing.T) {
	client := &fakePresignClient{}
	p := NewPresigner(client, Config{Bucket: "uploads"}, nil)

	for _, ref := range []string{"", "https://cdn.example.com/a.png", "http://x/y.png", "/static/default.png"} {
		url, err := p.URL(context.Background(), ref)
		require.NoError(t, err)
		assert.Equal(t, ref, url)
	}
	assert.Zero(t, client.calls.Load())
}

func TestS3Presigner_PresignsAndCaches(t *testing.T) {
	client := &fakePresignClient{}
	p := NewPresigner(client, Config{Bucket: "uploads", URLTTL: 10 * time.Minute}, nil)

	url, err := p.URL(context.Background(), "avatars/u1.png")
	require.NoError(t, err)
	assert.Equal(t, "https://bucket.example.com/uploads/avatars/u1.png?sig=abc", url)
	assert.Equal(t, 10*time.Minute, client.expires)

	again, err := p.URL(context.Background(), "avatars/u1.png")
	require.NoError(t, err)
	assert.Equal(t, url, again)
	assert.Equal(t, int32(1), client.calls.Load())
}

func TestS3Presigner_CollapsesConcurrentMisses(t *testing.T) {
	client := &fakePresignClient{delay: 50 * time.Millisecond}
	p := NewPresigner(client, Config{Bucket: "uploads"}, nil)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := p.URL(context.Background(), "avatars/shared.png")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), client.calls.Load())
}

func TestS3Presigner_CancelledFirstCallerDoesNotFailOthers(t *testing.T) {
	client := &fakePresignClient{delay: 100 * time.Millisecond}
	p := NewPresigner(client, Config{Bucket: "uploads"}, nil)

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := p.URL(firstCtx, "avatars/shared.png")
		firstErr <- err
	}()

	time.Sleep(20 * time.Millisecond)
	cancelFirst()
	assert.ErrorIs(t, <-firstErr, context.Canceled)

	url, err := p.URL(context.Background(), "avatars/shared.png")
	require.NoError(t, err)
	assert.Equal(t, "https://bucket.example.com/uploads/avatars/shared.png?sig=abc", url)
	assert.Equal(t, int32(1), client.calls.Load())
}

func TestS3Presigner_Error(t *testing.T) {
	client := &fakePresignClient{err: errors.New("no credentials")}
	p := NewPresigner(client, Config{Bucket: "uploads"}, nil)

	_, err := p.URL(context.Background(), "avatars/u1.png")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no credentials")
}
