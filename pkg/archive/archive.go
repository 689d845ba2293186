// Package archive stores turn audio in S3-compatible object storage.
package archive

import (
	"bytes"
	"context"
	"fmt"
	"path"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Archiver stores the input and synthesized audio of one turn.
type Archiver interface {
	StoreTurn(ctx context.Context, sessionID string, turn int, input, speech []byte) error
}

// Noop drops everything.
type Noop struct{}

func (Noop) StoreTurn(context.Context, string, int, []byte, []byte) error { return nil }

// Config holds connection settings.
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	UseSSL    bool
	// SpeechContentType is recorded on the speech object ("audio/mpeg" for mp3 output).
	SpeechContentType string
}

type Client struct {
	mc                *minio.Client
	bucket            string
	region            string
	speechContentType string
}

func New(cfg Config) (*Client, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("archive bucket is required")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: region,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}
	ct := cfg.SpeechContentType
	if ct == "" {
		ct = "audio/mpeg"
	}
	return &Client{mc: mc, bucket: cfg.Bucket, region: region, speechContentType: ct}, nil
}

// Init creates the bucket if it does not exist.
func (c *Client) Init(ctx context.Context) error {
	exists, err := c.mc.BucketExists(ctx, c.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", c.bucket, err)
	}
	if exists {
		return nil
	}
	if err := c.mc.MakeBucket(ctx, c.bucket, minio.MakeBucketOptions{Region: c.region}); err != nil {
		return fmt.Errorf("create bucket %s: %w", c.bucket, err)
	}
	return nil
}

// StoreTurn uploads the non-empty clips under <session>/<turn>/.
func (c *Client) StoreTurn(ctx context.Context, sessionID string, turn int, input, speech []byte) error {
	if len(input) > 0 {
		if err := c.put(ctx, ObjectName(sessionID, turn, "input.wav"), input, "audio/wav"); err != nil {
			return err
		}
	}
	if len(speech) > 0 {
		if err := c.put(ctx, ObjectName(sessionID, turn, "speech.mp3"), speech, c.speechContentType); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) put(ctx context.Context, name string, data []byte, contentType string) error {
	_, err := c.mc.PutObject(ctx, c.bucket, name, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("upload %s/%s: %w", c.bucket, name, err)
	}
	return nil
}

// ObjectName is the key for one clip of a turn.
func ObjectName(sessionID string, turn int, file string) string {
	return path.Join(sessionID, fmt.Sprintf("%04d", turn), file)
}
