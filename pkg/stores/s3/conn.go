package s3

import (
	"bytes"
	"context"
	"errors"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/spf13/viper"
)

// ErrObjectMissing is the normalized "no such key" outcome, so callers do
// not depend on backend error codes.
var ErrObjectMissing = errors.New("object does not exist")

/*
Conn wraps a minio client with the small byte-oriented surface the stores
need.  Any S3-compatible endpoint works; dev setups typically point it at a
local minio container.
*/
type Conn struct {
	client *minio.Client
}

func NewConn(endpoint, accessKey, secretKey string, useSSL bool) (*Conn, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})

	if err != nil {
		return nil, err
	}

	return &Conn{client: client}, nil
}

// NewConnFromConfig builds a connection from the s3 block of the loaded
// config file.
func NewConnFromConfig() (*Conn, error) {
	v := viper.GetViper()

	return NewConn(
		v.GetString("s3.endpoint"),
		v.GetString("s3.accessKey"),
		v.GetString("s3.secretKey"),
		v.GetBool("s3.useSSL"),
	)
}

// EnsureBucket creates the bucket when it does not exist yet.
func (conn *Conn) EnsureBucket(ctx context.Context, bucket string) error {
	exists, err := conn.client.BucketExists(ctx, bucket)

	if err != nil {
		return err
	}

	if exists {
		return nil
	}

	return conn.client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{})
}

func (conn *Conn) Get(ctx context.Context, bucket string, key string) ([]byte, error) {
	obj, err := conn.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})

	if err != nil {
		return nil, err
	}

	defer obj.Close()

	buf, err := io.ReadAll(obj)

	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, ErrObjectMissing
		}

		return nil, err
	}

	return buf, nil
}

func (conn *Conn) Put(ctx context.Context, bucket string, key string, data []byte) error {
	_, err := conn.client.PutObject(
		ctx, bucket, key,
		bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: "application/json"},
	)

	return err
}

func (conn *Conn) Delete(ctx context.Context, bucket string, key string) error {
	return conn.client.RemoveObject(ctx, bucket, key, minio.RemoveObjectOptions{})
}

// List returns every object key under the prefix.
func (conn *Conn) List(ctx context.Context, bucket string, prefix string) ([]string, error) {
	var keys []string

	for info := range conn.client.ListObjects(ctx, bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	}) {
		if info.Err != nil {
			return nil, info.Err
		}

		keys = append(keys, info.Key)
	}

	return keys, nil
}
