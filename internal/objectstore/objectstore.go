// 包 objectstore：在 S3 兼容存储（MinIO）中读写设施快照，作为 s3 设施数据源
package objectstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"shelter-api/internal/config"
	"shelter-api/internal/facility"
	"shelter-api/internal/logger"
)

// ErrNotFound 快照对象不存在
var ErrNotFound = errors.New("snapshot not found")

// blobs 快照读写所需的最小对象存储能力
type blobs interface {
	Get(ctx context.Context, bucket, key string) (io.ReadCloser, error)
	Put(ctx context.Context, bucket, key string, data []byte) error
	EnsureBucket(ctx context.Context, bucket string) error
}

// 文档注释：设施快照
// 背景：导入工具把整批记录写为单个 JSON 数组对象；服务端按需整体读取，格式与本地文件数据源一致。
type Snapshot struct {
	store  blobs
	bucket string
	key    string
}

// New 按配置连接 MinIO
func New(c config.MinIO) (*Snapshot, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("missing one or more of MINIO_ENDPOINT, MINIO_ACCESS_KEY, MINIO_SECRET_KEY")
	}
	cl, err := minio.New(c.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(c.AccessKey, c.SecretKey, ""),
		Secure: c.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	logger.L().Info("minio_client_ready", "endpoint", c.Endpoint, "bucket", c.Bucket)
	return &Snapshot{store: minioBlobs{cl}, bucket: c.Bucket, key: c.Object}, nil
}

func (s *Snapshot) Name() string { return "s3" }

// Load 实现 facility.Source
func (s *Snapshot) Load(ctx context.Context) ([]facility.Facility, error) {
	rc, err := s.store.Get(ctx, s.bucket, s.key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	var out []facility.Facility
	if err := json.NewDecoder(rc).Decode(&out); err != nil {
		if isNoSuchKey(err) {
			return nil, fmt.Errorf("%s/%s: %w", s.bucket, s.key, ErrNotFound)
		}
		return nil, fmt.Errorf("decode snapshot %s/%s: %w", s.bucket, s.key, err)
	}
	logger.L().Debug("snapshot_loaded", "bucket", s.bucket, "key", s.key, "count", len(out))
	return out, nil
}

// Publish 覆盖写入快照；桶不存在时创建
func (s *Snapshot) Publish(ctx context.Context, fs []facility.Facility) error {
	if fs == nil {
		fs = []facility.Facility{}
	}
	data, err := json.Marshal(fs)
	if err != nil {
		return err
	}
	if err := s.store.EnsureBucket(ctx, s.bucket); err != nil {
		return fmt.Errorf("ensure bucket %s: %w", s.bucket, err)
	}
	if err := s.store.Put(ctx, s.bucket, s.key, data); err != nil {
		return fmt.Errorf("put snapshot %s/%s: %w", s.bucket, s.key, err)
	}
	logger.L().Info("snapshot_published", "bucket", s.bucket, "key", s.key, "count", len(fs), "bytes", len(data))
	return nil
}

type minioBlobs struct {
	client *minio.Client
}

// Get 对象读取是惰性的，不存在的错误会在首次读取时返回
func (m minioBlobs) Get(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	obj, err := m.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get object %s/%s: %w", bucket, key, err)
	}
	return obj, nil
}

func (m minioBlobs) Put(ctx context.Context, bucket, key string, data []byte) error {
	_, err := m.client.PutObject(ctx, bucket, key, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: "application/json"})
	return err
}

func (m minioBlobs) EnsureBucket(ctx context.Context, bucket string) error {
	ok, err := m.client.BucketExists(ctx, bucket)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	return m.client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{})
}

func isNoSuchKey(err error) bool {
	return minio.ToErrorResponse(err).Code == "NoSuchKey"
}
