package store

import (
	"context"
	"io"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/mdouchement/depot/internal/model"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/pkg/errors"
)

const (
	metaFilename      = "Filename"
	metaCorrelationID = "Correlation-Id"
	metaCreatedAt     = "Created-At"
	metaExtraPrefix   = "Extra-"
)

type s3 struct {
	client *minio.Client
	bucket string
}

// OpenS3 connects to the S3 compatible endpoint described by u.
// The first path segment of u is the bucket, created when missing.
func OpenS3(ctx context.Context, u *url.URL) (Store, error) {
	bucket := strings.Trim(u.Path, "/")
	if bucket == "" {
		return nil, ConnectionError(errors.New("missing bucket"), "invalid s3 target")
	}

	password, _ := u.User.Password()
	client, err := minio.New(u.Host, &minio.Options{
		Creds:  credentials.NewStaticV4(u.User.Username(), password, ""),
		Secure: u.Query().Get("secure") == "true",
		Region: u.Query().Get("region"),
	})
	if err != nil {
		return nil, ConnectionError(err, "could not create s3 client")
	}

	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, ConnectionError(err, "could not reach s3 endpoint")
	}
	if !exists {
		err = client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: u.Query().Get("region")})
		if err != nil {
			return nil, ConnectionError(err, "could not create bucket")
		}
	}

	return &s3{
		client: client,
		bucket: bucket,
	}, nil
}

func (s *s3) Name() string {
	return "s3/" + s.bucket
}

func (s *s3) Containers(ctx context.Context) ([]string, error) {
	containers := make([]string, 0)

	for info := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{}) {
		if info.Err != nil {
			return nil, errors.Wrap(info.Err, "could not list containers")
		}

		if strings.HasSuffix(info.Key, "/") {
			containers = append(containers, strings.TrimSuffix(info.Key, "/"))
		}
	}

	sort.Strings(containers)
	return containers, nil
}

func (s *s3) DeleteContainer(ctx context.Context, container string) error {
	objects := s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    container + "/",
		Recursive: true,
	})

	var err error
	for rerr := range s.client.RemoveObjects(ctx, s.bucket, objects, minio.RemoveObjectsOptions{}) {
		if err == nil {
			err = errors.Wrapf(rerr.Err, "could not delete %s", rerr.ObjectName)
		}
	}
	return err
}

func (s *s3) Objects(ctx context.Context, container string) ([]*model.Object, error) {
	return s.filter(ctx, container, func(*model.Object) bool { return true }, false)
}

func (s *s3) ObjectsByCorrelation(ctx context.Context, container, correlationID string) ([]*model.Object, error) {
	return s.filter(ctx, container, func(o *model.Object) bool {
		return o.CorrelationID == correlationID
	}, false)
}

func (s *s3) Object(ctx context.Context, container, id string) (*model.Object, error) {
	info, err := s.client.StatObject(ctx, s.bucket, s.key(container, id), minio.StatObjectOptions{})
	if isNoSuchKey(err) {
		return nil, NotFound("object %s/%s", container, id)
	}
	if err != nil {
		return nil, errors.Wrap(err, "could not stat object")
	}

	return s.toObject(container, id, info), nil
}

func (s *s3) ObjectByFilename(ctx context.Context, container, filename string) (*model.Object, error) {
	objects, err := s.filter(ctx, container, func(o *model.Object) bool {
		return o.Filename == filename
	}, true)
	if err != nil {
		return nil, err
	}

	if len(objects) == 0 {
		return nil, NotFound("object %s/%s", container, filename)
	}
	return objects[0], nil
}

func (s *s3) Put(ctx context.Context, object *model.Object, r io.Reader) error {
	now := time.Now().UTC()

	metadata := map[string]string{
		metaFilename:  url.QueryEscape(object.Filename),
		metaCreatedAt: now.Format(time.RFC3339Nano),
	}
	if object.CorrelationID != "" {
		metadata[metaCorrelationID] = object.CorrelationID
	}
	for k, v := range object.Metadata {
		metadata[metaExtraPrefix+k] = url.QueryEscape(v)
	}

	info, err := s.client.PutObject(ctx, s.bucket, s.key(object.Container, object.ID), r, -1, minio.PutObjectOptions{
		ContentType:  object.ContentType,
		UserMetadata: metadata,
	})
	if err != nil {
		return WriteError(err, "could not put object")
	}

	object.Size = info.Size
	object.Checksum = strings.Trim(info.ETag, `"`)
	object.SetCreatedAt(now)
	object.SetUpdatedAt(now)
	return nil
}

func (s *s3) Get(ctx context.Context, object *model.Object) (io.ReadCloser, error) {
	o, err := s.client.GetObject(ctx, s.bucket, s.key(object.Container, object.ID), minio.GetObjectOptions{})
	if err != nil {
		return nil, errors.Wrap(err, "could not get object")
	}
	return o, nil
}

func (s *s3) Delete(ctx context.Context, container, id string) error {
	err := s.client.RemoveObject(ctx, s.bucket, s.key(container, id), minio.RemoveObjectOptions{})
	if isNoSuchKey(err) {
		return nil
	}
	return errors.Wrap(err, "could not delete object")
}

func (s *s3) Close() error {
	return nil
}

func (s *s3) filter(ctx context.Context, container string, match func(*model.Object) bool, first bool) ([]*model.Object, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel() // Stops the listing goroutine on early return.

	objects := make([]*model.Object, 0)
	prefix := container + "/"

	for entry := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if entry.Err != nil {
			return nil, errors.Wrap(entry.Err, "could not list objects")
		}

		info, err := s.client.StatObject(ctx, s.bucket, entry.Key, minio.StatObjectOptions{})
		if isNoSuchKey(err) {
			continue // Deleted meanwhile
		}
		if err != nil {
			return nil, errors.Wrap(err, "could not stat object")
		}

		object := s.toObject(container, strings.TrimPrefix(entry.Key, prefix), info)
		if !match(object) {
			continue
		}

		objects = append(objects, object)
		if first {
			break
		}
	}

	sort.SliceStable(objects, func(i, j int) bool {
		return objects[i].CreatedAt.Before(*objects[j].CreatedAt)
	})
	return objects, nil
}

func (s *s3) key(container, id string) string {
	return container + "/" + id
}

func (s *s3) toObject(container, id string, info minio.ObjectInfo) *model.Object {
	object := &model.Object{
		Container:     container,
		ContentType:   info.ContentType,
		Size:          info.Size,
		Checksum:      strings.Trim(info.ETag, `"`),
		CorrelationID: lookup(info.UserMetadata, metaCorrelationID),
	}
	object.ID = id

	object.Filename, _ = url.QueryUnescape(lookup(info.UserMetadata, metaFilename))
	if object.Filename == "" {
		object.Filename = id
	}

	created, err := time.Parse(time.RFC3339Nano, lookup(info.UserMetadata, metaCreatedAt))
	if err != nil {
		created = info.LastModified
	}
	object.SetCreatedAt(created)
	object.SetUpdatedAt(info.LastModified)

	for k, v := range info.UserMetadata {
		if len(k) > len(metaExtraPrefix) && strings.EqualFold(k[:len(metaExtraPrefix)], metaExtraPrefix) {
			if object.Metadata == nil {
				object.Metadata = map[string]string{}
			}
			object.Metadata[strings.ToLower(k[len(metaExtraPrefix):])], _ = url.QueryUnescape(v)
		}
	}

	return object
}

// lookup returns the user metadata value of key, regardless of how the server canonicalized it.
func lookup(metadata map[string]string, key string) string {
	if v, ok := metadata[key]; ok {
		return v
	}
	for k, v := range metadata {
		if strings.EqualFold(k, key) {
			return v
		}
	}
	return ""
}

func isNoSuchKey(err error) bool {
	if err == nil {
		return false
	}
	return minio.ToErrorResponse(err).Code == "NoSuchKey"
}
