package ddfs

import (
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/mattetti/filebuffer"
)

// Default size of ranged GETs issued by s3Reader
const defaultChunkSize = 32 * 1024 * 1024

// S3FileSystem serves objects stored in S3, addressed as s3://bucket/key.
type S3FileSystem struct {
	s3Client s3iface.S3API
}

// NewS3FileSystem wraps an existing S3 client.
func NewS3FileSystem(client s3iface.S3API) *S3FileSystem {
	return &S3FileSystem{s3Client: client}
}

func parseS3URI(uri string) (bucket, key string, err error) {
	parsed, err := url.Parse(uri)
	if err != nil {
		return "", "", err
	}
	if parsed.Scheme != "s3" {
		return "", "", fmt.Errorf("invalid s3 uri %q", uri)
	}
	if parsed.Host == "" {
		return "", "", fmt.Errorf("s3 uri %q has no bucket", uri)
	}
	return parsed.Host, strings.TrimPrefix(parsed.Path, "/"), nil
}

func s3URI(bucket, key string) string {
	return fmt.Sprintf("s3://%s/%s", bucket, key)
}

// ListFiles lists objects under an s3 prefix. Glob characters in the key
// are matched with path.Match against the object keys.
func (s *S3FileSystem) ListFiles(pathGlob string) ([]FileInfo, error) {
	bucket, keyGlob, err := parseS3URI(pathGlob)
	if err != nil {
		return nil, err
	}

	prefix := keyGlob
	globbed := false
	if i := strings.IndexAny(keyGlob, "*?["); i >= 0 {
		prefix = keyGlob[:i]
		globbed = true
	}

	files := make([]FileInfo, 0)
	params := &s3.ListObjectsV2Input{
		Bucket: aws.String(bucket),
		Prefix: aws.String(prefix),
	}

	var matchErr error
	err = s.s3Client.ListObjectsV2Pages(params,
		func(page *s3.ListObjectsV2Output, _ bool) bool {
			for _, object := range page.Contents {
				key := aws.StringValue(object.Key)
				if strings.HasSuffix(key, "/") {
					continue
				}
				if globbed {
					ok, err := path.Match(keyGlob, key)
					if err != nil {
						matchErr = err
						return false
					}
					if !ok {
						continue
					}
				}
				files = append(files, FileInfo{
					Name: s3URI(bucket, key),
					Size: aws.Int64Value(object.Size),
				})
			}
			return true
		})
	if err != nil {
		return nil, err
	}

	return files, matchErr
}

func (s *S3FileSystem) OpenReader(filePath string, startAt int64) (io.ReadCloser, error) {
	bucket, key, err := parseS3URI(filePath)
	if err != nil {
		return nil, err
	}
	info, err := s.Stat(filePath)
	if err != nil {
		return nil, err
	}

	return &s3Reader{
		client:    s.s3Client,
		bucket:    bucket,
		key:       key,
		offset:    startAt,
		chunkSize: defaultChunkSize,
		totalSize: info.Size,
	}, nil
}

func (s *S3FileSystem) OpenWriter(filePath string) (io.WriteCloser, error) {
	bucket, key, err := parseS3URI(filePath)
	if err != nil {
		return nil, err
	}

	return &s3Writer{
		client: s.s3Client,
		bucket: bucket,
		key:    key,
		buf:    filebuffer.New(nil),
	}, nil
}

func (s *S3FileSystem) Stat(filePath string) (FileInfo, error) {
	bucket, key, err := parseS3URI(filePath)
	if err != nil {
		return FileInfo{}, err
	}

	head, err := s.s3Client.HeadObject(&s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return FileInfo{}, err
	}

	return FileInfo{
		Name: filePath,
		Size: aws.Int64Value(head.ContentLength),
	}, nil
}

func (s *S3FileSystem) Delete(filePath string) error {
	bucket, key, err := parseS3URI(filePath)
	if err != nil {
		return err
	}

	_, err = s.s3Client.DeleteObject(&s3.DeleteObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	return err
}

func (s *S3FileSystem) Init() error {
	sess, err := session.NewSessionWithOptions(session.Options{
		SharedConfigState: session.SharedConfigEnable,
	})
	if err != nil {
		return err
	}
	s.s3Client = s3.New(sess)
	return nil
}

// Join joins path elements onto an s3 uri, keeping a trailing slash of
// the last element.
func (s *S3FileSystem) Join(elem ...string) string {
	if len(elem) == 0 {
		return ""
	}

	parts := make([]string, 0, len(elem))
	for i, e := range elem {
		if i == 0 {
			e = strings.TrimPrefix(e, "s3://")
		}
		e = strings.Trim(e, "/")
		if e != "" {
			parts = append(parts, e)
		}
	}

	joined := "s3://" + strings.Join(parts, "/")
	if strings.HasSuffix(elem[len(elem)-1], "/") {
		joined += "/"
	}
	return joined
}
