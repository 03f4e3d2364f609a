package ddfs

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memS3 is an in-memory stand-in for the subset of the S3 API used by S3FileSystem.
type memS3 struct {
	s3iface.S3API
	objects map[string][]byte
	gets    int
}

func newMemS3() *memS3 {
	return &memS3{objects: make(map[string][]byte)}
}

func (m *memS3) PutObject(input *s3.PutObjectInput) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(input.Body)
	if err != nil {
		return nil, err
	}
	m.objects[*input.Bucket+"/"+*input.Key] = data
	return &s3.PutObjectOutput{}, nil
}

func (m *memS3) HeadObject(input *s3.HeadObjectInput) (*s3.HeadObjectOutput, error) {
	data, ok := m.objects[*input.Bucket+"/"+*input.Key]
	if !ok {
		return nil, awserr.New("NotFound", "not found", nil)
	}
	return &s3.HeadObjectOutput{ContentLength: aws.Int64(int64(len(data)))}, nil
}

func (m *memS3) GetObject(input *s3.GetObjectInput) (*s3.GetObjectOutput, error) {
	m.gets++
	data, ok := m.objects[*input.Bucket+"/"+*input.Key]
	if !ok {
		return nil, awserr.New(s3.ErrCodeNoSuchKey, "no such key", nil)
	}
	var start, end int64
	if _, err := fmt.Sscanf(aws.StringValue(input.Range), "bytes=%d-%d", &start, &end); err != nil {
		return nil, err
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data[start : end+1]))}, nil
}

func (m *memS3) DeleteObject(input *s3.DeleteObjectInput) (*s3.DeleteObjectOutput, error) {
	delete(m.objects, *input.Bucket+"/"+*input.Key)
	return &s3.DeleteObjectOutput{}, nil
}

func (m *memS3) ListObjectsV2Pages(input *s3.ListObjectsV2Input, fn func(*s3.ListObjectsV2Output, bool) bool) error {
	keys := make([]string, 0)
	for k := range m.objects {
		if strings.HasPrefix(k, *input.Bucket+"/"+aws.StringValue(input.Prefix)) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	page := &s3.ListObjectsV2Output{}
	for _, k := range keys {
		page.Contents = append(page.Contents, &s3.Object{
			Key:  aws.String(strings.TrimPrefix(k, *input.Bucket+"/")),
			Size: aws.Int64(int64(len(m.objects[k]))),
		})
	}
	fn(page, true)
	return nil
}

func writeObject(t *testing.T, fs FileSystem, path, contents string) {
	t.Helper()
	writer, err := fs.OpenWriter(path)
	require.Nil(t, err)
	_, err = writer.Write([]byte(contents))
	require.Nil(t, err)
	require.Nil(t, writer.Close())
}

func TestS3ImplementsFileSystem(t *testing.T) {
	var fileSystem FileSystem = &S3FileSystem{}
	assert.NotNil(t, fileSystem)
}

func TestParseS3URI(t *testing.T) {
	bucket, key, err := parseS3URI("s3://bucket/some/key.csv")
	assert.Nil(t, err)
	assert.Equal(t, "bucket", bucket)
	assert.Equal(t, "some/key.csv", key)

	_, _, err = parseS3URI("/local/path")
	assert.NotNil(t, err)

	_, _, err = parseS3URI("s3:///key")
	assert.NotNil(t, err)
}

func TestS3Join(t *testing.T) {
	backend := &S3FileSystem{}

	res := backend.Join("s3://foo", "bar", "baz")
	assert.Equal(t, "s3://foo/bar/baz", res)

	res = backend.Join("s3://foo/", "/bar", "baz/")
	assert.Equal(t, "s3://foo/bar/baz/", res)
}

func TestS3MemReaderWriter(t *testing.T) {
	backend := NewS3FileSystem(newMemS3())

	writeObject(t, backend, "s3://bucket/testobj", "foo bar baz")

	reader, err := backend.OpenReader("s3://bucket/testobj", 0)
	require.Nil(t, err)
	contents, err := io.ReadAll(reader)
	assert.Nil(t, err)
	assert.Equal(t, "foo bar baz", string(contents))
	assert.Nil(t, reader.Close())

	reader, err = backend.OpenReader("s3://bucket/testobj", 4)
	require.Nil(t, err)
	contents, err = io.ReadAll(reader)
	assert.Nil(t, err)
	assert.Equal(t, "bar baz", string(contents))
}

func TestS3MemReaderChunks(t *testing.T) {
	mem := newMemS3()
	backend := NewS3FileSystem(mem)
	writeObject(t, backend, "s3://bucket/testobj", "foo bar baz")

	reader := &s3Reader{
		client:    mem,
		bucket:    "bucket",
		key:       "testobj",
		chunkSize: 3,
		totalSize: 11,
	}

	contents, err := io.ReadAll(reader)
	assert.Nil(t, err)
	assert.Equal(t, "foo bar baz", string(contents))
	assert.Equal(t, 4, mem.gets)
}

func TestS3MemListGlobAndDelete(t *testing.T) {
	backend := NewS3FileSystem(newMemS3())

	for i := 0; i < 3; i++ {
		writeObject(t, backend, fmt.Sprintf("s3://bucket/foo/file%d", i), "data")
	}
	writeObject(t, backend, "s3://bucket/bar/other", "data")

	files, err := backend.ListFiles("s3://bucket/foo/*")
	assert.Nil(t, err)
	assert.Len(t, files, 3)
	for _, file := range files {
		assert.True(t, strings.HasPrefix(file.Name, "s3://bucket/foo/file"))
		assert.Equal(t, int64(4), file.Size)
	}

	files, err = backend.ListFiles("s3://bucket/")
	assert.Nil(t, err)
	assert.Len(t, files, 4)

	assert.Nil(t, backend.Delete("s3://bucket/bar/other"))
	_, err = backend.Stat("s3://bucket/bar/other")
	assert.NotNil(t, err)
}

func getS3TestBackend(t *testing.T) (string, *S3FileSystem) {
	t.Helper()

	bucket := os.Getenv("AWS_TEST_BUCKET")
	if bucket == "" {
		t.Skipf("No test bucket is set under $AWS_TEST_BUCKET")
	}
	backend := &S3FileSystem{}
	if err := backend.Init(); err != nil {
		t.Fatalf("Could not initialize S3 filesystem: %s", err)
	}
	return fmt.Sprintf("s3://%s", bucket), backend
}

func cleanup(backend *S3FileSystem, t *testing.T) {
	bucket := os.Getenv("AWS_TEST_BUCKET")
	objects, err := backend.ListFiles("s3://" + bucket + "/")

	assert.Nil(t, err)
	for _, obj := range objects {
		assert.Nil(t, backend.Delete(obj.Name))
	}
}

func TestS3ReaderWriter(t *testing.T) {
	bucket, backend := getS3TestBackend(t)
	defer cleanup(backend, t)

	path := bucket + "/testobj"
	writeObject(t, backend, path, "foo bar baz")

	reader, err := backend.OpenReader(path, 4)
	assert.Nil(t, err)

	contents, err := io.ReadAll(reader)
	assert.Nil(t, err)
	assert.Equal(t, "bar baz", string(contents))
	assert.Nil(t, reader.Close())

	file, err := backend.Stat(path)
	assert.Nil(t, err)
	assert.Equal(t, int64(11), file.Size)
}
