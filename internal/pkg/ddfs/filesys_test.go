package ddfs

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInitFilesystem(t *testing.T) {
	fs, err := InitFilesystem(Local)
	assert.Nil(t, err)
	assert.NotNil(t, fs)
	assert.IsType(t, &LocalFileSystem{}, fs)
}

func TestTypeOf(t *testing.T) {
	assert.Equal(t, S3, TypeOf("s3://foo/bar.csv"))
	assert.Equal(t, Local, TypeOf("./bar.csv"))
	assert.Equal(t, Local, TypeOf("/data/sources"))
}

func TestInferFilesystem(t *testing.T) {
	fs, err := InferFilesystem("./bar.txt")
	assert.Nil(t, err)
	assert.IsType(t, &LocalFileSystem{}, fs)
}

func TestFileSystemTypeString(t *testing.T) {
	assert.Equal(t, "local", Local.String())
	assert.Equal(t, "s3", S3.String())
}
