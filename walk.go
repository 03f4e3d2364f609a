package ddprofiler

import (
	"context"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/suhailshergill/aurum-datadiscovery/internal/pkg/ddfs"
	"github.com/suhailshergill/aurum-datadiscovery/internal/pkg/ddtask"
)

// Submitter accepts descriptors for execution.
type Submitter interface {
	Submit(d ddtask.Descriptor) error
}

// splitLocation splits a listed file name into its containing location and
// base name.
func splitLocation(fsType ddfs.FileSystemType, name string) (string, string) {
	if fsType == ddfs.Local {
		return filepath.Dir(name), filepath.Base(name)
	}
	i := strings.LastIndex(name, "/")
	return name[:i+1], name[i+1:]
}

func listRoot(fsType ddfs.FileSystemType, root string) string {
	if fsType == ddfs.S3 && !strings.ContainsAny(root, "*?[") && !strings.HasSuffix(root, "/") {
		return root + "/"
	}
	return root
}

// SubmitFiles submits one descriptor for every file under root. Roots with
// an s3:// scheme produce remote file descriptors, anything else local
// ones. Hidden files are skipped. It returns the number of descriptors
// submitted.
func SubmitFiles(ctx context.Context, s Submitter, dataset, root string, sep rune) (int, error) {
	fsType := ddfs.TypeOf(root)
	fs, err := ddfs.InitFilesystem(fsType)
	if err != nil {
		return 0, err
	}
	return submitFiles(ctx, s, fs, fsType, dataset, root, sep)
}

func submitFiles(ctx context.Context, s Submitter, fs ddfs.FileSystem, fsType ddfs.FileSystemType, dataset, root string, sep rune) (int, error) {
	files, err := fs.ListFiles(listRoot(fsType, root))
	if err != nil {
		return 0, err
	}

	submitted := 0
	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return submitted, err
		}

		location, name := splitLocation(fsType, file.Name)
		if strings.HasPrefix(name, ".") {
			log.Debugf("Skipping hidden file %s", file.Name)
			continue
		}

		var d ddtask.Descriptor
		if fsType == ddfs.Local {
			d, err = ddtask.NewLocalFile(dataset, location, name, sep)
		} else {
			d, err = ddtask.NewRemoteFile(dataset, location, name, sep)
		}
		if err != nil {
			return submitted, err
		}
		if err := s.Submit(d); err != nil {
			return submitted, err
		}
		submitted++
	}

	log.Infof("Total files submitted for processing: %d of %d", submitted, len(files))
	return submitted, nil
}
