package pixmeta

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	exiftool "github.com/barasher/go-exiftool"
	"github.com/karrick/godirwalk"
	"k8s.io/klog/v2"
)

// SourceImage is one corpus file plus its decoded metadata blob. The blob is
// what the core consumes; everything else is file identity for the
// fingerprint.
type SourceImage struct {
	Path    string
	Size    int64
	ModTime time.Time
	Blob    *RawMetadataBlob
}

// blobKeys are the container fields worth pulling out of exiftool output;
// generation tools hide their payloads in these.
var blobKeys = []string{
	"Parameters", "parameters", "Comment", "comment", "UserComment",
	"Description", "ImageDescription", "Software", "Title", "Prompt",
	"Workflow", "Artist", "Copyright",
}

var imageExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".webp": true,
}

// readBlob pulls the candidate metadata fields for one image.
func readBlob(path string, et *exiftool.Exiftool) (*RawMetadataBlob, error) {
	fis := et.ExtractMetadata(path)
	fi := fis[0]
	if fi.Err != nil {
		return nil, fmt.Errorf("extract fail for %q: %w", path, fi.Err)
	}

	blob := &RawMetadataBlob{Fields: map[string]string{}, Hint: HintExifField}
	for _, key := range blobKeys {
		v, err := fi.GetString(key)
		if err != nil {
			continue
		}
		if v != "" {
			blob.Fields[key] = v
		}
	}

	blob.Hint = classifyHint(blob)
	return blob, nil
}

// classifyHint guesses which container family the payload came from. The
// hint is advisory; the dispatcher still runs full detection.
func classifyHint(b *RawMetadataBlob) Hint {
	if w := b.Field("Workflow", "Prompt"); strings.HasPrefix(strings.TrimSpace(w), "{") {
		return HintWorkflow
	}
	if c := strings.TrimSpace(b.Field("Comment", "comment")); c != "" && !strings.ContainsAny(c, " \n") {
		return HintBase64JSON
	}
	if b.Field("Parameters", "parameters") != "" {
		return HintTextChunk
	}
	return HintExifField
}

// FindImages walks root and returns every image with its metadata blob.
// Unreadable files are logged and skipped; they never abort the walk.
func FindImages(root string) ([]*SourceImage, error) {
	found := []*SourceImage{}

	et, err := exiftool.NewExiftool()
	if err != nil {
		return nil, fmt.Errorf("exiftool: %w", err)
	}
	defer et.Close()

	err = godirwalk.Walk(root, &godirwalk.Options{
		Callback: func(path string, de *godirwalk.Dirent) error {
			if filepath.Base(path)[0] == '.' {
				return godirwalk.SkipThis
			}
			if de.IsDir() || !imageExtensions[strings.ToLower(filepath.Ext(path))] {
				return nil
			}

			blob, err := readBlob(path, et)
			if err != nil {
				klog.Warningf("read failure: %v", err)
				return nil
			}

			fi, err := os.Stat(path)
			if err != nil {
				klog.Warningf("stat failure: %v", err)
				return nil
			}

			klog.V(1).Infof("found %s (%d metadata fields)", path, len(blob.Fields))
			found = append(found, &SourceImage{
				Path:    path,
				Size:    fi.Size(),
				ModTime: fi.ModTime(),
				Blob:    blob,
			})
			return nil
		},
	})

	return found, err
}
