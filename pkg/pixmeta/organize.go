package pixmeta

import (
	"fmt"
	"path/filepath"
	"strings"

	cp "github.com/otiai10/copy"
	"k8s.io/klog/v2"
)

// Organize copies every corpus image into outDir/<model name>/, grouping a
// mixed dump of generations by the checkpoint that produced them. Images
// with no extractable model land under "Unknown Model". Returns the number
// of images copied.
func Organize(c *Config, reg *Registry, outDir string) (int, error) {
	images, err := FindImages(c.InDir)
	if err != nil {
		return 0, fmt.Errorf("find: %w", err)
	}

	copied := 0
	for _, img := range images {
		fm, _ := reg.Resolve(img.Blob)

		model := NormalizeModelName(fm.ModelName)
		dst := filepath.Join(outDir, dirSafe(model), filepath.Base(img.Path))

		if err := cp.Copy(img.Path, dst); err != nil {
			klog.Warningf("copy %s: %v", img.Path, err)
			continue
		}
		copied++
	}

	klog.Infof("organized %d/%d images into %s", copied, len(images), outDir)
	return copied, nil
}

// dirSafe flattens a model name into a usable directory name.
func dirSafe(name string) string {
	name = strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '-'
		}
		return r
	}, name)
	return strings.TrimSpace(name)
}
