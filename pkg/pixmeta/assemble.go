package pixmeta

import (
	"fmt"
	"sync"

	"k8s.io/klog/v2"
)

// ScanResult summarizes one pass over the corpus.
type ScanResult struct {
	Found     int
	Processed int
	Skipped   int
	Formats   map[string]int
}

// resolved pairs one image with its extracted fields.
type resolved struct {
	img    *SourceImage
	fields *FieldMap
	format string
}

// Scan walks the corpus, extracts canonical fields from every image, and
// records them into the store. Extraction runs on parallel workers (each
// image is independent and extractors share no mutable state); a single
// accumulation loop feeds the store, which is the only shared state.
func Scan(c *Config, reg *Registry, store *Store) (*ScanResult, error) {
	images, err := FindImages(c.InDir)
	if err != nil {
		return nil, fmt.Errorf("find: %w", err)
	}
	klog.Infof("scanning %d images in %s", len(images), c.InDir)

	jobs := make(chan *SourceImage)
	results := make(chan resolved)

	var wg sync.WaitGroup
	for i := 0; i < c.WorkerCount(); i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for img := range jobs {
				fm, format := reg.Resolve(img.Blob)
				results <- resolved{img: img, fields: fm, format: format}
			}
		}()
	}

	go func() {
		for _, img := range images {
			jobs <- img
		}
		close(jobs)
		wg.Wait()
		close(results)
	}()

	res := &ScanResult{Found: len(images), Formats: map[string]int{}}
	for r := range results {
		fp := Fingerprint(r.img.Path, r.img.Size, r.img.ModTime, r.fields)
		if store.RecordImage(fp, r.fields) {
			res.Processed++
			res.Formats[r.format]++
		} else {
			res.Skipped++
		}
		if r.fields.LowConfidence {
			klog.V(1).Infof("%s: prompt roles guessed positionally", r.img.Path)
		}
	}

	if err := store.Persist(c.StatsFile); err != nil {
		// The in-memory store stays valid; the caller decides whether a
		// failed flush is fatal.
		return res, fmt.Errorf("persist: %w", err)
	}

	klog.Infof("scan done: %d new, %d already counted", res.Processed, res.Skipped)
	return res, nil
}
