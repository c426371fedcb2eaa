package main

import (
	"flag"
	"net/http"
	"os"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/karrick/godirwalk"
	"k8s.io/klog/v2"

	"github.com/pixmeta/pixmeta/pkg/manage"
	"github.com/pixmeta/pixmeta/pkg/pixmeta"
)

var (
	inDir      = flag.String("in", "", "Location of image corpus to scan")
	configPath = flag.String("config", "", "Optional YAML config file")
	statsFile  = flag.String("stats", "", "Statistics file (overrides config)")
	organizeTo = flag.String("organize-to", "", "Copy images into per-model folders under this directory")
	exportCSV  = flag.String("export-csv", "", "Write a CSV summary of the statistics to this file")
	listen     = flag.Bool("listen", false, "serve statistics via HTTP")
	addr       = flag.String("addr", "localhost:12810", "host:port to bind to in listen mode")
	watchFlag  = flag.Bool("watch", false, "watch for corpus changes and rescan")
)

func main() {
	klog.InitFlags(nil)
	flag.Parse()

	if *inDir == "" {
		klog.Exitf("--in is a required flag")
	}

	c, err := loadConfig()
	if err != nil {
		klog.Exitf("config failed: %v", err)
	}
	c.InDir = *inDir
	if *statsFile != "" {
		c.StatsFile = *statsFile
	}

	store := pixmeta.NewStore()
	if err := store.Load(c.StatsFile); err != nil {
		klog.Exitf("load statistics failed: %v", err)
	}
	store.SetModelAliases(c.ModelAliases)

	reg := pixmeta.NewRegistry()

	if _, err := pixmeta.Scan(c, reg, store); err != nil {
		klog.Exitf("scan failed: %v", err)
	}

	if *organizeTo != "" {
		if _, err := pixmeta.Organize(c, reg, *organizeTo); err != nil {
			klog.Exitf("organize failed: %v", err)
		}
	}

	if *exportCSV != "" {
		if err := writeCSV(store, *exportCSV); err != nil {
			klog.Exitf("csv export failed: %v", err)
		}
	}

	var wg sync.WaitGroup
	if *watchFlag {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := watch(c, reg, store); err != nil {
				klog.Errorf("watch failed: %v", err)
			}
		}()
	}

	if *listen {
		wg.Add(1)
		go func() {
			defer wg.Done()
			serve(store, *addr)
		}()
	}

	wg.Wait()
}

func loadConfig() (*pixmeta.Config, error) {
	if *configPath != "" {
		return pixmeta.LoadOrCreateConfig(*configPath)
	}
	return pixmeta.DefaultConfig(), nil
}

func writeCSV(store *pixmeta.Store, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return store.ExportCSV(f)
}

// serve exposes the statistics snapshot via HTTP.
func serve(store *pixmeta.Store, addr string) {
	klog.Infof("Listening on %s...", addr)
	if err := http.ListenAndServe(addr, manage.New(store).Handler()); err != nil {
		klog.Exitf("listen failed: %v", err)
	}
}

// watch rescans the corpus whenever files change. Fingerprint dedup keeps
// repeat scans cheap: already-counted images are skipped.
func watch(c *pixmeta.Config, reg *pixmeta.Registry, store *pixmeta.Store) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	go func() {
		for {
			select {
			case event, ok := <-w.Events:
				if !ok {
					return
				}
				if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
					klog.Infof("change detected: %s", event.Name)
					if _, err := pixmeta.Scan(c, reg, store); err != nil {
						klog.Errorf("rescan failed: %v", err)
					}
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				klog.Errorf("watch error: %v", err)
			}
		}
	}()

	dirs := []string{c.InDir}
	err = godirwalk.Walk(c.InDir, &godirwalk.Options{
		Callback: func(path string, de *godirwalk.Dirent) error {
			if de.IsDir() {
				dirs = append(dirs, path)
			}
			return nil
		},
	})
	if err != nil {
		return err
	}

	klog.Infof("watching %d dirs ...", len(dirs))
	for _, d := range dirs {
		if err := w.Add(d); err != nil {
			return err
		}
	}

	<-make(chan struct{})
	return nil
}
