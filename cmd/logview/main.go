package main

import (
	"flag"
	"fmt"
	"os"
	"runtime"
	"strings"

	"github.com/oarkflow/json"
	"github.com/oarkflow/log"

	"github.com/oarkflow/logview"
	"github.com/oarkflow/logview/watcher"
	"github.com/oarkflow/logview/web"
)

var (
	hostPtr    = flag.String("host", "0.0.0.0", "Domain name or IP")
	portPtr    = flag.String("port", "3000", "Port available to be used on server")
	configPtr  = flag.String("config", "", "JSON config file")
	filesPtr   = flag.String("files", "", "Comma-separated log files to open and index on startup")
	watchPtr   = flag.Bool("watch", false, "Watch opened files and re-index on change")
	storagePtr = flag.String("storage", "", "File source backend: os or mmap")
)

func loadConfig(path string) (*logview.Config, error) {
	cfg := &logview.Config{}
	if path == "" {
		return cfg, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(raw, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func main() {
	flag.Parse()
	cfg, err := loadConfig(*configPtr)
	if err != nil {
		log.Error().Err(err).Str("config", *configPtr).Msg("unable to load config")
		os.Exit(1)
	}
	if *storagePtr != "" {
		cfg.Storage = *storagePtr
	}
	session, err := logview.NewSession(cfg)
	if err != nil {
		log.Error().Err(err).Msg("unable to create session")
		os.Exit(1)
	}
	defer session.CloseAll()

	if *filesPtr != "" {
		paths := strings.Split(*filesPtr, ",")
		opened, errs := session.IndexAllWithPool(paths, runtime.NumCPU())
		for _, err := range errs {
			log.Error().Err(err).Msg("startup indexing failed")
		}
		log.Info().Int("files", len(opened)).Msg("startup indexing finished")
		if *watchPtr {
			for _, f := range opened {
				go watchFile(f)
			}
		}
	}

	addr := fmt.Sprintf("%s:%s", *hostPtr, *portPtr)
	web.StartServer(addr, session)
}

// watchFile reacts to change notifications: a probe decides between a
// partial pass for appended data and a full re-index after truncation.
func watchFile(f *logview.OpenFile) {
	w, err := watcher.New(f.Path)
	if err != nil {
		log.Error().Err(err).Str("path", f.Path).Msg("unable to watch file")
		return
	}
	defer w.Close()
	for range w.Notifications() {
		f.Worker.WaitIdle()
		if err := f.Worker.CheckFileChanges(); err != nil {
			continue
		}
		f.Worker.WaitIdle()
		status, ok := f.Worker.LastFileStatus()
		if !ok {
			continue
		}
		switch status {
		case logview.FileDataAdded:
			if err := f.Worker.IndexAdditionalLines(); err == nil {
				f.Worker.WaitIdle()
			}
		case logview.FileTruncated:
			log.Warn().Str("path", f.Path).Msg("file truncated, re-indexing")
			if err := f.Worker.IndexAll(); err == nil {
				f.Worker.WaitIdle()
			}
		}
	}
}
