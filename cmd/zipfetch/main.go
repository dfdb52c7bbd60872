package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/zipfetch/zipfetch/internal/config"
	"github.com/zipfetch/zipfetch/internal/fetcher"
	"github.com/zipfetch/zipfetch/internal/journal"
	"github.com/zipfetch/zipfetch/internal/logger"
	"github.com/zipfetch/zipfetch/internal/progress"
)

func main() {
	var (
		urlFlag     = flag.String("url", "", "URL to download")
		outFlag     = flag.String("out", "", "destination file, or directory when ending in '/'")
		unzipFlag   = flag.String("unzip", "", "extract an existing archive instead of downloading")
		extractFlag = flag.Bool("x", false, "extract the downloaded archive in place")
		pruneFlag   = flag.Bool("prune", false, "remove finished operations from the journal")
		debugFlag   = flag.Bool("debug", false, "enable debug logging")
	)
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}
	if *debugFlag {
		cfg.Debug = true
	}

	if err := logger.InitLogging(cfg.Debug, cfg.LogFile); err != nil {
		fmt.Printf("Warning: failed to initialize logging: %v\n", err)
	}
	defer logger.Close()

	repo, err := journal.NewRepository(cfg.JournalPath)
	if err != nil {
		fmt.Printf("Warning: journal unavailable: %v\n", err)
		repo = nil
	} else {
		defer repo.Close()
	}

	f := fetcher.New(cfg, repo)
	defer f.Close()

	// A second goroutine owns cancellation: an interrupt requests an
	// abort and the blocked operation winds down at its next checkpoint.
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Println("\nAborting...")
		f.Tracker().RequestAbortDownload()
		f.Tracker().RequestAbortUnzip()
	}()

	switch {
	case *pruneFlag:
		if repo == nil {
			fmt.Println("Error: journal unavailable")
			os.Exit(1)
		}
		pruned, err := repo.Prune()
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Pruned %d journal records.\n", pruned)

	case *unzipFlag != "":
		if *outFlag == "" {
			fmt.Println("Error: -unzip requires -out")
			os.Exit(2)
		}
		if err := f.Unpack(*unzipFlag, *outFlag); err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Extracted.")

	case *urlFlag != "":
		dest := *outFlag
		if dest == "" {
			dest = cfg.DownloadDir + "/"
		}

		stop := pollProgress(f.Tracker())
		var err error
		if *extractFlag {
			err = f.FetchAndUnpack(context.Background(), *urlFlag, dest)
		} else {
			err = f.Fetch(context.Background(), *urlFlag, dest)
		}
		stop()

		if err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Done.")

	default:
		flag.Usage()
		os.Exit(2)
	}
}

// pollProgress prints the tracker percentage from its own goroutine
// until the returned stop function is called.
func pollProgress(t *progress.Tracker) func() {
	done := make(chan struct{})
	finished := make(chan struct{})

	go func() {
		defer close(finished)
		ticker := time.NewTicker(200 * time.Millisecond)
		defer ticker.Stop()

		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if p := t.Percentage(); p >= 0 {
					fmt.Printf("\rDownloading... %3d%%", p)
				}
			}
		}
	}()

	return func() {
		close(done)
		<-finished
		fmt.Println()
	}
}
