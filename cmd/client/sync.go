package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/openmined/modsync/internal/client/config"
	"github.com/openmined/modsync/internal/engine"
	"github.com/openmined/modsync/internal/modsdk"
	"github.com/openmined/modsync/internal/ui"
	"github.com/openmined/modsync/internal/version"
)

const updateCheckTimeout = 10 * time.Second

type syncOpts struct {
	TUI  bool
	Auto bool
}

func runSync(ctx context.Context, cfg *config.Config, opts *syncOpts) error {
	client, err := modsdk.New(&modsdk.Config{BaseURL: cfg.ServerURL})
	if err != nil {
		return err
	}

	session := engine.NewSession()
	go func() {
		select {
		case <-ctx.Done():
			session.Stop()
		case <-session.Done():
		}
	}()

	engineOpts := &engine.Opts{
		Remote:         client,
		VersionRoot:    cfg.VersionDir,
		Session:        session,
		PreserveConfig: cfg.PreserveConfig,
		Workers:        cfg.Workers,
		MaxRetries:     cfg.MaxRetries,
		RetryDelay:     cfg.RetryDelay,
		RecheckRatio:   cfg.RecheckRatio,
		ArchiveRatio:   cfg.ArchiveRatio,
	}

	if opts.TUI {
		return runSyncTUI(ctx, cfg, client, engineOpts, opts.Auto)
	}

	showHeader(cfg)
	notifyUpdate(ctx, client)

	engineOpts.Events = headlessEvents()
	eng, err := engine.New(engineOpts)
	if err != nil {
		return err
	}

	summary, err := eng.Run(ctx)
	if err != nil {
		fmt.Printf("%s: %s\n", red("ERROR"), err)
		return err
	}
	return reportSummary(summary)
}

func runSyncTUI(ctx context.Context, cfg *config.Config, client *modsdk.Client, engineOpts *engine.Opts, auto bool) error {
	// keep stdout free for the alt screen
	slog.SetDefault(slog.New(fileLogHandler))

	events := make(chan engine.Event, 64)
	engineOpts.Events = engine.ChanEvents(events)
	eng, err := engine.New(engineOpts)
	if err != nil {
		return err
	}

	summary, err := ui.RunSyncTUI(ui.SyncTUIOpts{
		ServerURL:      cfg.ServerURL,
		VersionDir:     cfg.VersionDir,
		PreserveConfig: cfg.PreserveConfig,
		AutoQuit:       auto,
		Session:        eng.Session(),
		Events:         events,
		Run: func() (*engine.Summary, error) {
			notifyUpdateEvents(ctx, client, engineOpts.Events)
			return eng.Run(ctx)
		},
	})
	if err != nil {
		return err
	}
	return reportSummary(summary)
}

func headlessEvents() engine.Events {
	return engine.EventFuncs{
		OnLog: func(text string) {
			slog.Info(text)
		},
		OnTotalTasks: func(count int) {
			slog.Info("download queue ready", "tasks", count)
		},
		OnOverallProgress: func(completed int) {
			slog.Debug("download progress", "completed", completed)
		},
	}
}

func reportSummary(s *engine.Summary) error {
	if s == nil {
		return nil
	}

	fmt.Printf("\n%s downloaded %d, deleted %d, archived %v\n", green("DONE"), s.Downloaded, s.Deleted, s.Archived)
	if len(s.SkippedFolders) > 0 {
		fmt.Printf("%s skipped folders %v\n", yellow("WARN"), s.SkippedFolders)
	}
	if s.Failed > 0 {
		fmt.Printf("%s %d files could not be downloaded\n", red("ERROR"), s.Failed)
		return fmt.Errorf("%d files failed to download", s.Failed)
	}
	return nil
}

// checkUpdate asks the server for the latest release. A failed check is never fatal.
func checkUpdate(ctx context.Context, client *modsdk.Client) (*modsdk.UpdateInfo, bool) {
	ctx, cancel := context.WithTimeout(ctx, updateCheckTimeout)
	defer cancel()

	info, err := client.GetLatestVersion(ctx)
	if err != nil {
		slog.Warn("update check failed", "error", err)
		return nil, false
	}
	return info, info.NewerThan(version.Version)
}

func notifyUpdate(ctx context.Context, client *modsdk.Client) {
	if info, newer := checkUpdate(ctx, client); newer {
		fmt.Printf("%s new version %s available (current %s)\n", yellow("UPDATE"), cyan(info.Version), version.Version)
		if info.Note != "" {
			fmt.Println(info.Note)
		}
		fmt.Printf("Download: %s\n\n", cyan(info.URL))
	}
}

func notifyUpdateEvents(ctx context.Context, client *modsdk.Client, events engine.Events) {
	if info, newer := checkUpdate(ctx, client); newer {
		events.Log(fmt.Sprintf("🔔 new version %s available (current %s): %s", info.Version, version.Version, info.URL))
	}
}
