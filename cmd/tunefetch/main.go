package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"tunefetch/pkg/app"
	"tunefetch/pkg/config"
	"tunefetch/pkg/logger"
)

var (
	configPath = flag.String("config", "", "配置文件路径（默认查找 ./config/tunefetch.yaml）")
	family     = flag.String("family", config.FamilySpotify, "提供商族")
	limit      = flag.Int("limit", 0, "返回条数，0 表示使用默认值")
	timeout    = flag.Duration("timeout", 60*time.Second, "整体超时")
	logLevel   = flag.String("log-level", "", "日志级别，覆盖配置文件")
	logFormat  = flag.String("log-format", "", "日志格式 (json 或 text)，覆盖配置文件")
)

const usage = `用法: tunefetch [flags] <command> <args>

命令:
  search-artists <query>
  search-albums <query>
  search-tracks <query>
  label-releases <label>
  similar <artist-id>
  preview-tracks <artist-id>
  followers <id,id,...>
  tracks <id,id,...>
  albums <id,id,...>
  providers

flags:
`

func main() {
	flag.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if *logLevel != "" {
		cfg.SetLogLevel(*logLevel)
	}
	if *logFormat != "" {
		cfg.Logger.Format = *logFormat
	}
	// CLI 的标准输出留给 JSON 结果
	logger.Init(logger.Config{Level: cfg.Logger.Level, Format: cfg.Logger.Format})
	logger.SetOutput(os.Stderr)
	log := logger.WithComponent("cli")

	a, err := app.New(cfg)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize")
	}
	defer a.Close()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	result, err := run(ctx, a, flag.Arg(0), strings.Join(flag.Args()[1:], " "))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		flag.Usage()
		os.Exit(2)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		log.WithError(err).Fatal("Failed to encode result")
	}
}

func run(ctx context.Context, a *app.App, command, arg string) (any, error) {
	if command == "providers" {
		reporter, err := a.Reporter()
		if err != nil {
			return nil, err
		}
		return reporter.RunOnce(ctx), nil
	}

	if strings.TrimSpace(arg) == "" {
		return nil, fmt.Errorf("command %q requires an argument", command)
	}
	svc := a.Service(*family)

	switch command {
	case "search-artists":
		return svc.SearchArtists(ctx, arg, *limit), nil
	case "search-albums":
		return svc.SearchAlbums(ctx, arg, *limit), nil
	case "search-tracks":
		return svc.SearchTracks(ctx, arg, *limit), nil
	case "label-releases":
		return svc.SearchLabelReleases(ctx, arg, *limit), nil
	case "similar":
		return svc.GetSimilarArtists(ctx, arg, *limit), nil
	case "preview-tracks":
		return svc.GetArtistPreviewTracks(ctx, arg, *limit), nil
	case "followers":
		return svc.GetBatchArtistFollowers(ctx, splitIDs(arg)), nil
	case "tracks":
		return svc.GetBatchTracks(ctx, splitIDs(arg)), nil
	case "albums":
		return svc.GetBatchAlbums(ctx, splitIDs(arg)), nil
	}
	return nil, fmt.Errorf("unknown command %q", command)
}

func splitIDs(arg string) []string {
	return strings.FieldsFunc(arg, func(r rune) bool {
		return r == ',' || r == ' '
	})
}
