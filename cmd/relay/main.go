package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"tg_relay/internal/app"
	"tg_relay/internal/config"
	"tg_relay/internal/logger"
	"tg_relay/internal/relay/models"
)

const usage = `Usage: relay <command> [flags]

Commands:
  run            启动中继服务（历史回填 + 实时转发）
  add-route      添加路由: add-route -source <ref> -dest <ref>
  remove-route   删除路由: remove-route -source <ref>
  routes         列出所有路由
  filters        查看或更新过滤配置
  stats          显示运行统计
`

func main() {
	logger.Init()

	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		logger.L().Fatalf("Failed to load config: %v", err)
	}

	var cmdErr error
	switch os.Args[1] {
	case "run":
		cmdErr = runRelay(cfg)
	case "add-route":
		cmdErr = runAddRoute(cfg, os.Args[2:])
	case "remove-route":
		cmdErr = runRemoveRoute(cfg, os.Args[2:])
	case "routes":
		cmdErr = runListRoutes(cfg)
	case "filters":
		cmdErr = runFilters(cfg, os.Args[2:])
	case "stats":
		cmdErr = runStats(cfg)
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	if cmdErr != nil {
		logger.L().Fatalf("%v", cmdErr)
	}
}

// runRelay 运行中继服务直到收到停止信号
func runRelay(cfg *config.Config) error {
	a, err := app.NewWithPlatform(cfg)
	if err != nil {
		return err
	}
	defer closeApp(a)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 监听停止信号
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.L().Infof("Received signal %v, stopping...", sig)
		a.Engine.Stop()
		cancel()
	}()

	return a.Engine.Start(ctx)
}

func runAddRoute(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("add-route", flag.ExitOnError)
	source := fs.String("source", "", "source entity (id, username, or 'me')")
	dest := fs.String("dest", "", "destination entity (id, username, or 'me')")
	_ = fs.Parse(args)

	a, err := app.New(cfg)
	if err != nil {
		return err
	}
	defer closeApp(a)

	ctx, cancel := adminContext()
	defer cancel()

	route, err := a.RouteService.AddRoute(ctx, *source, *dest)
	if err != nil {
		return err
	}

	fmt.Printf("Route added: %s → %s\n", route.Source, route.Destination)
	return nil
}

func runRemoveRoute(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("remove-route", flag.ExitOnError)
	source := fs.String("source", "", "source entity to remove")
	_ = fs.Parse(args)

	a, err := app.New(cfg)
	if err != nil {
		return err
	}
	defer closeApp(a)

	ctx, cancel := adminContext()
	defer cancel()

	if err := a.RouteService.RemoveRoute(ctx, *source); err != nil {
		return err
	}

	fmt.Printf("Route removed: %s\n", *source)
	return nil
}

func runListRoutes(cfg *config.Config) error {
	a, err := app.New(cfg)
	if err != nil {
		return err
	}
	defer closeApp(a)

	ctx, cancel := adminContext()
	defer cancel()

	routes, err := a.RouteService.ListRoutes(ctx)
	if err != nil {
		return err
	}

	if len(routes) == 0 {
		fmt.Println("No routes configured")
		return nil
	}

	for _, route := range routes {
		fmt.Printf("%s → %s\n", route.Source, route.Destination)
	}
	return nil
}

func runFilters(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("filters", flag.ExitOnError)
	mediaOnly := boolFlag(fs, "media-only", "relay only messages with media")
	photos := boolFlag(fs, "photos", "relay photos")
	videos := boolFlag(fs, "videos", "relay videos")
	documents := boolFlag(fs, "documents", "relay documents")
	text := boolFlag(fs, "text", "relay text messages")
	_ = fs.Parse(args)

	a, err := app.New(cfg)
	if err != nil {
		return err
	}
	defer closeApp(a)

	ctx, cancel := adminContext()
	defer cancel()

	update := models.FilterUpdate{
		MediaOnly:    mediaOnly.value(),
		Photos:       photos.value(),
		Videos:       videos.value(),
		Documents:    documents.value(),
		TextMessages: text.value(),
	}

	filters, err := a.RouteService.UpdateFilters(ctx, update)
	if err != nil {
		return err
	}

	fmt.Printf("media_only:    %v\n", filters.MediaOnly)
	fmt.Printf("photos:        %v\n", filters.Photos)
	fmt.Printf("videos:        %v\n", filters.Videos)
	fmt.Printf("documents:     %v\n", filters.Documents)
	fmt.Printf("text_messages: %v\n", filters.TextMessages)
	return nil
}

func runStats(cfg *config.Config) error {
	a, err := app.New(cfg)
	if err != nil {
		return err
	}
	defer closeApp(a)

	ctx, cancel := adminContext()
	defer cancel()

	routes, err := a.Routes.List(ctx)
	if err != nil {
		return err
	}
	lastID, err := a.Cursors.MaxMessageID(ctx)
	if err != nil {
		return err
	}
	tracked, err := a.Cursors.Count(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("total_routes:    %d\n", len(routes))
	fmt.Printf("tracked_sources: %d\n", tracked)
	fmt.Printf("last_message_id: %d\n", lastID)
	return nil
}

// adminContext 管理命令的统一超时
func adminContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 15*time.Second)
}

func closeApp(a *app.App) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.Close(ctx); err != nil {
		logger.L().Errorf("Failed to close app: %v", err)
	}
}

// optionalBool 区分「未提供」与「显式 false」的布尔 flag
type optionalBool struct {
	set bool
	val bool
}

func (b *optionalBool) String() string {
	if !b.set {
		return ""
	}
	return fmt.Sprintf("%v", b.val)
}

func (b *optionalBool) Set(s string) error {
	if s == "" {
		b.set = true
		b.val = true
		return nil
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		return err
	}
	b.set = true
	b.val = v
	return nil
}

func (b *optionalBool) IsBoolFlag() bool { return true }

func (b *optionalBool) value() *bool {
	if !b.set {
		return nil
	}
	return &b.val
}

func boolFlag(fs *flag.FlagSet, name, usage string) *optionalBool {
	b := &optionalBool{}
	fs.Var(b, name, usage)
	return b
}
