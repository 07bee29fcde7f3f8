package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"sync/atomic"
	"syscall"

	"golang.org/x/term"

	"github.com/char5742/evhz/internal/clock"
	"github.com/char5742/evhz/internal/config"
	"github.com/char5742/evhz/internal/dispatch"
	"github.com/char5742/evhz/internal/report"
	"github.com/char5742/evhz/internal/source"
)

func main() {
	// コマンドライン引数の解析
	var nonverbose bool
	flag.BoolVar(&nonverbose, "n", false, "イベントごとの出力を抑制します（終了時のサマリのみ）")
	flag.BoolVar(&nonverbose, "nonverbose", false, "-nと同じ")
	configPath := flag.String("config", "", "設定ファイルのパス (指定しない場合はデフォルトパスを使用)")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [-n|-h]\n", filepath.Base(os.Args[0]))
		flag.PrintDefaults()
	}
	flag.Parse()

	// デフォルト設定ファイルパスの設定
	cfgPath := *configPath
	if cfgPath == "" {
		if configDir, err := config.GetDefaultConfigDir(); err == nil {
			cfgPath = filepath.Join(configDir, "config.toml")
		}
	}

	// 設定ファイルの読み込み
	var cfg *config.Config
	if cfgPath != "" {
		var err error
		cfg, err = config.LoadConfig(cfgPath)
		if err != nil {
			fmt.Printf("設定ファイルの読み込みに失敗しました: %v\nデフォルト設定を使用します\n", err)
			cfg = config.DefaultConfig()
		}
	} else {
		cfg = config.DefaultConfig()
	}

	verbose := cfg.Output.Verbose && !nonverbose

	// 権限不足のデバイスは列挙時にスキップされるため、先に警告しておく
	if runtime.GOOS != "windows" && os.Geteuid() != 0 {
		fmt.Printf("Warning: %s should be run as superuser for full access\n\n", filepath.Base(os.Args[0]))
	}

	var quit atomic.Bool
	handleSignals(&quit)

	clk, err := clock.New()
	if err != nil {
		log.Fatalf("単調クロックを初期化できませんでした: %v", err)
	}

	src, err := source.NewPlatformSource(cfg, clk)
	if err != nil {
		log.Fatalf("イベントソースを初期化できませんでした: %v", err)
	}

	hint := term.IsTerminal(int(os.Stdout.Fd()))
	rep := report.NewConsole(os.Stdout, verbose, hint)

	d := dispatch.New(src, rep, &quit, cfg.Rate.MaxHz)
	if err := d.Run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// handleSignals はSIGINT/SIGTERMで終了フラグを立てる。
// 後始末（サマリ出力とデバイスの解放）はループ側で行うため、ここではフラグを立てるだけ。
func handleSignals(quit *atomic.Bool) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		quit.Store(true)
	}()
}
