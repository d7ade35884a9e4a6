package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nzbcore/gonzbd/internal/api"
	"github.com/nzbcore/gonzbd/internal/app"
	"github.com/nzbcore/gonzbd/internal/infra/config"
	"github.com/nzbcore/gonzbd/internal/infra/logger"
)

const version = "1.0.0"

var configPath string

var rootCmd = &cobra.Command{
	Use:   "gonzbd",
	Short: "gonzbd is a headless Usenet download engine",
	Long:  "A concurrent, binary-RPC-controlled NNTP download engine written in Go.",
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the download engine",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("gonzbd " + version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "Path to config.yaml")
	rootCmd.AddCommand(serveCmd, versionCmd)
}

func runServe() error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}

	log, err := logger.New(cfg.Log.Path, logger.ParseLevel(cfg.Log.Level), cfg.Log.IncludeStdout)
	if err != nil {
		return fmt.Errorf("logger error: %w", err)
	}

	appCtx, err := app.NewContext(cfg, log)
	if err != nil {
		return fmt.Errorf("wiring error: %w", err)
	}
	defer appCtx.Close()

	srv := api.NewServer(appCtx)
	go func() {
		if err := srv.ListenAndServe(cfg.Port); err != nil {
			log.Error("api server stopped: %v", err)
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info("signal received, shutting down")
		cancel()
	}()

	appCtx.Run(ctx)
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
