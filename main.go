package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"ICTSERVE-backend/internal/app"
	"ICTSERVE-backend/internal/platform/config"
	"ICTSERVE-backend/internal/platform/db"
)

// ビルド時に -ldflags "-X main.version=..." で埋める
var version = "dev"

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var cfgPath string
	root := &cobra.Command{
		Use:          "ictserve",
		Short:        "ICT service portal backend (helpdesk + asset loans)",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&cfgPath, "config", "c", config.DefaultPath, "設定ファイル")

	root.AddCommand(serveCmd(&cfgPath), workerCmd(&cfgPath), migrateCmd(&cfgPath), versionCmd())
	return root
}

// setup は設定読み込みと DB 接続をまとめる
func setup(ctx context.Context, cfgPath string) (*config.Config, *sql.DB, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, nil, err
	}
	log.Printf("[INFO] mode:%s", cfg.Mode)

	conn, err := db.Connect(ctx, cfg.DB)
	if err != nil {
		return nil, nil, err
	}
	log.Printf("[INFO] connected to DB: %s", cfg.DB.DBName)
	return cfg, conn, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func serveCmd(cfgPath *string) *cobra.Command {
	var noWorker, noScheduler bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "HTTP API を起動（ワーカーとスケジューラも同じプロセスで回す）",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signalContext()
			defer stop()

			cfg, conn, err := setup(ctx, *cfgPath)
			if err != nil {
				return err
			}
			defer conn.Close()

			a, err := app.New(cfg, conn)
			if err != nil {
				return err
			}

			var wg sync.WaitGroup
			if !noWorker {
				w := a.Worker()
				wg.Add(1)
				go func() {
					defer wg.Done()
					w.Run(ctx)
				}()
			}
			if cfg.Scheduler.Enabled && !noScheduler {
				s, err := a.Scheduler()
				if err != nil {
					return err
				}
				wg.Add(1)
				go func() {
					defer wg.Done()
					s.Start(ctx)
				}()
			}

			err = a.Serve(ctx)
			stop()
			wg.Wait()
			return err
		},
	}
	cmd.Flags().BoolVar(&noWorker, "no-worker", false, "キューワーカーを起動しない")
	cmd.Flags().BoolVar(&noScheduler, "no-scheduler", false, "スケジューラを起動しない")
	return cmd
}

func workerCmd(cfgPath *string) *cobra.Command {
	var withScheduler bool
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "キューワーカーのみ起動",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signalContext()
			defer stop()

			cfg, conn, err := setup(ctx, *cfgPath)
			if err != nil {
				return err
			}
			defer conn.Close()

			a, err := app.New(cfg, conn)
			if err != nil {
				return err
			}

			var wg sync.WaitGroup
			if withScheduler && cfg.Scheduler.Enabled {
				s, err := a.Scheduler()
				if err != nil {
					return err
				}
				wg.Add(1)
				go func() {
					defer wg.Done()
					s.Start(ctx)
				}()
			}
			a.Worker().Run(ctx)
			wg.Wait()
			return nil
		},
	}
	cmd.Flags().BoolVar(&withScheduler, "with-scheduler", false, "スケジューラも同じプロセスで回す")
	return cmd
}

func migrateCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "埋め込みスキーマを適用",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signalContext()
			defer stop()

			_, conn, err := setup(ctx, *cfgPath)
			if err != nil {
				return err
			}
			defer conn.Close()

			applied, err := db.Migrate(ctx, conn)
			if err != nil {
				return err
			}
			if len(applied) == 0 {
				log.Println("[INFO] schema is up to date")
				return nil
			}
			for _, v := range applied {
				log.Printf("[INFO] applied migration %s", v)
			}
			return nil
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "バージョン表示",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	}
}
