package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"regexp"
	"runtime"
	"syscall"
	"time"

	"github.com/mdouchement/depot/internal/config"
	"github.com/mdouchement/depot/internal/database"
	"github.com/mdouchement/depot/internal/scheduler"
	"github.com/mdouchement/depot/internal/store"
	"github.com/mdouchement/depot/internal/webserver"
	"github.com/mdouchement/logger"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	version  = "dev"
	revision = "none"
	date     = "unknown"

	cfgpath string
	binding string
	port    string
)

func main() {
	c := &cobra.Command{
		Use:     "depot",
		Short:   "Container-scoped binary object store",
		Version: fmt.Sprintf("%s - build %.7s @ %s - %s", version, revision, date, runtime.Version()),
		Args:    cobra.ExactArgs(0),
	}
	c.PersistentFlags().StringVarP(&cfgpath, "config", "c", envORdefault("DEPOT_CONFIG", "depot.toml"), "Configuration file")

	c.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Version for depot",
		Args:  cobra.NoArgs,
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Println(c.Version)
		},
	})
	c.AddCommand(initCmd)
	c.AddCommand(reindexCmd)

	serverCmd.Flags().StringVarP(&binding, "binding", "b", "", "Server's binding")
	serverCmd.Flags().StringVarP(&port, "port", "p", "", "Server's port")
	c.AddCommand(serverCmd)

	if err := c.Execute(); err != nil {
		log.Fatalf("%+v", err)
	}
}

var (
	initCmd = &cobra.Command{
		Use:   "init",
		Short: "Init the local database",
		Args:  cobra.ExactArgs(0),
		RunE: func(_ *cobra.Command, _ []string) error {
			dbpath, err := localDatabase()
			if err != nil {
				return err
			}
			return database.StormInit(dbpath)
		},
	}

	//

	reindexCmd = &cobra.Command{
		Use:   "reindex",
		Short: "Reindex the local database",
		Args:  cobra.ExactArgs(0),
		RunE: func(_ *cobra.Command, _ []string) error {
			dbpath, err := localDatabase()
			if err != nil {
				return err
			}
			return database.StormReIndex(dbpath)
		},
	}

	//

	serverCmd = &cobra.Command{
		Use:   "server",
		Short: "Start server",
		Args:  cobra.ExactArgs(0),
		RunE: func(c *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgpath)
			if err != nil {
				return err
			}
			if binding != "" {
				cfg.Server.Binding = binding
			}
			if port != "" {
				cfg.Server.Port = port
			}

			//

			log := logrus.New()
			log.SetFormatter(&logger.LogrusTextFormatter{
				DisableColors:   false,
				ForceColors:     true,
				ForceFormatting: true,
				PrefixRE:        regexp.MustCompile(`^(\[.*?\])\s`),
				FullTimestamp:   true,
				TimestampFormat: "2006-01-02 15:04:05",
			})
			level, err := logrus.ParseLevel(cfg.Log.Level)
			if err != nil {
				return errors.Wrap(err, "invalid log level")
			}
			log.SetLevel(level)

			ctrl := webserver.Controller{
				Version: c.Parent().Version,
				Logger:  logger.WrapLogrus(log),
				Manager: store.NewManager(cfg.Storage.Target()),
				Debug:   cfg.Server.Debug,
				//
				MaxImageEdge:       cfg.Archive.MaxImageEdge,
				ArchiveConcurrency: cfg.Archive.Concurrency,
			}
			defer ctrl.Manager.Close()

			//

			cron, err := scheduler.Start(scheduler.Controller{
				Logger:        ctrl.Logger,
				Manager:       ctrl.Manager,
				Specification: cfg.Scheduler.Specification,
				Grace:         cfg.Scheduler.Grace.Duration,
			})
			if err != nil {
				return errors.Wrap(err, "could not start scheduler")
			}
			defer cron.Stop()

			//

			engine := webserver.EchoEngine(ctrl)
			webserver.PrintRoutes(engine)

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			listen := fmt.Sprintf("%s:%s", cfg.Server.Binding, cfg.Server.Port)
			log.Printf("Server listening on %s (storage: %s)", listen, cfg.Storage.Scheme)

			errc := make(chan error, 1)
			go func() {
				errc <- engine.Start(listen)
			}()

			select {
			case err = <-errc:
				if err == http.ErrServerClosed {
					return nil
				}
				return errors.Wrap(err, "could not run server")
			case <-ctx.Done():
			}

			log.Info("Shutting down")
			sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			return errors.Wrap(
				engine.Shutdown(sctx),
				"could not stop server",
			)
		},
	}
)

func localDatabase() (string, error) {
	cfg, err := config.Load(cfgpath)
	if err != nil {
		return "", err
	}

	dir, err := store.LocalDir(cfg.Storage.Target())
	if err != nil {
		return "", err
	}
	if err = os.MkdirAll(dir, 0755); err != nil {
		return "", errors.Wrap(err, "could not create local storage directory")
	}

	dbpath, _ := store.LocalPaths(dir)
	return dbpath, nil
}

func envORdefault(name, fallback string) string {
	p := os.Getenv(name)
	if len(p) == 0 {
		return fallback
	}
	return p
}
