package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/bengal-ssg/bengal/internal/build"
	"github.com/bengal-ssg/bengal/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the development server",
	Long:  "Serve the site locally, rebuilding and reloading the browser when sources change.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		profile, _ := cmd.Flags().GetString("profile")
		if err := validProfile(profile); err != nil {
			return &exitError{code: 3, err: err}
		}

		cfg, err := loadConfig(cmd)
		if err != nil {
			return fatalExit(cmd, err)
		}

		if cmd.Flags().Changed("host") {
			cfg.Server.Host, _ = cmd.Flags().GetString("host")
		}
		if cmd.Flags().Changed("port") {
			cfg.Server.Port, _ = cmd.Flags().GetInt("port")
		}

		watch, _ := cmd.Flags().GetBool("watch")
		if noWatch, _ := cmd.Flags().GetBool("no-watch"); noWatch {
			watch = false
		}
		liveReload := cfg.Server.LiveReload
		if noLR, _ := cmd.Flags().GetBool("no-live-reload"); noLR {
			liveReload = false
		}

		open, _ := cmd.Flags().GetBool("open")
		drafts, _ := cmd.Flags().GetBool("drafts")
		future, _ := cmd.Flags().GetBool("future")

		srv := server.New(cfg, server.Options{
			Host:       cfg.Server.Host,
			Port:       cfg.Server.Port,
			Open:       open,
			Watch:      watch,
			LiveReload: liveReload,
			Drafts:     drafts,
			Future:     future,
			Profile:    profile,
			Logger:     newLogger(cmd, slog.LevelInfo),
		})

		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(sigCh)
		go func() {
			<-sigCh
			fmt.Fprintln(cmd.ErrOrStderr(), "\nShutting down...")
			cancel()
		}()

		if err := srv.Start(ctx); err != nil {
			if errors.Is(err, server.ErrBind) {
				return &exitError{code: 2, err: err}
			}
			return fatalExit(cmd, err)
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().String("host", "localhost", "bind address")
	serveCmd.Flags().IntP("port", "p", 1313, "listen port")
	serveCmd.Flags().Bool("open", false, "open the site in a browser")
	serveCmd.Flags().Bool("watch", true, "rebuild when sources change")
	serveCmd.Flags().Bool("no-watch", false, "serve the last build without watching")
	serveCmd.Flags().Bool("no-live-reload", false, "disable browser live reload")
	serveCmd.Flags().Bool("drafts", false, "include draft content")
	serveCmd.Flags().Bool("future", false, "include future-dated content")
	serveCmd.Flags().String("profile", build.ProfileDev, "flag preset: writer, theme-dev, or dev")

	serveCmd.MarkFlagsMutuallyExclusive("watch", "no-watch")

	rootCmd.AddCommand(serveCmd)
}
