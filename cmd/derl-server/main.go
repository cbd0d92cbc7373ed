// Command derl-server hosts a base directory for remote clients to
// synchronize against: it listens for connections, diffs each connected
// client's reported file layout against its own, and drives the delete/
// hash/write exchange to bring the client's copy in line.
package main

import (
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/LordOfDragons/deremotelauncher-sub000/derllog"
	"github.com/LordOfDragons/deremotelauncher-sub000/layout"
	"github.com/LordOfDragons/deremotelauncher-sub000/protocol"
	"github.com/LordOfDragons/deremotelauncher-sub000/syncserver"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "derl-server",
		Short: "Serve a base directory for remote launcher clients to synchronize against",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(v)
		},
	}

	flags := cmd.Flags()
	flags.String("base-dir", ".", "directory served to connecting clients")
	flags.String("listen-address", fmt.Sprintf(":%d", protocol.DefaultPort), "address to listen on (host or host:port)")
	flags.String("log-level", "info", "log level: debug, info, warn, error")
	flags.Int("max-in-progress-files", syncserver.DefaultMaxInProgressFiles, "max files being written concurrently per client")
	flags.Int("max-in-progress-blocks", syncserver.DefaultMaxInProgressBlocks, "max blocks in flight concurrently per client")

	v.SetEnvPrefix("derl_server")
	v.AutomaticEnv()
	_ = v.BindPFlags(flags)

	return cmd
}

func run(v *viper.Viper) error {
	logger, err := derllog.New(derllog.ParseLevel(v.GetString("log-level")))
	if err != nil {
		return err
	}
	defer logger.Sync()

	baseDir := v.GetString("base-dir")
	listenAddress := v.GetString("listen-address")

	if l, err := layout.Scan(baseDir, layout.DefaultBlockSize); err != nil {
		logger.Warn("initial scan of base directory failed", zap.Error(err))
	} else {
		var total uint64
		for _, f := range l.Snapshot() {
			total += f.Size
		}
		logger.Sugar().Infof("serving %d files (%s) from %s", l.Len(), humanize.Bytes(total), baseDir)
	}

	srv := syncserver.NewServer(baseDir, logger)
	srv.MaxInProgressFiles = v.GetInt("max-in-progress-files")
	srv.MaxInProgressBlocks = v.GetInt("max-in-progress-blocks")
	if err := srv.Listen(listenAddress); err != nil {
		return err
	}
	defer srv.Close()

	logger.Sugar().Infof("listening on %s", listenAddress)
	return srv.Serve()
}
