// Command derl-client connects to a derl-server and answers its layout,
// hash, delete, and write requests against a local base directory, and
// launches or stops the synced game when asked to.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/LordOfDragons/deremotelauncher-sub000/derllog"
	"github.com/LordOfDragons/deremotelauncher-sub000/gamerunner"
	"github.com/LordOfDragons/deremotelauncher-sub000/syncclient"
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
		Use:   "derl-client",
		Short: "Connect to a derl-server and keep a local directory synchronized",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(v)
		},
	}

	flags := cmd.Flags()
	flags.String("connect-address", "", "server address to connect to (host or host:port)")
	flags.String("base-dir", ".", "directory kept in sync with the server")
	flags.String("client-name", "", "name this client identifies itself with; defaults to the local hostname")
	flags.String("log-level", "info", "log level: debug, info, warn, error")
	flags.Bool("watch", true, "watch base-dir for out-of-band changes and invalidate the cached layout")

	v.SetEnvPrefix("derl_client")
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

	connectAddress := v.GetString("connect-address")
	if connectAddress == "" {
		return fmt.Errorf("connect-address is required")
	}
	baseDir := v.GetString("base-dir")

	clientName := v.GetString("client-name")
	if clientName == "" {
		if host, err := os.Hostname(); err == nil {
			clientName = host
		} else {
			clientName = "derl-client"
		}
	}

	runner := gamerunner.NewProcessRunner()

	client, err := syncclient.Connect(connectAddress, clientName, baseDir, runner, logger)
	if err != nil {
		return err
	}

	if v.GetBool("watch") {
		client.SetWatcher()
	}

	client.Start()
	defer client.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	done := make(chan struct{})
	go func() {
		client.ReceiveLoop()
		close(done)
	}()

	logger.Sugar().Infof("connected to %s as %s, serving %s", connectAddress, clientName, baseDir)

	select {
	case <-sigCh:
		return nil
	case <-done:
		return nil
	}
}
