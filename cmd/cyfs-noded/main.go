// Command cyfs-noded runs a single CYFS device: identity, NOC, BDT
// tunnels, SN connectivity tracking, and the local HTTP control surface.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/buckyos/cyfs-ndn-core/internal/node"
)

var (
	configPath string
	envPath    string
)

func main() {
	root := &cobra.Command{
		Use:   "cyfs-noded",
		Short: "run a CYFS device node",
	}
	root.PersistentFlags().StringVar(&configPath, "config", "node.yaml", "path to the device's YAML config file")
	root.PersistentFlags().StringVar(&envPath, "env", ".env", "path to an optional env overlay")

	root.AddCommand(runCmd())
	root.AddCommand(identityCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "start the node and serve until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logrus.StandardLogger()

			if err := node.LoadEnvOverlay(envPath); err != nil {
				return err
			}
			cfg, err := node.LoadConfig(configPath)
			if err != nil {
				return err
			}

			n, err := node.New(cfg, log)
			if err != nil {
				return err
			}
			log.WithField("device_id", fmt.Sprintf("%x", n.SelfId())).Info("cyfs-noded: identity ready")

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			if err := n.Start(ctx); err != nil && err != context.Canceled {
				return err
			}
			return nil
		},
	}
}

func identityCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "identity",
		Short: "identity management",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "print this device's object id",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := node.LoadConfig(configPath)
			if err != nil {
				return err
			}
			n, err := node.New(cfg, logrus.StandardLogger())
			if err != nil {
				return err
			}
			fmt.Printf("%x\n", n.SelfId())
			return nil
		},
	})
	return cmd
}
