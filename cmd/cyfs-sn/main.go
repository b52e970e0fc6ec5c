// Command cyfs-sn runs a standalone SN (rendezvous server): it answers
// device keepalive pings and relays reverse-connect calls, without
// holding any NOC state of its own.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/buckyos/cyfs-ndn-core/pkg/bdt/sn"
	"github.com/buckyos/cyfs-ndn-core/pkg/identity"
	"github.com/buckyos/cyfs-ndn-core/pkg/objmodel"
)

func main() {
	var listenAddr string
	var statusInterval time.Duration

	root := &cobra.Command{
		Use:   "cyfs-sn",
		Short: "run a standalone SN (rendezvous server)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(listenAddr, statusInterval)
		},
	}
	root.Flags().StringVar(&listenAddr, "listen", "0.0.0.0:9001", "UDP address to answer SN pings on")
	root.Flags().DurationVar(&statusInterval, "status-interval", 30*time.Second, "how often to log the registration count")

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(listenAddr string, statusInterval time.Duration) error {
	log := logrus.StandardLogger()

	id, err := identity.GenerateIdentity()
	if err != nil {
		return err
	}
	selfId := objmodel.ComputeObjectId(objmodel.CategoryCore, objmodel.TypeDevice, id.SigningPublicKey)

	srv, err := sn.NewServer(selfId, listenAddr)
	if err != nil {
		return err
	}
	defer srv.Close()

	log.WithField("addr", srv.Addr().String()).Info("cyfs-sn: listening")

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	go reportStatus(ctx, srv, statusInterval, log)

	err = srv.Serve(ctx)
	if err != nil && ctx.Err() != nil {
		return nil
	}
	return err
}

func reportStatus(ctx context.Context, srv *sn.Server, interval time.Duration, log *logrus.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			log.WithField("registrations", srv.RegistrationCount()).Info("cyfs-sn: status")
		}
	}
}
