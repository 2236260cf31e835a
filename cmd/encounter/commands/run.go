package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/multiformats/go-multiaddr"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/blockberries/encounter"
	prommetrics "github.com/blockberries/encounter/prometheus"
	"github.com/blockberries/encounter/pkg/transport/lan"
)

func runCmd() *cobra.Command {
	var (
		metricsAddr string
		listen      []string
		peers       []string
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Discover nearby peers and chat over an encrypted session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runNode(ctx, cmd, metricsAddr, listen, peers)
		},
	}
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "127.0.0.1:9464", "serve /metrics, /healthz and /readyz here (empty to disable)")
	cmd.Flags().StringSliceVar(&listen, "listen", nil, "libp2p listen multiaddrs (default "+lan.DefaultListenAddr+")")
	cmd.Flags().StringSliceVar(&peers, "peer", nil, "dial these /p2p multiaddrs directly in addition to mDNS")
	return cmd
}

func runNode(ctx context.Context, cmd *cobra.Command, metricsAddr string, listen, peers []string) error {
	out := cmd.OutOrStdout()

	tunables, err := loadTunables()
	if err != nil {
		return err
	}
	logger, err := newLogger(cmd.ErrOrStderr(), logLevel)
	if err != nil {
		return err
	}
	id, err := loadOrCreateIdentity(home)
	if err != nil {
		return err
	}

	book, err := openStore()
	if err != nil {
		return err
	}
	defer book.Close()

	listenAddrs, err := parseMultiaddrs(listen)
	if err != nil {
		return err
	}
	tr, err := lan.New(lan.Config{
		PrivateKey:  id.Key,
		ListenAddrs: listenAddrs,
		Token:       id.Token,
		Blocker:     book,
		Logger:      logger,
	})
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	cfg := encounter.NewConfig(id.Token,
		encounter.WithTunables(tunables),
		encounter.WithPersistence(book),
		encounter.WithLogger(logger),
		encounter.WithMetrics(prommetrics.NewMetricsWithRegisterer("", registry)),
	)
	node, err := encounter.New(tr, cfg)
	if err != nil {
		tr.Close()
		return err
	}
	if err := node.Start(ctx); err != nil {
		tr.Close()
		return err
	}
	defer node.Stop()

	fmt.Fprintf(out, "peer %s listening on %v\n", node.LocalPeer(), tr.AddrInfo().Addrs)
	if err := node.StartDiscovery(); err != nil {
		return err
	}
	for _, p := range peers {
		if err := dialPeer(ctx, tr, p); err != nil {
			logger.Warn("failed to dial peer", "addr", p, "error", err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	if metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		mux.Handle("/healthz", encounter.LivenessHandler(node))
		mux.Handle("/readyz", encounter.HealthHandler(node))
		server := &http.Server{Addr: metricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

		g.Go(func() error {
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		})
	}

	g.Go(func() error {
		return printEvents(gctx, node, out)
	})

	r := &repl{node: node, book: book, out: out}
	g.Go(func() error {
		return r.run(gctx, cmd.InOrStdin())
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errQuit) && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func parseMultiaddrs(addrs []string) ([]multiaddr.Multiaddr, error) {
	out := make([]multiaddr.Multiaddr, 0, len(addrs))
	for _, a := range addrs {
		ma, err := multiaddr.NewMultiaddr(a)
		if err != nil {
			return nil, fmt.Errorf("bad multiaddr %q: %w", a, err)
		}
		out = append(out, ma)
	}
	return out, nil
}

func dialPeer(ctx context.Context, tr *lan.Transport, addr string) error {
	ma, err := multiaddr.NewMultiaddr(addr)
	if err != nil {
		return err
	}
	pi, err := peer.AddrInfoFromP2pAddr(ma)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, lan.DefaultDialTimeout)
	defer cancel()
	return tr.AddPeer(ctx, *pi)
}
