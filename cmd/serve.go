package cmd

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/theapemachine/a2a-sdk/pkg/a2a"
	"github.com/theapemachine/a2a-sdk/pkg/catalog"
	"github.com/theapemachine/a2a-sdk/pkg/executor"
	"github.com/theapemachine/a2a-sdk/pkg/grpcserver"
	"github.com/theapemachine/a2a-sdk/pkg/handler"
	"github.com/theapemachine/a2a-sdk/pkg/push"
	"github.com/theapemachine/a2a-sdk/pkg/service"
	"github.com/theapemachine/a2a-sdk/pkg/stores"
	"github.com/theapemachine/a2a-sdk/pkg/stores/s3"
	"golang.org/x/sync/errgroup"
)

var (
	addrFlag     string
	grpcAddrFlag string
	agentKeyFlag string
	catalogFlag  string
	stdioFlag    bool

	catalogAddrFlag string
	catalogTTLFlag  time.Duration

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Run the demo agent server",
		Long:  longServe,
		RunE: func(cmd *cobra.Command, args []string) error {
			card := *a2a.NewAgentCardFromConfig(agentKeyFlag)

			if grpcAddrFlag != "" {
				card.AdditionalInterfaces = append(card.AdditionalInterfaces, a2a.AgentInterface{
					URL:       grpcTarget(grpcAddrFlag),
					Transport: a2a.TransportGRPC,
				})
			}

			var (
				taskStore stores.TaskStore = stores.NewInMemoryTaskStore()
				pushStore push.ConfigStore = push.NewInMemoryConfigStore()
			)

			if endpoint := viper.GetString("s3.endpoint"); endpoint != "" {
				conn, err := s3.NewConnFromConfig()

				if err != nil {
					return err
				}

				if taskStore, err = s3.NewTaskStore(cmd.Context(), conn); err != nil {
					return err
				}

				if pushStore, err = s3.NewPushConfigStore(cmd.Context(), conn); err != nil {
					return err
				}

				log.Info("using s3-backed stores", "endpoint", endpoint)
			}

			sender := push.NewSender(pushStore)

			if secret := viper.GetString("push.secret"); secret != "" {
				sender = sender.WithSigningSecret([]byte(secret))
			}

			h := handler.New(
				card,
				executor.NewEchoExecutor(),
				handler.WithTaskStore(taskStore),
				handler.WithPushConfigStore(pushStore),
				handler.WithPushSender(sender),
			)

			if stdioFlag {
				return service.NewStdioServer(h).Serve(
					cmd.Context(), os.Stdin, os.Stdout,
				)
			}

			var auth service.Authenticator

			if token := viper.GetString("auth.token"); token != "" {
				auth = service.BearerAuth{Token: token}
			}

			opts := []service.ServerOption{service.WithAddr(addrFlag)}

			if auth != nil {
				opts = append(opts, service.WithAuthenticator(auth))
			}

			if rate := viper.GetInt64("server.rateLimit"); rate > 0 {
				opts = append(opts, service.WithRateLimit(rate, time.Second))
			}

			srv := service.NewA2AServer(card, h, opts...)
			servers := []serverLifecycle{{srv.Start, srv.Shutdown}}

			if grpcAddrFlag != "" {
				gopts := []grpcserver.Option{grpcserver.WithAddr(grpcAddrFlag)}

				if auth != nil {
					gopts = append(gopts, grpcserver.WithAuthenticator(auth))
				}

				gsrv := grpcserver.New(h, gopts...)

				servers = append(servers, serverLifecycle{gsrv.Start, func(context.Context) error {
					gsrv.Shutdown()
					return nil
				}})
			}

			if catalogFlag != "" {
				if err := catalog.NewCatalogClient(catalogFlag).Register(&card); err != nil {
					log.Warn("catalog registration failed", "url", catalogFlag, "error", err)
				} else {
					log.Info("registered with catalog", "url", catalogFlag, "agent", card.Name)
				}
			}

			log.Info("starting agent server", "agent", card.Name, "addr", addrFlag)

			return runUntilSignalled(cmd.Context(), servers...)
		},
	}

	catalogCmd = &cobra.Command{
		Use:   "catalog",
		Short: "Run the agent catalog service",
		Long:  longCatalog,
		RunE: func(cmd *cobra.Command, args []string) error {
			srv := service.NewCatalogServer(
				service.WithCatalogAddr(catalogAddrFlag),
				service.WithCatalogTTL(catalogTTLFlag),
			)

			log.Info("starting catalog server", "addr", catalogAddrFlag)

			return runUntilSignalled(cmd.Context(), serverLifecycle{srv.Start, srv.Shutdown})
		},
	}
)

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(catalogCmd)

	serveCmd.Flags().StringVarP(&addrFlag, "addr", "a", ":3210", "Address to serve on")
	serveCmd.Flags().StringVar(&grpcAddrFlag, "grpc", "", "Also serve gRPC on this address (e.g. :3220)")
	serveCmd.Flags().StringVar(&agentKeyFlag, "agent", "demo", "Agent config key to serve")
	serveCmd.Flags().StringVar(&catalogFlag, "catalog", "", "Catalog URL to register with on startup")
	serveCmd.Flags().BoolVar(&stdioFlag, "stdio", false, "Serve over stdin/stdout instead of HTTP")

	catalogCmd.Flags().StringVarP(&catalogAddrFlag, "addr", "a", ":3211", "Address to serve on")
	catalogCmd.Flags().DurationVar(&catalogTTLFlag, "ttl", 5*time.Minute, "How long agents stay listed without a refresh")
}

// serverLifecycle pairs a blocking start with the shutdown that unblocks it.
type serverLifecycle struct {
	start    func() error
	shutdown func(context.Context) error
}

/*
runUntilSignalled starts every server, waits for SIGINT or SIGTERM (or
the first server to fail), then shuts them all down with a bounded grace
period.
*/
func runUntilSignalled(ctx context.Context, servers ...serverLifecycle) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(ctx)

	for _, srv := range servers {
		group.Go(srv.start)

		group.Go(func() error {
			<-groupCtx.Done()

			timeout, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			return srv.shutdown(timeout)
		})
	}

	return group.Wait()
}

// grpcTarget turns a listen address into something clients can dial.
func grpcTarget(addr string) string {
	if strings.HasPrefix(addr, ":") {
		return "localhost" + addr
	}

	return addr
}

var longServe = `
Serve an A2A agent over HTTP (JSON-RPC, REST, and SSE streaming), with
optional gRPC alongside, or over stdin/stdout for subprocess embedding.
The agent's card, skills, and capabilities come from the config file.

Examples:
  # Serve the demo agent on the default address
  a2a-sdk serve

  # Serve on a different port and register with a catalog
  a2a-sdk serve --addr :8080 --catalog http://localhost:3211

  # Advertise and serve gRPC next to HTTP
  a2a-sdk serve --grpc :3220

  # Speak the protocol over stdin/stdout
  a2a-sdk serve --stdio
`

var longCatalog = `
Run the agent catalog: a registry where agents publish their cards and
clients discover them. Entries expire unless re-registered within the TTL.

Examples:
  # Run the catalog on the default address
  a2a-sdk catalog

  # Keep entries for an hour
  a2a-sdk catalog --ttl 1h
`
