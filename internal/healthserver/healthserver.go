// Package healthserver starts the minimal gRPC health-check endpoint every
// p8fs core process entrypoint exposes, using the standard
// health.NewServer()/healthpb.RegisterHealthServer wiring with no generated
// service stubs of its own.
package healthserver

import (
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/healer-ai/p8fs/pkg/obs"
)

// Start listens on addr and serves the standard gRPC health-check protocol,
// always reporting SERVING. Returns the *grpc.Server so the caller can
// GracefulStop it on shutdown.
func Start(addr string) (*grpc.Server, error) {
	log := obs.Component("healthserver")

	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	srv := grpc.NewServer()
	healthSrv := health.NewServer()
	healthSrv.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(srv, healthSrv)

	go func() {
		log.Info().Str("addr", addr).Msg("health server listening")
		if err := srv.Serve(lis); err != nil {
			log.Warn().Err(err).Msg("health server stopped")
		}
	}()
	return srv, nil
}
