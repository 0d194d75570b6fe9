package health

import (
	"fmt"
	"log/slog"
	"net"

	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the gRPC health service name reported for runs.
const ServiceName = "warmup.Pipeline"

// GRPCServer serves the standard gRPC health protocol.
// The pipeline service is NOT_SERVING while the last run is critical.
type GRPCServer struct {
	port   int
	server *grpc.Server
	health *grpchealth.Server
	log    *slog.Logger
}

// NewGRPCServer creates a gRPC health server and subscribes it to monitor.
func NewGRPCServer(monitor *Monitor, port int, log *slog.Logger) *GRPCServer {
	if log == nil {
		log = slog.Default()
	}
	hs := grpchealth.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)

	srv := grpc.NewServer()
	healthpb.RegisterHealthServer(srv, hs)

	g := &GRPCServer{
		port:   port,
		server: srv,
		health: hs,
		log:    log.With("component", "grpc_health"),
	}
	monitor.OnStatusChange(g.setStatus)
	return g
}

func (g *GRPCServer) setStatus(status SystemStatus) {
	serving := healthpb.HealthCheckResponse_SERVING
	if status == StatusCritical {
		serving = healthpb.HealthCheckResponse_NOT_SERVING
	}
	g.health.SetServingStatus(ServiceName, serving)
	g.log.Debug("Serving status updated", "status", status, "serving", serving.String())
}

// Start listens on the configured port and blocks until Stop.
func (g *GRPCServer) Start() error {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", g.port))
	if err != nil {
		return fmt.Errorf("failed to listen on grpc port %d: %w", g.port, err)
	}
	return g.Serve(lis)
}

// Serve accepts connections on lis.
func (g *GRPCServer) Serve(lis net.Listener) error {
	return g.server.Serve(lis)
}

// Stop marks every service NOT_SERVING and drains connections.
func (g *GRPCServer) Stop() {
	g.health.Shutdown()
	g.server.GracefulStop()
}
