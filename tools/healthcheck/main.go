// Command healthcheck asks a service's gRPC health endpoint for its status and
// exits non-zero unless it is SERVING. It is meant for container health checks.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/md-rashed-zaman/courtdesk/libs/config"
	"github.com/md-rashed-zaman/courtdesk/libs/grpcx"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func main() {
	var (
		addr    = flag.String("addr", config.String("GRPC_ADDR", "localhost:9095"), "grpc address")
		service = flag.String("service", config.String("HEALTH_SERVICE", ""), "service name; empty checks the whole server")
		timeout = flag.Duration("timeout", 3*time.Second, "dial and check timeout")
	)
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	conn, err := grpcx.Dial(ctx, *addr, grpcx.DialOptions{Timeout: *timeout})
	if err != nil {
		fmt.Fprintf(os.Stderr, "dial %s: %v\n", *addr, err)
		os.Exit(1)
	}
	defer conn.Close()

	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: *service})
	if err != nil {
		fmt.Fprintf(os.Stderr, "health check: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(resp.GetStatus().String())
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		os.Exit(1)
	}
}
