package testutil

import (
	"os"
	"testing"

	"github.com/nats-io/nats-server/v2/server"
	natsserver "github.com/nats-io/nats-server/v2/test"
	"github.com/nats-io/nats.go"
)

func NewNatsServer(port int) *server.Server {
	opts := natsserver.DefaultTestOptions
	opts.Port = port
	opts.JetStream = true
	opts.StoreDir, _ = os.MkdirTemp("", "xapi-js-*")
	return natsserver.RunServer(&opts)
}

func ShutdownNatsServer(s *server.Server) {
	var sd string
	if config := s.JetStreamConfig(); config != nil {
		sd = config.StoreDir
	}
	s.Shutdown()
	if sd != "" {
		os.RemoveAll(sd)
	}
	s.WaitForShutdown()
}

// Connect starts an embedded JetStream server for the test and returns a
// connection to it. Both are torn down when the test ends.
func Connect(t testing.TB) *nats.Conn {
	t.Helper()
	srv := NewNatsServer(-1)
	nc, err := nats.Connect(srv.ClientURL())
	if err != nil {
		ShutdownNatsServer(srv)
		t.Fatal(err)
	}
	t.Cleanup(func() {
		nc.Close()
		ShutdownNatsServer(srv)
	})
	return nc
}
