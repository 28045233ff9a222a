package natsx

import (
	"os"

	"github.com/nats-io/nats.go"
)

// ClientName identifies instruct connections on the NATS server.
const ClientName = "instruct"

// URL returns the server address from NATS_URL, falling back to nats.DefaultURL.
func URL() string {
	if u := os.Getenv("NATS_URL"); u != "" {
		return u
	}
	return nats.DefaultURL
}

// NewClient connects to the server returned by URL. Without options the connection is
// named ClientName and uses compression.
func NewClient(opts ...nats.Option) (*nats.Conn, error) {
	if len(opts) == 0 {
		opts = append(opts, nats.Name(ClientName), nats.Compression(true))
	}
	return nats.Connect(URL(), opts...)
}
