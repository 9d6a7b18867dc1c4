// Package protocol defines the messages exchanged between benchmark clients
// and the arma-bench server, and the length-prefixed MessagePack framing
// that carries them over TCP.
package protocol

// HeaderID is written by the server at the start of every connection and
// must be echoed back verbatim by the client.
const HeaderID = "ARMABENCH-VER010"

// HeaderIDLen is the size of HeaderID on the wire.
const HeaderIDLen = len(HeaderID)

// DefaultPort is the TCP port the server listens on unless configured.
const DefaultPort = 7562

// AckReady is the single byte the server sends once it has accepted the
// session configuration.
const AckReady byte = 1

// Defaults applied to a ServerConfig that leaves Binary or Branch empty.
const (
	DefaultBinary = "arma3server_x64"
	DefaultBranch = "public"
)

// ServerConfig selects the server build a connection's jobs run against.
// It is sent once per connection, right after the header exchange.
type ServerConfig struct {
	Binary         string `msgpack:"binary" json:"binary"`
	Branch         string `msgpack:"branch" json:"branch"`
	BranchPassword string `msgpack:"branch_password" json:"branch_password"`
}

// DefaultServerConfig targets the 64-bit server on the public branch.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Binary: DefaultBinary,
		Branch: DefaultBranch,
	}
}

// WithDefaults fills empty Binary and Branch fields.
func (c ServerConfig) WithDefaults() ServerConfig {
	if c.Binary == "" {
		c.Binary = DefaultBinary
	}
	if c.Branch == "" {
		c.Branch = DefaultBranch
	}
	return c
}
