// Package grpctransport ships envelopes between cluster nodes over gRPC.
// The wire service is a single unary Deliver method registered through a
// hand-built ServiceDesc with a passthrough codec, so the transport needs
// no generated stubs: the frame is a gob-encoded header plus the payload
// bytes produced by the configured remote.Codec.
package grpctransport

import (
	"bytes"
	"context"
	"encoding/gob"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"

	"github.com/actorforge/actorcore/cluster/membership"
	"github.com/actorforge/actorcore/cluster/remote"
	"github.com/actorforge/actorcore/message"
)

const (
	serviceName   = "actorcore.remote.Delivery"
	deliverMethod = "/" + serviceName + "/Deliver"
)

// Resolver maps a node id to its dialable address. The membership layer's
// Member.Address is the usual source.
type Resolver func(membership.NodeID) (addr string, ok bool)

// Config tunes the transport. Keepalive mirrors long-lived internal
// connections: the server pings idle clients and tolerates client pings
// without streams.
type Config struct {
	// ListenAddr is the local bind address, e.g. ":7940".
	ListenAddr string

	// SendTimeout bounds one Deliver call. Zero means 5s.
	SendTimeout time.Duration

	// Codec encodes user payloads. Nil means remote.GobCodec.
	Codec remote.Codec

	// Logger for transport events. Nil means slog default.
	Logger *slog.Logger
}

// frame is the gob-encoded wire form of one envelope.
type frame struct {
	DestPath      string
	SenderPath    string
	SenderNode    string
	Priority      int
	CorrelationID string
	RouteKey      string
	Payload       []byte
}

// rawFrame carries pre-encoded bytes through grpc's codec layer untouched.
type rawFrame struct {
	data []byte
}

// rawCodec is the passthrough grpc codec for rawFrame.
type rawCodec struct{}

func (rawCodec) Marshal(v interface{}) ([]byte, error) {
	f, ok := v.(*rawFrame)
	if !ok {
		return nil, fmt.Errorf("grpctransport: unexpected marshal type %T", v)
	}
	return f.data, nil
}

func (rawCodec) Unmarshal(data []byte, v interface{}) error {
	f, ok := v.(*rawFrame)
	if !ok {
		return fmt.Errorf("grpctransport: unexpected unmarshal type %T", v)
	}
	f.data = append([]byte(nil), data...)
	return nil
}

func (rawCodec) Name() string { return "actorcore-raw" }

// Transport is the gRPC-backed remote.Transport. Construct with New, Start
// to begin serving, and Stop during system shutdown.
type Transport struct {
	cfg     Config
	self    membership.NodeID
	resolve Resolver

	handler remote.InboundHandler

	server   *grpc.Server
	listener net.Listener

	mu    sync.Mutex
	conns map[membership.NodeID]*grpc.ClientConn

	wg   sync.WaitGroup
	quit chan struct{}
}

// New builds a transport for the local node. Call SetInboundHandler and
// Start before routing refs through it.
func New(self membership.NodeID, resolve Resolver, cfg Config) *Transport {
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 5 * time.Second
	}
	if cfg.Codec == nil {
		cfg.Codec = remote.GobCodec{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Transport{
		cfg:     cfg,
		self:    self,
		resolve: resolve,
		conns:   make(map[membership.NodeID]*grpc.ClientConn),
		quit:    make(chan struct{}),
	}
}

// LocalNode implements remote.LocalNoder.
func (t *Transport) LocalNode() membership.NodeID { return t.self }

// SetInboundHandler implements remote.Transport.
func (t *Transport) SetInboundHandler(h remote.InboundHandler) { t.handler = h }

// Start binds the listener and serves inbound deliveries.
func (t *Transport) Start() error {
	if t.handler == nil {
		return fmt.Errorf("grpctransport: inbound handler not set")
	}

	lis, err := net.Listen("tcp", t.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("grpctransport: listen on %s: %w", t.cfg.ListenAddr, err)
	}
	t.listener = lis

	t.server = grpc.NewServer(
		grpc.ForceServerCodec(rawCodec{}),
		grpc.KeepaliveParams(keepalive.ServerParameters{
			Time:    time.Minute,
			Timeout: 20 * time.Second,
		}),
		grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{
			MinTime:             10 * time.Second,
			PermitWithoutStream: true,
		}),
	)
	t.server.RegisterService(&grpc.ServiceDesc{
		ServiceName: serviceName,
		HandlerType: (*interface{})(nil),
		Methods: []grpc.MethodDesc{
			{MethodName: "Deliver", Handler: t.deliverHandler},
		},
		Streams:  []grpc.StreamDesc{},
		Metadata: "actorcore/cluster/remote/grpctransport",
	}, t)

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		t.cfg.Logger.Info("remote transport listening", "addr", lis.Addr().String())
		if err := t.server.Serve(lis); err != nil {
			select {
			case <-t.quit:
			default:
				t.cfg.Logger.Error("remote transport serve error", "error", err)
			}
		}
	}()
	return nil
}

// Addr returns the bound listen address, useful when ListenAddr used an
// ephemeral port.
func (t *Transport) Addr() string {
	if t.listener == nil {
		return ""
	}
	return t.listener.Addr().String()
}

// Stop drains the server and closes outbound connections.
func (t *Transport) Stop() {
	close(t.quit)
	if t.server != nil {
		t.server.GracefulStop()
	}
	t.wg.Wait()

	t.mu.Lock()
	for node, conn := range t.conns {
		_ = conn.Close()
		delete(t.conns, node)
	}
	t.mu.Unlock()
}

// Send implements remote.Transport.
func (t *Transport) Send(env message.Envelope, destPath string, destNode membership.NodeID) error {
	conn, err := t.connTo(destNode)
	if err != nil {
		return err
	}

	payload, err := t.cfg.Codec.Marshal(env.Message)
	if err != nil {
		return fmt.Errorf("grpctransport: encode payload: %w", err)
	}

	f := frame{
		DestPath:      destPath,
		SenderNode:    string(t.self),
		Priority:      int(env.Priority),
		CorrelationID: env.CorrelationID,
		RouteKey:      env.RouteKey,
		Payload:       payload,
	}
	if env.Sender != nil {
		f.SenderPath = env.Sender.Path()
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(f); err != nil {
		return fmt.Errorf("grpctransport: encode frame: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), t.cfg.SendTimeout)
	defer cancel()

	var reply rawFrame
	err = conn.Invoke(ctx, deliverMethod, &rawFrame{data: buf.Bytes()}, &reply,
		grpc.ForceCodec(rawCodec{}))
	if err != nil {
		return fmt.Errorf("grpctransport: deliver to %s: %w", string(destNode), err)
	}
	return nil
}

// deliverHandler is the server side of Deliver: decode the frame, rebuild
// the envelope, and hand it to the inbound handler.
func (t *Transport) deliverHandler(_ interface{}, ctx context.Context, dec func(interface{}) error, _ grpc.UnaryServerInterceptor) (interface{}, error) {
	var in rawFrame
	if err := dec(&in); err != nil {
		return nil, err
	}

	var f frame
	if err := gob.NewDecoder(bytes.NewReader(in.data)).Decode(&f); err != nil {
		return nil, fmt.Errorf("grpctransport: decode frame: %w", err)
	}

	msg, err := t.cfg.Codec.Unmarshal(f.Payload)
	if err != nil {
		return nil, fmt.Errorf("grpctransport: decode payload: %w", err)
	}

	env := message.Envelope{
		Message:       msg,
		Priority:      message.Priority(f.Priority),
		EnqueueTime:   time.Now(),
		CorrelationID: f.CorrelationID,
		RouteKey:      f.RouteKey,
	}
	t.handler(env, f.DestPath, f.SenderPath, membership.NodeID(f.SenderNode))

	return &rawFrame{}, nil
}

func (t *Transport) connTo(node membership.NodeID) (*grpc.ClientConn, error) {
	t.mu.Lock()
	if conn, ok := t.conns[node]; ok {
		t.mu.Unlock()
		return conn, nil
	}
	t.mu.Unlock()

	addr, ok := t.resolve(node)
	if !ok {
		return nil, fmt.Errorf("grpctransport: no address for node %s", string(node))
	}

	conn, err := grpc.NewClient(addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:                time.Minute,
			Timeout:             20 * time.Second,
			PermitWithoutStream: true,
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("grpctransport: dial %s: %w", addr, err)
	}

	t.mu.Lock()
	if existing, ok := t.conns[node]; ok {
		t.mu.Unlock()
		_ = conn.Close()
		return existing, nil
	}
	t.conns[node] = conn
	t.mu.Unlock()
	return conn, nil
}
