////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package fabric

import (
	"context"
	"sync"

	jww "github.com/spf13/jwalterweatherman"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/NillionNetwork/nilvm/internal/cluster"
	"github.com/NillionNetwork/nilvm/internal/sm"
	"github.com/NillionNetwork/nilvm/internal/transport/rpc"
)

// ConnPool is a by-peer gRPC client connection cache, grounded on drand's
// net.grpcClient.conn: lazily dial once per peer address, reuse the
// *grpc.ClientConn for every subsequent send. It implements Dialer so a
// Fabric can be handed one directly.
type ConnPool struct {
	mu    sync.Mutex
	self  cluster.NodeID
	opts  []grpc.DialOption
	conns map[cluster.NodeID]*grpc.ClientConn
	addrs map[cluster.NodeID]string
}

// NewConnPool builds a ConnPool. self is this node's own id, carried on
// every outbound message as From; addrs maps every peer this node may
// need to dial to its "host:port" address.
func NewConnPool(self cluster.NodeID, addrs map[cluster.NodeID]string, opts ...grpc.DialOption) *ConnPool {
	return &ConnPool{
		self:  self,
		opts:  append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...),
		conns: make(map[cluster.NodeID]*grpc.ClientConn),
		addrs: addrs,
	}
}

func (p *ConnPool) conn(peer cluster.NodeID) (*grpc.ClientConn, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if c, ok := p.conns[peer]; ok {
		return c, nil
	}
	addr, ok := p.addrs[peer]
	if !ok {
		return nil, errUnknownPeerAddress{peer}
	}
	jww.DEBUG.Printf("fabric: dialing peer %s at %s", peer, addr)
	c, err := grpc.Dial(addr, p.opts...) //nolint:staticcheck // grpc.NewClient requires restructuring dial-time credentials; deferred
	if err != nil {
		return nil, err
	}
	p.conns[peer] = c
	return c, nil
}

// Send implements Dialer over the ComputeMessages gRPC stub.
func (p *ConnPool) Send(ctx context.Context, to cluster.NodeID, instance sm.InstanceID, body []byte) error {
	conn, err := p.conn(to)
	if err != nil {
		return err
	}
	client := rpc.NewComputeMessagesClient(conn)
	_, err = client.DeliverMessage(ctx, &rpc.DeliverMessageRequest{
		InstanceId: instance[:],
		From:       p.self[:],
		Body:       body,
	})
	return err
}

// Close tears down every pooled connection.
func (p *ConnPool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for peer, c := range p.conns {
		if err := c.Close(); err != nil {
			jww.WARN.Printf("fabric: closing connection to %s: %+v", peer, err)
		}
	}
	p.conns = make(map[cluster.NodeID]*grpc.ClientConn)
}

type errUnknownPeerAddress struct{ peer cluster.NodeID }

func (e errUnknownPeerAddress) Error() string {
	return "fabric: no known address for peer " + e.peer.String()
}
