////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                            //
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

// PreprocessingConnPool is ConnPool's sibling for the Preprocessing
// service: the same lazy-dial-and-cache scheme, but routed over
// Preprocessing.GenerateMaterial instead of ComputeMessages.DeliverMessage,
// matching spec.md §6's Preprocessing RPC being its own service rather
// than traffic multiplexed through ComputeMessages. A node's preprocessing
// BatchRunner is handed a Fabric built over this Dialer, kept entirely
// separate from the compute-traffic Fabric/ConnPool pair.
type PreprocessingConnPool struct {
	mu    sync.Mutex
	self  cluster.NodeID
	opts  []grpc.DialOption
	conns map[cluster.NodeID]*grpc.ClientConn
	addrs map[cluster.NodeID]string
}

// NewPreprocessingConnPool builds a PreprocessingConnPool over the same
// peer address table a compute ConnPool would use. self is this node's
// own id, carried on every outbound message as From.
func NewPreprocessingConnPool(self cluster.NodeID, addrs map[cluster.NodeID]string, opts ...grpc.DialOption) *PreprocessingConnPool {
	return &PreprocessingConnPool{
		self:  self,
		opts:  append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...),
		conns: make(map[cluster.NodeID]*grpc.ClientConn),
		addrs: addrs,
	}
}

func (p *PreprocessingConnPool) conn(peer cluster.NodeID) (*grpc.ClientConn, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if c, ok := p.conns[peer]; ok {
		return c, nil
	}
	addr, ok := p.addrs[peer]
	if !ok {
		return nil, errUnknownPeerAddress{peer}
	}
	jww.DEBUG.Printf("fabric: dialing preprocessing peer %s at %s", peer, addr)
	c, err := grpc.Dial(addr, p.opts...) //nolint:staticcheck // grpc.NewClient requires restructuring dial-time credentials; deferred
	if err != nil {
		return nil, err
	}
	p.conns[peer] = c
	return c, nil
}

// Send implements Dialer over the Preprocessing gRPC stub.
func (p *PreprocessingConnPool) Send(ctx context.Context, to cluster.NodeID, instance sm.InstanceID, body []byte) error {
	conn, err := p.conn(to)
	if err != nil {
		return err
	}
	client := rpc.NewPreprocessingClient(conn)
	_, err = client.GenerateMaterial(ctx, &rpc.PreprocessingMessage{
		InstanceId:     instance[:],
		From:           p.self[:],
		BincodeMessage: body,
	})
	return err
}

// Close tears down every pooled connection.
func (p *PreprocessingConnPool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for peer, c := range p.conns {
		if err := c.Close(); err != nil {
			jww.WARN.Printf("fabric: closing preprocessing connection to %s: %+v", peer, err)
		}
	}
	p.conns = make(map[cluster.NodeID]*grpc.ClientConn)
}
