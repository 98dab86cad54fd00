////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                            //
////////////////////////////////////////////////////////////////////////////////

package cmd

import (
	"context"
	"net"
	"os"
	"time"

	grpc_prometheus "github.com/grpc-ecosystem/go-grpc-prometheus"
	jww "github.com/spf13/jwalterweatherman"
	"github.com/spf13/viper"
	"google.golang.org/grpc"

	"github.com/NillionNetwork/nilvm/cmd/conf"
	"github.com/NillionNetwork/nilvm/internal/audit"
	"github.com/NillionNetwork/nilvm/internal/cluster"
	"github.com/NillionNetwork/nilvm/internal/compute"
	"github.com/NillionNetwork/nilvm/internal/fabric"
	"github.com/NillionNetwork/nilvm/internal/identity"
	"github.com/NillionNetwork/nilvm/internal/metrics"
	"github.com/NillionNetwork/nilvm/internal/preprocessing"
	"github.com/NillionNetwork/nilvm/internal/protocol"
	"github.com/NillionNetwork/nilvm/internal/sm"
	"github.com/NillionNetwork/nilvm/internal/storage"
	"github.com/NillionNetwork/nilvm/internal/transport"
	"github.com/NillionNetwork/nilvm/internal/transport/rpc"
	"github.com/NillionNetwork/nilvm/internal/vm"
)

// StartServer wires every internal package into one running node (the
// replacement for the teacher's cMix StartServer/RunRealTime/
// RunPrecomputation pair, which drove cMix's own two-phase round
// pipeline): load this node's identity, build the static cluster, open
// its storage, stand up the two Fabric/Directory pairs compute and
// preprocessing traffic each need, start the preprocessing scheduler
// when this node is the leader, and serve the gRPC surface with
// Prometheus metrics attached the way drand's net/listener.go wires
// grpc_prometheus. It blocks in grpcServer.Serve and returns once a
// shutdown signal has triggered GracefulStop.
func StartServer(vip *viper.Viper) {
	params := conf.NewParams(vip)

	kp, err := loadOrCreateKeyPair(params.Node.Paths.Key)
	if err != nil {
		jww.FATAL.Panicf("node: loading identity: %+v", err)
	}
	self, err := kp.NodeID()
	if err != nil {
		jww.FATAL.Panicf("node: deriving node id: %+v", err)
	}

	members, err := params.ClusterMembers()
	if err != nil {
		jww.FATAL.Panicf("node: parsing members: %+v", err)
	}
	leader, err := params.LeaderID()
	if err != nil {
		jww.FATAL.Panicf("node: parsing leader: %+v", err)
	}
	clus, err := cluster.New(members, leader, params.Degree, params.Kappa, params.Modulus(), self)
	if err != nil {
		jww.FATAL.Panicf("node: building cluster: %+v", err)
	}
	jww.INFO.Printf("node: %s joining cluster of %d, leader=%v", self, clus.N(), clus.IsLeader())

	store, err := storage.Open(params.Database.Path)
	if err != nil {
		jww.FATAL.Panicf("node: opening storage at %s: %+v", params.Database.Path, err)
	}
	objects, err := storage.NewS3ObjectStore(params.ObjectStore.Bucket, params.ObjectStore.Region)
	if err != nil {
		jww.FATAL.Panicf("node: opening object store: %+v", err)
	}

	addrs := make(map[cluster.NodeID]string, len(clus.Members))
	for _, m := range clus.Members {
		addrs[m.ID] = m.Address
	}

	computePool := fabric.NewConnPool(self, addrs)
	computeFabric := fabric.New(sm.NewRegistry(), computePool)
	computeDir := vm.NewDirectory()

	prePool := fabric.NewPreprocessingConnPool(self, addrs)
	preFabric := fabric.New(sm.NewRegistry(), prePool)
	preDir := vm.NewDirectory()

	participants := protocol.ParticipantsFromCluster(clus)
	runner := vm.New(computeFabric, computeDir, participants, clus.Threshold(), params.Compute.MaxConcurrentActions)

	pm := preprocessing.NewManager(preprocessing.Config{})
	auditor, err := audit.New(audit.Config{MaxMemorySize: params.Audit.MaxMemorySize}, audit.DefaultCacheSize)
	if err != nil {
		jww.FATAL.Panicf("node: building auditor: %+v", err)
	}
	orch := compute.New(runner, pm, auditor, params.Compute.MaxConcurrentActions, params.Compute.RetrieveDeadline, params.Compute.ResultRetention)

	batchRunner := transport.NewBatchRunner(preFabric, preDir, clus)
	scheduler := preprocessing.NewScheduler(clus, pm, batchRunner, nil)
	if clus.IsLeader() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go scheduler.Run(ctx, time.Second)
		jww.INFO.Printf("node: leader, preprocessing scheduler started")
	}

	server := transport.NewServer(computeFabric, computeDir, preFabric, preDir, orch, store, objects, kp, clus, pm)

	if l, err := metrics.Start(params.Node.MetricsAddress); err != nil {
		jww.ERROR.Printf("node: metrics listener on %s: %+v", params.Node.MetricsAddress, err)
	} else {
		jww.INFO.Printf("node: metrics listening on %s", l.Addr())
	}

	grpcServer := newGRPCServer(server)

	lis, err := net.Listen("tcp", params.Node.ListeningAddress)
	if err != nil {
		jww.FATAL.Panicf("node: listening on %s: %+v", params.Node.ListeningAddress, err)
	}
	jww.INFO.Printf("node: gRPC listening on %s", params.Node.ListeningAddress)

	stop := ReceiveExitSignal()
	go func() {
		<-stop
		jww.INFO.Printf("node: received shutdown signal, stopping")
		grpcServer.GracefulStop()
	}()

	if err := grpcServer.Serve(lis); err != nil {
		jww.FATAL.Panicf("node: gRPC server exited: %+v", err)
	}
}

// newGRPCServer builds the gRPC server every service in rpc/services.go
// and rpc/compute.go registers against, with grpc_prometheus's unary
// interceptor attached the way drand's net/listener.go wires
// grpc_prometheus.UnaryServerInterceptor + grpc_prometheus.Register.
func newGRPCServer(s *transport.Server) *grpc.Server {
	grpcServer := grpc.NewServer(
		grpc.StreamInterceptor(grpc_prometheus.StreamServerInterceptor),
		grpc.UnaryInterceptor(grpc_prometheus.UnaryServerInterceptor),
	)

	rpc.RegisterComputeMessagesServer(grpcServer, s)
	rpc.RegisterPreprocessingServer(grpcServer, s)
	rpc.RegisterValuesServer(grpcServer, s)
	rpc.RegisterPermissionsServer(grpcServer, s)
	rpc.RegisterComputeServer(grpcServer, s)
	rpc.RegisterLeaderQueriesServer(grpcServer, s)
	rpc.RegisterMembershipServer(grpcServer, s)
	rpc.RegisterPaymentsServer(grpcServer, s)

	grpc_prometheus.Register(grpcServer)
	grpc_prometheus.EnableHandlingTimeHistogram()
	return grpcServer
}

// loadOrCreateKeyPair reads this node's signing identity from path,
// minting and persisting a fresh one on first run — otherwise a node's
// NodeID (and so its place in the statically configured cluster roster)
// would change every restart.
func loadOrCreateKeyPair(path string) (*identity.KeyPair, error) {
	b, err := os.ReadFile(path)
	if err == nil {
		return identity.LoadKeyPair(b)
	}
	if !os.IsNotExist(err) {
		return nil, err
	}

	kp, err := identity.NewKeyPair()
	if err != nil {
		return nil, err
	}
	b, err = kp.MarshalBinary()
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, b, 0o600); err != nil {
		return nil, err
	}
	return kp, nil
}
