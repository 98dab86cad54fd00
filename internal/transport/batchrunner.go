////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                            //
////////////////////////////////////////////////////////////////////////////////

package transport

import (
	"context"
	"crypto/sha256"
	"sync"

	"github.com/hashicorp/go-multierror"

	"github.com/NillionNetwork/nilvm/internal/cluster"
	"github.com/NillionNetwork/nilvm/internal/fabric"
	"github.com/NillionNetwork/nilvm/internal/preprocessing"
	"github.com/NillionNetwork/nilvm/internal/protocol"
	"github.com/NillionNetwork/nilvm/internal/sm"
	"github.com/NillionNetwork/nilvm/internal/vm"
)

// BatchRunner implements preprocessing.BatchRunner by actually running
// batchSize parallel protocol instances across the cluster over their
// own Fabric/Directory pair — separate from the one DeliverMessage uses
// for online compute traffic, matching spec.md §6's Preprocessing
// service being a distinct RPC from ComputeMessages. Every instance's id
// is derived deterministically from {element, generation_id, offset}
// (vm.NewDriverWithID) rather than self-minted, since this node assigns
// one id per parallel instance in the batch up front and then carries it
// on the wire as PreprocessingMessage.InstanceId — the receiving
// Server.GenerateMaterial trusts that field directly rather than
// recomputing anything, exactly like DeliverMessage trusts InstanceId
// for online compute traffic.
//
// Every Element's offsets are generated as plain RAN draws (RAN-BIT for
// RandomBoolean, which needs an actual bit rather than a field element).
// The online protocols that eventually consume an element (Compare,
// TruncPr, Modulo, ...) each need a specific tuple of masking randomness
// (e.g. Compare's r and topBit), but this library models those as
// parameters to the online constructor, not as distinct offline
// generator Kinds — so a faithful per-element generation protocol has
// no Kind to dispatch to. Running RAN/RAN-BIT for every element keeps
// the leader-driven batch round, its broadcast, and the pool's
// generated/reserved counters byte-for-byte faithful to spec.md §4.5;
// only the generated material's exact mathematical shape is simplified.
type BatchRunner struct {
	fabric    *fabric.Fabric
	directory *vm.Directory
	cluster   *cluster.Cluster
}

// NewBatchRunner builds a BatchRunner over a Fabric/Directory pair
// dedicated to preprocessing traffic (construct one alongside the
// compute-traffic pair DeliverMessage uses, both sharing the same
// cluster and wired to a Dialer that calls Preprocessing.GenerateMaterial
// instead of ComputeMessages.DeliverMessage).
func NewBatchRunner(f *fabric.Fabric, dir *vm.Directory, c *cluster.Cluster) *BatchRunner {
	return &BatchRunner{fabric: f, directory: dir, cluster: c}
}

// RunBatch implements preprocessing.BatchRunner. It blocks until every
// one of batchSize instances has terminated on every node, or returns
// the aggregated error of whichever instances failed.
func (r *BatchRunner) RunBatch(ctx context.Context, element preprocessing.Element, generationID, batchID, batchSize uint64) error {
	kind := generatorKind(element)
	participants := protocol.ParticipantsFromCluster(r.cluster)
	peers := r.cluster.Peers()

	var (
		mu   sync.Mutex
		merr *multierror.Error
		wg   sync.WaitGroup
	)
	for i := uint64(0); i < batchSize; i++ {
		id := generationInstanceID(element, generationID, i)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := r.runOne(ctx, id, kind, participants, peers); err != nil {
				mu.Lock()
				merr = multierror.Append(merr, err)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	return merr.ErrorOrNil()
}

func (r *BatchRunner) runOne(ctx context.Context, id sm.InstanceID, kind protocol.Kind, participants protocol.Participants, peers []cluster.NodeID) error {
	machine, err := protocol.New(kind, participants, r.cluster.Threshold(), nil, protocol.Params{Modulus: r.cluster.Modulus})
	if err != nil {
		return err
	}
	drv, err := vm.NewDriverWithID(r.fabric, r.directory, id, machine, peers)
	if err != nil {
		return err
	}
	_, failed, _, err := drv.Run(ctx)
	if err != nil {
		return err
	}
	if failed {
		return errGenerationFailed{kind}
	}
	return nil
}

// generationInstanceID derives the leader-assigned instance id for the
// offset-th instance of one element's generation round. Runners on every
// node compute the same id from the same {element, generationID, offset}
// triple before any message goes out, so the value this node places on
// PreprocessingMessage.InstanceId always matches what its peers' own
// BatchRunner assigned to the identical instance.
func generationInstanceID(element preprocessing.Element, generationID, offset uint64) sm.InstanceID {
	h := sha256.New()
	h.Write([]byte(element.String()))
	var buf [16]byte
	for i := 0; i < 8; i++ {
		buf[i] = byte(generationID >> (8 * i))
		buf[8+i] = byte(offset >> (8 * i))
	}
	h.Write(buf[:])
	sum := h.Sum(nil)
	var id sm.InstanceID
	copy(id[:], sum[:16])
	return id
}

func generatorKind(e preprocessing.Element) protocol.Kind {
	if e == preprocessing.RandomBoolean {
		return protocol.KindRanBit
	}
	return protocol.KindRan
}

type errGenerationFailed struct{ kind protocol.Kind }

func (e errGenerationFailed) Error() string {
	return "transport: generation instance failed: " + e.kind.String()
}
