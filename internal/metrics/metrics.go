////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                            //
////////////////////////////////////////////////////////////////////////////////

// Package metrics is the node's Prometheus registry and exporter,
// generalizing drand's internal/metrics package (one process-wide
// registry, a handful of named collectors, one promhttp listener) from
// drand's beacon/group surface to nilVM's compute/preprocessing/payment
// surface.
package metrics

import (
	"net"
	"net/http"

	jww "github.com/spf13/jwalterweatherman"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry is the process-wide collector registry every metric in
	// this package is registered against.
	Registry = prometheus.NewRegistry()

	// ComputeInvocations counts InvokeCompute calls by outcome: the
	// admission rejections (rejected_capacity, rejected_audit,
	// rejected_preprocessing) and, once a run ends, succeeded, canceled
	// or failed.
	ComputeInvocations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "nilvm_compute_invocations_total",
		Help: "Number of InvokeCompute calls received, by outcome.",
	}, []string{"outcome"})

	// ComputeInFlight is the number of ComputeInstances admitted and not
	// yet finished running.
	ComputeInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "nilvm_compute_in_flight",
		Help: "Number of compute instances admitted and not yet finished.",
	})

	// PreprocessingGenerated counts generated preprocessing offsets by
	// element (spec.md §4.5).
	PreprocessingGenerated = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "nilvm_preprocessing_generated_total",
		Help: "Number of preprocessing offsets generated, by element.",
	}, []string{"element"})

	// PreprocessingPoolSize is each element pool's current unused offset
	// count (generated minus reserved).
	PreprocessingPoolSize = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "nilvm_preprocessing_pool_size",
		Help: "Unused preprocessing offsets available per element.",
	}, []string{"element"})

	// AccountBalance mirrors one account's current balance, labeled by
	// a short account tag so a handful of watched accounts can be
	// dashboarded without scraping every account in storage.
	AccountBalance = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "nilvm_account_balance",
		Help: "Current balance of a watched account, in minor payment units.",
	}, []string{"account"})

	bound = false
)

func bind() {
	if bound {
		return
	}
	bound = true
	Registry.MustRegister(
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		ComputeInvocations,
		ComputeInFlight,
		PreprocessingGenerated,
		PreprocessingPoolSize,
		AccountBalance,
	)
}

// Start binds every collector and serves /metrics on addr, the way
// drand's metrics.Start does. The caller owns the returned listener's
// lifetime: closing it stops the exporter.
func Start(addr string) (net.Listener, error) {
	bind()
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(Registry, promhttp.HandlerOpts{Registry: Registry}))
	srv := &http.Server{Handler: mux}
	go func() {
		jww.WARN.Printf("metrics: listener on %s finished: %+v", addr, srv.Serve(l))
	}()
	return l, nil
}
