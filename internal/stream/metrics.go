package stream

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// BlocksEmitted tracks blocks emitted to the output sink, per provider.
	BlocksEmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "blockstream_blocks_emitted_total",
			Help: "Total number of blocks emitted",
		},
		[]string{"provider"},
	)

	// RPCErrors tracks transport faults, per provider and call.
	RPCErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "blockstream_rpc_errors_total",
			Help: "Total number of RPC errors",
		},
		[]string{"provider", "method"},
	)

	// Rotations tracks provider failovers by cause.
	Rotations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "blockstream_provider_rotations_total",
			Help: "Total number of provider rotations",
		},
		[]string{"provider", "reason"},
	)

	// BlocksNotFound tracks blocks a provider positively reported missing.
	BlocksNotFound = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "blockstream_blocks_not_found_total",
			Help: "Total number of block-not-found responses",
		},
		[]string{"provider"},
	)

	// ChainLatestBlock tracks the latest block height reported by the
	// active provider.
	ChainLatestBlock = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "blockstream_chain_latest_block",
			Help: "Latest block height reported by the active provider",
		},
	)

	// StreamLastBlock tracks the stream cursor position.
	StreamLastBlock = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "blockstream_last_emitted_block",
			Help: "Highest block number emitted by the stream",
		},
	)
)

const (
	rotationReasonLatestFetch = "latest_fetch_failed"
	rotationReasonBlockFetch  = "block_fetch_failed"
	rotationReasonStall       = "stall"
)
