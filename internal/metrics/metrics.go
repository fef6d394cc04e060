package metrics

import (
	"fmt"
	"net/http"
	"sync/atomic"
)

var (
	SamplesReceived   atomic.Int64
	MalformedSamples  atomic.Int64
	QueueDrops        atomic.Int64
	ResolverAPIHits   atomic.Int64
	ResolverCacheHits atomic.Int64
	ResolverMisses    atomic.Int64
	SessionsOpened    atomic.Int64
	SessionsClosed    atomic.Int64
	SessionsForced    atomic.Int64
	FillsDetected     atomic.Int64
	FillsCombined     atomic.Int64
	WriteRetries      atomic.Int64
	WritesLost        atomic.Int64
)

func HandleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	fmt.Fprintf(w, "ingestion_samples_received_total %d\n", SamplesReceived.Load())
	fmt.Fprintf(w, "ingestion_malformed_samples_total %d\n", MalformedSamples.Load())
	fmt.Fprintf(w, "ingestion_queue_drops_total %d\n", QueueDrops.Load())
	fmt.Fprintf(w, "ingestion_resolver_api_hits_total %d\n", ResolverAPIHits.Load())
	fmt.Fprintf(w, "ingestion_resolver_cache_hits_total %d\n", ResolverCacheHits.Load())
	fmt.Fprintf(w, "ingestion_resolver_misses_total %d\n", ResolverMisses.Load())
	fmt.Fprintf(w, "ingestion_sessions_opened_total %d\n", SessionsOpened.Load())
	fmt.Fprintf(w, "ingestion_sessions_closed_total %d\n", SessionsClosed.Load())
	fmt.Fprintf(w, "ingestion_sessions_force_closed_total %d\n", SessionsForced.Load())
	fmt.Fprintf(w, "ingestion_fill_events_total %d\n", FillsDetected.Load())
	fmt.Fprintf(w, "ingestion_fill_events_combined_total %d\n", FillsCombined.Load())
	fmt.Fprintf(w, "ingestion_write_retries_total %d\n", WriteRetries.Load())
	fmt.Fprintf(w, "ingestion_writes_lost_total %d\n", WritesLost.Load())
}
