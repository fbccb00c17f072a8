// Package tasks runs long playlist operations against the preference graph with progress reporting.
//
// # Ingestion
//
// [IngestEngine.IngestPlaylists] exports playlists from the configured [services.Service] with a
// rate-limited worker pool, enriches every track with audio features and artist genres through
// [services.Enricher], and feeds the result to the graph one playlist at a time.
//
// Playlist order is kept, so consecutive tracks by one artist get SAME_ARTIST edges and tracks in
// the same audio-feature bucket are chained with SIMILAR. Playlist tracks are not marked visited:
// NEXT edges only come from real listening sessions.
//
// # Progress Reporting
//
// Operations send [ProgressUpdate] values on an optional channel. Sends use select with default so a
// slow or absent reader never blocks ingestion.
//
// Enrichment failures are logged and the playlist is ingested without the missing metadata.
package tasks
