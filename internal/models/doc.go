// Package models defines domain types shared by the graph store, validation pipeline and orchestrator.
//
// The package contains two categories of types:
//
// 1. Preference graph: typed vertices and weighted edges
//   - [Node] : SONG, ARTIST, GENRE, VIBE or AUDIO_FEATURE vertex with play statistics
//   - [Attributes] : typed attribute record, shallow-merged when late data arrives
//   - [Edge] : weighted relation, unique per (source, target, type) and reinforced by [EdgeReinforcement]
//   - [Snapshot], [Neighbor], [GenreStat], [TasteProfile] : read models
//
// 2. Recommendation pipeline: values flowing from the AI provider to playback
//   - [RawSuggestion] : untrusted AI output
//   - [Candidate] : search provider result
//   - [ValidatedTrack] : suggestion confirmed with an external id
//   - [VibeOption], [VibeResult] : orchestrator responses
package models
