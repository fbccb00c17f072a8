// Package recommend turns the listening history and preference graph into vibes.
//
// [Orchestrator.VibeOptions], [Orchestrator.RescueVibe] and [Orchestrator.ExpandVibe] ask the AI
// suggester first and validate its picks against Spotify. When suggestions are unavailable they fall
// back to graph traversal. None of them return errors; an empty result means nothing could be found.
package recommend
