// Package store provides SQLite-backed storage for the project database:
// tracks with their preprocessed analysis artifacts, and the venue
// fixture patch.
//
// Layout:
//   - tracks: audio file path + content hash per track
//   - track_beats: beat/downbeat grid from the beat worker
//   - track_stems: on-disk paths of separated stems
//   - track_roots: chord sections (+ optional chroma logits path)
//   - fixtures / fixture_heads / fixture_tags: the venue patch
//
// Beat lists and chord sections are small and stored as JSON text; large
// artifacts (stem audio, logits tensors) live on disk and only their
// paths are recorded.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Deleting a track cascades to its artifacts
package store
