package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/roach88/lumen/internal/graph"
)

// TrackInfo identifies a track's audio file on disk.
type TrackInfo struct {
	ID       int64
	FilePath string
	Hash     string
	Title    string
}

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("store: not found")

// TrackPathAndHash returns the audio file path and content hash for a track.
func (s *Store) TrackPathAndHash(ctx context.Context, trackID int64) (TrackInfo, error) {
	info := TrackInfo{ID: trackID}
	err := s.db.QueryRowContext(ctx,
		`SELECT file_path, track_hash, COALESCE(title, '') FROM tracks WHERE id = ?`, trackID,
	).Scan(&info.FilePath, &info.Hash, &info.Title)
	if errors.Is(err, sql.ErrNoRows) {
		return TrackInfo{}, fmt.Errorf("track %d: %w", trackID, ErrNotFound)
	}
	if err != nil {
		return TrackInfo{}, fmt.Errorf("fetch track %d: %w", trackID, err)
	}
	return info, nil
}

// InsertTrack adds a track and returns its id.
func (s *Store) InsertTrack(ctx context.Context, filePath, hash, title string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO tracks (file_path, track_hash, title) VALUES (?, ?, ?)`,
		filePath, hash, title)
	if err != nil {
		return 0, fmt.Errorf("insert track: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("insert track id: %w", err)
	}
	return id, nil
}

// DeleteTrack removes a track; beats, stems and roots cascade.
func (s *Store) DeleteTrack(ctx context.Context, trackID int64) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM tracks WHERE id = ?`, trackID); err != nil {
		return fmt.Errorf("delete track %d: %w", trackID, err)
	}
	return nil
}

// TrackBeats loads the stored beat grid for a track. Returns
// (nil, nil) when no analysis exists yet; callers treat that as
// "grid unavailable", not an error.
func (s *Store) TrackBeats(ctx context.Context, trackID int64) (*graph.BeatGrid, error) {
	var beatsJSON, downbeatsJSON string
	grid := graph.BeatGrid{}
	err := s.db.QueryRowContext(ctx, `
		SELECT beats, downbeats, bpm, downbeat_offset, beats_per_bar
		FROM track_beats WHERE track_id = ?`, trackID,
	).Scan(&beatsJSON, &downbeatsJSON, &grid.BPM, &grid.DownbeatOffset, &grid.BeatsPerBar)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fetch beats for track %d: %w", trackID, err)
	}
	if err := json.Unmarshal([]byte(beatsJSON), &grid.Beats); err != nil {
		return nil, fmt.Errorf("decode beats for track %d: %w", trackID, err)
	}
	if err := json.Unmarshal([]byte(downbeatsJSON), &grid.Downbeats); err != nil {
		return nil, fmt.Errorf("decode downbeats for track %d: %w", trackID, err)
	}
	return &grid, nil
}

// PutTrackBeats stores (or replaces) the beat grid for a track.
func (s *Store) PutTrackBeats(ctx context.Context, trackID int64, grid graph.BeatGrid) error {
	beatsJSON, err := json.Marshal(grid.Beats)
	if err != nil {
		return fmt.Errorf("encode beats: %w", err)
	}
	downbeatsJSON, err := json.Marshal(grid.Downbeats)
	if err != nil {
		return fmt.Errorf("encode downbeats: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO track_beats (track_id, beats, downbeats, bpm, downbeat_offset, beats_per_bar)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(track_id) DO UPDATE SET
			beats = excluded.beats,
			downbeats = excluded.downbeats,
			bpm = excluded.bpm,
			downbeat_offset = excluded.downbeat_offset,
			beats_per_bar = excluded.beats_per_bar`,
		trackID, string(beatsJSON), string(downbeatsJSON),
		grid.BPM, grid.DownbeatOffset, grid.BeatsPerBar)
	if err != nil {
		return fmt.Errorf("store beats for track %d: %w", trackID, err)
	}
	return nil
}

// TrackStems returns stem name -> audio file path for a track.
func (s *Store) TrackStems(ctx context.Context, trackID int64) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT stem_name, file_path FROM track_stems WHERE track_id = ?`, trackID)
	if err != nil {
		return nil, fmt.Errorf("fetch stems for track %d: %w", trackID, err)
	}
	defer rows.Close()

	stems := make(map[string]string)
	for rows.Next() {
		var name, path string
		if err := rows.Scan(&name, &path); err != nil {
			return nil, fmt.Errorf("scan stem row: %w", err)
		}
		stems[name] = path
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stems: %w", err)
	}
	return stems, nil
}

// PutTrackStem records where one preprocessed stem lives on disk.
func (s *Store) PutTrackStem(ctx context.Context, trackID int64, stemName, filePath string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO track_stems (track_id, stem_name, file_path) VALUES (?, ?, ?)
		ON CONFLICT(track_id, stem_name) DO UPDATE SET file_path = excluded.file_path`,
		trackID, stemName, filePath)
	if err != nil {
		return fmt.Errorf("store stem %q for track %d: %w", stemName, trackID, err)
	}
	return nil
}

// ChordSection is one labeled span of the harmonic analysis. Root is a
// pitch class 0..11 (C=0), nil for "no chord".
type ChordSection struct {
	Start float32 `json:"start"`
	End   float32 `json:"end"`
	Root  *uint8  `json:"root"`
	Label string  `json:"label"`
}

// RootAnalysis is the stored chord/root analysis for a track. LogitsPath
// points at the per-frame chroma logits artifact when available.
type RootAnalysis struct {
	Sections        []ChordSection
	LogitsPath      string
	FrameHopSeconds float32
}

// TrackRoots loads the chord analysis for a track. (nil, nil) when no
// analysis exists yet.
func (s *Store) TrackRoots(ctx context.Context, trackID int64) (*RootAnalysis, error) {
	var sectionsJSON string
	var logitsPath sql.NullString
	out := RootAnalysis{}
	err := s.db.QueryRowContext(ctx, `
		SELECT sections, logits_path, frame_hop_seconds
		FROM track_roots WHERE track_id = ?`, trackID,
	).Scan(&sectionsJSON, &logitsPath, &out.FrameHopSeconds)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fetch roots for track %d: %w", trackID, err)
	}
	if err := json.Unmarshal([]byte(sectionsJSON), &out.Sections); err != nil {
		return nil, fmt.Errorf("decode root sections for track %d: %w", trackID, err)
	}
	out.LogitsPath = logitsPath.String
	return &out, nil
}

// PutTrackRoots stores (or replaces) the chord analysis for a track.
func (s *Store) PutTrackRoots(ctx context.Context, trackID int64, analysis RootAnalysis) error {
	sectionsJSON, err := json.Marshal(analysis.Sections)
	if err != nil {
		return fmt.Errorf("encode root sections: %w", err)
	}
	var logits any
	if analysis.LogitsPath != "" {
		logits = analysis.LogitsPath
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO track_roots (track_id, sections, logits_path, frame_hop_seconds)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(track_id) DO UPDATE SET
			sections = excluded.sections,
			logits_path = excluded.logits_path,
			frame_hop_seconds = excluded.frame_hop_seconds`,
		trackID, string(sectionsJSON), logits, analysis.FrameHopSeconds)
	if err != nil {
		return fmt.Errorf("store roots for track %d: %w", trackID, err)
	}
	return nil
}
