// Package testsupport holds shared helpers for package tests.
package testsupport

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/google/uuid"

	"github.com/makeasinger/showrunner/internal/model"
	"github.com/makeasinger/showrunner/internal/store"
)

// NewStore opens a store in a temp directory and registers cleanup.
func NewStore(t testing.TB) *store.Store {
	t.Helper()

	st, err := store.Open(filepath.Join(t.TempDir(), "showrunner.db"))
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() {
		st.Close()
	})
	return st
}

// SampleConcept returns a concept with three title options and six song titles.
func SampleConcept() *model.Concept {
	return &model.Concept{
		TitleOptions: []string{"The Lighthouse Keeper", "Salt and Signal", "Beacon"},
		Setting:      "A storm-battered lighthouse on a northern coast",
		Characters: []model.Character{
			{Name: "Mara", Role: "keeper", Description: "A stubborn keeper who refuses to leave"},
			{Name: "Tobin", Role: "sailor", Description: "A lost sailor guided by her light"},
		},
		Tone:       "bittersweet",
		Themes:     []string{"duty", "loneliness", "rescue"},
		SongTitles: []string{"Light the Lamp", "Storm Warning", "Ship in the Dark", "Two Voices", "The Long Night", "Morning Tide"},
	}
}

// SeedProject inserts a project in status with an optional concept.
func SeedProject(t testing.TB, st *store.Store, status model.ProjectStatus, musicalType model.MusicalType, concept *model.Concept) *model.Project {
	t.Helper()

	p := &model.Project{
		ID:          uuid.NewString(),
		UserID:      "user-1",
		Idea:        "A lighthouse keeper falls for a lost sailor",
		MusicalType: musicalType,
		Status:      status,
	}
	if concept != nil {
		raw, err := json.Marshal(concept)
		if err != nil {
			t.Fatalf("marshal concept: %v", err)
		}
		p.Concept = raw
	}
	if err := st.CreateProject(context.Background(), p); err != nil {
		t.Fatalf("CreateProject: %v", err)
	}
	return p
}

// SeedTracks inserts count pending placeholder tracks.
func SeedTracks(t testing.TB, st *store.Store, projectID string, count int) {
	t.Helper()

	if _, err := st.CreatePlaceholderTracks(context.Background(), projectID, count, nil); err != nil {
		t.Fatalf("CreatePlaceholderTracks: %v", err)
	}
}

// SeedAlbum inserts an album for a project and returns it.
func SeedAlbum(t testing.TB, st *store.Store, projectID string) *model.Album {
	t.Helper()

	album, err := st.CreateAlbum(context.Background(), &model.Album{
		ProjectID: projectID,
		ShareID:   uuid.NewString(),
		Title:     "The Lighthouse Keeper",
		Synopsis:  "A keeper and a sailor find each other in a storm.",
	})
	if err != nil {
		t.Fatalf("CreateAlbum: %v", err)
	}
	return album
}

// MustTrack loads a track or fails the test.
func MustTrack(t testing.TB, st *store.Store, projectID string, trackNumber int) *model.Track {
	t.Helper()

	track, err := st.GetTrack(context.Background(), projectID, trackNumber)
	if err != nil {
		t.Fatalf("GetTrack: %v", err)
	}
	if track == nil {
		t.Fatalf("track %d of %s not found", trackNumber, projectID)
	}
	return track
}

// MustProject loads a project or fails the test.
func MustProject(t testing.TB, st *store.Store, projectID string) *model.Project {
	t.Helper()

	p, err := st.GetProject(context.Background(), projectID)
	if err != nil {
		t.Fatalf("GetProject: %v", err)
	}
	if p == nil {
		t.Fatalf("project %s not found", projectID)
	}
	return p
}
