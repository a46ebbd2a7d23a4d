package storage

import (
	"github.com/filmclub/cinema-service/internal/types"
)

// snapshot is the single JSON document holding all durable state. It is
// loaded once at startup and rewritten in full on every mutation.
type snapshot struct {
	IDSeq            int                          `json:"idSeq"`
	Events           []types.Event                `json:"events"`
	Users            map[string]types.UserProfile `json:"users"`
	Sessions         map[string]types.Session     `json:"sessions"`
	Follows          map[string][]int             `json:"follows"`
	GalleryIDSeq     int                          `json:"galleryIdSeq"`
	CommentIDSeq     int                          `json:"commentIdSeq"`
	Gallery          []types.GalleryItem          `json:"gallery"`
	GalleryLikes     []types.GalleryReaction      `json:"galleryLikes"`
	GalleryFavorites []types.GalleryReaction      `json:"galleryFavorites"`
	GalleryComments  []types.GalleryComment       `json:"galleryComments"`
}

func emptySnapshot() snapshot {
	return snapshot{
		IDSeq:            1,
		Events:           []types.Event{},
		Users:            map[string]types.UserProfile{},
		Sessions:         map[string]types.Session{},
		Follows:          map[string][]int{},
		GalleryIDSeq:     1,
		CommentIDSeq:     1,
		Gallery:          []types.GalleryItem{},
		GalleryLikes:     []types.GalleryReaction{},
		GalleryFavorites: []types.GalleryReaction{},
		GalleryComments:  []types.GalleryComment{},
	}
}

// normalize repairs a loaded snapshot: missing collections become empty and
// sequence counters self-heal by scanning existing rows. This keeps the
// store tolerant of hand-edited or partially written files.
func (s *snapshot) normalize() {
	if s.Events == nil {
		s.Events = []types.Event{}
	}
	if s.Users == nil {
		s.Users = map[string]types.UserProfile{}
	}
	if s.Sessions == nil {
		s.Sessions = map[string]types.Session{}
	}
	if s.Follows == nil {
		s.Follows = map[string][]int{}
	}
	if s.Gallery == nil {
		s.Gallery = []types.GalleryItem{}
	}
	if s.GalleryLikes == nil {
		s.GalleryLikes = []types.GalleryReaction{}
	}
	if s.GalleryFavorites == nil {
		s.GalleryFavorites = []types.GalleryReaction{}
	}
	if s.GalleryComments == nil {
		s.GalleryComments = []types.GalleryComment{}
	}

	maxEvent := 0
	for _, e := range s.Events {
		if e.ID > maxEvent {
			maxEvent = e.ID
		}
	}
	if s.IDSeq <= maxEvent {
		s.IDSeq = maxEvent + 1
	}

	maxItem := 0
	for _, g := range s.Gallery {
		if g.ID > maxItem {
			maxItem = g.ID
		}
	}
	if s.GalleryIDSeq <= maxItem {
		s.GalleryIDSeq = maxItem + 1
	}

	maxComment := 0
	for _, c := range s.GalleryComments {
		if c.ID > maxComment {
			maxComment = c.ID
		}
	}
	if s.CommentIDSeq <= maxComment {
		s.CommentIDSeq = maxComment + 1
	}
}
