package types

import "time"

// EventPhase is the lifecycle phase of a scheduled event, derived from
// wall-clock comparison against its start/end bounds. It is never stored.
type EventPhase string

const (
	PhaseUpcoming EventPhase = "upcoming"
	PhaseLive     EventPhase = "live"
	PhaseEnded    EventPhase = "ended"
)

// Phase computes the phase of an event at the given instant.
func Phase(now, start, end time.Time) EventPhase {
	switch {
	case now.Before(start):
		return PhaseUpcoming
	case now.After(end):
		return PhaseEnded
	default:
		return PhaseLive
	}
}

// Event is a scheduled live-stream session. Events are immutable after
// creation and removed by the cleanup engine once expired and their hosted
// media has been reclaimed.
type Event struct {
	ID           int       `json:"id"`
	Title        string    `json:"title"`
	Description  string    `json:"description,omitempty"`
	MediaURL     string    `json:"media_url"`
	PosterURL    string    `json:"poster_url"`
	CatalogueRef string    `json:"catalogue_ref,omitempty"`
	StartsAt     time.Time `json:"starts_at"`
	EndsAt       time.Time `json:"ends_at"`
	CreatedBy    int       `json:"created_by"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// PrivacyFlags controls which movie-state categories of a profile are
// visible to other users. Zero value means everything is private.
type PrivacyFlags struct {
	Watchlist bool `json:"watchlist"`
	Favorites bool `json:"favorites"`
	Watched   bool `json:"watched"`
	Rated     bool `json:"rated"`
}

// MovieRef is a catalogue-item reference inside a movie-state list.
type MovieRef struct {
	MovieID int       `json:"movie_id"`
	AddedAt time.Time `json:"added_at"`
}

// MovieRating carries a rating clamped to [0,10].
type MovieRating struct {
	MovieID int       `json:"movie_id"`
	Rating  float64   `json:"rating"`
	RatedAt time.Time `json:"rated_at"`
}

type UserProfile struct {
	ID          int           `json:"id"`
	Nickname    string        `json:"nickname"`
	DisplayName string        `json:"display_name,omitempty"`
	Bio         string        `json:"bio,omitempty"`
	Avatar      string        `json:"avatar,omitempty"`
	Privacy     PrivacyFlags  `json:"privacy"`
	Watchlist   []MovieRef    `json:"watchlist"`
	Favorites   []MovieRef    `json:"favorites"`
	Watched     []MovieRef    `json:"watched"`
	Rated       []MovieRating `json:"rated"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// Session is the single bearer-token slot for a user. Re-bootstrapping
// overwrites the token, implicitly invalidating the previous one.
type Session struct {
	UserID    int       `json:"user_id"`
	Token     string    `json:"token"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type GalleryItem struct {
	ID        int       `json:"id"`
	Title     string    `json:"title"`
	MediaURL  string    `json:"media_url"`
	PosterURL string    `json:"poster_url,omitempty"`
	CreatedBy int       `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
}

// GalleryReaction is a (user, item) pair, unique per pair. Used for both
// likes and favorites.
type GalleryReaction struct {
	UserID    int       `json:"user_id"`
	ItemID    int       `json:"item_id"`
	CreatedAt time.Time `json:"created_at"`
}

// GalleryComment references its author by id; the display identity is
// resolved through the author's profile at read time. Nickname and Avatar
// are only populated as a write-time snapshot when no profile matched the
// author (legacy clients without a synced profile).
type GalleryComment struct {
	ID        int       `json:"id"`
	ItemID    int       `json:"item_id"`
	AuthorID  int       `json:"author_id"`
	ParentID  int       `json:"parent_id,omitempty"`
	Text      string    `json:"text"`
	Nickname  string    `json:"nickname,omitempty"`
	Avatar    string    `json:"avatar,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
