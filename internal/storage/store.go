package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/filmclub/cinema-service/internal/types"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrInvalidSchedule = errors.New("event end must be after start")
	ErrNicknameTaken   = errors.New("nickname already taken")
	ErrSelfFollow      = errors.New("cannot follow yourself")
	ErrListFull        = errors.New("list is full")
	ErrAvatarTooLarge  = errors.New("avatar exceeds size limit")
	ErrCommentTooLong  = errors.New("comment text too long")
)

const (
	// MaxListEntries bounds each per-user movie-state list.
	MaxListEntries = 1200
	// MaxCommentLen bounds gallery comment text, in runes.
	MaxCommentLen = 1000
	// MaxInlineAvatar bounds inline-encoded avatar images.
	MaxInlineAvatar = 2 << 20
	// MaxAvatarURL bounds avatar URLs.
	MaxAvatarURL = 2000
)

// Movie-state list categories accepted by ToggleListEntry.
const (
	ListWatchlist = "watchlist"
	ListFavorites = "favorites"
)

// Backend persists the serialized snapshot. Load returns ErrNoSnapshot when
// nothing has been written yet.
type Backend interface {
	Load() ([]byte, error)
	Save(data []byte) error
}

// ErrNoSnapshot is returned by backends when no snapshot exists yet.
var ErrNoSnapshot = errors.New("no snapshot")

// Store is the repository over the single durable snapshot. All mutations
// run under one lock and rewrite the snapshot in full; there are no partial
// writes and no cross-operation transactions.
type Store struct {
	mu      sync.Mutex
	backend Backend
	snap    snapshot
	now     func() time.Time
}

// Open loads the last durable snapshot from the backend. An absent or
// corrupt snapshot degrades to an empty store rather than failing startup.
func Open(backend Backend) (*Store, error) {
	s := &Store{
		backend: backend,
		snap:    emptySnapshot(),
		now:     func() time.Time { return time.Now().UTC() },
	}

	data, err := backend.Load()
	switch {
	case errors.Is(err, ErrNoSnapshot):
		return s, nil
	case err != nil:
		return nil, fmt.Errorf("load snapshot: %w", err)
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		slog.Warn("snapshot is corrupt, starting empty", slog.String("error", err.Error()))
		return s, nil
	}
	snap.normalize()
	s.snap = snap

	return s, nil
}

// persist serializes the snapshot and hands it to the backend. Callers must
// hold s.mu.
func (s *Store) persist() error {
	data, err := json.MarshalIndent(s.snap, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	if err := s.backend.Save(data); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

func userKey(id int) string {
	return strconv.Itoa(id)
}

// --- events ---

// CreateEvent assigns an id and timestamps and persists the event.
func (s *Store) CreateEvent(ev types.Event) (types.Event, error) {
	if !ev.EndsAt.After(ev.StartsAt) {
		return types.Event{}, ErrInvalidSchedule
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	ev.ID = s.snap.IDSeq
	ev.CreatedAt = now
	ev.UpdatedAt = now
	s.snap.IDSeq++
	s.snap.Events = append(s.snap.Events, ev)

	if err := s.persist(); err != nil {
		return types.Event{}, err
	}
	return ev, nil
}

// Events returns all stored events.
func (s *Store) Events() []types.Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	return slices.Clone(s.snap.Events)
}

// CurrentEvent selects the event to surface as "current": the live event
// with the latest start, else the nearest upcoming event, else the most
// recently ended one.
func (s *Store) CurrentEvent(now time.Time) (types.Event, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var live, upcoming, past *types.Event
	for i := range s.snap.Events {
		ev := &s.snap.Events[i]
		switch types.Phase(now, ev.StartsAt, ev.EndsAt) {
		case types.PhaseLive:
			if live == nil || ev.StartsAt.After(live.StartsAt) {
				live = ev
			}
		case types.PhaseUpcoming:
			if upcoming == nil || ev.StartsAt.Before(upcoming.StartsAt) {
				upcoming = ev
			}
		case types.PhaseEnded:
			if past == nil || ev.EndsAt.After(past.EndsAt) {
				past = ev
			}
		}
	}

	switch {
	case live != nil:
		return *live, true
	case upcoming != nil:
		return *upcoming, true
	case past != nil:
		return *past, true
	}
	return types.Event{}, false
}

// RemoveEvents drops the given event ids and persists once. Ids that do not
// exist are ignored. Returns the number of events removed; nothing is
// written when that number is zero.
func (s *Store) RemoveEvents(ids []int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	drop := make(map[int]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}

	kept := s.snap.Events[:0]
	removed := 0
	for _, ev := range s.snap.Events {
		if _, ok := drop[ev.ID]; ok {
			removed++
			continue
		}
		kept = append(kept, ev)
	}
	if removed == 0 {
		return 0, nil
	}
	s.snap.Events = kept

	if err := s.persist(); err != nil {
		return 0, err
	}
	return removed, nil
}

// --- profiles ---

func (s *Store) Profile(id int) (types.UserProfile, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.snap.Users[userKey(id)]
	return p, ok
}

// ProfileByNickname matches case-insensitively.
func (s *Store) ProfileByNickname(nickname string) (types.UserProfile, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range s.snap.Users {
		if strings.EqualFold(p.Nickname, nickname) {
			return p, true
		}
	}
	return types.UserProfile{}, false
}

// UpsertProfile creates or updates the identity fields of a profile. Lists,
// privacy flags and the creation timestamp of an existing profile are
// preserved.
func (s *Store) UpsertProfile(id int, nickname, displayName, bio, avatar string) (types.UserProfile, error) {
	if err := validateAvatar(avatar); err != nil {
		return types.UserProfile{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, other := range s.snap.Users {
		if other.ID != id && strings.EqualFold(other.Nickname, nickname) {
			return types.UserProfile{}, ErrNicknameTaken
		}
	}

	now := s.now()
	p, ok := s.snap.Users[userKey(id)]
	if !ok {
		p = types.UserProfile{
			ID:        id,
			Watchlist: []types.MovieRef{},
			Favorites: []types.MovieRef{},
			Watched:   []types.MovieRef{},
			Rated:     []types.MovieRating{},
			CreatedAt: now,
		}
	}
	p.Nickname = nickname
	p.DisplayName = displayName
	p.Bio = bio
	p.Avatar = avatar
	p.UpdatedAt = now
	s.snap.Users[userKey(id)] = p

	if err := s.persist(); err != nil {
		return types.UserProfile{}, err
	}
	return p, nil
}

func validateAvatar(avatar string) error {
	if avatar == "" {
		return nil
	}
	if strings.HasPrefix(avatar, "data:") {
		if len(avatar) > MaxInlineAvatar {
			return ErrAvatarTooLarge
		}
		return nil
	}
	if len(avatar) > MaxAvatarURL {
		return ErrAvatarTooLarge
	}
	return nil
}

func (s *Store) SetPrivacy(id int, flags types.PrivacyFlags) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.snap.Users[userKey(id)]
	if !ok {
		return ErrNotFound
	}
	p.Privacy = flags
	p.UpdatedAt = s.now()
	s.snap.Users[userKey(id)] = p

	return s.persist()
}

// --- movie state ---

// ToggleListEntry flips membership of a catalogue item in the user's
// watchlist or favorites list and reports the resulting membership.
func (s *Store) ToggleListEntry(userID int, category string, movieID int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.snap.Users[userKey(userID)]
	if !ok {
		return false, ErrNotFound
	}

	var list *[]types.MovieRef
	switch category {
	case ListWatchlist:
		list = &p.Watchlist
	case ListFavorites:
		list = &p.Favorites
	default:
		return false, fmt.Errorf("unknown list category %q", category)
	}

	member := false
	for i, ref := range *list {
		if ref.MovieID == movieID {
			*list = slices.Delete(*list, i, i+1)
			member = true
			break
		}
	}
	if !member {
		if len(*list) >= MaxListEntries {
			return false, ErrListFull
		}
		*list = append(*list, types.MovieRef{MovieID: movieID, AddedAt: s.now()})
	}

	p.UpdatedAt = s.now()
	s.snap.Users[userKey(userID)] = p

	if err := s.persist(); err != nil {
		return false, err
	}
	return !member, nil
}

// SetWatched marks or unmarks a catalogue item as watched.
func (s *Store) SetWatched(userID, movieID int, watched bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.snap.Users[userKey(userID)]
	if !ok {
		return ErrNotFound
	}

	idx := -1
	for i, ref := range p.Watched {
		if ref.MovieID == movieID {
			idx = i
			break
		}
	}
	switch {
	case watched && idx == -1:
		if len(p.Watched) >= MaxListEntries {
			return ErrListFull
		}
		p.Watched = append(p.Watched, types.MovieRef{MovieID: movieID, AddedAt: s.now()})
	case !watched && idx != -1:
		p.Watched = slices.Delete(p.Watched, idx, idx+1)
	default:
		return nil
	}

	p.UpdatedAt = s.now()
	s.snap.Users[userKey(userID)] = p

	return s.persist()
}

// SetRating stores a rating for a catalogue item, clamped into [0,10].
func (s *Store) SetRating(userID, movieID int, rating float64) (float64, error) {
	rating = min(max(rating, 0), 10)

	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.snap.Users[userKey(userID)]
	if !ok {
		return 0, ErrNotFound
	}

	found := false
	for i, r := range p.Rated {
		if r.MovieID == movieID {
			p.Rated[i].Rating = rating
			p.Rated[i].RatedAt = s.now()
			found = true
			break
		}
	}
	if !found {
		if len(p.Rated) >= MaxListEntries {
			return 0, ErrListFull
		}
		p.Rated = append(p.Rated, types.MovieRating{MovieID: movieID, Rating: rating, RatedAt: s.now()})
	}

	p.UpdatedAt = s.now()
	s.snap.Users[userKey(userID)] = p

	if err := s.persist(); err != nil {
		return 0, err
	}
	return rating, nil
}

// --- sessions ---

// SetSession overwrites the user's single session slot.
func (s *Store) SetSession(userID int, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	sess, ok := s.snap.Sessions[userKey(userID)]
	if !ok {
		sess = types.Session{UserID: userID, CreatedAt: now}
	}
	sess.Token = token
	sess.UpdatedAt = now
	s.snap.Sessions[userKey(userID)] = sess

	return s.persist()
}

func (s *Store) Session(userID int) (types.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.snap.Sessions[userKey(userID)]
	return sess, ok
}

// --- follows ---

// Follow records a directed follower->followee edge. The followee must have
// a profile; following yourself is rejected. Re-following is a no-op.
func (s *Store) Follow(followerID, followeeID int) error {
	if followerID == followeeID {
		return ErrSelfFollow
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.snap.Users[userKey(followeeID)]; !ok {
		return ErrNotFound
	}

	edges := s.snap.Follows[userKey(followerID)]
	if slices.Contains(edges, followeeID) {
		return nil
	}
	s.snap.Follows[userKey(followerID)] = append(edges, followeeID)

	return s.persist()
}

func (s *Store) Unfollow(followerID, followeeID int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	edges := s.snap.Follows[userKey(followerID)]
	i := slices.Index(edges, followeeID)
	if i == -1 {
		return ErrNotFound
	}
	s.snap.Follows[userKey(followerID)] = slices.Delete(edges, i, i+1)

	return s.persist()
}

func (s *Store) Followees(followerID int) []int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return slices.Clone(s.snap.Follows[userKey(followerID)])
}

// --- gallery ---

// ItemView is a gallery item with its reaction counts.
type ItemView struct {
	types.GalleryItem
	Likes     int `json:"likes"`
	Favorites int `json:"favorites"`
}

// CommentView is a gallery comment with its display identity resolved.
type CommentView struct {
	types.GalleryComment
	AuthorNickname string `json:"author_nickname"`
	AuthorAvatar   string `json:"author_avatar,omitempty"`
}

func (s *Store) AddGalleryItem(item types.GalleryItem) (types.GalleryItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item.ID = s.snap.GalleryIDSeq
	item.CreatedAt = s.now()
	s.snap.GalleryIDSeq++
	s.snap.Gallery = append(s.snap.Gallery, item)

	if err := s.persist(); err != nil {
		return types.GalleryItem{}, err
	}
	return item, nil
}

func (s *Store) GalleryItems() []ItemView {
	s.mu.Lock()
	defer s.mu.Unlock()

	views := make([]ItemView, 0, len(s.snap.Gallery))
	for _, item := range s.snap.Gallery {
		view := ItemView{GalleryItem: item}
		for _, r := range s.snap.GalleryLikes {
			if r.ItemID == item.ID {
				view.Likes++
			}
		}
		for _, r := range s.snap.GalleryFavorites {
			if r.ItemID == item.ID {
				view.Favorites++
			}
		}
		views = append(views, view)
	}
	return views
}

func (s *Store) galleryItemExists(itemID int) bool {
	for _, item := range s.snap.Gallery {
		if item.ID == itemID {
			return true
		}
	}
	return false
}

// ToggleGalleryLike flips the (user, item) like pair and reports the
// resulting state.
func (s *Store) ToggleGalleryLike(userID, itemID int) (bool, error) {
	return s.toggleReaction(userID, itemID, func(snap *snapshot) *[]types.GalleryReaction {
		return &snap.GalleryLikes
	})
}

// ToggleGalleryFavorite flips the (user, item) favorite pair and reports
// the resulting state.
func (s *Store) ToggleGalleryFavorite(userID, itemID int) (bool, error) {
	return s.toggleReaction(userID, itemID, func(snap *snapshot) *[]types.GalleryReaction {
		return &snap.GalleryFavorites
	})
}

func (s *Store) toggleReaction(userID, itemID int, pick func(*snapshot) *[]types.GalleryReaction) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.galleryItemExists(itemID) {
		return false, ErrNotFound
	}

	set := pick(&s.snap)
	for i, r := range *set {
		if r.UserID == userID && r.ItemID == itemID {
			*set = slices.Delete(*set, i, i+1)
			if err := s.persist(); err != nil {
				return false, err
			}
			return false, nil
		}
	}

	*set = append(*set, types.GalleryReaction{UserID: userID, ItemID: itemID, CreatedAt: s.now()})
	if err := s.persist(); err != nil {
		return false, err
	}
	return true, nil
}

// AddGalleryComment stores a comment. When the author has a synced profile
// the display identity is resolved at read time; otherwise the supplied
// nickname and avatar are snapshotted on the comment itself.
func (s *Store) AddGalleryComment(itemID, authorID, parentID int, text, fallbackNickname, fallbackAvatar string) (types.GalleryComment, error) {
	if len([]rune(text)) > MaxCommentLen {
		return types.GalleryComment{}, ErrCommentTooLong
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.galleryItemExists(itemID) {
		return types.GalleryComment{}, ErrNotFound
	}
	if parentID != 0 {
		parentOK := false
		for _, c := range s.snap.GalleryComments {
			if c.ID == parentID && c.ItemID == itemID {
				parentOK = true
				break
			}
		}
		if !parentOK {
			return types.GalleryComment{}, ErrNotFound
		}
	}

	comment := types.GalleryComment{
		ID:        s.snap.CommentIDSeq,
		ItemID:    itemID,
		AuthorID:  authorID,
		ParentID:  parentID,
		Text:      text,
		CreatedAt: s.now(),
	}
	if _, ok := s.snap.Users[userKey(authorID)]; !ok {
		comment.Nickname = fallbackNickname
		comment.Avatar = fallbackAvatar
	}
	s.snap.CommentIDSeq++
	s.snap.GalleryComments = append(s.snap.GalleryComments, comment)

	if err := s.persist(); err != nil {
		return types.GalleryComment{}, err
	}
	return comment, nil
}

// GalleryComments returns the comments of an item, oldest first, with the
// author identity resolved through the current profile where one exists.
func (s *Store) GalleryComments(itemID int) ([]CommentView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.galleryItemExists(itemID) {
		return nil, ErrNotFound
	}

	views := []CommentView{}
	for _, c := range s.snap.GalleryComments {
		if c.ItemID != itemID {
			continue
		}
		view := CommentView{GalleryComment: c}
		if p, ok := s.snap.Users[userKey(c.AuthorID)]; ok {
			view.AuthorNickname = p.Nickname
			view.AuthorAvatar = p.Avatar
		} else {
			view.AuthorNickname = c.Nickname
			view.AuthorAvatar = c.Avatar
		}
		views = append(views, view)
	}
	return views, nil
}
