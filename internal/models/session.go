package models

import (
	"time"
)

// SessionStatus defines the lifecycle phase of a session.
// Statuses only ever advance forward; a session never regresses.
type SessionStatus string

const (
	StatusRecruiting         SessionStatus = "recruiting"
	StatusCollectingProfiles SessionStatus = "collecting_profiles"
	StatusReadyForQuiz       SessionStatus = "ready_for_quiz"
	StatusQuizActive         SessionStatus = "quiz_active"
	StatusResults            SessionStatus = "results"
)

// statusOrder maps each status to its position in the lifecycle.
var statusOrder = map[SessionStatus]int{
	StatusRecruiting:         0,
	StatusCollectingProfiles: 1,
	StatusReadyForQuiz:       2,
	StatusQuizActive:         3,
	StatusResults:            4,
}

// Rank returns the position of the status in the lifecycle order,
// or -1 for an unknown status.
func (s SessionStatus) Rank() int {
	if r, ok := statusOrder[s]; ok {
		return r
	}
	return -1
}

// Valid reports whether s is a known session status.
func (s SessionStatus) Valid() bool {
	_, ok := statusOrder[s]
	return ok
}

// ViewingMode defines how the group intends to watch.
type ViewingMode string

const (
	ModeSolo   ViewingMode = "solo"
	ModePaired ViewingMode = "paired"
	ModeGroup  ViewingMode = "group"
)

// Valid reports whether m is a known viewing mode.
func (m ViewingMode) Valid() bool {
	switch m {
	case ModeSolo, ModePaired, ModeGroup:
		return true
	}
	return false
}

// Role identifies what a device is allowed to do within a session.
type Role string

const (
	RoleAdmin       Role = "admin"
	RoleParticipant Role = "participant"
)

// ProfileCard is a condensed social profile used for the admin's own card
// and for enriched participant display data.
type ProfileCard struct {
	Username       string   `json:"username"`
	DisplayName    string   `json:"display_name,omitempty"`
	AvatarURL      string   `json:"avatar_url,omitempty"`
	FavoriteGenres []string `json:"favorite_genres,omitempty"`
	Summary        string   `json:"summary,omitempty"`
}

// GroupAnalysis holds the aggregate artifacts produced once every
// participant's taste profile has been collected.
type GroupAnalysis struct {
	Description string    `json:"description"`
	GeneratedAt time.Time `json:"generated_at"`
}

// Movie is a single recommendation inside a result batch.
type Movie struct {
	ID        string  `json:"id"`
	Title     string  `json:"title"`
	Year      int     `json:"year,omitempty"`
	PosterURL string  `json:"poster_url,omitempty"`
	Rating    float64 `json:"rating,omitempty"`
	Overview  string  `json:"overview,omitempty"`
}

// MovieBatch is one ordered batch of movie results for the group.
type MovieBatch struct {
	ID        string    `json:"id"`
	Movies    []Movie   `json:"movies"`
	CreatedAt time.Time `json:"created_at"`
}

// Session is the authoritative shared state for one run of the group
// activity. It is mutated only through the session store; clients treat
// every copy they hold as a read-only snapshot.
type Session struct {
	Code          string         `json:"code"`
	AdminUserID   string         `json:"admin_user_id"`
	Status        SessionStatus  `json:"status"`
	Platforms     []string       `json:"platforms,omitempty"`
	Mode          ViewingMode    `json:"mode,omitempty"`
	AdminProfile  *ProfileCard   `json:"admin_profile,omitempty"`
	Profiles      []Profile      `json:"profiles"`
	GroupAnalysis *GroupAnalysis `json:"group_analysis,omitempty"`
	MovieBatches  []MovieBatch   `json:"movie_batches,omitempty"`
	FinalVerdict  bool           `json:"final_verdict"`
	ExpiresAt     time.Time      `json:"expires_at"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// ProfileFor returns the profile belonging to userID, or nil.
func (s *Session) ProfileFor(userID string) *Profile {
	if s == nil {
		return nil
	}
	for i := range s.Profiles {
		if s.Profiles[i].UserID == userID {
			return &s.Profiles[i]
		}
	}
	return nil
}

// HasPlatforms reports whether the admin has selected at least one platform.
func (s *Session) HasPlatforms() bool {
	return s != nil && len(s.Platforms) > 0
}

// HasMode reports whether the viewing mode has been chosen.
func (s *Session) HasMode() bool {
	return s != nil && s.Mode.Valid()
}

// HasAdminProfile reports whether the admin has supplied their own profile.
func (s *Session) HasAdminProfile() bool {
	return s != nil && s.AdminProfile != nil && s.AdminProfile.Username != ""
}

// Expired reports whether the session is past its expiry timestamp.
func (s *Session) Expired(now time.Time) bool {
	return s != nil && !s.ExpiresAt.IsZero() && now.After(s.ExpiresAt)
}

// Clone returns a deep copy of the session. Stores hand out clones so that
// callers can never mutate shared state through a snapshot.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	out := *s
	if s.Platforms != nil {
		out.Platforms = append([]string(nil), s.Platforms...)
	}
	if s.AdminProfile != nil {
		card := *s.AdminProfile
		card.FavoriteGenres = append([]string(nil), s.AdminProfile.FavoriteGenres...)
		out.AdminProfile = &card
	}
	if s.Profiles != nil {
		out.Profiles = make([]Profile, len(s.Profiles))
		for i := range s.Profiles {
			out.Profiles[i] = *s.Profiles[i].Clone()
		}
	}
	if s.GroupAnalysis != nil {
		ga := *s.GroupAnalysis
		out.GroupAnalysis = &ga
	}
	if s.MovieBatches != nil {
		out.MovieBatches = make([]MovieBatch, len(s.MovieBatches))
		for i, b := range s.MovieBatches {
			nb := b
			nb.Movies = append([]Movie(nil), b.Movies...)
			out.MovieBatches[i] = nb
		}
	}
	return &out
}
