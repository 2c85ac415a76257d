package models

import "time"

// Audio is metadata for an uploaded recording. The bytes live in blob
// storage under FilePath.
type Audio struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Duration  int       `json:"duration"`
	Size      int64     `json:"size"`
	Format    string    `json:"format"`
	IsPublic  bool      `json:"is_public"`
	FilePath  string    `json:"-"`
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// AudioPatch is a partial metadata update. Nil fields are left unchanged.
type AudioPatch struct {
	Title    *string
	IsPublic *bool
}

func (p AudioPatch) Fields() map[string]any {
	f := map[string]any{}
	if p.Title != nil {
		f["title"] = *p.Title
	}
	if p.IsPublic != nil {
		f["is_public"] = *p.IsPublic
	}
	return f
}
