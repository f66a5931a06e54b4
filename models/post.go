package models

import "time"

type Post struct {
	ID             string     `bson:"_id" json:"id"`
	AuthorID       string     `bson:"userId" json:"userId"`
	AuthorName     string     `bson:"username" json:"username"`
	AuthorPhotoURL string     `bson:"userProfileImage,omitempty" json:"userProfileImage,omitempty"`
	Description    string     `bson:"description" json:"description"`
	ImageURL       string     `bson:"imageUrl,omitempty" json:"imageUrl,omitempty"`
	Location       *Location  `bson:"location,omitempty" json:"location,omitempty"`
	CreatedAt      time.Time  `bson:"createdAt" json:"createdAt"`
	UpdatedAt      *time.Time `bson:"updatedAt,omitempty" json:"updatedAt,omitempty"`

	// Likes is kept equal to len(LikedBy) by the atomic like mutation.
	Likes   int      `bson:"likes" json:"likes"`
	LikedBy []string `bson:"likedBy,omitempty" json:"likedBy"`
}

type Location struct {
	Latitude  float64 `bson:"latitude" json:"latitude"`
	Longitude float64 `bson:"longitude" json:"longitude"`
	Address   string  `bson:"address,omitempty" json:"address,omitempty"`
}

// IsLikedBy reports server-side like membership, used when no session
// override is present.
func (p *Post) IsLikedBy(userID string) bool {
	for _, id := range p.LikedBy {
		if id == userID {
			return true
		}
	}
	return false
}
