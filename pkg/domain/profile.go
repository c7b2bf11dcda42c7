package domain

import "time"

// User is the owner of child profiles, identified by the chat transport's key.
type User struct {
	ID          int64     `json:"id"`
	ExternalKey string    `json:"external_key"`
	DisplayName string    `json:"display_name,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// DefaultStoryLength is the reading time, in minutes, used when a profile
// has no preference.
const DefaultStoryLength = 5

// ChildProfile holds what the storyteller knows about a child.
type ChildProfile struct {
	ID                 int64     `json:"id"`
	UserID             int64     `json:"user_id"`
	Name               string    `json:"name"`
	Age                int       `json:"age"`
	Characters         []string  `json:"characters"`
	Interests          []string  `json:"interests"`
	StoryLengthMinutes int       `json:"story_length_minutes"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// Feedback is a child's reaction to a story.
type Feedback string

const (
	FeedbackLoved    Feedback = "loved"
	FeedbackLiked    Feedback = "liked"
	FeedbackNeutral  Feedback = "neutral"
	FeedbackDisliked Feedback = "disliked"
)

// FeedbackOptions lists the accepted feedback values in display order.
var FeedbackOptions = []string{
	string(FeedbackLoved),
	string(FeedbackLiked),
	string(FeedbackNeutral),
	string(FeedbackDisliked),
}

// Story is a generated, persisted story.
type Story struct {
	ID             string        `json:"id"`
	UserID         int64         `json:"user_id"`
	ChildID        int64         `json:"child_id"`
	ChildName      string        `json:"child_name"`
	ChildAge       int           `json:"child_age"`
	Theme          string        `json:"theme"`
	Characters     []string      `json:"characters"`
	Text           string        `json:"text"`
	Moral          string        `json:"moral,omitempty"`
	TokensUsed     int           `json:"tokens_used,omitempty"`
	GenerationTime time.Duration `json:"generation_time"`
	Feedback       Feedback      `json:"feedback,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
}

// StoryRequest is the input handed to a story generator.
type StoryRequest struct {
	ChildName     string
	ChildAge      int
	Theme         string
	Characters    []string
	Interests     []string
	LengthMinutes int
}

// GeneratedStory is a generator's output.
type GeneratedStory struct {
	Text       string
	TokensUsed int
	Duration   time.Duration
}

// Verdict is the content-safety classification of a piece of text.
type Verdict struct {
	Safe       bool     `json:"safe"`
	Reason     string   `json:"reason,omitempty"`
	Categories []string `json:"categories,omitempty"`
}
