package notifications

import (
	"encoding/json"
	"time"

	"quill/internal/models"
)

// Post lifecycle event types delivered over the notification socket.
const (
	EventPostSubmitted = "post_submitted"
	EventPostApproved  = "post_approved"
	EventPostRejected  = "post_rejected"
	EventPostArchived  = "post_archived"

	// EventConnected is the first frame on every socket, sent once it is registered.
	EventConnected = "connected"
)

// ConnectedMessage is the hello frame written after registration.
var ConnectedMessage = []byte(`{"type":"` + EventConnected + `"}`)

// PostEvent describes a lifecycle change of one post.
type PostEvent struct {
	Type       string            `json:"type"`
	PostID     uint              `json:"postId"`
	Title      string            `json:"title"`
	Status     models.PostStatus `json:"status"`
	AuthorID   uint              `json:"authorId"`
	ActorID    uint              `json:"actorId"`
	Reason     string            `json:"reason,omitempty"`
	OccurredAt time.Time         `json:"occurredAt"`
}

// envelope is the wire format written to sockets.
type envelope struct {
	Type    string    `json:"type"`
	Payload PostEvent `json:"payload"`
}

// NewPostEvent builds the event for transition t applied by actorID to post.
func NewPostEvent(t models.Transition, post *models.Post, actorID uint) (PostEvent, bool) {
	var kind string
	switch t {
	case models.TransitionSubmit:
		kind = EventPostSubmitted
	case models.TransitionApprove:
		kind = EventPostApproved
	case models.TransitionReject:
		kind = EventPostRejected
	case models.TransitionArchive:
		kind = EventPostArchived
	case models.TransitionReopen:
		return PostEvent{}, false
	default:
		return PostEvent{}, false
	}
	return PostEvent{
		Type:       kind,
		PostID:     post.ID,
		Title:      post.Title,
		Status:     post.Status,
		AuthorID:   post.AuthorID,
		ActorID:    actorID,
		Reason:     post.RejectionReason,
		OccurredAt: time.Now().UTC(),
	}, true
}

// Encode renders the socket message for e.
func (e PostEvent) Encode() (string, error) {
	b, err := json.Marshal(envelope{Type: e.Type, Payload: e})
	if err != nil {
		return "", err
	}
	return string(b), nil
}
