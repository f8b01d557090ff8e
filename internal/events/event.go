package events

import "time"

type Type string

const (
	TypeSessionCreated Type = "session.created"
	TypeSessionRevoked Type = "session.revoked"
	TypeUserVerified   Type = "user.verified"
	TypeUserFollowed   Type = "user.followed"
	TypeUserUnfollowed Type = "user.unfollowed"
)

// Event is a committed domain change relayed to connected clients.
type Event struct {
	Type       Type      `json:"type"`
	ActorID    string    `json:"actor_id"`
	SubjectID  string    `json:"subject_id,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

func New(t Type, actorID, subjectID string) Event {
	return Event{
		Type:       t,
		ActorID:    actorID,
		SubjectID:  subjectID,
		OccurredAt: time.Now().UTC(),
	}
}

// Recipients lists the users an event is delivered to.
func (e Event) Recipients() []string {
	if e.SubjectID == "" || e.SubjectID == e.ActorID {
		return []string{e.ActorID}
	}
	return []string{e.ActorID, e.SubjectID}
}
