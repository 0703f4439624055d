package events

import (
	"shakegame/internal/gameclock"
	"shakegame/internal/ranking"
	"shakegame/internal/shake"
)

type Type string

const (
	TypeState    = Type("state")
	TypeFeedback = Type("feedback")
	TypeResult   = Type("result")
	TypeError    = Type("error")
)

// Snapshot is what a view needs to render a game.
type Snapshot struct {
	Phase         gameclock.Phase `json:"phase"`
	Countdown     int             `json:"countdown"`
	TimeRemaining int             `json:"timeRemaining"`
	Count         int             `json:"count"`
	Nickname      string          `json:"nickname,omitempty"`
	Result        *Result         `json:"result,omitempty"`
}

type Result struct {
	Entry ranking.Entry `json:"entry"`
	Rank  int           `json:"rank"`
}

type Event struct {
	Type     Type         `json:"t"`
	State    *Snapshot    `json:"state,omitempty"`
	Feedback *shake.Pulse `json:"feedback,omitempty"`
	Result   *Result      `json:"result,omitempty"`
	Error    string       `json:"error,omitempty"`
}

func StateChanged(s Snapshot) Event {
	return Event{Type: TypeState, State: &s}
}

func Feedback(p shake.Pulse) Event {
	return Event{Type: TypeFeedback, Feedback: &p}
}

func Finished(r Result) Event {
	return Event{Type: TypeResult, Result: &r}
}

func Failed(err error) Event {
	return Event{Type: TypeError, Error: err.Error()}
}
