package ranking

import "time"

type Entry struct {
	ID       string    `json:"id"`
	Nickname string    `json:"nickname"`
	Score    int       `json:"score"`
	PlayedAt time.Time `json:"playedAt"`
}

// Data is the whole ranking collection as persisted under StorageKey.
type Data struct {
	Version     int       `json:"version"`
	Entries     []Entry   `json:"entries"`
	LastUpdated time.Time `json:"lastUpdated"`
}

// Profile summarises one nickname's plays.
type Profile struct {
	Nickname   string    `json:"nickname"`
	BestScore  int       `json:"bestScore"`
	TotalPlays int       `json:"totalPlays"`
	CreatedAt  time.Time `json:"createdAt"`
}
