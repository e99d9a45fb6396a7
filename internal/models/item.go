package models

import "time"

type Option struct {
	Label string `bson:"label" json:"label"`
	Text  string `bson:"text" json:"text"`
}

// Item is a published, versioned question. A given (ItemID, Version) is never
// mutated; content changes supersede it with a new version.
type Item struct {
	ItemID          string    `bson:"item_id" json:"item_id"`
	Version         int       `bson:"version" json:"version"`
	TopicID         string    `bson:"topic_id" json:"topic_id"`
	DifficultyLabel string    `bson:"difficulty_label" json:"difficulty_label"`
	Content         string    `bson:"content" json:"content"`
	Options         []Option  `bson:"options" json:"options"`
	CorrectOption   string    `bson:"correct_option" json:"correct_option"`
	Rationale       string    `bson:"rationale" json:"rationale"`
	Published       bool      `bson:"published" json:"published"`
	SupersededBy    *int      `bson:"superseded_by,omitempty" json:"superseded_by,omitempty"`
	CreatedAt       time.Time `bson:"created_at" json:"created_at"`
}

// Validate checks the structural invariants of a published item: at least two
// options and exactly one of them marked correct.
func (i *Item) Validate() error {
	if i.ItemID == "" {
		return ErrInvalidItem
	}
	if len(i.Options) < 2 {
		return ErrInvalidItem
	}
	correct := 0
	seen := map[string]bool{}
	for _, opt := range i.Options {
		if opt.Label == "" || seen[opt.Label] {
			return ErrInvalidItem
		}
		seen[opt.Label] = true
		if opt.Label == i.CorrectOption {
			correct++
		}
	}
	if correct != 1 {
		return ErrInvalidItem
	}
	return nil
}

// IsCorrect reports whether the chosen option label is the keyed answer.
func (i *Item) IsCorrect(choice string) bool {
	return choice != "" && choice == i.CorrectOption
}

// Sanitized returns a copy safe to serve to an examinee: the answer key and
// rationale are stripped.
func (i *Item) Sanitized() Item {
	out := *i
	out.CorrectOption = ""
	out.Rationale = ""
	return out
}
