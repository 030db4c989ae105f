package social

import (
	"errors"
	"fmt"
	"time"
)

// ErrMalformedItem marks timeline entries missing a required field. Callers
// skip these instead of failing the whole poll.
var ErrMalformedItem = errors.New("malformed timeline item")

// Author identifies who wrote a timeline item.
type Author struct {
	Handle      string
	DisplayName string
}

// Item is one post from the timeline, normalized from the wire payload.
type Item struct {
	ID        string
	Text      string
	Author    Author
	IsReply   bool
	CreatedAt time.Time
}

type wireUser struct {
	ScreenName string `json:"screen_name"`
	Name       string `json:"name"`
}

type wireStatus struct {
	IDStr              string   `json:"id_str"`
	FullText           string   `json:"full_text"`
	Text               string   `json:"text"`
	CreatedAt          string   `json:"created_at"`
	InReplyToStatusID  string   `json:"in_reply_to_status_id_str"`
	User               wireUser `json:"user"`
}

// toItem validates the wire payload and builds the normalized item. The id,
// text and author handle are required; the timestamp is best effort.
func (w wireStatus) toItem() (Item, error) {
	if w.IDStr == "" {
		return Item{}, fmt.Errorf("%w: missing id", ErrMalformedItem)
	}
	text := w.FullText
	if text == "" {
		text = w.Text
	}
	if text == "" {
		return Item{}, fmt.Errorf("%w: item %s has no text", ErrMalformedItem, w.IDStr)
	}
	if w.User.ScreenName == "" {
		return Item{}, fmt.Errorf("%w: item %s has no author", ErrMalformedItem, w.IDStr)
	}

	item := Item{
		ID:      w.IDStr,
		Text:    text,
		Author:  Author{Handle: w.User.ScreenName, DisplayName: w.User.Name},
		IsReply: w.InReplyToStatusID != "",
	}
	if w.CreatedAt != "" {
		if ts, err := time.Parse(time.RubyDate, w.CreatedAt); err == nil {
			item.CreatedAt = ts
		}
	}
	return item, nil
}
