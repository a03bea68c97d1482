package models

import (
	"fmt"
	"strings"
	"time"
)

// RawMessage is an inbound message as returned by the mailbox provider.
type RawMessage struct {
	ID                string    `json:"id"`
	ThreadID          string    `json:"thread_id"`
	InternetMessageID string    `json:"internet_message_id"`
	Sender            string    `json:"sender"`
	Subject           string    `json:"subject"`
	Body              string    `json:"body"`
	ReceivedAt        time.Time `json:"received_at"`
}

// Category is the intent assigned to an inbound message.
type Category string

const (
	CategoryInterested      Category = "interested"
	CategoryMoreInformation Category = "more_information"
	CategoryNotInterested   Category = "not_interested"
)

// Categories returns every category in classification priority order.
func Categories() []Category {
	return []Category{CategoryInterested, CategoryMoreInformation, CategoryNotInterested}
}

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	switch c {
	case CategoryInterested, CategoryMoreInformation, CategoryNotInterested:
		return true
	}
	return false
}

// ParseCategory accepts the stored name or common spellings such as
// "MoreInformation" and "more information".
func ParseCategory(s string) (Category, error) {
	normalized := strings.ToLower(strings.TrimSpace(s))
	normalized = strings.NewReplacer(" ", "_", "-", "_").Replace(normalized)
	switch normalized {
	case "interested":
		return CategoryInterested, nil
	case "more_information", "moreinformation", "more_info":
		return CategoryMoreInformation, nil
	case "not_interested", "notinterested":
		return CategoryNotInterested, nil
	}
	return "", fmt.Errorf("unknown category %q", s)
}
