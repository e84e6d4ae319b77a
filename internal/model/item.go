// Package model defines data structures used throughout the application.
package model

import (
	"errors"
	"time"
)

// Validation errors for Item payloads.
var (
	ErrEmptyName        = errors.New("name cannot be empty")
	ErrNameTooLong      = errors.New("name cannot exceed 255 characters")
	ErrDescriptionLimit = errors.New("description cannot exceed 1000 characters")
)

// Validation constants.
const (
	MaxNameLength        = 255
	MaxDescriptionLength = 1000
)

// Item is the single resource managed by the API.
type Item struct {
	ID          int     `json:"id"`
	Name        string  `json:"name"`
	Description *string `json:"description"`
}

// Clone returns a copy of the item that shares no memory with the receiver.
func (i Item) Clone() Item {
	out := i
	if i.Description != nil {
		d := *i.Description
		out.Description = &d
	}
	return out
}

// Equal reports whether both items hold the same id, name and description.
func (i Item) Equal(other Item) bool {
	if i.ID != other.ID || i.Name != other.Name {
		return false
	}
	if i.Description == nil || other.Description == nil {
		return i.Description == nil && other.Description == nil
	}
	return *i.Description == *other.Description
}

// ItemCreate is the request body for creating an item.
type ItemCreate struct {
	Name        string  `json:"name"`
	Description *string `json:"description"`
}

// Validate checks if the create payload has valid field values.
func (c *ItemCreate) Validate() error {
	if err := validateName(c.Name); err != nil {
		return err
	}
	return validateDescription(c.Description)
}

// ToItem builds the stored representation for the given id.
func (c *ItemCreate) ToItem(id int) Item {
	return Item{
		ID:          id,
		Name:        c.Name,
		Description: c.Description,
	}.Clone()
}

// ItemUpdate is the request body for a partial update. Only keys present in
// the JSON document are applied.
type ItemUpdate struct {
	Name        Optional[string]  `json:"name"`
	Description Optional[*string] `json:"description"`
}

// Validate checks the fields that were supplied.
func (u *ItemUpdate) Validate() error {
	if u.Name.Set {
		if err := validateName(u.Name.Value); err != nil {
			return err
		}
	}
	if u.Description.Set {
		return validateDescription(u.Description.Value)
	}
	return nil
}

// IsEmpty reports whether no field was supplied.
func (u *ItemUpdate) IsEmpty() bool {
	return !u.Name.Set && !u.Description.Set
}

// Apply merges the supplied fields onto a copy of current. The id is never
// changed.
func (u *ItemUpdate) Apply(current Item) Item {
	merged := current.Clone()
	if u.Name.Set {
		merged.Name = u.Name.Value
	}
	if u.Description.Set {
		merged.Description = nil
		if u.Description.Value != nil {
			d := *u.Description.Value
			merged.Description = &d
		}
	}
	return merged
}

func validateName(name string) error {
	if name == "" {
		return ErrEmptyName
	}
	if len(name) > MaxNameLength {
		return ErrNameTooLong
	}
	return nil
}

func validateDescription(description *string) error {
	if description != nil && len(*description) > MaxDescriptionLength {
		return ErrDescriptionLimit
	}
	return nil
}

// StringPtr returns a pointer to s.
func StringPtr(s string) *string {
	return &s
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Detail string `json:"detail"`
}

// MessageResponse is the body of the root endpoint.
type MessageResponse struct {
	Message string `json:"message"`
}

// ItemEventType identifies the kind of change carried by an ItemEvent.
type ItemEventType string

// Item event types.
const (
	ItemEventCreated ItemEventType = "item.created"
	ItemEventUpdated ItemEventType = "item.updated"
	ItemEventDeleted ItemEventType = "item.deleted"
)

// ItemEvent describes a committed change to an item. It is pushed to
// WebSocket subscribers.
type ItemEvent struct {
	Type      ItemEventType `json:"type"`
	Item      Item          `json:"item"`
	Timestamp time.Time     `json:"timestamp"`
}

// NewItemEvent creates an event for the given change, stamped with the
// current UTC time.
func NewItemEvent(eventType ItemEventType, item Item) ItemEvent {
	return ItemEvent{
		Type:      eventType,
		Item:      item.Clone(),
		Timestamp: time.Now().UTC(),
	}
}
