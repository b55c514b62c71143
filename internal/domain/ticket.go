package domain

import "time"

// TicketStatus enumerates lifecycle states for tickets. A closed ticket is
// deleted rather than stored, so there is no closed status.
type TicketStatus string

const (
	TicketStatusPendingForward TicketStatus = "pending_discussion_forward"
	TicketStatusForwarded      TicketStatus = "forwarded_to_discussion"
)

// IssueType is the category a user picks when opening a ticket.
type IssueType string

const (
	IssueTechnical IssueType = "technical"
	IssueBilling   IssueType = "billing"
	IssueFeature   IssueType = "feature"
	IssueGeneral   IssueType = "general"
)

// IssueTypes lists the categories in the order they are offered to users.
var IssueTypes = []IssueType{IssueTechnical, IssueBilling, IssueFeature, IssueGeneral}

// Valid reports whether t is one of the known categories.
func (t IssueType) Valid() bool {
	for _, known := range IssueTypes {
		if t == known {
			return true
		}
	}
	return false
}

// Label returns the human readable category name.
func (t IssueType) Label() string {
	switch t {
	case IssueTechnical:
		return "Technical"
	case IssueBilling:
		return "Billing"
	case IssueFeature:
		return "Feature"
	case IssueGeneral:
		return "General"
	default:
		return "Unknown"
	}
}

// Ticket is the tracking record for one user's open support case. There is at
// most one per user.
type Ticket struct {
	ID                      string       `json:"id"`
	UserID                  int64        `json:"user_id"`
	UserName                string       `json:"user_name"`
	IssueType               IssueType    `json:"issue_type"`
	Status                  TicketStatus `json:"status"`
	MediaKind               MediaKind    `json:"media_type,omitempty"`
	ChannelID               int64        `json:"channel_id"`
	OriginChannelMessageID  int          `json:"channel_message_id"`
	OriginChannelMessageURL string       `json:"channel_message_url"`
	ChannelPostText         string       `json:"channel_post_text,omitempty"`
	ChannelPostHasMedia     bool         `json:"channel_post_has_media,omitempty"`
	DiscussionGroupID       int64        `json:"discussion_group_id,omitempty"`
	DiscussionMessageID     int          `json:"discussion_message_id,omitempty"`
	CreatedAt               time.Time    `json:"created_at"`
	ForwardedAt             *time.Time   `json:"forwarded_at,omitempty"`
	LastActivityAt          time.Time    `json:"last_activity_at"`
}

// IsActive reports whether the ticket has been linked to a discussion thread.
func (t *Ticket) IsActive() bool {
	return t.Status == TicketStatusForwarded && t.DiscussionMessageID != 0
}
