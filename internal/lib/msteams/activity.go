// Package msteams implements the pieces of the Microsoft Teams bot: inbound
// Bot Framework activities, adaptive cards, signed identity links and the
// reply client.
package msteams

import (
	"regexp"
	"strings"
)

const (
	ActivityMessage            = "message"
	ActivityConversationUpdate = "conversationUpdate"

	ConversationPersonal = "personal"
	ConversationChannel  = "channel"
)

type ChannelAccount struct {
	ID          string `json:"id"`
	Name        string `json:"name,omitempty"`
	AadObjectID string `json:"aadObjectId,omitempty"`
}

type Conversation struct {
	ID               string `json:"id"`
	ConversationType string `json:"conversationType,omitempty"`
	TenantID         string `json:"tenantId,omitempty"`
}

type ChannelData struct {
	Team *struct {
		ID   string `json:"id"`
		Name string `json:"name,omitempty"`
	} `json:"team,omitempty"`
	Tenant *struct {
		ID string `json:"id"`
	} `json:"tenant,omitempty"`
}

// Activity is the subset of a Bot Framework activity the bot reads.
type Activity struct {
	Type         string           `json:"type"`
	ID           string           `json:"id,omitempty"`
	Text         string           `json:"text,omitempty"`
	ServiceURL   string           `json:"serviceUrl"`
	ChannelID    string           `json:"channelId,omitempty"`
	From         ChannelAccount   `json:"from"`
	Recipient    ChannelAccount   `json:"recipient"`
	Conversation Conversation     `json:"conversation"`
	MembersAdded []ChannelAccount `json:"membersAdded,omitempty"`
	ChannelData  ChannelData      `json:"channelData"`
}

// BotAdded reports whether this conversationUpdate installs the bot.
func (a *Activity) BotAdded() bool {
	if a.Type != ActivityConversationUpdate {
		return false
	}
	for _, m := range a.MembersAdded {
		if m.ID == a.Recipient.ID {
			return true
		}
	}
	return false
}

// IsTeamInstall tells a team install apart from a personal one.
func (a *Activity) IsTeamInstall() bool {
	return a.ChannelData.Team != nil && a.ChannelData.Team.ID != ""
}

func (a *Activity) TeamID() string {
	if a.ChannelData.Team == nil {
		return ""
	}
	return a.ChannelData.Team.ID
}

func (a *Activity) TenantID() string {
	if a.ChannelData.Tenant != nil && a.ChannelData.Tenant.ID != "" {
		return a.ChannelData.Tenant.ID
	}
	return a.Conversation.TenantID
}

var mentionRe = regexp.MustCompile(`(?s)<at>.*?</at>`)

// Command strips bot mentions and normalizes the message text.
func (a *Activity) Command() string {
	text := mentionRe.ReplaceAllString(a.Text, "")
	return strings.ToLower(strings.Join(strings.Fields(text), " "))
}
