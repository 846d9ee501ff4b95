package msteams

import (
	"fmt"
)

const adaptiveCardContentType = "application/vnd.microsoft.card.adaptive"

// Card is an adaptive card body.
type Card map[string]any

type Attachment struct {
	ContentType string `json:"contentType"`
	Content     Card   `json:"content"`
}

// Reply is the outbound message activity posted to a conversation.
type Reply struct {
	Type        string       `json:"type"`
	Attachments []Attachment `json:"attachments"`
}

// NewReply wraps card in a message activity.
func NewReply(card Card) Reply {
	return Reply{
		Type:        ActivityMessage,
		Attachments: []Attachment{{ContentType: adaptiveCardContentType, Content: card}},
	}
}

func textBlock(text string, extra ...map[string]any) map[string]any {
	block := map[string]any{"type": "TextBlock", "text": text, "wrap": true}
	for _, e := range extra {
		for k, v := range e {
			block[k] = v
		}
	}
	return block
}

func card(body []map[string]any, actions ...map[string]any) Card {
	c := Card{
		"type":    "AdaptiveCard",
		"$schema": "http://adaptivecards.io/schemas/adaptive-card.json",
		"version": "1.2",
		"body":    body,
	}
	if len(actions) > 0 {
		c["actions"] = actions
	}
	return c
}

func openURL(title, url string) map[string]any {
	return map[string]any{"type": "Action.OpenUrl", "title": title, "url": url}
}

func TeamWelcomeCard(installURL string) Card {
	return card([]map[string]any{
		textBlock("Welcome to Trackr", map[string]any{"weight": "Bolder", "size": "Large"}),
		textBlock("Trackr sends issue alerts to this team. Connect the team to your Trackr organization to get started."),
	}, openURL("Complete setup", installURL))
}

func PersonalWelcomeCard() Card {
	return card([]map[string]any{
		textBlock("Welcome to Trackr", map[string]any{"weight": "Bolder", "size": "Large"}),
		textBlock("Type **link** to connect your Trackr account, or **help** to see every command."),
	})
}

func LinkIdentityCard(url string) Card {
	return card([]map[string]any{
		textBlock("Link your Microsoft Teams identity to Trackr to act on notifications."),
	}, openURL("Link identity", url))
}

func AlreadyLinkedCard() Card {
	return card([]map[string]any{
		textBlock("Your Microsoft Teams identity is already linked to Trackr. Type **unlink** to disconnect it."),
	})
}

func UnlinkIdentityCard(url string) Card {
	return card([]map[string]any{
		textBlock("Click below to unlink your Microsoft Teams identity from Trackr."),
	}, openURL("Unlink identity", url))
}

func NotInstalledCard() Card {
	return card([]map[string]any{
		textBlock("Trackr is not connected to your organization yet. Ask an admin to add Trackr to a team first."),
	})
}

func NotLinkedCard() Card {
	return card([]map[string]any{
		textBlock("Your Microsoft Teams identity is not linked to Trackr. Type **link** to connect it."),
	})
}

func IdentityLinkedCard() Card {
	return card([]map[string]any{
		textBlock("Your Microsoft Teams identity has been linked to your Trackr account."),
	})
}

func IdentityUnlinkedCard() Card {
	return card([]map[string]any{
		textBlock("Your Microsoft Teams identity has been unlinked from your Trackr account."),
	})
}

func HelpCard() Card {
	return card([]map[string]any{
		textBlock("Available commands", map[string]any{"weight": "Bolder"}),
		textBlock("**link**: connect your Teams identity to Trackr"),
		textBlock("**unlink**: disconnect your Teams identity"),
		textBlock("**help**: show this message"),
	})
}

func UnrecognizedCommandCard(command string) Card {
	return card([]map[string]any{
		textBlock(fmt.Sprintf("Sorry, I didn't understand %q.", command)),
		textBlock("Type **help** to see the commands I know."),
	})
}

// IssueCard renders an alert about a group.
func IssueCard(title, culprit, level, url string) Card {
	body := []map[string]any{
		textBlock(title, map[string]any{"weight": "Bolder", "size": "Medium"}),
	}
	if culprit != "" {
		body = append(body, textBlock(culprit, map[string]any{"isSubtle": true}))
	}
	body = append(body, textBlock("Level: "+level, map[string]any{"isSubtle": true, "spacing": "None"}))
	return card(body, openURL("View issue", url))
}
