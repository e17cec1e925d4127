package validator

import (
	"fmt"
	"slices"
	"strings"
	"unicode/utf8"
)

const (
	MaxContentLength    = 4000
	MaxEmojiBytes       = 64
	MaxStatusTextLength = 140
)

type ValidationErrors map[string]string

func (v ValidationErrors) HasErrors() bool {
	return len(v) > 0
}

func (v ValidationErrors) Add(field, message string) {
	v[field] = message
}

// Error renders the failures in a stable field order so the message is
// usable as-is in an error event.
func (v ValidationErrors) Error() string {
	fields := make([]string, 0, len(v))
	for f := range v {
		fields = append(fields, f)
	}
	slices.Sort(fields)

	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		parts = append(parts, fmt.Sprintf("%s: %s", f, v[f]))
	}
	return strings.Join(parts, "; ")
}

func ValidateMessage(content, msgType string) ValidationErrors {
	errs := make(ValidationErrors)

	validateContent(content, errs)

	if msgType != "" && msgType != "text" && msgType != "system" {
		errs.Add("type", "Message type must be text or system")
	}

	return errs
}

func ValidateContent(content string) ValidationErrors {
	errs := make(ValidationErrors)
	validateContent(content, errs)
	return errs
}

func ValidateEmoji(emoji string) ValidationErrors {
	errs := make(ValidationErrors)

	emoji = strings.TrimSpace(emoji)
	if emoji == "" {
		errs.Add("emoji", "Emoji is required")
	} else if len(emoji) > MaxEmojiBytes {
		errs.Add("emoji", "Emoji is too long")
	} else if !utf8.ValidString(emoji) {
		errs.Add("emoji", "Emoji must be valid UTF-8")
	}

	return errs
}

func ValidateStatus(status string, statusText *string) ValidationErrors {
	errs := make(ValidationErrors)

	switch status {
	case "online", "away", "busy":
	case "offline":
		errs.Add("status", "Offline cannot be set while connected")
	default:
		errs.Add("status", "Status must be online, away, or busy")
	}

	if statusText != nil && utf8.RuneCountInString(*statusText) > MaxStatusTextLength {
		errs.Add("status_text", fmt.Sprintf("Status text must be at most %d characters", MaxStatusTextLength))
	}

	return errs
}

func validateContent(content string, errs ValidationErrors) {
	if strings.TrimSpace(content) == "" {
		errs.Add("content", "Content is required")
		return
	}
	if !utf8.ValidString(content) {
		errs.Add("content", "Content must be valid UTF-8")
		return
	}
	if utf8.RuneCountInString(content) > MaxContentLength {
		errs.Add("content", fmt.Sprintf("Content must be at most %d characters", MaxContentLength))
	}
}
