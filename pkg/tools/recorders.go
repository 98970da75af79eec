package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/giovanni-lunetta/giovanni-site/pkg/audit"
	"github.com/giovanni-lunetta/giovanni-site/pkg/notify"
)

// Placeholders used when optional contact fields are left empty.
const (
	DefaultContactName  = "Name not provided"
	DefaultContactNotes = "not provided"
)

// Contact sources recorded in the audit log.
const (
	SourceTool = "tool"
	SourceForm = "form"
)

// ErrInvalidEmail is returned by SubmitContactForm for addresses without "@".
var ErrInvalidEmail = errors.New("please provide a valid email address")

// UserDetailsArgs are the arguments of record_user_details.
type UserDetailsArgs struct {
	Email string `json:"email" jsonschema_description:"The email address of this user"`
	Name  string `json:"name,omitempty" jsonschema_description:"The user's name if they provided it"`
	Notes string `json:"notes,omitempty" jsonschema_description:"Any additional information about the conversation that's worth recording to give context"`
}

// UnknownQuestionArgs are the arguments of record_unknown_question.
type UnknownQuestionArgs struct {
	Question string `json:"question" jsonschema_description:"The question that couldn't be answered"`
}

// RecordResult is returned by both recording tools.
type RecordResult struct {
	Recorded string `json:"recorded"`
}

var recordedOK = RecordResult{Recorded: "ok"}

// Recorders implements the side effects of the recording tools.
type Recorders struct {
	Notifier notify.Notifier
	Audit    audit.Recorder
}

// RecordUserDetails notifies the owner and stores the contact.
func (r *Recorders) RecordUserDetails(ctx context.Context, args UserDetailsArgs) (RecordResult, error) {
	if err := r.recordContact(ctx, args, SourceTool); err != nil {
		return RecordResult{}, err
	}
	return recordedOK, nil
}

// RecordUnknownQuestion notifies the owner and stores the question.
func (r *Recorders) RecordUnknownQuestion(ctx context.Context, args UnknownQuestionArgs) (RecordResult, error) {
	if err := r.notify(ctx, fmt.Sprintf("Recording %s", args.Question)); err != nil {
		return RecordResult{}, err
	}
	if r.Audit != nil {
		if err := r.Audit.RecordUnknownQuestion(audit.UnknownQuestionRecord{Question: args.Question}); err != nil {
			return RecordResult{}, err
		}
	}
	return recordedOK, nil
}

// SubmitContactForm captures contact details typed into the site's contact box.
// It returns the confirmation shown to the visitor.
func (r *Recorders) SubmitContactForm(ctx context.Context, email, name, notes string) (string, error) {
	email = strings.TrimSpace(email)
	if email == "" || !strings.Contains(email, "@") {
		return "", ErrInvalidEmail
	}
	args := UserDetailsArgs{
		Email: email,
		Name:  strings.TrimSpace(name),
		Notes: strings.TrimSpace(notes),
	}
	if err := r.recordContact(ctx, args, SourceForm); err != nil {
		return "", err
	}
	return "Thanks! I'll be in touch soon.", nil
}

func (r *Recorders) recordContact(ctx context.Context, args UserDetailsArgs, source string) error {
	name := args.Name
	if name == "" {
		name = DefaultContactName
	}
	notes := args.Notes
	if notes == "" {
		notes = DefaultContactNotes
	}

	if err := r.notify(ctx, fmt.Sprintf("Recording %s with email %s and notes %s", name, args.Email, notes)); err != nil {
		return err
	}
	if r.Audit == nil {
		return nil
	}
	return r.Audit.RecordContact(audit.ContactRecord{
		Email:  args.Email,
		Name:   name,
		Notes:  notes,
		Source: source,
	})
}

func (r *Recorders) notify(ctx context.Context, text string) error {
	if r.Notifier == nil {
		return nil
	}
	return r.Notifier.Notify(ctx, text)
}

// NewDefaultRegistry registers both recording tools backed by rec.
func NewDefaultRegistry(rec *Recorders, strict bool) (*Registry, error) {
	details, err := NewFunction(RecordUserDetails,
		"Use this tool to record that a user is interested in being in touch and provided an email address",
		rec.RecordUserDetails)
	if err != nil {
		return nil, err
	}
	question, err := NewFunction(RecordUnknownQuestion,
		"Always use this tool to record any question that couldn't be answered as you didn't know the answer",
		rec.RecordUnknownQuestion)
	if err != nil {
		return nil, err
	}

	reg := NewRegistry(strict)
	if err := reg.Register(details, question); err != nil {
		return nil, err
	}
	return reg, nil
}
