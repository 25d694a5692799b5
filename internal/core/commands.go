package core

import (
	"context"

	"github.com/dkeye/pushd/internal/domain"
)

func (c *Controller) SendPlayCommand(ctx context.Context, req PlayRequest) error {
	return c.SendUnicast(ctx, NewEnvelope(MsgPlay, req))
}

func (c *Controller) SendPlaystateCommand(ctx context.Context, req PlaystateRequest) error {
	return c.SendUnicast(ctx, NewEnvelope(MsgPlaystate, req))
}

func (c *Controller) SendGeneralCommand(ctx context.Context, cmd GeneralCommand) error {
	return c.SendUnicast(ctx, NewEnvelope(MsgGeneralCommand, cmd))
}

func (c *Controller) SendLibraryUpdateInfo(ctx context.Context, info LibraryUpdateInfo) (PublishResult, error) {
	return c.SendMulticast(ctx, NewEnvelope(MsgLibraryChanged, info))
}

func (c *Controller) SendUserDataChangeInfo(ctx context.Context, info UserDataChangeInfo) (PublishResult, error) {
	return c.SendMulticast(ctx, NewEnvelope(MsgUserDataChanged, info))
}

func (c *Controller) SendRestartRequiredNotification(ctx context.Context, info SystemInfo) (PublishResult, error) {
	return c.SendMulticast(ctx, NewEnvelope(MsgRestartRequired, info))
}

// Server lifecycle notices carry an empty string payload.
func (c *Controller) SendServerShutdownNotification(ctx context.Context) (PublishResult, error) {
	return c.SendMulticast(ctx, NewEnvelope(MsgServerShuttingDown, ""))
}

func (c *Controller) SendServerRestartNotification(ctx context.Context) (PublishResult, error) {
	return c.SendMulticast(ctx, NewEnvelope(MsgServerRestarting, ""))
}

func (c *Controller) SendSessionEndedNotification(ctx context.Context, info SessionInfo) (PublishResult, error) {
	return c.SendMulticast(ctx, NewEnvelope(MsgSessionEnded, info))
}

func (c *Controller) SendPlaybackStartNotification(ctx context.Context, info SessionInfo) (PublishResult, error) {
	return c.SendMulticast(ctx, NewEnvelope(MsgPlaybackStart, info))
}

func (c *Controller) SendPlaybackStoppedNotification(ctx context.Context, info SessionInfo) (PublishResult, error) {
	return c.SendMulticast(ctx, NewEnvelope(MsgPlaybackStopped, info))
}

// Info is the observer view of this session.
func (c *Controller) Info() SessionInfo {
	return NewSessionInfo(c.session, c.Capabilities())
}

// BelongsTo reports whether the session is signed in as user.
func (c *Controller) BelongsTo(user domain.UserID) bool {
	return user != "" && c.session.User.ID == user
}

// Withheld reports whether the compatibility gate drops every message to
// this session.
func (c *Controller) Withheld() bool { return c.gate.Skip(c.session) }
