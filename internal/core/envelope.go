package core

import "github.com/dkeye/pushd/internal/domain"

// MessageType is the stable wire tag of an envelope.
type MessageType string

const (
	// unicast
	MsgPlay           MessageType = "Play"
	MsgPlaystate      MessageType = "Playstate"
	MsgGeneralCommand MessageType = "GeneralCommand"

	// multicast
	MsgLibraryChanged     MessageType = "LibraryChanged"
	MsgUserDataChanged    MessageType = "UserDataChanged"
	MsgRestartRequired    MessageType = "RestartRequired"
	MsgServerShuttingDown MessageType = "ServerShuttingDown"
	MsgServerRestarting   MessageType = "ServerRestarting"
	MsgSessionEnded       MessageType = "SessionEnded"
	MsgPlaybackStart      MessageType = "PlaybackStart"
	MsgPlaybackStopped    MessageType = "PlaybackStopped"

	// transport
	MsgKeepAlive      MessageType = "KeepAlive"
	MsgForceKeepAlive MessageType = "ForceKeepAlive"
)

// Envelope is one message on the push channel. Build a new one per send.
type Envelope struct {
	MessageType MessageType `json:"MessageType"`
	Data        any         `json:"Data"`
}

func NewEnvelope(t MessageType, data any) Envelope {
	return Envelope{MessageType: t, Data: data}
}

type PlayCommand string

const (
	PlayNow  PlayCommand = "PlayNow"
	PlayNext PlayCommand = "PlayNext"
	PlayLast PlayCommand = "PlayLast"
)

type PlayRequest struct {
	ItemIDs            []string      `json:"ItemIds"`
	StartPositionTicks int64         `json:"StartPositionTicks,omitempty"`
	PlayCommand        PlayCommand   `json:"PlayCommand"`
	ControllingUserID  domain.UserID `json:"ControllingUserId,omitempty"`
}

type PlaystateCommand string

const (
	PlaystateStop          PlaystateCommand = "Stop"
	PlaystatePause         PlaystateCommand = "Pause"
	PlaystateUnpause       PlaystateCommand = "Unpause"
	PlaystateNextTrack     PlaystateCommand = "NextTrack"
	PlaystatePreviousTrack PlaystateCommand = "PreviousTrack"
	PlaystateSeek          PlaystateCommand = "Seek"
	PlaystateRewind        PlaystateCommand = "Rewind"
	PlaystateFastForward   PlaystateCommand = "FastForward"
	PlaystatePlayPause     PlaystateCommand = "PlayPause"
)

func (c PlaystateCommand) Valid() bool {
	switch c {
	case PlaystateStop, PlaystatePause, PlaystateUnpause, PlaystateNextTrack,
		PlaystatePreviousTrack, PlaystateSeek, PlaystateRewind,
		PlaystateFastForward, PlaystatePlayPause:
		return true
	}
	return false
}

type PlaystateRequest struct {
	Command           PlaystateCommand `json:"Command"`
	SeekPositionTicks int64            `json:"SeekPositionTicks,omitempty"`
	ControllingUserID domain.UserID    `json:"ControllingUserId,omitempty"`
}

type GeneralCommand struct {
	Name              string            `json:"Name"`
	ControllingUserID domain.UserID     `json:"ControllingUserId,omitempty"`
	Arguments         map[string]string `json:"Arguments,omitempty"`
}

type LibraryUpdateInfo struct {
	FoldersAddedTo     []string `json:"FoldersAddedTo"`
	FoldersRemovedFrom []string `json:"FoldersRemovedFrom"`
	ItemsAdded         []string `json:"ItemsAdded"`
	ItemsRemoved       []string `json:"ItemsRemoved"`
	ItemsUpdated       []string `json:"ItemsUpdated"`
}

type UserItemData struct {
	ItemID                string `json:"ItemId"`
	PlaybackPositionTicks int64  `json:"PlaybackPositionTicks"`
	PlayCount             int    `json:"PlayCount"`
	IsFavorite            bool   `json:"IsFavorite"`
	Played                bool   `json:"Played"`
}

type UserDataChangeInfo struct {
	UserID       domain.UserID  `json:"UserId"`
	UserDataList []UserItemData `json:"UserDataList"`
}

type SystemInfo struct {
	ServerName        string `json:"ServerName"`
	Version           string `json:"Version"`
	HasPendingRestart bool   `json:"HasPendingRestart"`
	CanSelfRestart    bool   `json:"CanSelfRestart"`
}

// SessionInfo is the observer-facing view of a session carried by
// SessionEnded and playback notifications.
type SessionInfo struct {
	ID                   domain.SessionID `json:"Id"`
	UserID               domain.UserID    `json:"UserId,omitempty"`
	UserName             string           `json:"UserName,omitempty"`
	Client               string           `json:"Client"`
	ApplicationVersion   string           `json:"ApplicationVersion"`
	DeviceID             domain.DeviceID  `json:"DeviceId"`
	DeviceName           string           `json:"DeviceName,omitempty"`
	PlayableMediaTypes   []string         `json:"PlayableMediaTypes"`
	SupportedCommands    []string         `json:"SupportedCommands"`
	SupportsMediaControl bool             `json:"SupportsRemoteControl"`
	NowPlayingItemID     string           `json:"NowPlayingItemId,omitempty"`
}

func NewSessionInfo(s *domain.Session, snap domain.CapabilitySnapshot) SessionInfo {
	return SessionInfo{
		ID:                   s.ID,
		UserID:               s.User.ID,
		UserName:             s.User.Username,
		Client:               s.Client,
		ApplicationVersion:   s.ApplicationVersion,
		DeviceID:             s.DeviceID,
		DeviceName:           s.DeviceName,
		PlayableMediaTypes:   snap.PlayableMediaTypes,
		SupportedCommands:    snap.SupportedCommands,
		SupportsMediaControl: snap.SupportsMediaControl,
	}
}
