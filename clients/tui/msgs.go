package tui

import (
	"github.com/dohr-michael/duochat/internal/config"
	"github.com/dohr-michael/duochat/internal/conversation"
)

// HistoryMsg carries the history after an aggregator change.
type HistoryMsg struct {
	Turns []conversation.TurnSnapshot
}

// reloadedMsg reports the outcome of /reload.
type reloadedMsg struct {
	cfg     *config.Config
	changed []string // section names
	err     error
}

// submitErrMsg carries an error from an async Submit.
type submitErrMsg struct {
	err error
}
