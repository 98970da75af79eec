package gateway

import (
	"github.com/giovanni-lunetta/giovanni-site/pkg/api"
)

// Aliases of the api types the gateway traffics in.
type Channel = api.Channel
type SignalingChannel = api.SignalingChannel
type ErrorChannel = api.ErrorChannel
type MessageResponder = api.MessageResponder
type ChannelContext = api.ChannelContext
type UnifiedMessage = api.UnifiedMessage
type SessionContext = api.SessionContext
type MessageHandler = api.MessageHandler
