// Package helpdesk provides the public API for embedding the conversational
// ticket-intake service. This is the stable API for external consumers.
package helpdesk

import (
	"github.com/tjfontaine/helpdesk-gateway/internal/core/domain"
	"github.com/tjfontaine/helpdesk-gateway/internal/intake"
	"github.com/tjfontaine/helpdesk-gateway/internal/runtime"
)

// App is the assembled service.
// See internal/runtime.App for full documentation.
type App = runtime.App

// Option is a functional option for configuring an App.
type Option = runtime.Option

// AskRequest is one inbound user message.
type AskRequest = intake.AskRequest

// Identity is the local user asserted by the embedding application.
type Identity = domain.Identity

// Reply is the structured answer to one message.
type Reply = domain.Reply

// NewIdentity builds an Identity with a normalized role.
var NewIdentity = domain.NewIdentity

// New creates a new App with the given options.
// Example:
//
//	app, err := helpdesk.New(
//	    helpdesk.WithFileConfig("config.yaml"),
//	    helpdesk.WithSQLite("./data/intake.db"),
//	)
var New = runtime.New

// Configuration options
var (
	// Config sources
	WithFileConfig     = runtime.WithFileConfig
	WithConfig         = runtime.WithConfig
	WithConfigProvider = runtime.WithConfigProvider

	// Storage
	WithSQLite = runtime.WithSQLite
	WithStore  = runtime.WithStore

	// Collaborators
	WithCompleter     = runtime.WithCompleter
	WithTicketGateway = runtime.WithTicketGateway
	WithAuthorizer    = runtime.WithAuthorizer

	WithLogger = runtime.WithLogger
)
