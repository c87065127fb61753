package models

import "github.com/medviewer/hanging-protocols/pkg/hp"

// HangRequest carries one matching pass: the normalized metadata snapshot
// (first study is the current one, the rest are priors in positional order)
// and the per-pass options bag.
type HangRequest struct {
	Studies []*hp.Study `json:"studies"`
	Options hp.Options  `json:"options,omitempty"`
}

// ProtocolRequest creates or replaces a protocol definition.
type ProtocolRequest struct {
	Definition *hp.Protocol `json:"definition"`
}

// CloneRequest names a protocol clone.
type CloneRequest struct {
	Name string `json:"name,omitempty"`
}
