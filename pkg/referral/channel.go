// Package referral works out which outreach channel brought a signer to a
// petition and who gets credit for it.
package referral

import (
	"github.com/petitionator/api/pkg/database"
	"github.com/petitionator/api/pkg/experiments"
)

// Params are the referral parameters a signature form can carry. At most one
// is expected; when several are present the first channel in the table wins.
type Params struct {
	EmailHash                 string `json:"email_hash"`
	FacebookLikeHash          string `json:"fb_like_hash"`
	FacebookShareLinkRef      string `json:"fb_share_link_ref"`
	FacebookActionID          string `json:"fb_action_id"`
	ForwardedNotificationHash string `json:"forwarded_notification_hash"`
	TwitterHash               string `json:"twitter_hash"`
}

type lookupKind int

const (
	lookupNone lookupKind = iota
	lookupSentEmail
	lookupMember
	lookupShare
)

// Win names an experiment option credited when a channel fires.
type Win struct {
	Group  string
	Option string
}

// Channel is the outcome of Select: which channel fired and the raw key
// that identifies the referrer within it.
type Channel struct {
	Type   database.ReferenceType
	Key    string
	lookup lookupKind
	win    *Win
}

var channels = []struct {
	typ    database.ReferenceType
	param  func(Params) string
	lookup lookupKind
	win    *Win
}{
	{database.ReferenceTypeEmail, func(p Params) string { return p.EmailHash }, lookupSentEmail, nil},
	{database.ReferenceTypeFacebookLike, func(p Params) string { return p.FacebookLikeHash }, lookupMember,
		&Win{experiments.FacebookSharingOptions, "facebook_like"}},
	{database.ReferenceTypeFacebookPopup, func(p Params) string { return p.FacebookShareLinkRef }, lookupMember,
		&Win{experiments.FacebookSharingOptions, "facebook_popup"}},
	{database.ReferenceTypeFacebookShare, func(p Params) string { return p.FacebookActionID }, lookupShare,
		&Win{experiments.FacebookSharingOptions, "facebook_share"}},
	{database.ReferenceTypeForwardedNotification, func(p Params) string { return p.ForwardedNotificationHash }, lookupMember, nil},
	{database.ReferenceTypeTwitter, func(p Params) string { return p.TwitterHash }, lookupMember, nil},
}

// Select picks the channel for p. Empty values count as absent.
func Select(p Params) Channel {
	for _, c := range channels {
		if key := c.param(p); key != "" {
			return Channel{Type: c.typ, Key: key, lookup: c.lookup, win: c.win}
		}
	}

	return Channel{Type: database.ReferenceTypeNone}
}

// Win reports the sharing experiment option this channel credits, if any.
func (c Channel) Win() (Win, bool) {
	if c.win == nil {
		return Win{}, false
	}

	return *c.win, true
}
