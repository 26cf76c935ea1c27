package domain

import (
	"fmt"
	"strings"
)

// IntentType identifies a user action that requires a blockchain transaction
type IntentType string

const (
	IntentCreateUser         IntentType = "create_user"
	IntentCreatePost         IntentType = "create_post"
	IntentCreateVote         IntentType = "create_vote"
	IntentCreateTip          IntentType = "create_tip"
	IntentUpdateVerification IntentType = "update_verification"
)

// VoteDirection for CreateVote intents
type VoteDirection string

const (
	VoteUp   VoteDirection = "upvote"
	VoteDown VoteDirection = "downvote"
)

// VerificationKind for UpdateVerification intents
type VerificationKind string

const (
	VerificationNone     VerificationKind = "none"
	VerificationIdentity VerificationKind = "identity"
	VerificationCreator  VerificationKind = "creator"
)

const (
	MaxUsernameLength = 32
	MaxPostLength     = 280
)

// ComputeBudget carries per-transaction compute parameters. Zero fields fall
// back to the builder's defaults.
type ComputeBudget struct {
	UnitLimit                uint32 `json:"unit_limit,omitempty"`
	PriorityFeeMicroLamports uint64 `json:"priority_fee_micro_lamports,omitempty"`
}

// TransactionIntent is a tagged union over IntentType. Wallet is always the
// acting user's address; exactly one variant matching Type is set.
type TransactionIntent struct {
	Type          IntentType     `json:"type"`
	Wallet        string         `json:"wallet"`
	ComputeBudget *ComputeBudget `json:"compute_budget,omitempty"`

	CreateUser         *CreateUserParams         `json:"create_user,omitempty"`
	CreatePost         *CreatePostParams         `json:"create_post,omitempty"`
	CreateVote         *CreateVoteParams         `json:"create_vote,omitempty"`
	CreateTip          *CreateTipParams          `json:"create_tip,omitempty"`
	UpdateVerification *UpdateVerificationParams `json:"update_verification,omitempty"`
}

type CreateUserParams struct {
	Username string `json:"username"`
	Bio      string `json:"bio,omitempty"`
}

type CreatePostParams struct {
	Content  string `json:"content"`
	MediaURL string `json:"media_url,omitempty"`
}

type CreateVoteParams struct {
	Target    string        `json:"target"`
	Post      string        `json:"post,omitempty"`
	Direction VoteDirection `json:"direction"`
}

// CreateTipParams amount is in the chain's smallest unit
type CreateTipParams struct {
	Recipient string `json:"recipient"`
	Amount    uint64 `json:"amount"`
	Message   string `json:"message,omitempty"`
}

type UpdateVerificationParams struct {
	Target string           `json:"target"`
	Kind   VerificationKind `json:"kind"`
}

// Validate checks the intent locally before any collaborator is called
func (i *TransactionIntent) Validate() error {
	if strings.TrimSpace(i.Wallet) == "" {
		return fmt.Errorf("wallet is required")
	}

	set := 0
	for _, present := range []bool{
		i.CreateUser != nil, i.CreatePost != nil, i.CreateVote != nil,
		i.CreateTip != nil, i.UpdateVerification != nil,
	} {
		if present {
			set++
		}
	}
	if set != 1 {
		return fmt.Errorf("intent must carry exactly one parameter variant, got %d", set)
	}

	switch i.Type {
	case IntentCreateUser:
		if i.CreateUser == nil {
			return fmt.Errorf("create_user parameters missing")
		}
		name := strings.TrimSpace(i.CreateUser.Username)
		if name == "" || len(name) > MaxUsernameLength {
			return fmt.Errorf("username must be 1-%d characters", MaxUsernameLength)
		}
	case IntentCreatePost:
		if i.CreatePost == nil {
			return fmt.Errorf("create_post parameters missing")
		}
		content := strings.TrimSpace(i.CreatePost.Content)
		if content == "" && i.CreatePost.MediaURL == "" {
			return fmt.Errorf("post requires content or media")
		}
		if len(i.CreatePost.Content) > MaxPostLength {
			return fmt.Errorf("post content exceeds %d characters", MaxPostLength)
		}
	case IntentCreateVote:
		if i.CreateVote == nil {
			return fmt.Errorf("create_vote parameters missing")
		}
		if i.CreateVote.Target == "" {
			return fmt.Errorf("vote target is required")
		}
		if i.CreateVote.Direction != VoteUp && i.CreateVote.Direction != VoteDown {
			return fmt.Errorf("invalid vote direction %q", i.CreateVote.Direction)
		}
	case IntentCreateTip:
		if i.CreateTip == nil {
			return fmt.Errorf("create_tip parameters missing")
		}
		if i.CreateTip.Recipient == "" {
			return fmt.Errorf("tip recipient is required")
		}
		if i.CreateTip.Amount == 0 {
			return fmt.Errorf("tip amount must be positive")
		}
	case IntentUpdateVerification:
		if i.UpdateVerification == nil {
			return fmt.Errorf("update_verification parameters missing")
		}
		if i.UpdateVerification.Target == "" {
			return fmt.Errorf("verification target is required")
		}
		switch i.UpdateVerification.Kind {
		case VerificationNone, VerificationIdentity, VerificationCreator:
		default:
			return fmt.Errorf("invalid verification kind %q", i.UpdateVerification.Kind)
		}
	default:
		return fmt.Errorf("unknown intent type %q", i.Type)
	}

	return nil
}

// Params returns the variant matching Type for transport to the relay
func (i *TransactionIntent) Params() interface{} {
	switch i.Type {
	case IntentCreateUser:
		return i.CreateUser
	case IntentCreatePost:
		return i.CreatePost
	case IntentCreateVote:
		return i.CreateVote
	case IntentCreateTip:
		return i.CreateTip
	case IntentUpdateVerification:
		return i.UpdateVerification
	default:
		return nil
	}
}
