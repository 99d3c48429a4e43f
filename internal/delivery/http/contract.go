//go:generate mockgen -destination=mock_contract_test.go -package=${GOPACKAGE} -source=contract.go
package http

import (
	"context"

	"directmsg/internal/entity"
)

type ChatService interface {
	ListConversations(ctx context.Context, ownerId string) ([]entity.RosterEntry, error)
	ListMessages(ctx context.Context, ownerId, otherUserId string, filter entity.MessageIndexFilter) ([]entity.Message, error)
	Send(ctx context.Context, draft entity.MessageDraft) (entity.Message, error)
	MarkRead(ctx context.Context, readerId, otherUserId string) (entity.RosterEntry, error)
	DeleteMessage(ctx context.Context, requesterId, messageId string) error
}

type TokenValidator interface {
	ValidateAccessToken(tokenString string) (*entity.TokenClaims, error)
}
