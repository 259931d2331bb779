package storage

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/chess-vn/slpuzzle/internal/domains/entities"
)

// GetProfile returns the stored profile, or a fresh default one for players
// who never finished a match of this type.
func (client *Client) GetProfile(
	ctx context.Context,
	userId string,
	matchType entities.MatchType,
) (entities.MultiplayerProfile, error) {
	output, err := client.dynamodb.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: client.cfg.ProfilesTableName,
		Key: map[string]types.AttributeValue{
			"UserId": &types.AttributeValueMemberS{Value: userId},
			"Type":   &types.AttributeValueMemberS{Value: string(matchType)},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return entities.MultiplayerProfile{}, fmt.Errorf("failed to get profile: %w", err)
	}
	if output.Item == nil {
		return entities.NewMultiplayerProfile(userId, matchType), nil
	}
	var profile entities.MultiplayerProfile
	if err := attributevalue.UnmarshalMap(output.Item, &profile); err != nil {
		return entities.MultiplayerProfile{}, fmt.Errorf("failed to unmarshal profile: %w", err)
	}
	return profile, nil
}
