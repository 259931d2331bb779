package storage

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/chess-vn/slpuzzle/internal/domains/entities"
	"github.com/chess-vn/slpuzzle/internal/domains/interfaces"
)

func (client *Client) FindLevels(ctx context.Context, filter interfaces.LevelFilter) ([]entities.Level, error) {
	expression, values := levelFilterExpression(filter)
	paginator := dynamodb.NewScanPaginator(client.dynamodb, &dynamodb.ScanInput{
		TableName:                 client.cfg.LevelsTableName,
		FilterExpression:          aws.String(expression),
		ExpressionAttributeValues: values,
	})

	levels := []entities.Level{}
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to scan levels: %w", err)
		}
		var found []entities.Level
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &found); err != nil {
			return nil, fmt.Errorf("failed to unmarshal levels: %w", err)
		}
		levels = append(levels, found...)
	}
	return levels, nil
}

func levelFilterExpression(filter interfaces.LevelFilter) (string, map[string]types.AttributeValue) {
	conditions := []string{
		"Published = :published",
		"Difficulty >= :minDifficulty",
		"Leastmoves >= :minLeastmoves",
		"ReviewCount >= :minReviews",
		"CalcScore >= :minScore",
	}
	values := map[string]types.AttributeValue{
		":published":     &types.AttributeValueMemberBOOL{Value: true},
		":minDifficulty": floatValue(filter.MinDifficulty),
		":minLeastmoves": intValue(filter.MinLeastmoves),
		":minReviews":    intValue(filter.MinReviews),
		":minScore":      floatValue(filter.MinScore),
	}
	if filter.MaxDifficulty > 0 {
		conditions = append(conditions, "Difficulty < :maxDifficulty")
		values[":maxDifficulty"] = floatValue(filter.MaxDifficulty)
	}
	if filter.GameId != "" {
		conditions = append(conditions, "GameId = :gameId")
		values[":gameId"] = stringValue(filter.GameId)
	}
	return strings.Join(conditions, " AND "), values
}

func floatValue(f float64) types.AttributeValue {
	return &types.AttributeValueMemberN{Value: strconv.FormatFloat(f, 'f', -1, 64)}
}
