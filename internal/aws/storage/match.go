package storage

import (
	"context"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/chess-vn/slpuzzle/internal/domains/entities"
	"github.com/chess-vn/slpuzzle/internal/domains/interfaces"
)

func (client *Client) matchKey(matchId string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"MatchId": &types.AttributeValueMemberS{Value: matchId},
	}
}

func (client *Client) CreateMatch(ctx context.Context, match entities.Match) error {
	item, err := newMatchItem(match)
	if err != nil {
		return err
	}
	matchAv, err := attributevalue.MarshalMap(item)
	if err != nil {
		return fmt.Errorf("failed to marshal match: %w", err)
	}
	userMatchAv, err := attributevalue.MarshalMap(userMatchItem{
		UserId:  match.CreatedBy,
		MatchId: match.MatchId,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal user match: %w", err)
	}

	_, err = client.dynamodb.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{
				Put: &types.Put{
					TableName:           client.cfg.MatchesTableName,
					Item:                matchAv,
					ConditionExpression: aws.String("attribute_not_exists(MatchId)"),
				},
			},
			{
				Put: &types.Put{
					TableName:           client.cfg.UserMatchesTableName,
					Item:                userMatchAv,
					ConditionExpression: aws.String("attribute_not_exists(UserId)"),
				},
			},
		},
	})
	if err != nil {
		return conditionError(err, map[int]error{1: interfaces.ErrAlreadyInMatch})
	}
	return nil
}

func (client *Client) GetMatch(ctx context.Context, matchId string) (entities.Match, error) {
	output, err := client.dynamodb.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      client.cfg.MatchesTableName,
		Key:            client.matchKey(matchId),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return entities.Match{}, fmt.Errorf("failed to get match: %w", err)
	}
	if output.Item == nil {
		return entities.Match{}, interfaces.ErrMatchNotFound
	}
	return unmarshalMatch(output.Item)
}

func unmarshalMatch(av map[string]types.AttributeValue) (entities.Match, error) {
	var item matchItem
	if err := attributevalue.UnmarshalMap(av, &item); err != nil {
		return entities.Match{}, fmt.Errorf("failed to unmarshal match: %w", err)
	}
	return item.toMatch()
}

func (client *Client) ListMatches(ctx context.Context, states ...entities.MatchState) ([]entities.Match, error) {
	matches := []entities.Match{}
	for _, state := range states {
		found, err := client.queryByState(ctx, state, "", nil)
		if err != nil {
			return nil, err
		}
		matches = append(matches, found...)
	}
	return matches, nil
}

func (client *Client) ListActiveMatchesWithLevel(ctx context.Context, levelId string) ([]entities.Match, error) {
	return client.queryByState(ctx, entities.MatchStateActive,
		"contains(LevelIds, :levelId)",
		map[string]types.AttributeValue{
			":levelId": &types.AttributeValueMemberS{Value: levelId},
		},
	)
}

func (client *Client) queryByState(
	ctx context.Context,
	state entities.MatchState,
	filter string,
	filterValues map[string]types.AttributeValue,
) ([]entities.Match, error) {
	values := map[string]types.AttributeValue{
		":state": &types.AttributeValueMemberS{Value: string(state)},
	}
	for k, v := range filterValues {
		values[k] = v
	}
	input := &dynamodb.QueryInput{
		TableName:                 client.cfg.MatchesTableName,
		IndexName:                 client.cfg.MatchStateIndexName,
		KeyConditionExpression:    aws.String("#state = :state"),
		ExpressionAttributeNames:  map[string]string{"#state": "State"},
		ExpressionAttributeValues: values,
	}
	if filter != "" {
		input.FilterExpression = aws.String(filter)
	}

	matches := []entities.Match{}
	paginator := dynamodb.NewQueryPaginator(client.dynamodb, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to query matches: %w", err)
		}
		for _, av := range page.Items {
			match, err := unmarshalMatch(av)
			if err != nil {
				return nil, err
			}
			matches = append(matches, match)
		}
	}
	return matches, nil
}

func (client *Client) GetUserMatchId(ctx context.Context, userId string) (string, error) {
	output, err := client.dynamodb.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: client.cfg.UserMatchesTableName,
		Key: map[string]types.AttributeValue{
			"UserId": &types.AttributeValueMemberS{Value: userId},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return "", fmt.Errorf("failed to get user match: %w", err)
	}
	if output.Item == nil {
		return "", interfaces.ErrUserMatchNotFound
	}
	var item userMatchItem
	if err := attributevalue.UnmarshalMap(output.Item, &item); err != nil {
		return "", fmt.Errorf("failed to unmarshal user match: %w", err)
	}
	return item.MatchId, nil
}

func (client *Client) JoinMatch(ctx context.Context, input interfaces.JoinMatchInput) (entities.Match, error) {
	current, err := client.GetMatch(ctx, input.MatchId)
	if err != nil {
		return entities.Match{}, err
	}
	if len(current.Players) != 1 {
		return entities.Match{}, interfaces.ErrConditionFailed
	}
	creator := current.Players[0]

	entry, err := client.marshalEntries(input.Entry)
	if err != nil {
		return entities.Match{}, err
	}
	levelIds := make([]string, 0, len(input.Levels))
	for _, level := range input.Levels {
		levelIds = append(levelIds, level.Id)
	}
	levels, err := attributevalue.Marshal(input.Levels)
	if err != nil {
		return entities.Match{}, fmt.Errorf("failed to marshal levels: %w", err)
	}
	gameTable, err := attributevalue.Marshal(map[string][]string{
		creator:      {},
		input.UserId: {},
	})
	if err != nil {
		return entities.Match{}, fmt.Errorf("failed to marshal game table: %w", err)
	}
	userMatchAv, err := attributevalue.MarshalMap(userMatchItem{
		UserId:  input.UserId,
		MatchId: input.MatchId,
	})
	if err != nil {
		return entities.Match{}, fmt.Errorf("failed to marshal user match: %w", err)
	}

	_, err = client.dynamodb.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{
				Update: &types.Update{
					TableName: client.cfg.MatchesTableName,
					Key:       client.matchKey(input.MatchId),
					ConditionExpression: aws.String(
						"#state = :open AND size(Players) = :one AND Players[0] = :creator AND NOT contains(Players, :userId)",
					),
					UpdateExpression: aws.String(
						"SET #state = :active, Players = list_append(Players, :joiner), StartTime = :startTime, " +
							"EndTime = :endTime, Levels = :levels, LevelIds = :levelIds, GameTable = :gameTable, " +
							"MatchLog = list_append(MatchLog, :entry)",
					),
					ExpressionAttributeNames: map[string]string{"#state": "State"},
					ExpressionAttributeValues: map[string]types.AttributeValue{
						":open":      stringValue(string(entities.MatchStateOpen)),
						":active":    stringValue(string(entities.MatchStateActive)),
						":one":       intValue(1),
						":creator":   stringValue(creator),
						":userId":    stringValue(input.UserId),
						":joiner":    stringList(input.UserId),
						":startTime": intValue(toMillis(input.StartTime)),
						":endTime":   intValue(toMillis(input.EndTime)),
						":levels":    levels,
						":levelIds":  stringList(levelIds...),
						":gameTable": gameTable,
						":entry":     entry,
					},
				},
			},
			{
				Put: &types.Put{
					TableName:           client.cfg.UserMatchesTableName,
					Item:                userMatchAv,
					ConditionExpression: aws.String("attribute_not_exists(UserId)"),
				},
			},
		},
	})
	if err != nil {
		return entities.Match{}, conditionError(err, map[int]error{1: interfaces.ErrAlreadyInMatch})
	}
	return client.GetMatch(ctx, input.MatchId)
}

func (client *Client) QuitMatch(ctx context.Context, input interfaces.QuitMatchInput) (entities.Match, error) {
	current, err := client.GetMatch(ctx, input.MatchId)
	if err != nil {
		return entities.Match{}, err
	}
	entry, err := client.marshalEntries(input.Entry)
	if err != nil {
		return entities.Match{}, err
	}
	player := fmt.Sprintf("Players[%d]", input.PlayerIndex)

	items := []types.TransactWriteItem{
		{
			Update: &types.Update{
				TableName: client.cfg.MatchesTableName,
				Key:       client.matchKey(input.MatchId),
				ConditionExpression: aws.String(
					"#state IN (:open, :active) AND size(Players) = :players AND " + player + " = :userId",
				),
				UpdateExpression: aws.String(
					"REMOVE " + player + " SET #state = :aborted, MatchLog = list_append(MatchLog, :entry)",
				),
				ExpressionAttributeNames: map[string]string{"#state": "State"},
				ExpressionAttributeValues: map[string]types.AttributeValue{
					":open":    stringValue(string(entities.MatchStateOpen)),
					":active":  stringValue(string(entities.MatchStateActive)),
					":aborted": stringValue(string(entities.MatchStateAborted)),
					":players": intValue(int64(len(current.Players))),
					":userId":  stringValue(input.UserId),
					":entry":   entry,
				},
			},
		},
	}
	items = append(items, client.releaseUserMatches(input.MatchId, current.Players)...)

	_, err = client.dynamodb.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: items,
	})
	if err != nil {
		return entities.Match{}, conditionError(err, nil)
	}
	return client.GetMatch(ctx, input.MatchId)
}

func (client *Client) StartMatch(ctx context.Context, matchId string, entry entities.LogEntry) (entities.Match, error) {
	entryAv, err := client.marshalEntries(entry)
	if err != nil {
		return entities.Match{}, err
	}
	output, err := client.dynamodb.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           client.cfg.MatchesTableName,
		Key:                 client.matchKey(matchId),
		ConditionExpression: aws.String("#state = :active AND Started = :false AND size(Players) = :two"),
		UpdateExpression:    aws.String("SET Started = :true, MatchLog = list_append(MatchLog, :entry)"),
		ExpressionAttributeNames: map[string]string{
			"#state": "State",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":active": stringValue(string(entities.MatchStateActive)),
			":false":  &types.AttributeValueMemberBOOL{Value: false},
			":true":   &types.AttributeValueMemberBOOL{Value: true},
			":two":    intValue(entities.MaxPlayers),
			":entry":  entryAv,
		},
		ReturnValues: types.ReturnValueAllNew,
	})
	if err != nil {
		return entities.Match{}, conditionError(err, nil)
	}
	return unmarshalMatch(output.Attributes)
}

func (client *Client) CompleteLevel(ctx context.Context, input interfaces.CompleteLevelInput) (entities.Match, error) {
	entry, err := client.marshalEntries(input.Entry)
	if err != nil {
		return entities.Match{}, err
	}
	output, err := client.dynamodb.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: client.cfg.MatchesTableName,
		Key:       client.matchKey(input.MatchId),
		ConditionExpression: aws.String(
			"#state = :active AND StartTime <= :now AND EndTime > :now AND attribute_exists(GameTable.#userId) AND " +
				"contains(LevelIds, :levelId) AND NOT contains(GameTable.#userId, :levelId)",
		),
		UpdateExpression: aws.String(
			"SET GameTable.#userId = list_append(GameTable.#userId, :level), MatchLog = list_append(MatchLog, :entry)",
		),
		ExpressionAttributeNames: map[string]string{
			"#state":  "State",
			"#userId": input.UserId,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":active":  stringValue(string(entities.MatchStateActive)),
			":now":     intValue(toMillis(input.Now)),
			":levelId": stringValue(input.LevelId),
			":level":   stringList(input.LevelId),
			":entry":   entry,
		},
		ReturnValues: types.ReturnValueAllNew,
	})
	if err != nil {
		return entities.Match{}, conditionError(err, nil)
	}
	return unmarshalMatch(output.Attributes)
}

func (client *Client) SkipLevel(ctx context.Context, input interfaces.SkipLevelInput) (entities.Match, error) {
	entry, err := client.marshalEntries(input.Entry)
	if err != nil {
		return entities.Match{}, err
	}
	output, err := client.dynamodb.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: client.cfg.MatchesTableName,
		Key:       client.matchKey(input.MatchId),
		ConditionExpression: aws.String(
			"#state = :active AND EndTime > :now AND attribute_exists(GameTable.#userId) AND " +
				"NOT contains(GameTable.#userId, :skip) AND size(GameTable.#userId) = :observed",
		),
		UpdateExpression: aws.String(
			"SET GameTable.#userId = list_append(GameTable.#userId, :skipped), MatchLog = list_append(MatchLog, :entry)",
		),
		ExpressionAttributeNames: map[string]string{
			"#state":  "State",
			"#userId": input.UserId,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":active":   stringValue(string(entities.MatchStateActive)),
			":now":      intValue(toMillis(input.Now)),
			":skip":     stringValue(entities.SkipSentinel),
			":skipped":  stringList(entities.SkipSentinel),
			":observed": intValue(int64(input.ObservedLen)),
			":entry":    entry,
		},
		ReturnValues: types.ReturnValueAllNew,
	})
	if err != nil {
		return entities.Match{}, conditionError(err, nil)
	}
	return unmarshalMatch(output.Attributes)
}

func (client *Client) FinishMatch(ctx context.Context, input interfaces.FinishMatchInput) (entities.Match, error) {
	current, err := client.GetMatch(ctx, input.MatchId)
	if err != nil {
		return entities.Match{}, err
	}
	entries, err := client.marshalEntries(input.Entries...)
	if err != nil {
		return entities.Match{}, err
	}

	items := []types.TransactWriteItem{
		{
			Update: &types.Update{
				TableName:           client.cfg.MatchesTableName,
				Key:                 client.matchKey(input.MatchId),
				ConditionExpression: aws.String("#state = :active"),
				UpdateExpression: aws.String(
					"SET #state = :finished, Winners = :winners, MatchLog = list_append(MatchLog, :entries)",
				),
				ExpressionAttributeNames: map[string]string{"#state": "State"},
				ExpressionAttributeValues: map[string]types.AttributeValue{
					":active":   stringValue(string(entities.MatchStateActive)),
					":finished": stringValue(string(entities.MatchStateFinished)),
					":winners":  stringList(input.Winners...),
					":entries":  entries,
				},
			},
		},
	}
	for _, update := range input.Profiles {
		av, err := attributevalue.MarshalMap(update.Profile)
		if err != nil {
			return entities.Match{}, fmt.Errorf("failed to marshal profile: %w", err)
		}
		items = append(items, types.TransactWriteItem{
			Put: &types.Put{
				TableName:           client.cfg.ProfilesTableName,
				Item:                av,
				ConditionExpression: aws.String("attribute_not_exists(UserId) OR MatchCount = :expected"),
				ExpressionAttributeValues: map[string]types.AttributeValue{
					":expected": intValue(int64(update.ExpectedMatchCount)),
				},
			},
		})
	}
	items = append(items, client.releaseUserMatches(input.MatchId, current.Players)...)

	_, err = client.dynamodb.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: items,
	})
	if err != nil {
		return entities.Match{}, conditionError(err, nil)
	}
	return client.GetMatch(ctx, input.MatchId)
}

func (client *Client) AbortMatch(ctx context.Context, input interfaces.AbortMatchInput) (entities.Match, error) {
	current, err := client.GetMatch(ctx, input.MatchId)
	if err != nil {
		return entities.Match{}, err
	}
	entry, err := client.marshalEntries(input.Entry)
	if err != nil {
		return entities.Match{}, err
	}

	condition := "#state = :active"
	update := "SET #state = :aborted, MatchLog = list_append(MatchLog, :entry)"
	values := map[string]types.AttributeValue{
		":active":  stringValue(string(entities.MatchStateActive)),
		":aborted": stringValue(string(entities.MatchStateAborted)),
		":entry":   entry,
	}
	if input.LevelId != "" {
		// Levels and LevelIds share their order.
		index := strconv.Itoa(input.LevelIndex)
		condition += " AND LevelIds[" + index + "] = :levelId"
		update = "REMOVE LevelIds[" + index + "], Levels[" + index + "] " + update
		values[":levelId"] = stringValue(input.LevelId)
	}

	items := []types.TransactWriteItem{
		{
			Update: &types.Update{
				TableName:                 client.cfg.MatchesTableName,
				Key:                       client.matchKey(input.MatchId),
				ConditionExpression:       aws.String(condition),
				UpdateExpression:          aws.String(update),
				ExpressionAttributeNames:  map[string]string{"#state": "State"},
				ExpressionAttributeValues: values,
			},
		},
	}
	items = append(items, client.releaseUserMatches(input.MatchId, current.Players)...)

	_, err = client.dynamodb.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: items,
	})
	if err != nil {
		return entities.Match{}, conditionError(err, nil)
	}
	return client.GetMatch(ctx, input.MatchId)
}

// releaseUserMatches deletes the user-match rows still pointing at the match.
func (client *Client) releaseUserMatches(matchId string, players []string) []types.TransactWriteItem {
	items := make([]types.TransactWriteItem, 0, len(players))
	for _, userId := range players {
		items = append(items, types.TransactWriteItem{
			Delete: &types.Delete{
				TableName: client.cfg.UserMatchesTableName,
				Key: map[string]types.AttributeValue{
					"UserId": stringValue(userId),
				},
				ConditionExpression: aws.String("attribute_not_exists(UserId) OR MatchId = :matchId"),
				ExpressionAttributeValues: map[string]types.AttributeValue{
					":matchId": stringValue(matchId),
				},
			},
		})
	}
	return items
}

func (client *Client) marshalEntries(entries ...entities.LogEntry) (types.AttributeValue, error) {
	items, err := newLogItems(entries...)
	if err != nil {
		return nil, err
	}
	av, err := attributevalue.Marshal(items)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal log entries: %w", err)
	}
	return av, nil
}

func stringValue(s string) types.AttributeValue {
	return &types.AttributeValueMemberS{Value: s}
}

func intValue[T int | int64](n T) types.AttributeValue {
	return &types.AttributeValueMemberN{Value: strconv.FormatInt(int64(n), 10)}
}

func stringList(values ...string) types.AttributeValue {
	list := make([]types.AttributeValue, 0, len(values))
	for _, v := range values {
		list = append(list, stringValue(v))
	}
	return &types.AttributeValueMemberL{Value: list}
}
