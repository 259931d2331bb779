package storage

import (
	"errors"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/chess-vn/slpuzzle/internal/domains/interfaces"
)

type Config struct {
	MatchesTableName     *string
	UserMatchesTableName *string
	ProfilesTableName    *string
	LevelsTableName      *string
	// MatchStateIndexName is a global secondary index keyed by State.
	MatchStateIndexName *string
}

func NewConfig(matches, userMatches, profiles, levels, stateIndex string) Config {
	return Config{
		MatchesTableName:     aws.String(matches),
		UserMatchesTableName: aws.String(userMatches),
		ProfilesTableName:    aws.String(profiles),
		LevelsTableName:      aws.String(levels),
		MatchStateIndexName:  aws.String(stateIndex),
	}
}

type Client struct {
	dynamodb *dynamodb.Client
	cfg      Config
}

func NewClient(dynamoClient *dynamodb.Client, cfg Config) *Client {
	return &Client{
		dynamodb: dynamoClient,
		cfg:      cfg,
	}
}

var _ interfaces.MatchStore = (*Client)(nil)
var _ interfaces.LevelSource = (*Client)(nil)

const (
	conditionalCheckFailed = "ConditionalCheckFailed"
	transactionConflict    = "TransactionConflict"
)

// conditionError translates a failed conditional write. For transactions,
// reasons maps the index of a cancelled item to the error it stands for;
// unmapped indexes fall back to ErrConditionFailed.
func conditionError(err error, reasons map[int]error) error {
	var ccf *types.ConditionalCheckFailedException
	if errors.As(err, &ccf) {
		return interfaces.ErrConditionFailed
	}
	var tce *types.TransactionCanceledException
	if !errors.As(err, &tce) {
		return err
	}
	for i, reason := range tce.CancellationReasons {
		switch aws.ToString(reason.Code) {
		case transactionConflict:
			return interfaces.ErrConditionFailed
		case conditionalCheckFailed:
		default:
			continue
		}
		if mapped, ok := reasons[i]; ok {
			return mapped
		}
		return interfaces.ErrConditionFailed
	}
	return err
}
