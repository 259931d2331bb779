package entities

const (
	ProvisionalThreshold = 5

	DefaultRating          = 1000.0
	DefaultRatingDeviation = 350.0
	DefaultVolatility      = 0.06
)

type MultiplayerProfile struct {
	UserId          string    `dynamodbav:"UserId" json:"userId"`
	Type            MatchType `dynamodbav:"Type" json:"type"`
	Rating          float64   `dynamodbav:"Rating" json:"rating"`
	RatingDeviation float64   `dynamodbav:"RatingDeviation" json:"ratingDeviation"`
	Volatility      float64   `dynamodbav:"Volatility" json:"volatility"`
	MatchCount      int       `dynamodbav:"MatchCount" json:"matchCount"`
}

func NewMultiplayerProfile(userId string, matchType MatchType) MultiplayerProfile {
	return MultiplayerProfile{
		UserId:          userId,
		Type:            matchType,
		Rating:          DefaultRating,
		RatingDeviation: DefaultRatingDeviation,
		Volatility:      DefaultVolatility,
	}
}

// IsProvisional reports whether the rating is still shown as "Unrated".
func (p MultiplayerProfile) IsProvisional() bool {
	return p.MatchCount < ProvisionalThreshold
}
