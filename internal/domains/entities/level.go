package entities

type Level struct {
	Id          string  `dynamodbav:"LevelId" json:"_id"`
	GameId      string  `dynamodbav:"GameId" json:"gameId"`
	Name        string  `dynamodbav:"Name" json:"name"`
	Slug        string  `dynamodbav:"Slug" json:"slug"`
	Difficulty  float64 `dynamodbav:"Difficulty" json:"difficultyEstimate"`
	Leastmoves  int     `dynamodbav:"Leastmoves" json:"leastMoves"`
	ReviewCount int     `dynamodbav:"ReviewCount" json:"reviewCount"`
	CalcScore   float64 `dynamodbav:"CalcScore" json:"calcReviewScore"`
	Published   bool    `dynamodbav:"Published" json:"-"`
}
