package api

import (
	"context"
	"encoding/json"
	"net/url"
)

// User is a dashboard account
type User struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Email       string  `json:"email"`
	Tier        string  `json:"tier"`
	Balance     float64 `json:"balance"`
	WinRate     float64 `json:"winRate"`
	TotalProfit float64 `json:"totalProfit"`
}

// Prediction is a model pick for one event outcome
type Prediction struct {
	ID           string  `json:"id"`
	Event        string  `json:"event"`
	Outcome      string  `json:"outcome"`
	Odds         float64 `json:"odds"`
	Confidence   float64 `json:"confidence"`
	Edge         float64 `json:"edge"`
	ModelProb    float64 `json:"modelProb"`
	CommenceTime string  `json:"commenceTime"`
	Sport        string  `json:"sport"`
	League       string  `json:"league"`
}

// SystemHealth is the backend status summary
type SystemHealth struct {
	Status            string  `json:"status"` // online | offline | degraded
	Accuracy          float64 `json:"accuracy"`
	ActivePredictions int     `json:"activePredictions"`
	Uptime            float64 `json:"uptime"`
	LastUpdate        string  `json:"lastUpdate"`
}

// AccuracyMetrics reports model accuracy
type AccuracyMetrics struct {
	OverallAccuracy float64 `json:"overall_accuracy"`
	DailyAccuracy   float64 `json:"daily_accuracy"`
}

// UserAnalytics holds per-year profit for a user
type UserAnalytics struct {
	Yearly map[int]float64 `json:"yearly"`
}

// PropFilter narrows prop and recommendation listings. Zero fields are omitted.
type PropFilter struct {
	Sport         string
	Strategy      string
	MinConfidence float64
}

func (f PropFilter) params() map[string]any {
	p := map[string]any{}
	if f.Sport != "" {
		p["sport"] = f.Sport
	}
	if f.Strategy != "" {
		p["strategy"] = f.Strategy
	}
	if f.MinConfidence > 0 {
		p["minConfidence"] = f.MinConfidence
	}
	return p
}

// GetUser fetches /users/{id}
func (a *API) GetUser(ctx context.Context, userID string) Envelope[User] {
	return Get[User](ctx, a, "/users/"+url.PathEscape(userID), nil)
}

// UpdateUser writes a partial user and invalidates cached /users reads
func (a *API) UpdateUser(ctx context.Context, userID string, patch map[string]any) Envelope[User] {
	return Put[User](ctx, a, "/users/"+url.PathEscape(userID), patch)
}

// GetPredictions lists predictions, optionally filtered by sport and league
func (a *API) GetPredictions(ctx context.Context, sport, league string) Envelope[[]Prediction] {
	params := map[string]any{}
	if sport != "" {
		params["sport"] = sport
	}
	if league != "" {
		params["league"] = league
	}
	return Get[[]Prediction](ctx, a, "/predictions", params)
}

// GetPrediction fetches one prediction
func (a *API) GetPrediction(ctx context.Context, predictionID string) Envelope[Prediction] {
	return Get[Prediction](ctx, a, "/predictions/"+url.PathEscape(predictionID), nil)
}

// GetSystemHealth fetches /health
func (a *API) GetSystemHealth(ctx context.Context) Envelope[SystemHealth] {
	return Get[SystemHealth](ctx, a, "/health", nil)
}

// GetAccuracyMetrics fetches /metrics/accuracy
func (a *API) GetAccuracyMetrics(ctx context.Context) Envelope[AccuracyMetrics] {
	return Get[AccuracyMetrics](ctx, a, "/metrics/accuracy", nil)
}

// GetUserAnalytics fetches yearly analytics for a user
func (a *API) GetUserAnalytics(ctx context.Context, userID string) Envelope[UserAnalytics] {
	return Get[UserAnalytics](ctx, a, "/analytics/users/"+url.PathEscape(userID), nil)
}

// GetPrizePicksProps lists available props
func (a *API) GetPrizePicksProps(ctx context.Context, f PropFilter) Envelope[[]json.RawMessage] {
	return Get[[]json.RawMessage](ctx, a, "/api/prizepicks/props", f.params())
}

// GetPrizePicksRecommendations lists recommended props
func (a *API) GetPrizePicksRecommendations(ctx context.Context, f PropFilter) Envelope[[]json.RawMessage] {
	return Get[[]json.RawMessage](ctx, a, "/api/prizepicks/recommendations", f.params())
}

// GetBettingOpportunities lists opportunities above minEdge (0 for all)
func (a *API) GetBettingOpportunities(ctx context.Context, sport string, minEdge float64) Envelope[[]json.RawMessage] {
	params := map[string]any{}
	if sport != "" {
		params["sport"] = sport
	}
	if minEdge > 0 {
		params["minEdge"] = minEdge
	}
	return Get[[]json.RawMessage](ctx, a, "/api/betting-opportunities", params)
}

// GetArbitrageOpportunities lists current arbitrage opportunities
func (a *API) GetArbitrageOpportunities(ctx context.Context) Envelope[[]json.RawMessage] {
	return Get[[]json.RawMessage](ctx, a, "/api/arbitrage-opportunities", nil)
}

// GetPortfolioAnalysis fetches the portfolio analysis for a user
func (a *API) GetPortfolioAnalysis(ctx context.Context, userID string) Envelope[json.RawMessage] {
	return Get[json.RawMessage](ctx, a, "/api/portfolio/"+url.PathEscape(userID)+"/analysis", nil)
}

// SendChatMessage posts a message to the assistant
func (a *API) SendChatMessage(ctx context.Context, message string, chatContext any) Envelope[json.RawMessage] {
	return Post[json.RawMessage](ctx, a, "/api/propollama/chat", map[string]any{
		"message": message,
		"context": chatContext,
	})
}

// HealthCheck reports whether /health answers successfully. It never uses
// the cache.
func (a *API) HealthCheck(ctx context.Context) bool {
	return Get[SystemHealth](ctx, a, "/health", nil, WithoutCache()).Success
}
