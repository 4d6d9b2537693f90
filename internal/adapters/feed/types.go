package feed

import "time"

// DTOs raw del colaborador. Solo se usan dentro de este paquete.
// La conversión a domain entities se hace en mapping.go.

// opportunitiesResponse es la respuesta de GET /v1/opportunities.
type opportunitiesResponse struct {
	Events    []eventDTO    `json:"events"`
	Positions []positionDTO `json:"positions"`
}

// eventDTO es un evento deportivo con las cuotas de cada bookmaker.
type eventDTO struct {
	ID           string         `json:"id"`
	SportKey     string         `json:"sport_key"`
	CommenceTime time.Time      `json:"commence_time"`
	HomeTeam     string         `json:"home_team"`
	AwayTeam     string         `json:"away_team"`
	Bookmakers   []bookmakerDTO `json:"bookmakers"`
}

type bookmakerDTO struct {
	Key        string      `json:"key"`
	Title      string      `json:"title"`
	LastUpdate time.Time   `json:"last_update"`
	Markets    []marketDTO `json:"markets"`
}

// marketDTO: Key es h2h, spreads o totals.
type marketDTO struct {
	Key      string       `json:"key"`
	Outcomes []outcomeDTO `json:"outcomes"`
}

// outcomeDTO: Name es el equipo (h2h, spreads) u Over/Under (totals).
type outcomeDTO struct {
	Name  string   `json:"name"`
	Price float64  `json:"price"`
	Point *float64 `json:"point,omitempty"`
}

// positionDTO es una oportunidad de precio (prediction, crypto, equity).
type positionDTO struct {
	ID             string     `json:"id"`
	MarketID       string     `json:"market_id"`
	EventID        string     `json:"event_id"`
	Question       string     `json:"question"`
	Outcome        string     `json:"outcome"`
	Symbol         string     `json:"symbol"`
	AssetClass     string     `json:"asset_class"`
	Direction      string     `json:"direction"`
	CorrelationTag string     `json:"correlation_tag"`
	Price          float64    `json:"price"`
	Target         float64    `json:"target"`
	Stop           float64    `json:"stop"`
	MaxHoldHours   float64    `json:"max_hold_hours"`
	Quotes         []quoteDTO `json:"quotes"`
	RecentPrices   []float64  `json:"recent_prices"`
	Timestamp      time.Time  `json:"timestamp"`
	Expiry         *time.Time `json:"expiry,omitempty"`
}

// quoteDTO es el valor justo estimado por una fuente independiente.
type quoteDTO struct {
	Source string    `json:"source"`
	Price  float64   `json:"price"`
	At     time.Time `json:"at"`
}

// pricesResponse es la respuesta de GET /v1/prices.
type pricesResponse struct {
	Prices []priceDTO `json:"prices"`
}

type priceDTO struct {
	Symbol string    `json:"symbol"`
	Price  float64   `json:"price"`
	At     time.Time `json:"at"`
}

// scoreDTO es un item de GET /v1/scores. Los eventos traen marcadores como
// strings; las posiciones traen symbol + final_price.
type scoreDTO struct {
	ID         string      `json:"id"`
	SportKey   string      `json:"sport_key"`
	Completed  bool        `json:"completed"`
	HomeTeam   string      `json:"home_team"`
	AwayTeam   string      `json:"away_team"`
	Scores     []teamScore `json:"scores"`
	LastUpdate *time.Time  `json:"last_update,omitempty"`
	Symbol     string      `json:"symbol,omitempty"`
	FinalPrice float64     `json:"final_price,omitempty"`
	Source     string      `json:"source,omitempty"`
}

type teamScore struct {
	Name  string `json:"name"`
	Score string `json:"score"`
}

// signalDTO es la respuesta de GET /v1/signals/{key}. Pct es una fracción del bankroll.
type signalDTO struct {
	Key    string    `json:"key"`
	Pct    float64   `json:"pct"`
	At     time.Time `json:"at"`
	Source string    `json:"source"`
}
