package query

import "github.com/google/uuid"

// TokenResponse is one launched token's curve snapshot for API queries.
// Every response carries as_of, the ledger length at read time, so clients
// can order snapshots from different endpoints.
type TokenResponse struct {
	TokenAddr       string  `json:"token_addr"`
	Name            string  `json:"name"`
	Symbol          string  `json:"symbol"`
	Decimals        int32   `json:"decimals"`
	Creator         string  `json:"creator"`
	InitialReserves int64   `json:"initial_reserves"`
	RemainReserves  int64   `json:"remain_reserves"`
	CurrentReserves int64   `json:"current_reserves"`
	QuoteReserves   int64   `json:"quote_reserves"`
	SpotPrice       float64 `json:"spot_price"`
	Progress        float64 `json:"progress"`
	TradeCount      int64   `json:"trade_count"`
	CreatedAt       int64   `json:"created_at"`
	AsOf            int     `json:"as_of"`
}

// TokenListResponse wraps the full token listing.
type TokenListResponse struct {
	Tokens []TokenResponse `json:"tokens"`
	AsOf   int             `json:"as_of"`
}

// TradeResponse is one executed trade for API queries.
type TradeResponse struct {
	ID          uuid.UUID `json:"id"`
	TokenAddr   string    `json:"token_addr"`
	Version     int64     `json:"version"`
	Trader      string    `json:"trader"`
	Side        string    `json:"side"`
	TokenAmount int64     `json:"token_amount"`
	QuoteAmount int64     `json:"quote_amount"`
	Price       float64   `json:"price"`
	Timestamp   int64     `json:"ts"`
}

// TradePageResponse is a paginated slice of one token's trades, newest first.
type TradePageResponse struct {
	TokenAddr string          `json:"token_addr,omitempty"`
	Trades    []TradeResponse `json:"trades"`
	Total     int             `json:"total"`
	Limit     int             `json:"limit"`
	Offset    int             `json:"offset"`
	AsOf      int             `json:"as_of"`
}

// HolderResponse is one address's net position on a token.
type HolderResponse struct {
	Addr       string  `json:"addr"`
	Balance    int64   `json:"balance"`
	Percentage float64 `json:"percentage"`
}

// HolderListResponse wraps a token's holder distribution.
type HolderListResponse struct {
	TokenAddr string           `json:"token_addr"`
	Holders   []HolderResponse `json:"holders"`
	AsOf      int              `json:"as_of"`
}

// CandleResponse is one OHLC bucket.
type CandleResponse struct {
	BucketStart int64   `json:"bucket_start"`
	Open        float64 `json:"open"`
	High        float64 `json:"high"`
	Low         float64 `json:"low"`
	Close       float64 `json:"close"`
	Volume      int64   `json:"volume"`
	BuyVolume   int64   `json:"buy_volume"`
	SellVolume  int64   `json:"sell_volume"`
	Trades      int     `json:"trades"`
}

// ChartResponse wraps a token's candle series, ascending by bucket.
type ChartResponse struct {
	TokenAddr string           `json:"token_addr"`
	Interval  int64            `json:"interval"`
	Candles   []CandleResponse `json:"candles"`
	AsOf      int              `json:"as_of"`
}

// TokenPNLResponse is one trader's profit and loss on a single token.
type TokenPNLResponse struct {
	TokenAddr  string  `json:"token_addr"`
	User       string  `json:"user,omitempty"`
	Held       int64   `json:"held"`
	AvgEntry   float64 `json:"avg_entry"`
	CostBasis  float64 `json:"cost_basis"`
	Realized   float64 `json:"realized"`
	Unrealized float64 `json:"unrealized"`
	Total      float64 `json:"total"`
	Trades     int     `json:"trades"`
	AsOf       int     `json:"as_of,omitempty"`
}

// UserPNLResponse aggregates a trader's PNL across every token they touched.
type UserPNLResponse struct {
	User       string             `json:"user"`
	Tokens     []TokenPNLResponse `json:"tokens"`
	Realized   float64            `json:"realized"`
	Unrealized float64            `json:"unrealized"`
	Total      float64            `json:"total"`
	AsOf       int                `json:"as_of"`
}

// StakePositionResponse is one user's position in a stake pool.
type StakePositionResponse struct {
	StakeAddr   string `json:"stake_addr"`
	User        string `json:"user"`
	Amount      int64  `json:"amount"`
	LastVersion int64  `json:"version"`
	UpdatedAt   int64  `json:"updated_at"`
	AsOf        int    `json:"as_of"`
}

// StakeStatsResponse summarizes one stake pool.
type StakeStatsResponse struct {
	StakeAddr      string `json:"stake_addr"`
	ActiveStakers  int    `json:"active_stakers"`
	TotalStaked    int64  `json:"total_staked"`
	AppliedVersion int64  `json:"applied_version"`
	AsOf           int    `json:"as_of"`
}
