package dto

import (
	"github.com/zxtrader/pricing-sub000/internal/money"
)

// Error codes returned in ErrorInfo
const (
	CodeInvalidArgument = "INVALID_ARGUMENT"
	CodeInvalidDate     = "INVALID_DATE"
	CodeSourceFailure   = "SOURCE_FAILURE"
	CodeInternalError   = "INTERNAL_ERROR"
)

// Response is the envelope of every JSON reply
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *ErrorInfo  `json:"error,omitempty"`
}

// ErrorInfo represents error information
type ErrorInfo struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

// SourceFailure names one failed source in a partial result
type SourceFailure struct {
	Source  string `json:"source"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// RateData is the reply of a single rate lookup
type RateData struct {
	Exchange       string       `json:"exchange,omitempty"`
	Date           int64        `json:"date"`
	MarketCurrency string       `json:"marketCurrency"`
	TradeCurrency  string       `json:"tradeCurrency"`
	Price          *money.Money `json:"price"`
}

// HealthData represents health status information
type HealthData struct {
	Status    string                    `json:"status"`
	Timestamp string                    `json:"timestamp"`
	Uptime    string                    `json:"uptime"`
	Services  map[string]*ServiceHealth `json:"services"`
	Sources   []string                  `json:"sources"`
	Realtime  interface{}               `json:"realtime,omitempty"`
	Engine    interface{}               `json:"engine,omitempty"`
}

// ServiceHealth represents the health of a specific backing service
type ServiceHealth struct {
	Status    string `json:"status"`
	Latency   int64  `json:"latency_ms,omitempty"`
	LastCheck string `json:"last_check"`
	Error     string `json:"error,omitempty"`
	// Backend counters, e.g. cache hit ratio
	Metrics interface{} `json:"metrics,omitempty"`
}

// StreamMessage is one websocket frame
type StreamMessage struct {
	Type string      `json:"type"`
	ID   string      `json:"id,omitempty"`
	Data interface{} `json:"data,omitempty"`
}

func NewSuccessResponse(data interface{}) *Response {
	return &Response{Success: true, Data: data}
}

func NewErrorResponse(code, message string, details interface{}) *Response {
	return &Response{
		Success: false,
		Error: &ErrorInfo{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}
