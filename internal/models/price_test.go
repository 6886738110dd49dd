package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zxtrader/pricing-sub000/internal/money"
)

func TestParseTimestamp(t *testing.T) {
	tm, err := ParseTimestamp(20180101101130)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2018, 1, 1, 10, 11, 30, 0, time.UTC), tm)

	for _, ts := range []int64{201801011011, 20180132101130, 20181301101130, 20180101250000, 0, -20180101101130} {
		_, err := ParseTimestamp(ts)
		assert.Error(t, err, "ts %d", ts)
	}
}

func TestFormatTimestamp(t *testing.T) {
	tm := time.Date(2018, 1, 1, 10, 10, 10, 0, time.UTC)
	assert.Equal(t, int64(20180101101010), FormatTimestamp(tm))
}

func TestTimestampSetGet(t *testing.T) {
	res := Timestamp{}
	assert.Nil(t, res.Get(1, "USDT", "BTC"))

	avg := &Average{Avg: NewPriceValue(money.MustParse("6500"))}
	res.Set(20180101101010, "USDT", "BTC", avg)
	assert.Same(t, avg, res.Get(20180101101010, "USDT", "BTC"))
	assert.Nil(t, res.Get(20180101101010, "USDT", "ETH"))
}

func TestTimestampJSON(t *testing.T) {
	res := Timestamp{}
	res.Set(20180101101010, "USDT", "BTC", &Average{Avg: NewPriceValue(money.MustParse("6500"))})
	res.Set(20180101101010, "USDT", "ETH", &Average{})

	data, err := json.Marshal(res)
	require.NoError(t, err)
	assert.JSONEq(t, `{"20180101101010":{"USDT":{
		"BTC":{"avg":{"price":"6500.00000000"}},
		"ETH":{"avg":null}
	}}}`, string(data))
}
