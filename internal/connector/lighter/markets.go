package lighter

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// marketInfo 市场 ID 与精度（价格/数量按 10^n 缩放成整数上链）
type marketInfo struct {
	ID            int
	PriceDecimals int32
	SizeDecimals  int32
}

var marketTable = map[string]marketInfo{
	"ETH-USDC": {ID: 0, PriceDecimals: 2, SizeDecimals: 4},
	"BTC-USDC": {ID: 1, PriceDecimals: 2, SizeDecimals: 6},
	"SOL-USDC": {ID: 2, PriceDecimals: 4, SizeDecimals: 4},
}

func lookupMarket(symbol string) (marketInfo, error) {
	m, ok := marketTable[symbol]
	if !ok {
		return marketInfo{}, fmt.Errorf("unknown market: %s", symbol)
	}
	return m, nil
}

// scaleToInt 按市场精度把 decimal 转成交易所要求的整数表示
func scaleToInt(v decimal.Decimal, decimals int32) int64 {
	return v.Shift(decimals).IntPart()
}

// scaleFromInt 整数表示还原成 decimal
func scaleFromInt(v int64, decimals int32) decimal.Decimal {
	return decimal.New(v, -decimals)
}
