package screening_test

import (
	"fmt"

	"github.com/esclipse/SynthraCloud/internal/screening"
)

// ExampleNormalizeSymbols shows the separators accepted in symbol input
func ExampleNormalizeSymbols() {
	fmt.Println(screening.NormalizeSymbols("600519，000001、300750\n002594"))
	// Output:
	// 600519,000001,300750,002594
}

// ExampleParseNumber shows permissive numeric coercion
func ExampleParseNumber() {
	for _, v := range []interface{}{"1,700.50", 12.5, "n/a", nil} {
		if n := screening.ParseNumber(v); n != nil {
			fmt.Printf("%v -> %.2f\n", v, *n)
		} else {
			fmt.Printf("%v -> null\n", v)
		}
	}
	// Output:
	// 1,700.50 -> 1700.50
	// 12.5 -> 12.50
	// n/a -> null
	// <nil> -> null
}

// ExampleMerge shows two strategies hitting the same symbol
func ExampleMerge() {
	price := 1700.5
	merged := screening.Merge([]screening.Match{
		{Symbol: "600519", Name: "贵州茅台", Strategy: "趋势突破"},
		{Symbol: "000001", Strategy: "趋势突破"},
		{Symbol: "600519", Close: &price, Strategy: "放量上涨"},
	})

	for _, m := range merged {
		fmt.Println(m.Symbol, m.Name, m.Close != nil, m.Strategy)
	}
	// Output:
	// 600519 贵州茅台 true 趋势突破、放量上涨
	// 000001  false 趋势突破
}
