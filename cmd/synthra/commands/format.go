package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/esclipse/SynthraCloud/internal/apiclient"
	"github.com/esclipse/SynthraCloud/internal/screening"
)

// ═══════════════════════════════════════════════════════════
// Common Formatting Utilities
// 모든 커맨드가 동일한 출력 포맷을 사용하도록 통일
// ═══════════════════════════════════════════════════════════

const (
	ruleHeavy = "═══════════════════════════════════════════════════════════"
	ruleLight = "───────────────────────────────────────────────────────────"
)

// PrintHeader prints a formatted command header
func PrintHeader(title string, fields [][2]string) {
	fmt.Println()
	fmt.Println(ruleHeavy)
	fmt.Printf("  %s\n", title)
	fmt.Println(ruleLight)
	for _, f := range fields {
		if f[1] == "" {
			continue
		}
		fmt.Printf("  %-10s: %s\n", f[0], f[1])
	}
	fmt.Println(ruleLight)
}

// PrintPending prints one pending poll answer
func PrintPending(p *screening.Pending) {
	fmt.Printf("[Poll] status=%s, retry in %dms\n", p.Status, p.RetryInMs)
}

// PrintResponse prints a pending or completed answer
func PrintResponse(out *apiclient.Response) {
	if jsonOutput {
		printJSON(out.Raw)
		return
	}
	if out.Pending != nil {
		PrintPending(out.Pending)
		fmt.Printf("  pollToken : %s\n", out.Pending.PollToken)
		return
	}
	PrintResult(out.Result)
}

// PrintResult prints a completed screening as a table
func PrintResult(res *screening.Result) {
	if jsonOutput {
		data, _ := json.Marshal(res)
		printJSON(data)
		return
	}

	fmt.Println()
	fmt.Printf("✅ %d matched / %d screened\n", res.Stats.Matched, res.Stats.Total)
	if len(res.Matches) > 0 {
		fmt.Println(ruleLight)
		fmt.Printf("  %-10s %-10s %10s %8s %8s  %s\n", "SYMBOL", "NAME", "CLOSE", "CHG%", "VOLR", "STRATEGY")
		for _, m := range res.Matches {
			fmt.Printf("  %-10s %-10s %10s %8s %8s  %s\n",
				m.Symbol, m.Name, num(m.Close), num(m.ChangePct), num(m.VolumeRatio), m.Strategy)
		}
	}
	if strings.TrimSpace(res.Analysis) != "" {
		fmt.Println(ruleLight)
		fmt.Println(res.Analysis)
	}
	fmt.Println(ruleHeavy)
}

func num(v *float64) string {
	if v == nil {
		return "--"
	}
	return fmt.Sprintf("%.2f", *v)
}

func printJSON(raw []byte) {
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		os.Stdout.Write(raw)
		fmt.Println()
		return
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	enc.Encode(v)
}
