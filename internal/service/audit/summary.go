package audit

import (
	"sort"

	"github.com/ignite/vintner-crm/internal/domain"
)

// Summarize aggregates per-client gating verdicts into the run-level
// summary. gate_export applies the same formula as client eligibility,
// over run totals.
func Summarize(results map[string]ClientResult, scenarios map[string]domain.Scenario, totalRecos int) domain.RunSummaryData {
	data := domain.RunSummaryData{
		TotalClients:         len(results),
		TotalRecommendations: totalRecos,
		ScenarioCounts:       make(map[domain.Scenario]int),
		TopErrors:            []domain.RuleCount{},
	}

	eligible := 0
	errorCounts := make(map[string]int)
	for _, res := range results {
		data.NErrors += res.Errors
		data.NWarns += res.Warns
		if res.Eligible {
			eligible++
		}
		for _, issue := range res.Issues {
			if issue.Severity == domain.SeverityError {
				errorCounts[issue.RuleCode]++
			}
		}
	}
	for _, scen := range scenarios {
		data.ScenarioCounts[scen]++
	}

	if data.TotalClients > 0 {
		data.GatingRate = float64(eligible) / float64(data.TotalClients)
	}
	data.TopErrors = topErrors(errorCounts, 5)
	data.AuditScore = score(data.NErrors, data.NWarns)
	data.GateExport = data.NErrors == 0 && data.AuditScore >= eligibilityThreshold
	return data
}

func topErrors(counts map[string]int, n int) []domain.RuleCount {
	out := make([]domain.RuleCount, 0, len(counts))
	for code, count := range counts {
		out = append(out, domain.RuleCount{RuleCode: code, Count: count})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].RuleCode < out[j].RuleCode
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}
